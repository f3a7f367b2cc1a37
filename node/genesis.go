package node

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/whyrusleeping/go-did-ledger/ledger"
)

type domainRecord struct {
	Txn struct {
		Type string `json:"type"`
		Data struct {
			Dest   string  `json:"dest"`
			Verkey string  `json:"verkey"`
			Role   *string `json:"role"`
			Alias  string  `json:"alias"`
		} `json:"data"`
	} `json:"txn"`
}

// ReadDomainGenesis reads the NYM transactions of a domain genesis file, one
// JSON document per line. Other transaction types are skipped.
func ReadDomainGenesis(r io.Reader) ([]Nym, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var nyms []Nym

	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec domainRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, errors.Wrapf(err, "decode domain genesis line %d", line)
		}

		if rec.Txn.Type != ledger.TxnNym {
			continue
		}

		data := rec.Txn.Data
		if data.Dest == "" {
			return nil, errors.Errorf("domain genesis line %d: nym without dest", line)
		}

		nym := Nym{Dest: data.Dest, Verkey: data.Verkey, Alias: data.Alias}
		if data.Role != nil {
			nym.Role = ledger.RoleCode(*data.Role)
		}

		nyms = append(nyms, nym)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read domain genesis")
	}

	return nyms, nil
}
