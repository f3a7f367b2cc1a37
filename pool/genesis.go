package pool

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

const (
	nodeTxnType      = "0"
	validatorService = "VALIDATOR"
)

// GenesisRecord is one line of a pool genesis file.
type GenesisRecord struct {
	Txn struct {
		Type string `json:"type"`
		Data struct {
			Dest string   `json:"dest"`
			Data nodeData `json:"data"`
		} `json:"data"`
	} `json:"txn"`
	Ver string `json:"ver"`
}

type nodeData struct {
	Alias      string   `json:"alias"`
	ClientIP   string   `json:"client_ip"`
	ClientPort int      `json:"client_port"`
	NodeIP     string   `json:"node_ip"`
	NodePort   int      `json:"node_port"`
	Services   []string `json:"services"`
}

// ReadGenesis extracts the validator nodes from pool genesis transactions,
// one JSON document per line. A later record for the same alias replaces an
// earlier one; records without the VALIDATOR service drop the node.
func ReadGenesis(r io.Reader) ([]Node, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	byAlias := map[string]Node{}
	var order []string

	line := 0
	for scanner.Scan() {
		line++

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var rec GenesisRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, errors.Wrapf(err, "decode genesis line %d", line)
		}

		if rec.Txn.Type != nodeTxnType {
			continue
		}

		data := rec.Txn.Data.Data
		if data.Alias == "" {
			return nil, errors.Errorf("genesis line %d: node without alias", line)
		}

		if data.Services != nil && !lo.Contains(data.Services, validatorService) {
			delete(byAlias, data.Alias)
			continue
		}

		if !lo.Contains(order, data.Alias) {
			order = append(order, data.Alias)
		}

		byAlias[data.Alias] = Node{
			Name:    data.Alias,
			Address: fmt.Sprintf("%s:%d", data.ClientIP, data.ClientPort),
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read genesis")
	}

	nodes := lo.FilterMap(order, func(alias string, _ int) (Node, bool) {
		n, ok := byAlias[alias]
		return n, ok
	})

	if len(nodes) == 0 {
		return nil, errors.New("genesis lists no validator nodes")
	}

	return nodes, nil
}
