package ledger

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	did "github.com/whyrusleeping/go-did-ledger"
)

// NymRecord is the ledger state of an identity as returned by GET_NYM.
type NymRecord struct {
	Dest       string  `json:"dest"`
	Identifier string  `json:"identifier"`
	Role       *string `json:"role"`
	Verkey     string  `json:"verkey"`
	Alias      string  `json:"alias,omitempty"`
	SeqNo      uint64  `json:"seqNo"`
	TxnTime    int64   `json:"txnTime"`
}

// GetNym reads dest from the ledger, submitting as dest itself.
func (l *Ledger) GetNym(ctx context.Context, dest string) (*NymRecord, error) {
	req, err := l.BuildGetNymRequest(dest, dest)
	if err != nil {
		return nil, err
	}

	reply, err := l.SubmitRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	data := reply.Data()
	if data == "" {
		return nil, errors.Wrapf(ErrNotFound, "nym %s", dest)
	}

	rec := &NymRecord{}
	if err := json.Unmarshal([]byte(data), rec); err != nil {
		return nil, malformed("nym data: %v", err)
	}

	if rec.SeqNo == 0 {
		rec.SeqNo = reply.SeqNo()
	}

	if rec.TxnTime == 0 {
		rec.TxnTime = reply.TxnTime()
	}

	return rec, nil
}

// ResolveDID reads dest and renders it as a DID document with one ed25519
// verification method.
func (l *Ledger) ResolveDID(ctx context.Context, dest string) (*did.Document, error) {
	id, err := did.ParseDID(dest)
	if err != nil {
		return nil, structureErr("dest", "%v", err)
	}

	rec, err := l.GetNym(ctx, id.String())
	if err != nil {
		return nil, err
	}

	if rec.Verkey == "" {
		return nil, errors.Errorf("nym %s has no verkey", id)
	}

	doc, err := did.DocumentFromVerkey(id, rec.Verkey)
	if err != nil {
		return nil, malformed("verkey of %s: %v", id, err)
	}

	return doc, nil
}
