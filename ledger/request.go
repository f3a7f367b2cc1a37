package ledger

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Transaction types.
const (
	TxnNym    = "1"
	TxnGetNym = "105"

	ProtocolVersion = 2
)

// Operation is the closed set of ledger operations a request can carry.
// Each variant renders its own canonical field set.
type Operation interface {
	Type() string
	Target() string
	IsWrite() bool
	fields() map[string]interface{}
}

// NymOperation registers or updates an identity. Nil Verkey and Alias are
// left out of the request; a nil Role is left out while a Role pointing at
// RoleCleared is sent as null.
type NymOperation struct {
	Dest   string
	Verkey *string
	Alias  *string
	Role   *RoleCode
}

func (o *NymOperation) Type() string   { return TxnNym }
func (o *NymOperation) Target() string { return o.Dest }
func (o *NymOperation) IsWrite() bool  { return true }

func (o *NymOperation) fields() map[string]interface{} {
	m := map[string]interface{}{
		"type": TxnNym,
		"dest": o.Dest,
	}

	if o.Verkey != nil {
		m["verkey"] = *o.Verkey
	}

	if o.Alias != nil {
		m["alias"] = *o.Alias
	}

	if o.Role != nil {
		if *o.Role == RoleCleared {
			m["role"] = nil
		} else {
			m["role"] = string(*o.Role)
		}
	}

	return m
}

// GetNymOperation reads an identity.
type GetNymOperation struct {
	Dest string
}

func (o *GetNymOperation) Type() string   { return TxnGetNym }
func (o *GetNymOperation) Target() string { return o.Dest }
func (o *GetNymOperation) IsWrite() bool  { return false }

func (o *GetNymOperation) fields() map[string]interface{} {
	return map[string]interface{}{
		"type": TxnGetNym,
		"dest": o.Dest,
	}
}

// Request is a ledger request. It is not modified once built; signing
// returns a signed copy.
type Request struct {
	Identifier      string
	Operation       Operation
	ProtocolVersion int
	ReqID           uint64
	Signature       string
}

// wireRequest fixes the top level key order; encoding/json emits struct
// fields in declaration order and map keys sorted.
type wireRequest struct {
	Identifier      string          `json:"identifier"`
	Operation       json.RawMessage `json:"operation"`
	ProtocolVersion int             `json:"protocolVersion"`
	ReqID           uint64          `json:"reqId"`
	Signature       string          `json:"signature,omitempty"`
}

func marshalOperation(op Operation) ([]byte, error) {
	return json.Marshal(op.fields())
}

func (r *Request) MarshalJSON() ([]byte, error) {
	if r.Operation == nil {
		return nil, errors.New("request has no operation")
	}

	op, err := marshalOperation(r.Operation)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wireRequest{
		Identifier:      r.Identifier,
		Operation:       op,
		ProtocolVersion: r.ProtocolVersion,
		ReqID:           r.ReqID,
		Signature:       r.Signature,
	})
}

func (r *Request) UnmarshalJSON(b []byte) error {
	var w wireRequest
	if err := json.Unmarshal(b, &w); err != nil {
		return structureErr("request", "%v", err)
	}

	op, err := parseOperation(w.Operation)
	if err != nil {
		return err
	}

	*r = Request{
		Identifier:      w.Identifier,
		Operation:       op,
		ProtocolVersion: w.ProtocolVersion,
		ReqID:           w.ReqID,
		Signature:       w.Signature,
	}

	return nil
}

// ParseRequest decodes a serialized request.
func ParseRequest(b []byte) (*Request, error) {
	r := &Request{}
	if err := r.UnmarshalJSON(b); err != nil {
		return nil, err
	}

	if r.Identifier == "" {
		return nil, structureErr("identifier", "missing")
	}

	return r, nil
}

func optionalString(raw json.RawMessage, field string) (*string, bool, error) {
	if raw == nil {
		return nil, false, nil
	}

	if string(raw) == "null" {
		return nil, true, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, true, structureErr(field, "must be a string")
	}

	return &s, true, nil
}

func parseOperation(raw json.RawMessage) (Operation, error) {
	if len(raw) == 0 {
		return nil, structureErr("operation", "missing")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, structureErr("operation", "must be an object")
	}

	dest, _, err := optionalString(fields["dest"], "dest")
	if err != nil {
		return nil, err
	}

	if dest == nil || *dest == "" {
		return nil, structureErr("dest", "missing")
	}

	typ := gjson.GetBytes(raw, "type")
	if typ.Type != gjson.String {
		return nil, structureErr("type", "must be a string")
	}

	switch typ.Str {
	case TxnNym:
		op := &NymOperation{Dest: *dest}

		if op.Verkey, _, err = optionalString(fields["verkey"], "verkey"); err != nil {
			return nil, err
		}

		if op.Alias, _, err = optionalString(fields["alias"], "alias"); err != nil {
			return nil, err
		}

		role, present, err := optionalString(fields["role"], "role")
		if err != nil {
			return nil, err
		}

		if present {
			code := RoleCleared
			if role != nil {
				code = RoleCode(*role)
			}
			op.Role = &code
		}

		return op, nil
	case TxnGetNym:
		return &GetNymOperation{Dest: *dest}, nil
	default:
		return nil, structureErr("type", "unsupported transaction type %q", typ.Str)
	}
}

func (r *Request) IsWrite() bool {
	return r.Operation.IsWrite()
}

// Bytes returns the wire form of the request.
func (r *Request) Bytes() ([]byte, error) {
	return json.Marshal(r)
}

// WithSignature returns a copy of the request carrying sig.
func (r *Request) WithSignature(sig string) *Request {
	cp := *r
	cp.Signature = sig
	return &cp
}

func (r *Request) String() string {
	b, err := r.Bytes()
	if err != nil {
		return "<invalid request: " + err.Error() + ">"
	}

	return string(b)
}
