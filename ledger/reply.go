package ledger

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Reply ops.
const (
	OpReply   = "REPLY"
	OpReqNack = "REQNACK"
	OpReject  = "REJECT"
)

// Reply is a validated node answer. Result is set for REPLY, Reason for
// REQNACK and REJECT.
type Reply struct {
	Op     string
	Result json.RawMessage
	Reason string
	Raw    []byte
}

// result lookups try the flat layout first, then the protocol 2 write layout
func (r *Reply) lookup(paths ...string) gjson.Result {
	for _, p := range paths {
		if v := gjson.GetBytes(r.Result, p); v.Exists() {
			return v
		}
	}

	return gjson.Result{}
}

func (r *Reply) Type() string {
	return r.lookup("type", "txn.type").String()
}

func (r *Reply) Dest() string {
	return r.lookup("dest", "txn.data.dest").String()
}

func (r *Reply) Identifier() string {
	return r.lookup("identifier", "txn.metadata.from").String()
}

func (r *Reply) SeqNo() uint64 {
	return r.lookup("seqNo", "txnMetadata.seqNo").Uint()
}

func (r *Reply) TxnTime() int64 {
	return r.lookup("txnTime", "txnMetadata.txnTime").Int()
}

func (r *Reply) reqID() gjson.Result {
	return r.lookup("reqId", "txn.metadata.reqId")
}

// Data returns the read payload of a GET reply; empty when the ledger has no
// entry.
func (r *Reply) Data() string {
	d := gjson.GetBytes(r.Result, "data")
	if d.Type == gjson.Null {
		return ""
	}

	if d.Type == gjson.String {
		return d.Str
	}

	return d.Raw
}

// ValidateReply parses a raw node answer to req. Rejections are returned as
// a *LedgerRejection together with the parsed reply; any other shape problem
// is a *MalformedReplyError. A nil req skips the echo checks.
func ValidateReply(raw []byte, req *Request) (*Reply, error) {
	if !gjson.ValidBytes(raw) {
		return nil, malformed("not json")
	}

	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, malformed("not an object")
	}

	op := root.Get("op")
	if op.Type != gjson.String {
		return nil, malformed("missing op")
	}

	switch op.Str {
	case OpReply:
		res := root.Get("result")
		if !res.IsObject() {
			return nil, malformed("REPLY without result object")
		}

		reply := &Reply{Op: op.Str, Result: json.RawMessage(res.Raw), Raw: raw}

		if req != nil {
			if typ := reply.Type(); typ != req.Operation.Type() {
				return nil, malformed("result type %q does not match request type %q", typ, req.Operation.Type())
			}

			if id := reply.reqID(); id.Exists() && id.Uint() != req.ReqID {
				return nil, malformed("result reqId %d does not match request %d", id.Uint(), req.ReqID)
			}
		}

		return reply, nil
	case OpReqNack, OpReject:
		reason := root.Get("reason")
		if reason.Type != gjson.String {
			return nil, malformed("%s without reason", op.Str)
		}

		reply := &Reply{Op: op.Str, Reason: reason.Str, Raw: raw}
		return reply, &LedgerRejection{Op: op.Str, Reason: reason.Str}
	default:
		return nil, malformed("unknown op %q", op.Str)
	}
}
