package ledger

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// signature fields never take part in what is signed
var unsignedFields = map[string]bool{
	"signature":  true,
	"signatures": true,
}

// SignatureInput returns the bytes a request signature covers: every top
// level field except the signatures, rendered as sorted "key:value" pairs
// joined by "|". Nested objects are rendered the same way, lists are joined
// by ",", null becomes the empty string.
func SignatureInput(req *Request) ([]byte, error) {
	b, err := req.Bytes()
	if err != nil {
		return nil, err
	}

	return SignatureInputJSON(b)
}

// SignatureInputJSON is SignatureInput over an already serialized request.
func SignatureInputJSON(b []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrap(err, "decode request for signing")
	}

	for k := range unsignedFields {
		delete(m, k)
	}

	var sb strings.Builder
	serializeValue(&sb, m)

	return []byte(sb.String()), nil
}

func serializeValue(sb *strings.Builder, v interface{}) {
	switch v := v.(type) {
	case nil:
	case string:
		sb.WriteString(v)
	case json.Number:
		sb.WriteString(v.String())
	case bool:
		if v {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case []interface{}:
		for i, e := range v {
			if i > 0 {
				sb.WriteByte(',')
			}
			serializeValue(sb, e)
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for i, k := range keys {
			if i > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(k)
			sb.WriteByte(':')
			serializeValue(sb, v[k])
		}
	}
}
