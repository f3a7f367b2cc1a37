package ledger

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestValidateReply(t *testing.T) {
	req, err := testBuilder().BuildGetNymRequest(trusteeDID, myDID)
	require.NoError(t, err)

	raw := []byte(`{"op":"REPLY","result":{"type":"105","identifier":"V4SGRU86Z58d6TV7PBUe6f","reqId":1,"dest":"VsKV7grR1BUE29mG2Fm2kX","seqNo":7,"txnTime":1700000000,"data":"{\"dest\":\"VsKV7grR1BUE29mG2Fm2kX\",\"verkey\":\"~abc\"}"}}`)

	reply, err := ValidateReply(raw, req)
	require.NoError(t, err)
	require.Equal(t, OpReply, reply.Op)
	require.Equal(t, TxnGetNym, reply.Type())
	require.Equal(t, myDID, reply.Dest())
	require.Equal(t, trusteeDID, reply.Identifier())
	require.Equal(t, uint64(7), reply.SeqNo())
	require.Equal(t, int64(1700000000), reply.TxnTime())
	require.Equal(t, `{"dest":"VsKV7grR1BUE29mG2Fm2kX","verkey":"~abc"}`, reply.Data())
	require.Equal(t, raw, reply.Raw)
}

func TestValidateReplyWriteLayout(t *testing.T) {
	req, err := testBuilder().BuildNymRequest(trusteeDID, myDID)
	require.NoError(t, err)

	raw := []byte(`{"op":"REPLY","result":{"txn":{"type":"1","data":{"dest":"VsKV7grR1BUE29mG2Fm2kX"},"metadata":{"from":"V4SGRU86Z58d6TV7PBUe6f","reqId":1}},"txnMetadata":{"seqNo":12,"txnTime":1700000001}}}`)

	reply, err := ValidateReply(raw, req)
	require.NoError(t, err)
	require.Equal(t, TxnNym, reply.Type())
	require.Equal(t, myDID, reply.Dest())
	require.Equal(t, trusteeDID, reply.Identifier())
	require.Equal(t, uint64(12), reply.SeqNo())
	require.Equal(t, int64(1700000001), reply.TxnTime())
}

func TestValidateReplyNullData(t *testing.T) {
	reply, err := ValidateReply([]byte(`{"op":"REPLY","result":{"type":"105","data":null}}`), nil)
	require.NoError(t, err)
	require.Empty(t, reply.Data())
}

func TestValidateReplyRejection(t *testing.T) {
	for _, op := range []string{OpReqNack, OpReject} {
		reply, err := ValidateReply([]byte(`{"op":"`+op+`","reason":"no"}`), nil)
		require.Error(t, err)
		require.True(t, IsLedgerRejection(err))
		require.NotNil(t, reply)
		require.Equal(t, "no", reply.Reason)

		var lr *LedgerRejection
		require.True(t, errors.As(err, &lr))
		require.Equal(t, op, lr.Op)
	}
}

func TestValidateReplyMalformed(t *testing.T) {
	req, err := testBuilder().BuildGetNymRequest(trusteeDID, myDID)
	require.NoError(t, err)

	for _, raw := range []string{
		``,
		`{`,
		`[]`,
		`{"result":{}}`,
		`{"op":"PONG"}`,
		`{"op":"REPLY"}`,
		`{"op":"REPLY","result":"x"}`,
		`{"op":"REQNACK"}`,
		`{"op":"REPLY","result":{"type":"1","reqId":1}}`,
		`{"op":"REPLY","result":{"type":"105","reqId":2}}`,
	} {
		_, err := ValidateReply([]byte(raw), req)
		require.ErrorIs(t, err, ErrMalformedReply, raw)
		require.False(t, IsLedgerRejection(err), raw)
	}
}
