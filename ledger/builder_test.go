package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/whyrusleeping/go-did-ledger/pool"
)

const (
	trusteeDID    = "V4SGRU86Z58d6TV7PBUe6f"
	trusteeVerkey = "GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL"
	myDID         = "VsKV7grR1BUE29mG2Fm2kX"
	myVerkey      = "GjZWsBLgZCR18aL468JAT7w9CZRiBnpxUPPgyQxh4voa"
)

func testBuilder() *Builder {
	return NewBuilder(pool.NewSequence(0))
}

func TestBuildNymRequiredFields(t *testing.T) {
	req, err := testBuilder().BuildNymRequest(trusteeDID, myDID)
	require.NoError(t, err)

	require.Equal(t,
		`{"identifier":"V4SGRU86Z58d6TV7PBUe6f","operation":{"dest":"VsKV7grR1BUE29mG2Fm2kX","type":"1"},"protocolVersion":2,"reqId":1}`,
		req.String())
	require.True(t, req.IsWrite())
	require.Equal(t, myDID, req.Operation.Target())
}

func TestBuildNymEmptyRole(t *testing.T) {
	req, err := testBuilder().BuildNymRequest(trusteeDID, myDID, WithRole(""))
	require.NoError(t, err)

	require.Contains(t, req.String(), `"operation":{"dest":"VsKV7grR1BUE29mG2Fm2kX","role":null,"type":"1"}`)
}

func TestBuildNymOptionalFields(t *testing.T) {
	req, err := testBuilder().BuildNymRequest(trusteeDID, myDID,
		WithVerkey(myVerkey), WithAlias("some_alias"), WithRole("STEWARD"))
	require.NoError(t, err)

	require.Contains(t, req.String(),
		`"operation":{"alias":"some_alias","dest":"VsKV7grR1BUE29mG2Fm2kX","role":"2","type":"1","verkey":"GjZWsBLgZCR18aL468JAT7w9CZRiBnpxUPPgyQxh4voa"}`)
}

func TestBuildNymRoles(t *testing.T) {
	for name, code := range map[string]string{
		"TRUSTEE":         "0",
		"STEWARD":         "2",
		"TRUST_ANCHOR":    "101",
		"ENDORSER":        "101",
		"NETWORK_MONITOR": "201",
	} {
		req, err := testBuilder().BuildNymRequest(trusteeDID, myDID, WithRole(name))
		require.NoError(t, err)
		require.Contains(t, req.String(), `"role":"`+code+`"`, name)
	}

	_, err := testBuilder().BuildNymRequest(trusteeDID, myDID, WithRole("WRONG_ROLE"))
	require.Error(t, err)
	require.True(t, IsStructureError(err))
}

func TestBuildNymInvalid(t *testing.T) {
	b := testBuilder()

	_, err := b.BuildNymRequest("not-a-did", myDID)
	require.True(t, IsStructureError(err))

	_, err = b.BuildNymRequest(trusteeDID, "")
	require.True(t, IsStructureError(err))

	_, err = b.BuildNymRequest(trusteeDID, myDID, WithVerkey(""))
	require.True(t, IsStructureError(err))

	_, err = b.BuildGetNymRequest(trusteeDID, "0OIl")
	require.True(t, IsStructureError(err))
}

func TestBuildNymQualifiedDIDs(t *testing.T) {
	req, err := testBuilder().BuildNymRequest("did:sov:"+trusteeDID, "did:sov:"+myDID)
	require.NoError(t, err)
	require.Equal(t, trusteeDID, req.Identifier)
	require.Equal(t, myDID, req.Operation.Target())
}

func TestBuildGetNym(t *testing.T) {
	req, err := testBuilder().BuildGetNymRequest(trusteeDID, myDID)
	require.NoError(t, err)

	require.Equal(t,
		`{"identifier":"V4SGRU86Z58d6TV7PBUe6f","operation":{"dest":"VsKV7grR1BUE29mG2Fm2kX","type":"105"},"protocolVersion":2,"reqId":1}`,
		req.String())
	require.False(t, req.IsWrite())
}

func TestBuildUniqueRequestIDs(t *testing.T) {
	b := testBuilder()

	var (
		mu   sync.Mutex
		seen = map[uint64]bool{}
		wg   sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < 100; j++ {
				req, err := b.BuildGetNymRequest(trusteeDID, myDID)
				if err != nil {
					panic(err)
				}

				mu.Lock()
				seen[req.ReqID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 800)
}

func TestParseRequest(t *testing.T) {
	req, err := testBuilder().BuildNymRequest(trusteeDID, myDID,
		WithVerkey(myVerkey), WithAlias("a"), WithRole(""))
	require.NoError(t, err)

	signed := req.WithSignature("sig")
	require.Empty(t, req.Signature)

	b, err := signed.Bytes()
	require.NoError(t, err)

	parsed, err := ParseRequest(b)
	require.NoError(t, err)
	require.Equal(t, signed, parsed)

	op := parsed.Operation.(*NymOperation)
	require.Equal(t, RoleCleared, *op.Role)

	for _, bad := range []string{
		`[]`,
		`{"operation":{"dest":"x","type":"1"}}`,
		`{"identifier":"a"}`,
		`{"identifier":"a","operation":{"type":"1"}}`,
		`{"identifier":"a","operation":{"dest":"x","type":1}}`,
		`{"identifier":"a","operation":{"dest":"x","type":"4"}}`,
		`{"identifier":"a","operation":{"dest":"x","type":"1","verkey":5}}`,
	} {
		_, err := ParseRequest([]byte(bad))
		require.True(t, IsStructureError(err), bad)
	}
}

func TestRoleCodeString(t *testing.T) {
	require.Equal(t, "STEWARD", RoleSteward.String())
	require.Equal(t, "<none>", RoleCleared.String())
	require.Equal(t, "ROLE(7)", RoleCode("7").String())
}
