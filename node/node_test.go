package node

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	did "github.com/whyrusleeping/go-did-ledger"
	"github.com/whyrusleeping/go-did-ledger/ledger"
	"github.com/whyrusleeping/go-did-ledger/pool"
)

const (
	trusteeDID    = "V4SGRU86Z58d6TV7PBUe6f"
	trusteeVerkey = "GJ1SzoWzavQYfNL9XkaJdrQejfztN4XqdsiV4ct3LXKL"
	stewardDID    = "Th7MpTaRZVRYnPiabds81Y"
	stewardVerkey = "FYmoFw55GeQH7SRFa37dkx1d2dZ3zUF8ckg7wmL7ofN4"
	myDID         = "VsKV7grR1BUE29mG2Fm2kX"
	myVerkey      = "GjZWsBLgZCR18aL468JAT7w9CZRiBnpxUPPgyQxh4voa"
)

var fixedTime = time.Unix(1700000000, 0)

func seedKey(t *testing.T, seed string) *did.PrivKey {
	t.Helper()

	sk, err := did.GenerateEd25519([]byte(seed))
	require.NoError(t, err)
	return sk
}

func signed(t *testing.T, sk *did.PrivKey, req *ledger.Request) []byte {
	t.Helper()

	input, err := ledger.SignatureInput(req)
	require.NoError(t, err)

	sig, err := did.SignMessage(sk, input)
	require.NoError(t, err)

	b, err := req.WithSignature(sig.String()).Bytes()
	require.NoError(t, err)
	return b
}

func unsigned(t *testing.T, req *ledger.Request) []byte {
	t.Helper()

	b, err := req.Bytes()
	require.NoError(t, err)
	return b
}

type fixture struct {
	node    *Node
	builder *ledger.Builder
	trustee *did.PrivKey
	steward *did.PrivKey
	mine    *did.PrivKey
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	// abbreviated verkey, as domain genesis files carry them
	id, err := did.ParseDID(trusteeDID)
	require.NoError(t, err)
	abbr, err := did.AbbreviateVerkey(id, trusteeVerkey)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(abbr, "~"))

	n, err := New("Node1", []Nym{
		{Dest: trusteeDID, Verkey: abbr, Role: ledger.RoleTrustee},
		{Dest: stewardDID, Verkey: stewardVerkey, Role: ledger.RoleSteward},
	}, WithClock(func() time.Time { return fixedTime }))
	require.NoError(t, err)

	return &fixture{
		node:    n,
		builder: ledger.NewBuilder(pool.NewSequence(1)),
		trustee: seedKey(t, "000000000000000000000000Trustee1"),
		steward: seedKey(t, "000000000000000000000000Steward1"),
		mine:    seedKey(t, "00000000000000000000000000000My1"),
	}
}

func (f *fixture) nym(t *testing.T, sk *did.PrivKey, submitter, dest string, opts ...ledger.NymOption) []byte {
	t.Helper()

	req, err := f.builder.BuildNymRequest(submitter, dest, opts...)
	require.NoError(t, err)
	return f.node.Handle(signed(t, sk, req))
}

func (f *fixture) getNym(t *testing.T, dest string) gjson.Result {
	t.Helper()

	req, err := f.builder.BuildGetNymRequest(trusteeDID, dest)
	require.NoError(t, err)

	ans := f.node.Handle(unsigned(t, req))
	require.Equal(t, ledger.OpReply, gjson.GetBytes(ans, "op").String(), string(ans))
	return gjson.GetBytes(ans, "result")
}

func op(ans []byte) string {
	return gjson.GetBytes(ans, "op").String()
}

func TestNewRejectsBadGenesis(t *testing.T) {
	_, err := New("Node1", []Nym{{Dest: "not a did"}})
	require.Error(t, err)

	_, err = New("Node1", []Nym{{Dest: trusteeDID, Role: "7"}})
	require.Error(t, err)
}

func TestGetNym(t *testing.T) {
	f := newFixture(t)

	res := f.getNym(t, stewardDID)
	require.Equal(t, ledger.TxnGetNym, res.Get("type").String())
	require.Equal(t, stewardDID, res.Get("dest").String())

	data := gjson.Parse(res.Get("data").String())
	require.Equal(t, stewardVerkey, data.Get("verkey").String())
	require.Equal(t, "2", data.Get("role").String())

	res = f.getNym(t, myDID)
	require.Equal(t, gjson.Null, res.Get("data").Type)
	require.Equal(t, myDID, res.Get("dest").String())
}

func TestNymUnsigned(t *testing.T) {
	f := newFixture(t)

	req, err := f.builder.BuildNymRequest(trusteeDID, myDID)
	require.NoError(t, err)

	ans := f.node.Handle(unsigned(t, req))
	require.Equal(t, ledger.OpReqNack, op(ans))
	require.Contains(t, gjson.GetBytes(ans, "reason").String(), "MissingSignature")
}

func TestNymByTrustee(t *testing.T) {
	f := newFixture(t)

	ans := f.nym(t, f.trustee, trusteeDID, myDID, ledger.WithVerkey(myVerkey), ledger.WithAlias("mine"))
	require.Equal(t, ledger.OpReply, op(ans), string(ans))

	res := gjson.GetBytes(ans, "result")
	require.Equal(t, ledger.TxnNym, res.Get("type").String())
	require.Equal(t, myDID, res.Get("dest").String())
	require.Equal(t, trusteeDID, res.Get("identifier").String())
	require.Equal(t, uint64(3), res.Get("seqNo").Uint())
	require.Equal(t, fixedTime.Unix(), res.Get("txnTime").Int())
	require.False(t, res.Get("role").Exists())

	data := gjson.Parse(f.getNym(t, myDID).Get("data").String())
	require.Equal(t, myVerkey, data.Get("verkey").String())
	require.Equal(t, "mine", data.Get("alias").String())
	require.Equal(t, trusteeDID, data.Get("identifier").String())
	require.Equal(t, gjson.Null, data.Get("role").Type)

	require.Equal(t, Status{Name: "Node1", Nyms: 3, SeqNo: 3}, f.node.Status())
}

func TestNymUnknownSigner(t *testing.T) {
	f := newFixture(t)

	ans := f.nym(t, f.mine, myDID, stewardDID)
	require.Equal(t, ledger.OpReqNack, op(ans))
	require.Contains(t, gjson.GetBytes(ans, "reason").String(), "CouldNotAuthenticate")
}

func TestNymWrongKey(t *testing.T) {
	f := newFixture(t)

	ans := f.nym(t, f.steward, trusteeDID, myDID)
	require.Equal(t, ledger.OpReqNack, op(ans))
	require.Contains(t, gjson.GetBytes(ans, "reason").String(), "InsufficientCorrectSignatures")
}

func TestNymDuplicate(t *testing.T) {
	f := newFixture(t)

	req, err := f.builder.BuildNymRequest(trusteeDID, myDID, ledger.WithVerkey(myVerkey))
	require.NoError(t, err)

	payload := signed(t, f.trustee, req)
	require.Equal(t, ledger.OpReply, op(f.node.Handle(payload)))

	ans := f.node.Handle(payload)
	require.Equal(t, ledger.OpReqNack, op(ans))
	require.Contains(t, gjson.GetBytes(ans, "reason").String(), "duplicate")
}

func TestNymRoles(t *testing.T) {
	f := newFixture(t)

	ans := f.nym(t, f.steward, stewardDID, myDID, ledger.WithVerkey(myVerkey), ledger.WithRole("STEWARD"))
	require.Equal(t, ledger.OpReject, op(ans))
	require.Contains(t, gjson.GetBytes(ans, "reason").String(), "UnauthorizedClientRequest")

	ans = f.nym(t, f.steward, stewardDID, myDID, ledger.WithVerkey(myVerkey), ledger.WithRole("TRUST_ANCHOR"))
	require.Equal(t, ledger.OpReply, op(ans), string(ans))
	require.Equal(t, "101", gjson.GetBytes(ans, "result.role").String())

	// a steward may not take the role away again, a trustee may
	ans = f.nym(t, f.steward, stewardDID, myDID, ledger.WithRole(""))
	require.Equal(t, ledger.OpReject, op(ans))

	ans = f.nym(t, f.trustee, trusteeDID, myDID, ledger.WithRole(""))
	require.Equal(t, ledger.OpReply, op(ans), string(ans))
	require.Equal(t, gjson.Null, gjson.GetBytes(ans, "result.role").Type)
	require.True(t, gjson.GetBytes(ans, "result.role").Exists())

	// without a role the identity cannot create others
	other, err := did.GenerateEd25519(nil)
	require.NoError(t, err)
	otherID, err := other.Public().LedgerDID()
	require.NoError(t, err)
	otherDID := otherID.String()

	ans = f.nym(t, f.mine, myDID, otherDID, ledger.WithVerkey(other.Public().Verkey()))
	require.Equal(t, ledger.OpReject, op(ans))

	// but it may rotate its own key
	ans = f.nym(t, f.mine, myDID, myDID, ledger.WithVerkey(other.Public().Verkey()))
	require.Equal(t, ledger.OpReply, op(ans), string(ans))

	data := gjson.Parse(f.getNym(t, myDID).Get("data").String())
	require.Equal(t, other.Public().Verkey(), data.Get("verkey").String())
}

func TestHandleGarbage(t *testing.T) {
	f := newFixture(t)

	for _, payload := range []string{"", "{", `{"operation":{"type":"1","dest":"x"}}`, `{"identifier":"a","operation":{"type":"999","dest":"x"}}`} {
		ans := f.node.Handle([]byte(payload))
		require.Equal(t, ledger.OpReqNack, op(ans), payload)
	}
}

func TestDocument(t *testing.T) {
	f := newFixture(t)

	doc, err := f.node.Document(trusteeDID)
	require.NoError(t, err)
	require.Equal(t, "did:sov:"+trusteeDID, doc.ID)

	pub, err := doc.GetPublicKey("#verkey")
	require.NoError(t, err)
	require.Equal(t, trusteeVerkey, pub.Verkey())

	_, err = f.node.Document(myDID)
	require.ErrorIs(t, err, ErrUnknownNym)
}

func TestReadDomainGenesis(t *testing.T) {
	genesis := strings.Join([]string{
		`{"reqSignature":{},"txn":{"data":{"dest":"V4SGRU86Z58d6TV7PBUe6f","role":"0","verkey":"~CoRER63DVYnWZtK8uAzNbx"},"metadata":{},"type":"1"},"txnMetadata":{"seqNo":1},"ver":"1"}`,
		``,
		`{"reqSignature":{},"txn":{"data":{"dest":"Th7MpTaRZVRYnPiabds81Y","role":"2","verkey":"~7TYfekw4GUagBnBVCqPjiC","alias":"Steward1"},"metadata":{"from":"V4SGRU86Z58d6TV7PBUe6f"},"type":"1"},"txnMetadata":{"seqNo":2},"ver":"1"}`,
		`{"txn":{"data":{"dest":"VsKV7grR1BUE29mG2Fm2kX"},"type":"1"}}`,
		`{"txn":{"data":{"data":{"alias":"Node1"}},"type":"0"}}`,
	}, "\n")

	nyms, err := ReadDomainGenesis(strings.NewReader(genesis))
	require.NoError(t, err)
	require.Equal(t, []Nym{
		{Dest: trusteeDID, Verkey: "~CoRER63DVYnWZtK8uAzNbx", Role: ledger.RoleTrustee},
		{Dest: stewardDID, Verkey: "~7TYfekw4GUagBnBVCqPjiC", Role: ledger.RoleSteward, Alias: "Steward1"},
		{Dest: myDID},
	}, nyms)

	_, err = ReadDomainGenesis(strings.NewReader(`{"txn":{"type":"1","data":{}}}`))
	require.Error(t, err)
}

func TestServer(t *testing.T) {
	f := newFixture(t)

	e := echo.New()
	NewServer(f.node).Register(e)

	srv := httptest.NewServer(e)
	defer srv.Close()

	req, err := f.builder.BuildGetNymRequest(trusteeDID, stewardDID)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/submit", "application/json", strings.NewReader(string(unsigned(t, req))))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, ledger.OpReply, op(body))

	resp, err = http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	resp.Body.Close()
	require.Equal(t, Status{Name: "Node1", Nyms: 2, SeqNo: 2}, st)

	resp, err = http.Get(srv.URL + "/did/did:sov:" + stewardDID)
	require.NoError(t, err)
	var doc did.Document
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	resp.Body.Close()
	require.Equal(t, "did:sov:"+stewardDID, doc.ID)

	resp, err = http.Get(srv.URL + "/did/" + myDID)
	require.NoError(t, err)
	var er ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&er))
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, ErrorResponse{Code: http.StatusNotFound, Message: "not found", Details: ErrUnknownNym.Error()}, er)
}

func TestLocalTransport(t *testing.T) {
	f := newFixture(t)
	local := Local{"Node1": f.node}

	p, err := pool.New("local", local.Nodes(), pool.WithTransport(local))
	require.NoError(t, err)

	req, err := f.builder.BuildGetNymRequest(trusteeDID, trusteeDID)
	require.NoError(t, err)

	var answers []pool.NodeReply
	for nr := range p.Broadcast(context.Background(), unsigned(t, req)) {
		answers = append(answers, nr)
	}

	require.Len(t, answers, 1)
	require.NoError(t, answers[0].Err)
	require.Equal(t, ledger.OpReply, op(answers[0].Body))

	_, err = Local{}.Send(context.Background(), pool.Node{Name: "Node9"}, nil)
	require.Error(t, err)
}
