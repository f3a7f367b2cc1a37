// Package node is an in-process ledger validator. It keeps identity state in
// memory and answers requests the way a pool node does, which makes it a
// stand-in for a real pool in tests and local development.
package node

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/samber/lo"
	"go.uber.org/zap"

	did "github.com/whyrusleeping/go-did-ledger"
	"github.com/whyrusleeping/go-did-ledger/ledger"
)

var ErrUnknownNym = errors.New("nym not on ledger")

// Nym is an identity written at genesis.
type Nym struct {
	Dest   string
	Verkey string
	Role   ledger.RoleCode
	Alias  string
}

type record struct {
	dest       string
	identifier string
	verkey     string
	alias      string
	role       ledger.RoleCode
	seqNo      uint64
	txnTime    int64
}

// Status is served on /status by every node.
type Status struct {
	Name  string `json:"name"`
	Nyms  int    `json:"nyms"`
	SeqNo uint64 `json:"seqNo"`
}

type Node struct {
	name   string
	now    func() time.Time
	logger *zap.Logger
	reg    prometheus.Registerer

	handled *prometheus.CounterVec

	mu    sync.Mutex
	nyms  map[string]*record
	seen  map[string]bool
	seqNo uint64
}

type Option func(n *Node)

// WithClock sets the time source for txnTime. Nodes of one pool must agree
// on it for write replies to match.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		n.now = now
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(n *Node) {
		n.logger = l
	}
}

func WithRegisterer(reg prometheus.Registerer) Option {
	return func(n *Node) {
		n.reg = reg
	}
}

func New(name string, genesis []Nym, opts ...Option) (*Node, error) {
	n := &Node{
		name:   name,
		now:    time.Now,
		logger: zap.NewNop(),
		nyms:   map[string]*record{},
		seen:   map[string]bool{},
	}

	for _, opt := range opts {
		opt(n)
	}

	n.logger = n.logger.Named("node").With(zap.String("node", name))
	n.handled = promauto.With(n.reg).NewCounterVec(prometheus.CounterOpts{
		Namespace:   "ledger_node",
		Name:        "requests_total",
		Help:        "Requests handled by transaction type and answer.",
		ConstLabels: prometheus.Labels{"node": name},
	}, []string{"txn_type", "op"})

	for _, g := range genesis {
		if _, err := did.ParseDID(g.Dest); err != nil {
			return nil, fmt.Errorf("genesis nym: %w", err)
		}

		if !knownRole(g.Role) {
			return nil, fmt.Errorf("genesis nym %s: unknown role %q", g.Dest, g.Role)
		}

		n.seqNo++
		n.nyms[g.Dest] = &record{
			dest:    g.Dest,
			verkey:  g.Verkey,
			alias:   g.Alias,
			role:    g.Role,
			seqNo:   n.seqNo,
			txnTime: n.now().Unix(),
		}
	}

	return n, nil
}

func (n *Node) Name() string {
	return n.name
}

func (n *Node) Status() Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	return Status{Name: n.name, Nyms: len(n.nyms), SeqNo: n.seqNo}
}

func knownRole(c ledger.RoleCode) bool {
	return lo.Contains([]ledger.RoleCode{
		ledger.RoleCleared,
		ledger.RoleTrustee,
		ledger.RoleSteward,
		ledger.RoleTrustAnchor,
		ledger.RoleNetworkMonitor,
	}, c)
}

type answer map[string]interface{}

func nack(format string, args ...interface{}) answer {
	return answer{"op": ledger.OpReqNack, "reason": fmt.Sprintf(format, args...)}
}

func reject(format string, args ...interface{}) answer {
	return answer{"op": ledger.OpReject, "reason": fmt.Sprintf(format, args...)}
}

func reply(result map[string]interface{}) answer {
	return answer{"op": ledger.OpReply, "result": result}
}

// Handle answers one serialized request.
func (n *Node) Handle(payload []byte) []byte {
	txnType := "unknown"

	var a answer
	req, err := ledger.ParseRequest(payload)
	if err != nil {
		a = nack("InvalidClientRequest: %v", err)
	} else {
		txnType = req.Operation.Type()

		switch op := req.Operation.(type) {
		case *ledger.GetNymOperation:
			a = n.getNym(req, op)
		case *ledger.NymOperation:
			a = n.nym(payload, req, op)
		default:
			a = nack("InvalidClientRequest: unsupported transaction %s", txnType)
		}
	}

	n.handled.WithLabelValues(txnType, a["op"].(string)).Inc()
	if a["op"] != ledger.OpReply {
		n.logger.Debug("request refused", zap.String("txnType", txnType), zap.Any("reason", a["reason"]))
	}

	b, err := json.Marshal(a)
	if err != nil {
		b, _ = json.Marshal(nack("internal error: %v", err))
	}

	return b
}

func roleValue(c ledger.RoleCode) interface{} {
	if c == ledger.RoleCleared {
		return nil
	}

	return string(c)
}

func (n *Node) getNym(req *ledger.Request, op *ledger.GetNymOperation) answer {
	n.mu.Lock()
	defer n.mu.Unlock()

	result := map[string]interface{}{
		"type":       ledger.TxnGetNym,
		"identifier": req.Identifier,
		"reqId":      req.ReqID,
		"dest":       op.Dest,
		"data":       nil,
		"seqNo":      nil,
		"txnTime":    nil,
	}

	rec, ok := n.nyms[op.Dest]
	if !ok {
		return reply(result)
	}

	data := map[string]interface{}{
		"dest":       rec.dest,
		"identifier": rec.identifier,
		"role":       roleValue(rec.role),
		"verkey":     rec.verkey,
		"seqNo":      rec.seqNo,
		"txnTime":    rec.txnTime,
	}

	if rec.alias != "" {
		data["alias"] = rec.alias
	}

	b, _ := json.Marshal(data)

	result["data"] = string(b)
	result["seqNo"] = rec.seqNo
	result["txnTime"] = rec.txnTime

	return reply(result)
}

func (n *Node) nym(payload []byte, req *ledger.Request, op *ledger.NymOperation) answer {
	if req.Signature == "" {
		return nack("MissingSignature: request of %s is not signed", req.Identifier)
	}

	if op.Role != nil && !knownRole(*op.Role) {
		return nack("InvalidClientRequest: unknown role %q", *op.Role)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	signer, ok := n.nyms[req.Identifier]
	if !ok {
		return nack("CouldNotAuthenticate: unknown identifier %s", req.Identifier)
	}

	if err := verify(payload, req, signer); err != nil {
		return nack("InsufficientCorrectSignatures: %v", err)
	}

	key := fmt.Sprintf("%s/%d", req.Identifier, req.ReqID)
	if n.seen[key] {
		return nack("duplicate request %d from %s", req.ReqID, req.Identifier)
	}
	n.seen[key] = true

	existing := n.nyms[op.Dest]
	if err := authorize(signer, op, existing); err != nil {
		return reject("UnauthorizedClientRequest: %v", err)
	}

	rec := existing
	if rec == nil {
		rec = &record{dest: op.Dest, identifier: req.Identifier}
		n.nyms[op.Dest] = rec
	}

	if op.Verkey != nil {
		rec.verkey = *op.Verkey
	}

	if op.Alias != nil {
		rec.alias = *op.Alias
	}

	if op.Role != nil {
		rec.role = *op.Role
	}

	n.seqNo++
	rec.seqNo = n.seqNo
	rec.txnTime = n.now().Unix()

	result := map[string]interface{}{
		"type":       ledger.TxnNym,
		"identifier": req.Identifier,
		"reqId":      req.ReqID,
		"dest":       op.Dest,
		"signature":  req.Signature,
		"seqNo":      rec.seqNo,
		"txnTime":    rec.txnTime,
	}

	if op.Verkey != nil {
		result["verkey"] = *op.Verkey
	}

	if op.Alias != nil {
		result["alias"] = *op.Alias
	}

	if op.Role != nil {
		result["role"] = roleValue(*op.Role)
	}

	n.logger.Debug("nym written", zap.String("dest", op.Dest), zap.Uint64("seqNo", rec.seqNo))

	return reply(result)
}

func verify(payload []byte, req *ledger.Request, signer *record) error {
	if signer.verkey == "" {
		return fmt.Errorf("%s has no verkey", req.Identifier)
	}

	id, err := did.ParseDID(req.Identifier)
	if err != nil {
		return err
	}

	pub, err := did.PubKeyFromVerkey(id, signer.verkey)
	if err != nil {
		return err
	}

	sig, err := did.ParseSignature(req.Signature, did.KeyTypeEd25519)
	if err != nil {
		return err
	}

	input, err := ledger.SignatureInputJSON(payload)
	if err != nil {
		return err
	}

	if err := did.VerifyMessage(pub, input, sig); err != nil {
		return fmt.Errorf("signature of %s does not verify", req.Identifier)
	}

	return nil
}

// Document renders the DID document of an identity written on this node.
func (n *Node) Document(dest string) (*did.Document, error) {
	id, err := did.ParseDID(dest)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	rec, ok := n.nyms[id.String()]
	n.mu.Unlock()

	if !ok {
		return nil, ErrUnknownNym
	}

	if rec.verkey == "" {
		return nil, fmt.Errorf("nym %s has no verkey", dest)
	}

	return did.DocumentFromVerkey(id, rec.verkey)
}
