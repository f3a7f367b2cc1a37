// Package pool knows the ledger nodes a client talks to and fans requests
// out to them.
package pool

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const DefaultTimeout = 20 * time.Second

// Node is a single ledger validator reachable by clients.
type Node struct {
	Name    string `mapstructure:"name" json:"name"`
	Address string `mapstructure:"address" json:"address"`
}

// NodeReply is the raw answer of one node. Err is set when the node could not
// be reached or did not answer in time.
type NodeReply struct {
	Node string
	Body []byte
	Err  error
}

// Transport delivers one serialized request to one node.
type Transport interface {
	Send(ctx context.Context, node Node, payload []byte) ([]byte, error)
}

// Sequence hands out request ids. It is safe for concurrent use.
type Sequence struct {
	last atomic.Uint64
}

// NewSequence starts a sequence right after seed.
func NewSequence(seed uint64) *Sequence {
	s := &Sequence{}
	s.last.Store(seed)
	return s
}

func (s *Sequence) Next() uint64 {
	return s.last.Add(1)
}

func (s *Sequence) NextRequestID() uint64 {
	return s.Next()
}

type Pool struct {
	name      string
	nodes     []Node
	transport Transport
	timeout   time.Duration
	seq       *Sequence
	logger    *zap.Logger
}

type Option func(p *Pool)

func WithTransport(t Transport) Option {
	return func(p *Pool) {
		p.transport = t
	}
}

// WithTimeout bounds how long a submission waits for replies.
func WithTimeout(d time.Duration) Option {
	return func(p *Pool) {
		p.timeout = d
	}
}

func WithSequence(s *Sequence) Option {
	return func(p *Pool) {
		p.seq = s
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Pool) {
		p.logger = l
	}
}

// New opens a pool handle over the given nodes. Request ids start at the
// current unix time in nanoseconds so that restarted clients do not reuse ids.
func New(name string, nodes []Node, opts ...Option) (*Pool, error) {
	if len(nodes) == 0 {
		return nil, errors.Errorf("pool %s has no nodes", name)
	}

	dup := lo.FindDuplicatesBy(nodes, func(n Node) string { return n.Name })
	if len(dup) > 0 {
		return nil, errors.Errorf("pool %s lists node %s twice", name, dup[0].Name)
	}

	p := &Pool{
		name:    name,
		nodes:   append([]Node(nil), nodes...),
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.transport == nil {
		p.transport = NewHTTPTransport(nil)
	}

	if p.seq == nil {
		p.seq = NewSequence(uint64(time.Now().UnixNano()))
	}

	p.logger = p.logger.Named("pool").With(zap.String("pool", name))

	return p, nil
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) Nodes() []Node {
	return append([]Node(nil), p.nodes...)
}

func (p *Pool) Size() int {
	return len(p.nodes)
}

// F is the number of faulty nodes the pool tolerates.
func (p *Pool) F() int {
	return (len(p.nodes) - 1) / 3
}

func (p *Pool) Timeout() time.Duration {
	return p.timeout
}

func (p *Pool) NextRequestID() uint64 {
	return p.seq.Next()
}

// Broadcast sends payload to every node. The returned channel yields one
// reply per node and is closed once all nodes answered or gave up. It is
// buffered for the whole pool so abandoned broadcasts never block senders.
func (p *Pool) Broadcast(ctx context.Context, payload []byte) <-chan NodeReply {
	out := make(chan NodeReply, len(p.nodes))

	go func() {
		var g errgroup.Group

		for _, n := range p.nodes {
			n := n

			g.Go(func() error {
				body, err := p.transport.Send(ctx, n, payload)
				if err != nil {
					p.logger.Debug("node send failed", zap.String("node", n.Name), zap.Error(err))
				}

				out <- NodeReply{Node: n.Name, Body: body, Err: err}
				return nil
			})
		}

		_ = g.Wait()
		close(out)
	}()

	return out
}
