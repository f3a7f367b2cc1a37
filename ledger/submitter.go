package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/whyrusleeping/go-did-ledger/pool"
)

// Pool is the node set a submitter broadcasts to.
type Pool interface {
	RequestIDs
	Broadcast(ctx context.Context, payload []byte) <-chan pool.NodeReply
	Size() int
	F() int
	Timeout() time.Duration
}

// State is the lifecycle position of a request.
type State int

const (
	StateBuilt State = iota
	StateSigned
	StateSubmitted
	StateAccepted
	StateRejected
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateSigned:
		return "signed"
	case StateSubmitted:
		return "submitted"
	case StateAccepted:
		return "accepted"
	case StateRejected:
		return "rejected"
	case StateTimedOut:
		return "timed_out"
	}

	return "unknown"
}

// finalState maps a submission error to its terminal state. Disagreeing or
// malformed answers count as rejected: the pool did not accept the request.
func finalState(err error) State {
	switch {
	case err == nil:
		return StateAccepted
	case errors.Is(err, ErrNetworkTimeout):
		return StateTimedOut
	default:
		return StateRejected
	}
}

// Pending is an in-flight submission.
type Pending struct {
	req    *Request
	done   chan struct{}
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	reply *Reply
	err   error
}

func (p *Pending) finish(reply *Reply, err error) {
	p.mu.Lock()
	p.reply, p.err = reply, err
	p.state = finalState(err)
	p.mu.Unlock()

	close(p.done)
}

// Done is closed once the submission reached a terminal state.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Cancel abandons the submission. Replies arriving afterwards are dropped.
func (p *Pending) Cancel() {
	p.cancel()
}

func (p *Pending) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.state
}

func (p *Pending) Request() *Request {
	return p.req
}

// Wait blocks until the submission is final or ctx ends. Ending ctx cancels
// the submission.
func (p *Pending) Wait(ctx context.Context) (*Reply, error) {
	select {
	case <-p.done:
	case <-ctx.Done():
		p.Cancel()
		<-p.done
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.reply, p.err
}

// Submitter broadcasts requests and resolves them by quorum.
type Submitter struct {
	pool    Pool
	logger  *zap.Logger
	metrics *metrics
}

func NewSubmitter(p Pool, opts ...Option) *Submitter {
	o := newOptions(opts)

	return &Submitter{
		pool:    p,
		logger:  o.logger.Named("submitter"),
		metrics: newMetrics(o.registerer),
	}
}

func checkRequest(req *Request) error {
	if req == nil || req.Operation == nil {
		return structureErr("operation", "missing")
	}

	return nil
}

// failed returns a submission that ended before anything was sent.
func failed(req *Request, err error) *Pending {
	p := &Pending{
		req:    req,
		done:   make(chan struct{}),
		cancel: func() {},
	}
	p.finish(nil, err)

	return p
}

// Start broadcasts req and returns immediately. The submission ends at the
// earlier of the ctx deadline and the pool timeout.
func (s *Submitter) Start(ctx context.Context, req *Request) *Pending {
	if err := checkRequest(req); err != nil {
		return failed(req, err)
	}

	payload, err := req.Bytes()
	return s.start(ctx, req, payload, err)
}

// startRaw submits payload as given; req describes it for validation.
func (s *Submitter) startRaw(ctx context.Context, req *Request, payload []byte) *Pending {
	if err := checkRequest(req); err != nil {
		return failed(req, err)
	}

	return s.start(ctx, req, payload, nil)
}

func (s *Submitter) start(ctx context.Context, req *Request, payload []byte, err error) *Pending {
	if t := s.pool.Timeout(); t > 0 {
		ctx, cancel := context.WithTimeout(ctx, t)
		return s.run(ctx, cancel, req, payload, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	return s.run(ctx, cancel, req, payload, err)
}

func (s *Submitter) run(ctx context.Context, cancel context.CancelFunc, req *Request, payload []byte, err error) *Pending {
	p := &Pending{
		req:    req,
		done:   make(chan struct{}),
		cancel: cancel,
		state:  StateSubmitted,
	}

	if err != nil {
		cancel()
		p.finish(nil, errors.Wrap(err, "serialize request"))
		return p
	}

	go func() {
		defer cancel()

		started := time.Now()
		reply, err := s.collect(ctx, req, s.pool.Broadcast(ctx, payload))
		p.finish(reply, err)

		typ := req.Operation.Type()
		s.metrics.submissions.WithLabelValues(typ, p.State().String()).Inc()
		s.metrics.latency.WithLabelValues(typ).Observe(time.Since(started).Seconds())
	}()

	return p
}

// Submit broadcasts req and waits for its outcome.
func (s *Submitter) Submit(ctx context.Context, req *Request) (*Reply, error) {
	return s.Start(ctx, req).Wait(ctx)
}

func (s *Submitter) collect(ctx context.Context, req *Request, replies <-chan pool.NodeReply) (*Reply, error) {
	t := newTally(req, s.pool.Size(), s.pool.F())
	log := s.logger.With(zap.Uint64("reqId", req.ReqID), zap.String("txnType", req.Operation.Type()))

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ErrNetworkTimeout, "%d of %d nodes answered: %v", t.received, t.n, ctx.Err())
		case nr, ok := <-replies:
			if !ok {
				return nil, t.failure()
			}

			kind, reply, done, err := t.add(nr)
			s.metrics.nodeReplies.WithLabelValues(nr.Node, kind).Inc()
			log.Debug("node answered", zap.String("node", nr.Node), zap.String("kind", kind))

			if done {
				return reply, err
			}
		}
	}
}
