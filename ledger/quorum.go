package ledger

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/whyrusleeping/go-did-ledger/pool"
)

// Reply kinds as counted per node.
const (
	kindReply     = "reply"
	kindRejection = "rejection"
	kindMalformed = "malformed"
	kindFailed    = "failed"
)

type vote struct {
	reply *Reply
	err   error
	count int
}

// tally counts node answers for one request. A result is final once f+1
// nodes agree on it. Reads take the first well-formed REPLY; rejections
// always need f+1 nodes.
type tally struct {
	req       *Request
	n         int
	f         int
	received  int
	malformed int
	failed    int
	lastErr   error
	votes     map[string]*vote
}

func newTally(req *Request, n, f int) *tally {
	return &tally{
		req:   req,
		n:     n,
		f:     f,
		votes: map[string]*vote{},
	}
}

func (t *tally) threshold() int {
	return t.f + 1
}

// resultKey renders a result with sorted keys so that equal results from
// different nodes compare equal regardless of key order.
func resultKey(res json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(res, &v); err != nil {
		return "", err
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// add records one node answer and reports its kind. done is true once the
// outcome is decided.
func (t *tally) add(nr pool.NodeReply) (kind string, reply *Reply, done bool, err error) {
	t.received++

	if nr.Err != nil {
		t.failed++
		t.lastErr = nr.Err
		reply, done, err = t.undecided()
		return kindFailed, reply, done, err
	}

	reply, verr := ValidateReply(nr.Body, t.req)

	var key string
	var rej *LedgerRejection

	switch {
	case errors.As(verr, &rej):
		kind = kindRejection
		key = "reject"
	case verr != nil:
		t.malformed++
		t.lastErr = errors.Wrapf(verr, "node %s", nr.Node)
		reply, done, err = t.undecided()
		return kindMalformed, reply, done, err
	default:
		kind = kindReply
		if !t.req.IsWrite() {
			return kind, reply, true, nil
		}

		key, err = resultKey(reply.Result)
		if err != nil {
			t.malformed++
			t.lastErr = errors.Wrapf(malformed("%v", err), "node %s", nr.Node)
			reply, done, err = t.undecided()
			return kindMalformed, reply, done, err
		}
		key = "reply:" + key
	}

	v, ok := t.votes[key]
	if !ok {
		v = &vote{reply: reply, err: verr}
		t.votes[key] = v
	}
	v.count++

	if v.count >= t.threshold() {
		return kind, v.reply, true, v.err
	}

	reply, done, err = t.undecided()
	return kind, reply, done, err
}

// undecided ends the tally once no answer can reach the threshold any more.
func (t *tally) undecided() (*Reply, bool, error) {
	outstanding := t.n - t.received

	best := lo.MaxBy(lo.Values(t.votes), func(a, b *vote) bool { return a.count > b.count })
	bestCount := 0
	if best != nil {
		bestCount = best.count
	}

	if bestCount+outstanding >= t.threshold() {
		return nil, false, nil
	}

	return nil, true, t.failure()
}

func (t *tally) failure() error {
	switch {
	case len(t.votes) > 1:
		return errors.Wrapf(ErrConsensusMismatch, "%d distinct answers from %d of %d nodes, %d needed to agree",
			len(t.votes), t.received-t.failed-t.malformed, t.n, t.threshold())
	case t.malformed > 0 && t.failed == 0 && len(t.votes) == 0:
		return t.lastErr
	default:
		return errors.Wrapf(ErrNetworkTimeout, "only %d of %d nodes answered usefully, %d needed: %v",
			t.received-t.failed-t.malformed, t.n, t.threshold(), t.lastErr)
	}
}
