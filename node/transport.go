package node

import (
	"context"
	"fmt"

	"github.com/whyrusleeping/go-did-ledger/pool"
)

// Local delivers requests to in-process nodes by name. Delivery does not
// depend on ctx: once broadcast, every node sees the request, which keeps
// the node states in step when a submission stops listening early.
type Local map[string]*Node

func (l Local) Send(_ context.Context, n pool.Node, payload []byte) ([]byte, error) {
	nd, ok := l[n.Name]
	if !ok {
		return nil, fmt.Errorf("no local node %s", n.Name)
	}

	return nd.Handle(payload), nil
}

// Nodes lists the pool entries of the local nodes.
func (l Local) Nodes() []pool.Node {
	nodes := make([]pool.Node, 0, len(l))
	for name := range l {
		nodes = append(nodes, pool.Node{Name: name, Address: "local://" + name})
	}

	return nodes
}
