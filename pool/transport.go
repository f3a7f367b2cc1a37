package pool

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const submitPath = "/submit"

// HTTPTransport posts requests to a node's /submit endpoint.
type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPTransport{client: client}
}

func nodeURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/") + submitPath
	}

	return fmt.Sprintf("http://%s%s", addr, submitPath)
}

func (t *HTTPTransport) Send(ctx context.Context, node Node, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nodeURL(node.Address), bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "build request for node %s", node.Name)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "post to node %s", node.Name)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read reply of node %s", node.Name)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("node %s answered status %d: %s", node.Name, resp.StatusCode, bytes.TrimSpace(body))
	}

	return body, nil
}
