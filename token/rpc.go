package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/ira-ai-automation/agentpair/agent"
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by a node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcTransport struct {
	endpoints []string
	http      *http.Client
	logger    agent.Logger
	nextID    atomic.Uint64
}

// call sends method to each endpoint in order until one answers. An error
// object from a node that answered is returned as is; it is not a reason to
// try the next endpoint.
func (t *rpcTransport) call(ctx context.Context, method string, out interface{}, params ...interface{}) error {
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      t.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	var lastErr error
	for _, endpoint := range t.endpoints {
		result, err := t.post(ctx, endpoint, body)
		if err != nil {
			if ctx.Err() != nil {
				return agent.NewAgentErrorWithCause(agent.ErrContextCancelled, method+" cancelled", ctx.Err())
			}
			t.logger.Warn("RPC endpoint failed",
				agent.Field{Key: "method", Value: method},
				agent.Field{Key: "endpoint", Value: endpoint},
				agent.Field{Key: "error", Value: err},
			)
			lastErr = err
			continue
		}
		if result.Error != nil {
			return result.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(result.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}

	return agent.NewAgentErrorWithCause(agent.ErrProviderUnavailable,
		fmt.Sprintf("no RPC endpoint answered %s", method), lastErr).
		WithContext("endpoints", len(t.endpoints))
}

func (t *rpcTransport) post(ctx context.Context, endpoint string, body []byte) (*rpcResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	var result rpcResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("invalid JSON-RPC response: %w", err)
	}
	return &result, nil
}
