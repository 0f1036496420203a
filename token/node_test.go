package token

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ira-ai-automation/agentpair/agent"
)

const (
	testContract = "0x2222222222222222222222222222222222222222"
	sourceWallet = "0x1111111111111111111111111111111111111111"
	targetWallet = "0x3333333333333333333333333333333333333333"
)

// fakeNode answers the subset of Ethereum JSON-RPC the client uses.
type fakeNode struct {
	t *testing.T

	mu            sync.Mutex
	chainID       uint64
	decimals      uint64
	balances      map[string]*big.Int
	gasEstimate   string
	receiptStatus string
	pendingPolls  int
	calls         map[string]int
	sent          []sentTx
}

type sentTx struct {
	method     string
	tx         map[string]string
	credential string
}

func newFakeNode(t *testing.T) (*fakeNode, *httptest.Server) {
	n := &fakeNode{
		t:             t,
		chainID:       1,
		decimals:      18,
		balances:      make(map[string]*big.Int),
		gasEstimate:   "0x5208",
		receiptStatus: "0x1",
		calls:         make(map[string]int),
	}
	srv := httptest.NewServer(n)
	t.Cleanup(srv.Close)
	return n, srv
}

func (n *fakeNode) setBalance(addr string, units *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.balances[strings.ToLower(addr)] = units
}

func (n *fakeNode) count(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *fakeNode) transactions() []sentTx {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentTx(nil), n.sent...)
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     uint64            `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	result, rpcErr := n.dispatch(req.Method, req.Params)
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (n *fakeNode) dispatch(method string, params []json.RawMessage) (interface{}, *RPCError) {
	switch method {
	case "eth_chainId":
		return encodeQuantity(n.chainID), nil

	case "eth_call":
		var call map[string]string
		assert.NoError(n.t, json.Unmarshal(params[0], &call))
		assert.Equal(n.t, testContract, call["to"])
		data := call["data"]
		switch {
		case data == selectorDecimals:
			return "0x" + fmt.Sprintf("%064x", n.decimals), nil
		case strings.HasPrefix(data, selectorBalanceOf):
			owner := "0x" + data[len(data)-40:]
			units, ok := n.balances[owner]
			if !ok {
				units = new(big.Int)
			}
			return "0x" + fmt.Sprintf("%064x", units), nil
		}
		return nil, &RPCError{Code: -32000, Message: "execution reverted"}

	case "eth_estimateGas":
		if n.gasEstimate == "" {
			return nil, &RPCError{Code: -32000, Message: "gas required exceeds allowance"}
		}
		return n.gasEstimate, nil

	case "personal_sendTransaction", "eth_sendTransaction":
		var tx map[string]string
		assert.NoError(n.t, json.Unmarshal(params[0], &tx))
		sent := sentTx{method: method, tx: tx}
		if len(params) > 1 {
			assert.NoError(n.t, json.Unmarshal(params[1], &sent.credential))
		}
		n.sent = append(n.sent, sent)
		return fmt.Sprintf("0x%064x", len(n.sent)), nil

	case "eth_getTransactionReceipt":
		if n.pendingPolls > 0 {
			n.pendingPolls--
			return nil, nil
		}
		var hash string
		assert.NoError(n.t, json.Unmarshal(params[0], &hash))
		return map[string]string{
			"transactionHash": hash,
			"blockNumber":     "0x10",
			"gasUsed":         "0x8fc4",
			"status":          n.receiptStatus,
		}, nil
	}
	return nil, &RPCError{Code: -32601, Message: "method not found"}
}

func newTestClient(t *testing.T, endpoints ...string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		Endpoints:           endpoints,
		Contract:            testContract,
		MaxAttempts:         1,
		ReceiptPollInterval: 5 * time.Millisecond,
		ReceiptTimeout:      time.Second,
		Logger:              agent.NewNoOpLogger(),
	})
	require.NoError(t, err)
	return c
}

func tokens(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pow10(18))
}
