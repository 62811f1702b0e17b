package spoke_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/rpcclient"
)

type rpcCall struct {
	Method string
	Params json.RawMessage
}

type rpcHandler func(params json.RawMessage) (interface{}, error)

// rpcServer is a JSON-RPC node answering from per-method handlers
type rpcServer struct {
	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    []rpcCall
}

func newRPCServer(t *testing.T) (*rpcServer, string) {
	t.Helper()
	s := &rpcServer{handlers: make(map[string]rpcHandler)}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL
}

func (s *rpcServer) on(method string, h rpcHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *rpcServer) returns(method string, result interface{}) {
	s.on(method, func(json.RawMessage) (interface{}, error) { return result, nil })
}

func (s *rpcServer) called(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []json.RawMessage
	for _, c := range s.calls {
		if c.Method == method {
			out = append(out, c.Params)
		}
	}
	return out
}

func (s *rpcServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcclient.Request
	var raw struct {
		Params json.RawMessage `json:"params"`
	}
	body := json.NewDecoder(r.Body)
	var msg json.RawMessage
	if err := body.Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = json.Unmarshal(msg, &req)
	_ = json.Unmarshal(msg, &raw)

	s.mu.Lock()
	s.calls = append(s.calls, rpcCall{Method: req.Method, Params: raw.Params})
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if !ok {
		resp["error"] = rpcclient.Error{Code: -32601, Message: "method not found: " + req.Method}
	} else if result, err := h(raw.Params); err != nil {
		if rpcErr, isRPC := err.(*rpcclient.Error); isRPC {
			resp["error"] = rpcErr
		} else {
			resp["error"] = rpcclient.Error{Code: -32000, Message: err.Error()}
		}
	} else {
		resp["result"] = result
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// noRetry keeps failing tests fast
var noRetry = httpjson.WithRetry(httpjson.RetryConfig{})

func decodeParams(t *testing.T, raw json.RawMessage, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, out))
}
