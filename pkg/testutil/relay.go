package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"hub-settle/pkg/types"
)

// RelayServer is an in-memory relay API. Every packet reports the same status
// until it is changed.
type RelayServer struct {
	URL string

	mu        sync.Mutex
	status    types.PacketStatus
	dstTx     string
	rejecting bool
	submitted []map[string]string
	polls     int
}

// NewRelayServer starts a relay whose packets are pending
func NewRelayServer(t *testing.T) *RelayServer {
	t.Helper()
	r := &RelayServer{status: types.PacketPending}
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	r.URL = srv.URL
	return r
}

// SetStatus changes the status reported for every packet
func (r *RelayServer) SetStatus(status types.PacketStatus, dstTxHash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = status
	r.dstTx = dstTxHash
}

// Reject makes submissions fail
func (r *RelayServer) Reject(rejecting bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejecting = rejecting
}

// Submitted returns the params of every submission
func (r *RelayServer) Submitted() []map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]string(nil), r.submitted...)
}

// Polls returns how many packet queries were served
func (r *RelayServer) Polls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.polls
}

func (r *RelayServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Action string            `json:"action"`
		Params map[string]string `json:"params"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch body.Action {
	case "submit":
		r.submitted = append(r.submitted, body.Params)
		if r.rejecting {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "transaction not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "queued"})

	case "get_transaction_packets":
		r.polls++
		packet := types.PacketData{
			SrcTxHash: body.Params["tx_hash"],
			Status:    r.status,
			DstTxHash: r.dstTx,
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": []types.PacketData{packet}})

	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
	}
}
