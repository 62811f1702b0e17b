package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/relay"
	"hub-settle/pkg/testutil"
	"hub-settle/pkg/types"
)

type fakeRelay struct {
	mu        sync.Mutex
	submitted []map[string]string
	rejecting bool
	statuses  []string // consumed one per poll, the last one repeats
	polls     int
}

func (f *fakeRelay) setStatuses(statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = statuses
}

func (f *fakeRelay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string            `json:"action"`
		Params map[string]string `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Action {
	case "submit":
		f.submitted = append(f.submitted, req.Params)
		if f.rejecting {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "message": "unknown tx"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "message": "queued"})

	case "get_transaction_packets":
		status := f.statuses[len(f.statuses)-1]
		if f.polls < len(f.statuses) {
			status = f.statuses[f.polls]
		}
		f.polls++

		switch status {
		case "error":
			w.WriteHeader(http.StatusBadGateway)
			return
		case "missing":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": []interface{}{}})
			return
		}
		packet := types.PacketData{
			SrcChainID: 30,
			SrcTxHash:  req.Params["tx_hash"],
			Status:     types.PacketStatus(status),
			DstChainID: 146,
			ConnSn:     7,
		}
		if status == "executed" {
			packet.DstTxHash = "0xhub"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": []types.PacketData{packet}})
	}
}

func newClient(t *testing.T, fake *fakeRelay) (*relay.Client, *testutil.FakeClock) {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	clock := testutil.NewFakeClock()
	hc := httpjson.New(server.URL, httpjson.WithRetry(httpjson.RetryConfig{}))
	return relay.NewClientWithHTTP(hc, relay.WithClock(clock), relay.WithPollInterval(2*time.Second)), clock
}

func TestSubmit(t *testing.T) {
	fake := &fakeRelay{}
	client, _ := newClient(t, fake)

	resp, err := client.Submit(context.Background(), 30, "0xspoke")
	require.NoError(t, err)
	assert.True(t, resp.Success)

	require.Len(t, fake.submitted, 1)
	assert.Equal(t, "30", fake.submitted[0]["chain_id"])
	assert.Equal(t, "0xspoke", fake.submitted[0]["tx_hash"])
	_, hasData := fake.submitted[0]["data"]
	assert.False(t, hasData)
}

func TestSubmit_RejectedIsCritical(t *testing.T) {
	fake := &fakeRelay{rejecting: true}
	client, _ := newClient(t, fake)

	_, err := client.Submit(context.Background(), 30, "0xspoke")
	require.ErrorIs(t, err, types.ErrSubmitTxFailed)

	var se *types.SettlementError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Critical())
	assert.Len(t, fake.submitted, 1, "submission must not be retried")
}

func TestWaitUntilExecuted_ToleratesTransientErrors(t *testing.T) {
	fake := &fakeRelay{}
	fake.setStatuses("missing", "error", "pending", "executing", "executed")
	client, clock := newClient(t, fake)

	packet, err := client.WaitUntilExecuted(context.Background(), 30, "0xspoke", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "0xhub", packet.DstTxHash)
	assert.Equal(t, 8*time.Second, clock.Elapsed())
}

func TestWaitUntilExecuted_FailedPacket(t *testing.T) {
	fake := &fakeRelay{}
	fake.setStatuses("pending", "failed")
	client, _ := newClient(t, fake)

	packet, err := client.WaitUntilExecuted(context.Background(), 30, "0xspoke", time.Minute)
	require.ErrorIs(t, err, types.ErrRelayFailed)
	require.NotNil(t, packet)
	assert.Equal(t, types.PacketFailed, packet.Status)
}

func TestWaitUntilExecuted_TimeoutThenIndependentRepoll(t *testing.T) {
	fake := &fakeRelay{}
	fake.setStatuses("pending")
	client, clock := newClient(t, fake)

	packet, err := client.WaitUntilExecuted(context.Background(), 30, "0xspoke", 60*time.Second)
	require.ErrorIs(t, err, types.ErrTimeout)
	assert.Equal(t, 60*time.Second, clock.Elapsed())

	var se *types.SettlementError
	require.ErrorAs(t, err, &se)
	last, ok := se.Payload.(*types.PacketData)
	require.True(t, ok)
	assert.Equal(t, types.PacketPending, last.Status)
	assert.Equal(t, packet, last)

	// the relay delivers later; a fresh poll with the same chain id and hash sees it
	fake.setStatuses("executed")
	fake.mu.Lock()
	fake.polls = 0
	fake.mu.Unlock()

	later, err := client.GetPacket(context.Background(), 30, "0xspoke")
	require.NoError(t, err)
	assert.Equal(t, types.PacketExecuted, later.Status)
	assert.Equal(t, "0xhub", later.DstTxHash)

	again, err := client.WaitUntilExecuted(context.Background(), 30, "0xspoke", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "0xhub", again.DstTxHash)
}

func TestSubmitWithData(t *testing.T) {
	fake := &fakeRelay{}
	client, _ := newClient(t, fake)

	_, err := client.SubmitWithData(context.Background(), 0x1234, "abcd", "0xfeed")
	require.NoError(t, err)
	require.Len(t, fake.submitted, 1)
	assert.Equal(t, "0xfeed", fake.submitted[0]["data"])
	assert.Equal(t, "4660", fake.submitted[0]["chain_id"])
}
