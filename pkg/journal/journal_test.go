package journal_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hub-settle/pkg/journal"
	"hub-settle/pkg/relay"
	"hub-settle/pkg/solver"
	"hub-settle/pkg/types"
)

func openJournal(t *testing.T) (*journal.Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.json")
	j, err := journal.Open(path)
	require.NoError(t, err)
	return j, path
}

func TestTrackerStages(t *testing.T) {
	j, path := openJournal(t)

	tracker := j.Track(journal.KindBridge, "base", 30, map[string]string{"amount": "1000000"})
	require.NotNil(t, tracker)
	tracker.SpokeSent(&types.TxHandle{ChainID: "base", Hash: "0xabc"})
	tracker.Stage(journal.StageSubmitted)
	tracker.Executed("0xhub")

	// Reopen to read what was persisted
	reopened, err := journal.Open(path)
	require.NoError(t, err)
	record, err := reopened.Get(tracker.ID())
	require.NoError(t, err)

	assert.Equal(t, journal.StageExecuted, record.Stage)
	assert.Equal(t, "0xabc", record.SpokeTxHash)
	assert.Equal(t, "0xhub", record.HubTxHash)
	assert.Equal(t, types.RelayChainID(30), record.RelayChainID)
	assert.Equal(t, "1000000", record.Detail["amount"])
}

func TestTrackerFail(t *testing.T) {
	j, _ := openJournal(t)

	timeout := j.Track(journal.KindBridge, "base", 30, nil)
	timeout.SpokeSent(&types.TxHandle{Hash: "0x01"})
	timeout.Fail(types.NewSettlementError(types.CodeTimeout, errors.New("polling timed out")))

	unsubmitted := j.Track(journal.KindIntent, "base", 30, nil)
	unsubmitted.SpokeSent(&types.TxHandle{Hash: "0x02", RelayData: "0xfeed"})
	unsubmitted.Fail(types.NewSettlementError(types.CodeSubmitTxFailed, errors.New("relay down")))

	pending := j.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, timeout.ID(), pending[0].ID)
	assert.Equal(t, journal.StageTimeout, pending[0].Stage)

	needs := j.Unsubmitted()
	require.Len(t, needs, 1)
	assert.Equal(t, unsubmitted.ID(), needs[0].ID)
	assert.Equal(t, "0xfeed", needs[0].RelayData)
}

func TestNilTrackerIsNoop(t *testing.T) {
	var j *journal.Journal
	tracker := j.Track(journal.KindBridge, "base", 30, nil)
	assert.Nil(t, tracker)
	assert.NotPanics(t, func() {
		tracker.SpokeSent(&types.TxHandle{Hash: "0x01"})
		tracker.Fail(errors.New("boom"))
		tracker.Executed("0x02")
	})
	assert.Empty(t, tracker.ID())
}

func TestDeleteRequiresTerminalStage(t *testing.T) {
	j, _ := openJournal(t)
	record, err := j.Begin(journal.KindBridge, "base", 30, nil)
	require.NoError(t, err)

	assert.Error(t, j.Delete(record.ID))

	_, err = j.Update(record.ID, func(r *journal.Record) { r.Stage = journal.StageCancelled })
	require.NoError(t, err)
	require.NoError(t, j.Delete(record.ID))
	assert.Empty(t, j.List())
}

type fakeRelay struct {
	packets   map[string]*types.PacketData
	submitted []string
	rejecting bool
}

func (f *fakeRelay) GetPacket(ctx context.Context, chainID types.RelayChainID, txHash string) (*types.PacketData, error) {
	if txHash == "0xbroken" {
		return nil, fmt.Errorf("connection reset")
	}
	return f.packets[txHash], nil
}

func (f *fakeRelay) SubmitWithData(ctx context.Context, chainID types.RelayChainID, txHash, data string) (*relay.SubmitResponse, error) {
	f.submitted = append(f.submitted, txHash+"|"+data)
	if f.rejecting {
		return nil, types.NewSettlementError(types.CodeSubmitTxFailed, errors.New("rejected"))
	}
	return &relay.SubmitResponse{Success: true}, nil
}

func TestWatcherSweep(t *testing.T) {
	j, _ := openJournal(t)
	fake := &fakeRelay{packets: map[string]*types.PacketData{
		"0xdone":   {Status: types.PacketExecuted, DstTxHash: "0xhub"},
		"0xfailed": {Status: types.PacketFailed},
		"0xslow":   {Status: types.PacketExecuting},
	}}

	ids := map[string]string{}
	for _, hash := range []string{"0xdone", "0xfailed", "0xslow", "0xbroken"} {
		tracker := j.Track(journal.KindBridge, "base", 30, nil)
		tracker.SpokeSent(&types.TxHandle{Hash: hash})
		tracker.Fail(types.NewSettlementError(types.CodeTimeout, errors.New("timeout")))
		ids[hash] = tracker.ID()
	}

	watcher := journal.NewWatcher(j, fake)
	resolved, err := watcher.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	done, _ := j.Get(ids["0xdone"])
	assert.Equal(t, journal.StageExecuted, done.Stage)
	assert.Equal(t, "0xhub", done.HubTxHash)
	assert.Empty(t, done.ErrorCode)

	failed, _ := j.Get(ids["0xfailed"])
	assert.Equal(t, journal.StageFailed, failed.Stage)
	assert.Equal(t, types.CodeRelayFailed, failed.ErrorCode)

	slow, _ := j.Get(ids["0xslow"])
	assert.Equal(t, journal.StageTimeout, slow.Stage)
	assert.Len(t, j.Pending(), 2)
}

func TestWatcherResubmit(t *testing.T) {
	j, _ := openJournal(t)
	fake := &fakeRelay{rejecting: true}
	watcher := journal.NewWatcher(j, fake)

	tracker := j.Track(journal.KindBridge, "bitcoin", 8, nil)
	tracker.SpokeSent(&types.TxHandle{Hash: "txid", RelayData: "0xmsg"})
	tracker.Fail(types.NewSettlementError(types.CodeSubmitTxFailed, errors.New("relay down")))

	err := watcher.Resubmit(context.Background(), tracker.ID())
	assert.ErrorIs(t, err, types.ErrSubmitTxFailed)
	record, _ := j.Get(tracker.ID())
	assert.True(t, record.NeedsResubmit())

	fake.rejecting = false
	require.NoError(t, watcher.Resubmit(context.Background(), tracker.ID()))
	assert.Equal(t, []string{"txid|0xmsg", "txid|0xmsg"}, fake.submitted)

	record, _ = j.Get(tracker.ID())
	assert.Equal(t, journal.StageSubmitted, record.Stage)
	assert.False(t, record.NeedsResubmit())

	assert.Error(t, watcher.Resubmit(context.Background(), tracker.ID()), "already acknowledged")
}

type fakeSolver struct {
	notified []string
	failing  bool
}

func (f *fakeSolver) PostExecution(ctx context.Context, intentTxHash string) (*solver.ExecuteResponse, error) {
	f.notified = append(f.notified, intentTxHash)
	if f.failing {
		return nil, errors.New("solver unavailable")
	}
	return &solver.ExecuteResponse{Answer: "OK", IntentHash: "0xintent"}, nil
}

func TestWatcherNotifiesSolverOfExecutedIntent(t *testing.T) {
	j, _ := openJournal(t)
	fake := &fakeRelay{packets: map[string]*types.PacketData{
		"0xintent": {Status: types.PacketExecuted, DstTxHash: "0xhub1"},
		"0xbridge": {Status: types.PacketExecuted, DstTxHash: "0xhub2"},
	}}
	solverAPI := &fakeSolver{}
	watcher := journal.NewWatcher(j, fake)
	watcher.SetSolver(solverAPI)

	intentTracker := j.Track(journal.KindIntent, "base", 30, nil)
	intentTracker.SpokeSent(&types.TxHandle{Hash: "0xintent"})
	intentTracker.Fail(types.NewSettlementError(types.CodeTimeout, errors.New("timeout")))
	bridgeTracker := j.Track(journal.KindBridge, "base", 30, nil)
	bridgeTracker.SpokeSent(&types.TxHandle{Hash: "0xbridge"})
	bridgeTracker.Fail(types.NewSettlementError(types.CodeTimeout, errors.New("timeout")))

	resolved, err := watcher.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, resolved)

	// Only the intent is reported, with the hub transaction
	assert.Equal(t, []string{"0xhub1"}, solverAPI.notified)
	record, _ := j.Get(intentTracker.ID())
	assert.Equal(t, journal.StageSolved, record.Stage)
	assert.Equal(t, "0xintent", record.Detail["solver_intent_hash"])

	bridged, _ := j.Get(bridgeTracker.ID())
	assert.Equal(t, journal.StageExecuted, bridged.Stage)
	assert.Empty(t, j.Unnotified())
}

func TestWatcherRetriesFailedNotification(t *testing.T) {
	j, _ := openJournal(t)
	fake := &fakeRelay{packets: map[string]*types.PacketData{
		"0xintent": {Status: types.PacketExecuted, DstTxHash: "0xhub"},
	}}
	solverAPI := &fakeSolver{failing: true}
	watcher := journal.NewWatcher(j, fake)

	tracker := j.Track(journal.KindIntent, "base", 30, nil)
	tracker.SpokeSent(&types.TxHandle{Hash: "0xintent"})
	tracker.Stage(journal.StageSubmitted)

	assert.Error(t, watcher.Notify(context.Background(), tracker.ID()), "no solver configured")
	watcher.SetSolver(solverAPI)
	assert.Error(t, watcher.Notify(context.Background(), tracker.ID()), "not executed yet")

	done, err := watcher.Check(context.Background(), tracker.ID())
	require.NoError(t, err)
	assert.True(t, done, "the hub execution stands without the solver")

	record, _ := j.Get(tracker.ID())
	assert.Equal(t, journal.StageExecuted, record.Stage)
	assert.Equal(t, types.CodePostExecutionFailed, record.ErrorCode)
	require.Len(t, j.Unnotified(), 1)

	err = watcher.Notify(context.Background(), tracker.ID())
	assert.ErrorIs(t, err, types.ErrPostExecutionFailed)

	solverAPI.failing = false
	_, err = watcher.Sweep(context.Background())
	require.NoError(t, err)

	record, _ = j.Get(tracker.ID())
	assert.Equal(t, journal.StageSolved, record.Stage)
	assert.Empty(t, record.ErrorCode)
	assert.Equal(t, []string{"0xhub", "0xhub", "0xhub"}, solverAPI.notified)
	assert.Error(t, watcher.Notify(context.Background(), tracker.ID()), "already solved")
}

func TestWatcherStartStop(t *testing.T) {
	j, _ := openJournal(t)
	watcher := journal.NewWatcher(j, &fakeRelay{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, watcher.Start(ctx))
	assert.True(t, watcher.IsRunning())
	assert.Error(t, watcher.Start(ctx))
	watcher.Stop()
	assert.False(t, watcher.IsRunning())
}
