package journal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"hub-settle/pkg/relay"
	"hub-settle/pkg/solver"
	"hub-settle/pkg/types"
)

const (
	DefaultSweepInterval = 45 * time.Second
	MinSweepInterval     = 10 * time.Second
	// MaxPollAge stops re-polling records the relay has clearly dropped
	MaxPollAge = 24 * time.Hour
)

// Relay is the part of the relay API the watcher uses
type Relay interface {
	GetPacket(ctx context.Context, chainID types.RelayChainID, txHash string) (*types.PacketData, error)
	SubmitWithData(ctx context.Context, chainID types.RelayChainID, txHash, data string) (*relay.SubmitResponse, error)
}

// Solver is the part of the solver API the watcher uses
type Solver interface {
	PostExecution(ctx context.Context, intentTxHash string) (*solver.ExecuteResponse, error)
}

// Watcher re-polls records whose relay wait timed out, resubmits records
// the relay never acknowledged and notifies the solver of executed intents
type Watcher struct {
	journal  *Journal
	relay    Relay
	solver   Solver
	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// NewWatcher creates a watcher
func NewWatcher(j *Journal, r Relay) *Watcher {
	return &Watcher{journal: j, relay: r, interval: DefaultSweepInterval}
}

// SetSolver enables solver notification of executed intent records
func (w *Watcher) SetSolver(s Solver) {
	w.solver = s
}

// SetInterval sets the sweep interval
func (w *Watcher) SetInterval(interval time.Duration) {
	if interval < MinSweepInterval {
		interval = MinSweepInterval
	}
	w.interval = interval
}

// Start runs sweeps in the background until Stop or ctx is done
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})
	go w.run(ctx, w.stopChan)
	return nil
}

// Stop halts the background sweeps
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopChan)
	w.running = false
}

// IsRunning returns true while background sweeps are active
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", w.interval).Msg("Started journal watcher")
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				log.Warn().Err(err).Msg("Journal sweep failed")
			}
		}
	}
}

// Sweep polls every pending record once and retries missed solver
// notifications. It returns how many records reached a terminal stage.
func (w *Watcher) Sweep(ctx context.Context) (int, error) {
	resolved := 0
	for _, record := range w.journal.Pending() {
		if time.Since(record.Created) > MaxPollAge {
			continue
		}
		done, err := w.Check(ctx, record.ID)
		if err != nil {
			// Silent failure, the next sweep retries
			log.Debug().Err(err).Str("record", record.ID).Msg("Packet check failed")
			continue
		}
		if done {
			resolved++
		}
	}

	if w.solver == nil {
		return resolved, nil
	}
	for _, record := range w.journal.Unnotified() {
		if err := w.Notify(ctx, record.ID); err != nil {
			log.Debug().Err(err).Str("record", record.ID).Msg("Solver notification failed")
		}
	}
	return resolved, nil
}

// Check polls the relay once for a record and returns true when the record
// reached a terminal stage
func (w *Watcher) Check(ctx context.Context, id string) (bool, error) {
	record, err := w.journal.Get(id)
	if err != nil {
		return false, err
	}
	if !record.Pollable() {
		return record.Stage.Terminal(), nil
	}

	packet, err := w.relay.GetPacket(ctx, record.RelayChainID, record.SpokeTxHash)
	if err != nil {
		return false, err
	}
	if packet == nil {
		return false, nil
	}

	switch strings.ToLower(string(packet.Status)) {
	case string(types.PacketExecuted):
		_, err = w.journal.Update(id, func(r *Record) {
			r.Stage = StageExecuted
			r.HubTxHash = packet.DstTxHash
			r.ErrorCode = ""
			r.Error = ""
		})
		if err != nil {
			return false, err
		}
		log.Info().Str("record", id).Str("hub_tx_hash", packet.DstTxHash).Msg("Packet executed")
		if record.Kind == KindIntent && w.solver != nil {
			// A failed notification is kept on the record for Notify to retry
			if err := w.Notify(ctx, id); err != nil {
				log.Warn().Err(err).Str("record", id).Msg("Solver notification failed")
			}
		}
		return true, nil
	case string(types.PacketFailed):
		_, err = w.journal.Update(id, func(r *Record) {
			r.Stage = StageFailed
			r.ErrorCode = types.CodeRelayFailed
			r.Error = fmt.Sprintf("packet failed on hub (dst tx %s)", packet.DstTxHash)
		})
		log.Warn().Str("record", id).Msg("Packet failed")
		return err == nil, err
	}
	return false, nil
}

// Resubmit repeats the relay submission of a record that never got an ack.
// Only call it after confirming the relay does not know the transaction.
func (w *Watcher) Resubmit(ctx context.Context, id string) error {
	record, err := w.journal.Get(id)
	if err != nil {
		return err
	}
	if !record.NeedsResubmit() {
		return fmt.Errorf("record '%s' does not need resubmission (stage %s)", id, record.Stage)
	}

	if _, err := w.relay.SubmitWithData(ctx, record.RelayChainID, record.SpokeTxHash, record.RelayData); err != nil {
		_, _ = w.journal.Update(id, func(r *Record) {
			r.Error = err.Error()
		})
		return err
	}

	_, err = w.journal.Update(id, func(r *Record) {
		r.Stage = StageSubmitted
		r.ErrorCode = ""
		r.Error = ""
	})
	return err
}

// Notify tells the solver about the hub execution of an intent record and
// moves it to solved. A failure leaves the record executed with code
// POST_EXECUTION_FAILED.
func (w *Watcher) Notify(ctx context.Context, id string) error {
	if w.solver == nil {
		return fmt.Errorf("no solver configured")
	}
	record, err := w.journal.Get(id)
	if err != nil {
		return err
	}
	if !record.NeedsNotify() {
		return fmt.Errorf("record '%s' does not need a solver notification (stage %s)", id, record.Stage)
	}

	execution, err := w.solver.PostExecution(ctx, record.HubTxHash)
	if err != nil {
		_, _ = w.journal.Update(id, func(r *Record) {
			r.ErrorCode = types.CodePostExecutionFailed
			r.Error = err.Error()
		})
		return types.NewSettlementError(types.CodePostExecutionFailed, err)
	}

	_, err = w.journal.Update(id, func(r *Record) {
		r.Stage = StageSolved
		r.ErrorCode = ""
		r.Error = ""
		if execution != nil && execution.IntentHash != "" {
			if r.Detail == nil {
				r.Detail = make(map[string]string)
			}
			r.Detail["solver_intent_hash"] = execution.IntentHash
		}
	})
	if err == nil {
		log.Info().Str("record", id).Str("hub_tx_hash", record.HubTxHash).Msg("Solver notified")
	}
	return err
}
