// Package journal records the stages of settlement operations so that
// operations interrupted after funds moved can be resubmitted or re-polled.
package journal

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"hub-settle/pkg/types"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "journal").Logger()
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "journal").Logger()
}

// Journal provides high-level operations over the stored records
type Journal struct {
	storage *Storage
	now     func() time.Time
}

// Open loads the journal at path, or the default file when path is empty
func Open(path string) (*Journal, error) {
	storage, err := NewStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return &Journal{storage: storage, now: time.Now}, nil
}

// Begin creates a record for a new operation
func (j *Journal) Begin(kind Kind, chainID types.ChainID, relayChainID types.RelayChainID, detail map[string]string) (*Record, error) {
	now := j.now()
	record := &Record{
		ID:           uuid.New().String(),
		Kind:         kind,
		ChainID:      chainID,
		RelayChainID: relayChainID,
		Created:      now,
		LastUpdated:  now,
		Stage:        StageCreated,
		Detail:       detail,
	}
	if err := j.storage.Create(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Update applies fn to the record with id and bumps its timestamp
func (j *Journal) Update(id string, fn func(*Record)) (*Record, error) {
	return j.storage.Modify(id, func(r *Record) {
		fn(r)
		r.LastUpdated = j.now()
	})
}

// Get retrieves a record by id
func (j *Journal) Get(id string) (*Record, error) {
	return j.storage.Get(id)
}

// List returns every record, oldest first
func (j *Journal) List() []*Record {
	return j.storage.List()
}

// Pending returns records the relay may still deliver
func (j *Journal) Pending() []*Record {
	return j.storage.ListByStage(StageSubmitted, StageTimeout)
}

// Unsubmitted returns records whose spoke funds moved without a relay ack
func (j *Journal) Unsubmitted() []*Record {
	var out []*Record
	for _, r := range j.storage.ListByStage(StageFailed) {
		if r.NeedsResubmit() {
			out = append(out, r)
		}
	}
	return out
}

// Unnotified returns executed intents the solver has not acknowledged
func (j *Journal) Unnotified() []*Record {
	var out []*Record
	for _, r := range j.storage.ListByStage(StageExecuted) {
		if r.NeedsNotify() {
			out = append(out, r)
		}
	}
	return out
}

// Delete removes a terminal record
func (j *Journal) Delete(id string) error {
	record, err := j.storage.Get(id)
	if err != nil {
		return err
	}
	if !record.Stage.Terminal() {
		return fmt.Errorf("cannot delete record '%s' in stage %s", id, record.Stage)
	}
	return j.storage.Delete(id)
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.storage.FilePath()
}

// Tracker follows one operation through the journal. Write failures are
// logged and never fail the operation. A nil Tracker does nothing.
type Tracker struct {
	journal *Journal
	id      string
}

// Track begins a record and returns its tracker. A nil journal returns a nil
// tracker.
func (j *Journal) Track(kind Kind, chainID types.ChainID, relayChainID types.RelayChainID, detail map[string]string) *Tracker {
	if j == nil {
		return nil
	}
	record, err := j.Begin(kind, chainID, relayChainID, detail)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Msg("Failed to write journal record")
		return nil
	}
	return &Tracker{journal: j, id: record.ID}
}

// ID returns the record id, or "" for a nil tracker
func (t *Tracker) ID() string {
	if t == nil {
		return ""
	}
	return t.id
}

func (t *Tracker) update(fn func(*Record)) {
	if t == nil {
		return
	}
	if _, err := t.journal.Update(t.id, fn); err != nil {
		log.Warn().Err(err).Str("record", t.id).Msg("Failed to update journal record")
	}
}

// SpokeSent records the broadcast spoke transaction
func (t *Tracker) SpokeSent(handle *types.TxHandle) {
	t.update(func(r *Record) {
		r.Stage = StageSpokeSent
		r.SpokeTxHash = handle.Hash
		r.RelayData = handle.RelayData
	})
}

// Stage moves the record to stage
func (t *Tracker) Stage(stage Stage) {
	t.update(func(r *Record) {
		r.Stage = stage
	})
}

// Detail sets one detail value
func (t *Tracker) Detail(key, value string) {
	t.update(func(r *Record) {
		if r.Detail == nil {
			r.Detail = make(map[string]string)
		}
		r.Detail[key] = value
	})
}

// Executed records the hub transaction of the delivered packet
func (t *Tracker) Executed(hubTxHash string) {
	t.update(func(r *Record) {
		r.Stage = StageExecuted
		r.HubTxHash = hubTxHash
		r.ErrorCode = ""
		r.Error = ""
	})
}

// NotifyFailed records a missed solver notification. The hub execution
// stands, so the record stays executed.
func (t *Tracker) NotifyFailed(err error) {
	t.update(func(r *Record) {
		r.ErrorCode = types.CodePostExecutionFailed
		r.Error = err.Error()
	})
}

// Fail records err. A TIMEOUT keeps the record pollable.
func (t *Tracker) Fail(err error) {
	t.update(func(r *Record) {
		r.ErrorCode = types.CodeOf(err)
		r.Error = err.Error()
		if errors.Is(err, types.ErrTimeout) {
			r.Stage = StageTimeout
			return
		}
		r.Stage = StageFailed
	})
}
