package journal

import (
	"time"

	"hub-settle/pkg/types"
)

// Kind names the operation a record follows
type Kind string

const (
	KindBridge Kind = "bridge"
	KindIntent Kind = "intent"
	KindCancel Kind = "cancel"
)

// Stage is the last step a settlement operation reached
type Stage string

const (
	StageCreated   Stage = "created"    // Payload built, nothing sent
	StageSpokeSent Stage = "spoke_sent" // Spoke transaction broadcast
	StageVerified  Stage = "verified"   // Spoke transaction final
	StageSubmitted Stage = "submitted"  // Relay acknowledged
	StageExecuted  Stage = "executed"   // Packet executed on the hub
	StageSolved    Stage = "solved"     // Solver notified of the hub execution
	StageFailed    Stage = "failed"
	StageTimeout   Stage = "timeout" // Relay wait expired, packet may still land
	StageCancelled Stage = "cancelled"
)

// Terminal returns true for stages a record never leaves
func (s Stage) Terminal() bool {
	switch s {
	case StageExecuted, StageSolved, StageFailed, StageCancelled:
		return true
	}
	return false
}

// Record is the journal entry of one bridge, intent or cancellation
type Record struct {
	ID           string             `json:"id"`
	Kind         Kind               `json:"kind"`
	ChainID      types.ChainID      `json:"chain_id"`
	RelayChainID types.RelayChainID `json:"relay_chain_id"`
	Created      time.Time          `json:"created"`
	LastUpdated  time.Time          `json:"last_updated"`

	Stage       Stage  `json:"stage"`
	SpokeTxHash string `json:"spoke_tx_hash,omitempty"`
	// RelayData is resubmitted with SpokeTxHash for hash-committing chains
	RelayData string `json:"relay_data,omitempty"`
	HubTxHash string `json:"hub_tx_hash,omitempty"`

	ErrorCode types.ErrorCode `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`

	// Detail carries operation specific values such as the intent JSON
	Detail map[string]string `json:"detail,omitempty"`
}

// NeedsResubmit reports whether the spoke funds moved but the relay never
// acknowledged the transaction
func (r *Record) NeedsResubmit() bool {
	return r.SpokeTxHash != "" && r.ErrorCode == types.CodeSubmitTxFailed
}

// NeedsNotify reports whether an intent executed on the hub but the solver
// has not acknowledged the execution
func (r *Record) NeedsNotify() bool {
	return r.Kind == KindIntent && r.Stage == StageExecuted && r.HubTxHash != ""
}

// Pollable reports whether the relay may still deliver the packet
func (r *Record) Pollable() bool {
	return r.SpokeTxHash != "" && (r.Stage == StageSubmitted || r.Stage == StageTimeout)
}

func (r *Record) clone() *Record {
	c := *r
	if r.Detail != nil {
		c.Detail = make(map[string]string, len(r.Detail))
		for k, v := range r.Detail {
			c.Detail[k] = v
		}
	}
	return &c
}
