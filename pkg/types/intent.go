package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Intent is a solver swap request as stored by the hub intents contract
type Intent struct {
	IntentID         *big.Int       `json:"intent_id"`
	Creator          common.Address `json:"creator"`
	InputToken       common.Address `json:"input_token"`
	OutputToken      common.Address `json:"output_token"`
	InputAmount      *big.Int       `json:"input_amount"`
	MinOutputAmount  *big.Int       `json:"min_output_amount"`
	Deadline         *big.Int       `json:"deadline"`
	AllowPartialFill bool           `json:"allow_partial_fill"`
	SrcChain         RelayChainID   `json:"src_chain"`
	DstChain         RelayChainID   `json:"dst_chain"`
	SrcAddress       []byte         `json:"src_address"`
	DstAddress       []byte         `json:"dst_address"`
	Solver           common.Address `json:"solver"`
	Data             []byte         `json:"data"`
	// FeeAmount is deposited on top of InputAmount and described inside Data
	FeeAmount *big.Int `json:"fee_amount"`
}

// IntentState is the client-side lifecycle of an intent
type IntentState string

const (
	IntentBuilt             IntentState = "BUILT"
	IntentSubmitted         IntentState = "SUBMITTED"
	IntentRelayed           IntentState = "RELAYED"
	IntentAwaitingExecution IntentState = "AWAITING_EXECUTION"
	IntentExecuted          IntentState = "EXECUTED"
	IntentFailed            IntentState = "FAILED"
	IntentTimeout           IntentState = "TIMEOUT"
	IntentCancelled         IntentState = "CANCELLED"
)

// Terminal returns true for states an intent never leaves
func (s IntentState) Terminal() bool {
	switch s {
	case IntentExecuted, IntentFailed, IntentTimeout, IntentCancelled:
		return true
	}
	return false
}

// SolverStatus is the off-chain solver state of an intent
type SolverStatus int

const (
	SolverNotFound           SolverStatus = -1
	SolverNotStartedYet      SolverStatus = 1
	SolverStartedNotFinished SolverStatus = 2
	SolverSolved             SolverStatus = 3
	SolverFailed             SolverStatus = 4
)

// Known reports whether the status is one the solver API documents
func (s SolverStatus) Known() bool {
	switch s {
	case SolverNotFound, SolverNotStartedYet, SolverStartedNotFinished, SolverSolved, SolverFailed:
		return true
	}
	return false
}

// Terminal returns true when polling can stop
func (s SolverStatus) Terminal() bool {
	return s == SolverSolved || s == SolverFailed
}

func (s SolverStatus) String() string {
	switch s {
	case SolverNotFound:
		return "NOT_FOUND"
	case SolverNotStartedYet:
		return "NOT_STARTED_YET"
	case SolverStartedNotFinished:
		return "STARTED_NOT_FINISHED"
	case SolverSolved:
		return "SOLVED"
	case SolverFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// QuoteType selects which side of a quote is fixed
type QuoteType string

const (
	QuoteExactInput  QuoteType = "exact_input"
	QuoteExactOutput QuoteType = "exact_output"
)
