package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies where a settlement operation failed
type ErrorCode string

const (
	CodeAllowanceCheckFailed     ErrorCode = "ALLOWANCE_CHECK_FAILED"
	CodeApprovalFailed           ErrorCode = "APPROVAL_FAILED"
	CodeCreateBridgeIntentFailed ErrorCode = "CREATE_BRIDGE_INTENT_FAILED"
	CodeCreationFailed           ErrorCode = "CREATION_FAILED"
	CodeSubmitTxFailed           ErrorCode = "SUBMIT_TX_FAILED"
	CodeTimeout                  ErrorCode = "TIMEOUT"
	CodeRelayFailed              ErrorCode = "RELAY_FAILED"
	CodePostExecutionFailed      ErrorCode = "POST_EXECUTION_FAILED"
	CodeCancelFailed             ErrorCode = "CANCEL_FAILED"
	CodeBridgeFailed             ErrorCode = "BRIDGE_FAILED"
	CodeMigrationFailed          ErrorCode = "MIGRATION_FAILED"
	CodeNotBridgeable            ErrorCode = "NOT_BRIDGEABLE"
	CodeSimulationFailed         ErrorCode = "SIMULATION_FAILED"
	CodeVerificationFailed       ErrorCode = "TX_VERIFICATION_FAILED"
)

// Sentinel errors. SettlementError.Is matches them by code so callers can
// use errors.Is(err, types.ErrTimeout).
var (
	ErrAllowanceCheckFailed     = &SettlementError{Code: CodeAllowanceCheckFailed}
	ErrApprovalFailed           = &SettlementError{Code: CodeApprovalFailed}
	ErrCreateBridgeIntentFailed = &SettlementError{Code: CodeCreateBridgeIntentFailed}
	ErrCreationFailed           = &SettlementError{Code: CodeCreationFailed}
	ErrSubmitTxFailed           = &SettlementError{Code: CodeSubmitTxFailed}
	ErrTimeout                  = &SettlementError{Code: CodeTimeout}
	ErrRelayFailed              = &SettlementError{Code: CodeRelayFailed}
	ErrPostExecutionFailed      = &SettlementError{Code: CodePostExecutionFailed}
	ErrCancelFailed             = &SettlementError{Code: CodeCancelFailed}
	ErrBridgeFailed             = &SettlementError{Code: CodeBridgeFailed}
	ErrNotBridgeable            = &SettlementError{Code: CodeNotBridgeable}
	ErrSimulationFailed         = &SettlementError{Code: CodeSimulationFailed}
	ErrVerificationFailed       = &SettlementError{Code: CodeVerificationFailed}
)

// Configuration errors. These are never retryable.
var (
	ErrUnsupportedFamily = errors.New("unsupported chain family")
	ErrUnknownChain      = errors.New("unknown chain")
	ErrAssetNotFound     = errors.New("hub asset not found")
	ErrNoProvider        = errors.New("chain adapter has no wallet provider")
	ErrInvalidAmount     = errors.New("amount must be greater than 0")
	ErrUnsupported       = errors.New("operation not supported on this chain family")
)

// SettlementError is returned by the bridge and intent engines. Code names the
// stage that failed; ChainID and TxHash are set once a spoke transaction exists
// so the operation can be recovered by hand.
type SettlementError struct {
	Code    ErrorCode
	ChainID ChainID
	TxHash  string
	// Payload carries the last known relay packet or raw payload for diagnostics
	Payload any
	Err     error
}

// NewSettlementError wraps err with a code
func NewSettlementError(code ErrorCode, err error) *SettlementError {
	return &SettlementError{Code: code, Err: err}
}

// WithTx attaches the spoke transaction that was already sent
func (e *SettlementError) WithTx(chainID ChainID, txHash string) *SettlementError {
	e.ChainID = chainID
	e.TxHash = txHash
	return e
}

// WithPayload attaches diagnostics
func (e *SettlementError) WithPayload(payload any) *SettlementError {
	e.Payload = payload
	return e
}

func (e *SettlementError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.TxHash != "" {
		fmt.Fprintf(&b, " (chain %s, tx %s)", e.ChainID, e.TxHash)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// Is matches any SettlementError with the same code
func (e *SettlementError) Is(target error) bool {
	t, ok := target.(*SettlementError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Critical reports whether funds already moved on the spoke chain and the
// remaining steps need manual recovery.
func (e *SettlementError) Critical() bool {
	return e.Code == CodeSubmitTxFailed
}

// CodeOf extracts the settlement code from err, or "" when err is not a
// SettlementError.
func CodeOf(err error) ErrorCode {
	var se *SettlementError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
