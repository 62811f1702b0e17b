// Package solver talks to the intent solver API: quotes, post-execution
// notifications and fill status.
package solver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/poll"
	"hub-settle/pkg/types"
)

const (
	// DefaultPollInterval is how often the fill status is polled
	DefaultPollInterval = 2 * time.Second
	// DefaultNotFoundGrace is how many NOT_FOUND answers are tolerated while
	// the solver indexes a new intent
	DefaultNotFoundGrace = 3
)

var (
	// ErrIntentNotFound is returned when the solver keeps answering NOT_FOUND
	// beyond the grace allowance
	ErrIntentNotFound = errors.New("intent not found by solver")
	// ErrUnknownStatus is returned for status codes the API does not document
	ErrUnknownStatus = errors.New("unknown solver status")
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "solver").Logger()
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "solver").Logger()
}

// ErrorCode is the numeric error code of the solver API
type ErrorCode int

const (
	CodeNoPathFound             ErrorCode = -4
	CodeNoPrivateLiquidity      ErrorCode = -5
	CodeNoExecutionModulesFound ErrorCode = -7
	CodeQuoteNotFound           ErrorCode = -8
	CodeInvalidInput            ErrorCode = -9
	CodeUnknown                 ErrorCode = -999
)

// APIError is the structured error body of the solver
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("solver error %d: %s", e.Code, e.Message)
}

type quoteRequest struct {
	TokenSrc             string          `json:"token_src"`
	TokenDst             string          `json:"token_dst"`
	TokenSrcBlockchainID string          `json:"token_src_blockchain_id"`
	TokenDstBlockchainID string          `json:"token_dst_blockchain_id"`
	Amount               string          `json:"amount"`
	QuoteType            types.QuoteType `json:"quote_type"`
}

// QuoteResponse carries the quoted amount in destination base units
type QuoteResponse struct {
	QuotedAmount string `json:"quoted_amount"`
}

type txHashRequest struct {
	IntentTxHash string `json:"intent_tx_hash"`
}

// ExecuteResponse acknowledges a post-execution notification
type ExecuteResponse struct {
	Answer     string `json:"answer"`
	IntentHash string `json:"intent_hash"`
}

// StatusResponse is the fill status of an intent
type StatusResponse struct {
	Status     types.SolverStatus `json:"status_code"`
	FillTxHash string             `json:"fill_tx_hash,omitempty"`
}

// Client wraps the solver HTTP API
type Client struct {
	http          *httpjson.Client
	interval      time.Duration
	notFoundGrace int
	clock         poll.Clock
}

// Option configures a Client
type Option func(*Client)

// WithPollInterval changes how often the status is polled
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.interval = d
	}
}

// WithNotFoundGrace changes how many NOT_FOUND answers are tolerated
func WithNotFoundGrace(n int) Option {
	return func(c *Client) {
		c.notFoundGrace = n
	}
}

// WithClock replaces the wall clock, for tests
func WithClock(clock poll.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient creates a solver client for the API at url
func NewClient(url string, opts ...Option) *Client {
	return NewClientWithHTTP(httpjson.New(url), opts...)
}

// NewClientWithHTTP creates a solver client over an existing JSON client
func NewClientWithHTTP(hc *httpjson.Client, opts ...Option) *Client {
	c := &Client{
		http:          hc,
		interval:      DefaultPollInterval,
		notFoundGrace: DefaultNotFoundGrace,
		clock:         poll.RealClock,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetQuote asks the solver how much it would pay for a swap
func (c *Client) GetQuote(ctx context.Context, req types.QuoteRequest) (*QuoteResponse, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, types.ErrInvalidAmount
	}
	quoteType := req.QuoteType
	if quoteType == "" {
		quoteType = types.QuoteExactInput
	}

	body := quoteRequest{
		TokenSrc:             req.TokenSrc,
		TokenDst:             req.TokenDst,
		TokenSrcBlockchainID: string(req.TokenSrcChain),
		TokenDstBlockchainID: string(req.TokenDstChain),
		Amount:               req.Amount.String(),
		QuoteType:            quoteType,
	}

	var resp QuoteResponse
	if err := c.http.PostIdempotent(ctx, "/quote", body, &resp); err != nil {
		return nil, fmt.Errorf("failed to get quote: %w", asAPIError(err))
	}
	if resp.QuotedAmount == "" {
		return nil, fmt.Errorf("empty quote response")
	}
	return &resp, nil
}

// PostExecution tells the solver the intent landed on the hub. It is sent
// once; the caller decides whether to repeat it.
func (c *Client) PostExecution(ctx context.Context, intentTxHash string) (*ExecuteResponse, error) {
	var resp ExecuteResponse
	if err := c.http.Post(ctx, "/execute", txHashRequest{IntentTxHash: intentTxHash}, &resp); err != nil {
		return nil, fmt.Errorf("failed to notify solver: %w", asAPIError(err))
	}
	log.Info().Str("intent_tx_hash", intentTxHash).Str("intent_hash", resp.IntentHash).Msg("Solver notified")
	return &resp, nil
}

// GetStatus returns the fill status of the intent created by intentTxHash
func (c *Client) GetStatus(ctx context.Context, intentTxHash string) (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.http.PostIdempotent(ctx, "/status", txHashRequest{IntentTxHash: intentTxHash}, &resp); err != nil {
		return nil, fmt.Errorf("failed to get status: %w", asAPIError(err))
	}
	return &resp, nil
}

// WaitUntilSolved polls the status until it is SOLVED or FAILED. NOT_FOUND is
// tolerated for the grace allowance; an undocumented status stops polling.
func (c *Client) WaitUntilSolved(ctx context.Context, intentTxHash string, timeout time.Duration) (*StatusResponse, error) {
	var last *StatusResponse
	notFound := 0

	poller := poll.Poller{
		Interval: c.interval,
		Timeout:  timeout,
		Clock:    c.clock,
		OnError: func(attempt int, err error) {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Status poll failed, retrying")
		},
	}

	err := poller.Run(ctx, func(ctx context.Context, attempt int) (bool, error) {
		status, err := c.GetStatus(ctx, intentTxHash)
		if err != nil {
			return false, err
		}
		last = status

		switch {
		case !status.Status.Known():
			return false, poll.Stop(fmt.Errorf("%w: %d", ErrUnknownStatus, status.Status))
		case status.Status == types.SolverNotFound:
			notFound++
			if notFound > c.notFoundGrace {
				return false, poll.Stop(ErrIntentNotFound)
			}
			return false, nil
		case status.Status.Terminal():
			return true, nil
		default:
			log.Debug().Str("status", status.Status.String()).Int("attempt", attempt).Msg("Waiting for solver")
			return false, nil
		}
	})
	if err != nil {
		return last, err
	}
	return last, nil
}

// asAPIError turns an HTTP error with a solver error body into an APIError
func asAPIError(err error) error {
	var httpErr *httpjson.HTTPError
	if !errors.As(err, &httpErr) {
		return err
	}

	var body struct {
		APIError
		Detail *APIError `json:"detail"`
	}
	if jsonErr := json.Unmarshal([]byte(httpErr.Body), &body); jsonErr != nil {
		return err
	}
	apiErr := &body.APIError
	if body.Detail != nil {
		apiErr = body.Detail
	}
	if apiErr.Message == "" && apiErr.Code == 0 {
		return err
	}
	apiErr.StatusCode = httpErr.StatusCode
	return apiErr
}
