// Package relay submits spoke transactions to the relay network and waits
// for their hub execution packets.
package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hub-settle/pkg/httpjson"
	"hub-settle/pkg/poll"
	"hub-settle/pkg/types"
)

const (
	// DefaultPollInterval is how often the packet status is polled
	DefaultPollInterval = 2 * time.Second
	// DefaultTimeout bounds WaitUntilExecuted when the caller passes zero
	DefaultTimeout = 60 * time.Second
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "relay").Logger()
}

// SetLogger replaces the package logger
func SetLogger(l zerolog.Logger) {
	log = l.With().Str("component", "relay").Logger()
}

type request struct {
	Action string      `json:"action"`
	Params interface{} `json:"params"`
}

type submitParams struct {
	ChainID string `json:"chain_id"`
	TxHash  string `json:"tx_hash"`
	// Data carries the full payload for chains that commit only a hash on-chain
	Data string `json:"data,omitempty"`
}

type packetParams struct {
	ChainID string `json:"chain_id"`
	TxHash  string `json:"tx_hash"`
}

// SubmitResponse is the relay acknowledgement
type SubmitResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type packetsResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    []*types.PacketData `json:"data"`
}

// Client talks to the relay HTTP API
type Client struct {
	http     *httpjson.Client
	interval time.Duration
	clock    poll.Clock
}

// Option configures a Client
type Option func(*Client)

// WithPollInterval changes how often packets are polled
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.interval = d
	}
}

// WithClock replaces the wall clock, for tests
func WithClock(clock poll.Clock) Option {
	return func(c *Client) {
		c.clock = clock
	}
}

// NewClient creates a relay client
func NewClient(url string, opts ...Option) *Client {
	return NewClientWithHTTP(httpjson.New(url), opts...)
}

// NewClientWithHTTP creates a relay client over an existing JSON client
func NewClientWithHTTP(hc *httpjson.Client, opts ...Option) *Client {
	c := &Client{http: hc, interval: DefaultPollInterval, clock: poll.RealClock}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func formatChainID(id types.RelayChainID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// Submit registers a spoke transaction for delivery. It is sent exactly once:
// a failure means the spoke funds already moved and the submission must be
// repeated by hand.
func (c *Client) Submit(ctx context.Context, chainID types.RelayChainID, txHash string) (*SubmitResponse, error) {
	return c.SubmitWithData(ctx, chainID, txHash, "")
}

// SubmitWithData is Submit for chains whose transaction commits only a hash
// of the payload.
func (c *Client) SubmitWithData(ctx context.Context, chainID types.RelayChainID, txHash, data string) (*SubmitResponse, error) {
	req := request{
		Action: "submit",
		Params: submitParams{ChainID: formatChainID(chainID), TxHash: txHash, Data: data},
	}

	var resp SubmitResponse
	if err := c.http.Post(ctx, "", req, &resp); err != nil {
		return nil, types.NewSettlementError(types.CodeSubmitTxFailed, err)
	}
	if !resp.Success {
		return &resp, types.NewSettlementError(types.CodeSubmitTxFailed,
			fmt.Errorf("relay rejected submission: %s", resp.Message))
	}

	log.Info().Str("chain_id", formatChainID(chainID)).Str("tx_hash", txHash).Msg("Submitted transaction to relay")
	return &resp, nil
}

// GetPackets returns the packets the relay observed for a spoke transaction.
// Safe to call at any time, including after WaitUntilExecuted timed out.
func (c *Client) GetPackets(ctx context.Context, chainID types.RelayChainID, txHash string) ([]*types.PacketData, error) {
	req := request{
		Action: "get_transaction_packets",
		Params: packetParams{ChainID: formatChainID(chainID), TxHash: txHash},
	}

	var resp packetsResponse
	if err := c.http.PostIdempotent(ctx, "", req, &resp); err != nil {
		return nil, fmt.Errorf("failed to get packets: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("relay returned failure: %s", resp.Message)
	}
	return resp.Data, nil
}

// GetPacket returns the first packet for a transaction, or nil when the relay
// has not indexed it yet.
func (c *Client) GetPacket(ctx context.Context, chainID types.RelayChainID, txHash string) (*types.PacketData, error) {
	packets, err := c.GetPackets(ctx, chainID, txHash)
	if err != nil {
		return nil, err
	}
	if len(packets) == 0 {
		return nil, nil
	}
	return packets[0], nil
}

// WaitUntilExecuted polls until the packet of txHash is executed on the hub.
// A failed packet returns RELAY_FAILED; exceeding timeout returns TIMEOUT
// carrying the last packet seen. The relay request itself is not retracted.
func (c *Client) WaitUntilExecuted(ctx context.Context, chainID types.RelayChainID, txHash string, timeout time.Duration) (*types.PacketData, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var last *types.PacketData
	poller := poll.Poller{
		Interval: c.interval,
		Timeout:  timeout,
		Clock:    c.clock,
		OnError: func(attempt int, err error) {
			log.Warn().Err(err).Int("attempt", attempt).Str("tx_hash", txHash).Msg("Packet poll failed, retrying")
		},
	}

	err := poller.Run(ctx, func(ctx context.Context, attempt int) (bool, error) {
		packet, err := c.GetPacket(ctx, chainID, txHash)
		if err != nil {
			return false, err
		}
		if packet == nil {
			return false, nil
		}
		last = packet

		switch strings.ToLower(string(packet.Status)) {
		case string(types.PacketExecuted):
			return true, nil
		case string(types.PacketFailed):
			return false, poll.Stop(fmt.Errorf("packet failed on hub (dst tx %s)", packet.DstTxHash))
		default:
			log.Debug().Str("status", string(packet.Status)).Int("attempt", attempt).Msg("Waiting for packet")
			return false, nil
		}
	})

	switch {
	case err == nil:
		log.Info().Str("tx_hash", txHash).Str("dst_tx_hash", last.DstTxHash).Msg("Packet executed")
		return last, nil
	case errors.Is(err, poll.ErrTimeout), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return last, types.NewSettlementError(types.CodeTimeout, err).WithPayload(last)
	default:
		return last, types.NewSettlementError(types.CodeRelayFailed, err).WithPayload(last)
	}
}
