package spoke

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"

	"hub-settle/pkg/types"
)

const (
	DefaultVerifyAttempts = 20
	DefaultVerifyDelay    = 3 * time.Second
)

var errNotFinal = fmt.Errorf("transaction is not final yet")

// AwaitFinality blocks until the adapter reports hash final, retrying up to
// attempts times. It fails with TX_VERIFICATION_FAILED carrying the tx.
func AwaitFinality(ctx context.Context, a Adapter, hash string, attempts uint, delay time.Duration) error {
	if attempts == 0 {
		attempts = DefaultVerifyAttempts
	}
	if delay <= 0 {
		delay = DefaultVerifyDelay
	}

	err := retry.Do(
		func() error {
			final, err := a.VerifyTx(ctx, hash)
			if err != nil {
				return err
			}
			if !final {
				return errNotFinal
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Err(err).Uint("attempt", n+1).Str("tx_hash", hash).Msg("Waiting for spoke finality")
		}),
	)
	if err != nil {
		return types.NewSettlementError(types.CodeVerificationFailed, err).WithTx(a.ChainID(), hash)
	}
	return nil
}
