// Package lifecycle signs, submits and waits for transactions.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/internal/domain/protocol"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
	"github.com/vnFuhung2903/rubyams/pkg/metrics"
)

// Defaults.
const (
	DefaultPollInterval = 3 * time.Second
	DefaultTimeout      = 2 * time.Minute
	defaultRatePerSec   = 5
	defaultBurst        = 5
	awaitAction         = "await"
)

var errPending = errors.New("transaction not yet confirmed")

// Driver drives a built transaction to confirmation.
type Driver struct {
	ledger   ledger.Ledger
	limiter  *rate.Limiter
	interval time.Duration
	logger   logger.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithPollInterval sets the confirmation polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.interval = d
		}
	}
}

// WithRateLimit bounds submissions per second.
func WithRateLimit(perSec float64, burst int) Option {
	return func(dr *Driver) {
		if perSec > 0 && burst > 0 {
			dr.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
		}
	}
}

// WithLogger sets the driver logger.
func WithLogger(l logger.Logger) Option {
	return func(dr *Driver) {
		if l != nil {
			dr.logger = l
		}
	}
}

// New returns a driver for l.
func New(l ledger.Ledger, opts ...Option) *Driver {
	d := &Driver{
		ledger:   l,
		limiter:  rate.NewLimiter(rate.Limit(defaultRatePerSec), defaultBurst),
		interval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("lifecycle")
	}
	return d
}

// Submit signs tx with signer, submits it and waits up to timeout for
// confirmation. Signing and submission are not interrupted by ctx; only the
// wait is. On ErrConfirmationTimeout the returned hash is still valid and the
// transaction may confirm later.
func (d *Driver) Submit(ctx context.Context, tx ledger.UnsignedTx, signer ledger.Signer, timeout time.Duration) (string, error) {
	detached := context.WithoutCancel(ctx)

	signed, err := signer.Sign(detached, tx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", protocol.ErrSignFailed, err)
	}

	if err := d.limiter.Wait(detached); err != nil {
		return "", fmt.Errorf("%w: rate limiter: %w", protocol.ErrSubmitRejected, err)
	}

	hash, err := d.ledger.Submit(detached, signed)
	if err != nil {
		metrics.RecordTxRejected(tx.Action)
		d.logger.Warn(ctx, "transaction rejected",
			logger.String("action", tx.Action),
			logger.String("tx_hash", tx.Hash),
			logger.Error(err))
		return "", fmt.Errorf("%w: %w", protocol.ErrSubmitRejected, err)
	}
	metrics.RecordTxSubmitted(tx.Action)
	d.logger.Info(ctx, "transaction submitted",
		logger.String("action", tx.Action),
		logger.String("tx_hash", hash))

	return hash, d.await(ctx, tx.Action, hash, timeout)
}

// Await waits up to timeout for hash to confirm.
func (d *Driver) Await(ctx context.Context, hash string, timeout time.Duration) error {
	return d.await(ctx, awaitAction, hash, timeout)
}

func (d *Driver) await(ctx context.Context, action, hash string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	start := time.Now()
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	op := func() error {
		metrics.RecordTxPoll()
		ok, err := d.ledger.IsConfirmed(waitCtx, hash)
		if err != nil {
			d.logger.Debug(waitCtx, "confirmation check failed", logger.String("tx_hash", hash), logger.Error(err))
			return err
		}
		if !ok {
			return errPending
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(d.interval), waitCtx)
	if err := backoff.Retry(op, b); err != nil {
		metrics.RecordTxConfirmationTimeout(action)
		d.logger.Warn(ctx, "transaction not confirmed in time",
			logger.String("action", action),
			logger.String("tx_hash", hash),
			logger.Duration("timeout", timeout))
		return fmt.Errorf("%w: %s after %s", protocol.ErrConfirmationTimeout, hash, timeout)
	}

	metrics.RecordTxConfirmed(action, float64(time.Since(start).Milliseconds()))
	d.logger.Info(ctx, "transaction confirmed",
		logger.String("action", action),
		logger.String("tx_hash", hash),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}
