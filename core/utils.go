package core

import (
	"context"
	"time"

	retry "github.com/avast/retry-go"
)

var (
	rtyAttNum = uint(5)
	rtyAtt    = retry.Attempts(rtyAttNum)
	rtyDel    = retry.Delay(time.Millisecond * 400)
	rtyErr    = retry.LastErrorOnly(true)
)

// RetryPolicy bounds the local retries of a single action. Delays grow exponentially
// from Delay and are capped by MaxDelay.
type RetryPolicy struct {
	Attempts uint          `yaml:"attempts" json:"attempts" mapstructure:"attempts"`
	Delay    time.Duration `yaml:"delay" json:"delay" mapstructure:"delay"`
	MaxDelay time.Duration `yaml:"max-delay" json:"max-delay" mapstructure:"max-delay"`
}

// DefaultRetryPolicy matches the retry budget used by the handshake queries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: rtyAttNum,
		Delay:    400 * time.Millisecond,
		MaxDelay: 10 * time.Second,
	}
}

// Options converts the policy into retry-go options. Only errors classified as retryable
// are retried; anything else is returned after the first attempt.
func (p RetryPolicy) Options(ctx context.Context, onRetry func(n uint, err error)) []retry.Option {
	attempts := p.Attempts
	if attempts == 0 {
		attempts = 1
	}
	opts := []retry.Option{
		retry.Attempts(attempts),
		retry.Delay(p.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsRetryable),
		rtyErr,
		retry.Context(ctx),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(p.MaxDelay))
	}
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(onRetry))
	}
	return opts
}

// Do runs fn under the policy.
func (p RetryPolicy) Do(ctx context.Context, fn func() error, onRetry func(n uint, err error)) error {
	return retry.Do(fn, p.Options(ctx, onRetry)...)
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// runUntilComplete calls fn every interval until it reports completion or fails.
func runUntilComplete(ctx context.Context, interval time.Duration, fn func() (bool, error)) error {
	for {
		if done, err := fn(); err != nil {
			return err
		} else if done {
			return nil
		}

		if err := wait(ctx, interval); err != nil {
			return err
		}
	}
}
