package backend

import (
	"context"
	"time"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	logger "github.com/PolarWolf314/rimu/internal/logging"

	"github.com/cenkalti/backoff/v4"
)

// Retrying retries transient failures of an idempotent Backend with
// exponential backoff. Non-transient errors are returned immediately.
type Retrying struct {
	Backend

	MaxRetries      uint64
	InitialInterval time.Duration
	Logger          logger.Logger
}

// WithRetry wraps b with the default policy: 5 retries starting at 100ms.
func WithRetry(b Backend, log logger.Logger) *Retrying {
	return &Retrying{
		Backend:         b,
		MaxRetries:      5,
		InitialInterval: 100 * time.Millisecond,
		Logger:          log,
	}
}

func (r *Retrying) do(ctx context.Context, what string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !kerrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		r.Logger.Debugf("%s failed (attempt %d): %v", what, attempt, err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, r.MaxRetries), ctx))
}

func (r *Retrying) Put(ctx context.Context, key string, data []byte) error {
	return r.do(ctx, "put "+key, func() error {
		return r.Backend.Put(ctx, key, data)
	})
}

func (r *Retrying) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := r.do(ctx, "get "+key, func() error {
		var err error
		data, err = r.Backend.Get(ctx, key)
		return err
	})
	return data, err
}

func (r *Retrying) Has(ctx context.Context, key string) (bool, error) {
	var ok bool
	err := r.do(ctx, "has "+key, func() error {
		var err error
		ok, err = r.Backend.Has(ctx, key)
		return err
	})
	return ok, err
}

func (r *Retrying) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := r.do(ctx, "list "+prefix, func() error {
		var err error
		keys, err = r.Backend.List(ctx, prefix)
		return err
	})
	return keys, err
}

func (r *Retrying) Delete(ctx context.Context, key string) error {
	return r.do(ctx, "delete "+key, func() error {
		return r.Backend.Delete(ctx, key)
	})
}
