package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/uttertype/uttertype/internal/logging"
)

type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// Timeout bounds the whole call including retries. Zero means no bound.
	Timeout time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     4 * time.Second,
		Timeout:         30 * time.Second,
	}
}

type resilient struct {
	next Backend
	cfg  RetryConfig
	log  zerolog.Logger
}

// Resilient retries transient failures of b with exponential backoff and
// fails permanently once cfg.Timeout elapses.
func Resilient(b Backend, cfg RetryConfig) Backend {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &resilient{next: b, cfg: cfg, log: logging.For("transcriber")}
}

func (r *resilient) Name() string { return r.next.Name() }

// Close releases the wrapped backend when it holds resources.
func (r *resilient) Close() error {
	if c, ok := r.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *resilient) Transcribe(ctx context.Context, req Request) (Result, error) {
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	eb := backoff.NewExponentialBackOff()
	if r.cfg.InitialInterval > 0 {
		eb.InitialInterval = r.cfg.InitialInterval
	}
	if r.cfg.MaxInterval > 0 {
		eb.MaxInterval = r.cfg.MaxInterval
	}

	attempts := 0
	start := time.Now()
	res, err := backoff.Retry(ctx, func() (Result, error) {
		attempts++
		res, err := r.next.Transcribe(ctx, req)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil && !errors.Is(err, ErrNotReady) {
			return Result{}, backoff.Permanent(r.deadlineError(ctx))
		}
		if !IsTransient(err) {
			return Result{}, backoff.Permanent(err)
		}
		return Result{}, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Warn().Err(err).Int("attempt", attempts).Dur("retry_in", wait).Str("provider", r.next.Name()).
				Msg("transcription failed, retrying")
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			var be *BackendError
			if !errors.As(err, &be) {
				err = r.deadlineError(ctx)
			}
		}
		r.log.Error().Err(err).Int("attempts", attempts).Dur("elapsed", time.Since(start)).Str("provider", r.next.Name()).
			Msg("transcription failed")
		return Result{}, err
	}

	res.Attempts = attempts
	if res.Latency == 0 {
		res.Latency = time.Since(start)
	}
	return res, nil
}

func (r *resilient) deadlineError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewPermanentError(r.next.Name(), fmt.Errorf("%w after %v", ErrTimeout, r.cfg.Timeout))
	}
	return NewPermanentError(r.next.Name(), ctx.Err())
}
