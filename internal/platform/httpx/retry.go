package httpx

import (
	"context"
	"time"

	"github.com/yungbote/mensa-backend/internal/platform/logger"
)

// Policy bounds a single external call: each attempt gets its own timeout and
// a failed attempt is repeated at most MaxRetries times after Backoff.
type Policy struct {
	Name       string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Once is the default for every upstream call: one retry.
func Once(name string, timeout, backoff time.Duration) Policy {
	return Policy{Name: name, Timeout: timeout, MaxRetries: 1, Backoff: backoff}
}

// Retry runs fn under p. Only errors accepted by IsRetryableError are
// retried, and the parent context is honored between attempts.
func Retry(ctx context.Context, log *logger.Logger, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	backoff := p.Backoff
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}
		err = runAttempt(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if attempt == p.MaxRetries || !IsRetryableError(err) || ctx.Err() != nil {
			return err
		}
		sleepFor := JitterSleep(backoff)
		if log != nil {
			log.Warn("Upstream call retrying",
				"call", p.Name,
				"attempt", attempt+1,
				"max_retries", p.MaxRetries,
				"sleep", sleepFor.String(),
				"error", err.Error(),
			)
		}
		timer := time.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		backoff *= 2
	}
	return err
}

func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(actx)
}
