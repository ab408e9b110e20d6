package llm

import (
	"context"
	"errors"
	"io"
	"time"

	apperrors "github.com/dshills/codeaudit/internal/errors"
	"github.com/dshills/codeaudit/internal/retry"
)

// Guarded bounds every call to a generator with a timeout and retries
// failures with backoff. A call that still times out surfaces as a
// ModelTimeout error.
type Guarded struct {
	next    Generator
	timeout time.Duration
	retry   retry.Config
}

// NewGuarded wraps g. A zero timeout leaves calls bounded only by the
// caller's context; retries is the number of extra attempts.
func NewGuarded(g Generator, timeout time.Duration, retries int, backoff time.Duration) *Guarded {
	cfg := retry.Once(backoff)
	cfg.Attempts = max(retries, 0) + 1
	cfg.Multiplier = 2
	cfg.MaxDelay = 8 * backoff
	cfg.Retryable = retryable
	return &Guarded{next: g, timeout: timeout, retry: cfg}
}

func (g *Guarded) Name() string {
	return g.next.Name()
}

// Close closes the wrapped generator when it holds resources
func (g *Guarded) Close() error {
	if c, ok := g.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (g *Guarded) Generate(ctx context.Context, req Request) (string, error) {
	answer, err := retry.Do(ctx, g.retry, func(ctx context.Context) (string, error) {
		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return g.next.Generate(callCtx, req)
	})
	if err == nil {
		return answer, nil
	}
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return "", err
	}
	if retry.IsTimeout(err) {
		return "", apperrors.Wrap(apperrors.ModelTimeout, "model did not answer in time", err)
	}
	return "", err
}

// retryable retries timeouts, transport failures and server-side errors,
// but not requests the provider rejected
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.retryable()
	}
	return !errors.Is(err, ErrNoAPIKey)
}
