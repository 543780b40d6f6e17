package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/forPelevin/recut/internal/ports"
)

// CallPolicy bounds one external embedding call.
type CallPolicy struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

func DefaultCallPolicy() CallPolicy {
	return CallPolicy{Timeout: 30 * time.Second, Attempts: 3, Backoff: 250 * time.Millisecond}
}

// Embed calls emb with a per-attempt timeout and retries up to p.Attempts.
// It returns the number of attempts made. Parent cancellation is never retried.
func Embed(ctx context.Context, emb ports.Embedder, text string, p CallPolicy) ([]float64, int, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, i - 1, err
		}

		vec, err := embedOnce(ctx, emb, text, p.Timeout)
		if err == nil {
			return vec, i, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, i, ctx.Err()
		}

		if i < attempts && p.Backoff > 0 {
			t := time.NewTimer(time.Duration(i) * p.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, i, ctx.Err()
			case <-t.C:
			}
		}
	}
	return nil, attempts, lastErr
}

func embedOnce(ctx context.Context, emb ports.Embedder, text string, timeout time.Duration) ([]float64, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	vec, err := emb.Embed(callCtx, text)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("embedding timed out after %s: %w", timeout, err)
		}
		return nil, err
	}
	if len(vec) == 0 {
		return nil, errors.New("embedding is empty")
	}
	for _, x := range vec {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, errors.New("embedding contains NaN or Inf")
		}
	}
	return vec, nil
}
