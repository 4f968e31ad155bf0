package summarizer

import (
	"context"
	"math/rand"
	"time"

	"github.com/nextlevelbuilder/agentmemory/internal/apperr"
	"github.com/nextlevelbuilder/agentmemory/internal/config"
	"github.com/nextlevelbuilder/agentmemory/internal/model"
)

// RetryingCapability wraps a Capability with exponential backoff and full
// jitter (spec.md §4.4: "retries with exponential backoff and jitter up to
// a bounded number of attempts; if exhausted, the parent node is left at
// its prior version"). Each attempt is bounded by cfg.TimeoutMs.
type RetryingCapability struct {
	Inner Capability
	Cfg   config.SummarizerConfig
}

func NewRetrying(inner Capability, cfg config.SummarizerConfig) RetryingCapability {
	return RetryingCapability{Inner: inner, Cfg: cfg}
}

func (r RetryingCapability) SummarizeEvents(ctx context.Context, events []model.Event) (Summary, error) {
	var out Summary
	err := r.retry(ctx, func(ctx context.Context) error {
		s, err := r.Inner.SummarizeEvents(ctx, events)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (r RetryingCapability) SummarizeChildren(ctx context.Context, children []Summary) (Summary, error) {
	var out Summary
	err := r.retry(ctx, func(ctx context.Context) error {
		s, err := r.Inner.SummarizeChildren(ctx, children)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	return out, err
}

func (r RetryingCapability) retry(ctx context.Context, attempt func(context.Context) error) error {
	maxRetries := r.Cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}
	baseMs := r.Cfg.BackoffBaseMs
	if baseMs <= 0 {
		baseMs = 500
	}
	timeout := time.Duration(r.Cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var lastErr error
	for n := 0; n < maxRetries; n++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		lastErr = attempt(callCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return apperr.New(apperr.KindSummarizer, "summarizer call canceled", ctx.Err())
		}
		if n == maxRetries-1 {
			break
		}

		delay := backoffDelay(baseMs, n)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperr.New(apperr.KindSummarizer, "summarizer call canceled during backoff", ctx.Err())
		case <-timer.C:
		}
	}

	return apperr.New(apperr.KindSummarizer, "summarizer exhausted retries", lastErr)
}

// backoffDelay computes exponential backoff with full jitter: a uniformly
// random duration between 0 and baseMs*2^attempt, capped at 30s.
func backoffDelay(baseMs int64, attempt int) time.Duration {
	capMs := int64(30_000)
	exp := baseMs << uint(attempt)
	if exp <= 0 || exp > capMs {
		exp = capMs
	}
	return time.Duration(rand.Int63n(exp+1)) * time.Millisecond
}
