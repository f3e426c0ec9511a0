package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quickqr/qrbot/internal/auth/kv"
	"github.com/quickqr/qrbot/pkg/slogx"
)

// Actions with configured limits. Unconfigured actions pass through.
const (
	ActionLogin      = "login"
	ActionQRGenerate = "qr_generate"
	ActionAPI        = "api"
)

// Limit is a fixed-window budget: at most Requests operations per Window.
type Limit struct {
	Requests int64
	Window   time.Duration
}

// RateLimiter enforces per-subject, per-action fixed windows against the kv
// store. Windows are aligned to epoch boundaries (window index is
// unix/window), so every instance sharing the kv store agrees on the window
// without coordination.
type RateLimiter struct {
	KV     kv.Store
	Limits map[string]Limit

	// FailOpen allows requests through when the kv store is unreachable.
	// Off by default: an outage should not disable brute-force protection.
	FailOpen bool

	now func() time.Time // overridable in tests
}

func NewRateLimiter(store kv.Store, limits map[string]Limit, failOpen bool) *RateLimiter {
	return &RateLimiter{
		KV:       store,
		Limits:   limits,
		FailOpen: failOpen,
		now:      time.Now,
	}
}

// Allow counts one attempt for subject+action and reports whether it is
// within budget. Counting happens before the answer is known, so attempts
// that end up rejected still consume the window, which is the point for
// credential endpoints.
func (r *RateLimiter) Allow(ctx context.Context, subject, action string) error {
	limit, ok := r.Limits[action]
	if !ok || limit.Requests <= 0 {
		return nil
	}

	now := r.now()
	windowIndex := now.Unix() / int64(limit.Window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%s:%d", subject, action, windowIndex)

	count, err := r.KV.Increment(ctx, key, limit.Window)
	if err != nil {
		if r.FailOpen {
			slogx.FromContext(ctx).Warn("rate limit store unreachable, allowing request",
				slog.String("action", action),
				slog.Any("error", err),
			)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if count > limit.Requests {
		windowEnd := time.Unix((windowIndex+1)*int64(limit.Window.Seconds()), 0)
		return &RateLimitedError{
			Action:     action,
			RetryAfter: windowEnd.Sub(now),
		}
	}
	return nil
}
