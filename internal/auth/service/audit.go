package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/quickqr/qrbot/internal/auth/domain"
	"github.com/quickqr/qrbot/internal/auth/store"
	"github.com/quickqr/qrbot/pkg/idx"
	"github.com/quickqr/qrbot/pkg/slogx"
)

// Auditor appends security events to the store. A failed write must never
// fail the operation being audited, so Record returns nothing: failures are
// logged and forwarded to Sentry instead.
type Auditor struct {
	Store store.Store
}

func (a *Auditor) Record(
	ctx context.Context,
	typ domain.EventType,
	subject string,
	severity domain.Severity,
	details map[string]any,
) {
	ev := domain.SecurityEvent{
		ID:        idx.New().String(),
		Type:      typ,
		Subject:   subject,
		Severity:  severity,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}

	if err := a.Store.SecurityEvents().CreateEvent(ctx, ev); err != nil {
		slogx.FromContext(ctx).Error("failed to record security event",
			slog.String("event_type", string(typ)),
			slog.String("subject", subject),
			slog.Any("error", err),
		)
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.CaptureException(err)
		} else {
			sentry.CaptureException(err)
		}
	}
}

// Events lists stored security events, newest first.
func (a *Auditor) Events(ctx context.Context, f store.EventFilter) ([]domain.SecurityEvent, error) {
	return a.Store.SecurityEvents().ListEvents(ctx, f)
}

// FailureCountSince reports how many login failures a subject accrued since
// the given time. Used by the security reporting endpoint.
func (a *Auditor) FailureCountSince(ctx context.Context, subject string, since time.Time) (int64, error) {
	return a.Store.SecurityEvents().CountEventsSince(ctx, subject, domain.EventLoginFailure, since)
}
