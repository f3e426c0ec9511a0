package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/quickqr/qrbot/internal/auth/kv"
	"github.com/quickqr/qrbot/internal/auth/store"
)

// HousekeepingService periodically prunes security events past the retention
// cutoff and sweeps expired entries out of the in-process kv store.
type HousekeepingService struct {
	Store  store.Store
	Logger *slog.Logger

	Interval time.Duration

	// EventRetention of zero disables event pruning; the audit trail is
	// kept forever unless the operator opts in.
	EventRetention time.Duration

	// Sweeper is set when the kv driver needs periodic reaping (the
	// in-process driver does, Redis does not).
	Sweeper *kv.Memory

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping worker. If interval is 0 or
// negative, defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop() to shut it
// down gracefully.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts down the worker, blocking until any in-progress cleanup ends.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs each task independently; a failure in one does not stop the
// others.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()

	if s.EventRetention > 0 {
		cutoff := time.Now().UTC().Add(-s.EventRetention)
		deleted, err := s.Store.SecurityEvents().DeleteEventsBefore(ctx, cutoff)
		if err != nil {
			s.Logger.Error("failed to prune security events", "error", err)
		} else if deleted > 0 {
			s.Logger.Info("pruned security events", "deleted", deleted)
		}
	}

	if s.Sweeper != nil {
		if dropped := s.Sweeper.Sweep(); dropped > 0 {
			s.Logger.Debug("swept expired kv entries", "dropped", dropped)
		}
	}
}
