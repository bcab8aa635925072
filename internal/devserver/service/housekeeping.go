package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/emstore/internal/devserver/store"
)

// HousekeepingService periodically deletes expired sessions and refresh
// tokens.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a worker. A non-positive interval defaults
// to one hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the worker. It runs one cleanup immediately.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background(), time.Now())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background(), time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup deletes records that expired before now. Each table is cleaned
// independently.
func (s *HousekeepingService) Cleanup(ctx context.Context, now time.Time) (sessions, tokens int64) {
	var err error

	if sessions, err = s.Store.Sessions().DeleteExpiredSessions(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired sessions", "error", err)
	}
	if tokens, err = s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	}

	s.Logger.Info("housekeeping cleanup completed",
		"sessions_deleted", sessions, "refresh_tokens_deleted", tokens)
	return sessions, tokens
}
