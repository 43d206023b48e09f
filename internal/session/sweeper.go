package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const defaultSweepInterval = time.Hour

// Sweeper deletes sessions whose last modification is older than the
// configured TTL, including the active one if it went stale. Artifact
// cleanup rides on Clear's temp-file sweep.
type Sweeper struct {
	store    Store
	orch     *Orchestrator
	logger   *slog.Logger
	ttl      time.Duration
	interval time.Duration
	clock    func() time.Time
	running  atomic.Bool
}

func NewSweeper(store Store, orch *Orchestrator, ttl time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		orch:     orch,
		logger:   logger,
		ttl:      ttl,
		interval: defaultSweepInterval,
		clock:    time.Now,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	if s.running.Swap(true) {
		return
	}

	s.logger.Info("session sweeper started", "ttl", s.ttl.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopping")
			s.running.Store(false)
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := s.clock().Add(-s.ttl)
	ids, err := s.store.ListStaleSessions(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to list stale sessions", "error", err)
		return
	}

	for _, id := range ids {
		if snap := s.orch.Snapshot(); snap != nil && snap.SessionID == id {
			if err := s.orch.Clear(ctx); err != nil {
				s.logger.Error("failed to clear stale active session", "session_id", id, "error", err)
			}
			continue
		}
		if err := s.store.DeleteSession(ctx, id); err != nil {
			s.logger.Error("failed to delete stale session", "session_id", id, "error", err)
			continue
		}
		s.logger.Info("deleted stale session", "session_id", id)
	}
}
