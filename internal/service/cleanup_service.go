package service

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredTokenPurger is implemented by stores that do not expire records on their own.
type ExpiredTokenPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type CleanupService struct {
	purger ExpiredTokenPurger
	now    func() time.Time
}

func NewCleanupService(purger ExpiredTokenPurger) *CleanupService {
	return &CleanupService{purger: purger, now: time.Now}
}

// CleanupExpired removes refresh token records whose expiry has passed. Such tokens would
// already fail validation; this only reclaims space.
func (s *CleanupService) CleanupExpired(ctx context.Context) int64 {
	removed, err := s.purger.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		slog.Warn("expired refresh token cleanup failed", "error", err)
		return 0
	}
	if removed > 0 {
		slog.Info("expired refresh tokens removed", "count", removed)
	}
	return removed
}

// StartCleanupTicker runs CleanupExpired every interval until ctx is cancelled.
func (s *CleanupService) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run once on startup to clear rows left over from a previous run.
	s.CleanupExpired(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupExpired(ctx)
		}
	}
}
