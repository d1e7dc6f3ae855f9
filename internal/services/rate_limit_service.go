package services

import (
	"context"
	"log/slog"
	"time"
)

// RateLimitRepository defines the interface for throttle database operations
type RateLimitRepository interface {
	RecordFailure(ctx context.Context, address string, at time.Time) error
	CountSince(ctx context.Context, address string, since time.Time) (int, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimitConfig holds configuration for the failure throttle
type RateLimitConfig struct {
	MaxFailures int
	Window      time.Duration
}

// RateLimitService throttles authentication by client address using a
// persistent sliding window of recorded failures.
type RateLimitService struct {
	repo   RateLimitRepository
	config RateLimitConfig
	logger *slog.Logger

	now func() time.Time // injectable for tests
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(repo RateLimitRepository, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	return &RateLimitService{
		repo:   repo,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Allow reports whether an authentication attempt from the address may
// proceed. Rows that have aged out of the window are purged for every
// address first, so the table never grows past live traffic.
//
// A database error fails open: rate limiting protects against brute force,
// not against an unavailable database locking everyone out.
func (s *RateLimitService) Allow(ctx context.Context, address string) bool {
	cutoff := s.now().Add(-s.config.Window)

	if _, err := s.repo.DeleteBefore(ctx, cutoff); err != nil {
		s.logger.Error("failed to purge stale login attempts", slog.Any("error", err))
	}

	count, err := s.repo.CountSince(ctx, address, cutoff)
	if err != nil {
		s.logger.Error("failed to check rate limit", slog.Any("error", err))
		return true
	}

	if count >= s.config.MaxFailures {
		s.logger.Warn("address rate limited",
			slog.String("address", address),
			slog.Int("failures", count),
		)
		return false
	}

	return true
}

// RecordFailure adds a failed attempt for the address at the current time.
func (s *RateLimitService) RecordFailure(ctx context.Context, address string) {
	if err := s.repo.RecordFailure(ctx, address, s.now()); err != nil {
		s.logger.Error("failed to record login failure",
			slog.String("address", address),
			slog.Any("error", err),
		)
	}
}
