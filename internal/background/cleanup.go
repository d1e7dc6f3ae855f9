package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/jzupan/clubmgr/internal/repositories"
)

// CleanupManager periodically removes expired trusted-device grants and
// login-attempt rows that have aged out of the throttle window. The throttle
// also purges inline on every check; this catches tables for addresses that
// never come back.
type CleanupManager struct {
	devices  *repositories.TrustedDeviceRepository
	attempts *repositories.LoginAttemptRepository
	window   time.Duration
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	devices *repositories.TrustedDeviceRepository,
	attempts *repositories.LoginAttemptRepository,
	window time.Duration,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		devices:  devices,
		attempts: attempts,
		window:   window,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// Stop signals the cleanup loop to exit
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if removed, err := cm.devices.DeleteExpired(cleanupCtx); err != nil {
		cm.logger.Error("failed to remove expired trusted devices", slog.Any("error", err))
	} else if removed > 0 {
		cm.logger.Info("removed expired trusted devices", slog.Int64("count", removed))
	}

	cutoff := time.Now().Add(-cm.window)
	if removed, err := cm.attempts.DeleteBefore(cleanupCtx, cutoff); err != nil {
		cm.logger.Error("failed to remove stale login attempts", slog.Any("error", err))
	} else if removed > 0 {
		cm.logger.Info("removed stale login attempts", slog.Int64("count", removed))
	}
}
