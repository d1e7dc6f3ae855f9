package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{MaxFailures: 10, Window: 15 * time.Minute}
}

func TestAllowUnderLimit(t *testing.T) {
	repo := &MockRateLimitRepository{
		CountSinceFunc: func(ctx context.Context, address string, since time.Time) (int, error) {
			return 9, nil
		},
	}
	svc := NewRateLimitService(repo, testRateLimitConfig(), testLogger())

	assert.True(t, svc.Allow(context.Background(), "10.0.0.1"))
}

func TestAllowAtLimit(t *testing.T) {
	repo := &MockRateLimitRepository{
		CountSinceFunc: func(ctx context.Context, address string, since time.Time) (int, error) {
			return 10, nil
		},
	}
	svc := NewRateLimitService(repo, testRateLimitConfig(), testLogger())

	assert.False(t, svc.Allow(context.Background(), "10.0.0.1"))
}

func TestAllowPurgesAllAddressesFirst(t *testing.T) {
	var purgedCutoff time.Time
	purged := false

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := &MockRateLimitRepository{
		DeleteBeforeFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			purged = true
			purgedCutoff = cutoff
			return 3, nil
		},
		CountSinceFunc: func(ctx context.Context, address string, since time.Time) (int, error) {
			if !purged {
				t.Error("purge must run before the count")
			}
			return 0, nil
		},
	}
	svc := NewRateLimitService(repo, testRateLimitConfig(), testLogger())
	svc.now = func() time.Time { return now }

	svc.Allow(context.Background(), "10.0.0.1")

	assert.True(t, purged)
	assert.Equal(t, now.Add(-15*time.Minute), purgedCutoff)
}

func TestAllowFailsOpenOnDBError(t *testing.T) {
	repo := &MockRateLimitRepository{
		CountSinceFunc: func(ctx context.Context, address string, since time.Time) (int, error) {
			return 0, errors.New("connection refused")
		},
	}
	svc := NewRateLimitService(repo, testRateLimitConfig(), testLogger())

	assert.True(t, svc.Allow(context.Background(), "10.0.0.1"),
		"a database outage should not lock everyone out")
}

func TestAllowSurvivesPurgeError(t *testing.T) {
	repo := &MockRateLimitRepository{
		DeleteBeforeFunc: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return 0, errors.New("deadlock detected")
		},
		CountSinceFunc: func(ctx context.Context, address string, since time.Time) (int, error) {
			return 10, nil
		},
	}
	svc := NewRateLimitService(repo, testRateLimitConfig(), testLogger())

	// Purge failure is logged and ignored; the count still decides
	assert.False(t, svc.Allow(context.Background(), "10.0.0.1"))
}

func TestRecordFailure(t *testing.T) {
	var recordedAddr string
	var recordedAt time.Time

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	repo := &MockRateLimitRepository{
		RecordFailureFunc: func(ctx context.Context, address string, at time.Time) error {
			recordedAddr = address
			recordedAt = at
			return nil
		},
	}
	svc := NewRateLimitService(repo, testRateLimitConfig(), testLogger())
	svc.now = func() time.Time { return now }

	svc.RecordFailure(context.Background(), "10.0.0.1")

	assert.Equal(t, "10.0.0.1", recordedAddr)
	assert.Equal(t, now, recordedAt)
}

// The sliding window counts per address: a tenth failure from one address
// blocks it while a different address stays clear.
func TestWindowIsPerAddress(t *testing.T) {
	counts := map[string]int{"10.0.0.1": 10, "10.0.0.2": 2}

	repo := &MockRateLimitRepository{
		CountSinceFunc: func(ctx context.Context, address string, since time.Time) (int, error) {
			return counts[address], nil
		},
	}
	svc := NewRateLimitService(repo, testRateLimitConfig(), testLogger())

	assert.False(t, svc.Allow(context.Background(), "10.0.0.1"))
	assert.True(t, svc.Allow(context.Background(), "10.0.0.2"))
}
