package services

import (
	"context"
	"sync"
	"time"

	"github.com/jzupan/clubmgr/internal/models"
)

// MockUserRepository implements UserRepository for testing
type MockUserRepository struct {
	GetByIDFunc            func(ctx context.Context, id string) (*models.User, error)
	GetByUsernameFunc      func(ctx context.Context, username string) (*models.User, error)
	CreateFunc             func(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePasswordHashFunc func(ctx context.Context, id, passwordHash string) error
	UpdateTOTPFunc         func(ctx context.Context, id, secret string, enabled bool) error
	UpdateDisplayNameFunc  func(ctx context.Context, id, displayName string) error
	DisableTOTPFunc        func(ctx context.Context, id string) (int64, error)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.GetByUsernameFunc != nil {
		return m.GetByUsernameFunc(ctx, username)
	}
	return nil, models.ErrNotFound
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil, models.ErrInternalServer
}

func (m *MockUserRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	if m.UpdatePasswordHashFunc != nil {
		return m.UpdatePasswordHashFunc(ctx, id, passwordHash)
	}
	return nil
}

func (m *MockUserRepository) UpdateTOTP(ctx context.Context, id, secret string, enabled bool) error {
	if m.UpdateTOTPFunc != nil {
		return m.UpdateTOTPFunc(ctx, id, secret, enabled)
	}
	return nil
}

func (m *MockUserRepository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	if m.UpdateDisplayNameFunc != nil {
		return m.UpdateDisplayNameFunc(ctx, id, displayName)
	}
	return nil
}

func (m *MockUserRepository) DisableTOTP(ctx context.Context, id string) (int64, error) {
	if m.DisableTOTPFunc != nil {
		return m.DisableTOTPFunc(ctx, id)
	}
	return 0, nil
}

// MockTrustedDeviceRepository implements TrustedDeviceRepository for testing
type MockTrustedDeviceRepository struct {
	CreateFunc           func(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error)
	GetByUserAndHashFunc func(ctx context.Context, userID, tokenHash string) (*models.TrustedDevice, error)
	DeleteExpiredFunc    func(ctx context.Context) (int64, error)
}

func (m *MockTrustedDeviceRepository) Create(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, device)
	}
	return device, nil
}

func (m *MockTrustedDeviceRepository) GetByUserAndHash(ctx context.Context, userID, tokenHash string) (*models.TrustedDevice, error) {
	if m.GetByUserAndHashFunc != nil {
		return m.GetByUserAndHashFunc(ctx, userID, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockTrustedDeviceRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}

// MockRateLimitRepository implements RateLimitRepository for testing
type MockRateLimitRepository struct {
	RecordFailureFunc func(ctx context.Context, address string, at time.Time) error
	CountSinceFunc    func(ctx context.Context, address string, since time.Time) (int, error)
	DeleteBeforeFunc  func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockRateLimitRepository) RecordFailure(ctx context.Context, address string, at time.Time) error {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, address, at)
	}
	return nil
}

func (m *MockRateLimitRepository) CountSince(ctx context.Context, address string, since time.Time) (int, error) {
	if m.CountSinceFunc != nil {
		return m.CountSinceFunc(ctx, address, since)
	}
	return 0, nil
}

func (m *MockRateLimitRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.DeleteBeforeFunc != nil {
		return m.DeleteBeforeFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockAuditRepository implements AuditRepository for testing
type MockAuditRepository struct {
	CreateFunc func(ctx context.Context, entry *models.AuditEntry) (*models.AuditEntry, error)
}

func (m *MockAuditRepository) Create(ctx context.Context, entry *models.AuditEntry) (*models.AuditEntry, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	return entry, nil
}

// RecordingAudit captures audit events in memory for assertions
type RecordingAudit struct {
	mu      sync.Mutex
	Entries []models.AuditEntry
}

func (r *RecordingAudit) Record(ctx context.Context, username *string, kind, description, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, models.AuditEntry{
		Username:    username,
		Kind:        kind,
		Description: description,
		Address:     address,
	})
}

// Kinds returns the recorded event kinds in order
func (r *RecordingAudit) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		kinds[i] = e.Kind
	}
	return kinds
}

// MockRateLimiter implements RateLimiter for testing
type MockRateLimiter struct {
	AllowFunc func(ctx context.Context, address string) bool

	mu       sync.Mutex
	Failures []string
}

func (m *MockRateLimiter) Allow(ctx context.Context, address string) bool {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, address)
	}
	return true
}

func (m *MockRateLimiter) RecordFailure(ctx context.Context, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures = append(m.Failures, address)
}

func (m *MockRateLimiter) FailureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Failures)
}

// CountingVerifier implements PasswordVerifier and counts invocations, so
// tests can assert that unknown users and wrong passwords cost the same
// number of hash comparisons.
type CountingVerifier struct {
	ValidPassword string

	mu         sync.Mutex
	Compares   int
	DummyCalls int
}

func (v *CountingVerifier) Compare(hash, password string) error {
	v.mu.Lock()
	v.Compares++
	v.mu.Unlock()
	if password == v.ValidPassword {
		return nil
	}
	return models.ErrUnauthorized
}

func (v *CountingVerifier) CompareDummy(password string) {
	v.mu.Lock()
	v.DummyCalls++
	v.mu.Unlock()
}

// TotalVerifications returns real plus dummy comparisons
func (v *CountingVerifier) TotalVerifications() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.Compares + v.DummyCalls
}

// StubOTP implements OTPValidator with a fixed accepted code
type StubOTP struct {
	ValidCode string
}

func (s StubOTP) Validate(secret, code string) bool {
	return secret != "" && code == s.ValidCode
}
