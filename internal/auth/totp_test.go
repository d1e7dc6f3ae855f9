package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func TestGenerateEnrollment(t *testing.T) {
	tm := NewTOTPManager("ClubMgr")

	enrollment, err := tm.GenerateEnrollment("alice")
	if err != nil {
		t.Fatalf("GenerateEnrollment failed: %v", err)
	}

	if enrollment.Secret == "" {
		t.Error("expected non-empty secret")
	}
	if !strings.HasPrefix(enrollment.URL, "otpauth://totp/") {
		t.Errorf("unexpected provisioning URL: %s", enrollment.URL)
	}
	if !strings.Contains(enrollment.URL, "ClubMgr") {
		t.Errorf("issuer missing from URL: %s", enrollment.URL)
	}
	if !strings.HasPrefix(enrollment.QRDataURL, "data:image/png;base64,") {
		t.Error("expected PNG data URL for QR code")
	}
}

func TestGenerateEnrollmentUniqueSecrets(t *testing.T) {
	tm := NewTOTPManager("ClubMgr")

	first, err := tm.GenerateEnrollment("alice")
	if err != nil {
		t.Fatalf("GenerateEnrollment failed: %v", err)
	}
	second, err := tm.GenerateEnrollment("alice")
	if err != nil {
		t.Fatalf("GenerateEnrollment failed: %v", err)
	}

	if first.Secret == second.Secret {
		t.Error("two enrollments should not share a secret")
	}
}

func TestValidate(t *testing.T) {
	tm := NewTOTPManager("ClubMgr")

	enrollment, err := tm.GenerateEnrollment("alice")
	if err != nil {
		t.Fatalf("GenerateEnrollment failed: %v", err)
	}

	code, err := totp.GenerateCodeCustom(enrollment.Secret, time.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("failed to generate code: %v", err)
	}

	if !tm.Validate(enrollment.Secret, code) {
		t.Error("current code should validate")
	}
	if tm.Validate(enrollment.Secret, "000000") {
		t.Error("bogus code should not validate")
	}
	if tm.Validate(enrollment.Secret, "not-a-code") {
		t.Error("malformed code should not validate")
	}
}

// A code from the previous time step stays valid thanks to skew tolerance.
func TestValidateClockDrift(t *testing.T) {
	tm := NewTOTPManager("ClubMgr")

	enrollment, err := tm.GenerateEnrollment("alice")
	if err != nil {
		t.Fatalf("GenerateEnrollment failed: %v", err)
	}

	code, err := totp.GenerateCodeCustom(enrollment.Secret, time.Now().Add(-30*time.Second), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("failed to generate code: %v", err)
	}

	if !tm.Validate(enrollment.Secret, code) {
		t.Error("previous-step code should validate within skew")
	}

	stale, err := totp.GenerateCodeCustom(enrollment.Secret, time.Now().Add(-5*time.Minute), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("failed to generate code: %v", err)
	}

	if tm.Validate(enrollment.Secret, stale) {
		t.Error("five-minute-old code should not validate")
	}
}
