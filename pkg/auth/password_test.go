package auth

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name          string
		password      string
		shouldFail    bool
		errorContains string
	}{
		{
			name:       "valid strong password",
			password:   "Veljavno1234!ab",
			shouldFail: false,
		},
		{
			name:          "too short",
			password:      "Short1!abc",
			shouldFail:    true,
			errorContains: "at least 14 characters",
		},
		{
			name:          "missing lowercase",
			password:      "UPPERCASE12345!!",
			shouldFail:    true,
			errorContains: "lowercase",
		},
		{
			name:          "missing uppercase",
			password:      "lowercase12345!!",
			shouldFail:    true,
			errorContains: "uppercase",
		},
		{
			name:          "missing digit",
			password:      "NoDigitsAtAll!!!",
			shouldFail:    true,
			errorContains: "digit",
		},
		{
			name:          "missing symbol",
			password:      "NoSymbolsHere1234",
			shouldFail:    true,
			errorContains: "symbol",
		},
		{
			name:          "too long",
			password:      "Aa1!" + strings.Repeat("x", 130),
			shouldFail:    true,
			errorContains: "at most",
		},
		{
			name:       "exactly minimum length",
			password:   "Abcdefghijk1!x",
			shouldFail: false,
		},
		{
			name:          "space does not count as symbol",
			password:      "Abcdefghijklm1 ",
			shouldFail:    true,
			errorContains: "symbol",
		},
		{
			name:          "control char does not count as symbol",
			password:      "Abcdefghijklm1\t",
			shouldFail:    true,
			errorContains: "symbol",
		},
		{
			name:       "hyphen counts as symbol",
			password:   "Abcdefghijklm1-",
			shouldFail: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)

			if tt.shouldFail {
				if err == nil {
					t.Errorf("expected error, got nil")
				} else if tt.errorContains != "" && !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("error message should contain '%s', got: %v", tt.errorContains, err)
				}
			} else {
				if err != nil {
					t.Errorf("expected no error, got: %v", err)
				}
			}
		})
	}
}

// A candidate violating several rules reports only the earliest one in the
// fixed check order.
func TestValidatePasswordFirstFailureWins(t *testing.T) {
	// too short AND missing uppercase/digit/symbol
	err := ValidatePassword("abc")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "at least 14 characters") {
		t.Errorf("expected length failure first, got: %v", err)
	}

	// long enough, missing uppercase AND digit AND symbol: lowercase passes,
	// uppercase reported
	err = ValidatePassword("abcdefghijklmnop")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "uppercase") {
		t.Errorf("expected uppercase failure first, got: %v", err)
	}
}

func TestValidatePasswordMinCustomLength(t *testing.T) {
	err := ValidatePasswordMin("Veljavno1234!ab", 20)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "at least 20 characters") {
		t.Errorf("expected custom minimum in message, got: %v", err)
	}

	if err := ValidatePasswordMin("Veljavno1234!ab", 10); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestHashAndComparePassword(t *testing.T) {
	password := "Veljavno1234!ab"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if hash == password {
		t.Error("hash should not equal plaintext")
	}

	if err := ComparePassword(hash, password); err != nil {
		t.Errorf("ComparePassword failed for correct password: %v", err)
	}

	if err := ComparePassword(hash, "WrongPassword1!x"); err == nil {
		t.Error("ComparePassword should fail for wrong password")
	}
}

func TestHashPasswordEmptyFails(t *testing.T) {
	if _, err := HashPassword(""); err == nil {
		t.Error("expected error for empty password")
	}
}

func TestHashPasswordDistinctSalts(t *testing.T) {
	password := "Veljavno1234!ab"

	first, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	second, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if first == second {
		t.Error("two hashes of the same password should differ")
	}
}

func TestGenerateDeviceToken(t *testing.T) {
	first, err := GenerateDeviceToken()
	if err != nil {
		t.Fatalf("GenerateDeviceToken failed: %v", err)
	}
	second, err := GenerateDeviceToken()
	if err != nil {
		t.Fatalf("GenerateDeviceToken failed: %v", err)
	}

	if first == second {
		t.Error("tokens should be unique")
	}
	if len(first) < 40 {
		t.Errorf("token too short: %d", len(first))
	}
}
