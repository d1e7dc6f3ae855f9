package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 14
	MaxPasswordLen = 128
)

// passwordSymbols is the set of characters accepted as the required symbol.
// Whitespace and other exotic runes do not count.
const passwordSymbols = "!@#$%^&*()-_=+[]{};:'\",.<>?/\\|`~"

// PolicyError reports the first password rule a candidate failed. Checks run
// in a fixed order (length, lowercase, uppercase, digit, symbol) so the user
// sees one actionable message at a time.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}

func HashPassword(password string) (string, error) {
	return HashPasswordCost(password, BcryptCost)
}

func HashPasswordCost(password string, cost int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// dummyHash is a real bcrypt digest of a random throwaway value. Login checks
// compare against it when the username does not resolve so that a failed
// lookup costs the same as a failed password.
var dummyHash = mustDummyHash()

func mustDummyHash() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to seed dummy hash: %v", err))
	}
	hash, err := bcrypt.GenerateFromPassword(buf, BcryptCost)
	if err != nil {
		panic(fmt.Sprintf("failed to generate dummy hash: %v", err))
	}
	return string(hash)
}

// CompareDummy burns a bcrypt verification that can never succeed.
func CompareDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}

// GenerateDeviceToken returns a URL-safe random bearer token for
// remember-device grants.
func GenerateDeviceToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate device token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// ValidatePassword enforces the password policy with the default minimum
// length, reporting only the first violated rule.
func ValidatePassword(password string) error {
	return ValidatePasswordMin(password, MinPasswordLen)
}

// ValidatePasswordMin is ValidatePassword with a caller-chosen minimum length.
func ValidatePasswordMin(password string, minLen int) error {
	if len([]rune(password)) < minLen {
		return &PolicyError{Reason: fmt.Sprintf("password must be at least %d characters long", minLen)}
	}
	if len([]rune(password)) > MaxPasswordLen {
		return &PolicyError{Reason: fmt.Sprintf("password must be at most %d characters long", MaxPasswordLen)}
	}

	hasLower := false
	hasUpper := false
	hasDigit := false
	hasSymbol := false

	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}

	if !hasLower {
		return &PolicyError{Reason: "password must contain at least one lowercase letter"}
	}
	if !hasUpper {
		return &PolicyError{Reason: "password must contain at least one uppercase letter"}
	}
	if !hasDigit {
		return &PolicyError{Reason: "password must contain at least one digit"}
	}
	if !hasSymbol {
		return &PolicyError{Reason: "password must contain at least one symbol (e.g. !@#$%&*)"}
	}

	return nil
}
