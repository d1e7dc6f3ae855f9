package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingDelay pads failed authentication checks so that "user not found" and
// "password incorrect" take approximately the same time.
type TimingDelay struct {
	base   time.Duration
	jitter time.Duration
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(base, jitter time.Duration) *TimingDelay {
	return &TimingDelay{base: base, jitter: jitter}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int64) (int64, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int64(randomValue % uint64(max)), nil
}

func (td *TimingDelay) target() time.Duration {
	delay := td.base
	if td.jitter > 0 {
		if randomValue, err := cryptoRandIntn(int64(td.jitter)); err == nil {
			delay += time.Duration(randomValue)
		}
	}
	return delay
}

// Wait sleeps for the base delay plus jitter
func (td *TimingDelay) Wait() {
	time.Sleep(td.target())
}

// WaitFrom sleeps only for the remainder of the target delay measured from
// startTime, so work already done counts toward the padding.
func (td *TimingDelay) WaitFrom(startTime time.Time) {
	targetDelay := td.target()

	elapsed := time.Since(startTime)
	if elapsed < targetDelay {
		time.Sleep(targetDelay - elapsed)
	}
}
