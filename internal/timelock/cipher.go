// Package timelock encrypts short secrets against a future drand round so
// they are provably unrecoverable before the round's signature exists.
package timelock

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.uber.org/zap"

	"timelocker/internal/roundclock"
)

// LockedSecret is a self-contained blob: the target round as 8 big-endian
// bytes followed by the timelock ciphertext. Carrying its own round means
// decryption needs no external context beyond the fetched signature.
type LockedSecret []byte

// minLockedSecretLen is the round prefix plus at least one ciphertext byte.
const minLockedSecretLen = 9

// EncodeLockedSecret frames a ciphertext with its target round.
func EncodeLockedSecret(round uint64, ciphertext []byte) LockedSecret {
	out := make([]byte, 8+len(ciphertext))
	binary.BigEndian.PutUint64(out[:8], round)
	copy(out[8:], ciphertext)
	return out
}

// Parse splits a LockedSecret into its round and ciphertext.
func (s LockedSecret) Parse() (round uint64, ciphertext []byte, err error) {
	if len(s) < minLockedSecretLen {
		return 0, nil, fmt.Errorf("locked secret too short: %d bytes", len(s))
	}
	return binary.BigEndian.Uint64(s[:8]), s[8:], nil
}

// Round returns the embedded target round.
func (s LockedSecret) Round() (uint64, error) {
	round, _, err := s.Parse()
	return round, err
}

// TimeLockActiveError means the target round has not been published yet.
// This is an expected, recoverable condition, not a failure: retry after
// the unlock instant has passed.
type TimeLockActiveError struct {
	Round     uint64
	UnlocksAt time.Time
	Remaining time.Duration
}

func (e *TimeLockActiveError) Error() string {
	return fmt.Sprintf("time lock still active: round %d unlocks at %s (in %s)",
		e.Round, e.UnlocksAt.Format(time.RFC3339), e.Remaining.Round(time.Second))
}

// Box performs the raw identity-based timelock encryption for a round.
// Injectable so tests run without network access or real cryptography.
type Box interface {
	// Encrypt time-locks data to the target round.
	Encrypt(data []byte, targetRound uint64) ([]byte, error)

	// Decrypt recovers data once the round's signature can be fetched.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Cipher encrypts and decrypts secrets against beacon rounds.
type Cipher struct {
	box Box
	now func() time.Time
	log *zap.Logger
}

// NewCipher creates a cipher over the given box. A nil logger disables
// logging.
func NewCipher(box Box, logger *zap.Logger) *Cipher {
	return NewCipherWithClock(box, time.Now, logger)
}

// NewCipherWithClock creates a cipher with an injectable clock, used by
// tests to move time across round boundaries.
func NewCipherWithClock(box Box, now func() time.Time, logger *zap.Logger) *Cipher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cipher{box: box, now: now, log: logger}
}

// Encrypt time-locks secret until the given unlock instant. The target
// round is a pure function of the instant, so the same input encrypted
// twice targets the same round unless wall-clock time crosses a round
// boundary between calls.
func (c *Cipher) Encrypt(secret []byte, unlockInstant time.Time) (LockedSecret, error) {
	round := roundclock.TargetRound(unlockInstant)

	ciphertext, err := c.box.Encrypt(secret, round)
	if err != nil {
		return nil, fmt.Errorf("timelock encryption failed: %w", err)
	}

	return EncodeLockedSecret(round, ciphertext), nil
}

// Decrypt recovers the secret from a LockedSecret. The embedded round is
// authoritative; expectedUnlock is only a consistency check and a mismatch
// is logged, not fatal. If the round is not yet published the call fails
// immediately with TimeLockActiveError and no network fetch is attempted.
func (c *Cipher) Decrypt(locked LockedSecret, expectedUnlock time.Time) ([]byte, error) {
	round, ciphertext, err := locked.Parse()
	if err != nil {
		return nil, fmt.Errorf("invalid locked secret: %w", err)
	}

	if expected := roundclock.TargetRound(expectedUnlock); round != expected {
		c.log.Warn("locked secret round does not match expected unlock time",
			zap.Uint64("embedded_round", round),
			zap.Uint64("expected_round", expected))
	}

	now := c.now()
	if !roundclock.Available(round, now) {
		return nil, &TimeLockActiveError{
			Round:     round,
			UnlocksAt: roundclock.UnlocksAt(round),
			Remaining: roundclock.TimeUntil(round, now),
		}
	}

	secret, err := c.box.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	return secret, nil
}
