package container

import (
	"encoding/base64"
	"time"

	"timelocker/internal/timelock"
)

// Metadata is the unencrypted JSON document stored between the header and
// the payload. It is readable without any secret, so lock status, unlock
// time, and file info can be shown before decryption.
//
// Field names are part of the on-disk format and must not change.
type Metadata struct {
	// Locked reports whether the item is still time-locked.
	Locked bool `json:"locked"`

	// Created is the instant the lock was created.
	Created time.Time `json:"created"`

	// Unlocks is the instant the time lock expires. Immutable once set.
	Unlocks time.Time `json:"unlocks"`

	// Duration is the human-readable label the user chose, e.g. "30d".
	Duration string `json:"duration"`

	// OriginalFile is the source name before archiving.
	OriginalFile string `json:"original_file"`

	// DrandRound is the beacon round the key is locked to, when known.
	DrandRound uint64 `json:"drand_round,omitempty"`

	// EncryptedKey is the base64-armored LockedSecret guarding the archive
	// password. Absent on already-decrypted or legacy items.
	EncryptedKey string `json:"encrypted_key,omitempty"`

	// OriginalSize is the uncompressed source size in bytes, when known.
	OriginalSize uint64 `json:"original_size,omitempty"`

	// IsDirectory reports whether the source was a directory.
	IsDirectory bool `json:"is_directory"`
}

// NewMetadata creates metadata for a freshly locked item.
func NewMetadata(originalFile, duration string, unlocks time.Time) Metadata {
	return Metadata{
		Locked:       true,
		Created:      time.Now().UTC(),
		Unlocks:      unlocks.UTC(),
		Duration:     duration,
		OriginalFile: originalFile,
	}
}

// SetLockedSecret stores the locked secret base64-armored for JSON
// transport and records its embedded round.
func (m *Metadata) SetLockedSecret(s timelock.LockedSecret) error {
	round, err := s.Round()
	if err != nil {
		return err
	}
	m.EncryptedKey = base64.StdEncoding.EncodeToString(s)
	m.DrandRound = round
	return nil
}

// LockedSecret recovers the locked secret from its base64 armor. ok is
// false when no locked secret is present.
func (m *Metadata) LockedSecret() (timelock.LockedSecret, bool, error) {
	if m.EncryptedKey == "" {
		return nil, false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(m.EncryptedKey)
	if err != nil {
		return nil, true, err
	}
	return timelock.LockedSecret(raw), true, nil
}

// Unlockable reports whether the unlock instant has passed.
func (m *Metadata) Unlockable() bool {
	return !time.Now().Before(m.Unlocks)
}

// TimeUntilUnlock returns the remaining lock duration. Zero or negative
// once the unlock instant has passed.
func (m *Metadata) TimeUntilUnlock() time.Duration {
	return time.Until(m.Unlocks)
}
