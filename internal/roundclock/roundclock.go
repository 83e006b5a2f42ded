// Package roundclock converts between wall-clock time and drand quicknet
// round numbers. All functions are pure; the genesis timestamp and period
// are fixed properties of the quicknet chain.
package roundclock

import "time"

const (
	// GenesisTime is the Unix timestamp of quicknet round 1.
	GenesisTime int64 = 1692803367

	// Period is the interval between quicknet rounds.
	Period = 3 * time.Second
)

// periodSeconds is Period expressed in whole seconds for round arithmetic.
const periodSeconds int64 = 3

// TimestampToRound returns the round number whose publication window
// contains the given Unix timestamp. Rounds are 1-indexed; any timestamp
// at or before genesis maps to round 1.
func TimestampToRound(unix int64) uint64 {
	if unix <= GenesisTime {
		return 1
	}
	elapsed := unix - GenesisTime
	return uint64(elapsed/periodSeconds) + 1
}

// RoundToTimestamp returns the Unix timestamp at which the given round's
// signature is published. Round numbers at or below 1 map to genesis.
func RoundToTimestamp(round uint64) int64 {
	if round <= 1 {
		return GenesisTime
	}
	return GenesisTime + int64(round-1)*periodSeconds
}

// TargetRound returns the round to encrypt against for the given unlock
// instant. The extra +1 guarantees the chosen round is published strictly
// at or after the requested instant. Containers created with this margin
// exist in the wild, so the arithmetic must not change.
func TargetRound(unlockInstant time.Time) uint64 {
	return TimestampToRound(unlockInstant.Unix()) + 1
}

// Available reports whether the given round's signature has been published
// as of now.
func Available(round uint64, now time.Time) bool {
	return RoundToTimestamp(round) <= now.Unix()
}

// TimeUntil returns how long until the given round is published. The result
// is zero or negative once the round is available.
func TimeUntil(round uint64, now time.Time) time.Duration {
	return time.Unix(RoundToTimestamp(round), 0).Sub(now)
}

// UnlocksAt returns the publication instant of the given round in UTC.
func UnlocksAt(round uint64) time.Time {
	return time.Unix(RoundToTimestamp(round), 0).UTC()
}
