// Package vault wires the timelock cipher, the container format, the
// archiver, and the progress registry into lock/unlock operations.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"timelocker/internal/archive"
	"timelocker/internal/beacon"
	"timelocker/internal/container"
	"timelocker/internal/progress"
	"timelocker/internal/roundclock"
	"timelocker/internal/timelock"
)

// ErrNoLockedKey means the container metadata carries no locked secret
// although one was expected.
var ErrNoLockedKey = errors.New("container has no locked key")

// PasswordLength is the length of generated archive passwords.
const PasswordLength = 32

// Service runs lock and unlock operations. Each operation gets its own
// tracker; the registry is the only state shared between operations.
type Service struct {
	Archiver archive.Archiver
	Cipher   *timelock.Cipher
	Beacon   *beacon.Client
	Registry *progress.Registry

	// Throttle is the minimum interval between progress emissions. Zero
	// selects progress.DefaultThrottle.
	Throttle time.Duration

	log *zap.Logger
}

// NewService creates a production service over the drand quicknet chain.
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Archiver: archive.NewTarArchiver(),
		Cipher:   timelock.NewCipher(timelock.NewDrandBox(logger), logger),
		Beacon:   beacon.NewClient(logger),
		Registry: progress.NewRegistry(),
		log:      logger,
	}
}

// NewServiceWithDeps creates a service with injected collaborators.
func NewServiceWithDeps(ar archive.Archiver, cipher *timelock.Cipher, bc *beacon.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Archiver: ar,
		Cipher:   cipher,
		Beacon:   bc,
		Registry: progress.NewRegistry(),
		log:      logger,
	}
}

// LockRequest describes a lock operation.
type LockRequest struct {
	// SourcePath is the file or directory to lock.
	SourcePath string

	// UnlockTime is the instant the lock expires. Must be in the future.
	UnlockTime time.Time

	// Duration is the human-readable label stored in metadata. Defaults
	// to the unlock time in RFC3339.
	Duration string

	// OutputPath is the container destination. Defaults to SourcePath
	// plus the container extension.
	OutputPath string

	// Sink receives throttled progress updates. May be nil.
	Sink progress.Sink
}

// LockResult reports a completed lock operation.
type LockResult struct {
	OperationID   string
	ContainerPath string
	Round         uint64
}

// Lock archives and encrypts a source behind a time lock.
func (s *Service) Lock(ctx context.Context, req LockRequest) (LockResult, error) {
	now := time.Now()
	if !req.UnlockTime.After(now) {
		return LockResult{}, fmt.Errorf("unlock time must be in the future")
	}

	info, err := os.Lstat(req.SourcePath)
	if err != nil {
		return LockResult{}, fmt.Errorf("cannot stat source: %w", err)
	}

	outPath := req.OutputPath
	if outPath == "" {
		outPath = req.SourcePath + container.Extension
	}
	duration := req.Duration
	if duration == "" {
		duration = req.UnlockTime.UTC().Format(time.RFC3339)
	}

	tracker := progress.NewTracker()
	opID := s.Registry.Register(tracker)
	defer s.Registry.Remove(opID)

	em := progress.NewEmitter(tracker, req.Sink, s.Throttle)
	em.EmitForced(progress.PhaseScanning, req.SourcePath)

	totalBytes, totalFiles, err := progress.ScanPath(req.SourcePath)
	if err != nil {
		return LockResult{}, fmt.Errorf("failed to scan source: %w", err)
	}
	tracker.SetTotal(totalBytes, totalFiles)
	if tracker.IsCancelled() {
		return LockResult{}, progress.ErrCancelled
	}

	password, err := GeneratePassword(PasswordLength)
	if err != nil {
		return LockResult{}, err
	}

	locked, err := s.Cipher.Encrypt([]byte(password), req.UnlockTime)
	if err != nil {
		return LockResult{}, err
	}

	meta := container.NewMetadata(filepath.Base(req.SourcePath), duration, req.UnlockTime)
	meta.IsDirectory = info.IsDir()
	meta.OriginalSize = totalBytes
	if err := meta.SetLockedSecret(locked); err != nil {
		return LockResult{}, err
	}

	s.log.Info("locking source",
		zap.String("source", req.SourcePath),
		zap.String("container", outPath),
		zap.Uint64("round", meta.DrandRound),
		zap.Time("unlocks", meta.Unlocks))

	if err := container.Create(ctx, outPath, req.SourcePath, meta, password, s.Archiver, em); err != nil {
		return LockResult{}, err
	}

	em.Tracker().SetBytesDone(totalBytes)
	em.Complete()

	return LockResult{
		OperationID:   opID,
		ContainerPath: outPath,
		Round:         meta.DrandRound,
	}, nil
}

// UnlockRequest describes an unlock operation.
type UnlockRequest struct {
	ContainerPath string
	DestDir       string

	// Sink receives throttled progress updates. May be nil.
	Sink progress.Sink
}

// UnlockResult reports a completed unlock operation.
type UnlockResult struct {
	OperationID string
	DestDir     string
	Metadata    container.Metadata
}

// Unlock decrypts the container's locked key and extracts the payload into
// DestDir. Before the unlock instant it fails with
// *timelock.TimeLockActiveError without any network access. Cancellation
// removes a destination directory this call created.
func (s *Service) Unlock(ctx context.Context, req UnlockRequest) (UnlockResult, error) {
	meta, err := container.ReadMetadata(req.ContainerPath)
	if err != nil {
		return UnlockResult{}, err
	}

	locked, present, err := meta.LockedSecret()
	if !present {
		return UnlockResult{}, ErrNoLockedKey
	}
	if err != nil {
		return UnlockResult{}, fmt.Errorf("invalid locked key: %w", err)
	}

	secret, err := s.Cipher.Decrypt(locked, meta.Unlocks)
	if err != nil {
		return UnlockResult{}, err
	}

	tracker := progress.NewTracker()
	if meta.OriginalSize > 0 {
		// File count is not recorded in metadata, only the byte total.
		tracker.SetTotal(meta.OriginalSize, 0)
	}
	opID := s.Registry.Register(tracker)
	defer s.Registry.Remove(opID)

	em := progress.NewEmitter(tracker, req.Sink, s.Throttle)
	em.EmitForced(progress.PhaseExtracting, req.ContainerPath)

	_, destErr := os.Stat(req.DestDir)
	destCreated := os.IsNotExist(destErr)

	s.log.Info("unlocking container",
		zap.String("container", req.ContainerPath),
		zap.String("dest", req.DestDir))

	if err := container.ExtractPayload(ctx, req.ContainerPath, string(secret), req.DestDir, s.Archiver, em); err != nil {
		if destCreated && isCancellation(err) {
			os.RemoveAll(req.DestDir)
		}
		return UnlockResult{}, err
	}

	em.Complete()

	return UnlockResult{
		OperationID: opID,
		DestDir:     req.DestDir,
		Metadata:    meta,
	}, nil
}

// isCancellation reports whether err means the user stopped the operation,
// whether through the tracker flag or the context (Ctrl-C, timeout).
func isCancellation(err error) bool {
	return errors.Is(err, progress.ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Status describes a container's lock state.
type Status struct {
	Path     string
	Metadata container.Metadata

	// Round is the target beacon round, zero when no locked key exists.
	Round uint64

	// Unlockable reports availability by the local clock.
	Unlockable bool

	// Remaining is the time until the unlock instant.
	Remaining time.Duration

	// NetworkAvailable reports whether the beacon network has published
	// the round. Nil when no round exists or the network is unreachable.
	NetworkAvailable *bool
}

// Status reads a container's metadata and reports its lock state. The
// beacon check is best-effort: network failure leaves NetworkAvailable nil
// rather than failing the call.
func (s *Service) Status(ctx context.Context, path string) (Status, error) {
	meta, err := container.ReadMetadata(path)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		Path:      path,
		Metadata:  meta,
		Remaining: meta.TimeUntilUnlock(),
	}

	st.Round = meta.DrandRound
	if st.Round == 0 {
		if locked, present, err := meta.LockedSecret(); present && err == nil {
			if round, err := locked.Round(); err == nil {
				st.Round = round
			}
		}
	}

	if st.Round > 0 {
		st.Unlockable = roundclock.Available(st.Round, time.Now())
	} else {
		st.Unlockable = meta.Unlockable()
	}

	if s.Beacon != nil && st.Round > 0 {
		if latest, err := s.Beacon.LatestRound(ctx); err == nil {
			available := latest >= st.Round
			st.NetworkAvailable = &available
		} else {
			s.log.Warn("beacon availability check failed", zap.Error(err))
		}
	}

	return st, nil
}

// Scan returns every readable container under dir.
func (s *Service) Scan(dir string) ([]container.Entry, error) {
	return container.ScanDir(dir)
}
