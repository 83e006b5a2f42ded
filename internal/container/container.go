// Package container implements the .tlock file format: a fixed 24-byte
// header, an unencrypted JSON metadata document, and an opaque encrypted
// payload produced by the archiver.
//
//	offset 0,  7 bytes: magic "TLOCK01"
//	offset 7,  1 byte:  format version
//	offset 8,  4 bytes: metadata length, little-endian u32
//	offset 12, 12 bytes: reserved, zero-filled (readers ignore contents)
//
// The payload extends from the end of the metadata to end-of-file; its
// length is implicit from file size.
package container

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"timelocker/internal/archive"
	"timelocker/internal/progress"
)

const (
	// HeaderSize is the fixed header length in bytes.
	HeaderSize = 24

	// Version is the highest format version this implementation writes
	// and understands.
	Version = 1

	// MaxMetadataSize bounds the metadata document.
	MaxMetadataSize = 1024 * 1024
)

// Magic identifies a container file.
var Magic = [7]byte{'T', 'L', 'O', 'C', 'K', '0', '1'}

// Extension is the conventional container file suffix.
const Extension = ".tlock"

var (
	// ErrBadMagic means the file does not start with the magic token.
	ErrBadMagic = errors.New("not a tlock container (bad magic bytes)")

	// ErrUnsupportedVersion means the format version is newer than this
	// implementation understands.
	ErrUnsupportedVersion = errors.New("unsupported container version")

	// ErrMetadataTooLarge means the declared or serialized metadata
	// exceeds MaxMetadataSize.
	ErrMetadataTooLarge = errors.New("metadata exceeds maximum size")
)

// Header is the parsed fixed-size header.
type Header struct {
	Version     uint8
	MetadataLen uint32
}

func writeHeader(w io.Writer, metadataLen uint32) error {
	var hdr [HeaderSize]byte
	copy(hdr[0:7], Magic[:])
	hdr[7] = Version
	binary.LittleEndian.PutUint32(hdr[8:12], metadataLen)
	// bytes 12..24 stay reserved and zero
	_, err := w.Write(hdr[:])
	return err
}

func readHeader(r io.Reader) (Header, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Header{}, fmt.Errorf("failed to read container header: %w", err)
	}

	if [7]byte(hdr[0:7]) != Magic {
		return Header{}, ErrBadMagic
	}

	version := hdr[7]
	if version > Version {
		return Header{}, fmt.Errorf("%w: %d (max supported: %d)", ErrUnsupportedVersion, version, Version)
	}

	metadataLen := binary.LittleEndian.Uint32(hdr[8:12])
	if metadataLen > MaxMetadataSize {
		return Header{}, fmt.Errorf("%w: declared %d bytes", ErrMetadataTooLarge, metadataLen)
	}

	// Reserved bytes are ignored, not rejected, for future use.
	return Header{Version: version, MetadataLen: metadataLen}, nil
}

// Create writes a container to destPath: header, metadata, and the sealed
// payload the archiver produces for sourcePath. The file appears atomically;
// any failure after sealing starts removes the partial artifact before the
// error propagates.
func Create(ctx context.Context, destPath, sourcePath string, meta Metadata, password string, ar archive.Archiver, em *progress.Emitter) error {
	metadataJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}
	if len(metadataJSON) > MaxMetadataSize {
		return fmt.Errorf("%w: %d bytes", ErrMetadataTooLarge, len(metadataJSON))
	}

	if _, err := os.Lstat(sourcePath); err != nil {
		return fmt.Errorf("cannot stat source: %w", err)
	}

	tmpPath := destPath + ".partial"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("cannot create container: %w", err)
	}

	err = func() error {
		if err := writeHeader(f, uint32(len(metadataJSON))); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if _, err := f.Write(metadataJSON); err != nil {
			return fmt.Errorf("failed to write metadata: %w", err)
		}
		if err := ar.Seal(ctx, f, []string{sourcePath}, password, em); err != nil {
			return err
		}
		return f.Sync()
	}()
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize container: %w", err)
	}
	return nil
}

// ReadMetadata reads and validates only the header and metadata document.
// It never touches payload bytes, so it is cheap regardless of payload
// size.
func ReadMetadata(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	hdr, err := readHeader(f)
	if err != nil {
		return Metadata{}, err
	}

	metadataJSON := make([]byte, hdr.MetadataLen)
	if _, err := io.ReadFull(f, metadataJSON); err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(metadataJSON, &meta); err != nil {
		return Metadata{}, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	return meta, nil
}

// ExtractPayload validates the header, skips the metadata, and streams the
// payload into the archiver's unseal operation targeting destDir. A wrong
// password surfaces as archive.ErrBadPassword.
func ExtractPayload(ctx context.Context, path, password, destDir string, ar archive.Archiver, em *progress.Emitter) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	hdr, err := readHeader(f)
	if err != nil {
		return err
	}
	if _, err := f.Seek(int64(hdr.MetadataLen), io.SeekCurrent); err != nil {
		return fmt.Errorf("failed to seek past metadata: %w", err)
	}

	return ar.Unseal(ctx, f, password, destDir, em)
}

// Validate performs a cheap structural check: the header parses and the
// metadata is valid JSON. It never attempts decryption. Use it as a gate
// before destructive actions such as deleting the original source.
func Validate(path string) error {
	_, err := ReadMetadata(path)
	return err
}

// PayloadOffset returns the byte offset where the sealed payload begins.
func PayloadOffset(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	hdr, err := readHeader(f)
	if err != nil {
		return 0, err
	}
	return HeaderSize + int64(hdr.MetadataLen), nil
}

// Entry pairs a container path with its parsed metadata.
type Entry struct {
	Path     string
	Metadata Metadata
}

// ScanDir walks dir recursively and returns every readable container.
// Files whose metadata fails to parse are skipped.
func ScanDir(dir string) ([]Entry, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var entries []Entry
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), Extension) {
			return nil
		}
		meta, err := ReadMetadata(path)
		if err != nil {
			return nil
		}
		entries = append(entries, Entry{Path: path, Metadata: meta})
		return nil
	})
	return entries, err
}
