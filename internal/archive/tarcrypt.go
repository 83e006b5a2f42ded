package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/scrypt"

	"timelocker/internal/progress"
)

// Sealed stream layout:
//
//	salt     (16 bytes)
//	verifier (8 bytes, HKDF of the scrypt key; rejects wrong passwords
//	          before touching the payload)
//	chunks:  u32 BE ciphertext length ‖ AES-256-GCM ciphertext
//
// Each chunk seals up to chunkSize bytes of a gzip-compressed tar stream.
// Chunk nonces are a 12-byte big-endian counter, and a final empty chunk
// terminates the stream so truncation at a chunk boundary is detectable.

const (
	saltSize     = 16
	verifierSize = 8
	chunkSize    = 64 * 1024

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// TarArchiver is the default Archiver: tar + gzip wrapped in chunked
// AES-256-GCM with an scrypt-derived key.
type TarArchiver struct{}

// NewTarArchiver returns the default archiver.
func NewTarArchiver() *TarArchiver {
	return &TarArchiver{}
}

func deriveKeys(password string, salt []byte) (payloadKey, verifier []byte, err error) {
	master, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, 32)
	if err != nil {
		return nil, nil, fmt.Errorf("key derivation failed: %w", err)
	}

	payloadKey = make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte("timelocker/payload")), payloadKey); err != nil {
		return nil, nil, fmt.Errorf("key expansion failed: %w", err)
	}

	verifier = make([]byte, verifierSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, master, salt, []byte("timelocker/verifier")), verifier); err != nil {
		return nil, nil, fmt.Errorf("verifier derivation failed: %w", err)
	}
	return payloadKey, verifier, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Seal archives sources into w. Cancellation is checked before each file.
func (a *TarArchiver) Seal(ctx context.Context, w io.Writer, sources []string, password string, em *progress.Emitter) error {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, verifier, err := deriveKeys(password, salt)
	if err != nil {
		return err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	if _, err := w.Write(salt); err != nil {
		return err
	}
	if _, err := w.Write(verifier); err != nil {
		return err
	}

	cw := &chunkWriter{w: w, gcm: gcm}
	gzw := gzip.NewWriter(cw)
	tw := tar.NewWriter(gzw)

	for _, source := range sources {
		if err := addToTar(ctx, tw, source, em); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("failed to finalize compression: %w", err)
	}
	return cw.Close()
}

func addToTar(ctx context.Context, tw *tar.Writer, source string, em *progress.Emitter) error {
	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("cannot stat source: %w", err)
	}

	base := filepath.Dir(source)
	if !info.IsDir() {
		return addFile(ctx, tw, source, filepath.Base(source), info, em)
	}

	return filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		if d.IsDir() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			hdr, err := tar.FileInfoHeader(fi, "")
			if err != nil {
				return err
			}
			hdr.Name = name + "/"
			return tw.WriteHeader(hdr)
		}
		if !d.Type().IsRegular() {
			return nil // symlinks and specials are not archived
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return addFile(ctx, tw, path, name, fi, em)
	})
}

func addFile(ctx context.Context, tw *tar.Writer, path, name string, info fs.FileInfo, em *progress.Emitter) error {
	if err := checkCancelled(ctx, em); err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, newProgressReader(f, em, progress.PhaseCompressing, name)); err != nil {
		return fmt.Errorf("cannot archive %s: %w", path, err)
	}

	if em != nil {
		em.Tracker().IncrementFiles()
		em.Emit(progress.PhaseCompressing, name)
	}
	return nil
}

// Unseal extracts a sealed stream into destDir.
func (a *TarArchiver) Unseal(ctx context.Context, r io.Reader, password string, destDir string, em *progress.Emitter) error {
	header := make([]byte, saltSize+verifierSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("sealed payload too short: %w", ErrCorrupted)
	}
	salt, storedVerifier := header[:saltSize], header[saltSize:]

	key, verifier, err := deriveKeys(password, salt)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(verifier, storedVerifier) != 1 {
		return ErrBadPassword
	}

	gcm, err := newGCM(key)
	if err != nil {
		return fmt.Errorf("failed to create cipher: %w", err)
	}

	gzr, err := gzip.NewReader(&chunkReader{r: r, gcm: gcm})
	if err != nil {
		return fmt.Errorf("invalid compressed stream: %w", ErrCorrupted)
	}
	defer gzr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("cannot create destination: %w", err)
	}

	tr := tar.NewReader(gzr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("invalid archive entry: %w", ErrCorrupted)
		}
		if err := checkCancelled(ctx, em); err != nil {
			return err
		}
		if err := extractEntry(tr, hdr, destDir, em); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, destDir string, em *progress.Emitter) error {
	name := filepath.FromSlash(hdr.Name)
	target := filepath.Join(destDir, name)

	// Reject entries that would escape the destination.
	if rel, err := filepath.Rel(destDir, target); err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("archive entry %q escapes destination: %w", hdr.Name, ErrCorrupted)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, fs.FileMode(hdr.Mode)&0o777|0o700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fs.FileMode(hdr.Mode)&0o777)
		if err != nil {
			return fmt.Errorf("cannot create %s: %w", target, err)
		}
		n, err := io.Copy(f, tr)
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("cannot extract %s: %w", hdr.Name, err)
		}
		if closeErr != nil {
			return closeErr
		}
		if em != nil {
			em.Tracker().AddBytes(uint64(n))
			em.Tracker().IncrementFiles()
			em.Emit(progress.PhaseExtracting, hdr.Name)
		}
		return nil

	default:
		return nil // unsupported entry types are skipped
	}
}

func checkCancelled(ctx context.Context, em *progress.Emitter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if em != nil && em.Tracker().IsCancelled() {
		return progress.ErrCancelled
	}
	return nil
}

// progressReader counts bytes consumed from the underlying reader.
type progressReader struct {
	r     io.Reader
	em    *progress.Emitter
	phase progress.Phase
	name  string
}

func newProgressReader(r io.Reader, em *progress.Emitter, phase progress.Phase, name string) io.Reader {
	if em == nil {
		return r
	}
	return &progressReader{r: r, em: em, phase: phase, name: name}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.em.Tracker().AddBytes(uint64(n))
		p.em.Emit(p.phase, p.name)
	}
	return n, err
}

// chunkWriter seals buffered plaintext into length-prefixed GCM chunks.
type chunkWriter struct {
	w       io.Writer
	gcm     cipher.AEAD
	buf     []byte
	counter uint64
}

func (c *chunkWriter) Write(b []byte) (int, error) {
	total := len(b)
	for len(b) > 0 {
		space := chunkSize - len(c.buf)
		if space == 0 {
			if err := c.flush(); err != nil {
				return total - len(b), err
			}
			space = chunkSize
		}
		if space > len(b) {
			space = len(b)
		}
		c.buf = append(c.buf, b[:space]...)
		b = b[space:]
	}
	return total, nil
}

func (c *chunkWriter) flush() error {
	if err := c.writeChunk(c.buf); err != nil {
		return err
	}
	c.buf = c.buf[:0]
	return nil
}

// Close flushes remaining plaintext and writes the empty terminator chunk.
func (c *chunkWriter) Close() error {
	if len(c.buf) > 0 {
		if err := c.flush(); err != nil {
			return err
		}
	}
	return c.writeChunk(nil)
}

func (c *chunkWriter) writeChunk(plaintext []byte) error {
	nonce := make([]byte, c.gcm.NonceSize())
	binary.BigEndian.PutUint64(nonce[len(nonce)-8:], c.counter)
	c.counter++

	sealed := c.gcm.Seal(nil, nonce, plaintext, nil)

	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(sealed)))
	if _, err := c.w.Write(length[:]); err != nil {
		return err
	}
	_, err := c.w.Write(sealed)
	return err
}

// chunkReader opens length-prefixed GCM chunks back into plaintext.
type chunkReader struct {
	r       io.Reader
	gcm     cipher.AEAD
	buf     []byte
	counter uint64
	done    bool
}

func (c *chunkReader) Read(b []byte) (int, error) {
	for len(c.buf) == 0 {
		if c.done {
			return 0, io.EOF
		}
		if err := c.readChunk(); err != nil {
			return 0, err
		}
	}
	n := copy(b, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}

func (c *chunkReader) readChunk() error {
	var length [4]byte
	if _, err := io.ReadFull(c.r, length[:]); err != nil {
		return fmt.Errorf("sealed payload truncated: %w", ErrCorrupted)
	}
	sealedLen := binary.BigEndian.Uint32(length[:])
	if sealedLen > chunkSize+uint32(c.gcm.Overhead()) {
		return fmt.Errorf("sealed chunk length out of range: %w", ErrCorrupted)
	}

	sealed := make([]byte, sealedLen)
	if _, err := io.ReadFull(c.r, sealed); err != nil {
		return fmt.Errorf("sealed payload truncated: %w", ErrCorrupted)
	}

	nonce := make([]byte, c.gcm.NonceSize())
	binary.BigEndian.PutUint64(nonce[len(nonce)-8:], c.counter)
	c.counter++

	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return fmt.Errorf("sealed chunk failed authentication: %w", ErrCorrupted)
	}
	if len(plaintext) == 0 {
		c.done = true
		return nil
	}
	c.buf = plaintext
	return nil
}
