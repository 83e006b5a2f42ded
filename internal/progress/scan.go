package progress

import (
	"io/fs"
	"os"
	"path/filepath"
)

// ScanPath walks a file or directory and returns its total size in bytes
// and the number of regular files. Symlinks are not followed. Unreadable
// entries are skipped rather than failing the scan.
func ScanPath(path string) (totalBytes uint64, totalFiles uint32, err error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, 0, err
	}
	if info.Mode().IsRegular() {
		return uint64(info.Size()), 1, nil
	}
	if !info.IsDir() {
		return 0, 0, nil
	}

	walkErr := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return nil
		}
		totalBytes += uint64(fi.Size())
		totalFiles++
		return nil
	})
	return totalBytes, totalFiles, walkErr
}
