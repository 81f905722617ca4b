package automation

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// artifactExts are the file types the controller produces for a backup.
var artifactExts = []string{".unf", ".tar.gz"}

func isArtifact(name string) bool {
	if strings.HasSuffix(name, ".crdownload") || strings.HasPrefix(name, ".") {
		return false
	}
	for _, ext := range artifactExts {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// downloadSnapshot records the complete artifacts already present in dir and
// their modification times.
func downloadSnapshot(dir string) (map[string]time.Time, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]time.Time{}, nil
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[string]time.Time, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isArtifact(e.Name()) {
			continue
		}
		if info, err := e.Info(); err == nil {
			seen[e.Name()] = info.ModTime()
		}
	}
	return seen, nil
}

// newestArtifact returns the most recently modified complete artifact in dir
// that is absent from before or was rewritten since it was taken.
func newestArtifact(dir string, before map[string]time.Time) (string, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, err
	}

	var (
		newest  string
		newestT time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !isArtifact(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if old, ok := before[e.Name()]; ok && info.ModTime().Equal(old) {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest = e.Name()
			newestT = info.ModTime()
		}
	}
	return newest, newest != "", nil
}

// fileArtifact moves a downloaded file into <root>/<YYYY-MM-DD>/<target>_<file>
// using the UTC date of now.
func fileArtifact(src, root, target string, now time.Time) (*Artifact, error) {
	dayFolder := filepath.Join(root, now.UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dayFolder, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup folder: %w", err)
	}

	name := target + "_" + filepath.Base(src)
	dst := filepath.Join(dayFolder, name)

	if err := os.Rename(src, dst); err != nil {
		// download dir and backup root may sit on different devices
		info, statErr := os.Stat(src)
		if statErr != nil {
			return nil, fmt.Errorf("failed to move %s: %w", src, err)
		}
		if err := copyFile(src, dst, info.ModTime().Unix()); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", src, err)
		}
		os.Remove(src)
	}

	info, err := os.Stat(dst)
	if err != nil {
		return nil, err
	}
	hash, err := calculateHash(dst)
	if err != nil {
		return nil, err
	}

	return &Artifact{
		Path:   dst,
		Name:   name,
		Size:   info.Size(),
		SHA256: hash,
	}, nil
}

// removePartialDownloads deletes unfinished .crdownload files left by a
// crashed browser and returns how many were removed.
func removePartialDownloads(dir string) (int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.crdownload"))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if err := os.Remove(f); err == nil {
			removed++
		}
	}
	return removed, nil
}

// calculateHash returns the hex SHA-256 of the file at path.
func calculateHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// copyFile copies src to dst and keeps the modification time.
func copyFile(src, dst string, modTime int64) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return err
	}

	modTimeObj := time.Unix(modTime, 0)
	return os.Chtimes(dst, modTimeObj, modTimeObj)
}
