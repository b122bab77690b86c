package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const rotatedSuffixLayout = "20060102-150405.000"

// RotatingWriter appends to a log file and moves it aside once it would grow
// past maxSize. Moved files are named <file>.<timestamp>, optionally gzipped,
// and removed after maxAge.
type RotatingWriter struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	maxAge   time.Duration
	compress bool
	now      func() time.Time

	file *os.File
	size int64
}

// NewRotatingWriter opens path for appending. maxAgeDays <= 0 keeps rotated
// files forever.
func NewRotatingWriter(path string, maxSizeMB, maxAgeDays int, compress bool) (*RotatingWriter, error) {
	if maxSizeMB <= 0 {
		return nil, fmt.Errorf("max size must be positive, got %d MB", maxSizeMB)
	}

	w := &RotatingWriter{
		path:     path,
		maxSize:  int64(maxSizeMB) << 20,
		maxAge:   time.Duration(maxAgeDays) * 24 * time.Hour,
		compress: compress,
		now:      time.Now,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

func (w *RotatingWriter) open() error {
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file, w.size = f, info.Size()
	return nil
}

// Write rotates first when p would overflow a non-empty file, so a single
// oversized line still lands whole in a fresh file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// rotate moves the current file aside and reopens path. Caller holds mu.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	w.file = nil

	rotated := w.path + "." + w.now().Format(rotatedSuffixLayout)
	for i := 1; fileExists(rotated) || fileExists(rotated+".gz"); i++ {
		rotated = fmt.Sprintf("%s.%s-%d", w.path, w.now().Format(rotatedSuffixLayout), i)
	}
	if err := os.Rename(w.path, rotated); err != nil {
		return err
	}
	if w.compress {
		if err := gzipFile(rotated); err != nil {
			return err
		}
	}

	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

// prune deletes rotated files older than maxAge
func (w *RotatingWriter) prune() {
	if w.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}
	cutoff := w.now().Add(-w.maxAge)
	for _, m := range matches {
		if !strings.HasPrefix(filepath.Base(m), filepath.Base(w.path)+".") {
			continue
		}
		if info, err := os.Stat(m); err == nil && info.ModTime().Before(cutoff) {
			_ = os.Remove(m)
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	_, copyErr := io.Copy(gz, src)
	closeErr := gz.Close()
	if err := dst.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(path + ".gz")
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	}
	return os.Remove(path)
}
