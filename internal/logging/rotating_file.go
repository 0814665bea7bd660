package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RotatingFile is an append-only log file that is renamed with a timestamp
// suffix once it grows past maxSize.
type RotatingFile struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	maxSize     int64
	currentSize int64
}

// NewRotatingFile opens (or creates) path for appending. A maxSize of 0
// disables rotation.
func NewRotatingFile(path string, maxSize int64) (*RotatingFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to close log file after stat error: %w", closeErr)
		}
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	return &RotatingFile{
		file:        file,
		path:        path,
		maxSize:     maxSize,
		currentSize: info.Size(),
	}, nil
}

// Write appends p, rotating first when the size limit has been reached
func (f *RotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.maxSize > 0 && f.currentSize >= f.maxSize {
		if err := f.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log file: %v\n", err)
		}
	}
	if f.file == nil {
		return 0, fmt.Errorf("log file %s is not open", f.path)
	}

	n, err := f.file.Write(p)
	f.currentSize += int64(n)
	return n, err
}

func (f *RotatingFile) rotate() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102-150405")
	rotatedPath := fmt.Sprintf("%s.%s", f.path, timestamp)
	if err := os.Rename(f.path, rotatedPath); err != nil {
		file, _ := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		f.file = file
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		f.file = nil
		return fmt.Errorf("failed to create new log file: %w", err)
	}

	f.file = file
	f.currentSize = 0
	return nil
}

// Close closes the current file
func (f *RotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
