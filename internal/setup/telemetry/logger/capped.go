// Package logger provides log file writers that bound their size on disk.
package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// CappedFile is a log file writer that keeps only the most recent lines.
// Once the file holds twice maxLines lines it is rewritten with the newest
// maxLines, so the on-disk size stays bounded without losing recent context.
type CappedFile struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxLines int
	recent   [][]byte // newest lines, at most maxLines
	written  int      // lines in the file since the last trim
}

// OpenCappedFile opens path for appending. A non-positive maxLines disables trimming.
func OpenCappedFile(path string, maxLines int) (*CappedFile, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	return &CappedFile{
		file:     file,
		path:     path,
		maxLines: maxLines,
	}, nil
}

// Write implements io.Writer.
func (c *CappedFile) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.file.Write(p)
	if err != nil || c.maxLines <= 0 {
		return n, err
	}

	for line := range bytes.SplitSeq(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		c.recent = append(c.recent, bytes.Clone(line))
		if len(c.recent) > c.maxLines {
			c.recent = c.recent[len(c.recent)-c.maxLines:]
		}
		c.written++
	}

	if c.written >= c.maxLines*2 {
		if err := c.trim(); err != nil {
			return n, fmt.Errorf("failed to trim log file: %w", err)
		}
	}

	return n, nil
}

// Sync flushes the file to disk.
func (c *CappedFile) Sync() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Sync()
}

// Close closes the underlying file.
func (c *CappedFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}

// trim replaces the file with the retained lines through a temporary file.
func (c *CappedFile) trim() error {
	temp, err := os.CreateTemp(filepath.Dir(c.path), "trim-log-")
	if err != nil {
		return err
	}
	tempPath := temp.Name()

	if _, err := temp.Write(append(bytes.Join(c.recent, []byte("\n")), '\n')); err != nil {
		temp.Close()
		os.Remove(tempPath)
		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	c.file.Close()
	if err := os.Rename(tempPath, c.path); err != nil {
		return err
	}

	file, err := os.OpenFile(c.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	c.file = file
	c.written = len(c.recent)

	return nil
}

var _ io.WriteCloser = (*CappedFile)(nil)
