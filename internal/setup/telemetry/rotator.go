package telemetry

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// LineRotator is a log file that keeps at most maxLines of the latest lines.
// Lines are tracked in memory and the file is compacted once twice as many
// lines have been written, so rewrites stay infrequent.
type LineRotator struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxLines int
	tail     [][]byte
	written  int
}

// NewLineRotator opens (or creates) the file at path for appending.
func NewLineRotator(path string, maxLines int) (*LineRotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	return &LineRotator{
		file:     file,
		path:     path,
		maxLines: max(maxLines, 1),
	}, nil
}

// Write implements io.Writer.
func (r *LineRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.Write(p)
	if err != nil {
		return n, err
	}

	for line := range bytes.SplitSeq(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		r.tail = append(r.tail, bytes.Clone(line))
		if len(r.tail) > r.maxLines {
			r.tail = r.tail[len(r.tail)-r.maxLines:]
		}
		r.written++
	}

	if r.written >= 2*r.maxLines {
		if err := r.compact(); err != nil {
			return n, fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	return n, nil
}

// Sync flushes the file to disk.
func (r *LineRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Sync()
}

// compact replaces the file with the retained tail.
func (r *LineRotator) compact() error {
	temp, err := os.CreateTemp(filepath.Dir(r.path), "rotate-")
	if err != nil {
		return err
	}

	content := append(bytes.Join(r.tail, []byte("\n")), '\n')
	if _, err := temp.Write(content); err != nil {
		temp.Close()
		os.Remove(temp.Name())
		return err
	}
	temp.Close()

	r.file.Close()
	if err := os.Rename(temp.Name(), r.path); err != nil {
		return err
	}

	r.file, err = os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	r.written = len(r.tail)

	return nil
}
