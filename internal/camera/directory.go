package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

// DirectorySource replays the JPEG files of a folder in lexical order, looping forever.
type DirectorySource struct {
	// dir is the replayed folder.
	dir string
}

// NewDirectorySource returns a source replaying dir.
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{dir: dir}
}

// Open lists the folder. A missing, unreadable or empty folder is reported as ErrDenied.
//
//nolint:ireturn // Source contract.
func (s *DirectorySource) Open(ctx context.Context, constraints Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %w", ErrDenied, err)
		}

		return nil, fmt.Errorf("read camera folder: %w", err)
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg":
			files = append(files, filepath.Join(s.dir, entry.Name()))
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no JPEG frames in %s", ErrDenied, s.dir)
	}

	slices.Sort(files)

	return &directoryStream{
		files:       files,
		constraints: constraints,
	}, nil
}

type directoryStream struct {
	files       []string
	constraints Constraints

	mu     sync.Mutex
	next   int
	seq    uint64
	closed bool
}

func (s *directoryStream) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return Frame{}, ErrClosed
	}

	path := s.files[s.next]
	s.next = (s.next + 1) % len(s.files)
	s.seq++
	seq := s.seq

	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return Frame{}, fmt.Errorf("read frame %s: %w", filepath.Base(path), err)
	}

	return Frame{
		Data:       data,
		Seq:        seq,
		CapturedAt: time.Now(),
		Width:      s.constraints.Width,
		Height:     s.constraints.Height,
	}, nil
}

func (s *directoryStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}
