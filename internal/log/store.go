package log

import (
	"io"
	"os"
	"sync"
)

// store wraps a segment's log file. Writes go straight to the file so that
// a record is on disk (from the process's point of view) the moment its
// append returns; the recovery walk depends on that.
type store struct {
	*os.File
	mu   sync.Mutex
	size uint64
}

// newStore creates a store from the given file, using the file's current
// size as the store's size.
func newStore(file *os.File) (*store, error) {
	fi, err := os.Stat(file.Name())
	if err != nil {
		return nil, err
	}

	return &store{
		File: file,
		size: uint64(fi.Size()),
	}, nil
}

// Append writes the already-encoded record to the log file in a single
// write and returns the byte position it was written at.
func (s *store) Append(p []byte) (pos uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos = s.size

	n, err := s.File.Write(p)
	s.size += uint64(n)

	if err != nil {
		return 0, err
	}

	return pos, nil
}

// ReadAt reads from the log file at the given byte position into p. It
// returns the number of bytes read and any error encountered.
func (s *store) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.File.ReadAt(p, off)
}

// Size returns the current size of the log file in bytes.
func (s *store) Size() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.size
}

// Flush forces the file's contents to stable storage.
func (s *store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.File.Sync()
}

// Truncate cuts the log file down to size bytes. Recovery uses it to drop
// a trailing partial record so the next append starts on a clean record
// boundary.
func (s *store) Truncate(size uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.File.Truncate(int64(size)); err != nil {
		return err
	}
	if _, err := s.File.Seek(int64(size), io.SeekStart); err != nil {
		return err
	}
	s.size = size
	return nil
}

// Close syncs and closes the underlying file.
func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.File.Sync(); err != nil {
		return err
	}
	return s.File.Close()
}
