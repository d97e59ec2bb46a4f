// Package memory provides an in-memory backend.Storage, so package tests
// can exercise a full-size GRFS image without touching disk. Adapted from
// the teacher repo's testhelper.FileImpl stubbing pattern, extended to
// satisfy the full backend.Storage interface.
package memory

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/sdjil-gr/grfs/backend"
)

// Storage is a fixed-size, zero-filled, in-memory backend.Storage.
type Storage struct {
	data []byte
}

// New allocates a zero-filled in-memory backend of the given size.
func New(size int64) *Storage {
	return &Storage{data: make([]byte, size)}
}

var _ backend.Storage = (*Storage)(nil)

func (s *Storage) Stat() (fs.FileInfo, error) {
	return memInfo{size: int64(len(s.data))}, nil
}

func (s *Storage) Read(b []byte) (int, error) {
	return 0, errors.New("memory.Storage: use ReadAt")
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (s *Storage) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(s.data)) {
		return 0, errors.New("memory.Storage: write out of range")
	}
	return copy(s.data[off:], p), nil
}

func (s *Storage) Seek(offset int64, whence int) (int64, error) {
	return 0, errors.New("memory.Storage: does not support Seek")
}

func (s *Storage) Sys() (*os.File, error) {
	return nil, backend.ErrNotSuitable
}

func (s *Storage) Writable() (backend.WritableFile, error) {
	return s, nil
}

type memInfo struct {
	size int64
}

func (m memInfo) Name() string       { return "memory" }
func (m memInfo) Size() int64        { return m.size }
func (m memInfo) Mode() fs.FileMode  { return 0o600 }
func (m memInfo) ModTime() time.Time { return time.Time{} }
func (m memInfo) IsDir() bool        { return false }
func (m memInfo) Sys() any           { return nil }
