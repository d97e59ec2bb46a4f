// Package backend defines the storage abstraction GRFS mounts its sector
// cache on top of: a GRFS image is, at this layer, nothing more than a
// ReaderAt/WriterAt of exactly backend/file.ImageSize bytes.
package backend

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

var (
	ErrIncorrectOpenMode = errors.New("disk file or device not open for write")
	ErrNotSuitable       = errors.New("backing file is not suitable")
)

// File is the minimum a GRFS backing image must support: stat, positioned
// reads, seeking, and closing.
type File interface {
	fs.File
	io.ReaderAt
	io.Seeker
	io.Closer
}

// WritableFile additionally supports positioned writes, required whenever
// the image is mounted read-write.
type WritableFile interface {
	File
	io.WriterAt
}

// Storage is what backend/{file,memory} implement and device.Device wraps:
// a File that can hand back its underlying *os.File for OS-specific
// operations and assert its own writability.
type Storage interface {
	File
	// Sys returns the OS-specific file for ioctl/flock calls, or
	// ErrNotSuitable if the backing storage has no such file (e.g. an
	// in-memory image).
	Sys() (*os.File, error)
	// Writable asserts the storage was opened read-write.
	Writable() (WritableFile, error)
}
