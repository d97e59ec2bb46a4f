// Package file provides a backend.Storage implementation backed by a
// plain OS file — either a pre-existing image or a freshly truncated one.
package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/sdjil-gr/grfs/backend"
)

// ImageSize is the fixed size of a GRFS backing image: 512 MiB.
const ImageSize int64 = 512 * 1024 * 1024

type rawBackend struct {
	storage  fs.File
	readOnly bool
}

// New creates a backend.Storage from a provided fs.File.
func New(f fs.File, readOnly bool) backend.Storage {
	return rawBackend{
		storage:  f,
		readOnly: readOnly,
	}
}

// OpenFromPath creates a backend.Storage from a path to an existing image or
// block device. The file must already exist.
func OpenFromPath(pathName string, readOnly bool) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass device or file name")
	}

	if _, err := os.Stat(pathName); os.IsNotExist(err) {
		return nil, fmt.Errorf("provided device/file %s does not exist", pathName)
	}

	openMode := os.O_RDONLY
	if !readOnly {
		openMode |= os.O_RDWR
	}

	f, err := os.OpenFile(pathName, openMode, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not open device %s with mode %v: %w", pathName, openMode, err)
	}

	if !readOnly {
		if err := lockExclusive(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("could not lock %s for exclusive access: %w", pathName, err)
		}
	}

	return rawBackend{
		storage:  f,
		readOnly: readOnly,
	}, nil
}

// CreateFromPath creates a backend.Storage at pathName, truncated to size
// bytes. The file must not already exist.
func CreateFromPath(pathName string, size int64) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass device name")
	}
	if size <= 0 {
		return nil, errors.New("must pass valid device size to create")
	}
	f, err := os.OpenFile(pathName, os.O_RDWR|os.O_EXCL|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not create device %s: %w", pathName, err)
	}
	if err := os.Truncate(pathName, size); err != nil {
		return nil, fmt.Errorf("could not expand device %s to size %d: %w", pathName, size, err)
	}
	if err := lockExclusive(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not lock %s for exclusive access: %w", pathName, err)
	}

	return rawBackend{
		storage:  f,
		readOnly: false,
	}, nil
}

// OpenImage opens an existing GRFS backing image at pathName, rejecting it
// unless it is exactly ImageSize bytes long.
func OpenImage(pathName string, readOnly bool) (backend.Storage, error) {
	info, err := os.Stat(pathName)
	if err != nil {
		return nil, fmt.Errorf("image %s not found: %w", pathName, err)
	}
	if info.Size() != ImageSize {
		return nil, fmt.Errorf("image %s has size %d, want %d", pathName, info.Size(), ImageSize)
	}
	return OpenFromPath(pathName, readOnly)
}

// CreateImage creates a fresh, zero-filled GRFS backing image of ImageSize
// bytes at pathName.
func CreateImage(pathName string) (backend.Storage, error) {
	return CreateFromPath(pathName, ImageSize)
}

// backend.Storage interface guard
var _ backend.Storage = (*rawBackend)(nil)

// Sys returns the OS-specific file for ioctl/flock calls.
func (f rawBackend) Sys() (*os.File, error) {
	if osFile, ok := f.storage.(*os.File); ok {
		return osFile, nil
	}
	return nil, backend.ErrNotSuitable
}

// Writable returns a handle suitable for read-write operations.
func (f rawBackend) Writable() (backend.WritableFile, error) {
	if rwFile, ok := f.storage.(backend.WritableFile); ok {
		if !f.readOnly {
			return rwFile, nil
		}
		return nil, backend.ErrIncorrectOpenMode
	}
	return nil, backend.ErrNotSuitable
}

func (f rawBackend) Stat() (fs.FileInfo, error) {
	return f.storage.Stat()
}

func (f rawBackend) Read(b []byte) (int, error) {
	return f.storage.Read(b)
}

func (f rawBackend) Close() error {
	return f.storage.Close()
}

func (f rawBackend) ReadAt(p []byte, off int64) (n int, err error) {
	if readerAt, ok := f.storage.(io.ReaderAt); ok {
		return readerAt.ReadAt(p, off)
	}
	return -1, backend.ErrNotSuitable
}

func (f rawBackend) Seek(offset int64, whence int) (int64, error) {
	if seeker, ok := f.storage.(io.Seeker); ok {
		return seeker.Seek(offset, whence)
	}
	return -1, backend.ErrNotSuitable
}
