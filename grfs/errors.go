package grfs

import "errors"

// Sentinel errors returned by grfs operations. Package grfs returns them
// unwrapped; callers should still compare with errors.Is.
var (
	// ErrExists means the target filesystem already exists on the image
	// (Mkfs refuses to overwrite a valid superblock).
	ErrExists = errors.New("grfs: filesystem already exists")
	// ErrNoFilesystem means the image carries no valid superblock.
	ErrNoFilesystem = errors.New("grfs: no valid filesystem on image")
	// ErrNotFound means no entry exists at the given path.
	ErrNotFound = errors.New("grfs: no such file or directory")
	// ErrNotDir means a path component that must name a directory does not.
	ErrNotDir = errors.New("grfs: not a directory")
	// ErrIsDir means an operation that requires a regular file was given a directory.
	ErrIsDir = errors.New("grfs: is a directory")
	// ErrExistsEntry means the target name already exists in its parent directory.
	ErrExistsEntry = errors.New("grfs: entry already exists")
	// ErrNotEmpty means a directory removal target still has entries besides . and ..
	ErrNotEmpty = errors.New("grfs: directory not empty")
	// ErrInvalidPath means the supplied path is empty, too long, or otherwise malformed.
	ErrInvalidPath = errors.New("grfs: invalid path")
	// ErrNoSpace means the block or inode pool is exhausted.
	ErrNoSpace = errors.New("grfs: no space left on device")
	// ErrBadFD means a file descriptor argument is out of range or unopened.
	ErrBadFD = errors.New("grfs: bad file descriptor")
	// ErrTooManyOpenFiles means the fixed-size descriptor table is full.
	ErrTooManyOpenFiles = errors.New("grfs: too many open files")
	// ErrPermission means the descriptor's open mode forbids the requested operation.
	ErrPermission = errors.New("grfs: operation not permitted by open mode")
	// ErrIsRoot means an operation refused to act on the root directory or
	// on the current working directory.
	ErrIsRoot = errors.New("grfs: operation not permitted on root or current directory")
	// ErrNegativeOffset means a seek would produce a negative file offset.
	ErrNegativeOffset = errors.New("grfs: resulting offset would be negative")
	// ErrCorrupt means an on-disk structure failed a consistency check.
	ErrCorrupt = errors.New("grfs: corrupt filesystem structure")
	// ErrZombieLink means Ln was asked to link to an inode whose link count
	// has already dropped to zero.
	ErrZombieLink = errors.New("grfs: cannot link to a released inode")
)
