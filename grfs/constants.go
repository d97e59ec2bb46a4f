// Package grfs implements the on-disk layout and operations of a small
// UNIX-like filesystem over a fixed-size raw block image: a superblock, a
// block bitmap, an inode bitmap, an inode table, and a data region reached
// through direct and multi-level indirect block pointers.
//
// It is grounded in original_source/grfs.c and grfs.h, reworked atop the
// sector cache in package cache instead of operating on bare memory-mapped
// sectors.
package grfs

import "github.com/sdjil-gr/grfs/device"

const (
	// SectorSize is the device sector size in bytes.
	SectorSize = device.SectorSize
	// BlockSize is the filesystem block size in bytes.
	BlockSize = 4096
	// SectorsPerBlock is the number of sectors per filesystem block.
	SectorsPerBlock = BlockSize / SectorSize

	// ImageSize is the total size, in bytes, of a GRFS image.
	ImageSize = 512 * 1024 * 1024
	// TotalSectors is the total sector count of a GRFS image.
	TotalSectors = ImageSize / SectorSize

	// SuperblockSector is the sector holding the superblock.
	SuperblockSector = 0

	// BlockmapBeginSector is the first sector of the block bitmap.
	BlockmapBeginSector = 8
	// BlockmapOccupiedSectors is the number of sectors the block bitmap spans.
	BlockmapOccupiedSectors = 32

	// InodemapBeginSector is the sector holding the inode bitmap.
	InodemapBeginSector = 40
	// InodemapOccupiedSectors is the number of sectors the inode bitmap spans.
	InodemapOccupiedSectors = 1

	// InodeTableBeginSector is the first sector of the inode table.
	InodeTableBeginSector = 41
	// InodeTableOccupiedSectors is the number of sectors the inode table spans.
	InodeTableOccupiedSectors = 31
	// InodeSize is the on-disk size of one inode record, in bytes.
	InodeSize = 64
	// InodesInSector is the number of inode records per sector.
	InodesInSector = SectorSize / InodeSize
	// MaxInodes is the total number of inode slots the inode table provides.
	MaxInodes = InodeTableOccupiedSectors * SectorSize / InodeSize

	// DentrySize is the on-disk size of one directory entry, in bytes.
	DentrySize = 32
	// DentryNameLen is the maximum length of a directory entry's name.
	DentryNameLen = 28
	// DentriesInSector is the number of directory entries per sector.
	DentriesInSector = SectorSize / DentrySize
	// DentriesInBlock is the number of directory entries per block.
	DentriesInBlock = BlockSize / DentrySize

	// BlockTableBeginSector is the first sector of the data region.
	BlockTableBeginSector = 72
	// BlockTableOccupiedSectors is the number of sectors the data region spans.
	BlockTableOccupiedSectors = TotalSectors - BlockTableBeginSector
	// MaxBlocks is the total number of data blocks the data region provides.
	MaxBlocks = BlockTableOccupiedSectors * SectorSize / BlockSize

	// SuperblockMagic identifies a sector 0 as holding a valid superblock.
	SuperblockMagic uint32 = 0xDF4C4459
	// VolumeName is the fixed filesystem type name recorded in the superblock.
	VolumeName = "grfs"

	// DirectBlocks is the number of direct block pointers held by an inode.
	DirectBlocks = 10
	// PointersPerBlock is the number of 32-bit block ids that fit in one block.
	PointersPerBlock = BlockSize / 4

	// Indirect1Blocks is the addressable range of the first indirect level.
	Indirect1Blocks = PointersPerBlock
	// Indirect2Blocks is the addressable range of the second indirect level.
	Indirect2Blocks = PointersPerBlock * PointersPerBlock
	// Indirect3Blocks is the addressable range of the third indirect level.
	Indirect3Blocks = PointersPerBlock * PointersPerBlock * PointersPerBlock

	// NoBlock is the sentinel value for an absent block pointer or inode.
	NoBlock = -1

	// MaxPathLen bounds any path accepted by a filesystem operation.
	MaxPathLen = 256

	// MaxOpenFiles bounds the number of simultaneously open file descriptors.
	MaxOpenFiles = 32
)

// Mode bits recorded in an inode's mode field.
const (
	ModeExec Mode = 1 << iota
	ModeWrite
	ModeRead
	ModeDir
)

// Mode is a bitmask of inode permission/type bits.
type Mode uint32

// OpenFlag selects the access mode an Open call requests.
type OpenFlag int

const (
	// OpenReadOnly opens a file for reading only.
	OpenReadOnly OpenFlag = 1
	// OpenWriteOnly opens a file for writing only.
	OpenWriteOnly OpenFlag = 2
	// OpenReadWrite opens a file for both reading and writing.
	OpenReadWrite OpenFlag = 3
)

// Whence selects the reference point for Lseek.
type Whence int

const (
	// SeekSet seeks relative to the start of the file.
	SeekSet Whence = iota
	// SeekCur seeks relative to the current offset.
	SeekCur
	// SeekEnd seeks relative to the end of the file.
	SeekEnd
)

// ListOption controls Ls output.
type ListOption int

const (
	// ListAll includes dotfiles (names starting with '.').
	ListAll ListOption = 1 << iota
	// ListLong includes the mode string and size alongside each name.
	ListLong
)

// EntryKind reports what Find located at a path.
type EntryKind int

const (
	// KindNone means nothing exists at the path.
	KindNone EntryKind = iota
	// KindFile means the path names a regular file.
	KindFile
	// KindDir means the path names a directory.
	KindDir
)
