package grfs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sdjil-gr/grfs/backend"
	"github.com/sdjil-gr/grfs/cache"
	"github.com/sdjil-gr/grfs/device"
)

// Filesystem is a mounted GRFS image: a sector cache over a backend.Storage,
// a decoded copy of its superblock, the caller's current working directory,
// and a fixed-size open file descriptor table.
//
// Every exported method takes the single mutex fs_lock guarded in the
// source implementation; there is no finer-grained locking; concurrent
// callers serialize on it exactly as the original single-core kernel did.
type Filesystem struct {
	mu    sync.Mutex
	cache *cache.Cache
	dev   *device.Device
	sb    Superblock
	curIno uint32
	fds   [MaxOpenFiles]fileDescriptor
	log   *logrus.Entry
}

// Mount opens storage as a GRFS image and loads its superblock. Use Mkfs
// first on a freshly created image.
func Mount(storage backend.Storage, opts Options) (*Filesystem, error) {
	dev, err := device.New(storage, TotalSectors)
	if err != nil {
		return nil, err
	}
	c := cache.New(dev, opts.CachePolicy, SuperblockSector, opts.log())
	fs := &Filesystem{cache: c, dev: dev, log: opts.log()}
	sb, err := fs.readSuperblock()
	if err != nil {
		return nil, err
	}
	if sb.Magic != SuperblockMagic {
		return nil, ErrNoFilesystem
	}
	fs.sb = sb
	fs.curIno = sb.RootIno
	return fs, nil
}

// Mkfs formats storage as a fresh GRFS image. It refuses to reformat an
// image that already carries a valid superblock: it then leaves the image
// untouched and returns the existing filesystem, mounted, together with
// ErrExists.
func Mkfs(storage backend.Storage, opts Options) (*Filesystem, error) {
	dev, err := device.New(storage, TotalSectors)
	if err != nil {
		return nil, err
	}
	c := cache.New(dev, opts.CachePolicy, SuperblockSector, opts.log())
	fs := &Filesystem{cache: c, dev: dev, log: opts.log()}

	existing, err := fs.readSuperblock()
	if err != nil {
		return nil, err
	}
	if existing.Magic == SuperblockMagic {
		fs.sb = existing
		fs.curIno = existing.RootIno
		return fs, ErrExists
	}

	if err := fs.initSuperblock(); err != nil {
		return nil, err
	}
	fs.curIno = fs.sb.RootIno
	fs.log.WithField("root_ino", fs.sb.RootIno).Info("formatted new filesystem")
	return fs, nil
}

func (fs *Filesystem) readSuperblock() (Superblock, error) {
	buf, err := fs.cache.ReadSector(SuperblockSector)
	if err != nil {
		return Superblock{}, err
	}
	return decodeSuperblock(buf), nil
}

func (fs *Filesystem) writeSuperblock() error {
	buf, err := fs.cache.ReadSector(SuperblockSector)
	if err != nil {
		return err
	}
	copy(buf, fs.sb.encode())
	return fs.cache.PutSector(SuperblockSector)
}

func (fs *Filesystem) clearBitmapRegion(beginSector, occupiedSectors uint32) error {
	for i := uint32(0); i < occupiedSectors; i++ {
		buf, err := fs.cache.ReadSector(beginSector + i)
		if err != nil {
			return err
		}
		for j := range buf {
			buf[j] = 0
		}
		if err := fs.cache.PutSector(beginSector + i); err != nil {
			return err
		}
	}
	return nil
}

func (fs *Filesystem) initSuperblock() error {
	var sb Superblock
	sb.Magic = SuperblockMagic
	sb.SelfSector = SuperblockSector
	sb.BeginSector = 0
	sb.TotalSectors = TotalSectors
	copy(sb.Name[:], VolumeName)

	sb.InodemapBeginSector = InodemapBeginSector
	sb.InodemapOccupiedSectors = InodemapOccupiedSectors
	sb.BlockmapBeginSector = BlockmapBeginSector
	sb.BlockmapOccupiedSectors = BlockmapOccupiedSectors
	sb.InodeTableBeginSector = InodeTableBeginSector
	sb.InodeTableOccupiedSectors = InodeTableOccupiedSectors
	sb.InodeSize = InodeSize
	sb.InodeNum = 0
	sb.InodeMaxNum = MaxInodes

	sb.DentrySize = DentrySize

	sb.BlockTableBeginSector = BlockTableBeginSector
	sb.BlockTableOccupiedSectors = BlockTableOccupiedSectors
	sb.BlockSize = BlockSize
	sb.BlockNum = 0
	sb.BlockMaxNum = MaxBlocks

	if id, err := uuid.NewRandom(); err == nil {
		copy(sb.VolumeUUID[:], id[:])
	}

	fs.sb = sb
	if err := fs.clearBitmapRegion(sb.InodemapBeginSector, sb.InodemapOccupiedSectors); err != nil {
		return err
	}
	if err := fs.clearBitmapRegion(sb.BlockmapBeginSector, sb.BlockmapOccupiedSectors); err != nil {
		return err
	}
	if err := fs.cache.Flush(); err != nil {
		return err
	}

	rootIno, err := fs.allocInode()
	if err != nil {
		return err
	}
	fs.sb.RootIno = rootIno
	if err := fs.initInode(rootIno, rootIno, true); err != nil {
		return err
	}
	return fs.writeSuperblock()
}

// ReadRawSector returns a copy of one raw 512-byte sector, bypassing the
// filesystem's directory/inode semantics entirely. It exists for
// diagnostic tooling (see cmd/grfsh's hexdump command), not for ordinary
// filesystem operations.
func (fs *Filesystem) ReadRawSector(sector uint32) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	buf, err := fs.cache.ReadSector(sector)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// Close flushes any dirty cache state and releases the underlying device.
func (fs *Filesystem) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.cache.Flush(); err != nil {
		return err
	}
	return fs.dev.Close()
}

// StatResult reports the aggregate occupancy of a mounted filesystem, as
// printed by Statfs.
type StatResult struct {
	Name                string
	TotalSectors        uint32
	BlockmapBeginSector uint32
	InodemapBeginSector uint32
	InodeTableBegin     uint32
	BlockTableBegin     uint32
	InodeSize           uint32
	InodeUsed           uint32
	InodeMax            uint32
	BlockSize           uint32
	BlockUsed           uint32
	BlockMax            uint32
	UsedBytes           uint64
	TotalBytes          uint64
}

// Statfs reports filesystem occupancy statistics.
func (fs *Filesystem) Statfs() StatResult {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	sb := fs.sb
	return StatResult{
		Name:                strings.TrimRight(string(sb.Name[:]), "\x00"),
		TotalSectors:        sb.TotalSectors,
		BlockmapBeginSector: sb.BlockmapBeginSector,
		InodemapBeginSector: sb.InodemapBeginSector,
		InodeTableBegin:     sb.InodeTableBeginSector,
		BlockTableBegin:     sb.BlockTableBeginSector,
		InodeSize:           sb.InodeSize,
		InodeUsed:           sb.InodeNum,
		InodeMax:            sb.InodeMaxNum,
		BlockSize:           sb.BlockSize,
		BlockUsed:           sb.BlockNum,
		BlockMax:            sb.BlockMaxNum,
		UsedBytes:           uint64(sb.BlockNum) * uint64(sb.BlockSize),
		TotalBytes:          uint64(sb.TotalSectors) * SectorSize,
	}
}

// formatSize renders n bytes as a fixed-width "NNNNU" string (a
// right-aligned 4-digit count followed by U, one of blank/K/M/G/T), the Go equivalent of the source's get_memstr. Unlike that
// function, which never resets the digit region between calls and so can
// leak digits from a previous, larger call into a later, smaller one, this
// always builds the string fresh.
func formatSize(n uint64) string {
	units := []byte{' ', 'K', 'M', 'G', 'T'}
	i := 0
	for n >= 4096 {
		n /= 1024
		i++
	}
	return fmt.Sprintf("%4d%c", n, units[i])
}

func checkPath(path string) error {
	if path == "" || len(path) >= MaxPathLen {
		return ErrInvalidPath
	}
	return nil
}

// Pwd returns the absolute path of the current working directory.
func (fs *Filesystem) Pwd() (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.curIno == fs.sb.RootIno {
		return "/", nil
	}
	var parts []string
	childIno := fs.curIno
	parentIno := fs.curIno
	for parentIno != fs.sb.RootIno {
		childIno = parentIno
		blockID, err := fs.mapLogicalBlock(parentIno, 0, false)
		if err != nil {
			return "", err
		}
		buf, err := fs.blockSector(blockID, 0)
		if err != nil {
			return "", err
		}
		idx, found := findDentryByName(buf, "..", nil, DentriesInSector)
		if !found {
			return "", ErrCorrupt
		}
		parentIno = uint32(decodeDentryAt(buf, idx).Ino)

		pBlockID, err := fs.mapLogicalBlock(parentIno, 0, false)
		if err != nil {
			return "", err
		}
		pBuf, err := fs.blockSector(pBlockID, 0)
		if err != nil {
			return "", err
		}
		nameIdx, found := findDentryByIno(pBuf, int32(childIno), nil, DentriesInSector)
		if !found {
			return "", ErrCorrupt
		}
		parts = append(parts, decodeDentryAt(pBuf, nameIdx).Name)
	}
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(parts[i])
	}
	return b.String(), nil
}

// Cd changes the current working directory to path.
func (fs *Filesystem) Cd(path string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ino, err := fs.resolve(path)
	if err != nil {
		return err
	}
	in, err := fs.getInode(ino)
	if err != nil {
		return err
	}
	if in.Mode&ModeDir == 0 {
		return ErrNotDir
	}
	fs.curIno = ino
	return nil
}

// resolve walks an absolute (leading '/') or cwd-relative path to an inode.
func (fs *Filesystem) resolve(path string) (uint32, error) {
	if path[0] == '/' {
		return fs.walkByPath(path[1:], fs.sb.RootIno)
	}
	return fs.walkByPath(path, fs.curIno)
}

// Mkdir creates a new directory at path.
func (fs *Filesystem) Mkdir(path string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name, ino, err := fs.getNameAndInoByPath(path)
	if err != nil {
		return ErrNotFound
	}
	in, err := fs.getInode(ino)
	if err != nil {
		return err
	}
	if in.Mode&ModeDir == 0 {
		return ErrNotDir
	}
	if _, err := fs.parentInoToChildIno(ino, name); err == nil {
		return ErrExistsEntry
	}
	return fs.addDir(ino, name)
}

// Rmdir removes an empty directory at path.
func (fs *Filesystem) Rmdir(path string) error {
	if path == "" || path == "." || path == ".." {
		return ErrInvalidPath
	}
	if err := checkPath(path); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name, ino, err := fs.getNameAndInoByPath(path)
	if err != nil {
		return ErrNotFound
	}
	return fs.delDir(ino, name)
}

// DirEntry is one entry reported by Ls.
type DirEntry struct {
	Name  string
	Ino   uint32
	Mode  Mode
	Size  uint32
}

// Ls lists the entries of path, or of the current working directory when
// path is empty.
func (fs *Filesystem) Ls(path string, opt ListOption) ([]DirEntry, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	ino := fs.curIno
	if path != "" {
		if err := checkPath(path); err != nil {
			return nil, err
		}
		r, err := fs.resolve(path)
		if err != nil {
			return nil, err
		}
		ino = r
	}
	in, err := fs.getInode(ino)
	if err != nil {
		return nil, err
	}
	if in.Mode&ModeDir == 0 {
		return nil, ErrNotDir
	}

	var entries []DirEntry
	count := uint32(0)
	for i := 0; count < in.Size; i++ {
		blockID, err := fs.mapLogicalBlock(ino, i, false)
		if err != nil {
			break
		}
		for j := 0; j < SectorsPerBlock && count < in.Size; j++ {
			buf, err := fs.blockSector(blockID, j)
			if err != nil {
				return nil, err
			}
			for k := 0; k < DentriesInSector && count < in.Size; k++ {
				d := decodeDentryAt(buf, k)
				if d.Ino == NoBlock {
					continue
				}
				count++
				if opt&ListAll == 0 && strings.HasPrefix(d.Name, ".") {
					continue
				}
				entry := DirEntry{Name: d.Name, Ino: uint32(d.Ino)}
				if opt&ListLong != 0 {
					child, err := fs.getInode(entry.Ino)
					if err != nil {
						return nil, err
					}
					entry.Mode = child.Mode
					if child.Mode&ModeDir == 0 {
						entry.Size = child.Size
					}
				}
				entries = append(entries, entry)
			}
		}
	}
	return entries, nil
}

// Find resolves path and reports what kind of entry, if any, exists there.
func (fs *Filesystem) Find(path string) (EntryKind, error) {
	if err := checkPath(path); err != nil {
		return KindNone, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name, ino, err := fs.getNameAndInoByPath(path)
	if err != nil {
		return KindNone, nil
	}
	in, err := fs.getInode(ino)
	if err != nil {
		return KindNone, err
	}
	if in.Mode&ModeDir == 0 {
		return KindNone, ErrNotDir
	}
	childIno, err := fs.parentInoToChildIno(ino, name)
	if err != nil {
		return KindNone, nil
	}
	child, err := fs.getInode(childIno)
	if err != nil {
		return KindNone, err
	}
	if child.Mode&ModeDir != 0 {
		return KindDir, nil
	}
	return KindFile, nil
}

// Ln creates a hard link: dstPath becomes a new name for the file at
// srcPath. Both paths must resolve to directories that already exist;
// srcPath must name an existing regular file, and dstPath must not already
// exist.
func (fs *Filesystem) Ln(srcPath, dstPath string) error {
	if err := checkPath(srcPath); err != nil {
		return err
	}
	if err := checkPath(dstPath); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	srcName, srcIno, err := fs.getNameAndInoByPath(srcPath)
	if err != nil {
		return ErrNotFound
	}
	dstName, dstIno, err := fs.getNameAndInoByPath(dstPath)
	if err != nil {
		return ErrNotFound
	}
	srcDir, err := fs.getInode(srcIno)
	if err != nil {
		return err
	}
	if srcDir.Mode&ModeDir == 0 {
		return ErrNotDir
	}
	dstDir, err := fs.getInode(dstIno)
	if err != nil {
		return err
	}
	if dstDir.Mode&ModeDir == 0 {
		return ErrNotDir
	}
	srcChildIno, err := fs.parentInoToChildIno(srcIno, srcName)
	if err != nil {
		return ErrNotFound
	}
	srcChild, err := fs.getInode(srcChildIno)
	if err != nil {
		return err
	}
	if srcChild.Mode&ModeDir != 0 {
		return ErrIsDir
	}
	if _, err := fs.parentInoToChildIno(dstIno, dstName); err == nil {
		return ErrExistsEntry
	}
	_, err = fs.addFile(dstIno, dstName, &srcChildIno)
	return err
}

// Rmnod removes a regular file's directory entry at path, releasing its
// inode once its link count reaches zero.
func (fs *Filesystem) Rmnod(path string) error {
	if path == "" || path == "." || path == ".." {
		return ErrInvalidPath
	}
	if err := checkPath(path); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	name, ino, err := fs.getNameAndInoByPath(path)
	if err != nil {
		return ErrNotFound
	}
	return fs.delFile(ino, name)
}

// Rm removes whatever path names: a file via Rmnod, or, failing that
// (because it names a directory), an empty directory via Rmdir.
func (fs *Filesystem) Rm(path string) error {
	err := fs.Rmnod(path)
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidPath) {
		return err
	}
	return fs.Rmdir(path)
}
