package grfs

import (
	"bytes"
	"strings"
)

// dentry is one decoded directory entry: a name and the inode it names, or
// an empty slot when Ino == NoBlock.
type dentry struct {
	Name string
	Ino  int32
}

func decodeDentryAt(buf []byte, idx int) dentry {
	off := idx * DentrySize
	raw := buf[off : off+DentryNameLen]
	name := string(bytes.TrimRight(raw, "\x00"))
	ino := int32(leByteOrder.Uint32(buf[off+DentryNameLen:]))
	return dentry{Name: name, Ino: ino}
}

func encodeDentryAt(buf []byte, idx int, name string, ino int32) {
	off := idx * DentrySize
	for i := 0; i < DentryNameLen; i++ {
		buf[off+i] = 0
	}
	copy(buf[off:off+DentryNameLen], name)
	leByteOrder.PutUint32(buf[off+DentryNameLen:], uint32(ino))
}

// initDentryArray clears every entry in a freshly allocated directory
// sector and, for the directory's first sector, writes "." and "..".
func initDentryArray(buf []byte, parentIno, selfIno uint32, first bool) {
	for i := 0; i < DentriesInSector; i++ {
		encodeDentryAt(buf, i, "", NoBlock)
	}
	if first {
		encodeDentryAt(buf, 0, ".", int32(selfIno))
		encodeDentryAt(buf, 1, "..", int32(parentIno))
	}
}

func findDentryByName(buf []byte, name string, count *int, numEntries int) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i := 0; i < numEntries; i++ {
		d := decodeDentryAt(buf, i)
		if d.Ino == NoBlock {
			continue
		}
		if count != nil {
			*count++
		}
		if d.Name == name {
			return i, true
		}
	}
	return 0, false
}

func findDentryByIno(buf []byte, ino int32, count *int, numEntries int) (int, bool) {
	for i := 0; i < numEntries; i++ {
		d := decodeDentryAt(buf, i)
		if d.Ino == NoBlock {
			continue
		}
		if count != nil {
			*count++
		}
		if d.Ino == ino {
			return i, true
		}
	}
	return 0, false
}

func findEmptyDentry(buf []byte, numEntries int) (int, bool) {
	for i := 0; i < numEntries; i++ {
		if decodeDentryAt(buf, i).Ino == NoBlock {
			return i, true
		}
	}
	return 0, false
}

// parentInoToChildIno looks up name within the directory parentIno.
func (fs *Filesystem) parentInoToChildIno(parentIno uint32, name string) (uint32, error) {
	parent, err := fs.getInode(parentIno)
	if err != nil {
		return 0, err
	}
	if parent.Mode&ModeDir == 0 {
		return 0, ErrNotDir
	}
	count := 0
	for i := 0; ; i++ {
		blockID, err := fs.mapLogicalBlock(parentIno, i, false)
		if err != nil {
			return 0, ErrNotFound
		}
		for j := 0; j < SectorsPerBlock; j++ {
			buf, err := fs.blockSector(blockID, j)
			if err != nil {
				return 0, err
			}
			if idx, found := findDentryByName(buf, name, &count, DentriesInSector); found {
				d := decodeDentryAt(buf, idx)
				return uint32(d.Ino), nil
			}
			if count >= int(parent.Size) {
				return 0, ErrNotFound
			}
		}
	}
}

// walkByPath resolves a '/'-separated relative path starting at originIno,
// descending one directory per non-empty path component.
func (fs *Filesystem) walkByPath(path string, originIno uint32) (uint32, error) {
	ino := originIno
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		next, err := fs.parentInoToChildIno(ino, part)
		if err != nil {
			return 0, err
		}
		ino = next
	}
	return ino, nil
}

// getNameAndInoByPath splits path into its final component name and the
// inode of its containing directory, resolving ".." and relative
// components against the current working directory.
func (fs *Filesystem) getNameAndInoByPath(path string) (string, uint32, error) {
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "", 0, ErrInvalidPath
	}
	slash := strings.LastIndexByte(path, '/')
	if slash < 0 {
		return path, fs.curIno, nil
	}
	name := path[slash+1:]
	dir := path[:slash]
	if dir == "" {
		return name, fs.sb.RootIno, nil
	}
	var ino uint32
	var err error
	if dir[0] == '/' {
		ino, err = fs.walkByPath(dir[1:], fs.sb.RootIno)
	} else {
		ino, err = fs.walkByPath(dir, fs.curIno)
	}
	if err != nil {
		return "", 0, err
	}
	return name, ino, nil
}

// addDir creates a new subdirectory named name within parentIno.
func (fs *Filesystem) addDir(parentIno uint32, name string) error {
	for i := 0; ; i++ {
		blockID, err := fs.mapLogicalBlock(parentIno, i, true)
		if err != nil {
			return err
		}
		for j := 0; j < SectorsPerBlock; j++ {
			buf, err := fs.blockSector(blockID, j)
			if err != nil {
				return err
			}
			idx, found := findEmptyDentry(buf, DentriesInSector)
			if !found {
				continue
			}
			newIno, err := fs.allocInode()
			if err != nil {
				return err
			}
			encodeDentryAt(buf, idx, name, int32(newIno))
			if err := fs.initInode(parentIno, newIno, true); err != nil {
				return err
			}
			parent, err := fs.getInode(parentIno)
			if err != nil {
				return err
			}
			parent.Size++
			if err := fs.putInode(parentIno, parent); err != nil {
				return err
			}
			return fs.putBlockSector(blockID, j)
		}
	}
}

// delDir removes the subdirectory named name from parentIno. It refuses to
// remove the filesystem root or the caller's current directory, and
// refuses a non-empty directory (more than "." and ".." inside).
func (fs *Filesystem) delDir(parentIno uint32, name string) error {
	count := 0
	for i := 0; ; i++ {
		blockID, err := fs.mapLogicalBlock(parentIno, i, false)
		if err != nil {
			return ErrNotFound
		}
		parent, err := fs.getInode(parentIno)
		if err != nil {
			return err
		}
		for j := 0; j < SectorsPerBlock; j++ {
			buf, err := fs.blockSector(blockID, j)
			if err != nil {
				return err
			}
			idx, found := findDentryByName(buf, name, &count, DentriesInSector)
			if found {
				d := decodeDentryAt(buf, idx)
				childIno := uint32(d.Ino)
				if childIno == fs.sb.RootIno || childIno == fs.curIno {
					return ErrIsRoot
				}
				child, err := fs.getInode(childIno)
				if err != nil {
					return err
				}
				if child.Mode&ModeDir == 0 {
					return ErrNotDir
				}
				if child.Nlinks == 1 && child.Size > 2 {
					return ErrNotEmpty
				}
				child.Nlinks--
				if child.Nlinks == 0 {
					if err := fs.releaseInode(childIno); err != nil {
						return err
					}
				} else if err := fs.putInode(childIno, child); err != nil {
					return err
				}
				encodeDentryAt(buf, idx, "", NoBlock)
				parent.Size--
				if err := fs.putBlockSector(blockID, j); err != nil {
					return err
				}
				return fs.putInode(parentIno, parent)
			}
			if count >= int(parent.Size) {
				return ErrNotFound
			}
		}
		if count >= int(parent.Size) {
			return ErrNotFound
		}
	}
}

// addFile creates a directory entry named name in parentIno. If lnIno is
// non-nil, the entry links to that existing inode (implementing hard
// links) instead of allocating a fresh one.
//
// Unlike the function this is grounded on, which gives up after the first
// directory sector with no empty slot, this keeps scanning subsequent
// sectors and blocks until an empty slot is found or the inode/block pool
// is exhausted.
func (fs *Filesystem) addFile(parentIno uint32, name string, lnIno *uint32) (uint32, error) {
	for i := 0; ; i++ {
		blockID, err := fs.mapLogicalBlock(parentIno, i, true)
		if err != nil {
			return 0, err
		}
		for j := 0; j < SectorsPerBlock; j++ {
			buf, err := fs.blockSector(blockID, j)
			if err != nil {
				return 0, err
			}
			idx, found := findEmptyDentry(buf, DentriesInSector)
			if !found {
				continue
			}
			var ino uint32
			if lnIno == nil {
				ino, err = fs.allocInode()
				if err != nil {
					return 0, err
				}
				if err := fs.initInode(parentIno, ino, false); err != nil {
					return 0, err
				}
			} else {
				ino = *lnIno
				target, err := fs.getInode(ino)
				if err != nil {
					return 0, err
				}
				if target.Nlinks == 0 {
					return 0, ErrZombieLink
				}
				target.Nlinks++
				if err := fs.putInode(ino, target); err != nil {
					return 0, err
				}
			}
			encodeDentryAt(buf, idx, name, int32(ino))
			parent, err := fs.getInode(parentIno)
			if err != nil {
				return 0, err
			}
			parent.Size++
			if err := fs.putInode(parentIno, parent); err != nil {
				return 0, err
			}
			if err := fs.putBlockSector(blockID, j); err != nil {
				return 0, err
			}
			return ino, nil
		}
	}
}

// delFile removes the directory entry named name from parentIno, which
// must name a regular file, not a subdirectory.
func (fs *Filesystem) delFile(parentIno uint32, name string) error {
	count := 0
	for i := 0; ; i++ {
		blockID, err := fs.mapLogicalBlock(parentIno, i, false)
		if err != nil {
			return ErrNotFound
		}
		parent, err := fs.getInode(parentIno)
		if err != nil {
			return err
		}
		for j := 0; j < SectorsPerBlock; j++ {
			buf, err := fs.blockSector(blockID, j)
			if err != nil {
				return err
			}
			idx, found := findDentryByName(buf, name, &count, DentriesInSector)
			if found {
				d := decodeDentryAt(buf, idx)
				childIno := uint32(d.Ino)
				child, err := fs.getInode(childIno)
				if err != nil {
					return err
				}
				if child.Mode&ModeDir != 0 {
					return ErrIsDir
				}
				child.Nlinks--
				if child.Nlinks == 0 {
					if err := fs.releaseInode(childIno); err != nil {
						return err
					}
				} else if err := fs.putInode(childIno, child); err != nil {
					return err
				}
				encodeDentryAt(buf, idx, "", NoBlock)
				parent.Size--
				if err := fs.putBlockSector(blockID, j); err != nil {
					return err
				}
				return fs.putInode(parentIno, parent)
			}
			if count >= int(parent.Size) {
				return ErrNotFound
			}
		}
		if count >= int(parent.Size) {
			return ErrNotFound
		}
	}
}
