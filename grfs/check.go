package grfs

import "fmt"

// CheckReport lists every inconsistency Check found. A filesystem with no
// findings is structurally sound as far as Check can tell.
type CheckReport struct {
	Findings []string
}

func (r *CheckReport) add(format string, args ...any) {
	r.Findings = append(r.Findings, fmt.Sprintf(format, args...))
}

// OK reports whether Check found no problems.
func (r *CheckReport) OK() bool { return len(r.Findings) == 0 }

// Check walks the on-disk structures looking for internal inconsistencies:
// a superblock whose bitmap occupancy counters disagree with the bitmaps
// themselves, and a directory tree with cycles, entries pointing at
// out-of-range inode numbers, or ".." entries that do not name the parent
// directory. It does not repair anything; it only reports.
func (fs *Filesystem) Check() (*CheckReport, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	report := &CheckReport{}

	if fs.sb.Magic != SuperblockMagic {
		report.add("superblock magic mismatch")
		return report, nil
	}

	if err := fs.checkBitmapOccupancy(report, fs.sb.InodemapBeginSector, fs.sb.InodemapOccupiedSectors, fs.sb.InodeMaxNum, fs.sb.InodeNum, "inode"); err != nil {
		return nil, err
	}
	if err := fs.checkBitmapOccupancy(report, fs.sb.BlockmapBeginSector, fs.sb.BlockmapOccupiedSectors, fs.sb.BlockMaxNum, fs.sb.BlockNum, "block"); err != nil {
		return nil, err
	}

	root, err := fs.getInode(fs.sb.RootIno)
	if err != nil {
		return nil, err
	}
	if root.Mode&ModeDir == 0 {
		report.add("root inode %d is not a directory", fs.sb.RootIno)
		return report, nil
	}

	seen := make(map[uint32]bool)
	if err := fs.walkCheck(report, fs.sb.RootIno, fs.sb.RootIno, seen); err != nil {
		return nil, err
	}
	return report, nil
}

func (fs *Filesystem) checkBitmapOccupancy(report *CheckReport, beginSector, occupiedSectors, maxID, recorded uint32, label string) error {
	var set uint32
	for s := uint32(0); s < occupiedSectors; s++ {
		buf, err := fs.cache.ReadSector(beginSector + s)
		if err != nil {
			return err
		}
		for _, b := range buf {
			for bit := 0; bit < 8; bit++ {
				if uint32(s)*bitsPerSector+uint32(bit) >= maxID {
					continue
				}
				if b&(1<<bit) != 0 {
					set++
				}
			}
		}
	}
	if set != recorded {
		report.add("%s bitmap has %d bits set but superblock records %d", label, set, recorded)
	}
	return nil
}

// walkCheck descends the directory tree rooted at ino (whose parent is
// parentIno, used to validate ".." entries), detecting cycles via seen and
// flagging dentries that point at inodes outside the valid range.
func (fs *Filesystem) walkCheck(report *CheckReport, ino, parentIno uint32, seen map[uint32]bool) error {
	if seen[ino] {
		report.add("cycle detected revisiting directory inode %d", ino)
		return nil
	}
	seen[ino] = true

	in, err := fs.getInode(ino)
	if err != nil {
		return err
	}
	count := uint32(0)
	for i := 0; count < in.Size; i++ {
		blockID, err := fs.mapLogicalBlock(ino, i, false)
		if err != nil {
			if count < in.Size {
				report.add("directory inode %d claims size %d but ran out of blocks after %d entries", ino, in.Size, count)
			}
			break
		}
		for j := 0; j < SectorsPerBlock && count < in.Size; j++ {
			buf, err := fs.blockSector(blockID, j)
			if err != nil {
				return err
			}
			for k := 0; k < DentriesInSector && count < in.Size; k++ {
				d := decodeDentryAt(buf, k)
				if d.Ino == NoBlock {
					continue
				}
				count++
				if d.Ino < 0 || uint32(d.Ino) >= fs.sb.InodeMaxNum {
					report.add("dentry %q in directory %d points at out-of-range inode %d", d.Name, ino, d.Ino)
					continue
				}
				if d.Name == ".." && uint32(d.Ino) != parentIno {
					report.add("directory %d has \"..\" pointing at inode %d, want %d", ino, d.Ino, parentIno)
				}
				if d.Name == "." || d.Name == ".." {
					continue
				}
				child, err := fs.getInode(uint32(d.Ino))
				if err != nil {
					return err
				}
				if child.Mode&ModeDir != 0 {
					if err := fs.walkCheck(report, uint32(d.Ino), ino, seen); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
