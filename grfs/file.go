package grfs

// OwnerToken is an opaque caller-supplied identifier attached to a
// descriptor at Open time. The source carries an unused pid field on each
// descriptor toward the same end; here it is surfaced as a real parameter
// so ReapByOwner can release every descriptor a given owner opened without
// the caller having to track individual fd numbers itself.
type OwnerToken any

// fileDescriptor is one slot of the fixed-size open file table.
type fileDescriptor struct {
	valid  bool
	ino    uint32
	offset int64
	mode   OpenFlag
	owner  OwnerToken
}

func (fs *Filesystem) freeFD() (int, error) {
	for i := range fs.fds {
		if !fs.fds[i].valid {
			fs.fds[i].valid = true
			return i, nil
		}
	}
	return 0, ErrTooManyOpenFiles
}

func (fs *Filesystem) checkFD(fd int) error {
	if fd < 0 || fd >= MaxOpenFiles || !fs.fds[fd].valid {
		return ErrBadFD
	}
	return nil
}

// Open resolves path to a regular file, creating it if absent, and returns
// a file descriptor opened with the given mode. owner is an opaque token
// recorded on the descriptor; ReapByOwner later releases every descriptor
// whose owner matches without the caller having to track fd numbers.
func (fs *Filesystem) Open(path string, mode OpenFlag, owner OwnerToken) (int, error) {
	if err := checkPath(path); err != nil {
		return -1, err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	name, ino, err := fs.getNameAndInoByPath(path)
	if err != nil {
		return -1, ErrNotFound
	}
	dir, err := fs.getInode(ino)
	if err != nil {
		return -1, err
	}
	if dir.Mode&ModeDir == 0 {
		return -1, ErrNotDir
	}

	var fileIno uint32
	if childIno, err := fs.parentInoToChildIno(ino, name); err == nil {
		child, err := fs.getInode(childIno)
		if err != nil {
			return -1, err
		}
		if child.Mode&ModeDir != 0 {
			return -1, ErrIsDir
		}
		fileIno = childIno
	} else {
		fileIno, err = fs.addFile(ino, name, nil)
		if err != nil {
			return -1, err
		}
	}

	fd, err := fs.freeFD()
	if err != nil {
		return -1, err
	}
	fs.fds[fd] = fileDescriptor{valid: true, ino: fileIno, mode: mode & OpenReadWrite, owner: owner}
	return fd, nil
}

// ReapByOwner releases every open descriptor whose owner token equals
// token, as if Close had been called on each. It is a no-op for owners
// with no open descriptors. The source carries an unused pid field toward
// the same end and a reap-by-pid sweep run on process exit; owner is
// surfaced here as a real parameter so any caller-chosen identity works,
// not just a process id.
func (fs *Filesystem) ReapByOwner(token OwnerToken) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	for i := range fs.fds {
		if fs.fds[i].valid && fs.fds[i].owner == token {
			fs.fds[i] = fileDescriptor{}
		}
	}
}

// Read copies up to len(buf) bytes from fd's current offset, advancing it,
// and returns the number of bytes copied. Reads past the file's recorded
// size return 0 with no error, mirroring a short read at EOF.
//
// The source's mode check here is a no-op due to an operator-precedence
// mistake (`mode & O_RDONLY == 0` parses as `mode & (O_RDONLY == 0)`,
// always zero), so every descriptor could always be read regardless of how
// it was opened; this corrects the check to require the read bit.
func (fs *Filesystem) Read(fd int, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkFD(fd); err != nil {
		return 0, err
	}
	desc := &fs.fds[fd]
	if desc.mode&OpenReadOnly == 0 {
		return 0, ErrPermission
	}
	in, err := fs.getInode(desc.ino)
	if err != nil {
		return 0, err
	}
	size := int64(in.Size)
	if desc.offset >= size {
		return 0, nil
	}

	want := len(buf)
	if desc.offset+int64(want) > size {
		want = int(size - desc.offset)
	}
	remaining := want
	out := buf
	for remaining > 0 {
		blockIndex := int(desc.offset / BlockSize)
		blockOffset := int(desc.offset % BlockSize)
		blockID, err := fs.mapLogicalBlock(desc.ino, blockIndex, false)
		if err != nil {
			n := BlockSize - blockOffset
			if n > remaining {
				n = remaining
			}
			for i := 0; i < n; i++ {
				out[i] = 0
			}
			out = out[n:]
			remaining -= n
			desc.offset += int64(n)
			continue
		}
		sectorIndex := blockOffset / SectorSize
		sectorOffset := blockOffset % SectorSize
		for sectorIndex < SectorsPerBlock && remaining > 0 {
			sectorBuf, err := fs.blockSector(blockID, sectorIndex)
			if err != nil {
				return want - remaining, err
			}
			n := SectorSize - sectorOffset
			if n > remaining {
				n = remaining
			}
			copy(out[:n], sectorBuf[sectorOffset:sectorOffset+n])
			sectorIndex++
			sectorOffset = 0
			out = out[n:]
			remaining -= n
			desc.offset += int64(n)
		}
	}
	return want, nil
}

// Write copies len(buf) bytes to fd's current offset, growing the file and
// allocating blocks as needed, and advances the offset.
//
// Corrects the same inert mode-check bug as Read, requiring the write bit.
func (fs *Filesystem) Write(fd int, buf []byte) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkFD(fd); err != nil {
		return 0, err
	}
	desc := &fs.fds[fd]
	if desc.mode&OpenWriteOnly == 0 {
		return 0, ErrPermission
	}
	in, err := fs.getInode(desc.ino)
	if err != nil {
		return 0, err
	}
	if desc.offset+int64(len(buf)) > int64(in.Size) {
		in.Size = uint32(desc.offset + int64(len(buf)))
		if err := fs.putInode(desc.ino, in); err != nil {
			return 0, err
		}
	}

	remaining := len(buf)
	src := buf
	for remaining > 0 {
		blockIndex := int(desc.offset / BlockSize)
		blockOffset := int(desc.offset % BlockSize)
		blockID, err := fs.mapLogicalBlock(desc.ino, blockIndex, true)
		if err != nil {
			return len(buf) - remaining, err
		}
		sectorIndex := blockOffset / SectorSize
		sectorOffset := blockOffset % SectorSize
		for sectorIndex < SectorsPerBlock && remaining > 0 {
			sectorBuf, err := fs.blockSector(blockID, sectorIndex)
			if err != nil {
				return len(buf) - remaining, err
			}
			n := SectorSize - sectorOffset
			if n > remaining {
				n = remaining
			}
			copy(sectorBuf[sectorOffset:sectorOffset+n], src[:n])
			if err := fs.putBlockSector(blockID, sectorIndex); err != nil {
				return len(buf) - remaining, err
			}
			sectorIndex++
			sectorOffset = 0
			src = src[n:]
			remaining -= n
			desc.offset += int64(n)
		}
	}
	return len(buf), nil
}

// Close releases fd back to the free pool.
func (fs *Filesystem) Close(fd int) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkFD(fd); err != nil {
		return err
	}
	fs.fds[fd] = fileDescriptor{}
	return nil
}

// Lseek repositions fd's offset relative to whence and returns the new
// offset.
func (fs *Filesystem) Lseek(fd int, offset int64, whence Whence) (int64, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.checkFD(fd); err != nil {
		return -1, err
	}
	desc := &fs.fds[fd]
	in, err := fs.getInode(desc.ino)
	if err != nil {
		return -1, err
	}
	switch whence {
	case SeekSet:
		if offset < 0 {
			return -1, ErrNegativeOffset
		}
		desc.offset = offset
	case SeekCur:
		if desc.offset+offset < 0 {
			return -1, ErrNegativeOffset
		}
		desc.offset += offset
	case SeekEnd:
		if int64(in.Size)+offset < 0 {
			return -1, ErrNegativeOffset
		}
		desc.offset = int64(in.Size) + offset
	}
	return desc.offset, nil
}
