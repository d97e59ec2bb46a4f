package grfs

import "encoding/binary"

// Inode is the on-disk metadata record for one file or directory: its mode,
// link count, size, and the block pointer tree reaching its data.
type Inode struct {
	Mode    Mode
	Nlinks  uint32
	Size    uint32
	Direct  [DirectBlocks]int32
	Ind1    int32
	Ind2    int32
	Ind3    int32
}

func (in *Inode) encode() []byte {
	buf := make([]byte, InodeSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(in.Mode))
	le.PutUint32(buf[4:], in.Nlinks)
	le.PutUint32(buf[8:], in.Size)
	for i, p := range in.Direct {
		le.PutUint32(buf[12+4*i:], uint32(p))
	}
	le.PutUint32(buf[52:], uint32(in.Ind1))
	le.PutUint32(buf[56:], uint32(in.Ind2))
	le.PutUint32(buf[60:], uint32(in.Ind3))
	return buf
}

func decodeInode(buf []byte) Inode {
	le := binary.LittleEndian
	var in Inode
	in.Mode = Mode(le.Uint32(buf[0:]))
	in.Nlinks = le.Uint32(buf[4:])
	in.Size = le.Uint32(buf[8:])
	for i := range in.Direct {
		in.Direct[i] = int32(le.Uint32(buf[12+4*i:]))
	}
	in.Ind1 = int32(le.Uint32(buf[52:]))
	in.Ind2 = int32(le.Uint32(buf[56:]))
	in.Ind3 = int32(le.Uint32(buf[60:]))
	return in
}

// inodeSector returns the sector holding ino's record, and its offset
// within that sector.
func (fs *Filesystem) inodeSector(ino uint32) (sector uint32, offset int) {
	sector = fs.sb.InodeTableBeginSector + ino/InodesInSector
	offset = int(ino%InodesInSector) * InodeSize
	return
}

// getInode reads ino's record from the inode table.
func (fs *Filesystem) getInode(ino uint32) (Inode, error) {
	if ino >= fs.sb.InodeMaxNum {
		return Inode{}, ErrCorrupt
	}
	sector, off := fs.inodeSector(ino)
	buf, err := fs.cache.ReadSector(sector)
	if err != nil {
		return Inode{}, err
	}
	return decodeInode(buf[off : off+InodeSize]), nil
}

// putInode writes in back to ino's record and marks the sector dirty.
func (fs *Filesystem) putInode(ino uint32, in Inode) error {
	if ino >= fs.sb.InodeMaxNum {
		return ErrCorrupt
	}
	sector, off := fs.inodeSector(ino)
	buf, err := fs.cache.ReadSector(sector)
	if err != nil {
		return err
	}
	copy(buf[off:off+InodeSize], in.encode())
	return fs.cache.PutSector(sector)
}

// initInode resets ino to an empty file or directory. When dir is true, a
// root dentry block is allocated and populated with "." and "..".
func (fs *Filesystem) initInode(parentIno, selfIno uint32, dir bool) error {
	in := Inode{Nlinks: 1}
	in.Mode = ModeRead | ModeWrite | ModeExec
	if dir {
		in.Mode |= ModeDir
	}
	for i := range in.Direct {
		in.Direct[i] = NoBlock
	}
	in.Ind1, in.Ind2, in.Ind3 = NoBlock, NoBlock, NoBlock

	if dir {
		in.Size = 2
		blockID, err := fs.allocBlock()
		if err != nil {
			return err
		}
		in.Direct[0] = int32(blockID)
		if err := fs.putInode(selfIno, in); err != nil {
			return err
		}
		for i := 0; i < SectorsPerBlock; i++ {
			buf, err := fs.blockSector(blockID, i)
			if err != nil {
				return err
			}
			initDentryArray(buf, parentIno, selfIno, i == 0)
			if err := fs.putBlockSector(blockID, i); err != nil {
				return err
			}
		}
		return nil
	}
	return fs.putInode(selfIno, in)
}

// allocInode reserves the first free slot in the inode bitmap.
func (fs *Filesystem) allocInode() (uint32, error) {
	if fs.sb.InodeNum >= fs.sb.InodeMaxNum {
		return 0, ErrNoSpace
	}
	ino, err := fs.allocBit(fs.sb.InodemapBeginSector, fs.sb.InodemapOccupiedSectors, fs.sb.InodeMaxNum)
	if err != nil {
		return 0, err
	}
	fs.sb.InodeNum++
	if err := fs.writeSuperblock(); err != nil {
		return 0, err
	}
	return ino, nil
}

// releaseInode frees every block ino reaches and clears its bitmap bit.
func (fs *Filesystem) releaseInode(ino uint32) error {
	if ino >= fs.sb.InodeMaxNum {
		return nil
	}
	in, err := fs.getInode(ino)
	if err != nil {
		return err
	}
	for i := range in.Direct {
		if err := fs.releaseBlockRecursive(in.Direct[i], 0); err != nil {
			return err
		}
		in.Direct[i] = NoBlock
	}
	if err := fs.releaseBlockRecursive(in.Ind1, 1); err != nil {
		return err
	}
	in.Ind1 = NoBlock
	if err := fs.releaseBlockRecursive(in.Ind2, 2); err != nil {
		return err
	}
	in.Ind2 = NoBlock
	if err := fs.releaseBlockRecursive(in.Ind3, 3); err != nil {
		return err
	}
	in.Ind3 = NoBlock
	if err := fs.putInode(ino, in); err != nil {
		return err
	}
	if err := fs.clearBit(fs.sb.InodemapBeginSector, ino); err != nil {
		return err
	}
	fs.sb.InodeNum--
	return fs.writeSuperblock()
}

// blockSector returns the sectorIndex-th sector (0..SectorsPerBlock-1) of
// blockID, relative to the data region.
func (fs *Filesystem) blockSector(blockID, sectorIndex int) ([]byte, error) {
	if blockID < 0 || uint32(blockID) >= fs.sb.BlockMaxNum || sectorIndex < 0 || sectorIndex >= SectorsPerBlock {
		return nil, ErrCorrupt
	}
	sector := fs.sb.BlockTableBeginSector + uint32(blockID)*SectorsPerBlock + uint32(sectorIndex)
	return fs.cache.ReadSector(sector)
}

func (fs *Filesystem) putBlockSector(blockID, sectorIndex int) error {
	sector := fs.sb.BlockTableBeginSector + uint32(blockID)*SectorsPerBlock + uint32(sectorIndex)
	return fs.cache.PutSector(sector)
}

// allocBlock reserves the first free bit in the block bitmap.
func (fs *Filesystem) allocBlock() (int, error) {
	if fs.sb.BlockNum >= fs.sb.BlockMaxNum {
		return 0, ErrNoSpace
	}
	id, err := fs.allocBit(fs.sb.BlockmapBeginSector, fs.sb.BlockmapOccupiedSectors, fs.sb.BlockMaxNum)
	if err != nil {
		return 0, err
	}
	fs.sb.BlockNum++
	if err := fs.writeSuperblock(); err != nil {
		return 0, err
	}
	return int(id), nil
}

func (fs *Filesystem) releaseBlock(blockID int) error {
	if blockID == NoBlock {
		return nil
	}
	if err := fs.clearBit(fs.sb.BlockmapBeginSector, uint32(blockID)); err != nil {
		return err
	}
	fs.sb.BlockNum--
	return fs.writeSuperblock()
}

// releaseBlockRecursive frees blockID and, if depth > 0, every block its
// indirect pointers reach at depth-1.
func (fs *Filesystem) releaseBlockRecursive(blockID int32, depth int) error {
	if blockID == NoBlock {
		return nil
	}
	if depth != 0 {
		for i := 0; i < SectorsPerBlock; i++ {
			buf, err := fs.blockSector(int(blockID), i)
			if err != nil {
				return err
			}
			ids := make([]int32, PointersPerBlock/SectorsPerBlock)
			le := leByteOrder
			for j := range ids {
				ids[j] = int32(le.Uint32(buf[j*4:]))
			}
			for j := range ids {
				if err := fs.releaseBlockRecursive(ids[j], depth-1); err != nil {
					return err
				}
				le.PutUint32(buf[j*4:], uint32(NoBlock))
			}
			if err := fs.putBlockSector(int(blockID), i); err != nil {
				return err
			}
		}
	}
	return fs.releaseBlock(int(blockID))
}

// allocIndirectBlock allocates a new indirect block and initializes every
// pointer slot it holds to NoBlock.
func (fs *Filesystem) allocIndirectBlock() (int32, error) {
	id, err := fs.allocBlock()
	if err != nil {
		return 0, err
	}
	for i := 0; i < SectorsPerBlock; i++ {
		buf, err := fs.blockSector(id, i)
		if err != nil {
			return 0, err
		}
		for j := 0; j < SectorSize; j += 4 {
			leByteOrder.PutUint32(buf[j:], uint32(NoBlock))
		}
		if err := fs.putBlockSector(id, i); err != nil {
			return 0, err
		}
	}
	return int32(id), nil
}

// pointerAt returns the pointer stored at slot index within indirect block
// blockID, and a setter to persist a new value into that slot.
func (fs *Filesystem) pointerAt(blockID int32, index int) (int32, func(int32) error, error) {
	slotsPerSector := SectorSize / 4
	sectorIdx := index / slotsPerSector
	off := (index % slotsPerSector) * 4
	buf, err := fs.blockSector(int(blockID), sectorIdx)
	if err != nil {
		return 0, nil, err
	}
	val := int32(leByteOrder.Uint32(buf[off:]))
	setter := func(v int32) error {
		buf, err := fs.blockSector(int(blockID), sectorIdx)
		if err != nil {
			return err
		}
		leByteOrder.PutUint32(buf[off:], uint32(v))
		return fs.putBlockSector(int(blockID), sectorIdx)
	}
	return val, setter, nil
}

// mapLogicalBlock resolves the blockIndex-th logical block of ino's data to
// a physical block id, walking the direct pointers and up to three levels
// of indirection. When alloc is true, absent blocks (and the indirect
// blocks needed to reach them) are allocated lazily; otherwise an absent
// block reports ErrNotFound.
func (fs *Filesystem) mapLogicalBlock(ino uint32, blockIndex int, alloc bool) (int, error) {
	in, err := fs.getInode(ino)
	if err != nil {
		return 0, err
	}

	if blockIndex < DirectBlocks {
		if in.Direct[blockIndex] == NoBlock {
			if !alloc {
				return 0, ErrNotFound
			}
			id, err := fs.allocBlock()
			if err != nil {
				return 0, err
			}
			in.Direct[blockIndex] = int32(id)
			if err := fs.putInode(ino, in); err != nil {
				return 0, err
			}
		}
		return int(in.Direct[blockIndex]), nil
	}

	return fs.mapIndirect(ino, &in, blockIndex-DirectBlocks, alloc)
}

// mapIndirect resolves a logical block index already reduced by the direct
// range, walking 1, 2, or 3 levels of indirection as needed.
func (fs *Filesystem) mapIndirect(ino uint32, in *Inode, index int, alloc bool) (int, error) {
	switch {
	case index < Indirect1Blocks:
		root, err := fs.ensureIndirectRoot(ino, in.Ind1, level1, alloc)
		if err != nil {
			return 0, err
		}
		return fs.resolveLevel(root, index, alloc)

	case index < Indirect1Blocks+Indirect2Blocks:
		index -= Indirect1Blocks
		root, err := fs.ensureIndirectRoot(ino, in.Ind2, level2, alloc)
		if err != nil {
			return 0, err
		}
		mid, err := fs.resolvePointerLevel(root, index/PointersPerBlock, alloc)
		if err != nil {
			return 0, err
		}
		return fs.resolveLevel(mid, index%PointersPerBlock, alloc)

	case index < Indirect1Blocks+Indirect2Blocks+Indirect3Blocks:
		index -= Indirect1Blocks + Indirect2Blocks
		root, err := fs.ensureIndirectRoot(ino, in.Ind3, level3, alloc)
		if err != nil {
			return 0, err
		}
		top, err := fs.resolvePointerLevel(root, index/Indirect2Blocks, alloc)
		if err != nil {
			return 0, err
		}
		index %= Indirect2Blocks
		mid, err := fs.resolvePointerLevel(top, index/PointersPerBlock, alloc)
		if err != nil {
			return 0, err
		}
		return fs.resolveLevel(mid, index%PointersPerBlock, alloc)
	}
	return 0, ErrNotFound
}

// indirectLevel identifies which of an inode's three root indirect
// pointers is being resolved, so ensureIndirectRoot can write the newly
// allocated block id back to the right field.
type indirectLevel int

const (
	level1 indirectLevel = iota
	level2
	level3
)

// ensureIndirectRoot returns ptr if it is already a valid block id, else
// allocates and initializes a fresh indirect block and persists it into
// ino's Ind1/Ind2/Ind3 field (selected by lvl).
func (fs *Filesystem) ensureIndirectRoot(ino uint32, ptr int32, lvl indirectLevel, alloc bool) (int32, error) {
	if ptr != NoBlock {
		return ptr, nil
	}
	if !alloc {
		return 0, ErrNotFound
	}
	id, err := fs.allocIndirectBlock()
	if err != nil {
		return 0, err
	}
	in, err := fs.getInode(ino)
	if err != nil {
		return 0, err
	}
	switch lvl {
	case level1:
		in.Ind1 = id
	case level2:
		in.Ind2 = id
	case level3:
		in.Ind3 = id
	}
	if err := fs.putInode(ino, in); err != nil {
		return 0, err
	}
	return id, nil
}

// resolvePointerLevel reads slot index of indirect block root, allocating
// and initializing a new indirect block there if absent and alloc is set.
func (fs *Filesystem) resolvePointerLevel(root int32, index int, alloc bool) (int32, error) {
	val, setter, err := fs.pointerAt(root, index)
	if err != nil {
		return 0, err
	}
	if val != NoBlock {
		return val, nil
	}
	if !alloc {
		return 0, ErrNotFound
	}
	id, err := fs.allocIndirectBlock()
	if err != nil {
		return 0, err
	}
	if err := setter(id); err != nil {
		return 0, err
	}
	return id, nil
}

// resolveLevel reads slot index of a leaf indirect block, allocating a data
// block there if absent and alloc is set.
func (fs *Filesystem) resolveLevel(root int32, index int, alloc bool) (int, error) {
	val, setter, err := fs.pointerAt(root, index)
	if err != nil {
		return 0, err
	}
	if val != NoBlock {
		return int(val), nil
	}
	if !alloc {
		return 0, ErrNotFound
	}
	id, err := fs.allocBlock()
	if err != nil {
		return 0, err
	}
	if err := setter(int32(id)); err != nil {
		return 0, err
	}
	return id, nil
}
