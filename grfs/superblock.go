package grfs

import "encoding/binary"

// Superblock describes the on-disk layout of a GRFS image. It is stored in
// sector 0, whose cached block is skipped by eviction as long as its cache
// set holds another candidate; callers obtain a decoded copy with readSuperblock and persist
// mutations with writeSuperblock.
type Superblock struct {
	Magic        uint32
	BeginSector  uint32
	SelfSector   uint32
	TotalSectors uint32
	RootIno      uint32
	Name         [32]byte

	InodemapBeginSector      uint32
	InodemapOccupiedSectors  uint32
	BlockmapBeginSector      uint32
	BlockmapOccupiedSectors  uint32
	InodeTableBeginSector    uint32
	InodeTableOccupiedSectors uint32
	InodeSize                uint32
	InodeNum                 uint32
	InodeMaxNum              uint32

	DentrySize uint32

	BlockTableBeginSector     uint32
	BlockTableOccupiedSectors uint32
	BlockSize                 uint32
	BlockNum                  uint32
	BlockMaxNum               uint32

	// VolumeUUID identifies this image instance; not present in the source
	// format, added so tooling can tell two GRFS images apart without
	// reading their whole contents.
	VolumeUUID [16]byte
}

func (sb *Superblock) encode() []byte {
	buf := make([]byte, SectorSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:], sb.Magic)
	le.PutUint32(buf[4:], sb.BeginSector)
	le.PutUint32(buf[8:], sb.SelfSector)
	le.PutUint32(buf[12:], sb.TotalSectors)
	le.PutUint32(buf[16:], sb.RootIno)
	copy(buf[20:52], sb.Name[:])

	le.PutUint32(buf[52:], sb.InodemapBeginSector)
	le.PutUint32(buf[56:], sb.InodemapOccupiedSectors)
	le.PutUint32(buf[60:], sb.BlockmapBeginSector)
	le.PutUint32(buf[64:], sb.BlockmapOccupiedSectors)
	le.PutUint32(buf[68:], sb.InodeTableBeginSector)
	le.PutUint32(buf[72:], sb.InodeTableOccupiedSectors)
	le.PutUint32(buf[76:], sb.InodeSize)
	le.PutUint32(buf[80:], sb.InodeNum)
	le.PutUint32(buf[84:], sb.InodeMaxNum)

	le.PutUint32(buf[88:], sb.DentrySize)

	le.PutUint32(buf[92:], sb.BlockTableBeginSector)
	le.PutUint32(buf[96:], sb.BlockTableOccupiedSectors)
	le.PutUint32(buf[100:], sb.BlockSize)
	le.PutUint32(buf[104:], sb.BlockNum)
	le.PutUint32(buf[108:], sb.BlockMaxNum)

	copy(buf[112:128], sb.VolumeUUID[:])
	return buf
}

func decodeSuperblock(buf []byte) Superblock {
	le := binary.LittleEndian
	var sb Superblock
	sb.Magic = le.Uint32(buf[0:])
	sb.BeginSector = le.Uint32(buf[4:])
	sb.SelfSector = le.Uint32(buf[8:])
	sb.TotalSectors = le.Uint32(buf[12:])
	sb.RootIno = le.Uint32(buf[16:])
	copy(sb.Name[:], buf[20:52])

	sb.InodemapBeginSector = le.Uint32(buf[52:])
	sb.InodemapOccupiedSectors = le.Uint32(buf[56:])
	sb.BlockmapBeginSector = le.Uint32(buf[60:])
	sb.BlockmapOccupiedSectors = le.Uint32(buf[64:])
	sb.InodeTableBeginSector = le.Uint32(buf[68:])
	sb.InodeTableOccupiedSectors = le.Uint32(buf[72:])
	sb.InodeSize = le.Uint32(buf[76:])
	sb.InodeNum = le.Uint32(buf[80:])
	sb.InodeMaxNum = le.Uint32(buf[84:])

	sb.DentrySize = le.Uint32(buf[88:])

	sb.BlockTableBeginSector = le.Uint32(buf[92:])
	sb.BlockTableOccupiedSectors = le.Uint32(buf[96:])
	sb.BlockSize = le.Uint32(buf[100:])
	sb.BlockNum = le.Uint32(buf[104:])
	sb.BlockMaxNum = le.Uint32(buf[108:])

	copy(sb.VolumeUUID[:], buf[112:128])
	return sb
}
