package grfs

import "encoding/binary"

// leByteOrder is the byte order used for every multi-byte on-disk field:
// block pointers, bitmap words, and everything else.
var leByteOrder = binary.LittleEndian

// bitsPerSector is the number of allocation units one bitmap sector tracks.
const bitsPerSector = SectorSize * 8

// allocBit scans the bitmap spanning [beginSector, beginSector+occupied)
// for the first zero bit below maxID, sets it, and returns its index.
//
// The original implementation addresses bits through 16-bit words (mask =
// 1<<(id%16) on a uint16 read from sector memory); on the little-endian
// storage this cache operates over, scanning byte-by-byte with mask =
// 1<<(id%8) visits bits in the exact same order and yields the identical
// first-free index, so the byte-oriented form here (matching the teacher
// repo's util/bitmap package) is not a behavior change.
func (fs *Filesystem) allocBit(beginSector, occupiedSectors, maxID uint32) (uint32, error) {
	id := uint32(0)
	for s := uint32(0); s < occupiedSectors && id < maxID; s++ {
		buf, err := fs.cache.ReadSector(beginSector + s)
		if err != nil {
			return 0, err
		}
		for byteIdx := 0; byteIdx < SectorSize && id < maxID; byteIdx++ {
			b := buf[byteIdx]
			for bit := 0; bit < 8 && id < maxID; bit++ {
				if b&(1<<bit) == 0 {
					buf[byteIdx] = b | (1 << bit)
					if err := fs.cache.PutSector(beginSector + s); err != nil {
						return 0, err
					}
					return id, nil
				}
				id++
			}
		}
	}
	return 0, ErrNoSpace
}

// clearBit clears bit id within the bitmap beginning at beginSector.
func (fs *Filesystem) clearBit(beginSector, id uint32) error {
	sector := beginSector + id/bitsPerSector
	bitInSector := id % bitsPerSector
	byteIdx := bitInSector / 8
	bit := bitInSector % 8
	buf, err := fs.cache.ReadSector(sector)
	if err != nil {
		return err
	}
	buf[byteIdx] &^= 1 << bit
	return fs.cache.PutSector(sector)
}
