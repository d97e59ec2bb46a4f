// Package cache implements GRFS's sector cache: a set-associative,
// LRU-replaced, write-back-or-write-through cache mapping disk sector
// identifiers to in-memory 4 KiB blocks.
//
// It is grounded directly on original_source/cache.c: the same address
// decomposition (offset/index/tag), the same MRU-head/LRU-tail chain per
// set, the same global buffer-pool exhaustion policy (evict from whichever
// set currently holds the longest chain), and the same superblock-pinning
// special case on eviction. The manual intrusive linked list of the C
// original is replaced with a plain MRU-ordered slice per set; with the
// pool capped at MaxResidentBlocks (512 blocks per set on average), slice
// insertion at the front is cheap enough not to need a pointer-chasing
// list structure.
package cache

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sdjil-gr/grfs/device"
)

const (
	// BlockSize is the cache's allocation granularity: one filesystem block.
	BlockSize = 4096
	// SectorsPerBlock is the number of device sectors per cached block.
	SectorsPerBlock = BlockSize / device.SectorSize

	offsetBits = 3
	indexBits  = 6

	// NumSets is the number of cache sets (lines), addressed by the middle
	// bits of a sector id.
	NumSets = 1 << indexBits

	offsetMask = (1 << offsetBits) - 1
	indexMask  = ((1 << indexBits) - 1) << offsetBits

	// MaxResidentBlocks bounds the total number of 4 KiB buffers the cache
	// will allocate across all sets: 128 MiB worth of blocks.
	MaxResidentBlocks = 128 * 1024 * 1024 / BlockSize
)

// Policy selects when dirty blocks reach the backing device.
type Policy int

const (
	// WriteBack defers writing dirty blocks until eviction or Flush.
	WriteBack Policy = iota
	// WriteThrough writes every dirty block to the device immediately.
	WriteThrough
)

func getOffset(sectorID uint32) uint32 { return sectorID & offsetMask }
func getIndex(sectorID uint32) uint32  { return (sectorID & indexMask) >> offsetBits }
func getTag(sectorID uint32) uint32    { return sectorID >> (offsetBits + indexBits) }

// blockSectorOf returns the sector id of the first sector of the block that
// contains sectorID.
func blockSectorOf(sectorID uint32) uint32 { return sectorID &^ offsetMask }

func sectorFromTagIndex(tag, index uint32) uint32 {
	return tag<<(indexBits+offsetBits) | index<<offsetBits
}

// block is one resident 4 KiB buffer.
type block struct {
	tag   uint32
	dirty bool
	data  []byte
}

// Cache is a 4 KiB-block, sector-addressed cache in front of a device.Device.
//
// It has no locking of its own: per spec, it is reached only while the
// filesystem's single mutex is held, so every method here assumes
// single-threaded access.
type Cache struct {
	dev    *device.Device
	policy Policy
	log    *logrus.Entry

	sets      [NumSets]*cacheSet
	freeSlots int

	// pinnedBlockSector is the block-aligned sector id of the block that
	// must not be evicted while any other candidate exists in its set (the
	// block holding the superblock).
	pinnedBlockSector uint32
}

// cacheSet is one associative set: an MRU-to-LRU chain of resident blocks.
// Chain length is not capped at a fixed way count (see DESIGN.md's
// resolution of the "variable-way" open question); it grows until the
// global buffer pool (MaxResidentBlocks) is exhausted.
type cacheSet struct {
	blocks []*block // index 0 = MRU, last = LRU
}

func (s *cacheSet) find(tag uint32) (*block, int) {
	for i, b := range s.blocks {
		if b.tag == tag {
			return b, i
		}
	}
	return nil, -1
}

func (s *cacheSet) floatToFront(i int) {
	if i == 0 {
		return
	}
	b := s.blocks[i]
	copy(s.blocks[1:i+1], s.blocks[0:i])
	s.blocks[0] = b
}

func (s *cacheSet) pushFront(b *block) {
	s.blocks = append([]*block{b}, s.blocks...)
}

func (s *cacheSet) removeLast() *block {
	n := len(s.blocks)
	b := s.blocks[n-1]
	s.blocks = s.blocks[:n-1]
	return b
}

// New creates a Cache backed by dev. pinnedBlockSector is the block-aligned
// sector id of the superblock's block; it is kept resident as long as its
// set holds any other candidate for eviction.
func New(dev *device.Device, policy Policy, pinnedBlockSector uint32, log *logrus.Entry) *Cache {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Cache{
		dev:               dev,
		policy:            policy,
		log:               log.WithField("component", "cache"),
		freeSlots:         MaxResidentBlocks,
		pinnedBlockSector: blockSectorOf(pinnedBlockSector),
	}
	for i := range c.sets {
		c.sets[i] = &cacheSet{}
	}
	return c
}

// ReadSector returns a borrowed view of the sector's bytes. On hit, the
// owning block floats to the MRU position. On miss, the owning block is
// loaded from the device with one 8-sector read.
//
// The returned slice aliases cache-owned memory: it is valid only until the
// next Cache operation that may evict the block backing it (any ReadSector,
// PutSector, or SetPolicy call). Callers must copy out what they need
// before making another cache call.
func (c *Cache) ReadSector(sectorID uint32) ([]byte, error) {
	if sectorID >= c.dev.TotalSectors() {
		return nil, fmt.Errorf("cache: sector %d out of range", sectorID)
	}
	index := getIndex(sectorID)
	tag := getTag(sectorID)
	set := c.sets[index]

	if b, i := set.find(tag); b != nil {
		set.floatToFront(i)
		return c.sectorView(b, sectorID), nil
	}

	b, err := c.acquireBlock()
	if err != nil {
		return nil, err
	}
	blockSector := blockSectorOf(sectorID)
	if err := c.dev.ReadSectors(b.data, SectorsPerBlock, blockSector); err != nil {
		return nil, fmt.Errorf("cache: fill block at sector %d: %w", blockSector, err)
	}
	b.tag = tag
	b.dirty = false
	set.pushFront(b)
	c.log.WithFields(logrus.Fields{"sector": sectorID, "set": index}).Debug("cache miss, loaded block")
	return c.sectorView(b, sectorID), nil
}

func (c *Cache) sectorView(b *block, sectorID uint32) []byte {
	off := int(getOffset(sectorID)) * device.SectorSize
	return b.data[off : off+device.SectorSize]
}

// acquireBlock returns a fresh block if the pool has room, else evicts the
// LRU tail of whichever set currently holds the longest chain.
func (c *Cache) acquireBlock() (*block, error) {
	if c.freeSlots > 0 {
		c.freeSlots--
		return &block{data: make([]byte, BlockSize)}, nil
	}
	return c.evictLRU()
}

func (c *Cache) evictLRU() (*block, error) {
	longest := c.sets[0]
	longestIndex := uint32(0)
	for i := uint32(1); i < NumSets; i++ {
		if len(c.sets[i].blocks) > len(longest.blocks) {
			longest = c.sets[i]
			longestIndex = i
		}
	}
	if len(longest.blocks) == 0 {
		return nil, fmt.Errorf("cache: no resident blocks to evict")
	}

	tail := longest.blocks[len(longest.blocks)-1]
	if sectorFromTagIndex(tail.tag, longestIndex) == c.pinnedBlockSector && len(longest.blocks) > 1 {
		// keep the superblock's block resident: promote it and evict the
		// block behind it instead.
		longest.floatToFront(len(longest.blocks) - 1)
		tail = longest.blocks[len(longest.blocks)-1]
	}

	victim := longest.removeLast()
	if victim.dirty {
		victimSector := sectorFromTagIndex(victim.tag, longestIndex)
		if err := c.dev.WriteSectors(victim.data, SectorsPerBlock, victimSector); err != nil {
			return nil, fmt.Errorf("cache: writeback evicted block at sector %d: %w", victimSector, err)
		}
		victim.dirty = false
	}
	return victim, nil
}

// PutSector marks the resident block backing sectorID dirty. Under
// WriteThrough policy it is written back immediately.
func (c *Cache) PutSector(sectorID uint32) error {
	if sectorID >= c.dev.TotalSectors() {
		return nil
	}
	index := getIndex(sectorID)
	tag := getTag(sectorID)
	b, _ := c.sets[index].find(tag)
	if b == nil {
		return fmt.Errorf("cache: put on non-resident sector %d", sectorID)
	}
	b.dirty = true
	if c.policy == WriteThrough {
		return c.writeBack(b, index)
	}
	return nil
}

func (c *Cache) writeBack(b *block, index uint32) error {
	if !b.dirty {
		return nil
	}
	sector := sectorFromTagIndex(b.tag, index)
	if err := c.dev.WriteSectors(b.data, SectorsPerBlock, sector); err != nil {
		return fmt.Errorf("cache: write back block at sector %d: %w", sector, err)
	}
	b.dirty = false
	return nil
}

// Flush writes back every dirty resident block and clears their dirty bits.
// It is a no-op under WriteThrough, since every put already reached disk.
func (c *Cache) Flush() error {
	if c.policy == WriteThrough {
		return nil
	}
	for i := uint32(0); i < NumSets; i++ {
		for _, b := range c.sets[i].blocks {
			if err := c.writeBack(b, i); err != nil {
				return err
			}
		}
	}
	c.log.Debug("flushed cache")
	return nil
}

// SetPolicy changes the write policy. Transitioning from WriteBack to
// WriteThrough performs a full Flush first.
func (c *Cache) SetPolicy(policy Policy) error {
	if c.policy == WriteBack && policy == WriteThrough {
		if err := c.Flush(); err != nil {
			return err
		}
	}
	c.policy = policy
	return nil
}

// Policy reports the cache's current write policy.
func (c *Cache) Policy() Policy {
	return c.policy
}

// DirtyCount reports the number of resident blocks currently marked dirty;
// exposed for tests verifying the "no block dirty after Flush" invariant.
func (c *Cache) DirtyCount() int {
	n := 0
	for i := range c.sets {
		for _, b := range c.sets[i].blocks {
			if b.dirty {
				n++
			}
		}
	}
	return n
}
