// Package device provides sector-granular read/write primitives against a
// backend.Storage, the thin adapter between the filesystem's sector cache
// and the raw backing image.
//
// It mirrors original_source/io.c's bios_sd_read/bios_sd_write: every
// request is expressed in fixed 512-byte sectors, and a request that falls
// outside the device is rejected with an error before any I/O is done.
package device

import (
	"fmt"

	"github.com/sdjil-gr/grfs/backend"
)

// SectorSize is the fixed size, in bytes, of one device sector.
const SectorSize = 512

// Device is a sector-addressed view over a backend.Storage.
type Device struct {
	storage      backend.Storage
	writable     backend.WritableFile
	totalSectors uint32
}

// New wraps storage as a Device with the given total sector count. storage
// must be open for both reading and writing.
func New(storage backend.Storage, totalSectors uint32) (*Device, error) {
	w, err := storage.Writable()
	if err != nil {
		return nil, fmt.Errorf("device requires a writable backend: %w", err)
	}
	return &Device{storage: storage, writable: w, totalSectors: totalSectors}, nil
}

// TotalSectors reports the capacity of the device, in sectors.
func (d *Device) TotalSectors() uint32 {
	return d.totalSectors
}

// ReadSectors reads nSectors sectors starting at startSector into buf, which
// must be exactly nSectors*SectorSize bytes long.
func (d *Device) ReadSectors(buf []byte, nSectors, startSector uint32) error {
	if err := d.checkBounds(nSectors, startSector); err != nil {
		return err
	}
	if len(buf) != int(nSectors)*SectorSize {
		return fmt.Errorf("device: buffer length %d does not match %d sectors", len(buf), nSectors)
	}
	n, err := d.storage.ReadAt(buf, int64(startSector)*SectorSize)
	if err != nil {
		return fmt.Errorf("device: read at sector %d: %w", startSector, err)
	}
	if n != len(buf) {
		return fmt.Errorf("device: short read at sector %d: got %d of %d bytes", startSector, n, len(buf))
	}
	return nil
}

// WriteSectors writes nSectors sectors from buf to startSector.
func (d *Device) WriteSectors(buf []byte, nSectors, startSector uint32) error {
	if err := d.checkBounds(nSectors, startSector); err != nil {
		return err
	}
	if len(buf) != int(nSectors)*SectorSize {
		return fmt.Errorf("device: buffer length %d does not match %d sectors", len(buf), nSectors)
	}
	n, err := d.writable.WriteAt(buf, int64(startSector)*SectorSize)
	if err != nil {
		return fmt.Errorf("device: write at sector %d: %w", startSector, err)
	}
	if n != len(buf) {
		return fmt.Errorf("device: short write at sector %d: wrote %d of %d bytes", startSector, n, len(buf))
	}
	return nil
}

func (d *Device) checkBounds(nSectors, startSector uint32) error {
	if startSector >= d.totalSectors {
		return fmt.Errorf("device: start sector %d out of range (total %d)", startSector, d.totalSectors)
	}
	if startSector+nSectors > d.totalSectors {
		return fmt.Errorf("device: request [%d,%d) exceeds device of %d sectors", startSector, startSector+nSectors, d.totalSectors)
	}
	return nil
}

// Close releases the underlying storage.
func (d *Device) Close() error {
	return d.storage.Close()
}
