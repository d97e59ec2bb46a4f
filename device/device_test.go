package device_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdjil-gr/grfs/backend/memory"
	"github.com/sdjil-gr/grfs/device"
)

func TestReadWriteSectorsRoundtrip(t *testing.T) {
	storage := memory.New(64 * device.SectorSize)
	dev, err := device.New(storage, 64)
	require.NoError(t, err)

	data := make([]byte, 4*device.SectorSize)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, dev.WriteSectors(data, 4, 10))

	got := make([]byte, 4*device.SectorSize)
	require.NoError(t, dev.ReadSectors(got, 4, 10))
	require.Equal(t, data, got)
}

func TestOutOfRangeRequestsFail(t *testing.T) {
	storage := memory.New(8 * device.SectorSize)
	dev, err := device.New(storage, 8)
	require.NoError(t, err)

	buf := make([]byte, device.SectorSize)
	require.Error(t, dev.ReadSectors(buf, 1, 8))
	require.Error(t, dev.WriteSectors(buf, 2, 7))
}
