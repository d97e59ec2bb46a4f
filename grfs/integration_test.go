package grfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdjil-gr/grfs/backend/memory"
)

// This file runs the six end-to-end scenarios, one test each, every test
// against its own fresh in-memory image, calling the Filesystem methods
// that the matching cmd/grfsh commands use.

func TestScenarioMkfsTwiceReportsExists(t *testing.T) {
	storage := memory.New(ImageSize)
	fs, err := Mkfs(storage, Options{})
	require.NoError(t, err)
	require.NoError(t, fs.Close())

	fs2, err := Mount(storage, Options{})
	require.NoError(t, err)
	_, err = Mkfs(storage, Options{})
	require.ErrorIs(t, err, ErrExists)
	require.NoError(t, fs2.Close())
}

func TestScenarioMkdirTouchEchoCat(t *testing.T) {
	storage := memory.New(ImageSize)
	fs, err := Mkfs(storage, Options{})
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.Mkdir("a"))
	require.NoError(t, fs.Cd("a"))

	fd, err := fs.Open("hi", OpenReadWrite, "scenario")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("hello \n"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	fd, err = fs.Open("hi", OpenReadOnly, "scenario")
	require.NoError(t, err)
	buf := make([]byte, 7)
	n, err := fs.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, "hello \n", string(buf[:n]))
	require.NoError(t, fs.Close(fd))
}

func TestScenarioLinkSurvivesUnlink(t *testing.T) {
	storage := memory.New(ImageSize)
	fs, err := Mkfs(storage, Options{})
	require.NoError(t, err)
	defer fs.Close()

	fd, err := fs.Open("f", OpenReadWrite, "scenario")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("content"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	require.NoError(t, fs.Ln("f", "g"))
	require.NoError(t, fs.Rmnod("f"))

	fd, err = fs.Open("g", OpenReadOnly, "scenario")
	require.NoError(t, err)
	buf := make([]byte, 7)
	n, err := fs.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, "content", string(buf[:n]))
	require.NoError(t, fs.Close(fd))
}

func TestScenarioRmdirRefusesNonEmptyThenSucceeds(t *testing.T) {
	storage := memory.New(ImageSize)
	fs, err := Mkfs(storage, Options{})
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.Mkdir("d"))
	require.NoError(t, fs.Cd("d"))
	fd, err := fs.Open("x", OpenReadWrite, "scenario")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))
	require.NoError(t, fs.Cd(".."))

	require.ErrorIs(t, fs.Rmdir("d"), ErrNotEmpty)

	require.NoError(t, fs.Rmnod("d/x"))
	require.NoError(t, fs.Rmdir("d"))
}

func TestScenarioWriteSpansIndirectBlockAcrossManyAppends(t *testing.T) {
	storage := memory.New(ImageSize)
	fs, err := Mkfs(storage, Options{})
	require.NoError(t, err)
	defer fs.Close()

	fd, err := fs.Open("big", OpenReadWrite, "scenario")
	require.NoError(t, err)

	chunk := make([]byte, 50)
	for i := range chunk {
		chunk[i] = byte('a' + i%26)
	}
	var total int
	for i := 0; i < 1025; i++ {
		_, err := fs.Lseek(fd, 0, SeekEnd)
		require.NoError(t, err)
		n, err := fs.Write(fd, chunk)
		require.NoError(t, err)
		total += n
	}
	require.Greater(t, total, DirectBlocks*BlockSize)
	require.NoError(t, fs.Close(fd))

	fd, err = fs.Open("big", OpenReadOnly, "scenario")
	require.NoError(t, err)
	buf := make([]byte, total)
	n, err := fs.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, total, n)
	require.NoError(t, fs.Close(fd))
}

func TestScenarioLinkOverExistingDirectoryNameFails(t *testing.T) {
	storage := memory.New(ImageSize)
	fs, err := Mkfs(storage, Options{})
	require.NoError(t, err)
	defer fs.Close()

	fd, err := fs.Open("existing_file", OpenReadWrite, "scenario")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))
	require.NoError(t, fs.Mkdir("d"))

	// "d" already names a directory entry at the destination; Ln must
	// refuse rather than silently placing the link inside it.
	err = fs.Ln("existing_file", "d")
	require.ErrorIs(t, err, ErrExistsEntry)
}
