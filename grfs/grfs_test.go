package grfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sdjil-gr/grfs/backend/memory"
)

func newTestFS(t *testing.T) *Filesystem {
	t.Helper()
	storage := memory.New(ImageSize)
	fs, err := Mkfs(storage, Options{})
	require.NoError(t, err)
	return fs
}

func TestMkfsThenMountSeesSameRoot(t *testing.T) {
	storage := memory.New(ImageSize)
	fs, err := Mkfs(storage, Options{})
	require.NoError(t, err)
	root := fs.sb.RootIno
	require.NoError(t, fs.Close())

	mounted, err := Mount(storage, Options{})
	require.NoError(t, err)
	require.Equal(t, root, mounted.sb.RootIno)

	_, err = Mkfs(storage, Options{})
	require.ErrorIs(t, err, ErrExists)
}

func TestMountRefusesUnformattedImage(t *testing.T) {
	storage := memory.New(ImageSize)
	_, err := Mount(storage, Options{})
	require.ErrorIs(t, err, ErrNoFilesystem)
}

func TestMkdirLsRmdir(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("a"))
	require.NoError(t, fs.Mkdir("a/b"))
	require.Error(t, fs.Mkdir("a")) // already exists

	entries, err := fs.Ls("", 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a", entries[0].Name)

	require.ErrorIs(t, fs.Rmdir("a"), ErrNotEmpty)
	require.NoError(t, fs.Rmdir("a/b"))
	require.NoError(t, fs.Rmdir("a"))

	entries, err = fs.Ls("", 0)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCdAndPwd(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("a"))
	require.NoError(t, fs.Mkdir("a/b"))
	require.NoError(t, fs.Cd("a/b"))
	pwd, err := fs.Pwd()
	require.NoError(t, err)
	require.Equal(t, "/a/b", pwd)

	require.NoError(t, fs.Cd(".."))
	pwd, err = fs.Pwd()
	require.NoError(t, err)
	require.Equal(t, "/a", pwd)
}

func TestOpenWriteReadRoundtrip(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open("hello.txt", OpenReadWrite, "test")
	require.NoError(t, err)

	msg := []byte("hello, grfs filesystem")
	n, err := fs.Write(fd, msg)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)

	_, err = fs.Lseek(fd, 0, SeekSet)
	require.NoError(t, err)

	buf := make([]byte, len(msg))
	n, err = fs.Read(fd, buf)
	require.NoError(t, err)
	require.Equal(t, len(msg), n)
	require.Equal(t, msg, buf)

	require.NoError(t, fs.Close(fd))
	require.ErrorIs(t, fs.Close(fd), ErrBadFD)
}

func TestReadRespectsOpenMode(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open("wo.txt", OpenWriteOnly, "test")
	require.NoError(t, err)
	_, err = fs.Read(fd, make([]byte, 4))
	require.ErrorIs(t, err, ErrPermission)
	require.NoError(t, fs.Close(fd))

	fd, err = fs.Open("ro.txt", OpenReadOnly, "test")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("x"))
	require.ErrorIs(t, err, ErrPermission)
}

func TestReapByOwnerClosesOnlyMatchingDescriptors(t *testing.T) {
	fs := newTestFS(t)
	fdA1, err := fs.Open("a1.txt", OpenReadWrite, "owner-a")
	require.NoError(t, err)
	fdA2, err := fs.Open("a2.txt", OpenReadWrite, "owner-a")
	require.NoError(t, err)
	fdB, err := fs.Open("b.txt", OpenReadWrite, "owner-b")
	require.NoError(t, err)

	fs.ReapByOwner("owner-a")

	require.ErrorIs(t, fs.Close(fdA1), ErrBadFD)
	require.ErrorIs(t, fs.Close(fdA2), ErrBadFD)
	require.NoError(t, fs.Close(fdB))
}

func TestLargeWriteSpansIndirectBlocks(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open("big.bin", OpenReadWrite, "test")
	require.NoError(t, err)

	size := BlockSize*DirectBlocks + BlockSize*3
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	n, err := fs.Write(fd, data)
	require.NoError(t, err)
	require.Equal(t, size, n)

	_, err = fs.Lseek(fd, 0, SeekSet)
	require.NoError(t, err)
	got := make([]byte, size)
	n, err = fs.Read(fd, got)
	require.NoError(t, err)
	require.Equal(t, size, n)
	require.Equal(t, data, got)
}

func TestLnCreatesHardLink(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open("orig.txt", OpenReadWrite, "test")
	require.NoError(t, err)
	_, err = fs.Write(fd, []byte("shared"))
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	require.NoError(t, fs.Ln("orig.txt", "alias.txt"))

	fd2, err := fs.Open("alias.txt", OpenReadOnly, "test")
	require.NoError(t, err)
	buf := make([]byte, 6)
	_, err = fs.Read(fd2, buf)
	require.NoError(t, err)
	require.Equal(t, "shared", string(buf))

	require.NoError(t, fs.Rmnod("orig.txt"))
	fd3, err := fs.Open("alias.txt", OpenReadOnly, "test")
	require.NoError(t, err)
	_, err = fs.Read(fd3, buf)
	require.NoError(t, err)
	require.Equal(t, "shared", string(buf))
}

// TestLnRefusesZombieInode exercises addFile's link branch directly: a
// released inode (Nlinks == 0) can no longer be reached by path, since its
// last directory entry is cleared the moment its link count hits zero, so
// this reaches into the package to construct the condition by hand.
func TestLnRefusesZombieInode(t *testing.T) {
	fs := newTestFS(t)
	fd, err := fs.Open("orig.txt", OpenReadWrite, "test")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	ino, err := fs.parentInoToChildIno(fs.curIno, "orig.txt")
	require.NoError(t, err)
	in, err := fs.getInode(ino)
	require.NoError(t, err)
	in.Nlinks = 0
	require.NoError(t, fs.putInode(ino, in))

	_, err = fs.addFile(fs.curIno, "alias.txt", &ino)
	require.ErrorIs(t, err, ErrZombieLink)
}

func TestRmdirRefusesRootAndCwd(t *testing.T) {
	fs := newTestFS(t)
	require.ErrorIs(t, fs.Rmdir("/."), ErrIsRoot)
	require.NoError(t, fs.Mkdir("a"))
	require.NoError(t, fs.Cd("a"))
	require.ErrorIs(t, fs.Rmdir("../a"), ErrIsRoot)
}

func TestFindReportsKind(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("d"))
	fd, err := fs.Open("f", OpenReadWrite, "test")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	kind, err := fs.Find("d")
	require.NoError(t, err)
	require.Equal(t, KindDir, kind)

	kind, err = fs.Find("f")
	require.NoError(t, err)
	require.Equal(t, KindFile, kind)

	kind, err = fs.Find("missing")
	require.NoError(t, err)
	require.Equal(t, KindNone, kind)
}

func TestCheckReportsCleanFilesystem(t *testing.T) {
	fs := newTestFS(t)
	require.NoError(t, fs.Mkdir("a"))
	fd, err := fs.Open("a/f", OpenReadWrite, "test")
	require.NoError(t, err)
	require.NoError(t, fs.Close(fd))

	report, err := fs.Check()
	require.NoError(t, err)
	require.True(t, report.OK(), "%v", report.Findings)
}

func TestFormatSize(t *testing.T) {
	require.Equal(t, "   0 ", formatSize(0))
	require.Equal(t, "   4K", formatSize(4096))
}
