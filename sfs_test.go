package sfs_test

import (
	"testing"

	"github.com/jrh327/sfs"
	"github.com/jrh327/sfs/internal/medium"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateFileThenReadReturnsExactBytes(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fs, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	data := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")
	root := fs.GetRoot()
	f, err := fs.CreateFile(root, "test.txt", data)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), f.Entry.FileLength)

	h := fs.Open(f)
	_, err = h.Seek(0, sfs.SeekSet)
	require.NoError(t, err)

	buf := make([]byte, len(data))
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestCreateFileRejectsDuplicateName(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fs, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fs.GetRoot()
	_, err = fs.CreateFile(root, "dup.txt", []byte("a"))
	require.NoError(t, err)

	_, err = fs.CreateFile(root, "dup.txt", []byte("b"))
	assert.ErrorIs(t, err, sfs.ErrExists)
}

func TestListDirectoryAfterCreateFindsShortName(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fsys, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fsys.GetRoot()
	_, err = fsys.CreateFile(root, "file.txt", []byte("hello"))
	require.NoError(t, err)

	listing, err := fsys.ListDirectory(root)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, "file.txt", listing[0].Name())
	assert.EqualValues(t, 0, listing[0].Entry.Continuations())
}

func TestSoftDeleteThenUndeleteStillReadable(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fsys, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fsys.GetRoot()
	data := []byte("round-trip-me")
	f, err := fsys.CreateFile(root, "a.txt", data)
	require.NoError(t, err)

	require.NoError(t, fsys.SoftDelete(f))
	listing, err := fsys.ListDirectory(root)
	require.NoError(t, err)
	assert.Empty(t, listing)

	require.NoError(t, fsys.Undelete(f))
	listing, err = fsys.ListDirectory(root)
	require.NoError(t, err)
	require.Len(t, listing, 1)

	h := fsys.Open(listing[0])
	buf := make([]byte, len(data))
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestRenameUpdatesListingName(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fsys, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fsys.GetRoot()
	f, err := fsys.CreateFile(root, "old.txt", []byte("x"))
	require.NoError(t, err)

	renamed, err := fsys.Rename(f, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, "new.txt", renamed.Name())

	listing, err := fsys.ListDirectory(root)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, "new.txt", listing[0].Name())
}

func TestMoveFileRelocatesBetweenDirectories(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fsys, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fsys.GetRoot()
	data := []byte("payload")
	f, err := fsys.CreateFile(root, "move.txt", data)
	require.NoError(t, err)

	otherDir, err := fsys.CreateFile(root, "sub", nil)
	require.NoError(t, err)
	otherDir.Entry.IsDirectory = true

	moved, err := fsys.MoveFile(f, otherDir)
	require.NoError(t, err)

	rootListing, err := fsys.ListDirectory(root)
	require.NoError(t, err)
	for _, e := range rootListing {
		assert.NotEqual(t, "move.txt", e.Name())
	}

	subListing, err := fsys.ListDirectory(otherDir)
	require.NoError(t, err)
	require.Len(t, subListing, 1)
	assert.Equal(t, "move.txt", subListing[0].Name())

	h := fsys.Open(moved)
	buf := make([]byte, len(data))
	n, err := h.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, buf)
}

func TestWriteAfterCreateGrowsLengthAndPersists(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fsys, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fsys.GetRoot()
	f, err := fsys.CreateFile(root, "grow.txt", []byte("abc"))
	require.NoError(t, err)

	h := fsys.Open(f)
	_, err = h.Seek(0, sfs.SeekEnd)
	require.NoError(t, err)
	_, err = h.Write([]byte("def"))
	require.NoError(t, err)

	listing, err := fsys.ListDirectory(root)
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.EqualValues(t, 6, listing[0].Entry.FileLength)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	m := medium.NewBufferMedium(make([]byte, 512))
	_, err := sfs.Load(m)
	assert.ErrorIs(t, err, sfs.ErrBadMagic)
}

func TestFormatThenLoadRoundTripsListing(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fsys, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fsys.GetRoot()
	_, err = fsys.CreateFile(root, "persisted.txt", []byte("data"))
	require.NoError(t, err)

	reloaded, err := sfs.Load(m)
	require.NoError(t, err)

	listing, err := reloaded.ListDirectory(reloaded.GetRoot())
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, "persisted.txt", listing[0].Name())
}

func TestHardDeleteRemovesEntryAndReclaimsChain(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fsys, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fsys.GetRoot()
	freeBefore, _, _, _ := fsys.DescribeFilesystem()

	f, err := fsys.CreateFile(root, "gone.txt", make([]byte, 600))
	require.NoError(t, err)

	freeAfterCreate, _, _, _ := fsys.DescribeFilesystem()
	assert.Less(t, freeAfterCreate, freeBefore)

	require.NoError(t, fsys.HardDelete(f))

	listing, err := fsys.ListDirectory(root)
	require.NoError(t, err)
	assert.Empty(t, listing)

	freeAfterDelete, _, _, _ := fsys.DescribeFilesystem()
	assert.Equal(t, freeBefore, freeAfterDelete)
}

func TestDescribeFilesystemReportsUsage(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	fsys, err := sfs.FormatNew(m, 2048, 512, 1)
	require.NoError(t, err)

	root := fsys.GetRoot()
	_, err = fsys.CreateFile(root, "a.bin", make([]byte, 600))
	require.NoError(t, err)

	free, used, humanFree, humanUsed := fsys.DescribeFilesystem()
	assert.Greater(t, free, uint64(0))
	assert.Greater(t, used, uint64(0))
	assert.NotEmpty(t, humanFree)
	assert.NotEmpty(t, humanUsed)
}
