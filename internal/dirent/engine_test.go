package dirent_test

import (
	"testing"
	"time"

	"github.com/jrh327/sfs/internal/boot"
	"github.com/jrh327/sfs/internal/cryptoseam"
	"github.com/jrh327/sfs/internal/dirent"
	"github.com/jrh327/sfs/internal/fat"
	"github.com/jrh327/sfs/internal/medium"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDirEngine(t *testing.T) (*dirent.Engine, *fat.Engine, fat.Loc) {
	t.Helper()
	m := medium.NewBufferMedium(nil)
	g, err := boot.Format(m, 0, 2048, 512, 1)
	require.NoError(t, err)
	fe, err := fat.Initialize(m, cryptoseam.IdentityEncryptor{}, nil, g)
	require.NoError(t, err)
	de := dirent.NewEngine(m, cryptoseam.IdentityEncryptor{}, nil, fe, g)
	return de, fe, fat.Loc{FATNumber: 0, ClusterNumber: 0}
}

func fixedEntry(name string) dirent.Entry {
	now := time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)
	return dirent.Entry{
		Created:  now,
		Modified: now,
		Name:     name,
	}
}

func TestWriteEntryThenListFindsIt(t *testing.T) {
	de, _, root := newDirEngine(t)

	_, err := de.WriteEntry(root, fixedEntry("file.txt"))
	require.NoError(t, err)

	entries, err := de.List(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file.txt", entries[0].Name)
}

func TestWriteEntryAllocatesNewClusterWhenFull(t *testing.T) {
	de, fe, root := newDirEngine(t)

	g := fe.Geometry()
	slotsPerCluster := int(g.ClusterSize()) / dirent.SlotSize

	// Fill the root's first cluster exactly, then write one more: this
	// must cross into a freshly allocated cluster.
	for i := 0; i < slotsPerCluster; i++ {
		_, err := de.WriteEntry(root, fixedEntry("a"))
		require.NoError(t, err)
	}
	_, err := de.WriteEntry(root, fixedEntry("overflow"))
	require.NoError(t, err)

	entries, err := de.List(root)
	require.NoError(t, err)
	assert.Len(t, entries, slotsPerCluster+1)
	assert.Equal(t, "overflow", entries[len(entries)-1].Name)
}

func TestSoftDeleteThenUndeleteRoundTrips(t *testing.T) {
	de, _, root := newDirEngine(t)

	slot, err := de.WriteEntry(root, fixedEntry("a.txt"))
	require.NoError(t, err)

	require.NoError(t, de.SoftDelete(root, slot))
	entries, err := de.List(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, de.Undelete(root, slot))
	entries, err = de.List(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
}

func TestHardDeleteRemovesEntryWithoutStoppingScanEarly(t *testing.T) {
	de, _, root := newDirEngine(t)

	slotA, err := de.WriteEntry(root, fixedEntry("a.txt"))
	require.NoError(t, err)
	_, err = de.WriteEntry(root, fixedEntry("b.txt"))
	require.NoError(t, err)

	require.NoError(t, de.HardDelete(root, slotA))

	entries, err := de.List(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "b.txt", entries[0].Name)
}

func TestRenameInPlaceKeepsSameSlot(t *testing.T) {
	de, _, root := newDirEngine(t)

	slot, err := de.WriteEntry(root, fixedEntry("old.txt"))
	require.NoError(t, err)

	newSlot, err := de.Rename(root, slot, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, slot, newSlot)

	entries, err := de.List(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new.txt", entries[0].Name)
}

func TestRenameToLongerNameRelocates(t *testing.T) {
	de, _, root := newDirEngine(t)

	slot, err := de.WriteEntry(root, fixedEntry("short"))
	require.NoError(t, err)

	longName := ""
	for i := 0; i < 60; i++ {
		longName += "z"
	}
	newSlot, err := de.Rename(root, slot, longName)
	require.NoError(t, err)

	entries, err := de.List(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, longName, entries[0].Name)
	_ = newSlot
}

func TestMoveWritesNewParentBeforeRemovingFromOld(t *testing.T) {
	de, fe, root := newDirEngine(t)

	slot, err := de.WriteEntry(root, fixedEntry("moveme.txt"))
	require.NoError(t, err)
	entry, _, err := de.Find(root, "moveme.txt")
	require.NoError(t, err)

	g := fe.Geometry()
	newParentHead, _, err := fe.AllocateFile(uint64(g.ClusterSize()))
	require.NoError(t, err)

	newSlot, err := de.Move(root, slot, newParentHead, entry)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, newSlot, 0)

	oldListing, err := de.List(root)
	require.NoError(t, err)
	assert.Empty(t, oldListing)

	newListing, err := de.List(newParentHead)
	require.NoError(t, err)
	require.Len(t, newListing, 1)
	assert.Equal(t, "moveme.txt", newListing[0].Name)
}
