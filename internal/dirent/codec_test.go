package dirent_test

import (
	"testing"
	"time"

	"github.com/jrh327/sfs/internal/dirent"
	"github.com/jrh327/sfs/internal/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTripShortName(t *testing.T) {
	created := time.Date(2017, time.March, 25, 23, 54, 13, 750*int(time.Millisecond), time.UTC)
	modified := time.Date(2017, time.March, 26, 0, 3, 15, 230*int(time.Millisecond), time.UTC)

	e := dirent.Entry{
		Created:      created,
		Modified:     modified,
		FirstCluster: fat.Loc{FATNumber: 1, ClusterNumber: 3},
		FileLength:   123456,
		Name:         "filenametxt",
	}

	buf, err := dirent.Encode(e)
	require.NoError(t, err)
	assert.Len(t, buf, dirent.SlotSize)

	decoded, err := dirent.Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, e.FirstCluster, decoded.FirstCluster)
	assert.Equal(t, e.FileLength, decoded.FileLength)
	assert.Equal(t, e.Name, decoded.Name)
	assert.Equal(t, e.Created.Truncate(10*time.Millisecond), decoded.Created)
	assert.Equal(t, e.Modified.Truncate(10*time.Millisecond), decoded.Modified)
}

func TestShortFilenameHasNoContinuations(t *testing.T) {
	e := dirent.Entry{Name: "file.txt"}
	assert.EqualValues(t, 0, e.Continuations())
	buf, err := dirent.Encode(e)
	require.NoError(t, err)
	assert.Len(t, buf, dirent.SlotSize)

	decoded, err := dirent.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, "file.txt", decoded.Name)
}

func TestLongFilenameUsesContinuationsWithSequentialIndices(t *testing.T) {
	name := ""
	for i := 0; i < 66; i++ {
		name += "a"
	}
	e := dirent.Entry{Name: name}
	assert.EqualValues(t, 2, e.Continuations())

	buf, err := dirent.Encode(e)
	require.NoError(t, err)
	assert.Len(t, buf, dirent.SlotSize*3)

	assert.EqualValues(t, 1, buf[dirent.SlotSize]&0x7F)
	assert.EqualValues(t, 2, buf[dirent.SlotSize*2]&0x7F)

	decoded, err := dirent.Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, name, decoded.Name)
}

func TestBoundaryContinuationCounts(t *testing.T) {
	cases := []struct {
		length int
		want   uint8
	}{
		{11, 0},
		{12, 1},
		{42, 1},
		{43, 2},
		{1020, 33},
	}
	for _, c := range cases {
		name := make([]byte, c.length)
		for i := range name {
			name[i] = 'x'
		}
		e := dirent.Entry{Name: string(name)}
		assert.Equal(t, c.want, e.Continuations(), "length %d", c.length)
	}
}

func TestDecodeAllZeroSlotIsEndOfDirectory(t *testing.T) {
	buf := make([]byte, dirent.SlotSize)
	_, err := dirent.Decode(buf)
	assert.ErrorIs(t, err, dirent.ErrEndOfDirectory)
}

func TestValidateFilenameRejectsOversizeName(t *testing.T) {
	name := make([]byte, 1024)
	for i := range name {
		name[i] = 'a'
	}
	err := dirent.ValidateFilename(string(name))
	assert.Error(t, err)
}

func TestValidateFilenameAcceptsOrdinaryName(t *testing.T) {
	assert.NoError(t, dirent.ValidateFilename("test.txt"))
}
