package clusterio_test

import (
	"testing"

	"github.com/jrh327/sfs/internal/clusterio"
	"github.com/jrh327/sfs/internal/cryptoseam"
	"github.com/jrh327/sfs/internal/medium"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newZeroed(size int) *medium.BufferMedium {
	return medium.NewBufferMedium(make([]byte, size))
}

func TestWriteRangeThenReadRangeAlignedBlocks(t *testing.T) {
	m := newZeroed(64)
	s := clusterio.New(m, cryptoseam.IdentityEncryptor{}, nil)

	data := []byte("0123456789abcdef0123456789ABCDEF")[:32]
	_, err := m.Seek(0, medium.SeekSet)
	require.NoError(t, err)
	n, err := s.WriteRange(data)
	require.NoError(t, err)
	assert.Equal(t, 32, n)

	_, err = m.Seek(0, medium.SeekSet)
	require.NoError(t, err)
	buf := make([]byte, 32)
	n, err = s.ReadRange(buf)
	require.NoError(t, err)
	assert.Equal(t, 32, n)
	assert.Equal(t, data, buf)
}

func TestWriteRangeUnalignedHeadAndTail(t *testing.T) {
	m := newZeroed(64)
	s := clusterio.New(m, cryptoseam.IdentityEncryptor{}, nil)

	// Seed the whole region with a recognizable pattern first.
	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i)
	}
	_, err := m.Seek(0, medium.SeekSet)
	require.NoError(t, err)
	_, err = s.WriteRange(seed)
	require.NoError(t, err)

	// Now overwrite 10 bytes starting at offset 5, crossing the first
	// block boundary (16) but not landing on one.
	patch := []byte("XXXXXXXXXX")
	_, err = m.Seek(5, medium.SeekSet)
	require.NoError(t, err)
	n, err := s.WriteRange(patch)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = m.Seek(0, medium.SeekSet)
	require.NoError(t, err)
	got := make([]byte, 64)
	_, err = s.ReadRange(got)
	require.NoError(t, err)

	want := make([]byte, 64)
	copy(want, seed)
	copy(want[5:15], patch)
	assert.Equal(t, want, got)
}

func TestReadRangeUnalignedSpanningMultipleBlocks(t *testing.T) {
	m := newZeroed(64)
	s := clusterio.New(m, cryptoseam.IdentityEncryptor{}, nil)

	seed := make([]byte, 64)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	_, err := m.Seek(0, medium.SeekSet)
	require.NoError(t, err)
	_, err = s.WriteRange(seed)
	require.NoError(t, err)

	_, err = m.Seek(3, medium.SeekSet)
	require.NoError(t, err)
	got := make([]byte, 40)
	n, err := s.ReadRange(got)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, seed[3:43], got)
}
