package medium_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/jrh327/sfs/internal/medium"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferMediumWriteReadRoundTrip(t *testing.T) {
	m := medium.NewBufferMedium(nil)

	n, err := m.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	_, err = m.Seek(0, medium.SeekSet)
	require.NoError(t, err)

	buf := make([]byte, 11)
	n, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 11, n)
	assert.Equal(t, "hello world", string(buf))
}

func TestBufferMediumGrowsOnSeekPastEnd(t *testing.T) {
	m := medium.NewBufferMedium(nil)

	_, err := m.Seek(100, medium.SeekSet)
	require.NoError(t, err)

	n, err := m.Write([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 101, len(m.Bytes()))
}

func TestBufferMediumTruncateShrinks(t *testing.T) {
	m := medium.NewBufferMedium([]byte("0123456789"))
	require.NoError(t, m.Truncate(4))
	assert.Equal(t, []byte("0123"), m.Bytes())
}

func TestBufferMediumNegativeSeekFails(t *testing.T) {
	m := medium.NewBufferMedium(nil)
	_, err := m.Seek(-1, medium.SeekSet)
	assert.ErrorContains(t, err, "invalid argument")
}

func TestAferoMediumRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	f, err := fs.Create("/image.sfs")
	require.NoError(t, err)

	m := medium.NewAferoMedium(f)
	_, err = m.Write([]byte("afero backed"))
	require.NoError(t, err)

	_, err = m.Seek(0, medium.SeekSet)
	require.NoError(t, err)

	buf := make([]byte, len("afero backed"))
	_, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "afero backed", string(buf))
	require.NoError(t, m.Close())
}

func TestOSMediumRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.sfs")
	f, err := os.Create(path)
	require.NoError(t, err)

	m := medium.NewOSMedium(f)
	_, err = m.Write([]byte("os backed"))
	require.NoError(t, err)

	_, err = m.Seek(0, medium.SeekSet)
	require.NoError(t, err)

	buf := make([]byte, len("os backed"))
	_, err = m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "os backed", string(buf))
	require.NoError(t, m.Close())
}

func TestOSMediumSeekOnClosedFileSurfacesIOError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.sfs")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	m := medium.NewOSMedium(f)
	_, err = m.Seek(0, medium.SeekSet)
	assert.ErrorContains(t, err, "I/O error")
}

func TestMockMediumShortReadSurfacesEOF(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mock := medium.NewMockMedium(ctrl)
	mock.EXPECT().Read(gomock.Any()).Return(0, io.EOF)

	buf := make([]byte, 4)
	n, err := mock.Read(buf)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)
}
