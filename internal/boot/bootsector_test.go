package boot_test

import (
	"testing"

	"github.com/jrh327/sfs"
	"github.com/jrh327/sfs/internal/boot"
	"github.com/jrh327/sfs/internal/medium"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceBoundaryBehaviors(t *testing.T) {
	// (MEDIUM-1, 500, 128) -> (MEDIUM, 512, 64)
	fatSize, bps, spc := boot.Coerce(4095, 500, 128)
	assert.EqualValues(t, 4096, fatSize)
	assert.EqualValues(t, 512, bps)
	assert.EqualValues(t, 64, spc)

	// (MEDIUM, 544, 20) -> (MEDIUM, 512, 16)
	fatSize, bps, spc = boot.Coerce(4096, 544, 20)
	assert.EqualValues(t, 4096, fatSize)
	assert.EqualValues(t, 512, bps)
	assert.EqualValues(t, 16, spc)
}

func TestCoerceExactValuesPassThrough(t *testing.T) {
	fatSize, bps, spc := boot.Coerce(8192, 512, 64)
	assert.EqualValues(t, 8192, fatSize)
	assert.EqualValues(t, 512, bps)
	assert.EqualValues(t, 64, spc)
}

func TestCoerceZeroSectorsPerClusterBecomesOne(t *testing.T) {
	_, _, spc := boot.Coerce(2048, 512, 0)
	assert.EqualValues(t, 1, spc)
}

func TestFormatThenLoadRoundTripsGeometry(t *testing.T) {
	m := medium.NewBufferMedium(nil)

	g, err := boot.Format(m, 0, 4096, 512, 64)
	require.NoError(t, err)

	loaded, err := boot.Load(m, 0)
	require.NoError(t, err)
	assert.Equal(t, g, loaded)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	m := medium.NewBufferMedium(make([]byte, boot.Size))
	_, err := boot.Load(m, 0)
	assert.ErrorIs(t, err, sfs.ErrBadMagic)
}

func TestFormatAtNonZeroOffset(t *testing.T) {
	m := medium.NewBufferMedium(nil)

	g, err := boot.Format(m, 4096, 2048, 512, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4096, g.PartitionOffset)

	loaded, err := boot.Load(m, 4096)
	require.NoError(t, err)
	assert.Equal(t, g, loaded)
}
