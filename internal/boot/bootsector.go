// Package boot formats, validates, reads and writes the 512-byte boot
// sector: the filesystem's magic and its immutable geometry (spec.md §3,
// §4.4).
package boot

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"
	"github.com/go-restruct/restruct"
	"github.com/jrh327/sfs/internal/sfserr"
	"github.com/jrh327/sfs/internal/medium"
	"github.com/noxer/bytewriter"
)

// Size is the fixed length of the boot sector, in bytes.
const Size = 512

// Magic is the 8-byte signature written at the start of every SFS image.
// Only the first three bytes ('S', 'F', 'S') are checked on Load, matching
// spec.md §4.4's "verify magic (first three bytes 'S','F','S')".
const Magic = "SFS v1.0"

const (
	fatSizeSmall  = 2048
	fatSizeMedium = 4096
	fatSizeLarge  = 8192

	minBytesPerSector = 512
	maxBytesPerSector = 32768
	maxBytesPerCluster = 32768
	maxSectorsPerCluster = 128
)

// Geometry is the filesystem's immutable shape, fixed at format time
// (spec.md §3).
type Geometry struct {
	PartitionOffset   uint64
	EntriesPerFAT     uint16
	BytesPerSector    uint16
	SectorsPerCluster uint8
}

// ClusterSize returns bytes_per_sector × sectors_per_cluster.
func (g Geometry) ClusterSize() uint32 {
	return uint32(g.BytesPerSector) * uint32(g.SectorsPerCluster)
}

// FATSize returns entries_per_fat × 4, the byte size of one FAT table.
func (g Geometry) FATSize() uint32 {
	return uint32(g.EntriesPerFAT) * 4
}

// DataBlockSize returns the size of one FAT immediately followed by its
// entries_per_fat clusters.
func (g Geometry) DataBlockSize() uint64 {
	return uint64(g.FATSize()) + uint64(g.EntriesPerFAT)*uint64(g.ClusterSize())
}

// highestSetBit returns the largest power of two <= v, or 0 if v is 0.
func highestSetBit(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	bit := uint32(1) << 31
	for bit&v == 0 {
		bit >>= 1
	}
	return bit
}

// Coerce implements spec.md §4.4 steps (1)-(3): snapping caller-supplied
// geometry parameters to the nearest legal value. It's exposed standalone
// (not just folded into Format) because spec.md §8 treats coercion as an
// independently testable property.
func Coerce(fatSize uint16, bytesPerSector uint16, sectorsPerCluster uint8) (uint16, uint16, uint8) {
	switch fatSize {
	case fatSizeSmall, fatSizeMedium, fatSizeLarge:
		// already legal
	default:
		fatSize = fatSizeMedium
	}

	var bps uint16
	if bytesPerSector < minBytesPerSector {
		bps = minBytesPerSector
	} else {
		bps = uint16(highestSetBit(uint32(bytesPerSector)))
		if uint32(bps) > maxBytesPerSector {
			bps = maxBytesPerSector
		}
	}

	var spc uint8
	if uint32(sectorsPerCluster)*uint32(bps) > maxBytesPerCluster {
		spc = uint8(maxBytesPerCluster / uint32(bps))
	} else if sectorsPerCluster == 0 {
		spc = 1
	} else {
		spc = uint8(highestSetBit(uint32(sectorsPerCluster)))
		if uint32(spc) > maxSectorsPerCluster {
			spc = maxSectorsPerCluster
		}
	}

	return fatSize, bps, spc
}

// packedFields is the flat, non-bitfield portion of the boot sector: the
// magic and the four geometry scalars. restruct.Pack/Unpack handle this
// declaratively; the bitfield-heavy directory entry (spec.md §4.7) is
// packed by hand in internal/dirent instead, since restruct has no support
// for sub-byte bitfields.
type packedFields struct {
	Magic             [8]byte
	PartitionOffset   uint64
	EntriesPerFAT     uint16
	BytesPerSector    uint16
	SectorsPerCluster uint8
}

// packedSize is the on-disk size of packedFields: 8 (magic) + 8 + 2 + 2 + 1.
const packedSize = 21

// Encode renders a Geometry into a Size-byte boot sector image.
func Encode(g Geometry) ([]byte, error) {
	fields := packedFields{
		PartitionOffset:   g.PartitionOffset,
		EntriesPerFAT:     g.EntriesPerFAT,
		BytesPerSector:    g.BytesPerSector,
		SectorsPerCluster: g.SectorsPerCluster,
	}
	copy(fields.Magic[:], Magic)

	packed, err := restruct.Pack(binary.BigEndian, &fields)
	if err != nil {
		return nil, log.Wrap(err)
	}

	buf := make([]byte, Size)
	w := bytewriter.New(buf)
	if _, err := w.Write(packed); err != nil {
		return nil, log.Wrap(err)
	}
	return buf, nil
}

// Decode parses a Size-byte boot sector image back into a Geometry. It does
// not itself validate the magic; callers that need the BadMagic check use
// Load instead, which validates before decoding the rest.
func Decode(buf []byte) (Geometry, error) {
	var fields packedFields
	if err := restruct.Unpack(buf[:packedSize], binary.BigEndian, &fields); err != nil {
		return Geometry{}, log.Wrap(err)
	}
	return Geometry{
		PartitionOffset:   fields.PartitionOffset,
		EntriesPerFAT:     fields.EntriesPerFAT,
		BytesPerSector:    fields.BytesPerSector,
		SectorsPerCluster: fields.SectorsPerCluster,
	}, nil
}

// Format coerces the requested parameters, writes the boot sector at
// offset, and returns the resulting Geometry. It does not write the first
// FAT or reserve the root directory's cluster; that's the FAT engine's job
// once it exists (internal/fat.Initialize), since spec.md §4.4 step 4 spans
// both components.
func Format(m medium.Medium, offset uint64, fatSize uint16, bytesPerSector uint16, sectorsPerCluster uint8) (Geometry, error) {
	fatSize, bps, spc := Coerce(fatSize, bytesPerSector, sectorsPerCluster)
	g := Geometry{
		PartitionOffset:   offset,
		EntriesPerFAT:     fatSize,
		BytesPerSector:    bps,
		SectorsPerCluster: spc,
	}

	buf, err := Encode(g)
	if err != nil {
		return Geometry{}, err
	}

	if _, err := m.Seek(int64(offset), medium.SeekSet); err != nil {
		return Geometry{}, sfserr.ErrIO.Wrap(err)
	}
	if _, err := m.Write(buf); err != nil {
		return Geometry{}, sfserr.ErrIO.WithMessage(
			fmt.Sprintf("writing %s boot sector at offset %d: %s", humanize.Bytes(uint64(Size)), offset, err.Error()))
	}

	return g, nil
}

// Load reads and validates the boot sector at offset (symmetric with
// Format's offset argument): the header occupies [offset, offset+Size) of
// m, and the partition_offset value recovered from it is the same bias the
// FAT and cluster-address formulas add on top of it (spec.md §3's "Cluster
// address" formula). Callers that don't know the offset in advance (the
// common case: a dedicated image file with the filesystem starting at byte
// zero) pass 0.
func Load(m medium.Medium, offset uint64) (Geometry, error) {
	if _, err := m.Seek(int64(offset), medium.SeekSet); err != nil {
		return Geometry{}, sfserr.ErrIO.Wrap(err)
	}

	buf := make([]byte, Size)
	if _, err := readFull(m, buf); err != nil {
		return Geometry{}, err
	}

	if !bytes.Equal(buf[:3], []byte{'S', 'F', 'S'}) {
		return Geometry{}, sfserr.ErrBadMagic
	}

	return Decode(buf)
}

func readFull(m medium.Medium, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := m.Read(buf[total:])
		total += n
		if n == 0 && err != nil {
			return total, sfserr.ErrShortRead.Wrap(err)
		}
		if n == 0 && err == nil {
			return total, sfserr.ErrShortRead
		}
	}
	return total, nil
}
