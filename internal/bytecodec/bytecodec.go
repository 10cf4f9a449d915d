// Package bytecodec provides endian-aware fixed-width integer pack/unpack
// helpers. On-disk layout is always big-endian regardless of host
// endianness, matching the teacher's convention of treating wire format as
// an explicit concern rather than relying on host byte order.
package bytecodec

import (
	"encoding/binary"
	"io"

	"github.com/jrh327/sfs/internal/sfserr"
)

// GetU16 reads a big-endian uint16 out of buf at pos. Panics if pos+2 is out
// of range: a caller passing a bad offset is a programmer error, not an
// environmental failure.
func GetU16(buf []byte, pos int) uint16 {
	return binary.BigEndian.Uint16(buf[pos : pos+2])
}

// GetU32 reads a big-endian uint32 out of buf at pos.
func GetU32(buf []byte, pos int) uint32 {
	return binary.BigEndian.Uint32(buf[pos : pos+4])
}

// GetU64 reads a big-endian uint64 out of buf at pos.
func GetU64(buf []byte, pos int) uint64 {
	return binary.BigEndian.Uint64(buf[pos : pos+8])
}

// PutU16 writes val into buf at pos, big-endian.
func PutU16(buf []byte, val uint16, pos int) {
	binary.BigEndian.PutUint16(buf[pos:pos+2], val)
}

// PutU32 writes val into buf at pos, big-endian.
func PutU32(buf []byte, val uint32, pos int) {
	binary.BigEndian.PutUint32(buf[pos:pos+4], val)
}

// PutU64 writes val into buf at pos, big-endian.
func PutU64(buf []byte, val uint64, pos int) {
	binary.BigEndian.PutUint64(buf[pos:pos+8], val)
}

// reader is the subset of medium.Medium that read-from-handle helpers need.
// Defined locally (instead of importing internal/medium) so bytecodec has no
// dependency on the medium package's implementations, matching the leaf
// position bytecodec occupies in the dependency order of spec.md §2.
type reader interface {
	Read(buf []byte) (int, error)
}

func readFull(r reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read := 0
	for read < n {
		count, err := r.Read(buf[read:])
		read += count
		if count == 0 && err != nil {
			if err == io.EOF {
				return nil, sfserr.ErrShortRead.Wrap(io.ErrUnexpectedEOF)
			}
			return nil, sfserr.ErrIO.Wrap(err)
		}
		if count == 0 && err == nil {
			return nil, sfserr.ErrShortRead
		}
	}
	return buf, nil
}

// ReadU8 reads one byte from r.
func ReadU8(r reader) (uint8, error) {
	buf, err := readFull(r, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadU16 reads two bytes from r and assembles them big-endian.
func ReadU16(r reader) (uint16, error) {
	buf, err := readFull(r, 2)
	if err != nil {
		return 0, err
	}
	return GetU16(buf, 0), nil
}

// ReadU32 reads four bytes from r and assembles them big-endian.
func ReadU32(r reader) (uint32, error) {
	buf, err := readFull(r, 4)
	if err != nil {
		return 0, err
	}
	return GetU32(buf, 0), nil
}

// ReadU64 reads eight bytes from r and assembles them big-endian.
func ReadU64(r reader) (uint64, error) {
	buf, err := readFull(r, 8)
	if err != nil {
		return 0, err
	}
	return GetU64(buf, 0), nil
}
