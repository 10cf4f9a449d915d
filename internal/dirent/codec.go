// Package dirent implements the 32-byte directory-entry codec and the
// directory engine built on top of it (spec.md §4.7, §4.8). A long filename
// spills into continuation slots immediately following the primary slot;
// this file is the codec half — pure byte<->struct conversion with no disk
// I/O. internal/dirent's engine half (engine.go) drives the chain walk.
package dirent

import (
	"errors"
	"time"

	"github.com/jrh327/sfs/internal/bytecodec"
	"github.com/jrh327/sfs/internal/fat"
	"github.com/jrh327/sfs/internal/sfserr"
	"github.com/noxer/bytewriter"
)

// SlotSize is the fixed length of one directory slot, primary or
// continuation.
const SlotSize = 32

const (
	reservedDeletedBit   = 0x80
	reservedTombstoneBit = 0x40
	reservedIndexMask    = 0x7F

	attrDirectory = 0x01
	attrReadOnly  = 0x02
	attrHidden    = 0x04

	firstChunkBytes      = 11
	continuationChunkBytes = 31

	maxFilenameBytes     = 1024
	maxFilenameCodePoints = 256
)

// ErrEndOfDirectory is returned by Decode when the slot it was given is an
// all-zero primary slot: the logical end of a directory's used entries
// (spec.md §4.7). It is a control-flow signal, not a failure, the same way
// io.EOF is.
var ErrEndOfDirectory = errors.New("dirent: end of directory")

// Entry is the decoded, disk-independent view of one directory entry
// (primary slot plus however many continuation slots its filename needs).
type Entry struct {
	Deleted     bool
	IsDirectory bool
	ReadOnly    bool
	Hidden      bool
	Created     time.Time
	Modified    time.Time
	FirstCluster fat.Loc
	FileLength  uint32
	Name        string
}

// Continuations returns how many continuation slots Name needs, per
// spec.md §4.7/§8: 0 for names <= 11 bytes, otherwise
// ceil((len(name)-11) / 31).
func (e Entry) Continuations() uint8 {
	return continuationsForLength(len(e.Name))
}

// Size returns the total on-disk size of e: SlotSize * (1 + continuations).
func (e Entry) Size() int {
	return SlotSize * (1 + int(e.Continuations()))
}

func continuationsForLength(n int) uint8 {
	if n <= firstChunkBytes {
		return 0
	}
	return uint8((n - firstChunkBytes + continuationChunkBytes - 1) / continuationChunkBytes)
}

// CountCodePoints counts UTF-8 code points in b by counting bytes whose top
// two bits are not 0b10 (i.e. every leading byte, skipping continuation
// bytes), per spec.md §4.7's validation algorithm.
func CountCodePoints(b []byte) int {
	count := 0
	for _, c := range b {
		if c&0xC0 != 0x80 {
			count++
		}
	}
	return count
}

// ValidateFilename rejects names spec.md §4.7 considers invalid: >= 256
// code points, or >= 1024 bytes.
func ValidateFilename(name string) error {
	nameBytes := []byte(name)
	if len(nameBytes) >= maxFilenameBytes {
		return sfserr.ErrInvalidArgument.WithMessage("filename exceeds 1024 bytes")
	}
	if CountCodePoints(nameBytes) >= maxFilenameCodePoints {
		return sfserr.ErrInvalidArgument.WithMessage("filename exceeds 256 code points")
	}
	return nil
}

func encodeDate(t time.Time) uint16 {
	month := uint16(t.Month()) & 0xF
	day := uint16(t.Day()) & 0x1F
	year := uint16(t.Year()-2000) & 0x7F
	return (month << 12) | (day << 7) | year
}

func decodeDateParts(v uint16) (month, day, year int) {
	month = int((v >> 12) & 0xF)
	day = int((v >> 7) & 0x1F)
	year = int(v&0x7F) + 2000
	return
}

// encodeTime packs hour:5, minute:6, second:6, milli/10:7 into 3 bytes,
// quantizing milliseconds down to the nearest 10ms (spec.md §9 notes the
// field can represent up to 1270ms but this encoder, like the original,
// never produces values above 990ms).
func encodeTime(t time.Time) [3]byte {
	hour := uint32(t.Hour()) & 0x1F
	minute := uint32(t.Minute()) & 0x3F
	second := uint32(t.Second()) & 0x3F
	milliTens := uint32(t.Nanosecond()/1e6/10) & 0x7F

	value := (hour << 19) | (minute << 13) | (second << 7) | milliTens
	return [3]byte{byte(value >> 16), byte(value >> 8), byte(value)}
}

func decodeTimeParts(b [3]byte) (hour, minute, second, milli int) {
	value := uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
	hour = int((value >> 19) & 0x1F)
	minute = int((value >> 13) & 0x3F)
	second = int((value >> 7) & 0x3F)
	milli = int(value&0x7F) * 10
	return
}

func assembleTimestamp(dateField uint16, timeField [3]byte) time.Time {
	month, day, year := decodeDateParts(dateField)
	hour, minute, second, milli := decodeTimeParts(timeField)
	return time.Date(year, time.Month(month), day, hour, minute, second, milli*int(time.Millisecond), time.UTC)
}

// IsZeroSlot reports whether a 32-byte slot is entirely zero.
func IsZeroSlot(slot []byte) bool {
	for _, b := range slot {
		if b != 0 {
			return false
		}
	}
	return true
}

// PeekHeader inspects a single 32-byte slot without requiring its
// continuations, so the directory engine can decide how many more slots to
// fetch before calling Decode.
//
// Three outcomes distinguish spec.md §9's reconciliation of "all-zero slot
// = end of directory" with hard_delete zeroing a non-trailing slot:
//   - zero=true: the slot is genuinely all 32 bytes zero — the real
//     end-of-directory sentinel.
//   - tombstone=true: the slot is a hard-deleted tombstone (every byte
//     zero except the reservedTombstoneBit, and usually reservedDeletedBit
//     alongside it, in byte 0) — one physical slot of a hard-deleted
//     entry, consumed and skipped one at a time rather than as an
//     N+1-slot run, since hard_delete stamps the bits independently onto
//     every slot it zeroes.
//   - otherwise: a live or soft-deleted primary slot; continuations and
//     deleted are meaningful.
func PeekHeader(primary []byte) (deleted bool, tombstone bool, continuations uint8, zero bool) {
	if IsZeroSlot(primary) {
		return false, false, 0, true
	}
	if primary[0]&reservedTombstoneBit != 0 && IsZeroSlot(primary[1:]) {
		return false, true, 0, false
	}
	deleted = primary[0]&reservedDeletedBit != 0
	continuations = primary[20]
	return deleted, false, continuations, false
}

// Encode renders e into a SlotSize*(1+continuations)-byte buffer: the
// primary slot followed by one 32-byte continuation per §4.7. It does not
// call ValidateFilename itself; callers validate before allocating on-disk
// space (spec.md §7: "filename validation failures ... do not mutate
// on-disk state").
func Encode(e Entry) ([]byte, error) {
	nameBytes := []byte(e.Name)
	continuations := continuationsForLength(len(nameBytes))
	buf := make([]byte, SlotSize*(1+int(continuations)))
	w := bytewriter.New(buf)

	var reserved byte
	if e.Deleted {
		reserved = reservedDeletedBit
	}

	var attrs byte
	if e.IsDirectory {
		attrs |= attrDirectory
	}
	if e.ReadOnly {
		attrs |= attrReadOnly
	}
	if e.Hidden {
		attrs |= attrHidden
	}

	primary := make([]byte, SlotSize)
	primary[0] = reserved
	primary[1] = attrs
	bytecodec.PutU16(primary, encodeDate(e.Created), 2)
	createdTime := encodeTime(e.Created)
	copy(primary[4:7], createdTime[:])
	bytecodec.PutU16(primary, encodeDate(e.Modified), 7)
	modifiedTime := encodeTime(e.Modified)
	copy(primary[9:12], modifiedTime[:])
	bytecodec.PutU16(primary, e.FirstCluster.FATNumber, 12)
	bytecodec.PutU16(primary, e.FirstCluster.ClusterNumber, 14)
	bytecodec.PutU32(primary, e.FileLength, 16)
	primary[20] = continuations

	firstChunk := firstChunkBytes
	if len(nameBytes) < firstChunk {
		firstChunk = len(nameBytes)
	}
	copy(primary[21:21+firstChunk], nameBytes[:firstChunk])

	if _, err := w.Write(primary); err != nil {
		return nil, err
	}

	pos := firstChunk
	for k := 1; k <= int(continuations); k++ {
		slot := make([]byte, SlotSize)
		slot[0] = byte(k)&reservedIndexMask | reserved
		chunk := continuationChunkBytes
		if len(nameBytes)-pos < chunk {
			chunk = len(nameBytes) - pos
		}
		copy(slot[1:1+chunk], nameBytes[pos:pos+chunk])
		pos += chunk
		if _, err := w.Write(slot); err != nil {
			return nil, err
		}
	}

	return buf, nil
}

// Decode parses buf — exactly SlotSize*(1+N) bytes, where N is the
// continuation count recovered from the primary slot — back into an Entry.
// Returns ErrEndOfDirectory if the primary slot is all-zero.
func Decode(buf []byte) (Entry, error) {
	if len(buf) < SlotSize {
		return Entry{}, sfserr.ErrCorruption.WithMessage("directory slot shorter than 32 bytes")
	}
	primary := buf[:SlotSize]
	if IsZeroSlot(primary) {
		return Entry{}, ErrEndOfDirectory
	}

	continuations := primary[20]
	want := SlotSize * (1 + int(continuations))
	if len(buf) != want {
		return Entry{}, sfserr.ErrCorruption.WithMessage("continuation-count mismatch decoding directory entry")
	}

	e := Entry{
		Deleted:     primary[0]&reservedDeletedBit != 0,
		IsDirectory: primary[1]&attrDirectory != 0,
		ReadOnly:    primary[1]&attrReadOnly != 0,
		Hidden:      primary[1]&attrHidden != 0,
	}
	e.Created = assembleTimestamp(bytecodec.GetU16(primary, 2), [3]byte{primary[4], primary[5], primary[6]})
	e.Modified = assembleTimestamp(bytecodec.GetU16(primary, 7), [3]byte{primary[9], primary[10], primary[11]})
	e.FirstCluster = fat.Loc{
		FATNumber:     bytecodec.GetU16(primary, 12),
		ClusterNumber: bytecodec.GetU16(primary, 14),
	}
	e.FileLength = bytecodec.GetU32(primary, 16)

	nameBuf := make([]byte, 0, firstChunkBytes+int(continuations)*continuationChunkBytes)
	nameBuf = append(nameBuf, primary[21:32]...)
	for k := 1; k <= int(continuations); k++ {
		slot := buf[SlotSize*k : SlotSize*(k+1)]
		nameBuf = append(nameBuf, slot[1:32]...)
	}

	end := len(nameBuf)
	for i, b := range nameBuf {
		if b == 0 {
			end = i
			break
		}
	}
	e.Name = string(nameBuf[:end])

	return e, nil
}
