package dirent

import (
	"errors"

	"github.com/jrh327/sfs/internal/boot"
	"github.com/jrh327/sfs/internal/clusterio"
	"github.com/jrh327/sfs/internal/cryptoseam"
	"github.com/jrh327/sfs/internal/fat"
	"github.com/jrh327/sfs/internal/medium"
	"github.com/jrh327/sfs/internal/sfserr"
)

// errChainEnd is an internal sentinel distinguishing "the FAT chain
// doesn't reach this slot yet" from a slot that exists but decodes to
// ErrEndOfDirectory. Callers outside this package never see it.
var errChainEnd = errors.New("dirent: fat chain does not reach this slot")

// Engine drives a directory's content: a sequence of 32-byte slots stored
// across the clusters of the directory's own FAT chain (spec.md §4.8).
type Engine struct {
	fe     *fat.Engine
	stream *clusterio.Stream
	m      medium.Medium
	geo    boot.Geometry
}

// NewEngine builds a directory engine over an already-initialized FAT
// engine fe, sharing its medium and crypto seam.
func NewEngine(m medium.Medium, enc cryptoseam.Encryptor, key cryptoseam.Key, fe *fat.Engine, geo boot.Geometry) *Engine {
	return &Engine{
		fe:     fe,
		stream: clusterio.New(m, enc, key),
		m:      m,
		geo:    geo,
	}
}

func (e *Engine) slotsPerCluster() int {
	return int(e.geo.ClusterSize()) / SlotSize
}

// clusterForSlot resolves the slot-th 32-byte slot of the directory rooted
// at head to a (cluster location, byte offset within that cluster). When
// allocate is true and the chain doesn't reach that far yet, it extends the
// chain with fresh zero-filled clusters (spec.md §4.8's "allocate one
// first"); otherwise it returns errChainEnd.
func (e *Engine) clusterForSlot(head fat.Loc, slot int, allocate bool) (fat.Loc, int, error) {
	spc := e.slotsPerCluster()
	clusterIdx := slot / spc
	offset := (slot % spc) * SlotSize

	cur := head
	for i := 0; i < clusterIdx; i++ {
		next, err := e.fe.ReadEntry(cur)
		if err != nil {
			return fat.Loc{}, 0, err
		}
		if next == fat.EndOfChain {
			if !allocate {
				return fat.Loc{}, 0, errChainEnd
			}
			next, err = e.fe.AllocateCluster(cur)
			if err != nil {
				return fat.Loc{}, 0, err
			}
		}
		cur = next
	}
	return cur, offset, nil
}

func (e *Engine) readSlot(head fat.Loc, slot int) ([]byte, error) {
	loc, offset, err := e.clusterForSlot(head, slot, false)
	if err == errChainEnd {
		return nil, ErrEndOfDirectory
	}
	if err != nil {
		return nil, err
	}
	if _, err := e.m.Seek(e.fe.ClusterOffset(loc)+int64(offset), medium.SeekSet); err != nil {
		return nil, sfserr.ErrIO.Wrap(err)
	}
	buf := make([]byte, SlotSize)
	if _, err := e.stream.ReadRange(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (e *Engine) writeSlot(head fat.Loc, slot int, data []byte) error {
	loc, offset, err := e.clusterForSlot(head, slot, true)
	if err != nil {
		return err
	}
	if _, err := e.m.Seek(e.fe.ClusterOffset(loc)+int64(offset), medium.SeekSet); err != nil {
		return sfserr.ErrIO.Wrap(err)
	}
	_, err = e.stream.WriteRange(data)
	return err
}

// decodeAt decodes the entry (if any) whose primary slot is at slot,
// returning the number of slots it occupies. Returns ErrEndOfDirectory at
// the genuine end of the directory, or errTombstoneSlot for a single
// hard-deleted tombstone slot (the caller advances by 1 and keeps going).
func (e *Engine) decodeAt(head fat.Loc, slot int) (Entry, int, error) {
	primary, err := e.readSlot(head, slot)
	if err != nil {
		return Entry{}, 0, err
	}

	deleted, tombstone, continuations, zero := PeekHeader(primary)
	if zero {
		return Entry{}, 0, ErrEndOfDirectory
	}
	if tombstone {
		return Entry{}, 1, errTombstoneSlot
	}
	_ = deleted

	full := make([]byte, SlotSize*(1+int(continuations)))
	copy(full[:SlotSize], primary)
	for k := 1; k <= int(continuations); k++ {
		cont, err := e.readSlot(head, slot+k)
		if err != nil {
			return Entry{}, 0, err
		}
		copy(full[SlotSize*k:SlotSize*(k+1)], cont)
	}

	entry, err := Decode(full)
	if err != nil {
		return Entry{}, 0, err
	}
	return entry, 1 + int(continuations), nil
}

var errTombstoneSlot = errors.New("dirent: tombstone slot")

// Iterator walks a directory's slots in order, surfacing only live
// (non-deleted) entries, matching spec.md §4.8's read_entry behavior.
type Iterator struct {
	e    *Engine
	head fat.Loc
	slot int
}

// NewIterator returns an iterator over the directory rooted at head,
// starting at its first slot.
func (e *Engine) NewIterator(head fat.Loc) *Iterator {
	return &Iterator{e: e, head: head}
}

// Position returns the slot index the next call to Next will read, the
// directory engine's equivalent of a directory handle's current position.
func (it *Iterator) Position() int { return it.slot }

// SeekTo repositions the iterator at an arbitrary slot index.
func (it *Iterator) SeekTo(slot int) { it.slot = slot }

// Next decodes the next live entry, skipping soft-deleted and tombstoned
// slots, and returns ErrEndOfDirectory once the chain's used entries are
// exhausted.
func (it *Iterator) Next() (Entry, error) {
	for {
		entry, consumed, err := it.e.decodeAt(it.head, it.slot)
		if err == errTombstoneSlot {
			it.slot += consumed
			continue
		}
		if err != nil {
			return Entry{}, err
		}
		it.slot += consumed
		if entry.Deleted {
			continue
		}
		return entry, nil
	}
}

// List walks the entire directory rooted at head and returns every live
// entry in encounter (write) order.
func (e *Engine) List(head fat.Loc) ([]Entry, error) {
	it := e.NewIterator(head)
	var out []Entry
	for {
		entry, err := it.Next()
		if err == ErrEndOfDirectory {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
}

// Find scans the directory rooted at head for a live entry named name,
// returning its slot index alongside the decoded entry.
func (e *Engine) Find(head fat.Loc, name string) (Entry, int, error) {
	slot := 0
	for {
		entry, consumed, err := e.decodeAt(head, slot)
		if err == errTombstoneSlot {
			slot += consumed
			continue
		}
		if err == ErrEndOfDirectory {
			return Entry{}, 0, sfserr.ErrNotFound
		}
		if err != nil {
			return Entry{}, 0, err
		}
		if !entry.Deleted && entry.Name == name {
			return entry, slot, nil
		}
		slot += consumed
	}
}

// findFreeRun scans slot-by-slot for `spaces` consecutive free slots (zero,
// soft-deleted, or tombstoned), never crossing a live entry. If the chain
// ends before a run is found, it allocates one more cluster — whose slots
// are freshly zero-filled, guaranteed free — and continues the run there
// (spec.md §4.8).
func (e *Engine) findFreeRun(head fat.Loc, spaces int) (int, error) {
	spc := e.slotsPerCluster()
	slot := 0
	runStart := -1
	runLen := 0

	for {
		primary, err := e.readSlot(head, slot)
		if err == ErrEndOfDirectory {
			if _, _, aerr := e.clusterForSlot(head, slot, true); aerr != nil {
				return 0, aerr
			}
			if runStart < 0 {
				runStart = slot
			}
			runLen += spc
			if runLen >= spaces {
				return runStart, nil
			}
			slot += spc
			continue
		}
		if err != nil {
			return 0, err
		}

		deleted, tombstone, continuations, zero := PeekHeader(primary)
		used := 1
		if !zero && !tombstone {
			used = 1 + int(continuations)
		}

		if zero || deleted || tombstone {
			if runStart < 0 {
				runStart = slot
			}
			runLen += used
			if runLen >= spaces {
				return runStart, nil
			}
			slot += used
		} else {
			runStart = -1
			runLen = 0
			slot += used
		}
	}
}

func (e *Engine) writeEntryAt(head fat.Loc, slot int, entry Entry) error {
	buf, err := Encode(entry)
	if err != nil {
		return err
	}
	for i := 0; i*SlotSize < len(buf); i++ {
		if err := e.writeSlot(head, slot+i, buf[i*SlotSize:(i+1)*SlotSize]); err != nil {
			return err
		}
	}
	return nil
}

// WriteEntry finds a free run big enough for entry and writes it there,
// returning the slot index it landed at.
func (e *Engine) WriteEntry(head fat.Loc, entry Entry) (int, error) {
	spaces := 1 + int(entry.Continuations())
	slot, err := e.findFreeRun(head, spaces)
	if err != nil {
		return 0, err
	}
	if err := e.writeEntryAt(head, slot, entry); err != nil {
		return 0, err
	}
	return slot, nil
}

func (e *Engine) setDeletedBit(head fat.Loc, slot int, deleted bool) error {
	primary, err := e.readSlot(head, slot)
	if err != nil {
		return err
	}
	_, _, continuations, zero := PeekHeader(primary)
	if zero {
		return sfserr.ErrNotFound
	}

	setBit := func(b []byte) []byte {
		if deleted {
			b[0] |= reservedDeletedBit
		} else {
			b[0] &^= reservedDeletedBit
		}
		return b
	}

	if err := e.writeSlot(head, slot, setBit(primary)); err != nil {
		return err
	}
	for k := 1; k <= int(continuations); k++ {
		cont, err := e.readSlot(head, slot+k)
		if err != nil {
			return err
		}
		if err := e.writeSlot(head, slot+k, setBit(cont)); err != nil {
			return err
		}
	}
	return nil
}

// SoftDelete sets the soft-deleted bit on the entry at slot and every
// continuation it occupies.
func (e *Engine) SoftDelete(head fat.Loc, slot int) error {
	return e.setDeletedBit(head, slot, true)
}

// Undelete clears the soft-deleted bit set by SoftDelete.
func (e *Engine) Undelete(head fat.Loc, slot int) error {
	return e.setDeletedBit(head, slot, false)
}

// HardDelete zeroes every slot the entry at slot occupies. If the entry
// wasn't at the directory's used tail, every zeroed slot is individually
// stamped with the tombstone bit so a later scan doesn't mistake it for
// end-of-directory (spec.md §4.8, §9).
func (e *Engine) HardDelete(head fat.Loc, slot int) error {
	primary, err := e.readSlot(head, slot)
	if err != nil {
		return err
	}
	_, _, continuations, zero := PeekHeader(primary)
	if zero {
		return sfserr.ErrNotFound
	}
	consumed := 1 + int(continuations)

	next, err := e.readSlot(head, slot+consumed)
	isTail := false
	switch {
	case err == ErrEndOfDirectory:
		isTail = true
	case err != nil:
		return err
	default:
		_, _, _, nextZero := PeekHeader(next)
		isTail = nextZero
	}

	blank := make([]byte, SlotSize)
	if !isTail {
		blank[0] = reservedTombstoneBit | reservedDeletedBit
	}
	for i := 0; i < consumed; i++ {
		if err := e.writeSlot(head, slot+i, blank); err != nil {
			return err
		}
	}
	return nil
}

// Rename changes the entry at slot's name, overwriting in place (and
// tombstoning any trailing slots it no longer needs) when the new name
// needs no more continuations than the old one, or relocating it via a
// fresh findFreeRun otherwise (spec.md §4.8). Returns the entry's new slot
// index.
func (e *Engine) Rename(head fat.Loc, slot int, newName string) (int, error) {
	if err := ValidateFilename(newName); err != nil {
		return 0, err
	}

	entry, _, err := e.decodeAt(head, slot)
	if err != nil {
		return 0, err
	}

	renamed := entry
	renamed.Name = newName
	return e.updateEntryAt(head, slot, renamed)
}

// UpdateEntry overwrites the entry at slot with a new value (for example
// after a write extends a file's length or touches its modified time),
// relocating it via a fresh findFreeRun if the new value's filename needs
// more continuation slots than the old one occupied. Returns the entry's
// (possibly new) slot index.
func (e *Engine) UpdateEntry(head fat.Loc, slot int, entry Entry) (int, error) {
	return e.updateEntryAt(head, slot, entry)
}

// updateEntryAt writes newEntry over the entry currently at slot, in place
// when it fits in the old entry's slot run (tombstoning any slots it no
// longer needs), or by soft-deleting the old slot and writing newEntry into
// a freshly found run otherwise.
func (e *Engine) updateEntryAt(head fat.Loc, slot int, newEntry Entry) (int, error) {
	_, oldConsumed, err := e.decodeAt(head, slot)
	if err != nil {
		return 0, err
	}
	newConsumed := 1 + int(newEntry.Continuations())

	if newConsumed <= oldConsumed {
		if err := e.writeEntryAt(head, slot, newEntry); err != nil {
			return 0, err
		}
		for i := newConsumed; i < oldConsumed; i++ {
			blank := [SlotSize]byte{0: reservedTombstoneBit | reservedDeletedBit}
			if err := e.writeSlot(head, slot+i, blank[:]); err != nil {
				return 0, err
			}
		}
		return slot, nil
	}

	if err := e.SoftDelete(head, slot); err != nil {
		return 0, err
	}
	newSlot, err := e.WriteEntry(head, newEntry)
	if err != nil {
		return 0, err
	}
	return newSlot, nil
}

// Move writes entry to newParent first and only then hard-deletes it from
// its old parent — this order means a crash mid-move leaves the file
// reachable from at least one parent, never neither (spec.md §4.8, §5).
func (e *Engine) Move(oldParent fat.Loc, oldSlot int, newParent fat.Loc, entry Entry) (int, error) {
	newSlot, err := e.WriteEntry(newParent, entry)
	if err != nil {
		return 0, err
	}
	if err := e.HardDelete(oldParent, oldSlot); err != nil {
		return 0, err
	}
	return newSlot, nil
}
