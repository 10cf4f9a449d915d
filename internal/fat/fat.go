// Package fat implements the FAT engine: chained-cluster allocation,
// truncation, and the free-cursor cache that makes allocation O(1)
// amortized (spec.md §4.5). Every FAT entry read or write goes through
// internal/clusterio so FAT bytes are encrypted identically to file data.
package fat

import (
	"github.com/boljen/go-bitmap"
	"github.com/dsoprea/go-logging"
	"github.com/hashicorp/go-multierror"

	"github.com/jrh327/sfs/internal/sfserr"
	"github.com/jrh327/sfs/internal/bytecodec"
	"github.com/jrh327/sfs/internal/boot"
	"github.com/jrh327/sfs/internal/clusterio"
	"github.com/jrh327/sfs/internal/cryptoseam"
	"github.com/jrh327/sfs/internal/medium"
)

// Loc is a FAT entry location (fat_number, cluster_number), also the shape
// of the value a FAT entry holds: a location is both an address and, stored
// at some other location, a pointer to it.
type Loc struct {
	FATNumber     uint16
	ClusterNumber uint16
}

// Free is the sentinel value of an unallocated FAT entry.
var Free = Loc{0, 0}

// EndOfChain terminates every file's cluster chain.
var EndOfChain = Loc{0xFFFF, 0xFFFF}

func (l Loc) before(other Loc) bool {
	if l.FATNumber != other.FATNumber {
		return l.FATNumber < other.FATNumber
	}
	return l.ClusterNumber < other.ClusterNumber
}

func (l Loc) next(entriesPerFAT uint16) (Loc, bool) {
	if l.ClusterNumber+1 >= entriesPerFAT {
		if l.FATNumber == 0xFFFF {
			return Loc{}, false
		}
		return Loc{FATNumber: l.FATNumber + 1, ClusterNumber: 0}, true
	}
	return Loc{FATNumber: l.FATNumber, ClusterNumber: l.ClusterNumber + 1}, true
}

// Engine is the allocator over one filesystem's FAT tables. It caches a
// per-data-block bitmap.Bitmap of free/used cluster slots (populated lazily,
// one FAT table at a time) backing the free cursor described in spec.md
// §4.5 and the GLOSSARY's "Free cursor" entry: a cache miss rescans via
// bitmap lookups rather than re-reading every FAT entry byte by byte.
type Engine struct {
	m       medium.Medium
	stream  *clusterio.Stream
	geo     boot.Geometry
	cursor  Loc
	bitmaps map[uint16]bitmap.Bitmap
}

// New wraps an already-formatted filesystem's medium. Callers that just
// formatted the image should call Initialize instead.
func New(m medium.Medium, enc cryptoseam.Encryptor, key cryptoseam.Key, geo boot.Geometry) *Engine {
	return &Engine{
		m:       m,
		stream:  clusterio.New(m, enc, key),
		geo:     geo,
		bitmaps: map[uint16]bitmap.Bitmap{},
	}
}

// Initialize formats FAT 0, reserves cluster (0,0) as the root directory's
// first cluster (end-of-chain, since the root is always a single-cluster
// chain at creation), and zero-fills that cluster. This is spec.md §4.4
// step 4's second half, split out of internal/boot because it operates in
// terms of FAT/cluster addressing that package doesn't own.
func Initialize(m medium.Medium, enc cryptoseam.Encryptor, key cryptoseam.Key, geo boot.Geometry) (*Engine, error) {
	e := New(m, enc, key, geo)

	if _, err := e.bitmapFor(0); err != nil {
		return nil, err
	}
	if err := e.WriteEntry(Loc{0, 0}, EndOfChain); err != nil {
		return nil, err
	}

	off := e.clusterOffset(Loc{0, 0})
	if err := e.ensureExtent(off + int64(geo.ClusterSize())); err != nil {
		return nil, err
	}
	if _, err := m.Seek(off, medium.SeekSet); err != nil {
		return nil, sfserr.ErrIO.Wrap(err)
	}
	zero := make([]byte, geo.ClusterSize())
	if _, err := e.stream.WriteRange(zero); err != nil {
		return nil, err
	}

	next, err := e.FindNextFree(Loc{0, 1})
	if err == nil {
		e.cursor = next
	}
	return e, nil
}

// Rescan rebuilds the free cursor from (0,0) forward, matching spec.md
// §4.4's "scan FAT to initialize first_available_fat_entry" load-time step.
func (e *Engine) Rescan() error {
	loc, err := e.FindNextFree(Loc{0, 0})
	if err != nil {
		return err
	}
	e.cursor = loc
	return nil
}

func (e *Engine) fatTableOffset(fatNumber uint16) int64 {
	dataBlockSize := int64(e.geo.FATSize()) + int64(e.geo.EntriesPerFAT)*int64(e.geo.ClusterSize())
	return int64(e.geo.PartitionOffset) + boot.Size + int64(fatNumber)*dataBlockSize
}

func (e *Engine) entryOffset(loc Loc) int64 {
	return e.fatTableOffset(loc.FATNumber) + int64(loc.ClusterNumber)*4
}

// ClusterOffset resolves a FAT location to the byte offset of its cluster's
// payload (spec.md §3's "Cluster address" formula). Exported for
// internal/dirent and internal/fileio, which need it to seek before
// handing off to internal/clusterio.
func (e *Engine) ClusterOffset(loc Loc) int64 {
	return e.clusterOffset(loc)
}

func (e *Engine) clusterOffset(loc Loc) int64 {
	return e.fatTableOffset(loc.FATNumber) + int64(e.geo.FATSize()) + int64(loc.ClusterNumber)*int64(e.geo.ClusterSize())
}

// Geometry returns the geometry this engine was constructed over.
func (e *Engine) Geometry() boot.Geometry { return e.geo }

func (e *Engine) mediumSize() (int64, error) {
	pos, err := e.m.Tell()
	if err != nil {
		return 0, err
	}
	size, err := e.m.Seek(0, medium.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := e.m.Seek(pos, medium.SeekSet); err != nil {
		return 0, err
	}
	return size, nil
}

// ensureExtent grows the medium with zero-filled bytes if end exceeds its
// current length, matching spec.md §4.5's "a new FAT appears as a fresh
// all-zero table, a new cluster as zero-filled payload".
func (e *Engine) ensureExtent(end int64) error {
	size, err := e.mediumSize()
	if err != nil {
		return err
	}
	if size >= end {
		return nil
	}
	if err := e.m.Truncate(end); err != nil {
		return log.Wrap(err)
	}
	return nil
}

// bitmapFor lazily loads (or extends) the bitmap cache for one FAT table.
// An existing table is read in full once and its used/free bits recorded;
// a table past the current end of medium is treated as implicitly all-free
// and the medium is extended to make room for it.
func (e *Engine) bitmapFor(fatNumber uint16) (bitmap.Bitmap, error) {
	if bm, ok := e.bitmaps[fatNumber]; ok {
		return bm, nil
	}

	bm := bitmap.New(int(e.geo.EntriesPerFAT))
	tableOff := e.fatTableOffset(fatNumber)
	tableEnd := tableOff + int64(e.geo.FATSize())

	size, err := e.mediumSize()
	if err != nil {
		return nil, err
	}

	if size >= tableEnd {
		pos, err := e.m.Tell()
		if err != nil {
			return nil, err
		}
		if _, err := e.m.Seek(tableOff, medium.SeekSet); err != nil {
			return nil, sfserr.ErrIO.Wrap(err)
		}
		buf := make([]byte, e.geo.FATSize())
		if _, err := e.stream.ReadRange(buf); err != nil {
			return nil, err
		}
		for c := 0; c < int(e.geo.EntriesPerFAT); c++ {
			fatN := bytecodec.GetU16(buf, c*4)
			clusterN := bytecodec.GetU16(buf, c*4+2)
			bm.Set(c, !(fatN == 0 && clusterN == 0))
		}
		if _, err := e.m.Seek(pos, medium.SeekSet); err != nil {
			return nil, sfserr.ErrIO.Wrap(err)
		}
	} else if err := e.ensureExtent(tableEnd); err != nil {
		return nil, err
	}

	e.bitmaps[fatNumber] = bm
	return bm, nil
}

func (e *Engine) markBitmap(loc Loc, used bool) {
	if bm, ok := e.bitmaps[loc.FATNumber]; ok {
		bm.Set(int(loc.ClusterNumber), used)
	}
}

// ReadEntry reads the FAT entry stored at loc.
func (e *Engine) ReadEntry(loc Loc) (Loc, error) {
	off := e.entryOffset(loc)
	if err := e.ensureExtent(off + 4); err != nil {
		return Loc{}, err
	}
	if _, err := e.m.Seek(off, medium.SeekSet); err != nil {
		return Loc{}, sfserr.ErrIO.Wrap(err)
	}
	buf := make([]byte, 4)
	if _, err := e.stream.ReadRange(buf); err != nil {
		return Loc{}, err
	}
	return Loc{
		FATNumber:     bytecodec.GetU16(buf, 0),
		ClusterNumber: bytecodec.GetU16(buf, 2),
	}, nil
}

// WriteEntry stores val at loc and updates the bitmap cache. When val marks
// loc as in use, the medium is also extended (zero-filled) to cover loc's
// cluster, so a freshly allocated cluster can be read before it is written.
func (e *Engine) WriteEntry(loc Loc, val Loc) error {
	off := e.entryOffset(loc)
	if err := e.ensureExtent(off + 4); err != nil {
		return err
	}
	if _, err := e.m.Seek(off, medium.SeekSet); err != nil {
		return sfserr.ErrIO.Wrap(err)
	}
	buf := make([]byte, 4)
	bytecodec.PutU16(buf, val.FATNumber, 0)
	bytecodec.PutU16(buf, val.ClusterNumber, 2)
	if _, err := e.stream.WriteRange(buf); err != nil {
		return err
	}
	e.markBitmap(loc, val != Free)
	if val != Free {
		if err := e.ensureExtent(e.clusterOffset(loc) + int64(e.geo.ClusterSize())); err != nil {
			return err
		}
	}
	return nil
}

// FindNextFree linearly scans from start, wrapping cluster_number back to 0
// when it reaches entries_per_fat and advancing fat_number, appending a new
// FAT table on overflow. Aborts with ErrOutOfSpace if fat_number itself
// would overflow u16.
func (e *Engine) FindNextFree(start Loc) (Loc, error) {
	fatNum := start.FATNumber
	clusterStart := int(start.ClusterNumber)
	for {
		bm, err := e.bitmapFor(fatNum)
		if err != nil {
			return Loc{}, err
		}
		for c := clusterStart; c < int(e.geo.EntriesPerFAT); c++ {
			if !bm.Get(c) {
				return Loc{FATNumber: fatNum, ClusterNumber: uint16(c)}, nil
			}
		}
		if fatNum == 0xFFFF {
			return Loc{}, sfserr.ErrOutOfSpace
		}
		fatNum++
		clusterStart = 0
	}
}

// FirstFree returns the cached free cursor, rescanning from (0,0) if the
// cached slot turns out not to actually be free.
func (e *Engine) FirstFree() (Loc, error) {
	cur, err := e.ReadEntry(e.cursor)
	if err == nil && cur == Free {
		return e.cursor, nil
	}
	loc, err := e.FindNextFree(Loc{0, 0})
	if err != nil {
		return Loc{}, err
	}
	e.cursor = loc
	return loc, nil
}

// MarkFree writes (0,0) at loc and pulls the free cursor back to loc if it
// precedes the cursor in scan order.
func (e *Engine) MarkFree(loc Loc) error {
	if err := e.WriteEntry(loc, Free); err != nil {
		return err
	}
	if loc.before(e.cursor) {
		e.cursor = loc
	}
	return nil
}

// AllocateFile walks ceil(length/cluster_size) free slots forward from
// FirstFree, builds the chain head-to-tail in one pass once every slot is
// chosen, and advances the free cursor past the last allocated entry.
// Nothing is written to disk until every slot in the chain has been picked,
// so a failure during the selection phase leaves the FAT untouched.
func (e *Engine) AllocateFile(length uint64) (Loc, []Loc, error) {
	clusterSize := uint64(e.geo.ClusterSize())
	count := (length + clusterSize - 1) / clusterSize
	if count == 0 {
		count = 1
	}

	start, err := e.FirstFree()
	if err != nil {
		return Loc{}, nil, err
	}

	chain := make([]Loc, 0, count)
	cur := start
	for i := uint64(0); i < count; i++ {
		chain = append(chain, cur)
		if i == count-1 {
			break
		}
		next, ok := cur.next(e.geo.EntriesPerFAT)
		if !ok {
			return Loc{}, nil, sfserr.ErrOutOfSpace
		}
		found, err := e.FindNextFree(next)
		if err != nil {
			return Loc{}, nil, err
		}
		cur = found
	}

	if err := e.commitChain(chain); err != nil {
		return Loc{}, nil, err
	}

	if next, ok := chain[len(chain)-1].next(e.geo.EntriesPerFAT); ok {
		if loc, err := e.FindNextFree(next); err == nil {
			e.cursor = loc
		}
	}

	return chain[0], chain, nil
}

// commitChain writes the links head-to-tail; on failure it rolls back
// everything already written, tail-to-head, per spec.md §7's "OutOfSpace
// during allocation rolls back already-written FAT links (tail-to-head
// mark-free) before returning". Rollback errors are accumulated rather than
// discarded, since a failed MarkFree during unwind still needs reporting.
func (e *Engine) commitChain(chain []Loc) error {
	for i, loc := range chain {
		next := EndOfChain
		if i < len(chain)-1 {
			next = chain[i+1]
		}
		if err := e.WriteEntry(loc, next); err != nil {
			var rollback *multierror.Error
			rollback = multierror.Append(rollback, sfserr.ErrOutOfSpace.Wrap(err))
			for j := i - 1; j >= 0; j-- {
				if ferr := e.MarkFree(chain[j]); ferr != nil {
					rollback = multierror.Append(rollback, ferr)
				}
			}
			return rollback.ErrorOrNil()
		}
	}
	return nil
}

// AllocateCluster extends chainTail's chain by one cluster, writing the
// link before marking the new tail end-of-chain, and advances the cursor.
func (e *Engine) AllocateCluster(chainTail Loc) (Loc, error) {
	newLoc, err := e.FirstFree()
	if err != nil {
		return Loc{}, err
	}
	if err := e.WriteEntry(chainTail, newLoc); err != nil {
		return Loc{}, err
	}
	if err := e.WriteEntry(newLoc, EndOfChain); err != nil {
		var rollback *multierror.Error
		rollback = multierror.Append(rollback, err)
		if rerr := e.WriteEntry(chainTail, EndOfChain); rerr != nil {
			rollback = multierror.Append(rollback, rerr)
		}
		return Loc{}, rollback.ErrorOrNil()
	}
	if next, ok := newLoc.next(e.geo.EntriesPerFAT); ok {
		if loc, ferr := e.FindNextFree(next); ferr == nil {
			e.cursor = loc
		}
	}
	return newLoc, nil
}

// TruncateChain walks forward from newTail collecting every entry still
// linked after it, then marks them free from the end backwards before
// marking newTail itself end-of-chain — reverse order so a partial failure
// never leaves a dangling intermediate entry still linked from the live
// file (spec.md §4.5).
func (e *Engine) TruncateChain(newTail Loc) error {
	cur, err := e.ReadEntry(newTail)
	if err != nil {
		return err
	}

	var toFree []Loc
	for cur != EndOfChain && cur != Free {
		toFree = append(toFree, cur)
		next, err := e.ReadEntry(cur)
		if err != nil {
			return err
		}
		cur = next
	}

	var result *multierror.Error
	for i := len(toFree) - 1; i >= 0; i-- {
		if err := e.MarkFree(toFree[i]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := e.WriteEntry(newTail, EndOfChain); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Stats reports the free/used entry counts the engine has scanned so far.
// It's derived from the bitmap cache, not a full rescan, so it undercounts
// FAT tables the engine hasn't had a reason to touch yet.
func (e *Engine) Stats() (free, used uint64) {
	for _, bm := range e.bitmaps {
		for c := 0; c < int(e.geo.EntriesPerFAT); c++ {
			if bm.Get(c) {
				used++
			} else {
				free++
			}
		}
	}
	return free, used
}
