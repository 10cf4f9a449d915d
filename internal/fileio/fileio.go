// Package fileio implements the file engine: create, seek, read, and write
// spanning a file's cluster chain (spec.md §4.9). A Handle carries the
// directory entry, its FAT chain, and a cursor (current cluster + byte
// offset since the start of the file) — the minimal state spec.md's state
// machine (Fresh -> Positioned <-> Reading/Writing -> Closed) needs.
package fileio

import (
	"github.com/jrh327/sfs/internal/boot"
	"github.com/jrh327/sfs/internal/clusterio"
	"github.com/jrh327/sfs/internal/cryptoseam"
	"github.com/jrh327/sfs/internal/dirent"
	"github.com/jrh327/sfs/internal/fat"
	"github.com/jrh327/sfs/internal/medium"
	"github.com/jrh327/sfs/internal/sfserr"
)

// Whence values, matching medium.SeekSet/SeekCur/SeekEnd.
const (
	SeekSet = medium.SeekSet
	SeekCur = medium.SeekCur
	SeekEnd = medium.SeekEnd
)

// Handle is a live file: its directory entry, the chain of clusters backing
// it, and the current read/write cursor. It is not safe for concurrent use
// (spec.md §5: single-threaded, non-reentrant per handle).
type Handle struct {
	fe     *fat.Engine
	m      medium.Medium
	stream *clusterio.Stream
	geo    boot.Geometry

	Entry dirent.Entry

	chainHead fat.Loc
	// currentCluster is the last chain entry the cursor has actually
	// reached; currentClusterStart is that cluster's file-offset (always a
	// multiple of the cluster size). currentOffset - currentClusterStart
	// can be >= cluster size when a Seek has moved past the end of the
	// chain as currently allocated; Read/Write resolve that lazily, one
	// cluster at a time, the next time they run.
	currentCluster      fat.Loc
	currentClusterStart int64
	currentOffset       int64
}

// Open wires a directory entry's first-cluster pointer into a live Handle.
func Open(m medium.Medium, enc cryptoseam.Encryptor, key cryptoseam.Key, fe *fat.Engine, geo boot.Geometry, entry dirent.Entry) *Handle {
	return &Handle{
		fe:             fe,
		m:              m,
		stream:         clusterio.New(m, enc, key),
		geo:            geo,
		Entry:          entry,
		chainHead:      entry.FirstCluster,
		currentCluster: entry.FirstCluster,
	}
}

// Length returns the file's length in bytes, as recorded in its directory
// entry (not necessarily the size of its allocated chain, which is rounded
// up to a whole number of clusters).
func (h *Handle) Length() int64 { return int64(h.Entry.FileLength) }

// Tell returns the current byte offset since the start of the file.
func (h *Handle) Tell() int64 { return h.currentOffset }

// Seek computes the absolute target offset and repositions the cursor.
// Negative targets are rejected. Every whence (CUR as well as SET and END)
// restarts the cluster walk at the chain head and advances
// cluster-by-cluster until the target falls within
// the current cluster or the chain runs out — spec.md §4.9's corrected
// comparison (§9 flags the original `current_offset < whence` as a typo for
// `< offset`; this implements the fix). If target lands past the chain as
// currently allocated, the walk simply stops at the last real cluster;
// Read/Write extend or short-read from there on the next call.
func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case SeekSet:
		target = offset
	case SeekCur:
		target = h.currentOffset + offset
	case SeekEnd:
		target = h.Length() + offset
	default:
		return 0, sfserr.ErrInvalidArgument.WithMessage("unknown seek whence")
	}
	if target < 0 {
		return 0, sfserr.ErrInvalidArgument.WithMessage("negative seek target")
	}

	clusterSize := int64(h.geo.ClusterSize())
	cluster := h.chainHead
	clusterStart := int64(0)
	for clusterStart+clusterSize <= target {
		next, err := h.fe.ReadEntry(cluster)
		if err != nil {
			return 0, err
		}
		if next == fat.EndOfChain {
			break
		}
		cluster = next
		clusterStart += clusterSize
	}

	h.currentCluster = cluster
	h.currentClusterStart = clusterStart
	h.currentOffset = target
	return target, nil
}

func (h *Handle) offsetInCluster() int64 {
	return h.currentOffset - h.currentClusterStart
}

// advance moves the cursor's current cluster forward by one, allocating a
// fresh cluster when extend is true and the chain doesn't reach there yet.
// Returns false (without error) when extend is false and the chain has
// ended — the caller's signal to stop reading.
func (h *Handle) advance(extend bool) (bool, error) {
	next, err := h.fe.ReadEntry(h.currentCluster)
	if err != nil {
		return false, err
	}
	if next == fat.EndOfChain {
		if !extend {
			return false, nil
		}
		next, err = h.fe.AllocateCluster(h.currentCluster)
		if err != nil {
			return false, err
		}
	}
	h.currentCluster = next
	h.currentClusterStart += int64(h.geo.ClusterSize())
	return true, nil
}

// Read fills buf, spanning clusters as needed, and returns the number of
// bytes actually read (short of len(buf) if the chain ends first).
func (h *Handle) Read(buf []byte) (int, error) {
	clusterSize := int64(h.geo.ClusterSize())
	read := 0
	for read < len(buf) {
		for h.offsetInCluster() >= clusterSize {
			ok, err := h.advance(false)
			if err != nil {
				return read, err
			}
			if !ok {
				return read, nil
			}
		}

		inCluster := h.offsetInCluster()
		remainingInCluster := clusterSize - inCluster
		want := int64(len(buf) - read)
		if want > remainingInCluster {
			want = remainingInCluster
		}

		if _, err := h.m.Seek(h.fe.ClusterOffset(h.currentCluster)+inCluster, medium.SeekSet); err != nil {
			return read, sfserr.ErrIO.Wrap(err)
		}
		n, err := h.stream.ReadRange(buf[read : read+int(want)])
		read += n
		h.currentOffset += int64(n)
		if err != nil {
			return read, err
		}
		if int64(n) < want {
			break
		}
	}
	return read, nil
}

// Write writes data, spanning clusters as needed and allocating new
// clusters via the FAT engine when the write crosses past the chain's
// current tail.
func (h *Handle) Write(data []byte) (int, error) {
	clusterSize := int64(h.geo.ClusterSize())
	written := 0
	for written < len(data) {
		for h.offsetInCluster() >= clusterSize {
			if _, err := h.advance(true); err != nil {
				return written, err
			}
		}

		inCluster := h.offsetInCluster()
		remainingInCluster := clusterSize - inCluster
		want := int64(len(data) - written)
		if want > remainingInCluster {
			want = remainingInCluster
		}

		if _, err := h.m.Seek(h.fe.ClusterOffset(h.currentCluster)+inCluster, medium.SeekSet); err != nil {
			return written, sfserr.ErrIO.Wrap(err)
		}
		n, err := h.stream.WriteRange(data[written : written+int(want)])
		written += n
		h.currentOffset += int64(n)
		if err != nil {
			return written, err
		}
	}

	if uint32(h.currentOffset) > h.Entry.FileLength {
		h.Entry.FileLength = uint32(h.currentOffset)
	}
	return written, nil
}

// Create allocates a chain sized for len(data), writes data into it, and
// returns a ready Handle. It does not itself place the entry in a parent
// directory; the caller (the root sfs package) sequences that with the
// directory engine, matching spec.md §4.9's create() which composes both
// engines.
func Create(m medium.Medium, enc cryptoseam.Encryptor, key cryptoseam.Key, fe *fat.Engine, geo boot.Geometry, entry dirent.Entry, data []byte) (*Handle, error) {
	head, _, err := fe.AllocateFile(uint64(len(data)))
	if err != nil {
		return nil, err
	}
	entry.FirstCluster = head
	entry.FileLength = uint32(len(data))

	h := Open(m, enc, key, fe, geo, entry)
	if len(data) > 0 {
		if _, err := h.Write(data); err != nil {
			return nil, err
		}
		if _, err := h.Seek(0, SeekSet); err != nil {
			return nil, err
		}
	}
	return h, nil
}
