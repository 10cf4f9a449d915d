package sfs

import (
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/dustin/go-humanize"

	"github.com/jrh327/sfs/internal/boot"
	"github.com/jrh327/sfs/internal/clock"
	"github.com/jrh327/sfs/internal/cryptoseam"
	"github.com/jrh327/sfs/internal/dirent"
	"github.com/jrh327/sfs/internal/fat"
	"github.com/jrh327/sfs/internal/fileio"
	"github.com/jrh327/sfs/internal/medium"
)

// Whence values for SeekFile, re-exported from internal/fileio so callers
// never need to import an internal package directly.
const (
	SeekSet = fileio.SeekSet
	SeekCur = fileio.SeekCur
	SeekEnd = fileio.SeekEnd
)

// DirEntry is an opaque handle to a directory-entry slot: its parent's
// first cluster plus the slot index within it, the pair every Lifecycle
// operation below needs to locate an entry again (rename, move, delete).
type DirEntry struct {
	Parent fat.Loc
	Slot   int
	Entry  dirent.Entry
}

// Name returns the entry's filename.
func (d DirEntry) Name() string { return d.Entry.Name }

// IsDirectory reports whether bit 0 of the entry's attribute byte is set
// (spec.md §3; original_source/sfs.h's ATTR_DIRECTORY).
func (d DirEntry) IsDirectory() bool { return d.Entry.IsDirectory }

// IsReadOnly reports whether bit 1 of the entry's attribute byte is set
// (original_source/sfs.h's ATTR_READONLY).
func (d DirEntry) IsReadOnly() bool { return d.Entry.ReadOnly }

// IsHidden reports whether bit 2 of the entry's attribute byte is set
// (original_source/sfs.h's ATTR_HIDDEN).
func (d DirEntry) IsHidden() bool { return d.Entry.Hidden }

// Stat is the file_stat-equivalent summary describe() renders, per
// SPEC_FULL.md's Lifecycle supplement (original_source's
// sfs_dir_describe_file/file_stat).
type Stat struct {
	Filename   string
	IsDir      bool
	ReadOnly   bool
	Hidden     bool
	FileLength uint32
	Created    time.Time
	Modified   time.Time
}

// FileSystem is the live handle returned by FormatNew/FormatPartition/Load:
// the boot geometry plus the three engines layered on top of it (spec.md
// §2's pipeline: medium -> crypto seam -> boot -> FAT -> directory/file
// engines).
type FileSystem struct {
	m    medium.Medium
	enc  cryptoseam.Encryptor
	key  cryptoseam.Key
	geo  boot.Geometry
	fe   *fat.Engine
	de   *dirent.Engine
	ck   clock.Clock
	root fat.Loc
}

func newFileSystem(m medium.Medium, enc cryptoseam.Encryptor, key cryptoseam.Key, geo boot.Geometry, fe *fat.Engine) *FileSystem {
	return &FileSystem{
		m:    m,
		enc:  enc,
		key:  key,
		geo:  geo,
		fe:   fe,
		de:   dirent.NewEngine(m, enc, key, fe, geo),
		ck:   clock.System{},
		root: fat.Loc{FATNumber: 0, ClusterNumber: 0},
	}
}

// FormatNew lays a fresh SFS filesystem across the whole of m, starting at
// offset 0, using an unencrypted (identity) crypto seam — the no-key
// convenience constructor spec.md §6's format_new names.
func FormatNew(m medium.Medium, fatSize uint16, bytesPerSector uint16, sectorsPerCluster uint8) (*FileSystem, error) {
	return FormatPartition(m, 0, cryptoseam.IdentityEncryptor{}, nil, fatSize, bytesPerSector, sectorsPerCluster)
}

// FormatPartition lays a fresh SFS filesystem at offset within m, under enc
// and key, matching spec.md §6's format_partition(handle, offset, fat_size,
// bps, spc).
func FormatPartition(m medium.Medium, offset uint64, enc cryptoseam.Encryptor, key cryptoseam.Key, fatSize uint16, bytesPerSector uint16, sectorsPerCluster uint8) (*FileSystem, error) {
	geo, err := boot.Format(m, offset, fatSize, bytesPerSector, sectorsPerCluster)
	if err != nil {
		return nil, log.Wrap(err)
	}

	fe, err := fat.Initialize(m, enc, key, geo)
	if err != nil {
		return nil, log.Wrap(err)
	}
	return newFileSystem(m, enc, key, geo, fe), nil
}

// Load opens an existing, unencrypted SFS filesystem starting at offset 0,
// matching spec.md §6's load(handle) → fs. Fails with ErrBadMagic if the
// medium doesn't carry a valid boot sector there.
func Load(m medium.Medium) (*FileSystem, error) {
	return LoadPartition(m, 0, cryptoseam.IdentityEncryptor{}, nil)
}

// LoadPartition opens an existing SFS filesystem at offset within m, under
// enc and key.
func LoadPartition(m medium.Medium, offset uint64, enc cryptoseam.Encryptor, key cryptoseam.Key) (*FileSystem, error) {
	geo, err := boot.Load(m, offset)
	if err != nil {
		return nil, err
	}

	fe := fat.New(m, enc, key, geo)
	if err := fe.Rescan(); err != nil {
		return nil, log.Wrap(err)
	}
	return newFileSystem(m, enc, key, geo, fe), nil
}

// Close releases the underlying medium. FileSystem keeps no other
// in-process resources (spec.md §5: no background goroutines, no caches
// beyond the FAT engine's in-memory bitmap, which needs no teardown).
func (fs *FileSystem) Close() error {
	return fs.m.Close()
}

// GetRoot returns a DirEntry addressing the filesystem's root directory,
// matching spec.md §6's get_root(fs) → dir_entry. The root has no name of
// its own and is always a directory.
func (fs *FileSystem) GetRoot() DirEntry {
	return DirEntry{
		Parent: fs.root,
		Slot:   -1,
		Entry:  dirent.Entry{IsDirectory: true, FirstCluster: fs.root},
	}
}

func (fs *FileSystem) dirHead(dir DirEntry) fat.Loc {
	if dir.Parent == fs.root && dir.Slot == -1 {
		return fs.root
	}
	return dir.Entry.FirstCluster
}

// ListDirectory lists the live entries of dir, matching spec.md §6's
// list_directory(fs, dir) → [listing].
func (fs *FileSystem) ListDirectory(dir DirEntry) ([]DirEntry, error) {
	head := fs.dirHead(dir)
	entries, err := fs.de.List(head)
	if err != nil {
		return nil, log.Wrap(err)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		_, slot, err := fs.de.Find(head, e.Name)
		if err != nil {
			return nil, log.Wrap(err)
		}
		out = append(out, DirEntry{Parent: head, Slot: slot, Entry: e})
	}
	return out, nil
}

// Describe renders a Stat for an already-resolved DirEntry, matching
// spec.md §6's describe(fs, handle_or_name) → stat and the richer
// file_stat shape SPEC_FULL.md's Lifecycle supplement adds.
func (fs *FileSystem) Describe(dir DirEntry) Stat {
	return Stat{
		Filename:   dir.Entry.Name,
		IsDir:      dir.Entry.IsDirectory,
		ReadOnly:   dir.Entry.ReadOnly,
		Hidden:     dir.Entry.Hidden,
		FileLength: dir.Entry.FileLength,
		Created:    dir.Entry.Created,
		Modified:   dir.Entry.Modified,
	}
}

// DescribeFilesystem reports the coarse allocation summary the Lifecycle
// supplement adds over the FAT engine's Stats(): free/used cluster counts,
// and their human-readable byte-count rendering for diagnostics.
func (fs *FileSystem) DescribeFilesystem() (free, used uint64, humanFree, humanUsed string) {
	free, used = fs.fe.Stats()
	clusterSize := uint64(fs.geo.ClusterSize())
	return free, used, humanize.Bytes(free * clusterSize), humanize.Bytes(used * clusterSize)
}

// CreateFile creates a new file named name inside parent with the given
// contents, matching spec.md §6's create_file(fs, parent, name, bytes) →
// dir_entry. Filename validation runs before any on-disk allocation, so a
// rejected name mutates nothing (spec.md §7).
func (fs *FileSystem) CreateFile(parent DirEntry, name string, data []byte) (DirEntry, error) {
	if err := dirent.ValidateFilename(name); err != nil {
		return DirEntry{}, log.Wrap(err)
	}
	head := fs.dirHead(parent)
	if _, _, err := fs.de.Find(head, name); err == nil {
		return DirEntry{}, ErrExists.WithMessage(name)
	}

	now := fs.ck.Now()
	entry := dirent.Entry{Name: name, Created: now, Modified: now}

	h, err := fileio.Create(fs.m, fs.enc, fs.key, fs.fe, fs.geo, entry, data)
	if err != nil {
		return DirEntry{}, log.Wrap(err)
	}

	slot, err := fs.de.WriteEntry(head, h.Entry)
	if err != nil {
		return DirEntry{}, log.Wrap(err)
	}
	return DirEntry{Parent: head, Slot: slot, Entry: h.Entry}, nil
}

// openHandle opens a fileio.Handle against file's already-resolved entry.
func (fs *FileSystem) openHandle(file DirEntry) *fileio.Handle {
	return fileio.Open(fs.m, fs.enc, fs.key, fs.fe, fs.geo, file.Entry)
}

// FileHandle is a positioned, readable/writable file, returned by Open so
// callers can Seek/Read/Write across several calls without re-resolving
// the directory entry each time.
type FileHandle struct {
	fs   *FileSystem
	dir  DirEntry
	h    *fileio.Handle
}

// Open resolves file and returns a FileHandle positioned at offset 0.
func (fs *FileSystem) Open(file DirEntry) *FileHandle {
	return &FileHandle{fs: fs, dir: file, h: fs.openHandle(file)}
}

// Seek repositions the handle's cursor, matching spec.md §6's
// seek_file(fs, file, offset, whence) → new_position.
func (fh *FileHandle) Seek(offset int64, whence int) (int64, error) {
	return fh.h.Seek(offset, whence)
}

// Read fills buf from the current cursor, matching spec.md §6's
// read_file(fs, file, buf, len) → bytes_read.
func (fh *FileHandle) Read(buf []byte) (int, error) {
	return fh.h.Read(buf)
}

// Write writes data at the current cursor, extending the file's chain and
// updating its length as needed, and syncs the updated length back to the
// directory entry that named it.
func (fh *FileHandle) Write(data []byte) (int, error) {
	n, err := fh.h.Write(data)
	if err != nil {
		return n, log.Wrap(err)
	}
	fh.h.Entry.Modified = fh.fs.ck.Now()
	slot, err := fh.fs.de.UpdateEntry(fh.dir.Parent, fh.dir.Slot, fh.h.Entry)
	if err != nil {
		return n, log.Wrap(err)
	}
	fh.dir.Slot = slot
	fh.dir.Entry = fh.h.Entry
	return n, nil
}

// Tell returns the handle's current byte offset.
func (fh *FileHandle) Tell() int64 { return fh.h.Tell() }

// SoftDelete marks file's directory entry deleted without reclaiming its
// space, matching spec.md §6's soft_delete. It remains invisible to
// ListDirectory/Find until Undelete.
func (fs *FileSystem) SoftDelete(file DirEntry) error {
	if err := fs.de.SoftDelete(file.Parent, file.Slot); err != nil {
		return log.Wrap(err)
	}
	return nil
}

// Undelete reverses a prior SoftDelete.
func (fs *FileSystem) Undelete(file DirEntry) error {
	if err := fs.de.Undelete(file.Parent, file.Slot); err != nil {
		return log.Wrap(err)
	}
	return nil
}

// HardDelete zeroes file's directory slots (tombstoning them if they
// aren't the directory's used tail) and reclaims its FAT chain, matching
// spec.md §4.8's hard_delete and the Lifecycle invariant that a
// hard-deleted file's clusters return to free. The FAT reclaim checks the
// first cluster's own entry before truncating, so it's a no-op rather than
// an error if the chain was already freed by an earlier call.
func (fs *FileSystem) HardDelete(file DirEntry) error {
	if err := fs.de.HardDelete(file.Parent, file.Slot); err != nil {
		return log.Wrap(err)
	}

	head := file.Entry.FirstCluster
	cur, err := fs.fe.ReadEntry(head)
	if err != nil {
		return log.Wrap(err)
	}
	if cur == fat.Free {
		return nil
	}
	if err := fs.fe.TruncateChain(head); err != nil {
		return log.Wrap(err)
	}
	if err := fs.fe.MarkFree(head); err != nil {
		return log.Wrap(err)
	}
	return nil
}

// Rename changes file's name in place, matching spec.md §6's rename.
// Returns the entry's possibly-new slot (a longer name may relocate it).
func (fs *FileSystem) Rename(file DirEntry, newName string) (DirEntry, error) {
	slot, err := fs.de.Rename(file.Parent, file.Slot, newName)
	if err != nil {
		return DirEntry{}, log.Wrap(err)
	}
	entry, _, err := fs.de.Find(file.Parent, newName)
	if err != nil {
		return DirEntry{}, log.Wrap(err)
	}
	return DirEntry{Parent: file.Parent, Slot: slot, Entry: entry}, nil
}

// MoveFile relocates file from its current parent into newParent, matching
// spec.md §6's move_file. The new entry is written before the old one is
// removed, so a crash mid-move leaves the file reachable from at least one
// parent (spec.md §4.8, §5).
func (fs *FileSystem) MoveFile(file DirEntry, newParent DirEntry) (DirEntry, error) {
	newHead := fs.dirHead(newParent)
	slot, err := fs.de.Move(file.Parent, file.Slot, newHead, file.Entry)
	if err != nil {
		return DirEntry{}, log.Wrap(err)
	}
	return DirEntry{Parent: newHead, Slot: slot, Entry: file.Entry}, nil
}
