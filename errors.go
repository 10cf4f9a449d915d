// Package sfs implements a single-file, optionally encrypted, FAT-inspired
// block filesystem: boot sector, FAT allocator, cluster I/O, directory
// entries and the file read/write/seek state machine all live inside one
// host file.
package sfs

import "github.com/jrh327/sfs/internal/sfserr"

// SFSError is a taxonomy of the error kinds the core can return, mirroring
// the teacher's DiskoError string-constant enumeration. It is an alias for
// internal/sfserr's type so every internal package can share the same
// taxonomy without importing this root package back.
type SFSError = sfserr.SFSError

// WrappedError carries an SFSError kind plus additional context, without
// losing errors.Is/errors.Unwrap compatibility with the underlying kind.
type WrappedError = sfserr.WrappedError

const (
	// ErrBadMagic means the medium does not carry an SFS boot sector.
	ErrBadMagic = sfserr.ErrBadMagic
	// ErrShortRead means the medium returned fewer bytes than requested.
	// When the medium reported an error of its own (such as EOF), that
	// error is wrapped.
	ErrShortRead = sfserr.ErrShortRead
	// ErrShortWrite means the medium wrote fewer bytes than requested.
	ErrShortWrite = sfserr.ErrShortWrite
	// ErrIO wraps an opaque, otherwise-unclassified medium error.
	ErrIO = sfserr.ErrIO
	// ErrOutOfSpace means the FAT free cursor could not advance any
	// further: the fat_number field would overflow uint16. It also wraps
	// an OS-level ENOSPC from the medium, and a FAT link write that failed
	// while an allocation was being committed.
	ErrOutOfSpace = sfserr.ErrOutOfSpace
	// ErrInvalidArgument means a negative seek, oversize filename, or
	// malformed geometry argument was supplied.
	ErrInvalidArgument = sfserr.ErrInvalidArgument
	// ErrNotFound means the named file is absent from its parent
	// directory.
	ErrNotFound = sfserr.ErrNotFound
	// ErrCorruption means a structural invariant was violated: a FAT
	// cycle, a continuation-count mismatch, or unterminated UTF-8 in a
	// filename slot.
	ErrCorruption = sfserr.ErrCorruption
	// ErrExists means create_file was asked to create a name that
	// already exists in the parent directory.
	ErrExists = sfserr.ErrExists
	// ErrClosed means an operation was attempted on a closed filesystem
	// or file handle.
	ErrClosed = sfserr.ErrClosed
)
