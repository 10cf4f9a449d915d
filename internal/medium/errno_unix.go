//go:build !windows
// +build !windows

package medium

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/jrh327/sfs/internal/sfserr"
)

// classifyOSError inspects err for an underlying syscall.Errno (surfaced
// through os.PathError/os.LinkError by the standard library) and maps the
// handful of errnos the core cares about onto the sfs error taxonomy,
// falling back to a generic ErrIO wrap for everything else.
func classifyOSError(err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		switch errno {
		case unix.ENOSPC:
			return sfserr.ErrOutOfSpace.Wrap(err)
		case unix.EINVAL:
			return sfserr.ErrInvalidArgument.Wrap(err)
		}
	}
	return sfserr.ErrIO.Wrap(err)
}
