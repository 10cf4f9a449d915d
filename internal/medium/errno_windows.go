//go:build windows
// +build windows

package medium

import "github.com/jrh327/sfs/internal/sfserr"

// classifyOSError has no errno to inspect on windows; every OS-level
// failure becomes a generic ErrIO.
func classifyOSError(err error) error {
	if err == nil {
		return nil
	}
	return sfserr.ErrIO.Wrap(err)
}
