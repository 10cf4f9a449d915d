package sfs_test

import (
	"errors"
	"testing"

	"github.com/jrh327/sfs"
	"github.com/stretchr/testify/assert"
)

func TestSFSErrorWithMessage(t *testing.T) {
	newErr := sfs.ErrNotFound.WithMessage("report.txt")
	assert.Equal(t, "file not found: report.txt", newErr.Error())
	assert.ErrorIs(t, newErr, sfs.ErrNotFound)
}

func TestSFSErrorWrap(t *testing.T) {
	originalErr := errors.New("permission denied")
	newErr := sfs.ErrIO.Wrap(originalErr)

	assert.Equal(t, "I/O error: permission denied", newErr.Error())
	assert.ErrorIs(t, newErr, originalErr)
	assert.ErrorIs(t, newErr, sfs.ErrIO)
}
