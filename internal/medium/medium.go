// Package medium wraps the backing store — a regular file, a raw device, or
// an in-memory buffer — behind a small integer-handle-shaped interface:
// read/write/seek/tell/truncate/close. Every higher layer goes through this
// seam so the core never cares whether it's talking to an *os.File, an
// afero.Fs entry, or a byte slice in a test.
package medium

//go:generate mockgen -source=medium.go -destination=mock_medium.go -package=medium

import (
	"io"

	"github.com/jrh327/sfs/internal/sfserr"
	"github.com/spf13/afero"
	"github.com/xaionaro-go/bytesextra"
)

// Whence values for Seek, matching os.SEEK_SET/SEEK_CUR/SEEK_END so callers
// can pass io.Seeker constants directly.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)

// Medium is the random-access byte medium the core assumes: read, write,
// seek, tell, truncate, close over an opaque handle. Both Read and Write
// loop internally until all requested bytes move, returning early only on
// EOF or error (spec.md §4.2).
type Medium interface {
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Tell() (int64, error)
	Truncate(size int64) error
	Close() error
}

// loopRead and loopWrite are shared by every Medium implementation below:
// they loop a single-shot reader/writer until the whole buffer has moved, or
// until it hits EOF or an error.
func loopRead(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			if err == io.EOF {
				return total, io.EOF
			}
			return total, sfserr.ErrIO.Wrap(err)
		}
		if n == 0 {
			return total, io.EOF
		}
	}
	return total, nil
}

func loopWrite(w io.Writer, data []byte) (int, error) {
	total := 0
	for total < len(data) {
		n, err := w.Write(data[total:])
		total += n
		if err != nil {
			return total, sfserr.ErrIO.Wrap(err)
		}
		if n == 0 {
			return total, sfserr.ErrShortWrite
		}
	}
	return total, nil
}

// OSMedium wraps a plain *os.File (or any ReadWriteSeeker+Truncate+Close
// combination over a real file descriptor).
type OSMedium struct {
	f osFile
}

type osFile interface {
	io.ReadWriteSeeker
	io.Closer
	Truncate(size int64) error
}

// NewOSMedium wraps an already-open file-like handle.
func NewOSMedium(f osFile) *OSMedium {
	return &OSMedium{f: f}
}

func (m *OSMedium) Read(buf []byte) (int, error)  { return loopRead(m.f, buf) }
func (m *OSMedium) Write(data []byte) (int, error) { return loopWrite(m.f, data) }
func (m *OSMedium) Seek(offset int64, whence int) (int64, error) {
	pos, err := m.f.Seek(offset, whence)
	if err != nil {
		return pos, classifyOSError(err)
	}
	return pos, nil
}
func (m *OSMedium) Tell() (int64, error) { return m.f.Seek(0, io.SeekCurrent) }
func (m *OSMedium) Truncate(size int64) error {
	if err := m.f.Truncate(size); err != nil {
		return classifyOSError(err)
	}
	return nil
}
func (m *OSMedium) Close() error {
	if err := m.f.Close(); err != nil {
		return classifyOSError(err)
	}
	return nil
}

// AferoMedium wraps an afero.File, letting the core run against
// afero.NewMemMapFs() in integration tests or any other afero backend
// interchangeably with a real OS file.
type AferoMedium struct {
	f afero.File
}

// NewAferoMedium wraps an already-open afero.File.
func NewAferoMedium(f afero.File) *AferoMedium {
	return &AferoMedium{f: f}
}

func (m *AferoMedium) Read(buf []byte) (int, error)  { return loopRead(m.f, buf) }
func (m *AferoMedium) Write(data []byte) (int, error) { return loopWrite(m.f, data) }
func (m *AferoMedium) Seek(offset int64, whence int) (int64, error) {
	pos, err := m.f.Seek(offset, whence)
	if err != nil {
		return pos, sfserr.ErrIO.Wrap(err)
	}
	return pos, nil
}
func (m *AferoMedium) Tell() (int64, error) { return m.f.Seek(0, io.SeekCurrent) }
func (m *AferoMedium) Truncate(size int64) error {
	if err := m.f.Truncate(size); err != nil {
		return sfserr.ErrIO.Wrap(err)
	}
	return nil
}
func (m *AferoMedium) Close() error {
	if err := m.f.Close(); err != nil {
		return sfserr.ErrIO.Wrap(err)
	}
	return nil
}

// BufferMedium is an in-memory Medium over a growable byte slice, used by
// every other package's tests. The fixed-capacity stream underneath is
// built with bytesextra.NewReadWriteSeeker; BufferMedium re-wraps it on
// every growth since that stream's capacity is fixed at construction.
type BufferMedium struct {
	data []byte
	rws  io.ReadWriteSeeker
	pos  int64
}

// NewBufferMedium creates a BufferMedium over a copy of initial.
func NewBufferMedium(initial []byte) *BufferMedium {
	data := make([]byte, len(initial))
	copy(data, initial)
	return &BufferMedium{
		data: data,
		rws:  bytesextra.NewReadWriteSeeker(data),
	}
}

// Bytes returns the medium's current backing buffer. Callers must not
// retain it across further writes.
func (m *BufferMedium) Bytes() []byte {
	return m.data
}

func (m *BufferMedium) ensureCapacity(size int64) {
	if size <= int64(len(m.data)) {
		return
	}
	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
	m.rws = bytesextra.NewReadWriteSeeker(m.data)
	m.rws.Seek(m.pos, io.SeekStart)
}

func (m *BufferMedium) Read(buf []byte) (int, error) {
	n, err := loopRead(m.rws, buf)
	m.pos, _ = m.rws.Seek(0, io.SeekCurrent)
	return n, err
}

func (m *BufferMedium) Write(data []byte) (int, error) {
	m.ensureCapacity(m.pos + int64(len(data)))
	n, err := loopWrite(m.rws, data)
	m.pos, _ = m.rws.Seek(0, io.SeekCurrent)
	return n, err
}

func (m *BufferMedium) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = m.pos + offset
	case io.SeekEnd:
		target = int64(len(m.data)) + offset
	}
	if target < 0 {
		return m.pos, sfserr.ErrInvalidArgument.WithMessage("negative seek target")
	}
	m.ensureCapacity(target)
	pos, err := m.rws.Seek(target, io.SeekStart)
	if err != nil {
		return m.pos, sfserr.ErrIO.Wrap(err)
	}
	m.pos = pos
	return pos, nil
}

func (m *BufferMedium) Tell() (int64, error) { return m.pos, nil }

func (m *BufferMedium) Truncate(size int64) error {
	if size < 0 {
		return sfserr.ErrInvalidArgument.WithMessage("negative truncate size")
	}
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
	} else {
		m.ensureCapacity(size)
	}
	m.rws = bytesextra.NewReadWriteSeeker(m.data)
	if m.pos > size {
		m.pos = size
	}
	m.rws.Seek(m.pos, io.SeekStart)
	return nil
}

func (m *BufferMedium) Close() error { return nil }
