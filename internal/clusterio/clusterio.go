// Package clusterio implements the encryption-block-aligned read/write path
// every other layer's bytes pass through: FAT entries, directory slots, and
// file payload alike (spec.md §4.6). The medium is addressed in whole
// cryptoseam.BlockSize-byte blocks; callers ask for arbitrary offsets and
// lengths, and this package handles the head/tail partial-block
// read-modify-write.
package clusterio

import (
	"github.com/jrh327/sfs/internal/cryptoseam"
	"github.com/jrh327/sfs/internal/medium"
)

// BlockSize is the crypto alignment unit, re-exported from cryptoseam for
// callers that only import clusterio.
const BlockSize = cryptoseam.BlockSize

// Stream reads and writes through a Medium, passing every block across an
// Encryptor before it leaves or arrives on disk. It carries no position of
// its own; it reads from and seeks on the Medium's current offset, so the
// caller (internal/fat, internal/dirent, internal/fileio) is in charge of
// seeking to the right place first.
type Stream struct {
	m   medium.Medium
	enc cryptoseam.Encryptor
	key cryptoseam.Key
}

// New builds a Stream over m, encrypting/decrypting every block with enc
// under key. Pass cryptoseam.IdentityEncryptor{} for an unencrypted image.
func New(m medium.Medium, enc cryptoseam.Encryptor, key cryptoseam.Key) *Stream {
	return &Stream{m: m, enc: enc, key: key}
}

// readBlock reads and decrypts exactly one BlockSize-byte block at the
// medium's current position, leaving the position advanced by BlockSize.
func (s *Stream) readBlock() ([BlockSize]byte, error) {
	var raw [BlockSize]byte
	if _, err := s.m.Read(raw[:]); err != nil {
		return raw, err
	}
	return s.enc.Decrypt(raw, s.key), nil
}

// writeBlock encrypts and writes exactly one BlockSize-byte block at the
// medium's current position.
func (s *Stream) writeBlock(block [BlockSize]byte) error {
	cipher := s.enc.Encrypt(block, s.key)
	_, err := s.m.Write(cipher[:])
	return err
}

// ReadRange reads len(buf) bytes starting at the medium's current position,
// decrypting whole blocks and splicing out any partial head/tail block
// (spec.md §4.6 read_range). It leaves the medium positioned immediately
// past the bytes read.
func (s *Stream) ReadRange(buf []byte) (int, error) {
	n := len(buf)
	if n == 0 {
		return 0, nil
	}

	pos, err := s.m.Tell()
	if err != nil {
		return 0, err
	}

	consumed := 0
	off := int(pos % BlockSize)
	if off != 0 {
		if _, err := s.m.Seek(pos-int64(off), medium.SeekSet); err != nil {
			return 0, err
		}
		block, err := s.readBlock()
		if err != nil {
			return 0, err
		}
		take := BlockSize - off
		if take > n {
			take = n
		}
		copy(buf[:take], block[off:off+take])
		consumed += take
		// readBlock already advanced the medium by a full block; rewind to
		// the logical position just past the bytes actually consumed.
		if _, err := s.m.Seek(pos+int64(take), medium.SeekSet); err != nil {
			return consumed, err
		}
	}

	mid := (n - consumed) / BlockSize * BlockSize
	if mid > 0 {
		raw := make([]byte, mid)
		if _, err := s.m.Read(raw); err != nil {
			return consumed, err
		}
		for i := 0; i < mid; i += BlockSize {
			var block [BlockSize]byte
			copy(block[:], raw[i:i+BlockSize])
			plain := s.enc.Decrypt(block, s.key)
			copy(buf[consumed:consumed+BlockSize], plain[:])
			consumed += BlockSize
		}
	}

	if r := n - consumed; r != 0 {
		block, err := s.readBlock()
		if err != nil {
			return consumed, err
		}
		copy(buf[consumed:consumed+r], block[:r])
		consumed += r
		curPos, _ := s.m.Tell()
		if _, err := s.m.Seek(curPos-BlockSize+int64(r), medium.SeekSet); err != nil {
			return consumed, err
		}
	}

	return consumed, nil
}

// WriteRange writes data starting at the medium's current position,
// encrypting whole blocks and read-modify-writing any partial head/tail
// block so the rest of that block's on-disk contents survive (spec.md §4.6
// write_range). It leaves the medium positioned immediately past the bytes
// written.
func (s *Stream) WriteRange(data []byte) (int, error) {
	n := len(data)
	if n == 0 {
		return 0, nil
	}

	pos, err := s.m.Tell()
	if err != nil {
		return 0, err
	}

	written := 0
	off := int(pos % BlockSize)
	if off != 0 {
		blockStart := pos - int64(off)
		if _, err := s.m.Seek(blockStart, medium.SeekSet); err != nil {
			return 0, err
		}
		block, err := s.readBlock()
		if err != nil {
			return 0, err
		}
		take := BlockSize - off
		if take > n {
			take = n
		}
		copy(block[off:off+take], data[:take])
		if _, err := s.m.Seek(blockStart, medium.SeekSet); err != nil {
			return written, err
		}
		if err := s.writeBlock(block); err != nil {
			return written, err
		}
		written += take
		if _, err := s.m.Seek(pos+int64(take), medium.SeekSet); err != nil {
			return written, err
		}
	}

	mid := (n - written) / BlockSize * BlockSize
	if mid > 0 {
		raw := make([]byte, mid)
		for i := 0; i < mid; i += BlockSize {
			var block [BlockSize]byte
			copy(block[:], data[written+i:written+i+BlockSize])
			cipher := s.enc.Encrypt(block, s.key)
			copy(raw[i:i+BlockSize], cipher[:])
		}
		if _, err := s.m.Write(raw); err != nil {
			return written, err
		}
		written += mid
	}

	if r := n - written; r != 0 {
		curPos, err := s.m.Tell()
		if err != nil {
			return written, err
		}
		block, err := s.readBlock()
		if err != nil {
			return written, err
		}
		copy(block[:r], data[written:written+r])
		if _, err := s.m.Seek(curPos, medium.SeekSet); err != nil {
			return written, err
		}
		if err := s.writeBlock(block); err != nil {
			return written, err
		}
		written += r
		if _, err := s.m.Seek(curPos+int64(r), medium.SeekSet); err != nil {
			return written, err
		}
	}

	return written, nil
}
