// Package ring implements the position-addressed byte region described by
// the redo log's ring buffer: a fixed header followed by a body that wraps
// modulo its capacity, addressed by an abstract 64-bit position (an LSN).
package ring

import (
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/sitano/redolog-forensics/internal/redolog/intcodec"
)

// ErrShortRead is returned when the underlying region is smaller than a
// requested field.
var ErrShortRead = intcodec.ErrShortRead

// ErrPosOverflow is returned when advancing a position would overflow the
// 64-bit counter.
var ErrPosOverflow = errors.New("ring: position overflow")

var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// View is an immutable byte region split into a header `[0, h)` and a body
// `[h, size)` whose capacity is `size - h`.
type View struct {
	buf    []byte
	header int
}

// NewView wraps buf as a ring region with the given header size. header must
// not exceed len(buf).
func NewView(buf []byte, header int) (*View, error) {
	if header > len(buf) {
		return nil, fmt.Errorf("ring: header %d exceeds buffer length %d: %w", header, len(buf), ErrShortRead)
	}
	return &View{buf: buf, header: header}, nil
}

// Header returns the header size in bytes.
func (v *View) Header() int { return v.header }

// Capacity returns the body's capacity in bytes.
func (v *View) Capacity() int { return len(v.buf) - v.header }

// Len returns the total region size, header plus body.
func (v *View) Len() int { return len(v.buf) }

// Bytes returns the raw underlying bytes. Callers must not retain slices
// across a mutation of the backing storage.
func (v *View) Bytes() []byte { return v.buf }

// Offset translates an abstract position into a concrete byte offset in the
// underlying buffer: positions below the header address it directly;
// positions at or past the header wrap modulo capacity.
func Offset(header, capacity int, pos uint64) int {
	if pos < uint64(header) {
		return int(pos)
	}
	return header + int((pos-uint64(header))%uint64(capacity))
}

// Offset translates pos using this view's header and capacity.
func (v *View) Offset(pos uint64) int {
	return Offset(v.header, v.Capacity(), pos)
}

// Cursor is a read cursor over a View, positioned at an abstract LSN.
type Cursor struct {
	view *View
	pos  uint64
}

// NewCursor returns a cursor over view positioned at pos.
func NewCursor(view *View, pos uint64) *Cursor {
	return &Cursor{view: view, pos: pos}
}

// Pos returns the cursor's current abstract position.
func (c *Cursor) Pos() uint64 { return c.pos }

// Header returns the view's header size.
func (c *Cursor) Header() int { return c.view.header }

// Capacity returns the view's body capacity.
func (c *Cursor) Capacity() int { return c.view.Capacity() }

// Clone returns an independent copy of the cursor at the same position.
func (c *Cursor) Clone() *Cursor {
	return &Cursor{view: c.view, pos: c.pos}
}

// Plus returns a new cursor advanced by n bytes, without mutating c. This is
// the `+` combinator from the design notes.
func (c *Cursor) Plus(n uint64) *Cursor {
	nc := c.Clone()
	nc.Advance(n)
	return nc
}

// Advance moves the cursor forward by n bytes. It returns ErrPosOverflow if
// doing so would overflow the 64-bit position counter.
func (c *Cursor) Advance(n uint64) error {
	if c.pos > ^uint64(0)-n {
		return ErrPosOverflow
	}
	c.pos += n
	return nil
}

// ensure reports whether the view is at least t bytes long in total, the
// minimum needed to host a field of that width anywhere in header or body.
func (c *Cursor) ensure(t int) error {
	if c.view.Len() < t {
		return fmt.Errorf("ring: region too short for %d-byte field: %w", t, ErrShortRead)
	}
	return nil
}

// PeekU8 returns the byte at the cursor position without advancing.
func (c *Cursor) PeekU8() (byte, error) {
	if err := c.ensure(1); err != nil {
		return 0, err
	}
	return c.view.buf[c.view.Offset(c.pos)], nil
}

// ReadU8 reads one byte at the cursor and advances past it.
func (c *Cursor) ReadU8() (byte, error) {
	b, err := c.PeekU8()
	if err != nil {
		return 0, err
	}
	_ = c.Advance(1)
	return b, nil
}

// ReadU32 reads a big-endian uint32 at the cursor and advances past it.
func (c *Cursor) ReadU32() (uint32, error) {
	if err := c.ensure(4); err != nil {
		return 0, err
	}
	buf, err := c.CopyRange(c.pos, 4)
	if err != nil {
		return 0, err
	}
	v, err := intcodec.ReadU32(buf)
	if err != nil {
		return 0, err
	}
	_ = c.Advance(4)
	return v, nil
}

// ReadU64 reads a big-endian uint64 at the cursor and advances past it.
func (c *Cursor) ReadU64() (uint64, error) {
	if err := c.ensure(8); err != nil {
		return 0, err
	}
	buf, err := c.CopyRange(c.pos, 8)
	if err != nil {
		return 0, err
	}
	v, err := intcodec.ReadU64(buf)
	if err != nil {
		return 0, err
	}
	_ = c.Advance(8)
	return v, nil
}

// CopyRange copies n bytes starting at pos into a freshly allocated,
// wrap-flattened slice. The copy splits at most once, at the body boundary.
func (c *View) CopyRange(pos uint64, n int) ([]byte, error) {
	out := make([]byte, n)
	offset0 := c.Offset(pos)

	size1 := len(c.buf) - offset0
	if size1 > n {
		size1 = n
	}
	copy(out[:size1], c.buf[offset0:offset0+size1])

	if size1 == n {
		return out, nil
	}

	remaining := n - size1
	size2 := offset0
	if size2 > remaining {
		size2 = remaining
	}
	copy(out[size1:size1+size2], c.buf[c.header:c.header+size2])

	if size1+size2 != n {
		return nil, fmt.Errorf("ring: copy range of %d bytes at pos %d: %w", n, pos, ErrShortRead)
	}

	return out, nil
}

// CopyRange copies n bytes starting at pos using the cursor's view.
func (c *Cursor) CopyRange(pos uint64, n int) ([]byte, error) {
	return c.view.CopyRange(pos, n)
}

// AllZero reports whether the n bytes starting at pos are all zero.
func (c *Cursor) AllZero(pos uint64, n int) (bool, error) {
	buf, err := c.CopyRange(pos, n)
	if err != nil {
		return false, err
	}
	for _, b := range buf {
		if b != 0 {
			return false, nil
		}
	}
	return true, nil
}

// CRC32C returns the CRC-32C (Castagnoli) checksum of the n bytes starting
// at pos, streamed across the wrap in at most two chunks without
// materializing the flattened range.
func (c *Cursor) CRC32C(pos uint64, n int) (uint32, error) {
	offset0 := c.view.Offset(pos)
	buf := c.view.buf

	size1 := len(buf) - offset0
	if size1 > n {
		size1 = n
	}

	crc := crc32.Update(0, crc32cTable, buf[offset0:offset0+size1])
	if size1 == n {
		return crc, nil
	}

	remaining := n - size1
	size2 := offset0
	if size2 > remaining {
		size2 = remaining
	}
	if size1+size2 != n {
		return 0, fmt.Errorf("ring: crc32c range of %d bytes at pos %d: %w", n, pos, ErrShortRead)
	}

	crc = crc32.Update(crc, crc32cTable, buf[c.view.header:c.view.header+size2])
	return crc, nil
}

// GenerationBit returns the expected MTR chain terminator byte at lsn: 1 iff
// the LSN falls in an even pass over the ring, 0 otherwise. It is a phase
// bit distinguishing the current pass's records from stale bytes left by the
// previous pass, not a version counter (see design notes).
func GenerationBit(firstLSN, capacity, lsn uint64) byte {
	if ((lsn-firstLSN)/capacity)&1 == 0 {
		return 1
	}
	return 0
}

// CRC32C32 computes the plain (non-ring) CRC-32C of buf, for comparison
// against Cursor.CRC32C in tests and for flat regions like page buffers and
// header blocks.
func CRC32C32(buf []byte) uint32 {
	return crc32.Checksum(buf, crc32cTable)
}
