// Package page implements the tablespace page codec: header/trailer
// layout, tablespace flags parsing and validation, and CRC-32C verification
// in the "full CRC32" variant.
package page

import (
	"errors"
	"fmt"

	"github.com/sitano/redolog-forensics/internal/redolog/intcodec"
	"github.com/sitano/redolog-forensics/internal/redolog/ring"
)

// Page header field offsets, §6.
const (
	OffsetSpaceOrChecksum = 0
	OffsetPageNo          = 4
	OffsetPrevPage        = 8
	OffsetNextPage        = 12
	OffsetPageLSN         = 16
	OffsetPageType        = 24
	OffsetSpaceID         = 34
	HeaderSize            = 38
)

// Full-CRC32 trailer field distances from the end of the page.
const (
	FCRC32EndLSNFromEnd   = 8
	FCRC32ChecksumFromEnd = 4
)

// FILNull is the "undefined" page offset sentinel.
const FILNull uint32 = 0xFFFFFFFF

// Page type values referenced by this package.
const (
	TypeUndoLog         uint16 = 2
	TypeIndex           uint16 = 17855
	FCRC32CompressMarker uint16 = 1 << 15 // bit 15
)

var (
	// ErrShortRead is returned when the supplied buffer is shorter than a
	// logical page of the size implied by the flags.
	ErrShortRead = errors.New("page: short read")
	// ErrPageChecksum is returned when a page's CRC does not match.
	ErrPageChecksum = errors.New("page: checksum mismatch")
	// ErrInvalidFlags is returned when tablespace flags fail validation.
	ErrInvalidFlags = errors.New("page: invalid tablespace flags")
	// ErrSizeMismatch is returned when the buffer length does not match the
	// size implied by the flags.
	ErrSizeMismatch = errors.New("page: size does not match flags")
	// ErrSpaceIDMismatch is returned when a page's space-id disagrees with
	// the tablespace's declared space-id, established by the first page.
	ErrSpaceIDMismatch = errors.New("page: space-id does not match tablespace's first page")
	// ErrFirstPageZeroed is returned when a tablespace's first page is
	// all-zero yet declares a nonzero space-id or flags.
	ErrFirstPageZeroed = errors.New("page: first page is all-zero but declares a nonzero space-id or flags")
)

// Page is a decoded view over a fixed-size tablespace page buffer. Decoding
// is zero-copy: Buf aliases the caller-supplied slice.
type Page struct {
	SpaceID       uint32
	PageNo        uint32
	PrevPage      uint32
	NextPage      uint32
	PageLSN       uint64
	PageType      uint16
	HeadChecksum  uint32
	FootChecksum  uint32
	FootLSN       uint32
	Flags         uint32
	Compressed    bool
	CompressedLen int

	Buf []byte
}

// Decode parses buf as a page governed by the given tablespace flags. buf's
// length must equal the physical size implied by flags (after full-CRC32
// compressed-size recovery, below).
func Decode(flags uint32, buf []byte) (*Page, error) {
	if err := ValidateFlags(flags); err != nil {
		return nil, err
	}

	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("page: buffer shorter than header: %w", ErrShortRead)
	}

	pageType, err := intcodec.ReadU16(buf[OffsetPageType:])
	if err != nil {
		return nil, fmt.Errorf("page: read type: %w", err)
	}

	physSize, compressed, corrupted := recoverFullCRC32Size(len(buf), pageType)
	if corrupted {
		return nil, fmt.Errorf("page: compressed size %d exceeds page size %d: %w", physSize, len(buf), ErrSizeMismatch)
	}

	want := LogicalSize(flags)
	if want != 0 && !compressed && physSize != want {
		return nil, fmt.Errorf("page: physical size %d does not match flags-implied size %d: %w", physSize, want, ErrSizeMismatch)
	}

	view := buf[:physSize]

	headChecksum, err := intcodec.ReadU32(view[OffsetSpaceOrChecksum:])
	if err != nil {
		return nil, err
	}
	pageNo, err := intcodec.ReadU32(view[OffsetPageNo:])
	if err != nil {
		return nil, err
	}
	prevPage, err := intcodec.ReadU32(view[OffsetPrevPage:])
	if err != nil {
		return nil, err
	}
	nextPage, err := intcodec.ReadU32(view[OffsetNextPage:])
	if err != nil {
		return nil, err
	}
	pageLSN, err := intcodec.ReadU64(view[OffsetPageLSN:])
	if err != nil {
		return nil, err
	}
	spaceID, err := intcodec.ReadU32(view[OffsetSpaceID:])
	if err != nil {
		return nil, err
	}

	footLSN, err := intcodec.ReadU32(view[physSize-FCRC32EndLSNFromEnd:])
	if err != nil {
		return nil, err
	}
	footChecksum, err := intcodec.ReadU32(view[physSize-FCRC32ChecksumFromEnd:])
	if err != nil {
		return nil, err
	}

	return &Page{
		SpaceID:       spaceID,
		PageNo:        pageNo,
		PrevPage:      prevPage,
		NextPage:      nextPage,
		PageLSN:       pageLSN,
		PageType:      pageType,
		HeadChecksum:  headChecksum,
		FootChecksum:  footChecksum,
		FootLSN:       footLSN,
		Flags:         flags,
		Compressed:    compressed,
		CompressedLen: physSize,
		Buf:           view,
	}, nil
}

// recoverFullCRC32Size implements §4.3's compressed page size recovery.
func recoverFullCRC32Size(pageSize int, pageType uint16) (size int, compressed, corrupted bool) {
	if pageType&FCRC32CompressMarker == 0 {
		return pageSize, false, false
	}

	claimed := int(pageType&^FCRC32CompressMarker) << 8
	if claimed < pageSize {
		return claimed, true, false
	}
	return pageSize, false, true
}

// Corrupted validates the page's CRC per §4.3 rule 5 (full-CRC32 path). An
// all-zero page, stored checksum field included, is treated as
// not-corrupted.
func (p *Page) Corrupted() error {
	checksumOffset := len(p.Buf) - FCRC32ChecksumFromEnd

	if isAllZero(p.Buf[:checksumOffset]) && p.FootChecksum == 0 {
		return nil
	}

	got := ring.CRC32C32(p.Buf[:checksumOffset])
	if got != p.FootChecksum {
		return fmt.Errorf("page: space=%d page=%d: computed %#x, stored %#x: %w", p.SpaceID, p.PageNo, got, p.FootChecksum, ErrPageChecksum)
	}
	return nil
}

func isAllZero(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// Tablespace threads first-page state across a sequence of pages decoded
// from the same datafile, grounded on tablespace.rs's TablespaceReader:
// read_first_page_flags establishes the tablespace's declared space-id and
// flags once, from page 0, and every later page is cross-validated against
// it rather than re-deriving it from scratch.
type Tablespace struct {
	SpaceID uint32
	Flags   uint32
	seen    bool
}

// Observe applies integrity rules 3 and 4 (§4.3) to p. The first call
// records p as the tablespace's first page and enforces rule 4; later
// calls enforce rule 3 against the recorded space-id.
func (t *Tablespace) Observe(p *Page) error {
	if !t.seen {
		if isAllZero(p.Buf) && (p.SpaceID != 0 || p.Flags != 0) {
			return fmt.Errorf("page: first page is all-zero but declares space=%d flags=%#x: %w", p.SpaceID, p.Flags, ErrFirstPageZeroed)
		}
		t.SpaceID = p.SpaceID
		t.Flags = p.Flags
		t.seen = true
		return nil
	}
	if p.SpaceID != t.SpaceID {
		return fmt.Errorf("page: space=%d page=%d: does not match tablespace's declared space-id %d: %w", p.SpaceID, p.PageNo, t.SpaceID, ErrSpaceIDMismatch)
	}
	return nil
}

// ValidateIntegrity runs §4.3's integrity rules 3 through 5 against p, in
// order, failing at the first violated rule. ts is nil when no cross-page
// tablespace context is available; rules 3 and 4 are then skipped, per
// §4.3's "when cross-validated against the first page" qualifier. Rules 1
// and 2 are already enforced by Decode.
func (p *Page) ValidateIntegrity(ts *Tablespace) error {
	if ts != nil {
		if err := ts.Observe(p); err != nil {
			return err
		}
	}
	return p.Corrupted()
}

// Tablespace flags bit layout, §3/§4.3.
const (
	posPostAntelope   = 0
	widthPostAntelope = 1
	posZipSSize       = 1
	widthZipSSize     = 4
	posAtomicBlobs    = 5
	widthAtomicBlobs  = 1
	posPageSSize      = 6
	widthPageSSize    = 4
	posReserved       = 10
	widthReserved     = 6
	posPageCompress   = 16
	widthPageCompress = 1

	// Full-CRC32 disjoint layout.
	posFCPageSSize   = 0
	widthFCPageSSize = 4
	posFCMarker      = 4
	widthFCMarker    = 1
	posFCCompAlgo    = 5
	widthFCCompAlgo  = 3
)

func getBits(flags uint32, pos, width uint) uint32 {
	mask := uint32(1)<<width - 1
	return (flags >> pos) & mask
}

// FullCRC32 reports whether flags selects the full-CRC32 trailer layout.
func FullCRC32(flags uint32) bool {
	return getBits(flags, posFCMarker, widthFCMarker) != 0
}

// ValidateFlags validates a tablespace flags word against §4.3's table.
func ValidateFlags(flags uint32) error {
	if FullCRC32(flags) {
		ssize := getBits(flags, posFCPageSSize, widthFCPageSSize)
		switch ssize {
		case 3, 4, 5, 6, 7:
		default:
			return fmt.Errorf("page: full-crc32 page_ssize %d invalid: %w", ssize, ErrInvalidFlags)
		}
		algo := getBits(flags, posFCCompAlgo, widthFCCompAlgo)
		if algo > 6 {
			return fmt.Errorf("page: full-crc32 compression algo %d invalid: %w", algo, ErrInvalidFlags)
		}
		return nil
	}

	postAntelope := getBits(flags, posPostAntelope, widthPostAntelope)
	atomicBlobs := getBits(flags, posAtomicBlobs, widthAtomicBlobs)
	if atomicBlobs != 0 && postAntelope == 0 {
		return fmt.Errorf("page: atomic_blobs set without post_antelope (flags %#x): %w", flags, ErrInvalidFlags)
	}

	zip := getBits(flags, posZipSSize, widthZipSSize)
	pageSSize := getBits(flags, posPageSSize, widthPageSSize)
	if zip != 0 {
		maxZip := pageSSize
		if maxZip > 5 {
			maxZip = 5
		}
		if zip > maxZip {
			return fmt.Errorf("page: zip_ssize %d exceeds limit %d: %w", zip, maxZip, ErrInvalidFlags)
		}
	}

	switch pageSSize {
	case 0, 3, 4, 6, 7:
	default:
		return fmt.Errorf("page: page_ssize %d invalid: %w", pageSSize, ErrInvalidFlags)
	}

	reserved := getBits(flags, posReserved, widthReserved)
	if reserved&^1 != 0 {
		return fmt.Errorf("page: reserved bits %#x invalid: %w", reserved, ErrInvalidFlags)
	}

	return nil
}

// LogicalSize returns the page size in bytes implied by flags, or 0 if the
// flags do not determine one. PAGE_SSIZE 0 in non-full-crc32 mode means the
// 16 KiB default; in full-crc32 mode 16 KiB is PAGE_SSIZE 5 and PAGE_SSIZE 0
// determines no size.
func LogicalSize(flags uint32) int {
	full := FullCRC32(flags)
	ssize := getBits(flags, posPageSSize, widthPageSSize)
	if full {
		ssize = getBits(flags, posFCPageSSize, widthFCPageSSize)
	}

	switch ssize {
	case 3:
		return 4096
	case 4:
		return 8192
	case 5:
		if full {
			return 16384
		}
		return 0
	case 0:
		if !full {
			return 16384
		}
		return 0
	case 6:
		return 32768
	case 7:
		return 65536
	default:
		return 0
	}
}
