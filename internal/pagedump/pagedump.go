// Package pagedump builds and renders tablespace pages. Building is a
// supplemental feature adapted from the original page-construction helpers
// (header/footer writers used to synthesize a fresh page for a given
// space/page/LSN), generalized here from "undo log page only" to any page
// type the caller supplies.
package pagedump

import (
	"errors"
	"fmt"

	"github.com/sitano/redolog-forensics/internal/redolog/intcodec"
	"github.com/sitano/redolog-forensics/internal/redolog/page"
	"github.com/sitano/redolog-forensics/internal/redolog/ring"
)

// ErrUnsupportedFlags is returned when the caller asks to build a page for
// flags outside the general full-CRC32, uncompressed, unencrypted tablespace
// this package supports.
var ErrUnsupportedFlags = errors.New("pagedump: unsupported tablespace flags")

// generalFullCRC32Flags is the flags word for a general tablespace, no
// encryption, no compression, in the full-CRC32 layout: PAGE_SSIZE 5 (16K)
// in bits 0..3 plus the full-CRC32 marker in bit 4, compression algorithm 0,
// matching the reference "0x15" constant.
const generalFullCRC32Flags uint32 = 0x15

// BuildPage writes a fresh page header and full-CRC32 footer for the given
// identity into buf, which must already be sized to flags' logical page
// size. The whole buffer is zeroed first and the body between header and
// footer is left zeroed; callers that fill in record data afterwards must
// call MakePageFooter again to refresh the footer.
func BuildPage(buf []byte, spaceID, pageNo uint32, pageType uint16, pageLSN uint64, flags uint32) error {
	if flags != generalFullCRC32Flags {
		return fmt.Errorf("%w: %#x", ErrUnsupportedFlags, flags)
	}

	size := page.LogicalSize(flags)
	if len(buf) != size {
		return fmt.Errorf("pagedump: buffer length %d does not match logical size %d", len(buf), size)
	}

	for i := range buf {
		buf[i] = 0
	}

	if err := MakePageHeader(buf, spaceID, pageNo, pageType, pageLSN, flags); err != nil {
		return err
	}
	return MakePageFooter(buf)
}

// BuildUndoLogPage builds a fresh TypeUndoLog page, matching the reference
// make_undo_log_page entry point.
func BuildUndoLogPage(buf []byte, spaceID, pageNo uint32, pageLSN uint64, flags uint32) error {
	return BuildPage(buf, spaceID, pageNo, page.TypeUndoLog, pageLSN, flags)
}

// MakePageHeader writes the 38-byte page header described in §6. flags must
// be the general full-CRC32 tablespace flags this package supports.
func MakePageHeader(buf []byte, spaceID, pageNo uint32, pageType uint16, pageLSN uint64, flags uint32) error {
	if flags != generalFullCRC32Flags {
		return fmt.Errorf("%w: %#x", ErrUnsupportedFlags, flags)
	}
	if len(buf) < page.HeaderSize {
		return fmt.Errorf("pagedump: buffer shorter than header")
	}

	if err := intcodec.WriteU32(buf[page.OffsetSpaceOrChecksum:], 0); err != nil {
		return err
	}
	if err := intcodec.WriteU32(buf[page.OffsetPageNo:], pageNo); err != nil {
		return err
	}
	if err := intcodec.WriteU32(buf[page.OffsetPrevPage:], page.FILNull); err != nil {
		return err
	}
	if err := intcodec.WriteU32(buf[page.OffsetNextPage:], page.FILNull); err != nil {
		return err
	}
	if err := intcodec.WriteU64(buf[page.OffsetPageLSN:], pageLSN); err != nil {
		return err
	}
	if err := intcodec.WriteU16(buf[page.OffsetPageType:], pageType); err != nil {
		return err
	}
	if err := intcodec.WriteU32(buf[page.OffsetSpaceID:], spaceID); err != nil {
		return err
	}

	return nil
}

// MakePageFooter writes the full-CRC32 footer: the low 32 bits of the page
// LSN followed by the CRC-32C of everything preceding it.
func MakePageFooter(buf []byte) error {
	size := len(buf)
	endLSNOffset := size - page.FCRC32EndLSNFromEnd
	checksumOffset := size - page.FCRC32ChecksumFromEnd

	pageLSN, err := intcodec.ReadU64(buf[page.OffsetPageLSN:])
	if err != nil {
		return err
	}

	if err := intcodec.WriteU32(buf[endLSNOffset:], uint32(pageLSN)); err != nil {
		return err
	}

	crc := ring.CRC32C32(buf[:checksumOffset])
	return intcodec.WriteU32(buf[checksumOffset:], crc)
}

// Describe renders a one-line human-readable summary of a decoded page,
// adapted from the reference Display implementation.
func Describe(p *page.Page) string {
	prev := "None"
	if p.PrevPage != page.FILNull {
		prev = fmt.Sprintf("%d", p.PrevPage)
	}
	next := "None"
	if p.NextPage != page.FILNull {
		next = fmt.Sprintf("%d", p.NextPage)
	}

	return fmt.Sprintf(
		"space=%d page=%d prev=%s next=%s lsn=%d type=%d checksum=%#x",
		p.SpaceID, p.PageNo, prev, next, p.PageLSN, p.PageType, p.FootChecksum,
	)
}
