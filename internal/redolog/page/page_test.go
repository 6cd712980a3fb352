package page

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/sitano/redolog-forensics/internal/redolog/ring"
)

type PageTestSuite struct {
	suite.Suite
}

func TestPageTestSuite(t *testing.T) {
	suite.Run(t, new(PageTestSuite))
}

func (s *PageTestSuite) TestValidateFlagsFullCRC32() {
	// page_ssize=5 (16K), marker=1, algo=0 -> 0x15
	s.Require().NoError(ValidateFlags(0x15))
}

func (s *PageTestSuite) TestValidateFlagsLegacyRejectsBadSSize() {
	err := ValidateFlags(0x40) // non-full-crc32, page_ssize=1: not a valid page_ssize
	s.Error(err)
}

func (s *PageTestSuite) TestLogicalSizeFullCRC32() {
	s.Equal(16384, LogicalSize(0x15))
}

func (s *PageTestSuite) TestLogicalSizeLegacyDefault() {
	s.Equal(16384, LogicalSize(0))
}

func (s *PageTestSuite) TestAllZeroPageIsNotCorrupted() {
	buf := make([]byte, 16384)
	p, err := Decode(0x15, buf)
	s.Require().NoError(err)
	s.NoError(p.Corrupted())
}

func (s *PageTestSuite) TestFlippedBitIsCorrupted() {
	buf := make([]byte, 16384)
	p, err := Decode(0x15, buf)
	s.Require().NoError(err)
	s.Require().NoError(p.Corrupted())

	buf[0] ^= 0x01
	p2, err := Decode(0x15, buf)
	s.Require().NoError(err)
	s.ErrorIs(p2.Corrupted(), ErrPageChecksum)
}

func (s *PageTestSuite) TestFullCRC32CompressedSizeRecovery() {
	buf := make([]byte, 16384)
	// claim a compressed size of 4096: (4096 >> 8) = 16, marker bit set -> 0x8010
	s.Require().NoError(writeU16(buf, OffsetPageType, FCRC32CompressMarker|16))

	size, compressed, corrupted := recoverFullCRC32Size(len(buf), FCRC32CompressMarker|16)
	s.False(corrupted)
	s.True(compressed)
	s.Equal(4096, size)
}

func (s *PageTestSuite) TestFullCRC32CompressedSizeCorrupted() {
	// claimed size ends up >= page size -> corrupted
	claimedHigh := uint16(0xff)
	size, compressed, corrupted := recoverFullCRC32Size(100, FCRC32CompressMarker|claimedHigh)
	s.False(compressed)
	s.True(corrupted)
	s.Equal(100, size)
}

func writeU16(buf []byte, offset int, v uint16) error {
	buf[offset] = byte(v >> 8)
	buf[offset+1] = byte(v)
	return nil
}

func (s *PageTestSuite) TestValidateFlagsRejectsAtomicBlobsWithoutPostAntelope() {
	// atomic_blobs (bit 5) set, post_antelope (bit 0) clear, page_ssize=4 (8K).
	err := ValidateFlags(1<<5 | 4<<6)
	s.ErrorIs(err, ErrInvalidFlags)
}

func (s *PageTestSuite) TestValidateFlagsAcceptsAtomicBlobsWithPostAntelope() {
	err := ValidateFlags(1 | 1<<5 | 4<<6)
	s.NoError(err)
}

func sealedPage(spaceID uint32) []byte {
	buf := make([]byte, 16384)
	field := buf[OffsetSpaceID:]
	field[0] = byte(spaceID >> 24)
	field[1] = byte(spaceID >> 16)
	field[2] = byte(spaceID >> 8)
	field[3] = byte(spaceID)
	crc := ring.CRC32C32(buf[:len(buf)-FCRC32ChecksumFromEnd])
	trailer := buf[len(buf)-FCRC32ChecksumFromEnd:]
	trailer[0] = byte(crc >> 24)
	trailer[1] = byte(crc >> 16)
	trailer[2] = byte(crc >> 8)
	trailer[3] = byte(crc)
	return buf
}

func (s *PageTestSuite) TestTablespaceObserveAcceptsMatchingSpaceID() {
	var ts Tablespace

	first, err := Decode(0x15, sealedPage(7))
	s.Require().NoError(err)
	s.Require().NoError(ts.Observe(first))
	s.Equal(uint32(7), ts.SpaceID)

	second, err := Decode(0x15, sealedPage(7))
	s.Require().NoError(err)
	s.Require().NoError(ts.Observe(second))
}

func (s *PageTestSuite) TestTablespaceObserveRejectsSpaceIDMismatch() {
	var ts Tablespace

	first, err := Decode(0x15, sealedPage(7))
	s.Require().NoError(err)
	s.Require().NoError(ts.Observe(first))

	second, err := Decode(0x15, sealedPage(9))
	s.Require().NoError(err)
	s.ErrorIs(ts.Observe(second), ErrSpaceIDMismatch)
}

func (s *PageTestSuite) TestTablespaceObserveRejectsZeroedFirstPageWithNonzeroDeclaration() {
	var ts Tablespace

	// page is entirely zero (no sealed trailer) but the tablespace declares
	// nonzero flags (0x15): rule 4 rejects this regardless of rule 5's CRC.
	buf := make([]byte, 16384)
	first, err := Decode(0x15, buf)
	s.Require().NoError(err)

	s.ErrorIs(ts.Observe(first), ErrFirstPageZeroed)
}

func (s *PageTestSuite) TestValidateIntegritySkipsCrossPageRulesWithoutTablespace() {
	p, err := Decode(0x15, sealedPage(7))
	s.Require().NoError(err)
	s.Require().NoError(p.ValidateIntegrity(nil))
}
