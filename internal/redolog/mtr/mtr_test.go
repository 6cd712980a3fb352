package mtr

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/sitano/redolog-forensics/internal/redolog/intcodec"
	"github.com/sitano/redolog-forensics/internal/redolog/rlerr"
	"github.com/sitano/redolog-forensics/internal/redolog/ring"
)

type MtrTestSuite struct {
	suite.Suite
}

func TestMtrTestSuite(t *testing.T) {
	suite.Run(t, new(MtrTestSuite))
}

const (
	testHeader   = 100
	testCapacity = 10000
)

func newCursor(s *suite.Suite, buf []byte, pos uint64) *ring.Cursor {
	v, err := ring.NewView(buf, testHeader)
	s.Require().NoError(err)
	return ring.NewCursor(v, pos)
}

// sealChain appends marker+crc to a payload-only byte slice, computing the
// marker from the generation bit and the CRC over payload‖marker inclusive.
func sealChain(startLSN uint64, payload []byte) []byte {
	markerLSN := startLSN + uint64(len(payload))
	marker := ring.GenerationBit(testHeader, testCapacity, markerLSN)
	withMarker := append(append([]byte{}, payload...), marker)
	crc := ring.CRC32C32(withMarker)
	crcBuf := make([]byte, 4)
	_ = intcodec.WriteU32(crcBuf, crc)
	return append(withMarker, crcBuf...)
}

func (s *MtrTestSuite) TestEndOfStreamOnTerminatorByte() {
	buf := make([]byte, testHeader+testCapacity)
	c := newCursor(&s.Suite, buf, testHeader)

	_, err := ParseNext(c, nil)
	s.ErrorIs(err, ErrEndOfStream)
}

func (s *MtrTestSuite) TestParseSingleWriteRecord() {
	const startLSN = testHeader

	// header byte: WRITE (0x30), rlen=4 (space_id=0, page_no=0, 2 opaque bytes)
	payload := []byte{0x30 | 0x04, 0x00, 0x00, 0xaa, 0xbb}
	chainBytes := sealChain(startLSN, payload)

	buf := make([]byte, testHeader+testCapacity)
	copy(buf[startLSN:], chainBytes)

	c := newCursor(&s.Suite, buf, startLSN)
	chain, err := ParseNext(c, nil)
	s.Require().NoError(err)
	s.Require().Len(chain.Records, 1)

	rec := chain.Records[0]
	s.Equal(OpWrite, rec.Op)
	s.False(rec.IsFileOp)
	s.Equal(uint32(0), rec.SpaceID)
	s.Equal(uint32(0), rec.PageNo)
	s.Equal([]byte{0xaa, 0xbb}, rec.Payload)
	s.Equal(uint64(startLSN)+uint64(len(chainBytes)), c.Pos())
}

func (s *MtrTestSuite) TestParseSamePageShortcut() {
	const startLSN = testHeader

	// First record: WRITE, space=0 page=0, opaque 1 byte.
	// Second record: WRITE with reuse bit (0x80) set, reusing space/page.
	payload := []byte{
		0x30 | 0x03, 0x00, 0x00, 0x11, // WRITE rlen=3: space(1)+page(1)+1 opaque byte
		0x30 | 0x80 | 0x01, 0x22, // WRITE reuse, rlen=1: 1 opaque byte
	}
	chainBytes := sealChain(startLSN, payload)

	buf := make([]byte, testHeader+testCapacity)
	copy(buf[startLSN:], chainBytes)

	c := newCursor(&s.Suite, buf, startLSN)
	chain, err := ParseNext(c, nil)
	s.Require().NoError(err)
	s.Require().Len(chain.Records, 2)

	s.Equal(uint32(0), chain.Records[1].SpaceID)
	s.Equal(uint32(0), chain.Records[1].PageNo)
	s.Equal([]byte{0x22}, chain.Records[1].Payload)
}

func (s *MtrTestSuite) TestFileCheckpointRoundTrip() {
	const startLSN = testHeader

	buf := make([]byte, testHeader+testCapacity)
	n, err := BuildFileCheckpoint(buf[startLSN:], testHeader, testCapacity, startLSN)
	s.Require().NoError(err)
	s.Equal(16, n)

	c := newCursor(&s.Suite, buf, startLSN)
	chain, err := ParseNext(c, nil)
	s.Require().NoError(err)
	s.Require().Len(chain.Records, 1)

	rec := chain.Records[0]
	s.Equal(OpFileCheckpoint, rec.Op)
	s.True(rec.IsFileOp)
	s.Require().NotNil(rec.FileCheckpointLSN)
	s.Equal(startLSN, *rec.FileCheckpointLSN)
	s.Equal(uint32(16), chain.ByteLen)
}

func (s *MtrTestSuite) TestPaddingCheckpointHasNoLSN() {
	const startLSN = testHeader

	// b = FILE_CHECKPOINT+2 = 0xf2, rlen nibble = 2, used up entirely by the
	// space/page varints -> the explicit zero-length padding form: space=0,
	// page=0, no further bytes.
	payload := []byte{byte(OpFileCheckpoint) + 2, 0x00, 0x00}
	chainBytes := sealChain(startLSN, payload)

	buf := make([]byte, testHeader+testCapacity)
	copy(buf[startLSN:], chainBytes)

	c := newCursor(&s.Suite, buf, startLSN)
	chain, err := ParseNext(c, nil)
	s.Require().NoError(err)
	s.Require().Len(chain.Records, 1)

	rec := chain.Records[0]
	s.Equal(OpFileCheckpoint, rec.Op)
	s.Nil(rec.FileCheckpointLSN)
}

func (s *MtrTestSuite) TestChainChecksumMismatch() {
	const startLSN = testHeader

	payload := []byte{0x30 | 0x04, 0x00, 0x00, 0xaa, 0xbb}
	chainBytes := sealChain(startLSN, payload)
	// corrupt one payload byte after sealing, so the stored CRC no longer matches
	chainBytes[2] ^= 0xff

	buf := make([]byte, testHeader+testCapacity)
	copy(buf[startLSN:], chainBytes)

	c := newCursor(&s.Suite, buf, startLSN)
	_, err := ParseNext(c, nil)
	s.Require().Error(err)

	var rerr *rlerr.Error
	s.Require().ErrorAs(err, &rerr)
	s.Equal(rlerr.ChainChecksum, rerr.Kind)
}

func (s *MtrTestSuite) TestWrongGenerationIsEndOfStream() {
	const startLSN = testHeader

	payload := []byte{0x30 | 0x04, 0x00, 0x00, 0xaa, 0xbb}
	markerLSN := startLSN + uint64(len(payload))
	// flip the marker to the wrong generation bit and compute the CRC over
	// the bytes as written (flipped marker included), so the CRC matches and
	// the mismatch is caught purely by the generation check, not CRC.
	wrongMarker := byte(1) - ring.GenerationBit(testHeader, testCapacity, markerLSN)
	withMarker := append(append([]byte{}, payload...), wrongMarker)
	crc := ring.CRC32C32(withMarker)
	crcBuf := make([]byte, 4)
	_ = intcodec.WriteU32(crcBuf, crc)
	chainBytes := append(withMarker, crcBuf...)

	buf := make([]byte, testHeader+testCapacity)
	copy(buf[startLSN:], chainBytes)

	c := newCursor(&s.Suite, buf, startLSN)
	_, err := ParseNext(c, nil)
	s.ErrorIs(err, ErrEndOfStream)
}

func (s *MtrTestSuite) TestExtendedLengthVarintRecord() {
	const startLSN = testHeader

	// WRITE with rlen nibble 0 -> extended length via a varint that follows
	// the type byte and precedes space/page. addlen=50, so the bytes after
	// the type byte total addlen+15, of which addlen+15-lenlen follow the
	// varint. Choose addlen small enough for a 1-byte varint (< Min2Byte=128)
	// so lenlen=1; opaque = addlen+15-1 - 2 (space+page) bytes.
	const addlen = 50
	opaqueLen := addlen + 15 - 1 - 2
	opaque := make([]byte, opaqueLen)
	for i := range opaque {
		opaque[i] = byte(i)
	}

	payload := []byte{0x30 | 0x00, byte(addlen), 0x00, 0x00}
	payload = append(payload, opaque...)
	chainBytes := sealChain(startLSN, payload)

	buf := make([]byte, testHeader+testCapacity)
	copy(buf[startLSN:], chainBytes)

	c := newCursor(&s.Suite, buf, startLSN)
	chain, err := ParseNext(c, nil)
	s.Require().NoError(err)
	s.Require().Len(chain.Records, 1)
	s.Equal(opaque, chain.Records[0].Payload)
}

func (s *MtrTestSuite) TestUnknownFileOpcodeSkipsRecord() {
	const startLSN = testHeader

	// 0xc0 is not a defined file opcode (only 0x80/0x90/0xa0/0xb0/0xf0 are).
	// rlen nibble 4, minus 2 bytes for space/page varints leaves 2 opaque
	// bytes, so the file-op branch (not the zero-rlen padding branch) is
	// the one that classifies and then rejects the opcode.
	payload := []byte{0xc0 | 0x04, 0x00, 0x00, 0x01, 0x02}
	chainBytes := sealChain(startLSN, payload)

	buf := make([]byte, testHeader+testCapacity)
	copy(buf[startLSN:], chainBytes)

	c := newCursor(&s.Suite, buf, startLSN)
	chain, err := ParseNext(c, nil)
	s.Require().NoError(err)
	s.Empty(chain.Records)
}

func (s *MtrTestSuite) TestReservedOpcodeIsWarnedButDecoded() {
	const startLSN = testHeader

	// rlen nibble 2 covers exactly the space/page varints, no further
	// opaque payload.
	payload := []byte{0x60 | 0x02, 0x00, 0x00}
	chainBytes := sealChain(startLSN, payload)

	buf := make([]byte, testHeader+testCapacity)
	copy(buf[startLSN:], chainBytes)

	var warned []string
	obs := &recordingObserver{warnf: func(format string, args ...any) {
		warned = append(warned, format)
	}}

	c := newCursor(&s.Suite, buf, startLSN)
	chain, err := ParseNext(c, obs)
	s.Require().NoError(err)
	s.Require().Len(chain.Records, 1)
	s.Equal(OpReserved, chain.Records[0].Op)
	s.NotEmpty(warned)
}

type recordingObserver struct {
	warnf func(string, ...any)
}

func (o *recordingObserver) Warnf(format string, args ...any) {
	if o.warnf != nil {
		o.warnf(format, args...)
	}
}

func (o *recordingObserver) Infof(string, ...any) {}
