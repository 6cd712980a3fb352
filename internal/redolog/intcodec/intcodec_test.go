package intcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type IntCodecTestSuite struct {
	suite.Suite
}

func TestIntCodecTestSuite(t *testing.T) {
	suite.Run(t, new(IntCodecTestSuite))
}

func (s *IntCodecTestSuite) TestFixedWidthRoundTrip() {
	buf16 := make([]byte, 2)
	require.NoError(s.T(), WriteU16(buf16, 0xbeef))
	v16, err := ReadU16(buf16)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint16(0xbeef), v16)

	buf32 := make([]byte, 4)
	require.NoError(s.T(), WriteU32(buf32, 0xdeadbeef))
	v32, err := ReadU32(buf32)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint32(0xdeadbeef), v32)

	buf64 := make([]byte, 8)
	require.NoError(s.T(), WriteU64(buf64, 0x0102030405060708))
	v64, err := ReadU64(buf64)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), uint64(0x0102030405060708), v64)
}

func (s *IntCodecTestSuite) TestFixedWidthShortRead() {
	_, err := ReadU32([]byte{1, 2, 3})
	assert.ErrorIs(s.T(), err, ErrShortRead)

	err = WriteU64(make([]byte, 4), 1)
	assert.ErrorIs(s.T(), err, ErrShortRead)
}

func (s *IntCodecTestSuite) TestVarintRoundTrip() {
	values := []uint32{
		0, 1, 126, 127,
		128, 129, 16511,
		16512, 16513, 2113663,
		2113664, 2113665, 270549119,
		270549120, 270549121, 0xffffffff - 1, 0xffffffff,
	}

	for _, v := range values {
		enc := EncodeVarint(nil, v)
		s.Require().Equal(EncodedLen(v), len(enc), "encoded length mismatch for %d", v)
		s.Require().LessOrEqual(len(enc), 5)

		got, n, err := DecodeVarint(enc)
		s.Require().NoError(err, "decode failed for %d", v)
		s.Require().Equal(len(enc), n)
		s.Require().Equal(v, got, "round trip mismatch for %d", v)
	}
}

func (s *IntCodecTestSuite) TestVarintBoundaries() {
	tests := []struct {
		value uint32
		bytes int
	}{
		{0, 1},
		{Min2Byte - 1, 1},
		{Min2Byte, 2},
		{Min3Byte - 1, 2},
		{Min3Byte, 3},
		{Min4Byte - 1, 3},
		{Min4Byte, 4},
		{Min5Byte - 1, 4},
		{Min5Byte, 5},
	}

	for _, tt := range tests {
		s.Equal(tt.bytes, EncodedLen(tt.value), "value %d", tt.value)
	}
}

func (s *IntCodecTestSuite) TestVarintReservedPrefixFails() {
	_, _, err := DecodeVarint([]byte{0xf8, 0, 0, 0, 0})
	s.ErrorIs(err, ErrMalformedVarint)

	_, _, err = DecodeVarint([]byte{0xff})
	s.ErrorIs(err, ErrMalformedVarint)
}

func (s *IntCodecTestSuite) TestVarintShortRead() {
	_, _, err := DecodeVarint(nil)
	s.ErrorIs(err, ErrShortRead)

	_, _, err = DecodeVarint([]byte{0x80})
	s.ErrorIs(err, ErrShortRead)
}
