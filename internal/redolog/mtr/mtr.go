// Package mtr parses and emits MTR (mini-transaction) chains: locating a
// chain's termination marker, verifying its CRC-32C, and walking the
// intra-chain records that describe page and file operations.
package mtr

import (
	"errors"
	"fmt"

	"github.com/sitano/redolog-forensics/internal/diag"
	"github.com/sitano/redolog-forensics/internal/redolog/intcodec"
	"github.com/sitano/redolog-forensics/internal/redolog/ring"
	"github.com/sitano/redolog-forensics/internal/redolog/rlerr"
)

// EndMarkerMax is the largest byte value recognized as a chain terminator:
// bytes 0 and 1 terminate a chain, anything above is payload.
const EndMarkerMax byte = 1

// SizeMax is the MTR size bound: a chain whose payload reaches this many
// bytes without a terminator is corrupt.
const SizeMax uint32 = 1 << 20

// Op is an MTR record opcode, unified over the page-operation and
// file-operation byte ranges.
type Op uint8

// Page-operation opcodes (b&0x80 == 0, opcode = b&0x70).
const (
	OpFreePage Op = 0x00
	OpInitPage Op = 0x10
	OpExtended Op = 0x20
	OpWrite    Op = 0x30
	OpMemset   Op = 0x40
	OpMemmove  Op = 0x50
	OpReserved Op = 0x60
	OpOption   Op = 0x70
)

// File-operation opcodes (b&0x80 != 0, opcode = b&0xf0).
const (
	OpFileCreate     Op = 0x80
	OpFileDelete     Op = 0x90
	OpFileRename     Op = 0xa0
	OpFileModify     Op = 0xb0
	OpFileCheckpoint Op = 0xf0
)

func (o Op) String() string {
	switch o {
	case OpFreePage:
		return "FREE_PAGE"
	case OpInitPage:
		return "INIT_PAGE"
	case OpExtended:
		return "EXTENDED"
	case OpWrite:
		return "WRITE"
	case OpMemset:
		return "MEMSET"
	case OpMemmove:
		return "MEMMOVE"
	case OpReserved:
		return "RESERVED"
	case OpOption:
		return "OPTION"
	case OpFileCreate:
		return "FILE_CREATE"
	case OpFileDelete:
		return "FILE_DELETE"
	case OpFileRename:
		return "FILE_RENAME"
	case OpFileModify:
		return "FILE_MODIFY"
	case OpFileCheckpoint:
		return "FILE_CHECKPOINT"
	default:
		return fmt.Sprintf("UNKNOWN(%#x)", uint8(o))
	}
}

func isKnownOp(op Op) bool {
	switch op {
	case OpFreePage, OpInitPage, OpExtended, OpWrite, OpMemset, OpMemmove, OpReserved, OpOption,
		OpFileCreate, OpFileDelete, OpFileRename, OpFileModify, OpFileCheckpoint:
		return true
	default:
		return false
	}
}

// ErrEndOfStream signals a benign end of the chain stream: either the
// cursor sits on a byte that cannot start a new chain, or the terminator's
// generation bit disagrees with the expected phase (WrongGeneration, per
// §7 - stale bytes from the previous pass over the ring, not corruption).
var ErrEndOfStream = errors.New("mtr: end of stream")

// Record is one decoded MTR record. Payload, when present, references a
// freshly allocated wrap-flattened copy of the record's opaque bytes (the
// ring region itself may straddle the wrap at that point).
type Record struct {
	SpaceID  uint32
	PageNo   uint32
	Op       Op
	IsFileOp bool
	Payload  []byte

	// FileCheckpointLSN is set for FILE_CHECKPOINT records that carry an
	// LSN; nil for the padding-checkpoint edge case with no LSN attached.
	FileCheckpointLSN *uint64
}

// Chain is one parsed MTR chain.
type Chain struct {
	StartLSN uint64
	ByteLen  uint32
	CRC      uint32
	Records  []Record
}

func (c *Chain) String() string {
	return fmt.Sprintf("MtrChain{lsn: %d, len: %d, checksum: %#x, records: %d}", c.StartLSN, c.ByteLen, c.CRC, len(c.Records))
}

func peekNotEndMarker(c *ring.Cursor) error {
	b, err := c.PeekU8()
	if err != nil {
		return err
	}
	if b <= EndMarkerMax {
		return ErrEndOfStream
	}
	return nil
}

// findEndMarker advances c past the chain's records until it sits on the
// terminator byte, returning the number of payload bytes walked.
func findEndMarker(c *ring.Cursor) (uint32, error) {
	var payloadLen uint32

	for {
		if payloadLen >= SizeMax {
			return 0, rlerr.New(rlerr.ChainOverrun, nil, "chain exceeds the 1 MiB bound before a terminator was found")
		}

		if err := peekNotEndMarker(c); err != nil {
			break
		}

		b, err := c.ReadU8()
		if err != nil {
			return 0, err
		}

		rlen := uint32(b & 0x0f)
		if rlen == 0 {
			lb, err := c.PeekU8()
			if err != nil {
				return 0, err
			}
			n := intcodec.VarintLen(lb)
			if n < 0 {
				return 0, rlerr.New(rlerr.MalformedVarint, nil, fmt.Sprintf("reserved varint prefix %#x", lb))
			}
			vbuf, err := c.CopyRange(c.Pos(), n)
			if err != nil {
				return 0, err
			}
			v, _, err := intcodec.DecodeVarint(vbuf)
			if err != nil {
				return 0, rlerr.New(rlerr.MalformedVarint, err, "extended record length")
			}
			rlen = v + 15
		}

		payloadLen += rlen
		if err := c.Advance(uint64(rlen)); err != nil {
			return 0, rlerr.New(rlerr.ChainOverrun, err, "position overflow while scanning chain")
		}
	}

	return payloadLen, nil
}

// ParseNext parses the chain beginning at c's current position and advances
// c to the first byte of the next chain. ErrEndOfStream is returned when no
// further chain begins here; every other error is one of the Kinds named in
// the error handling design.
func ParseNext(c *ring.Cursor, obs diag.Observer) (*Chain, error) {
	obs = diag.OrNop(obs)

	if err := peekNotEndMarker(c); err != nil {
		return nil, err
	}

	start := c.Clone()
	startLSN := start.Pos()

	scan := start.Clone()
	if _, err := findEndMarker(scan); err != nil {
		return nil, err
	}

	terminationOffset := scan.Pos() - startLSN
	terminationLSN := startLSN + terminationOffset

	terminationByte, err := scan.PeekU8()
	if err != nil {
		return nil, err
	}

	expected := ring.GenerationBit(uint64(start.Header()), uint64(start.Capacity()), terminationLSN)
	if terminationByte != expected {
		return nil, ErrEndOfStream
	}

	// CRC covers payload‖marker inclusive; the 4 trailing CRC bytes are
	// outside the covered range.
	realCRC, err := start.CRC32C(startLSN, int(terminationOffset)+1)
	if err != nil {
		return nil, err
	}

	crcCursor := scan.Clone()
	_ = crcCursor.Advance(1)
	expectedCRC, err := crcCursor.ReadU32()
	if err != nil {
		return nil, err
	}

	if realCRC != expectedCRC {
		return nil, rlerr.New(rlerr.ChainChecksum, nil, fmt.Sprintf(
			"chain at lsn=%d: computed %#x, stored %#x", startLSN, realCRC, expectedCRC))
	}

	chain := &Chain{
		StartLSN: startLSN,
		ByteLen:  uint32(terminationOffset) + 1 + 4,
		CRC:      realCRC,
	}

	if err := decodeRecords(chain, start.Clone(), terminationOffset, obs); err != nil {
		return nil, err
	}

	_ = c.Advance(uint64(chain.ByteLen))
	return chain, nil
}

func decodeRecords(chain *Chain, l *ring.Cursor, terminationOffset uint64, obs diag.Observer) error {
	var gotPageOp bool
	var spaceID, pageNo uint32
	endBound := chain.StartLSN + terminationOffset

	for {
		b, err := l.PeekU8()
		if err != nil {
			return err
		}
		if b <= EndMarkerMax {
			return nil
		}
		_ = l.Advance(1)

		if b&0x70 == byte(OpReserved) {
			obs.Warnf("ignoring reserved log record at LSN %d", l.Pos())
		}

		rlen := uint32(b & 0x0f)
		if rlen == 0 {
			v, n, err := readVarint(l)
			if err != nil {
				return err
			}
			rlen = v + 15 - uint32(n)
		}

		if !gotPageOp || b&0x80 == 0 {
			sv, sn, err := readVarint(l)
			if err != nil {
				return err
			}
			if rlen < uint32(sn) {
				obs.Warnf("malformed record at LSN %d: space_id varint exceeds record length", l.Pos())
				return nil
			}
			rlen -= uint32(sn)
			spaceID = sv

			pv, pn, err := readVarint(l)
			if err != nil {
				return err
			}
			if rlen < uint32(pn) {
				obs.Warnf("malformed record at LSN %d: page_no varint exceeds record length", l.Pos())
				return nil
			}
			rlen -= uint32(pn)
			pageNo = pv

			gotPageOp = b&0x80 == 0
		} else if b&0x70 <= byte(OpInitPage) {
			obs.Warnf("malformed continuation record at LSN %d: FREE_PAGE/INIT_PAGE cannot reuse a page identity", l.Pos())
			return nil
		}

		var op Op
		var isFileOp bool
		var fileCheckpointLSN *uint64

		switch {
		case gotPageOp:
			op = Op(b & 0x70)
			if op == OpMemset {
				_, on, err := readVarint(l)
				if err != nil {
					return err
				}
				rlen -= uint32(on)
			}
		case rlen > 0:
			isFileOp = true
			op = Op(b & 0xf0)
			if op == OpFileCheckpoint {
				lsnBuf, err := l.CopyRange(l.Pos(), 8)
				if err != nil {
					return err
				}
				lsn, err := intcodec.ReadU64(lsnBuf)
				if err != nil {
					return err
				}
				_ = l.Advance(8)
				rlen -= 8
				fileCheckpointLSN = &lsn
			}
		case b == byte(OpFileCheckpoint)+2 && spaceID == 0 && pageNo == 0:
			isFileOp = true
			op = OpFileCheckpoint
		default:
			obs.Warnf("malformed record at LSN %d: unrecognized record layout", l.Pos())
			return nil
		}

		if !isKnownOp(op) {
			obs.Warnf("unknown MTR opcode %#x at LSN %d", uint8(op), l.Pos())
			if l.Pos() >= endBound {
				return nil
			}
			if err := l.Advance(uint64(rlen)); err != nil {
				return err
			}
			continue
		}

		var payload []byte
		if rlen > 0 {
			payload, err = l.CopyRange(l.Pos(), int(rlen))
			if err != nil {
				return err
			}
		}

		chain.Records = append(chain.Records, Record{
			SpaceID:           spaceID,
			PageNo:            pageNo,
			Op:                op,
			IsFileOp:          isFileOp,
			Payload:           payload,
			FileCheckpointLSN: fileCheckpointLSN,
		})

		if err := l.Advance(uint64(rlen)); err != nil {
			return err
		}
	}
}

// readVarint decodes a varint at l's current position and advances past it,
// returning the value and the number of bytes consumed.
func readVarint(l *ring.Cursor) (uint32, int, error) {
	lb, err := l.PeekU8()
	if err != nil {
		return 0, 0, err
	}
	n := intcodec.VarintLen(lb)
	if n < 0 {
		return 0, 0, rlerr.New(rlerr.MalformedVarint, nil, fmt.Sprintf("reserved varint prefix %#x", lb))
	}
	buf, err := l.CopyRange(l.Pos(), n)
	if err != nil {
		return 0, 0, err
	}
	v, _, err := intcodec.DecodeVarint(buf)
	if err != nil {
		return 0, 0, rlerr.New(rlerr.MalformedVarint, err, "varint")
	}
	if err := l.Advance(uint64(n)); err != nil {
		return 0, 0, err
	}
	return v, n, nil
}

// BuildFileCheckpoint emits a synthetic FILE_CHECKPOINT chain for lsn into
// dst, per §4.4's builder procedure. The emitted chain is exactly 16 bytes.
func BuildFileCheckpoint(dst []byte, header, capacity, lsn uint64) (int, error) {
	if lsn < header {
		return 0, fmt.Errorf("mtr: lsn %d is below header size %d", lsn, header)
	}
	if lsn >= ^uint64(0)-16 {
		return 0, fmt.Errorf("mtr: lsn %d too large to fit a file checkpoint", lsn)
	}
	if len(dst) < 16 {
		return 0, fmt.Errorf("mtr: destination shorter than 16 bytes")
	}

	buf := dst[:16]
	buf[0] = byte(OpFileCheckpoint) + 0x0a // length nibble 10
	buf[1] = 0x00                          // space_id varint (0)
	buf[2] = 0x00                          // page_no varint (0)
	if err := intcodec.WriteU64(buf[3:11], lsn); err != nil {
		return 0, err
	}

	marker := ring.GenerationBit(header, capacity, lsn+11)
	buf[11] = marker

	// CRC covers payload‖marker inclusive: the first 12 bytes (header,
	// space, page, LSN, marker).
	crc := ring.CRC32C32(buf[:12])
	if err := intcodec.WriteU32(buf[12:16], crc); err != nil {
		return 0, err
	}

	return 16, nil
}
