// Package interp is an advisory, best-effort describer for decoded MTR
// records. It is never consulted by the core codec or by validation: a
// record that this package fails to describe is still a perfectly valid
// record, just one interp does not know how to render in human terms.
//
// The heuristics here are adapted from the teacher's mysql_format.go, which
// spends hundreds of lines guessing at field boundaries inside an opaque
// record payload. interp narrows that same texture to what the MTR record
// model actually gives us: space_id, page_no, a known opcode, and an opaque
// byte payload.
package interp

import (
	"fmt"
	"strings"

	"github.com/sitano/redolog-forensics/internal/redolog/intcodec"
	"github.com/sitano/redolog-forensics/internal/redolog/mtr"
)

// Describe renders rec in human terms, best-effort. It never returns an
// error: a payload interp cannot make sense of is reported as a hex dump
// rather than failing the caller.
func Describe(rec mtr.Record) string {
	switch rec.Op {
	case mtr.OpFileCreate, mtr.OpFileDelete, mtr.OpFileRename, mtr.OpFileModify:
		return describeFileOp(rec)
	case mtr.OpFileCheckpoint:
		return describeFileCheckpoint(rec)
	case mtr.OpInitPage:
		return fmt.Sprintf("INIT_PAGE space=%d page=%d %s", rec.SpaceID, rec.PageNo, describePayload(rec.Payload))
	case mtr.OpWrite:
		return fmt.Sprintf("WRITE space=%d page=%d %s", rec.SpaceID, rec.PageNo, describeWrite(rec.Payload))
	case mtr.OpMemset:
		return fmt.Sprintf("MEMSET space=%d page=%d %s", rec.SpaceID, rec.PageNo, describeRange(rec.Payload))
	case mtr.OpMemmove:
		return fmt.Sprintf("MEMMOVE space=%d page=%d %s", rec.SpaceID, rec.PageNo, describeRange(rec.Payload))
	case mtr.OpFreePage:
		return fmt.Sprintf("FREE_PAGE space=%d page=%d", rec.SpaceID, rec.PageNo)
	case mtr.OpExtended:
		return fmt.Sprintf("EXTENDED space=%d page=%d %s", rec.SpaceID, rec.PageNo, describePayload(rec.Payload))
	case mtr.OpOption:
		return fmt.Sprintf("OPTION space=%d page=%d len=%d", rec.SpaceID, rec.PageNo, len(rec.Payload))
	default:
		return fmt.Sprintf("%s space=%d page=%d %s", rec.Op, rec.SpaceID, rec.PageNo, describePayload(rec.Payload))
	}
}

// describeFileOp renders a file-level operation, trying to recover the
// tablespace path MySQL/MariaDB embeds as the tail of the payload.
func describeFileOp(rec mtr.Record) string {
	path := extractPath(rec.Payload)
	if path == "" {
		return fmt.Sprintf("%s space=%d %s", rec.Op, rec.SpaceID, describePayload(rec.Payload))
	}
	return fmt.Sprintf("%s space=%d path=%s", rec.Op, rec.SpaceID, path)
}

func describeFileCheckpoint(rec mtr.Record) string {
	if rec.FileCheckpointLSN == nil {
		return "FILE_CHECKPOINT (padding, no lsn)"
	}
	return fmt.Sprintf("FILE_CHECKPOINT lsn=%d", *rec.FileCheckpointLSN)
}

// describeWrite reports the target offset and byte count a WRITE record
// covers, when the payload opens with the offset+length pair the format
// uses (two bytes of offset, a varint length, then the written bytes).
func describeWrite(payload []byte) string {
	if len(payload) < 3 {
		return describePayload(payload)
	}
	offset := uint16(payload[0])<<8 | uint16(payload[1])
	length, n, err := intcodec.DecodeVarint(payload[2:])
	if err != nil {
		return describePayload(payload)
	}
	return fmt.Sprintf("offset=%d len=%d", offset, length) + trailingHex(payload[2+n:])
}

// describeRange reports the [offset,offset+len) span a MEMSET/MEMMOVE
// record covers, under the same offset+varint-length convention as WRITE.
func describeRange(payload []byte) string {
	if len(payload) < 3 {
		return describePayload(payload)
	}
	offset := uint16(payload[0])<<8 | uint16(payload[1])
	length, _, err := intcodec.DecodeVarint(payload[2:])
	if err != nil {
		return describePayload(payload)
	}
	return fmt.Sprintf("offset=%d len=%d", offset, length)
}

// describePayload is the fallback: a short hex dump, capped to keep CLI
// output readable.
func describePayload(payload []byte) string {
	if len(payload) == 0 {
		return "(empty)"
	}
	return "hex=" + hexCapped(payload)
}

func trailingHex(rest []byte) string {
	if len(rest) == 0 {
		return ""
	}
	return " hex=" + hexCapped(rest)
}

const hexCap = 32

func hexCapped(b []byte) string {
	if len(b) > hexCap {
		return fmt.Sprintf("%x...", b[:hexCap])
	}
	return fmt.Sprintf("%x", b)
}

// extractPath recovers a printable, NUL-terminated or fully-printable
// tail from a file-op payload. MariaDB embeds the tablespace path as
// trailing bytes after a small fixed prefix; since interp doesn't know the
// exact prefix width for every server version, it scans from the end for
// the longest run of printable bytes and treats that as the path. Returns
// "" when nothing that looks like a path is found.
func extractPath(payload []byte) string {
	end := len(payload)
	for end > 0 && payload[end-1] == 0 {
		end--
	}
	start := end
	for start > 0 && isPathByte(payload[start-1]) {
		start--
	}
	if end-start < 3 {
		return ""
	}
	return string(payload[start:end])
}

func isPathByte(b byte) bool {
	return (b >= 32 && b <= 126) && b != '"'
}

// DescribeChain renders every record in chain, one line per record, joined
// by newlines. Intended for the CLI's plain-text (non-TUI) rendering path.
func DescribeChain(chain *mtr.Chain) string {
	lines := make([]string, 0, len(chain.Records))
	for _, rec := range chain.Records {
		lines = append(lines, Describe(rec))
	}
	return strings.Join(lines, "\n")
}
