// Package container implements the redo log file format: header and
// checkpoint block parsing, checkpoint selection, and a forward-only cursor
// over the MTR chain stream.
package container

import (
	"fmt"
	"strings"

	"github.com/sitano/redolog-forensics/internal/diag"
	"github.com/sitano/redolog-forensics/internal/redolog/intcodec"
	"github.com/sitano/redolog-forensics/internal/redolog/mtr"
	"github.com/sitano/redolog-forensics/internal/redolog/rlerr"
	"github.com/sitano/redolog-forensics/internal/redolog/ring"
)

// Layout offsets and sizes, per §3/§6.
const (
	HeaderOffset       = 0
	HeaderSize         = 512
	HeaderCreatorStart = 16
	HeaderCreatorEnd   = 48
	HeaderCRCOffset    = 508

	Checkpoint1Offset = 4096
	Checkpoint2Offset = 8192
	CheckpointSize    = 64
	checkpointCRCAt   = 60

	FirstLSN = 12288
)

// Format magic numbers observed in the header's format word (§6).
const (
	FormatOriginal  uint32 = 0 // un-versioned, 3.23-era: no header CRC
	Format10_2      uint32 = 1
	Format10_3      uint32 = 0x67
	Format10_4      uint32 = 0x68
	Format10_5      uint32 = 0x50485953
	FormatCurrent   uint32 = 0x50687973
	FormatEncrypted uint32 = 1 << 31
)

//go:generate mockgen -source=container.go -destination=mocks/container_mock.go -package=mocks

// ByteRegion is the file abstraction the container operates over: a flat
// byte slice, however it was acquired (mmap, plain read, or in-memory
// buffer). A fileio collaborator supplies this.
type ByteRegion interface {
	Bytes() []byte
}

// SiblingProber detects sibling `ib_logfile<N>` names alongside the log
// being opened (§4.5 step 5). A nil prober skips the check.
type SiblingProber interface {
	ProbeSiblings() ([]string, error)
}

// Header is the parsed file header block.
type Header struct {
	Format  uint32
	FirstLSN uint64
	Creator string
	CRC     uint32

	// StartAfterRestore is set when Creator begins with "Backup ",
	// indicating the log was produced by a backup-restore tool rather than
	// a live server.
	StartAfterRestore bool
}

func (h Header) Encrypted() bool { return h.Format&FormatEncrypted != 0 }

// Checkpoint is one parsed checkpoint block.
type Checkpoint struct {
	CheckpointLSN uint64
	EndLSN        uint64
	Valid         bool
	Reason        string
}

// Redo is an opened redo log container.
type Redo struct {
	view     *ring.View
	Header   Header
	CP1, CP2 Checkpoint
	Live     Checkpoint
}

// Capacity returns the ring body capacity.
func (r *Redo) Capacity() int { return r.view.Capacity() }

func parseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, rlerr.New(rlerr.ShortRead, nil, "header block")
	}

	format, err := intcodec.ReadU32(buf[HeaderOffset:])
	if err != nil {
		return Header{}, rlerr.New(rlerr.ShortRead, err, "header format")
	}
	firstLSN, err := intcodec.ReadU64(buf[8:])
	if err != nil {
		return Header{}, rlerr.New(rlerr.ShortRead, err, "header first_lsn")
	}
	creator := strings.TrimRight(string(buf[HeaderCreatorStart:HeaderCreatorEnd]), "\x00")
	storedCRC, err := intcodec.ReadU32(buf[HeaderCRCOffset:])
	if err != nil {
		return Header{}, rlerr.New(rlerr.ShortRead, err, "header CRC")
	}

	h := Header{
		Format:             format,
		FirstLSN:           firstLSN,
		Creator:            creator,
		CRC:                storedCRC,
		StartAfterRestore:  strings.HasPrefix(creator, "Backup "),
	}

	if format&(^FormatEncrypted) == FormatOriginal {
		return h, nil
	}

	realCRC := ring.CRC32C32(buf[:HeaderCRCOffset])
	if realCRC != storedCRC {
		return h, rlerr.New(rlerr.HeaderCrc, nil, fmt.Sprintf("header CRC mismatch: computed %#x, stored %#x", realCRC, storedCRC))
	}
	return h, nil
}

func parseCheckpoint(buf []byte) Checkpoint {
	if len(buf) < CheckpointSize {
		return Checkpoint{Reason: "short block"}
	}

	checkpointLSN, err := intcodec.ReadU64(buf[0:])
	if err != nil {
		return Checkpoint{Reason: "short checkpoint_lsn field"}
	}
	endLSN, err := intcodec.ReadU64(buf[8:])
	if err != nil {
		return Checkpoint{Reason: "short end_lsn field"}
	}
	storedCRC, err := intcodec.ReadU32(buf[checkpointCRCAt:])
	if err != nil {
		return Checkpoint{Reason: "short CRC field"}
	}

	cp := Checkpoint{CheckpointLSN: checkpointLSN, EndLSN: endLSN}

	realCRC := ring.CRC32C32(buf[:checkpointCRCAt])
	if realCRC != storedCRC {
		cp.Reason = fmt.Sprintf("CRC mismatch: computed %#x, stored %#x", realCRC, storedCRC)
		return cp
	}
	for _, b := range buf[16:checkpointCRCAt] {
		if b != 0 {
			cp.Reason = "reserved bytes not zero"
			return cp
		}
	}
	if checkpointLSN < FirstLSN {
		cp.Reason = fmt.Sprintf("checkpoint_lsn %d below first_lsn %d", checkpointLSN, FirstLSN)
		return cp
	}
	if endLSN < checkpointLSN {
		cp.Reason = fmt.Sprintf("end_lsn %d below checkpoint_lsn %d", endLSN, checkpointLSN)
		return cp
	}

	cp.Valid = true
	return cp
}

// Open parses a redo log from region per §4.5's read path. siblings, when
// non-nil, is consulted to reject multi-log-file directories.
func Open(region ByteRegion, siblings SiblingProber, obs diag.Observer) (*Redo, error) {
	obs = diag.OrNop(obs)
	buf := region.Bytes()

	if len(buf) < FirstLSN+16 {
		return nil, rlerr.New(rlerr.ShortRead, nil, fmt.Sprintf("file too small: %d bytes, need at least %d", len(buf), FirstLSN+16))
	}

	header, err := parseHeader(buf[HeaderOffset : HeaderOffset+HeaderSize])
	if err != nil {
		return nil, err
	}

	bareFormat := header.Format &^ FormatEncrypted
	if bareFormat != FormatCurrent {
		if header.Encrypted() {
			return nil, rlerr.New(rlerr.UnsupportedEncrypted, nil, fmt.Sprintf("format %#x", header.Format))
		}
		return nil, rlerr.New(rlerr.UnsupportedFormat, nil, fmt.Sprintf("format %#x", header.Format))
	}
	if header.Encrypted() {
		return nil, rlerr.New(rlerr.UnsupportedEncrypted, nil, fmt.Sprintf("format %#x", header.Format))
	}

	cp1 := parseCheckpoint(buf[Checkpoint1Offset : Checkpoint1Offset+CheckpointSize])
	if !cp1.Valid {
		obs.Warnf("checkpoint block 1 invalid: %s", cp1.Reason)
	}
	cp2 := parseCheckpoint(buf[Checkpoint2Offset : Checkpoint2Offset+CheckpointSize])
	if !cp2.Valid {
		obs.Warnf("checkpoint block 2 invalid: %s", cp2.Reason)
	}

	live, err := selectCheckpoint(cp1, cp2)
	if err != nil {
		return nil, err
	}

	if siblings != nil {
		names, err := siblings.ProbeSiblings()
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			return nil, rlerr.New(rlerr.UnsupportedMultiFile, nil, fmt.Sprintf("sibling log files present: %v", names))
		}
	}

	view, err := ring.NewView(buf, FirstLSN)
	if err != nil {
		return nil, err
	}

	return &Redo{view: view, Header: header, CP1: cp1, CP2: cp2, Live: live}, nil
}

func selectCheckpoint(cp1, cp2 Checkpoint) (Checkpoint, error) {
	switch {
	case cp1.Valid && cp2.Valid:
		if cp1.CheckpointLSN >= cp2.CheckpointLSN {
			return cp1, nil
		}
		return cp2, nil
	case cp1.Valid:
		return cp1, nil
	case cp2.Valid:
		return cp2, nil
	default:
		return Checkpoint{}, rlerr.New(rlerr.NoValidCheckpoint, nil, "both checkpoint blocks are invalid")
	}
}

// Cursor yields consecutive MTR chains from a live checkpoint LSN onward.
type Cursor struct {
	c   *ring.Cursor
	obs diag.Observer
}

// Cursor returns a forward-only cursor positioned at the live checkpoint
// LSN (§4.5 step 6).
func (r *Redo) Cursor(obs diag.Observer) *Cursor {
	return &Cursor{c: ring.NewCursor(r.view, r.Live.CheckpointLSN), obs: diag.OrNop(obs)}
}

// Next returns the next chain, or mtr.ErrEndOfStream when the cursor has
// reached the end of the written stream.
func (cur *Cursor) Next() (*mtr.Chain, error) {
	return mtr.ParseNext(cur.c, cur.obs)
}

// Pos returns the cursor's current LSN.
func (cur *Cursor) Pos() uint64 { return cur.c.Pos() }

// CreateNew writes a fresh redo log into region per §4.5's write-new path:
// header, both checkpoint blocks, and one synthetic FILE_CHECKPOINT chain at
// targetLSN.
func CreateNew(region ByteRegion, creator string, targetLSN uint64) error {
	buf := region.Bytes()
	if len(buf) < FirstLSN+16 {
		return rlerr.New(rlerr.ShortRead, nil, fmt.Sprintf("file too small: %d bytes, need at least %d", len(buf), FirstLSN+16))
	}
	capacity := uint64(len(buf) - FirstLSN)
	if targetLSN < FirstLSN {
		return fmt.Errorf("container: target lsn %d below first_lsn %d", targetLSN, FirstLSN)
	}

	for i := range buf[:FirstLSN] {
		buf[i] = 0
	}

	if err := intcodec.WriteU32(buf[HeaderOffset:], FormatCurrent); err != nil {
		return err
	}
	if err := intcodec.WriteU64(buf[8:], FirstLSN); err != nil {
		return err
	}
	n := copy(buf[HeaderCreatorStart:HeaderCreatorEnd], creator)
	for i := HeaderCreatorStart + n; i < HeaderCreatorEnd; i++ {
		buf[i] = 0
	}
	crc := ring.CRC32C32(buf[:HeaderCRCOffset])
	if err := intcodec.WriteU32(buf[HeaderCRCOffset:], crc); err != nil {
		return err
	}

	for _, off := range []int{Checkpoint1Offset, Checkpoint2Offset} {
		block := buf[off : off+CheckpointSize]
		if err := intcodec.WriteU64(block[0:], targetLSN); err != nil {
			return err
		}
		if err := intcodec.WriteU64(block[8:], targetLSN); err != nil {
			return err
		}
		cpCRC := ring.CRC32C32(block[:checkpointCRCAt])
		if err := intcodec.WriteU32(block[checkpointCRCAt:], cpCRC); err != nil {
			return err
		}
	}

	view, err := ring.NewView(buf, FirstLSN)
	if err != nil {
		return err
	}

	var chain [16]byte
	if _, err := mtr.BuildFileCheckpoint(chain[:], FirstLSN, capacity, targetLSN); err != nil {
		return err
	}
	writeRing(buf, view, targetLSN, chain[:])

	return nil
}

// writeRing copies src into buf starting at the ring position pos, wrapping
// at most once across the body boundary.
func writeRing(buf []byte, view *ring.View, pos uint64, src []byte) {
	offset0 := view.Offset(pos)
	n1 := len(buf) - offset0
	if n1 > len(src) {
		n1 = len(src)
	}
	copy(buf[offset0:offset0+n1], src[:n1])
	if n1 < len(src) {
		copy(buf[FirstLSN:], src[n1:])
	}
}
