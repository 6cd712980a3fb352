// Package diag carries the warning/info side channel the core threads
// through instead of using process-wide logging (design notes, §9): "a
// target implementation should thread a logger (or sink) as an explicit
// parameter."
package diag

import (
	"io"
	"log"
)

//go:generate mockgen -source=diag.go -destination=mocks/diag_mock.go -package=mocks

// Observer receives non-fatal diagnostics from the core: invalid checkpoint
// blocks, unknown MTR opcodes, reserved-band records, and similar
// warn-and-continue conditions.
type Observer interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
}

// Nop discards every diagnostic. It is the default Observer when a caller
// does not supply one.
type Nop struct{}

func (Nop) Warnf(string, ...any) {}
func (Nop) Infof(string, ...any) {}

// StdObserver wraps a standard library *log.Logger, matching the teacher's
// own use of log.Printf for its verbose-mode diagnostics.
type StdObserver struct {
	logger *log.Logger
}

// NewStdObserver builds an Observer writing to w with the given prefix.
func NewStdObserver(w io.Writer, prefix string) *StdObserver {
	return &StdObserver{logger: log.New(w, prefix, log.LstdFlags)}
}

func (o *StdObserver) Warnf(format string, args ...any) {
	o.logger.Printf("WARN "+format, args...)
}

func (o *StdObserver) Infof(format string, args ...any) {
	o.logger.Printf("INFO "+format, args...)
}

// OrNop returns o if non-nil, otherwise Nop{}. Callers use this to avoid a
// nil-check at every call site.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}
