// Package rlerr defines the error-kind taxonomy shared by the MTR codec and
// the redo container, per the error handling design: every core error is a
// typed value carrying one of a small set of kinds and a wrapped cause, so
// callers can dispatch with errors.As/errors.Is instead of string-matching.
package rlerr

// Kind classifies a core error. Names match the error table exactly.
type Kind int

const (
	ShortRead Kind = iota
	HeaderCrc
	NoValidCheckpoint
	UnsupportedFormat
	UnsupportedEncrypted
	UnsupportedMultiFile
	WrongGeneration
	ChainChecksum
	ChainOverrun
	MalformedVarint
	UnknownOpcode
	PageChecksum
)

func (k Kind) String() string {
	switch k {
	case ShortRead:
		return "ShortRead"
	case HeaderCrc:
		return "HeaderCrc"
	case NoValidCheckpoint:
		return "NoValidCheckpoint"
	case UnsupportedFormat:
		return "UnsupportedFormat"
	case UnsupportedEncrypted:
		return "UnsupportedEncrypted"
	case UnsupportedMultiFile:
		return "UnsupportedMultiFile"
	case WrongGeneration:
		return "WrongGeneration"
	case ChainChecksum:
		return "ChainChecksum"
	case ChainOverrun:
		return "ChainOverrun"
	case MalformedVarint:
		return "MalformedVarint"
	case UnknownOpcode:
		return "UnknownOpcode"
	case PageChecksum:
		return "PageChecksum"
	default:
		return "Unknown"
	}
}

// Error is the core's structured error type.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, rlerr.Of(rlerr.ChainChecksum)).
func (e *Error) Is(target error) bool {
	o, ok := target.(*Error)
	if !ok {
		return false
	}
	return o.Kind == e.Kind && o.Msg == "" && o.Err == nil
}

// New builds an *Error of the given kind wrapping err, with a formatted
// message.
func New(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Of returns a bare *Error of the given kind, suitable as an errors.Is
// target: errors.Is(err, rlerr.Of(rlerr.WrongGeneration)).
func Of(kind Kind) *Error {
	return &Error{Kind: kind}
}
