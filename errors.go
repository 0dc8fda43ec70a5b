package emcore

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by this module matches one of these
// with errors.Is.
var (
	ErrConfiguration        = errors.New("configuration error")
	ErrUnsupportedFormat    = fmt.Errorf("%w: unsupported format", ErrConfiguration)
	ErrAlreadyOpen          = errors.New("already open")
	ErrNotOpen              = errors.New("not open")
	ErrIO                   = errors.New("i/o error")
	ErrInvalidFormat        = errors.New("invalid format")
	ErrUnsupportedType      = errors.New("unsupported type")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidOperation     = errors.New("invalid operation")
	ErrStaleView            = errors.New("view outlived its array allocation")
)

// Error records a failed operation together with the path it was working on.
// Kind is one of the sentinel errors above; Err is the underlying cause, for
// example an *fs.PathError for ErrIO.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Kind != nil {
		msg += ": " + e.Kind.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// NewError returns an *Error of the given kind. Err may be nil.
func NewError(op, path string, kind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

// Errorf is a shorthand for NewError with a formatted cause.
func Errorf(op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}
