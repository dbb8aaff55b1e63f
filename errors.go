package pdfmerge

import (
	"errors"
	"fmt"
)

// Sentinel errors for batch and submission failures.
var (
	ErrNoFiles       = errors.New("pdfmerge: no files selected")
	ErrNotPDF        = errors.New("pdfmerge: not a PDF file")
	ErrTooLarge      = errors.New("pdfmerge: file exceeds size limit")
	ErrTooFewFiles   = errors.New("pdfmerge: not enough files to merge")
	ErrBusy          = errors.New("pdfmerge: submission in progress")
	ErrClosed        = errors.New("pdfmerge: batch is closed")
	ErrInvalidParam  = errors.New("pdfmerge: invalid parameter")
	ErrEmptyResponse = errors.New("pdfmerge: empty response")
	ErrNetwork       = errors.New("pdfmerge: network failure")
	ErrMergeFailed   = errors.New("pdfmerge: merge failed")
	ErrDelivery      = errors.New("pdfmerge: delivery failed")
)

// Kind classifies an Error by where it is recovered.
type Kind uint8

const (
	// KindValidation covers admission and submit preconditions.
	KindValidation Kind = iota + 1
	// KindTransport covers the merge request and delivery of its result.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is a user-visible failure of a batch operation. Msg is the message
// shown to the user; Err carries the sentinel or underlying cause.
type Error struct {
	Op    string   // operation name, e.g. "Admit", "Submit"
	Kind  Kind     // validation or transport
	Msg   string   // user-visible message
	Files []string // offending file names, if any
	Err   error    // underlying error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "":
		return fmt.Sprintf("pdfmerge.%s: %s", e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("pdfmerge.%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("pdfmerge.%s: unknown error", e.Op)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError creates a validation Error for op.
func NewValidationError(op, msg string, err error, files ...string) *Error {
	return &Error{Op: op, Kind: KindValidation, Msg: msg, Files: files, Err: err}
}

// NewTransportError creates a transport Error for op.
func NewTransportError(op, msg string, err error) *Error {
	return &Error{Op: op, Kind: KindTransport, Msg: msg, Err: err}
}

// Message returns the user-visible message of err. Errors that are not an
// *Error fall back to their Error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return err.Error()
}

// IsValidation reports whether err is a validation Error.
func IsValidation(err error) bool {
	return kindOf(err) == KindValidation
}

// IsTransport reports whether err is a transport Error.
func IsTransport(err error) bool {
	return kindOf(err) == KindTransport
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
