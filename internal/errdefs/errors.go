// Package errdefs defines the error categories shared by the loader, the codecs
// and the compute kernels.
//
// Every error produced by this module belongs to exactly one category and can be
// tested with errors.Is against ErrIO, ErrFormat, ErrValidation or ErrNotFound.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories.
var (
	ErrIO         = errors.New("i/o error")
	ErrFormat     = errors.New("format error")
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
)

// NoOffset marks an Error that is not tied to a stream position.
const NoOffset int64 = -1

// Error provides detailed information about a failure.
type Error struct {
	Kind    error  // Category sentinel (ErrIO, ErrFormat, ...).
	Op      string // Operation that failed (e.g., "read u32", "decode tensor").
	Subject string // Tensor name or metadata key involved, if any.
	Details string // Additional details.
	Offset  int64  // Stream offset, NoOffset if not applicable.
	Size    int64  // Attempted read size in bytes, 0 if not applicable.
	Err     error  // Underlying cause.
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Subject != "" {
		fmt.Fprintf(&b, "%q: ", e.Subject)
	}
	switch {
	case e.Details != "":
		b.WriteString(e.Details)
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	}
	if e.Offset >= 0 {
		if e.Size > 0 {
			fmt.Fprintf(&b, " (offset %d, size %d)", e.Offset, e.Size)
		} else {
			fmt.Fprintf(&b, " (offset %d)", e.Offset)
		}
	}
	if e.Details != "" && e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Is reports whether target is the category of e.
func (e *Error) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Sentinel returns a package-level sentinel that belongs to category kind.
// Wrap it with fmt.Errorf("...: %w", sentinel) to keep both identities.
func Sentinel(kind error, msg string) *Error {
	return &Error{Kind: kind, Details: msg, Offset: NoOffset}
}

// IO reports a failed or short read at offset.
func IO(op string, offset, size int64, err error) *Error {
	return &Error{Kind: ErrIO, Op: op, Offset: offset, Size: size, Err: err}
}

// Format reports malformed input.
func Format(op, format string, args ...any) *Error {
	return &Error{Kind: ErrFormat, Op: op, Details: fmt.Sprintf(format, args...), Offset: NoOffset}
}

// Validation reports a caller-side contract violation such as a shape mismatch.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Details: fmt.Sprintf(format, args...), Offset: NoOffset}
}

// NotFound reports a missing tensor or metadata key.
func NotFound(op, subject string) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Subject: subject, Offset: NoOffset}
}

// Category returns the category sentinel of err, or nil if err carries none.
func Category(err error) error {
	for _, kind := range []error{ErrIO, ErrFormat, ErrValidation, ErrNotFound} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
