package xsi

import (
	"errors"
	"fmt"
)

// Errors reported by the parser and the graph mutators.
var (
	ErrInvalidHeader  = errors.New("invalid XSI header")
	ErrWordTooLong    = errors.New("data word exceeds maximum length")
	ErrTruncated      = errors.New("truncated XSI data")
	ErrExpectedNumber = errors.New("expected a numeric value")
	ErrDuplicateFrame = errors.New("duplicate frame name")
	ErrRenameFailed   = errors.New("failed to generate unique frame name")
	ErrInvalidKeyType = errors.New("invalid animation key type")
	ErrVectorSize     = errors.New("animation key vector size mismatch")
	ErrMaterialIndex  = errors.New("face material index out of range")
)

// ParseError is a fatal parse failure carrying the stream position where
// it was detected.
type ParseError struct {
	Name string // stream name, usually the file path
	Line int
	Col  int
	Msg  string // optional detail
	Err  error  // wrapped sentinel
}

// Error formats the failure as "name:line:col: message".
func (e *ParseError) Error() string {
	pos := fmt.Sprintf("%s:%d:%d", e.Name, e.Line, e.Col)
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v: %s", pos, e.Err, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", pos, e.Err)
	default:
		return fmt.Sprintf("%s: %s", pos, e.Msg)
	}
}

// Unwrap returns the wrapped sentinel error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
