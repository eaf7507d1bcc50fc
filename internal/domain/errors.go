package domain

import (
	"errors"
	"fmt"
)

// ErrTypeMismatch marks a field whose JSON value cannot be read as text.
var ErrTypeMismatch = errors.New("type mismatch")

// FetchError reports a transport failure or a non-text body from the source.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a payload that does not match the brewery schema.
// Index is -1 when the payload as a whole is at fault; Field is empty when
// the entry as a whole is at fault.
type ParseError struct {
	Index int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	switch {
	case e.Index < 0:
		return fmt.Sprintf("parse payload: %v", e.Err)
	case e.Field == "":
		return fmt.Sprintf("parse payload: entry %d: %v", e.Index, e.Err)
	default:
		return fmt.Sprintf("parse payload: entry %d: field %q: %v", e.Index, e.Field, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// WriteError reports a storage failure while materializing a layer.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// CastError reports an aggregate counter that does not fit in 32 bits.
type CastError struct {
	Location string
	Column   string
	Value    int64
}

func (e *CastError) Error() string {
	return fmt.Sprintf("cast %s=%d for location %q to int32: out of range", e.Column, e.Value, e.Location)
}
