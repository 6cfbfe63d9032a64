package parser

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyFile = errors.New("file is empty")
	ErrNoRows    = errors.New("no usable rows")
)

// ParseError is returned when a file cannot yield a usable table.
type ParseError struct {
	Row     int // 1-based line of the offending record, 0 when not row specific
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("parse error at row %d: %s", e.Row, e.Message)
	}
	return "parse error: " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
