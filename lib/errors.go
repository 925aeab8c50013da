package lib

import (
	"errors"
	"fmt"
)

var (
	NoRowFound       = errors.New("no row found")
	ErrUnknownSource = errors.New("unknown timings source")
	ErrUnknownOrder  = errors.New("unknown assignment order")
)

// InputParseError reports a timings line that is not "<duration> <identifier>".
type InputParseError struct {
	Line int
	Text string
	Err  error
}

func (e *InputParseError) Error() string {
	return fmt.Sprintf("malformed timings line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *InputParseError) Unwrap() error {
	return e.Err
}

// ArgumentRangeError reports a missing, non-numeric or out of range argument.
type ArgumentRangeError struct {
	Name   string
	Value  string
	Reason string
}

func (e *ArgumentRangeError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid argument %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("invalid argument %s=%q: %s", e.Name, e.Value, e.Reason)
}
