package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownVersion = errors.New("protocol: unknown amf version")
	ErrInvalidCount   = errors.New("protocol: invalid record count")
	ErrNilEnvelope    = errors.New("protocol: nil envelope")
)

// VersionError reports the unrecognized leading version marker.
type VersionError struct {
	Marker uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("protocol: unknown amf version %d", e.Marker)
}

func (e *VersionError) Unwrap() error {
	return ErrUnknownVersion
}

type Phase string

const (
	PhaseVersion Phase = "version"
	PhaseHeader  Phase = "header"
	PhaseBody    Phase = "body"
)

// DecodeError locates a failure inside the envelope. Name is the header name
// or body target URI when it was read before the failure.
type DecodeError struct {
	Phase Phase
	Index int
	Name  string
	// Field is the framing element being read, e.g. "name" or "data".
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("protocol: %s %d %s: %v", e.Phase, e.Index, e.Field, e.Err)
	}
	return fmt.Sprintf("protocol: %s %d (%s) %s: %v", e.Phase, e.Index, e.Name, e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
