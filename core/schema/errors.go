package schema

import (
	"errors"
	"fmt"
	"strings"
)

// Reference resolution failures. They are wrapped with the offending
// reference, match them with errors.Is.
var (
	ErrMissingHash     = errors.New("invalid reference identifier: missing hash part")
	ErrRemoteReference = errors.New("remote references are not supported")
	ErrInvalidTarget   = errors.New("invalid reference: the target must be an entity or a type")
	ErrReferenceCycle  = errors.New("reference cycle without an entity")
	ErrUndefinedType   = errors.New("undefined type")
)

// Violation is one failed rule of the document schema.
type Violation struct {
	Pointer    string         // JSON pointer into the document
	Message    string         // what failed
	Params     map[string]any // rule parameters, may be empty
	SchemaPath string         // keyword location in the document schema
}

func (v Violation) String() string {
	params := ""
	if len(v.Params) > 0 {
		params = " " + encodeParams(v.Params)
	}
	return fmt.Sprintf("Error in #%s '%s'%s. Schema '%s'", v.Pointer, v.Message, params, v.SchemaPath)
}

// ValidationError aggregates every violation of one document.
type ValidationError struct {
	Path       string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	lines := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}

// InternalError reports a value the model or a renderer does not know how to
// handle. It is a bug in the caller, never a user error.
type InternalError struct {
	Op    string
	Value any
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s: unhandled value %T (%v)", e.Op, e.Value, e.Value)
}

// NotImplementedError reports a known gap in the generator.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return "not implemented: " + e.Feature
}

// IsNotImplemented reports whether err carries a NotImplementedError.
func IsNotImplemented(err error) bool {
	var ni *NotImplementedError
	return errors.As(err, &ni)
}
