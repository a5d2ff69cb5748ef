package rpc

import (
	"fmt"
	"strings"
)

// Error codes. The ranges follow JSON-RPC: parse errors, protocol errors,
// then application, system and transport failures.
const (
	ParserErrorMalformed   = -32700
	ParserErrorEncoding    = -32701
	ParserErrorInvalidChar = -32702
	InvalidRPC             = -32600
	MethodNotFound         = -32601
	InternalRPCError       = -32603
	ApplicationError       = -32500
	SystemError            = -32400
	TransportError         = -32300
)

// Error is a failed call. It is delivered to the call it belongs to and never
// affects other calls.
type Error struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// NewError creates an error without diagnostic data.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Error prefers the remote traceback, then "<type>: <message>".
func (e *Error) Error() string {
	if tb, ok := e.Data["traceback"]; ok {
		switch tb := tb.(type) {
		case []any:
			lines := make([]string, len(tb))
			for i, l := range tb {
				lines[i] = fmt.Sprint(l)
			}
			return strings.Join(lines, "\n")
		case string:
			return tb
		}
	}
	if typ, ok := e.Data["type"].(string); ok && typ != "" {
		return typ + ": " + e.Message
	}
	return e.Message
}

// Is matches errors by code, so errors.Is(err, &Error{Code: SystemError})
// works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// ErrorSpec documents an error a method declares.
type ErrorSpec struct {
	Code    int
	Message string
	Data    any
	Summary string
}
