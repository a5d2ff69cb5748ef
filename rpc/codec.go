package rpc

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// Request is one call inside a batch.
type Request struct {
	ID     uint64         `json:"id"`
	Method string         `json:"method"`
	Params any            `json:"params"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Response answers one request. Servers that predate the result key answer
// with data instead.
type Response struct {
	ID     *uint64 `json:"id,omitempty"`
	Result any     `json:"result,omitempty"`
	Data   any     `json:"data,omitempty"`
	Error  *Error  `json:"error,omitempty"`
}

// Value returns the payload of a successful response.
func (r Response) Value() any {
	if r.Result != nil {
		return r.Result
	}
	return r.Data
}

// EncodeBatch serializes requests as a JSON array.
func EncodeBatch(batch []Request) ([]byte, error) {
	return json.Marshal(batch)
}

// DecodeBatch accepts an array of responses or a single response object.
// Numbers are kept as json.Number.
func DecodeBatch(data []byte) ([]Response, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, NewError(ParserErrorMalformed, "empty response")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var out []Response
		if err := dec.Decode(&out); err != nil {
			return nil, &Error{Code: ParserErrorMalformed, Message: fmt.Sprintf("decode response: %v", err)}
		}
		return out, nil
	}
	var one Response
	if err := dec.Decode(&one); err != nil {
		return nil, &Error{Code: ParserErrorMalformed, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return []Response{one}, nil
}

// DecodeRequests is the server side counterpart of EncodeBatch.
func DecodeRequests(data []byte) ([]Request, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, NewError(InvalidRPC, "empty request")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if data[0] == '[' {
		var out []Request
		if err := dec.Decode(&out); err != nil {
			return nil, &Error{Code: ParserErrorMalformed, Message: fmt.Sprintf("decode request: %v", err)}
		}
		return out, nil
	}
	var one Request
	if err := dec.Decode(&one); err != nil {
		return nil, &Error{Code: ParserErrorMalformed, Message: fmt.Sprintf("decode request: %v", err)}
	}
	return []Request{one}, nil
}

// EncodeResponses serializes responses as a JSON array.
func EncodeResponses(batch []Response) ([]byte, error) {
	return json.Marshal(batch)
}
