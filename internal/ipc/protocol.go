// Package ipc implements Kagan's local request/response wire protocol:
// newline-delimited JSON envelopes framed over a Unix domain socket (or a
// TCP loopback fallback on Windows / when forced), carrying
// capability.method calls dispatched against the core's services.
package ipc

import "encoding/json"

// Request is one framed line sent by a client to the core.
type Request struct {
	ID          string                 `json:"id"`
	SessionID   string                 `json:"session_id"`
	Profile     string                 `json:"profile,omitempty"`
	Origin      string                 `json:"origin,omitempty"`
	Capability  string                 `json:"capability"`
	Method      string                 `json:"method"`
	Params      map[string]interface{} `json:"params,omitempty"`
	Idempotency string                 `json:"idempotency_key,omitempty"`
}

// Response is one framed line sent by the core back to a client.
type Response struct {
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload is the structured error shape carried in a failed Response:
// Code is a stable machine-readable identifier, Message is human-readable,
// and Hint optionally points the client at a corrective action.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// CodedError is implemented by error types that carry a stable IPC error
// code, e.g. *security.AuthorizationError and *session.BindingError.
type CodedError interface {
	error
	Code() string
}

// NewErrorResponse builds a failure Response for err, deriving the error
// code from a CodedError when possible and falling back to INTERNAL_ERROR.
func NewErrorResponse(id string, err error) *Response {
	code := "INTERNAL_ERROR"
	if coded, ok := err.(CodedError); ok {
		code = coded.Code()
	}
	return &Response{
		ID: id,
		OK: false,
		Error: &ErrorPayload{
			Code:    code,
			Message: err.Error(),
		},
	}
}

// NewOKResponse builds a success Response carrying the marshaled result.
func NewOKResponse(id string, result interface{}) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{ID: id, OK: true, Result: raw}, nil
}
