package connect

import (
	"errors"
	"fmt"

	statuspb "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/protobuf/proto"
)

// Error is the structured error every protocol interceptor converts its
// wire-specific failure representation into. Its Code is never CodeOK: a
// successful call never produces an *Error.
//
// Error always supports errors.As/errors.Is against the wrapped cause.
type Error struct {
	code    Code
	message string
	details []*ErrorDetail
	meta    Headers
	cause   error
}

// NewError builds an *Error directly from a code and an underlying error.
// The underlying error's message becomes the Error's message.
func NewError(code Code, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{code: code, message: msg, cause: cause, meta: NewHeaders()}
}

// errorf builds an *Error from a code plus a printf-style message, with no
// separate cause.
func errorf(code Code, format string, args ...any) *Error {
	return NewError(code, fmt.Errorf(format, args...))
}

// wrap builds an *Error from an existing error without reformatting its
// message.
func wrap(code Code, err error) *Error {
	return NewError(code, err)
}

// Code returns the error's status code.
func (e *Error) Code() Code {
	if e == nil {
		return CodeOK
	}
	return e.code
}

// Message returns the human-readable message, if any.
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Details returns the error's typed details, if any.
func (e *Error) Details() []*ErrorDetail {
	if e == nil {
		return nil
	}
	return e.details
}

// Meta returns protocol metadata observed alongside the error (gRPC
// trailers, Connect's end-stream metadata block, and so on).
func (e *Error) Meta() Headers {
	if e == nil {
		return NewHeaders()
	}
	return e.meta
}

// AddDetail appends a detail, used by protocol interceptors as they parse
// wire-specific error payloads.
func (e *Error) AddDetail(detail *ErrorDetail) {
	e.details = append(e.details, detail)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.message == "" {
		return e.code.String()
	}
	return e.code.String() + ": " + e.message
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// AsError reports whether err is, or wraps, an *Error, returning it if so.
func AsError(err error) (*Error, bool) {
	var connectErr *Error
	if errors.As(err, &connectErr) {
		return connectErr, true
	}
	return nil, false
}

// CodeOf returns the Code carried by err, or CodeUnknown if err doesn't wrap
// an *Error. A nil err yields CodeOK.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	if connectErr, ok := AsError(err); ok {
		return connectErr.Code()
	}
	return CodeUnknown
}

// toStatus renders e as a google.rpc.Status, used to build the
// Grpc-Status-Details-Bin trailer.
func (e *Error) toStatus() *statuspb.Status {
	status := &statuspb.Status{
		Code:    int32(e.Code()),
		Message: e.Message(),
	}
	for _, detail := range e.details {
		if any := detail.asAny(); any != nil {
			status.Details = append(status.Details, any)
		}
	}
	return status
}

// errorFromStatus builds an *Error from a decoded google.rpc.Status,
// preferring the protobuf-encoded code/message over any HTTP-trailer
// equivalents the caller already extracted.
func errorFromStatus(status *statuspb.Status) *Error {
	err := &Error{
		code:    Code(status.GetCode()),
		message: status.GetMessage(),
		meta:    NewHeaders(),
	}
	for _, any := range status.GetDetails() {
		err.details = append(err.details, newErrorDetailFromAny(any))
	}
	return err
}

// marshalStatus serializes a google.rpc.Status for the Grpc-Status-Details-Bin
// trailer.
func marshalStatus(status *statuspb.Status) ([]byte, error) {
	return proto.Marshal(status)
}

// unmarshalStatus parses a google.rpc.Status out of Grpc-Status-Details-Bin.
func unmarshalStatus(data []byte) (*statuspb.Status, error) {
	status := new(statuspb.Status)
	if err := proto.Unmarshal(data, status); err != nil {
		return nil, err
	}
	return status, nil
}
