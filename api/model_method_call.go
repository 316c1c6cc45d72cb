package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MethodCall is a single invocation arriving from the application over the method channel.
// Arguments is a Bridge Value: nil, bool, a number, a string, []any or map[string]any.
type MethodCall struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

// Argument returns the named entry of a map shaped argument list.
func (c MethodCall) Argument(name string) (any, bool) {
	args, ok := c.Arguments.(map[string]any)
	if !ok {
		return nil, false
	}
	value, ok := args[name]
	return value, ok
}

// Result receives the outcome of a MethodCall. Exactly one of the methods is called,
// possibly from another goroutine and after HandleMethodCall has returned.
type Result interface {
	Success(result any)
	Error(code string, message string, details any)
	NotImplemented()
}

// MethodInvoker pushes a call from the bridge back to the application layer.
type MethodInvoker interface {
	InvokeMethod(method string, arguments any)
}

// Error codes reported through Result.Error.
const (
	ErrorCode_ClientNotInitialized = "CLIENT_NOT_INITIALIZED"
	ErrorCode_UnsupportedValueType = "UNSUPPORTED_VALUE_TYPE"
	ErrorCode_InvalidContext       = "INVALID_CONTEXT"
	ErrorCode_InvalidConfig        = "INVALID_CONFIG"
	ErrorCode_InvalidArgument      = "INVALID_ARGUMENT"
	ErrorCode_StartFailed          = "START_FAILED"
	ErrorCode_Internal             = "INTERNAL"
)

var ErrNotImplemented = errors.New("method not implemented")

// MethodError is the structured error a method call resolved with.
type MethodError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type ResultStatus string

const (
	ResultStatus_Success        ResultStatus = "success"
	ResultStatus_Error          ResultStatus = "error"
	ResultStatus_NotImplemented ResultStatus = "notImplemented"
)

// MethodResponse is the settled state of a Result.
type MethodResponse struct {
	Status  ResultStatus `json:"status"`
	Result  any          `json:"result,omitempty"`
	Code    string       `json:"code,omitempty"`
	Message string       `json:"message,omitempty"`
	Details any          `json:"details,omitempty"`
}

// Err converts a response into the error a caller of the method would see.
func (r MethodResponse) Err() error {
	switch r.Status {
	case ResultStatus_Error:
		return &MethodError{Code: r.Code, Message: r.Message, Details: r.Details}
	case ResultStatus_NotImplemented:
		return ErrNotImplemented
	}
	return nil
}

// ResultFuture is a Result that can be waited on. Only the first outcome is kept.
type ResultFuture struct {
	once     sync.Once
	done     chan struct{}
	response MethodResponse
}

func NewResultFuture() *ResultFuture {
	return &ResultFuture{done: make(chan struct{})}
}

func (f *ResultFuture) settle(response MethodResponse) {
	f.once.Do(func() {
		f.response = response
		close(f.done)
	})
}

func (f *ResultFuture) Success(result any) {
	f.settle(MethodResponse{Status: ResultStatus_Success, Result: result})
}

func (f *ResultFuture) Error(code string, message string, details any) {
	f.settle(MethodResponse{Status: ResultStatus_Error, Code: code, Message: message, Details: details})
}

func (f *ResultFuture) NotImplemented() {
	f.settle(MethodResponse{Status: ResultStatus_NotImplemented})
}

// Done is closed once the future has settled.
func (f *ResultFuture) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is done.
func (f *ResultFuture) Wait(ctx context.Context) (MethodResponse, error) {
	select {
	case <-f.done:
		return f.response, nil
	case <-ctx.Done():
		return MethodResponse{}, ctx.Err()
	}
}
