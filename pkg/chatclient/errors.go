package chatclient

import (
	"errors"
	"fmt"
)

// Code вид ошибки. Значения совпадают с кодами из ответа сервера
// {"error":{"code": ...}}.
type Code string

const (
	CodeValidation      Code = "VALIDATION"
	CodeNotFound        Code = "NOT_FOUND"
	CodeForbidden       Code = "FORBIDDEN"
	CodeConflict        Code = "CONFLICT"
	CodeTransport       Code = "TRANSPORT"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL"
)

// Error ошибка клиента. Status задан для ответов REST, для сокета он 0.
type Error struct {
	Code    Code
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chatclient: %s: %v", e.Message, e.Err)
	}
	return "chatclient: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает по коду, поэтому errors.Is(err, chatclient.ErrUnauthenticated)
// не зависит от текста
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code && t.Message == ""
}

var (
	ErrValidation      = &Error{Code: CodeValidation}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrForbidden       = &Error{Code: CodeForbidden}
	ErrConflict        = &Error{Code: CodeConflict}
	ErrTransport       = &Error{Code: CodeTransport}
	ErrUnauthenticated = &Error{Code: CodeUnauthenticated}
	ErrRateLimited     = &Error{Code: CodeRateLimited}
)

// CodeOf код ошибки или CodeInternal для чужих ошибок
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func transportError(message string, err error) error {
	return &Error{Code: CodeTransport, Message: message, Err: err}
}

// remoteError восстанавливает вид ошибки по коду из ответа сервера
func remoteError(status int, code, msg string) error {
	e := &Error{Code: Code(code), Status: status, Message: msg}
	if e.Message == "" {
		e.Message = fmt.Sprintf("status %d", status)
	}
	switch e.Code {
	case CodeValidation, CodeNotFound, CodeForbidden, CodeConflict,
		CodeTransport, CodeUnauthenticated, CodeRateLimited:
	default:
		e.Code = CodeInternal
	}
	return e
}
