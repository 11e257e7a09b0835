package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation  Kind = "VALIDATION"
	KindNotFound    Kind = "NOT_FOUND"
	KindForbidden   Kind = "FORBIDDEN"
	KindConflict    Kind = "CONFLICT"
	KindTransport   Kind = "TRANSPORT"
	KindAuth        Kind = "UNAUTHENTICATED"
	KindRateLimited Kind = "RATE_LIMITED"
	KindInternal    Kind = "INTERNAL"
)

type AppError struct {
	Kind    Kind   `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Is совпадает с любой AppError того же вида, поэтому errors.Is(err, apperr.ErrNotFound)
// работает независимо от текста
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Образцы для errors.Is, без текста, сравниваются по виду
var (
	ErrValidation  = &AppError{Kind: KindValidation}
	ErrNotFound    = &AppError{Kind: KindNotFound}
	ErrForbidden   = &AppError{Kind: KindForbidden}
	ErrConflict    = &AppError{Kind: KindConflict}
	ErrTransport   = &AppError{Kind: KindTransport}
	ErrAuth        = &AppError{Kind: KindAuth}
	ErrRateLimited = &AppError{Kind: KindRateLimited}
	ErrInternal    = &AppError{Kind: KindInternal}
)

func New(kind Kind, message string) error {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

func Validation(msg string) error  { return New(KindValidation, msg) }
func NotFound(msg string) error    { return New(KindNotFound, msg) }
func Forbidden(msg string) error   { return New(KindForbidden, msg) }
func Conflict(msg string) error    { return New(KindConflict, msg) }
func Auth(msg string) error        { return New(KindAuth, msg) }
func RateLimited(msg string) error { return New(KindRateLimited, msg) }

func Transport(msg string, cause error) error {
	return Wrap(KindTransport, msg, cause)
}

func Internal(msg string, cause error) error {
	return Wrap(KindInternal, msg, cause)
}

// KindOf вид первой AppError в цепочке, для прочих ошибок KindInternal
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// PublicMessage текст, который можно показать клиенту. Причины внутренних
// ошибок наружу не отдаются.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Kind == KindInternal {
			return "internal error"
		}
		return appErr.Message
	}
	return "internal error"
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindTransport:
		return http.StatusBadGateway
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
