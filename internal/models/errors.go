package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures across the bot, the admin API and the stores.
type ErrorKind string

const (
	KindValidation    ErrorKind = "VALIDATION"
	KindAuth          ErrorKind = "AUTH"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindConflict      ErrorKind = "CONFLICT"
	KindTooLarge      ErrorKind = "TOO_LARGE"
	KindUpload        ErrorKind = "UPLOAD"
	KindPersistence   ErrorKind = "PERSISTENCE"
	KindConfiguration ErrorKind = "CONFIGURATION"
	KindInternal      ErrorKind = "INTERNAL"
)

// Error is a classified error.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a classified error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError classifies an existing error.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ValidationError(message string) *Error { return NewError(KindValidation, message) }

func AuthError(message string) *Error { return NewError(KindAuth, message) }

func NotFoundError(message string) *Error { return NewError(KindNotFound, message) }

func ConflictError(message string) *Error { return NewError(KindConflict, message) }

func TooLargeError(size, limit int64) *Error {
	return NewError(KindTooLarge, fmt.Sprintf("file too large: %d bytes exceeds limit of %d", size, limit))
}

func UploadError(message string, err error) *Error { return WrapError(KindUpload, message, err) }

func PersistenceError(message string, err error) *Error {
	return WrapError(KindPersistence, message, err)
}

func ConfigurationError(setting string) *Error {
	return NewError(KindConfiguration, fmt.Sprintf("missing configuration: %s", setting))
}

// KindOf returns the kind of the first classified error in the chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether any classified error in the chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// HTTPStatus maps an error to the status code returned by the admin API.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}
