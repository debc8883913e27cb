package utils

import (
	"errors"
	"fmt"
)

// ErrorKind classifies application errors so the HTTP layer can map them
// to status codes in one place instead of string-matching messages.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindInsufficientStock
	KindInvalidStatus
	KindConflict
	KindProcessing
	KindUnauthorized
	KindValidation
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "NotFound"
	case KindInsufficientStock:
		return "InsufficientStock"
	case KindInvalidStatus:
		return "InvalidStatus"
	case KindConflict:
		return "Conflict"
	case KindProcessing:
		return "Processing"
	case KindUnauthorized:
		return "Unauthorized"
	case KindValidation:
		return "Validation"
	default:
		return "Internal"
	}
}

type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFoundError(format string, args ...any) error {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func InsufficientStockError(format string, args ...any) error {
	return &AppError{Kind: KindInsufficientStock, Message: fmt.Sprintf(format, args...)}
}

func InvalidStatusError(format string, args ...any) error {
	return &AppError{Kind: KindInvalidStatus, Message: fmt.Sprintf(format, args...)}
}

func ConflictError(format string, args ...any) error {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func ProcessingError(message string, err error) error {
	return &AppError{Kind: KindProcessing, Message: message, Err: err}
}

func UnauthorizedError(format string, args ...any) error {
	return &AppError{Kind: KindUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...any) error {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err, or KindInternal for plain errors.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

var ErrorRecordNotFound = NotFoundError("record not found")

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
