package session

import (
	"errors"
	"fmt"
)

// Kind classifies why a request was rejected.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindTooLarge
	KindOutOfOrder
	KindNotFound
	KindConflict
	KindStorage
	KindUseChunks
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTooLarge:
		return "too_large"
	case KindOutOfOrder:
		return "out_of_order"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	case KindUseChunks:
		return "use_chunks"
	default:
		return "unknown"
	}
}

// Error is a rejected upload request. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string

	// Set for KindOutOfOrder
	Expected int64
	Received int64

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func reject(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func errSessionNotFound() *Error {
	return reject(KindNotFound, "upload session not found or expired")
}

func storageFailure(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// KindOf returns the rejection kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
