package chat

import (
	"fmt"

	"github.com/kendall-kelly/design-studio-api/store"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Kind classifies chat errors for callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnauthorized
	KindNotFound
	KindStoreUnavailable
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindStoreUnavailable:
		return "store_unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error codes surfaced to clients.
const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeEmptyMessage     = "EMPTY_MESSAGE"
	CodeMessageTooLong   = "MESSAGE_TOO_LONG"
	CodeInvalidType      = "INVALID_MESSAGE_TYPE"
	CodeFileRequired     = "FILE_REQUIRED"
	CodeRoleMismatch     = "ROLE_MISMATCH"
	CodeNotOrderOwner    = "NOT_ORDER_OWNER"
	CodeProfileNotFound  = "PROFILE_NOT_FOUND"
	CodeOrderNotFound    = "ORDER_NOT_FOUND"
	CodeRoomNotFound     = "ROOM_NOT_FOUND"
	CodeSendInFlight     = "SEND_IN_FLIGHT"
	CodeSessionNotReady  = "SESSION_NOT_READY"
	CodeSessionClosed    = "SESSION_CLOSED"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeTimeout          = "TIMEOUT"
	CodeInternal         = "INTERNAL_ERROR"
)

// Error is the error type returned by every chat operation.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
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

// Is matches the kind sentinels below, so errors.Is(err, ErrTimeout) holds
// for any timeout regardless of its code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Code == "" {
		return t.Kind == e.Kind
	}
	return t.Kind == e.Kind && t.Code == e.Code
}

// Retryable reports whether the operation may succeed if tried again.
func (e *Error) Retryable() bool {
	return e.Kind == KindStoreUnavailable || e.Kind == KindTimeout
}

// Kind sentinels for errors.Is.
var (
	ErrValidation       = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable, Message: "store unavailable"}
	ErrTimeout          = &Error{Kind: KindTimeout, Message: "timed out"}
)

// NewError creates a chat error of the given kind.
func NewError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func newError(kind Kind, code, message string) *Error {
	return NewError(kind, code, message)
}

// FromStore converts a store error for callers outside the chat core.
func FromStore(err error, op, notFoundCode string) error {
	return fromStore(err, op, notFoundCode)
}

func validationError(code, message string) *Error {
	return newError(KindValidation, code, message)
}

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether err is a transient failure.
func Retryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}

// fromStore converts a store error into a chat error. notFoundCode names
// the missing entity.
func fromStore(err error, op, notFoundCode string) error {
	if err == nil {
		return nil
	}
	var already *Error
	if errors.As(err, &already) {
		return err
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return &Error{Kind: KindNotFound, Code: notFoundCode, Message: op + ": not found", Err: err}
	case errors.Is(err, store.ErrTimeout):
		return &Error{Kind: KindTimeout, Code: CodeTimeout, Message: op + ": timed out", Err: err}
	case errors.Is(err, store.ErrUnavailable):
		return &Error{Kind: KindStoreUnavailable, Code: CodeStoreUnavailable, Message: op + ": store unavailable", Err: err}
	}

	jww.ERROR.Printf("[CHAT] %s failed: %v", op, err)
	return &Error{Kind: KindUnknown, Code: CodeInternal, Message: op + " failed", Err: err}
}
