package reservation

import (
	"errors"
	"fmt"
)

// Kind classifies engine errors for callers that map them onto a transport.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindPersistence         Kind = "persistence"
)

var (
	ErrInvalidISBN           = errors.New("invalid isbn")
	ErrInvalidQuantity       = errors.New("invalid quantity")
	ErrBookNotFound          = errors.New("book not found")
	ErrRequestNotFound       = errors.New("request not found")
	ErrAlreadyProcessed      = errors.New("request already processed")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrExceedsRequested      = errors.New("exceeds requested quantity")
	ErrCatalogUnavailable    = errors.New("catalog unavailable")
	ErrPersistence           = errors.New("persistence failure")
)

var meta = map[error]struct {
	kind Kind
	code string
}{
	ErrInvalidISBN:           {KindValidation, "INVALID_ISBN"},
	ErrInvalidQuantity:       {KindValidation, "INVALID_QUANTITY"},
	ErrBookNotFound:          {KindNotFound, "BOOK_NOT_FOUND"},
	ErrRequestNotFound:       {KindNotFound, "REQUEST_NOT_FOUND"},
	ErrAlreadyProcessed:      {KindConflict, "ALREADY_PROCESSED"},
	ErrInsufficientInventory: {KindConflict, "INSUFFICIENT_INVENTORY"},
	ErrExceedsRequested:      {KindConflict, "EXCEEDS_REQUESTED"},
	ErrCatalogUnavailable:    {KindUpstreamUnavailable, "CATALOG_UNAVAILABLE"},
	ErrPersistence:           {KindPersistence, "DB_ERROR"},
}

// Error is returned by every engine operation. Message is safe to show to
// the caller; Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error

	sentinel error
}

func newError(sentinel error, msg string, cause error) *Error {
	m := meta[sentinel]
	return &Error{Kind: m.kind, Code: m.code, Message: msg, Err: cause, sentinel: sentinel}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.sentinel }

// AsError extracts the engine error from err, if there is one.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func persistence(msg string, cause error) *Error {
	return newError(ErrPersistence, msg, cause)
}
