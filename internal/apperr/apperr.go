package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and for the HTTP layer
type Kind string

const (
	KindInternal             Kind = "internal"
	KindNotFound             Kind = "not_found"
	KindInvalid              Kind = "invalid"
	KindConflict             Kind = "conflict"
	KindInsufficientFunds    Kind = "insufficient_funds"
	KindInsufficientQuantity Kind = "insufficient_quantity"
	KindNoHolding            Kind = "no_holding"
	KindPriceMismatch        Kind = "price_mismatch"
	KindUnauthorized         Kind = "unauthorized"
	KindForbidden            Kind = "forbidden"
)

// Error is a domain error with a user-facing message
type Error struct {
	Kind    Kind
	Message string
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUserNotFound         = New(KindNotFound, "user not found")
	ErrStockNotFound        = New(KindNotFound, "stock not found")
	ErrNewsNotFound         = New(KindNotFound, "news not found")
	ErrInsufficientFunds    = New(KindInsufficientFunds, "insufficient funds")
	ErrInsufficientQuantity = New(KindInsufficientQuantity, "cannot sell more shares than held")
	ErrNoHolding            = New(KindNoHolding, "stock is not held")
	ErrPriceMismatch        = New(KindPriceMismatch, "execution price is too far from the current price")
	ErrUnauthorized         = New(KindUnauthorized, "authentication required")
	ErrForbidden            = New(KindForbidden, "insufficient permissions")
)

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
