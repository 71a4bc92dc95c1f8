// Package apperr is the typed error every engine operation returns.
// Adapters turn the Kind into a transport status; Code is the stable
// machine-readable reason inside that family.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindState        Kind = "state"
	KindConflict     Kind = "conflict"
	KindDomain       Kind = "domain"
	KindUpstream     Kind = "upstream"
	KindInternal     Kind = "internal"
)

const (
	CodeValidation          = "ValidationError"
	CodeUnauthorized        = "Unauthorized"
	CodeForbidden           = "Forbidden"
	CodeNotFound            = "NotFound"
	CodeInvalidTransition   = "InvalidTransition"
	CodeNotSellerControlled = "NotSellerControlled"
	CodeAlreadyAccepted     = "AlreadyAccepted"
	CodeAlreadyTaken        = "AlreadyTaken"
	CodeAlreadyRated        = "AlreadyRated"
	CodeOrderNumber         = "OrderNumberCollision"
	CodeCouponRace          = "CouponRace"
	CodeConcurrentUpdate    = "ConcurrentUpdate"
	CodeInsufficientStock   = "InsufficientStock"
	CodeOutOfStock          = "OutOfStock"
	CodeCouponInvalid       = "CouponInvalid"
	CodeMinimumOrder        = "MinimumOrder"
	CodePricing             = "PricingError"
	CodeDriverNotEligible   = "DriverNotEligible"
	CodeDriverBusy          = "DriverBusy"
	CodePaymentDeclined     = "PaymentDeclined"
	CodeUpstreamTimeout     = "UpstreamTimeout"
	CodeUpstreamUnavailable = "UpstreamUnavailable"
	CodeInternal            = "Internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error carrying the same Code, so callers can compare
// against the sentinels below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy of e with one more detail. The receiver is left
// untouched, so sentinels stay shared safely.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// ----- Sentinels (for errors.Is) -----

var (
	ErrInvalidTransition = New(KindState, CodeInvalidTransition, "transition not allowed")
	ErrAlreadyTaken      = New(KindConflict, CodeAlreadyTaken, "order already taken by another driver")
	ErrInsufficientStock = New(KindDomain, CodeInsufficientStock, "insufficient stock")
	ErrUpstreamTimeout   = New(KindUpstream, CodeUpstreamTimeout, "upstream timed out")
)

// ----- Constructors -----

func Validation(msg string) *Error {
	return New(KindValidation, CodeValidation, msg)
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

func Unauthorized(msg string) *Error {
	return New(KindUnauthorized, CodeUnauthorized, msg)
}

func Forbidden(msg string) *Error {
	return New(KindForbidden, CodeForbidden, msg)
}

func NotFound(what string) *Error {
	return New(KindNotFound, CodeNotFound, what+" not found").With("resource", what)
}

// InvalidTransition is the StateError of the order and delivery machines.
func InvalidTransition(current, action string) *Error {
	return New(KindState, CodeInvalidTransition, fmt.Sprintf("cannot %s from %s", action, current)).
		With("current", current).With("action", action)
}

func NotSellerControlled(current string) *Error {
	return New(KindState, CodeNotSellerControlled, "delivery orders move past ready only through the driver").
		With("current", current)
}

func AlreadyAccepted() *Error {
	return New(KindConflict, CodeAlreadyAccepted, "order already accepted")
}

func AlreadyTaken(orderID string) *Error {
	return New(KindConflict, CodeAlreadyTaken, "order already taken by another driver").With("order_id", orderID)
}

func AlreadyRated() *Error {
	return New(KindConflict, CodeAlreadyRated, "delivery already rated")
}

func ConcurrentUpdate(what string) *Error {
	return New(KindConflict, CodeConcurrentUpdate, what+" was modified concurrently, retry")
}

func Conflict(code, msg string) *Error {
	return New(KindConflict, code, msg)
}

func InsufficientStock(productID string, available int64) *Error {
	return New(KindDomain, CodeInsufficientStock, "insufficient stock").
		With("product_id", productID).With("available", available)
}

func CouponInvalid(reason string) *Error {
	return New(KindDomain, CodeCouponInvalid, "coupon cannot be applied: "+reason).With("reason", reason)
}

func Domain(code, msg string) *Error {
	return New(KindDomain, code, msg)
}

func DriverNotEligible(reason string) *Error {
	return New(KindForbidden, CodeDriverNotEligible, "driver is not eligible: "+reason).With("reason", reason)
}

func DriverBusy() *Error {
	return New(KindConflict, CodeDriverBusy, "driver already has an active delivery")
}

func PaymentDeclined(msg string) *Error {
	return New(KindUpstream, CodePaymentDeclined, msg)
}

func UpstreamTimeout(service string, err error) *Error {
	return Wrap(KindUpstream, CodeUpstreamTimeout, service+" timed out", err).With("service", service)
}

func UpstreamUnavailable(service, msg string) *Error {
	return New(KindUpstream, CodeUpstreamUnavailable, msg).With("service", service)
}

func Internal(err error) *Error {
	return Wrap(KindInternal, CodeInternal, "internal error", err)
}
