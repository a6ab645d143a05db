package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"

	// Credit validation outcomes. Terminal: never retried.
	CodeNoCreditAccount    Code = "NO_CREDIT_ACCOUNT"
	CodeAccountBlocked     Code = "ACCOUNT_BLOCKED"
	CodeInsufficientCredit Code = "INSUFFICIENT_CREDIT"

	// Bidding validation outcomes. Terminal: never retried.
	CodeOrderNotOpen     Code = "ORDER_NOT_OPEN"
	CodeWindowExpired    Code = "WINDOW_EXPIRED"
	CodeAlreadyAssigned  Code = "ALREADY_ASSIGNED"
	CodeMissingFields    Code = "MISSING_FIELDS"
	CodeNoPendingOffers  Code = "NO_PENDING_OFFERS"
	CodeOrderNotEligible Code = "ORDER_NOT_ELIGIBLE"

	// Concurrency outcomes. Retryable up to the caller's policy limit.
	CodeLockTimeout Code = "LOCK_TIMEOUT"
	CodeDeadlock    Code = "DEADLOCK"

	// Exhausted retry budget on a concurrency error. Terminal.
	CodeMaxRetries Code = "MAX_RETRIES_EXCEEDED"

	// Reconciliation anomaly. Surfaced, never auto-healed.
	CodeBalanceDrift Code = "BALANCE_DRIFT"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
	},
	CodeNotFound: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "resource not found",
		DetailsAllowed: false,
	},
	CodeConflict: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "conflict detected",
		DetailsAllowed: false,
	},
	CodeStateConflict: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
	},
	CodeInternal: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      true,
		PublicMessage:  "internal server error",
		DetailsAllowed: false,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
	CodeNoCreditAccount: {
		HTTPStatus:     http.StatusNotFound,
		Retryable:      false,
		PublicMessage:  "no credit relationship exists for this pair",
		DetailsAllowed: true,
	},
	CodeAccountBlocked: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "credit relationship is blocked",
		DetailsAllowed: true,
	},
	CodeInsufficientCredit: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "insufficient credit",
		DetailsAllowed: true,
	},
	CodeOrderNotOpen: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "order is not open for bids",
		DetailsAllowed: true,
	},
	CodeWindowExpired: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "bidding window has expired",
		DetailsAllowed: true,
	},
	CodeAlreadyAssigned: {
		HTTPStatus:     http.StatusConflict,
		Retryable:      false,
		PublicMessage:  "order already has a final seller",
		DetailsAllowed: true,
	},
	CodeMissingFields: {
		HTTPStatus:     http.StatusBadRequest,
		Retryable:      false,
		PublicMessage:  "required offer fields are missing",
		DetailsAllowed: true,
	},
	CodeNoPendingOffers: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "no pending offers for this order",
		DetailsAllowed: true,
	},
	CodeOrderNotEligible: {
		HTTPStatus:     http.StatusUnprocessableEntity,
		Retryable:      false,
		PublicMessage:  "order is not eligible for broadcast",
		DetailsAllowed: true,
	},
	CodeLockTimeout: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "could not acquire lock in time",
		DetailsAllowed: true,
	},
	CodeDeadlock: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "transaction deadlock detected",
		DetailsAllowed: true,
	},
	CodeMaxRetries: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      false,
		PublicMessage:  "operation failed after exhausting retries",
		DetailsAllowed: true,
	},
	CodeBalanceDrift: {
		HTTPStatus:     http.StatusInternalServerError,
		Retryable:      false,
		PublicMessage:  "ledger balance drift detected",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsRetryable reports whether the error carries a transient concurrency code.
// Only lock timeouts and deadlocks qualify; business-rule failures never do.
func IsRetryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case CodeLockTimeout, CodeDeadlock:
		return true
	}
	return false
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}
