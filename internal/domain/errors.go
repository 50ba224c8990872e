package domain

import (
	"context"
	"errors"
)

// Kind classifies failures so transport layers can map them to responses.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error is a classified domain failure. Code is the machine-readable reason
// returned to clients; Message is human readable.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrUserRequired         = newError(KindValidation, "user_required", "user id is required")
	ErrAccountRequired      = newError(KindValidation, "account_required", "account id is required")
	ErrCustomerNameRequired = newError(KindValidation, "customer_name_required", "customer name is required")
	ErrCustomerEmailInvalid = newError(KindValidation, "customer_email_invalid", "valid customer email is required")
	ErrPriceInvalid         = newError(KindValidation, "price_invalid", "price must be a positive integer")
	ErrCountNegative        = newError(KindValidation, "count_negative", "counts must be non-negative")
	ErrWinRateInvalid       = newError(KindValidation, "win_rate_invalid", "win rate must be between 0 and 100")
	ErrReputationInvalid    = newError(KindValidation, "reputation_invalid", "reputation must be between 0 and 100")
	ErrAccountStatusInvalid = newError(KindValidation, "account_status_invalid", "account status is invalid")
	ErrRankUnknown          = newError(KindValidation, "rank_unknown", "rank is not recognised")
	ErrOrderNumberInvalid   = newError(KindValidation, "order_number_invalid", "order number format is invalid")
	ErrOrderStatusInvalid   = newError(KindValidation, "order_status_invalid", "order status is invalid")
	ErrPaymentStatusInvalid = newError(KindValidation, "payment_status_invalid", "payment status is invalid")
	ErrPaymentMethodInvalid = newError(KindValidation, "payment_method_invalid", "payment method is invalid")
	ErrRefundAmountInvalid  = newError(KindValidation, "refund_amount_invalid", "refund amount must be between 0 and the payment amount")
	ErrInvalidPayload       = newError(KindValidation, "invalid_payload", "webhook payload is malformed")
	ErrOrderNumberMissing   = newError(KindValidation, "order_not_found", "no order number found in transfer content")
	ErrLookupKeyRequired    = newError(KindValidation, "lookup_key_required", "orderNumber or accountId is required")

	ErrUnauthorized = newError(KindUnauthorized, "unauthorized", "authentication required")
	ErrForbidden    = newError(KindForbidden, "forbidden", "access denied")

	ErrAccountNotFound = newError(KindNotFound, "account_not_found", "account not found")
	ErrOrderNotFound   = newError(KindNotFound, "order_not_found", "order not found")
	ErrPaymentNotFound = newError(KindNotFound, "payment_not_found", "payment not found")

	ErrAccountUnavailable   = newError(KindConflict, "account_unavailable", "account is not available or already sold")
	ErrAccountInUse         = newError(KindConflict, "account_in_use", "account is referenced by an active order")
	ErrInvalidTransition    = newError(KindConflict, "invalid_transition", "order status transition is not allowed")
	ErrOrderNotDeletable    = newError(KindConflict, "order_not_deletable", "only pending orders can be deleted")
	ErrWrongDirection       = newError(KindConflict, "wrong_direction", "transfer is not an incoming credit")
	ErrAmountMismatch       = newError(KindConflict, "amount_mismatch", "transfer amount does not match order amount")
	ErrOrderNotDelivered    = newError(KindConflict, "order_not_delivered", "order has not been delivered")
	ErrOrderNumberTaken     = newError(KindConflict, "order_number_taken", "order number already exists")
	ErrPaymentSettled       = newError(KindConflict, "payment_settled", "a successful payment can only be refunded")
	ErrTooManyPendingOrders = newError(KindRateLimited, "too_many_pending_orders", "too many pending orders, try again later")

	ErrStorageTimeout = newError(KindUnavailable, "timeout", "request timed out, retry later")
)

// ErrAlreadyProcessed marks an idempotent no-op. Callers treat it as success.
var ErrAlreadyProcessed = errors.New("already processed")

// KindOf classifies err. Deadline expiry is reported as retryable
// unavailability; unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindUnavailable
	}
	return KindInternal
}

// CodeOf returns the machine-readable reason for err.
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStorageTimeout.Code
	}
	return "internal"
}

// JoinValidation folds a list of validation errors into one error, or nil.
func JoinValidation(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
