package yapp

import (
	"errors"
	"fmt"
)

// PaymentError represents a payment-specific error with a machine
// readable reason code and the mismatched values for support diagnosis.
type PaymentError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Verification reason codes. Each rejection is terminal and
// user-visible except NOT_YET_CONFIRMED, which tells the caller to keep
// polling rather than reject permanently.
const (
	ReasonAmountTooLow          = "AMOUNT_TOO_LOW"
	ReasonCurrencyMismatch      = "CURRENCY_MISMATCH"
	ReasonRecipientNotSubdomain = "RECIPIENT_NOT_SUBDOMAIN"
	ReasonRecipientMismatch     = "RECIPIENT_MISMATCH"
	ReasonMemoMismatch          = "MEMO_MISMATCH"
	ReasonWrongChain            = "WRONG_CHAIN"
	ReasonOrderNotFound         = "ORDER_NOT_FOUND_LOCALLY"
	ReasonNotYetConfirmed       = "NOT_YET_CONFIRMED"
	ReasonLookupExhausted       = "LOOKUP_EXHAUSTED"
)

// NewPaymentError creates a new payment error.
func NewPaymentError(code, message string, details map[string]interface{}) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	// ErrNotFound is returned by order stores when a key is absent.
	ErrNotFound = errors.New("not found")

	// ErrLookupExhausted is returned when the poller's retry budget
	// runs out without a confirmed payment. Non-fatal: the caller may
	// offer a retry.
	ErrLookupExhausted = errors.New("payment lookup attempts exhausted")

	// ErrCompletionTimeout is returned when no completion signal
	// arrives before the checkout deadline.
	ErrCompletionTimeout = errors.New("timed out waiting for payment completion")

	// ErrMissingConfirmationParams is the terminal, non-retryable error
	// for a confirmation view loaded without orderId or txHash.
	ErrMissingConfirmationParams = errors.New("order id or payment hash missing")
)
