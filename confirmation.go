package yapp

import (
	"context"
	"errors"
	"fmt"
)

// ConfirmationRequest carries the confirmation view's parameters.
// OrderID and TxHash are both required; their absence is terminal and
// non-retryable. ChainID is optional.
type ConfirmationRequest struct {
	OrderID string
	TxHash  string
	ChainID *int64
}

// Confirmation resolves a completed payment into displayable, verified
// order details on whichever page must show the result.
type Confirmation struct {
	Store  OrderStore
	Lookup PaymentLookup
	Verify VerifyConfig
}

// Confirm fetches the authoritative payment by transaction hash,
// looks up the locally stored order terms, and verifies the payment
// against them. Every path terminates in verified details, a
// *PaymentError with a specific reason, or ErrLookupExhausted.
//
// An order missing locally usually means the buyer is confirming on a
// different device or browser than where they checked out; that is
// surfaced immediately, not retried.
func (c *Confirmation) Confirm(ctx context.Context, req ConfirmationRequest) (*OrderDetails, error) {
	if req.OrderID == "" || req.TxHash == "" {
		return nil, ErrMissingConfirmationParams
	}

	remote, err := c.Lookup.PollUntilConfirmed(ctx, req.TxHash)
	if err != nil {
		return nil, err
	}

	order, err := c.Store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, NewPaymentError(ReasonOrderNotFound,
				"could not find order details in this browser for this payment; please try again from the device you checked out on",
				map[string]interface{}{"orderId": req.OrderID})
		}
		return nil, fmt.Errorf("failed to load order %s: %w", req.OrderID, err)
	}

	outcome := Verify(order, *remote, c.Verify)
	if !outcome.Accepted {
		return nil, NewPaymentError(outcome.Reason, outcome.Message, map[string]interface{}{
			"orderId": req.OrderID,
			"txHash":  req.TxHash,
		})
	}

	return outcome.Order, nil
}
