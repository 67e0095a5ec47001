package yapp

import (
	"context"
	"time"
)

// OrderStore is the local persistence layer bridging order metadata
// across contexts that do not share memory. It is origin-scoped and
// best-effort: callers treat failures as non-fatal and continue in a
// degraded, unpersisted mode. Entries have no TTL and are never evicted
// by this system.
type OrderStore interface {
	// PutOrder persists the intended order terms under order:{orderId}.
	PutOrder(ctx context.Context, order Order) error

	// GetOrder returns the order stored under order:{orderId}, or an
	// error wrapping ErrNotFound when absent.
	GetOrder(ctx context.Context, orderID string) (Order, error)

	// PutPaymentIfAbsent persists a payment record under
	// payment:{orderId} only when none exists yet. It returns whether
	// the record was created and the record now stored (the existing
	// one when created is false). This is the first-writer-wins
	// primitive: a replayed or forged later event can never overwrite
	// an already persisted result.
	PutPaymentIfAbsent(ctx context.Context, orderID string, rec PaymentRecord) (created bool, stored PaymentRecord, err error)

	// GetPayment returns the record stored under payment:{orderId}, or
	// an error wrapping ErrNotFound when absent.
	GetPayment(ctx context.Context, orderID string) (PaymentRecord, error)
}

// PaymentLookup fetches authoritative payment data from the indexing
// service, retrying until confirmed or a budget is exhausted.
// Implementations return ErrLookupExhausted when the budget runs out.
type PaymentLookup interface {
	PollUntilConfirmed(ctx context.Context, txHash string) (*RemotePayment, error)
}

// PaymentInitiator is the opaque wallet/signing capability. It either
// returns a direct result or drives an embedded/redirect flow whose
// completion arrives through the normalizer's channels, in which case
// the result is nil.
type PaymentInitiator interface {
	RequestPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error)
}

// CompletionWaiter blocks until a canonical completion event for the
// given order arrives or the timeout elapses (ErrCompletionTimeout).
// The losing listener is always deregistered.
type CompletionWaiter interface {
	AwaitCompletion(ctx context.Context, orderID string, timeout time.Duration) (*PaymentCompleted, error)
}
