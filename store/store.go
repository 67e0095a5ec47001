// Package store provides local, origin-scoped persistence for order
// metadata and payment records. It bridges contexts that do not share
// memory: the checkout view writes here, the confirmation view reads.
//
// The store is best-effort by contract: callers treat failures as
// non-fatal and continue without persistence. Entries have no TTL and
// are never evicted.
package store

import (
	"fmt"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
)

// Key prefixes. Orders live under order:{orderId}, applied payment
// records under payment:{orderId}.
const (
	orderPrefix   = "order:"
	paymentPrefix = "payment:"
)

// OrderKey returns the storage key for an order.
func OrderKey(orderID string) string {
	return orderPrefix + orderID
}

// PaymentKey returns the storage key for a payment record.
func PaymentKey(orderID string) string {
	return paymentPrefix + orderID
}

func notFound(key string) error {
	return fmt.Errorf("key %s: %w", key, yapp.ErrNotFound)
}
