package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
)

// MemoryStore is an in-process implementation of yapp.OrderStore,
// suitable for a single browsing context's lifetime. Values are kept
// JSON-encoded, mirroring the serialization boundary a real
// origin-scoped store imposes, so serialization failures surface here
// the same way they would in production.
//
// Thread-safe with mutex protection.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// PutOrder persists the order under order:{orderId}.
func (s *MemoryStore) PutOrder(_ context.Context, order yapp.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order %s: %w", order.OrderID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[OrderKey(order.OrderID)] = raw
	return nil
}

// GetOrder returns the order stored under order:{orderId}.
func (s *MemoryStore) GetOrder(_ context.Context, orderID string) (yapp.Order, error) {
	s.mu.Lock()
	raw, ok := s.data[OrderKey(orderID)]
	s.mu.Unlock()

	if !ok {
		return yapp.Order{}, notFound(OrderKey(orderID))
	}

	var order yapp.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return yapp.Order{}, fmt.Errorf("failed to decode order %s: %w", orderID, err)
	}
	return order, nil
}

// PutPaymentIfAbsent persists a payment record under payment:{orderId}
// only when none exists. The first writer wins; later, different
// records are returned to the caller untouched.
func (s *MemoryStore) PutPaymentIfAbsent(_ context.Context, orderID string, rec yapp.PaymentRecord) (bool, yapp.PaymentRecord, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, yapp.PaymentRecord{}, fmt.Errorf("failed to encode payment for %s: %w", orderID, err)
	}

	key := PaymentKey(orderID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[key]; ok {
		var stored yapp.PaymentRecord
		if err := json.Unmarshal(existing, &stored); err != nil {
			return false, yapp.PaymentRecord{}, fmt.Errorf("failed to decode payment for %s: %w", orderID, err)
		}
		return false, stored, nil
	}

	s.data[key] = raw
	return true, rec, nil
}

// GetPayment returns the record stored under payment:{orderId}.
func (s *MemoryStore) GetPayment(_ context.Context, orderID string) (yapp.PaymentRecord, error) {
	s.mu.Lock()
	raw, ok := s.data[PaymentKey(orderID)]
	s.mu.Unlock()

	if !ok {
		return yapp.PaymentRecord{}, notFound(PaymentKey(orderID))
	}

	var rec yapp.PaymentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return yapp.PaymentRecord{}, fmt.Errorf("failed to decode payment for %s: %w", orderID, err)
	}
	return rec, nil
}

var _ yapp.OrderStore = (*MemoryStore)(nil)
