// Package db backs the order store with MySQL for deployments whose
// order metadata must outlive a single process, such as the relay
// daemon. Rows are plain key/value entries so the store contract stays
// identical to the in-memory implementation.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
	"github.com/chrisdietr/ipemerchant-yapp/store"
)

// Entry is one stored key/value row.
type Entry struct {
	K string `gorm:"primaryKey;size:191;column:k"`
	V []byte `gorm:"column:v"`
}

// TableName fixes the table name independent of gorm's pluralization.
func (Entry) TableName() string {
	return "yapp_kv"
}

// Store implements yapp.OrderStore on top of a gorm connection.
type Store struct {
	db *gorm.DB
}

// Open connects to MySQL with the given DSN and migrates the table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm connection and migrates the table.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate kv table: %w", err)
	}
	return &Store{db: db}, nil
}

// PutOrder persists the order under order:{orderId}. Orders are
// immutable once created, so an existing row is left untouched.
func (s *Store) PutOrder(ctx context.Context, order yapp.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order %s: %w", order.OrderID, err)
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Entry{K: store.OrderKey(order.OrderID), V: raw})
	if res.Error != nil {
		return fmt.Errorf("failed to store order %s: %w", order.OrderID, res.Error)
	}
	return nil
}

// GetOrder returns the order stored under order:{orderId}.
func (s *Store) GetOrder(ctx context.Context, orderID string) (yapp.Order, error) {
	raw, err := s.get(ctx, store.OrderKey(orderID))
	if err != nil {
		return yapp.Order{}, err
	}

	var order yapp.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return yapp.Order{}, fmt.Errorf("failed to decode order %s: %w", orderID, err)
	}
	return order, nil
}

// PutPaymentIfAbsent inserts the payment record with an insert-ignore,
// then reports what the row now holds. Concurrent writers race on the
// primary key, so exactly one insert succeeds.
func (s *Store) PutPaymentIfAbsent(ctx context.Context, orderID string, rec yapp.PaymentRecord) (bool, yapp.PaymentRecord, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, yapp.PaymentRecord{}, fmt.Errorf("failed to encode payment for %s: %w", orderID, err)
	}

	key := store.PaymentKey(orderID)
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Entry{K: key, V: raw})
	if res.Error != nil {
		return false, yapp.PaymentRecord{}, fmt.Errorf("failed to store payment for %s: %w", orderID, res.Error)
	}
	if res.RowsAffected > 0 {
		return true, rec, nil
	}

	stored, err := s.GetPayment(ctx, orderID)
	if err != nil {
		return false, yapp.PaymentRecord{}, err
	}
	return false, stored, nil
}

// GetPayment returns the record stored under payment:{orderId}.
func (s *Store) GetPayment(ctx context.Context, orderID string) (yapp.PaymentRecord, error) {
	raw, err := s.get(ctx, store.PaymentKey(orderID))
	if err != nil {
		return yapp.PaymentRecord{}, err
	}

	var rec yapp.PaymentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return yapp.PaymentRecord{}, fmt.Errorf("failed to decode payment for %s: %w", orderID, err)
	}
	return rec, nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	var entry Entry
	err := s.db.WithContext(ctx).First(&entry, "k = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("key %s: %w", key, yapp.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load key %s: %w", key, err)
	}
	return entry.V, nil
}

var _ yapp.OrderStore = (*Store)(nil)
