// Package yapp implements the payment reconciliation core for a
// crypto-checkout shop: order identity, cross-context completion
// signals, payment verification and the confirmation flow.
//
// The hard part of this domain is not issuing a payment request but
// turning an at-least-once, multi-context notification channel into an
// exactly-once, verified order state. The packages under this module
// split that into a memo codec, a local order store, a completion
// normalizer, a cross-context bridge and a confirmation poller; this
// root package holds the shared data model, the verification engine
// and the checkout/confirmation operations that tie them together.
package yapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Flow identifies how the payment UI is driven.
type Flow string

const (
	// FlowIframe drives the payment in an embedded overlay.
	FlowIframe Flow = "iframe"
	// FlowRedirect drives the payment via a full-page redirect.
	FlowRedirect Flow = "redirect"
)

// Device describes the buyer's execution context, used to pick a flow.
type Device struct {
	Mobile   bool
	Touch    bool
	Embedded bool
}

// SelectFlow picks the payment flow for a device. Redirect is used on
// touch/mobile devices and when the shop is already embedded in a
// parent frame; everything else gets the overlay flow.
func SelectFlow(d Device) Flow {
	if d.Mobile || d.Touch || d.Embedded {
		return FlowRedirect
	}
	return FlowIframe
}

// Order is a buyer's intent to purchase one product at a fixed price.
// Orders are immutable once created and live in the local order store
// under their order id; they are never deleted by this system.
type Order struct {
	OrderID           string    `json:"orderId"`
	ProductRef        string    `json:"productId,omitempty"`
	Name              string    `json:"name"`
	Price             float64   `json:"price"`
	Currency          string    `json:"currency"`
	Emoji             string    `json:"emoji,omitempty"`
	ExpectedRecipient string    `json:"paymentAddress"`
	CreatedAt         time.Time `json:"timestamp"`
}

// PaymentCompleted is the canonical completion event. Every inbound
// signal (direct result, inter-context message, redirect parameters,
// webhook parameters) is normalized into this shape; the bridge applies
// it idempotently keyed by (OrderID, TxHash).
type PaymentCompleted struct {
	OrderID string `json:"orderId"`
	TxHash  string `json:"txHash"`
	ChainID *int64 `json:"chainId,omitempty"`
}

// PaymentRecord is the persisted view of an applied completion event,
// stored under payment:{orderId}. At most one record per order is
// trusted for display: the first writer wins.
type PaymentRecord struct {
	TxHash  string `json:"txHash"`
	ChainID *int64 `json:"chainId,omitempty"`
}

// PaymentRequest is the input to the external payment-initiation
// capability (wallet/SDK). The capability either returns a direct
// PaymentResult or drives a flow whose completion arrives through the
// normalizer's channels.
type PaymentRequest struct {
	Amount       float64           `json:"amount"`
	Currency     string            `json:"currency"`
	AddressOrEns string            `json:"addressOrEns"`
	Memo         string            `json:"memo"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	RedirectURL  string            `json:"redirectUrl,omitempty"`
	Flow         Flow              `json:"flow"`
}

// PaymentResult is the direct return value of a payment request, when
// the capability resolves synchronously.
type PaymentResult struct {
	TxHash  string `json:"txHash"`
	ChainID *int64 `json:"chainId,omitempty"`
}

// RemotePayment is the authoritative payment record fetched from the
// indexing service by transaction hash. It is ephemeral: fetched on
// demand, verified, and never persisted verbatim.
type RemotePayment struct {
	Memo           string
	Amount         float64
	Currency       string
	Recipient      string
	ChainID        *int64
	Status         string
	BlockTimestamp string
	Timestamp      string
}

// remotePaymentJSON tolerates the indexer's field aliases: the
// recipient may arrive as to/toAddress/receiver/addressOrEns, and
// amount/timestamp may be numbers or strings.
type remotePaymentJSON struct {
	Memo           string          `json:"memo"`
	Amount         json.RawMessage `json:"amount"`
	Currency       string          `json:"currency"`
	To             string          `json:"to"`
	ToAddress      string          `json:"toAddress"`
	Receiver       string          `json:"receiver"`
	AddressOrEns   string          `json:"addressOrEns"`
	ChainID        *int64          `json:"chainId"`
	Status         string          `json:"status"`
	BlockTimestamp string          `json:"blockTimestamp"`
	Timestamp      json.RawMessage `json:"timestamp"`
}

// UnmarshalJSON decodes an indexer payment object, normalizing field
// aliases into the canonical shape.
func (p *RemotePayment) UnmarshalJSON(data []byte) error {
	var raw remotePaymentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode remote payment: %w", err)
	}

	amount, err := rawToFloat(raw.Amount)
	if err != nil {
		return fmt.Errorf("invalid remote payment amount: %w", err)
	}

	recipient := raw.To
	for _, alias := range []string{raw.ToAddress, raw.Receiver, raw.AddressOrEns} {
		if recipient != "" {
			break
		}
		recipient = alias
	}

	*p = RemotePayment{
		Memo:           raw.Memo,
		Amount:         amount,
		Currency:       raw.Currency,
		Recipient:      recipient,
		ChainID:        raw.ChainID,
		Status:         raw.Status,
		BlockTimestamp: raw.BlockTimestamp,
		Timestamp:      rawToString(raw.Timestamp),
	}
	return nil
}

// Confirmed reports whether the payment has reached a confirmed state:
// an explicit confirmed status, or the presence of a block timestamp.
func (p *RemotePayment) Confirmed() bool {
	if strings.EqualFold(p.Status, "confirmed") {
		return true
	}
	return p.BlockTimestamp != "" || p.Timestamp != ""
}

// ConfirmedAt returns the best-known confirmation timestamp string.
func (p *RemotePayment) ConfirmedAt() string {
	if p.BlockTimestamp != "" {
		return p.BlockTimestamp
	}
	return p.Timestamp
}

// OrderDetails is the projection of a verified order handed to the
// confirmation view for display.
type OrderDetails struct {
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Emoji       string  `json:"emoji,omitempty"`
	ConfirmedAt string  `json:"timestamp"`
}

// Outcome is the tagged result of verifying a reported payment against
// an order: accepted with order details, or rejected with a specific
// reason code and a message carrying the mismatched values.
type Outcome struct {
	Accepted bool          `json:"accepted"`
	Order    *OrderDetails `json:"order,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Message  string        `json:"message,omitempty"`
}

func rawToFloat(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
