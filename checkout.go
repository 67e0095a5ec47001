package yapp

import (
	"context"
	"fmt"
	"time"
)

// DefaultCompletionTimeout bounds how long a checkout waits for an
// asynchronous completion signal before giving up.
const DefaultCompletionTimeout = 5 * time.Minute

// CreatePaymentParams describes one checkout attempt. OrderID is the
// memo produced by the memo codec; the caller generates it so the same
// identifier ties together the store entry, the on-chain memo and the
// confirmation URL.
type CreatePaymentParams struct {
	OrderID     string
	Memo        string
	Name        string
	Price       float64
	Currency    string
	Emoji       string
	ProductRef  string
	Recipient   RecipientCandidates
	Metadata    map[string]string
	RedirectURL string
	Device      Device
}

// Checkout orchestrates payment initiation: recipient resolution, order
// persistence, flow selection, and the race between a direct result and
// an asynchronous completion signal.
type Checkout struct {
	Store     OrderStore
	Initiator PaymentInitiator

	// Waiter supplies the asynchronous completion path. When nil,
	// CreatePayment returns immediately after initiation and the
	// completion is left to the bridge.
	Waiter CompletionWaiter

	// CompletionTimeout defaults to DefaultCompletionTimeout.
	CompletionTimeout time.Duration

	// OnStoreFailure observes persistence failures. The flow continues
	// in a degraded, unpersisted mode either way.
	OnStoreFailure func(error)

	now func() time.Time
}

// CreatePayment validates and issues one payment request. A direct
// result is persisted and returned; otherwise the call blocks until a
// completion signal arrives or the timeout elapses
// (ErrCompletionTimeout), and the losing listener is deregistered.
func (c *Checkout) CreatePayment(ctx context.Context, p CreatePaymentParams) (*PaymentResult, error) {
	if p.Price <= 0 {
		return nil, fmt.Errorf("invalid payment amount: %v", p.Price)
	}
	if p.Currency == "" {
		return nil, fmt.Errorf("invalid payment currency")
	}
	if p.OrderID == "" {
		return nil, fmt.Errorf("missing order id")
	}

	recipient, err := ResolveRecipient(p.Recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve payment recipient: %w", err)
	}

	memo := p.Memo
	if memo == "" {
		memo = p.OrderID
	}

	order := Order{
		OrderID:           p.OrderID,
		ProductRef:        p.ProductRef,
		Name:              p.Name,
		Price:             p.Price,
		Currency:          p.Currency,
		Emoji:             p.Emoji,
		ExpectedRecipient: recipient.Identifier,
		CreatedAt:         c.timeNow(),
	}
	if err := c.Store.PutOrder(ctx, order); err != nil {
		// Degraded mode: the confirmation view on this device will not
		// find the order, but the payment itself can still proceed.
		if c.OnStoreFailure != nil {
			c.OnStoreFailure(err)
		}
	}

	req := PaymentRequest{
		Amount:       p.Price,
		Currency:     p.Currency,
		AddressOrEns: recipient.Identifier,
		Memo:         memo,
		Metadata:     p.Metadata,
		RedirectURL:  p.RedirectURL,
		Flow:         SelectFlow(p.Device),
	}

	result, err := c.Initiator.RequestPayment(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("payment request failed: %w", err)
	}

	if result != nil && result.TxHash != "" {
		c.recordPayment(ctx, p.OrderID, PaymentRecord{TxHash: result.TxHash, ChainID: result.ChainID})
		return result, nil
	}

	// Async flow: the completion arrives over one of the normalizer's
	// channels, raced against the hard timeout.
	if c.Waiter == nil {
		return nil, nil
	}

	timeout := c.CompletionTimeout
	if timeout == 0 {
		timeout = DefaultCompletionTimeout
	}

	ev, err := c.Waiter.AwaitCompletion(ctx, p.OrderID, timeout)
	if err != nil {
		return nil, err
	}

	c.recordPayment(ctx, ev.OrderID, PaymentRecord{TxHash: ev.TxHash, ChainID: ev.ChainID})
	return &PaymentResult{TxHash: ev.TxHash, ChainID: ev.ChainID}, nil
}

func (c *Checkout) recordPayment(ctx context.Context, orderID string, rec PaymentRecord) {
	if _, _, err := c.Store.PutPaymentIfAbsent(ctx, orderID, rec); err != nil {
		if c.OnStoreFailure != nil {
			c.OnStoreFailure(err)
		}
	}
}

func (c *Checkout) timeNow() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now().UTC()
}
