// Package normalizer funnels heterogeneous payment-completion signals
// into one canonical event stream. Four channels feed it: the direct
// return value of a payment request, inter-context messages, redirect
// URL parameters and webhook-style URL parameters. All of them
// converge on a single handler so there is no duplicate-path
// divergence.
package normalizer

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"sync"
	"time"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
	"github.com/chrisdietr/ipemerchant-yapp/transport"
)

// DefaultWebhookDispatchDelay is how long webhook-style URL parameters
// wait before being re-dispatched as an internal message, giving
// listeners time to attach on page load.
const DefaultWebhookDispatchDelay = 500 * time.Millisecond

const subscriptionBuffer = 8

// Normalizer turns raw signals into canonical yapp.PaymentCompleted
// events and fans them out to subscriptions.
type Normalizer struct {
	delay time.Duration

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	timers []*time.Timer
	closed bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithWebhookDispatchDelay overrides the webhook re-dispatch delay.
func WithWebhookDispatchDelay(d time.Duration) Option {
	return func(n *Normalizer) {
		n.delay = d
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		delay: DefaultWebhookDispatchDelay,
		subs:  make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Subscription is an owned listener registration with a deterministic
// lifetime: construct it per view, Stop it on teardown. Nothing leaks
// across navigations.
type Subscription struct {
	n  *Normalizer
	ch chan yapp.PaymentCompleted

	once sync.Once
}

// C exposes the canonical event stream.
func (s *Subscription) C() <-chan yapp.PaymentCompleted {
	return s.ch
}

// Stop deregisters the subscription. Idempotent.
func (s *Subscription) Stop() {
	s.once.Do(func() {
		s.n.mu.Lock()
		delete(s.n.subs, s)
		s.n.mu.Unlock()
	})
}

// Subscribe registers a new listener for canonical events.
func (n *Normalizer) Subscribe() *Subscription {
	sub := &Subscription{
		n:  n,
		ch: make(chan yapp.PaymentCompleted, subscriptionBuffer),
	}
	n.mu.Lock()
	n.subs[sub] = struct{}{}
	n.mu.Unlock()
	return sub
}

// Close stops pending webhook re-dispatch timers and drops all
// subscriptions. Wired to context teardown so no timer fires after the
// consuming view is gone.
func (n *Normalizer) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for _, t := range n.timers {
		t.Stop()
	}
	n.timers = nil
	for sub := range n.subs {
		delete(n.subs, sub)
	}
}

// HandleDirectResult ingests channel 1: the synchronous return of the
// payment-initiation call, when it carries a transaction hash.
func (n *Normalizer) HandleDirectResult(orderID string, res *yapp.PaymentResult) bool {
	if res == nil || res.TxHash == "" || orderID == "" {
		return false
	}
	n.emit(yapp.PaymentCompleted{
		OrderID: orderID,
		TxHash:  res.TxHash,
		ChainID: res.ChainID,
	})
	return true
}

// HandleMessage ingests channel 2: a raw inter-context message. The
// message is parsed into a tagged union (canonical, webhook callback,
// loose wallet signal, or unrecognized). Unrecognized payloads are a
// silent no-op, since unrelated sources share the same transport.
func (n *Normalizer) HandleMessage(raw []byte) bool {
	kind, msg := yapp.ParseInboundMessage(raw)
	switch kind {
	case yapp.KindUnrecognized:
		return false
	case yapp.KindPaymentComplete:
		// Already canonical: accept as-is, never re-normalize (that is
		// what turns a relayed message into an infinite loop). The
		// schema is the last gate against half-formed claims.
		if !validCanonical(raw) {
			return false
		}
	case yapp.KindWebhookCallback, yapp.KindRawPayment:
		// Normalized by the parser.
	}

	n.emit(msg.Event())
	return true
}

// HandleRedirectURL ingests channel 3: txHash/chainId query parameters
// on a redirect return, combined with the order id the current view
// already knows.
func (n *Normalizer) HandleRedirectURL(u *url.URL, knownOrderID string) bool {
	if u == nil || knownOrderID == "" {
		return false
	}
	q := u.Query()
	txHash := q.Get("txHash")
	if txHash == "" {
		return false
	}

	n.emit(yapp.PaymentCompleted{
		OrderID: knownOrderID,
		TxHash:  txHash,
		ChainID: parseChainID(q.Get("chainId")),
	})
	return true
}

// HandleWebhookParams ingests channel 4: webhook-style query parameters
// detected on page load. The parameters are folded into one canonical
// message, so alias parameter names never produce a second event, and
// re-dispatched through HandleMessage after a short delay so listeners
// attach first.
func (n *Normalizer) HandleWebhookParams(u *url.URL) bool {
	if u == nil {
		return false
	}
	q := u.Query()

	txHash := firstParam(q, "webhook_txhash", "txhash")
	orderID := firstParam(q, "webhook_orderid", "orderid", "memo")
	if txHash == "" || orderID == "" {
		return false
	}

	msg := yapp.PaymentCompleteMessage{
		Type:    yapp.MessageTypePaymentComplete,
		TxHash:  txHash,
		OrderID: orderID,
		ChainID: parseChainID(firstParam(q, "webhook_chainid", "chainid")),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return false
	}
	timer := time.AfterFunc(n.delay, func() {
		n.HandleMessage(raw)
	})
	n.timers = append(n.timers, timer)
	return true
}

// AttachPort pumps a transport port into HandleMessage until the port
// closes or the returned detach function runs.
func (n *Normalizer) AttachPort(port transport.MessagePort) (detach func()) {
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case raw, ok := <-port.Receive():
				if !ok {
					return
				}
				// A message racing the detach is dropped, not handled.
				select {
				case <-done:
					return
				default:
				}
				n.HandleMessage(raw)
			case <-done:
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(done) })
	}
}

// AwaitCompletion blocks until a canonical event for orderID arrives,
// racing it against the hard timeout. Whichever side loses is cleaned
// up: the subscription is always deregistered, the timer always
// stopped.
func (n *Normalizer) AwaitCompletion(ctx context.Context, orderID string, timeout time.Duration) (*yapp.PaymentCompleted, error) {
	sub := n.Subscribe()
	defer sub.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-sub.C():
			if ev.OrderID == orderID {
				return &ev, nil
			}
		case <-timer.C:
			return nil, yapp.ErrCompletionTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// emit fans an event out to all subscriptions. Sends never block: a
// saturated subscriber misses the event, which the at-least-once
// channel model already requires consumers to tolerate.
func (n *Normalizer) emit(ev yapp.PaymentCompleted) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for sub := range n.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

func firstParam(q url.Values, names ...string) string {
	for _, name := range names {
		if v := q.Get(name); v != "" {
			return v
		}
	}
	return ""
}

func parseChainID(s string) *int64 {
	if s == "" {
		return nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

var _ yapp.CompletionWaiter = (*Normalizer)(nil)
