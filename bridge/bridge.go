// Package bridge applies canonical completion events: persist once,
// relay to the embedding parent, navigate to the confirmation view.
// Application is idempotent, so re-delivered events are harmless.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
	"github.com/chrisdietr/ipemerchant-yapp/transport"
)

// DefaultDedupSize bounds the in-memory duplicate filter.
const DefaultDedupSize = 256

// ViewLocation describes where the embedded view currently is, so the
// bridge can skip a redundant navigation.
type ViewLocation struct {
	OnConfirmation bool
	OrderID        string
	TxHash         string
}

// Navigator abstracts view navigation.
type Navigator interface {
	Location() ViewLocation
	Replace(url string) error
}

// Hooks observes bridge decisions. All fields are optional.
type Hooks struct {
	OnApplied        func(ev yapp.PaymentCompleted)
	OnDuplicate      func(ev yapp.PaymentCompleted)
	OnConflict       func(ev yapp.PaymentCompleted, existing yapp.PaymentRecord)
	OnPersistFailure func(ev yapp.PaymentCompleted, err error)
	OnRelayFailure   func(err error)
	OnNavigate       func(url string)
}

// Bridge consumes canonical events and performs their side effects.
type Bridge struct {
	store            yapp.OrderStore
	parent           transport.MessagePort
	nav              Navigator
	cache            *lru.Cache
	hooks            Hooks
	confirmationBase string

	announced bool
}

// Option configures a Bridge.
type Option func(*options)

type options struct {
	parent           transport.MessagePort
	nav              Navigator
	hooks            Hooks
	dedupSize        int
	confirmationBase string
}

// WithParentPort sets the port used to relay completions to an
// embedding parent context.
func WithParentPort(p transport.MessagePort) Option {
	return func(o *options) { o.parent = p }
}

// WithNavigator sets the navigation target for confirmation redirects.
func WithNavigator(nav Navigator) Option {
	return func(o *options) { o.nav = nav }
}

// WithHooks sets observation hooks.
func WithHooks(h Hooks) Option {
	return func(o *options) { o.hooks = h }
}

// WithDedupSize overrides the duplicate-filter capacity.
func WithDedupSize(size int) Option {
	return func(o *options) { o.dedupSize = size }
}

// WithConfirmationBase sets the base path for confirmation URLs.
func WithConfirmationBase(base string) Option {
	return func(o *options) { o.confirmationBase = base }
}

// New creates a Bridge around the given store.
func New(store yapp.OrderStore, opts ...Option) (*Bridge, error) {
	if store == nil {
		return nil, fmt.Errorf("bridge: store is required")
	}
	o := options{
		dedupSize:        DefaultDedupSize,
		confirmationBase: "/confirmation",
	}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := lru.New(o.dedupSize)
	if err != nil {
		return nil, fmt.Errorf("bridge: dedup cache: %w", err)
	}
	return &Bridge{
		store:            store,
		parent:           o.parent,
		nav:              o.nav,
		cache:            cache,
		hooks:            o.hooks,
		confirmationBase: o.confirmationBase,
	}, nil
}

// AnnounceReady posts the capability handshake to the parent context.
// At most one announcement is ever sent.
func (b *Bridge) AnnounceReady() error {
	if b.parent == nil || b.announced {
		return nil
	}
	raw, err := json.Marshal(yapp.NewReadyMessage())
	if err != nil {
		return fmt.Errorf("bridge: encode ready: %w", err)
	}
	if err := b.parent.Post(raw); err != nil {
		return fmt.Errorf("bridge: announce ready: %w", err)
	}
	b.announced = true
	return nil
}

// Apply performs the side effects of one completion event: persist the
// payment record first-writer-wins, relay to the parent, navigate to
// the confirmation view. A persistence failure degrades to relay and
// navigation rather than dropping the completion.
func (b *Bridge) Apply(ctx context.Context, ev yapp.PaymentCompleted) {
	if ev.OrderID == "" || ev.TxHash == "" {
		return
	}

	key := ev.OrderID + "|" + ev.TxHash
	if b.cache.Contains(key) {
		if b.hooks.OnDuplicate != nil {
			b.hooks.OnDuplicate(ev)
		}
		return
	}

	created, existing, err := b.store.PutPaymentIfAbsent(ctx, ev.OrderID, yapp.PaymentRecord{
		TxHash:  ev.TxHash,
		ChainID: ev.ChainID,
	})
	switch {
	case err != nil:
		if b.hooks.OnPersistFailure != nil {
			b.hooks.OnPersistFailure(ev, err)
		}
	case !created && existing.TxHash != ev.TxHash:
		// A different transaction already won this order. The event is
		// recorded as seen and goes no further.
		if b.hooks.OnConflict != nil {
			b.hooks.OnConflict(ev, existing)
		}
		b.cache.Add(key, struct{}{})
		return
	}
	b.cache.Add(key, struct{}{})

	confirmURL := yapp.ConfirmationURL(b.confirmationBase, ev.OrderID, ev.TxHash, ev.ChainID)
	b.relay(ev, confirmURL)
	b.navigate(ev, confirmURL)

	if b.hooks.OnApplied != nil {
		b.hooks.OnApplied(ev)
	}
}

// Run consumes events until the channel closes or the context ends.
func (b *Bridge) Run(ctx context.Context, events <-chan yapp.PaymentCompleted) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.Apply(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bridge) relay(ev yapp.PaymentCompleted, confirmURL string) {
	if b.parent == nil {
		return
	}
	note := yapp.ParentNotification{
		Type:            yapp.MessageTypeParentComplete,
		TxHash:          ev.TxHash,
		ChainID:         ev.ChainID,
		OrderID:         ev.OrderID,
		ConfirmationURL: confirmURL,
	}
	raw, err := json.Marshal(note)
	if err != nil {
		if b.hooks.OnRelayFailure != nil {
			b.hooks.OnRelayFailure(err)
		}
		return
	}
	if err := b.parent.Post(raw); err != nil {
		if b.hooks.OnRelayFailure != nil {
			b.hooks.OnRelayFailure(err)
		}
	}
}

func (b *Bridge) navigate(ev yapp.PaymentCompleted, confirmURL string) {
	if b.nav == nil {
		return
	}
	loc := b.nav.Location()
	if loc.OnConfirmation && loc.OrderID == ev.OrderID && loc.TxHash == ev.TxHash {
		return
	}
	if err := b.nav.Replace(confirmURL); err != nil {
		return
	}
	if b.hooks.OnNavigate != nil {
		b.hooks.OnNavigate(confirmURL)
	}
}
