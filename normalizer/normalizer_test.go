package normalizer

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
	"github.com/chrisdietr/ipemerchant-yapp/transport"
)

func int64p(v int64) *int64 { return &v }

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func recvEvent(t *testing.T, sub *Subscription) yapp.PaymentCompleted {
	t.Helper()
	select {
	case ev := <-sub.C():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived")
		return yapp.PaymentCompleted{}
	}
}

func assertNoEvent(t *testing.T, sub *Subscription, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(wait):
	}
}

func TestHandleDirectResult(t *testing.T) {
	n := New()
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	ok := n.HandleDirectResult("ABC_00042", &yapp.PaymentResult{TxHash: "0xabc", ChainID: int64p(8453)})
	assert.True(t, ok)

	ev := recvEvent(t, sub)
	assert.Equal(t, "ABC_00042", ev.OrderID)
	assert.Equal(t, "0xabc", ev.TxHash)
	require.NotNil(t, ev.ChainID)
	assert.Equal(t, int64(8453), *ev.ChainID)

	assert.False(t, n.HandleDirectResult("ABC_00042", nil))
	assert.False(t, n.HandleDirectResult("ABC_00042", &yapp.PaymentResult{}))
	assert.False(t, n.HandleDirectResult("", &yapp.PaymentResult{TxHash: "0xabc"}))
}

func TestHandleMessageCanonical(t *testing.T) {
	n := New()
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	ok := n.HandleMessage([]byte(`{"type":"payment_complete","txHash":"0xabc","orderId":"ABC_00042"}`))
	assert.True(t, ok)

	ev := recvEvent(t, sub)
	assert.Equal(t, "ABC_00042", ev.OrderID)
}

func TestHandleMessageSilentDrops(t *testing.T) {
	n := New()
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	for name, raw := range map[string]string{
		"extension chatter": `{"target":"content-script","txHash":"0xabc","orderId":"ABC_00042"}`,
		"no tx hash":        `{"type":"payment_complete","orderId":"ABC_00042"}`,
		"unrelated":         `{"type":"resize"}`,
		"garbage":           `not json at all`,
	} {
		assert.False(t, n.HandleMessage([]byte(raw)), name)
	}
	assertNoEvent(t, sub, 50*time.Millisecond)
}

func TestHandleMessageWebhookEnvelope(t *testing.T) {
	n := New()
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	ok := n.HandleMessage([]byte(`{"type":"yodl_webhook_callback","paymentData":{"txHash":"0xabc","memo":"ABC_00042"}}`))
	assert.True(t, ok)
	assert.Equal(t, "ABC_00042", recvEvent(t, sub).OrderID)
}

func TestHandleRedirectURL(t *testing.T) {
	n := New()
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	u := mustURL(t, "https://shop.example/?txHash=0xabc&chainId=8453")
	assert.True(t, n.HandleRedirectURL(u, "ABC_00042"))

	ev := recvEvent(t, sub)
	assert.Equal(t, "ABC_00042", ev.OrderID)
	assert.Equal(t, "0xabc", ev.TxHash)
	require.NotNil(t, ev.ChainID)
	assert.Equal(t, int64(8453), *ev.ChainID)

	assert.False(t, n.HandleRedirectURL(mustURL(t, "https://shop.example/"), "ABC_00042"))
	assert.False(t, n.HandleRedirectURL(u, ""))
	assert.False(t, n.HandleRedirectURL(nil, "ABC_00042"))
}

func TestHandleWebhookParamsSingleEvent(t *testing.T) {
	n := New(WithWebhookDispatchDelay(10 * time.Millisecond))
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	// Every alias spelled out at once still yields exactly one event.
	u := mustURL(t, "https://shop.example/?webhook_txhash=0xabc&txhash=0xabc&webhook_orderid=ABC_00042&orderid=ABC_00042&memo=ABC_00042&webhook_chainid=8453&chainid=8453")
	assert.True(t, n.HandleWebhookParams(u))

	ev := recvEvent(t, sub)
	assert.Equal(t, "ABC_00042", ev.OrderID)
	assert.Equal(t, "0xabc", ev.TxHash)
	require.NotNil(t, ev.ChainID)
	assert.Equal(t, int64(8453), *ev.ChainID)

	assertNoEvent(t, sub, 50*time.Millisecond)
}

func TestHandleWebhookParamsAliasFallback(t *testing.T) {
	n := New(WithWebhookDispatchDelay(time.Millisecond))
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	assert.True(t, n.HandleWebhookParams(mustURL(t, "https://shop.example/?txhash=0xabc&memo=ABC_00042")))
	assert.Equal(t, "ABC_00042", recvEvent(t, sub).OrderID)
}

func TestHandleWebhookParamsIncomplete(t *testing.T) {
	n := New(WithWebhookDispatchDelay(time.Millisecond))
	defer n.Close()

	assert.False(t, n.HandleWebhookParams(mustURL(t, "https://shop.example/?txhash=0xabc")))
	assert.False(t, n.HandleWebhookParams(mustURL(t, "https://shop.example/?memo=ABC_00042")))
	assert.False(t, n.HandleWebhookParams(mustURL(t, "https://shop.example/")))
	assert.False(t, n.HandleWebhookParams(nil))
}

func TestHandleWebhookParamsDelay(t *testing.T) {
	n := New(WithWebhookDispatchDelay(80 * time.Millisecond))
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	start := time.Now()
	require.True(t, n.HandleWebhookParams(mustURL(t, "https://shop.example/?txhash=0xabc&memo=ABC_00042")))
	recvEvent(t, sub)
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestCloseStopsPendingDispatch(t *testing.T) {
	n := New(WithWebhookDispatchDelay(30 * time.Millisecond))
	sub := n.Subscribe()

	require.True(t, n.HandleWebhookParams(mustURL(t, "https://shop.example/?txhash=0xabc&memo=ABC_00042")))
	n.Close()

	assertNoEvent(t, sub, 80*time.Millisecond)
	assert.False(t, n.HandleWebhookParams(mustURL(t, "https://shop.example/?txhash=0xdef&memo=XYZ_00001")))
}

func TestAwaitCompletion(t *testing.T) {
	n := New()
	defer n.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		n.HandleMessage([]byte(`{"type":"payment_complete","txHash":"0xother","orderId":"OTHER_11111"}`))
		n.HandleMessage([]byte(`{"type":"payment_complete","txHash":"0xabc","orderId":"ABC_00042"}`))
	}()

	ev, err := n.AwaitCompletion(context.Background(), "ABC_00042", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", ev.TxHash, "events for other orders are skipped")
}

func TestAwaitCompletionTimeout(t *testing.T) {
	n := New()
	defer n.Close()

	_, err := n.AwaitCompletion(context.Background(), "ABC_00042", 20*time.Millisecond)
	assert.ErrorIs(t, err, yapp.ErrCompletionTimeout)
}

func TestAwaitCompletionContextCancel(t *testing.T) {
	n := New()
	defer n.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.AwaitCompletion(ctx, "ABC_00042", time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscriptionStopIsIdempotent(t *testing.T) {
	n := New()
	defer n.Close()

	sub := n.Subscribe()
	sub.Stop()
	sub.Stop()

	n.HandleDirectResult("ABC_00042", &yapp.PaymentResult{TxHash: "0xabc"})
	assertNoEvent(t, sub, 30*time.Millisecond)
}

func TestAttachPort(t *testing.T) {
	n := New()
	defer n.Close()
	sub := n.Subscribe()
	defer sub.Stop()

	local, remote := transport.Pair()
	defer local.Close()
	defer remote.Close()

	detach := n.AttachPort(local)
	defer detach()

	require.NoError(t, remote.Post([]byte(`{"type":"payment_complete","txHash":"0xabc","orderId":"ABC_00042"}`)))
	assert.Equal(t, "ABC_00042", recvEvent(t, sub).OrderID)

	detach()
	require.NoError(t, remote.Post([]byte(`{"type":"payment_complete","txHash":"0xdef","orderId":"XYZ_00001"}`)))
	assertNoEvent(t, sub, 50*time.Millisecond)
}
