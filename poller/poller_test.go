package poller

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	yapp "github.com/chrisdietr/ipemerchant-yapp"
)

const confirmedBody = `{"memo":"ABC_00042","amount":10,"currency":"USD","toAddress":"shop.merchant.eth","status":"confirmed","chainId":8453}`

func testClient(t *testing.T, handler http.HandlerFunc, poll PollConfig) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(&Config{URL: srv.URL, Poll: poll})
}

func TestGetPayment(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payments/0xabc", r.URL.Path)
		fmt.Fprint(w, confirmedBody)
	}, PollConfig{})

	p, err := c.GetPayment(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ABC_00042", p.Memo)
	assert.Equal(t, "shop.merchant.eth", p.Recipient)
	assert.True(t, p.Confirmed())
}

func TestGetPaymentEnvelope(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"payment":%s}`, confirmedBody)
	}, PollConfig{})

	p, err := c.GetPayment(context.Background(), "0xabc")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "ABC_00042", p.Memo)
}

func TestGetPaymentNotIndexedYet(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, PollConfig{})

	p, err := c.GetPayment(context.Background(), "0xabc")
	require.NoError(t, err, "404 is not an error, just not indexed yet")
	assert.Nil(t, p)
}

func TestGetPaymentServerError(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}, PollConfig{})

	_, err := c.GetPayment(context.Background(), "0xabc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGetPaymentEmptyHash(t *testing.T) {
	c := NewClient(nil)
	_, err := c.GetPayment(context.Background(), "")
	assert.Error(t, err)
}

func TestPollUntilConfirmedEventually(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 6 {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, confirmedBody)
	}, PollConfig{Interval: time.Millisecond, MaxAttempts: 10})

	p, err := c.PollUntilConfirmed(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "ABC_00042", p.Memo)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))
}

func TestPollUntilConfirmedPendingThenConfirmed(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			fmt.Fprint(w, `{"memo":"ABC_00042","amount":10,"currency":"USD","toAddress":"shop.merchant.eth","status":"pending"}`)
			return
		}
		fmt.Fprint(w, confirmedBody)
	}, PollConfig{Interval: time.Millisecond, MaxAttempts: 10})

	p, err := c.PollUntilConfirmed(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.True(t, p.Confirmed())
}

func TestPollUntilConfirmedExhaustion(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, PollConfig{Interval: time.Millisecond, MaxAttempts: 4})

	_, err := c.PollUntilConfirmed(context.Background(), "0xabc")
	assert.ErrorIs(t, err, yapp.ErrLookupExhausted)
}

func TestPollUntilConfirmedSurvivesServerErrors(t *testing.T) {
	var calls int32
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, confirmedBody)
	}, PollConfig{Interval: time.Millisecond, MaxAttempts: 10})

	p, err := c.PollUntilConfirmed(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "ABC_00042", p.Memo)
}

func TestPollUntilConfirmedContextCancel(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}, PollConfig{Interval: 50 * time.Millisecond, MaxAttempts: 100})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := c.PollUntilConfirmed(ctx, "0xabc")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(nil)
	assert.Equal(t, DefaultIndexerURL, c.url)
	assert.Equal(t, FastPoll, c.poll)
	assert.NotNil(t, c.client)

	c = NewClient(&Config{URL: "https://indexer.example/"})
	assert.Equal(t, "https://indexer.example", c.url, "trailing slash is trimmed")
}
