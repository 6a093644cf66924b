package pay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := NewClient(nil, Config{BaseURL: url, KeyID: "key_id", KeySecret: "key_secret", WebhookSecret: "whsec"})
	c.newBackOff = func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2) }
	return c
}

func TestCreateOrderSendsMinorUnits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key_id", user)
		assert.Equal(t, "key_secret", pass)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, float64(50050), body["amount"])
		assert.Equal(t, "INR", body["currency"])
		assert.Equal(t, "rcpt_1", body["receipt"])

		_, _ = w.Write([]byte(`{"id":"order_9","amount":50050,"currency":"INR","receipt":"rcpt_1","status":"created"}`))
	}))
	defer srv.Close()

	order, err := newTestClient(srv.URL).CreateOrder(context.Background(), OrderRequest{
		Receipt:  "rcpt_1",
		Amount:   decimal.RequireFromString("500.50"),
		Currency: "INR",
	})
	require.NoError(t, err)
	assert.Equal(t, "order_9", order.ID)
	assert.Equal(t, int64(50050), order.Amount)
}

func TestCreateOrderRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":"order_1","status":"created"}`))
	}))
	defer srv.Close()

	order, err := newTestClient(srv.URL).CreateOrder(context.Background(), OrderRequest{Receipt: "r", Amount: decimal.NewFromInt(1), Currency: "INR"})
	require.NoError(t, err)
	assert.Equal(t, "order_1", order.ID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestCreateOrderClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateOrder(context.Background(), OrderRequest{Receipt: "r", Amount: decimal.NewFromInt(1), Currency: "INR"})
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateOrderWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateOrder(context.Background(), OrderRequest{Receipt: "r", Amount: decimal.NewFromInt(1), Currency: "INR"})
	assert.ErrorIs(t, err, ErrUnsuccessful)
}

func TestVerifyPayment(t *testing.T) {
	c := newTestClient("http://unused")
	sig := "cddb7625c07cf37da56b4e6ef20f79ada869d359bef9df18356eeb9b3cf00ebe"
	assert.True(t, c.VerifyPayment("order_9", "pay_3", sig))
	assert.False(t, c.VerifyPayment("order_9", "pay_4", sig))
	assert.False(t, c.VerifyPayment("", "pay_3", sig))
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient("http://unused")
	body := []byte(`{"event":"payment.captured"}`)
	assert.True(t, c.VerifyWebhook(body, "4673dd707ef4c41b987cb7fefe1583142dc702388c93145b7814b9ad3d3c183e"))
	assert.False(t, c.VerifyWebhook(body, Sign(body, "key_secret")))
}
