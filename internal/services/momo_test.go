package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markjakearzadon/momopay-gobackend/internal/config"
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"
	"github.com/markjakearzadon/momopay-gobackend/internal/testutil"
)

func gatewayConfig(baseURL string) config.Gateway {
	return config.Gateway{
		BaseURL:           baseURL,
		ConsumerKey:       "consumer",
		ConsumerSecret:    "secret",
		SubscriptionKey:   "sub-key",
		TargetEnvironment: "sandbox",
		Timeout:           2 * time.Second,
		TokenMargin:       30 * time.Second,
	}
}

func TestMomoExchangeToken(t *testing.T) {
	fake := testutil.NewFakeMomo(t)
	client := NewMomoClient(gatewayConfig(fake.URL()), zap.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	tok, err := client.ExchangeToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fake-token", tok.AccessToken)
	assert.Equal(t, now.Add(time.Hour), tok.ExpiresAt)

	user, pass := fake.BasicAuth()
	assert.Equal(t, "consumer", user)
	assert.Equal(t, "secret", pass)
}

func TestMomoExchangeTokenRejected(t *testing.T) {
	fake := testutil.NewFakeMomo(t)
	fake.FailToken(http.StatusUnauthorized)
	client := NewMomoClient(gatewayConfig(fake.URL()), zap.NewNop())

	_, err := client.ExchangeToken(context.Background())
	assert.True(t, errors.Is(errors.Auth, err))
}

func TestMomoExchangeTokenMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token_type":"access_token","expires_in":3600}`))
	}))
	defer srv.Close()

	_, err := NewMomoClient(gatewayConfig(srv.URL), zap.NewNop()).ExchangeToken(context.Background())
	assert.True(t, errors.Is(errors.Auth, err))
}

func TestMomoSubmitPayment(t *testing.T) {
	fake := testutil.NewFakeMomo(t)
	client := NewMomoClient(gatewayConfig(fake.URL()), zap.NewNop())

	err := client.SubmitPayment(context.Background(), "tok", PaymentRequest{
		ReferenceID:     "ref-1",
		ExternalID:      "TX_1_2",
		PayerIdentifier: "+211920000000",
		Amount:          "10",
		Currency:        "USD",
		CallbackURL:     "https://example.com/api/momo/callback",
		PayerMessage:    "pay",
		PayeeNote:       "note",
	})
	require.NoError(t, err)

	got, ok := fake.Submitted("ref-1")
	require.True(t, ok)
	assert.Equal(t, "Bearer tok", got.Bearer)
	assert.Equal(t, "sandbox", got.TargetEnv)
	assert.Equal(t, "sub-key", got.Subscription)
	assert.Equal(t, "https://example.com/api/momo/callback", got.CallbackURL)
	assert.Equal(t, "211920000000", got.Body.Payer.PartyID)
	assert.Equal(t, "MSISDN", got.Body.Payer.PartyIDType)
	assert.Equal(t, "TX_1_2", got.Body.ExternalID)
	assert.Equal(t, "10", got.Body.Amount)
}

func TestMomoSubmitPaymentClassification(t *testing.T) {
	tests := []struct {
		name string
		code int
		kind errors.Kind
	}{
		{name: "bad request", code: http.StatusBadRequest, kind: errors.Rejected},
		{name: "unauthorized", code: http.StatusUnauthorized, kind: errors.Rejected},
		{name: "server error", code: http.StatusInternalServerError, kind: errors.Unavailable},
		{name: "unavailable", code: http.StatusServiceUnavailable, kind: errors.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testutil.NewFakeMomo(t)
			fake.FailNextSubmits(tt.code)
			client := NewMomoClient(gatewayConfig(fake.URL()), zap.NewNop())

			err := client.SubmitPayment(context.Background(), "tok", PaymentRequest{ReferenceID: "r", Amount: "1", Currency: "USD"})
			assert.Equal(t, tt.kind, errors.KindOf(err))
			assert.NotContains(t, err.Error(), "INTERNAL_PROCESSING_ERROR", "gateway body must not leak")
		})
	}
}

func TestMomoSubmitPaymentConflictIsAccepted(t *testing.T) {
	fake := testutil.NewFakeMomo(t)
	client := NewMomoClient(gatewayConfig(fake.URL()), zap.NewNop())
	p := PaymentRequest{ReferenceID: "dup", Amount: "1", Currency: "USD", PayerIdentifier: "211920000000"}

	require.NoError(t, client.SubmitPayment(context.Background(), "tok", p))
	require.NoError(t, client.SubmitPayment(context.Background(), "tok", p))
	assert.Equal(t, 2, fake.SubmitCalls())
}

func TestMomoSubmitPaymentUnreachable(t *testing.T) {
	fake := testutil.NewFakeMomo(t)
	fake.Close()
	client := NewMomoClient(gatewayConfig(fake.URL()), zap.NewNop())

	err := client.SubmitPayment(context.Background(), "tok", PaymentRequest{ReferenceID: "r"})
	assert.True(t, errors.Is(errors.Unavailable, err))
}

func TestMomoSubmitPaymentTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	cfg := gatewayConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	err := NewMomoClient(cfg, zap.NewNop()).SubmitPayment(context.Background(), "tok", PaymentRequest{ReferenceID: "r"})
	assert.True(t, errors.Is(errors.Unavailable, err))
}

func TestMomoQueryStatus(t *testing.T) {
	fake := testutil.NewFakeMomo(t)
	client := NewMomoClient(gatewayConfig(fake.URL()), zap.NewNop())
	ctx := context.Background()

	fake.SetStatus("ok", "SUCCESSFUL", "")
	res, err := client.QueryStatus(ctx, "tok", "ok")
	require.NoError(t, err)
	assert.Equal(t, "SUCCESSFUL", res.Status)
	assert.Equal(t, "ft-ok", res.FinancialTransactionID)

	fake.SetStatus("bad", "FAILED", "APPROVAL_REJECTED")
	res, err = client.QueryStatus(ctx, "tok", "bad")
	require.NoError(t, err)
	assert.Equal(t, "FAILED", res.Status)
	assert.Equal(t, "APPROVAL_REJECTED", res.Reason)

	_, err = client.QueryStatus(ctx, "tok", "unknown")
	assert.True(t, errors.Is(errors.NotFound, err))

	fake.FailStatus(http.StatusBadGateway)
	_, err = client.QueryStatus(ctx, "tok", "ok")
	assert.True(t, errors.Is(errors.Unavailable, err))
}

func TestMomoQueryStatusMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"amount":"10"}`))
	}))
	defer srv.Close()

	_, err := NewMomoClient(gatewayConfig(srv.URL), zap.NewNop()).QueryStatus(context.Background(), "tok", "r")
	assert.True(t, errors.Is(errors.Unavailable, err))
}

func TestReasonText(t *testing.T) {
	assert.Equal(t, "", reasonText(nil))
	assert.Equal(t, "", reasonText([]byte("null")))
	assert.Equal(t, "PAYER_NOT_FOUND", reasonText([]byte(`"PAYER_NOT_FOUND"`)))
	assert.Equal(t, "EXPIRED", reasonText([]byte(`{"code":"EXPIRED","message":"timed out"}`)))
	assert.Equal(t, "timed out", reasonText([]byte(`{"message":"timed out"}`)))
}

func TestMaskMSISDN(t *testing.T) {
	assert.Equal(t, "****0000", maskMSISDN("+211920000000"))
	assert.Equal(t, "****", maskMSISDN("123"))
}

func TestMomoQueryStatusKeepsReportedCase(t *testing.T) {
	fake := testutil.NewFakeMomo(t)
	client := NewMomoClient(gatewayConfig(fake.URL()), zap.NewNop())

	fake.SetStatus("mixed", "Timeout", "")
	res, err := client.QueryStatus(context.Background(), "tok", "mixed")
	require.NoError(t, err)
	assert.Equal(t, "Timeout", res.Status)
}
