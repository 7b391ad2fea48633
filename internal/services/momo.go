package services

import (
	// Go Internal Packages
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	// Local Packages
	"github.com/markjakearzadon/momopay-gobackend/internal/config"
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"

	// External Packages
	"go.uber.org/zap"
)

const (
	headerSubscriptionKey = "Ocp-Apim-Subscription-Key"
	headerReferenceID     = "X-Reference-Id"
	headerTargetEnv       = "X-Target-Environment"
	headerCallbackURL     = "X-Callback-Url"

	defaultTokenLifetime = time.Hour
	maxLoggedBody        = 512
)

// Token is a collections API bearer token.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// PaymentRequest is one request-to-pay. ReferenceID is the correlation id
// sent as X-Reference-Id; ExternalID is the business reference.
type PaymentRequest struct {
	ReferenceID     string
	ExternalID      string
	PayerIdentifier string
	Amount          string
	Currency        string
	CallbackURL     string
	PayerMessage    string
	PayeeNote       string
}

// StatusResult is the gateway's view of a request-to-pay.
type StatusResult struct {
	Status                 string
	Reason                 string
	FinancialTransactionID string
}

// MomoClient talks to the MTN MoMo collections API. It holds no token state
// and never retries.
type MomoClient struct {
	cfg    config.Gateway
	client *http.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewMomoClient(cfg config.Gateway, logger *zap.Logger) *MomoClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MomoClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
		now:    time.Now,
	}
}

type momoParty struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type requestToPayBody struct {
	Amount       string    `json:"amount"`
	Currency     string    `json:"currency"`
	ExternalID   string    `json:"externalId"`
	Payer        momoParty `json:"payer"`
	PayerMessage string    `json:"payerMessage"`
	PayeeNote    string    `json:"payeeNote"`
}

// ExchangeToken trades the consumer key and secret for a bearer token.
func (c *MomoClient) ExchangeToken(ctx context.Context) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/collection/token/"), nil)
	if err != nil {
		return Token{}, errors.E(errors.Auth, "failed to create token request", err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)
	req.Header.Set(headerSubscriptionKey, c.cfg.SubscriptionKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Token{}, errors.E(errors.Auth, "token request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("momo token exchange rejected",
			zap.Int("status", resp.StatusCode), zap.String("body", truncate(body)))
		return Token{}, errors.E(errors.Auth, "token exchange failed", fmt.Errorf("status %d", resp.StatusCode))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Token{}, errors.E(errors.Auth, "malformed token response", err)
	}
	if result.AccessToken == "" {
		return Token{}, errors.E(errors.Auth, "malformed token response", fmt.Errorf("missing access_token"))
	}

	lifetime := time.Duration(result.ExpiresIn) * time.Second
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	return Token{AccessToken: result.AccessToken, ExpiresAt: c.now().Add(lifetime)}, nil
}

// SubmitPayment issues a request-to-pay. A 409 means the gateway already holds
// a request with this reference id, which is what an idempotent retry of an
// accepted request looks like, so it is treated as accepted.
func (c *MomoClient) SubmitPayment(ctx context.Context, token string, p PaymentRequest) error {
	reqBody, err := json.Marshal(requestToPayBody{
		Amount:       p.Amount,
		Currency:     p.Currency,
		ExternalID:   p.ExternalID,
		Payer:        momoParty{PartyIDType: "MSISDN", PartyID: strings.TrimPrefix(p.PayerIdentifier, "+")},
		PayerMessage: p.PayerMessage,
		PayeeNote:    p.PayeeNote,
	})
	if err != nil {
		return errors.E(errors.Rejected, "failed to marshal payment request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/collection/v1_0/requesttopay"), bytes.NewReader(reqBody))
	if err != nil {
		return errors.E(errors.Rejected, "failed to create payment request", err)
	}
	c.authorize(req, token, p.ReferenceID)
	req.Header.Set("Content-Type", "application/json")
	if p.CallbackURL != "" {
		req.Header.Set(headerCallbackURL, p.CallbackURL)
	}

	c.logger.Debug("momo request to pay",
		zap.String("reference_id", p.ReferenceID),
		zap.String("external_id", p.ExternalID),
		zap.String("payer", maskMSISDN(p.PayerIdentifier)))

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.E(errors.Unavailable, "payment gateway unavailable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		return nil
	case resp.StatusCode == http.StatusConflict:
		c.logger.Info("momo request to pay already accepted", zap.String("reference_id", p.ReferenceID))
		return nil
	}
	return c.classify(resp, "request to pay", p.ReferenceID)
}

// QueryStatus fetches the current status of a request-to-pay. The status is
// returned as the gateway reported it.
func (c *MomoClient) QueryStatus(ctx context.Context, token, referenceID string) (StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/collection/v1_0/requesttopay/"+url.PathEscape(referenceID)), nil)
	if err != nil {
		return StatusResult{}, errors.E(errors.Rejected, "failed to create status request", err)
	}
	c.authorize(req, token, "")

	resp, err := c.client.Do(req)
	if err != nil {
		return StatusResult{}, errors.E(errors.Unavailable, "payment gateway unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return StatusResult{}, errors.E(errors.NotFound, "gateway has no such payment", fmt.Errorf("reference id %s", referenceID))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusResult{}, c.classify(resp, "status query", referenceID)
	}

	var result struct {
		Status                 string          `json:"status"`
		Reason                 json.RawMessage `json:"reason"`
		FinancialTransactionID string          `json:"financialTransactionId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return StatusResult{}, errors.E(errors.Unavailable, "malformed status response", err)
	}
	result.Status = strings.TrimSpace(result.Status)
	if result.Status == "" {
		return StatusResult{}, errors.E(errors.Unavailable, "malformed status response", fmt.Errorf("missing status"))
	}

	return StatusResult{
		Status:                 result.Status,
		Reason:                 reasonText(result.Reason),
		FinancialTransactionID: result.FinancialTransactionID,
	}, nil
}

func (c *MomoClient) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

func (c *MomoClient) authorize(req *http.Request, token, referenceID string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(headerSubscriptionKey, c.cfg.SubscriptionKey)
	req.Header.Set(headerTargetEnv, c.cfg.TargetEnvironment)
	if referenceID != "" {
		req.Header.Set(headerReferenceID, referenceID)
	}
}

// classify turns a non-2xx response into Rejected (4xx) or Unavailable (5xx).
// The body is logged and never returned.
func (c *MomoClient) classify(resp *http.Response, op, referenceID string) error {
	body, _ := io.ReadAll(resp.Body)
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("reference_id", referenceID),
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncate(body)),
	}
	cause := fmt.Errorf("%s: status %d", op, resp.StatusCode)

	if resp.StatusCode >= 500 {
		c.logger.Warn("momo gateway error", fields...)
		return errors.E(errors.Unavailable, "payment gateway unavailable", cause)
	}
	c.logger.Error("momo gateway rejected request", fields...)
	return errors.E(errors.Rejected, "payment rejected by gateway", cause)
}

// reasonText accepts both the plain string and the {code, message} object
// forms the gateway uses for failure reasons.
func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Code != "" {
			return obj.Code
		}
		return obj.Message
	}
	return ""
}

func truncate(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}
	return string(body)
}

// maskMSISDN keeps the last four digits of a phone number.
func maskMSISDN(msisdn string) string {
	if len(msisdn) > 4 {
		return "****" + msisdn[len(msisdn)-4:]
	}
	return "****"
}
