package services

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	// Local Packages
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"
	"github.com/markjakearzadon/momopay-gobackend/internal/models"

	// External Packages
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TransactionStore interface {
	Create(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, requestID string) (*models.Transaction, error)
	UpdateStatusIfPending(ctx context.Context, requestID string, update models.StatusUpdate) (*models.Transaction, bool, error)
	MarkCallbackReceived(ctx context.Context, requestID, data string) (*models.Transaction, error)
	ListPending(ctx context.Context, olderThan time.Time, limit int) ([]models.Transaction, error)
}

type PaymentRecordStore interface {
	Insert(ctx context.Context, record *models.PaymentRecord) (string, error)
}

type Gateway interface {
	SubmitPayment(ctx context.Context, token string, p PaymentRequest) error
	QueryStatus(ctx context.Context, token, referenceID string) (StatusResult, error)
}

type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

type StatusPublisher interface {
	PublishStatus(ctx context.Context, ev models.StatusEvent) error
}

const defaultPublishTimeout = 5 * time.Second

// PaymentOptions tune the orchestrator. PublishTimeout bounds each status
// event publish and defaults to 5s.
type PaymentOptions struct {
	MaxAttempts    int
	RetryBackoff   time.Duration
	CallbackURL    string
	PayerMessage   string
	PayeeNote      string
	PublishTimeout time.Duration
}

// PaymentService coordinates the gateway, the token cache and the stores.
// It is the only layer that retries gateway calls.
type PaymentService struct {
	store     TransactionStore
	payments  PaymentRecordStore
	gateway   Gateway
	tokens    TokenSource
	publisher StatusPublisher
	opts      PaymentOptions
	logger    *zap.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewPaymentService(store TransactionStore, payments PaymentRecordStore, gateway Gateway, tokens TokenSource, opts PaymentOptions, logger *zap.Logger) *PaymentService {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	return &PaymentService{
		store:     store,
		payments:  payments,
		gateway:   gateway,
		tokens:    tokens,
		publisher: nopPublisher{},
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// WithPublisher sets where terminal transitions are announced.
func (s *PaymentService) WithPublisher(p StatusPublisher) *PaymentService {
	s.publisher = p
	return s
}

type InitiateRequest struct {
	PayerIdentifier string `json:"phoneNumber" validate:"required,msisdn"`
	Amount          string `json:"amount" validate:"required,positive_decimal"`
	Currency        string `json:"currency" validate:"required,iso4217"`
	Reference       string `json:"reference" validate:"omitempty,max=64"`
}

type InitiateResult struct {
	RequestID string
	Reference string
}

// Initiate submits a request-to-pay and stores it as PENDING. Only an
// accepted request is persisted; the outcome arrives later through GetStatus
// or HandleCallback.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (InitiateResult, error) {
	req.PayerIdentifier = strings.ReplaceAll(strings.TrimSpace(req.PayerIdentifier), " ", "")
	req.Amount = strings.TrimSpace(req.Amount)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Reference = strings.TrimSpace(req.Reference)

	if err := validateStruct(req); err != nil {
		s.logger.Info("rejected payment request", zap.Error(err))
		return InitiateResult{}, err
	}
	if req.Reference == "" {
		req.Reference = s.newReference()
	}

	tx := &models.Transaction{
		RequestID:       uuid.NewString(),
		Reference:       req.Reference,
		PayerIdentifier: req.PayerIdentifier,
		Amount:          canonicalAmount(req.Amount),
		Currency:        req.Currency,
		Status:          models.StatusPending,
	}
	logger := s.logger.With(zap.String("request_id", tx.RequestID), zap.String("reference", tx.Reference))

	payment := PaymentRequest{
		ReferenceID:     tx.RequestID,
		ExternalID:      tx.Reference,
		PayerIdentifier: tx.PayerIdentifier,
		Amount:          tx.Amount,
		Currency:        tx.Currency,
		CallbackURL:     s.opts.CallbackURL,
		PayerMessage:    s.opts.PayerMessage,
		PayeeNote:       s.opts.PayeeNote,
	}
	if err := s.submitWithRetry(ctx, logger, payment); err != nil {
		return InitiateResult{}, err
	}

	if err := s.store.Create(ctx, tx); err != nil {
		// The gateway holds the request but we do not; the reconciler cannot
		// recover this, so it has to be visible in the logs.
		logger.Error("payment accepted by gateway but not persisted",
			zap.String("payer", maskMSISDN(tx.PayerIdentifier)), zap.Error(err))
		return InitiateResult{}, err
	}

	logger.Info("payment initiated", zap.String("amount", tx.Amount), zap.String("currency", tx.Currency))
	return InitiateResult{RequestID: tx.RequestID, Reference: tx.Reference}, nil
}

// submitWithRetry retries only Unavailable failures, reusing the same
// reference id so the gateway can deduplicate.
func (s *PaymentService) submitWithRetry(ctx context.Context, logger *zap.Logger, payment PaymentRequest) error {
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		token, err := s.tokens.GetValidToken(ctx)
		if err != nil {
			logger.Error("cannot obtain momo token", zap.Error(err))
			return err
		}

		err = s.gateway.SubmitPayment(ctx, token, payment)
		if err == nil {
			return nil
		}
		if !errors.Is(errors.Unavailable, err) {
			logger.Warn("payment request rejected", zap.Int("attempt", attempt), zap.Error(err))
			return err
		}

		lastErr = err
		logger.Warn("payment request failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == s.opts.MaxAttempts {
			break
		}
		if err := s.sleep(ctx, s.opts.RetryBackoff*time.Duration(attempt)); err != nil {
			return errors.E(errors.Unavailable, "payment gateway unavailable", err)
		}
	}
	return errors.E(errors.Unavailable, "payment gateway unavailable",
		fmt.Errorf("gave up after %d attempts: %w", s.opts.MaxAttempts, lastErr))
}

// GetStatus returns the stored transaction, asking the gateway first while it
// is still PENDING. A terminal transaction is answered from the store alone.
func (s *PaymentService) GetStatus(ctx context.Context, requestID string) (*models.Transaction, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, errors.MissingParamsErr("transactionId")
	}

	tx, err := s.store.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if tx.IsTerminal() {
		return tx, nil
	}

	token, err := s.tokens.GetValidToken(ctx)
	if err != nil {
		s.logger.Error("cannot obtain momo token", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}

	res, err := s.gateway.QueryStatus(ctx, token, requestID)
	switch {
	case err == nil:
	case errors.Is(errors.NotFound, err):
		// Freshly accepted requests can lag behind on the status endpoint.
		s.logger.Warn("gateway does not know pending transaction yet", zap.String("request_id", requestID))
		return tx, nil
	case errors.Is(errors.Unavailable, err):
		return nil, errors.E(errors.Unavailable, "transient gateway error", err)
	default:
		return nil, err
	}

	if strings.EqualFold(res.Status, models.StatusPending) {
		return tx, nil
	}

	updated, applied, err := s.store.UpdateStatusIfPending(ctx, requestID, models.StatusUpdate{
		Status:                 res.Status,
		Reason:                 res.Reason,
		FinancialTransactionID: res.FinancialTransactionID,
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.publish(ctx, updated, models.SourcePoll)
	}
	return updated, nil
}

// callbackPayload is the part of the webhook body the state machine reads.
type callbackPayload struct {
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason"`
	FinancialTransactionID string          `json:"financialTransactionId"`
}

// HandleCallback applies a gateway notification. Deliveries are
// at-least-once; after the first one the monotonic update turns any repeat
// into a no-op.
func (s *PaymentService) HandleCallback(ctx context.Context, requestID string, raw []byte) (*models.Transaction, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return nil, errors.MissingParamsErr("referenceId")
	}

	var payload callbackPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, errors.InvalidBodyErr(err)
		}
	}

	status := callbackStatus(payload.Status)
	logger := s.logger.With(zap.String("request_id", requestID))
	logger.Info("momo callback received", zap.String("reported_status", payload.Status), zap.String("status", status))

	if status == models.StatusPending {
		return s.store.MarkCallbackReceived(ctx, requestID, string(raw))
	}

	tx, applied, err := s.store.UpdateStatusIfPending(ctx, requestID, models.StatusUpdate{
		Status:                 status,
		Reason:                 reasonText(payload.Reason),
		FinancialTransactionID: payload.FinancialTransactionID,
		CallbackReceived:       true,
		CallbackData:           string(raw),
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.publish(ctx, tx, models.SourceCallback)
	} else {
		logger.Info("callback did not change settled transaction", zap.String("status", tx.Status))
	}
	return tx, nil
}

// callbackStatus maps the status a callback reports onto the state machine.
// A callback without a status counts as success.
func callbackStatus(reported string) string {
	switch strings.ToUpper(strings.TrimSpace(reported)) {
	case "":
		return models.StatusSuccessful
	case models.StatusSuccessful:
		return models.StatusSuccessful
	case models.StatusPending:
		return models.StatusPending
	default:
		return models.StatusFailed
	}
}

type GenericPaymentRequest struct {
	UserID        string `json:"userId" validate:"required"`
	Amount        string `json:"amount" validate:"required,positive_decimal"`
	Currency      string `json:"currency" validate:"omitempty,iso4217"`
	Method        string `json:"method" validate:"required"`
	TransactionID string `json:"transactionId" validate:"required"`
	Service       string `json:"service"`
	Status        string `json:"status"`
}

// RecordGenericPayment appends a payment settled outside the mobile-money
// flow. It never touches the transaction state machine.
func (s *PaymentService) RecordGenericPayment(ctx context.Context, req GenericPaymentRequest) (string, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Amount = strings.TrimSpace(req.Amount)
	req.Currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	req.Method = strings.TrimSpace(req.Method)
	req.TransactionID = strings.TrimSpace(req.TransactionID)

	if err := validateStruct(req); err != nil {
		return "", err
	}
	if req.Status == "" {
		req.Status = models.PaymentRecordStatusDefault
	}

	id, err := s.payments.Insert(ctx, &models.PaymentRecord{
		UserID:        req.UserID,
		Amount:        canonicalAmount(req.Amount),
		Currency:      req.Currency,
		Method:        req.Method,
		TransactionID: req.TransactionID,
		Service:       req.Service,
		Status:        req.Status,
	})
	if err != nil {
		s.logger.Error("failed to record payment", zap.String("user_id", req.UserID), zap.Error(err))
		return "", err
	}

	s.logger.Info("payment recorded", zap.String("payment_id", id), zap.String("method", req.Method))
	return id, nil
}

func (s *PaymentService) publish(ctx context.Context, tx *models.Transaction, source string) {
	ev := models.StatusEvent{
		RequestID:  tx.RequestID,
		Reference:  tx.Reference,
		Status:     tx.Status,
		Reason:     tx.Reason,
		Source:     source,
		OccurredAt: s.now().UTC(),
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.PublishTimeout)
	defer cancel()
	if err := s.publisher.PublishStatus(ctx, ev); err != nil {
		s.logger.Warn("failed to publish status event", zap.String("request_id", tx.RequestID), zap.Error(err))
	}
}

// newReference builds TX_<unix millis>_<0..999>.
func (s *PaymentService) newReference() string {
	return fmt.Sprintf("TX_%d_%d", s.now().UnixMilli(), rand.IntN(1000))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishStatus(context.Context, models.StatusEvent) error { return nil }
