package handlers

import (
	// Go Internal Packages
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	// Local Packages
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"
	"github.com/markjakearzadon/momopay-gobackend/internal/services"

	// External Packages
	"go.uber.org/zap"
)

const maxCallbackBody = 64 << 10

type PaymentHandler struct {
	service       *services.PaymentService
	callbackToken string
	logger        *zap.Logger
}

// NewPaymentHandler builds the mobile-money handlers. A non-empty
// callbackToken must be presented in X-Callback-Token on every callback.
func NewPaymentHandler(service *services.PaymentService, callbackToken string, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, callbackToken: callbackToken, logger: logger}
}

type initiateBody struct {
	PhoneNumber string      `json:"phoneNumber"`
	Amount      json.Number `json:"amount"`
	Currency    string      `json:"currency"`
	Reference   string      `json:"reference"`
}

func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var body initiateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, errors.InvalidBodyErr(err))
		return
	}

	res, err := h.service.Initiate(r.Context(), services.InitiateRequest{
		PayerIdentifier: body.PhoneNumber,
		Amount:          body.Amount.String(),
		Currency:        body.Currency,
		Reference:       body.Reference,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"transactionId": res.RequestID,
		"reference":     res.Reference,
	})
}

type statusResponse struct {
	Status           string `json:"status"`
	TransactionID    string `json:"transactionId"`
	CallbackReceived bool   `json:"callbackReceived"`
	Reason           string `json:"reason,omitempty"`
}

func (h *PaymentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.GetStatus(r.Context(), r.URL.Query().Get("transactionId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:           tx.Status,
		TransactionID:    tx.RequestID,
		CallbackReceived: tx.CallbackReceived,
		Reason:           tx.Reason,
	})
}

// Callback accepts the gateway notification. The request id is read from the
// body's referenceId and falls back to the query string and X-Reference-Id.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.callbackToken != "" {
		got := r.Header.Get("X-Callback-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.callbackToken)) != 1 {
			h.logger.Warn("callback with invalid token", zap.String("remote", r.RemoteAddr))
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Unauthorized callback"})
			return
		}
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		h.writeError(w, r, errors.InvalidBodyErr(err))
		return
	}

	var body struct {
		ReferenceID string `json:"referenceId"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			h.writeError(w, r, errors.InvalidBodyErr(err))
			return
		}
	}
	if body.ReferenceID == "" {
		body.ReferenceID = r.URL.Query().Get("referenceId")
	}
	if body.ReferenceID == "" {
		body.ReferenceID = r.Header.Get("X-Reference-Id")
	}

	if _, err := h.service.HandleCallback(r.Context(), body.ReferenceID, raw); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type recordBody struct {
	UserID        string      `json:"userId"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Method        string      `json:"method"`
	TransactionID string      `json:"transactionId"`
	Service       string      `json:"service"`
	Status        string      `json:"status"`
}

func (h *PaymentHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var body recordBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, r, errors.InvalidBodyErr(err))
		return
	}

	id, err := h.service.RecordGenericPayment(r.Context(), services.GenericPaymentRequest{
		UserID:        body.UserID,
		Amount:        body.Amount.String(),
		Currency:      body.Currency,
		Method:        body.Method,
		TransactionID: body.TransactionID,
		Service:       body.Service,
		Status:        body.Status,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "paymentId": id})
}
