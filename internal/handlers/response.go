package handlers

import (
	// Go Internal Packages
	"encoding/json"
	"net/http"

	// Local Packages
	errors "github.com/markjakearzadon/momopay-gobackend/internal/errors"

	// External Packages
	"go.uber.org/zap"
)

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse maps an error kind to its status code and public message.
// Details are only exposed for request validation problems.
func errorResponse(err error) (int, errorBody) {
	switch errors.KindOf(err) {
	case errors.Invalid:
		msg := errors.MessageOf(err)
		if msg != errors.MissingParamsMsg {
			msg = "Invalid request"
		}
		return http.StatusBadRequest, errorBody{Error: msg, Details: errors.CauseOf(err)}
	case errors.NotFound:
		return http.StatusNotFound, errorBody{Error: "Transaction not found"}
	case errors.Auth:
		return http.StatusInternalServerError, errorBody{Error: "Authentication with payment gateway failed"}
	case errors.Rejected:
		return http.StatusBadGateway, errorBody{Error: "Payment rejected by gateway"}
	case errors.Unavailable:
		return http.StatusServiceUnavailable, errorBody{Error: "Payment gateway unavailable"}
	}
	return http.StatusInternalServerError, errorBody{Error: "Internal server error"}
}

func (h *PaymentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := errorResponse(err)
	fields := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", code),
		zap.Error(err),
	}
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Info("request rejected", fields...)
	}
	writeJSON(w, code, body)
}

// Health answers liveness probes.
func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte("OK"))
	}
}
