// Package testutil provides a fake MTN MoMo collections API for tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// SubmittedPayment is a request-to-pay as the fake gateway received it.
type SubmittedPayment struct {
	ReferenceID  string
	CallbackURL  string
	TargetEnv    string
	Subscription string
	Bearer       string
	Body         struct {
		Amount     string `json:"amount"`
		Currency   string `json:"currency"`
		ExternalID string `json:"externalId"`
		Payer      struct {
			PartyIDType string `json:"partyIdType"`
			PartyID     string `json:"partyId"`
		} `json:"payer"`
		PayerMessage string `json:"payerMessage"`
		PayeeNote    string `json:"payeeNote"`
	}
}

type remoteStatus struct {
	Status string
	Reason string
}

// FakeMomo serves the token, request-to-pay and status endpoints.
type FakeMomo struct {
	Server *httptest.Server

	mu             sync.Mutex
	tokenCalls     int
	submitCalls    int
	statusCalls    int
	tokenCode      int
	submitFailures []int
	statusCode     int
	submitted      map[string]SubmittedPayment
	statuses       map[string]remoteStatus
	lastBasicUser  string
	lastBasicPass  string
}

// NewFakeMomo starts the fake gateway and closes it when the test ends.
func NewFakeMomo(t *testing.T) *FakeMomo {
	t.Helper()
	f := &FakeMomo{
		submitted: map[string]SubmittedPayment{},
		statuses:  map[string]remoteStatus{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /collection/token/", f.token)
	mux.HandleFunc("POST /collection/v1_0/requesttopay", f.requestToPay)
	mux.HandleFunc("GET /collection/v1_0/requesttopay/{id}", f.status)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the gateway base URL.
func (f *FakeMomo) URL() string { return f.Server.URL }

// Close makes the gateway unreachable.
func (f *FakeMomo) Close() { f.Server.Close() }

// FailToken makes the token endpoint answer with code.
func (f *FakeMomo) FailToken(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCode = code
}

// FailNextSubmits makes the next len(codes) request-to-pay calls answer with
// the given codes, in order.
func (f *FakeMomo) FailNextSubmits(codes ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitFailures = append(f.submitFailures, codes...)
}

// FailStatus makes the status endpoint answer with code; 0 restores it.
func (f *FakeMomo) FailStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCode = code
}

// SetStatus changes what the gateway reports for referenceID.
func (f *FakeMomo) SetStatus(referenceID, status, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[referenceID] = remoteStatus{Status: status, Reason: reason}
}

func (f *FakeMomo) TokenCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenCalls
}

func (f *FakeMomo) SubmitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *FakeMomo) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}

// BasicAuth returns the credentials of the last token request.
func (f *FakeMomo) BasicAuth() (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBasicUser, f.lastBasicPass
}

// Submitted returns the accepted request-to-pay for referenceID.
func (f *FakeMomo) Submitted(referenceID string) (SubmittedPayment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.submitted[referenceID]
	return p, ok
}

func (f *FakeMomo) token(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.tokenCalls++
	f.lastBasicUser, f.lastBasicPass, _ = r.BasicAuth()
	code := f.tokenCode
	f.mu.Unlock()

	if code != 0 {
		http.Error(w, `{"error":"invalid_client"}`, code)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": "fake-token",
		"token_type":   "access_token",
		"expires_in":   3600,
	})
}

func (f *FakeMomo) requestToPay(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++

	if len(f.submitFailures) > 0 {
		code := f.submitFailures[0]
		f.submitFailures = f.submitFailures[1:]
		http.Error(w, `{"code":"INTERNAL_PROCESSING_ERROR"}`, code)
		return
	}

	var p SubmittedPayment
	if err := json.NewDecoder(r.Body).Decode(&p.Body); err != nil {
		http.Error(w, `{"code":"INVALID_PAYLOAD"}`, http.StatusBadRequest)
		return
	}
	p.ReferenceID = r.Header.Get("X-Reference-Id")
	p.CallbackURL = r.Header.Get("X-Callback-Url")
	p.TargetEnv = r.Header.Get("X-Target-Environment")
	p.Subscription = r.Header.Get("Ocp-Apim-Subscription-Key")
	p.Bearer = r.Header.Get("Authorization")

	if _, ok := f.submitted[p.ReferenceID]; ok {
		http.Error(w, `{"code":"RESOURCE_ALREADY_EXIST"}`, http.StatusConflict)
		return
	}
	f.submitted[p.ReferenceID] = p
	if _, ok := f.statuses[p.ReferenceID]; !ok {
		f.statuses[p.ReferenceID] = remoteStatus{Status: "PENDING"}
	}
	w.WriteHeader(http.StatusAccepted)
}

func (f *FakeMomo) status(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++

	if f.statusCode != 0 {
		http.Error(w, `{"code":"NOT_ALLOWED"}`, f.statusCode)
		return
	}
	st, ok := f.statuses[r.PathValue("id")]
	if !ok {
		http.Error(w, `{"code":"RESOURCE_NOT_FOUND"}`, http.StatusNotFound)
		return
	}

	body := map[string]any{"status": st.Status, "externalId": ""}
	if p, ok := f.submitted[r.PathValue("id")]; ok {
		body["externalId"] = p.Body.ExternalID
		body["amount"] = p.Body.Amount
		body["currency"] = p.Body.Currency
	}
	if st.Status == "SUCCESSFUL" {
		body["financialTransactionId"] = "ft-" + r.PathValue("id")
	}
	if st.Reason != "" {
		body["reason"] = map[string]string{"code": st.Reason, "message": st.Reason}
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
