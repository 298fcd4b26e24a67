package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockPayPalServer creates a test server that mocks the PayPal REST endpoints
// the engine calls: the OAuth token endpoint and webhook signature
// verification.
type MockPayPalServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	// VerifyCalls counts hits on the verify-webhook-signature endpoint.
	VerifyCalls int
}

// NewMockPayPalServer creates a new mock PayPal API server
func NewMockPayPalServer(t *testing.T) *MockPayPalServer {
	t.Helper()
	m := &MockPayPalServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockOAuthTokenResponse adds a handler for the client-credentials token endpoint
func (m *MockPayPalServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/v1/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "Bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockVerifyResponse adds a handler for verify-webhook-signature returning the
// given verification status ("SUCCESS" or "FAILURE")
func (m *MockPayPalServer) MockVerifyResponse(status string) {
	m.Handlers["/v1/notifications/verify-webhook-signature"] = func(w http.ResponseWriter, r *http.Request) {
		m.VerifyCalls++
		response := map[string]string{
			"verification_status": status,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
