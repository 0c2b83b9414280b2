package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// MockOAuthServer mocks the provider's OAuth endpoints. Register handlers per
// path; unregistered paths return 404. Requests counts every handled call so
// tests can assert that a cache hit made no remote calls.
type MockOAuthServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	Requests atomic.Int64
}

// NewMockOAuthServer creates a mock OAuth provider that is torn down with the
// test.
func NewMockOAuthServer(t *testing.T) *MockOAuthServer {
	t.Helper()
	m := &MockOAuthServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			m.Requests.Add(1)
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// TokenURL is the mock's refresh-grant endpoint.
func (m *MockOAuthServer) TokenURL() string { return m.URL + "/oauth2/token" }

// ValidateURL is the mock's token-validation endpoint.
func (m *MockOAuthServer) ValidateURL() string { return m.URL + "/oauth2/validate" }

// MockTokenGrant makes the refresh grant succeed with the given credentials.
func (m *MockOAuthServer) MockTokenGrant(accessToken, refreshToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostFormValue("grant_type") != "refresh_token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		response := map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_in":    expiresIn,
			"token_type":    "bearer",
			"scope":         []string{"chat:read", "chat:edit"},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockTokenGrantStatus makes the refresh grant fail with a fixed status.
func (m *MockOAuthServer) MockTokenGrantStatus(status int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}

// MockValidateStatus makes token validation return a fixed status.
func (m *MockOAuthServer) MockValidateStatus(status int) {
	m.Handlers["/oauth2/validate"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}
}
