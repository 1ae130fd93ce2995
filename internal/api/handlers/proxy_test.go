package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/response"
	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
)

type mockForwarder struct {
	resp *chunirec.RawResponse
	err  error

	endpoint string
	query    url.Values
	token    string
	block    bool
}

func (m *mockForwarder) Forward(ctx context.Context, endpoint string, query url.Values, token string) (*chunirec.RawResponse, error) {
	m.endpoint, m.query, m.token = endpoint, query, token
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.resp, m.err
}

func staticToken(token string) TokenResolver {
	return func(local string) string {
		if local != "" {
			return local
		}
		return token
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorResponse {
	t.Helper()
	var body response.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode error body: %v", err)
	}
	return body
}

func TestProxy_Success(t *testing.T) {
	fwd := &mockForwarder{resp: &chunirec.RawResponse{
		StatusCode: http.StatusOK,
		Body:       []byte(`{"player_name":"P"}`),
		Header:     http.Header{"X-Rate-Limit-Remaining": {"42"}},
	}}
	h := NewProxyHandler(fwd, staticToken("server-token"), 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chunirec/proxy?proxyEndpoint=records/profile.json&region=jp2&user_name=P&localApiToken=mine", nil)
	w := httptest.NewRecorder()
	h.Proxy(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != `{"player_name":"P"}` {
		t.Errorf("Expected body relayed verbatim, got %s", w.Body.String())
	}
	if got := w.Header().Get("X-Rate-Limit-Remaining"); got != "42" {
		t.Errorf("Expected rate limit header 42, got %q", got)
	}
	if w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("Expected application/json content type, got %s", w.Header().Get("Content-Type"))
	}
	if fwd.endpoint != "records/profile.json" {
		t.Errorf("Expected endpoint records/profile.json, got %s", fwd.endpoint)
	}
	if fwd.token != "mine" {
		t.Errorf("Expected local token to win, got %s", fwd.token)
	}
	if fwd.query.Has("proxyEndpoint") || fwd.query.Has("localApiToken") {
		t.Errorf("Expected proxy parameters stripped, got %v", fwd.query)
	}
	if fwd.query.Get("user_name") != "P" || fwd.query.Get("region") != "jp2" {
		t.Errorf("Expected upstream parameters kept, got %v", fwd.query)
	}
}

func TestProxy_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		token     string
		fwd       *mockForwarder
		timeout   time.Duration
		status    int
		wantError string
	}{
		{
			name:   "missing endpoint",
			url:    "/proxy",
			token:  "t",
			fwd:    &mockForwarder{},
			status: http.StatusBadRequest,
		},
		{
			name:   "absolute endpoint",
			url:    "/proxy?proxyEndpoint=http://evil.example/x",
			token:  "t",
			fwd:    &mockForwarder{},
			status: http.StatusBadRequest,
		},
		{
			name:   "no token",
			url:    "/proxy?proxyEndpoint=music/showall.json",
			fwd:    &mockForwarder{},
			status: http.StatusInternalServerError,
		},
		{
			name:    "timeout",
			url:     "/proxy?proxyEndpoint=music/showall.json",
			token:   "t",
			fwd:     &mockForwarder{block: true},
			timeout: 10 * time.Millisecond,
			status:  http.StatusGatewayTimeout,
		},
		{
			name:   "network error",
			url:    "/proxy?proxyEndpoint=music/showall.json",
			token:  "t",
			fwd:    &mockForwarder{err: errors.New("connection refused")},
			status: http.StatusServiceUnavailable,
		},
		{
			name:  "upstream error relayed",
			url:   "/proxy?proxyEndpoint=records/profile.json",
			token: "t",
			fwd: &mockForwarder{resp: &chunirec.RawResponse{
				StatusCode: http.StatusNotFound,
				Body:       []byte(`{"error":{"code":404,"message":"user not found"}}`),
				Header:     http.Header{},
			}},
			status:    http.StatusNotFound,
			wantError: "Chunirec API Error (status 404): user not found",
		},
		{
			name:  "plain text upstream error",
			url:   "/proxy?proxyEndpoint=records/profile.json",
			token: "t",
			fwd: &mockForwarder{resp: &chunirec.RawResponse{
				StatusCode: http.StatusTooManyRequests,
				Body:       []byte("slow down"),
				Header:     http.Header{},
			}},
			status:    http.StatusTooManyRequests,
			wantError: "Chunirec API Error (status 429): slow down",
		},
		{
			name:  "malformed json",
			url:   "/proxy?proxyEndpoint=records/profile.json",
			token: "t",
			fwd: &mockForwarder{resp: &chunirec.RawResponse{
				StatusCode: http.StatusOK,
				Body:       []byte("<html>"),
				Header:     http.Header{},
			}},
			status: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewProxyHandler(tt.fwd, staticToken(tt.token), tt.timeout)
			w := httptest.NewRecorder()
			h.Proxy(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			if w.Code != tt.status {
				t.Fatalf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			body := decodeError(t, w)
			if body.Code != tt.status {
				t.Errorf("Expected code %d in body, got %d", tt.status, body.Code)
			}
			if tt.wantError != "" && body.Error != tt.wantError {
				t.Errorf("Expected error %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestProxy_TokenOrder(t *testing.T) {
	fwd := &mockForwarder{resp: &chunirec.RawResponse{StatusCode: http.StatusOK, Body: []byte(`{}`), Header: http.Header{}}}
	h := NewProxyHandler(fwd, staticToken("server-token"), 0)

	w := httptest.NewRecorder()
	h.Proxy(w, httptest.NewRequest(http.MethodGet, "/proxy?proxyEndpoint=music/showall.json&token=injected", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if fwd.token != "server-token" {
		t.Errorf("Expected server token, got %s", fwd.token)
	}
	if fwd.query.Has("token") {
		t.Error("Expected caller-supplied token parameter to be dropped")
	}
}
