package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ramonehamilton/CHUNI-Companion/internal/api/response"
	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
)

const defaultProxyTimeout = 25 * time.Second

// Forwarder relays one request to chunirec.
type Forwarder interface {
	Forward(ctx context.Context, endpoint string, query url.Values, token string) (*chunirec.RawResponse, error)
}

// TokenResolver picks the API token for a proxied request. local is the
// localApiToken query value, possibly empty.
type TokenResolver func(local string) string

// ProxyHandler passes GET requests through to chunirec so browser clients
// never see the API token.
type ProxyHandler struct {
	client  Forwarder
	token   TokenResolver
	timeout time.Duration
}

// NewProxyHandler creates a new ProxyHandler. A zero timeout uses 25s.
func NewProxyHandler(client Forwarder, token TokenResolver, timeout time.Duration) *ProxyHandler {
	if timeout <= 0 {
		timeout = defaultProxyTimeout
	}
	return &ProxyHandler{client: client, token: token, timeout: timeout}
}

// Proxy handles GET /chunirec/proxy?proxyEndpoint=records/profile.json&...
func (h *ProxyHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	endpoint := strings.TrimSpace(query.Get("proxyEndpoint"))
	if endpoint == "" {
		response.Fail(w, http.StatusBadRequest, "proxyEndpoint query parameter is required", "")
		return
	}
	if strings.Contains(endpoint, "://") || strings.Contains(endpoint, "..") {
		response.Fail(w, http.StatusBadRequest, "proxyEndpoint must be a relative API path", "")
		return
	}

	token := query.Get("localApiToken")
	if h.token != nil {
		token = h.token(token)
	}
	if token == "" {
		response.Fail(w, http.StatusInternalServerError, "Server configuration error: API token is not configured", "")
		return
	}

	query.Del("proxyEndpoint")
	query.Del("localApiToken")
	query.Del("token")

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp, err := h.client.Forward(ctx, endpoint, query, token)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		response.Fail(w, http.StatusGatewayTimeout, "Request to chunirec API timed out", err.Error())
		return
	case errors.Is(err, chunirec.ErrNoToken):
		response.Fail(w, http.StatusInternalServerError, "Server configuration error: API token is not configured", "")
		return
	default:
		log.Printf("[Proxy] %s failed: %v", endpoint, err)
		response.Fail(w, http.StatusServiceUnavailable, "Failed to reach chunirec API", err.Error())
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := chunirec.ParseAPIError(resp.StatusCode, resp.Body)
		response.Fail(w, resp.StatusCode,
			fmt.Sprintf("Chunirec API Error (status %d): %s", resp.StatusCode, apiErr.Message), "")
		return
	}

	var probe json.RawMessage
	if err := json.Unmarshal(resp.Body, &probe); err != nil {
		response.Fail(w, http.StatusBadGateway, "Invalid JSON response from chunirec API", err.Error())
		return
	}
	response.Raw(w, http.StatusOK, resp.Body)
}
