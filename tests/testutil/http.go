package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/retail/ledger/internal/interfaces/http/dto"
	"github.com/retail/ledger/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Envelope is the API response envelope with a typed payload
type Envelope[T any] struct {
	Success bool           `json:"success"`
	Data    T              `json:"data"`
	Error   *dto.ErrorInfo `json:"error"`
	Meta    *dto.Meta      `json:"meta"`
}

// APIClient sends requests to an http.Handler as one tenant and cashier
type APIClient struct {
	Handler  http.Handler
	TenantID uuid.UUID
	ActorID  uuid.UUID
	Prefix   string
}

// NewAPIClient creates a client for the /api/v1 routes of handler
func NewAPIClient(handler http.Handler, tenantID, actorID uuid.UUID) *APIClient {
	return &APIClient{Handler: handler, TenantID: tenantID, ActorID: actorID, Prefix: "/api/v1"}
}

// ForTenant returns a copy of the client acting for another tenant
func (c *APIClient) ForTenant(tenantID uuid.UUID) *APIClient {
	copied := *c
	copied.TenantID = tenantID
	return &copied
}

// Do sends body as JSON (when not nil) and returns the recorded response.
func (c *APIClient) Do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		reader = ToJSONReader(t, body)
	}
	req := httptest.NewRequest(method, c.Prefix+path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.TenantID != uuid.Nil {
		req.Header.Set(middleware.TenantHeader, c.TenantID.String())
	}
	if c.ActorID != uuid.Nil {
		req.Header.Set(middleware.ActorHeader, c.ActorID.String())
	}

	w := httptest.NewRecorder()
	c.Handler.ServeHTTP(w, req)
	return w
}

// DoAs sends a request, requires the expected status and decodes the payload
func DoAs[T any](t *testing.T, c *APIClient, method, path string, body any, expectedStatus int) T {
	t.Helper()

	w := c.Do(t, method, path, body)
	require.Equal(t, expectedStatus, w.Code, "Unexpected status code: %s", w.Body.String())
	env := DecodeEnvelope[T](t, w)
	require.True(t, env.Success, "Expected success to be true")
	return env.Data
}

// DecodeEnvelope parses the response body into an Envelope
func DecodeEnvelope[T any](t *testing.T, w *httptest.ResponseRecorder) Envelope[T] {
	t.Helper()

	var env Envelope[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "Failed to parse JSON response")
	return env
}

// AssertErrorResponse asserts the response is an error API response with the given status and code.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	t.Helper()

	assert.Equal(t, expectedStatus, w.Code, "Unexpected status code: %s", w.Body.String())
	env := DecodeEnvelope[json.RawMessage](t, w)
	assert.False(t, env.Success, "Expected success to be false")
	require.NotNil(t, env.Error, "Expected error object in response")
	assert.Equal(t, expectedCode, env.Error.Code, "Unexpected error code")
}

// ToJSONReader converts a value to a JSON io.Reader.
func ToJSONReader(t *testing.T, v any) io.Reader {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err, "Failed to marshal to JSON")
	return bytes.NewReader(data)
}
