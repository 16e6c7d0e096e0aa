package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"paystream.org/internal/auth"
	"paystream.org/internal/engine"
	"paystream.org/internal/stream"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T) *apiClient {
	t.Helper()

	t.Setenv("PAYSTREAM_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()

	api := New(ReadyProbe{}, "test", engine.New(), stream.New())
	api.rateBurst = 100
	api.ratePerSec = 100

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) post(path string, body any, headers map[string]string) *http.Response {
	c.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("do request: %v", err)
	}
	return resp
}

func (c *apiClient) get(path string, params url.Values, headers map[string]string) *http.Response {
	c.t.Helper()
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		c.t.Fatalf("parse url: %v", err)
	}
	if params != nil {
		u.RawQuery = params.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func (c *apiClient) obtainToken(user string, roles []string) string {
	c.t.Helper()
	resp := c.post("/v1/auth/token", map[string]any{
		"user":  user,
		"roles": roles,
	}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.t.Fatalf("unexpected token status: %d", resp.StatusCode)
	}
	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.t.Fatalf("decode token response: %v", err)
	}
	if payload.Token == "" {
		c.t.Fatalf("empty token issued")
	}
	return payload.Token
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func txBody(kind string, client, tx int, amount string) map[string]any {
	body := map[string]any{
		"type":   kind,
		"client": client,
		"tx":     tx,
	}
	if amount != "" {
		body["amount"] = amount
	}
	return body
}

func TestAPITransactionFlow(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"ingest"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	resp := api.post("/v1/transactions", txBody("deposit", 1, 1, "10.5"), authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	applied := decode[map[string]any](t, resp)
	if applied["status"] != "applied" {
		t.Fatalf("unexpected apply payload: %v", applied)
	}

	resp = api.post("/v1/transactions", txBody("withdrawal", 1, 2, "2.5"), authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/accounts/1", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	acc := decode[map[string]any](t, resp)
	if acc["available"] != "8" {
		t.Fatalf("unexpected available balance: %v", acc["available"])
	}
	if acc["locked"] != false {
		t.Fatalf("expected account unlocked")
	}

	// Dispute the deposit: funds move to held, total stays put.
	resp = api.post("/v1/transactions", txBody("dispute", 1, 1, ""), authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/accounts/1", nil, nil)
	acc = decode[map[string]any](t, resp)
	if acc["available"] != "-2.5" || acc["held"] != "10.5" || acc["total"] != "8" {
		t.Fatalf("unexpected balances after dispute: %v", acc)
	}

	resp = api.get("/v1/accounts", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	list := decode[listAccountsResponse](t, resp)
	if len(list.Items) != 1 {
		t.Fatalf("expected one account, got %d", len(list.Items))
	}
}

func TestAPIEngineErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"ingest"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	// Reference to a transaction never seen.
	resp := api.post("/v1/transactions", txBody("dispute", 1, 99, ""), authHeader)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["request_id"] == "" {
		t.Fatalf("expected request_id in error body")
	}

	// Seed a deposit, then replay the id.
	resp = api.post("/v1/transactions", txBody("deposit", 1, 1, "5"), authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = api.post("/v1/transactions", txBody("deposit", 1, 1, "5"), authHeader)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Overdraw.
	resp = api.post("/v1/transactions", txBody("withdrawal", 1, 2, "100"), authHeader)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Dispute then charge back: the account freezes.
	resp = api.post("/v1/transactions", txBody("dispute", 1, 1, ""), authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()
	resp = api.post("/v1/transactions", txBody("chargeback", 1, 1, ""), authHeader)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.post("/v1/transactions", txBody("deposit", 1, 3, "1"), authHeader)
	if resp.StatusCode != http.StatusLocked {
		t.Fatalf("expected 423, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = api.get("/v1/accounts/1", nil, nil)
	acc := decode[map[string]any](t, resp)
	if acc["locked"] != true {
		t.Fatalf("expected account locked after chargeback")
	}
}

func TestAPIRejectsMalformedTransactions(t *testing.T) {
	api := newTestAPI(t)
	token := api.obtainToken("demo", []string{"ingest"})
	authHeader := map[string]string{"Authorization": "Bearer " + token}

	cases := []map[string]any{
		{"type": "teleport", "client": 1, "tx": 1, "amount": "1"},
		{"type": "deposit", "client": 1, "tx": 1, "amount": "abc"},
		{"type": "deposit", "client": 1, "tx": 1},
		{"type": "deposit", "client": 1, "tx": 1, "amount": "-3"},
	}
	for _, body := range cases {
		resp := api.post("/v1/transactions", body, authHeader)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", body, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// Unknown JSON fields are rejected outright.
	resp := api.post("/v1/transactions", map[string]any{
		"type": "deposit", "client": 1, "tx": 1, "amount": "1", "extra": true,
	}, authHeader)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAPIEnforcesAuth(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/transactions", txBody("deposit", 1, 1, "1"), nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var errBody map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errBody["error"] == "" {
		t.Fatalf("expected error message")
	}

	// A valid token without the ingest role is forbidden.
	token := api.obtainToken("demo", []string{"viewer"})
	resp2 := api.post("/v1/transactions", txBody("deposit", 1, 1, "1"),
		map[string]string{"Authorization": "Bearer " + token})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp2.StatusCode)
	}
}

func TestTokenEndpointValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.post("/v1/auth/token", map[string]any{"user": ""}, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAccountLookupValidation(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/v1/accounts/9", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp = api.get("/v1/accounts/not-a-number", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = api.get("/v1/accounts/70000", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range id, got %d", resp.StatusCode)
	}
}

func TestServiceEndpoints(t *testing.T) {
	api := newTestAPI(t)

	resp := api.get("/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected healthz status: %d", resp.StatusCode)
	}
	health := decode[map[string]any](t, resp)
	if health["service"] != serviceName {
		t.Fatalf("unexpected service name: %v", health["service"])
	}

	resp = api.get("/readyz", nil, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected readyz status: %d", resp.StatusCode)
	}

	resp = api.get("/openapi.yaml", nil, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected openapi status: %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read openapi body: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte("openapi:")) {
		t.Fatalf("openapi payload missing header")
	}
}
