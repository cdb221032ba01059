package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/labstack/echo/v4"
	"github.com/stardustagi/ChatRelay/leads"
	"github.com/stardustagi/ChatRelay/libs/option"
	"github.com/stardustagi/ChatRelay/libs/server"
	"github.com/stardustagi/ChatRelay/llm/clients"
	"github.com/stardustagi/ChatRelay/llm/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const allowedOrigin = "https://app.example.com"

var testChatConfig = ChatConfig{
	Model:            "gpt-4o-mini",
	Temperature:      0.5,
	SystemPrompt:     "You are a design assistant.",
	APIKeyConfigured: true,
}

type fakeCompleter struct {
	mu       sync.Mutex
	requests []*models.ChatRequest
	body     string
	err      error
	panics   bool
}

func (f *fakeCompleter) Complete(_ context.Context, req *models.ChatRequest) (*clients.Completion, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.panics {
		panic("completer exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &clients.Completion{Body: []byte(f.body)}, nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeSubmitter struct {
	mu  sync.Mutex
	got []leads.Lead
}

func (f *fakeSubmitter) Submit(lead leads.Lead) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, lead)
	return true
}

func (f *fakeSubmitter) submitted() []leads.Lead {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]leads.Lead(nil), f.got...)
}

func newTestServer(t *testing.T, cfg ChatConfig, completer clients.Completer, submitter LeadSubmitter) *server.HttpServer {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	opts := &option.Options{Http: option.Http{Path: "/", Address: "127.0.0.1"}}
	srv, err := server.NewHttpServer(opts, server.DefaultCorsConfig([]string{allowedOrigin}), node, zaptest.NewLogger(t))
	require.NoError(t, err)

	h := NewChatHandler(cfg, completer, submitter, zaptest.NewLogger(t))
	srv.Any("chat", h.Handle)
	srv.Get("health", NewHealthHandler())
	return srv
}

func doRequest(srv *server.HttpServer, method, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, "/api/chat", reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderOrigin, allowedOrigin)
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, req)
	return rec
}

func assertCors(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, allowedOrigin, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Values(echo.HeaderVary), echo.HeaderOrigin)
}

func TestOptionsPreflight(t *testing.T) {
	completer := &fakeCompleter{}
	srv := newTestServer(t, testChatConfig, completer, nil)

	rec := doRequest(srv, http.MethodOptions, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assertCors(t, rec)
	assert.Equal(t, "POST,OPTIONS", rec.Header().Get(echo.HeaderAccessControlAllowMethods))
	assert.Zero(t, completer.calls())
}

func TestMethodNotAllowed(t *testing.T) {
	completer := &fakeCompleter{}
	srv := newTestServer(t, testChatConfig, completer, nil)

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			rec := doRequest(srv, method, `{"messages":[]}`)
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
			assert.JSONEq(t, `{"error":"Method not allowed"}`, rec.Body.String())
			assert.Equal(t, "POST, OPTIONS", rec.Header().Get(echo.HeaderAllow))
			assertCors(t, rec)
		})
	}
	assert.Zero(t, completer.calls())
}

func TestMessagesRequired(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"empty object", `{}`},
		{"null messages", `{"messages":null}`},
		{"string messages", `{"messages":"hi"}`},
		{"object messages", `{"messages":{"role":"user","content":"hi"}}`},
		{"number messages", `{"messages":3}`},
		{"malformed json", `{"messages":[`},
		{"top level array", `[{"role":"user","content":"hi"}]`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			completer := &fakeCompleter{}
			submitter := &fakeSubmitter{}
			srv := newTestServer(t, testChatConfig, completer, submitter)

			rec := doRequest(srv, http.MethodPost, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"messages[] array is required"}`, rec.Body.String())
			assertCors(t, rec)
			assert.Zero(t, completer.calls())
			assert.Empty(t, submitter.submitted())
		})
	}
}

func TestInvalidMessageEntries(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown role", `{"messages":[{"role":"robot","content":"hi"}]}`},
		{"missing role", `{"messages":[{"content":"hi"}]}`},
		{"non string content", `{"messages":[{"role":"user","content":5}]}`},
		{"non object entry", `{"messages":["hi"]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			completer := &fakeCompleter{}
			srv := newTestServer(t, testChatConfig, completer, nil)

			rec := doRequest(srv, http.MethodPost, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"messages[] entries must have a valid role and string content"}`, rec.Body.String())
			assert.Zero(t, completer.calls())
		})
	}
}

func TestEmptyMessagesIsValid(t *testing.T) {
	completer := &fakeCompleter{body: `{"choices":[{"message":{"content":"Hi there"}}]}`}
	srv := newTestServer(t, testChatConfig, completer, nil)

	rec := doRequest(srv, http.MethodPost, `{"messages":[]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Hi there"}`, rec.Body.String())

	require.Equal(t, 1, completer.calls())
	assert.Equal(t, []models.ChatMessage{{Role: models.RoleSystem, Content: testChatConfig.SystemPrompt}},
		completer.requests[0].Messages)
}

func TestMissingAPIKey(t *testing.T) {
	upstreamHits := 0
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits++
	}))
	defer upstream.Close()

	cfg := testChatConfig
	cfg.APIKeyConfigured = false
	client := clients.NewOpenAIClient(clients.ClientConfig{BaseURL: upstream.URL}, zaptest.NewLogger(t))
	defer client.Close()
	submitter := &fakeSubmitter{}
	srv := newTestServer(t, cfg, client, submitter)

	rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"Hi"}],"lead":{"email":"a@b.com"}}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Server misconfigured: missing API key"}`, rec.Body.String())
	assert.Zero(t, upstreamHits)
	assert.Empty(t, submitter.submitted())
}

func TestMissingAPIKeyReportedByClient(t *testing.T) {
	completer := &fakeCompleter{err: clients.ErrMissingAPIKey}
	srv := newTestServer(t, testChatConfig, completer, nil)

	rec := doRequest(srv, http.MethodPost, `{"messages":[]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Server misconfigured: missing API key"}`, rec.Body.String())
}

type capturedCall struct {
	auth string
	body []byte
}

func newUpstream(t *testing.T, status int, body string) (*httptest.Server, chan capturedCall) {
	t.Helper()
	calls := make(chan capturedCall, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		calls <- capturedCall{auth: r.Header.Get("Authorization"), body: data}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func newClient(t *testing.T, baseURL string) *clients.OpenAIClient {
	t.Helper()
	client := clients.NewOpenAIClient(clients.ClientConfig{
		BaseURL: baseURL,
		APIKey:  "sk-test",
		Timeout: 2 * time.Second,
	}, zaptest.NewLogger(t))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestChatReply(t *testing.T) {
	upstream, calls := newUpstream(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"Hello! How can I help?"}}],"usage":{"total_tokens":12}}`)
	srv := newTestServer(t, testChatConfig, newClient(t, upstream.URL), nil)

	rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"Hi"}]}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Hello! How can I help?"}`, rec.Body.String())
	assertCors(t, rec)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	call := <-calls
	assert.Equal(t, "Bearer sk-test", call.auth)
	assert.JSONEq(t, `{
		"model":"gpt-4o-mini",
		"temperature":0.5,
		"messages":[
			{"role":"system","content":"You are a design assistant."},
			{"role":"user","content":"Hi"}
		]
	}`, string(call.body))
}

func TestChatPreservesHistoryOrder(t *testing.T) {
	completer := &fakeCompleter{body: `{"choices":[{"message":{"content":"ok"}}]}`}
	srv := newTestServer(t, testChatConfig, completer, nil)

	body := `{"messages":[
		{"role":"user","content":"one"},
		{"role":"assistant","content":"two"},
		{"role":"user","content":"three"}]}`
	require.Equal(t, http.StatusOK, doRequest(srv, http.MethodPost, body).Code)
	require.Equal(t, http.StatusOK, doRequest(srv, http.MethodPost, body).Code)

	require.Equal(t, 2, completer.calls())
	want := []models.ChatMessage{
		{Role: models.RoleSystem, Content: testChatConfig.SystemPrompt},
		{Role: models.RoleUser, Content: "one"},
		{Role: models.RoleAssistant, Content: "two"},
		{Role: models.RoleUser, Content: "three"},
	}
	assert.Equal(t, want, completer.requests[0].Messages)
	assert.Equal(t, completer.requests[0], completer.requests[1])
}

func TestChatPayloadIsIdempotent(t *testing.T) {
	completer := &fakeCompleter{body: `{"choices":[{"message":{"content":"ok"}}]}`}
	srv := newTestServer(t, testChatConfig, completer, nil)

	body := `{"messages":[{"role":"user","content":"I need a kitchen redesign"},{"role":"assistant","content":"What size is it?"}]}`
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, doRequest(srv, http.MethodPost, body).Code)
	}

	require.Equal(t, 2, completer.calls())
	assert.Equal(t, completer.requests[0], completer.requests[1])
	for _, req := range completer.requests {
		require.Len(t, req.Messages, 3)
		assert.Equal(t, models.RoleSystem, req.Messages[0].Role)
		assert.Equal(t, testChatConfig.SystemPrompt, req.Messages[0].Content)
	}
}

func TestMessageExtraFieldsAreDropped(t *testing.T) {
	completer := &fakeCompleter{body: `{"choices":[{"message":{"content":"ok"}}]}`}
	srv := newTestServer(t, testChatConfig, completer, nil)

	rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"hi","name":"ann"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, completer.calls())

	data, err := json.Marshal(completer.requests[0].Messages[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"user","content":"hi"}`, string(data))
}

func TestFallbackReply(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no choices", `{}`},
		{"empty choices", `{"choices":[]}`},
		{"null content", `{"choices":[{"message":{"content":null}}]}`},
		{"blank content", `{"choices":[{"message":{"content":"   "}}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			upstream, _ := newUpstream(t, http.StatusOK, tc.body)
			srv := newTestServer(t, testChatConfig, newClient(t, upstream.URL), nil)

			rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"Hi"}]}`)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `{"reply":"Sorry, I couldn't generate a response."}`, rec.Body.String())
		})
	}
}

func TestUpstreamFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"json error body", http.StatusTooManyRequests, `{"error":{"message":"Rate limit reached"}}`},
		{"text error body", http.StatusInternalServerError, `upstream crashed`},
		{"empty error body", http.StatusServiceUnavailable, ``},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"Incorrect API key provided: sk-test"}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			upstream, _ := newUpstream(t, tc.status, tc.body)
			srv := newTestServer(t, testChatConfig, newClient(t, upstream.URL), nil)

			rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"Hi"}]}`)
			assert.Equal(t, http.StatusBadGateway, rec.Code)

			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "Upstream model error", resp["error"])
			assert.Equal(t, float64(tc.status), resp["status"])
			assert.Len(t, resp, 2)
			assert.NotContains(t, rec.Body.String(), "sk-test")
			assertCors(t, rec)
		})
	}
}

func TestUpstreamUnreachable(t *testing.T) {
	srv := newTestServer(t, testChatConfig, newClient(t, "http://127.0.0.1:1"), nil)

	rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"Hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.JSONEq(t, `{"error":"Upstream model error","status":0}`, rec.Body.String())
}

func TestUnexpectedCompleterError(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("something odd")}
	srv := newTestServer(t, testChatConfig, completer, nil)

	rec := doRequest(srv, http.MethodPost, `{"messages":[]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
}

func TestPanicBecomesInternalError(t *testing.T) {
	completer := &fakeCompleter{panics: true}
	srv := newTestServer(t, testChatConfig, completer, nil)

	rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"Hi"}]}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assertCors(t, rec)
}

func TestLeadSubmission(t *testing.T) {
	tests := []struct {
		name string
		lead string
		want []leads.Lead
	}{
		{"email", `{"email":"a@b.com","name":"Ann"}`, []leads.Lead{{"email": "a@b.com", "name": "Ann"}}},
		{"phone", `{"phone":"+1 555 0100"}`, []leads.Lead{{"phone": "+1 555 0100"}}},
		{"no contact", `{"name":"Ann"}`, nil},
		{"empty email", `{"email":""}`, nil},
		{"not an object", `"a@b.com"`, nil},
		{"null", `null`, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			completer := &fakeCompleter{body: `{"choices":[{"message":{"content":"ok"}}]}`}
			submitter := &fakeSubmitter{}
			srv := newTestServer(t, testChatConfig, completer, submitter)

			rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"Hi"}],"lead":`+tc.lead+`}`)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.want, submitter.submitted())
			assert.Equal(t, 1, completer.calls())
		})
	}
}

func TestLeadWebhookFailureIsIsolated(t *testing.T) {
	hook := leads.NewWebhookSink("http://127.0.0.1:1/hook", "secret", time.Second)
	defer hook.Close()
	relay := leads.NewRelay(leads.RelayConfig{Workers: 1, QueueSize: 4, Timeout: time.Second}, zaptest.NewLogger(t), hook)

	upstream, _ := newUpstream(t, http.StatusOK, `{"choices":[{"message":{"content":"Hello! How can I help?"}}]}`)
	srv := newTestServer(t, testChatConfig, newClient(t, upstream.URL), relay)

	rec := doRequest(srv, http.MethodPost, `{"messages":[{"role":"user","content":"Hi"}],"lead":{"email":"a@b.com"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reply":"Hello! How can I help?"}`, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, relay.Close(ctx))
}

func TestLeadWebhookReceivesLead(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
	}))
	defer webhook.Close()

	hook := leads.NewWebhookSink(webhook.URL, "", time.Second)
	defer hook.Close()
	relay := leads.NewRelay(leads.RelayConfig{Workers: 1, QueueSize: 4, Timeout: time.Second}, zaptest.NewLogger(t), hook)

	completer := &fakeCompleter{body: `{"choices":[{"message":{"content":"ok"}}]}`}
	srv := newTestServer(t, testChatConfig, completer, relay)
	rec := doRequest(srv, http.MethodPost, `{"messages":[],"lead":{"phone":"555","room":"kitchen"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case body := <-received:
		assert.Equal(t, "555", body["phone"])
		assert.Equal(t, "kitchen", body["room"])
		assert.NotZero(t, body["ts"])
	case <-time.After(3 * time.Second):
		t.Fatal("webhook was not called")
	}
	require.NoError(t, relay.Close(context.Background()))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, testChatConfig, &fakeCompleter{}, nil)

	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
