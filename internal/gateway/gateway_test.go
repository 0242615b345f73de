package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosense-ai/cosense-gateway/internal/completion"
	"github.com/cosense-ai/cosense-gateway/internal/config"
	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/gateway"
	"github.com/cosense-ai/cosense-gateway/internal/router"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

type stubCompleter struct{ text string }

func (s stubCompleter) Complete(_ context.Context, p completion.Params) (*completion.Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &completion.Result{Text: s.text, Provider: p.Provider, Model: p.Model}, nil
}

const (
	extensionID     = "abcdefghijklmnopabcdefghijklmnop"
	extensionOrigin = "chrome-extension://" + extensionID
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:           18181,
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   5 * time.Second,
			ExtensionIDs:   []string{extensionID},
			AllowedOrigins: []string{"https://scrapbox.io"},
		},
		Store: config.StoreConfig{Type: config.StoreMemory},
	}
}

// newTestServer starts the gateway handler over an in-memory store.
func newTestServer(t *testing.T) (*httptest.Server, *settings.Service) {
	t.Helper()
	repo := settings.NewMemoryRepository()
	s := settings.Defaults()
	s.OpenAIKey = "sk-test"
	s.OpenAIModel = "gpt-4o-mini"
	require.NoError(t, repo.Save(context.Background(), s))

	svc := settings.NewService(repo)
	r := router.New(router.Deps{Settings: svc, Completer: stubCompleter{text: "short summary"}})
	g := gateway.New(testConfig(), gateway.Deps{Router: r, Settings: svc})

	srv := httptest.NewServer(g.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = g.Shutdown(ctx)
		srv.Close()
	})
	return srv, svc
}

// post sends body with the given Origin and Content-Type and returns the raw response body.
func post(t *testing.T, srv *httptest.Server, origin, contentType, body string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/v1/message", strings.NewReader(body))
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.String()
}

func postMessage(t *testing.T, srv *httptest.Server, body string) (*http.Response, router.Envelope) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/message", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var env router.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

// =============================================================================
// HTTP
// =============================================================================

func TestGateway_ProcessPrompt(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := postMessage(t, srv, `{"type":"PROCESS_PROMPT","promptId":"summarize","selectedText":"long text"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(gateway.HeaderRequestID))
	require.True(t, env.Success, env.Error)
	assert.Equal(t, "short summary", env.Result)
	assert.Equal(t, "要約", env.PromptName)
	assert.Equal(t, settings.InsertBelow, env.InsertPosition)
}

func TestGateway_FailureIsEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, env := postMessage(t, srv, `{"type":"PROCESS_PROMPT","promptId":"missing","selectedText":"x"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, env.Success)
	assert.Equal(t, "prompt not found: missing", env.Error)
}

func TestGateway_FrontendSettingsHaveNoKeys(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/message", "application/json", strings.NewReader(`{"type":"GET_FRONTEND_SETTINGS"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"success":true`)
	assert.NotContains(t, buf.String(), "sk-test")
}

func TestGateway_BodyTooLarge(t *testing.T) {
	srv, _ := newTestServer(t)

	big := `{"type":"PROCESS_PROMPT","promptId":"summarize","selectedText":"` + strings.Repeat("a", gateway.MaxRequestBodySize) + `"}`
	resp, env := postMessage(t, srv, big)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.False(t, env.Success)
}

func TestGateway_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/v1/message")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestGateway_HealthAndStats(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	postMessage(t, srv, `{"type":"GET_PROMPTS"}`)

	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats map[string]int64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats["requests"])
}

// =============================================================================
// CORS
// =============================================================================

func TestGateway_CORS(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{extensionOrigin, true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"http://[::1]:8080", true},
		{"https://scrapbox.io", true},
		{"https://evil.example.com", false},
		{"http://localhost.evil.example", false},
		{"http://127.0.0.1.nip.io", false},
		{"https://scrapbox.io.evil.example", false},
		{"chrome-extension://someotherextensionidxxxxxxxxxxxxx", false},
		{"null", false},
	}
	for _, tt := range tests {
		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/message", nil)
		require.NoError(t, err)
		req.Header.Set("Origin", tt.origin)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		if tt.allowed {
			assert.Equal(t, tt.origin, resp.Header.Get("Access-Control-Allow-Origin"), tt.origin)
		} else {
			assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"), tt.origin)
		}
	}
}

// =============================================================================
// ORIGIN AND CONTENT TYPE
// =============================================================================

func TestGateway_RejectsForeignOriginPost(t *testing.T) {
	srv, svc := newTestServer(t)
	update := `{"type":"UPDATE_SETTINGS","settings":{"apiProvider":"local","localEndpoint":"https://evil.example/steal"}}`

	for _, origin := range []string{"https://evil.example.com", "http://localhost.evil.example"} {
		for _, ct := range []string{"application/json", "text/plain"} {
			resp, _ := post(t, srv, origin, ct, update)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode, origin+" "+ct)
		}
	}

	current, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.ProviderOpenAI, current.APIProvider)
	assert.Equal(t, "sk-test", current.OpenAIKey)
}

func TestGateway_RequiresJSONContentType(t *testing.T) {
	srv, svc := newTestServer(t)
	update := `{"type":"UPDATE_SETTINGS","settings":{"apiProvider":"local"}}`

	for _, ct := range []string{"", "text/plain", "application/x-www-form-urlencoded", "multipart/form-data; boundary=x"} {
		resp, _ := post(t, srv, "", ct, update)
		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode, ct)
	}

	resp, body := post(t, srv, "", "application/json; charset=utf-8", `{"type":"GET_PROMPTS"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"success":true`)

	current, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, settings.ProviderOpenAI, current.APIProvider)
}

func TestGateway_PrivilegedMessagesNeedExtension(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name   string
		origin string
		body   string
		status int
		keys   bool
	}{
		{"page cannot read keys", "https://scrapbox.io", `{"type":"GET_SETTINGS"}`, http.StatusForbidden, false},
		{"loopback page cannot read keys", "http://localhost:3000", `{"type":"GET_SETTINGS"}`, http.StatusForbidden, false},
		{"page cannot update", "https://scrapbox.io", `{"type":"UPDATE_SETTINGS","settings":{"insertPosition":"bottom"}}`, http.StatusForbidden, false},
		{"page cannot test provider", "https://scrapbox.io", `{"type":"TEST_PROVIDER"}`, http.StatusForbidden, false},
		{"duplicate type key", "https://scrapbox.io", `{"type":"GET_PROMPTS","type":"GET_SETTINGS"}`, http.StatusForbidden, false},
		{"page runs prompts", "https://scrapbox.io", `{"type":"PROCESS_PROMPT","promptId":"summarize","selectedText":"x"}`, http.StatusOK, false},
		{"extension reads keys", extensionOrigin, `{"type":"GET_SETTINGS"}`, http.StatusOK, true},
		{"local process reads keys", "", `{"type":"GET_SETTINGS"}`, http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, srv, tt.origin, "application/json", tt.body)

			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.keys {
				assert.Contains(t, body, "sk-test")
			} else {
				assert.NotContains(t, body, "sk-test")
			}
			if tt.status == http.StatusForbidden {
				assert.Contains(t, body, `"errorKind":"forbidden"`)
			}
		})
	}
}

// =============================================================================
// PORT
// =============================================================================

func dialPort(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/v1/port", &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{origin}},
	})
}

func TestPort_EchoesID(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _, err := dialPort(t, srv, extensionOrigin)
	require.NoError(t, err)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{
		"id": "req-1", "type": "PROCESS_PROMPT", "promptId": "summarize", "selectedText": "long text",
	}))

	var env router.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	assert.Equal(t, "req-1", env.ID)
	assert.True(t, env.Success, env.Error)
	assert.Equal(t, "short summary", env.Result)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}

func TestPort_PushesSettingsChanged(t *testing.T) {
	srv, svc := newTestServer(t)
	conn, _, err := dialPort(t, srv, extensionOrigin)
	require.NoError(t, err)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// The subscription is registered after the handshake; a round trip
	// guarantees it is in place before writing.
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"id": "ping", "type": "GET_PROMPTS"}))
	var first router.Envelope
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.Equal(t, "ping", first.ID)

	require.NoError(t, svc.SetAPIKey(ctx, settings.ProviderOpenRouter, "or-new"))

	var raw json.RawMessage
	require.NoError(t, wsjson.Read(ctx, conn, &raw))
	assert.Contains(t, string(raw), `"type":"SETTINGS_CHANGED"`)
	assert.Contains(t, string(raw), `"prompts"`)
	assert.NotContains(t, string(raw), "or-new")
}

func TestPort_RejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, origin := range []string{
		"https://evil.example.com",
		"http://localhost.evil.example",
		"http://127.0.0.1.nip.io",
		"chrome-extension://someotherextensionidxxxxxxxxxxxxx",
	} {
		_, resp, err := dialPort(t, srv, origin)

		require.Error(t, err, origin)
		require.NotNil(t, resp, origin)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, origin)
	}
}

func TestPort_PageOriginCannotReadKeys(t *testing.T) {
	srv, _ := newTestServer(t)
	conn, _, err := dialPort(t, srv, "http://localhost:3000")
	require.NoError(t, err)
	defer conn.CloseNow()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"id": "x", "type": "GET_SETTINGS"}))
	var raw json.RawMessage
	require.NoError(t, wsjson.Read(ctx, conn, &raw))
	assert.NotContains(t, string(raw), "sk-test")

	var env router.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "x", env.ID)
	assert.False(t, env.Success)
	assert.Equal(t, errs.KindForbidden, env.ErrorKind)

	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"id": "y", "type": "GET_FRONTEND_SETTINGS"}))
	require.NoError(t, wsjson.Read(ctx, conn, &env))
	assert.Equal(t, "y", env.ID)
	assert.True(t, env.Success, env.Error)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
}
