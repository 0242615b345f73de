package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosense-ai/cosense-gateway/internal/adapters"
	"github.com/cosense-ai/cosense-gateway/internal/completion"
	"github.com/cosense-ai/cosense-gateway/internal/errs"
	"github.com/cosense-ai/cosense-gateway/internal/monitoring"
	"github.com/cosense-ai/cosense-gateway/internal/router"
	"github.com/cosense-ai/cosense-gateway/internal/settings"
)

// fakeCompleter records calls and returns a canned result.
type fakeCompleter struct {
	mu     sync.Mutex
	calls  []completion.Params
	text   string
	err    error
	panics bool
}

func (f *fakeCompleter) Complete(_ context.Context, p completion.Params) (*completion.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("boom")
	}
	f.calls = append(f.calls, p)
	if f.err != nil {
		return nil, f.err
	}
	return &completion.Result{Text: f.text, Provider: p.Provider, Model: p.Model, Variant: "choices.message.content"}, nil
}

func (f *fakeCompleter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// newRouter builds a router over an in-memory store seeded with s.
func newRouter(t *testing.T, s *settings.Settings, c router.Completer) (*router.Router, *settings.Service) {
	t.Helper()
	repo := settings.NewMemoryRepository()
	if s != nil {
		require.NoError(t, repo.Save(context.Background(), s))
	}
	svc := settings.NewService(repo)
	return router.New(router.Deps{Settings: svc, Completer: c}), svc
}

func scenarioSettings() *settings.Settings {
	s := settings.Defaults()
	s.APIProvider = settings.ProviderOpenAI
	s.OpenAIKey = "sk-test"
	s.OpenAIModel = "gpt-4o-mini"
	s.FormatPrompt = ""
	s.Prompts = []settings.Prompt{{ID: "p1", Name: "要約", SystemPrompt: "Summarize: {{text}}"}}
	return s
}

// =============================================================================
// END-TO-END: PROCESS_PROMPT against a mocked OpenAI endpoint
// =============================================================================

func TestRouter_ProcessPrompt_EndToEnd(t *testing.T) {
	var gotBody map[string]any
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"short summary"}}]}`))
	}))
	defer srv.Close()

	client := completion.NewClient(completion.Options{OpenAIEndpoint: srv.URL})
	r, _ := newRouter(t, scenarioSettings(), client)

	env := r.HandleJSON(context.Background(), []byte(`{"type":"PROCESS_PROMPT","promptId":"p1","selectedText":"long text"}`))

	require.True(t, env.Success, env.Error)
	assert.Equal(t, "short summary", env.Result)
	assert.Equal(t, "要約", env.PromptName)
	assert.Equal(t, settings.InsertBelow, env.InsertPosition)
	assert.Equal(t, int32(1), calls.Load())

	assert.Equal(t, "gpt-4o-mini", gotBody["model"])
	msgs := gotBody["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Summarize:", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "long text", msgs[1].(map[string]any)["content"])

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"result":"short summary","promptName":"要約","insertPosition":"below"}`, string(raw))
}

// =============================================================================
// PROCESS_PROMPT - failures
// =============================================================================

func TestRouter_ProcessPrompt_UnknownPrompt(t *testing.T) {
	fake := &fakeCompleter{text: "x"}
	r, _ := newRouter(t, scenarioSettings(), fake)

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeProcessPrompt, PromptID: "nope", SelectedText: "t"})

	assert.False(t, env.Success)
	assert.Equal(t, "prompt not found: nope", env.Error)
	assert.Equal(t, errs.KindLookup, env.ErrorKind)
	assert.Zero(t, fake.count())
}

func TestRouter_ProcessPrompt_WhitespaceKey(t *testing.T) {
	s := scenarioSettings()
	s.OpenAIKey = "   "
	fake := &fakeCompleter{text: "x"}
	r, _ := newRouter(t, s, fake)

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeProcessPrompt, PromptID: "p1", SelectedText: "t"})

	assert.False(t, env.Success)
	assert.Equal(t, "API key for openai is not configured", env.Error)
	assert.Zero(t, fake.count())
}

func TestRouter_ProcessPrompt_EmptySelection(t *testing.T) {
	fake := &fakeCompleter{text: "x"}
	r, _ := newRouter(t, scenarioSettings(), fake)

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeProcessPrompt, PromptID: "p1", SelectedText: " \n "})

	assert.False(t, env.Success)
	assert.Equal(t, "selected text is empty", env.Error)
	assert.Zero(t, fake.count())
}

func TestRouter_ProcessPrompt_PromptOverrides(t *testing.T) {
	s := scenarioSettings()
	s.OpenRouterKey = "or-key"
	s.Prompts = append(s.Prompts, settings.Prompt{
		ID:             "p2",
		Name:           "翻訳",
		Provider:       settings.ProviderOpenRouter,
		Model:          "anthropic/claude-3.5-sonnet",
		InsertPosition: settings.InsertBottom,
	})
	fake := &fakeCompleter{text: "translated"}
	r, _ := newRouter(t, s, fake)

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeProcessPrompt, PromptID: "p2", SelectedText: "こんにちは"})

	require.True(t, env.Success, env.Error)
	assert.Equal(t, settings.InsertBottom, env.InsertPosition)
	require.Equal(t, 1, fake.count())
	assert.Equal(t, settings.ProviderOpenRouter, fake.calls[0].Provider)
	assert.Equal(t, "or-key", fake.calls[0].APIKey)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", fake.calls[0].Model)
}

func TestRouter_ProcessPrompt_ProviderError(t *testing.T) {
	fake := &fakeCompleter{err: errs.Provider("openai", 429, "rate limited")}
	r, _ := newRouter(t, scenarioSettings(), fake)

	env := r.Handle(context.Background(), &router.Message{ID: "m-1", Type: router.TypeProcessPrompt, PromptID: "p1", SelectedText: "t"})

	assert.False(t, env.Success)
	assert.Equal(t, "m-1", env.ID)
	assert.Equal(t, errs.KindProvider, env.ErrorKind)
	assert.Contains(t, env.Error, "429")
}

// =============================================================================
// CREATE_CHAT_COMPLETION
// =============================================================================

func TestRouter_CreateChatCompletion_UsesStoredCredentials(t *testing.T) {
	fake := &fakeCompleter{text: "hi there"}
	r, _ := newRouter(t, scenarioSettings(), fake)

	env := r.Handle(context.Background(), &router.Message{
		Type:     router.TypeCreateChatCompletion,
		Messages: []adapters.Message{{Role: adapters.RoleUser, Content: "hi"}},
	})

	require.True(t, env.Success, env.Error)
	assert.Equal(t, "hi there", env.Result)
	assert.Equal(t, "sk-test", fake.calls[0].APIKey)
	assert.Equal(t, "gpt-4o-mini", fake.calls[0].Model)
}

func TestRouter_CreateChatCompletion_ExplicitFieldsWin(t *testing.T) {
	fake := &fakeCompleter{text: "ok"}
	r, _ := newRouter(t, scenarioSettings(), fake)

	env := r.Handle(context.Background(), &router.Message{
		Type:     router.TypeCreateChatCompletion,
		Provider: settings.ProviderOpenAI,
		APIKey:   "sk-explicit",
		Model:    "gpt-4o",
		Messages: []adapters.Message{{Role: adapters.RoleUser, Content: "hi"}},
	})

	require.True(t, env.Success, env.Error)
	assert.Equal(t, "sk-explicit", fake.calls[0].APIKey)
	assert.Equal(t, "gpt-4o", fake.calls[0].Model)
}

func TestRouter_CreateChatCompletion_NoMessages(t *testing.T) {
	fake := &fakeCompleter{}
	r, _ := newRouter(t, scenarioSettings(), fake)

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeCreateChatCompletion})

	assert.False(t, env.Success)
	assert.Equal(t, errs.KindInvalid, env.ErrorKind)
	assert.Zero(t, fake.count())
}

// =============================================================================
// SETTINGS MESSAGES
// =============================================================================

func TestRouter_GetFrontendSettings_Redacted(t *testing.T) {
	r, _ := newRouter(t, scenarioSettings(), &fakeCompleter{})

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeGetFrontendSettings})

	require.True(t, env.Success)
	fs, ok := env.Settings.(*settings.FrontendSettings)
	require.True(t, ok)
	assert.Len(t, fs.Prompts, 1)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-test")
}

func TestRouter_PromptLifecycle(t *testing.T) {
	r, svc := newRouter(t, scenarioSettings(), &fakeCompleter{})
	ctx := context.Background()

	saved := r.Handle(ctx, &router.Message{
		Type:   router.TypeSavePrompt,
		Prompt: &settings.Prompt{Name: "箇条書き", SystemPrompt: "Bullets"},
	})
	require.True(t, saved.Success, saved.Error)
	require.NotNil(t, saved.Prompt)
	id := saved.Prompt.ID
	assert.NotEmpty(t, id)

	list := r.Handle(ctx, &router.Message{Type: router.TypeGetPrompts})
	require.True(t, list.Success)
	require.NotNil(t, list.Prompts)
	require.Len(t, *list.Prompts, 2)
	assert.Equal(t, *saved.Prompt, (*list.Prompts)[1])

	deleted := r.Handle(ctx, &router.Message{Type: router.TypeDeletePrompt, PromptID: id})
	require.True(t, deleted.Success, deleted.Error)

	current, err := svc.Get(ctx)
	require.NoError(t, err)
	_, found := current.FindPrompt(id)
	assert.False(t, found)
}

func TestRouter_UpdateSettings(t *testing.T) {
	r, svc := newRouter(t, scenarioSettings(), &fakeCompleter{})
	ctx := context.Background()

	env := r.HandleJSON(ctx, []byte(`{"type":"UPDATE_SETTINGS","settings":{"insertPosition":"bottom"}}`))
	require.True(t, env.Success, env.Error)

	current, err := svc.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.InsertBottom, current.InsertPosition)
	assert.Equal(t, "sk-test", current.OpenAIKey)
	assert.Equal(t, "gpt-4o-mini", current.OpenAIModel)

	env = r.HandleJSON(ctx, []byte(`{"type":"UPDATE_SETTINGS","settings":{"insertPosition":"top"}}`))
	assert.False(t, env.Success)
	assert.Equal(t, errs.KindInvalid, env.ErrorKind)

	env = r.HandleJSON(ctx, []byte(`{"type":"UPDATE_SETTINGS","settings":null}`))
	assert.False(t, env.Success)
	assert.Equal(t, "settings are required", env.Error)
}

func TestRouter_GetPrompts_EmptyIsArray(t *testing.T) {
	s := scenarioSettings()
	s.Prompts = nil
	r, _ := newRouter(t, s, &fakeCompleter{})

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeGetPrompts})

	require.True(t, env.Success, env.Error)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"prompts":[]`)

	other, err := json.Marshal(r.Handle(context.Background(), &router.Message{Type: router.TypeGetFrontendSettings}))
	require.NoError(t, err)
	assert.NotContains(t, string(other), `"prompts":null`)
}

func TestRouter_CreateChatCompletion_RejectsUnknownRole(t *testing.T) {
	fake := &fakeCompleter{text: "ok"}
	r, _ := newRouter(t, scenarioSettings(), fake)

	env := r.Handle(context.Background(), &router.Message{
		Type: router.TypeCreateChatCompletion,
		Messages: []adapters.Message{
			{Role: adapters.RoleUser, Content: "hi"},
			{Role: "tool", Content: "x"},
		},
	})

	assert.False(t, env.Success)
	assert.Equal(t, errs.KindInvalid, env.ErrorKind)
	assert.Equal(t, `messages[1]: invalid role "tool"`, env.Error)
	assert.Zero(t, fake.count())
}

// =============================================================================
// TEST_PROVIDER
// =============================================================================

func TestRouter_TestProvider(t *testing.T) {
	fake := &fakeCompleter{text: "pong"}
	r, _ := newRouter(t, scenarioSettings(), fake)

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeTestProvider, APIKey: "sk-candidate"})

	require.True(t, env.Success, env.Error)
	require.Equal(t, 1, fake.count())
	assert.Equal(t, "sk-candidate", fake.calls[0].APIKey)
	require.NotNil(t, fake.calls[0].MaxTokens)
	assert.Equal(t, 5, *fake.calls[0].MaxTokens)
}

// =============================================================================
// PROTOCOL ROBUSTNESS
// =============================================================================

func TestRouter_UnknownType(t *testing.T) {
	r, _ := newRouter(t, nil, &fakeCompleter{})

	env := r.HandleJSON(context.Background(), []byte(`{"id":"7","type":"DO_SOMETHING"}`))

	assert.False(t, env.Success)
	assert.Equal(t, "7", env.ID)
	assert.Contains(t, env.Error, "unknown message type")
}

func TestRouter_InvalidJSON(t *testing.T) {
	r, _ := newRouter(t, nil, &fakeCompleter{})

	env := r.HandleJSON(context.Background(), []byte(`{"type":`))

	assert.False(t, env.Success)
	assert.Equal(t, errs.KindInvalid, env.ErrorKind)
}

func TestRouter_RecoversPanic(t *testing.T) {
	fake := &fakeCompleter{panics: true}
	r, _ := newRouter(t, scenarioSettings(), fake)

	var env router.Envelope
	require.NotPanics(t, func() {
		env = r.Handle(context.Background(), &router.Message{ID: "p", Type: router.TypeProcessPrompt, PromptID: "p1", SelectedText: "t"})
	})

	assert.False(t, env.Success)
	assert.Equal(t, "p", env.ID)
	assert.Contains(t, env.Error, "boom")
	assert.Equal(t, errs.KindInternal, env.ErrorKind)
}

func TestRouter_ConcurrentMessages(t *testing.T) {
	fake := &fakeCompleter{text: "ok"}
	r, _ := newRouter(t, scenarioSettings(), fake)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env := r.Handle(context.Background(), &router.Message{Type: router.TypeProcessPrompt, PromptID: "p1", SelectedText: "t"})
			assert.True(t, env.Success)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, fake.count())
	assert.Equal(t, int64(20), r.Metrics().Stats()["requests"])
}

// =============================================================================
// TELEMETRY
// =============================================================================

func TestRouter_TelemetryRecordsCompletion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.jsonl")
	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{Enabled: true, LogPath: path})
	require.NoError(t, err)

	repo := settings.NewMemoryRepository()
	require.NoError(t, repo.Save(context.Background(), scenarioSettings()))
	r := router.New(router.Deps{
		Settings:  settings.NewService(repo),
		Completer: &fakeCompleter{text: "short summary"},
		Tracker:   tracker,
	})

	env := r.Handle(context.Background(), &router.Message{Type: router.TypeProcessPrompt, PromptID: "p1", SelectedText: "long text"})
	require.True(t, env.Success)
	assert.Equal(t, 1, tracker.Count())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var event monitoring.CompletionEvent
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "openai", event.Provider)
	assert.Equal(t, "p1", event.PromptID)
	assert.True(t, event.Success)
	assert.Greater(t, event.InputTokens, 0)
	assert.True(t, event.TokensEstimate)
}
