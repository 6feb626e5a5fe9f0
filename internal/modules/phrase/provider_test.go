package phrase

import (
	"context"
	"errors"
	"testing"

	appcfg "github.com/hanziloop/core/internal/config"
	"go.uber.org/zap"
)

type stubTransport struct {
	name  string
	raw   string
	err   error
	calls int
}

func (s *stubTransport) Name() string { return s.name }

func (s *stubTransport) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.raw, nil
}

func testClient(primary, fallback transport) *Client {
	return &Client{
		provider: &appcfg.AIProvider{ID: "test", Type: "openai", DefaultModel: "test-model", Enabled: true},
		primary:  primary,
		fallback: fallback,
		logger:   zap.NewNop(),
	}
}

func TestClient_PrimaryServesWhenHealthy(t *testing.T) {
	primary := &stubTransport{name: "assistant", raw: validPayload}
	fallback := &stubTransport{name: "chat", raw: validPayload}
	c := testClient(primary, fallback)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	res, err := c.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if primary.calls != 1 || fallback.calls != 0 {
		t.Fatalf("calls primary=%d fallback=%d, want 1/0", primary.calls, fallback.calls)
	}
	if len(res.Items) != 1 || res.ModelUsed != "test-model" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestClient_FallbackTriedExactlyOnce(t *testing.T) {
	primary := &stubTransport{name: "assistant", err: errors.New("run did not complete")}
	fallback := &stubTransport{name: "chat", raw: validPayload}
	c := testClient(primary, fallback)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	res, err := c.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("calls primary=%d fallback=%d, want 1/1", primary.calls, fallback.calls)
	}
	if len(res.Items) != 1 {
		t.Fatalf("fallback result not used: %+v", res)
	}
}

func TestClient_BothTransportsFailing(t *testing.T) {
	primary := &stubTransport{name: "assistant", err: errors.New("down")}
	fallback := &stubTransport{name: "chat", err: errors.New("also down")}
	c := testClient(primary, fallback)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	_, err := c.Generate(context.Background(), req, nil)
	if !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback calls = %d, want exactly 1", fallback.calls)
	}
}

func TestClient_NoPrimaryGoesStraightToFallback(t *testing.T) {
	fallback := &stubTransport{name: "chat", raw: validPayload}
	c := testClient(nil, fallback)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	if _, err := c.Generate(context.Background(), req, nil); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fallback.calls)
	}
}

func TestClient_DropsMalformedItemsIndividually(t *testing.T) {
	raw := `{"phrases":[
		{"text":"你好","translation":"hello","pinyin_marked":"nǐ hǎo","pinyin_numbered":"ni3 hao3","level_confidence":0.9,"length":2},
		{"text":"","translation":"empty","pinyin_marked":"x","pinyin_numbered":"x1","level_confidence":0.9,"length":0}
	]}`
	fallback := &stubTransport{name: "chat", raw: raw}
	c := testClient(nil, fallback)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	res, err := c.Generate(context.Background(), req, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Text != "你好" {
		t.Fatalf("malformed item not dropped: %+v", res.Items)
	}
}

func TestClient_UndecodableResponseIsUnavailable(t *testing.T) {
	fallback := &stubTransport{name: "chat", raw: "I refuse to answer in JSON."}
	c := testClient(nil, fallback)

	req := mustReq(t, RawPhraseRequest{LevelSystem: "hsk", LevelValue: 1, Type: "phrase"})
	if _, err := c.Generate(context.Background(), req, nil); !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("expected ErrGenerationUnavailable, got %v", err)
	}
}

func TestNewClient_TransportSelection(t *testing.T) {
	phraseCfg := appcfg.PhraseConfig{PollSeconds: 60}

	withAssistant := appcfg.AIConfig{Providers: []appcfg.AIProvider{
		{ID: "a", Type: "openai", APIKey: "k", AssistantID: "asst_1", Enabled: true},
	}}
	c, err := NewClient(withAssistant, phraseCfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.primary == nil {
		t.Fatal("assistant-configured provider must get a primary transport")
	}

	chatOnly := appcfg.AIConfig{Providers: []appcfg.AIProvider{
		{ID: "b", Type: "anthropic", APIKey: "k", AssistantID: "asst_ignored", Enabled: true},
	}}
	c, err = NewClient(chatOnly, phraseCfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if c.primary != nil {
		t.Fatal("anthropic providers have no assistant-session path")
	}

	disabled := appcfg.AIConfig{Providers: []appcfg.AIProvider{
		{ID: "c", Type: "openai", APIKey: "k", Enabled: false},
	}}
	if _, err := NewClient(disabled, phraseCfg, zap.NewNop()); err == nil {
		t.Fatal("expected an error with no enabled provider")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	cases := map[string]string{
		"":                             "https://api.openai.com",
		"https://api.openai.com/v1":    "https://api.openai.com",
		"https://api.openai.com/v1/":   "https://api.openai.com",
		"https://proxy.example.com///": "https://proxy.example.com",
	}
	for in, want := range cases {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
