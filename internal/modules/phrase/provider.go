package phrase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	appcfg "github.com/hanziloop/core/internal/config"
	openaiclient "github.com/openai/openai-go/v2"
	openaioption "github.com/openai/openai-go/v2/option"
	jetai "go.jetify.com/ai"
	jetapi "go.jetify.com/ai/api"
	jetanthropic "go.jetify.com/ai/provider/anthropic"
	"go.uber.org/zap"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	generateMaxTokens     = 1500
	runPollInterval       = 2 * time.Second
)

// transport is one way of getting a completion out of the generation
// service. The client owns exactly two: a stateful primary and a
// stateless fallback, tried in that order, once each.
type transport interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Client adapts the external generation service to the Generator
// contract: prompt in, structured items out.
type Client struct {
	provider *appcfg.AIProvider
	primary  transport
	fallback transport
	logger   *zap.Logger
}

// NewClient picks the first enabled provider and wires its transports.
// The assistant-session transport is only available for OpenAI-shaped
// providers configured with an assistant id; otherwise the stateless
// transport serves alone.
func NewClient(cfg appcfg.AIConfig, phraseCfg appcfg.PhraseConfig, logger *zap.Logger) (*Client, error) {
	provider := selectProvider(cfg)
	if provider == nil {
		return nil, errors.New("no enabled AI provider configured")
	}

	c := &Client{
		provider: provider,
		fallback: newChatTransport(provider),
		logger:   logger.Named("GenerationClient"),
	}
	if provider.AssistantID != "" && !isAnthropicProviderType(provider.Type) {
		c.primary = &assistantTransport{
			provider:    provider,
			pollCeiling: time.Duration(phraseCfg.PollSeconds) * time.Second,
			httpClient:  &http.Client{Timeout: 30 * time.Second},
		}
	}
	return c, nil
}

// Generate builds the prompt, runs the transports, and parses the
// response into structurally-valid items. Malformed items fail
// individually; only a total transport failure is fatal.
func (c *Client) Generate(ctx context.Context, req CanonicalPhraseRequest, existingPhrases []string) (*GenerationResult, error) {
	systemPrompt, prompt := buildPhrasePrompt(req, existingPhrases)
	started := time.Now()

	raw, usedTransport, err := c.complete(ctx, systemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	payload, err := parseGenerationResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	items := make([]GeneratedPhrase, 0, len(payload.Phrases))
	for i := range payload.Phrases {
		item := payload.Phrases[i]
		if err := checkItemStructure(&item); err != nil {
			c.logger.Warn("discarding malformed generation item",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	c.logger.Info("generation complete",
		zap.String("transport", usedTransport),
		zap.Int("returned", len(payload.Phrases)),
		zap.Int("structurally_valid", len(items)),
		zap.Duration("took", time.Since(started)))

	return &GenerationResult{
		Items:            items,
		ModelUsed:        c.modelID(),
		GenerationTimeMs: time.Since(started).Milliseconds(),
	}, nil
}

// complete tries the primary transport, then falls back exactly once.
func (c *Client) complete(ctx context.Context, systemPrompt, prompt string) (string, string, error) {
	if c.primary != nil {
		raw, err := c.primary.Complete(ctx, systemPrompt, prompt)
		if err == nil {
			return raw, c.primary.Name(), nil
		}
		c.logger.Warn("primary transport failed, falling back",
			zap.String("transport", c.primary.Name()), zap.Error(err))
	}
	raw, err := c.fallback.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		return "", "", err
	}
	return raw, c.fallback.Name(), nil
}

func (c *Client) modelID() string {
	model := strings.TrimSpace(c.provider.DefaultModel)
	if model != "" {
		return model
	}
	if isAnthropicProviderType(c.provider.Type) {
		return defaultAnthropicModel
	}
	return defaultOpenAIModel
}

func selectProvider(cfg appcfg.AIConfig) *appcfg.AIProvider {
	for _, provider := range cfg.Providers {
		if !provider.Enabled {
			continue
		}
		selected := provider
		return &selected
	}
	return nil
}

func isAnthropicProviderType(raw string) bool {
	return strings.ToLower(strings.TrimSpace(raw)) == "anthropic"
}

// assistantTransport is the stateful primary path: create a thread,
// post the prompt, start a run, poll it up to a hard ceiling, then read
// the last message. Any step failing fails the transport as a whole.
type assistantTransport struct {
	provider    *appcfg.AIProvider
	pollCeiling time.Duration
	httpClient  *http.Client
}

func (t *assistantTransport) Name() string { return "assistant" }

func (t *assistantTransport) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	threadID, err := t.createThread(ctx)
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	if err := t.postMessage(ctx, threadID, systemPrompt+"\n\n"+prompt); err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	runID, err := t.startRun(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	if err := t.waitForRun(ctx, threadID, runID); err != nil {
		return "", err
	}
	return t.readLastMessage(ctx, threadID)
}

func (t *assistantTransport) createThread(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := t.call(ctx, http.MethodPost, "/v1/threads", map[string]interface{}{}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("thread id missing in response")
	}
	return resp.ID, nil
}

func (t *assistantTransport) postMessage(ctx context.Context, threadID, content string) error {
	body := map[string]interface{}{"role": "user", "content": content}
	return t.call(ctx, http.MethodPost, "/v1/threads/"+threadID+"/messages", body, nil)
}

func (t *assistantTransport) startRun(ctx context.Context, threadID string) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]interface{}{"assistant_id": t.provider.AssistantID}
	if err := t.call(ctx, http.MethodPost, "/v1/threads/"+threadID+"/runs", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("run id missing in response")
	}
	return resp.ID, nil
}

// waitForRun polls until the run completes or the ceiling elapses.
// The ceiling is a hard bound: past it the attempt counts as failed.
func (t *assistantTransport) waitForRun(ctx context.Context, threadID, runID string) error {
	deadline := time.Now().Add(t.pollCeiling)
	for {
		var resp struct {
			Status    string `json:"status"`
			LastError *struct {
				Message string `json:"message"`
			} `json:"last_error"`
		}
		if err := t.call(ctx, http.MethodGet, "/v1/threads/"+threadID+"/runs/"+runID, nil, &resp); err != nil {
			return fmt.Errorf("poll run: %w", err)
		}
		switch resp.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired":
			msg := resp.Status
			if resp.LastError != nil && resp.LastError.Message != "" {
				msg = resp.LastError.Message
			}
			return fmt.Errorf("run ended: %s", msg)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("run did not complete within %s", t.pollCeiling)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(runPollInterval):
		}
	}
}

func (t *assistantTransport) readLastMessage(ctx context.Context, threadID string) (string, error) {
	var resp struct {
		Data []struct {
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	if err := t.call(ctx, http.MethodGet, "/v1/threads/"+threadID+"/messages?limit=1&order=desc", nil, &resp); err != nil {
		return "", fmt.Errorf("read messages: %w", err)
	}
	if len(resp.Data) == 0 {
		return "", errors.New("no messages in thread")
	}
	var full strings.Builder
	for _, block := range resp.Data[0].Content {
		if block.Type != "text" || block.Text.Value == "" {
			continue
		}
		full.WriteString(block.Text.Value)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from assistant")
	}
	return text, nil
}

func (t *assistantTransport) call(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	endpoint := normalizeEndpoint(t.provider.Endpoint)

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(t.provider.APIKey))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("assistant api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// chatTransport is the stateless fallback: one call, same prompt.
type chatTransport struct {
	provider *appcfg.AIProvider
}

func newChatTransport(provider *appcfg.AIProvider) *chatTransport {
	return &chatTransport{provider: provider}
}

func (t *chatTransport) Name() string { return "chat" }

func (t *chatTransport) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	if strings.TrimSpace(t.provider.APIKey) == "" {
		return "", errors.New("AI provider api key is empty")
	}
	if isAnthropicProviderType(t.provider.Type) {
		return t.completeAnthropic(ctx, systemPrompt, prompt)
	}
	return t.completeOpenAI(ctx, systemPrompt, prompt)
}

func (t *chatTransport) completeOpenAI(ctx context.Context, systemPrompt, prompt string) (string, error) {
	model := strings.TrimSpace(t.provider.DefaultModel)
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(strings.TrimSpace(t.provider.APIKey)),
		openaioption.WithMaxRetries(0),
	}
	if strings.TrimSpace(t.provider.Endpoint) != "" {
		opts = append(opts, openaioption.WithBaseURL(normalizeEndpoint(t.provider.Endpoint)+"/v1"))
	}
	client := openaiclient.NewClient(opts...)

	resp, err := client.Chat.Completions.New(ctx, openaiclient.ChatCompletionNewParams{
		Model: openaiclient.ChatModel(model),
		Messages: []openaiclient.ChatCompletionMessageParamUnion{
			openaiclient.SystemMessage(systemPrompt),
			openaiclient.UserMessage(prompt),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("empty response from AI")
	}
	return resp.Choices[0].Message.Content, nil
}

func (t *chatTransport) completeAnthropic(ctx context.Context, systemPrompt, prompt string) (string, error) {
	model := strings.TrimSpace(t.provider.DefaultModel)
	if model == "" {
		model = defaultAnthropicModel
	}

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(t.provider.APIKey)),
		anthropicoption.WithMaxRetries(0),
	}
	if strings.TrimSpace(t.provider.Endpoint) != "" {
		opts = append(opts, anthropicoption.WithBaseURL(normalizeEndpoint(t.provider.Endpoint)))
	}
	client := anthropicclient.NewClient(opts...)
	languageModel := jetanthropic.NewLanguageModel(model, jetanthropic.WithClient(client))

	resp, err := jetai.GenerateText(ctx,
		[]jetapi.Message{
			&jetapi.SystemMessage{Content: systemPrompt},
			&jetapi.UserMessage{Content: jetapi.ContentFromText(prompt)},
		},
		jetai.WithModel(languageModel),
		jetai.WithMaxOutputTokens(generateMaxTokens),
	)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for _, block := range resp.Content {
		textBlock, ok := block.(*jetapi.TextBlock)
		if !ok || textBlock.Text == "" {
			continue
		}
		full.WriteString(textBlock.Text)
	}
	text := full.String()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from AI")
	}
	return text, nil
}

// normalizeEndpoint trims the endpoint down to a bare scheme://host
// base; transports append their own /v1 paths.
func normalizeEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://api.openai.com"
	}
	base = strings.TrimRight(base, "/")
	base = strings.TrimSuffix(base, "/v1")
	return strings.TrimRight(base, "/")
}
