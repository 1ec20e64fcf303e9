package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"
	"unicode"

	"github.com/anthropics/anthropic-sdk-go"
	anthopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v2"
	oaiopt "github.com/openai/openai-go/v2/option"
	appcfg "github.com/shiv669/echo-core-go/internal/config"
	jetify "go.jetify.com/ai"
	aiapi "go.jetify.com/ai/api"
	jetanthro "go.jetify.com/ai/provider/anthropic"
	jetoai "go.jetify.com/ai/provider/openai"
)

// maxAnalysisTokens caps the structured record a provider may return. The
// record is three short lists plus one paragraph of insights.
const maxAnalysisTokens = 1024

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-haiku-4-5-20251001"
	defaultOpenAIBase     = "https://api.openai.com"
)

// Blocking chat calls get a short budget; streams run until the model stops.
var (
	chatClient       = &http.Client{Timeout: 30 * time.Second}
	chatStreamClient = &http.Client{Timeout: 60 * time.Second}
)

// normalizeProviderType folds the configured type string into a canonical
// form: lowercase, underscores as dashes, interior spaces removed.
func normalizeProviderType(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '_':
			return '-'
		case ' ':
			return -1
		}
		return unicode.ToLower(r)
	}, strings.TrimSpace(raw))
}

func providerTypeIs(s string, names ...string) bool {
	canon := normalizeProviderType(s)
	for _, name := range names {
		if canon == name {
			return true
		}
	}
	return false
}

func isOpenAICompatibleProviderType(s string) bool {
	return providerTypeIs(s, "openai-compatible", "openaicompatible")
}

func isAnthropicProviderType(s string) bool {
	return providerTypeIs(s, "anthropic")
}

func isOpenRouterProviderType(s string) bool {
	return providerTypeIs(s, "openrouter")
}

// generateAnalysis asks the provider for a structured summary of text. The
// raw response goes to the normalizer untouched; no parsing happens here.
func generateAnalysis(ctx context.Context, provider *appcfg.AIProvider, text string) (string, error) {
	return completeWithProvider(ctx, provider, "", buildAnalysisPrompt(text))
}

func completeWithProvider(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string) (string, error) {
	if provider == nil {
		return "", errors.New("missing AI provider")
	}
	switch {
	case isGeminiProviderType(provider.Type):
		return callGemini(ctx, provider, systemPrompt, prompt)
	case isOpenAICompatibleProviderType(provider.Type):
		return chatCompletionsOnce(ctx, provider, systemPrompt, prompt)
	}

	model, _, err := languageModelFor(provider)
	if err != nil {
		return "", err
	}
	return jetGenerate(ctx, model, systemPrompt, prompt)
}

// streamAnalysis is generateAnalysis with per-chunk delivery through onToken.
// Providers without streaming support fall back to one blocking call and a
// single token.
func streamAnalysis(ctx context.Context, provider *appcfg.AIProvider, text string, onToken func(string)) (string, error) {
	if provider == nil {
		return "", errors.New("missing AI provider")
	}
	prompt := buildAnalysisPrompt(text)

	switch {
	case isGeminiProviderType(provider.Type):
		return callGeminiStream(ctx, provider, "", prompt, onToken)
	case isOpenAICompatibleProviderType(provider.Type):
		return chatCompletionsStream(ctx, provider, "", prompt, onToken)
	}

	model, canStream, err := languageModelFor(provider)
	if err != nil {
		return "", err
	}
	if canStream {
		return jetStream(ctx, model, prompt, onToken)
	}

	result, err := completeWithProvider(ctx, provider, "", prompt)
	if err != nil {
		return "", err
	}
	if onToken != nil && result != "" {
		onToken(result)
	}
	return result, nil
}

func jetGenerate(ctx context.Context, model aiapi.LanguageModel, systemPrompt, prompt string) (string, error) {
	resp, err := jetify.GenerateText(ctx, promptMessages(systemPrompt, prompt),
		jetify.WithModel(model), jetify.WithMaxOutputTokens(maxAnalysisTokens))
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

func jetStream(ctx context.Context, model aiapi.LanguageModel, prompt string, onToken func(string)) (string, error) {
	out, err := jetify.StreamText(ctx, promptMessages("", prompt),
		jetify.WithModel(model), jetify.WithMaxOutputTokens(maxAnalysisTokens))
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for ev := range out.Stream {
		switch ev := ev.(type) {
		case *aiapi.TextDeltaEvent:
			if delta := ev.TextDelta; delta != "" {
				full.WriteString(delta)
				if onToken != nil {
					onToken(delta)
				}
			}
		case *aiapi.ErrorEvent:
			if ev.Err != nil {
				return "", fmt.Errorf("%v", ev.Err)
			}
			return "", errors.New("AI stream returned an unknown error")
		}
	}
	return requireNonBlank(full.String())
}

func requireNonBlank(result string) (string, error) {
	if strings.TrimSpace(result) != "" {
		return result, nil
	}
	return "", errors.New("AI returned an empty response")
}

func badStatus(resp *http.Response) bool {
	return resp.StatusCode >= http.StatusBadRequest
}

// chatCompletionPayload is the request body for providers that only speak the
// plain OpenAI wire protocol and are not covered by an SDK.
type chatCompletionPayload struct {
	Model     string              `json:"model"`
	Messages  []map[string]string `json:"messages"`
	MaxTokens int                 `json:"max_tokens"`
	Stream    bool                `json:"stream,omitempty"`
}

func chatMessages(systemPrompt, prompt string) []map[string]string {
	user := map[string]string{"role": "user", "content": prompt}
	if strings.TrimSpace(systemPrompt) == "" {
		return []map[string]string{user}
	}
	return []map[string]string{{"role": "system", "content": systemPrompt}, user}
}

// chatRequest builds one POST to {endpoint}/v1/chat/completions. The payload
// shape is shared between blocking and streaming calls.
func chatRequest(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string, stream bool) (*http.Request, error) {
	key := strings.TrimSpace(provider.APIKey)
	if key == "" {
		return nil, errors.New("AI provider has no api key")
	}
	modelName := strings.TrimSpace(provider.DefaultModel)
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	body, _ := json.Marshal(chatCompletionPayload{
		Model:     modelName,
		Messages:  chatMessages(systemPrompt, prompt),
		MaxTokens: maxAnalysisTokens,
		Stream:    stream,
	})

	url := normalizeOpenAICompatibleEndpoint(provider.Endpoint) + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

func chatCompletionsOnce(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string) (string, error) {
	req, err := chatRequest(ctx, provider, systemPrompt, prompt, false)
	if err != nil {
		return "", err
	}
	resp, err := chatClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if badStatus(resp) {
		return "", fmt.Errorf("openai-compatible error: %s", strings.TrimSpace(string(raw)))
	}
	return decodeChatCompletion(raw)
}

// wireError is the error envelope some gateways put in an otherwise well
// formed body, with 200 status.
type wireError struct {
	Message string `json:"message"`
}

// chatCompletionReply carries the few fields this module reads off a
// chat-completions response.
type chatCompletionReply struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error   *wireError `json:"error"`
	Message string     `json:"message"`
}

func decodeChatCompletion(raw []byte) (string, error) {
	var reply chatCompletionReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return "", err
	}
	if reply.Error != nil && strings.TrimSpace(reply.Error.Message) != "" {
		return "", fmt.Errorf("openai-compatible error: %s", reply.Error.Message)
	}
	if len(reply.Choices) == 0 {
		if strings.TrimSpace(reply.Message) != "" {
			return "", fmt.Errorf("openai-compatible error: %s", reply.Message)
		}
		return "", errors.New("AI returned an empty response")
	}
	return reply.Choices[0].Message.Content, nil
}

func chatCompletionsStream(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string, onToken func(string)) (string, error) {
	req, err := chatRequest(ctx, provider, systemPrompt, prompt, true)
	if err != nil {
		return "", err
	}
	resp, err := chatStreamClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if badStatus(resp) {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai-compatible stream error: %s", strings.TrimSpace(string(raw)))
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	// Gateways sometimes batch many deltas into one event line.
	scanner.Buffer(make([]byte, 0, 16*1024), 1024*1024)
	for scanner.Scan() {
		token, stop := parseSSEDelta(scanner.Text())
		if stop {
			break
		}
		if token != "" {
			full.WriteString(token)
			if onToken != nil {
				onToken(token)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return requireNonBlank(full.String())
}

// parseSSEDelta pulls the content delta out of one "data:" line of an SSE
// chat-completions stream. stop reports the [DONE] sentinel. Malformed lines
// yield an empty token and are skipped.
func parseSSEDelta(line string) (token string, stop bool) {
	data, ok := strings.CutPrefix(strings.TrimSpace(line), "data:")
	if !ok {
		return "", false
	}
	switch data = strings.TrimSpace(data); data {
	case "":
		return "", false
	case "[DONE]":
		return "", true
	}

	var event struct {
		Choices []struct {
			Delta struct {
				Content string `json:"content"`
			} `json:"delta"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(data), &event); err != nil || len(event.Choices) == 0 {
		return "", false
	}
	return event.Choices[0].Delta.Content, false
}

func promptMessages(systemPrompt, prompt string) []aiapi.Message {
	user := &aiapi.UserMessage{Content: aiapi.ContentFromText(prompt)}
	if strings.TrimSpace(systemPrompt) == "" {
		return []aiapi.Message{user}
	}
	return []aiapi.Message{&aiapi.SystemMessage{Content: systemPrompt}, user}
}

func responseText(resp *aiapi.Response) (string, error) {
	if resp == nil {
		return "", errors.New("AI returned an empty response")
	}
	var full strings.Builder
	for _, part := range resp.Content {
		if tb, ok := part.(*aiapi.TextBlock); ok {
			full.WriteString(tb.Text)
		}
	}
	return requireNonBlank(full.String())
}

// languageModelFor wires up an SDK-backed model for the Anthropic and OpenAI
// provider families. The second return reports streaming support: the
// Anthropic path goes through blocking calls only.
func languageModelFor(provider *appcfg.AIProvider) (aiapi.LanguageModel, bool, error) {
	if provider == nil {
		return nil, false, errors.New("missing AI provider")
	}
	key := strings.TrimSpace(provider.APIKey)
	if key == "" {
		return nil, false, errors.New("AI provider has no api key")
	}
	name := strings.TrimSpace(provider.DefaultModel)
	base := strings.TrimSpace(provider.Endpoint)

	if isAnthropicProviderType(provider.Type) {
		return anthropicLanguageModel(key, name, base), false, nil
	}
	return openAILanguageModel(key, name, base), true, nil
}

func anthropicLanguageModel(apiKey, modelID, endpoint string) aiapi.LanguageModel {
	if modelID == "" {
		modelID = defaultAnthropicModel
	}
	opts := []anthopt.RequestOption{
		anthopt.WithAPIKey(apiKey),
		anthopt.WithMaxRetries(0),
	}
	if endpoint != "" {
		opts = append(opts, anthopt.WithBaseURL(strings.TrimRight(endpoint, "/")))
	}
	client := anthropic.NewClient(opts...)
	return jetanthro.NewLanguageModel(modelID, jetanthro.WithClient(client))
}

func openAILanguageModel(apiKey, modelID, endpoint string) aiapi.LanguageModel {
	if modelID == "" {
		modelID = defaultOpenAIModel
	}
	opts := []oaiopt.RequestOption{
		oaiopt.WithAPIKey(apiKey),
		oaiopt.WithMaxRetries(0),
	}
	if base := normalizeOpenAIBaseURL(endpoint); base != "" {
		opts = append(opts, oaiopt.WithBaseURL(base))
	}
	client := openai.NewClient(opts...)
	return jetoai.NewLanguageModel(modelID, jetoai.WithClient(client))
}

// parseAbsoluteURL accepts only scheme://host URLs; anything else falls back
// to plain string handling in the callers.
func parseAbsoluteURL(raw string) (*neturl.URL, bool) {
	u, err := neturl.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

// normalizeOpenAIBaseURL appends /v1 to a base URL unless already present.
func normalizeOpenAIBaseURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	u, ok := parseAbsoluteURL(trimmed)
	if !ok {
		return strings.TrimRight(trimmed, "/")
	}
	if path := strings.TrimRight(u.Path, "/"); strings.HasSuffix(path, "/v1") {
		u.Path = path
	} else {
		u.Path = path + "/v1"
	}
	return strings.TrimRight(u.String(), "/")
}

// normalizeOpenAICompatibleEndpoint strips a trailing /v1 so callers can
// uniformly append /v1/chat/completions. Blank input means api.openai.com.
func normalizeOpenAICompatibleEndpoint(endpoint string) string {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return defaultOpenAIBase
	}
	u, ok := parseAbsoluteURL(trimmed)
	if !ok {
		return strings.TrimSuffix(strings.TrimRight(trimmed, "/"), "/v1")
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/v1")
	return strings.TrimRight(u.String(), "/")
}

func truncateText(s string, limit int) string {
	runes := []rune(s)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return s
}

// selectAIProvider resolves the provider an analysis should run on: the
// assigned provider when it exists and is enabled, otherwise the first
// enabled one. A model override on the assignment replaces the provider's
// default model on the returned copy.
func selectAIProvider(cfg appcfg.AIConfig, want *appcfg.AIModelAssignment) *appcfg.AIProvider {
	wantID, modelOverride := "", ""
	if want != nil {
		wantID = strings.TrimSpace(want.ProviderID)
		modelOverride = strings.TrimSpace(want.Model)
	}

	picked := pickProvider(cfg.Providers, wantID)
	if picked != nil && modelOverride != "" {
		picked.DefaultModel = modelOverride
	}
	return picked
}

// pickProvider returns a copy of the enabled provider with the wanted id, or
// the first enabled one when the id is blank or matches nothing. Copies keep
// model overrides from leaking back into the shared config.
func pickProvider(providers []appcfg.AIProvider, wantID string) *appcfg.AIProvider {
	var fallback *appcfg.AIProvider
	for i := range providers {
		candidate := providers[i]
		if !candidate.Enabled {
			continue
		}
		if wantID != "" && strings.TrimSpace(candidate.ID) == wantID {
			clone := candidate
			return &clone
		}
		if fallback == nil {
			clone := candidate
			fallback = &clone
			if wantID == "" {
				break
			}
		}
	}
	return fallback
}
