package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	appcfg "github.com/shiv669/echo-core-go/internal/config"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	defaultGeminiModel  = "gemini-2.0-flash-exp"
	fallbackGeminiModel = "gemini-1.5-flash"
)

func isGeminiProviderType(raw string) bool {
	return providerTypeIs(raw, "gemini", "google", "google-gemini")
}

func requireGeminiProvider(provider *appcfg.AIProvider) error {
	if provider == nil {
		return errors.New("missing AI provider")
	}
	if strings.TrimSpace(provider.APIKey) == "" {
		return errors.New("AI provider has no api key")
	}
	return nil
}

// geminiModelLadder returns the models to try in order: the provider's
// default first, then its fallback. One call makes at most two attempts.
func geminiModelLadder(provider *appcfg.AIProvider) []string {
	primary := strings.TrimSpace(provider.DefaultModel)
	if primary == "" {
		primary = defaultGeminiModel
	}
	fallback := strings.TrimSpace(provider.FallbackModel)
	if fallback == "" {
		fallback = fallbackGeminiModel
	}
	if fallback == primary {
		return []string{primary}
	}
	return []string{primary, fallback}
}

func newGeminiClient(ctx context.Context, provider *appcfg.AIProvider) (*genai.Client, error) {
	opts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(provider.APIKey))}
	if endpoint := strings.TrimSpace(provider.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return genai.NewClient(ctx, opts...)
}

// geminiModelFor attaches the optional system instruction to a model handle.
func geminiModelFor(client *genai.Client, modelID, systemPrompt string) *genai.GenerativeModel {
	model := client.GenerativeModel(modelID)
	if strings.TrimSpace(systemPrompt) != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	return model
}

func callGemini(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string) (string, error) {
	if err := requireGeminiProvider(provider); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := newGeminiClient(ctx, provider)
	if err != nil {
		return "", err
	}
	defer client.Close()

	var lastErr error
	for _, modelID := range geminiModelLadder(provider) {
		model := geminiModelFor(client, modelID, systemPrompt)
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			lastErr = err
			continue
		}
		text := geminiResponseText(resp)
		if strings.TrimSpace(text) == "" {
			lastErr = errors.New("AI returned an empty response")
			continue
		}
		return text, nil
	}
	return "", lastErr
}

func callGeminiStream(ctx context.Context, provider *appcfg.AIProvider, systemPrompt, prompt string, onToken func(string)) (string, error) {
	if err := requireGeminiProvider(provider); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	client, err := newGeminiClient(ctx, provider)
	if err != nil {
		return "", err
	}
	defer client.Close()

	var lastErr error
	for _, modelID := range geminiModelLadder(provider) {
		model := geminiModelFor(client, modelID, systemPrompt)
		iter := model.GenerateContentStream(ctx, genai.Text(prompt))
		var full strings.Builder
		streamErr := func() error {
			for {
				resp, err := iter.Next()
				if err == iterator.Done {
					return nil
				}
				if err != nil {
					return err
				}
				chunk := geminiResponseText(resp)
				if chunk == "" {
					continue
				}
				full.WriteString(chunk)
				if onToken != nil {
					onToken(chunk)
				}
			}
		}()
		if streamErr != nil {
			// Tokens already sent to the caller cannot be recalled, so the
			// fallback model is only tried when nothing was streamed yet.
			if full.Len() > 0 {
				return "", streamErr
			}
			lastErr = streamErr
			continue
		}

		result := full.String()
		if strings.TrimSpace(result) == "" {
			lastErr = errors.New("AI returned an empty response")
			continue
		}
		return result, nil
	}
	return "", lastErr
}

func geminiResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var full strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				full.WriteString(string(text))
			}
		}
	}
	return full.String()
}

func normalizeGeminiModelsEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://generativelanguage.googleapis.com/v1beta/models"
	}
	parsed, ok := parseAbsoluteURL(base)
	if !ok {
		cleaned := strings.TrimRight(base, "/")
		cleaned = strings.TrimSuffix(cleaned, "/models")
		cleaned = strings.TrimSuffix(cleaned, "/v1beta")
		return cleaned + "/v1beta/models"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	path := strings.TrimRight(parsed.Path, "/")
	path = strings.TrimSuffix(path, "/models")
	if strings.HasSuffix(path, "/v1beta") {
		path = strings.TrimSuffix(path, "/v1beta")
	}
	parsed.Path = strings.TrimRight(path, "/") + "/v1beta/models"
	return strings.TrimRight(parsed.String(), "/")
}

func parseGeminiModels(body []byte) ([]modelEntry, error) {
	var payload struct {
		Models []struct {
			Name                       string   `json:"name"`
			DisplayName                string   `json:"displayName"`
			SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	models := make([]modelEntry, 0, len(payload.Models))
	for _, item := range payload.Models {
		id := strings.TrimSpace(strings.TrimPrefix(item.Name, "models/"))
		if id == "" {
			continue
		}
		if len(item.SupportedGenerationMethods) > 0 && !supportsGenerateContent(item.SupportedGenerationMethods) {
			continue
		}
		name := strings.TrimSpace(item.DisplayName)
		if name == "" {
			name = id
		}
		models = append(models, modelEntry{ID: id, Name: name})
	}
	return models, nil
}

func supportsGenerateContent(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" || m == "streamGenerateContent" {
			return true
		}
	}
	return false
}
