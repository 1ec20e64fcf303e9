package ai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appcfg "github.com/shiv669/echo-core-go/internal/config"
)

// modelsFromProvider lists the models a provider is configured with, without
// any network traffic. Used when the remote catalog is unreachable.
func modelsFromProvider(provider appcfg.AIProvider) []modelEntry {
	configured := []string{provider.DefaultModel, provider.FallbackModel}
	models := make([]modelEntry, 0, len(configured))
	for i, id := range configured {
		if id == "" || (i > 0 && id == configured[0]) {
			continue
		}
		models = append(models, modelEntry{ID: id, Name: id})
	}
	return models
}

// listRemoteModels queries the provider's model catalog endpoint. Each
// provider family has its own auth header convention and payload shape.
func listRemoteModels(provider appcfg.AIProvider) ([]modelEntry, error) {
	key := strings.TrimSpace(provider.APIKey)
	switch {
	case isGeminiProviderType(provider.Type):
		headers := map[string]string{
			"x-goog-api-key": key,
			"accept":         "application/json",
		}
		return getModelCatalog(normalizeGeminiModelsEndpoint(provider.Endpoint), headers, parseGeminiModels)
	case isAnthropicProviderType(provider.Type):
		headers := map[string]string{
			"x-api-key":         key,
			"anthropic-version": "2023-06-01",
			"content-type":      "application/json",
			"accept":            "application/json",
		}
		return getModelCatalog(normalizeAnthropicModelsEndpoint(provider.Endpoint), headers, parseAnthropicModels)
	case isOpenRouterProviderType(provider.Type):
		return getModelCatalog(normalizeOpenRouterModelsEndpoint(provider.Endpoint), bearerHeaders(key), parseOpenAIStyleModels)
	default:
		return getModelCatalog(normalizeOpenAIModelsEndpoint(provider.Endpoint), bearerHeaders(key), parseOpenAIStyleModels)
	}
}

func bearerHeaders(key string) map[string]string {
	return map[string]string{
		"authorization": "Bearer " + key,
		"accept":        "application/json",
	}
}

func getModelCatalog(endpoint string, headers map[string]string, parse func([]byte) ([]modelEntry, error)) ([]modelEntry, error) {
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	for name, value := range headers {
		if strings.TrimSpace(value) != "" {
			req.Header.Set(name, value)
		}
	}

	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("provider models request failed: %s", strings.TrimSpace(string(body)))
	}
	models, err := parse(body)
	if err != nil {
		return nil, err
	}
	return dedupeModelEntries(models), nil
}

// appendModel trims and appends one catalog entry, falling back to the id as
// display name. Entries with a blank id are dropped.
func appendModel(models []modelEntry, entry modelEntry) []modelEntry {
	entry.ID = strings.TrimSpace(entry.ID)
	if entry.ID == "" {
		return models
	}
	entry.Name = strings.TrimSpace(entry.Name)
	if entry.Name == "" {
		entry.Name = entry.ID
	}
	return append(models, entry)
}

func parseOpenAIStyleModels(body []byte) ([]modelEntry, error) {
	var payload struct {
		Data []struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Created int64  `json:"created"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	models := make([]modelEntry, 0, len(payload.Data))
	for _, item := range payload.Data {
		models = appendModel(models, modelEntry{ID: item.ID, Name: item.Name, CreatedAt: item.Created})
	}
	return models, nil
}

func parseAnthropicModels(body []byte) ([]modelEntry, error) {
	var payload struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	models := make([]modelEntry, 0, len(payload.Data))
	for _, item := range payload.Data {
		models = appendModel(models, modelEntry{ID: item.ID, Name: item.DisplayName})
	}
	return models, nil
}

// dedupeModelEntries drops duplicate and blank ids, keeping first occurrence
// order.
func dedupeModelEntries(input []modelEntry) []modelEntry {
	out := make([]modelEntry, 0, len(input))
	seen := make(map[string]struct{}, len(input))
	for _, item := range input {
		item.ID = strings.TrimSpace(item.ID)
		if _, dup := seen[item.ID]; dup || item.ID == "" {
			continue
		}
		seen[item.ID] = struct{}{}
		out = appendModel(out, item)
	}
	return out
}

// modelsCatalogURL rewrites an endpoint so its path ends in /v1/models,
// dropping any query or fragment. Input that does not parse as an absolute
// URL gets suffix surgery only.
func modelsCatalogURL(raw, fallback string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return fallback
	}
	parsed, ok := parseAbsoluteURL(base)
	if !ok {
		cleaned := strings.TrimRight(base, "/")
		cleaned = strings.TrimSuffix(cleaned, "/v1")
		cleaned = strings.TrimSuffix(cleaned, "/models")
		return cleaned + "/v1/models"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	path := strings.TrimSuffix(strings.TrimRight(parsed.Path, "/"), "/models")
	path = strings.TrimSuffix(path, "/v1")
	parsed.Path = strings.TrimRight(path, "/") + "/v1/models"
	return strings.TrimRight(parsed.String(), "/")
}

func normalizeOpenAIModelsEndpoint(raw string) string {
	return modelsCatalogURL(raw, "https://api.openai.com/v1/models")
}

func normalizeAnthropicModelsEndpoint(raw string) string {
	return modelsCatalogURL(raw, "https://api.anthropic.com/v1/models")
}

// normalizeOpenRouterModelsEndpoint differs from the generic rewrite in that
// OpenRouter mounts its API under /api/v1.
func normalizeOpenRouterModelsEndpoint(raw string) string {
	base := strings.TrimSpace(raw)
	if base == "" {
		return "https://openrouter.ai/api/v1/models"
	}
	parsed, ok := parseAbsoluteURL(base)
	if !ok {
		cleaned := strings.TrimRight(base, "/")
		for _, suffix := range []string{"/models", "/api/v1", "/v1"} {
			cleaned = strings.TrimSuffix(cleaned, suffix)
		}
		return cleaned + "/api/v1/models"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""
	path := strings.TrimSuffix(strings.TrimRight(parsed.Path, "/"), "/models")
	if stripped := strings.TrimSuffix(path, "/api/v1"); stripped != path {
		path = stripped
	} else {
		path = strings.TrimSuffix(path, "/v1")
	}
	parsed.Path = strings.TrimRight(path, "/") + "/api/v1/models"
	return strings.TrimRight(parsed.String(), "/")
}
