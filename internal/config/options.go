package config

import (
	"encoding/json"
	"os"
	"strings"
)

// FullConfig is the application config stored in the database (options table, key="configs").
type FullConfig struct {
	SEO                          SEOConfig                    `json:"seo"`
	URL                          URLConfig                    `json:"url"`
	BarkOptions                  BarkOptions                  `json:"bark_options"`
	S3Options                    S3Options                    `json:"s3_options"`
	ArchiveOptions               ArchiveOptions               `json:"archive_options"`
	ThirdPartyServiceIntegration ThirdPartyServiceIntegration `json:"third_party_service_integration"`
	AnalyzeOptions               AnalyzeOptions               `json:"analyze_options"`
	AI                           AIConfig                     `json:"ai"`
}

type SEOConfig struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

type URLConfig struct {
	WebURL    string `json:"web_url"`
	ServerURL string `json:"server_url"`
	WSURL     string `json:"ws_url"`
}

type BarkOptions struct {
	Enable              bool   `json:"enable"`
	Key                 string `json:"key"`
	ServerURL           string `json:"server_url"`
	EnableIngest        bool   `json:"enable_ingest"`
	EnableThrottleGuard bool   `json:"enable_throttle_guard"`
}

type S3Options struct {
	Enable          bool   `json:"enable"`
	Endpoint        string `json:"endpoint"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	Bucket          string `json:"bucket"`
	Region          string `json:"region"`
	CustomDomain    string `json:"custom_domain"`
	PathStyleAccess bool   `json:"path_style_access"`
}

type ArchiveOptions struct {
	Enable    bool   `json:"enable"`
	KeepCount int    `json:"keep_count"`
	Path      string `json:"path"`
}

type ThirdPartyServiceIntegration struct {
	GitHubToken string `json:"github_token"`
}

type AnalyzeOptions struct {
	Enable    bool `json:"enable"`
	CleanDays int  `json:"clean_days"`
}

type AIConfig struct {
	Providers      []AIProvider       `json:"providers"`
	AnalysisModel  *AIModelAssignment `json:"analysis_model,omitempty"`
	EnableAnalysis bool               `json:"enable_analysis"`
}

type AIModelAssignment struct {
	ProviderID string `json:"provider_id"`
	Model      string `json:"model"`
}

type AIProvider struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"` // Gemini | OpenAI | OpenAI-Compatible | Anthropic | OpenRouter
	APIKey        string `json:"api_key"`
	Endpoint      string `json:"endpoint,omitempty"`
	DefaultModel  string `json:"default_model"`
	FallbackModel string `json:"fallback_model,omitempty"`
	Enabled       bool   `json:"enabled"`
}

// The option sections below accept several historical spellings for the
// same key. Decoding merges onto the existing value: absent keys keep
// whatever the struct already holds, and for each field the first present
// spelling wins in the order listed.

// mergeString stores the first present candidate, trimmed.
func mergeString(dst *string, candidates ...*string) {
	for _, c := range candidates {
		if c != nil {
			*dst = strings.TrimSpace(*c)
			return
		}
	}
}

func mergeBool(dst *bool, candidates ...*bool) {
	for _, c := range candidates {
		if c != nil {
			*dst = *c
			return
		}
	}
}

func mergeInt(dst *int, candidates ...*int) {
	for _, c := range candidates {
		if c != nil {
			*dst = *c
			return
		}
	}
}

func (o *BarkOptions) UnmarshalJSON(data []byte) error {
	var raw struct {
		Enable              *bool   `json:"enable"`
		Key                 *string `json:"key"`
		ServerURL           *string `json:"server_url"`
		ServerURLCamel      *string `json:"serverUrl"`
		EnableIngest        *bool   `json:"enable_ingest"`
		EnableIngestCamel   *bool   `json:"enableIngest"`
		EnableThrottleGuard *bool   `json:"enable_throttle_guard"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mergeBool(&o.Enable, raw.Enable)
	mergeString(&o.Key, raw.Key)
	mergeString(&o.ServerURL, raw.ServerURL, raw.ServerURLCamel)
	mergeBool(&o.EnableIngest, raw.EnableIngest, raw.EnableIngestCamel)
	mergeBool(&o.EnableThrottleGuard, raw.EnableThrottleGuard)
	return nil
}

func (o *S3Options) UnmarshalJSON(data []byte) error {
	var raw struct {
		Enable               *bool   `json:"enable"`
		Enabled              *bool   `json:"enabled"`
		Endpoint             *string `json:"endpoint"`
		AccessKeyID          *string `json:"access_key_id"`
		AccessKey            *string `json:"access_key"`
		AccessKeyIDCamel     *string `json:"accessKeyId"`
		SecretAccessKey      *string `json:"secret_access_key"`
		SecretKey            *string `json:"secret_key"`
		SecretAccessKeyCamel *string `json:"secretAccessKey"`
		Bucket               *string `json:"bucket"`
		Region               *string `json:"region"`
		CustomDomain         *string `json:"custom_domain"`
		CustomDomainCamel    *string `json:"customDomain"`
		PathStyleAccess      *bool   `json:"path_style_access"`
		PathStyle            *bool   `json:"path_style"`
		ForcePathStyle       *bool   `json:"force_path_style"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mergeBool(&o.Enable, raw.Enable, raw.Enabled)
	mergeString(&o.Endpoint, raw.Endpoint)
	mergeString(&o.AccessKeyID, raw.AccessKeyID, raw.AccessKey, raw.AccessKeyIDCamel)
	mergeString(&o.SecretAccessKey, raw.SecretAccessKey, raw.SecretKey, raw.SecretAccessKeyCamel)
	mergeString(&o.Bucket, raw.Bucket)
	mergeString(&o.Region, raw.Region)
	mergeString(&o.CustomDomain, raw.CustomDomain, raw.CustomDomainCamel)
	mergeBool(&o.PathStyleAccess, raw.PathStyleAccess, raw.PathStyle, raw.ForcePathStyle)
	return nil
}

func (o *ArchiveOptions) UnmarshalJSON(data []byte) error {
	var raw struct {
		Enable         *bool   `json:"enable"`
		AutoArchive    *bool   `json:"auto_archive"`
		KeepCount      *int    `json:"keep_count"`
		KeepCountCamel *int    `json:"keepCount"`
		MaxKeep        *int    `json:"max_keep"`
		Path           *string `json:"path"`
		PathTemplate   *string `json:"path_template"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mergeBool(&o.Enable, raw.Enable, raw.AutoArchive)
	mergeInt(&o.KeepCount, raw.KeepCount, raw.KeepCountCamel, raw.MaxKeep)
	mergeString(&o.Path, raw.Path, raw.PathTemplate)
	return nil
}

func (o *ThirdPartyServiceIntegration) UnmarshalJSON(data []byte) error {
	var raw struct {
		GitHubToken      *string `json:"github_token"`
		GitHubTokenCamel *string `json:"githubToken"`
		GHToken          *string `json:"gh_token"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mergeString(&o.GitHubToken, raw.GitHubToken, raw.GitHubTokenCamel, raw.GHToken)
	return nil
}

func (o *AnalyzeOptions) UnmarshalJSON(data []byte) error {
	var raw struct {
		Enable         *bool `json:"enable"`
		Enabled        *bool `json:"enabled"`
		CleanDays      *int  `json:"clean_days"`
		CleanDaysCamel *int  `json:"cleanDays"`
		KeepDays       *int  `json:"keep_days"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	mergeBool(&o.Enable, raw.Enable, raw.Enabled)
	mergeInt(&o.CleanDays, raw.CleanDays, raw.CleanDaysCamel, raw.KeepDays)
	return nil
}

func (a *AIModelAssignment) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProviderID      string `json:"provider_id"`
		ProviderIDCamel string `json:"providerId"`
		Model           string `json:"model"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.ProviderID = firstNonBlank(raw.ProviderID, raw.ProviderIDCamel)
	a.Model = strings.TrimSpace(raw.Model)
	return nil
}

func (a *AIConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Providers      []AIProvider    `json:"providers"`
		AnalysisModel  json.RawMessage `json:"analysis_model"`
		SummaryModel   json.RawMessage `json:"summary_model"`
		EnableAnalysis *bool           `json:"enable_analysis"`
		EnableSummary  *bool           `json:"enable_summary"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	assignment := raw.AnalysisModel
	if len(assignment) == 0 {
		assignment = raw.SummaryModel
	}
	if len(assignment) > 0 {
		parsed, err := decodeModelAssignment(assignment, a.AnalysisModel)
		if err != nil {
			return err
		}
		a.AnalysisModel = parsed
	}

	if raw.Providers != nil {
		a.Providers = raw.Providers
	}
	mergeBool(&a.EnableAnalysis, raw.EnableAnalysis, raw.EnableSummary)
	return nil
}

// decodeModelAssignment handles the three historical shapes of the model
// assignment value: a {provider_id, model} object, a bare model string from
// before providers were configurable, and JSON null to clear the override.
// The fallback supplies the provider for the bare-string form.
func decodeModelAssignment(raw json.RawMessage, fallback *AIModelAssignment) (*AIModelAssignment, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return fallback, nil
	}
	if trimmed == "null" {
		return nil, nil
	}

	base := AIModelAssignment{}
	if fallback != nil {
		base = *fallback
	}

	var legacyModel string
	if err := json.Unmarshal(raw, &legacyModel); err == nil {
		legacyModel = strings.TrimSpace(legacyModel)
		if legacyModel == "" {
			return nil, nil
		}
		base.Model = legacyModel
		return &base, nil
	}

	if err := json.Unmarshal(raw, &base); err != nil {
		return nil, err
	}
	if strings.TrimSpace(base.ProviderID) == "" && strings.TrimSpace(base.Model) == "" {
		return nil, nil
	}
	return &base, nil
}

// DefaultFullConfig seeds a fresh install. The Gemini provider picks up
// GEMINI_API_KEY from the environment so summarization works out of the box;
// with no key configured the provider stays selected and ingestion degrades
// to placeholder summaries instead of failing.
func DefaultFullConfig() FullConfig {
	return FullConfig{
		SEO: SEOConfig{
			Title:       "ECHO",
			Description: "Personal knowledge graph",
			Keywords:    []string{},
		},
		URL: URLConfig{
			WebURL:    "http://localhost:3000",
			ServerURL: "http://localhost:8000",
			WSURL:     "http://localhost:8000",
		},
		BarkOptions: BarkOptions{
			Enable:              false,
			Key:                 "",
			ServerURL:           "https://api.day.app",
			EnableIngest:        true,
			EnableThrottleGuard: false,
		},
		S3Options: S3Options{
			Enable:          false,
			Endpoint:        "",
			AccessKeyID:     "",
			SecretAccessKey: "",
			Bucket:          "",
			Region:          "",
			CustomDomain:    "",
			PathStyleAccess: false,
		},
		ArchiveOptions: ArchiveOptions{
			Enable:    false,
			KeepCount: 7,
			Path:      "archives/{Y}/{m}/echo-{Y}{m}{d}-{h}{i}{s}.zip",
		},
		ThirdPartyServiceIntegration: ThirdPartyServiceIntegration{
			GitHubToken: strings.TrimSpace(os.Getenv("GITHUB_TOKEN")),
		},
		AnalyzeOptions: AnalyzeOptions{
			Enable:    true,
			CleanDays: 90,
		},
		AI: AIConfig{
			Providers: []AIProvider{
				{
					ID:            "gemini",
					Name:          "Google Gemini",
					Type:          "Gemini",
					APIKey:        strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
					DefaultModel:  "gemini-2.0-flash-exp",
					FallbackModel: "gemini-1.5-flash",
					Enabled:       true,
				},
			},
			EnableAnalysis: true,
		},
	}
}
