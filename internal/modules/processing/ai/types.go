package ai

type analyzeDTO struct {
	Text string `json:"text" binding:"required"`
}

// modelEntry is one row of a provider's model catalog.
type modelEntry struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created,omitempty"`
}

// providerCatalog is the admin listing for one configured provider.
type providerCatalog struct {
	ProviderID   string       `json:"providerId"`
	ProviderName string       `json:"providerName"`
	ProviderType string       `json:"providerType"`
	Models       []modelEntry `json:"models"`
	Error        string       `json:"error,omitempty"`
}

// fetchModelsDTO identifies a provider, saved or not, whose catalog the
// admin wants to browse. Credentials override the stored ones when present.
type fetchModelsDTO struct {
	Provider string `json:"providerId"`
	Type     string `json:"type"`
	Key      string `json:"apiKey"`
	BaseURL  string `json:"endpoint"`
}

// testConnectionDTO is fetchModelsDTO plus the model to probe with.
type testConnectionDTO struct {
	fetchModelsDTO
	Model string `json:"model"`
}
