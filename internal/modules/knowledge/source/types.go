package source

// addSourceDTO accepts the original ingestion contract: JSON body, form
// fields or query parameters.
type addSourceDTO struct {
	RepoURL     string `json:"repo_url" form:"repo_url"`
	Title       string `json:"title" form:"title"`
	TextSnippet string `json:"text_snippet" form:"text_snippet"`
}

type importDTO struct {
	RepoURLs []string `json:"repo_urls" binding:"required,min=1"`
}

// IngestPayload is the task payload for queued repository imports.
type IngestPayload struct {
	RepoURL string `json:"repo_url"`
	Title   string `json:"title,omitempty"`
}
