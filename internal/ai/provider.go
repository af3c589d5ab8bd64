package ai

import "context"

// Request is one bound prompt for a provider.
type Request struct {
	TemplateID string         // prompt template that produced Prompt
	System     string         // system instruction
	Prompt     string         // rendered user prompt
	SchemaName string         // structured-output schema name
	Schema     map[string]any // JSON Schema the response must satisfy
	MaxTokens  int
}

// Response is the raw provider answer with token usage for costing.
type Response struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

// Provider is an LLM backend. Implementations must return *model.HTTPError
// for non-2xx responses so retry logic can classify them.
type Provider interface {
	Invoke(ctx context.Context, req Request) (Response, error)
	// Model is the model version tag used in cache fingerprints and pricing.
	Model() string
}
