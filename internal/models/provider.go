package models

// Provider is one OpenAI-compatible LLM provider endpoint.
type Provider struct {
	ID           int      `json:"id"`
	Name         string   `json:"name"`
	BaseURL      string   `json:"base_url"`
	APIKey       string   `json:"api_key"`
	DefaultModel string   `json:"default_model"`
	Models       []string `json:"models,omitempty"`
	Enabled      bool     `json:"enabled"`
}

// ProvidersConfig is the providers.json document.
type ProvidersConfig struct {
	Providers []Provider `json:"providers"`
}

// LLMConfig is the resolved endpoint configuration for one model call.
type LLMConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	ProviderID int
}
