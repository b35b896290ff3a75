package models

// LLMModel represents a single model option exposed to the UI.
type LLMModel struct {
	Key          string   `json:"key"`
	DisplayName  string   `json:"displayName"`
	APIName      string   `json:"apiName"`
	ProviderID   Provider `json:"providerId"`
	ProviderName string   `json:"providerName"`
	NeedsAPIKey  bool     `json:"needsApiKey"`
}

// Ref returns the resolved model reference for this catalog entry.
func (m LLMModel) Ref() ModelRef {
	return ModelRef{Provider: m.ProviderID, Name: m.APIName}
}

// LLMModelGroup groups models by their provider for presentation.
type LLMModelGroup struct {
	ProviderID   Provider   `json:"providerId"`
	ProviderName string     `json:"providerName"`
	Models       []LLMModel `json:"models"`
}
