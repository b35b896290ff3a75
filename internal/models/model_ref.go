package models

import (
	"encoding/json"
	"strings"
)

// Provider names an explanation backend.
type Provider string

const (
	ProviderMemcool    Provider = "memcool"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
	ProviderAnthropic  Provider = "anthropic"
)

// KnownProviders lists the providers in catalog order.
var KnownProviders = []Provider{ProviderMemcool, ProviderOpenRouter, ProviderGemini, ProviderAnthropic}

func (p Provider) Valid() bool {
	for _, known := range KnownProviders {
		if p == known {
			return true
		}
	}
	return false
}

// DefaultModelID is used when no model has been stored yet.
const DefaultModelID = "memcool:gemini-2.5-flash-lite"

// ModelRef identifies a concrete model on a specific provider. It is parsed once
// from the namespaced "provider:model" form and passed around already resolved.
type ModelRef struct {
	Provider Provider
	Name     string
}

// ParseModelRef resolves a namespaced model identifier. Identifiers without a
// known provider prefix are legacy hosted-service model names.
func ParseModelRef(id string) ModelRef {
	id = strings.TrimSpace(id)
	if prefix, rest, ok := strings.Cut(id, ":"); ok {
		if p := Provider(prefix); p.Valid() {
			return ModelRef{Provider: p, Name: rest}
		}
	}
	return ModelRef{Provider: ProviderMemcool, Name: id}
}

// String returns the namespaced identifier, e.g. "openrouter:x-ai/grok-4.1-fast".
func (r ModelRef) String() string {
	if r.IsZero() {
		return ""
	}
	return string(r.Provider) + ":" + r.Name
}

func (r ModelRef) IsZero() bool {
	return r.Provider == "" && r.Name == ""
}

func (r ModelRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *ModelRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		*r = ModelRef{}
		return nil
	}
	*r = ParseModelRef(id)
	return nil
}
