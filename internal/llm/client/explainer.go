package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"memit/internal/models"
)

// Options carries per-call provider parameters.
type Options struct {
	// Model is the concrete model name with any provider namespace removed.
	Model string
	// APIKey is the bearer credential for providers that need one.
	APIKey string
	// BaseURL overrides the provider endpoint when set.
	BaseURL string
}

// Explainer turns a word or short phrase into a structured explanation.
type Explainer interface {
	Explain(ctx context.Context, text string, opts Options) (*models.Explanation, error)
}

// ProviderError is the only error an Explainer returns. Message is safe to show
// to the user as-is.
type ProviderError struct {
	Provider   models.Provider
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func newProviderError(p models.Provider, status int, err error, format string, args ...any) *ProviderError {
	return &ProviderError{
		Provider:   p,
		StatusCode: status,
		Message:    fmt.Sprintf(format, args...),
		Err:        err,
	}
}

// explanationPayload decodes a provider body that may carry an error field
// instead of (or alongside) the explanation.
type explanationPayload struct {
	models.Explanation
	Error json.RawMessage `json:"error,omitempty"`
}

// errorFieldMessage extracts a message from a JSON "error" value, which is
// either a string or an object with a "message" field. Falsy values mean no error.
func errorFieldMessage(raw json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))
	switch trimmed {
	case "", "null", "false", `""`, "0":
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	return trimmed, true
}

// decodeExplanation parses a JSON explanation body, surfacing an embedded
// error field. A body missing a required field is a provider error.
func decodeExplanation(p models.Provider, label string, body []byte) (*models.Explanation, error) {
	var payload explanationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, newProviderError(p, 0, err, "Malformed response from %s: %v", label, err)
	}
	if msg, ok := errorFieldMessage(payload.Error); ok {
		return nil, newProviderError(p, 0, nil, "%s", msg)
	}
	out := payload.Explanation
	if err := out.Validate(); err != nil {
		return nil, newProviderError(p, 0, err, "Incomplete response from %s: %v", label, err)
	}
	return &out, nil
}
