package models

import (
	"strconv"
	"strings"
	"time"
)

// Persisted setting keys. Names match the keys the browser extension stores so
// values can be exchanged through the bridge unchanged.
const (
	KeyModelID           = "modelId"
	KeyOpenRouterAPIKey  = "openRouterApiKey"
	KeyGeminiAPIKey      = "geminiApiKey"
	KeyAnthropicAPIKey   = "anthropicApiKey"
	KeyTheme             = "theme"
	KeyResponseTimeout   = "responseTimeout"
	KeyBackendURL        = "ankiBackendUrl"
	KeyAuthURL           = "ankiAuthUrl"
	KeyAuthToken         = "ankiAuthToken"
	KeyAuthTokenFallback = "ankiAuthTokenFallback"
	KeyAuthTokenType     = "ankiAuthTokenType"
	KeyAuthPending       = "ankiAuthPending"
	KeyAuthPendingSince  = "ankiAuthPendingSince"
)

const (
	DefaultTheme           = "light"
	DefaultResponseTimeout = 30
	DefaultBackendURL      = "https://memstore.ldd.cool"
	DefaultAuthURL         = "https://memit.ldd.cool"
)

// AllSettingKeys lists every key Settings is built from.
var AllSettingKeys = []string{
	KeyModelID, KeyOpenRouterAPIKey, KeyGeminiAPIKey, KeyAnthropicAPIKey,
	KeyTheme, KeyResponseTimeout, KeyBackendURL, KeyAuthURL,
	KeyAuthToken, KeyAuthTokenFallback, KeyAuthTokenType,
	KeyAuthPending, KeyAuthPendingSince,
}

// IsSecretKey reports whether key holds a credential that belongs in the keyring.
func IsSecretKey(key string) bool {
	switch key {
	case KeyOpenRouterAPIKey, KeyGeminiAPIKey, KeyAnthropicAPIKey,
		KeyAuthToken, KeyAuthTokenFallback:
		return true
	}
	return false
}

// APIKeySetting maps a provider to the setting holding its API key. The hosted
// service needs none.
func APIKeySetting(p Provider) (string, bool) {
	switch p {
	case ProviderOpenRouter:
		return KeyOpenRouterAPIKey, true
	case ProviderGemini:
		return KeyGeminiAPIKey, true
	case ProviderAnthropic:
		return KeyAnthropicAPIKey, true
	}
	return "", false
}

// Setting is a single persisted key/value row.
type Setting struct {
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

// Settings is the typed view over the persisted key/value settings.
type Settings struct {
	Model             ModelRef            `json:"modelId"`
	APIKeys           map[Provider]string `json:"-"`
	Theme             string              `json:"theme"` // "light" | "dark"
	ResponseTimeout   int                 `json:"responseTimeout"`
	BackendURL        string              `json:"ankiBackendUrl"`
	AuthURL           string              `json:"ankiAuthUrl"`
	AuthToken         string              `json:"-"`
	AuthTokenFallback string              `json:"-"`
	AuthTokenType     string              `json:"ankiAuthTokenType,omitempty"`
	AuthPending       bool                `json:"ankiAuthPending"`
	AuthPendingSince  time.Time           `json:"ankiAuthPendingSince,omitempty"`
}

// APIKey returns the stored key for p, or "" when none is configured.
func (s *Settings) APIKey(p Provider) string {
	if s == nil || s.APIKeys == nil {
		return ""
	}
	return s.APIKeys[p]
}

// SettingsFromValues builds Settings from raw values, applying defaults for
// anything missing or unparsable.
func SettingsFromValues(values map[string]string) *Settings {
	get := func(key string) string { return strings.TrimSpace(values[key]) }

	s := &Settings{
		Model:             ParseModelRef(DefaultModelID),
		APIKeys:           make(map[Provider]string),
		Theme:             DefaultTheme,
		ResponseTimeout:   DefaultResponseTimeout,
		BackendURL:        DefaultBackendURL,
		AuthURL:           DefaultAuthURL,
		AuthToken:         get(KeyAuthToken),
		AuthTokenFallback: get(KeyAuthTokenFallback),
		AuthTokenType:     get(KeyAuthTokenType),
		AuthPending:       get(KeyAuthPending) == "true",
	}
	if v := get(KeyModelID); v != "" {
		s.Model = ParseModelRef(v)
	}
	for _, p := range KnownProviders {
		if key, ok := APIKeySetting(p); ok {
			if v := get(key); v != "" {
				s.APIKeys[p] = v
			}
		}
	}
	if v := get(KeyTheme); v != "" {
		s.Theme = v
	}
	if v, err := strconv.Atoi(get(KeyResponseTimeout)); err == nil && v >= 0 {
		s.ResponseTimeout = v
	}
	if v := NormalizeBaseURL(get(KeyBackendURL)); v != "" {
		s.BackendURL = v
	}
	if v := NormalizeBaseURL(get(KeyAuthURL)); v != "" {
		s.AuthURL = v
	}
	if v, err := strconv.ParseInt(get(KeyAuthPendingSince), 10, 64); err == nil && v > 0 {
		s.AuthPendingSince = time.UnixMilli(v)
	}
	return s
}

// NormalizeBaseURL strips a single trailing slash.
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}

// SettingChange describes one key's transition.
type SettingChange struct {
	OldValue string `json:"oldValue"`
	NewValue string `json:"newValue"`
}

// SettingsChanges maps changed keys to their transitions. A removed key has an
// empty NewValue.
type SettingsChanges map[string]SettingChange
