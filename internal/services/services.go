package services

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gorm.io/gorm"

	"memit/internal/broker"
	"memit/internal/llm/client"
	"memit/internal/models"
	"memit/internal/repositories"
)

// Options tunes the background services.
type Options struct {
	CacheSize  int
	CacheTTL   time.Duration
	HTTPClient *http.Client
}

// Services aggregates the background side: settings, provider gateway,
// note saving and token intake.
type Services struct {
	Settings SettingsStore
	Catalog  ModelCatalogService
	Explain  ExplainService
	Anki     AnkiService
	Auth     AuthService
}

// DefaultExplainers wires one explainer per provider.
func DefaultExplainers(httpClient *http.Client) map[models.Provider]client.Explainer {
	return map[models.Provider]client.Explainer{
		models.ProviderMemcool:    client.NewMemcoolClient(models.DefaultBackendURL, httpClient),
		models.ProviderOpenRouter: client.NewOpenRouterExplainer(client.OpenRouterBaseURL),
		models.ProviderGemini:     client.NewGeminiExplainer(),
		models.ProviderAnthropic:  client.NewClaudeExplainer(),
	}
}

// NewServices constructs the service container using repositories backed by db.
func NewServices(db *gorm.DB, secrets SecretStore, explainers map[models.Provider]client.Explainer, opener URLOpener, opts Options) *Services {
	settings := NewSettingsStore(repositories.NewSettingRepository(db), secrets)
	notes := repositories.NewSavedNoteRepository(db)

	return &Services{
		Settings: settings,
		Catalog:  NewModelCatalogService(nil),
		Explain:  NewExplainService(settings, explainers, opts.CacheSize, opts.CacheTTL),
		Anki:     NewAnkiService(settings, notes, opener, opts.HTTPClient),
		Auth:     NewAuthService(settings),
	}
}

// Startup loads the model catalog and seeds default settings.
func (s *Services) Startup(ctx context.Context) error {
	if err := s.Catalog.Startup(ctx); err != nil {
		return fmt.Errorf("model catalog: %w", err)
	}
	if err := s.Settings.InitDefaults(ctx); err != nil {
		return fmt.Errorf("init settings: %w", err)
	}
	return nil
}

// Register installs the background handlers on b.
func (s *Services) Register(b *broker.Broker) {
	b.Handle(broker.KindExplainText, s.Explain.HandleExplain)
	b.Handle(broker.KindSaveToAnki, s.Anki.HandleSave)
	b.Handle(broker.KindAuthToken, s.Auth.HandleAuthToken)
}
