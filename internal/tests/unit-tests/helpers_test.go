package unit_tests

import (
	"context"
	"sync"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/require"

	"memit/internal/llm/client"
	"memit/internal/models"
	"memit/internal/services"
	"memit/internal/tests/mocks"
)

func newSettingsStore(t *testing.T, plain map[string]string) (services.SettingsStore, *mocks.SettingRepositoryMock, *services.KeyringService) {
	t.Helper()
	repo := mocks.NewSettingRepositoryMock(plain)
	secrets := services.NewKeyringService(keyring.NewArrayKeyring(nil))
	return services.NewSettingsStore(repo, secrets), repo, secrets
}

func mustSet(t *testing.T, store services.SettingsStore, values map[string]string) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), values))
}

type fakeExplainer struct {
	mu    sync.Mutex
	calls []client.Options
	texts []string
	fn    func(ctx context.Context, text string, opts client.Options) (*models.Explanation, error)
}

func (f *fakeExplainer) Explain(ctx context.Context, text string, opts client.Options) (*models.Explanation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(ctx, text, opts)
	}
	return &models.Explanation{Word: text, SimpleDefinition: "def", DetailedExplanation: "more", InChinese: "中文"}, nil
}

func (f *fakeExplainer) Calls() []client.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]client.Options(nil), f.calls...)
}

type recordingOpener struct {
	mu   sync.Mutex
	urls []string
}

func (o *recordingOpener) Open(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.urls = append(o.urls, url)
	return nil
}

func (o *recordingOpener) URLs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.urls...)
}
