package client

import (
	"context"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"

	"memit/internal/models"
)

const (
	OpenRouterBaseURL      = "https://openrouter.ai/api/v1"
	OpenRouterDefaultModel = "google/gemini-2.5-flash-lite"
)

// attributionTransport adds the app attribution headers OpenRouter expects.
type attributionTransport struct {
	base http.RoundTripper
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("HTTP-Referer", "https://github.com/ldd/memit")
	req.Header.Set("X-Title", "Memit Extension")
	return t.base.RoundTrip(req)
}

// NewOpenRouterExplainer talks to the OpenAI-compatible aggregator endpoint.
// An empty baseURL selects OpenRouterBaseURL.
func NewOpenRouterExplainer(baseURL string) *ChatExplainer {
	if baseURL == "" {
		baseURL = OpenRouterBaseURL
	}
	httpClient := &http.Client{Transport: &attributionTransport{base: http.DefaultTransport}}

	return NewChatExplainer(models.ProviderOpenRouter, "OpenRouter", OpenRouterDefaultModel,
		func(ctx context.Context, apiKey, modelName string) (einomodel.BaseChatModel, error) {
			cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
				APIKey:     apiKey,
				Model:      modelName,
				BaseURL:    baseURL,
				HTTPClient: httpClient,
			})
			if err != nil {
				return nil, err
			}
			return cm, nil
		})
}
