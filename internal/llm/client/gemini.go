package client

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"memit/internal/models"
)

const GeminiDefaultModel = "gemini-2.0-flash"

func NewGeminiExplainer() *ChatExplainer {
	return NewChatExplainer(models.ProviderGemini, "Gemini", GeminiDefaultModel,
		func(ctx context.Context, apiKey, modelName string) (einomodel.BaseChatModel, error) {
			gc, err := genai.NewClient(ctx, &genai.ClientConfig{
				APIKey:  apiKey,
				Backend: genai.BackendGeminiAPI,
			})
			if err != nil {
				return nil, err
			}
			cm, err := gemini.NewChatModel(ctx, &gemini.Config{
				Client: gc,
				Model:  modelName,
			})
			if err != nil {
				return nil, err
			}
			return cm, nil
		})
}
