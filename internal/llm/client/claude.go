package client

import (
	"context"

	"github.com/cloudwego/eino-ext/components/model/claude"
	einomodel "github.com/cloudwego/eino/components/model"

	"memit/internal/models"
)

const (
	ClaudeDefaultModel = "claude-3-5-haiku-latest"
	claudeMaxTokens    = 2048
)

func NewClaudeExplainer() *ChatExplainer {
	return NewChatExplainer(models.ProviderAnthropic, "Anthropic", ClaudeDefaultModel,
		func(ctx context.Context, apiKey, modelName string) (einomodel.BaseChatModel, error) {
			cm, err := claude.NewChatModel(ctx, &claude.Config{
				APIKey:    apiKey,
				Model:     modelName,
				MaxTokens: claudeMaxTokens,
			})
			if err != nil {
				return nil, err
			}
			return cm, nil
		})
}
