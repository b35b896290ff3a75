package client

import (
	"context"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"memit/internal/logging"
	"memit/internal/models"
)

// ChatModelFactory builds a chat model bound to one API key and model name.
type ChatModelFactory func(ctx context.Context, apiKey, modelName string) (einomodel.BaseChatModel, error)

// ChatExplainer prompts a general-purpose chat model for a dictionary entry
// and parses the JSON reply.
type ChatExplainer struct {
	provider     models.Provider
	displayName  string
	defaultModel string
	newModel     ChatModelFactory
	log          *zap.Logger
}

func NewChatExplainer(provider models.Provider, displayName, defaultModel string, factory ChatModelFactory) *ChatExplainer {
	return &ChatExplainer{
		provider:     provider,
		displayName:  displayName,
		defaultModel: defaultModel,
		newModel:     factory,
		log:          logging.Named(string(provider)),
	}
}

func (e *ChatExplainer) Explain(ctx context.Context, text string, opts Options) (*models.Explanation, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, newProviderError(e.provider, 0, nil, "%s API Key is missing. Please set it in the extension options.", e.displayName)
	}

	name := strings.TrimSpace(opts.Model)
	if name == "" {
		name = e.defaultModel
	}

	cm, err := e.newModel(ctx, apiKey, name)
	if err != nil {
		e.log.Error("create chat model", zap.String("model", name), zap.Error(err))
		return nil, newProviderError(e.provider, 0, err, "Failed to create %s client: %v", e.displayName, err)
	}

	prompt, err := RenderExplainPrompt(text)
	if err != nil {
		return nil, newProviderError(e.provider, 0, err, "%v", err)
	}

	msg, err := cm.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		e.log.Warn("generate failed", zap.String("model", name), zap.Error(err))
		return nil, newProviderError(e.provider, 0, err, "%s API error: %v", e.displayName, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return nil, newProviderError(e.provider, 0, nil, "%s returned an empty response", e.displayName)
	}

	return decodeExplanation(e.provider, e.displayName, []byte(StripCodeFence(msg.Content)))
}

// StripCodeFence removes a leading ```json or ``` fence and a trailing ```.
func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = content[len("```json"):]
	} else if strings.HasPrefix(content, "```") {
		content = content[len("```"):]
	}
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
