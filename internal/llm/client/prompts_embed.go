package client

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"
)

// embeddedPrompts holds the built-in prompt templates so packaged executables
// can load them without needing access to the source tree.
//
//go:embed prompts/*.txt
var embeddedPrompts embed.FS

var (
	explainTmpl     *template.Template
	explainTmplErr  error
	explainTmplOnce sync.Once
)

// RenderExplainPrompt fills the dictionary prompt for word.
func RenderExplainPrompt(word string) (string, error) {
	explainTmplOnce.Do(func() {
		explainTmpl, explainTmplErr = template.ParseFS(embeddedPrompts, "prompts/explain.txt")
	})
	if explainTmplErr != nil {
		return "", fmt.Errorf("parse explain prompt: %w", explainTmplErr)
	}

	var buf bytes.Buffer
	if err := explainTmpl.Execute(&buf, struct{ Word string }{word}); err != nil {
		return "", fmt.Errorf("render explain prompt: %w", err)
	}
	return buf.String(), nil
}
