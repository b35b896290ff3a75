package broker

import "memit/internal/models"

// Kind names a message type. Values match the extension wire protocol.
type Kind string

const (
	KindExplainText Kind = "EXPLAIN_TEXT"
	KindSaveToAnki  Kind = "SAVE_TO_ANKI"
	KindOpenModal   Kind = "OPEN_MODAL"
	KindAuthToken   Kind = "ANKI_AUTH_TOKEN"
)

func (k Kind) Valid() bool {
	switch k {
	case KindExplainText, KindSaveToAnki, KindOpenModal, KindAuthToken:
		return true
	}
	return false
}

// Message is the flat envelope shared by every kind; only the fields for its
// kind are set.
type Message struct {
	ID   string `json:"id,omitempty"`
	Type Kind   `json:"type"`

	// EXPLAIN_TEXT, OPEN_MODAL
	Text  string          `json:"text,omitempty"`
	Model models.ModelRef `json:"modelId"`

	// SAVE_TO_ANKI
	Word        string              `json:"word,omitempty"`
	Explanation *models.Explanation `json:"explanation,omitempty"`

	// ANKI_AUTH_TOKEN
	Token         string `json:"token,omitempty"`
	FallbackToken string `json:"fallbackToken,omitempty"`
	TokenType     string `json:"tokenType,omitempty"`
}

// Reply is the single answer to a request. Exactly one of Result, Error or
// Success is meaningful.
type Reply struct {
	Result     *models.Explanation `json:"result,omitempty"`
	Error      string              `json:"error,omitempty"`
	Success    bool                `json:"success,omitempty"`
	NoteID     int64               `json:"noteId,omitempty"`
	NeedsLogin bool                `json:"needsLogin,omitempty"`
}

func ErrorReply(msg string) *Reply {
	return &Reply{Error: msg}
}

func ExplainText(text string, model models.ModelRef) Message {
	return Message{Type: KindExplainText, Text: text, Model: model}
}

func SaveToAnki(word string, explanation *models.Explanation) Message {
	return Message{Type: KindSaveToAnki, Word: word, Explanation: explanation}
}

func OpenModal(text string) Message {
	return Message{Type: KindOpenModal, Text: text}
}
