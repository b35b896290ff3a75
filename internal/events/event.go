package events

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInfo    EventType = "info"
	EventWarn    EventType = "warn"
	EventSuccess EventType = "success"
	EventError   EventType = "error"
	EventState   EventType = "state"
)

const (
	SessionState   = "events:session:state"
	ModalOpen      = "events:modal:open"
	SaveResult     = "events:anki:save"
	SignInRequired = "events:anki:signin"
)

// Event is the payload pushed to the UI surface.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Message    string    `json:"message,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	SessionKey string    `json:"sessionKey,omitempty"`
	Data       any       `json:"data,omitempty"`
}

type contextKey string

const sessionContextKey contextKey = "memit/events/session"

// WithSession returns a derived context annotated with the given session key
// so event emitters can automatically scope payloads.
func WithSession(ctx context.Context, sessionKey string) context.Context {
	if strings.TrimSpace(sessionKey) == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey, sessionKey)
}

// SessionFromContext extracts the session key associated with ctx.
func SessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(sessionContextKey).(string); ok {
		return v
	}
	return ""
}

func CreateEvent(eventType EventType, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewInfo creates an info Event.
func NewInfo(message string) Event {
	return CreateEvent(EventInfo, message)
}

// NewWarn creates a warn Event.
func NewWarn(message string) Event {
	return CreateEvent(EventWarn, message)
}

// NewError creates an error Event.
func NewError(message string) Event {
	return CreateEvent(EventError, message)
}

// NewSuccess creates a success Event.
func NewSuccess(message string) Event {
	return CreateEvent(EventSuccess, message)
}

// NewState wraps a state snapshot for the UI.
func NewState(data any) Event {
	evt := CreateEvent(EventState, "")
	evt.Data = data
	return evt
}
