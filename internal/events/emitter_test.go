package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetCustomEmitter_FillsSessionFromContext(t *testing.T) {
	t.Cleanup(func() { SetCustomEmitter(nil) })

	var got Event
	var gotName string
	SetCustomEmitter(func(ctx context.Context, name string, evt Event) {
		gotName = name
		got = evt
	})

	ctx := WithSession(context.Background(), "gen:3")
	Emit(ctx, SessionState, NewState(map[string]int{"pending": 1}))

	assert.Equal(t, SessionState, gotName)
	assert.Equal(t, "gen:3", got.SessionKey)
	assert.Equal(t, EventState, got.Type)
	assert.NotEmpty(t, got.ID)
}

func TestSetCustomEmitter_KeepsExplicitSession(t *testing.T) {
	t.Cleanup(func() { SetCustomEmitter(nil) })

	var got Event
	SetCustomEmitter(func(_ context.Context, _ string, evt Event) { got = evt })

	evt := NewError("boom")
	evt.SessionKey = "explicit"
	Emit(WithSession(context.Background(), "ctx"), SignInRequired, evt)

	assert.Equal(t, "explicit", got.SessionKey)
	assert.Equal(t, "boom", got.Message)
}

func TestWithSession_IgnoresBlank(t *testing.T) {
	ctx := WithSession(context.Background(), "  ")
	assert.Equal(t, "", SessionFromContext(ctx))
	assert.Equal(t, "", SessionFromContext(nil))
}
