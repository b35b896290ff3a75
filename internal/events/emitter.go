package events

import (
	"context"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

var Emit = func(ctx context.Context, name string, evt Event) {}

// EnableRuntimeEmitter forwards events to the Wails frontend. Only call it with
// the context Wails passes to OnStartup.
func EnableRuntimeEmitter() {
	Emit = func(ctx context.Context, name string, evt Event) {
		if evt.SessionKey == "" {
			if session := SessionFromContext(ctx); session != "" {
				evt.SessionKey = session
			}
		}

		runtime.EventsEmit(ctx, name, evt)

		if evt.Type != EventState {
			logRuntimeEvent(ctx, name, evt)
		}
	}
}

func SetCustomEmitter(f func(ctx context.Context, name string, evt Event)) {
	if f == nil {
		Emit = func(context.Context, string, Event) {}
		return
	}
	Emit = func(ctx context.Context, name string, evt Event) {
		if evt.SessionKey == "" {
			if session := SessionFromContext(ctx); session != "" {
				evt.SessionKey = session
			}
		}
		f(ctx, name, evt)
	}
}
