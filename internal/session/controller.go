package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"memit/internal/broker"
	"memit/internal/events"
	"memit/internal/logging"
	"memit/internal/models"
	"memit/internal/utils"
)

const msgEmptyReply = "Failed to get an explanation. Please try again later."

// ErrNothingToSave is returned by Save when no successful result is shown.
var ErrNothingToSave = errors.New("no explanation to save")

// Messenger is the request side of the broker.
type Messenger interface {
	Send(ctx context.Context, msg broker.Message, onReply func(broker.Reply))
}

// SettingsSource is the part of the settings store the controller uses.
type SettingsSource interface {
	Snapshot(ctx context.Context) (*models.Settings, error)
	Set(ctx context.Context, values map[string]string) error
	OnChange(fn func(models.SettingsChanges)) func()
}

// RetryRequest asks for another explanation, optionally for new text.
type RetryRequest struct {
	Model   models.ModelRef
	APIKeys map[models.Provider]string
	// NewText replaces the session text when set. A different text starts a
	// new session; the same text adds a racer to the current one.
	NewText *string
}

// Option configures a Controller.
type Option func(*Controller)

// WithObserver registers fn to receive a View after every state change. It
// is called outside the controller lock.
func WithObserver(fn func(View)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

func WithHistoryLimit(n int) Option {
	return func(c *Controller) { c.history = NewHistory(n) }
}

// WithAsync sets how fire-and-forget settings writes run. The default starts
// a goroutine.
func WithAsync(run func(func())) Option {
	return func(c *Controller) { c.async = run }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller owns one query surface: the live session, its history and the
// requests in flight for it. All methods are safe for concurrent use.
type Controller struct {
	messenger Messenger
	settings  SettingsSource
	log       *zap.Logger
	async     func(func())
	now       func() time.Time
	observers []func(View)

	mu            sync.Mutex
	current       Snapshot
	epoch         epoch
	history       *History
	pendingModels []models.ModelRef
	saving        bool
	retrying      bool
	prefs         models.Settings
	unsubscribe   func()
}

func NewController(messenger Messenger, settings SettingsSource, opts ...Option) *Controller {
	c := &Controller{
		messenger: messenger,
		settings:  settings,
		log:       logging.Named("session"),
		async:     func(f func()) { go f() },
		now:       time.Now,
		current:   emptySnapshot(""),
		history:   NewHistory(DefaultHistoryLimit),
		prefs:     *models.SettingsFromValues(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open attaches the surface and starts a session for text.
func (c *Controller) Open(ctx context.Context, text string) error {
	return c.StartSession(ctx, text)
}

// attach makes sure the controller follows settings changes and reloads the
// cached preferences. It must be called without c.mu held.
func (c *Controller) attach(ctx context.Context) {
	c.mu.Lock()
	subscribed := c.unsubscribe != nil
	c.mu.Unlock()

	if !subscribed {
		unsub := c.settings.OnChange(c.onSettingsChanged)
		c.mu.Lock()
		if c.unsubscribe == nil {
			c.unsubscribe = unsub
			unsub = nil
		}
		c.mu.Unlock()
		if unsub != nil {
			unsub()
		}
	}

	if err := c.RefreshPreferences(ctx); err != nil {
		c.log.Warn("load settings", zap.Error(err))
	}
}

// Close detaches the surface. In-flight replies become inert; history is kept
// for the next Open.
func (c *Controller) Close() {
	c.mu.Lock()
	c.epoch.advance()
	c.pendingModels = nil
	c.saving = false
	c.retrying = false
	unsub := c.unsubscribe
	c.unsubscribe = nil
	view := c.viewLocked()
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.notify(view)
}

// RefreshPreferences re-reads settings into the controller's cache.
func (c *Controller) RefreshPreferences(ctx context.Context) error {
	st, err := c.settings.Snapshot(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.prefs = *st
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
	return nil
}

// StartSession pushes the live session onto history and asks the stored
// default model about text. Text over the word limit fails locally without
// any request.
func (c *Controller) StartSession(ctx context.Context, text string) error {
	c.attach(ctx)

	c.mu.Lock()
	c.beginSessionLocked(text)

	if err := utils.CheckWordLimit(text, utils.MaxWords); err != nil {
		c.current.Error = err.Error()
		c.current.IsProviderError = false
		view := c.viewLocked()
		c.mu.Unlock()

		c.notify(view)
		return err
	}

	send := c.dispatchLocked(ctx, text, c.prefs.Model)
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
	send()
	return nil
}

// beginSessionLocked records the live session in history (unless it is
// empty) and resets everything per-session.
func (c *Controller) beginSessionLocked(text string) {
	if !c.current.IsEmpty() {
		c.history.Push(c.current)
	}
	c.epoch.advance()
	c.current = emptySnapshot(text)
	c.pendingModels = nil
	c.saving = false
}

// dispatchLocked books a request under the current generation and returns
// the function that actually sends it, to be called after unlocking.
func (c *Controller) dispatchLocked(ctx context.Context, text string, ref models.ModelRef) func() {
	gen := c.epoch.generation
	c.epoch.pending++
	if !containsModel(c.pendingModels, ref) {
		c.pendingModels = append(c.pendingModels, ref)
	}
	started := c.now()

	msg := broker.ExplainText(text, ref)
	ctx = events.WithSession(ctx, SessionKey(gen))
	return func() {
		c.messenger.Send(ctx, msg, func(reply broker.Reply) {
			c.onResponse(gen, ref, started, reply)
		})
	}
}

// onResponse merges a reply into the session it was requested for, or drops
// it if that session has been superseded.
func (c *Controller) onResponse(gen uint64, ref models.ModelRef, started time.Time, reply broker.Reply) {
	c.mu.Lock()
	if !c.epoch.isCurrent(gen) {
		c.mu.Unlock()
		c.log.Debug("stale reply dropped", zap.String("model", ref.String()))
		return
	}

	c.epoch.settle()
	c.pendingModels = removeModel(c.pendingModels, ref)

	now := c.now()
	elapsed := now.Sub(started).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	entry := models.ResponseEntry{
		Model:          ref,
		ResponseTimeMs: elapsed,
		ReceivedAt:     now,
	}

	var promote models.ModelRef
	if reply.Error == "" && reply.Result != nil {
		entry.Status = models.ResponseSuccess
		entry.Result = reply.Result.Clone()
		c.epoch.successes++

		idx := c.current.upsert(entry)
		if c.current.Displayed == nil {
			c.current.ActiveIndex = idx
			c.current.Displayed = reply.Result.Clone()
			c.current.Error = ""
			c.current.IsProviderError = false
		}

		if fastest, ok := c.current.fastestSuccess(); ok && fastest.Model != c.prefs.Model {
			promote = fastest.Model
			c.prefs.Model = fastest.Model
		}
	} else {
		msg := reply.Error
		if msg == "" {
			msg = msgEmptyReply
		}
		entry.Status = models.ResponseError
		entry.Error = msg

		idx := c.current.upsert(entry)
		if c.epoch.pending == 0 && c.epoch.successes == 0 {
			c.current.ActiveIndex = idx
			c.current.Displayed = nil
			c.current.Error = msg
			c.current.IsProviderError = true
		}
	}
	view := c.viewLocked()
	c.mu.Unlock()

	if !promote.IsZero() {
		c.promoteDefaultModel(promote, entry.ResponseTimeMs)
	}
	c.notify(view)
}

// promoteDefaultModel stores the fastest model as the new default. Best
// effort: failures are logged and never retried.
func (c *Controller) promoteDefaultModel(ref models.ModelRef, elapsedMs int64) {
	c.async(func() {
		c.log.Info("switching default model", zap.String("model", ref.String()), zap.Int64("elapsed_ms", elapsedMs))
		if err := c.settings.Set(context.Background(), map[string]string{models.KeyModelID: ref.String()}); err != nil {
			c.log.Warn("store default model", zap.Error(err))
		}
	})
}

// SelectResponse shows the response at index. Out-of-range indexes are ignored.
func (c *Controller) SelectResponse(index int) {
	c.mu.Lock()
	if index < 0 || index >= len(c.current.Responses) {
		c.mu.Unlock()
		return
	}

	entry := c.current.Responses[index]
	c.current.ActiveIndex = index
	if entry.Succeeded() {
		c.current.Displayed = entry.Result.Clone()
		c.current.Error = ""
		c.current.IsProviderError = false
	} else {
		c.current.Displayed = nil
		c.current.Error = entry.Error
		if c.current.Error == "" {
			c.current.Error = "Request failed."
		}
		c.current.IsProviderError = true
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
}

// Retry persists the chosen model and keys, then asks again. See RetryRequest
// for how the text is treated.
func (c *Controller) Retry(ctx context.Context, req RetryRequest) error {
	if req.Model.IsZero() {
		return errors.New("model is required")
	}
	c.attach(ctx)

	c.mu.Lock()
	previousText := c.current.Text
	text := previousText
	if req.NewText != nil {
		text = *req.NewText
	}

	if err := utils.CheckWordLimit(text, utils.MaxWords); err != nil {
		c.current.Error = err.Error()
		c.current.IsProviderError = false
		c.current.Text = text
		view := c.viewLocked()
		c.mu.Unlock()

		c.notify(view)
		return err
	}

	c.retrying = true
	c.current.Error = ""
	gen := c.epoch.generation
	view := c.viewLocked()
	c.mu.Unlock()
	c.notify(view)

	updates := map[string]string{models.KeyModelID: req.Model.String()}
	for p, key := range req.APIKeys {
		if name, ok := models.APIKeySetting(p); ok {
			updates[name] = key
		}
	}
	if err := c.settings.Set(ctx, updates); err != nil {
		c.log.Warn("persist retry settings", zap.Error(err))
	}

	c.mu.Lock()
	c.retrying = false
	c.prefs.Model = req.Model
	for p, key := range req.APIKeys {
		if c.prefs.APIKeys == nil {
			c.prefs.APIKeys = make(map[models.Provider]string)
		}
		c.prefs.APIKeys[p] = key
	}

	// the session moved on while settings were written; leave it alone
	if !c.epoch.isCurrent(gen) {
		view = c.viewLocked()
		c.mu.Unlock()
		c.notify(view)
		return nil
	}

	if req.NewText != nil && text != previousText {
		c.beginSessionLocked(text)
	} else {
		c.current.Text = text
	}

	send := func() {}
	if text != "" {
		send = c.dispatchLocked(ctx, text, req.Model)
	}
	view = c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
	send()
	return nil
}

// NavigateBack restores the previous session. It reports false when there is
// none.
func (c *Controller) NavigateBack() bool {
	return c.navigate(c.history.Back)
}

// NavigateForward restores the session left by NavigateBack.
func (c *Controller) NavigateForward() bool {
	return c.navigate(c.history.Forward)
}

func (c *Controller) navigate(swap func(Snapshot) (Snapshot, bool)) bool {
	c.mu.Lock()
	restored, ok := swap(c.current)
	if !ok {
		c.mu.Unlock()
		return false
	}

	// a restored session is always settled
	c.epoch.advance()
	c.epoch.successes = restored.successCount()
	c.current = restored
	c.pendingModels = nil
	c.saving = false
	c.retrying = false
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
	return true
}

// Save sends the displayed explanation to the note service. The reply only
// applies if the session is still the one that was saved.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	if c.current.Displayed == nil {
		c.mu.Unlock()
		return ErrNothingToSave
	}
	if c.saving {
		c.mu.Unlock()
		return nil
	}

	c.saving = true
	gen := c.epoch.generation
	explanation := c.current.Displayed.Clone()
	word := explanation.Word
	if word == "" {
		word = c.current.Text
	}
	msg := broker.SaveToAnki(word, explanation)
	if entry, ok := c.current.ActiveEntry(); ok {
		msg.Model = entry.Model
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
	c.messenger.Send(events.WithSession(ctx, SessionKey(gen)), msg, func(reply broker.Reply) {
		c.onSaveReply(gen, reply)
	})
	return nil
}

func (c *Controller) onSaveReply(gen uint64, reply broker.Reply) {
	c.mu.Lock()
	if !c.epoch.isCurrent(gen) {
		c.mu.Unlock()
		return
	}

	c.saving = false
	if reply.Error != "" {
		c.current.SaveError = reply.Error
		c.current.IsSaved = false
	} else {
		c.current.SaveError = ""
		c.current.IsSaved = true
		c.log.Info("saved", zap.String("word", c.current.Text), zap.Int64("note_id", reply.NoteID))
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
}

// State returns a deep copy of the controller state.
func (c *Controller) State() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) onSettingsChanged(changes models.SettingsChanges) {
	c.mu.Lock()
	for key, change := range changes {
		switch key {
		case models.KeyModelID:
			if change.NewValue == "" {
				c.prefs.Model = models.ParseModelRef(models.DefaultModelID)
			} else {
				c.prefs.Model = models.ParseModelRef(change.NewValue)
			}
		case models.KeyTheme:
			c.prefs.Theme = change.NewValue
			if c.prefs.Theme == "" {
				c.prefs.Theme = models.DefaultTheme
			}
		case models.KeyResponseTimeout:
			if v, err := strconv.Atoi(change.NewValue); err == nil && v >= 0 {
				c.prefs.ResponseTimeout = v
			} else {
				c.prefs.ResponseTimeout = models.DefaultResponseTimeout
			}
		default:
			if p, ok := providerForKey(key); ok {
				if c.prefs.APIKeys == nil {
					c.prefs.APIKeys = make(map[models.Provider]string)
				}
				c.prefs.APIKeys[p] = change.NewValue
			}
		}
	}
	view := c.viewLocked()
	c.mu.Unlock()

	c.notify(view)
}

func (c *Controller) viewLocked() View {
	past, future := c.history.Depths()
	return View{
		Session:       c.current.Clone(),
		Phase:         c.phaseLocked(),
		Generation:    c.epoch.generation,
		Pending:       c.epoch.pending,
		PendingModels: append([]models.ModelRef(nil), c.pendingModels...),
		Saving:        c.saving,
		Retrying:      c.retrying,
		PastDepth:     past,
		FutureDepth:   future,
		CanGoBack:     past > 0,
		CanGoForward:  future > 0,
		Model:         c.prefs.Model,
		Theme:         c.prefs.Theme,
	}
}

func (c *Controller) phaseLocked() Phase {
	switch {
	case c.current.Displayed != nil:
		return PhaseSucceeded
	case c.epoch.pending > 0:
		return PhaseLoading
	case c.current.Error != "":
		return PhaseFailed
	default:
		return PhaseIdle
	}
}

func (c *Controller) notify(v View) {
	for _, fn := range c.observers {
		fn(v)
	}
}

func containsModel(list []models.ModelRef, ref models.ModelRef) bool {
	for _, m := range list {
		if m == ref {
			return true
		}
	}
	return false
}

func removeModel(list []models.ModelRef, ref models.ModelRef) []models.ModelRef {
	out := list[:0:0]
	for _, m := range list {
		if m != ref {
			out = append(out, m)
		}
	}
	return out
}

func providerForKey(key string) (models.Provider, bool) {
	for _, p := range models.KnownProviders {
		if name, ok := models.APIKeySetting(p); ok && name == key {
			return p, true
		}
	}
	return "", false
}
