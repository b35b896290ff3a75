package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memit/internal/broker"
	"memit/internal/events"
	"memit/internal/models"
	"memit/internal/services"
	"memit/internal/tests/mocks"
)

var (
	modelX = models.ParseModelRef("gemini:gemini-2.0-flash")
	modelY = models.ParseModelRef("openrouter:x-ai/grok-4.1-fast")
	modelZ = models.ParseModelRef("memcool:gemini-2.5-flash")
)

type sentMessage struct {
	ctx   context.Context
	msg   broker.Message
	reply func(broker.Reply)
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeMessenger) Send(ctx context.Context, msg broker.Message, onReply func(broker.Reply)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ctx: ctx, msg: msg, reply: onReply})
}

func (f *fakeMessenger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMessenger) at(i int) sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[i]
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	ctrl      *Controller
	messenger *fakeMessenger
	store     services.SettingsStore
	clock     *manualClock
}

func newHarness(t *testing.T, defaultModel models.ModelRef, opts ...Option) *harness {
	t.Helper()
	store := services.NewSettingsStore(
		mocks.NewSettingRepositoryMock(map[string]string{models.KeyModelID: defaultModel.String()}),
		services.NewKeyringService(keyring.NewArrayKeyring(nil)),
	)
	h := &harness{
		messenger: &fakeMessenger{},
		store:     store,
		clock:     &manualClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	base := []Option{
		WithClock(h.clock.Now),
		WithAsync(func(f func()) {
			f()
		}),
	}
	h.ctrl = NewController(h.messenger, store, append(base, opts...)...)
	t.Cleanup(h.ctrl.Close)
	return h
}

func success(word string) broker.Reply {
	return broker.Reply{Result: &models.Explanation{Word: word, SimpleDefinition: "s", DetailedExplanation: "d", InChinese: "c"}}
}

func (h *harness) storedModel(t *testing.T) models.ModelRef {
	t.Helper()
	st, err := h.store.Snapshot(context.Background())
	require.NoError(t, err)
	return st.Model
}

func TestStartSession_RejectsLongTextWithoutRequest(t *testing.T) {
	h := newHarness(t, modelX)

	long := strings.TrimSpace(strings.Repeat("word ", 21))
	err := h.ctrl.StartSession(context.Background(), long)
	require.Error(t, err)

	v := h.ctrl.State()
	assert.Equal(t, PhaseFailed, v.Phase)
	assert.Contains(t, v.Session.Error, "21")
	assert.Contains(t, v.Session.Error, "20")
	assert.False(t, v.Session.IsProviderError)
	assert.Equal(t, 0, h.messenger.count())
}

func TestStartSession_WithoutOpenUsesStoredModel(t *testing.T) {
	h := newHarness(t, modelY)

	require.NoError(t, h.ctrl.StartSession(context.Background(), "word"))

	require.Equal(t, 1, h.messenger.count())
	assert.Equal(t, modelY, h.messenger.at(0).msg.Model)
	assert.Equal(t, modelY, h.ctrl.State().Model)
}

func TestStartSession_AfterCloseSeesExternalChange(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	h.ctrl.Close()
	require.NoError(t, h.store.Set(ctx, map[string]string{models.KeyModelID: modelZ.String()}))

	require.NoError(t, h.ctrl.StartSession(ctx, "next"))
	require.Equal(t, 2, h.messenger.count())
	assert.Equal(t, modelZ, h.messenger.at(1).msg.Model)

	// subscribed again
	require.NoError(t, h.store.Set(ctx, map[string]string{models.KeyModelID: modelY.String()}))
	assert.Equal(t, modelY, h.ctrl.State().Model)
}

func TestStartSession_DispatchesDefaultModel(t *testing.T) {
	h := newHarness(t, modelX)

	require.NoError(t, h.ctrl.Open(context.Background(), "serendipity"))

	require.Equal(t, 1, h.messenger.count())
	sent := h.messenger.at(0).msg
	assert.Equal(t, broker.KindExplainText, sent.Type)
	assert.Equal(t, "gen:1", events.SessionFromContext(h.messenger.at(0).ctx))
	assert.Equal(t, "serendipity", sent.Text)
	assert.Equal(t, modelX, sent.Model)

	v := h.ctrl.State()
	assert.Equal(t, PhaseLoading, v.Phase)
	assert.Equal(t, 1, v.Pending)
	assert.Equal(t, []models.ModelRef{modelX}, v.PendingModels)
	assert.Equal(t, -1, v.Session.ActiveIndex)
}

func TestOnResponse_UpsertKeepsPositionAndTakesLatest(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelY}))
	h.messenger.at(0).reply(success("first-x"))
	h.messenger.at(1).reply(success("y"))

	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelX}))
	h.clock.Advance(50 * time.Millisecond)
	h.messenger.at(2).reply(success("second-x"))

	v := h.ctrl.State()
	require.Len(t, v.Session.Responses, 2)
	assert.Equal(t, modelX, v.Session.Responses[0].Model)
	assert.Equal(t, "second-x", v.Session.Responses[0].Result.Word)
	assert.Equal(t, int64(50), v.Session.Responses[0].ResponseTimeMs)
	assert.Equal(t, modelY, v.Session.Responses[1].Model)
}

func TestOnResponse_FirstSuccessWinsDisplay(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelY}))

	h.messenger.at(1).reply(success("from-y"))
	h.messenger.at(0).reply(success("from-x"))

	v := h.ctrl.State()
	require.NotNil(t, v.Session.Displayed)
	assert.Equal(t, "from-y", v.Session.Displayed.Word)
	assert.Equal(t, 0, v.Session.ActiveIndex)
	require.Len(t, v.Session.Responses, 2)
	assert.Equal(t, models.ResponseSuccess, v.Session.Responses[0].Status)
	assert.Equal(t, models.ResponseSuccess, v.Session.Responses[1].Status)
	assert.Equal(t, PhaseSucceeded, v.Phase)
	assert.Equal(t, 0, v.Pending)
}

func TestOnResponse_FailureSurfacesOnlyWhenAllSettleWithoutSuccess(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelY}))

	h.messenger.at(0).reply(broker.Reply{Error: "x failed"})
	v := h.ctrl.State()
	assert.Equal(t, "", v.Session.Error)
	assert.Equal(t, PhaseLoading, v.Phase)
	assert.Len(t, v.Session.Responses, 1)

	h.messenger.at(1).reply(broker.Reply{})
	v = h.ctrl.State()
	assert.Equal(t, PhaseFailed, v.Phase)
	assert.Equal(t, msgEmptyReply, v.Session.Error)
	assert.True(t, v.Session.IsProviderError)
	assert.Equal(t, 1, v.Session.ActiveIndex)
}

func TestOnResponse_FailureAfterSuccessIsOnlyRecorded(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelY}))

	h.messenger.at(0).reply(success("x"))
	h.messenger.at(1).reply(broker.Reply{Error: "y failed"})

	v := h.ctrl.State()
	assert.Equal(t, "x", v.Session.Displayed.Word)
	assert.Equal(t, "", v.Session.Error)
	assert.Equal(t, "y failed", v.Session.Responses[1].Error)
}

func TestNavigateBack_DiscardsStaleReplies(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "a"))
	h.messenger.at(0).reply(success("a"))
	require.NoError(t, h.ctrl.StartSession(ctx, "b"))

	require.True(t, h.ctrl.NavigateBack())
	before := h.ctrl.State()

	h.messenger.at(1).reply(broker.Reply{Error: "late failure"})

	after := h.ctrl.State()
	assert.Equal(t, before, after)
	assert.Equal(t, "a", after.Session.Text)
	assert.Equal(t, 0, after.Pending)
}

func TestHistory_RoundTrip(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartSession(ctx, "a"))
	h.messenger.at(0).reply(success("a"))
	a := h.ctrl.State().Session
	assert.Equal(t, 0, h.ctrl.State().PastDepth)

	require.NoError(t, h.ctrl.StartSession(ctx, "b"))
	h.messenger.at(1).reply(success("b"))
	b := h.ctrl.State().Session

	require.True(t, h.ctrl.NavigateBack())
	v := h.ctrl.State()
	assert.Equal(t, a, v.Session)
	assert.Equal(t, 0, v.PastDepth)
	assert.Equal(t, 1, v.FutureDepth)
	assert.False(t, v.CanGoBack)
	assert.True(t, v.CanGoForward)
	assert.Equal(t, PhaseSucceeded, v.Phase)

	require.True(t, h.ctrl.NavigateForward())
	v = h.ctrl.State()
	assert.Equal(t, b, v.Session)
	assert.Equal(t, 1, v.PastDepth)
	assert.Equal(t, 0, v.FutureDepth)
	assert.True(t, v.CanGoBack)
	assert.False(t, v.CanGoForward)

	assert.False(t, h.ctrl.NavigateForward())
}

func TestHistory_SnapshotsAreImmutable(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartSession(ctx, "a"))
	h.messenger.at(0).reply(success("a"))
	require.NoError(t, h.ctrl.StartSession(ctx, "b"))
	require.True(t, h.ctrl.NavigateBack())

	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelY}))
	h.messenger.at(2).reply(success("a-y"))
	require.Len(t, h.ctrl.State().Session.Responses, 2)

	v := h.ctrl.State()
	v.Session.Responses[0].Result.Word = "tampered"
	assert.Equal(t, "a", h.ctrl.State().Session.Responses[0].Result.Word)
}

func TestRestore_SetsPendingToZero(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.StartSession(ctx, "a"))
	require.NoError(t, h.ctrl.StartSession(ctx, "b"))
	require.True(t, h.ctrl.NavigateBack())

	v := h.ctrl.State()
	assert.Equal(t, 0, v.Pending)
	assert.Empty(t, v.PendingModels)
	assert.NotEqual(t, PhaseLoading, v.Phase)
}

func TestPromotion_FastestModelWrittenOnce(t *testing.T) {
	h := newHarness(t, modelX)
	var promoted []models.ModelRef
	h.ctrl.async = func(f func()) {
		st := h.ctrl.State()
		promoted = append(promoted, st.Model)
		f()
	}
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word")) // X at t=0
	h.clock.Advance(300 * time.Millisecond)
	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelY})) // Y at t=300
	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelZ})) // Z at t=300

	h.clock.Advance(200 * time.Millisecond)
	h.messenger.at(1).reply(success("y")) // 200ms
	h.messenger.at(0).reply(success("x")) // 500ms
	h.clock.Advance(500 * time.Millisecond)
	h.messenger.at(2).reply(success("z")) // 700ms

	assert.Equal(t, []models.ModelRef{modelY}, promoted)
	assert.Equal(t, modelY, h.storedModel(t))
	assert.Equal(t, modelY, h.ctrl.State().Model)
}

func TestPromotion_NoWriteWhenDefaultAlreadyFastest(t *testing.T) {
	h := newHarness(t, modelX)
	calls := 0
	h.ctrl.async = func(f func()) { calls++; f() }
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	h.messenger.at(0).reply(success("x"))

	assert.Equal(t, 0, calls)
}

func TestSelectResponse(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelY}))
	h.messenger.at(0).reply(success("x"))
	h.messenger.at(1).reply(broker.Reply{Error: "quota"})

	h.ctrl.SelectResponse(1)
	v := h.ctrl.State()
	assert.Equal(t, 1, v.Session.ActiveIndex)
	assert.Nil(t, v.Session.Displayed)
	assert.Equal(t, "quota", v.Session.Error)
	assert.True(t, v.Session.IsProviderError)

	h.ctrl.SelectResponse(0)
	v = h.ctrl.State()
	assert.Equal(t, "x", v.Session.Displayed.Word)
	assert.Equal(t, "", v.Session.Error)

	h.ctrl.SelectResponse(7)
	assert.Equal(t, 0, h.ctrl.State().Session.ActiveIndex)
}

func TestRetry_PersistsKeysAndModel(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Open(ctx, "word"))

	err := h.ctrl.Retry(ctx, RetryRequest{
		Model:   modelY,
		APIKeys: map[models.Provider]string{models.ProviderOpenRouter: "sk-or"},
	})
	require.NoError(t, err)

	st, err := h.store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, modelY, st.Model)
	assert.Equal(t, "sk-or", st.APIKey(models.ProviderOpenRouter))

	require.Equal(t, 2, h.messenger.count())
	assert.Equal(t, modelY, h.messenger.at(1).msg.Model)
	assert.Equal(t, 2, h.ctrl.State().Pending)
	assert.Equal(t, 0, h.ctrl.State().PastDepth)
}

func TestRetry_NewTextStartsNewSession(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Open(ctx, "word"))
	h.messenger.at(0).reply(success("word"))

	text := "other"
	require.NoError(t, h.ctrl.Retry(ctx, RetryRequest{Model: modelY, NewText: &text}))

	v := h.ctrl.State()
	assert.Equal(t, "other", v.Session.Text)
	assert.Empty(t, v.Session.Responses)
	assert.Equal(t, 1, v.PastDepth)
	assert.Equal(t, "other", h.messenger.at(1).msg.Text)
}

// hookedSettings runs beforeSet ahead of every write.
type hookedSettings struct {
	services.SettingsStore
	beforeSet func()
}

func (s *hookedSettings) Set(ctx context.Context, values map[string]string) error {
	if s.beforeSet != nil {
		s.beforeSet()
	}
	return s.SettingsStore.Set(ctx, values)
}

func TestRetry_NavigationDuringWriteLeavesSessionsAlone(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()
	settings := &hookedSettings{SettingsStore: h.store}
	ctrl := NewController(h.messenger, settings,
		WithClock(h.clock.Now),
		WithAsync(func(f func()) { f() }),
	)
	t.Cleanup(ctrl.Close)

	require.NoError(t, ctrl.Open(ctx, "alpha"))
	h.messenger.at(0).reply(success("alpha"))
	require.NoError(t, ctrl.StartSession(ctx, "beta"))
	h.messenger.at(1).reply(success("beta"))
	beta := ctrl.State().Session

	settings.beforeSet = func() {
		settings.beforeSet = nil
		require.True(t, ctrl.NavigateBack())
	}
	text := "gamma"
	require.NoError(t, ctrl.Retry(ctx, RetryRequest{Model: modelY, NewText: &text}))

	v := ctrl.State()
	assert.Equal(t, "alpha", v.Session.Text)
	assert.Equal(t, "alpha", v.Session.Displayed.Word)
	assert.False(t, v.Retrying)
	assert.Equal(t, 0, v.Pending)
	assert.Equal(t, 2, h.messenger.count())
	assert.Equal(t, modelY, h.storedModel(t))

	require.True(t, ctrl.NavigateForward())
	assert.Equal(t, beta, ctrl.State().Session)
}

func TestRetry_RejectsLongText(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Open(ctx, "word"))

	long := strings.TrimSpace(strings.Repeat("w ", 25))
	err := h.ctrl.Retry(ctx, RetryRequest{Model: modelY, NewText: &long})
	require.Error(t, err)

	assert.Equal(t, 1, h.messenger.count())
	v := h.ctrl.State()
	assert.Contains(t, v.Session.Error, "25")
	assert.False(t, v.Session.IsProviderError)
	assert.Equal(t, modelX, h.storedModel(t))
}

func TestSave(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.ErrorIs(t, h.ctrl.Save(ctx), ErrNothingToSave)

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	h.messenger.at(0).reply(success("word"))

	require.NoError(t, h.ctrl.Save(ctx))
	assert.True(t, h.ctrl.State().Saving)

	sent := h.messenger.at(1)
	assert.Equal(t, broker.KindSaveToAnki, sent.msg.Type)
	assert.Equal(t, SessionKey(h.ctrl.State().Generation), events.SessionFromContext(sent.ctx))
	assert.Equal(t, "word", sent.msg.Word)
	assert.Equal(t, modelX, sent.msg.Model)

	sent.reply(broker.Reply{Error: "collection locked"})
	v := h.ctrl.State()
	assert.False(t, v.Saving)
	assert.False(t, v.Session.IsSaved)
	assert.Equal(t, "collection locked", v.Session.SaveError)
	assert.Equal(t, "word", v.Session.Displayed.Word)

	require.NoError(t, h.ctrl.Save(ctx))
	h.messenger.at(2).reply(broker.Reply{Success: true, NoteID: 9})
	v = h.ctrl.State()
	assert.True(t, v.Session.IsSaved)
	assert.Equal(t, "", v.Session.SaveError)
}

func TestSave_StaleReplyIgnored(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	h.messenger.at(0).reply(success("word"))
	require.NoError(t, h.ctrl.Save(ctx))
	require.NoError(t, h.ctrl.StartSession(ctx, "next"))

	h.messenger.at(1).reply(broker.Reply{Success: true, NoteID: 1})
	assert.False(t, h.ctrl.State().Session.IsSaved)
}

func TestClose_MakesRepliesInertAndUnsubscribes(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, h.ctrl.Open(ctx, "word"))
	h.ctrl.Close()
	h.messenger.at(0).reply(success("word"))

	assert.Empty(t, h.ctrl.State().Session.Responses)

	require.NoError(t, h.store.Set(ctx, map[string]string{models.KeyModelID: modelY.String()}))
	assert.Equal(t, modelX, h.ctrl.State().Model)
}

func TestSettingsChange_UpdatesCachedPreferences(t *testing.T) {
	h := newHarness(t, modelX)
	ctx := context.Background()
	require.NoError(t, h.ctrl.Open(ctx, "word"))

	require.NoError(t, h.store.Set(ctx, map[string]string{
		models.KeyModelID: modelZ.String(),
		models.KeyTheme:   "dark",
	}))

	v := h.ctrl.State()
	assert.Equal(t, modelZ, v.Model)
	assert.Equal(t, "dark", v.Theme)

	require.NoError(t, h.ctrl.StartSession(ctx, "next"))
	assert.Equal(t, modelZ, h.messenger.at(1).msg.Model)
}

func TestObserverReceivesViews(t *testing.T) {
	var views []View
	h := newHarness(t, modelX, WithObserver(func(v View) { views = append(views, v) }))

	require.NoError(t, h.ctrl.Open(context.Background(), "word"))
	h.messenger.at(0).reply(success("word"))

	require.NotEmpty(t, views)
	last := views[len(views)-1]
	assert.Equal(t, PhaseSucceeded, last.Phase)
	assert.Equal(t, "word", last.Session.Displayed.Word)
}

func TestControllersAreIndependent(t *testing.T) {
	a := newHarness(t, modelX)
	b := newHarness(t, modelX)
	ctx := context.Background()

	require.NoError(t, a.ctrl.StartSession(ctx, "one"))
	require.NoError(t, a.ctrl.StartSession(ctx, "two"))
	require.NoError(t, b.ctrl.StartSession(ctx, "solo"))

	b.messenger.at(0).reply(success("solo"))
	assert.Equal(t, "solo", b.ctrl.State().Session.Displayed.Word)
	assert.Equal(t, uint64(2), a.ctrl.State().Generation)
	assert.Equal(t, uint64(1), b.ctrl.State().Generation)
}
