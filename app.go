package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"memit/internal/bridge"
	"memit/internal/broker"
	"memit/internal/config"
	"memit/internal/events"
	"memit/internal/logging"
	"memit/internal/models"
	"memit/internal/services"
	"memit/internal/session"
	"memit/internal/utils"
)

// App is the surface bound to the frontend. It owns one session controller
// and forwards everything else to the background services.
type App struct {
	ctx      context.Context
	cfg      *config.Config
	log      *zap.Logger
	services *services.Services
	broker   *broker.Broker

	controller  *session.Controller
	bridge      *bridge.Server
	cancel      context.CancelFunc
	unsubscribe func()
	dbClose     func() error
}

// RetryInput is the frontend form of a retry request.
type RetryInput struct {
	ModelID string            `json:"modelId"`
	APIKeys map[string]string `json:"apiKeys"`
	// Text replaces the query when set.
	Text *string `json:"text,omitempty"`
}

// PositionInput carries the measurements needed to place the result panel.
type PositionInput struct {
	Selection *utils.Rect    `json:"selection"`
	Viewport  utils.Viewport `json:"viewport"`
	Surface   utils.Size     `json:"surface"`
}

func NewApp(cfg *config.Config) *App {
	return &App{cfg: cfg, log: logging.Named("app")}
}

// startup is called when the app starts. The context is saved so we can call
// the runtime methods.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	events.EnableRuntimeEmitter()

	if err := a.services.Startup(ctx); err != nil {
		a.log.Error("start services", zap.Error(err))
		runtime.LogError(ctx, fmt.Sprintf("failed to start services: %v", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.broker.Start(runCtx)

	if a.cfg.Bridge.Enabled {
		a.bridge = bridge.New(a.broker, bridge.Options{
			Addr:          a.cfg.Bridge.Addr,
			RatePerSecond: a.cfg.Bridge.RatePerSecond,
			Burst:         a.cfg.Bridge.Burst,
		})
		go func() {
			if err := a.bridge.Run(runCtx); err != nil {
				a.log.Error("bridge stopped", zap.Error(err))
			}
		}()
	}

	a.controller = session.NewController(a.broker, a.services.Settings,
		session.WithHistoryLimit(a.cfg.Session.HistoryLimit),
		session.WithObserver(a.publishState),
	)
	a.unsubscribe = a.broker.Subscribe(a.onPush)
}

// shutdown is called when the app is closing. Clean up resources here.
func (a *App) shutdown(ctx context.Context) {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.controller != nil {
		a.controller.Close()
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.broker.Close()

	if a.dbClose != nil {
		if err := a.dbClose(); err != nil {
			runtime.LogError(ctx, fmt.Sprintf("failed to close database: %v", err))
		} else {
			runtime.LogInfo(ctx, "database closed")
		}
		a.dbClose = nil
	}
}

func (a *App) openURL(url string) error {
	if a.ctx == nil {
		return errors.New("runtime not started")
	}
	runtime.BrowserOpenURL(a.ctx, url)
	return nil
}

// publishState forwards a controller view, keyed by its session generation.
func (a *App) publishState(v session.View) {
	evt := events.NewState(v)
	evt.SessionKey = session.SessionKey(v.Generation)
	if a.ctx != nil {
		events.Emit(a.ctx, events.SessionState, evt)
	}
	if a.bridge != nil {
		a.bridge.Publish(events.SessionState, evt)
	}
}

// onPush opens a session for every OPEN_MODAL, whichever side pushed it.
func (a *App) onPush(msg broker.Message) {
	if msg.Type != broker.KindOpenModal {
		return
	}
	events.Emit(a.ctx, events.ModalOpen, events.NewInfo(msg.Text))
	if a.ctx != nil {
		runtime.WindowShow(a.ctx)
	}

	err := a.controller.Open(a.ctx, msg.Text)
	var verr *utils.ValidationError
	if err != nil && !errors.As(err, &verr) {
		a.log.Warn("open session", zap.Error(err))
	}
}

// ExplainSelection is the context-menu entry point.
func (a *App) ExplainSelection(text string) {
	a.broker.Push(broker.OpenModal(text))
}

// StartSession asks about text in a new session, keeping the old one in history.
func (a *App) StartSession(text string) (session.View, error) {
	err := a.controller.StartSession(a.ctx, text)
	return a.controller.State(), err
}

func (a *App) Retry(in RetryInput) (session.View, error) {
	keys := make(map[models.Provider]string, len(in.APIKeys))
	for p, k := range in.APIKeys {
		keys[models.Provider(p)] = k
	}
	err := a.controller.Retry(a.ctx, session.RetryRequest{
		Model:   models.ParseModelRef(in.ModelID),
		APIKeys: keys,
		NewText: in.Text,
	})
	return a.controller.State(), err
}

func (a *App) SelectResponse(index int) session.View {
	a.controller.SelectResponse(index)
	return a.controller.State()
}

func (a *App) Back() session.View {
	a.controller.NavigateBack()
	return a.controller.State()
}

func (a *App) Forward() session.View {
	a.controller.NavigateForward()
	return a.controller.State()
}

// Save sends the shown explanation to the note service. The outcome arrives
// as a state event.
func (a *App) Save() error {
	return a.controller.Save(a.ctx)
}

// CloseModal detaches the result panel and hides the window.
func (a *App) CloseModal() {
	a.controller.Close()
	if a.ctx != nil {
		runtime.WindowHide(a.ctx)
	}
}

func (a *App) State() session.View {
	return a.controller.State()
}

func (a *App) ModalPosition(in PositionInput) utils.Point {
	return utils.CalculatePosition(in.Selection, in.Viewport, in.Surface)
}

func (a *App) ListModelGroups() ([]models.LLMModelGroup, error) {
	return a.services.Catalog.ListModelGroups()
}

// GetSettings returns the named settings, or all of them when none are named.
func (a *App) GetSettings(keys []string) (map[string]string, error) {
	return a.services.Settings.Get(a.ctx, keys...)
}

func (a *App) SetSettings(values map[string]string) error {
	return a.services.Settings.Set(a.ctx, values)
}

func (a *App) ListSavedNotes(limit, offset int) ([]models.SavedNote, error) {
	return a.services.Anki.ListSaved(a.ctx, limit, offset)
}
