package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"memit/internal/anki"
	"memit/internal/broker"
	"memit/internal/events"
	"memit/internal/logging"
	"memit/internal/models"
	"memit/internal/repositories"
)

const (
	msgNotSignedIn  = "Not signed in to Anki service. A sign-in tab has been opened; please sign in then try again."
	msgLoginExpired = "Your Anki service login expired. A sign-in tab has been opened; please sign in then try again."
)

// URLOpener shows a URL to the user, usually in the system browser.
type URLOpener interface {
	Open(url string) error
}

// URLOpenerFunc adapts a function to URLOpener.
type URLOpenerFunc func(url string) error

func (f URLOpenerFunc) Open(url string) error { return f(url) }

// LoginRequiredError means the save failed because the user must sign in
// again. A sign-in page has already been opened.
type LoginRequiredError struct {
	Message string
}

func (e *LoginRequiredError) Error() string { return e.Message }

// AnkiService stores explanations as cards on the note service.
type AnkiService interface {
	Save(ctx context.Context, word string, explanation *models.Explanation, model models.ModelRef) (int64, error)
	HandleSave(ctx context.Context, msg broker.Message) *broker.Reply
	ListSaved(ctx context.Context, limit, offset int) ([]models.SavedNote, error)
}

type ankiService struct {
	settings   SettingsStore
	notes      repositories.SavedNoteRepository
	opener     URLOpener
	httpClient *http.Client
	now        func() time.Time
	log        *zap.Logger
}

func NewAnkiService(settings SettingsStore, notes repositories.SavedNoteRepository, opener URLOpener, httpClient *http.Client) AnkiService {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ankiService{
		settings:   settings,
		notes:      notes,
		opener:     opener,
		httpClient: httpClient,
		now:        time.Now,
		log:        logging.Named("anki"),
	}
}

// Save tries the primary token (or the fallback when there is no primary),
// retries once with the fallback on an auth failure and promotes it when it
// works. When no token works both are cleared and sign-in is requested.
func (s *ankiService) Save(ctx context.Context, word string, explanation *models.Explanation, model models.ModelRef) (int64, error) {
	if strings.TrimSpace(word) == "" {
		return 0, errors.New("word is required")
	}
	if explanation == nil {
		return 0, errors.New("explanation is required")
	}

	st, err := s.settings.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	back, err := json.Marshal(explanation)
	if err != nil {
		return 0, fmt.Errorf("encode explanation: %w", err)
	}

	primary, fallback := st.AuthToken, st.AuthTokenFallback
	if primary == "" && fallback == "" {
		s.requestSignIn(ctx, st.AuthURL)
		return 0, &LoginRequiredError{Message: msgNotSignedIn}
	}

	first, second := primary, ""
	if primary == "" {
		first = fallback
	} else {
		second = fallback
	}

	c := anki.NewClient(st.BackendURL, s.httpClient)

	noteID, err := s.attempt(ctx, c, word, string(back), first)
	if err == nil {
		s.record(ctx, word, noteID, model, back)
		return noteID, nil
	}

	if anki.IsAuthError(err) && second != "" {
		s.log.Info("primary token rejected, trying fallback", zap.Error(err))
		noteID, err2 := s.attempt(ctx, c, word, string(back), second)
		if err2 == nil {
			s.promoteFallback(ctx, second)
			s.record(ctx, word, noteID, model, back)
			return noteID, nil
		}
		if anki.IsAuthError(err2) {
			return 0, s.expireLogin(ctx, st.AuthURL)
		}
		return 0, err2
	}

	if anki.IsAuthError(err) {
		return 0, s.expireLogin(ctx, st.AuthURL)
	}
	return 0, err
}

func (s *ankiService) attempt(ctx context.Context, c *anki.Client, front, back, token string) (int64, error) {
	if _, err := c.WhoAmI(ctx, token); err != nil {
		return 0, err
	}
	return c.AddNote(ctx, front, back, token)
}

func (s *ankiService) promoteFallback(ctx context.Context, token string) {
	if err := s.settings.Set(ctx, map[string]string{models.KeyAuthToken: token}); err != nil {
		s.log.Error("promote fallback token", zap.Error(err))
		return
	}
	if err := s.settings.Remove(ctx, models.KeyAuthTokenFallback); err != nil {
		s.log.Error("remove fallback token", zap.Error(err))
	}
}

func (s *ankiService) expireLogin(ctx context.Context, authURL string) error {
	if err := s.settings.Remove(ctx, models.KeyAuthToken, models.KeyAuthTokenFallback); err != nil {
		s.log.Error("clear auth tokens", zap.Error(err))
	}
	s.requestSignIn(ctx, authURL)
	return &LoginRequiredError{Message: msgLoginExpired}
}

// requestSignIn marks auth as pending before opening the page so a token
// arriving quickly is not mistaken for a stale one.
func (s *ankiService) requestSignIn(ctx context.Context, authURL string) {
	err := s.settings.Set(ctx, map[string]string{
		models.KeyAuthPending:      "true",
		models.KeyAuthPendingSince: strconv.FormatInt(s.now().UnixMilli(), 10),
	})
	if err != nil {
		s.log.Error("mark auth pending", zap.Error(err))
	}

	target := SignInURL(authURL)
	if target == "" || s.opener == nil {
		return
	}
	if err := s.opener.Open(target); err != nil {
		s.log.Error("open sign-in page", zap.String("url", target), zap.Error(err))
	}
}

func (s *ankiService) record(ctx context.Context, word string, noteID int64, model models.ModelRef, back []byte) {
	note := &models.SavedNote{
		Word:            word,
		NoteID:          noteID,
		Model:           model.String(),
		ExplanationJSON: string(back),
	}
	if err := s.notes.Create(ctx, note); err != nil {
		s.log.Warn("record saved note", zap.Int64("note_id", noteID), zap.Error(err))
	}
}

func (s *ankiService) HandleSave(ctx context.Context, msg broker.Message) *broker.Reply {
	noteID, err := s.Save(ctx, msg.Word, msg.Explanation, msg.Model)
	if err != nil {
		var login *LoginRequiredError
		if errors.As(err, &login) {
			events.Emit(ctx, events.SignInRequired, events.NewWarn(login.Message))
			return &broker.Reply{Error: login.Message, NeedsLogin: true}
		}
		events.Emit(ctx, events.SaveResult, events.NewError(err.Error()))
		return broker.ErrorReply(err.Error())
	}
	events.Emit(ctx, events.SaveResult, events.NewSuccess(fmt.Sprintf("Saved \"%s\" (note %d)", msg.Word, noteID)))
	return &broker.Reply{Success: true, NoteID: noteID}
}

func (s *ankiService) ListSaved(ctx context.Context, limit, offset int) ([]models.SavedNote, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.notes.List(ctx, limit, offset)
}

// SignInURL appends the extension-auth marker to the auth base URL.
func SignInURL(authURL string) string {
	base := models.NormalizeBaseURL(authURL)
	if base == "" {
		base = models.DefaultAuthURL
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return base
	}
	if u.Path == "" {
		u.Path = "/"
	}
	q := u.Query()
	q.Set("memit_ext_auth", "1")
	u.RawQuery = q.Encode()
	return u.String()
}
