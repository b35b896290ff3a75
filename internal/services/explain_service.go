package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"memit/internal/broker"
	"memit/internal/llm/client"
	"memit/internal/logging"
	"memit/internal/models"
	"memit/internal/utils"
)

var ErrTextRequired = errors.New("text is required")

// TimeoutError reports a provider call cut off by the response timeout.
type TimeoutError struct {
	Seconds int
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out after %ds", e.Seconds)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ExplainService resolves a model reference to a provider and fetches an
// explanation, applying the user's keys and response timeout.
type ExplainService interface {
	Explain(ctx context.Context, text string, ref models.ModelRef) (*models.Explanation, error)
	HandleExplain(ctx context.Context, msg broker.Message) *broker.Reply
}

type explainService struct {
	settings   SettingsStore
	explainers map[models.Provider]client.Explainer
	cache      *expirable.LRU[string, *models.Explanation]
	inflight   singleflight.Group
	log        *zap.Logger
}

// NewExplainService caches successful explanations for cacheTTL; a cacheSize
// of zero disables caching.
func NewExplainService(settings SettingsStore, explainers map[models.Provider]client.Explainer, cacheSize int, cacheTTL time.Duration) ExplainService {
	s := &explainService{
		settings:   settings,
		explainers: explainers,
		log:        logging.Named("explain"),
	}
	if cacheSize > 0 {
		s.cache = expirable.NewLRU[string, *models.Explanation](cacheSize, nil, cacheTTL)
	}
	return s
}

func (s *explainService) Explain(ctx context.Context, text string, ref models.ModelRef) (*models.Explanation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrTextRequired
	}
	if err := utils.CheckWordLimit(text, utils.MaxWords); err != nil {
		return nil, err
	}

	st, err := s.settings.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if ref.IsZero() {
		ref = st.Model
	}

	explainer, ok := s.explainers[ref.Provider]
	if !ok {
		return nil, fmt.Errorf("no explainer configured for provider %s", ref.Provider)
	}

	key := ref.String() + "\x00" + text
	if s.cache != nil {
		if hit, ok := s.cache.Get(key); ok {
			s.log.Debug("cache hit", zap.String("model", ref.String()))
			return hit.Clone(), nil
		}
	}

	opts := client.Options{Model: ref.Name, APIKey: st.APIKey(ref.Provider)}
	if ref.Provider == models.ProviderMemcool {
		opts.BaseURL = st.BackendURL
	}

	v, err, shared := s.inflight.Do(key, func() (interface{}, error) {
		callCtx := ctx
		if st.ResponseTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, time.Duration(st.ResponseTimeout)*time.Second)
			defer cancel()
		}

		started := time.Now()
		res, err := explainer.Explain(callCtx, text, opts)
		elapsed := time.Since(started)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = &TimeoutError{Seconds: st.ResponseTimeout, Err: err}
			}
			s.log.Warn("explain failed", zap.String("model", ref.String()), zap.Duration("elapsed", elapsed), zap.Error(err))
			return nil, err
		}

		s.log.Info("explained", zap.String("model", ref.String()), zap.Duration("elapsed", elapsed))
		if s.cache != nil {
			s.cache.Add(key, res.Clone())
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug("joined in-flight request", zap.String("model", ref.String()))
	}
	return v.(*models.Explanation).Clone(), nil
}

func (s *explainService) HandleExplain(ctx context.Context, msg broker.Message) *broker.Reply {
	res, err := s.Explain(ctx, msg.Text, msg.Model)
	if err != nil {
		return broker.ErrorReply(explainReplyMessage(err))
	}
	return &broker.Reply{Result: res}
}

// explainReplyMessage renders err as shown in the result panel.
func explainReplyMessage(err error) string {
	var verr *utils.ValidationError
	var terr *TimeoutError
	switch {
	case errors.As(err, &verr):
		return fmt.Sprintf("Text too long (%d words). Maximum is %d words.", verr.Words, verr.Max)
	case errors.As(err, &terr):
		return fmt.Sprintf("Request timed out after %d seconds.", terr.Seconds)
	}
	return err.Error()
}
