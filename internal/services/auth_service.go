package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"memit/internal/broker"
	"memit/internal/logging"
	"memit/internal/models"
)

// minTokenLifetime rejects tokens that would expire before they could be used.
const minTokenLifetime = 30 * time.Second

var (
	ErrTokenRequired = errors.New("token is required")
	ErrTokenExpired  = errors.New("token expired")
)

// AuthService accepts tokens forwarded from the sign-in page.
type AuthService interface {
	StoreToken(ctx context.Context, token, fallbackToken, tokenType string) error
	HandleAuthToken(ctx context.Context, msg broker.Message) *broker.Reply
}

type authService struct {
	settings SettingsStore
	now      func() time.Time
	log      *zap.Logger
}

func NewAuthService(settings SettingsStore) AuthService {
	return &authService{
		settings: settings,
		now:      time.Now,
		log:      logging.Named("auth"),
	}
}

// StoreToken saves the primary token, and the fallback and type tag when
// present, removing stale ones. Pending sign-in state is cleared.
func (s *authService) StoreToken(ctx context.Context, token, fallbackToken, tokenType string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenRequired
	}
	if s.expiresSoon(token) {
		return ErrTokenExpired
	}

	set := map[string]string{models.KeyAuthToken: token}
	remove := []string{models.KeyAuthPending, models.KeyAuthPendingSince}

	if fb := strings.TrimSpace(fallbackToken); fb != "" && !s.expiresSoon(fb) {
		set[models.KeyAuthTokenFallback] = fb
	} else {
		remove = append(remove, models.KeyAuthTokenFallback)
	}
	if tt := strings.TrimSpace(tokenType); tt != "" {
		set[models.KeyAuthTokenType] = tt
	} else {
		remove = append(remove, models.KeyAuthTokenType)
	}

	if err := s.settings.Set(ctx, set); err != nil {
		return err
	}
	if err := s.settings.Remove(ctx, remove...); err != nil {
		return err
	}
	s.log.Info("auth token stored", zap.Bool("has_fallback", set[models.KeyAuthTokenFallback] != ""))
	return nil
}

// expiresSoon reads the exp claim without verifying the signature; the note
// service does the verification. Opaque tokens are accepted.
func (s *authService) expiresSoon(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Time.Before(s.now().Add(minTokenLifetime))
}

func (s *authService) HandleAuthToken(ctx context.Context, msg broker.Message) *broker.Reply {
	err := s.StoreToken(ctx, msg.Token, msg.FallbackToken, msg.TokenType)
	switch {
	case err == nil:
	case errors.Is(err, ErrTokenRequired):
		return broker.ErrorReply("Missing token")
	case errors.Is(err, ErrTokenExpired):
		return broker.ErrorReply("Token expired")
	default:
		return broker.ErrorReply(err.Error())
	}
	return &broker.Reply{Success: true}
}
