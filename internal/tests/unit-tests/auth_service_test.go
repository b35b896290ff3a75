package unit_tests

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memit/internal/broker"
	"memit/internal/models"
	"memit/internal/services"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestAuthService_StoresTokensAndClearsPending(t *testing.T) {
	store, _, _ := newSettingsStore(t, nil)
	mustSet(t, store, map[string]string{
		models.KeyAuthPending:       "true",
		models.KeyAuthPendingSince:  "1700000000000",
		models.KeyAuthTokenType:     "legacy",
		models.KeyAuthTokenFallback: "old-fb",
	})
	svc := services.NewAuthService(store)

	primary := signedToken(t, time.Now().Add(time.Hour))
	reply := svc.HandleAuthToken(context.Background(), broker.Message{
		Type: broker.KindAuthToken, Token: primary, TokenType: "jwt",
	})
	assert.Equal(t, broker.Reply{Success: true}, *reply)

	st, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, primary, st.AuthToken)
	assert.Equal(t, "", st.AuthTokenFallback)
	assert.Equal(t, "jwt", st.AuthTokenType)
	assert.False(t, st.AuthPending)
	assert.True(t, st.AuthPendingSince.IsZero())
}

func TestAuthService_KeepsFallback(t *testing.T) {
	store, _, _ := newSettingsStore(t, nil)
	svc := services.NewAuthService(store)

	require.NoError(t, svc.StoreToken(context.Background(), "opaque-primary", "opaque-fb", ""))

	st, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-primary", st.AuthToken)
	assert.Equal(t, "opaque-fb", st.AuthTokenFallback)
	assert.Equal(t, "", st.AuthTokenType)
}

func TestAuthService_RejectsMissingAndExpired(t *testing.T) {
	store, _, _ := newSettingsStore(t, nil)
	svc := services.NewAuthService(store)

	reply := svc.HandleAuthToken(context.Background(), broker.Message{Type: broker.KindAuthToken})
	assert.Equal(t, "Missing token", reply.Error)

	expiring := signedToken(t, time.Now().Add(10*time.Second))
	err := svc.StoreToken(context.Background(), expiring, "", "")
	assert.ErrorIs(t, err, services.ErrTokenExpired)

	reply = svc.HandleAuthToken(context.Background(), broker.Message{Type: broker.KindAuthToken, Token: expiring})
	assert.Equal(t, "Token expired", reply.Error)

	st, err := store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "", st.AuthToken)
}
