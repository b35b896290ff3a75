package anki

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_WhoAmI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/whoami", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"user_id":"u1","collection_id":"c1","auth_mode":"jwt","jwt_alg":"HS256"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())

	id, err := c.WhoAmI(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)

	_, err = c.WhoAmI(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, "Auth Error: 401 Unauthorized", err.Error())
	assert.True(t, IsAuthError(err))

	_, err = c.WhoAmI(context.Background(), "")
	assert.True(t, IsAuthError(err))
}

func TestClient_AddNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/note/add", r.URL.Path)

		var body struct {
			Fields []string `json:"fields"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"front", "back"}, body.Fields)

		_, _ = w.Write([]byte(`{"note_id":1712345}`))
	}))
	defer srv.Close()

	id, err := NewClient(srv.URL+"/", srv.Client()).AddNote(context.Background(), "front", "back", "tok")
	require.NoError(t, err)
	assert.Equal(t, int64(1712345), id)
}

func TestClient_AddNote_Errors(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		want     string
		authFail bool
	}{
		{"server error with message", 500, `{"error":"collection locked"}`, "collection locked", false},
		{"server error without body", 502, ``, "Anki Error: 502 Bad Gateway", false},
		{"forbidden", 403, `{"error":"token revoked"}`, "token revoked", true},
		{"missing bearer in body", 200, `{"error":"Missing Bearer token"}`, "Missing Bearer token", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client()).AddNote(context.Background(), "f", "b", "t")
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
			assert.Equal(t, tc.authFail, IsAuthError(err))
		})
	}
}

func TestIsAuthError(t *testing.T) {
	assert.False(t, IsAuthError(nil))
	assert.False(t, IsAuthError(errors.New("Auth Error: 500 Internal Server Error")))
	assert.False(t, IsAuthError(&AuthError{StatusCode: 500, Message: "Auth Error: 500 Internal Server Error"}))
	assert.True(t, IsAuthError(&AuthError{StatusCode: 403, Message: "Auth Error: 403 Forbidden"}))
}
