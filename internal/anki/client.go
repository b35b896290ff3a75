package anki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"memit/internal/models"
)

const maxBodyBytes = 1 << 20

// AuthError reports a rejected or missing bearer token.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// IsAuthError reports whether err means the token must be replaced: a 401 or
// 403 from the service, or a missing bearer token.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) && (authErr.StatusCode == http.StatusUnauthorized || authErr.StatusCode == http.StatusForbidden) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Auth Error: 401") ||
		strings.Contains(msg, "Auth Error: 403") ||
		strings.Contains(msg, "Missing Bearer token")
}

// Identity is the whoami payload.
type Identity struct {
	UserID       string `json:"user_id"`
	CollectionID string `json:"collection_id"`
	AuthMode     string `json:"auth_mode"`
	JWTAlg       string `json:"jwt_alg"`
}

// Client talks to the card-storage service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL = models.NormalizeBaseURL(baseURL); baseURL == "" {
		baseURL = models.DefaultBackendURL
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// WhoAmI validates token and returns the identity it belongs to.
func (c *Client) WhoAmI(ctx context.Context, token string) (*Identity, error) {
	if strings.TrimSpace(token) == "" {
		return nil, &AuthError{Message: "Missing Bearer token"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/auth/whoami", nil)
	if err != nil {
		return nil, fmt.Errorf("build whoami request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whoami: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &AuthError{StatusCode: resp.StatusCode, Message: "Auth Error: " + statusLine(resp)}
	}

	var id Identity
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&id); err != nil {
		return nil, fmt.Errorf("decode whoami: %w", err)
	}
	return &id, nil
}

// AddNote creates a two-field note and returns its id.
func (c *Client) AddNote(ctx context.Context, front, back, token string) (int64, error) {
	payload, err := json.Marshal(map[string][]string{"fields": {front, back}})
	if err != nil {
		return 0, fmt.Errorf("encode note: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/note/add", bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build add-note request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("add note: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, fmt.Errorf("read add-note response: %w", err)
	}

	var data struct {
		NoteID int64  `json:"note_id"`
		Error  string `json:"error"`
	}
	decodeErr := json.Unmarshal(body, &data)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := "Anki Error: " + statusLine(resp)
		if decodeErr == nil && data.Error != "" {
			msg = data.Error
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return 0, &AuthError{StatusCode: resp.StatusCode, Message: msg}
		}
		return 0, errors.New(msg)
	}
	if decodeErr != nil {
		return 0, fmt.Errorf("decode add-note response: %w", decodeErr)
	}
	if data.Error != "" {
		return 0, errors.New(data.Error)
	}
	return data.NoteID, nil
}

func statusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
