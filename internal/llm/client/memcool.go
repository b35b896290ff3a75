package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"memit/internal/logging"
	"memit/internal/models"
)

const (
	// DefaultMemcoolBaseURL is the hosted explanation service.
	DefaultMemcoolBaseURL = "https://memstore.ldd.cool"

	maxErrorBodyLen = 500
	maxBodyBytes    = 1 << 20
)

// Matches 'message': '...' or "message": "..." in Python-style dict dumps.
var messageFieldPattern = regexp.MustCompile(`['"]message['"]:\s*['"](.+?)['"]`)

// MemcoolClient calls the hosted explanation service. It needs no API key.
type MemcoolClient struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewMemcoolClient(baseURL string, httpClient *http.Client) *MemcoolClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL = models.NormalizeBaseURL(baseURL); baseURL == "" {
		baseURL = DefaultMemcoolBaseURL
	}
	return &MemcoolClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		log:        logging.Named("memcool"),
	}
}

func (c *MemcoolClient) Explain(ctx context.Context, text string, opts Options) (*models.Explanation, error) {
	base := c.baseURL
	if b := models.NormalizeBaseURL(opts.BaseURL); b != "" {
		base = b
	}

	endpoint := base + "/explain/" + url.PathEscape(text)
	if opts.Model != "" {
		endpoint += "?model=" + url.QueryEscape(opts.Model)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, newProviderError(models.ProviderMemcool, 0, err, "Invalid explanation service URL: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("request failed", zap.String("url", base), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, newProviderError(models.ProviderMemcool, 0, err, "Request timed out: explanation service did not respond in time.")
		}
		return nil, newProviderError(models.ProviderMemcool, 0, err, "Network error: Failed to connect to explanation service.")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, newProviderError(models.ProviderMemcool, resp.StatusCode, err, "Network error: Failed to read explanation service response.")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newProviderError(models.ProviderMemcool, resp.StatusCode, nil, "%s", errorBodyMessage(resp, body))
	}

	return decodeExplanation(models.ProviderMemcool, "Mem.Cool", body)
}

// errorBodyMessage picks the most specific message a failed response offers.
func errorBodyMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg, ok := errorFieldMessage(payload.Error); ok {
			return msg
		}
	}
	if m := messageFieldPattern.FindSubmatch(body); m != nil {
		return strings.ReplaceAll(string(m[1]), `\n`, "\n")
	}
	if text := strings.TrimSpace(string(body)); text != "" && len(body) < maxErrorBodyLen {
		return text
	}
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
