package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/taskpin/taskpin/internal/errdefs"
	"github.com/taskpin/taskpin/internal/logging"
)

// maxTitleLen caps suggested titles so they stay readable in task lists.
const maxTitleLen = 100

// PageContent is what the capturing surface extracted from the page.
type PageContent struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Selection string `json:"selection,omitempty"`
}

// Config holds everything a Client needs.
type Config struct {
	// Endpoint is the completion service URL. Empty means suggestions
	// are produced locally via Fallback.
	Endpoint string

	// APIKey authenticates against the completion service.
	APIKey string

	// HTTPClient defaults to a client with a 60s timeout; suggestion
	// calls can be slow and are individually cancellable.
	HTTPClient *http.Client

	Online errdefs.OnlineFunc

	Logger *slog.Logger
}

// Client produces title suggestions.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	online     errdefs.OnlineFunc
	logger     *slog.Logger
}

// NewClient creates a suggestion client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		online:     cfg.Online,
		logger:     logging.WithComponent(logger, "suggest"),
	}
}

type suggestRequest struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Selection string `json:"selection,omitempty"`
}

type suggestResponse struct {
	Suggestion string `json:"suggestion"`
}

// SuggestTitle returns a task title for the given page. Cancelling ctx
// aborts the remote call and returns the context's error unchanged.
func (c *Client) SuggestTitle(ctx context.Context, page PageContent) (string, error) {
	if c.endpoint == "" {
		return Fallback(page), nil
	}
	if c.online != nil && !c.online(ctx) {
		return "", errdefs.NewNetworkOffline()
	}

	payload, err := json.Marshal(suggestRequest{
		Title:     page.Title,
		URL:       page.URL,
		Selection: page.Selection,
	})
	if err != nil {
		return "", errdefs.NewValidation("page content could not be encoded")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", errdefs.NewValidation("suggestion request could not be constructed")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errdefs.WrapFetchError(ctx, err, "suggest title", c.online)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errdefs.WrapFetchError(ctx, err, "suggest title", c.online)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errdefs.WrapResponseError(resp, "suggest title", "")
	}

	var out suggestResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errdefs.NewAPI(resp.StatusCode, "suggest title: failed to decode response", "", err)
	}
	title := truncate(strings.TrimSpace(out.Suggestion))
	if title == "" {
		c.logger.Debug("empty suggestion from service, using fallback")
		return Fallback(page), nil
	}
	return title, nil
}

// Fallback derives a title from the page alone, no network involved.
func Fallback(page PageContent) string {
	if sel := strings.TrimSpace(page.Selection); sel != "" {
		return truncate(collapseWhitespace(sel))
	}
	if title := strings.TrimSpace(page.Title); title != "" {
		return truncate(title)
	}
	if page.URL != "" {
		return truncate(page.URL)
	}
	return "New task"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxTitleLen-1]) + "…"
}
