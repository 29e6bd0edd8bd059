package asana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/taskpin/taskpin/internal/errdefs"
	"github.com/taskpin/taskpin/internal/instrumentation"
	"github.com/taskpin/taskpin/internal/logging"
)

// DefaultBaseURL is the Asana API base path.
const DefaultBaseURL = "https://app.asana.com/api/1.0"

const (
	// maxRateLimitRetries bounds the 429 retry loop.
	maxRateLimitRetries = 3

	// rateLimitBaseDelay is the base of the exponential backoff schedule
	// used when the server sends no Retry-After.
	rateLimitBaseDelay = time.Second
)

// TokenSource supplies a valid access token, refreshing behind the scenes
// when needed. *auth.Manager satisfies it.
type TokenSource interface {
	ValidAccessToken(ctx context.Context) (string, error)
}

// MetricsRecorder receives per-operation outcomes.
// *instrumentation.Metrics satisfies it.
type MetricsRecorder interface {
	RecordAPIOperation(ctx context.Context, operation, status string, duration time.Duration)
}

// ClientConfig holds everything a Client needs.
type ClientConfig struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	Tokens TokenSource

	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Online is the connectivity probe. Nil means always online.
	Online errdefs.OnlineFunc

	Logger *slog.Logger
}

// Client is the authenticated, retrying Asana API client.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	online     errdefs.OnlineFunc
	logger     *slog.Logger
	metrics    MetricsRecorder

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates an API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		httpClient: httpClient,
		online:     cfg.Online,
		logger:     logging.WithComponent(logger, "asana"),
		sleep:      sleepContext,
	}, nil
}

// envelope is the API's success wrapper.
type envelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorBody is the API's error wrapper.
type apiErrorBody struct {
	Errors []struct {
		Message string `json:"message"`
		Help    string `json:"help"`
	} `json:"errors"`
}

// SetMetrics attaches a recorder for per-operation outcomes.
func (c *Client) SetMetrics(rec MetricsRecorder) {
	c.metrics = rec
}

// AuthenticatedRequest performs one API call: offline check, bearer token
// (refreshed proactively by the token source), bounded retry on HTTP 429,
// taxonomy classification of every failure. On success it returns the
// envelope's data payload. Each call is traced and timed.
func (c *Client) AuthenticatedRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	op := method + " " + path

	ctx, span := instrumentation.StartAPISpan(ctx, op)
	defer span.End()

	start := time.Now()
	data, err := c.doRequest(ctx, op, method, path, query, body)
	if err != nil {
		span.SetAttributes(attribute.String(instrumentation.SpanAttrErrorCode,
			string(errdefs.ErrorCode(err))))
		instrumentation.SetSpanError(span, err)
		if c.metrics != nil {
			c.metrics.RecordAPIOperation(ctx, op, logging.StatusError, time.Since(start))
		}
		return nil, err
	}
	instrumentation.SetSpanSuccess(span)
	if c.metrics != nil {
		c.metrics.RecordAPIOperation(ctx, op, logging.StatusSuccess, time.Since(start))
	}
	return data, nil
}

func (c *Client) doRequest(ctx context.Context, op, method, path string, query url.Values, body any) (json.RawMessage, error) {
	if c.online != nil && !c.online(ctx) {
		return nil, errdefs.NewNetworkOffline()
	}

	token, err := c.tokens.ValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(envelopeOut{Data: body})
		if err != nil {
			return nil, errdefs.NewValidation("request body could not be encoded")
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(payload))
		if err != nil {
			return nil, errdefs.NewValidation("request could not be constructed")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, errdefs.WrapFetchError(ctx, err, op, c.online)
		}

		respBody, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, errdefs.WrapFetchError(ctx, readErr, op, c.online)
		}

		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			var env envelope
			if err := json.Unmarshal(respBody, &env); err != nil {
				return nil, errdefs.NewAPI(resp.StatusCode, op+": failed to decode response", "", err)
			}
			return env.Data, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := errdefs.ParseRetryAfter(resp.Header.Get("Retry-After"))
			if attempt >= maxRateLimitRetries {
				return nil, errdefs.NewRateLimit(retryAfter)
			}
			delay := rateLimitBaseDelay << attempt
			if retryAfter > 0 {
				delay = retryAfter
			}
			c.logger.Debug("rate limited, backing off",
				logging.Operation(op),
				logging.Attempt(attempt+1),
				slog.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		return nil, errdefs.WrapResponseError(resp, op, parseAPIMessage(respBody))
	}
}

// envelopeOut wraps outgoing bodies in the API's {data: ...} shape.
type envelopeOut struct {
	Data any `json:"data"`
}

// parseAPIMessage extracts the first error message from an error envelope,
// best-effort.
func parseAPIMessage(body []byte) string {
	var eb apiErrorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}
	if len(eb.Errors) == 0 {
		return ""
	}
	return eb.Errors[0].Message
}

// getList performs a GET and decodes the data payload into a slice of T.
func getList[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	data, err := c.AuthenticatedRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errdefs.NewAPI(0, path+": failed to decode list payload", "", err)
	}
	return out, nil
}

// Workspaces lists the workspaces visible to the authenticated user.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	return getList[Workspace](ctx, c, "/workspaces", url.Values{
		"opt_fields": {"name"},
	})
}

// Projects lists the non-archived projects in a workspace.
func (c *Client) Projects(ctx context.Context, workspaceGID string) ([]Project, error) {
	return getList[Project](ctx, c, "/projects", url.Values{
		"workspace":  {workspaceGID},
		"archived":   {"false"},
		"opt_fields": {"name"},
	})
}

// Sections lists the sections of a project.
func (c *Client) Sections(ctx context.Context, projectGID string) ([]Section, error) {
	return getList[Section](ctx, c, "/projects/"+projectGID+"/sections", url.Values{
		"opt_fields": {"name"},
	})
}

// Tags lists the tags of a workspace.
func (c *Client) Tags(ctx context.Context, workspaceGID string) ([]Tag, error) {
	return getList[Tag](ctx, c, "/workspaces/"+workspaceGID+"/tags", url.Values{
		"opt_fields": {"name,color"},
	})
}

// Users lists the members of a workspace.
func (c *Client) Users(ctx context.Context, workspaceGID string) ([]User, error) {
	return getList[User](ctx, c, "/workspaces/"+workspaceGID+"/users", url.Values{
		"opt_fields": {"name,email"},
	})
}

// CurrentUser returns the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	data, err := c.AuthenticatedRequest(ctx, http.MethodGet, "/users/me", url.Values{
		"opt_fields": {"name,email"},
	}, nil)
	if err != nil {
		return nil, err
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, errdefs.NewAPI(0, "failed to decode current user", "", err)
	}
	return &u, nil
}

// CreateTask creates a task from input.
func (c *Client) CreateTask(ctx context.Context, input TaskInput) (*Task, error) {
	if input.Name == "" {
		return nil, errdefs.NewValidation("task name is required")
	}
	if input.WorkspaceGID == "" {
		return nil, errdefs.NewValidation("workspace is required")
	}
	if input.SectionGID != "" && input.ProjectGID == "" {
		return nil, errdefs.NewValidation("a section requires a project")
	}

	data, err := c.AuthenticatedRequest(ctx, http.MethodPost, "/tasks", nil, buildTaskPayload(input))
	if err != nil {
		return nil, err
	}
	var task Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, errdefs.NewAPI(0, "failed to decode created task", "", err)
	}
	c.logger.Info("task created", logging.Operation("asana.createTask"))
	return &task, nil
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
