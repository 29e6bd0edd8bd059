package asana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/taskpin/taskpin/internal/errdefs"
	"github.com/taskpin/taskpin/internal/instrumentation"
)

// staticTokens is a TokenSource returning a fixed token.
type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) ValidAccessToken(ctx context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func newTestClient(t *testing.T, baseURL string) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := NewClient(ClientConfig{
		BaseURL: baseURL,
		Tokens:  &staticTokens{token: "test-token"},
	})
	require.NoError(t, err)

	sleeps := &[]time.Duration{}
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	return c, sleeps
}

func TestAuthenticatedRequest_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.AuthenticatedRequest(context.Background(), http.MethodGet, "/workspaces", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer test-token", gotAuth)
}

func TestAuthenticatedRequest_RateLimitRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL)
	_, err := c.AuthenticatedRequest(context.Background(), http.MethodGet, "/projects", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *sleeps)
}

func TestAuthenticatedRequest_RateLimitExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "9")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL)
	_, err := c.AuthenticatedRequest(context.Background(), http.MethodGet, "/tags", nil, nil)

	var rle *errdefs.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 9*time.Second, rle.RetryAfter)
	assert.Equal(t, 4, calls, "3 retries means 4 attempts")
	assert.Equal(t, []time.Duration{9 * time.Second, 9 * time.Second, 9 * time.Second}, *sleeps,
		"Retry-After overrides the backoff schedule")
}

func TestAuthenticatedRequest_NonRetryableStatusIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"errors":[{"message":"server exploded"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.AuthenticatedRequest(context.Background(), http.MethodGet, "/workspaces", nil, nil)

	assert.Equal(t, errdefs.CodeAPIError, errdefs.ErrorCode(err))
	assert.Equal(t, 1, calls, "only 429 is retried at this layer")
}

func TestAuthenticatedRequest_OfflineShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request issued while offline")
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	c.online = func(context.Context) bool { return false }

	_, err := c.AuthenticatedRequest(context.Background(), http.MethodGet, "/workspaces", nil, nil)
	assert.Equal(t, errdefs.CodeNetworkOffline, errdefs.ErrorCode(err))
}

func TestAuthenticatedRequest_TokenFailurePropagates(t *testing.T) {
	c, err := NewClient(ClientConfig{
		BaseURL: "http://127.0.0.1:0",
		Tokens:  &staticTokens{err: errdefs.NewAuthRequired()},
	})
	require.NoError(t, err)

	_, err = c.AuthenticatedRequest(context.Background(), http.MethodGet, "/workspaces", nil, nil)
	assert.Equal(t, errdefs.CodeAuthRequired, errdefs.ErrorCode(err))
}

func TestAuthenticatedRequest_CancellationIsNotMisclassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := c.AuthenticatedRequest(ctx, http.MethodGet, "/workspaces", nil, nil)
	require.Error(t, err)
	assert.True(t, errdefs.IsCancellation(err), "cancellation came back as %v", err)
}

func TestWorkspaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workspaces", r.URL.Path)
		assert.Equal(t, "name", r.URL.Query().Get("opt_fields"))
		_, _ = w.Write([]byte(`{"data":[{"gid":"ws1","name":"Acme"},{"gid":"ws2","name":"Personal"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	got, err := c.Workspaces(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, Workspace{GID: "ws1", Name: "Acme"}, got[0])
}

func TestProjects_ScopedToWorkspace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ws1", r.URL.Query().Get("workspace"))
		assert.Equal(t, "false", r.URL.Query().Get("archived"))
		_, _ = w.Write([]byte(`{"data":[{"gid":"p1","name":"Inbox Zero"}]}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	got, err := c.Projects(context.Background(), "ws1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Inbox Zero", got[0].Name)
}

func TestCurrentUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"gid":"u1","name":"Jo","email":"jo@example.com"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	got, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &User{GID: "u1", Name: "Jo", Email: "jo@example.com"}, got)
}

func TestCreateTask_SendsEnvelopedPayload(t *testing.T) {
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"data":{"gid":"t1","name":"Reply to Sam","permalink_url":"https://app.asana.com/t1"}}`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	task, err := c.CreateTask(context.Background(), TaskInput{
		Name:         "Reply to Sam",
		WorkspaceGID: "ws1",
		ProjectGID:   "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", task.GID)
	assert.Contains(t, gotBody, "data", "payload must use the {data: ...} envelope")
}

func TestCreateTask_Validation(t *testing.T) {
	c, _ := newTestClient(t, "http://127.0.0.1:0")

	tests := []struct {
		name  string
		input TaskInput
	}{
		{name: "missing name", input: TaskInput{WorkspaceGID: "ws1"}},
		{name: "missing workspace", input: TaskInput{Name: "x"}},
		{name: "section without project", input: TaskInput{Name: "x", WorkspaceGID: "ws1", SectionGID: "s1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateTask(context.Background(), tt.input)
			assert.Equal(t, errdefs.CodeValidation, errdefs.ErrorCode(err))
		})
	}
}

func TestBuildTaskPayload(t *testing.T) {
	t.Run("section becomes a membership pair", func(t *testing.T) {
		got := buildTaskPayload(TaskInput{
			Name: "x", WorkspaceGID: "ws1", ProjectGID: "P", SectionGID: "S",
		})
		assert.Equal(t, []membership{{Project: "P", Section: "S"}}, got["memberships"])
		assert.NotContains(t, got, "projects", "membership replaces the bare projects field")
		assert.NotContains(t, got, "section")
	})

	t.Run("project without section stays a bare list", func(t *testing.T) {
		got := buildTaskPayload(TaskInput{Name: "x", WorkspaceGID: "ws1", ProjectGID: "P"})
		assert.Equal(t, []string{"P"}, got["projects"])
		assert.NotContains(t, got, "memberships")
	})

	t.Run("due_at wins over due_on", func(t *testing.T) {
		got := buildTaskPayload(TaskInput{
			Name: "x", WorkspaceGID: "ws1",
			DueAt: "2026-04-01T09:00:00Z", DueOn: "2026-04-01",
		})
		assert.Equal(t, "2026-04-01T09:00:00Z", got["due_at"])
		assert.NotContains(t, got, "due_on")
	})

	t.Run("due_on alone is kept", func(t *testing.T) {
		got := buildTaskPayload(TaskInput{Name: "x", WorkspaceGID: "ws1", DueOn: "2026-04-01"})
		assert.Equal(t, "2026-04-01", got["due_on"])
		assert.NotContains(t, got, "due_at")
	})

	t.Run("empty optionals are omitted", func(t *testing.T) {
		got := buildTaskPayload(TaskInput{Name: "x", WorkspaceGID: "ws1"})
		assert.NotContains(t, got, "notes")
		assert.NotContains(t, got, "tags")
		assert.NotContains(t, got, "assignee")
		assert.NotContains(t, got, "due_at")
		assert.NotContains(t, got, "due_on")
	})

	t.Run("tags and assignee pass through", func(t *testing.T) {
		got := buildTaskPayload(TaskInput{
			Name: "x", WorkspaceGID: "ws1",
			TagGIDs: []string{"tag1", "tag2"}, AssigneeGID: "u1", Notes: "from email",
		})
		assert.Equal(t, []string{"tag1", "tag2"}, got["tags"])
		assert.Equal(t, "u1", got["assignee"])
		assert.Equal(t, "from email", got["notes"])
	})
}

func TestParseAPIMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "error envelope", body: `{"errors":[{"message":"project: Not a valid GID"}]}`, want: "project: Not a valid GID"},
		{name: "empty errors", body: `{"errors":[]}`, want: ""},
		{name: "not json", body: `<html>`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseAPIMessage([]byte(tt.body)))
		})
	}
}

type operationRecord struct {
	op     string
	status string
}

type recordingOperationMetrics struct {
	records []operationRecord
}

func (m *recordingOperationMetrics) RecordAPIOperation(_ context.Context, operation, status string, _ time.Duration) {
	m.records = append(m.records, operationRecord{op: operation, status: status})
}

func TestAuthenticatedRequest_RecordsOperationOutcome(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	rec := &recordingOperationMetrics{}
	c.SetMetrics(rec)

	_, err := c.AuthenticatedRequest(context.Background(), http.MethodGet, "/workspaces", nil, nil)
	require.NoError(t, err)

	_, err = c.AuthenticatedRequest(context.Background(), http.MethodGet, "/workspaces", nil, nil)
	require.Error(t, err)

	require.Equal(t, []operationRecord{
		{op: "GET /workspaces", status: "success"},
		{op: "GET /workspaces", status: "error"},
	}, rec.records)
}

func TestAuthenticatedRequest_EmitsOperationSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(`{"data":[]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)

	_, err := c.AuthenticatedRequest(context.Background(), http.MethodGet, "/workspaces", nil, nil)
	require.NoError(t, err)
	_, err = c.AuthenticatedRequest(context.Background(), http.MethodGet, "/workspaces", nil, nil)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "api.GET /workspaces", ok.Name())
	assert.Equal(t, codes.Ok, ok.Status().Code)

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	var errCode string
	for _, kv := range failed.Attributes() {
		if string(kv.Key) == instrumentation.SpanAttrErrorCode {
			errCode = kv.Value.AsString()
		}
	}
	assert.Equal(t, string(errdefs.CodeAPIError), errCode)
}
