package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskpin/taskpin/internal/errdefs"
	"github.com/taskpin/taskpin/internal/instrumentation"
	"github.com/taskpin/taskpin/internal/logging"
)

// Request is an incoming message, tagged by Type.
type Request struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the envelope every dispatch resolves to. ErrorCode is the
// taxonomy code as a string; it is empty on success and for cancelled
// requests, which are not failures the UI should surface.
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// HandlerFunc answers one message type. The payload is the raw JSON of
// Request.Payload; the returned value becomes Response.Data.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// MetricsRecorder receives per-message dispatch outcomes.
// *instrumentation.Metrics satisfies it.
type MetricsRecorder interface {
	RecordMessage(ctx context.Context, messageType, status string, duration time.Duration)
}

// Router maps message types to handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *slog.Logger
	metrics  MetricsRecorder
}

// New creates an empty Router. Register handlers with Handle before
// dispatching.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logging.WithComponent(logger, "router"),
	}
}

// SetMetrics attaches a recorder for dispatch outcomes.
func (r *Router) SetMetrics(rec MetricsRecorder) {
	r.metrics = rec
}

func (r *Router) record(ctx context.Context, msgType, status string, start time.Time) {
	if r.metrics != nil {
		r.metrics.RecordMessage(ctx, msgType, status, time.Since(start))
	}
}

// markSpanFailed records the failure and its taxonomy code on the span.
func (r *Router) markSpanFailed(span trace.Span, err error) {
	span.SetAttributes(attribute.String(instrumentation.SpanAttrErrorCode,
		string(errdefs.ErrorCode(err))))
	instrumentation.SetSpanError(span, err)
}

// Handle registers fn for msgType, replacing any previous handler.
// Registration happens during startup, before Dispatch is called.
func (r *Router) Handle(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// Types returns the registered message types.
func (r *Router) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Dispatch routes one request and never returns an error: every failure
// is folded into the response envelope.
func (r *Router) Dispatch(ctx context.Context, req Request) Response {
	start := time.Now()
	ctx, span := instrumentation.StartMessageSpan(ctx, req.Type)
	defer span.End()

	handler, ok := r.handlers[req.Type]
	if !ok {
		err := errdefs.NewInvalidRequest("unknown message type: " + req.Type)
		r.logger.Warn("unknown message type", logging.MessageType(req.Type))
		r.markSpanFailed(span, err)
		r.record(ctx, req.Type, logging.StatusError, start)
		return failure(err)
	}

	data, err := handler(ctx, req.Payload)
	if err != nil {
		if errdefs.IsCancellation(err) {
			r.logger.Debug("request cancelled", logging.MessageType(req.Type))
			instrumentation.SetSpanError(span, err)
			r.record(ctx, req.Type, "cancelled", start)
			return Response{Error: "Request was cancelled"}
		}
		r.logger.Error("message handling failed",
			logging.MessageType(req.Type),
			logging.Status(logging.StatusError),
			logging.Err(err))
		r.markSpanFailed(span, err)
		r.record(ctx, req.Type, logging.StatusError, start)
		return failure(err)
	}

	r.logger.Debug("message handled",
		logging.MessageType(req.Type),
		logging.Status(logging.StatusSuccess))
	instrumentation.SetSpanSuccess(span)
	r.record(ctx, req.Type, logging.StatusSuccess, start)
	return Response{Success: true, Data: data}
}

// DispatchRaw decodes a JSON request body and dispatches it. A body that
// does not decode yields an INVALID_REQUEST envelope.
func (r *Router) DispatchRaw(ctx context.Context, body []byte) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return failure(errdefs.NewInvalidRequest("request body is not valid JSON"))
	}
	if req.Type == "" {
		return failure(errdefs.NewInvalidRequest("message type is required"))
	}
	return r.Dispatch(ctx, req)
}

func failure(err error) Response {
	return Response{
		Error:     errdefs.UserMessage(err),
		ErrorCode: string(errdefs.ErrorCode(err)),
	}
}
