// Package suggest produces task-title suggestions from captured page
// content. With an endpoint configured it calls a remote completion
// service; without one it falls back to a local heuristic. Callers can
// cancel an in-flight suggestion through the context, and cancellation
// surfaces as context.Canceled rather than a network failure.
package suggest
