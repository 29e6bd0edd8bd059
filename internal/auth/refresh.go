package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/taskpin/taskpin/internal/errdefs"
	"github.com/taskpin/taskpin/internal/logging"
	"github.com/taskpin/taskpin/internal/storage"
)

// refreshOutcome classifies the result of a single refresh attempt, so the
// retry decision table is explicit instead of buried in catch blocks.
type refreshOutcome int

const (
	refreshSuccess refreshOutcome = iota
	refreshRetry
	refreshTerminal
)

// refreshResult is the outcome of one attempt against the token endpoint.
type refreshResult struct {
	outcome refreshOutcome
	tokens  *storage.Tokens
	// retryAfter overrides the backoff delay when the server supplied
	// Retry-After.
	retryAfter time.Duration
	err        error
}

// RefreshFailureContext is the non-secret diagnostic record logged when the
// token endpoint rejects a refresh. It never contains token values.
type RefreshFailureContext struct {
	Timestamp           time.Time
	Attempt             int
	TotalAttempts       int
	HTTPStatus          int
	ProviderError       string
	ProviderDescription string
	IsRecoverable       bool
	ErrorType           string
}

// LogValue renders the context as a structured slog group.
func (c RefreshFailureContext) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("timestamp", c.Timestamp),
		slog.Int("attempt", c.Attempt),
		slog.Int("total_attempts", c.TotalAttempts),
		slog.Int("http_status", c.HTTPStatus),
		slog.String("provider_error", c.ProviderError),
		slog.String("provider_description", c.ProviderDescription),
		slog.Bool("is_recoverable", c.IsRecoverable),
		slog.String("error_type", c.ErrorType),
	)
}

// classifyProviderError buckets an OAuth token endpoint error code for
// diagnostics: auth (the user must re-authenticate), config (the
// application credentials are wrong), unknown.
func classifyProviderError(code string) string {
	switch code {
	case "invalid_grant":
		return "auth"
	case "invalid_client", "unauthorized_client":
		return "config"
	default:
		return "unknown"
	}
}

// RefreshTokens exchanges a refresh token for a fresh token record,
// persisting it on success.
//
// Retry policy: transport errors and 5xx responses are retried up to
// maxRefreshRetries times with exponential backoff (1s, 2s, 4s) or the
// server-supplied Retry-After; 400/401 responses are terminal and surface as
// AuthExpiredError carrying the provider error code; any other non-2xx is
// terminal via the response classifier. The offline check runs once, before
// the loop, and does not consume a retry.
func (m *Manager) RefreshTokens(ctx context.Context, refreshToken string) (*storage.Tokens, error) {
	if m.online != nil && !m.online(ctx) {
		return nil, errdefs.NewNetworkOffline()
	}

	for attempt := 0; ; attempt++ {
		res := m.refreshOnce(ctx, refreshToken, attempt)

		switch res.outcome {
		case refreshSuccess:
			if err := m.store.Set(ctx, *res.tokens); err != nil {
				return nil, err
			}
			m.logger.Info("tokens refreshed",
				logging.Operation("auth.refresh"), logging.Attempt(attempt+1))
			m.recordRefresh(ctx, "success")
			return res.tokens, nil

		case refreshTerminal:
			if errdefs.ErrorCode(res.err) == errdefs.CodeAuthExpired {
				m.recordRefresh(ctx, "expired")
			} else {
				m.recordRefresh(ctx, "failure")
			}
			return nil, res.err
		}

		// Retryable.
		if errdefs.IsCancellation(res.err) {
			return nil, res.err
		}
		if attempt >= maxRefreshRetries {
			m.recordRefresh(ctx, "failure")
			return nil, errdefs.NewNetwork("token refresh failed after retries", res.err)
		}

		delay := refreshBaseDelay << attempt
		if res.retryAfter > 0 {
			delay = res.retryAfter
		}
		m.logger.Debug("retrying token refresh",
			logging.Operation("auth.refresh"),
			logging.Attempt(attempt+1),
			slog.Duration("delay", delay),
			logging.Err(res.err))
		if err := m.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// refreshOnce performs a single attempt against the token endpoint and
// classifies the outcome.
func (m *Manager) refreshOnce(ctx context.Context, refreshToken string, attempt int) refreshResult {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"refresh_token": {refreshToken},
	}

	resp, body, err := m.postTokenForm(ctx, form)
	if err != nil {
		return refreshResult{outcome: refreshRetry, err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		tokens, err := m.parseTokenResponse(body, refreshToken)
		if err != nil {
			return refreshResult{outcome: refreshTerminal, err: err}
		}
		return refreshResult{outcome: refreshSuccess, tokens: tokens}

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized:
		var provider tokenError
		_ = json.Unmarshal(body, &provider)

		m.logger.Error("token refresh rejected by provider",
			logging.Operation("auth.refresh"),
			slog.Any("failure", RefreshFailureContext{
				Timestamp:           m.now(),
				Attempt:             attempt + 1,
				TotalAttempts:       maxRefreshRetries + 1,
				HTTPStatus:          resp.StatusCode,
				ProviderError:       provider.Error,
				ProviderDescription: provider.ErrorDescription,
				IsRecoverable:       false,
				ErrorType:           classifyProviderError(provider.Error),
			}))

		return refreshResult{
			outcome: refreshTerminal,
			err: errdefs.NewAuthExpired(
				"refresh token rejected by provider", provider.Error, nil),
		}

	case resp.StatusCode >= 500:
		return refreshResult{
			outcome:    refreshRetry,
			retryAfter: errdefs.ParseRetryAfter(resp.Header.Get("Retry-After")),
			err:        errdefs.NewAPI(resp.StatusCode, "token endpoint server error", "", nil),
		}

	default:
		return refreshResult{
			outcome: refreshTerminal,
			err:     errdefs.WrapResponseError(resp, "refreshTokens", ""),
		}
	}
}
