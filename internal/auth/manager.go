package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/taskpin/taskpin/internal/errdefs"
	"github.com/taskpin/taskpin/internal/logging"
	"github.com/taskpin/taskpin/internal/storage"
)

const (
	// maxRefreshRetries bounds the refresh retry loop: 3 retries, 4
	// attempts total.
	maxRefreshRetries = 3

	// refreshBaseDelay is the base of the exponential backoff schedule
	// (1s, 2s, 4s).
	refreshBaseDelay = time.Second

	// expirySkew is how long before nominal expiry a token is refreshed
	// proactively, guarding against expiry mid-request.
	expirySkew = 5 * time.Minute
)

// Config carries the OAuth application settings for the remote provider.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

// ManagerConfig holds everything a Manager needs.
type ManagerConfig struct {
	OAuth      Config
	TokenStore *storage.TokenStore

	// HTTPClient is used for token endpoint requests. Defaults to a
	// client with a 30s timeout.
	HTTPClient *http.Client

	// Online is the connectivity probe consulted before network
	// operations. Nil means always online.
	Online errdefs.OnlineFunc

	Logger *slog.Logger
}

// MetricsRecorder receives the outcome of authorization and refresh
// operations. *instrumentation.Metrics satisfies it.
type MetricsRecorder interface {
	RecordOAuthAuth(ctx context.Context, result string)
	RecordOAuthTokenRefresh(ctx context.Context, result string)
}

// Manager is the OAuth session manager.
type Manager struct {
	cfg        Config
	store      *storage.TokenStore
	httpClient *http.Client
	online     errdefs.OnlineFunc
	logger     *slog.Logger
	metrics    MetricsRecorder
	pending    pendingSlot

	// now and sleep are replaceable in tests so the backoff schedule can
	// be asserted without waiting.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.TokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.OAuth.ClientID == "" {
		return nil, fmt.Errorf("oauth client id is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:        cfg.OAuth,
		store:      cfg.TokenStore,
		httpClient: httpClient,
		online:     cfg.Online,
		logger:     logging.WithComponent(logger, "auth"),
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

// SetMetrics attaches a recorder for authorization and refresh outcomes.
func (m *Manager) SetMetrics(rec MetricsRecorder) {
	m.metrics = rec
}

func (m *Manager) recordAuth(ctx context.Context, result string) {
	if m.metrics != nil {
		m.metrics.RecordOAuthAuth(ctx, result)
	}
}

func (m *Manager) recordRefresh(ctx context.Context, result string) {
	if m.metrics != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, result)
	}
}

// oauthConfig builds the x/oauth2 configuration for authorization URL
// construction.
func (m *Manager) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     m.cfg.ClientID,
		ClientSecret: m.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  m.cfg.AuthURL,
			TokenURL: m.cfg.TokenURL,
		},
		RedirectURL: m.cfg.RedirectURL,
		Scopes:      m.cfg.Scopes,
	}
}

// StartAuthFlow begins a new PKCE authorization attempt and parks it in the
// pending slot. If an attempt is already pending it is rejected with
// ErrSuperseded before the new one takes its place. The caller opens
// Attempt.AuthURL for the user and waits on Attempt.Done for the callback.
func (m *Manager) StartAuthFlow(ctx context.Context) (*Attempt, error) {
	verifier, err := GenerateVerifier()
	if err != nil {
		return nil, err
	}
	id, err := newAttemptID()
	if err != nil {
		return nil, err
	}

	authURL := m.oauthConfig().AuthCodeURL(id, oauth2.S256ChallengeOption(verifier))
	attempt := &Attempt{
		ID:       id,
		AuthURL:  authURL,
		verifier: verifier,
		done:     make(chan error, 1),
	}
	m.pending.put(attempt)

	m.logger.Info("authorization flow started", logging.Operation("auth.start"))
	return attempt, nil
}

// CallbackResult is the structured outcome of an authorization callback.
// Callbacks never fail with a raw error; an unexpected callback yields a
// structured failure instead.
type CallbackResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// HandleCallback completes the pending attempt with the authorization code
// delivered to the redirect endpoint. A callback with no pending attempt
// returns a structured failure rather than an error.
func (m *Manager) HandleCallback(ctx context.Context, code, state string) CallbackResult {
	attempt := m.pending.take()
	if attempt == nil {
		return CallbackResult{Success: false, Error: "No pending authentication"}
	}
	if state != "" && state != attempt.ID {
		err := errdefs.NewAuthFailed("callback state does not match pending attempt", nil)
		attempt.done <- err
		m.recordAuth(ctx, "failure")
		return CallbackResult{Success: false, Error: "State mismatch"}
	}
	if code == "" {
		err := errdefs.NewAuthFailed("authorization was denied by the user or provider", nil)
		attempt.done <- err
		m.recordAuth(ctx, "failure")
		return CallbackResult{Success: false, Error: "Authorization denied"}
	}

	tokens, err := m.ExchangeCodeForTokens(ctx, code, attempt.verifier)
	if err != nil {
		m.logger.Error("code exchange failed",
			logging.Operation("auth.callback"), logging.Err(err))
		attempt.done <- err
		m.recordAuth(ctx, "failure")
		return CallbackResult{Success: false, Error: errdefs.UserMessage(err)}
	}
	if err := m.store.Set(ctx, *tokens); err != nil {
		attempt.done <- err
		m.recordAuth(ctx, "failure")
		return CallbackResult{Success: false, Error: errdefs.UserMessage(err)}
	}

	m.logger.Info("authorization completed", logging.Operation("auth.callback"))
	attempt.done <- nil
	m.recordAuth(ctx, "success")
	return CallbackResult{Success: true}
}

// tokenResponse is the provider's token endpoint success body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// tokenError is the provider's token endpoint error body.
type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ExchangeCodeForTokens trades an authorization code and its PKCE verifier
// for a token record. The record is not persisted here; HandleCallback does
// that so the pending attempt observes storage failures too.
func (m *Manager) ExchangeCodeForTokens(ctx context.Context, code, verifier string) (*storage.Tokens, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {m.cfg.ClientID},
		"client_secret": {m.cfg.ClientSecret},
		"redirect_uri":  {m.cfg.RedirectURL},
		"code":          {code},
		"code_verifier": {verifier},
	}

	resp, body, err := m.postTokenForm(ctx, form)
	if err != nil {
		return nil, errdefs.WrapFetchError(ctx, err, "exchangeCodeForTokens", m.online)
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		var provider tokenError
		_ = json.Unmarshal(body, &provider)
		return nil, errdefs.NewAuthFailed(
			fmt.Sprintf("token exchange rejected: %s %s", provider.Error, provider.ErrorDescription), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errdefs.WrapResponseError(resp, "exchangeCodeForTokens", "")
	}

	return m.parseTokenResponse(body, "")
}

// parseTokenResponse converts a 2xx token endpoint body into a token record.
// fallbackRefresh is used when the provider omits refresh_token, as it does
// on refresh grants.
func (m *Manager) parseTokenResponse(body []byte, fallbackRefresh string) (*storage.Tokens, error) {
	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, errdefs.NewAPI(0, "failed to decode token response", "", err)
	}
	if tr.AccessToken == "" {
		return nil, errdefs.NewAPI(0, "token response missing access_token", "", nil)
	}
	refresh := tr.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}
	return &storage.Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    m.now().UnixMilli() + tr.ExpiresIn*1000,
	}, nil
}

// postTokenForm posts a form to the token endpoint and returns the response
// with its fully-read body.
func (m *Manager) postTokenForm(ctx context.Context, form url.Values) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// Logout unconditionally clears the token record. Logging out with nothing
// stored succeeds.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Remove(ctx); err != nil {
		return err
	}
	m.logger.Info("logged out", logging.Operation("auth.logout"))
	return nil
}

// IsAuthenticated reports whether a complete token record is stored. It
// deliberately ignores access-token expiry: a stored refresh token is enough
// to re-establish the session transparently on the next API call.
func (m *Manager) IsAuthenticated(ctx context.Context) (bool, error) {
	t, err := m.store.Get(ctx)
	if err != nil {
		return false, err
	}
	return t != nil && t.Complete(), nil
}

// ValidAccessToken returns an access token safe to use for an API call,
// refreshing proactively when expiry is less than expirySkew away.
func (m *Manager) ValidAccessToken(ctx context.Context) (string, error) {
	t, err := m.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if t == nil || !t.Complete() {
		return "", errdefs.NewAuthRequired()
	}

	if time.UnixMilli(t.ExpiresAt).Before(m.now().Add(expirySkew)) {
		refreshed, err := m.RefreshTokens(ctx, t.RefreshToken)
		if err != nil {
			return "", err
		}
		return refreshed.AccessToken, nil
	}
	return t.AccessToken, nil
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
