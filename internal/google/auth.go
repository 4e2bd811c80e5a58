package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/digitaldrywood/timesheet/internal/config"
)

// TokenLifetime is how long a persisted token is trusted after it was saved:
// 100s under Google's nominal 3600s, so an operation never starts with a
// token that expires mid-flight.
const TokenLifetime = 3500 * time.Second

const revokeURL = "https://oauth2.googleapis.com/revoke"

var (
	// ErrNoToken means no valid token is cached and no prompt was allowed.
	ErrNoToken = errors.New("no valid oauth token")
	// ErrAuthDenied means the user cancelled or refused the consent flow.
	ErrAuthDenied = errors.New("authorization denied")
	// ErrPlaceholderCredentials means the OAuth client is unset or a template.
	ErrPlaceholderCredentials = fmt.Errorf("%w: oauth client credentials are not configured", config.ErrConfiguration)
)

// ConsentFunc runs an interactive consent flow and returns the granted token.
type ConsentFunc func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error)

// storedToken is the on-disk form: the token plus when it was saved.
type storedToken struct {
	oauth2.Token
	SavedAt int64 `json:"saved_at"`
}

// Auth is the credential store. It caches one token for the process, persists
// it across runs and runs at most one consent prompt at a time.
type Auth struct {
	config    *oauth2.Config
	tokenPath string
	revokeURL string
	consent   ConsentFunc
	now       func() time.Time

	mu      sync.Mutex
	token   *oauth2.Token
	savedAt time.Time

	prompts singleflight.Group
}

type Option func(*Auth)

// WithConsent replaces the browser based consent flow.
func WithConsent(fn ConsentFunc) Option { return func(a *Auth) { a.consent = fn } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(a *Auth) { a.now = now } }

// WithRevokeURL overrides the token revocation endpoint.
func WithRevokeURL(u string) Option { return func(a *Auth) { a.revokeURL = u } }

func NewAuth(credentialsPath, tokenPath, redirectURL string, opts ...Option) (*Auth, error) {
	b, err := os.ReadFile(credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read client secret file: %w", config.ErrConfiguration, err)
	}

	cfg, err := google.ConfigFromJSON(b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to parse client secret file to config: %w", config.ErrConfiguration, err)
	}
	cfg.RedirectURL = redirectURL

	return NewAuthFromConfig(cfg, tokenPath, opts...)
}

// NewAuthFromConfig builds the store around an already parsed client config.
func NewAuthFromConfig(cfg *oauth2.Config, tokenPath string, opts ...Option) (*Auth, error) {
	if config.IsPlaceholder(cfg.ClientID) {
		return nil, ErrPlaceholderCredentials
	}

	a := &Auth{
		config:    cfg,
		tokenPath: tokenPath,
		revokeURL: revokeURL,
		consent:   getTokenFromWeb,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Acquire returns a valid token. A cached or persisted token is returned
// without any prompt, and an expired one with a refresh token is refreshed
// silently. Otherwise ErrNoToken is returned, unless interactive is set, in
// which case the consent flow runs.
func (a *Auth) Acquire(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	if tok := a.cached(ctx); tok != nil {
		return tok, nil
	}
	if !interactive {
		return nil, ErrNoToken
	}

	v, err, _ := a.prompts.Do("consent", func() (interface{}, error) {
		if tok := a.cached(ctx); tok != nil {
			return tok, nil
		}
		tok, err := a.consent(ctx, a.config)
		if err != nil {
			return nil, err
		}
		if err := a.Persist(tok); err != nil {
			log.Printf("Unable to cache oauth token: %v", err)
		}
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*oauth2.Token), nil
}

// Reauthenticate discards the cached token, which the service has rejected
// even though it is inside its validity window, and runs the consent flow.
// Concurrent callers share one prompt.
func (a *Auth) Reauthenticate(ctx context.Context) (*oauth2.Token, error) {
	if err := a.forget(); err != nil {
		return nil, err
	}
	return a.Acquire(ctx, true)
}

// forget drops the token from memory and disk without revoking it.
func (a *Auth) forget() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.token, a.savedAt = nil, time.Time{}
	if err := os.Remove(a.tokenPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to remove token file: %w", err)
	}
	return nil
}

// Valid reports whether a token saved at savedAt may still be used.
func (a *Auth) Valid(savedAt time.Time) bool {
	return !savedAt.IsZero() && a.now().Sub(savedAt) < TokenLifetime
}

func (a *Auth) cached(ctx context.Context) *oauth2.Token {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != nil && a.Valid(a.savedAt) {
		return a.token
	}

	stored, err := a.tokenFromFile()
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Ignoring unreadable token file %s: %v", a.tokenPath, err)
		}
		a.token = nil
		return nil
	}

	savedAt := time.UnixMilli(stored.SavedAt)
	if a.Valid(savedAt) {
		tok := stored.Token
		a.token, a.savedAt = &tok, savedAt
		return a.token
	}

	a.token = nil
	if stored.RefreshToken != "" {
		if tok := a.refresh(ctx, stored.RefreshToken); tok != nil {
			return tok
		}
	}
	_ = os.Remove(a.tokenPath)
	return nil
}

// refresh trades a refresh token for a new access token. Called with a.mu held.
func (a *Auth) refresh(ctx context.Context, refreshToken string) *oauth2.Token {
	tok, err := a.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		log.Printf("Token refresh failed: %v", err)
		return nil
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	if err := a.persistLocked(tok); err != nil {
		log.Printf("Unable to cache refreshed oauth token: %v", err)
	}
	return tok
}

// Persist stores the token with the current time so a later run can reuse it.
func (a *Auth) Persist(tok *oauth2.Token) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persistLocked(tok)
}

func (a *Auth) persistLocked(tok *oauth2.Token) error {
	now := a.now()
	a.token, a.savedAt = tok, now

	data, err := json.Marshal(storedToken{Token: *tok, SavedAt: now.UnixMilli()})
	if err != nil {
		return fmt.Errorf("unable to encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.tokenPath), 0o700); err != nil {
		return fmt.Errorf("unable to create token directory: %w", err)
	}
	tmpPath := a.tokenPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("unable to write token file: %w", err)
	}
	if err := os.Rename(tmpPath, a.tokenPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("unable to save token file: %w", err)
	}
	return nil
}

// Invalidate revokes the grant (best-effort) and forgets the token.
func (a *Auth) Invalidate(ctx context.Context) error {
	a.mu.Lock()
	tok := a.token
	if tok == nil {
		if stored, err := a.tokenFromFile(); err == nil {
			tok = &stored.Token
		}
	}
	a.token, a.savedAt = nil, time.Time{}
	err := os.Remove(a.tokenPath)
	a.mu.Unlock()

	if tok != nil && tok.AccessToken != "" {
		a.revoke(ctx, tok.AccessToken)
	}
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unable to remove token file: %w", err)
	}
	return nil
}

func (a *Auth) revoke(ctx context.Context, accessToken string) {
	form := url.Values{"token": {accessToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("Token revoke failed: %v", err)
		return
	}
	resp.Body.Close()
}

func (a *Auth) tokenFromFile() (*storedToken, error) {
	f, err := os.Open(a.tokenPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &storedToken{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// TokenSource hands out the cached token without ever prompting. A missing
// or expired token surfaces as ErrNoToken on the request that needed it.
func (a *Auth) TokenSource() oauth2.TokenSource {
	return cachedSource{a}
}

type cachedSource struct{ a *Auth }

func (s cachedSource) Token() (*oauth2.Token, error) {
	return s.a.Acquire(context.Background(), false)
}

func (a *Auth) GetClient() *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{Source: a.TokenSource()},
	}
}

func (a *Auth) GetSheetsService(ctx context.Context) (*sheets.Service, error) {
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(a.GetClient()))
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Sheets client: %w", err)
	}
	return srv, nil
}
