package google

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/digitaldrywood/timesheet/internal/config"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAuth(t *testing.T, clock *testClock, consent ConsentFunc, opts ...Option) (*Auth, string) {
	t.Helper()
	tokenPath := filepath.Join(t.TempDir(), "auth", "token.json")
	cfg := &oauth2.Config{
		ClientID: "client-id.apps.googleusercontent.com",
		Endpoint: oauth2.Endpoint{TokenURL: "http://127.0.0.1:1/token"},
	}
	opts = append([]Option{WithClock(clock.Now), WithConsent(consent)}, opts...)
	a, err := NewAuthFromConfig(cfg, tokenPath, opts...)
	if err != nil {
		t.Fatalf("NewAuthFromConfig: %v", err)
	}
	return a, tokenPath
}

func grant(token string) ConsentFunc {
	return func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
	}
}

func TestNewAuthMissingClientSecret(t *testing.T) {
	dir := t.TempDir()
	_, err := NewAuth(filepath.Join(dir, "credentials.json"), filepath.Join(dir, "token.json"), "http://localhost:8080/callback")
	if !errors.Is(err, config.ErrConfiguration) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("NewAuth error = %v, want configuration error wrapping ErrNotExist", err)
	}
}

func TestNewAuthRejectsPlaceholder(t *testing.T) {
	_, err := NewAuthFromConfig(&oauth2.Config{ClientID: "YOUR_GOOGLE_CLIENT_ID"}, "token.json")
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestAcquireNonInteractiveWithoutToken(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	var prompts atomic.Int32
	a, _ := newTestAuth(t, clock, func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		prompts.Add(1)
		return &oauth2.Token{AccessToken: "x"}, nil
	})

	if _, err := a.Acquire(context.Background(), false); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Acquire(false) error = %v, want ErrNoToken", err)
	}
	if prompts.Load() != 0 {
		t.Errorf("consent ran %d times on non-interactive acquire", prompts.Load())
	}
}

func TestAcquireInteractivePersists(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	a, tokenPath := newTestAuth(t, clock, grant("abc"))

	tok, err := a.Acquire(context.Background(), true)
	if err != nil {
		t.Fatalf("Acquire(true): %v", err)
	}
	if tok.AccessToken != "abc" {
		t.Errorf("AccessToken = %q", tok.AccessToken)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		t.Fatalf("token not persisted: %v", err)
	}

	// A fresh store reading the same file reuses the token without a prompt.
	b, _ := newTestAuth(t, clock, func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		t.Error("consent should not run")
		return nil, ErrAuthDenied
	})
	b.tokenPath = tokenPath
	tok, err = b.Acquire(context.Background(), false)
	if err != nil {
		t.Fatalf("reload Acquire(false): %v", err)
	}
	if tok.AccessToken != "abc" {
		t.Errorf("reloaded AccessToken = %q", tok.AccessToken)
	}
}

func TestTokenValidityBoundary(t *testing.T) {
	saved := time.UnixMilli(1_700_000_000_000)
	clock := &testClock{now: saved}
	a, _ := newTestAuth(t, clock, grant("abc"))

	if err := a.Persist(&oauth2.Token{AccessToken: "abc"}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(3_499_999 * time.Millisecond)
	if _, err := a.Acquire(context.Background(), false); err != nil {
		t.Fatalf("token should be valid at T+3499999ms: %v", err)
	}

	clock.Advance(2 * time.Millisecond)
	if _, err := a.Acquire(context.Background(), false); !errors.Is(err, ErrNoToken) {
		t.Fatalf("token should be invalid at T+3500001ms, got %v", err)
	}
}

func TestExpiredTokenFileRemoved(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	a, tokenPath := newTestAuth(t, clock, grant("abc"))
	if err := a.Persist(&oauth2.Token{AccessToken: "abc"}); err != nil {
		t.Fatal(err)
	}

	clock.Advance(TokenLifetime)
	if _, err := a.Acquire(context.Background(), false); !errors.Is(err, ErrNoToken) {
		t.Fatalf("error = %v, want ErrNoToken", err)
	}
	if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
		t.Errorf("expired token file still present: %v", err)
	}
}

func TestExpiredTokenRefreshedSilently(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("refresh_token") != "refresh-1" {
			http.Error(w, "bad refresh", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	clock := &testClock{now: time.Now()}
	a, _ := newTestAuth(t, clock, func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		t.Error("consent should not run")
		return nil, ErrAuthDenied
	})
	a.config.Endpoint.TokenURL = tokenSrv.URL

	if err := a.Persist(&oauth2.Token{AccessToken: "stale", RefreshToken: "refresh-1"}); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)

	tok, err := a.Acquire(context.Background(), false)
	if err != nil {
		t.Fatalf("Acquire(false): %v", err)
	}
	if tok.AccessToken != "fresh" || tok.RefreshToken != "refresh-1" {
		t.Errorf("token = %q/%q, want fresh/refresh-1", tok.AccessToken, tok.RefreshToken)
	}
}

func TestAcquireDenied(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	a, tokenPath := newTestAuth(t, clock, func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		return nil, ErrAuthDenied
	})

	if _, err := a.Acquire(context.Background(), true); !errors.Is(err, ErrAuthDenied) {
		t.Fatalf("error = %v, want ErrAuthDenied", err)
	}
	if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
		t.Errorf("token file written after denial")
	}
}

func TestConcurrentInteractiveAcquireSharesPrompt(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	release := make(chan struct{})
	var prompts atomic.Int32
	a, _ := newTestAuth(t, clock, func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		prompts.Add(1)
		<-release
		return &oauth2.Token{AccessToken: "shared"}, nil
	})

	const callers = 5
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := a.Acquire(context.Background(), true)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			results <- tok.AccessToken
		}()
	}

	// Let every caller reach the prompt before granting.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for tok := range results {
		if tok != "shared" {
			t.Errorf("token = %q, want shared", tok)
		}
	}
	if prompts.Load() != 1 {
		t.Errorf("consent prompts = %d, want 1", prompts.Load())
	}
}

func TestInvalidate(t *testing.T) {
	var revoked atomic.Value
	revokeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		revoked.Store(r.Form.Get("token"))
	}))
	defer revokeSrv.Close()

	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	a, tokenPath := newTestAuth(t, clock, grant("abc"), WithRevokeURL(revokeSrv.URL))
	if _, err := a.Acquire(context.Background(), true); err != nil {
		t.Fatal(err)
	}

	if err := a.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if got, _ := revoked.Load().(string); got != "abc" {
		t.Errorf("revoked token = %q, want abc", got)
	}
	if _, err := os.Stat(tokenPath); !os.IsNotExist(err) {
		t.Error("token file still present after Invalidate")
	}
	if _, err := a.Acquire(context.Background(), false); !errors.Is(err, ErrNoToken) {
		t.Errorf("Acquire after Invalidate error = %v, want ErrNoToken", err)
	}
}

func TestTokenSourceNeverPrompts(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	a, _ := newTestAuth(t, clock, func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		t.Error("consent should not run")
		return nil, ErrAuthDenied
	})

	if _, err := a.TokenSource().Token(); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Token() error = %v, want ErrNoToken", err)
	}
}

func TestReauthenticateReplacesRejectedToken(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	var prompts atomic.Int32
	a, tokenPath := newTestAuth(t, clock, func(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
		prompts.Add(1)
		return &oauth2.Token{AccessToken: "fresh", TokenType: "Bearer"}, nil
	})
	if err := a.Persist(&oauth2.Token{AccessToken: "revoked", TokenType: "Bearer"}); err != nil {
		t.Fatal(err)
	}

	// Still inside the validity window, so a plain interactive Acquire reuses it.
	if tok, err := a.Acquire(context.Background(), true); err != nil || tok.AccessToken != "revoked" {
		t.Fatalf("Acquire = %v, %v; want the cached token", tok, err)
	}
	if prompts.Load() != 0 {
		t.Fatalf("consent prompts = %d, want 0", prompts.Load())
	}

	tok, err := a.Reauthenticate(context.Background())
	if err != nil {
		t.Fatalf("Reauthenticate: %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Errorf("token = %q, want fresh", tok.AccessToken)
	}
	if prompts.Load() != 1 {
		t.Errorf("consent prompts = %d, want 1", prompts.Load())
	}
	if tok, err := a.Acquire(context.Background(), false); err != nil || tok.AccessToken != "fresh" {
		t.Errorf("Acquire after Reauthenticate = %v, %v; want fresh", tok, err)
	}
	if _, err := os.Stat(tokenPath); err != nil {
		t.Errorf("new token not persisted: %v", err)
	}
}
