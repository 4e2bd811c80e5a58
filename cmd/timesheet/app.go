package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"golang.org/x/oauth2"

	"github.com/digitaldrywood/timesheet/internal/config"
	"github.com/digitaldrywood/timesheet/internal/database"
	"github.com/digitaldrywood/timesheet/internal/google"
	"github.com/digitaldrywood/timesheet/internal/logging"
	"github.com/digitaldrywood/timesheet/internal/timesheet"
	"github.com/digitaldrywood/timesheet/internal/tracker"
)

// app is one wired instance of the sync core and its collaborators.
type app struct {
	cfg     *config.Config
	db      *database.DB
	tracker *tracker.Tracker
	logFile io.Closer

	auth   *pending[*google.Auth]
	sheets *pending[*google.SheetsClient]
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Read()
	if err != nil {
		return nil, err
	}

	logFile, err := logging.Setup(cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	db, err := database.New(cfg.DataDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &app{cfg: cfg, db: db, logFile: logFile}

	// The OAuth client and the Sheets service load in the background; the
	// sync core waits for both before signing in.
	a.auth = newPending(func() (*google.Auth, error) {
		return google.NewAuth(cfg.CredentialsPath, cfg.TokenPath, cfg.OAuthRedirectURL)
	})
	a.sheets = newPending(func() (*google.SheetsClient, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		auth, err := a.auth.get(ctx)
		if err != nil {
			return nil, err
		}
		service, err := auth.GetSheetsService(ctx)
		if err != nil {
			return nil, err
		}
		return google.NewSheetsClient(service, cfg.SpreadsheetID), nil
	})

	a.tracker = tracker.NewTracker(ledger{a.sheets}, db, credentials{a.auth}, logging.New("sync"))
	return a, nil
}

// start runs the startup protocol and explains a terminal failure.
func (a *app) start(ctx context.Context) error {
	err := a.tracker.Start(ctx, a.auth.ready(), a.sheets.ready())
	if err == nil {
		return nil
	}

	var initErr *tracker.InitError
	if errors.As(err, &initErr) {
		return fmt.Errorf("%w\n%s", err, initErr.Guidance())
	}
	if tracker.Classify(err) == tracker.KindAuth {
		return fmt.Errorf("not signed in: %w (run 'timesheet auth')", err)
	}
	return err
}

func (a *app) Close() {
	a.tracker.Wait()
	if err := a.db.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
	a.logFile.Close()
}

// pending is a collaborator that finishes loading in the background.
type pending[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newPending[T any](load func() (T, error)) *pending[T] {
	p := &pending[T]{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.val, p.err = load()
	}()
	return p
}

func (p *pending[T]) get(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// ready is the readiness signal handed to the sync core.
func (p *pending[T]) ready() <-chan error {
	return tracker.Signal(func() error {
		<-p.done
		return p.err
	})
}

type credentials struct{ p *pending[*google.Auth] }

func (c credentials) Acquire(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	auth, err := c.p.get(ctx)
	if err != nil {
		return nil, err
	}
	return auth.Acquire(ctx, interactive)
}

func (c credentials) Reauthenticate(ctx context.Context) (*oauth2.Token, error) {
	auth, err := c.p.get(ctx)
	if err != nil {
		return nil, err
	}
	return auth.Reauthenticate(ctx)
}

func (c credentials) Invalidate(ctx context.Context) error {
	auth, err := c.p.get(ctx)
	if err != nil {
		return err
	}
	return auth.Invalidate(ctx)
}

type ledger struct{ p *pending[*google.SheetsClient] }

func (l ledger) ReadAll(ctx context.Context) (*timesheet.Record, error) {
	s, err := l.p.get(ctx)
	if err != nil {
		return nil, err
	}
	return s.ReadAll(ctx)
}

func (l ledger) WriteAll(ctx context.Context, rec *timesheet.Record) error {
	s, err := l.p.get(ctx)
	if err != nil {
		return err
	}
	return s.WriteAll(ctx, rec)
}

func (l ledger) WriteCell(ctx context.Context, index int, value string) error {
	s, err := l.p.get(ctx)
	if err != nil {
		return err
	}
	return s.WriteCell(ctx, index, value)
}

func (l ledger) WritePeriod(ctx context.Context, p timesheet.Period) error {
	s, err := l.p.get(ctx)
	if err != nil {
		return err
	}
	return s.WritePeriod(ctx, p)
}
