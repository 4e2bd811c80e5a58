// Package tracker is the sync core. It keeps one current timesheet record
// consistent between user edits, the local snapshot cache and the remote
// spreadsheet, and recovers from expired tokens without interrupting edits.
//
// Remote operations are not serialized against each other. Overlapping
// operations each replace the current record when their read-back completes,
// so the last response wins. A background period reconcile is never
// cancelled and may overwrite a record the user switched to afterwards.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

// Ledger is the remote spreadsheet.
type Ledger interface {
	ReadAll(ctx context.Context) (*timesheet.Record, error)
	WriteAll(ctx context.Context, rec *timesheet.Record) error
	WriteCell(ctx context.Context, index int, value string) error
	WritePeriod(ctx context.Context, p timesheet.Period) error
}

// Store is the local snapshot cache plus the sync journal.
type Store interface {
	SaveSnapshot(rec *timesheet.Record) error
	LoadSnapshot(p timesheet.Period) (*timesheet.Record, bool)
	RecordSync(op string, p timesheet.Period, outcome timesheet.SyncOutcome) error
	LastSync() (time.Time, error)
}

// Credentials is the OAuth credential store.
type Credentials interface {
	Acquire(ctx context.Context, interactive bool) (*oauth2.Token, error)
	// Reauthenticate drops a token the service rejected and prompts for a new one.
	Reauthenticate(ctx context.Context) (*oauth2.Token, error)
	Invalidate(ctx context.Context) error
}

type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateAwaitingAuth
	StateReady
	// StateFailed is terminal; only a restart leaves it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAwaitingAuth:
		return "awaiting_auth"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := StateUninitialized; st <= StateFailed; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// SessionContext is everything the sync core owns for one running instance.
type SessionContext struct {
	State    State
	Record   timesheet.Record
	InFlight int
	LastSync time.Time
	InitErr  *InitError
	// LastErr is the most recent critical failure, cleared by the next success.
	LastErr error
}

// Snapshot is a copy of the session handed to presentation.
type Snapshot struct {
	State     State            `json:"state"`
	Record    timesheet.Record `json:"record"`
	Syncing   bool             `json:"syncing"`
	InFlight  int              `json:"inFlight"`
	LastSync  time.Time        `json:"lastSync"`
	InitKind  Kind             `json:"initKind,omitempty"`
	InitError string           `json:"initError,omitempty"`
	Guidance  string           `json:"guidance,omitempty"`
	LastError string           `json:"lastError,omitempty"`
}

type Tracker struct {
	ledger Ledger
	store  Store
	creds  Credentials
	logger *log.Logger
	now    func() time.Time

	mu          sync.Mutex
	session     SessionContext
	subscribers map[int]func(Snapshot)
	nextSub     int

	background sync.WaitGroup
}

// NewTracker wires the sync core. If logger is nil, a stderr logger is used.
func NewTracker(ledger Ledger, store Store, creds Credentials, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	t := &Tracker{
		ledger:      ledger,
		store:       store,
		creds:       creds,
		logger:      logger,
		now:         time.Now,
		subscribers: make(map[int]func(Snapshot)),
	}
	t.session.Record = timesheet.NewDefault(timesheet.CurrentPeriod(t.now()), [timesheet.DaysInRecord]string{})
	if last, err := store.LastSync(); err == nil {
		t.session.LastSync = last
	}
	return t
}

// Signal runs fn in the background and reports its result as a readiness
// signal for Start.
func Signal(fn func() error) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- fn() }()
	return ch
}

// Start waits for every readiness signal, signs in (prompting if no token is
// cached) and loads the remote record. A refused sign-in leaves the tracker
// awaiting auth; any other failure is terminal and returned as *InitError.
func (t *Tracker) Start(ctx context.Context, ready ...<-chan error) error {
	t.mu.Lock()
	if t.session.State != StateUninitialized {
		t.mu.Unlock()
		return fmt.Errorf("start: already %s", t.session.State)
	}
	t.session.State = StateInitializing
	t.mu.Unlock()
	t.notify()

	for _, ch := range ready {
		select {
		case err, ok := <-ch:
			if ok && err != nil {
				return t.fail(err)
			}
		case <-ctx.Done():
			return t.fail(ctx.Err())
		}
	}

	if _, err := t.creds.Acquire(ctx, false); err != nil {
		t.logger.Printf("No cached credential (%v), prompting for sign-in", err)
		if _, err := t.creds.Acquire(ctx, true); err != nil {
			if Classify(err) == KindAuth {
				t.setState(StateAwaitingAuth)
				return err
			}
			return t.fail(err)
		}
	}

	err := t.performRemoteOp(ctx, remoteOp{
		name:   "startup",
		class:  critical,
		period: t.Current().Period,
	})
	if err != nil {
		if Classify(err) == KindAuth {
			t.setState(StateAwaitingAuth)
			return err
		}
		return t.fail(err)
	}
	t.setState(StateReady)
	return nil
}

func (t *Tracker) fail(err error) error {
	initErr := newInitError(err)
	t.logger.Printf("Initialization failed: %v", initErr)
	t.mu.Lock()
	t.session.State = StateFailed
	t.session.InitErr = initErr
	t.mu.Unlock()
	t.notify()
	return initErr
}

// Current returns a copy of the current record.
func (t *Tracker) Current() timesheet.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.Record
}

func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session.State
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		State:    t.session.State,
		Record:   t.session.Record,
		Syncing:  t.session.InFlight > 0,
		InFlight: t.session.InFlight,
		LastSync: t.session.LastSync,
	}
	if t.session.LastErr != nil {
		s.LastError = t.session.LastErr.Error()
	}
	if e := t.session.InitErr; e != nil {
		s.InitKind = e.Kind
		s.InitError = e.Err.Error()
		s.Guidance = e.Guidance()
	}
	return s
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func unregisters it.
func (t *Tracker) Subscribe(fn func(Snapshot)) func() {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) notify() {
	t.mu.Lock()
	snap := t.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

// Wait blocks until background reconciles have finished.
func (t *Tracker) Wait() {
	t.background.Wait()
}

func (t *Tracker) setState(s State) {
	t.mu.Lock()
	if t.session.State == StateFailed {
		t.mu.Unlock()
		return
	}
	t.session.State = s
	t.mu.Unlock()
	t.notify()
}

// operational reports whether remote operations may be attempted.
func (t *Tracker) operational() bool {
	s := t.State()
	return s == StateReady || s == StateAwaitingAuth
}

// mutate applies fn to the current record in place and returns the result.
func (t *Tracker) mutate(fn func(r *timesheet.Record)) timesheet.Record {
	t.mu.Lock()
	fn(&t.session.Record)
	rec := t.session.Record
	t.mu.Unlock()
	t.notify()
	return rec
}

// adopt replaces the current record with one read back from the sheet.
func (t *Tracker) adopt(rec *timesheet.Record, stamp bool) {
	t.mu.Lock()
	t.session.Record = *rec
	if stamp {
		t.session.LastSync = t.now()
	}
	t.mu.Unlock()
	t.notify()
}

func (t *Tracker) saveSnapshot(rec *timesheet.Record) {
	if err := t.store.SaveSnapshot(rec); err != nil {
		t.logger.Printf("Failed to save snapshot %s: %v", rec.Period, err)
	}
}

func (t *Tracker) journal(op string, p timesheet.Period, outcome timesheet.SyncOutcome) {
	if err := t.store.RecordSync(op, p, outcome); err != nil {
		t.logger.Printf("Failed to record %s outcome: %v", op, err)
	}
}

func (t *Tracker) trackInFlight(delta int) {
	t.mu.Lock()
	t.session.InFlight += delta
	t.mu.Unlock()
	t.notify()
}

// applyFailure moves the session after a critical failure: auth errors wait
// for sign-in, configuration and access errors are terminal.
func (t *Tracker) applyFailure(err error) error {
	switch Classify(err) {
	case KindAuth:
		t.setState(StateAwaitingAuth)
	case KindConfiguration, KindAccessRestricted:
		return t.fail(err)
	}
	return err
}

var errNoRecord = errors.New("remote returned no record")
