package tracker

import (
	"context"
	"time"

	"github.com/digitaldrywood/timesheet/internal/metrics"
	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

// opClass selects the failure policy of a remote operation.
type opClass int

const (
	// critical failures are returned to the caller and leave the record untouched.
	critical opClass = iota
	// bestEffort failures are logged and fall back to a local snapshot.
	bestEffort
)

func (c opClass) String() string {
	if c == critical {
		return "critical"
	}
	return "best_effort"
}

// remoteOp is one write-then-read-back round trip against the ledger.
type remoteOp struct {
	name   string
	class  opClass
	period timesheet.Period

	// requireAuth prompts for consent before the first attempt.
	requireAuth bool
	// recoverAuth allows one interactive sign-in and a full retry after an
	// auth-class failure.
	recoverAuth bool

	// write runs before the read-back. Nil means read only.
	write func(ctx context.Context) error
	// fallback is the record snapshotted when a best-effort op fails.
	fallback func() timesheet.Record
}

// performRemoteOp runs op and applies its class policy. On success the
// read-back record becomes current and is snapshotted.
func (t *Tracker) performRemoteOp(ctx context.Context, op remoteOp) error {
	started := time.Now()
	t.trackInFlight(1)
	defer t.trackInFlight(-1)

	rec, err := t.attempt(ctx, op)
	if err != nil && op.recoverAuth && Classify(err) == KindAuth {
		rec, err = t.recoverAuth(ctx, op)
	}

	if err != nil {
		metrics.ObserveRemoteOp(op.name, "error", started)
		t.logger.Printf("%s %s failed (%s): %v", op.name, op.period, Classify(err), err)

		if op.class == bestEffort {
			if op.fallback != nil {
				local := op.fallback()
				t.saveSnapshot(&local)
			}
			t.journal(op.name, op.period, timesheet.OutcomeLocalOnly)
			metrics.ObserveLocalFallback(op.name)
			return nil
		}

		t.mu.Lock()
		t.session.LastErr = err
		t.mu.Unlock()
		t.journal(op.name, op.period, timesheet.OutcomeFailed)
		return err
	}

	metrics.ObserveRemoteOp(op.name, "ok", started)
	outcome := timesheet.OutcomeLoaded
	if op.write != nil {
		outcome = timesheet.OutcomeSynced
	}

	t.mu.Lock()
	t.session.LastErr = nil
	if t.session.State == StateAwaitingAuth {
		t.session.State = StateReady
	}
	t.mu.Unlock()

	t.adopt(rec, op.write != nil)
	t.saveSnapshot(rec)
	t.journal(op.name, rec.Period, outcome)
	return nil
}

func (t *Tracker) attempt(ctx context.Context, op remoteOp) (*timesheet.Record, error) {
	if op.requireAuth {
		if err := t.authenticate(ctx); err != nil {
			return nil, err
		}
	}
	if op.write != nil {
		if err := op.write(ctx); err != nil {
			return nil, err
		}
	}

	rec, err := t.ledger.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errNoRecord
	}
	return rec, nil
}

// authenticate makes sure a token is available, prompting if needed. After
// an auth-class failure the cached token is known to be rejected, so it is
// replaced rather than reused.
func (t *Tracker) authenticate(ctx context.Context) error {
	if t.State() == StateAwaitingAuth {
		_, err := t.creds.Reauthenticate(ctx)
		return err
	}
	_, err := t.creds.Acquire(ctx, true)
	return err
}

// recoverAuth replaces the rejected token through one interactive sign-in
// and retries op.
func (t *Tracker) recoverAuth(ctx context.Context, op remoteOp) (*timesheet.Record, error) {
	t.logger.Printf("%s: credential rejected, signing in again", op.name)

	if _, err := t.creds.Reauthenticate(ctx); err != nil {
		metrics.ObserveAuthRecovery("denied")
		return nil, err
	}

	op.requireAuth = false
	rec, err := t.attempt(ctx, op)
	if err != nil {
		metrics.ObserveAuthRecovery("failed")
		return nil, err
	}
	metrics.ObserveAuthRecovery("recovered")
	return rec, nil
}
