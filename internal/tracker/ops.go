package tracker

import (
	"context"
	"fmt"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

// Reload signs in if needed and replaces the current record with the sheet's.
func (t *Tracker) Reload(ctx context.Context) error {
	if !t.operational() {
		return ErrNotReady
	}
	err := t.performRemoteOp(ctx, remoteOp{
		name:        "reload",
		class:       critical,
		period:      t.Current().Period,
		requireAuth: true,
	})
	if err != nil {
		return t.applyFailure(err)
	}
	return nil
}

// SignIn prompts for consent if needed and loads the sheet.
func (t *Tracker) SignIn(ctx context.Context) error {
	return t.Reload(ctx)
}

// SignOut revokes the credential. Edits keep working against the local cache.
func (t *Tracker) SignOut(ctx context.Context) error {
	if err := t.creds.Invalidate(ctx); err != nil {
		return fmt.Errorf("unable to sign out: %w", err)
	}
	if t.operational() {
		t.setState(StateAwaitingAuth)
	}
	return nil
}

// Save writes the whole current record, then reads it back for fresh totals.
// Every failure wraps ErrSaveFailure and leaves the current record unchanged.
func (t *Tracker) Save(ctx context.Context) error {
	if !t.operational() {
		return fmt.Errorf("%w: %w", ErrSaveFailure, ErrNotReady)
	}
	rec := t.Current()
	err := t.performRemoteOp(ctx, remoteOp{
		name:        "save",
		class:       critical,
		period:      rec.Period,
		requireAuth: true,
		write: func(ctx context.Context) error {
			return t.ledger.WriteAll(ctx, &rec)
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailure, t.applyFailure(err))
	}
	return nil
}

// EditDay applies a keystroke-level edit to the current record without
// touching the network.
func (t *Tracker) EditDay(index int, value string) error {
	if err := timesheet.CheckDay(index); err != nil {
		return err
	}
	t.mutate(func(r *timesheet.Record) {
		r.SetDay(index, value)
	})
	return nil
}

// CommitDay applies the edit locally, then writes the single cell with the
// cached credential. An auth failure gets one interactive sign-in and retry;
// anything still failing leaves the edited record in the local snapshot, even
// if the period changed meanwhile. Only an out of range index is reported.
func (t *Tracker) CommitDay(ctx context.Context, index int, value string) error {
	if err := timesheet.CheckDay(index); err != nil {
		return err
	}
	rec := t.mutate(func(r *timesheet.Record) {
		r.SetDay(index, value)
	})

	if !t.operational() {
		t.saveSnapshot(&rec)
		return nil
	}
	return t.performRemoteOp(ctx, remoteOp{
		name:        "commit_day",
		class:       bestEffort,
		period:      rec.Period,
		recoverAuth: true,
		write: func(ctx context.Context) error {
			return t.ledger.WriteCell(ctx, index, value)
		},
		fallback: func() timesheet.Record { return rec },
	})
}

// ChangePeriod snapshots the current record, shows the cached or default
// record for p at once and reconciles it with the sheet in the background.
// The reconcile outlives ctx cancellation and is not superseded by a later
// period change.
func (t *Tracker) ChangePeriod(ctx context.Context, p timesheet.Period) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}

	cur := t.Current()
	t.saveSnapshot(&cur)

	provisional := timesheet.NewDefault(p, cur.WeekdayLabels)
	if cached, ok := t.store.LoadSnapshot(p); ok {
		provisional = *cached
	}
	t.adopt(&provisional, false)

	if !t.operational() {
		return nil
	}

	t.background.Add(1)
	go func() {
		defer t.background.Done()
		t.performRemoteOp(context.WithoutCancel(ctx), remoteOp{
			name:   "change_period",
			class:  bestEffort,
			period: p,
			write: func(ctx context.Context) error {
				return t.ledger.WriteAll(ctx, &provisional)
			},
			fallback: func() timesheet.Record { return provisional },
		})
	}()
	return nil
}

func (t *Tracker) ChangeMonth(ctx context.Context, month int) error {
	return t.ChangePeriod(ctx, timesheet.Period{Month: month, Year: t.Current().Year})
}

func (t *Tracker) ChangeYear(ctx context.Context, year int) error {
	return t.ChangePeriod(ctx, timesheet.Period{Month: t.Current().Month, Year: year})
}

// PinPeriod points the sheet at p without writing any day cells and loads
// what the sheet then shows.
func (t *Tracker) PinPeriod(ctx context.Context, p timesheet.Period) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	if !t.operational() {
		return ErrNotReady
	}
	err := t.performRemoteOp(ctx, remoteOp{
		name:        "pin_period",
		class:       critical,
		period:      p,
		requireAuth: true,
		write: func(ctx context.Context) error {
			return t.ledger.WritePeriod(ctx, p)
		},
	})
	if err != nil {
		return t.applyFailure(err)
	}
	return nil
}
