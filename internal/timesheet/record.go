// Package timesheet holds the monthly timesheet record that is synchronized
// between the editor, the local snapshot cache and the remote spreadsheet.
package timesheet

import (
	"errors"
	"fmt"
	"time"
)

// DaysInRecord is the fixed number of day cells in every record, regardless
// of how many days the month actually has.
const DaysInRecord = 31

// ErrDayOutOfRange is returned for a day index outside 0..30.
var ErrDayOutOfRange = errors.New("day index out of range")

// Period identifies one timesheet record.
type Period struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

func (p Period) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year > 0
}

func (p Period) String() string {
	return fmt.Sprintf("%d/%d", p.Month, p.Year)
}

// CurrentPeriod returns the period containing t.
func CurrentPeriod(t time.Time) Period {
	return Period{Month: int(t.Month()), Year: t.Year()}
}

// Record is one month of daily hours plus the totals computed by the sheet.
//
// DailyHours[i] holds day i+1; an empty string means no entry. WeekdayLabels
// and the totals are owned by the remote sheet and are never written back.
type Record struct {
	Period
	DailyHours    [DaysInRecord]string `json:"days"`
	WeekdayLabels [DaysInRecord]string `json:"weekdays"`
	TotalHours    string               `json:"totalHours"`
	TotalOvertime string               `json:"totalOvertime"`
	TotalSalary   string               `json:"totalSalary"`
}

// NewDefault builds the empty record shown for a period that has never been
// seen: no hours, zero totals, weekday labels carried over from the last fetch.
func NewDefault(p Period, weekdays [DaysInRecord]string) Record {
	return Record{
		Period:        p,
		WeekdayLabels: weekdays,
		TotalHours:    "0",
		TotalOvertime: "0",
		TotalSalary:   "0",
	}
}

// SetDay stores value for the day at index (0-based).
func (r *Record) SetDay(index int, value string) error {
	if err := CheckDay(index); err != nil {
		return err
	}
	r.DailyHours[index] = value
	return nil
}

// Filled counts the days that have an entry.
func (r Record) Filled() int {
	n := 0
	for _, d := range r.DailyHours {
		if d != "" {
			n++
		}
	}
	return n
}

func CheckDay(index int) error {
	if index < 0 || index >= DaysInRecord {
		return fmt.Errorf("%w: %d", ErrDayOutOfRange, index)
	}
	return nil
}

// SyncOutcome is how a remote operation ended, as recorded in the sync journal.
type SyncOutcome string

const (
	// OutcomeSynced: written and read back; totals are current.
	OutcomeSynced SyncOutcome = "synced"
	// OutcomeLoaded: read from the sheet without writing.
	OutcomeLoaded SyncOutcome = "loaded"
	// OutcomeLocalOnly: the sheet was unreachable, the edit lives in the local snapshot.
	OutcomeLocalOnly SyncOutcome = "local_only"
	OutcomeFailed    SyncOutcome = "failed"
)
