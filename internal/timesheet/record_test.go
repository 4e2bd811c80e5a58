package timesheet_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

func TestNewDefault(t *testing.T) {
	var weekdays [timesheet.DaysInRecord]string
	for i := range weekdays {
		weekdays[i] = "Thứ 2"
	}

	rec := timesheet.NewDefault(timesheet.Period{Month: 6, Year: 2024}, weekdays)

	if rec.Month != 6 || rec.Year != 2024 {
		t.Errorf("period = %v, want 6/2024", rec.Period)
	}
	for i, d := range rec.DailyHours {
		if d != "" {
			t.Errorf("day %d = %q, want empty", i, d)
		}
	}
	if rec.WeekdayLabels != weekdays {
		t.Error("weekday labels not carried over")
	}
	if rec.TotalHours != "0" || rec.TotalOvertime != "0" || rec.TotalSalary != "0" {
		t.Errorf("totals = %q/%q/%q, want zeros", rec.TotalHours, rec.TotalOvertime, rec.TotalSalary)
	}
}

func TestRecordCopyIsIndependent(t *testing.T) {
	rec := timesheet.NewDefault(timesheet.Period{Month: 1, Year: 2025}, [timesheet.DaysInRecord]string{})
	cp := rec
	if err := cp.SetDay(0, "8"); err != nil {
		t.Fatal(err)
	}
	if rec.DailyHours[0] != "" {
		t.Errorf("original mutated through copy: %q", rec.DailyHours[0])
	}
}

func TestSetDayBounds(t *testing.T) {
	var rec timesheet.Record
	for _, idx := range []int{-1, 31, 100} {
		if err := rec.SetDay(idx, "1"); !errors.Is(err, timesheet.ErrDayOutOfRange) {
			t.Errorf("SetDay(%d) error = %v, want ErrDayOutOfRange", idx, err)
		}
	}
	if err := rec.SetDay(30, "7.5"); err != nil {
		t.Fatalf("SetDay(30): %v", err)
	}
	if rec.Filled() != 1 {
		t.Errorf("Filled() = %d, want 1", rec.Filled())
	}
}

func TestRecordJSONShape(t *testing.T) {
	rec := timesheet.NewDefault(timesheet.Period{Month: 5, Year: 2024}, [timesheet.DaysInRecord]string{})
	rec.DailyHours[9] = "8.5"

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"month", "year", "days", "weekdays", "totalHours", "totalOvertime", "totalSalary"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if days := raw["days"].([]any); len(days) != timesheet.DaysInRecord {
		t.Errorf("len(days) = %d, want 31", len(days))
	}
}

func TestShortPayloadStillHas31Days(t *testing.T) {
	var rec timesheet.Record
	if err := json.Unmarshal([]byte(`{"month":2,"year":2024,"days":["1","2"]}`), &rec); err != nil {
		t.Fatal(err)
	}
	if rec.DailyHours[0] != "1" || rec.DailyHours[1] != "2" || rec.DailyHours[30] != "" {
		t.Errorf("unexpected days %v", rec.DailyHours)
	}
}

func TestPeriod(t *testing.T) {
	p := timesheet.CurrentPeriod(time.Date(2024, time.May, 17, 0, 0, 0, 0, time.UTC))
	if p != (timesheet.Period{Month: 5, Year: 2024}) {
		t.Errorf("CurrentPeriod = %v", p)
	}
	if p.String() != "5/2024" {
		t.Errorf("String() = %q", p.String())
	}
	if (timesheet.Period{Month: 13, Year: 2024}).Valid() {
		t.Error("month 13 reported valid")
	}
}
