package database

import (
	"testing"
	"time"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestLoadSnapshotMissing(t *testing.T) {
	db := setupTestDB(t)

	rec, ok := db.LoadSnapshot(timesheet.Period{Month: 6, Year: 2024})
	if ok || rec != nil {
		t.Fatalf("LoadSnapshot on empty cache = %v, %v; want nil, false", rec, ok)
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	db := setupTestDB(t)

	rec := timesheet.NewDefault(timesheet.Period{Month: 5, Year: 2024}, [timesheet.DaysInRecord]string{})
	rec.DailyHours[9] = "8.5"
	rec.WeekdayLabels[9] = "Thứ 6"
	rec.TotalHours = "8.5"

	if err := db.SaveSnapshot(&rec); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, ok := db.LoadSnapshot(rec.Period)
	if !ok {
		t.Fatal("LoadSnapshot: not found")
	}
	if *got != rec {
		t.Errorf("LoadSnapshot = %+v, want %+v", *got, rec)
	}
}

func TestSaveSnapshotOverwrites(t *testing.T) {
	db := setupTestDB(t)
	p := timesheet.Period{Month: 5, Year: 2024}

	first := timesheet.NewDefault(p, [timesheet.DaysInRecord]string{})
	first.DailyHours[0] = "1"
	second := first
	second.DailyHours[0] = "2"

	if err := db.SaveSnapshot(&first); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSnapshot(&second); err != nil {
		t.Fatal(err)
	}

	got, _ := db.LoadSnapshot(p)
	if got.DailyHours[0] != "2" {
		t.Errorf("day 0 = %q, want 2", got.DailyHours[0])
	}
	periods, err := db.Periods()
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 1 {
		t.Errorf("periods = %v, want exactly one", periods)
	}
}

func TestSnapshotsKeyedByPeriod(t *testing.T) {
	db := setupTestDB(t)

	may := timesheet.NewDefault(timesheet.Period{Month: 5, Year: 2024}, [timesheet.DaysInRecord]string{})
	may.DailyHours[0] = "may"
	mayNextYear := timesheet.NewDefault(timesheet.Period{Month: 5, Year: 2025}, [timesheet.DaysInRecord]string{})
	mayNextYear.DailyHours[0] = "next"

	db.SaveSnapshot(&may)
	db.SaveSnapshot(&mayNextYear)

	got, _ := db.LoadSnapshot(may.Period)
	if got.DailyHours[0] != "may" {
		t.Errorf("2024 snapshot day 0 = %q", got.DailyHours[0])
	}
	periods, _ := db.Periods()
	if len(periods) != 2 || periods[0].Year != 2025 {
		t.Errorf("periods = %v", periods)
	}
}

func TestCorruptSnapshotIsAbsent(t *testing.T) {
	db := setupTestDB(t)
	p := timesheet.Period{Month: 3, Year: 2024}

	if _, err := db.conn.Exec(`INSERT INTO snapshots (year, month, payload) VALUES (?, ?, ?)`, p.Year, p.Month, "{bad json"); err != nil {
		t.Fatal(err)
	}

	rec, ok := db.LoadSnapshot(p)
	if ok || rec != nil {
		t.Fatalf("LoadSnapshot on corrupt payload = %v, %v; want nil, false", rec, ok)
	}
}

func TestLastSync(t *testing.T) {
	db := setupTestDB(t)
	p := timesheet.Period{Month: 5, Year: 2024}

	last, err := db.LastSync()
	if err != nil {
		t.Fatal(err)
	}
	if !last.IsZero() {
		t.Errorf("LastSync on empty journal = %v, want zero", last)
	}

	base := time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return base }
	if err := db.RecordSync("save", p, timesheet.OutcomeSynced); err != nil {
		t.Fatal(err)
	}
	db.now = func() time.Time { return base.Add(time.Hour) }
	if err := db.RecordSync("commit_day", p, timesheet.OutcomeLocalOnly); err != nil {
		t.Fatal(err)
	}

	last, err = db.LastSync()
	if err != nil {
		t.Fatal(err)
	}
	if !last.Equal(base) {
		t.Errorf("LastSync = %v, want %v", last, base)
	}
}

func TestPeriodsNewestFirst(t *testing.T) {
	db := setupTestDB(t)

	for _, p := range []timesheet.Period{{Month: 12, Year: 2023}, {Month: 2, Year: 2024}, {Month: 11, Year: 2024}} {
		rec := timesheet.NewDefault(p, [timesheet.DaysInRecord]string{})
		if err := db.SaveSnapshot(&rec); err != nil {
			t.Fatal(err)
		}
	}

	periods, err := db.Periods()
	if err != nil {
		t.Fatal(err)
	}
	want := []timesheet.Period{{Month: 11, Year: 2024}, {Month: 2, Year: 2024}, {Month: 12, Year: 2023}}
	if len(periods) != len(want) {
		t.Fatalf("Periods = %v, want %v", periods, want)
	}
	for i := range want {
		if periods[i] != want[i] {
			t.Errorf("Periods[%d] = %s, want %s", i, periods[i], want[i])
		}
	}
}
