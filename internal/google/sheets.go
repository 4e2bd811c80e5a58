package google

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/sheets/v4"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

const (
	renderFormatted = "FORMATTED_VALUE"
	inputUserEnter  = "USER_ENTERED"
)

// SheetsClient maps timesheet records onto the fixed ChamCong layout. It does
// not retry or interpret errors; callers decide what a failure means.
type SheetsClient struct {
	service       *sheets.Service
	spreadsheetID string
	now           func() time.Time
}

func NewSheetsClient(service *sheets.Service, spreadsheetID string) *SheetsClient {
	return &SheetsClient{
		service:       service,
		spreadsheetID: spreadsheetID,
		now:           time.Now,
	}
}

// ReadAll fetches period, day cells, weekday labels and totals in one
// batched request.
func (s *SheetsClient) ReadAll(ctx context.Context) (*timesheet.Record, error) {
	resp, err := s.service.Spreadsheets.Values.BatchGet(s.spreadsheetID).
		Ranges(readRanges()...).
		ValueRenderOption(renderFormatted).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve data from sheet: %w", err)
	}

	ranges := resp.ValueRanges
	if len(ranges) != len(readRanges()) {
		return nil, fmt.Errorf("unable to retrieve data from sheet: got %d ranges, want %d", len(ranges), len(readRanges()))
	}

	rec := &timesheet.Record{
		Period: timesheet.Period{
			Month: intOr(firstValue(ranges[0]), 1),
			Year:  intOr(firstValue(ranges[1]), s.now().Year()),
		},
		TotalHours:    stringOr(firstValue(ranges[6]), "0"),
		TotalOvertime: stringOr(firstValue(ranges[7]), "0"),
		TotalSalary:   stringOr(firstValue(ranges[8]), "0"),
	}
	for i, b := range dayBlocks {
		copy(rec.DailyHours[b.offset:], column(ranges[2+i], b.count))
		copy(rec.WeekdayLabels[b.offset:], column(ranges[4+i], b.count))
	}
	return rec, nil
}

// WriteAll writes the period and every day cell. Weekday labels and totals
// belong to the sheet and are left alone.
func (s *SheetsClient) WriteAll(ctx context.Context, rec *timesheet.Record) error {
	data := periodData(rec.Period)
	for _, b := range dayBlocks {
		values := make([][]interface{}, b.count)
		for i := range values {
			values[i] = []interface{}{rec.DailyHours[b.offset+i]}
		}
		data = append(data, &sheets.ValueRange{Range: b.valueRange(), Values: values})
	}
	if err := s.batchUpdate(ctx, data); err != nil {
		return fmt.Errorf("unable to write timesheet to sheet: %w", err)
	}
	return nil
}

// WriteCell writes a single day cell. index is 0-based.
func (s *SheetsClient) WriteCell(ctx context.Context, index int, value string) error {
	ref, err := DayCell(index)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(
		s.spreadsheetID,
		ref,
		&sheets.ValueRange{Values: [][]interface{}{{value}}},
	).ValueInputOption(inputUserEnter).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to write %s: %w", ref, err)
	}
	return nil
}

// WritePeriod writes only the month and year cells.
func (s *SheetsClient) WritePeriod(ctx context.Context, p timesheet.Period) error {
	if err := s.batchUpdate(ctx, periodData(p)); err != nil {
		return fmt.Errorf("unable to write period %s: %w", p, err)
	}
	return nil
}

func (s *SheetsClient) batchUpdate(ctx context.Context, data []*sheets.ValueRange) error {
	_, err := s.service.Spreadsheets.Values.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: inputUserEnter,
		Data:             data,
	}).Context(ctx).Do()
	return err
}

func periodData(p timesheet.Period) []*sheets.ValueRange {
	return []*sheets.ValueRange{
		{Range: cell(monthCell), Values: [][]interface{}{{p.Month}}},
		{Range: cell(yearCell), Values: [][]interface{}{{p.Year}}},
	}
}

// column flattens a single-column range, right-padding to n with empty
// strings. The API omits trailing empty rows.
func column(vr *sheets.ValueRange, n int) []string {
	out := make([]string, n)
	if vr == nil {
		return out
	}
	for i, row := range vr.Values {
		if i >= n {
			break
		}
		out[i] = getStringValue(row, 0)
	}
	return out
}

func firstValue(vr *sheets.ValueRange) string {
	if vr == nil || len(vr.Values) == 0 {
		return ""
	}
	return getStringValue(vr.Values[0], 0)
}

func getStringValue(row []interface{}, index int) string {
	if len(row) <= index || row[index] == nil {
		return ""
	}
	switch v := row[index].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func intOr(s string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fallback
	}
	return n
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
