// Package export renders a timesheet record into a printable xlsx document.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

const (
	sheetName = "BangChamCong"

	// paperA4 is the OOXML paper size code for A4.
	paperA4 = 9

	summaryRow = 4
	detailRow  = 9
	headerRow  = 10
	firstDay   = 11

	// Days 1-16 go in the left table, 17-31 in the right one.
	splitAt = 16
)

// FileName is the document name for p, e.g. BangChamCong_Thang5_2024.xlsx.
func FileName(p timesheet.Period) string {
	return fmt.Sprintf("BangChamCong_Thang%d_%d.xlsx", p.Month, p.Year)
}

type styles struct {
	title, subtitle, heading, label, salary, header, cell, filled, footer int
}

// Workbook builds the document for rec. The caller closes the file.
func Workbook(rec timesheet.Record, exportedAt time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, err
	}

	st, err := newStyles(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create styles: %w", err)
	}

	steps := []func() error{
		func() error { return setupPage(f) },
		func() error { return writeTitle(f, st, rec.Period) },
		func() error { return writeSummary(f, st, rec) },
		func() error { return writeDetails(f, st, rec) },
		func() error { return writeFooter(f, st, exportedAt) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// WriteFile saves the document for rec into dir and returns its path.
func WriteFile(dir string, rec timesheet.Record, exportedAt time.Time) (string, error) {
	f, err := Workbook(rec, exportedAt)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := filepath.Join(dir, FileName(rec.Period))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", path, err)
	}
	return path, nil
}

func newStyles(f *excelize.File) (styles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "D1D5DB", Style: 1},
		{Type: "right", Color: "D1D5DB", Style: 1},
		{Type: "top", Color: "D1D5DB", Style: 1},
		{Type: "bottom", Color: "D1D5DB", Style: 1},
	}
	center := &excelize.Alignment{Horizontal: "center", Vertical: "center"}

	defs := []*excelize.Style{
		{Font: &excelize.Font{Bold: true, Size: 18, Color: "1A1A1A"}, Alignment: center},
		{Font: &excelize.Font{Size: 12, Color: "666666"}, Alignment: center},
		{Font: &excelize.Font{Bold: true, Size: 11, Color: "333333"}},
		{Font: &excelize.Font{Bold: true}},
		{Font: &excelize.Font{Bold: true, Color: "2563EB"}},
		{
			Font:      &excelize.Font{Bold: true},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E5E7EB"}, Pattern: 1},
			Alignment: center,
			Border:    border,
		},
		{Alignment: center, Border: border},
		{
			Font:      &excelize.Font{Bold: true},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DCFCE7"}, Pattern: 1},
			Alignment: center,
			Border:    border,
		},
		{Font: &excelize.Font{Size: 9, Color: "999999"}, Alignment: &excelize.Alignment{Horizontal: "right"}},
	}

	ids := make([]int, len(defs))
	for i, def := range defs {
		id, err := f.NewStyle(def)
		if err != nil {
			return styles{}, err
		}
		ids[i] = id
	}
	return styles{
		title: ids[0], subtitle: ids[1], heading: ids[2], label: ids[3], salary: ids[4],
		header: ids[5], cell: ids[6], filled: ids[7], footer: ids[8],
	}, nil
}

func setupPage(f *excelize.File) error {
	size := paperA4
	orientation := "portrait"
	one := 1
	if err := f.SetPageLayout(sheetName, &excelize.PageLayoutOptions{
		Size:        &size,
		Orientation: &orientation,
		FitToWidth:  &one,
		FitToHeight: &one,
	}); err != nil {
		return fmt.Errorf("failed to set page layout: %w", err)
	}

	fit := true
	if err := f.SetSheetProps(sheetName, &excelize.SheetPropsOptions{FitToPage: &fit}); err != nil {
		return fmt.Errorf("failed to set fit to page: %w", err)
	}

	for _, col := range []string{"A", "E"} {
		if err := f.SetColWidth(sheetName, col, col, 10); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheetName, "B", "C", 14); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "D", "D", 4); err != nil {
		return err
	}
	return f.SetColWidth(sheetName, "F", "G", 14)
}

func writeTitle(f *excelize.File, st styles, p timesheet.Period) error {
	rows := []struct {
		text  string
		style int
	}{
		{"BẢNG CHẤM CÔNG", st.title},
		{fmt.Sprintf("Tháng %d / %d", p.Month, p.Year), st.subtitle},
	}
	for i, r := range rows {
		row := i + 1
		from, to := fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row)
		if err := f.MergeCell(sheetName, from, to); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, from, r.text); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, from, to, r.style); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, st styles, rec timesheet.Record) error {
	lines := [][2]string{
		{"Tổng giờ làm:", rec.TotalHours + " giờ"},
		{"Tổng tăng ca:", rec.TotalOvertime + " giờ"},
		{"Tổng lương:", rec.TotalSalary},
	}

	if err := f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow), "TỔNG KẾT"); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("A%d", summaryRow), st.heading); err != nil {
		return err
	}

	for i, line := range lines {
		row := summaryRow + 1 + i
		label, value := fmt.Sprintf("A%d", row), fmt.Sprintf("C%d", row)
		if err := f.SetCellValue(sheetName, label, line[0]); err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, value, line[1]); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheetName, label, label, st.label); err != nil {
			return err
		}
	}
	salary := fmt.Sprintf("C%d", summaryRow+3)
	return f.SetCellStyle(sheetName, salary, salary, st.salary)
}

func writeDetails(f *excelize.File, st styles, rec timesheet.Record) error {
	heading := fmt.Sprintf("A%d", detailRow)
	if err := f.SetCellValue(sheetName, heading, "CHI TIẾT NGÀY CÔNG"); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, heading, heading, st.heading); err != nil {
		return err
	}

	tables := []struct {
		cols       [3]string
		start, end int
	}{
		{[3]string{"A", "B", "C"}, 0, splitAt},
		{[3]string{"E", "F", "G"}, splitAt, timesheet.DaysInRecord},
	}

	for _, tbl := range tables {
		for i, h := range []string{"Ngày", "Thứ", "Giờ"} {
			cell := fmt.Sprintf("%s%d", tbl.cols[i], headerRow)
			if err := f.SetCellValue(sheetName, cell, h); err != nil {
				return err
			}
			if err := f.SetCellStyle(sheetName, cell, cell, st.header); err != nil {
				return err
			}
		}

		for day := tbl.start; day < tbl.end; day++ {
			row := firstDay + day - tbl.start
			hours := rec.DailyHours[day]
			values := [3]string{fmt.Sprint(day + 1), dash(rec.WeekdayLabels[day]), dash(hours)}

			style := st.cell
			if hours != "" {
				style = st.filled
			}
			for i, v := range values {
				cell := fmt.Sprintf("%s%d", tbl.cols[i], row)
				if err := f.SetCellValue(sheetName, cell, v); err != nil {
					return err
				}
				if err := f.SetCellStyle(sheetName, cell, cell, style); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeFooter(f *excelize.File, st styles, exportedAt time.Time) error {
	row := firstDay + splitAt + 1
	from, to := fmt.Sprintf("A%d", row), fmt.Sprintf("G%d", row)
	if err := f.MergeCell(sheetName, from, to); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, from, "Xuất lúc: "+exportedAt.Format("15:04:05 2/1/2006")); err != nil {
		return err
	}
	return f.SetCellStyle(sheetName, from, to, st.footer)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
