package google

import (
	"fmt"

	"github.com/digitaldrywood/timesheet/internal/timesheet"
)

// SheetName is the tab holding the timesheet.
const SheetName = "ChamCong"

const (
	monthCell         = "G1"
	yearCell          = "I1"
	totalHoursCell    = "G22"
	totalOvertimeCell = "F27"
	totalSalaryCell   = "F28"
)

// dayBlock is one of the two physical sub-tables holding day cells. Days
// 1-16 and 17-31 live in separate, non-adjacent column ranges.
type dayBlock struct {
	startRow int
	valueCol string
	labelCol string
	count    int
	offset   int // index of the block's first day in the record
}

var dayBlocks = [2]dayBlock{
	{startRow: 3, valueCol: "C", labelCol: "B", count: 16, offset: 0},
	{startRow: 3, valueCol: "I", labelCol: "H", count: 15, offset: 16},
}

func (b dayBlock) endRow() int { return b.startRow + b.count - 1 }

func (b dayBlock) valueRange() string {
	return fmt.Sprintf("%s!%s%d:%s%d", SheetName, b.valueCol, b.startRow, b.valueCol, b.endRow())
}

func (b dayBlock) labelRange() string {
	return fmt.Sprintf("%s!%s%d:%s%d", SheetName, b.labelCol, b.startRow, b.labelCol, b.endRow())
}

func (b dayBlock) contains(index int) bool {
	return index >= b.offset && index < b.offset+b.count
}

func cell(ref string) string { return SheetName + "!" + ref }

// blockFor resolves a record index to its block and 1-based sheet row.
func blockFor(index int) (dayBlock, int, error) {
	if err := timesheet.CheckDay(index); err != nil {
		return dayBlock{}, 0, err
	}
	for _, b := range dayBlocks {
		if b.contains(index) {
			return b, b.startRow + index - b.offset, nil
		}
	}
	return dayBlock{}, 0, fmt.Errorf("%w: %d", timesheet.ErrDayOutOfRange, index)
}

// DayCell returns the A1 reference of the cell holding day index (0-based).
func DayCell(index int) (string, error) {
	b, row, err := blockFor(index)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s!%s%d", SheetName, b.valueCol, row), nil
}

// readRanges lists the ranges fetched by ReadAll, in response order.
func readRanges() []string {
	return []string{
		cell(monthCell),
		cell(yearCell),
		dayBlocks[0].valueRange(),
		dayBlocks[1].valueRange(),
		dayBlocks[0].labelRange(),
		dayBlocks[1].labelRange(),
		cell(totalHoursCell),
		cell(totalOvertimeCell),
		cell(totalSalaryCell),
	}
}
