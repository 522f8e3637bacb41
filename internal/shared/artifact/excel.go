package artifact

import (
	"fmt"

	"github.com/edierwan/serapod2u-prod-sub000/internal/trace/entity"
	"github.com/xuri/excelize/v2"
)

const (
	sheetMasters = "Master Codes"
	sheetUnits   = "Unique Codes"
)

// BuildBatchWorkbook renders the printable code hierarchy for a batch:
// one sheet of master codes with their case numbers and expected counts,
// one sheet of unique codes. The caller serializes and stores it.
func BuildBatchWorkbook(batch *entity.Batch, masters []entity.MasterCode, units []entity.UniqueCode) (*excelize.File, error) {
	f := excelize.NewFile()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})

	idx, err := f.NewSheet(sheetMasters)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	masterHeaders := []string{"Case Number", "Master Code", "Expected Units", "Batch"}
	for i, h := range masterHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheetMasters, cell, h)
		f.SetCellStyle(sheetMasters, cell, cell, headerStyle)
	}
	for i, m := range masters {
		row := i + 2
		f.SetCellValue(sheetMasters, fmt.Sprintf("A%d", row), m.CaseNumber)
		f.SetCellValue(sheetMasters, fmt.Sprintf("B%d", row), m.Code)
		f.SetCellValue(sheetMasters, fmt.Sprintf("C%d", row), m.ExpectedUnitCount)
		f.SetCellValue(sheetMasters, fmt.Sprintf("D%d", row), batch.ID)
	}
	f.SetColWidth(sheetMasters, "B", "B", 28)
	f.SetColWidth(sheetMasters, "D", "D", 36)

	if _, err := f.NewSheet(sheetUnits); err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	unitHeaders := []string{"#", "Unique Code"}
	for i, h := range unitHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheetUnits, cell, h)
		f.SetCellStyle(sheetUnits, cell, cell, headerStyle)
	}
	for i, u := range units {
		row := i + 2
		f.SetCellValue(sheetUnits, fmt.Sprintf("A%d", row), i+1)
		f.SetCellValue(sheetUnits, fmt.Sprintf("B%d", row), u.Code)
	}
	f.SetColWidth(sheetUnits, "B", "B", 28)

	return f, nil
}

// ObjectKey names the stored workbook for a batch.
func ObjectKey(batchID string) string {
	return fmt.Sprintf("batches/%s/codes.xlsx", batchID)
}
