// Package export формирует выгрузку черновиков в XLSX.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/mmeshcher/depannfroid-reports/internal/invoice"
	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

// SheetName имя листа с черновиками.
const SheetName = "Brouillons"

// ContentType MIME-тип книги XLSX.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var headers = []string{
	"N° rapport",
	"Date",
	"Client",
	"Technicien",
	"Type d'intervention",
	"Équipement",
	"Diagnostic",
	"Total HT",
	"TVA",
	"Total TTC",
	"Enregistré le",
}

var columnWidths = map[string]float64{
	"A": 16, "B": 12, "C": 28, "D": 14, "E": 20, "F": 24, "G": 48,
	"H": 12, "I": 12, "J": 12, "K": 18,
}

// Drafts пишет книгу с одной строкой на черновик. Итоги считаются калькулятором по строкам черновика.
func Drafts(w io.Writer, drafts []model.Draft, calc *invoice.Calculator) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"1F4E78"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	amountStyle, err := f.NewStyle(&excelize.Style{
		CustomNumFmt: ptr(`#,##0 "XPF"`),
	})
	if err != nil {
		return fmt.Errorf("create amount style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}

	for i, d := range drafts {
		row := i + 2
		summary := calc.Compute(d.Lines)
		values := []any{
			d.ReportNumber,
			d.Report.Date,
			d.Report.Name,
			d.Report.Technician,
			d.Report.InterventionType,
			equipmentLabel(d.Report.Equipment),
			d.Report.Diagnostic,
			summary.TotalHT.InexactFloat64(),
			summary.TotalVAT.InexactFloat64(),
			summary.TotalTTC.InexactFloat64(),
			d.SavedAt.Format("2006-01-02 15:04"),
		}

		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("write draft %d: %w", d.ID, err)
		}

		from, _ := excelize.CoordinatesToCellName(8, row)
		to, _ := excelize.CoordinatesToCellName(10, row)
		if err := f.SetCellStyle(SheetName, from, to, amountStyle); err != nil {
			return fmt.Errorf("style amounts: %w", err)
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func equipmentLabel(e model.Equipment) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{e.Type, e.Brand, e.Model} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

func ptr[T any](v T) *T {
	return &v
}
