package patient

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const rosterSheet = "Patients"

var rosterHeaders = []string{
	"ID", "First Name", "Middle Name", "Last Name", "Date of Birth", "Status", "Addresses", "Additional Fields",
}

var rosterWidths = []float64{8, 18, 18, 18, 14, 14, 48, 40}

// WriteRoster renders patients as a single-sheet XLSX workbook.
func WriteRoster(w io.Writer, patients []*Patient) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rosterSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return fmt.Errorf("create body style: %w", err)
	}

	for i, h := range rosterHeaders {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(rosterSheet, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(rosterSheet, col, col, rosterWidths[i]); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetCellStyle(rosterSheet, "A1", "H1", headerStyle); err != nil {
		return fmt.Errorf("set header style: %w", err)
	}

	for i, p := range patients {
		row := i + 2
		values := []interface{}{
			p.ID, p.FirstName, deref(p.MiddleName), p.LastName, p.DateOfBirth.String(), p.StatusName,
			formatAddresses(p.Addresses), formatFields(p.AdditionalFields),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(rosterSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", row, err)
		}
	}
	if len(patients) > 0 {
		last := fmt.Sprintf("H%d", len(patients)+1)
		if err := f.SetCellStyle(rosterSheet, "A2", last, wrapStyle); err != nil {
			return fmt.Errorf("set body style: %w", err)
		}
	}

	if err := f.SetPanes(rosterSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func formatAddresses(addrs []Address) string {
	lines := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts := []string{a.AddressLine1}
		if a.AddressLine2 != nil {
			parts = append(parts, *a.AddressLine2)
		}
		parts = append(parts, a.City, a.State+" "+a.ZipCode)
		if a.Country != nil {
			parts = append(parts, *a.Country)
		}
		lines = append(lines, strings.Join(parts, ", "))
	}
	return strings.Join(lines, "\n")
}

func formatFields(fields []FieldValue) string {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, f.FieldName+": "+f.FieldValue)
	}
	return strings.Join(lines, "\n")
}
