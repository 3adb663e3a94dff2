package statements

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

var capTableColumns = []string{
	"grant_id", "holder", "total_options", "vested", "exercised",
	"exercisable", "strike_price", "status", "terminated", "issued_at",
}

func rowRecord(r *Row) []string {
	return []string{
		strconv.FormatUint(r.GrantID, 10),
		r.Holder,
		strconv.FormatUint(r.Total, 10),
		strconv.FormatUint(r.Vested, 10),
		strconv.FormatUint(r.Exercised, 10),
		strconv.FormatUint(r.Exercisable, 10),
		strconv.FormatUint(r.StrikePrice, 10),
		string(r.Status),
		strconv.FormatBool(r.Terminated),
		r.IssuedAt.Format("2006-01-02"),
	}
}

// WriteCapTableCSV streams the cap table as CSV.
func WriteCapTableCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(capTableColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range rows {
		if err := writer.Write(rowRecord(&rows[i])); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCapTableXLSX builds a styled workbook and writes it out.
func WriteCapTableXLSX(w io.Writer, rows []Row) error {
	file := excelize.NewFile()
	const sheet = "Cap Table"
	file.SetSheetName("Sheet1", sheet)

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range capTableColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(sheet, cell, col)
		file.SetCellStyle(sheet, cell, cell, headerStyle)
	}
	file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	for i := range rows {
		record := rowRecord(&rows[i])
		for j, val := range record {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			file.SetCellValue(sheet, cell, val)
		}
	}

	if err := file.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteStatementPDF renders a single-grant statement.
func WriteStatementPDF(w io.Writer, st *Statement) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "Grant Statement", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, "As of "+st.AsOf.Format("2006-01-02 15:04:05 MST"), "", 1, "C", false, 0, "")
	pdf.Ln(6)
	pdf.SetTextColor(0, 0, 0)

	g := st.Position.Grant
	lines := [][2]string{
		{"Grant ID", strconv.FormatUint(g.ID, 10)},
		{"Holder", g.HolderID.String()},
		{"Status", string(st.Position.Status)},
		{"Total options", strconv.FormatUint(g.TotalOptions, 10)},
		{"Vested", strconv.FormatUint(st.Position.Vested, 10)},
		{"Exercised", strconv.FormatUint(g.ExercisedOptions, 10)},
		{"Exercisable", strconv.FormatUint(st.Position.Exercisable, 10)},
		{"Strike price", strconv.FormatUint(g.StrikePrice, 10)},
		{"Vesting start", g.VestingStart.Format("2006-01-02")},
		{"Cliff (days)", strconv.FormatInt(g.CliffSeconds/86400, 10)},
		{"Vesting duration (days)", strconv.FormatInt(g.VestingSeconds/86400, 10)},
	}
	if g.Terminated && g.TerminatedAt != nil {
		lines = append(lines,
			[2]string{"Terminated at", g.TerminatedAt.Format("2006-01-02 15:04:05")},
			[2]string{"Exercise window (days)", strconv.FormatInt(g.WindowSeconds/86400, 10)},
		)
	}

	pdf.SetFont("Arial", "", 10)
	for _, line := range lines {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 7, line[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, line[1], "1", 1, "L", false, 0, "")
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "History", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, e := range st.Events {
		pdf.CellFormat(40, 6, e.CreatedAt.Format("2006-01-02 15:04"), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, string(e.EventType), "", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}
