package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"candidate-pipeline/internal/models"
)

const (
	ContentTypeCSV  = "text/csv"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"
)

var header = []string{"ID", "Name", "Email", "Phone", "Location", "Stage", "Priority", "Rating", "Match Score", "Tags", "Applied"}

// Document is a rendered export.
type Document struct {
	Data        []byte
	ContentType string
	Extension   string
}

// Render produces an export of apps in format. The sheet format renders as CSV.
func Render(format models.ExportFormat, apps []models.Application) (Document, error) {
	rows := make([][]string, 0, len(apps))
	for _, a := range apps {
		rows = append(rows, row(a))
	}
	switch format {
	case models.FormatCSV, models.FormatSheet:
		data, err := renderCSV(rows)
		return Document{Data: data, ContentType: ContentTypeCSV, Extension: "csv"}, err
	case models.FormatXLSX:
		data, err := renderXLSX(rows)
		return Document{Data: data, ContentType: ContentTypeXLSX, Extension: "xlsx"}, err
	case models.FormatPDF:
		data, err := renderPDF(rows)
		return Document{Data: data, ContentType: ContentTypePDF, Extension: "pdf"}, err
	}
	return Document{}, fmt.Errorf("unsupported export format %q", format)
}

func row(a models.Application) []string {
	score := ""
	if a.JobMatchScore != nil {
		score = strconv.Itoa(*a.JobMatchScore)
	}
	applied := ""
	if at, ok := a.ActivityDate(); ok {
		applied = at.UTC().Format("2006-01-02")
	}
	return []string{
		strconv.FormatInt(a.ID, 10),
		a.Applicant.FullName,
		a.Applicant.Email,
		a.Applicant.Phone,
		a.Applicant.Location,
		a.Stage,
		string(a.Priority),
		strconv.Itoa(a.Rating),
		score,
		strings.Join(a.Tags, ", "),
		applied,
	}
}

func renderCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("write csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

func renderXLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Applications"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	all := append([][]string{header}, rows...)
	for i, r := range all {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]interface{}, len(r))
		for j, v := range r {
			values[j] = v
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

var pdfWidths = []float64{14, 38, 48, 28, 30, 26, 18, 14, 18, 26, 20}

func renderPDF(rows [][]string) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle("Applications", true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 8)
	for i, h := range header {
		pdf.CellFormat(pdfWidths[i], 7, h, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 7)
	for _, r := range rows {
		for i, v := range r {
			pdf.CellFormat(pdfWidths[i], 6, truncate(tr(v), 32), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("encode pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "."
}
