package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"candidate-pipeline/internal/models"
)

func sampleApps() []models.Application {
	score := 82
	applied := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	return []models.Application{
		{
			ID: 1, Stage: "interview", Priority: models.PriorityHigh, Rating: 4,
			Tags: []string{"go", "remote"}, JobMatchScore: &score, AppliedAt: &applied,
			Applicant: models.Applicant{FullName: "Ada Lovelace", Email: "ada@example.com", Location: "London"},
		},
		{
			ID: 2, Stage: "new", Priority: models.PriorityNormal,
			Applicant: models.Applicant{FullName: "José Ñúñez", Email: "jose@example.com"},
		},
	}
}

func TestRenderCSV(t *testing.T) {
	doc, err := Render(models.FormatCSV, sampleApps())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if doc.ContentType != ContentTypeCSV || doc.Extension != "csv" {
		t.Fatalf("unexpected document meta %+v", doc)
	}
	records, err := csv.NewReader(bytes.NewReader(doc.Data)).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	first := records[1]
	if first[1] != "Ada Lovelace" || first[5] != "interview" || first[8] != "82" || first[9] != "go, remote" || first[10] != "2024-03-05" {
		t.Fatalf("unexpected row %v", first)
	}
	if records[2][8] != "" || records[2][10] != "" {
		t.Fatalf("expected empty score and date for second row, got %v", records[2])
	}
}

func TestRenderSheetUsesCSV(t *testing.T) {
	doc, err := Render(models.FormatSheet, sampleApps())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if doc.Extension != "csv" {
		t.Fatalf("expected csv extension, got %s", doc.Extension)
	}
}

func TestRenderXLSX(t *testing.T) {
	doc, err := Render(models.FormatXLSX, sampleApps())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(doc.Data))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("Applications")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "ID" || rows[1][2] != "ada@example.com" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestRenderPDF(t *testing.T) {
	doc, err := Render(models.FormatPDF, sampleApps())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(doc.Data, []byte("%PDF")) {
		t.Fatalf("expected pdf magic header")
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if _, err := Render(models.ExportFormat("docx"), nil); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestLocalPublisher(t *testing.T) {
	dir := t.TempDir()
	pub := &LocalPublisher{BaseDir: dir}

	url, err := pub.Upload(context.Background(), "../../escape/report.csv", []byte("a,b\n"), ContentTypeCSV)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(url, "file://") {
		t.Fatalf("expected file url, got %s", url)
	}
	path := strings.TrimPrefix(url, "file://")
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("expected upload to stay under %s, got %s", dir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "a,b\n" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("", "csv")
	if !strings.HasPrefix(key, "exports/default/") || !strings.HasSuffix(key, ".csv") {
		t.Fatalf("unexpected key %s", key)
	}
	if ObjectKey("acme", "csv") == ObjectKey("acme", "csv") {
		t.Fatalf("expected unique keys")
	}
}
