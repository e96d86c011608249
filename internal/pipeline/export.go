package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"candidate-pipeline/internal/models"
	"candidate-pipeline/internal/telemetry"
)

// FileSaver stores a downloaded export and returns where it ended up.
type FileSaver interface {
	Save(name string, data []byte) (string, error)
}

// DirSaver writes exports into a directory.
type DirSaver struct {
	Dir string
}

// Save writes data under Dir using the base name only.
func (d DirSaver) Save(name string, data []byte) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}

// ExportOutcome describes a finished export.
type ExportOutcome struct {
	Format   models.ExportFormat
	Filename string
	Path     string
	SheetURL string
	Message  string
}

// Exporter sends a selection to the backend export call and delivers the result.
type Exporter struct {
	backend   Backend
	saver     FileSaver
	notify    Notifier
	now       func() time.Time
	exporting atomic.Bool
}

// NewExporter wires an exporter. notify may be nil.
func NewExporter(backend Backend, saver FileSaver, notify Notifier) *Exporter {
	if saver == nil {
		saver = DirSaver{Dir: "."}
	}
	if notify == nil {
		notify = NotifierFunc(func(models.PendingAction) {})
	}
	return &Exporter{backend: backend, saver: saver, notify: notify, now: time.Now}
}

// Exporting reports whether an export is in flight.
func (e *Exporter) Exporting() bool {
	return e.exporting.Load()
}

// Export runs one export. File formats are saved through the FileSaver; the sheet
// format yields a link that is surfaced as a notice. Every failure becomes a notice.
func (e *Exporter) Export(ctx context.Context, ids []int64, format models.ExportFormat) (ExportOutcome, error) {
	if !format.Valid() {
		return ExportOutcome{}, fmt.Errorf("export %q: %w", format, ErrUnsupportedFormat)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ExportOutcome{}, ErrNoTargets
	}
	if !e.exporting.CompareAndSwap(false, true) {
		return ExportOutcome{}, ErrExportInProgress
	}
	defer e.exporting.Store(false)

	outcome, err := e.run(ctx, ids, format)
	if err != nil {
		telemetry.Exports.WithLabelValues(string(format), "failed").Inc()
		log.Printf("pipeline: export failed format=%s targets=%d: %v", format, len(ids), err)
		e.notify.Notice(models.PendingAction{
			Kind:      models.PendingNotice,
			TargetIDs: ids,
			Title:     "Export failed",
			Message:   userMessage(err, "Export failed. Please try again."),
		})
		return ExportOutcome{}, err
	}
	telemetry.Exports.WithLabelValues(string(format), "delivered").Inc()
	return outcome, nil
}

func (e *Exporter) run(ctx context.Context, ids []int64, format models.ExportFormat) (ExportOutcome, error) {
	res, err := e.backend.Export(ctx, models.ExportRequest{ApplicationIDs: ids, Format: format})
	if err != nil {
		return ExportOutcome{}, fmt.Errorf("export %s: %w", format, err)
	}

	if !format.Binary() {
		if res.SheetURL == "" {
			return ExportOutcome{}, fmt.Errorf("export %s: backend returned no sheet url", format)
		}
		msg := res.Message
		if msg == "" {
			msg = "Your sheet is ready."
		}
		e.notify.Notice(models.PendingAction{
			Kind:      models.PendingNotice,
			TargetIDs: ids,
			Title:     "Sheet export ready",
			Message:   msg,
			URL:       res.SheetURL,
		})
		return ExportOutcome{Format: format, SheetURL: res.SheetURL, Message: msg}, nil
	}

	name := strings.TrimSpace(res.Filename)
	if name == "" {
		name = DefaultExportFilename(format, e.now())
	}
	path, err := e.saver.Save(name, res.Data)
	if err != nil {
		return ExportOutcome{}, err
	}
	return ExportOutcome{Format: format, Filename: filepath.Base(name), Path: path, Message: res.Message}, nil
}

// DefaultExportFilename names an export when the server did not.
func DefaultExportFilename(format models.ExportFormat, at time.Time) string {
	return fmt.Sprintf("applications-%s.%s", at.UTC().Format("20060102-150405"), format.Extension())
}
