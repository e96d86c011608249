package models

// Server-level bulk verbs.
const (
	VerbMoveStage   = "move_stage"
	VerbAddNote     = "add_note"
	VerbSetPriority = "set_priority"
	VerbTag         = "tag"
)

// ExportFormat is a supported export target.
type ExportFormat string

const (
	FormatCSV   ExportFormat = "csv"
	FormatXLSX  ExportFormat = "xlsx"
	FormatPDF   ExportFormat = "pdf"
	FormatSheet ExportFormat = "sheet"
)

// Valid reports whether f is known.
func (f ExportFormat) Valid() bool {
	switch f {
	case FormatCSV, FormatXLSX, FormatPDF, FormatSheet:
		return true
	}
	return false
}

// Binary reports whether the export is delivered as a file rather than a link.
func (f ExportFormat) Binary() bool {
	return f == FormatCSV || f == FormatXLSX || f == FormatPDF
}

// Extension is the file extension for binary formats.
func (f ExportFormat) Extension() string {
	if f == FormatSheet {
		return "csv"
	}
	return string(f)
}

// BulkPayload carries the argument of a bulk verb. Only the field matching the verb is read.
type BulkPayload struct {
	Stage    string   `json:"stage,omitempty"`
	Note     string   `json:"note,omitempty"`
	Priority Priority `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ApplicationsResponse answers GET /applications.
type ApplicationsResponse struct {
	Applications []ApplicationDTO `json:"applications"`
}

// UpdateStageRequest is the body of PATCH /applications/stage.
type UpdateStageRequest struct {
	ApplicationID   int64  `json:"application_id"`
	Stage           string `json:"stage"`
	ExpectedVersion int64  `json:"expected_version,omitempty"`
}

// UpdateStageResponse answers PATCH /applications/stage.
type UpdateStageResponse struct {
	Application ApplicationDTO `json:"application"`
}

// ApplicationResponse answers POST /applications/{id}/reveal.
type ApplicationResponse struct {
	Application ApplicationDTO `json:"application"`
}

// BulkRequest is the body of POST /applications/bulk.
type BulkRequest struct {
	ApplicationIDs []int64     `json:"application_ids"`
	Action         string      `json:"action"`
	Payload        BulkPayload `json:"payload"`
}

// BulkResponse answers a successful bulk action.
type BulkResponse struct {
	Success bool `json:"success"`
	Updated int  `json:"updated"`
}

// ExportRequest is the body of POST /applications/export.
type ExportRequest struct {
	ApplicationIDs []int64      `json:"application_ids"`
	Format         ExportFormat `json:"format"`
}

// SheetResponse answers a sheet export.
type SheetResponse struct {
	SheetURL string `json:"sheet_url"`
	Message  string `json:"message"`
}

// StagesPayload is the body and answer of the stage endpoints.
type StagesPayload struct {
	Stages []Stage `json:"stages"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
