package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"candidate-pipeline/internal/models"
	"candidate-pipeline/internal/pipeline"
)

const maxErrorBody = 64 * 1024

// APIError is a non-2xx answer from the pipeline API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("pipeline api: status %d", e.Status)
	}
	return fmt.Sprintf("pipeline api: status %d: %s", e.Status, e.Message)
}

// UserMessage is the text shown in a failure notice.
func (e *APIError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	switch {
	case e.Status == http.StatusTooManyRequests:
		return "Too many requests. Please wait a moment and try again."
	case e.Status >= http.StatusInternalServerError:
		return "The server could not complete the request. Please try again."
	}
	return ""
}

// Client talks to the pipeline HTTP API. It implements pipeline.Backend and
// pipeline.StagePersister.
type Client struct {
	baseURL    string
	workspace  string
	role       models.Role
	httpClient *http.Client
}

var (
	_ pipeline.Backend        = (*Client)(nil)
	_ pipeline.StagePersister = (*Client)(nil)
)

// New builds a client for baseURL. A zero timeout uses 30s.
func New(baseURL, workspace string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		workspace:  workspace,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithRole sets the acting role sent with every request and returns c.
func (c *Client) WithRole(role models.Role) *Client {
	c.role = role
	return c
}

func (c *Client) QueryApplications(ctx context.Context, q models.Query) ([]models.ApplicationDTO, error) {
	v := url.Values{}
	if q.JobID != 0 {
		v.Set("job_id", strconv.FormatInt(q.JobID, 10))
	}
	if q.Stage != "" {
		v.Set("stage", q.Stage)
	}
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/applications"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out models.ApplicationsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	return out.Applications, nil
}

func (c *Client) UpdateStage(ctx context.Context, req models.UpdateStageRequest) (models.ApplicationDTO, error) {
	var out models.UpdateStageResponse
	if err := c.doJSON(ctx, http.MethodPatch, "/applications/stage", req, &out); err != nil {
		return models.ApplicationDTO{}, fmt.Errorf("update stage: %w", err)
	}
	return out.Application, nil
}

func (c *Client) BulkAction(ctx context.Context, req models.BulkRequest) error {
	var out models.BulkResponse
	if err := c.doJSON(ctx, http.MethodPost, "/applications/bulk", req, &out); err != nil {
		return fmt.Errorf("bulk action: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("bulk action: %w", &APIError{Status: http.StatusOK, Message: "The bulk action was not applied."})
	}
	return nil
}

func (c *Client) RevealContact(ctx context.Context, id int64) (models.ApplicationDTO, error) {
	var out models.ApplicationResponse
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/applications/%d/reveal", id), nil, &out); err != nil {
		return models.ApplicationDTO{}, fmt.Errorf("reveal contact: %w", err)
	}
	return out.Application, nil
}

// Export posts an export request. JSON answers carry a sheet link; anything else is the file.
func (c *Client) Export(ctx context.Context, req models.ExportRequest) (pipeline.ExportPayload, error) {
	resp, err := c.send(ctx, http.MethodPost, "/applications/export", req)
	if err != nil {
		return pipeline.ExportPayload{}, fmt.Errorf("export: %w", err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, _ := mime.ParseMediaType(contentType); mediaType == "application/json" {
		var sheet models.SheetResponse
		if err := json.NewDecoder(resp.Body).Decode(&sheet); err != nil {
			return pipeline.ExportPayload{}, fmt.Errorf("export: decode sheet response: %w", err)
		}
		return pipeline.ExportPayload{ContentType: contentType, SheetURL: sheet.SheetURL, Message: sheet.Message}, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return pipeline.ExportPayload{}, fmt.Errorf("export: read body: %w", err)
	}
	return pipeline.ExportPayload{
		Filename:    FilenameFromDisposition(resp.Header.Get("Content-Disposition")),
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (c *Client) LoadStages(ctx context.Context) ([]models.Stage, error) {
	var out models.StagesPayload
	if err := c.doJSON(ctx, http.MethodGet, "/stages", nil, &out); err != nil {
		return nil, fmt.Errorf("load stages: %w", err)
	}
	return out.Stages, nil
}

func (c *Client) SaveStages(ctx context.Context, stages []models.Stage) error {
	if err := c.doJSON(ctx, http.MethodPut, "/stages", models.StagesPayload{Stages: stages}, nil); err != nil {
		return fmt.Errorf("save stages: %w", err)
	}
	return nil
}

// Events returns the audit trail of one application, newest first.
func (c *Client) Events(ctx context.Context, id int64) ([]models.ApplicationEvent, error) {
	var out struct {
		Events []models.ApplicationEvent `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/applications/%d/events", id), nil, &out); err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return out.Events, nil
}

// FilenameFromDisposition extracts the filename parameter, or "" when there is none.
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// send performs the request and turns non-2xx answers into *APIError.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.workspace != "" {
		req.Header.Set("X-Workspace-ID", c.workspace)
	}
	if c.role != "" {
		req.Header.Set("X-Role", string(c.role))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	return apiErr
}

// IsConflict reports whether err is a version conflict answer.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}
