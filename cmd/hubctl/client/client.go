package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"hubrunner/domain/task"
	"hubrunner/internal/httpclient"
	"hubrunner/internal/remotejob"
)

const headerAPIKey = "X-API-Key"

// Client interface for interacting with the hubrunner API
type Client interface {
	SubmitTask(ctx context.Context, req *SubmitTaskRequest) (*task.Task, error)
	SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*BatchResponse, error)
	ListTasks(ctx context.Context, status string) ([]task.Task, error)
	GetTask(ctx context.Context, id string) (*task.Task, error)
	CancelTask(ctx context.Context, id string) (*task.Task, error)
	DeleteTask(ctx context.Context, id string) error
	DeleteOutput(ctx context.Context, id string, index int) (*RemoveOutputResponse, error)
	ClearHistory(ctx context.Context) (*ClearResponse, error)
	Stats(ctx context.Context) (*Stats, error)
	WebappDetail(ctx context.Context, webappID string) (*remotejob.WebappDetail, error)
	Account(ctx context.Context) (*remotejob.AccountStatus, error)
	Upload(ctx context.Context, path string) (*remotejob.UploadResult, error)
	Watch(ctx context.Context, fn func(Event) error) error
}

// HTTPClient implements the Client interface
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpclient.NewClient(60 * time.Second),
	}
}

type SubmitTaskRequest struct {
	AppID    string          `json:"app_id"`
	AppName  string          `json:"app_name,omitempty"`
	WebappID string          `json:"webapp_id"`
	Params   []task.NodeInfo `json:"params"`
}

type SubmitBatchRequest struct {
	AppID     string            `json:"app_id"`
	AppName   string            `json:"app_name,omitempty"`
	WebappID  string            `json:"webapp_id"`
	ParamSets [][]task.NodeInfo `json:"param_sets"`
}

type BatchResponse struct {
	BatchID   string      `json:"batch_id"`
	Tasks     []task.Task `json:"tasks"`
	Requested int         `json:"requested"`
	Truncated bool        `json:"truncated,omitempty"`
	Error     string      `json:"error,omitempty"`
}

type RemoveOutputResponse struct {
	Task    *task.Task `json:"task,omitempty"`
	Deleted bool       `json:"deleted"`
}

type ClearResponse struct {
	Cleared int `json:"cleared"`
}

type Stats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Queued     int `json:"queued"`
	Running    int `json:"running"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	SlotsInUse int `json:"slots_in_use"`
	Ceiling    int `json:"ceiling"`
}

func (c *HTTPClient) SubmitTask(ctx context.Context, req *SubmitTaskRequest) (*task.Task, error) {
	var t task.Task
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tasks", req, http.StatusCreated, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) SubmitBatch(ctx context.Context, req *SubmitBatchRequest) (*BatchResponse, error) {
	var resp BatchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tasks/batch", req, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ListTasks(ctx context.Context, status string) ([]task.Task, error) {
	path := "/api/v1/tasks"
	if status != "" {
		path += "?" + url.Values{"status": {status}}.Encode()
	}

	var tasks []task.Task
	if err := c.doJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *HTTPClient) GetTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, http.StatusOK, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) CancelTask(ctx context.Context, id string) (*task.Task, error) {
	var t task.Task
	path := "/api/v1/tasks/" + url.PathEscape(id) + "/cancel"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, http.StatusOK, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *HTTPClient) DeleteTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/tasks/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

func (c *HTTPClient) DeleteOutput(ctx context.Context, id string, index int) (*RemoveOutputResponse, error) {
	var resp RemoveOutputResponse
	path := "/api/v1/tasks/" + url.PathEscape(id) + "/outputs/" + strconv.Itoa(index)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ClearHistory(ctx context.Context) (*ClearResponse, error) {
	var resp ClearResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/api/v1/tasks/history", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/tasks/stats", nil, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) WebappDetail(ctx context.Context, webappID string) (*remotejob.WebappDetail, error) {
	var d remotejob.WebappDetail
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/apps/"+url.PathEscape(webappID), nil, http.StatusOK, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) Account(ctx context.Context) (*remotejob.AccountStatus, error) {
	var s remotejob.AccountStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/account", nil, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *HTTPClient) Upload(ctx context.Context, path string) (*remotejob.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to create form: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/v1/uploads", &body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var result remotejob.UploadResult
	if err := c.do(httpReq, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, payload any, want int, out any) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	httpReq, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return c.do(httpReq, want, out)
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		httpReq.Header.Set(headerAPIKey, c.apiKey)
	}
	return httpReq, nil
}

func (c *HTTPClient) do(httpReq *http.Request, want int, out any) error {
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
