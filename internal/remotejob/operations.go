package remotejob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"hubrunner/domain/task"
)

// JobOperations is what the task runner needs from the remote side.
type JobOperations interface {
	Submit(ctx context.Context, creds task.Credentials, params []task.NodeInfo) (*SubmitResult, error)
	QueryOutputs(ctx context.Context, apiKey, remoteTaskID string) (*OutputsResponse, error)
	Cancel(ctx context.Context, apiKey, remoteTaskID string) error
}

type AssetOperations interface {
	Upload(ctx context.Context, apiKey, fileName string, r io.Reader) (*UploadResult, error)
}

type CatalogOperations interface {
	WebappDetail(ctx context.Context, apiKey, webappID string) (*WebappDetail, error)
	AccountStatus(ctx context.Context, apiKey string) (*AccountStatus, error)
}

// Client is the full remote surface.
type Client interface {
	JobOperations
	AssetOperations
	CatalogOperations
}

type SubmitResult struct {
	TaskID     string `json:"taskId"`
	PromptTips string `json:"promptTips,omitempty"`
}

// OutputsResponse is the raw poll result. Data is polymorphic and is decoded
// by the caller according to Code.
type OutputsResponse struct {
	Code int
	Msg  string
	Data json.RawMessage
}

type UploadResult struct {
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

type Cover struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	ThumbnailURI string `json:"thumbnailUri"`
	ImageWidth   string `json:"imageWidth"`
	ImageHeight  string `json:"imageHeight"`
}

type Statistics struct {
	LikeCount    string `json:"likeCount"`
	UseCount     string `json:"useCount"`
	CollectCount string `json:"collectCount"`
}

type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type WebappDetail struct {
	WebappName     string          `json:"webappName"`
	Covers         []Cover         `json:"covers"`
	StatisticsInfo Statistics      `json:"statisticsInfo"`
	Tags           []Tag           `json:"tags"`
	NodeInfoList   []task.NodeInfo `json:"nodeInfoList"`
}

type AccountStatus struct {
	RemainCoins       string  `json:"remainCoins"`
	CurrentTaskCounts string  `json:"currentTaskCounts"`
	RemainMoney       *string `json:"remainMoney"`
	Currency          *string `json:"currency"`
	APIType           string  `json:"apiType"`
}

func (c *client) Submit(ctx context.Context, creds task.Credentials, params []task.NodeInfo) (*SubmitResult, error) {
	env, err := c.postJSON(ctx, "/task/openapi/ai-app/run", map[string]any{
		"webappId":     creds.WebappID,
		"apiKey":       creds.APIKey,
		"nodeInfoList": params,
	})
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope(env, "submission failed"); err != nil {
		return nil, err
	}

	var result SubmitResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode submit result: %w", err)
	}
	if result.TaskID == "" {
		return nil, fmt.Errorf("submit response is missing taskId")
	}
	return &result, nil
}

func (c *client) QueryOutputs(ctx context.Context, apiKey, remoteTaskID string) (*OutputsResponse, error) {
	env, err := c.postJSON(ctx, "/task/openapi/outputs", map[string]string{
		"apiKey": apiKey,
		"taskId": remoteTaskID,
	})
	if err != nil {
		return nil, err
	}
	return &OutputsResponse{Code: env.Code, Msg: env.Msg, Data: env.Data}, nil
}

func (c *client) Cancel(ctx context.Context, apiKey, remoteTaskID string) error {
	env, err := c.postJSON(ctx, "/task/openapi/cancel", map[string]string{
		"apiKey": apiKey,
		"taskId": remoteTaskID,
	})
	if err != nil {
		return err
	}
	return checkEnvelope(env, "cancel failed")
}

func (c *client) Upload(ctx context.Context, apiKey, fileName string, r io.Reader) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("apiKey", apiKey); err != nil {
		return nil, err
	}
	if err := mw.WriteField("fileType", "input"); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, "/task/openapi/upload", mw.FormDataContentType(), buf.Bytes(), &env); err != nil {
		return nil, err
	}
	if err := checkEnvelope(&env, "upload failed"); err != nil {
		return nil, err
	}

	var result UploadResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode upload result: %w", err)
	}
	return &result, nil
}

func (c *client) WebappDetail(ctx context.Context, apiKey, webappID string) (*WebappDetail, error) {
	q := url.Values{}
	q.Set("apiKey", apiKey)
	q.Set("webappId", webappID)

	var env envelope
	if err := c.do(ctx, http.MethodGet, "/api/webapp/apiCallDemo?"+q.Encode(), "", nil, &env); err != nil {
		return nil, err
	}
	if err := checkEnvelope(&env, "failed to fetch webapp detail"); err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, &APIError{Code: env.Code, Message: "webapp detail is empty"}
	}

	var detail WebappDetail
	if err := json.Unmarshal(env.Data, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode webapp detail: %w", err)
	}
	return &detail, nil
}

func (c *client) AccountStatus(ctx context.Context, apiKey string) (*AccountStatus, error) {
	env, err := c.postJSON(ctx, "/uc/openapi/accountStatus", map[string]string{
		"apikey": apiKey,
	})
	if err != nil {
		return nil, err
	}
	if err := checkEnvelope(env, "failed to get account info"); err != nil {
		return nil, err
	}

	var status AccountStatus
	if err := json.Unmarshal(env.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to decode account status: %w", err)
	}
	return &status, nil
}
