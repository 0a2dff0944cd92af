// Package remotejob talks to the remote AI application API: submitting jobs,
// polling their outputs, cancelling them and uploading input assets.
package remotejob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"hubrunner/internal/httpclient"

	"golang.org/x/time/rate"
)

type SleepFunc func(ctx context.Context, d time.Duration) error

type client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	maxRetries int
	sleep      SleepFunc
}

// envelope is the common response wrapper of every endpoint.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func NewClient(cfg Config) (*client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = httpclient.NewClient(cfg.Timeout)
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &client{
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		sleep:      sleep,
	}, nil
}

func (c *client) postJSON(ctx context.Context, path string, body any) (*envelope, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var env envelope
	if err := c.do(ctx, http.MethodPost, path, "application/json", jsonData, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *client) do(ctx context.Context, method, path, contentType string, body []byte, result any) error {
	url := c.baseURL + path
	newRequest := func() (*http.Request, error) {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return req, nil
	}

	resp, err := c.executeWithRetry(ctx, newRequest)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.handleErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// executeWithRetry retries network errors and 5xx responses with a linear
// backoff. The last 5xx response is returned so the caller can report it.
func (c *client) executeWithRetry(ctx context.Context, newRequest func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, time.Duration(attempt)*time.Second); err != nil {
				return nil, err
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := newRequest()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode < 500 || attempt == c.maxRetries {
			return resp, nil
		}

		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		resp.Body.Close()
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", c.maxRetries, lastErr)
}

func (c *client) handleErrorResponse(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	message := string(bodyBytes)
	if message == "" {
		message = resp.Status
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

// checkEnvelope turns a non-success code into an *APIError.
func checkEnvelope(env *envelope, fallback string) error {
	if env.Code == CodeSuccess {
		return nil
	}
	msg := env.Msg
	if msg == "" {
		msg = fallback
	}
	return &APIError{Code: env.Code, Message: msg}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
