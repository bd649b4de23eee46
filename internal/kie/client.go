// Package kie talks to the KIE jobs API: a task is created for a model and
// polled until it reports result image URLs.
package kie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/designforge/internal/config"
)

const (
	ModelFluxTextToImage  = "flux-2/pro-text-to-image"
	ModelFluxImageToImage = "flux-2/pro-image-to-image"
	ModelNanoBananaPro    = "nano-banana-pro"
)

const (
	createTaskPath = "/api/v1/jobs/createTask"
	recordInfoPath = "/api/v1/jobs/recordInfo"
)

type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	log          *slog.Logger
	pollInterval time.Duration
	maxAttempts  int
}

type GenerateOptions struct {
	Model        string
	Prompt       string
	AspectRatio  string
	Resolution   string
	InputURLs    []string
	OutputFormat string
}

// Image is a finished task. URL is the first result; URLs holds all of them.
type Image struct {
	TaskID string
	URL    string
	URLs   []string
}

// TaskError is returned when KIE reports the task as failed.
type TaskError struct {
	TaskID  string
	Code    string
	Message string
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %s (code: %s)", e.TaskID, e.Message, e.Code)
}

var errTaskPending = errors.New("task pending")

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:       cfg.KIEAPIKey,
		baseURL:      strings.TrimRight(cfg.KIEBaseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout},
		log:          log,
		pollInterval: 2 * time.Second,
		maxAttempts:  60,
	}
}

// SetPolling overrides how often and how long task status is polled.
func (c *Client) SetPolling(interval time.Duration, maxAttempts int) {
	if interval > 0 {
		c.pollInterval = interval
	}
	if maxAttempts > 0 {
		c.maxAttempts = maxAttempts
	}
}

// Generate creates a task for the requested model and waits for its result.
func (c *Client) Generate(ctx context.Context, opts GenerateOptions) (*Image, error) {
	if strings.TrimSpace(opts.Prompt) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	payload := buildPayload(opts)

	var created struct {
		TaskID string `json:"taskId"`
	}
	if err := c.call(ctx, http.MethodPost, createTaskPath, nil, payload, &created); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if created.TaskID == "" {
		return nil, fmt.Errorf("create task: empty taskId in response")
	}
	c.log.Info("kie task created", "task_id", created.TaskID, "model", payload["model"])

	return c.await(ctx, created.TaskID)
}

// buildPayload maps options onto the model-specific input schema. Flux switches
// to its image-to-image variant when reference images are supplied.
func buildPayload(opts GenerateOptions) map[string]any {
	model := opts.Model
	if model == "" {
		model = ModelFluxTextToImage
	}
	input := map[string]any{
		"prompt":       opts.Prompt,
		"aspect_ratio": orDefault(opts.AspectRatio, "1:1"),
		"resolution":   orDefault(opts.Resolution, "1K"),
	}

	switch {
	case model == ModelNanoBananaPro:
		input["output_format"] = strings.ToLower(orDefault(opts.OutputFormat, "png"))
		if len(opts.InputURLs) > 0 {
			input["image_input"] = opts.InputURLs
		}
	case len(opts.InputURLs) > 0:
		if model == ModelFluxTextToImage {
			model = ModelFluxImageToImage
		}
		input["input_urls"] = opts.InputURLs
	}
	return map[string]any{"model": model, "input": input}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

type recordInfo struct {
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailCode   string `json:"failCode"`
	FailMsg    string `json:"failMsg"`
}

func (c *Client) await(ctx context.Context, taskID string) (*Image, error) {
	query := url.Values{"taskId": []string{taskID}}
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var info recordInfo
		if err := c.call(ctx, http.MethodGet, recordInfoPath, query, nil, &info); err != nil {
			return nil, fmt.Errorf("get task status: %w", err)
		}

		img, err := info.image(taskID)
		if !errors.Is(err, errTaskPending) {
			if err != nil {
				c.log.Error("kie task failed", "task_id", taskID, "err", err)
				return nil, err
			}
			c.log.Info("kie task completed", "task_id", taskID, "attempt", attempt)
			return img, nil
		}

		if attempt%10 == 1 {
			c.log.Debug("kie task pending", "task_id", taskID, "state", info.State, "attempt", attempt)
		}
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return nil, fmt.Errorf("task timeout after %d attempts", c.maxAttempts)
}

// image interprets one status report. errTaskPending means poll again.
func (r recordInfo) image(taskID string) (*Image, error) {
	switch r.State {
	case "success":
		if r.ResultJSON == "" {
			return nil, fmt.Errorf("empty resultJson in success response")
		}
		var result struct {
			ResultURLs []string `json:"resultUrls"`
		}
		if err := json.Unmarshal([]byte(r.ResultJSON), &result); err != nil {
			return nil, fmt.Errorf("parse resultJson: %w", err)
		}
		if len(result.ResultURLs) == 0 {
			return nil, fmt.Errorf("no resultUrls in result")
		}
		return &Image{TaskID: taskID, URL: result.ResultURLs[0], URLs: result.ResultURLs}, nil
	case "fail":
		msg := r.FailMsg
		if msg == "" {
			msg = "unknown error"
		}
		return nil, &TaskError{TaskID: taskID, Code: r.FailCode, Message: msg}
	case "waiting", "generating", "processing", "queued", "queueing":
		return nil, errTaskPending
	default:
		return nil, fmt.Errorf("unknown task state: %s", r.State)
	}
}

// call performs one API request and decodes the data field of the
// {code, msg, data} envelope into out.
func (c *Client) call(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	endpoint, err := c.endpoint(path, query)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("kie error: status=%d url=%s body=%s", resp.StatusCode, endpoint, truncateBody(raw))
	}

	var envelope struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(raw))
	}
	if envelope.Code != http.StatusOK {
		return fmt.Errorf("kie code=%d msg=%s", envelope.Code, envelope.Msg)
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	ref := &url.URL{Path: path}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	return base.ResolveReference(ref).String(), nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
