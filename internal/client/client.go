// Package client talks to a running captchad over HTTP. It covers the same
// three calls the browser front end makes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"captchad/pkg/types"
)

const defaultTimeout = 2 * time.Minute

// Client is a thin wrapper over resty bound to one server.
type Client struct {
	rc *resty.Client
}

// New returns a client for baseURL, e.g. http://localhost:3001. A zero
// timeout selects two minutes, long enough for a cold model load.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{rc: rc}
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Body   types.ErrorResponse
	Raw    string
}

func (e *APIError) Error() string {
	msg := e.Body.Error
	if msg == "" {
		msg = strings.TrimSpace(e.Raw)
	}
	if e.Body.Category != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Body.Category, msg)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

// StatusCode returns the HTTP status the server answered with.
func (e *APIError) StatusCode() int { return e.Status }

// Health returns the liveness text.
func (c *Client) Health(ctx context.Context) (string, error) {
	res, err := c.rc.R().SetContext(ctx).Get("/health")
	if err != nil {
		return "", err
	}
	if res.IsError() {
		return "", apiError(res)
	}
	return res.String(), nil
}

// EncoderMetadata returns the encoder JSON unchanged.
func (c *Client) EncoderMetadata(ctx context.Context) (json.RawMessage, error) {
	res, err := c.rc.R().SetContext(ctx).Get("/encoder-metadata")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, apiError(res)
	}
	body := res.Body()
	if !json.Valid(body) {
		return nil, fmt.Errorf("encoder metadata is not JSON: %q", truncate(res.String(), 200))
	}
	return json.RawMessage(body), nil
}

// ModelSpec returns the server's published model constraints.
func (c *Client) ModelSpec(ctx context.Context) (types.ModelSpec, error) {
	var spec types.ModelSpec
	res, err := c.rc.R().SetContext(ctx).SetResult(&spec).Get("/model-spec")
	if err != nil {
		return spec, err
	}
	if res.IsError() {
		return spec, apiError(res)
	}
	return spec, nil
}

// Predict uploads data as the captchaImage part and returns the decoded text.
func (c *Client) Predict(ctx context.Context, filename string, data []byte) (types.PredictionResult, error) {
	var out types.PredictionResult
	res, err := c.rc.R().
		SetContext(ctx).
		SetFileReader("captchaImage", filepath.Base(filename), bytes.NewReader(data)).
		SetResult(&out).
		Post("/predict")
	if err != nil {
		return out, err
	}
	if res.IsError() {
		return out, apiError(res)
	}
	return out, nil
}

func apiError(res *resty.Response) error {
	e := &APIError{Status: res.StatusCode(), Raw: res.String()}
	if err := json.Unmarshal(res.Body(), &e.Body); err != nil || e.Body.Code == 0 {
		e.Body.Code = res.StatusCode()
	}
	if e.Status == 0 {
		e.Status = http.StatusInternalServerError
	}
	return e
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
