package runtimeapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/3s-rg-codes/faas-runtime/pkg/event"
)

const (
	APIVersion = "2018-06-01"
	UserAgent  = "faas-runtime/1.0"

	RequestIDHeader   = "Lambda-Runtime-Aws-Request-Id"
	DeadlineHeader    = "Lambda-Runtime-Deadline-Ms"
	FunctionARNHeader = "Lambda-Runtime-Invoked-Function-Arn"
	TraceIDHeader     = "Lambda-Runtime-Trace-Id"
	ErrorTypeHeader   = "Lambda-Runtime-Function-Error-Type"
)

// HTTPClient can perform any http request
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Invocation is one event handed out by the runtime API.
type Invocation struct {
	// RequestID is empty if the runtime API did not send the request id header.
	RequestID   string
	Event       event.Event
	Deadline    time.Time
	FunctionARN string
	TraceID     string
}

// ErrorReport is the body posted to the error endpoint.
type ErrorReport struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorType    string `json:"errorType"`
}

// Client talks to the invocation endpoints of the runtime API.
type Client struct {
	baseURL string
	client  HTTPClient
	logger  *slog.Logger
}

// BaseURL builds the invocation base URL for a runtime API host:port. The result ends with a slash.
func BaseURL(runtimeAPI string) string {
	return fmt.Sprintf("http://%s/%s/runtime/invocation/", runtimeAPI, APIVersion)
}

// NewClient creates a Client with a default http client. A zero timeout means requests never time out.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// NewClientWithHTTPClient creates a Client. The httpClient must implement the HTTPClient interface
func NewClientWithHTTPClient(baseURL string, logger *slog.Logger, httpClient HTTPClient) *Client {
	return &Client{
		baseURL: baseURL,
		client:  httpClient,
		logger:  logger,
	}
}

func (c *Client) NextURL() string {
	return c.baseURL + "next"
}

func (c *Client) ResponseURL(requestID string) string {
	return c.baseURL + url.PathEscape(requestID) + "/response"
}

func (c *Client) ErrorURL(requestID string) string {
	return c.baseURL + url.PathEscape(requestID) + "/error"
}

// Next blocks until the runtime API hands out the next invocation.
//
// If the body is not valid JSON the error is a *event.MalformedPayloadError and
// the returned Invocation still carries the request id, so the failure can be reported.
func (c *Client) Next(ctx context.Context) (*Invocation, error) {
	u := c.NextURL()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &FetchFailedError{URL: u, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("error sending GET request", "url", u, "error", err)
		return nil, &FetchFailedError{URL: u, Err: err}
	}
	defer c.closeBody(resp.Body)

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("error reading response", "url", u, "error", err)
		return nil, &FetchFailedError{URL: u, Err: err}
	}

	if !isSuccess(resp.StatusCode) {
		c.logger.Error("GET request failed with status code", "url", u, "status", resp.StatusCode)
		return nil, &FetchFailedError{URL: u, StatusCode: resp.StatusCode}
	}

	requestID, _ := RequestID(resp.Header)
	inv := &Invocation{
		RequestID:   requestID,
		FunctionARN: headerValue(resp.Header, FunctionARNHeader),
		TraceID:     headerValue(resp.Header, TraceIDHeader),
	}
	if ms, err := strconv.ParseInt(headerValue(resp.Header, DeadlineHeader), 10, 64); err == nil {
		inv.Deadline = time.UnixMilli(ms)
	}

	inv.Event, err = event.Parse(u, b)
	return inv, err
}

// PostResponse sends the JSON encoding of result as the response for requestID.
func (c *Client) PostResponse(ctx context.Context, requestID string, result any) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding response for %s: %w", requestID, err)
	}
	return c.post(ctx, c.ResponseURL(requestID), body, nil)
}

// PostError reports a failed invocation. The error type is taken from cause if it has an ErrorType method.
func (c *Client) PostError(ctx context.Context, requestID string, cause error) error {
	report := ErrorReport{
		ErrorMessage: cause.Error(),
		ErrorType:    errorType(cause),
	}
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding error report for %s: %w", requestID, err)
	}
	return c.post(ctx, c.ErrorURL(requestID), body, http.Header{ErrorTypeHeader: []string{report.ErrorType}})
}

func (c *Client) post(ctx context.Context, u string, body []byte, extra http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return &PostFailedError{URL: u, Err: err}
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	for k, v := range extra {
		req.Header[k] = v
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("error sending POST request", "url", u, "error", err)
		return &PostFailedError{URL: u, Err: err}
	}
	defer c.closeBody(resp.Body)

	// the acknowledgement is not used, read it so the connection can be reused
	ack, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("error reading acknowledgement", "url", u, "error", err)
	}

	if !isSuccess(resp.StatusCode) {
		c.logger.Error("POST request failed with status code", "url", u, "status", resp.StatusCode)
		return &PostRejectedError{URL: u, StatusCode: resp.StatusCode, Body: string(ack)}
	}
	return nil
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.logger.Error("error closing the response body", "error", err)
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func errorType(err error) string {
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	return "Runtime.Unknown"
}
