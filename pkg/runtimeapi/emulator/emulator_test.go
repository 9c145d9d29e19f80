package emulator

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3s-rg-codes/faas-runtime/pkg/runtimeapi"
)

func setupTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s := New(Config{FunctionTimeout: 10 * time.Second}, logger)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func fetch(t *testing.T, ts *httptest.Server) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + invocationPrefix + "next")
	require.NoError(t, err)
	return resp
}

func post(t *testing.T, ts *httptest.Server, path string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+invocationPrefix+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	return resp
}

func TestNextHandsOutQueuedEvent(t *testing.T) {
	s, ts := setupTestServer(t)

	id := s.Enqueue([]byte(`{"hello":"world"}`))
	assert.NoError(t, uuid.Validate(id))
	assert.Equal(t, 1, s.Pending())

	before := time.Now()
	resp := fetch(t, ts)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, resp.Header.Get(runtimeapi.RequestIDHeader))
	assert.Equal(t, "arn:aws:lambda:local:000000000000:function:emulated", resp.Header.Get(runtimeapi.FunctionARNHeader))
	assert.NotEmpty(t, resp.Header.Get(runtimeapi.TraceIDHeader))

	ms, err := strconv.ParseInt(resp.Header.Get(runtimeapi.DeadlineHeader), 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, before.Add(10*time.Second).UnixMilli())

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"hello":"world"}`, string(body))
	assert.Equal(t, 0, s.Pending())
}

func TestNextBlocksUntilEventQueued(t *testing.T) {
	s, ts := setupTestServer(t)

	done := make(chan string, 1)
	go func() {
		resp, err := http.Get(ts.URL + invocationPrefix + "next")
		if err != nil {
			done <- ""
			return
		}
		defer resp.Body.Close()
		done <- resp.Header.Get(runtimeapi.RequestIDHeader)
	}()

	select {
	case <-done:
		t.Fatal("next returned before an event was queued")
	case <-time.After(100 * time.Millisecond):
	}

	id := s.Enqueue([]byte(`{}`))

	select {
	case got := <-done:
		assert.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for next to return")
	}
}

func TestResponseRecorded(t *testing.T) {
	s, ts := setupTestServer(t)

	id := s.Enqueue([]byte(`{}`))
	fetch(t, ts).Body.Close()

	resp := post(t, ts, id+"/response", `{"ipv4_address":"1.2.3.4"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	b, ok := s.Response(id)
	require.True(t, ok)
	assert.Equal(t, `{"ipv4_address":"1.2.3.4"}`, string(b))
}

func TestResponseTwiceConflicts(t *testing.T) {
	s, ts := setupTestServer(t)

	id := s.Enqueue([]byte(`{}`))
	fetch(t, ts).Body.Close()
	post(t, ts, id+"/response", `{}`).Body.Close()

	resp := post(t, ts, id+"/response", `{}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResponseUnknownRequestID(t *testing.T) {
	_, ts := setupTestServer(t)

	resp := post(t, ts, "does-not-exist/response", `{}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var report runtimeapi.ErrorReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "InvalidRequestID", report.ErrorType)
}

func TestErrorReportRecorded(t *testing.T) {
	s, ts := setupTestServer(t)

	id := s.Enqueue([]byte(`{}`))
	fetch(t, ts).Body.Close()

	resp := post(t, ts, id+"/error", `{"errorMessage":"boom","errorType":"Handler.MissingField"}`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	report, ok := s.ErrorReport(id)
	require.True(t, ok)
	assert.Equal(t, "boom", report.ErrorMessage)
	assert.Equal(t, "Handler.MissingField", report.ErrorType)

	_, ok = s.Response(id)
	assert.False(t, ok)
}

func TestErrorReportInvalidJSON(t *testing.T) {
	s, ts := setupTestServer(t)

	id := s.Enqueue([]byte(`{}`))
	fetch(t, ts).Body.Close()

	resp := post(t, ts, id+"/error", `not json`)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServeStopsOnCancel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	s := New(Config{}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, "127.0.0.1:0")
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
