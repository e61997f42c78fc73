package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"teamart/internal/pkg/errors"
	"teamart/internal/pkg/logger"
)

func newLog(buf *bytes.Buffer) *logger.Logger {
	return logger.New(logger.Config{Level: "debug", Output: buf})
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/render", nil))
	id := rec.Header().Get(RequestIDHeader)
	if len(id) != 32 || seen != id {
		t.Errorf("expected a 32 char id in header and context, got %q / %q", id, seen)
	}

	req := httptest.NewRequest(http.MethodGet, "/render", nil)
	req.Header.Set(RequestIDHeader, "upstream-7")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "upstream-7" || seen != "upstream-7" {
		t.Errorf("inbound id not propagated: %q / %q", rec.Header().Get(RequestIDHeader), seen)
	}
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			h := RequestID(Logging(newLog(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte("body"))
			})))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/combine-images", nil))

			var line map[string]any
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("expected one json line, got %q", buf.String())
			}
			if line["level"] != tt.level || line["status"] != float64(tt.status) {
				t.Errorf("unexpected line %v", line)
			}
			if line["path"] != "/combine-images" || line["bytes"] != float64(4) || line["request_id"] == nil {
				t.Errorf("missing request fields in %v", line)
			}
		})
	}
}

func TestLoggingImplicitOK(t *testing.T) {
	var buf bytes.Buffer
	h := Logging(newLog(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if !strings.Contains(buf.String(), `"status":200`) {
		t.Errorf("expected status 200 for a handler that wrote nothing, got %s", buf.String())
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	h := Recovery(newLog(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("font table corrupt")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/render", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != "INTERNAL_ERROR" || body.Detail != "internal server error" {
		t.Errorf("unexpected body %+v", body)
	}
	if strings.Contains(rec.Body.String(), "goroutine") {
		t.Error("stack leaked into the response")
	}
	if !strings.Contains(buf.String(), "font table corrupt") || !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}

func TestRecoveryAbortHandler(t *testing.T) {
	h := Recovery(logger.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestWrapHandler(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		body      ErrorBody
		logLevel  string
		logFields []string
	}{
		{
			name:      "not found",
			err:       errors.Wrap(errors.NotFound("image", "ghost"), "http.combine", "error combining images"),
			status:    http.StatusNotFound,
			body:      ErrorBody{Detail: "error combining images: image not found: ghost", Code: "NOT_FOUND"},
			logLevel:  "WARN",
			logFields: []string{`"id":"ghost"`, `"resource":"image"`},
		},
		{
			name:     "validation",
			err:      errors.ValidationField("width", "width must be an integer, got \"wide\""),
			status:   http.StatusBadRequest,
			body:     ErrorBody{Detail: "width must be an integer, got \"wide\"", Code: "VALIDATION_ERROR"},
			logLevel: "WARN",
		},
		{
			name:      "edit failure",
			err:       errors.New(errors.CodeEditAPIFailure, "edit api request failed: status 502: bad gateway"),
			status:    http.StatusInternalServerError,
			body:      ErrorBody{Detail: "edit api request failed: status 502: bad gateway", Code: "EDIT_API_FAILURE"},
			logLevel:  "ERROR",
			logFields: []string{`"stack"`},
		},
		{
			name:     "plain error",
			err:      fmt.Errorf("disk on fire"),
			status:   http.StatusInternalServerError,
			body:     ErrorBody{Detail: "disk on fire", Code: "INTERNAL_ERROR"},
			logLevel: "ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := WrapHandler(newLog(&buf), func(w http.ResponseWriter, r *http.Request) error {
				return tt.err
			})

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/combine-images", nil))

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("unexpected content type %q", ct)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body != tt.body {
				t.Errorf("expected %+v, got %+v", tt.body, body)
			}

			logs := buf.String()
			if !strings.Contains(logs, `"level":"`+tt.logLevel+`"`) {
				t.Errorf("expected a %s line, got %s", tt.logLevel, logs)
			}
			for _, f := range tt.logFields {
				if !strings.Contains(logs, f) {
					t.Errorf("expected %s in log, got %s", f, logs)
				}
			}
		})
	}
}

func TestWrapHandlerSuccess(t *testing.T) {
	h := WrapHandler(logger.Discard(), func(w http.ResponseWriter, r *http.Request) error {
		w.Write([]byte("ok"))
		return nil
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Body.String())
	}
}

func TestWriteErrorResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, errors.CodeNotFound, "Not Found")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"detail":"Not Found","code":"NOT_FOUND"}` {
		t.Errorf("unexpected body %s", got)
	}
}
