package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSON_WritesBodyAndContentType(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]int{"id": 123})

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"id":123}` {
		t.Errorf("body = %q", got)
	}
}

func TestJSON_NilDataWritesNoBody(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusNoContent, nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestError_EnvelopeFields(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, ErrCodeNotFound, "no such schedule", "req-456")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != ErrCodeNotFound || resp.Error.Message != "no such schedule" || resp.Error.RequestID != "req-456" {
		t.Errorf("envelope = %+v", resp.Error)
	}
	if resp.Error.Details != nil {
		t.Errorf("details should be omitted, got %v", resp.Error.Details)
	}
}

func TestErrorWithDetails_CarriesContext(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusUnprocessableEntity, ErrCodeInfeasible,
		"task demand exceeds capacity",
		map[string]interface{}{"project_id": "dig", "demand": 5, "capacity": 3},
		"req-789")

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != ErrCodeInfeasible {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if resp.Error.Details["project_id"] != "dig" || resp.Error.Details["demand"] != float64(5) {
		t.Errorf("details = %v", resp.Error.Details)
	}
}

func TestHTTPStatusFromError_SentinelsAndWrapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrValidationFailed, http.StatusBadRequest},
		{ErrConflict, http.StatusConflict},
		{ErrServiceUnavailable, http.StatusServiceUnavailable},
		{ErrTimeout, http.StatusGatewayTimeout},
		{ErrInternalServer, http.StatusInternalServerError},
		{fmt.Errorf("schedule %q: %w", "demo", ErrNotFound), http.StatusNotFound},
	}
	for _, c := range cases {
		if got := HTTPStatusFromError(c.err); got != c.want {
			t.Errorf("HTTPStatusFromError(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestErrorCodeFromStatus_Mapping(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, ErrCodeBadRequest},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusConflict, ErrCodeConflict},
		{http.StatusUnprocessableEntity, ErrCodeInfeasible},
		{http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{http.StatusGatewayTimeout, ErrCodeGatewayTimeout},
		{999, ErrCodeInternalServer},
	}
	for _, c := range cases {
		if got := ErrorCodeFromStatus(c.status); got != c.want {
			t.Errorf("ErrorCodeFromStatus(%d) = %q, want %q", c.status, got, c.want)
		}
	}
}

func TestHandleError_EndToEnd(t *testing.T) {
	w := httptest.NewRecorder()
	HandleError(w, fmt.Errorf("loading plan: %w", ErrValidationFailed), "req-1")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != ErrCodeBadRequest {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if !strings.Contains(resp.Error.Message, "loading plan") {
		t.Errorf("message = %q", resp.Error.Message)
	}
}
