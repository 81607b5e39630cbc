package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/1").
		JSON(map[string]string{"id": "1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Location"); got != "/api/expenses/1" {
		t.Errorf("Location = %q", got)
	}
	if w.Body.String() != "{\"id\":\"1\"}\n" {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestResponseBuilder_EncodeFailure(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().JSON(map[string]any{"bad": make(chan int)}).Write(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status code = %d, want 500", w.Code)
	}
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		status  int
		message string
		want    string
	}{
		{http.StatusBadRequest, "bad", "{\"error\":\"bad\"}\n"},
		{http.StatusNotFound, "not found", "{\"error\":\"not found\"}\n"},
		{http.StatusUnprocessableEntity, "<b>html</b>", "{\"error\":\"\\u003cb\\u003ehtml\\u003c/b\\u003e\"}\n"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		ErrorResponse(tt.status, tt.message).Write(w)
		if w.Code != tt.status {
			t.Errorf("Status code = %d, want %d", w.Code, tt.status)
		}
		if w.Body.String() != tt.want {
			t.Errorf("Body = %q, want %q", w.Body.String(), tt.want)
		}
	}
}
