package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPMiddlewareRecordsRequests(t *testing.T) {
	recorder := New()
	handler := HTTPMiddleware(recorder, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/videos/6f1c2a9b-1234-4cde-9f00-aaaa0000bbbb", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var buf bytes.Buffer
	recorder.Write(&buf)
	body := buf.String()

	expected := `vidstream_http_requests_total{method="GET",path="/api/videos/:id",status="418"} 1`
	if !strings.Contains(body, expected) {
		t.Fatalf("expected metrics output to contain %q, got %q", expected, body)
	}
}

func TestResponseRecorderDefaultsToOK(t *testing.T) {
	rr := NewResponseRecorder(httptest.NewRecorder())
	if rr.Status() != http.StatusOK {
		t.Fatalf("default status = %d, want 200", rr.Status())
	}
	rr.WriteHeader(http.StatusNotFound)
	if rr.Status() != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Status())
	}
}
