package metrics

import (
	"net/http/httptest"
	"testing"
)

func TestNewExporterAppliesDefaults(t *testing.T) {
	e := NewExporter(NewCollector(nil), 0, "", nil)
	if e.port != 9190 {
		t.Errorf("port = %d, want default 9190", e.port)
	}
	if e.path != "/metrics" {
		t.Errorf("path = %q, want default /metrics", e.path)
	}
}

func TestExporterURL(t *testing.T) {
	e := NewExporter(NewCollector(nil), 9190, "/metrics", nil)
	if got, want := e.URL(), "http://localhost:9190/metrics"; got != want {
		t.Errorf("URL() = %q, want %q", got, want)
	}
}

func TestHealthHandlerReportsHealthy(t *testing.T) {
	e := NewExporter(NewCollector(nil), 9191, "/metrics", nil)
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	e.healthHandler(rec, req)

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != `{"status":"healthy"}` {
		t.Errorf("body = %q", body)
	}
}
