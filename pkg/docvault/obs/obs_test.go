package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected info message to be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("Expected warn message to be logged")
	}

	buf.Reset()
	fallback := NewLoggerTo(&buf, "bogus")
	fallback.Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Error("Expected unknown level to fall back to info")
	}
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(NewLoggerTo(&buf, "info")))
	r.GET("/documents/:id", func(c *gin.Context) {
		if RequestID(c) == "" {
			t.Error("Expected request id in context")
		}
		c.Status(http.StatusNotFound)
	})

	req, _ := http.NewRequest("GET", "/documents/secret-id", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Header().Get(HeaderRequestID) == "" {
		t.Error("Expected request id response header")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q", buf.String())
	}
	if entry["level"] != "warn" {
		t.Errorf("Expected warn level for 404, got %v", entry["level"])
	}
	if entry["route"] != "/documents/:id" {
		t.Errorf("Expected route template, got %v", entry["route"])
	}
	if strings.Contains(buf.String(), "secret-id") {
		t.Error("Expected raw path parameters to stay out of the log")
	}
}

func TestRequestLoggerKeepsValidIncomingID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(NewLoggerTo(&bytes.Buffer{}, "info")))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	const id = "6f1c1a2e-8d0b-4b44-9a3f-2d0c7f6f9b11"
	req, _ := http.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, id)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if got := resp.Header().Get(HeaderRequestID); got != id {
		t.Errorf("Expected incoming request id to be kept, got %s", got)
	}

	req, _ = http.NewRequest("GET", "/", nil)
	req.Header.Set(HeaderRequestID, "not a uuid\nforged")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if got := resp.Header().Get(HeaderRequestID); strings.Contains(got, "forged") {
		t.Error("Expected malformed request id to be replaced")
	}
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveDecision("read", "deny", "cross_tenant")
	m.ObserveDecision("read", "deny", "cross_tenant")
	m.ObserveDecision("write", "allow", "")
	m.ObserveLinkValidation("exhausted")

	if got := testutil.ToFloat64(m.decisions.WithLabelValues("read", "deny", "cross_tenant")); got != 2 {
		t.Errorf("Expected 2 cross-tenant denials, got %v", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("write", "allow", "none")); got != 1 {
		t.Errorf("Expected 1 allow, got %v", got)
	}
	if got := testutil.ToFloat64(m.linkValidations.WithLabelValues("exhausted")); got != 1 {
		t.Errorf("Expected 1 exhausted validation, got %v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveDecision("read", "allow", "")
	nilMetrics.ObserveLinkValidation("ok")
}

func TestMetricsHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()
	r := gin.New()
	r.Use(m.Instrument())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	req, _ := http.NewRequest("GET", "/ping", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	req, _ = http.NewRequest("GET", "/metrics", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `docvault_http_requests_total{method="GET",route="/ping",status="200"} 1`) {
		t.Errorf("Expected request counter in output, got:\n%s", resp.Body.String())
	}
}
