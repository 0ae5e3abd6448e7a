package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterReuse(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("x_total", "x", `k="v"`)
	b := c.Counter("x_total", "x", `k="v"`)
	if a != b {
		t.Fatal("expected same counter for same name and labels")
	}
	a.Inc()
	b.Add(2)
	if got := a.Value(); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestRenderIsSortedAndTyped(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("korabot_routes_total", "routes", Label("kind", "text")).Inc()
	c.Counter("korabot_routes_total", "routes", Label("kind", "command")).Add(2)
	c.Gauge("korabot_inflight_messages", "in flight", "").Set(4)

	out := c.Render()
	if strings.Count(out, "# TYPE korabot_routes_total counter") != 1 {
		t.Fatalf("expected a single TYPE line:\n%s", out)
	}
	cmd := strings.Index(out, `korabot_routes_total{kind="command"} 2`)
	txt := strings.Index(out, `korabot_routes_total{kind="text"} 1`)
	if cmd < 0 || txt < 0 || cmd > txt {
		t.Fatalf("expected sorted label series:\n%s", out)
	}
	if !strings.Contains(out, "korabot_inflight_messages 4") {
		t.Fatalf("missing gauge:\n%s", out)
	}
}

func TestHistogramBuckets(t *testing.T) {
	c := NewMetricsCollector()
	h := c.Histogram("lat_seconds", "latency", Label("role", "text"), []float64{5, 1})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(100)

	out := c.Render()
	for _, want := range []string{
		`lat_seconds_bucket{role="text",le="1"} 1`,
		`lat_seconds_bucket{role="text",le="5"} 2`,
		`lat_seconds_bucket{role="text",le="+Inf"} 3`,
		`lat_seconds_count{role="text"} 3`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if h.Count() != 3 {
		t.Fatalf("expected count 3, got %d", h.Count())
	}
}

func TestLabelEscaping(t *testing.T) {
	if got := Label("k", `a"b\c`); got != `k="a\"b\\c"` {
		t.Fatalf("unexpected label %s", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewMetricsCollector()
	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "korabot_uptime_seconds") {
		t.Fatal("missing uptime")
	}
}
