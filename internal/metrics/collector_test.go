package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounter_GetOrCreate(t *testing.T) {
	c := NewMetricsCollector()
	a := c.Counter("x_total", "x")
	b := c.Counter("x_total", "ignored")
	if a != b {
		t.Fatal("expected the same counter for the same name")
	}
	a.Inc()
	a.Add(2)
	if b.Value() != 3 {
		t.Fatalf("expected 3, got %d", b.Value())
	}
}

func TestHistogram_Observe(t *testing.T) {
	c := NewMetricsCollector()
	h := c.Histogram("lat_seconds", "latency", []float64{5, 1})
	h.Observe(0.5)
	h.Observe(3)
	h.Observe(10)

	var sb strings.Builder
	if _, err := c.WriteTo(&sb); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{
		`lat_seconds_bucket{le="1"} 1`,
		`lat_seconds_bucket{le="5"} 2`,
		`lat_seconds_bucket{le="+Inf"} 3`,
		"lat_seconds_count 3",
		"lat_seconds_sum 13.500000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if h.Count() != 3 {
		t.Fatalf("expected count 3, got %d", h.Count())
	}
}

func TestHandler_SortedOutput(t *testing.T) {
	c := NewMetricsCollector()
	c.Counter("b_total", "b").Inc()
	c.Counter("a_total", "a")

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "slipbot_uptime_seconds") {
		t.Error("expected uptime gauge")
	}
	ia, ib := strings.Index(body, "a_total 0"), strings.Index(body, "b_total 1")
	if ia < 0 || ib < 0 || ia > ib {
		t.Fatalf("expected a_total before b_total:\n%s", body)
	}
}
