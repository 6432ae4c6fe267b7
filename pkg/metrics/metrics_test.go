package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	reg := New()

	c := reg.Counter("triagecore_audit_append_total", "appends")
	c.Inc()
	c.Add(4)
	if got := c.Value(); got != 5 {
		t.Fatalf("counter = %d, want 5", got)
	}
	if again := reg.Counter("triagecore_audit_append_total", "appends"); again != c {
		t.Fatal("same name must return the same counter")
	}

	g := reg.Gauge("triagecore_audit_consecutive_failures", "streak")
	g.Set(3)
	g.Inc()
	g.Dec()
	g.Dec()
	if got := g.Value(); got != 2 {
		t.Fatalf("gauge = %d, want 2", got)
	}
}

func TestWithLabels(t *testing.T) {
	cases := []struct {
		name string
		kvs  []string
		want string
	}{
		{"m", nil, "m"},
		{"m", []string{"action", "approve"}, `m{action="approve"}`},
		{"m", []string{"a", "1", "b", "2"}, `m{a="1",b="2"}`},
		{"m", []string{"odd"}, "m"},
	}
	for _, c := range cases {
		if got := WithLabels(c.name, c.kvs...); got != c.want {
			t.Errorf("WithLabels(%q, %v) = %q, want %q", c.name, c.kvs, got, c.want)
		}
	}
}

func TestRenderGroupsLabeledSeries(t *testing.T) {
	reg := New()
	reg.Counter(WithLabels("triagecore_review_actions_total", "action", "reject"), "review actions").Inc()
	reg.Counter(WithLabels("triagecore_review_actions_total", "action", "approve"), "review actions").Add(2)

	out := reg.Render()
	if n := strings.Count(out, "# TYPE triagecore_review_actions_total counter"); n != 1 {
		t.Fatalf("want exactly one TYPE header, got %d in:\n%s", n, out)
	}
	if !strings.Contains(out, `triagecore_review_actions_total{action="approve"} 2`) {
		t.Fatalf("missing approve series:\n%s", out)
	}
	if !strings.Contains(out, `triagecore_review_actions_total{action="reject"} 1`) {
		t.Fatalf("missing reject series:\n%s", out)
	}
	// Series under one family render sorted by name.
	if strings.Index(out, `action="approve"`) > strings.Index(out, `action="reject"`) {
		t.Fatalf("series not sorted:\n%s", out)
	}
}

func TestHistogramRendersCumulativeBuckets(t *testing.T) {
	reg := New()
	h := reg.Histogram("triagecore_check_latency_seconds", "latency", []float64{1, 2, 4})
	h.Observe(0.5)
	h.Observe(1.5)
	h.Observe(3)
	h.Observe(100) // above every bound, lands only in +Inf

	out := reg.Render()
	for _, line := range []string{
		`triagecore_check_latency_seconds_bucket{le="1"} 1`,
		`triagecore_check_latency_seconds_bucket{le="2"} 2`,
		`triagecore_check_latency_seconds_bucket{le="4"} 3`,
		`triagecore_check_latency_seconds_bucket{le="+Inf"} 4`,
		`triagecore_check_latency_seconds_count 4`,
	} {
		if !strings.Contains(out, line) {
			t.Errorf("missing %q in:\n%s", line, out)
		}
	}
}

func TestTimeObservesElapsed(t *testing.T) {
	reg := New()
	stop := reg.Time("triagecore_check_latency_seconds", "latency")
	time.Sleep(5 * time.Millisecond)
	stop()

	_, _, sum, total := reg.Histogram("triagecore_check_latency_seconds", "latency", nil).snapshot()
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if sum <= 0 {
		t.Fatalf("sum = %g, want > 0", sum)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	reg := New()
	reg.Counter("triagecore_audit_append_total", "appends").Inc()

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "triagecore_audit_append_total 1") {
		t.Fatalf("body missing counter:\n%s", rec.Body.String())
	}
}
