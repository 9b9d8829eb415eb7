package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gather は指定名のメトリクスファミリーを返す。
func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func TestRecordTransition(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransition("move", false)
	c.RecordTransition("move", false)
	c.RecordTransition("resign", true)

	mf := gather(t, reg, "banmen_transitions_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 series, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		switch labelValue(m, "action") {
		case "move":
			if v := m.GetCounter().GetValue(); v != 2 {
				t.Errorf("move transitions = %v, want 2", v)
			}
			if labelValue(m, "terminal") != "false" {
				t.Errorf("move terminal label = %q", labelValue(m, "terminal"))
			}
		case "resign":
			if labelValue(m, "terminal") != "true" {
				t.Errorf("resign terminal label = %q", labelValue(m, "terminal"))
			}
		}
	}
}

func TestRecordRejection(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRejection("move", "NOT_YOUR_TURN")

	m := gather(t, reg, "banmen_rejections_total").GetMetric()[0]
	if labelValue(m, "code") != "NOT_YOUR_TURN" {
		t.Errorf("code label = %q", labelValue(m, "code"))
	}
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("rejections = %v, want 1", m.GetCounter().GetValue())
	}
}

func TestReplicationCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReplicationConflict("player#a")
	c.RecordReplicationConflict("player#b")
	c.RecordReplicationExhausted("player#a")
	c.RecordFanoutFailure()

	if v := gather(t, reg, "banmen_replication_conflicts_total").GetMetric()[0].GetCounter().GetValue(); v != 2 {
		t.Errorf("conflicts = %v, want 2", v)
	}
	if v := gather(t, reg, "banmen_replication_exhausted_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("exhausted = %v, want 1", v)
	}
	if v := gather(t, reg, "banmen_fanout_failures_total").GetMetric()[0].GetCounter().GetValue(); v != 1 {
		t.Errorf("fanout failures = %v, want 1", v)
	}
}

func TestRecordActionLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordActionLatency("move", 150*time.Millisecond)

	h := gather(t, reg, "banmen_action_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.149 || h.GetSampleSum() > 0.151 {
		t.Errorf("sample sum = %v, want ~0.15", h.GetSampleSum())
	}
}

func TestLabelledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionCompleted("nim")
	c.RecordRatingApplied("nim")
	c.RecordStoreRetry("put")
	c.RecordHookFailure("archive")
	c.RecordSweepAction("timeout")
	c.RecordHTTPStatus(409)

	tests := []struct {
		metric, label, want string
	}{
		{"banmen_sessions_completed_total", "game_type", "nim"},
		{"banmen_ratings_applied_total", "game_type", "nim"},
		{"banmen_store_retries_total", "op", "put"},
		{"banmen_hook_failures_total", "hook", "archive"},
		{"banmen_sweep_actions_total", "kind", "timeout"},
		{"banmen_http_status_total", "status_code", "409"},
	}
	for _, tt := range tests {
		t.Run(tt.metric, func(t *testing.T) {
			m := gather(t, reg, tt.metric).GetMetric()[0]
			if got := labelValue(m, tt.label); got != tt.want {
				t.Errorf("%s label = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

// TestHandler_ServesMetrics はHandlerがPrometheus形式でメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTransition("move", false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Result().Body)
	if !strings.Contains(string(body), "banmen_transitions_total") {
		t.Error("response should contain banmen_transitions_total")
	}
}

func TestNopImplementsCollector(t *testing.T) {
	var c MetricsCollector = Nop{}
	c.RecordTransition("move", true)
}
