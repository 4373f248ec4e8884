package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var _ MetricsCollector = (*Collector)(nil)

// findMetric はレジストリから名前とラベルが一致するメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("%s %v が見つかりません", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestRecordAuthFailure_ByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthFailure("stale")
	c.RecordAuthFailure("stale")
	c.RecordAuthFailure("signature_mismatch")

	m := findMetric(t, reg, "tgshop_auth_failures_total", map[string]string{"reason": "stale"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("auth_failures_total{reason=stale} = %v, want 2", v)
	}
	m = findMetric(t, reg, "tgshop_auth_failures_total", map[string]string{"reason": "signature_mismatch"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("auth_failures_total{reason=signature_mismatch} = %v, want 1", v)
	}
}

func TestRecordResolution_ByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordResolution("created")
	c.RecordResolution("found")
	c.RecordResolution("found")

	m := findMetric(t, reg, "tgshop_customer_resolutions_total", map[string]string{"outcome": "found"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("customer_resolutions_total{outcome=found} = %v, want 2", v)
	}
}

func TestRecordReconciliation_ByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordReconciliation("changed")

	m := findMetric(t, reg, "tgshop_cart_reconciliations_total", map[string]string{"outcome": "changed"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("cart_reconciliations_total{outcome=changed} = %v, want 1", v)
	}
}

func TestRecordRemoteCall_StatusAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRemoteCall("find_customer", 200, 150*time.Millisecond)
	c.RecordRemoteCall("find_customer", 0, 10*time.Second)

	m := findMetric(t, reg, "tgshop_woocommerce_requests_total", map[string]string{"operation": "find_customer", "status_code": "200"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("woocommerce_requests_total{200} = %v, want 1", v)
	}
	m = findMetric(t, reg, "tgshop_woocommerce_requests_total", map[string]string{"operation": "find_customer", "status_code": "0"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("woocommerce_requests_total{0} = %v, want 1", v)
	}
	m = findMetric(t, reg, "tgshop_woocommerce_latency_seconds", map[string]string{"operation": "find_customer"})
	if n := m.GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("latency sample count = %d, want 2", n)
	}
}

func TestRecordBackgroundTask_SuccessAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordBackgroundTask("persist_cart", true)
	c.RecordBackgroundTask("persist_cart", false)
	c.RecordBackgroundTask("persist_cart", false)

	m := findMetric(t, reg, "tgshop_background_tasks_total", map[string]string{"task": "persist_cart", "result": "failure"})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("background_tasks_total{failure} = %v, want 2", v)
	}
}

func TestNewCollector_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("同じレジストリへの二重登録でpanicすべき")
		}
	}()
	_ = NewCollector(reg)
}
