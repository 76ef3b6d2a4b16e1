package metrics

import (
	"testing"
	"time"
)

func gatherValue(t *testing.T, name string) (float64, bool) {
	t.Helper()
	families, err := Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if g := m.GetGauge(); g != nil {
				return g.GetValue(), true
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue(), true
			}
		}
	}
	return 0, false
}

func TestWorkersReadyGauge(t *testing.T) {
	SetWorkersReady(4)
	v, ok := gatherValue(t, "warden_workers_ready")
	if !ok {
		t.Fatal("workers_ready not registered")
	}
	if v != 4 {
		t.Fatalf("workers_ready = %v, want 4", v)
	}
}

func TestWorkerRestartCounter(t *testing.T) {
	IncWorkerRestart("Server-0")
	IncWorkerRestart("Server-0")
	// An empty identity is dropped instead of minting a blank label.
	IncWorkerRestart("")

	v, ok := gatherValue(t, "warden_worker_restarts_total")
	if !ok {
		t.Fatal("worker_restarts_total not registered")
	}
	if v < 2 {
		t.Fatalf("worker_restarts_total = %v, want >= 2", v)
	}
}

func TestObserveAckWait(t *testing.T) {
	ObserveAckWait(250 * time.Millisecond)

	families, err := Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "warden_ack_wait_seconds" {
			if mf.GetMetric()[0].GetHistogram().GetSampleCount() == 0 {
				t.Fatal("histogram recorded no samples")
			}
			return
		}
	}
	t.Fatal("ack_wait_seconds not registered")
}

func TestEmitBuildInfoOnce(t *testing.T) {
	EmitBuildInfo()
	EmitBuildInfo()

	if _, ok := gatherValue(t, "warden_build_info"); !ok {
		t.Fatal("build_info not registered")
	}
}
