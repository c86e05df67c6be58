package metrics

import (
	"testing"
	"time"
)

func TestRecordHTTPRequest(t *testing.T) {
	r := NewRegistry()
	r.RecordHTTPRequest("POST", "/query", "200", 5*time.Millisecond)
	r.RecordHTTPRequest("POST", "/query", "200", 7*time.Millisecond)

	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if got := snap.Server["serengeti_http_requests_total"]; got != 2 {
		t.Errorf("http_requests_total = %v, want 2", got)
	}
}

func TestSnapshotSections(t *testing.T) {
	r := NewRegistry()
	r.ClusterSize.Set(3)
	r.StorageFlushesTotal.Inc()
	r.UpdateSystemMetrics(time.Now().Add(-2 * time.Second))

	snap, err := r.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snap.Network["serengeti_cluster_size"] != 3 {
		t.Errorf("cluster_size not in network section: %v", snap.Network)
	}
	if snap.System["serengeti_storage_flushes_total"] != 1 {
		t.Errorf("storage flushes not in system section: %v", snap.System)
	}
	if snap.Runtime["serengeti_uptime_seconds"] < 1 {
		t.Errorf("uptime not refreshed: %v", snap.Runtime)
	}
}

func TestRecordReplicationSendError(t *testing.T) {
	r := NewRegistry()
	r.RecordReplicationSend("ReplicateInsertObject", false)
	r.RecordReplicationSend("ReplicateInsertObject", true)

	snap, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if got := snap.Network["serengeti_replication_send_errors_total"]; got != 1 {
		t.Errorf("send_errors = %v, want 1", got)
	}
	if got := snap.Network["serengeti_replication_sends_total"]; got != 2 {
		t.Errorf("sends_total = %v, want 2", got)
	}
}

func TestRecordPersistPass(t *testing.T) {
	r := NewRegistry()
	r.RecordPersistPass(10*time.Millisecond, nil)
	r.RecordPersistPass(10*time.Millisecond, errTest)

	snap, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if snap.System["serengeti_persist_passes_total"] != 1 {
		t.Errorf("passes = %v, want 1", snap.System["serengeti_persist_passes_total"])
	}
	if snap.System["serengeti_persist_errors_total"] != 1 {
		t.Errorf("errors = %v, want 1", snap.System["serengeti_persist_errors_total"])
	}
	if snap.System["serengeti_persist_last_error_timestamp_seconds"] == 0 {
		t.Error("last error timestamp not set")
	}
}

type testErr string

func (e testErr) Error() string { return string(e) }

var errTest = testErr("boom")
