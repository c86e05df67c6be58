package health

import (
	"path/filepath"
	"testing"
)

func TestWorstStatusWins(t *testing.T) {
	hc := NewChecker()
	hc.Register("a", func() Check { return Check{Status: StatusUp} })
	hc.Register("b", func() Check { return Check{Status: StatusDegraded} })

	resp := hc.Check()
	if resp.Status != StatusDegraded {
		t.Fatalf("status = %s", resp.Status)
	}

	hc.Register("c", func() Check { return Check{Status: StatusDown} })
	resp = hc.Check()
	if resp.Status != StatusDown {
		t.Fatalf("status = %s with a DOWN component", resp.Status)
	}
	if hc.Healthy() {
		t.Fatal("Healthy() true with a DOWN component")
	}
}

func TestEmptyCheckerIsUp(t *testing.T) {
	hc := NewChecker()
	resp := hc.Check()
	if resp.Status != StatusUp {
		t.Fatalf("status = %s", resp.Status)
	}
	if !hc.Healthy() {
		t.Fatal("empty checker not healthy")
	}
}

func TestCheckAnnotatesResults(t *testing.T) {
	hc := NewChecker()
	hc.Register("storage", func() Check { return Check{Status: StatusUp, Message: "writable"} })

	resp := hc.Check()
	check, ok := resp.Checks["storage"]
	if !ok {
		t.Fatal("check missing from response")
	}
	if check.Name != "storage" {
		t.Fatalf("name = %q", check.Name)
	}
	if check.LastChecked.IsZero() {
		t.Fatal("LastChecked not set")
	}
}

func TestStorageCheck(t *testing.T) {
	dir := t.TempDir()
	if got := StorageCheck(dir)(); got.Status != StatusUp {
		t.Fatalf("writable dir = %s: %s", got.Status, got.Message)
	}

	missing := filepath.Join(dir, "does", "not", "exist")
	if got := StorageCheck(missing)(); got.Status != StatusDown {
		t.Fatalf("missing dir = %s", got.Status)
	}
}
