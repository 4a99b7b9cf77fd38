package aggregate

import (
	"sync"
	"testing"
	"time"
)

func TestAggregator_NewAlert(t *testing.T) {
	a := NewAggregator(5 * time.Minute)

	res := a.Ingest("203.0.113.9", "/login", "SQL Injection", 85, time.Now())
	if !res.IsNew {
		t.Fatal("Expected new alert for first trigger")
	}
	if res.Occurrences != 1 {
		t.Errorf("Expected occurrence count 1, got %d", res.Occurrences)
	}
	if res.AlertID == "" {
		t.Error("Expected alert ID")
	}
}

func TestAggregator_DedupWithinWindow(t *testing.T) {
	a := NewAggregator(5 * time.Minute)
	now := time.Now()

	first := a.Ingest("203.0.113.9", "/login", "SQL Injection", 85, now)
	second := a.Ingest("203.0.113.9", "/login", "SQL Injection", 85, now.Add(time.Second))

	if second.IsNew {
		t.Fatal("Expected repeat trigger to merge, not create")
	}
	if second.AlertID != first.AlertID {
		t.Errorf("Expected same alert ID, got %s vs %s", first.AlertID, second.AlertID)
	}
	if second.Occurrences != 2 {
		t.Errorf("Expected occurrence count 2, got %d", second.Occurrences)
	}
}

func TestAggregator_ConfidenceTakesMax(t *testing.T) {
	a := NewAggregator(5 * time.Minute)
	now := time.Now()

	a.Ingest("1.2.3.4", "/x", "XSS", 90, now)
	res := a.Ingest("1.2.3.4", "/x", "XSS", 60, now.Add(time.Second))
	if res.Confidence != 90 {
		t.Errorf("Expected max confidence 90, got %d", res.Confidence)
	}

	res = a.Ingest("1.2.3.4", "/x", "XSS", 95, now.Add(2*time.Second))
	if res.Confidence != 95 {
		t.Errorf("Expected confidence raised to 95, got %d", res.Confidence)
	}
}

func TestAggregator_WindowExpiry(t *testing.T) {
	a := NewAggregator(30 * time.Second)
	now := time.Now()

	first := a.Ingest("203.0.113.9", "/login", "SQL Injection", 85, now)
	second := a.Ingest("203.0.113.9", "/login", "SQL Injection", 85, now.Add(31*time.Second))

	if !second.IsNew {
		t.Fatal("Expected fresh alert after window expiry")
	}
	if second.AlertID == first.AlertID {
		t.Error("Expected a new alert ID after expiry")
	}
	if second.Occurrences != 1 {
		t.Errorf("Expected count reset to 1, got %d", second.Occurrences)
	}
}

func TestAggregator_DistinctAttackTypesDistinctAlerts(t *testing.T) {
	a := NewAggregator(5 * time.Minute)
	now := time.Now()

	r1 := a.Ingest("203.0.113.9", "/view", "Directory Traversal", 80, now)
	r2 := a.Ingest("203.0.113.9", "/view", "Cross-Site Scripting", 80, now)

	if !r1.IsNew || !r2.IsNew {
		t.Fatal("Expected two new alerts for distinct attack types")
	}
	if r1.AlertID == r2.AlertID {
		t.Error("Expected distinct alert IDs per attack type")
	}
}

func TestAggregator_OutOfOrderTimestamps(t *testing.T) {
	a := NewAggregator(5 * time.Minute)
	now := time.Now()

	a.Ingest("1.1.1.1", "/a", "XSS", 50, now)
	// Earlier timestamp within the window must still merge, not crash
	res := a.Ingest("1.1.1.1", "/a", "XSS", 50, now.Add(-time.Minute))
	if res.IsNew {
		t.Error("Expected out-of-order trigger within window to merge")
	}
	if !res.LastSeen.Equal(now) {
		t.Errorf("Expected last-seen to stay at %v, got %v", now, res.LastSeen)
	}
}

func TestAggregator_ConcurrentSameKey(t *testing.T) {
	a := NewAggregator(5 * time.Minute)
	now := time.Now()

	var wg sync.WaitGroup
	iterations := 100
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				a.Ingest("1.2.3.4", "/login", "SQL Injection", 85, now)
			}
		}()
	}
	wg.Wait()

	res := a.Ingest("1.2.3.4", "/login", "SQL Injection", 85, now)
	if res.Occurrences != 10*iterations+1 {
		t.Errorf("Expected %d occurrences, got %d", 10*iterations+1, res.Occurrences)
	}
}

func TestAggregator_SnapshotRestore(t *testing.T) {
	a := NewAggregator(5 * time.Minute)
	now := time.Now()

	first := a.Ingest("1.1.1.1", "/a", "XSS", 70, now)
	a.Ingest("2.2.2.2", "/b", "SQL Injection", 80, now)

	state := a.Snapshot()
	if len(state) != 2 {
		t.Fatalf("Expected 2 entries in snapshot, got %d", len(state))
	}

	b := NewAggregator(5 * time.Minute)
	b.Restore(state)

	res := b.Ingest("1.1.1.1", "/a", "XSS", 70, now.Add(time.Second))
	if res.IsNew {
		t.Error("Expected restored entry to merge")
	}
	if res.AlertID != first.AlertID {
		t.Errorf("Expected restored alert ID %s, got %s", first.AlertID, res.AlertID)
	}
}
