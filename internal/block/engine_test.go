package block

import (
	"database/sql"
	"sync"
	"testing"
	"time"

	"websentry/internal/types"
)

type fakeCounter struct {
	counts map[string]int
}

func (f *fakeCounter) CountSince(ip string, floor types.Priority, cutoff time.Time) (int, error) {
	return f.counts[ip], nil
}

func testEngine(t *testing.T, counts map[string]int, allowlist ...string) (*Engine, *Store) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	// In-memory sqlite is per-connection; keep the pool at one
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	cfg := &types.Config{}
	cfg.AutoBlock.Threshold = 5
	cfg.AutoBlock.WindowHours = 1
	cfg.AutoBlock.PriorityFloor = types.PriorityHigh
	cfg.AutoBlock.Allowlist = allowlist

	return NewEngine(store, &fakeCounter{counts: counts}, cfg), store
}

func TestEngine_BlocksAtThreshold(t *testing.T) {
	e, store := testEngine(t, map[string]int{"203.0.113.9": 5})

	d, err := e.Evaluate("203.0.113.9")
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if !d.Blocked {
		t.Fatal("Expected block at threshold")
	}

	blocked, _ := store.IsBlocked("203.0.113.9")
	if !blocked {
		t.Error("Expected active block in store")
	}

	entry, _ := store.GetBlock("203.0.113.9")
	if !entry.AutoBlocked || entry.AttackCount != 5 {
		t.Errorf("Expected auto-blocked entry with count 5, got %+v", entry)
	}
}

func TestEngine_BelowThresholdNoBlock(t *testing.T) {
	e, store := testEngine(t, map[string]int{"203.0.113.9": 4})

	d, err := e.Evaluate("203.0.113.9")
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if d.Blocked {
		t.Error("Expected no block below threshold")
	}
	if blocked, _ := store.IsBlocked("203.0.113.9"); blocked {
		t.Error("Expected no store entry below threshold")
	}
}

func TestEngine_Idempotent(t *testing.T) {
	e, _ := testEngine(t, map[string]int{"203.0.113.9": 7})

	first, _ := e.Evaluate("203.0.113.9")
	if !first.Blocked {
		t.Fatal("Expected first evaluation to block")
	}

	second, err := e.Evaluate("203.0.113.9")
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if second.Blocked {
		t.Error("Expected second evaluation to be a no-op")
	}
}

func TestEngine_AllowlistShortCircuits(t *testing.T) {
	e, store := testEngine(t, map[string]int{"10.0.0.1": 100}, "10.0.0.1")

	d, err := e.Evaluate("10.0.0.1")
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if d.Blocked {
		t.Error("Expected allowlisted IP to never be blocked")
	}
	if d.Reason != "allowlisted" {
		t.Errorf("Expected allowlisted reason, got %q", d.Reason)
	}
	if blocked, _ := store.IsBlocked("10.0.0.1"); blocked {
		t.Error("Expected no block row for allowlisted IP")
	}
}

func TestEngine_WhitelistShortCircuits(t *testing.T) {
	e, store := testEngine(t, map[string]int{"10.0.0.2": 100})
	if err := store.AddWhitelist("10.0.0.2", "office VPN"); err != nil {
		t.Fatalf("Failed to whitelist: %v", err)
	}

	d, err := e.Evaluate("10.0.0.2")
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if d.Blocked {
		t.Error("Expected whitelisted IP to never be blocked")
	}
	if d.Reason != "whitelisted" {
		t.Errorf("Expected whitelisted reason, got %q", d.Reason)
	}
}

func TestEngine_WhitelistingClearsBlock(t *testing.T) {
	e, store := testEngine(t, map[string]int{"10.0.0.3": 9})

	if d, _ := e.Evaluate("10.0.0.3"); !d.Blocked {
		t.Fatal("Expected block before whitelisting")
	}
	if err := store.AddWhitelist("10.0.0.3", "false positive source"); err != nil {
		t.Fatalf("Failed to whitelist: %v", err)
	}
	if blocked, _ := store.IsBlocked("10.0.0.3"); blocked {
		t.Error("Expected block deactivated after whitelisting")
	}
}

func TestEngine_ReactivatesInactiveBlock(t *testing.T) {
	e, store := testEngine(t, map[string]int{"203.0.113.9": 6})

	first, _ := e.Evaluate("203.0.113.9")
	if !first.Blocked {
		t.Fatal("Expected initial block")
	}
	original, _ := store.GetBlock("203.0.113.9")

	if err := e.Unblock("203.0.113.9"); err != nil {
		t.Fatalf("Failed to unblock: %v", err)
	}

	again, err := e.Evaluate("203.0.113.9")
	if err != nil {
		t.Fatalf("Failed to evaluate: %v", err)
	}
	if !again.Blocked {
		t.Fatal("Expected inactive block to reactivate")
	}

	entry, _ := store.GetBlock("203.0.113.9")
	if entry.ID != original.ID {
		t.Error("Expected reactivation to reuse the existing row")
	}
	if !entry.Active {
		t.Error("Expected block active after reactivation")
	}
}

func TestEngine_ConcurrentEvaluations(t *testing.T) {
	e, store := testEngine(t, map[string]int{"203.0.113.9": 10})

	var wg sync.WaitGroup
	blocked := make(chan bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := e.Evaluate("203.0.113.9")
			if err == nil && d.Blocked {
				blocked <- true
			}
		}()
	}
	wg.Wait()
	close(blocked)

	count := 0
	for range blocked {
		count++
	}
	if count != 1 {
		t.Errorf("Expected exactly one evaluation to block, got %d", count)
	}

	entries, _ := store.ListBlocks(false)
	if len(entries) != 1 {
		t.Errorf("Expected one block row, got %d", len(entries))
	}
}

func TestEngine_RejectsInvalidIP(t *testing.T) {
	e, _ := testEngine(t, nil)
	if _, err := e.Evaluate("not-an-ip; rm -rf /"); err == nil {
		t.Error("Expected error for invalid IP")
	}
}

func TestEngine_ManualBlockRespectsWhitelist(t *testing.T) {
	e, store := testEngine(t, nil)
	store.AddWhitelist("10.0.0.4", "trusted")

	if err := e.Block("10.0.0.4", "operator block"); err == nil {
		t.Error("Expected manual block of whitelisted IP to fail")
	}
	if err := e.Block("10.0.0.5", "operator block"); err != nil {
		t.Errorf("Failed to block: %v", err)
	}
	if blocked, _ := store.IsBlocked("10.0.0.5"); !blocked {
		t.Error("Expected manual block active")
	}
}
