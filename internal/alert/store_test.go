package alert

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"websentry/internal/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	// In-memory sqlite is per-connection; keep the pool at one
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}

func sampleAlert(id, ip string) *types.Alert {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.Alert{
		ID:          id,
		AttackType:  "SQL Injection",
		SrcIP:       ip,
		HTTPMethod:  "GET",
		URL:         "/login?user=admin' OR '1'='1",
		Params:      "user=admin' OR '1'='1",
		UserAgent:   "curl/8.0",
		Confidence:  85,
		Priority:    types.PriorityHigh,
		Occurrences: 1,
		FirstSeen:   now,
		LastSeen:    now,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := testStore(t)

	if err := s.Create(sampleAlert("a1", "203.0.113.9")); err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}

	got, err := s.Get("a1")
	if err != nil {
		t.Fatalf("Failed to get alert: %v", err)
	}
	if got.Status != types.StatusNew {
		t.Errorf("Expected status new, got %s", got.Status)
	}
	if got.AttackType != "SQL Injection" {
		t.Errorf("Expected SQL Injection, got %s", got.AttackType)
	}
	if got.Occurrences != 1 {
		t.Errorf("Expected 1 occurrence, got %d", got.Occurrences)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := testStore(t)

	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_Bump(t *testing.T) {
	s := testStore(t)

	a := sampleAlert("a1", "203.0.113.9")
	if err := s.Create(a); err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}

	later := a.LastSeen.Add(10 * time.Second)
	if err := s.Bump("a1", 2, 92, types.PriorityCritical, later); err != nil {
		t.Fatalf("Failed to bump alert: %v", err)
	}

	got, _ := s.Get("a1")
	if got.Occurrences != 2 {
		t.Errorf("Expected 2 occurrences, got %d", got.Occurrences)
	}
	if got.Confidence != 92 || got.Priority != types.PriorityCritical {
		t.Errorf("Expected confidence 92/critical, got %d/%s", got.Confidence, got.Priority)
	}
	if got.Status != types.StatusNew {
		t.Errorf("Bump must not touch status, got %s", got.Status)
	}

	if err := s.Bump("missing", 2, 50, types.PriorityMedium, later); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown ID, got %v", err)
	}
}

func TestStore_UpdateStatusAnyToAny(t *testing.T) {
	s := testStore(t)
	if err := s.Create(sampleAlert("a1", "203.0.113.9")); err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}

	// Every transition is allowed, including reopening a resolved alert
	for _, status := range []types.Status{
		types.StatusResolved,
		types.StatusNew,
		types.StatusFalsePositive,
		types.StatusReviewed,
	} {
		st := status
		if err := s.Update("a1", UpdateFields{Status: &st}); err != nil {
			t.Fatalf("Failed to set status %s: %v", status, err)
		}
		got, _ := s.Get("a1")
		if got.Status != status {
			t.Errorf("Expected status %s, got %s", status, got.Status)
		}
	}
}

func TestStore_UpdateNotesAndPriority(t *testing.T) {
	s := testStore(t)
	if err := s.Create(sampleAlert("a1", "203.0.113.9")); err != nil {
		t.Fatalf("Failed to create alert: %v", err)
	}

	notes := "confirmed during triage"
	prio := types.PriorityCritical
	if err := s.Update("a1", UpdateFields{Notes: &notes, Priority: &prio}); err != nil {
		t.Fatalf("Failed to update alert: %v", err)
	}

	got, _ := s.Get("a1")
	if got.Notes != notes {
		t.Errorf("Expected notes %q, got %q", notes, got.Notes)
	}
	if got.Priority != types.PriorityCritical {
		t.Errorf("Expected critical priority, got %s", got.Priority)
	}
}

func TestStore_UpdateMany(t *testing.T) {
	s := testStore(t)
	s.Create(sampleAlert("a1", "1.1.1.1"))
	s.Create(sampleAlert("a2", "2.2.2.2"))

	st := types.StatusReviewed
	changed, err := s.UpdateMany([]string{"a1", "a2", "ghost"}, UpdateFields{Status: &st})
	if err != nil {
		t.Fatalf("Failed to bulk update: %v", err)
	}
	if changed != 2 {
		t.Errorf("Expected 2 rows changed, got %d", changed)
	}
}

func TestStore_ListFilters(t *testing.T) {
	s := testStore(t)

	a := sampleAlert("a1", "1.1.1.1")
	s.Create(a)

	b := sampleAlert("a2", "2.2.2.2")
	b.AttackType = "Cross-Site Scripting"
	b.URL = "/search?q=<script>"
	b.Confidence = 55
	b.Priority = types.PriorityMedium
	s.Create(b)

	byType, err := s.List(Filter{AttackType: "SQL Injection"})
	if err != nil {
		t.Fatalf("Failed to list: %v", err)
	}
	if len(byType) != 1 || byType[0].ID != "a1" {
		t.Errorf("Expected only a1, got %v", byType)
	}

	byIP, _ := s.List(Filter{SrcIP: "2.2.2.2"})
	if len(byIP) != 1 || byIP[0].ID != "a2" {
		t.Errorf("Expected only a2, got %v", byIP)
	}

	byConf, _ := s.List(Filter{MinConfidence: 70})
	if len(byConf) != 1 || byConf[0].ID != "a1" {
		t.Errorf("Expected only a1 above confidence 70, got %v", byConf)
	}

	byURL, _ := s.List(Filter{URLContains: "script"})
	if len(byURL) != 1 || byURL[0].ID != "a2" {
		t.Errorf("Expected only a2 for url substring, got %v", byURL)
	}

	limited, _ := s.List(Filter{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("Expected limit 1, got %d", len(limited))
	}
}

func TestStore_CountSince(t *testing.T) {
	s := testStore(t)
	now := time.Now().UTC()

	for i, prio := range []types.Priority{
		types.PriorityHigh,
		types.PriorityCritical,
		types.PriorityMedium, // below floor, must not count
	} {
		a := sampleAlert(string(rune('a'+i))+"-id", "9.9.9.9")
		a.Priority = prio
		s.Create(a)
	}

	old := sampleAlert("old", "9.9.9.9")
	old.FirstSeen = now.Add(-3 * time.Hour)
	old.LastSeen = now.Add(-3 * time.Hour)
	s.Create(old)

	count, err := s.CountSince("9.9.9.9", types.PriorityHigh, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 alerts at or above high in window, got %d", count)
	}
}

func TestStore_Stats(t *testing.T) {
	s := testStore(t)
	s.Create(sampleAlert("a1", "1.1.1.1"))
	s.Create(sampleAlert("a2", "1.1.1.1"))

	b := sampleAlert("a3", "2.2.2.2")
	b.AttackType = "Cross-Site Scripting"
	b.Priority = types.PriorityMedium
	s.Create(b)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Failed to get stats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("Expected 3 total, got %d", stats.Total)
	}
	if stats.ByAttack["SQL Injection"] != 2 {
		t.Errorf("Expected 2 SQL Injection alerts, got %d", stats.ByAttack["SQL Injection"])
	}
	if len(stats.TopSources) == 0 || stats.TopSources[0].IP != "1.1.1.1" {
		t.Errorf("Expected 1.1.1.1 as top source, got %v", stats.TopSources)
	}
}

func TestStore_SetEnrichment(t *testing.T) {
	s := testStore(t)
	s.Create(sampleAlert("a1", "203.0.113.9"))

	if err := s.SetEnrichment("a1", "classic tautology probe", "NL", "Amsterdam"); err != nil {
		t.Fatalf("Failed to enrich: %v", err)
	}
	got, _ := s.Get("a1")
	if got.Narrative == "" || got.GeoCountry != "NL" {
		t.Errorf("Expected enrichment fields set, got %+v", got)
	}

	// A later geo-only pass must not erase the narrative
	if err := s.SetEnrichment("a1", "", "NL", "Rotterdam"); err != nil {
		t.Fatalf("Failed to enrich: %v", err)
	}
	got, _ = s.Get("a1")
	if got.Narrative != "classic tautology probe" || got.GeoCity != "Rotterdam" {
		t.Errorf("Expected narrative kept and city updated, got %+v", got)
	}
}
