package alert

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"websentry/internal/types"
)

// ErrNotFound is returned when the alert ID does not exist
var ErrNotFound = errors.New("alert not found")

// Store persists alerts in SQLite. Writes use UPSERT semantics keyed by
// alert ID so merge updates from the aggregator are idempotent.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (*Store, error) {
	query := `
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		attack_type TEXT NOT NULL,
		src_ip TEXT NOT NULL,
		dst_ip TEXT,
		http_method TEXT,
		url TEXT NOT NULL,
		params TEXT,
		user_agent TEXT,
		raw TEXT,
		confidence INTEGER NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'new',
		occurrences INTEGER NOT NULL DEFAULT 1,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL,
		notes TEXT,
		narrative TEXT,
		geo_country TEXT,
		geo_city TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_src_ip ON alerts(src_ip, last_seen);
	CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status);
	CREATE INDEX IF NOT EXISTS idx_alerts_priority ON alerts(priority);
	CREATE INDEX IF NOT EXISTS idx_alerts_last_seen ON alerts(last_seen);
	`
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("init alerts schema: %w", err)
	}
	return &Store{db: db}, nil
}

const alertColumns = `id, attack_type, src_ip, dst_ip, http_method, url, params,
	user_agent, raw, confidence, priority, status, occurrences,
	first_seen, last_seen, notes, narrative, geo_country, geo_city`

// Create inserts a new alert. Status defaults to "new" when unset.
func (s *Store) Create(a *types.Alert) error {
	if a.Status == "" {
		a.Status = types.StatusNew
	}
	if a.Occurrences == 0 {
		a.Occurrences = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.AttackType, a.SrcIP, a.DstIP, a.HTTPMethod, a.URL, a.Params,
		a.UserAgent, a.Raw, a.Confidence, a.Priority, a.Status, a.Occurrences,
		a.FirstSeen.UTC(), a.LastSeen.UTC(), a.Notes, a.Narrative,
		a.GeoCountry, a.GeoCity,
	)
	if err != nil {
		return fmt.Errorf("insert alert %s: %w", a.ID, err)
	}
	return nil
}

// Bump applies a merge from the aggregator: occurrence count, last-seen,
// confidence and the priority derived from it. The row keeps its status
// and operator fields untouched.
func (s *Store) Bump(id string, occurrences, confidence int, priority types.Priority, lastSeen time.Time) error {
	res, err := s.db.Exec(`
		UPDATE alerts
		SET occurrences = ?, confidence = ?, priority = ?, last_seen = ?
		WHERE id = ?
	`, occurrences, confidence, priority, lastSeen.UTC(), id)
	if err != nil {
		return fmt.Errorf("bump alert %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFields carries the operator-editable alert fields. Nil means
// leave unchanged. Any status may replace any other.
type UpdateFields struct {
	Status   *types.Status
	Priority *types.Priority
	Notes    *string
}

func (s *Store) Update(id string, f UpdateFields) error {
	var sets []string
	var args []any
	if f.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *f.Status)
	}
	if f.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *f.Priority)
	}
	if f.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *f.Notes)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.Exec("UPDATE alerts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update alert %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMany applies the same field changes to a batch of alerts and
// returns how many rows actually changed. Unknown IDs are skipped.
func (s *Store) UpdateMany(ids []string, f UpdateFields) (int, error) {
	changed := 0
	for _, id := range ids {
		err := s.Update(id, f)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

// SetEnrichment fills the async enrichment fields. Empty values are
// skipped so a later geo result does not erase an earlier narrative.
func (s *Store) SetEnrichment(id, narrative, geoCountry, geoCity string) error {
	var sets []string
	var args []any
	if narrative != "" {
		sets = append(sets, "narrative = ?")
		args = append(args, narrative)
	}
	if geoCountry != "" {
		sets = append(sets, "geo_country = ?")
		args = append(args, geoCountry)
	}
	if geoCity != "" {
		sets = append(sets, "geo_city = ?")
		args = append(args, geoCity)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.Exec("UPDATE alerts SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("enrich alert %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(id string) (*types.Alert, error) {
	row := s.db.QueryRow("SELECT "+alertColumns+" FROM alerts WHERE id = ?", id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", id, err)
	}
	return a, nil
}

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	AttackType    string
	Status        types.Status
	Priority      types.Priority
	SrcIP         string
	URLContains   string
	MinConfidence int
	MaxConfidence int
	Since         time.Time
	Until         time.Time
	Limit         int
}

// List returns alerts matching the filter, newest last-seen first.
func (s *Store) List(f Filter) ([]types.Alert, error) {
	query := "SELECT " + alertColumns + " FROM alerts WHERE 1=1"
	var args []any

	if f.AttackType != "" {
		query += " AND attack_type = ?"
		args = append(args, f.AttackType)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		query += " AND priority = ?"
		args = append(args, f.Priority)
	}
	if f.SrcIP != "" {
		query += " AND src_ip = ?"
		args = append(args, f.SrcIP)
	}
	if f.URLContains != "" {
		query += " AND url LIKE ?"
		args = append(args, "%"+f.URLContains+"%")
	}
	if f.MinConfidence > 0 {
		query += " AND confidence >= ?"
		args = append(args, f.MinConfidence)
	}
	if f.MaxConfidence > 0 {
		query += " AND confidence <= ?"
		args = append(args, f.MaxConfidence)
	}
	if !f.Since.IsZero() {
		query += " AND last_seen >= ?"
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		query += " AND last_seen <= ?"
		args = append(args, f.Until.UTC())
	}

	query += " ORDER BY last_seen DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			continue
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// CountSince counts distinct alerts for an IP at or above the priority
// floor whose last activity falls within the rolling window. This is the
// evidence count the auto-block policy acts on.
func (s *Store) CountSince(ip string, floor types.Priority, cutoff time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM alerts
		WHERE src_ip = ? AND last_seen >= ? AND priority IN (`+priorityAtOrAbove(floor)+`)
	`, ip, cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count alerts for %s: %w", ip, err)
	}
	return count, nil
}

// priorityAtOrAbove renders the floor and everything above it as a quoted
// SQL list. Priorities are a fixed enum, never user input.
func priorityAtOrAbove(floor types.Priority) string {
	all := []types.Priority{types.PriorityLow, types.PriorityMedium, types.PriorityHigh, types.PriorityCritical}
	var quoted []string
	for _, p := range all {
		if p.Rank() >= floor.Rank() {
			quoted = append(quoted, "'"+string(p)+"'")
		}
	}
	return strings.Join(quoted, ", ")
}

// Stats summarises the alert table for the dashboard
type Stats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	ByPriority map[string]int `json:"by_priority"`
	ByAttack   map[string]int `json:"by_attack_type"`
	TopSources []TopSource    `json:"top_sources"`
}

type TopSource struct {
	IP    string `json:"ip"`
	Count int    `json:"count"`
}

func (s *Store) Stats() (*Stats, error) {
	stats := &Stats{
		ByStatus:   make(map[string]int),
		ByPriority: make(map[string]int),
		ByAttack:   make(map[string]int),
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM alerts").Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("alert stats: %w", err)
	}

	if err := s.groupCount("status", stats.ByStatus); err != nil {
		return nil, err
	}
	if err := s.groupCount("priority", stats.ByPriority); err != nil {
		return nil, err
	}
	if err := s.groupCount("attack_type", stats.ByAttack); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT src_ip, COUNT(*) AS c FROM alerts
		GROUP BY src_ip ORDER BY c DESC LIMIT 5
	`)
	if err != nil {
		return nil, fmt.Errorf("alert stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t TopSource
		if err := rows.Scan(&t.IP, &t.Count); err != nil {
			continue
		}
		stats.TopSources = append(stats.TopSources, t)
	}

	return stats, rows.Err()
}

func (s *Store) groupCount(column string, out map[string]int) error {
	rows, err := s.db.Query("SELECT " + column + ", COUNT(*) FROM alerts GROUP BY " + column)
	if err != nil {
		return fmt.Errorf("alert stats by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			continue
		}
		out[key] = count
	}
	return rows.Err()
}

// RecentSince returns alerts last seen at or after the cutoff, used to
// prime the dedup window after a restart.
func (s *Store) RecentSince(cutoff time.Time) ([]types.Alert, error) {
	return s.List(Filter{Since: cutoff})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(r rowScanner) (*types.Alert, error) {
	var a types.Alert
	var dstIP, method, params, ua, raw, notes, narrative, geoCountry, geoCity sql.NullString
	err := r.Scan(
		&a.ID, &a.AttackType, &a.SrcIP, &dstIP, &method, &a.URL, &params,
		&ua, &raw, &a.Confidence, &a.Priority, &a.Status, &a.Occurrences,
		&a.FirstSeen, &a.LastSeen, &notes, &narrative, &geoCountry, &geoCity,
	)
	if err != nil {
		return nil, err
	}
	a.DstIP = dstIP.String
	a.HTTPMethod = method.String
	a.Params = params.String
	a.UserAgent = ua.String
	a.Raw = raw.String
	a.Notes = notes.String
	a.Narrative = narrative.String
	a.GeoCountry = geoCountry.String
	a.GeoCity = geoCity.String
	return &a, nil
}
