package dashboard

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"websentry/internal/alert"
	"websentry/internal/types"
)

// AlertStore is the alert surface the API serves
type AlertStore interface {
	List(f alert.Filter) ([]types.Alert, error)
	Get(id string) (*types.Alert, error)
	Update(id string, f alert.UpdateFields) error
	UpdateMany(ids []string, f alert.UpdateFields) (int, error)
	Stats() (*alert.Stats, error)
}

// BlockStore lists and edits the blocklist and whitelist
type BlockStore interface {
	ListBlocks(activeOnly bool) ([]types.BlockEntry, error)
	ListWhitelist() ([]types.WhitelistEntry, error)
	AddWhitelist(ip, reason string) error
	RemoveWhitelist(ip string) error
}

// BlockPolicy applies operator block decisions through the same safety
// checks the auto-block path uses
type BlockPolicy interface {
	Block(ip, reason string) error
	Unblock(ip string) error
}

// Server exposes the operator API
type Server struct {
	alerts AlertStore
	blocks BlockStore
	policy BlockPolicy
	port   string
}

func NewServer(alerts AlertStore, blocks BlockStore, policy BlockPolicy, port string) *Server {
	return &Server{alerts: alerts, blocks: blocks, policy: policy, port: port}
}

// Handler builds the route table; split from Start for tests
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/alerts", s.handleListAlerts)
	mux.HandleFunc("PATCH /api/v1/alerts", s.handleBulkUpdate)
	mux.HandleFunc("GET /api/v1/alerts/export", s.handleExport)
	mux.HandleFunc("GET /api/v1/alerts/{id}", s.handleGetAlert)
	mux.HandleFunc("PATCH /api/v1/alerts/{id}", s.handleUpdateAlert)
	mux.HandleFunc("GET /api/v1/stats", s.handleStats)

	mux.HandleFunc("GET /api/v1/blocklist", s.handleListBlocks)
	mux.HandleFunc("POST /api/v1/blocklist", s.handleAddBlock)
	mux.HandleFunc("DELETE /api/v1/blocklist/{ip}", s.handleRemoveBlock)

	mux.HandleFunc("GET /api/v1/whitelist", s.handleListWhitelist)
	mux.HandleFunc("POST /api/v1/whitelist", s.handleAddWhitelist)
	mux.HandleFunc("DELETE /api/v1/whitelist/{ip}", s.handleRemoveWhitelist)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return mux
}

// Start serves the API until the listener fails
func (s *Server) Start() error {
	log.Printf("[DASHBOARD] Starting on %s", s.port)
	return http.ListenAndServe(s.port, s.Handler())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func filterFromQuery(r *http.Request) alert.Filter {
	q := r.URL.Query()
	f := alert.Filter{
		AttackType:  q.Get("attack_type"),
		Status:      types.Status(q.Get("status")),
		Priority:    types.Priority(q.Get("priority")),
		SrcIP:       q.Get("src_ip"),
		URLContains: q.Get("url"),
		Limit:       100,
	}
	if v, err := strconv.Atoi(q.Get("min_confidence")); err == nil {
		f.MinConfidence = v
	}
	if v, err := strconv.Atoi(q.Get("max_confidence")); err == nil {
		f.MaxConfidence = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		f.Limit = v
	}
	if t, err := time.Parse(time.RFC3339, q.Get("since")); err == nil {
		f.Since = t
	}
	if t, err := time.Parse(time.RFC3339, q.Get("until")); err == nil {
		f.Until = t
	}
	return f
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.List(filterFromQuery(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	writeJSON(w, alerts)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.alerts.Get(r.PathValue("id"))
	if errors.Is(err, alert.ErrNotFound) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, a)
}

type updateRequest struct {
	Status   *types.Status   `json:"status"`
	Priority *types.Priority `json:"priority"`
	Notes    *string         `json:"notes"`
}

func (u *updateRequest) fields() (alert.UpdateFields, error) {
	f := alert.UpdateFields{Status: u.Status, Priority: u.Priority, Notes: u.Notes}
	if u.Status != nil {
		switch *u.Status {
		case types.StatusNew, types.StatusReviewed, types.StatusResolved, types.StatusFalsePositive:
		default:
			return f, errors.New("unknown status " + string(*u.Status))
		}
	}
	if u.Priority != nil {
		switch *u.Priority {
		case types.PriorityLow, types.PriorityMedium, types.PriorityHigh, types.PriorityCritical:
		default:
			return f, errors.New("unknown priority " + string(*u.Priority))
		}
	}
	return f, nil
}

func (s *Server) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	fields, err := req.fields()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	err = s.alerts.Update(id, fields)
	if errors.Is(err, alert.ErrNotFound) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	a, err := s.alerts.Get(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, a)
}

type bulkUpdateRequest struct {
	IDs []string `json:"ids"`
	updateRequest
}

func (s *Server) handleBulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if len(req.IDs) == 0 {
		http.Error(w, "ids required", http.StatusBadRequest)
		return
	}
	fields, err := req.fields()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	changed, err := s.alerts.UpdateMany(req.IDs, fields)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"updated": changed})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.alerts.Stats()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (s *Server) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	entries, err := s.blocks.ListBlocks(activeOnly)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []types.BlockEntry{}
	}
	writeJSON(w, entries)
}

type ipRequest struct {
	IP     string `json:"ip"`
	Reason string `json:"reason"`
}

func (s *Server) handleAddBlock(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		http.Error(w, "ip required", http.StatusBadRequest)
		return
	}
	if err := s.policy.Block(req.IP, req.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"ip": req.IP, "status": "blocked"})
}

func (s *Server) handleRemoveBlock(w http.ResponseWriter, r *http.Request) {
	if err := s.policy.Unblock(r.PathValue("ip")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"status": "unblocked"})
}

func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries, err := s.blocks.ListWhitelist()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []types.WhitelistEntry{}
	}
	writeJSON(w, entries)
}

func (s *Server) handleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IP == "" {
		http.Error(w, "ip required", http.StatusBadRequest)
		return
	}
	if err := s.blocks.AddWhitelist(req.IP, req.Reason); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]string{"ip": req.IP, "status": "whitelisted"})
}

func (s *Server) handleRemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	if err := s.blocks.RemoveWhitelist(r.PathValue("ip")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]string{"status": "removed"})
}
