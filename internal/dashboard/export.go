package dashboard

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"
)

// handleExport streams the filtered alert set as CSV or JSON
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f := filterFromQuery(r)
	f.Limit = 0 // export everything matching the filter

	alerts, err := s.alerts.List(f)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Disposition", `attachment; filename="alerts.json"`)
		writeJSON(w, alerts)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="alerts.csv"`)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	cw.Write([]string{
		"id", "attack_type", "src_ip", "http_method", "url", "params",
		"user_agent", "confidence", "priority", "status", "occurrences",
		"first_seen", "last_seen", "notes",
	})
	for _, a := range alerts {
		cw.Write([]string{
			a.ID, a.AttackType, a.SrcIP, a.HTTPMethod, a.URL, a.Params,
			a.UserAgent, strconv.Itoa(a.Confidence), string(a.Priority),
			string(a.Status), strconv.Itoa(a.Occurrences),
			a.FirstSeen.Format(time.RFC3339), a.LastSeen.Format(time.RFC3339),
			a.Notes,
		})
	}
}
