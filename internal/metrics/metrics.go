package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websentry_events_processed_total",
		Help: "Traffic records processed by the detection pipeline",
	})

	RecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websentry_records_skipped_total",
		Help: "Records skipped before detection, by reason",
	}, []string{"reason"})

	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websentry_alerts_generated_total",
		Help: "New alerts created, by priority",
	}, []string{"priority"})

	AlertsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websentry_alerts_merged_total",
		Help: "Repeat triggers merged into existing alerts",
	})

	IPsBlocked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websentry_ips_blocked_total",
		Help: "IPs blocked by the auto-block policy",
	})

	StoreRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websentry_store_retries_total",
		Help: "Alert store writes that needed a retry",
	})

	ConfigReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "websentry_config_reloads_total",
		Help: "Configuration reloads applied",
	})
)

// StartServer exposes /metrics on the given address
func StartServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.Printf("[METRICS] Serving on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Printf("[METRICS] Server stopped: %v", err)
		}
	}()
}
