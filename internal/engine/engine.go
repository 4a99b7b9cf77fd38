package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"websentry/internal/aggregate"
	"websentry/internal/block"
	"websentry/internal/detect"
	"websentry/internal/events"
	"websentry/internal/metrics"
	"websentry/internal/normalize"
	"websentry/internal/types"
)

// AlertStore is the persistence surface the pipeline needs
type AlertStore interface {
	Create(a *types.Alert) error
	Bump(id string, occurrences, confidence int, priority types.Priority, lastSeen time.Time) error
}

// Blocker runs the auto-block policy after alert activity
type Blocker interface {
	Evaluate(ip string) (*block.Decision, error)
}

// SafetyList answers whether an IP is operator-trusted or already
// blocked; both skip detection
type SafetyList interface {
	IsWhitelisted(ip string) (bool, error)
	IsBlocked(ip string) (bool, error)
}

// Enricher fills narrative and geo fields asynchronously
type Enricher interface {
	Enrich(a *types.Alert)
}

// RecordError ties a failed record to its reason
type RecordError struct {
	Raw    string
	Reason string
}

// BatchSummary reports what one batch produced
type BatchSummary struct {
	Processed int
	Skipped   int
	NewAlerts int
	Merged    int
	Blocked   int
	Errors    []RecordError
}

const (
	storeAttempts = 3
	storeBackoff  = 50 * time.Millisecond
)

// Engine runs the detection pipeline: normalize, detect, score,
// aggregate, persist, announce, then evaluate the block policy. A bad
// record or a failed collaborator never stops the batch; errors are
// counted and logged.
type Engine struct {
	normalizer *normalize.Normalizer
	registry   *detect.Registry
	scorer     *detect.Scorer
	aggregator *aggregate.Aggregator
	store      AlertStore
	blocker    Blocker
	safety     SafetyList
	bus        *events.Bus
	enricher   Enricher
	allowlist  map[string]bool
	workers    int
}

type Options struct {
	Normalizer *normalize.Normalizer
	Registry   *detect.Registry
	Scorer     *detect.Scorer
	Aggregator *aggregate.Aggregator
	Store      AlertStore
	Blocker    Blocker
	Safety     SafetyList
	Bus        *events.Bus
	Enricher   Enricher
	Allowlist  []string
	Workers    int
}

func New(opts Options) *Engine {
	allow := make(map[string]bool, len(opts.Allowlist))
	for _, ip := range opts.Allowlist {
		allow[ip] = true
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		normalizer: opts.Normalizer,
		registry:   opts.Registry,
		scorer:     opts.Scorer,
		aggregator: opts.Aggregator,
		store:      opts.Store,
		blocker:    opts.Blocker,
		safety:     opts.Safety,
		bus:        opts.Bus,
		enricher:   opts.Enricher,
		allowlist:  allow,
		workers:    workers,
	}
}

// UpdateDetection swaps the detection components after a config reload.
// Must not run concurrently with ProcessBatch; the run loop calls it
// between batches.
func (e *Engine) UpdateDetection(registry *detect.Registry, scorer *detect.Scorer, allowlist []string) {
	e.registry = registry
	e.scorer = scorer
	allow := make(map[string]bool, len(allowlist))
	for _, ip := range allowlist {
		allow[ip] = true
	}
	e.allowlist = allow
}

// ProcessBatch fans records out to the worker pool and waits for the
// batch to drain. Cancelling the context stops dispatch; in-flight
// records finish.
func (e *Engine) ProcessBatch(ctx context.Context, records []normalize.RawRecord) BatchSummary {
	var (
		mu      sync.Mutex
		summary BatchSummary
	)

	work := make(chan normalize.RawRecord)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range work {
				res := e.processOne(rec)
				mu.Lock()
				summary.Processed += res.Processed
				summary.Skipped += res.Skipped
				summary.NewAlerts += res.NewAlerts
				summary.Merged += res.Merged
				summary.Blocked += res.Blocked
				summary.Errors = append(summary.Errors, res.Errors...)
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, rec := range records {
		select {
		case work <- rec:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(work)
	wg.Wait()

	return summary
}

func (e *Engine) processOne(rec normalize.RawRecord) BatchSummary {
	var s BatchSummary

	ev, err := e.normalizer.Normalize(rec)
	if err != nil {
		var nerr *normalize.NormalizationError
		reason := "malformed"
		if errors.As(err, &nerr) {
			reason = nerr.Reason
		}
		metrics.RecordsSkipped.WithLabelValues("malformed").Inc()
		s.Skipped++
		s.Errors = append(s.Errors, RecordError{Raw: rec.Line, Reason: reason})
		return s
	}

	metrics.EventsProcessed.Inc()
	s.Processed++

	if reason := e.skipReason(ev.SrcIP); reason != "" {
		metrics.RecordsSkipped.WithLabelValues(reason).Inc()
		s.Skipped++
		return s
	}

	findings := e.registry.Detect(ev)
	if len(findings) == 0 {
		return s
	}

	for _, f := range findings {
		created, merged := e.persistFinding(ev, f)
		s.NewAlerts += created
		s.Merged += merged
	}

	s.Blocked += e.evaluateBlock(ev.SrcIP)
	return s
}

// skipReason reports why a source is excluded from detection, or "".
// Trusted sources never alert; already-blocked sources are pure noise.
// A broken safety lookup fails open so it cannot silence alerting.
func (e *Engine) skipReason(ip string) string {
	if e.allowlist[ip] {
		return "trusted"
	}
	if e.safety == nil {
		return ""
	}
	if ok, err := e.safety.IsWhitelisted(ip); err != nil {
		log.Printf("[ENGINE] Whitelist check failed for %s: %v", ip, err)
	} else if ok {
		return "trusted"
	}
	if ok, err := e.safety.IsBlocked(ip); err != nil {
		log.Printf("[ENGINE] Blocklist check failed for %s: %v", ip, err)
	} else if ok {
		return "blocked"
	}
	return ""
}

func (e *Engine) persistFinding(ev *normalize.RequestEvent, f detect.Finding) (created, merged int) {
	confidence, _ := e.scorer.Score(f)
	res := e.aggregator.Ingest(ev.SrcIP, ev.URL, f.Signature, confidence, ev.Timestamp)

	if res.IsNew {
		alert := &types.Alert{
			ID:          res.AlertID,
			AttackType:  f.Signature,
			SrcIP:       ev.SrcIP,
			DstIP:       ev.DstIP,
			HTTPMethod:  ev.Method,
			URL:         ev.URL,
			Params:      ev.Query,
			UserAgent:   ev.UserAgent,
			Raw:         ev.Raw,
			Confidence:  res.Confidence,
			Priority:    e.scorer.Priority(res.Confidence),
			Status:      types.StatusNew,
			Occurrences: res.Occurrences,
			FirstSeen:   res.FirstSeen,
			LastSeen:    res.LastSeen,
		}
		if err := e.withRetry(func() error { return e.store.Create(alert) }); err != nil {
			log.Printf("[ENGINE] Failed to store alert %s: %v", alert.ID, err)
			return 0, 0
		}
		metrics.AlertsGenerated.WithLabelValues(string(alert.Priority)).Inc()
		if e.bus != nil {
			e.bus.Publish(events.Event{Type: events.AlertCreated, Alert: alert})
		}
		if e.enricher != nil {
			go e.enricher.Enrich(alert)
		}
		return 1, 0
	}

	priority := e.scorer.Priority(res.Confidence)
	err := e.withRetry(func() error {
		return e.store.Bump(res.AlertID, res.Occurrences, res.Confidence, priority, res.LastSeen)
	})
	if err != nil {
		log.Printf("[ENGINE] Failed to bump alert %s: %v", res.AlertID, err)
		return 0, 0
	}
	metrics.AlertsMerged.Inc()
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.AlertUpdated, Alert: &types.Alert{
			ID:          res.AlertID,
			AttackType:  f.Signature,
			SrcIP:       ev.SrcIP,
			URL:         ev.URL,
			Confidence:  res.Confidence,
			Priority:    priority,
			Occurrences: res.Occurrences,
			FirstSeen:   res.FirstSeen,
			LastSeen:    res.LastSeen,
		}})
	}
	return 0, 1
}

// evaluateBlock runs the policy once per record that produced findings.
// Policy failures are logged, never propagated: blocking is downstream
// of alerting and must not suppress it.
func (e *Engine) evaluateBlock(ip string) int {
	if e.blocker == nil {
		return 0
	}
	d, err := e.blocker.Evaluate(ip)
	if err != nil {
		log.Printf("[ENGINE] Block evaluation failed for %s: %v", ip, err)
		return 0
	}
	if !d.Blocked {
		return 0
	}
	metrics.IPsBlocked.Inc()
	if e.bus != nil {
		e.bus.Publish(events.Event{Type: events.IPBlocked, Block: &types.BlockEntry{
			IP:          ip,
			Reason:      d.Reason,
			AutoBlocked: true,
			AttackCount: d.AlertCount,
			Active:      true,
		}})
	}
	return 1
}

// withRetry retries transient store failures with a short linear backoff
func (e *Engine) withRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= storeAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < storeAttempts {
			metrics.StoreRetries.Inc()
			time.Sleep(time.Duration(attempt) * storeBackoff)
		}
	}
	return err
}
