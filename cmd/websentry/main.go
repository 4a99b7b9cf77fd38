package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	_ "github.com/mattn/go-sqlite3"

	"websentry/internal/aggregate"
	"websentry/internal/alert"
	"websentry/internal/audit"
	"websentry/internal/block"
	"websentry/internal/config"
	"websentry/internal/dashboard"
	"websentry/internal/detect"
	"websentry/internal/engine"
	"websentry/internal/enrich"
	"websentry/internal/events"
	"websentry/internal/ingest"
	"websentry/internal/metrics"
	"websentry/internal/normalize"
	"websentry/internal/signature"
	"websentry/internal/types"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCommand(os.Args[2:])
	case "analyze":
		analyzeCommand(os.Args[2:])
	case "audit":
		auditCommand(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: websentry <command> [flags]")
	fmt.Println("Commands:")
	fmt.Println("  run      Start the detection daemon")
	fmt.Println("  analyze  Run detection over a log file once and exit")
	fmt.Println("  audit    Pretty-print the audit trail")
}

// pipeline bundles everything runCommand wires together
type pipeline struct {
	cfg        *types.Config
	db         *sql.DB
	alerts     *alert.Store
	blocks     *block.Store
	blocker    *block.Engine
	aggregator *aggregate.Aggregator
	bus        *events.Bus
	eng        *engine.Engine
}

func buildPipeline(cfg *types.Config) (*pipeline, error) {
	db, err := sql.Open("sqlite3", cfg.Output.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	alerts, err := alert.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	blocks, err := block.NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	blocker := block.NewEngine(blocks, alerts, cfg)

	set, err := signature.Load(cfg.Detection.SignatureFile)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Printf("[SIGNATURE] Loaded %d signatures", set.Len())

	window := time.Duration(cfg.Detection.WindowSeconds) * time.Second
	aggregator := aggregate.NewAggregator(window)
	primeAggregator(aggregator, alerts, window)

	var narrator enrich.Narrator
	if cfg.Detection.EnableLocalLLM {
		log.Printf("[ENRICH] Local LLM enabled (%s)", cfg.Detection.LocalLLMModel)
		narrator = enrich.NewLLMNarrator(cfg.Detection.LocalLLMUrl, cfg.Detection.LocalLLMModel)
	} else {
		narrator = enrich.NewTemplateNarrator()
	}
	var geo *enrich.Geolocator
	if cfg.Detection.EnableGeo {
		geo = enrich.NewGeolocator("")
	}
	enricher := enrich.NewEnricher(alerts, narrator, geo)

	bus := events.NewBus()

	eng := engine.New(engine.Options{
		Normalizer: normalize.NewNormalizer(),
		Registry:   detect.NewRegistry(set),
		Scorer:     detect.NewScorer(cfg.Detection.PriorityThresholds),
		Aggregator: aggregator,
		Store:      alerts,
		Blocker:    blocker,
		Safety:     blocks,
		Bus:        bus,
		Enricher:   enricher,
		Allowlist:  cfg.AutoBlock.Allowlist,
		Workers:    cfg.Detection.Workers,
	})

	return &pipeline{
		cfg:        cfg,
		db:         db,
		alerts:     alerts,
		blocks:     blocks,
		blocker:    blocker,
		aggregator: aggregator,
		bus:        bus,
		eng:        eng,
	}, nil
}

// primeAggregator restores dedup windows from alerts that were live when
// the process last stopped, so a restart does not duplicate them.
func primeAggregator(a *aggregate.Aggregator, store *alert.Store, window time.Duration) {
	recent, err := store.RecentSince(time.Now().Add(-window))
	if err != nil {
		log.Printf("[STATE] Failed to load recent alerts: %v", err)
		return
	}
	state := make(map[aggregate.Key]aggregate.Entry, len(recent))
	for _, al := range recent {
		state[aggregate.Key{IP: al.SrcIP, URL: al.URL, AttackType: al.AttackType}] = aggregate.Entry{
			AlertID:     al.ID,
			Confidence:  al.Confidence,
			Occurrences: al.Occurrences,
			FirstSeen:   al.FirstSeen,
			LastSeen:    al.LastSeen,
		}
	}
	a.Restore(state)
	if len(state) > 0 {
		log.Printf("[STATE] Restored %d live dedup windows", len(state))
	}
}

func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "/etc/websentry/config.yml", "Path to config file")
	fs.Parse(args)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	fmt.Println("Starting websentry...")
	fmt.Printf("Monitoring: %s\n", cfg.Input.WebLogPath)

	p, err := buildPipeline(cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer p.db.Close()
	defer p.bus.Close()

	// Consumers on the event bus
	auditLogger := audit.NewLogger(cfg.Output.AuditLogPath)
	go auditLogger.Run(p.bus.Subscribe(256))
	if cfg.Notification.WebhookURL != "" {
		notifier := events.NewWebhookNotifier(cfg.Notification.WebhookURL)
		go notifier.Run(p.bus.Subscribe(256))
	}

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Port)
	}
	if cfg.Dashboard.Enabled {
		srv := dashboard.NewServer(p.alerts, p.blocks, p.blocker, cfg.Dashboard.Port)
		go func() {
			if err := srv.Start(); err != nil {
				log.Printf("[DASHBOARD] Server stopped: %v", err)
			}
		}()
	}

	// Ingestion sources
	tailer := ingest.NewFileTailer(cfg.Input.WebLogPath)
	lineChan, err := tailer.Start()
	if err != nil {
		log.Fatalf("Failed to start tailer: %v", err)
	}
	defer tailer.Stop()

	var captureChan <-chan normalize.RawRecord
	if cfg.Input.CaptureURL != "" {
		capture := ingest.NewCaptureSource(
			ingest.NewHTTPCaptureClient(cfg.Input.CaptureURL),
			time.Duration(cfg.Input.CapturePollSeconds)*time.Second,
		)
		ch, err := capture.Start()
		if err != nil {
			log.Printf("Warning: failed to start capture source: %v", err)
		} else {
			captureChan = ch
			defer capture.Stop()
		}
	}

	// Config file watcher for live reload
	reloadChan := watchConfig(*configPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := time.NewTicker(time.Duration(cfg.Input.BatchSeconds) * time.Second)
	defer ticker.Stop()

	var batch []normalize.RawRecord
	flush := func() {
		if len(batch) == 0 {
			return
		}
		s := p.eng.ProcessBatch(ctx, batch)
		if s.NewAlerts > 0 || s.Blocked > 0 || len(s.Errors) > 0 {
			log.Printf("[ENGINE] Batch: %d processed, %d skipped, %d new alerts, %d merged, %d blocked",
				s.Processed, s.Skipped, s.NewAlerts, s.Merged, s.Blocked)
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-lineChan:
			if !ok {
				lineChan = nil
				continue
			}
			batch = append(batch, rec)

		case rec, ok := <-captureChan:
			if !ok {
				captureChan = nil
				continue
			}
			batch = append(batch, rec)

		case <-ticker.C:
			flush()

		case <-reloadChan:
			flush()
			reload(p, *configPath)

		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				flush()
				reload(p, *configPath)
				continue
			}
			fmt.Println("\nShutting down...")
			flush()
			return
		}
	}
}

// reload re-reads the config and swaps the detection components that can
// change without restarting tailers
func reload(p *pipeline, configPath string) {
	log.Println("[CONFIG] Reloading configuration...")
	newCfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("[ERROR] Failed to reload config: %v", err)
		return
	}

	set, err := signature.Load(newCfg.Detection.SignatureFile)
	if err != nil {
		log.Printf("[ERROR] Failed to reload signatures: %v", err)
		return
	}

	p.eng.UpdateDetection(
		detect.NewRegistry(set),
		detect.NewScorer(newCfg.Detection.PriorityThresholds),
		newCfg.AutoBlock.Allowlist,
	)
	p.cfg = newCfg
	metrics.ConfigReloads.Inc()
	log.Printf("[CONFIG] Reload successful (%d signatures)", set.Len())
}

// watchConfig emits on the returned channel when the config file changes.
// Editors replace files on save, so Create counts as a change too.
func watchConfig(path string) <-chan struct{} {
	out := make(chan struct{}, 1)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("Warning: config watcher unavailable: %v", err)
		return out
	}
	if err := watcher.Add(path); err != nil {
		log.Printf("Warning: cannot watch %s: %v", path, err)
		watcher.Close()
		return out
	}

	go func() {
		for {
			select {
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					select {
					case out <- struct{}{}:
					default:
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[CONFIG] Watcher error: %v", err)
			}
		}
	}()

	return out
}

func analyzeCommand(args []string) {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (optional)")
	logPath := fs.String("log", "", "Access log file to analyze")
	dbPath := fs.String("db", "", "Database path (default from config)")
	fs.Parse(args)

	if *logPath == "" {
		fmt.Println("Error: -log is required")
		os.Exit(1)
	}

	var cfg *types.Config
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}
	if *dbPath != "" {
		cfg.Output.DBPath = *dbPath
	}

	p, err := buildPipeline(cfg)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	defer p.db.Close()
	defer p.bus.Close()

	f, err := os.Open(*logPath)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer f.Close()

	var records []normalize.RawRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		records = append(records, normalize.RawRecord{Line: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed to read log file: %v", err)
	}

	s := p.eng.ProcessBatch(context.Background(), records)

	fmt.Printf("\nAnalyzed %d records (%d skipped)\n", len(records), s.Skipped)
	fmt.Printf("Alerts: %d new, %d merged\n", s.NewAlerts, s.Merged)
	fmt.Printf("IPs blocked: %d\n", s.Blocked)
	for _, e := range s.Errors {
		fmt.Printf("  skipped: %s (%s)\n", sanitize(e.Raw), e.Reason)
	}

	alerts, err := p.alerts.List(alert.Filter{})
	if err != nil {
		log.Fatalf("Failed to list alerts: %v", err)
	}
	for _, a := range alerts {
		fmt.Printf("\n[%s] %s from %s\n", strings.ToUpper(string(a.Priority)), a.AttackType, a.SrcIP)
		fmt.Printf("  URL: %s\n", sanitize(a.URL))
		fmt.Printf("  Confidence: %d | Occurrences: %d | Status: %s\n", a.Confidence, a.Occurrences, a.Status)
	}
}

func auditCommand(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	path := fs.String("file", "audit.log", "Path to audit log")
	fs.Parse(args)

	f, err := os.Open(*path)
	if err != nil {
		fmt.Printf("Error reading audit log: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec audit.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		line := fmt.Sprintf("%s  %-14s %s", rec.Timestamp.Format(time.RFC3339), rec.Event, rec.SrcIP)
		if rec.AttackType != "" {
			line += " " + rec.AttackType
		}
		if rec.Priority != "" {
			line += " [" + rec.Priority + "]"
		}
		if rec.Reason != "" {
			line += " (" + rec.Reason + ")"
		}
		fmt.Println(sanitize(line))
	}
}

// sanitize strips control characters to prevent terminal injection from
// attacker-supplied log content
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 32 || r == '\t' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
