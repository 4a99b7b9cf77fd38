package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"websentry/internal/events"
)

// Record is one audit log line
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Event      string    `json:"event"`
	AlertID    string    `json:"alert_id,omitempty"`
	AttackType string    `json:"attack_type,omitempty"`
	SrcIP      string    `json:"src_ip,omitempty"`
	URL        string    `json:"url,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// Logger appends lifecycle events to a JSONL audit trail
type Logger struct {
	mu       sync.Mutex
	filePath string
}

func NewLogger(filePath string) *Logger {
	return &Logger{filePath: filePath}
}

// Run consumes the bus until the channel closes
func (l *Logger) Run(ch <-chan events.Event) {
	for evt := range ch {
		if err := l.logEvent(evt); err != nil {
			log.Printf("[AUDIT] Failed to write audit record: %v", err)
		}
	}
}

func (l *Logger) logEvent(evt events.Event) error {
	rec := Record{Timestamp: time.Now().UTC(), Event: string(evt.Type)}
	switch {
	case evt.Alert != nil:
		rec.AlertID = evt.Alert.ID
		rec.AttackType = evt.Alert.AttackType
		rec.SrcIP = evt.Alert.SrcIP
		rec.URL = evt.Alert.URL
		rec.Priority = string(evt.Alert.Priority)
	case evt.Block != nil:
		rec.SrcIP = evt.Block.IP
		rec.Reason = evt.Block.Reason
	}
	return l.write(rec)
}

func (l *Logger) write(rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	return nil
}
