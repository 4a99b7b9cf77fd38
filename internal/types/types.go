package types

import "time"

// Priority is the coarse severity bucket derived from confidence
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities so floors like "high or above" can be compared
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Status is the operator-driven alert lifecycle state. Creation always
// starts at "new"; any status may be set to any other by an operator.
type Status string

const (
	StatusNew           Status = "new"
	StatusReviewed      Status = "reviewed"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// Alert is the durable unit of the system. One alert represents a
// (src_ip, url, attack_type) tuple within a dedup window; repeat triggers
// bump Occurrences and LastSeen instead of creating a new row.
type Alert struct {
	ID          string    `json:"id"`
	AttackType  string    `json:"attack_type"`
	SrcIP       string    `json:"src_ip"`
	DstIP       string    `json:"dst_ip,omitempty"`
	HTTPMethod  string    `json:"http_method,omitempty"`
	URL         string    `json:"url"`
	Params      string    `json:"params,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Raw         string    `json:"raw,omitempty"`
	Confidence  int       `json:"confidence"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	Occurrences int       `json:"occurrences"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	Notes       string    `json:"notes,omitempty"`

	// Filled asynchronously by enrichment; never required for core
	// correctness.
	Narrative  string `json:"narrative,omitempty"`
	GeoCountry string `json:"geo_country,omitempty"`
	GeoCity    string `json:"geo_city,omitempty"`
}

// BlockEntry marks an IP blocked by policy or operator. Entries are never
// deleted automatically, only deactivated.
type BlockEntry struct {
	ID          string    `json:"id"`
	IP          string    `json:"ip"`
	Reason      string    `json:"reason"`
	AutoBlocked bool      `json:"auto_blocked"`
	AttackCount int       `json:"attack_count"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// WhitelistEntry is a trusted IP that is never auto-blocked
type WhitelistEntry struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	Reason    string    `json:"reason"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// PriorityThresholds maps confidence to priority. A confidence equal to a
// threshold lands in that bucket (lower bound inclusive).
type PriorityThresholds struct {
	Critical int `yaml:"critical" validate:"gte=0,lte=100"`
	High     int `yaml:"high" validate:"gte=0,lte=100"`
	Medium   int `yaml:"medium" validate:"gte=0,lte=100"`
}

// Config represents the application configuration
type Config struct {
	Input struct {
		WebLogPath         string `yaml:"web_log_path"` // Nginx/Apache access log
		CaptureURL         string `yaml:"capture_url"`  // optional traffic sensor endpoint
		CapturePollSeconds int    `yaml:"capture_poll_seconds"`
		BatchSeconds       int    `yaml:"batch_seconds"` // flush interval for tailed lines
	} `yaml:"input"`

	Detection struct {
		WindowSeconds      int                `yaml:"window_seconds" validate:"gt=0"` // dedup window
		PriorityThresholds PriorityThresholds `yaml:"priority_thresholds"`
		SignatureFile      string             `yaml:"signature_file"` // optional YAML signature overrides
		Workers            int                `yaml:"workers" validate:"gte=0"`

		EnableLocalLLM bool   `yaml:"enable_local_llm"`
		LocalLLMUrl    string `yaml:"local_llm_url"`
		LocalLLMModel  string `yaml:"local_llm_model"`
		EnableGeo      bool   `yaml:"enable_geo"`
	} `yaml:"detection"`

	AutoBlock struct {
		Threshold     int      `yaml:"auto_block_threshold" validate:"gt=0"`
		WindowHours   int      `yaml:"auto_block_window_hours" validate:"gt=0"`
		PriorityFloor Priority `yaml:"priority_floor" validate:"oneof=low medium high critical"`
		Allowlist     []string `yaml:"allowlist"` // safe IPs that are never blocked
	} `yaml:"auto_block"`

	Notification struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notification"`

	Dashboard struct {
		Enabled bool   `yaml:"enabled"`
		Port    string `yaml:"port"`
	} `yaml:"dashboard"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Port    string `yaml:"port"`
	} `yaml:"metrics"`

	Output struct {
		DBPath       string `yaml:"db_path"`
		AuditLogPath string `yaml:"audit_log_path"`
	} `yaml:"output"`
}
