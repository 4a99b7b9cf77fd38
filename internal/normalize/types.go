package normalize

import (
	"fmt"
	"time"
)

// Provenance records which input shape an event came from
type Provenance string

const (
	ProvenanceLog     Provenance = "log"
	ProvenanceCapture Provenance = "capture"
)

// RequestEvent is the canonical unit of analysis. It is constructed once
// per ingested record, consumed synchronously by the detector registry and
// then discarded.
type RequestEvent struct {
	SrcIP      string
	DstIP      string
	Method     string
	URL        string // path including query string
	Path       string
	Query      string // raw query string, url-decoded once
	Body       string
	UserAgent  string
	StatusCode int
	Timestamp  time.Time
	Provenance Provenance
	Raw        string
}

// CaptureRecord is a packet-derived HTTP transaction summary as supplied
// by the capture job collaborator.
type CaptureRecord struct {
	SrcIP     string    `json:"src_ip"`
	DstIP     string    `json:"dst_ip"`
	Method    string    `json:"method"`
	Host      string    `json:"host"`
	URI       string    `json:"uri"`
	UserAgent string    `json:"user_agent"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// RawRecord is one unit of raw input: either a textual access-log line or
// a capture summary. Exactly one of the two is set.
type RawRecord struct {
	Line    string
	Capture *CaptureRecord
}

// NormalizationError marks a record that could not be turned into a
// RequestEvent. It is recoverable: the record is skipped and counted,
// never fatal to the batch.
type NormalizationError struct {
	Reason string
	Raw    string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize: %s", e.Reason)
}
