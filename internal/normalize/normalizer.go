package normalize

import (
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Normalizer turns heterogeneous raw traffic records into canonical
// RequestEvents. It performs no I/O.
type Normalizer struct {
	logParser *AccessLogParser
}

func NewNormalizer() *Normalizer {
	return &Normalizer{logParser: NewAccessLogParser()}
}

// Normalize dispatches on record shape and validates the result. A record
// without a valid source IP or URL yields a *NormalizationError.
func (n *Normalizer) Normalize(rec RawRecord) (*RequestEvent, error) {
	var ev *RequestEvent
	var err error

	switch {
	case rec.Capture != nil:
		ev, err = n.fromCapture(rec.Capture)
	case strings.TrimSpace(rec.Line) != "":
		ev, err = n.logParser.Parse(rec.Line)
	default:
		return nil, &NormalizationError{Reason: "empty record"}
	}
	if err != nil {
		return nil, err
	}

	if _, perr := netip.ParseAddr(ev.SrcIP); perr != nil {
		return nil, &NormalizationError{Reason: "invalid source ip: " + ev.SrcIP, Raw: ev.Raw}
	}
	if ev.URL == "" {
		return nil, &NormalizationError{Reason: "empty url", Raw: ev.Raw}
	}
	return ev, nil
}

func (n *Normalizer) fromCapture(rec *CaptureRecord) (*RequestEvent, error) {
	if rec.SrcIP == "" {
		return nil, &NormalizationError{Reason: "capture record missing src_ip"}
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	raw := rec.Method + " " + rec.URI
	if rec.Body != "" {
		raw += " " + rec.Body
	}
	ev := &RequestEvent{
		SrcIP:      rec.SrcIP,
		DstIP:      rec.DstIP,
		Method:     rec.Method,
		URL:        rec.URI,
		Body:       rec.Body,
		UserAgent:  rec.UserAgent,
		Timestamp:  ts,
		Provenance: ProvenanceCapture,
		Raw:        raw,
	}
	splitURL(ev)
	return ev, nil
}

// splitURL separates path and query and url-decodes the query once so
// signature rules see `' OR '1'='1` rather than `%27%20OR...`. Decoding
// failures keep the raw form; detection still sees encoded variants via
// the url target.
func splitURL(ev *RequestEvent) {
	ev.Path = ev.URL
	if i := strings.IndexByte(ev.URL, '?'); i >= 0 {
		ev.Path = ev.URL[:i]
		q := ev.URL[i+1:]
		if dec, err := url.QueryUnescape(strings.ReplaceAll(q, "+", " ")); err == nil {
			ev.Query = dec
		} else {
			ev.Query = q
		}
	}
}
