package normalize

import (
	"regexp"
	"strconv"
	"time"
)

// AccessLogParser parses Nginx/Apache Combined Log Format
// Format: 1.2.3.4 - user [01/Jan/2026:12:00:00 +0000] "GET /path HTTP/1.1" 200 123 "-" "UserAgent"
type AccessLogParser struct {
	re *regexp.Regexp
}

const clfTimeLayout = "02/Jan/2006:15:04:05 -0700"

func NewAccessLogParser() *AccessLogParser {
	// Matches: IP, User, Timestamp, Method, URL, Proto, Status, Size, Referer, UA
	return &AccessLogParser{
		re: regexp.MustCompile(`^(\S+) \S+ (\S+) \[([^\]]+)\] "(\S+) (\S+) ([^"]+)" (\d+) (\S+) "([^"]*)" "([^"]*)"`),
	}
}

// Parse turns one access-log line into a RequestEvent. Unparseable lines
// return a *NormalizationError.
func (p *AccessLogParser) Parse(line string) (*RequestEvent, error) {
	matches := p.re.FindStringSubmatch(line)
	if matches == nil {
		return nil, &NormalizationError{Reason: "line does not match log format", Raw: line}
	}

	// 1=IP, 2=User, 3=Time, 4=Method, 5=URL, 6=Proto, 7=Status, 8=Size, 9=Ref, 10=UA
	ts, err := time.Parse(clfTimeLayout, matches[3])
	if err != nil {
		// Keep the record; wall clock is good enough for window math
		ts = time.Now()
	}
	statusCode, _ := strconv.Atoi(matches[7])

	ev := &RequestEvent{
		SrcIP:      matches[1],
		Method:     matches[4],
		URL:        matches[5],
		UserAgent:  matches[10],
		StatusCode: statusCode,
		Timestamp:  ts,
		Provenance: ProvenanceLog,
		Raw:        line,
	}
	splitURL(ev)
	return ev, nil
}
