package detect

import (
	"log"
	"sort"

	"websentry/internal/normalize"
	"websentry/internal/signature"
)

// RuleMatch is one (field, pattern) pair that matched
type RuleMatch struct {
	Target   signature.Target
	Pattern  string
	Fragment string
	Weight   int
}

// Finding is the result of one signature matching one request event. It
// carries every matched rule so the scorer sees the full match strength.
type Finding struct {
	Signature string
	Base      int
	Matches   []RuleMatch
	Event     normalize.RequestEvent
}

// Registry evaluates every signature independently against an event.
// Detection is a pure function of the event and the static signature set;
// evaluation order does not affect results.
type Registry struct {
	set *signature.Set
}

func NewRegistry(set *signature.Set) *Registry {
	return &Registry{set: set}
}

// Detect returns one Finding per matching signature. A single event can
// legitimately trigger several signatures; each becomes its own finding
// (and downstream, its own alert).
func (r *Registry) Detect(ev *normalize.RequestEvent) []Finding {
	var findings []Finding
	for i := range r.set.Signatures() {
		sig := &r.set.Signatures()[i]
		if f := evaluate(sig, ev); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

// evaluate runs one signature against the event. A panic inside a single
// detector is contained here so the other signatures still evaluate.
func evaluate(sig *signature.Signature, ev *normalize.RequestEvent) (f *Finding) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[DETECT] %s: detector panic isolated: %v", sig.Name, rec)
			f = nil
		}
	}()

	var matches []RuleMatch
	for i := range sig.Rules {
		rule := &sig.Rules[i]
		for _, target := range rule.Targets {
			frag := rule.Match(fieldValue(ev, target))
			if frag == "" {
				continue
			}
			matches = append(matches, RuleMatch{
				Target:   target,
				Pattern:  rule.Pattern,
				Fragment: frag,
				Weight:   rule.Weight,
			})
		}
	}
	if len(matches) == 0 {
		return nil
	}

	// Rank matched pairs by weight so the strongest evidence leads
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Weight > matches[j].Weight
	})

	return &Finding{
		Signature: sig.Name,
		Base:      sig.Base,
		Matches:   matches,
		Event:     *ev,
	}
}

func fieldValue(ev *normalize.RequestEvent, t signature.Target) string {
	switch t {
	case signature.TargetURL:
		return ev.URL
	case signature.TargetQuery:
		return ev.Query
	case signature.TargetBody:
		return ev.Body
	case signature.TargetHeader:
		return ev.UserAgent
	default:
		return ""
	}
}
