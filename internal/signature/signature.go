package signature

import (
	"fmt"
	"log"
	"regexp"
)

// Target names the event field a rule inspects
type Target string

const (
	TargetURL    Target = "url"    // path including query, as received
	TargetQuery  Target = "query"  // decoded query string
	TargetBody   Target = "body"   // request body when available
	TargetHeader Target = "header" // user-agent
)

// Rule is one weighted match pattern within a signature
type Rule struct {
	Pattern string   `yaml:"pattern"`
	Weight  int      `yaml:"weight"`
	Targets []Target `yaml:"targets"`

	re *regexp.Regexp
}

// Match returns the matched fragment, or "" when the value does not match
func (r *Rule) Match(value string) string {
	if r.re == nil || value == "" {
		return ""
	}
	return r.re.FindString(value)
}

// Signature is one named attack family: an ordered list of weighted match
// rules plus a base confidence contribution. Immutable after Compile.
type Signature struct {
	Name  string `yaml:"name"`
	Base  int    `yaml:"base_confidence"`
	Rules []Rule `yaml:"rules"`
}

// Compile pre-compiles all rule patterns. A malformed pattern disables
// that rule only; the signature and the rest of the set stay usable so a
// bad entry in a signature file cannot take down other detectors.
func (s *Signature) Compile() {
	compiled := s.Rules[:0]
	for _, r := range s.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			log.Printf("[SIGNATURE] %s: skipping malformed pattern %q: %v", s.Name, r.Pattern, err)
			continue
		}
		if len(r.Targets) == 0 {
			r.Targets = []Target{TargetURL, TargetQuery, TargetBody}
		}
		r.re = re
		compiled = append(compiled, r)
	}
	s.Rules = compiled
}

// Set is the immutable collection of signatures loaded at process start
type Set struct {
	signatures []Signature
}

// NewSet compiles the given signatures into a set. Signatures that end up
// with no usable rules are dropped.
func NewSet(sigs []Signature) (*Set, error) {
	out := make([]Signature, 0, len(sigs))
	seen := make(map[string]bool)
	for _, s := range sigs {
		if s.Name == "" {
			return nil, fmt.Errorf("signature with empty name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate signature %q", s.Name)
		}
		seen[s.Name] = true
		s.Compile()
		if len(s.Rules) == 0 {
			log.Printf("[SIGNATURE] %s: no usable rules, dropping", s.Name)
			continue
		}
		out = append(out, s)
	}
	return &Set{signatures: out}, nil
}

// Signatures returns the compiled signatures in load order
func (s *Set) Signatures() []Signature {
	return s.signatures
}

// Len reports the number of usable signatures
func (s *Set) Len() int {
	return len(s.signatures)
}
