package enrich

import (
	"log"

	"websentry/internal/types"
)

// AlertWriter merges enrichment results back into stored alerts
type AlertWriter interface {
	SetEnrichment(id, narrative, geoCountry, geoCity string) error
}

// Enricher fills narrative and geolocation fields after an alert is
// stored. Enrichment runs off the hot path and never fails alerting: a
// dead LLM or geo endpoint degrades to the template narrative.
type Enricher struct {
	writer   AlertWriter
	narrator Narrator
	fallback Narrator
	geo      *Geolocator
}

// NewEnricher wires a primary narrator with a template fallback. geo may
// be nil to disable geolocation.
func NewEnricher(writer AlertWriter, narrator Narrator, geo *Geolocator) *Enricher {
	return &Enricher{
		writer:   writer,
		narrator: narrator,
		fallback: NewTemplateNarrator(),
		geo:      geo,
	}
}

// Enrich runs synchronously; callers launch it in a goroutine
func (e *Enricher) Enrich(a *types.Alert) {
	narrative, err := e.narrator.Narrate(a)
	if err != nil {
		log.Printf("[ENRICH] Narrator failed for %s, using template: %v", a.ID, err)
		narrative, _ = e.fallback.Narrate(a)
	}

	var country, city string
	if e.geo != nil {
		loc, err := e.geo.Lookup(a.SrcIP)
		if err != nil {
			log.Printf("[ENRICH] Geo lookup failed for %s: %v", a.SrcIP, err)
		} else {
			country, city = loc.Country, loc.City
		}
	}

	if err := e.writer.SetEnrichment(a.ID, narrative, country, city); err != nil {
		log.Printf("[ENRICH] Failed to save enrichment for %s: %v", a.ID, err)
	}
}
