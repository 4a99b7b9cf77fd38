package enrich

import (
	"fmt"

	"websentry/internal/types"
)

// Narrator produces a human-readable narrative for an alert
type Narrator interface {
	Narrate(a *types.Alert) (string, error)
}

// TemplateNarrator renders a static narrative (offline/fast)
type TemplateNarrator struct{}

func NewTemplateNarrator() *TemplateNarrator {
	return &TemplateNarrator{}
}

func (n *TemplateNarrator) Narrate(a *types.Alert) (string, error) {
	return fmt.Sprintf("Detected %s from %s against %s. Confidence %d (%s), seen %d time(s).",
		a.AttackType, a.SrcIP, a.URL, a.Confidence, a.Priority, a.Occurrences), nil
}
