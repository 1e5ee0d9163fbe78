package personality

import (
	"sort"
	"strings"
)

// Signal is one detected emotion category for a message.
type Signal struct {
	ProfileID  string
	Confidence float64
	Cues       []string
}

// Classifier maps message text to ranked emotion signals by scanning
// each profile's trigger cues. Pure: no state, no side effects.
type Classifier struct {
	registry *Registry
}

func NewClassifier(r *Registry) *Classifier {
	return &Classifier{registry: r}
}

// Classify returns signals ordered by confidence, ties broken by profile
// priority. Empty or whitespace-only text yields the default profile at
// confidence 0.
func (c *Classifier) Classify(text string) []Signal {
	if strings.TrimSpace(text) == "" {
		return []Signal{{ProfileID: c.registry.defaultID, Confidence: 0}}
	}
	lowered := strings.ToLower(text)

	var signals []Signal
	for _, p := range c.registry.profiles {
		var matched []string
		for i, re := range p.triggers {
			if re.MatchString(lowered) {
				matched = append(matched, p.cues[i])
			}
		}
		if len(matched) == 0 {
			continue
		}
		signals = append(signals, Signal{
			ProfileID:  p.ID,
			Confidence: saturate(len(matched)),
			Cues:       matched,
		})
	}
	if len(signals) == 0 {
		return []Signal{{ProfileID: c.registry.defaultID, Confidence: 0}}
	}
	// Profiles were scanned in priority order, so a stable sort keeps
	// the higher-priority profile ahead on equal confidence.
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].Confidence > signals[j].Confidence
	})
	return signals
}

// saturate maps a distinct-cue count to confidence: one match already
// scores 0.5 and further matches give diminishing returns toward 1.
func saturate(n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(n) / float64(n+1)
}
