package personality

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"attune/internal/config"
)

// Profile is one loaded personality: immutable after startup.
type Profile struct {
	ID              string
	Name            string
	Description     string
	Priority        int // lower wins confidence ties
	Tone            []string
	StyleRules      []string
	Forbidden       []string
	Hedges          []string
	Acknowledgement []string
	MaxRunes        int

	triggers []*regexp.Regexp
	cues     []string
}

// Registry holds all loaded profiles in classifier evaluation order.
type Registry struct {
	profiles  []*Profile
	byID      map[string]*Profile
	defaultID string
	Threshold float64
}

// NewRegistry compiles the configured profiles. Trigger cues are matched
// case-insensitively on token boundaries.
func NewRegistry(pc config.PersonalityConfig) (*Registry, error) {
	r := &Registry{
		byID:      make(map[string]*Profile),
		defaultID: pc.DefaultID,
		Threshold: pc.SwitchThreshold,
	}
	for _, raw := range pc.Profiles {
		p := &Profile{
			ID:              raw.ID,
			Name:            raw.Name,
			Description:     raw.Description,
			Priority:        raw.Priority,
			Tone:            raw.Tone,
			StyleRules:      raw.StyleRules,
			Forbidden:       raw.Forbidden,
			Hedges:          raw.Hedges,
			Acknowledgement: raw.Acknowledgement,
			MaxRunes:        raw.MaxRunes,
		}
		for _, cue := range raw.Triggers {
			cue = strings.ToLower(strings.TrimSpace(cue))
			if cue == "" {
				continue
			}
			re, err := regexp.Compile(`\b` + regexp.QuoteMeta(cue) + `\b`)
			if err != nil {
				return nil, fmt.Errorf("profile %s: bad trigger %q: %w", raw.ID, cue, err)
			}
			p.triggers = append(p.triggers, re)
			p.cues = append(p.cues, cue)
		}
		r.profiles = append(r.profiles, p)
		r.byID[p.ID] = p
	}
	if _, ok := r.byID[r.defaultID]; !ok {
		return nil, fmt.Errorf("default profile %q not configured", r.defaultID)
	}
	// Fixed evaluation order: emotionally sensitive profiles rank ahead
	// of playful ones, the neutral default last.
	sort.SliceStable(r.profiles, func(i, j int) bool {
		return r.profiles[i].Priority < r.profiles[j].Priority
	})
	return r, nil
}

// Get returns the profile for id, or nil if unknown.
func (r *Registry) Get(id string) *Profile {
	return r.byID[id]
}

// Default returns the configured default profile.
func (r *Registry) Default() *Profile {
	return r.byID[r.defaultID]
}

// IDs returns all profile ids in evaluation order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.profiles))
	for _, p := range r.profiles {
		ids = append(ids, p.ID)
	}
	return ids
}
