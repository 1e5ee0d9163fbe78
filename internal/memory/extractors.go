package memory

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// Turn is the per-message input handed to every extractor.
type Turn struct {
	UserID    string
	SessionID string
	Text      string
	// Classifier outcome for the turn; recorded by the emotion
	// extractor whether or not it changed the active personality.
	SignalProfile    string
	SignalConfidence float64
	At               time.Time
}

// Extractor derives zero or more durable entries from one turn.
// Extraction is best-effort: implementations return an error rather
// than abort the turn, and the runner isolates panics.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, turn Turn, prior UserMemory) ([]Entry, error)
}

// RunExtractors executes each registered extractor in order, collecting
// whatever they produce. A failing extractor contributes nothing; it
// never stops the others or the message flow.
func RunExtractors(ctx context.Context, extractors []Extractor, turn Turn, prior UserMemory) []Entry {
	var out []Entry
	for _, ex := range extractors {
		entries, err := safeExtract(ctx, ex, turn, prior)
		if err != nil {
			log.Printf("[Extractors] %s failed: %v", ex.Name(), err)
			continue
		}
		out = append(out, entries...)
	}
	return out
}

func safeExtract(ctx context.Context, ex Extractor, turn Turn, prior UserMemory) (entries []Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries = nil
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return ex.Extract(ctx, turn, prior)
}

// ---- preference extractor ----

type preferencePattern struct {
	re         *regexp.Regexp
	key        string  // fixed key, or "" to categorize the captured object
	confidence float64 // 0 means categorize-derived default
}

// PreferenceExtractor detects stated likes, dislikes and identity facts.
// Preference keys are small normalized categories so the latest stated
// value for a category wins.
type PreferenceExtractor struct {
	patterns []preferencePattern
}

func NewPreferenceExtractor() *PreferenceExtractor {
	return &PreferenceExtractor{
		patterns: []preferencePattern{
			{re: regexp.MustCompile(`(?i)\bmy name is ([a-z][a-z'-]{0,40})`), key: "name", confidence: 0.9},
			{re: regexp.MustCompile(`(?i)\bcall me ([a-z][a-z'-]{0,40})`), key: "name", confidence: 0.9},
			{re: regexp.MustCompile(`(?i)\bi prefer ([^.!?\n]{2,80})`), confidence: 0.8},
			{re: regexp.MustCompile(`(?i)\bi (?:really )?(?:like|love|enjoy) ([^.!?\n]{2,80})`), confidence: 0.7},
			{re: regexp.MustCompile(`(?i)\bi (?:hate|dislike|can't stand) ([^.!?\n]{2,80})`), confidence: 0.7},
		},
	}
}

func (e *PreferenceExtractor) Name() string { return "preference" }

func (e *PreferenceExtractor) Extract(_ context.Context, turn Turn, _ UserMemory) ([]Entry, error) {
	var out []Entry
	seen := make(map[string]bool)
	for _, pat := range e.patterns {
		for _, match := range pat.re.FindAllStringSubmatch(turn.Text, -1) {
			value := strings.TrimSpace(match[1])
			if value == "" {
				continue
			}
			key := pat.key
			if key == "" {
				key = categorize(value)
			}
			if seen[key] {
				continue // first statement per category wins within one turn
			}
			seen[key] = true
			out = append(out, Entry{
				Kind:       KindPreference,
				Key:        key,
				Content:    value,
				Confidence: pat.confidence,
				Meta:       map[string]string{"session": turn.SessionID},
				CreatedAt:  turn.At,
			})
		}
	}
	return out, nil
}

// categorize maps a stated preference to a small fixed category set so
// restatements land on the same key.
func categorize(value string) string {
	v := strings.ToLower(value)
	categories := []struct {
		key   string
		words []string
	}{
		{"communication", []string{"answer", "answers", "reply", "replies", "explanation", "explanations", "detail", "detailed", "short", "concise", "verbose", "bullet"}},
		{"food", []string{"pizza", "coffee", "tea", "food", "eat", "cooking", "spicy", "sushi"}},
		{"work", []string{"work", "job", "meeting", "meetings", "deadline", "code", "coding"}},
		{"entertainment", []string{"music", "movie", "movies", "game", "games", "book", "books", "show"}},
		{"learning", []string{"learn", "learning", "study", "course", "tutorial", "examples"}},
	}
	for _, c := range categories {
		for _, w := range c.words {
			if containsWord(v, w) {
				return c.key
			}
		}
	}
	return "other"
}

func containsWord(text, word string) bool {
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if tok == word {
			return true
		}
	}
	return false
}

// ---- fact extractor ----

// FactExtractor detects durable statements about the user's situation.
type FactExtractor struct {
	patterns []*regexp.Regexp
}

func NewFactExtractor() *FactExtractor {
	return &FactExtractor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(i work (?:as|at|in|for) [^.!?\n]{2,80})`),
			regexp.MustCompile(`(?i)\b(i live in [^.!?\n]{2,80})`),
			regexp.MustCompile(`(?i)\b(i(?:'m| am) (?:a|an) [^.!?\n]{2,80})`),
			regexp.MustCompile(`(?i)\b(i have (?:a|an|two|three) [^.!?\n]{2,80})`),
			regexp.MustCompile(`(?i)\b(i(?:'m| am) (?:married|single|retired|studying [^.!?\n]{2,60}))`),
		},
	}
}

func (e *FactExtractor) Name() string { return "fact" }

func (e *FactExtractor) Extract(_ context.Context, turn Turn, _ UserMemory) ([]Entry, error) {
	var out []Entry
	seen := make(map[string]bool)
	for _, re := range e.patterns {
		for _, match := range re.FindAllStringSubmatch(turn.Text, -1) {
			fact := trimClause(strings.TrimSpace(match[1]))
			norm := Normalize(fact)
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			out = append(out, Entry{
				Kind:       KindFact,
				Content:    fact,
				Confidence: 0.6,
				Meta:       map[string]string{"session": turn.SessionID},
				CreatedAt:  turn.At,
			})
		}
	}
	return out, nil
}

// trimClause cuts a captured fact at a following first-person clause so
// "I work as a nurse and I live in Lisbon" yields two separate facts
// instead of one run-on entry.
func trimClause(fact string) string {
	lower := strings.ToLower(fact)
	for _, sep := range []string{" and i ", " but i ", " so i ", ", i "} {
		if idx := strings.Index(lower, sep); idx > 0 {
			fact = fact[:idx]
			lower = lower[:idx]
		}
	}
	return strings.TrimSpace(fact)
}

// ---- emotion extractor ----

// EmotionExtractor records the turn's classified emotion as a history
// point, independent of whether the personality switched.
type EmotionExtractor struct{}

func NewEmotionExtractor() *EmotionExtractor { return &EmotionExtractor{} }

func (e *EmotionExtractor) Name() string { return "emotion" }

func (e *EmotionExtractor) Extract(_ context.Context, turn Turn, _ UserMemory) ([]Entry, error) {
	if turn.SignalProfile == "" {
		return nil, nil
	}
	return []Entry{{
		Kind:       KindEmotion,
		Content:    turn.SignalProfile,
		Confidence: turn.SignalConfidence,
		Meta: map[string]string{
			"session":  turn.SessionID,
			"observed": turn.At.UTC().Format(time.RFC3339),
		},
		CreatedAt: turn.At,
	}}, nil
}
