package personality

import (
	"testing"

	"attune/internal/config"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	pc := config.PersonalityConfig{
		DefaultID:       "calm",
		SwitchThreshold: 0.4,
		Profiles:        config.DefaultProfiles(),
	}
	r, err := NewRegistry(pc)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	return r
}

func TestClassify_SupportiveCues(t *testing.T) {
	c := NewClassifier(testRegistry(t))
	signals := c.Classify("I'm so stressed about this deadline")
	if signals[0].ProfileID != "supportive" {
		t.Fatalf("expected supportive, got %s", signals[0].ProfileID)
	}
	if signals[0].Confidence < 0.4 {
		t.Errorf("expected confidence >= threshold, got %v", signals[0].Confidence)
	}
	if len(signals[0].Cues) != 1 || signals[0].Cues[0] != "stressed" {
		t.Errorf("unexpected cues: %v", signals[0].Cues)
	}
}

func TestClassify_PlayfulCues(t *testing.T) {
	c := NewClassifier(testRegistry(t))
	signals := c.Classify("I just got promoted!")
	if signals[0].ProfileID != "playful" {
		t.Fatalf("expected playful, got %s", signals[0].ProfileID)
	}
	if signals[0].Confidence < 0.4 {
		t.Errorf("expected confidence >= threshold, got %v", signals[0].Confidence)
	}
}

func TestClassify_NoCues(t *testing.T) {
	c := NewClassifier(testRegistry(t))
	signals := c.Classify("How do I implement binary search?")
	if len(signals) != 1 {
		t.Fatalf("expected single default signal, got %d", len(signals))
	}
	if signals[0].ProfileID != "calm" || signals[0].Confidence != 0 {
		t.Errorf("expected calm at confidence 0, got %+v", signals[0])
	}
}

func TestClassify_EmptyText(t *testing.T) {
	c := NewClassifier(testRegistry(t))
	for _, text := range []string{"", "   \n\t "} {
		signals := c.Classify(text)
		if signals[0].ProfileID != "calm" || signals[0].Confidence != 0 {
			t.Errorf("text %q: expected calm at confidence 0, got %+v", text, signals[0])
		}
	}
}

func TestClassify_TokenBoundary(t *testing.T) {
	c := NewClassifier(testRegistry(t))
	// "sad" must not match inside "Sadler"
	signals := c.Classify("I met Mr. Sadler today")
	if signals[0].Confidence != 0 {
		t.Errorf("expected no match inside a larger token, got %+v", signals[0])
	}
}

func TestClassify_TiePrefersSupportive(t *testing.T) {
	c := NewClassifier(testRegistry(t))
	// one supportive cue and one playful cue: equal confidence, the
	// higher-priority supportive profile must rank first
	signals := c.Classify("I'm stressed but it was fun")
	if signals[0].ProfileID != "supportive" {
		t.Fatalf("expected supportive to win the tie, got %s", signals[0].ProfileID)
	}
}

func TestClassify_DiminishingReturns(t *testing.T) {
	c := NewClassifier(testRegistry(t))
	one := c.Classify("I feel anxious")[0].Confidence
	three := c.Classify("I feel anxious, stressed and overwhelmed")[0].Confidence
	if one < 0.4 {
		t.Errorf("single cue should already clear the default threshold, got %v", one)
	}
	if three <= one || three >= 1 {
		t.Errorf("more cues should raise confidence below 1.0: one=%v three=%v", one, three)
	}
}
