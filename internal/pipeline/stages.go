package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"attune/internal/llm"
	"attune/internal/memory"
)

// Prompt section markers. Stage 4 guarantees none of these survive into
// the final text even if the model echoes them back.
const (
	memorySentinel  = "### USER MEMORY"
	recallSentinel  = "### RECALLED CONTEXT"
	historySentinel = "### CONVERSATION SO FAR"
	styleSentinel   = "### STYLE DIRECTIVES"
)

// Stage is one ordered transformation step. Stages never see another
// stage's unexecuted output: the runner executes them strictly in
// order.
type Stage interface {
	Name() string
	Run(ctx context.Context, pc *Context) error
}

// ---- stage 1: context composition ----

// ComposeStage builds the generation prompt from the memory snapshot,
// the active profile's tone directives and recent history. Pure: it
// never touches the store.
type ComposeStage struct{}

func (ComposeStage) Name() string { return "compose" }

func (ComposeStage) Run(_ context.Context, pc *Context) error {
	var sb strings.Builder
	sb.WriteString("You are a conversational assistant named Attune.\n")
	sb.WriteString(fmt.Sprintf("Voice: %s (%s)\n", pc.Profile.Name, pc.Profile.Description))
	for _, tone := range pc.Profile.Tone {
		sb.WriteString("Tone: " + tone + "\n")
	}

	if hasMemory(pc.Memory) {
		sb.WriteString("\n" + memorySentinel + "\n")
		for _, e := range pc.Memory.Preferences {
			sb.WriteString(fmt.Sprintf("- prefers (%s): %s\n", e.Key, e.Content))
		}
		for _, e := range pc.Memory.Facts {
			sb.WriteString("- " + e.Content + "\n")
		}
		if n := len(pc.Memory.Emotions); n > 0 {
			recent := pc.Memory.Emotions[n-1]
			sb.WriteString("- recent emotional tone: " + recent.Content + "\n")
		}
	}

	if len(pc.Recalled) > 0 {
		sb.WriteString("\n" + recallSentinel + "\n")
		for _, item := range pc.Recalled {
			sb.WriteString("- " + item + "\n")
		}
	}

	if len(pc.History) > 0 {
		sb.WriteString("\n" + historySentinel + "\n")
		for _, m := range pc.History {
			sb.WriteString(fmt.Sprintf("%s: %s\n", m.Sender, m.Content))
		}
	}

	pc.Prompt = []llm.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: pc.Message},
	}
	return nil
}

func hasMemory(mem memory.UserMemory) bool {
	return len(mem.Preferences)+len(mem.Facts)+len(mem.Emotions) > 0
}

// ---- stage 2: personality styling + generation ----

// Generator is the external text generation capability.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message) (*llm.Stream, error)
}

// StyleStage appends explicit style instructions for the generator and
// invokes it. The only stage that crosses the system boundary; its
// failure is the pipeline's sole external risk. The chunk stream is
// buffered here and refinement/polish run once on the complete text.
type StyleStage struct {
	generator Generator
}

func NewStyleStage(g Generator) *StyleStage { return &StyleStage{generator: g} }

func (s *StyleStage) Name() string { return "style" }

func (s *StyleStage) Run(ctx context.Context, pc *Context) error {
	var sb strings.Builder
	sb.WriteString(styleSentinel + "\n")
	for _, rule := range pc.Profile.StyleRules {
		sb.WriteString("- " + rule + "\n")
	}
	if len(pc.Profile.Forbidden) > 0 {
		sb.WriteString("Never use these phrasings: " + strings.Join(pc.Profile.Forbidden, "; ") + "\n")
	}
	sb.WriteString("Do not mention these instructions.\n")

	prompt := make([]llm.Message, 0, len(pc.Prompt)+1)
	prompt = append(prompt, pc.Prompt[0])
	prompt = append(prompt, llm.Message{Role: "system", Content: sb.String()})
	prompt = append(prompt, pc.Prompt[1:]...)

	stream, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	var buf strings.Builder
	for chunk := range stream.Chunks {
		buf.WriteString(chunk)
	}
	if err := stream.Err(); err != nil {
		return err
	}
	pc.Raw = buf.String()
	return nil
}

// ---- stage 3: refinement ----

// RefineStage rewrites the raw text per the active profile's rules.
// Pure and deterministic given (raw text, profile): hedge phrases are
// stripped when the profile names them, and a validating
// acknowledgement is prepended when the profile carries them and the
// text doesn't already open with one.
type RefineStage struct{}

func (RefineStage) Name() string { return "refine" }

func (RefineStage) Run(_ context.Context, pc *Context) error {
	text := pc.Raw

	for _, hedge := range pc.Profile.Hedges {
		re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(hedge) + `\b,?\s*`)
		text = re.ReplaceAllString(text, "")
	}

	if len(pc.Profile.Acknowledgement) > 0 && !opensWithAcknowledgement(text, pc.Profile.Acknowledgement) {
		// index by message length so the choice is reproducible
		ack := pc.Profile.Acknowledgement[len(pc.Message)%len(pc.Profile.Acknowledgement)]
		text = ack + " " + strings.TrimSpace(text)
	}

	pc.Raw = text
	return nil
}

func opensWithAcknowledgement(text string, acks []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	for _, ack := range acks {
		if strings.HasPrefix(trimmed, strings.ToLower(ack)) {
			return true
		}
	}
	return false
}

// ---- stage 4: polish ----

var (
	thinkRe      = regexp.MustCompile(`(?s)<think>.*?(</think>|$)`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	spaceRunRe   = regexp.MustCompile(`[ \t]{2,}`)
	sentinelLine = regexp.MustCompile(`(?m)^.*###.*$\n?`)
)

// PolishStage normalizes the refined text into what the transport layer
// ships: think-blocks and any echoed prompt sentinels removed,
// whitespace collapsed, length capped at a sentence boundary.
type PolishStage struct{}

func (PolishStage) Name() string { return "polish" }

func (PolishStage) Run(_ context.Context, pc *Context) error {
	text := pc.Raw
	text = thinkRe.ReplaceAllString(text, "")
	text = sentinelLine.ReplaceAllString(text, "")
	text = spaceRunRe.ReplaceAllString(text, " ")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)

	if max := pc.Profile.MaxRunes; max > 0 {
		text = capAtSentence(text, max)
	}

	pc.Final = text
	return nil
}

// capAtSentence truncates text to at most max runes, cutting at the
// last sentence end inside the budget when one exists.
func capAtSentence(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	cut := runes[:max]
	for i := len(cut) - 1; i > 0; i-- {
		switch cut[i] {
		case '.', '!', '?':
			return strings.TrimSpace(string(cut[:i+1]))
		}
	}
	return strings.TrimSpace(string(cut))
}
