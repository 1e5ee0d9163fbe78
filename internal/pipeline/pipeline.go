package pipeline

import (
	"context"
	"fmt"
	"log"
)

// Pipeline runs the four stages in fixed order. Streaming decision:
// stage 2 buffers the generator's chunk stream and stages 3-4 run once
// on the complete text; the orchestrator then streams the polished
// result to the caller.
type Pipeline struct {
	stages []Stage
}

func New(generator Generator) *Pipeline {
	return &Pipeline{
		stages: []Stage{
			ComposeStage{},
			NewStyleStage(generator),
			RefineStage{},
			PolishStage{},
		},
	}
}

// Run executes the stages over pc. The first failing stage stops the
// pipeline; its error is returned as-is so callers can distinguish
// generation failures.
func (p *Pipeline) Run(ctx context.Context, pc *Context) error {
	for _, stage := range p.stages {
		if err := stage.Run(ctx, pc); err != nil {
			return fmt.Errorf("stage %s: %w", stage.Name(), err)
		}
		log.Printf("[Pipeline] stage %s done (session=%s)", stage.Name(), pc.SessionID)
	}
	return nil
}
