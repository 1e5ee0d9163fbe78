package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	"unicode"

	"attune/internal/chat"
	"attune/internal/memory"
	"attune/internal/personality"
	"attune/internal/pipeline"
)

// Degradation warnings attached to a reply. These never block the
// reply; only generation failures do.
const (
	WarnMemoryUnavailable  = "memory_unavailable"
	WarnClassifierDefault  = "classifier_default"
	WarnRecallUnavailable  = "recall_unavailable"
	WarnSessionUnavailable = "session_state_unavailable"
)

const historyWindow = 20

// Request is one incoming message.
type Request struct {
	UserID    string
	SessionID string
	Text      string
	Override  *personality.Override
}

// Reply streams the polished response. Chunks closes when the reply is
// fully delivered or the caller's context ends.
type Reply struct {
	Chunks      <-chan string
	Personality string
	Warnings    []string
}

// Classifier ranks emotion signals for a message.
type Classifier interface {
	Classify(text string) []personality.Signal
}

// SessionStore persists per-session personality state between turns.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (personality.State, bool, error)
	Put(ctx context.Context, sessionID string, state personality.State) error
}

// HistoryStore persists conversation turns.
type HistoryStore interface {
	Append(ctx context.Context, userID, sessionID, sender, content, personality string) error
	Recent(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
}

// Recaller surfaces semantically similar past facts; optional.
type Recaller interface {
	Recall(ctx context.Context, userID, text string) ([]string, error)
	Index(ctx context.Context, userID string, entries []memory.Entry) error
}

// Orchestrator sequences classification, selection, extraction and the
// response pipeline for each incoming message, one session at a time.
type Orchestrator struct {
	Registry    *personality.Registry
	Classifier  Classifier
	Selector    *personality.Selector
	Store       memory.Store
	Extractors  []memory.Extractor
	Pipeline    *pipeline.Pipeline
	Sessions    SessionStore
	History     HistoryStore
	Recall      Recaller // nil disables semantic recall
	Timeout     time.Duration
	ContextSize int // token budget for the history window; 0 = default

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// sessionLock returns the mutex serializing one session's messages.
// A message arriving while another is in flight queues on it rather
// than being rejected.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.locks == nil {
		o.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := o.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sessionID] = lock
	}
	return lock
}

// Process handles one message end to end. A non-nil error is always a
// generation failure (or an expired ceiling, which looks the same to
// the caller); every other problem degrades into Reply.Warnings.
// Personality state and extracted memory survive a failed generation
// for the next turn.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Reply, error) {
	lock := o.sessionLock(req.SessionID)
	lock.Lock()
	streaming := false
	defer func() {
		if !streaming {
			lock.Unlock()
		}
	}()

	var warnings []string
	now := time.Now()

	// Classification and the prior-memory read only need the raw
	// message, so they run concurrently. Extraction follows: the
	// emotion extractor records the classified signal.
	var (
		signals     []personality.Signal
		clsDegraded bool
		prior       memory.UserMemory
		memErr      error
		wg          sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		signals, clsDegraded = o.classify(req.Text)
	}()
	go func() {
		defer wg.Done()
		prior, memErr = o.Store.Get(ctx, req.UserID)
	}()
	wg.Wait()

	if memErr != nil {
		log.Printf("[Engine] memory read degraded for user %s: %v", req.UserID, memErr)
		warnings = append(warnings, WarnMemoryUnavailable)
		prior = memory.UserMemory{UserID: req.UserID}
	}
	if clsDegraded || strings.TrimSpace(req.Text) == "" {
		warnings = append(warnings, WarnClassifierDefault)
	}

	state := o.loadState(ctx, req.SessionID, &warnings, now)
	state = o.Selector.Select(state, signals, req.Override, now)
	if err := o.Sessions.Put(ctx, req.SessionID, state); err != nil {
		log.Printf("[Engine] session state write failed for %s: %v", req.SessionID, err)
		warnings = append(warnings, WarnSessionUnavailable)
	}

	profile := o.Registry.Get(state.Current)
	if profile == nil {
		profile = o.Registry.Default()
	}

	// Extraction is best-effort and must commit even if the caller
	// disconnects mid-stream, so it runs detached from ctx.
	top := signals[0]
	turn := memory.Turn{
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		Text:             req.Text,
		SignalProfile:    top.ProfileID,
		SignalConfidence: top.Confidence,
		At:               now,
	}
	extractCtx := context.WithoutCancel(ctx)
	extractDone := make(chan struct{})
	go func() {
		defer close(extractDone)
		entries := memory.RunExtractors(extractCtx, o.Extractors, turn, prior)
		if len(entries) == 0 {
			return
		}
		if memErr != nil {
			log.Printf("[Engine] store degraded, dropping %d extracted entries this turn", len(entries))
			return
		}
		if err := o.Store.Upsert(extractCtx, req.UserID, entries); err != nil {
			log.Printf("[Engine] memory upsert failed for user %s: %v", req.UserID, err)
			return
		}
		if o.Recall != nil {
			if err := o.Recall.Index(extractCtx, req.UserID, entries); err != nil {
				log.Printf("[Engine] recall indexing failed: %v", err)
			}
		}
	}()

	var recalled []string
	if o.Recall != nil {
		items, err := o.Recall.Recall(ctx, req.UserID, req.Text)
		if err != nil {
			log.Printf("[Engine] recall degraded: %v", err)
			warnings = append(warnings, WarnRecallUnavailable)
		} else {
			recalled = items
		}
	}

	history, err := o.History.Recent(ctx, req.SessionID, historyWindow)
	if err != nil {
		log.Printf("[Engine] history read failed for %s: %v", req.SessionID, err)
	}
	contextSize := o.ContextSize
	if contextSize == 0 {
		contextSize = 2048
	}
	history = chat.BuildSlidingWindow(history, contextSize)

	pc := &pipeline.Context{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Message:   req.Text,
		Signal:    top,
		Profile:   profile,
		Memory:    prior,
		Recalled:  recalled,
		History:   history,
	}

	runCtx := ctx
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	if err := o.Pipeline.Run(runCtx, pc); err != nil {
		<-extractDone // extraction still commits before we give up
		return nil, err
	}
	<-extractDone

	histCtx := context.WithoutCancel(ctx)
	if err := o.History.Append(histCtx, req.UserID, req.SessionID, "user", req.Text, ""); err != nil {
		log.Printf("[Engine] history append failed: %v", err)
	}
	if err := o.History.Append(histCtx, req.UserID, req.SessionID, "bot", pc.Final, profile.ID); err != nil {
		log.Printf("[Engine] history append failed: %v", err)
	}

	chunks := make(chan string)
	streaming = true
	go func() {
		defer lock.Unlock()
		defer close(chunks)
		emitChunks(ctx, chunks, pc.Final)
	}()

	return &Reply{
		Chunks:      chunks,
		Personality: profile.ID,
		Warnings:    warnings,
	}, nil
}

// ApplyOverride forces or clears a session's personality outside the
// message flow. Forcing pins the profile until cleared.
func (o *Orchestrator) ApplyOverride(ctx context.Context, sessionID string, ov personality.Override) (personality.State, error) {
	if !ov.Clear && o.Registry.Get(ov.ProfileID) == nil {
		return personality.State{}, fmt.Errorf("unknown personality %q", ov.ProfileID)
	}
	lock := o.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	state, ok, err := o.Sessions.Get(ctx, sessionID)
	if err != nil {
		return personality.State{}, err
	}
	if !ok {
		state = o.Selector.InitialState(now)
	}
	state = o.Selector.Select(state, nil, &ov, now)
	if err := o.Sessions.Put(ctx, sessionID, state); err != nil {
		return personality.State{}, err
	}
	return state, nil
}

// SessionState reports a session's current personality state, minting
// the initial state for sessions never seen before.
func (o *Orchestrator) SessionState(ctx context.Context, sessionID string) (personality.State, error) {
	state, ok, err := o.Sessions.Get(ctx, sessionID)
	if err != nil {
		return personality.State{}, err
	}
	if !ok {
		return o.Selector.InitialState(time.Now()), nil
	}
	return state, nil
}

// classify never lets a classifier fault abort the turn: a panic
// degrades to the default profile at confidence 0.
func (o *Orchestrator) classify(text string) (signals []personality.Signal, degraded bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Engine] classifier panic recovered: %v", r)
			signals = []personality.Signal{{ProfileID: o.Registry.Default().ID}}
			degraded = true
		}
	}()
	return o.Classifier.Classify(text), false
}

func (o *Orchestrator) loadState(ctx context.Context, sessionID string, warnings *[]string, now time.Time) personality.State {
	state, ok, err := o.Sessions.Get(ctx, sessionID)
	if err != nil {
		log.Printf("[Engine] session state read failed for %s: %v", sessionID, err)
		*warnings = append(*warnings, WarnSessionUnavailable)
		return o.Selector.InitialState(now)
	}
	if !ok {
		return o.Selector.InitialState(now)
	}
	return state
}

const chunkRunes = 48

// emitChunks streams text in word-boundary slices, stopping early if
// the caller's context ends. Slicing preserves the original whitespace,
// so concatenating the chunks reproduces the text byte for byte,
// newlines and code fences included.
func emitChunks(ctx context.Context, out chan<- string, text string) {
	runes := []rune(text)
	for start := 0; start < len(runes); {
		end := start + chunkRunes
		if end >= len(runes) {
			end = len(runes)
		} else {
			// never cut inside a word
			for end < len(runes) && !unicode.IsSpace(runes[end]) {
				end++
			}
		}
		select {
		case out <- string(runes[start:end]):
		case <-ctx.Done():
			return
		}
		start = end
	}
}
