package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"attune/internal/api"
	"attune/internal/chat"
	"attune/internal/config"
	"attune/internal/db"
	"attune/internal/engine"
	"attune/internal/llm"
	"attune/internal/memory"
	"attune/internal/personality"
	"attune/internal/pipeline"
	redisdb "attune/internal/redis"
	"attune/internal/session"
)

func main() {
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := db.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "DB init error: %v\n", err)
		os.Exit(1)
	}
	rdb := redisdb.NewClient(cfg)

	registry, err := personality.NewRegistry(cfg.Personality)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Personality config error: %v\n", err)
		os.Exit(1)
	}

	var extractors []memory.Extractor
	if cfg.Extractors.Preference {
		extractors = append(extractors, memory.NewPreferenceExtractor())
	}
	if cfg.Extractors.Fact {
		extractors = append(extractors, memory.NewFactExtractor())
	}
	if cfg.Extractors.Emotion {
		extractors = append(extractors, memory.NewEmotionExtractor())
	}

	timeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	client := llm.NewClient(cfg.LLM.URL, cfg.LLM.Model, timeout)

	store := memory.NewGormStore(db.DB)
	history := chat.NewHistory(db.DB)
	sessions := session.NewStore(rdb, 0)

	eng := &engine.Orchestrator{
		Registry:    registry,
		Classifier:  personality.NewClassifier(registry),
		Selector:    personality.NewSelector(registry),
		Store:       store,
		Extractors:  extractors,
		Pipeline:    pipeline.New(client),
		Sessions:    sessions,
		History:     history,
		Timeout:     timeout,
		ContextSize: cfg.LLM.ContextSize,
	}

	if cfg.Recall.Enabled {
		embedder := memory.NewEmbedder(cfg.Recall.EmbeddingURL)
		recaller, err := memory.NewRecaller(
			cfg.Recall.QdrantURL,
			cfg.Recall.Collection,
			cfg.Recall.APIKey,
			embedder,
			cfg.Recall.Limit,
		)
		if err != nil {
			log.Printf("[Main] WARNING: Failed to initialize semantic recall: %v", err)
		} else {
			eng.Recall = recaller
			log.Printf("[Main] Semantic recall enabled (collection: %s)", cfg.Recall.Collection)
		}
	} else {
		log.Printf("[Main] Semantic recall disabled in config")
	}

	deps := api.Deps{
		Engine:   eng,
		Registry: registry,
		Memory:   store,
		Sessions: sessions,
		History:  history,
	}

	r := api.SetupRouter(cfg, deps)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Starting server on %s%s\n", addr, cfg.Server.Subpath)
	if err := r.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
