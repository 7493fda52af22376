package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/joeshaw/envdecode"

	"mealmemory"
	"mealmemory/analyzer/gemini"
	"mealmemory/engine"
	"mealmemory/session"
	"mealmemory/storage"
	"mealmemory/tools"
)

// Usage: gemini <tool> [json-input]
//
//	gemini meal_log '{"description":"2 eggs on toast","want_insight":true}'
//	gemini day_summary
func main() {
	ctx := context.Background()

	var modelConfig mealmemory.ModelConfig
	if err := envdecode.Decode(&modelConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var memoryConfig mealmemory.MemoryConfig
	if err := envdecode.Decode(&memoryConfig); err != nil {
		log.Fatalf("SETUP: Failed to decode: %s", err)
	}

	var input map[string]any
	if err := json.Unmarshal([]byte(argOr(2, "{}")), &input); err != nil {
		log.Fatalf("SETUP: Tool input must be a JSON object: %s", err)
	}

	analyzer, err := gemini.NewAnalyzer(ctx, gemini.Options{
		APIKey:      memoryConfig.GeminiAPIKey,
		ModelID:     modelConfig.ModelID,
		Temperature: modelConfig.Temperature,
	})
	if err != nil {
		slog.Error("SETUP: Failed to create analyzer", "error", err)
		return
	}

	stores, closeStores, err := newStores(memoryConfig)
	if err != nil {
		slog.Error("SETUP: Failed to open memory store", "error", err)
		return
	}
	defer func() {
		if err := closeStores(); err != nil {
			slog.Error("SETUP: Failed to close memory store", "error", err)
		}
	}()

	eng := engine.New(analyzer,
		engine.WithLogger(mealmemory.NewStdoutReconciliationLogger()),
		engine.WithAnalysisTimeout(memoryConfig.AnalysisTimeout),
	)

	sess, err := session.Open(ctx, eng, stores,
		session.WithGoal(memoryConfig.ProtocolGoal()),
		session.WithTargets(memoryConfig.Targets),
	)
	if err != nil {
		slog.Error("SETUP: Failed to open session", "error", err)
		return
	}

	registry, err := tools.NewRegistry(sess)
	if err != nil {
		slog.Error("SETUP: Failed to create tool registry", "error", err)
		return
	}

	tool, err := registry.GetTool(argOr(1, "day_summary"))
	if err != nil {
		slog.Error("SETUP: Unknown tool", "error", err)
		return
	}

	output, err := tool.Run(ctx, input)
	if err != nil {
		slog.Error("FAILURE: Error running tool", "tool", tool.Name(), "error", err)
		return
	}

	if memoryConfig.DumpMeals {
		mealmemory.Dump(output)
		return
	}

	out, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		slog.Error("FAILURE: Failed to encode output", "error", err)
		return
	}
	fmt.Println(string(out))
}

// newStores uses one SQLite database when MEMORY_SQLITE_PATH is set, JSON files otherwise.
func newStores(cfg mealmemory.MemoryConfig) (session.Stores, func() error, error) {
	if cfg.SQLitePath == "" {
		return session.Stores{
			Densities: storage.NewFileState(cfg.DensitiesPath),
			Phrases:   storage.NewFileState(cfg.PhrasesPath),
			Meals:     storage.NewFileState(cfg.MealsPath),
		}, func() error { return nil }, nil
	}

	db, err := storage.NewSQLiteStore(cfg.SQLitePath)
	if err != nil {
		return session.Stores{}, nil, err
	}
	return session.Stores{
		Densities: db.State("densities"),
		Phrases:   db.State("phrases"),
		Meals:     db.State("meals"),
	}, db.Close, nil
}

func argOr(i int, def string) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return def
}
