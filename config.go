package mealmemory

import "time"

type ModelConfig struct {
	ModelID     string  `env:"MODEL_ID,required"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type MemoryConfig struct {
	DensitiesPath      string        `env:"MEMORY_DENSITIES_PATH,default=artifacts/densities.json"`
	PhrasesPath        string        `env:"MEMORY_PHRASES_PATH,default=artifacts/phrases.json"`
	MealsPath          string        `env:"MEMORY_MEALS_PATH,default=artifacts/meals.json"`
	SQLitePath         string        `env:"MEMORY_SQLITE_PATH"`
	BaseOllamaEndpoint string        `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	GeminiAPIKey       string        `env:"GEMINI_API_KEY"`
	AnalysisTimeout    time.Duration `env:"ANALYSIS_TIMEOUT,default=45s"`
	Goal               string        `env:"PROTOCOL_GOAL,default=MAINTAIN"`
	SlackWebhookURL    string        `env:"SLACK_WEBHOOK_URL"`
	SlackChannel       string        `env:"SLACK_CHANNEL,default=#meals"`
	DumpMeals          bool          `env:"DUMP_MEALS,default=false"`
	Targets            DailyTargets
}

// ProtocolGoal returns the configured goal, defaulting to MAINTAIN for unknown values.
func (c MemoryConfig) ProtocolGoal() Goal {
	switch g := Goal(c.Goal); g {
	case GoalLose, GoalGain, GoalMaintain:
		return g
	}
	return GoalMaintain
}

// S3ArtifactsConfig locates the persisted memories in S3 for the Lambda entry point.
type S3ArtifactsConfig struct {
	Bucket       string `env:"ARTIFACTS_S3_BUCKET,required"`
	DensitiesKey string `env:"ARTIFACTS_DENSITIES_S3_KEY,default=densities.json"`
	PhrasesKey   string `env:"ARTIFACTS_PHRASES_S3_KEY,default=phrases.json"`
	MealsKey     string `env:"ARTIFACTS_MEALS_S3_KEY,default=meals.json"`
}
