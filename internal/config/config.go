package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	PostgresDSN string

	NATSURL     string
	NATSSubject string

	OllamaURL        string
	OllamaGenModel   string
	OllamaEmbedModel string

	GroqURL    string
	GroqAPIKey string
	GroqModel  string

	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	ScrollPageSize  int
	LLMRatePerSec   float64
	LLMRateBurst    int
	TuningPath      string
	MetricsEnabled  bool
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "retrieval.reindex"),

		OllamaURL:        mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:   mustEnv("OLLAMA_GEN_MODEL", "deepseek-r1:8b"),
		OllamaEmbedModel: mustEnv("OLLAMA_EMBED_MODEL", "bge-m3"),

		GroqURL:    mustEnv("GROQ_URL", "https://api.groq.com/openai/v1"),
		GroqAPIKey: mustEnv("GROQ_API_KEY", ""),
		GroqModel:  mustEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),

		QdrantURL:        mustEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     mustEnv("QDRANT_API_KEY", ""),
		QdrantCollection: mustEnv("QDRANT_COLLECTION", "myscheme_rag"),

		ScrollPageSize: mustEnvInt("SCROLL_PAGE_SIZE", 100),
		LLMRatePerSec:  mustEnvFloat("LLM_RATE_PER_SEC", 4),
		LLMRateBurst:   mustEnvInt("LLM_RATE_BURST", 4),
		TuningPath:     mustEnv("TUNING_PATH", ""),
		MetricsEnabled: mustEnvBool("METRICS_ENABLED", true),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
