// Package config loads service settings from the environment.
package config

import (
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/bugbot/engine/domain"
)

// Query rate limit defaults, in requests per second and burst size.
const (
	DefaultQueryRateLimit = 10
	DefaultQueryRateBurst = 20
)

// Config holds all environment-based configuration.
type Config struct {
	Port string

	OllamaURL       string
	ModelVectorizer string

	QdrantURL        string
	QdrantAPIKey     string
	QdrantTLS        bool
	QdrantCloud      string
	QdrantRegion     string
	QdrantCollection string
	QdrantNamespace  string

	WebhookURL    string
	NATSURL       string
	EventsSubject string

	ConfidenceThreshold float64
	EmbedTimeout        time.Duration
	SearchTimeout       time.Duration
	SinkTimeout         time.Duration

	CORSOrigin     string
	QueryRateLimit float64
	QueryRateBurst int
}

// Load reads the environment. Unparsable numeric values are logged and
// replaced by their defaults; empty required values are left for Validate.
func Load(logger *slog.Logger) Config {
	return load(os.Getenv, logger)
}

func load(getenv func(string) string, logger *slog.Logger) Config {
	if logger == nil {
		logger = slog.Default()
	}
	e := env{get: getenv, log: logger}
	return Config{
		Port:             e.str("PORT", "8000"),
		OllamaURL:        e.str("OLLAMA_URL", "http://localhost:11434"),
		ModelVectorizer:  e.str("MODEL_VECTORIZER", "nomic-embed-text"),
		QdrantURL:        e.str("QDRANT_URL", "localhost:6334"),
		QdrantAPIKey:     e.str("QDRANT_API_KEY", ""),
		QdrantTLS:        e.boolean("QDRANT_TLS", false),
		QdrantCloud:      e.str("QDRANT_CLOUD", "aws"),
		QdrantRegion:     e.str("QDRANT_REGION", "us-east-1"),
		QdrantCollection: e.str("QDRANT_COLLECTION", "game-bugs-index"),
		QdrantNamespace:  e.str("QDRANT_NAMESPACE", "game-bugs"),
		WebhookURL:       e.str("N8N_WEBHOOK_URL", "http://n8n:5678/webhook/game-bugs-chatbot/query-log"),
		NATSURL:          e.str("NATS_URL", ""),
		EventsSubject:    e.str("EVENTS_SUBJECT", "bugbot.events"),

		ConfidenceThreshold: e.float("CONFIDENCE_THRESHOLD", 0.65, cosine),
		EmbedTimeout:        e.duration("EMBED_TIMEOUT", 10*time.Second),
		SearchTimeout:       e.duration("SEARCH_TIMEOUT", 5*time.Second),
		SinkTimeout:         e.duration("SINK_TIMEOUT", 3*time.Second),

		CORSOrigin:     e.str("CORS_ORIGIN", "*"),
		QueryRateLimit: e.float("QUERY_RATE_LIMIT", DefaultQueryRateLimit, positive),
		QueryRateBurst: e.integer("QUERY_RATE_BURST", DefaultQueryRateBurst, 1),
	}
}

// Validate reports every required setting that is empty, in one error.
func (c Config) Validate() error {
	required := []struct{ name, value string }{
		{"OLLAMA_URL", c.OllamaURL},
		{"MODEL_VECTORIZER", c.ModelVectorizer},
		{"QDRANT_URL", c.QdrantURL},
		{"QDRANT_API_KEY", c.QdrantAPIKey},
		{"QDRANT_CLOUD", c.QdrantCloud},
		{"QDRANT_REGION", c.QdrantRegion},
		{"QDRANT_COLLECTION", c.QdrantCollection},
		{"QDRANT_NAMESPACE", c.QdrantNamespace},
		{"N8N_WEBHOOK_URL", c.WebhookURL},
	}
	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return &domain.ConfigError{Missing: missing}
	}
	return nil
}

type env struct {
	get func(string) string
	log *slog.Logger
}

func (e env) str(key, fallback string) string {
	if v := e.get(key); v != "" {
		return v
	}
	return fallback
}

// Range checks for float settings. NaN fails both.
func cosine(f float64) bool   { return f >= -1 && f <= 1 }
func positive(f float64) bool { return f > 0 && !math.IsInf(f, 1) }

func (e env) float(key string, fallback float64, ok func(float64) bool) float64 {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || !ok(f) {
		e.invalid(key, v, fallback)
		return fallback
	}
	return f
}

func (e env) integer(key string, fallback, least int) int {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < least {
		e.invalid(key, v, fallback)
		return fallback
	}
	return n
}

func (e env) boolean(key string, fallback bool) bool {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.invalid(key, v, fallback)
		return fallback
	}
	return b
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	v := e.get(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		e.invalid(key, v, fallback)
		return fallback
	}
	return d
}

func (e env) invalid(key, value string, fallback any) {
	e.log.Warn("invalid config value, using default", "key", key, "value", value, "default", fallback)
}
