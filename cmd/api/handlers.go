package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/bugbot/engine/answer"
	"github.com/WessleyAI/bugbot/engine/domain"
	"github.com/WessleyAI/bugbot/pkg/config"
	"github.com/WessleyAI/bugbot/pkg/metrics"
	"github.com/WessleyAI/bugbot/pkg/mid"
)

const maxBodyBytes = 64 << 10

// answerService is the part of *answer.Service the handlers call.
type answerService interface {
	Answer(ctx context.Context, query string, topK int) (answer.Decision, error)
	Reseed(ctx context.Context) (int, error)
}

func newRouter(svc answerService, reg *metrics.Registry, cfg config.Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", handleQuery(svc, logger))
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("POST /initialize_db", handleInitializeDB(svc, logger))
	mux.Handle("GET /metrics", reg.Handler())

	return mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("bugbot-api"),
		mid.CORS(cfg.CORSOrigin),
		mid.RateLimit(queryLimiter(cfg, logger), "/query"),
	)
}

// queryLimiter builds the /query limiter. A zero burst would refuse every
// request, so unusable settings fall back to the defaults.
func queryLimiter(cfg config.Config, logger *slog.Logger) *rate.Limiter {
	limit, burst := cfg.QueryRateLimit, cfg.QueryRateBurst
	if !(limit > 0) || burst < 1 {
		logger.Warn("unusable query rate limit, using defaults",
			"limit", limit, "burst", burst,
			"default_limit", config.DefaultQueryRateLimit, "default_burst", config.DefaultQueryRateBurst)
		limit, burst = config.DefaultQueryRateLimit, config.DefaultQueryRateBurst
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// QueryRequest is the JSON body for POST /query.
type QueryRequest struct {
	Query string `json:"query"`
}

func handleQuery(svc answerService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := domain.ValidateQuery(req.Query); err != nil {
			writeDetail(w, http.StatusBadRequest, domain.ErrEmptyQuery.Error())
			return
		}

		d, err := svc.Answer(r.Context(), req.Query, 1)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, d)
		case errors.Is(err, domain.ErrEmptyQuery):
			writeDetail(w, http.StatusBadRequest, domain.ErrEmptyQuery.Error())
		default:
			logger.Error("query failed", "err", err)
			writeDetail(w, http.StatusInternalServerError, "internal server error")
		}
	}
}

// InitializeResponse is the JSON body returned by a successful reseed.
type InitializeResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Records int    `json:"records"`
}

func handleInitializeDB(svc answerService, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := svc.Reseed(r.Context())
		if err != nil {
			logger.Error("reseed failed", "err", err)
			writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("database initialization failed: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, InitializeResponse{
			Status:  "success",
			Message: fmt.Sprintf("catalog reseeded with %d records", n),
			Records: n,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	writeJSON(w, code, map[string]string{"detail": detail})
}
