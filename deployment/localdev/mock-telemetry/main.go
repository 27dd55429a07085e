package main

import (
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/miradorstack/secops-investigator/internal/models"
	"github.com/miradorstack/secops-investigator/internal/repo"
	"github.com/miradorstack/secops-investigator/internal/utils"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	seed := flag.Int64("seed", 1, "synthetic telemetry seed")
	failing := flag.String("fail", "", "comma separated agents that always return 503")
	latency := flag.Duration("latency", 0, "artificial per-query latency")
	flag.Parse()

	logger := utils.NewLogger("info", false, "telemetry-mock")

	var agents []models.AgentType
	for _, name := range strings.Split(*failing, ",") {
		if name = strings.TrimSpace(name); name != "" {
			agents = append(agents, models.AgentType(name))
		}
	}
	source := repo.NewSyntheticSource(*seed, repo.WithLatency(*latency))

	srv := &http.Server{
		Addr:              *addr,
		Handler:           logRequests(logger, newHandler(source, agents, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("listening", slog.String("address", *addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

func newHandler(source *repo.SyntheticSource, failing []models.AgentType, logger *slog.Logger) http.Handler {
	down := make(map[models.AgentType]struct{}, len(failing))
	for _, agent := range failing {
		down[agent] = struct{}{}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/telemetry/{agent}/query", func(w http.ResponseWriter, r *http.Request) {
		if !enforcePost(w, r) {
			return
		}
		agent := models.AgentType(r.PathValue("agent"))
		if !agent.IsValid() {
			http.Error(w, "unknown agent", http.StatusNotFound)
			return
		}
		if _, ok := down[agent]; ok {
			http.Error(w, "agent unavailable", http.StatusServiceUnavailable)
			return
		}

		var q models.TelemetryQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "invalid query body", http.StatusBadRequest)
			return
		}
		result, err := source.Query(r.Context(), agent, q)
		if err != nil {
			logger.Warn("synthetic query failed", slog.String("agent", string(agent)), slog.Any("error", err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, logger, result)
	})
	return mux
}

func enforcePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("encode error", slog.Any("error", err))
	}
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rw.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
