// cmd/search-service/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"search-orchestrator/internal/common/config"
	"search-orchestrator/internal/common/database"
	apperrors "search-orchestrator/internal/common/errors"
	"search-orchestrator/internal/common/logger"
	"search-orchestrator/internal/common/observability"
	"search-orchestrator/internal/models"
	"search-orchestrator/internal/search/agent"
	"search-orchestrator/internal/search/cache"
	"search-orchestrator/internal/search/engine"
	"search-orchestrator/internal/search/fanout"
	"search-orchestrator/internal/search/merge"
	"search-orchestrator/internal/search/modules"
	"search-orchestrator/internal/search/orchestrator"
	"search-orchestrator/internal/search/query"
	"search-orchestrator/internal/search/recommend"
	"search-orchestrator/internal/search/relax"
	"search-orchestrator/internal/search/zone"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New("info", "console")
		fallback.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting search service...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	tracing := observability.NewTracing(cfg.App.Name, os.Getenv("JAEGER_ENDPOINT"))
	defer tracing.Shutdown()

	ctx, cancelBackground := context.WithCancel(context.Background())
	defer cancelBackground()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		// Test the connection
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Search core wiring ---
	modResolver := modules.NewResolver(modules.NewSQLStore(pg.GetDB()), log)

	zones := zone.NewResolver(zone.NewSQLLoader(pg.GetDB()), log)
	go zones.Run(ctx, config.GetSeconds(cfg.Zones.RefreshInterval))

	ttl := cache.TTLPolicy{
		Browse:       config.GetSeconds(cfg.Cache.BrowseTTL),
		Popular:      config.GetSeconds(cfg.Cache.PopularTTL),
		Geo:          config.GetSeconds(cfg.Cache.GeoTTL),
		PopularFloor: cfg.Cache.PopularFloor,
	}
	searchCache := cache.New(redisClient.GetClient(), ttl, config.GetDuration(cfg.Cache.LocalTTL), log)
	go searchCache.RunPruner(ctx, config.GetDuration(cfg.Cache.LocalSweep))

	builder := query.NewBuilder()
	builder.GeoDecayScaleKm = cfg.Search.GeoDecayRadiusKm
	if cfg.Search.DefaultRadiusKm > 0 {
		builder.DefaultRadiusKm = cfg.Search.DefaultRadiusKm
	}
	if cfg.Search.MaxPageSize > 0 {
		builder.MaxPageSize = cfg.Search.MaxPageSize
	}
	if cfg.Search.BrowsePageSize > 0 {
		builder.BrowsePageSize = cfg.Search.BrowsePageSize
	}

	esAdapter := engine.NewAdapter(esClient, log)
	mergeEngine := merge.NewEngine(esAdapter, builder, log)
	mergeEngine.BranchTimeout = config.GetDuration(cfg.Search.BranchTimeout)
	fanoutEngine := fanout.NewEngine(esAdapter, builder, log)
	fanoutEngine.BranchTimeout = config.GetDuration(cfg.Search.BranchTimeout)
	relaxer := relax.NewRunner(log)
	recommender := recommend.NewEngine(esAdapter, log)

	rules := &agent.RuleParser{}
	var searchAgent *agent.Agent
	if cfg.APIs.NLU.BaseURL != "" {
		nluClient, err := agent.NewNLUClient(
			cfg.APIs.NLU.BaseURL,
			cfg.APIs.NLU.APIKey,
			config.GetDuration(cfg.APIs.NLU.Timeout),
		)
		if err != nil {
			zapLog.Fatal("NLU client initialization failed", zap.Error(err))
		}
		searchAgent = agent.NewAgent(rules, nluClient, modResolver, log)
		zapLog.Info("NLU client initialized", zap.String("baseUrl", cfg.APIs.NLU.BaseURL))
	} else {
		searchAgent = agent.NewAgent(rules, nil, modResolver, log)
		zapLog.Info("NLU disabled, using rule-based parsing only")
	}

	orch := orchestrator.New(
		modResolver,
		zones,
		searchCache,
		mergeEngine,
		fanoutEngine,
		relaxer,
		searchAgent,
		recommender,
		tracing,
		log,
		orchestrator.Options{RequestTimeout: config.GetDuration(cfg.Search.RequestTimeout)},
	)

	// --- API Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/search", handleSearch(orch, zapLog))
	mux.HandleFunc("/v1/search/text", handleSearchText(orch, zapLog))
	mux.HandleFunc("/v1/suggest", handleSuggest(orch, zapLog))
	mux.HandleFunc("/v1/recommendations", handleRecommend(orch, zapLog))
	mux.HandleFunc("/admin/invalidate/store", handleInvalidateStore(orch))
	mux.HandleFunc("/admin/invalidate/module", handleInvalidateModule(orch))

	apiServer := &http.Server{
		Addr:    cfg.App.ListenAddr,
		Handler: mux,
	}
	go func() {
		zapLog.Info("API server listening", zap.String("addr", cfg.App.ListenAddr))
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("API server failed", zap.Error(err))
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			status := "ready"
			code := http.StatusOK
			if err := pg.Ping(r.Context()); err != nil {
				status = "not ready"
				code = http.StatusServiceUnavailable
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			json.NewEncoder(w).Encode(map[string]string{
				"status": status,
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.App.MetricsAddr))
		if err := http.ListenAndServe(cfg.App.MetricsAddr, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	cancelBackground()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("API server shutdown failed", zap.Error(err))
	}

	zapLog.Info("Search service stopped gracefully")
}

func handleSearch(orch *orchestrator.Orchestrator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req models.SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, log, apperrors.NewInvalidFilterFormatError("malformed request body: "+err.Error()))
			return
		}

		res, err := orch.Search(r.Context(), &req)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSearchText(orch *orchestrator.Orchestrator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var geo *models.GeoPoint
		lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
		lon, lonErr := strconv.ParseFloat(q.Get("lon"), 64)
		if latErr == nil && lonErr == nil {
			geo = &models.GeoPoint{Lat: lat, Lon: lon}
		}

		p := models.Pagination{
			Page: intParam(q.Get("page"), 1),
			Size: intParam(q.Get("size"), 20),
		}

		res, err := orch.SearchText(r.Context(), q.Get("q"), geo, p)
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleSuggest(orch *orchestrator.Orchestrator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sel := models.ModuleSelector{
			ID:   q.Get("module_id"),
			Type: q.Get("module_type"),
		}

		res, err := orch.Suggest(r.Context(), q.Get("q"), sel, intParam(q.Get("size"), 0))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleRecommend(orch *orchestrator.Orchestrator, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		sel := models.ModuleSelector{
			ID:   q.Get("module_id"),
			Type: q.Get("module_type"),
		}

		res, err := orch.Recommend(r.Context(), sel, q.Get("item_id"), q.Get("store_id"), intParam(q.Get("limit"), 0))
		if err != nil {
			writeError(w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleInvalidateStore(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		deleted := orch.InvalidateStore(r.Context(), r.URL.Query().Get("id"))
		writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
	}
}

func handleInvalidateModule(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		deleted := orch.InvalidateModule(r.Context(), r.URL.Query().Get("id"))
		writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps StandardError classes to HTTP status codes: caller errors
// are 400, timeouts 504, everything else from upstream 502.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status := http.StatusInternalServerError
	body := map[string]interface{}{
		"code":    "INTERNAL_ERROR",
		"message": err.Error(),
	}

	if stdErr, ok := err.(*apperrors.StandardError); ok {
		switch {
		case apperrors.IsBadRequest(stdErr.Code):
			status = http.StatusBadRequest
		case stdErr.Code == apperrors.ErrCodeSearchTimeout || stdErr.Code == apperrors.ErrCodeNLUServiceTimeout:
			status = http.StatusGatewayTimeout
		default:
			status = http.StatusBadGateway
		}
		body = map[string]interface{}{
			"code":    stdErr.Code,
			"message": stdErr.Message,
			"details": stdErr.Details,
		}
	}

	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err), zap.Int("status", status))
	}
	writeJSON(w, status, body)
}

func intParam(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
