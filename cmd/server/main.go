// Package main runs the snapshot service: an HTTP API over the snapshot
// store, training-record generation and dataset export, plus a websocket
// feed of saved-snapshot summaries.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"market-snapshot-lab/internal/classify"
	"market-snapshot-lab/internal/domain"
	"market-snapshot-lab/internal/export"
	"market-snapshot-lab/internal/feed"
	"market-snapshot-lab/internal/observability"
	"market-snapshot-lab/internal/snapshots"
	"market-snapshot-lab/internal/storage"
	chstore "market-snapshot-lab/internal/storage/clickhouse"
	"market-snapshot-lab/internal/storage/fsblob"
	"market-snapshot-lab/internal/storage/memory"
	"market-snapshot-lab/internal/storage/migrations"
	pgstore "market-snapshot-lab/internal/storage/postgres"
	"market-snapshot-lab/internal/training"
)

func main() {
	// Load .env file if exists; system env vars win.
	_ = godotenv.Load()

	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string for analytical training-record storage (optional)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	payloadDir := flag.String("payload-dir", envOr("PAYLOAD_DIR", "payloads"), "Directory for payload blobs")
	exportDir := flag.String("export-dir", envOr("EXPORT_DIR", "exports"), "Directory for export artifacts")
	sessionTZ := flag.String("session-timezone", envOr("SESSION_TIMEZONE", ""), "Override exchange timezone for market-session classification")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index, records, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatal("create stores", zap.Error(err))
	}
	defer cleanup()

	payloads, err := createPayloadStore(*useMemory, *payloadDir, logger)
	if err != nil {
		logger.Fatal("create payload store", zap.Error(err))
	}

	classifierCfg := &classify.Config{}
	if *sessionTZ != "" {
		loc, err := time.LoadLocation(*sessionTZ)
		if err != nil {
			logger.Fatal("load session timezone", zap.String("timezone", *sessionTZ), zap.Error(err))
		}
		classifierCfg.SessionLocation = loc
	}

	store := snapshots.New(index, payloads, classify.New(logger, classifierCfg), logger)
	generator := training.NewGenerator(store, records, logger)
	exporter, err := export.NewExporter(records, *exportDir, logger)
	if err != nil {
		logger.Fatal("create exporter", zap.Error(err))
	}

	hub := feed.NewHub(logger)
	go hub.Run(ctx)

	api := &apiServer{
		store:     store,
		records:   records,
		generator: generator,
		exporter:  exporter,
		hub:       hub,
		logger:    logger,
	}

	srv := &http.Server{
		Addr:         *listenAddr,
		Handler:      api.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("server listening", zap.String("addr", *listenAddr), zap.Bool("memory", *useMemory))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// createStores wires the metadata index and training-record store. With a
// ClickHouse DSN the training records go to the analytical store; otherwise
// they share PostgreSQL with the index.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *zap.Logger) (storage.SnapshotIndex, storage.TrainingRecordStore, func(), error) {
	if useMemory {
		return memory.NewSnapshotIndex(), memory.NewTrainingRecordStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}

	index := pgstore.NewSnapshotIndex(pool)

	if clickhouseDSN == "" {
		return index, pgstore.NewTrainingRecordStore(pool), pool.Close, nil
	}

	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		conn.Close()
		pool.Close()
		return nil, nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
	}

	logger.Info("training records stored in clickhouse")
	cleanup := func() {
		conn.Close()
		pool.Close()
	}
	return index, chstore.NewTrainingRecordStore(conn), cleanup, nil
}

func createPayloadStore(useMemory bool, dir string, logger *zap.Logger) (storage.PayloadStore, error) {
	if useMemory {
		return memory.NewPayloadStore(), nil
	}
	return fsblob.New(dir, logger)
}

// apiServer carries the handler dependencies.
type apiServer struct {
	store     *snapshots.Store
	records   storage.TrainingRecordStore
	generator *training.Generator
	exporter  *export.Exporter
	hub       *feed.Hub
	logger    *zap.Logger
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/snapshots", s.handleSaveSnapshot)
	mux.HandleFunc("GET /api/snapshots/{id}", s.handleLoadSnapshot)
	mux.HandleFunc("GET /api/snapshots", s.handleQuerySnapshots)
	mux.HandleFunc("POST /api/training/generate", s.handleGenerate)
	mux.HandleFunc("PATCH /api/training/records/{id}/validate", s.handleValidate)
	mux.HandleFunc("GET /api/training/stats", s.handleStats)
	mux.HandleFunc("POST /api/export", s.handleExport)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", observability.Handler())
	mux.HandleFunc("GET /ws", s.hub.ServeWS)

	return mux
}

// snapshotView is the wire shape of a snapshot.
type snapshotView struct {
	ID               string    `json:"id"`
	Ticker           string    `json:"ticker"`
	Timestamp        time.Time `json:"timestamp"`
	AnalysisType     string    `json:"analysis_type"`
	MarketCondition  string    `json:"market_condition"`
	Timeframes       []string  `json:"timeframes"`
	DataQualityScore float64   `json:"data_quality_score"`
	ConfidenceLevel  float64   `json:"confidence_level"`
	MarketSession    string    `json:"market_session"`
	VolatilityRegime string    `json:"volatility_regime"`
	VolumeProfile    string    `json:"volume_profile"`
	TrendDirection   string    `json:"trend_direction"`
	Tags             []string  `json:"tags,omitempty"`
	AnalystNotes     string    `json:"analyst_notes,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func toSnapshotView(snap *domain.Snapshot) snapshotView {
	return snapshotView{
		ID:               snap.ID,
		Ticker:           snap.Ticker,
		Timestamp:        snap.Timestamp,
		AnalysisType:     snap.AnalysisType.String(),
		MarketCondition:  snap.MarketCondition.String(),
		Timeframes:       snap.Timeframes,
		DataQualityScore: snap.DataQualityScore,
		ConfidenceLevel:  snap.ConfidenceLevel,
		MarketSession:    snap.MarketSession.String(),
		VolatilityRegime: snap.VolatilityRegime.String(),
		VolumeProfile:    snap.VolumeProfile.String(),
		TrendDirection:   snap.TrendDirection.String(),
		Tags:             snap.Tags,
		AnalystNotes:     snap.AnalystNotes,
		CreatedAt:        snap.CreatedAt,
	}
}

type saveRequest struct {
	Ticker       string            `json:"ticker"`
	Timestamp    time.Time         `json:"timestamp"`
	AnalysisType string            `json:"analysis_type"`
	Tags         []string          `json:"tags"`
	AnalystNotes string            `json:"analyst_notes"`
	Payload      domain.RawPayload `json:"payload"`
}

func (s *apiServer) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	analysisType, err := domain.ParseAnalysisType(req.AnalysisType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := s.store.Save(r.Context(), req.Ticker, req.Timestamp, analysisType, req.Payload, snapshots.SaveOptions{
		Tags:         req.Tags,
		AnalystNotes: req.AnalystNotes,
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid snapshot input")
		case errors.Is(err, storage.ErrDuplicateKey):
			writeError(w, http.StatusConflict, "snapshot already exists")
		default:
			s.logger.Error("save snapshot", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "save failed")
		}
		return
	}

	s.hub.BroadcastSnapshot(snap)
	writeJSON(w, http.StatusCreated, toSnapshotView(snap))
}

func (s *apiServer) handleLoadSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, payload, err := s.store.Load(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "snapshot not found")
		case errors.Is(err, storage.ErrPayloadUnavailable):
			writeError(w, http.StatusConflict, "snapshot payload unavailable")
		case errors.Is(err, storage.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid snapshot id")
		default:
			s.logger.Error("load snapshot", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "load failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot": toSnapshotView(snap),
		"payload":  payload,
	})
}

func (s *apiServer) handleQuerySnapshots(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSnapshotFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snaps, err := s.store.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("query snapshots", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	views := make([]snapshotView, len(snaps))
	for i, snap := range snaps {
		views[i] = toSnapshotView(snap)
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": views})
}

func parseSnapshotFilter(r *http.Request) (storage.SnapshotFilter, error) {
	q := r.URL.Query()
	filter := storage.SnapshotFilter{Ticker: q.Get("ticker")}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid start: %v", err)
		}
		filter.Start = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid end: %v", err)
		}
		filter.End = &t
	}
	if v := q.Get("market_condition"); v != "" {
		c, err := domain.ParseMarketCondition(v)
		if err != nil {
			return filter, err
		}
		filter.MarketCondition = c
	}
	if v := q.Get("analysis_type"); v != "" {
		a, err := domain.ParseAnalysisType(v)
		if err != nil {
			return filter, err
		}
		filter.AnalysisType = a
	}
	if v := q.Get("min_quality"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return filter, fmt.Errorf("invalid min_quality: %v", err)
		}
		filter.MinQualityScore = &f
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("invalid limit: %v", err)
		}
		filter.Limit = n
	}

	return filter, nil
}

type generateRequest struct {
	SnapshotID string   `json:"snapshot_id"`
	Categories []string `json:"categories"`
}

func (s *apiServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	categories := make([]domain.ConversationType, len(req.Categories))
	for i, c := range req.Categories {
		categories[i] = domain.ConversationType(c)
	}

	ids, err := s.generator.Generate(r.Context(), req.SnapshotID, categories)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "snapshot not found")
		case errors.Is(err, storage.ErrPayloadUnavailable):
			writeError(w, http.StatusConflict, "snapshot payload unavailable")
		default:
			s.logger.Error("generate records", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "generation failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"record_ids": ids, "count": len(ids)})
}

func (s *apiServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Validated bool `json:"validated"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := r.PathValue("id")
	if err := s.records.SetHumanValidated(r.Context(), id, req.Validated); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "training record not found")
		case errors.Is(err, storage.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, "invalid record id")
		default:
			s.logger.Error("set record validation", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "validation update failed")
		}
		return
	}

	if req.Validated {
		observability.DefaultMetrics.RecordsValidated.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"record_id": id, "validated": req.Validated})
}

func (s *apiServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.exporter.Statistics(r.Context())
	if err != nil {
		s.logger.Error("compute statistics", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "statistics failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type exportRequest struct {
	Format        string   `json:"format"`
	SnapshotID    string   `json:"snapshot_id"`
	Categories    []string `json:"categories"`
	MinQuality    *float64 `json:"min_quality"`
	OnlyValidated bool     `json:"only_validated"`
	Limit         int      `json:"limit"`
}

func (s *apiServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	format, err := export.ParseFormat(req.Format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	categories := make([]domain.ConversationType, len(req.Categories))
	for i, c := range req.Categories {
		categories[i] = domain.ConversationType(c)
	}

	path, count, err := s.exporter.Export(r.Context(), storage.TrainingRecordFilter{
		SnapshotID:      req.SnapshotID,
		Categories:      categories,
		MinQualityScore: req.MinQuality,
		OnlyValidated:   req.OnlyValidated,
		Limit:           req.Limit,
	}, format)
	if err != nil {
		s.logger.Error("export records", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"artifact": path, "records": count})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
