package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Billy-Davies-2/flashdraft/internal/auth"
	"github.com/Billy-Davies-2/flashdraft/internal/bots"
	"github.com/Billy-Davies-2/flashdraft/internal/catalog"
	"github.com/Billy-Davies-2/flashdraft/internal/clickhouse"
	"github.com/Billy-Davies-2/flashdraft/internal/config"
	"github.com/Billy-Davies-2/flashdraft/internal/dal"
	"github.com/Billy-Davies-2/flashdraft/internal/engine"
	grpcserver "github.com/Billy-Davies-2/flashdraft/internal/grpc"
	"github.com/Billy-Davies-2/flashdraft/internal/handlers"
	"github.com/Billy-Davies-2/flashdraft/internal/logger"
	"github.com/Billy-Davies-2/flashdraft/internal/mocks"
	"github.com/Billy-Davies-2/flashdraft/internal/pubsub"
)

// eventBus is what both NATS flavors provide
type eventBus interface {
	pubsub.Upstream
	SubscribeJetStream(consumerName string, handler func(pubsub.Event)) error
	Ping(ctx context.Context) error
	Close()
}

const analyticsConsumer = "pick-analytics"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	logger.Info("Starting flashdraft", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("Failed to open draft store", "driver", cfg.DBDriver, "error", err)
		log.Fatalf("Failed to open draft store: %v", err)
	}
	defer store.Close()

	// Use embedded NATS in development mode, real NATS in production
	bus, err := openBus(cfg)
	if err != nil {
		logger.Error("Failed to initialize NATS", "error", err)
		log.Fatalf("Failed to initialize NATS: %v", err)
	}
	defer bus.Close()
	ps := pubsub.NewWithUpstream(bus)
	defer ps.Close()

	analytics, chClient, err := openAnalytics(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize ClickHouse", "error", err, "address", cfg.ClickHouseAddr)
		log.Fatalf("Failed to initialize ClickHouse: %v", err)
	}
	defer analytics.Close()
	startRecorder(ctx, bus, analytics)

	saver := dal.NewAsyncSaver(store, cfg.SaveTimeout, nil)
	eng := engine.New(engine.WithSaver(saver), engine.WithPublisher(ps))

	if err := loadCatalogs(eng, cfg.CatalogDir); err != nil {
		logger.Error("Failed to load catalogs", "dir", cfg.CatalogDir, "error", err)
		log.Fatalf("Failed to load catalogs: %v", err)
	}

	sessions := auth.NewSessionStore()
	policy := dal.RetentionPolicy{MaxAge: cfg.RetentionMaxAge, MaxCount: cfg.RetentionMaxCount}
	runRetention(ctx, store, eng, policy)
	restoreDrafts(ctx, store, eng)
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runRetention(ctx, store, eng, policy)
				if n := sessions.Sweep(); n > 0 {
					logger.Debug("Expired sessions removed", "count", n)
				}
			}
		}
	}()

	var picker *bots.AutoPicker
	if cfg.AutoBotPicks {
		picker = bots.NewAutoPicker(eng)
	}

	healthChecks := handlers.NewHealth()
	healthChecks.AddCheck("database", true, func(ctx context.Context) error {
		_, err := store.Stats(ctx)
		return err
	})
	healthChecks.AddCheck("nats", true, bus.Ping)
	if chClient != nil {
		healthChecks.AddCheck("clickhouse", false, chClient.Ping)
	}

	// gRPC
	grpcServer := grpc.NewServer()
	grpcserver.RegisterDraftServiceServer(grpcServer, grpcserver.NewServer(eng, ps, picker))
	grpcHealth := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)
	grpcHealth.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		lis, err := net.Listen("tcp", "0.0.0.0:"+cfg.GRPCPort)
		if err != nil {
			logger.Error("Failed to listen for gRPC", "error", err, "port", cfg.GRPCPort)
			log.Fatalf("Failed to listen for gRPC: %v", err)
		}
		logger.Info("gRPC server starting", "address", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Failed to serve gRPC", "error", err)
		}
	}()

	// HTTP
	api := handlers.NewAPIHandlers(eng, ps, picker, analytics)
	mux := http.NewServeMux()

	protect := func(h http.HandlerFunc) http.HandlerFunc { return h }
	if provider := openAuth(cfg, sessions); provider != nil {
		protect = func(h http.HandlerFunc) http.HandlerFunc { return auth.Require(provider, h) }
		mux.HandleFunc("/auth/login", provider.LoginHandler)
		mux.HandleFunc("/auth/callback", provider.CallbackHandler)
		mux.HandleFunc("/auth/logout", provider.LogoutHandler)
		mux.HandleFunc("/auth/me", auth.MeHandler(provider))
	}

	mux.HandleFunc("/api/drafts", protect(api.Drafts))
	mux.HandleFunc("/api/drafts/start", protect(api.StartDraft))
	mux.HandleFunc("/api/drafts/pick", protect(api.HumanPick))
	mux.HandleFunc("/api/drafts/action", protect(api.ApplyAction))
	mux.HandleFunc("/api/drafts/state", protect(api.GetDraftState))
	mux.HandleFunc("/api/drafts/replay", protect(api.Replay))
	mux.HandleFunc("/api/drafts/packs/validate", protect(api.ValidatePacks))
	mux.HandleFunc("/api/stats/cards", protect(api.CardStats))

	// realtime updates
	mux.HandleFunc("/api/events", protect(api.EventsSSE))
	mux.HandleFunc("/api/ws", protect(api.DraftSocket))

	// Health check endpoints
	mux.HandleFunc("/api/health", healthChecks.HealthHandler)
	mux.HandleFunc("/healthz", healthChecks.LivenessHandler) // Kubernetes liveness probe
	mux.HandleFunc("/readyz", healthChecks.ReadinessHandler) // Kubernetes readiness probe

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	grpcHealth.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	saver.Wait()
}

// openAuth returns nil when the API is open
func openAuth(cfg config.Config, sessions *auth.SessionStore) auth.Provider {
	switch cfg.AuthMode {
	case "dev":
		logger.Info("Using development auth")
		return auth.NewDev(sessions)
	case "oidc":
		logger.Info("Using OIDC auth", "issuer", cfg.OIDCIssuerURL)
		return auth.NewOIDC(auth.OIDCConfig{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
			LogoutURL:    cfg.OIDCLogoutURL,
		}, sessions)
	default:
		return nil
	}
}

func openStore(cfg config.Config) (dal.DraftStore, error) {
	switch cfg.DBDriver {
	case "sqlite":
		logger.Info("Using SQLite draft store", "file", cfg.SQLiteFile)
		return dal.NewSQLiteStore(cfg.SQLiteFile)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return mocks.NewMockPostgresStore(cfg.SQLiteFile)
		}
		logger.Info("Using Postgres draft store")
		return dal.NewPostgresStore(cfg.DatabaseURL)
	default:
		logger.Info("Using in-memory draft store")
		return dal.NewMemoryStore(), nil
	}
}

func openBus(cfg config.Config) (eventBus, error) {
	if cfg.Environment == "test" {
		return pubsub.NewMockNATSPubSub(cfg.NATSSubject), nil
	}
	if cfg.Development() {
		logger.Info("Starting embedded NATS server for local development")
		opts := pubsub.DefaultEmbeddedNATSOptions()
		opts.Subject = cfg.NATSSubject
		embedded, err := pubsub.NewEmbeddedNATSPubSub(opts)
		if err != nil {
			return nil, err
		}
		logger.Info("Embedded NATS server ready", "url", embedded.GetServerURL())
		return embedded, nil
	}

	logger.Info("Using real NATS JetStream for production")
	natsBus, err := pubsub.NewNATSPubSub(cfg.NATSURL, cfg.NATSSubject)
	if err != nil {
		return nil, err
	}
	logger.Info("Connected to NATS", "url", cfg.NATSURL)
	return natsBus, nil
}

// openAnalytics returns the pick sink, plus the ClickHouse client when a
// real one is in use
func openAnalytics(ctx context.Context, cfg config.Config) (clickhouse.PickSink, *clickhouse.Client, error) {
	if cfg.Development() {
		return mocks.NewMockClickHouseClient(), nil, nil
	}
	client, err := clickhouse.NewClient(cfg.ClickHouseAddr, cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePassword)
	if err != nil {
		return nil, nil, err
	}
	if err := client.EnsureSchema(ctx); err != nil {
		client.Close()
		return nil, nil, err
	}
	logger.Info("Connected to ClickHouse", "address", cfg.ClickHouseAddr, "database", cfg.ClickHouseDB)
	return client, client, nil
}

// startRecorder feeds pick events from a durable JetStream consumer into the
// analytics sink. Instances share the consumer, so each pick is recorded once.
func startRecorder(ctx context.Context, bus eventBus, sink clickhouse.PickSink) {
	events := make(chan pubsub.Event, 256)
	err := bus.SubscribeJetStream(analyticsConsumer, func(ev pubsub.Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		logger.Error("Failed to subscribe pick recorder", "error", err)
		return
	}
	go clickhouse.NewRecorder(sink, 64).Run(ctx, events, 5*time.Second)
}

func loadCatalogs(eng *engine.Engine, dir string) error {
	catalogs, err := catalog.LoadDir(dir)
	if err != nil {
		return err
	}
	provider := catalog.NewMemoryProvider(catalogs...)
	for _, code := range provider.SetCodes() {
		c, _ := provider.Catalog(code)
		eng.LoadSet(c)
	}
	if len(catalogs) == 0 {
		logger.Warn("No set catalogs found; drafts cannot be started", "dir", dir)
	}
	return nil
}

// restoreDrafts rebuilds every stored draft into the engine
func restoreDrafts(ctx context.Context, store dal.DraftStore, eng *engine.Engine) {
	summaries, err := store.List(ctx)
	if err != nil {
		logger.Error("Failed to list stored drafts", "error", err)
		return
	}
	restored := 0
	for _, sum := range summaries {
		state, err := store.Load(ctx, sum.DraftID)
		if err != nil {
			logger.Warn("Failed to load stored draft", "draft_id", sum.DraftID, "error", err)
			continue
		}
		if err := eng.Restore(state); err != nil {
			logger.Warn("Failed to restore draft", "draft_id", sum.DraftID, "error", err)
			continue
		}
		restored++
	}
	logger.Info("Restored drafts", "count", restored, "stored", len(summaries))
}

// runRetention prunes the store, then drops engine drafts the store no
// longer holds and that have been idle past the age limit
func runRetention(ctx context.Context, store dal.DraftStore, eng *engine.Engine, policy dal.RetentionPolicy) {
	removed, err := store.Cleanup(ctx, policy)
	if err != nil {
		logger.Error("Retention cleanup failed", "error", err)
		return
	}
	if removed > 0 {
		logger.Info("Retention cleanup removed drafts", "count", removed)
	}
	if policy.MaxAge <= 0 {
		return
	}

	summaries, err := store.List(ctx)
	if err != nil {
		logger.Error("Failed to list stored drafts", "error", err)
		return
	}
	kept := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		kept[s.DraftID] = true
	}
	cutoff := time.Now().Add(-policy.MaxAge)
	for _, id := range eng.GetAllDraftIDs() {
		if kept[id] {
			continue
		}
		if state, ok := eng.GetDraftState(id); ok && state.UpdatedAt.Before(cutoff) {
			eng.Remove(id)
			logger.Debug("Dropped expired draft", "draft_id", id)
		}
	}
}
