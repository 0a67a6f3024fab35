package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"gamelibrary/internal/auth"
	"gamelibrary/internal/catalog"
	"gamelibrary/internal/config"
	"gamelibrary/internal/database"
	"gamelibrary/internal/httpx"
	"gamelibrary/internal/journal"
	"gamelibrary/internal/library"
	"gamelibrary/internal/logging"
	"gamelibrary/internal/search"
	"gamelibrary/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.Bootstrap().Fatal("failed to load configuration", zap.Error(err))
	}
	log := logging.Must(cfg.LogMode)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	shutdownTracing, err := telemetry.Init(ctx, serviceName(cfg, "catalog"), cfg.OTLPEndpoint, log)
	if err != nil {
		log.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	store := catalog.NewPostgresStore(db)
	owners := library.NewPostgresStore(db, journal.New(db))

	var mirror *search.Mirror
	if cfg.MeiliHost != "" {
		mirror = search.NewMirror(cfg.MeiliHost, cfg.MeiliAPIKey, cfg.MeiliIndex)
		if err := mirror.EnsureSettings(ctx); err != nil {
			log.Warn("search mirror settings not applied", zap.Error(err))
		}
	}

	var catalogMirror catalog.Mirror
	if mirror != nil {
		catalogMirror = mirror
	}
	svc := catalog.NewService(store, catalogMirror, owners, catalog.Options{MirrorEnabled: cfg.MirrorEnabled()}, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"database": "ok", "search": "disabled"}
		code := http.StatusOK
		if err := db.PingContext(r.Context()); err != nil {
			status["database"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if mirror != nil {
			status["search"] = "ok"
			if !mirror.Healthy() {
				status["search"] = "unreachable"
			}
		}
		httpx.WriteJSON(w, code, status)
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.NewAuthenticator(cfg.JWTSecret).Middleware)
		catalog.NewHandler(svc).Routes(r)
		if mirror != nil {
			search.NewHandler(mirror, svc).Routes(r)
		}
	})

	serve(ctx, log, cfg.Addr("8081"), router)
}

func serviceName(cfg *config.Config, fallback string) string {
	if cfg.ServiceName != "" {
		return cfg.ServiceName
	}
	return fallback
}

func serve(ctx context.Context, log *zap.Logger, addr string, h http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting catalog service", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}
