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
	"gamelibrary/internal/clients"
	"gamelibrary/internal/config"
	"gamelibrary/internal/database"
	"gamelibrary/internal/httpx"
	"gamelibrary/internal/journal"
	"gamelibrary/internal/library"
	"gamelibrary/internal/logging"
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

	name := cfg.ServiceName
	if name == "" {
		name = "library"
	}
	shutdownTracing, err := telemetry.Init(ctx, name, cfg.OTLPEndpoint, log)
	if err != nil {
		log.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	identity := clients.NewIdentityClient(cfg.IdentityURL, clients.IdentityOptions{
		Timeout:    cfg.IdentityTimeout,
		RatePerSec: cfg.IdentityRatePerSec,
	}, log)
	ledger := library.NewPostgresStore(db, journal.New(db))
	svc := library.NewService(ledger, catalog.NewPostgresStore(db), identity, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"database": err.Error()})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"database": "ok"})
	})

	router.Group(func(r chi.Router) {
		r.Use(auth.NewAuthenticator(cfg.JWTSecret).Middleware)
		library.NewHandler(svc).Routes(r)
	})

	addr := cfg.Addr("8082")
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("starting library service", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("server failed", zap.Error(err))
	}
}
