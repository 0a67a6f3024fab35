package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"gamelibrary/internal/config"
	"gamelibrary/internal/httpx"
	"gamelibrary/internal/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const apiPrefix = "/api/v1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Bootstrap().Fatal("failed to load configuration", zap.Error(err))
	}
	log := logging.Must(cfg.LogMode)
	defer log.Sync()

	catalogProxy := proxyTo(log, cfg.CatalogServiceURL)
	libraryProxy := proxyTo(log, cfg.LibraryServiceURL)

	router := newRouter(catalogProxy, libraryProxy)

	addr := cfg.Addr("8080")
	log.Info("API gateway listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

// newRouter maps the public /api/v1 surface onto the two upstream services.
func newRouter(catalogSvc, librarySvc http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.Route(apiPrefix, func(r chi.Router) {
		strip := func(h http.Handler) http.Handler { return http.StripPrefix(apiPrefix, h) }
		r.Handle("/items", strip(catalogSvc))
		r.Handle("/items/*", strip(catalogSvc))
		r.Handle("/search/*", strip(catalogSvc))
		r.Handle("/users/*", strip(librarySvc))
	})
	return router
}

func proxyTo(log *zap.Logger, raw string) http.Handler {
	target, err := url.Parse(raw)
	if err != nil {
		log.Fatal("invalid upstream URL", zap.String("url", raw), zap.Error(err))
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	direct := proxy.Director
	proxy.Director = func(r *http.Request) {
		direct(r)
		r.Header.Set(httpx.ForwardedPrefixHeader, apiPrefix)
	}
	return proxy
}
