package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"finitefield.org/storefront/internal/cache"
	"finitefield.org/storefront/internal/cms"
	"finitefield.org/storefront/internal/commerce"
	"finitefield.org/storefront/internal/config"
	"finitefield.org/storefront/internal/handlers"
	"finitefield.org/storefront/internal/i18n"
	"finitefield.org/storefront/internal/live"
	mw "finitefield.org/storefront/internal/middleware"
	"finitefield.org/storefront/internal/observability"
	"finitefield.org/storefront/internal/status"
)

// app holds the long-lived dependencies of the web process.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	bundle    *i18n.Bundle
	services  commerce.Services
	content   *cms.Client
	views     *renderer
	live      *live.Handler
	session   mw.SessionOptions
	analytics handlers.Analytics
	status    *status.Checker
	closers   []io.Closer
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	bundle, err := i18n.Load(cfg.Server.LocalesDir, cfg.Server.DefaultLocale, cfg.Server.Locales)
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}
	views, err := newRenderer(cfg.Server.TemplatesDir, cfg.Server.Dev, bundle)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		bundle:    bundle,
		views:     views,
		session:   mw.SessionOptionsFromConfig(cfg.Session, logger),
		analytics: handlers.AnalyticsFromConfig(cfg.Analytics),
	}

	a.status = status.NewChecker(cfg.Commerce.Timeout, 10*time.Second, logger)

	var store cache.Cache = cache.NewMemory()
	if cfg.Cache.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.Cache.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = r
		a.closers = append(a.closers, r)
		a.status.Register("cache", false, r.Ping)
	}
	a.services, err = commerce.New(cfg.Commerce, store, cfg.Cache.TTL, logger)
	if err != nil {
		return nil, fmt.Errorf("commerce: %w", err)
	}

	a.content = cms.NewClient(cfg.Server.ContentBaseURL, cfg.Server.ContentDir)
	if cfg.Server.Dev {
		a.content.SetCacheDuration(time.Second)
	}
	a.live = live.NewHandler(live.Options{
		Storefront: a.services.Storefront,
		Interval:   cfg.Live.HeroInterval,
	})

	a.status.Register("commerce", true, func(ctx context.Context) error {
		_, err := a.services.Storefront.Header(ctx, cfg.Server.DefaultLocale)
		return err
	})
	a.status.Register("templates", true, func(context.Context) error {
		_, err := a.views.templates()
		return err
	})
	a.status.Register("content", false, func(ctx context.Context) error {
		_, err := a.content.GetContentPage(ctx, "home", "new-arrivals", cfg.Server.DefaultLocale)
		if errors.Is(err, cms.ErrNotFound) {
			return nil
		}
		return err
	})
	return a, nil
}

// Close releases external connections.
func (a *app) Close() {
	a.live.Close()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	// RealIP trusts X-Forwarded-For; only deploy behind a proxy that sets it.
	r.Use(chimw.RealIP)
	r.Use(observability.InjectLogger(a.logger))
	r.Use(observability.TraceMiddleware)
	r.Use(mw.HTMX)
	r.Use(mw.Session(a.session))
	r.Use(mw.Auth(a.cfg.Session.Production()))
	r.Use(observability.RequestLogger(mw.LogFields))
	r.Use(observability.Recovery(a.logger))
	r.Use(mw.Locale(a.bundle))
	r.Use(mw.VaryLocale)
	r.Use(mw.ViewportHint)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	r.Method(http.MethodGet, "/readyz", a.status.Handler())

	// long-lived websocket; no compression or request timeout
	if a.cfg.Live.Enabled {
		r.Get("/live/home", a.live.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))
		r.Use(chimw.Timeout(a.cfg.Server.RequestTimeout))
		r.Use(mw.CSRF)

		assets := http.StripPrefix("/assets", mw.AssetsWithCache(filepath.Join(a.cfg.Server.PublicDir, "assets"), a.cfg.Server.Dev))
		r.Handle("/assets/*", assets)

		r.Get("/", a.HomeHandler)
		r.Get("/search", a.SearchHandler)

		r.Route("/account", func(r chi.Router) {
			r.Use(noStore)
			r.Get("/", a.AccountHandler)
			r.Get("/orders", a.AccountHandler)
			r.Get("/profile", a.AccountHandler)
			r.Get("/addresses", a.AccountHandler)
			r.Post("/logout", a.LogoutHandler)
		})

		r.NotFound(a.NotFoundHandler)
	})
	return r
}

// noStore keeps account pages out of shared and browser caches.
func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		next.ServeHTTP(w, r)
	})
}
