package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/attentra/attentra/config"
	"github.com/attentra/attentra/internal/anchor"
	"github.com/attentra/attentra/internal/docsvc"
	"github.com/attentra/attentra/internal/flatten"
	"github.com/attentra/attentra/internal/rollup"
	"github.com/attentra/attentra/internal/search"
	"github.com/attentra/attentra/internal/store"
	"github.com/attentra/attentra/internal/suggest"
	"github.com/attentra/attentra/provider"
	openai "github.com/attentra/attentra/provider/openai"
)

// Run wires the full service and blocks serving HTTP.
func Run(cfg *appconfig.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	// Unified HTTP error handler with structured JSON and logging.
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Cookie", "Authorization"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(200, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if err := Migrate("file://migrations", cfg.Databases.Postgres.DSN(), "up", 0); err != nil {
		log.Printf("[MIGRATE] %v", err)
	}

	ctx := context.Background()
	st, err := store.NewWithDSN(ctx, cfg.Databases.Postgres.DSN())
	if err != nil {
		return err
	}

	secret := cfg.General.JWTSecret
	if secret == "" {
		return fmt.Errorf("jwt secret not configured (general.jwt_secret)")
	}
	if err := cfg.DocService.Validate(); err != nil {
		return err
	}

	docs := docsvc.NewClient(cfg.DocService.BaseURL, cfg.DocService.Timeout)

	var llm provider.Provider
	if cfg.Providers.OpenAI.APIKey != "" {
		llm = openai.NewClient(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.CompletionModel,
			cfg.Providers.OpenAI.Temperature, cfg.Providers.OpenAI.MaxTokens, cfg.Providers.OpenAI.Timeout)
	} else {
		log.Printf("[SUGGEST] no openai api key configured; using deterministic fallback drafts")
	}

	flattener := flatten.Flattener{
		KeyPrefixChars:  cfg.Anchor.KeyPrefixChars,
		SnippetMaxChars: cfg.Anchor.SnippetMaxChars,
	}
	resolver := anchor.Resolver{
		SimilarityThreshold: cfg.Anchor.SimilarityThreshold,
		ProbePrefixChars:    cfg.Anchor.ProbePrefixChars,
	}

	engine := &rollup.Engine{Store: st, Logger: log.New(log.Writer(), "[ROLLUP] ", log.LstdFlags)}
	searchSvc := search.NewService(cfg.Search.CacheSize)
	suggestSvc := &suggest.Service{
		Store:     st,
		Docs:      docs,
		LLM:       llm,
		Flattener: flattener,
		Resolver:  resolver,
		Logger:    log.New(log.Writer(), "[SUGGEST] ", log.LstdFlags),
	}

	var web *docsvc.WebImporter
	if cfg.WebImport.Enabled {
		web = &docsvc.WebImporter{
			UseBrowser: cfg.WebImport.UseBrowser,
			Timeout:    cfg.WebImport.Timeout,
			MaxChars:   cfg.WebImport.MaxChars,
		}
	}

	api := e.Group("/api")
	secretBytes := []byte(secret)

	auth := &AuthHandler{Store: st, Secret: secretBytes}
	auth.Register(api.Group("/auth"))

	eh := &EventsHandler{Store: st}
	eh.Register(api.Group("/events"), secretBytes)

	dh := &DocumentsHandler{Store: st, Docs: docs, Web: web, Flattener: flattener, Search: searchSvc}
	dh.Register(api.Group("/documents"), secretBytes)

	ah := &AnalyticsHandler{Store: st, Rollup: engine}
	ah.Register(api, secretBytes)

	sh := &SuggestionsHandler{Store: st, Service: suggestSvc}
	sh.Register(api.Group("/suggestions"), secretBytes)

	// Rollup scheduler, with redis locks when redis is configured.
	var rdb *redis.Client
	if cfg.Databases.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Databases.Redis.Addr(),
			Password: cfg.Databases.Redis.Password,
			DB:       cfg.Databases.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed (%s): %w", cfg.Databases.Redis.Addr(), err)
		}
	} else {
		log.Printf("[SCHED] redis not configured; rollup sweeps run without distributed locks")
	}
	sched := &Scheduler{
		Store:    st,
		Engine:   engine,
		Rdb:      rdb,
		Cron:     cfg.Rollup.Cron,
		LockTTL:  cfg.Rollup.LockTTL,
		Lookback: cfg.Rollup.Lookback,
		Stop:     make(chan struct{}),
	}
	sched.Start()

	addr := cfg.General.Listen
	if addr == "" {
		addr = ":10010"
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
