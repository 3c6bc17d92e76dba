package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/enrichman/httpgrace"

	"github.com/bassista/fitsync/internal/api/middleware"
	route "github.com/bassista/fitsync/internal/api/route"
	appctx "github.com/bassista/fitsync/internal/app"
	"github.com/bassista/fitsync/internal/cachemgr"
	"github.com/bassista/fitsync/internal/config"
	"github.com/bassista/fitsync/internal/ledger"
	"github.com/bassista/fitsync/internal/logger"
	"github.com/bassista/fitsync/internal/queue"
	"github.com/bassista/fitsync/internal/store"
)

func main() {
	// Local overrides for development; absence is fine
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithComponent("main").Fatalf("configuration error: %v", err)
	}

	logLevel, err := logrus.ParseLevel(cfg.Misc.LogLevel)
	if err != nil {
		logger.WithComponent("main").Warnf("invalid log level '%s', using 'info': %v", cfg.Misc.LogLevel, err)
		logLevel = logrus.InfoLevel
	}
	logger.Logger.SetLevel(logLevel)
	logger.WithComponent("main").Infof("fitsync will run on port: %d", cfg.Server.Port)

	kv, err := openStore(cfg)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot open store: %v", err)
	}

	classifier, rules, err := buildClassifier(cfg)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot load classification rules: %v", err)
	}

	fetcher := cachemgr.NewHTTPFetcher(cfg.Cache.Upstream, cfg.Cache.FetchTimeout)
	cacheMgr := cachemgr.NewManager(kv, classifier, fetcher, cfg.Cache.Versions)

	// Stale generations must be gone before the first request is served
	if err := cacheMgr.Activate(); err != nil {
		logger.WithComponent("main").Fatalf("cache activation failed: %v", err)
	}

	var sender queue.Sender
	if cfg.Sync.Endpoint != "" {
		sender = queue.NewHTTPSender(cfg.Sync.Endpoint, cfg.Sync.RequestTimeout)
	} else {
		logger.WithComponent("main").Warn("no telemetry endpoint configured; events will accumulate locally")
	}

	online := queue.NewOnlineFlag()
	eventQueue, err := queue.New(kv, sender, online, queue.NewHoneybadgerReporter(), queue.Config{
		BatchSize:     cfg.Sync.BatchSize,
		MaxAttempts:   cfg.Sync.MaxAttempts,
		DeadLetterCap: cfg.Sync.DeadLetterCap,
	})
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init event queue: %v", err)
	}

	progressLedger, err := ledger.New(kv, eventQueue)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init progress ledger: %v", err)
	}

	app, err := appctx.New(cfg, kv, cacheMgr, eventQueue, progressLedger, online, rules)
	if err != nil {
		logger.WithComponent("main").Fatalf("cannot init app: %v", err)
	}
	defer app.Shutdown()

	app.StartWorkers()

	gin.SetMode(cfg.Misc.GinMode)
	gin.DefaultWriter = logger.Logger.Writer()
	gin.DefaultErrorWriter = logger.Logger.Writer()

	r := gin.New()
	r.Use(middleware.HoneybadgerMiddleware(logger.Logger))
	r.Use(gin.Recovery())
	r.Use(middleware.CORSMiddleware(cfg.Server.CORSAllowedOrigins))
	route.SetupRoutes(r, app)

	srv := createGraceHttpServer(app.BaseCtx, "fitsync", app.Config.Server, r)
	if err := srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithComponent("main").Fatal(err)
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Data.StorePath == "" {
		logger.WithComponent("main").Warn("no store path configured, using in-memory store (nothing survives a restart)")
		return store.NewMemStore(), nil
	}
	return store.OpenBolt(cfg.Data.StorePath)
}

func buildClassifier(cfg *config.Config) (*cachemgr.Classifier, *cachemgr.RulesFile, error) {
	if cfg.Data.RulesPath == "" {
		return cachemgr.NewClassifier(cachemgr.DefaultRules()), nil, nil
	}

	rules, err := cachemgr.NewRulesFile(cfg.Data.RulesPath)
	if err != nil {
		return nil, nil, err
	}
	table, err := rules.Load()
	if err != nil {
		return nil, nil, err
	}
	return cachemgr.NewClassifier(table), rules, nil
}

func createGraceHttpServer(ctx context.Context, name string, serverConfig config.ServerConfig, r *gin.Engine) *httpgrace.Server {
	slogLogger := slog.New(slog.NewTextHandler(logger.Logger.Writer(), nil))

	srv := httpgrace.NewServer(r,
		httpgrace.WithTimeout(serverConfig.ShutDownTimeout),
		httpgrace.WithSignals(syscall.SIGTERM, syscall.SIGINT),
		httpgrace.WithLogger(slogLogger),
		httpgrace.WithBeforeShutdown(func() {
			logger.WithComponent("http").Infof("Shutting down %s server....", name)
		}),
		httpgrace.WithServerOptions(
			httpgrace.WithReadTimeout(serverConfig.ReadTimeout),
			httpgrace.WithWriteTimeout(serverConfig.WriteTimeout),
			httpgrace.WithIdleTimeout(serverConfig.IdleTimeout),
			func(srv *http.Server) {
				srv.BaseContext = func(_ net.Listener) context.Context {
					return ctx
				}
			},
			func(srv *http.Server) {
				srv.ErrorLog = log.New(logger.Logger.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags)
			},
		),
	)
	return srv
}
