package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"buywatch/internal/alert"
	"buywatch/internal/chain"
	"buywatch/internal/classifier"
	"buywatch/internal/config"
	cronrunner "buywatch/internal/cron"
	"buywatch/internal/db"
	"buywatch/internal/handler"
	"buywatch/internal/logger"
	"buywatch/internal/poller"
	"buywatch/internal/position"
	"buywatch/internal/price"
	gormrepository "buywatch/internal/repository/gorm"
	"buywatch/internal/status"
	"buywatch/internal/telegram"
)

func main() {
	cfgPath := os.Getenv("BW_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("BW_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	// Singleton guard: only one monitor per deployment scans and delivers.
	locked, err := db.AcquireAdvisoryLock(dbConn, cfg.DB.AdvisoryLockKey)
	if err != nil {
		logger.Fatal("advisory lock failed", zap.Error(err))
	}
	if !locked {
		logger.Fatal("another monitor instance holds the advisory lock",
			zap.Int64("key", cfg.DB.AdvisoryLockKey))
	}
	defer func() {
		if err := db.ReleaseAdvisoryLock(dbConn, cfg.DB.AdvisoryLockKey); err != nil {
			logger.Warn("advisory lock release failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.Dial(ctx, cfg.Chain)
	if err != nil {
		logger.Fatal("chain dial failed", zap.Error(err))
	}
	defer chainClient.Close()

	store := gormrepository.New(dbConn.Gorm)

	var portfolio price.PortfolioAPI
	if cfg.Price.PortfolioBaseURL != "" {
		portfolio = &price.PortfolioClient{
			BaseURL: cfg.Price.PortfolioBaseURL,
			HTTP:    &http.Client{Timeout: cfg.Price.PortfolioTimeout},
		}
	}
	var explorer *price.ExplorerClient
	if cfg.Explorer.BaseURL != "" {
		explorer = &price.ExplorerClient{
			BaseURL: cfg.Explorer.BaseURL,
			APIKey:  cfg.Explorer.APIKey,
			HTTP:    &http.Client{Timeout: cfg.Explorer.Timeout},
		}
	}

	resolver := price.NewResolver(portfolio, chainClient, explorer, logger)
	resolver.Router = chainClient.Router
	resolver.WrappedNative = chainClient.WrappedNative
	resolver.Stablecoin = chainClient.Stablecoin
	resolver.HasAMM = chainClient.HasAMM()
	resolver.NativeUSDFallback = decimal.NewFromFloat(cfg.Price.NativeUSDFallback)
	resolver.SetRateWarnInterval(cfg.Price.RateWarnInterval)

	tracker := &position.Tracker{
		Repo:   store,
		Chain:  chainClient,
		Logger: logger,
		Window: cfg.Poller.HistoryWindow,
	}

	bot, err := telegram.New(cfg.Telegram.BotToken, logger)
	if err != nil {
		logger.Fatal("telegram auth failed", zap.Error(err))
	}

	coordinator := &alert.Coordinator{
		Repo:   store,
		Sender: bot,
		Logger: logger,
	}

	buyClassifier := &classifier.Classifier{
		Router:         chainClient.Router,
		AMMQuote:       chainClient.AMMQuote,
		AMMQuoteSymbol: cfg.Chain.AMMQuoteSymbol,
		NativeSymbol:   cfg.Chain.NativeSymbol,
		Chain:          chainClient,
		Logger:         logger,
	}

	monitor := &poller.Poller{
		Chain:      chainClient,
		Classifier: buyClassifier,
		Prices:     resolver,
		Positions:  tracker,
		Delivery:   coordinator,
		Repo:       store,
		Logger:     logger,
		Interval:   cfg.Poller.Interval,
		TxURLBase:  cfg.Chain.ExplorerTxURL,
	}

	go func() {
		if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("poller stopped", zap.Error(err))
			stop()
		}
	}()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Status.Enabled {
		broadcaster := &status.Broadcaster{
			Repo:    store,
			Metrics: resolver,
			Sender:  bot,
			Logger:  logger,
		}
		if _, err := cronRunner.Add(cfg.Status.Cron, broadcaster.Broadcast); err != nil {
			logger.Warn("cron register status broadcast failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Monitor: monitor}
	healthHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	_ = srv.Shutdown(context.Background())
}
