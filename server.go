package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebServer struct {
	cfg    *Config
	logger *zap.Logger

	db         *Database
	storage    *LocalStorage
	hub        *EventHub
	search     *StockSearchService
	poller     *QuotePoller
	portfolios *PortfolioRegistry
	backend    *ChatBackend
	relay      *ChatRelay
	summary    *SummaryService
	alerts     *AlertService
	profiles   *ProfileService
	scheduler  *Scheduler

	router *gin.Engine
}

func NewWebServer(cfg *Config, logger *zap.Logger, enableScheduler bool) (*WebServer, error) {
	db, err := NewDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	storage, err := NewLocalStorage(cfg.StoragePath)
	if err != nil {
		db.Close()
		return nil, err
	}

	hub := NewEventHub(64, logger)
	search := NewStockSearchService(stockList)
	poller := newQuotePoller(cfg, search, storage, hub, logger)
	portfolios := NewPortfolioRegistry(db, storage, hub, logger)
	poller.OnRefresh(func(quotes map[string]Quote) {
		portfolios.Each(func(s *PortfolioStore) { s.RefreshPrices(quotes) })
	})

	backend := NewChatBackend(newFreeModel(cfg, logger), newProModel(cfg, logger), portfolios, logger)
	free, pro := NewLocalAssistant(backend, false), NewLocalAssistant(backend, true)
	if cfg.Chat.UpstreamURL != "" {
		free, pro = NewHTTPAssistant(cfg.Chat.UpstreamURL, false), NewHTTPAssistant(cfg.Chat.UpstreamURL, true)
		logger.Info("relaying chat to remote backend", zap.String("url", cfg.Chat.UpstreamURL))
	}

	location, err := time.LoadLocation(cfg.Snapshots.Timezone)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load timezone %s: %w", cfg.Snapshots.Timezone, err)
	}

	var notifier Notifier = NewLogNotifier(logger)
	if cfg.Alerts.PushURL != "" {
		notifier = NewWebhookNotifier(cfg.Alerts.PushURL)
	}

	ws := &WebServer{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		storage:    storage,
		hub:        hub,
		search:     search,
		poller:     poller,
		portfolios: portfolios,
		backend:    backend,
		relay:      NewChatRelay(db, storage, hub, free, pro, cfg.Chat.FreeTrialLimit, logger),
		summary:    NewSummaryService(portfolios, db, poller, backend, location, logger),
		alerts:     NewAlertService(db, hub, notifier, logger),
		profiles:   NewProfileService(db, portfolios, hub, logger),
	}

	if enableScheduler {
		scheduler, err := NewScheduler(poller, ws.summary, cfg.Quotes.RefreshEvery, cfg.Snapshots.Schedule, cfg.Snapshots.Timezone, logger)
		if err != nil {
			logger.Warn("failed to initialize scheduler", zap.Error(err))
		} else if err := scheduler.Start(); err != nil {
			logger.Warn("failed to start scheduler", zap.Error(err))
		} else {
			ws.scheduler = scheduler
		}
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	ws.router = gin.New()
	ws.router.Use(requestLogger(logger), gin.Recovery(), authGate())
	ws.setupRoutes()
	return ws, nil
}

func newQuotePoller(cfg *Config, search *StockSearchService, storage *LocalStorage, hub *EventHub, logger *zap.Logger) *QuotePoller {
	opts := PollerOptions{BatchSize: cfg.Quotes.BatchSize, BatchDelay: cfg.Quotes.BatchDelay}
	if cfg.Quotes.YahooBaseURL != "" {
		opts.Fallback = NewYahooFinanceClient(cfg.Quotes.YahooBaseURL)
	}
	if cfg.Quotes.FinnhubAPIKey == "" {
		logger.Warn("no Finnhub key configured, quotes will come from the cache")
	}
	source := NewFinnhubClient(cfg.Quotes.FinnhubBaseURL, cfg.Quotes.FinnhubAPIKey)
	return NewQuotePoller(source, search.Symbols(), storage, hub, logger, opts)
}

func newFreeModel(cfg *Config, logger *zap.Logger) LanguageModel {
	if cfg.Chat.OpenAIAPIKey == "" {
		logger.Warn("no OpenAI key configured, free chat will use the fallback reply")
		return nil
	}
	model, err := NewOpenAIModel(context.Background(), cfg.Chat.OpenAIAPIKey, cfg.Chat.OpenAIBaseURL, cfg.Chat.OpenAIModel)
	if err != nil {
		logger.Error("failed to initialize free chat model", zap.Error(err))
		return nil
	}
	return model
}

func newProModel(cfg *Config, logger *zap.Logger) LanguageModel {
	if cfg.Chat.GeminiAPIKey == "" {
		return nil
	}
	model, err := NewGeminiModel(context.Background(), cfg.Chat.GeminiAPIKey, cfg.Chat.GeminiModel)
	if err != nil {
		logger.Error("failed to initialize pro chat model", zap.Error(err))
		return nil
	}
	return model
}

func (ws *WebServer) setupRoutes() {
	ws.router.GET("/healthz", ws.health)

	// Chat backend wire endpoints
	ws.router.POST("/chat", ws.backendChat)
	ws.router.POST("/prochat", ws.backendProChat)
	ws.router.POST("/portfolio", ws.backendPortfolio)

	api := ws.router.Group("/api")
	{
		// Stocks table
		api.GET("/search", ws.searchStocks)
		api.GET("/stocks", ws.getQuotes)
		api.POST("/stocks/refresh", ws.refreshQuotes)
		api.GET("/stocks/:symbol", ws.getQuote)
		api.GET("/stocks/:symbol/candles", ws.getCandles)

		// Portfolio
		api.GET("/portfolio", ws.getPortfolio)
		api.POST("/portfolio", ws.addHolding)
		api.PUT("/portfolio", ws.replacePortfolio)
		api.DELETE("/portfolio/:symbol", ws.removeHolding)
		api.GET("/portfolio/summary", ws.getPortfolioSummary)

		// Tax
		api.POST("/tax", ws.estimateTax)
		api.GET("/report", ws.downloadReport)

		// Chat
		api.GET("/trial", ws.getTrial)
		api.GET("/chats", ws.listChats)
		api.POST("/chats", ws.newChat)
		api.POST("/chats/messages", ws.sendMessage)
		api.GET("/chats/:id/messages", ws.listMessages)
		api.POST("/chats/:id/messages", ws.sendMessage)

		// Alerts
		api.GET("/alerts", ws.listAlerts)
		api.POST("/alerts", ws.sendAlert)

		api.GET("/events", ws.streamEvents)

		user := api.Group("", requireUser())
		{
			user.POST("/auth/signin", ws.signIn)
			user.GET("/profile", ws.getProfile)
			user.POST("/profile/pro", ws.setPro)
			user.POST("/payments/complete", ws.completePayment)
		}
	}
}

func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Run serves until ctx is cancelled, then drains open requests.
func (ws *WebServer) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: ws.router,
		// event streams end with ctx instead of holding up Shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		ws.logger.Info("web server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ws.logger.Info("web server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (ws *WebServer) Close() {
	if ws.scheduler != nil {
		ws.scheduler.Stop()
	}
	if ws.db != nil {
		if err := ws.db.Close(); err != nil {
			ws.logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
