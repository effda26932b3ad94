package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"catalogbot/internal/assets"
	"catalogbot/internal/bot"
	"catalogbot/internal/catalog"
	"catalogbot/internal/config"
	"catalogbot/internal/logger"
	"catalogbot/internal/session"
	"catalogbot/internal/storage"
	"catalogbot/internal/storage/ch"
	"catalogbot/internal/storage/gh"
	"catalogbot/internal/storage/stubs"
	"catalogbot/internal/telegram"
)

// App represents the application
type App struct {
	config   *config.Config
	logger   *zap.Logger
	docs     storage.Documents
	blobs    storage.Blobs
	journal  storage.Journal
	sessions session.Store
	service  *catalog.Service
	bot      *bot.Bot
	router   chi.Router
	server   *http.Server
	polling  chan struct{}
}

// New creates and initializes a new application instance from the environment
func New() (*App, error) {
	// Load .env file if it exists
	envErr := godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if envErr != nil {
		log.Debug("No .env file found, using system environment variables")
	}
	return NewWithConfig(cfg, log)
}

// NewWithConfig wires every component for cfg
func NewWithConfig(cfg *config.Config, log *zap.Logger) (*App, error) {
	app := &App{config: cfg, logger: log}

	log.Info("Starting catalog bot")
	for _, name := range cfg.Missing() {
		log.Warn("Missing configuration, dependent features are disabled", zap.String("setting", name))
	}

	app.initStores()
	if err := app.initJournal(); err != nil {
		return nil, err
	}
	if err := app.initSessions(); err != nil {
		return nil, err
	}
	app.initService()
	if err := app.initBot(); err != nil {
		return nil, err
	}
	app.initRouter()

	return app, nil
}

// initStores selects the document and blob store
func (a *App) initStores() {
	switch {
	case a.config.UseMockStore:
		a.logger.Info("Using in-memory catalog store")
		store := stubs.NewMockStore()
		a.docs, a.blobs = store, store
	case a.config.GitHubConfigured():
		a.logger.Info("Using GitHub catalog store",
			zap.String("repo", a.config.GitHubOwner+"/"+a.config.GitHubRepo),
			zap.String("branch", a.config.GitHubBranch),
			zap.String("path", a.config.DataPath))
		store := gh.NewStore(gh.Options{
			Token:    a.config.GitHubToken,
			Owner:    a.config.GitHubOwner,
			Repo:     a.config.GitHubRepo,
			Branch:   a.config.GitHubBranch,
			DataPath: a.config.DataPath,
			Wrapped:  a.config.DataWrapped,
		})
		a.docs, a.blobs = store, store
	default:
		store := storage.Unconfigured{Setting: "GITHUB_TOKEN, GITHUB_OWNER, GITHUB_REPO"}
		a.docs, a.blobs = store, store
	}
}

// initJournal connects the audit journal
func (a *App) initJournal() error {
	var journal storage.Journal
	if a.config.ClickHouseHost == "" {
		a.logger.Info("Using in-memory journal")
		journal = stubs.NewMockJournal()
	} else {
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.Bool("tls", a.config.ClickHouseUseTLS))
		clickhouseDB, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		journal = clickhouseDB
	}

	if err := journal.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	a.journal = journal
	return nil
}

// initSessions selects the conversation session store
func (a *App) initSessions() error {
	if a.config.RedisURL == "" {
		a.logger.Info("Using in-memory sessions")
		a.sessions = session.NewMemoryStore(a.config.SessionTTL)
		return nil
	}

	client, err := session.NewRedisClient(a.config.RedisURL, a.config.RedisPassword, a.config.RedisDB)
	if err != nil {
		return err
	}
	a.logger.Info("Using Redis sessions", zap.Duration("ttl", a.config.SessionTTL))
	a.sessions = session.NewRedisStore(client, "catalogbot:", a.config.SessionTTL, a.config.LockTTL)
	return nil
}

func (a *App) initService() {
	repo := catalog.NewRepository(a.docs, a.blobs, a.config.AssetsDir, a.logger)
	a.service = catalog.NewService(repo, a.journal, a.logger)
}

// initBot initializes the Telegram bot; without a token the HTTP API still runs
func (a *App) initBot() error {
	gateway, err := telegram.NewGateway(a.config.TelegramToken, "", a.config.AdminChatID, a.logger)
	if err != nil {
		if a.config.TelegramToken == "" {
			a.logger.Warn("Telegram bot disabled", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	var wizardCatalog catalog.Catalog = a.service
	checks := []bot.Check{
		{Name: "Documento del catálogo", Ping: func(ctx context.Context) error {
			_, _, err := a.docs.ReadDocument(ctx)
			return err
		}},
		{Name: "Sesiones", Ping: a.sessions.Ping},
		{Name: "Historial", Ping: func(ctx context.Context) error {
			_, err := a.journal.LastEvents(ctx, 1)
			return err
		}},
	}
	if a.config.CatalogAPIURL != "" {
		a.logger.Info("Wizard uses the remote product API", zap.String("url", a.config.CatalogAPIURL))
		client := catalog.NewClient(a.config.CatalogAPIURL, a.config.APIKey)
		wizardCatalog = client
		checks = append(checks, bot.Check{Name: "API de productos", Ping: func(ctx context.Context) error {
			_, err := client.List(ctx)
			return err
		}})
	}

	telegramBot, err := bot.NewBot(bot.Deps{
		API:       gateway.API(),
		Messenger: gateway,
		Catalog:   wizardCatalog,
		Sessions:  a.sessions,
		Uploader:  assets.NewUploader(a.blobs, a.config.AssetsDir, a.config.AssetsBaseURL, a.logger),
		Journal:   a.journal,
	}, bot.Options{
		AllowedUserIDs:  a.config.AllowedUserIDs,
		OperatorUserIDs: a.config.OperatorUserIDs,
		LockTimeout:     a.config.LockTimeout,
		MaxUploadBytes:  a.config.MaxUploadBytes,
		Choices:         a.config.Options,
		Settings:        settings(a.config),
		Checks:          checks,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	a.bot = telegramBot
	return nil
}

// settings lists the required settings and whether each one was provided
func settings(cfg *config.Config) []bot.Setting {
	missing := cfg.Missing()
	var out []bot.Setting
	for _, name := range config.RequiredSettings {
		out = append(out, bot.Setting{Name: name, Configured: !slices.Contains(missing, name)})
	}
	return out
}

// initRouter mounts the webhook, the product API and the health endpoints
func (a *App) initRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(a.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		mode := "polling"
		if a.config.WebhookMode {
			mode = "webhook"
		}
		fmt.Fprintf(w, "Catalog bot is running (mode: %s)", mode)
	})

	var dispatch func(tgbotapi.Update)
	if a.bot != nil {
		dispatch = a.bot.HandleWebhookUpdate
	}
	r.Post("/telegram-webhook", webhookHandler(dispatch, a.config.WebhookSecret, a.logger))

	catalog.NewHandler(a.service, a.config.APIKey, a.logger).RegisterRoutes(r)

	a.router = r
}

// Handler returns the HTTP handler of the application
func (a *App) Handler() http.Handler {
	return a.router
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start bot in appropriate mode
	if a.bot != nil {
		if a.config.WebhookMode {
			if err := a.bot.StartWebhook(a.config.WebhookURL, a.config.WebhookSecret); err != nil {
				return fmt.Errorf("failed to setup webhook: %w", err)
			}
			a.logger.Info("Webhook configured, updates arrive on /telegram-webhook")
		} else {
			a.polling = make(chan struct{})
			go func() {
				defer close(a.polling)
				if err := a.bot.Start(ctx); err != nil {
					a.logger.Error("Polling stopped", zap.Error(err))
				}
			}()
		}
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down...")
	case err := <-serverErr:
		a.logger.Error("HTTP server error", zap.Error(err))
		stop()
		a.Shutdown()
		return err
	}
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// let the polling loop and in-flight updates finish
	if a.polling != nil {
		<-a.polling
	}
	if a.bot != nil {
		a.bot.Wait()
	}

	var errs []error
	if err := a.sessions.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close sessions: %w", err))
	}
	if err := a.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
