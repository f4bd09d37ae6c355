package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/gommon/log"

	"github.com/jask/finsync/internal/config"
	"github.com/jask/finsync/internal/database"
	"github.com/jask/finsync/internal/database/repository"
	"github.com/jask/finsync/internal/llm"
	"github.com/jask/finsync/internal/pluggy"
	"github.com/jask/finsync/internal/secrets"
	"github.com/jask/finsync/internal/service"
)

// app is the wired process: one database, one logger, shared repositories.
type app struct {
	cfg    config.Config
	db     *sql.DB
	logger *log.Logger

	connections *repository.BankConnectionRepo
	items       *repository.OpenFinanceItemRepo
	security    *repository.SecurityEventRepo
	logs        *repository.IntegrationLogRepo

	resolver *service.Resolver
	sync     *service.SyncService
	router   *service.EventRouter
}

func newLogger(level string) *log.Logger {
	logger := log.New("finsync")
	logger.SetOutput(os.Stderr)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logger.SetLevel(log.DEBUG)
	case "warn":
		logger.SetLevel(log.WARN)
	case "error":
		logger.SetLevel(log.ERROR)
	case "off":
		logger.SetLevel(log.OFF)
	default:
		logger.SetLevel(log.INFO)
	}
	return logger
}

// openDatabase applies migrations and opens the configured sqlite file.
func openDatabase(cfg config.Config) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	if err := database.RunMigrations(cfg.Database.Path); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger := newLogger(cfg.Log.Level)
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	// repositories
	connRepo := repository.NewBankConnectionRepo(db)
	itemRepo := repository.NewOpenFinanceItemRepo(db)
	acctRepo := repository.NewAccountRepo(db)
	txRepo := repository.NewTransactionRepo(db)
	catRepo := repository.NewCategoryRepo(db)
	ruleRepo := repository.NewReconciliationRuleRepo(db)
	patternRepo := repository.NewTransactionPatternRepo(db)
	logRepo := repository.NewIntegrationLogRepo(db)
	securityRepo := repository.NewSecurityEventRepo(db)
	rawRepo := repository.NewRawDataRepo(db)
	syncLogRepo := repository.NewSyncLogRepo(db)

	upstream := pluggy.NewClient(pluggy.Config{
		BaseURL:           cfg.Pluggy.BaseURL,
		ClientID:          cfg.Pluggy.ClientID,
		ClientSecret:      secrets.Resolve("PLUGGY_CLIENT_SECRET", secrets.PluggyClientSecret, cfg.Pluggy.ClientSecret),
		Timeout:           cfg.Pluggy.Timeout,
		RequestsPerSecond: cfg.Pluggy.RequestsPerSecond,
	})

	categorizer := &service.CategorizerService{
		Transactions: txRepo,
		Rules:        ruleRepo,
		Patterns:     patternRepo,
		Categories:   catRepo,
		Logger:       logger,
	}
	if chain := aiChain(cfg, logger); chain.Len() > 0 {
		categorizer.Provider = chain
	} else {
		logger.Warnf("[AI] no provider configured; AI classification disabled")
	}

	resolver := &service.Resolver{Items: itemRepo, Connections: connRepo}
	syncSvc := &service.SyncService{
		Upstream:     upstream,
		Connections:  connRepo,
		Items:        itemRepo,
		Accounts:     acctRepo,
		Transactions: txRepo,
		RawData:      rawRepo,
		SyncLogs:     syncLogRepo,
		Categorizer:  categorizer,
		Logger:       logger,
	}
	router := &service.EventRouter{
		Resolver:    resolver,
		Connections: connRepo,
		Items:       itemRepo,
		Sync:        syncSvc,
		Logs:        logRepo,
		Logger:      logger,
	}

	return &app{
		cfg:         cfg,
		db:          db,
		logger:      logger,
		connections: connRepo,
		items:       itemRepo,
		security:    securityRepo,
		logs:        logRepo,
		resolver:    resolver,
		sync:        syncSvc,
		router:      router,
	}, nil
}

func (a *app) Close() error { return a.db.Close() }

// aiChain builds the primary then fallback provider. Providers without a key
// are skipped.
func aiChain(cfg config.Config, logger *log.Logger) *llm.Chain {
	var providers []llm.Provider
	for _, p := range []struct {
		cfg    config.ProviderConfig
		secret string
	}{
		{cfg.AI.Primary, secrets.AIPrimaryKey},
		{cfg.AI.Fallback, secrets.AIFallbackKey},
	} {
		key := secrets.Resolve(p.cfg.APIKeyEnv, p.secret, p.cfg.APIKey)
		if key == "" {
			continue
		}
		provider, err := llm.NewOpenAIProvider(llm.ProviderConfig{
			Name:    p.cfg.Provider,
			APIKey:  key,
			Model:   p.cfg.Model,
			BaseURL: p.cfg.BaseURL,
			Timeout: cfg.AI.Timeout,
		})
		if err != nil {
			logger.Warnf("[AI] skip provider %s: %v", p.cfg.Provider, err)
			continue
		}
		providers = append(providers, provider)
	}
	return llm.NewChain(logger, providers...)
}

func webhookSecret(cfg config.Config) string {
	return secrets.Resolve("PLUGGY_WEBHOOK_SECRET", secrets.PluggyWebhookSecret, cfg.Pluggy.WebhookSecret)
}
