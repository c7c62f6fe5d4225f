package main

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wekeepgrowing/qris-gateway/internal/adapter/publisher"
	"github.com/wekeepgrowing/qris-gateway/internal/config"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/database"
	"github.com/wekeepgrowing/qris-gateway/internal/infrastructure/provider"
	"github.com/wekeepgrowing/qris-gateway/internal/usecase"
	"github.com/wekeepgrowing/qris-gateway/pkg/logger"
	"github.com/wekeepgrowing/qris-gateway/pkg/messaging"
)

// application holds the wired service graph shared by every command
type application struct {
	config    *config.Config
	logger    *zap.Logger
	db        *gorm.DB
	repos     *database.Repositories
	publisher *publisher.StatusPublisher
	qris      *usecase.QrisService
	webhooks  *usecase.WebhookService
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	log = log.With(
		zap.String("service", cfg.Service.Name),
		zap.String("environment", cfg.Service.Environment),
	)
	return cfg, log, nil
}

// openDatabase connects to postgres; it returns nil for the memory driver
func openDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	if cfg.Storage.Driver == "memory" {
		log.Warn("Using in-memory storage, payments are lost on restart")
		return nil, nil
	}
	return database.NewConnection(&cfg.Database, cfg.Log.Development, log)
}

func newApplication() (*application, error) {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return nil, err
	}

	app := &application{config: cfg, logger: log}

	app.db, err = openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	if app.db != nil {
		if err := database.Migrate(app.db, log); err != nil {
			app.close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		app.repos = database.NewRepositories(app.db, log)
	} else {
		app.repos = database.NewMemoryRepositories()
	}

	sink, err := newMessagingPublisher(&cfg.Events)
	if err != nil {
		app.close()
		return nil, err
	}
	app.publisher = publisher.NewStatusPublisher(sink, cfg.Events.Topic, log)

	client, _, err := provider.NewFactory(&cfg.Gateway, log).NewClient()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	engine := usecase.NewReconciliationEngine(app.repos.Payments, log)
	app.qris = usecase.NewQrisService(app.repos.Payments, client, engine, app.publisher, usecase.QrisServiceConfig{
		Currency:        cfg.Gateway.Currency,
		QRValidity:      cfg.Gateway.QRValidity,
		PollMaxAttempts: cfg.Polling.MaxAttempts,
		PollInterval:    cfg.Polling.Interval,
	}, log)
	app.webhooks = usecase.NewWebhookService(app.repos.WebhookEvents, app.qris, log)

	log.Info("Application initialized",
		zap.String("gateway_profile", cfg.Gateway.Profile),
		zap.String("gateway_environment", cfg.Gateway.Environment),
		zap.String("gateway_base_url", cfg.Gateway.ResolvedBaseURL()),
		zap.String("client_secret", logger.MaskSecret(cfg.Gateway.ClientSecret)),
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("events_driver", cfg.Events.Driver))

	return app, nil
}

func newMessagingPublisher(cfg *config.EventsConfig) (messaging.Publisher, error) {
	switch cfg.Driver {
	case "redis":
		client, err := messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		return client, nil
	case "kafka":
		return messaging.NewKafkaPublisher(messaging.KafkaConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
			Retries:  cfg.Kafka.Retries,
		})
	default:
		return messaging.NopPublisher{}, nil
	}
}

func (a *application) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := database.Close(a.db, a.logger); err != nil {
			a.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
