package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"storagepricing/internal/app/dto"
	availabilityapp "storagepricing/internal/app/services/availability"
	pricingapp "storagepricing/internal/app/services/pricing"
	"storagepricing/internal/app/workers"
	"storagepricing/internal/domain/availability"
	"storagepricing/internal/domain/pricing"
	s3archive "storagepricing/internal/infra/archive/s3"
	"storagepricing/internal/infra/baserate"
	"storagepricing/internal/infra/broker/kafka"
	"storagepricing/internal/infra/config"
	mongodb "storagepricing/internal/infra/db/mongo"
	ginserver "storagepricing/internal/infra/http/gin"
	"storagepricing/internal/infra/obs"
	"storagepricing/internal/infra/storage/memory"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("application wiring failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Checks: app.healthChecks,
	}, app.handlers)

	app.loadFixtures(ctx, logger)
	app.startWorkers(ctx, cfg, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers     ginserver.Handlers
	healthChecks map[string]func() error

	snapshots    availability.Store
	rules        pricing.RuleSet
	availability *availabilityapp.Service
	pruner       *workers.Pruner
	consumer     *kafka.Consumer
	producer     *kafka.Producer
	unitTopic    string
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{healthChecks: map[string]func() error{}}

	switch cfg.StoreMode {
	case "mongo":
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		snapshots := mongodb.NewSnapshotRepository(client.DB)
		snapshots.VelocityWindow = cfg.DemandWindow
		app.snapshots = snapshots
		app.rules = mongodb.NewRuleRepository(client.DB)
		app.healthChecks["mongo"] = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
	default:
		snapshots := memory.NewSnapshotStore()
		snapshots.VelocityWindow = cfg.DemandWindow
		app.snapshots = snapshots
		app.rules = memory.NewRuleStore()
	}

	rates := &baserate.Client{
		HTTP:     &http.Client{Timeout: cfg.BaseRateTimeout},
		Endpoint: cfg.BaseRateURL,
		Table:    baserate.LoadRateTable(cfg.BaseRateTable, logger),
		Logger:   logger,
	}

	engine := &pricing.Engine{
		Rules:     app.rules,
		Snapshots: app.snapshots,
		BaseRates: rates,
		Logger:    logger,
	}
	pricingSvc := &pricingapp.Service{
		Engine:    engine,
		Snapshots: app.snapshots,
		Demand:    availability.DefaultDemandPolicy(),
		Logger:    logger,
	}

	var publisher availabilityapp.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		app.producer = producer
		publisher = kafka.EventPublisher{
			Producer: producer,
			Topic:    cfg.KafkaEventTopic,
			Source:   "pricingd",
		}
	}

	app.availability = &availabilityapp.Service{
		Store:     app.snapshots,
		Updater:   &availability.Updater{Store: app.snapshots, Logger: logger},
		Publisher: publisher,
		Logger:    logger,
	}

	if len(cfg.KafkaBrokers) > 0 {
		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, nil,
			kafka.UnitChangeHandler{Service: app.availability, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		app.consumer = consumer
		app.unitTopic = cfg.KafkaUnitTopic
	}

	var archiver workers.Archiver = s3archive.NoopArchiver{}
	if cfg.ArchiveEnable {
		client, err := s3archive.NewClient(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger)
		if err != nil {
			return nil, fmt.Errorf("archive client: %w", err)
		}
		archiver = client
	}
	app.pruner = &workers.Pruner{
		Store:    app.snapshots,
		Archiver: archiver,
		MaxAge:   cfg.SnapshotMaxAge,
		Interval: cfg.PruneInterval,
		Logger:   logger,
	}

	app.handlers = ginserver.Handlers{
		Pricing:      ginserver.PricingHandler{Service: pricingSvc},
		Availability: ginserver.AvailabilityHandler{Service: app.availability},
		Rules:        ginserver.RuleHandler{Rules: app.rules, Currency: cfg.Currency},
	}
	return app, nil
}

func (a *application) startWorkers(ctx context.Context, cfg config.Config, logger *slog.Logger) {
	go func() {
		if err := a.pruner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("pruner stopped", "error", err)
		}
	}()
	if a.consumer != nil {
		go func() {
			if err := a.consumer.Run(ctx, []string{a.unitTopic}); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("kafka consumer stopped", "error", err)
			}
		}()
	}
}

func (a *application) close(logger *slog.Logger) {
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			logger.Warn("kafka consumer close failed", "error", err)
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			logger.Warn("kafka producer close failed", "error", err)
		}
	}
}

// loadFixtures seeds tracked units and pricing rules from JSON files so
// a fresh instance answers price queries immediately.
func (a *application) loadFixtures(ctx context.Context, logger *slog.Logger) {
	unitsPath := getenv("UNITS_FIXTURES", filepath.Join("data", "units.json"))
	if err := a.loadUnitFixtures(ctx, unitsPath, logger); err != nil {
		logger.Warn("unit fixtures load failed", "error", err, "path", unitsPath)
	}
	rulesPath := getenv("RULES_FIXTURES", filepath.Join("data", "rules.json"))
	if err := a.loadRuleFixtures(ctx, rulesPath, logger); err != nil {
		logger.Warn("rule fixtures load failed", "error", err, "path", rulesPath)
	}
}

type unitFixture struct {
	FacilityID int64  `json:"facility_id"`
	UnitType   string `json:"unit_type"`
	UnitSize   string `json:"unit_size"`
	TotalUnits int    `json:"total_units"`
}

func (a *application) loadUnitFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	var fixtures []unitFixture
	ok, err := readFixtureFile(path, &fixtures, logger)
	if err != nil || !ok {
		return err
	}
	for _, fx := range fixtures {
		key := availability.Key{FacilityID: fx.FacilityID, UnitType: fx.UnitType, UnitSize: fx.UnitSize}
		if _, err := a.availability.Track(ctx, key, fx.TotalUnits); err != nil {
			if errors.Is(err, availability.ErrAlreadyTracked) {
				continue
			}
			logger.Error("cannot track fixture units", "key", key.String(), "error", err)
			continue
		}
		logger.Info("unit fixture imported", "key", key.String(), "total_units", fx.TotalUnits)
	}
	return nil
}

func (a *application) loadRuleFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	var fixtures []dto.CreateRuleRequest
	ok, err := readFixtureFile(path, &fixtures, logger)
	if err != nil || !ok {
		return err
	}
	currency := getenv("PRICING_CURRENCY", "USD")
	for _, fx := range fixtures {
		rule, err := a.rules.Add(ctx, fx.ToDomain(currency))
		if err != nil {
			logger.Error("fixture rule invalid", "name", fx.Name, "error", err)
			continue
		}
		if err := a.rules.Activate(ctx, rule.ID); err != nil {
			logger.Error("fixture rule activation failed", "rule_id", rule.ID, "error", err)
			continue
		}
		logger.Info("rule fixture imported", "rule_id", rule.ID, "name", rule.Name)
	}
	return nil
}

func readFixtureFile(path string, target any, logger *slog.Logger) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("fixtures file not found, skipping", "path", path)
			return false, nil
		}
		return false, fmt.Errorf("read fixtures: %w", err)
	}
	if len(data) == 0 {
		logger.Warn("fixtures file empty", "path", path)
		return false, nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return false, fmt.Errorf("decode fixtures: %w", err)
	}
	return true, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
