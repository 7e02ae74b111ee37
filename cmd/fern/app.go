package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/approval"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/graph"
	"github.com/Ramsey-B/fern/pkg/graph/cypher"
	"github.com/Ramsey-B/fern/pkg/graph/memory"
	"github.com/Ramsey-B/fern/pkg/graph/postgres"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/logging"
	fernredis "github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
)

// app owns the connections shared by every command.
type app struct {
	cfg     *config.Config
	logger  ectologger.Logger
	startup *startup.Startup

	store    graph.Store
	bolt     *cypher.Client
	db       database.DB
	redis    *fernredis.Client
	producer *kafka.Producer
}

type appOptions struct {
	// schema applies indexes, constraints and migrations once the graph is connected.
	schema bool
	// notifications connects Redis and Kafka when they are enabled.
	notifications bool
}

func newApp(opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.PrettyLogs)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		startup: startup.NewStartup(logger, cfg.StartupMaxAttempts),
	}

	a.startup.AddDependency(startup.Dependency{
		Name:    "graph",
		StartFn: a.connectGraph,
		StopFn:  a.closeGraph,
	})
	if opts.schema {
		a.startup.AddDependency(startup.Dependency{
			Name:     "schema",
			Requires: []string{"graph"},
			StartFn:  a.ensureSchema,
		})
	}
	if opts.notifications && cfg.RedisEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name:    "redis",
			StartFn: a.connectRedis,
			StopFn:  a.closeRedis,
		})
	}
	if opts.notifications && cfg.KafkaEnabled {
		a.startup.AddDependency(startup.Dependency{
			Name:    "kafka",
			StartFn: a.connectKafka,
			StopFn:  a.closeKafka,
		})
	}

	return a, nil
}

func (a *app) start(ctx context.Context) error {
	return a.startup.Start(ctx)
}

func (a *app) stop(ctx context.Context) {
	if err := a.startup.Stop(ctx); err != nil {
		a.logger.WithError(err).Warn("Shutdown finished with errors")
	}
}

func (a *app) connectGraph(ctx context.Context) error {
	switch a.cfg.GraphBackend {
	case config.GraphBackendMemory:
		a.logger.Warn("Using the in-memory graph store; data is lost on exit")
		a.store = memory.NewStore()

	case config.GraphBackendBolt:
		client, err := cypher.NewClient(cypher.Config{
			Host:     a.cfg.GraphDBHost,
			Port:     a.cfg.GraphDBPort,
			Username: a.cfg.GraphDBUser,
			Password: a.cfg.GraphDBPassword,
			Database: a.cfg.GraphDBName,
		}, a.logger)
		if err != nil {
			return err
		}
		if err := client.VerifyConnectivity(ctx); err != nil {
			_ = client.Close(ctx)
			return fmt.Errorf("graph database unreachable: %w", err)
		}
		a.bolt = client
		a.store = cypher.NewStore(client, a.logger)

	case config.GraphBackendPostgres:
		db, err := database.Open(ctx, database.Config{
			Host:            a.cfg.DatabaseHost,
			Port:            a.cfg.DatabasePort,
			User:            a.cfg.DatabaseUserName,
			Password:        a.cfg.DatabasePassword,
			Name:            a.cfg.DatabaseName,
			SSLMode:         a.cfg.DatabaseSSLMode,
			MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
			MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
			ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
		}, a.logger)
		if err != nil {
			return err
		}
		a.db = db
		a.store = postgres.NewStore(db, a.logger)

	default:
		return fmt.Errorf("unknown graph backend %q", a.cfg.GraphBackend)
	}

	a.logger.WithField("backend", a.cfg.GraphBackend).Info("Graph store ready")
	return nil
}

func (a *app) closeGraph(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	return a.store.Close(ctx)
}

func (a *app) ensureSchema(ctx context.Context) error {
	switch {
	case a.bolt != nil:
		dialect, err := cypher.ParseDialect(a.cfg.GraphDBDialect)
		if err != nil {
			return err
		}
		return a.bolt.EnsureSchema(ctx, dialect)
	case a.db != nil:
		migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
			MigrationFolderPath: a.cfg.DatabaseMigrationFolderPath,
			Version:             a.cfg.DatabaseMigrationVersion,
			Force:               a.cfg.DatabaseMigrationForce,
			AutoRollback:        a.cfg.DatabaseMigrationAutoRollback,
		})
		return migrations.MigratePostgres(a.db, a.cfg.DatabaseName)
	default:
		a.logger.Debug("Graph store needs no schema")
		return nil
	}
}

func (a *app) connectRedis(ctx context.Context) error {
	client, err := fernredis.NewClient(ctx, fernredis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}
	a.redis = client
	return nil
}

func (a *app) closeRedis(context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Close()
}

func (a *app) connectKafka(context.Context) error {
	a.producer = kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      a.cfg.KafkaBrokers,
		Topic:        a.cfg.KafkaEventsTopic,
		BatchSize:    a.cfg.KafkaBatchSize,
		BatchTimeout: time.Duration(a.cfg.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: a.cfg.KafkaRequiredAcks,
		Compression:  a.cfg.KafkaCompression,
	}, a.logger)
	return nil
}

func (a *app) closeKafka(context.Context) error {
	if a.producer == nil {
		return nil
	}
	return a.producer.Close()
}

func (a *app) approvalOptions() []approval.Option {
	var opts []approval.Option
	if a.producer != nil {
		opts = append(opts, approval.WithPublisher(events.NewEmitter(a.producer, a.logger)))
	}
	if a.redis != nil {
		opts = append(opts, approval.WithLocker(fernredis.NewLocker(a.redis, "", a.cfg.ProposalLockTTL, a.cfg.ProposalLockWait)))
	}
	return opts
}

func (a *app) healthChecker() *health.Checker {
	checker := health.NewChecker(a.cfg.Version)
	checker.AddCheck("graph", a.store.Ping)
	if a.redis != nil {
		checker.AddOptionalCheck("redis", a.redis.Ping)
	}
	return checker
}
