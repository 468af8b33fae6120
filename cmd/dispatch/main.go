package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/qwestard/dispatch/internal/audit"
	"gitlab.ozon.dev/qwestard/dispatch/internal/backend"
	"gitlab.ozon.dev/qwestard/dispatch/internal/config"
	"gitlab.ozon.dev/qwestard/dispatch/internal/db"
	"gitlab.ozon.dev/qwestard/dispatch/internal/events"
	"gitlab.ozon.dev/qwestard/dispatch/internal/finance"
	"gitlab.ozon.dev/qwestard/dispatch/internal/kafka"
	"gitlab.ozon.dev/qwestard/dispatch/internal/logging"
	"gitlab.ozon.dev/qwestard/dispatch/internal/prefs"
	taskprocessor "gitlab.ozon.dev/qwestard/dispatch/internal/processor"
	"gitlab.ozon.dev/qwestard/dispatch/internal/repository"
	"gitlab.ozon.dev/qwestard/dispatch/internal/server"
)

const (
	auditWorkers      = 2
	outboxPollEvery   = time.Second
	outboxBatchLimit  = 50
	outboxWriteBudget = 5 * time.Second
)

func main() {
	cfg := config.LoadConfig()
	log := logging.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("dispatch stopped")
		os.Exit(1)
	}
	log.Info("shut down")
}

// run returns instead of exiting so every deferred Close runs.
func run(cfg config.Config, log *logrus.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		api      backend.Backend
		database *sqlx.DB
	)
	switch cfg.Backend {
	case config.BackendDB:
		var err error
		database, err = db.NewDB(cfg.DSN)
		if err != nil {
			return fmt.Errorf("connect to db: %w", err)
		}
		defer database.Close()
		api = backend.NewDBClient(database)
	default:
		api = backend.NewRESTClient(cfg)
	}
	log.WithField("backend", cfg.Backend).Info("backend selected")

	processors := []audit.Processor{&audit.LogProcessor{Log: log, Filter: cfg.AuditFilter}}
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewSaramaProducer(cfg.KafkaBrokers, log)
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()

		if database != nil {
			tasks := repository.NewPostgresTaskRepository(database)
			processors = append(processors, &audit.OutboxProcessor{Tasks: tasks, Timeout: outboxWriteBudget})
			relay := taskprocessor.NewTaskProcessor(tasks, producer, cfg.KafkaTopic, log, outboxPollEvery, outboxBatchLimit)
			go relay.Start(ctx)
		} else {
			processors = append(processors, &audit.KafkaProcessor{Producer: producer, Topic: cfg.KafkaTopic})
		}
	}
	poolCtx, poolCancel := context.WithCancel(context.Background())
	pool := audit.NewPool(audit.DefaultPoolConfig(), log, processors...)
	pool.Start(poolCtx, auditWorkers)
	defer pool.Shutdown(poolCancel)

	store, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		return fmt.Errorf("open preferences: %w", err)
	}
	defer store.Close()

	var (
		notifier events.Notifier = events.NopNotifier{}
		natsConn *events.NATSNotifier
	)
	if cfg.NATSURL != "" {
		natsConn, err = events.NewNATSNotifier(cfg.NATSURL, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer natsConn.Close()
		notifier = natsConn
	}

	srv := server.NewServer(api, store, notifier, pool, log, cfg)
	dash := srv.Dashboard()

	if natsConn != nil {
		_, err := natsConn.Subscribe(func(ch events.Change) {
			if err := dash.Overview.Reload(ctx); err != nil && !errors.Is(err, finance.ErrStale) {
				log.WithError(err).WithField("action", ch.Action).Warn("reload overview after board change")
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe to board changes: %w", err)
		}
	}

	go func() {
		if err := dash.Refresh(ctx); err != nil {
			log.WithError(err).Warn("initial dashboard load")
		}
	}()
	if cfg.RefreshInterval > 0 {
		go dash.StartAutoRefresh(ctx, cfg.RefreshInterval)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return server.RunGRPC(gctx, cfg.GRPCAddr(), log) })
	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}
