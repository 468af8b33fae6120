// Command audit-tail prints the audit stream published by dispatch.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"gitlab.ozon.dev/qwestard/dispatch/internal/audit"
	"gitlab.ozon.dev/qwestard/dispatch/internal/config"
	"gitlab.ozon.dev/qwestard/dispatch/internal/kafka"
	"gitlab.ozon.dev/qwestard/dispatch/internal/logging"
)

const groupID = "dispatch-audit-tail"

func main() {
	cfg := config.LoadConfig()
	log := logging.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Error("audit-tail stopped")
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logrus.Logger) error {
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle := func(value []byte) error {
		rec, err := audit.Decode(value)
		if err != nil {
			return err
		}
		entry := log.WithFields(logrus.Fields{
			"id":       rec.ID,
			"at":       rec.Timestamp,
			"action":   rec.Action,
			"order_id": rec.OrderID,
			"endpoint": rec.Endpoint,
		})
		if rec.Err != "" {
			entry.WithField("error", rec.Err).Warn(rec.Message)
			return nil
		}
		entry.Info(rec.Message)
		return nil
	}

	log.WithField("topic", cfg.KafkaTopic).Info("tailing audit stream")
	if err := kafka.Consume(ctx, cfg.KafkaBrokers, groupID, []string{cfg.KafkaTopic}, handle, log); err != nil {
		return fmt.Errorf("consume audit stream: %w", err)
	}
	return nil
}
