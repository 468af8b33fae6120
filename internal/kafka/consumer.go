package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

// HandleFunc processes one message value. An error is logged and the
// message is still marked, so a poison message does not stall the group.
type HandleFunc func(value []byte) error

type ConsumerGroupHandler struct {
	handle HandleFunc
	log    logrus.FieldLogger
}

func (ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		if err := h.handle(msg.Value); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"topic":     msg.Topic,
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Warn("message not handled")
		}
		session.MarkMessage(msg, "")
	}
	return nil
}

// Consume runs the consumer group until ctx is done.
func Consume(ctx context.Context, brokers []string, groupID string, topics []string, handle HandleFunc, log logrus.FieldLogger) error {
	config := sarama.NewConfig()
	config.Consumer.Offsets.Initial = sarama.OffsetOldest

	consumerGroup, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() {
		if err := consumerGroup.Close(); err != nil {
			log.WithError(err).Error("close consumer group")
		}
	}()

	handler := ConsumerGroupHandler{handle: handle, log: log}

	for {
		if err := consumerGroup.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			log.WithError(err).Error("consumer error")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
