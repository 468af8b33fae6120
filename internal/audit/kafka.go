package audit

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type Publisher interface {
	Publish(topic string, message []byte) error
}

// KafkaProcessor publishes every record of a batch as a protobuf-encoded
// Struct.
type KafkaProcessor struct {
	Producer Publisher
	Topic    string
}

func (p *KafkaProcessor) Process(batch []Record) error {
	for _, rec := range batch {
		msg, err := Encode(rec)
		if err != nil {
			return err
		}
		if err := p.Producer.Publish(p.Topic, msg); err != nil {
			return fmt.Errorf("publish audit record %s: %w", rec.ID, err)
		}
	}
	return nil
}

type TaskCreator interface {
	CreateTask(ctx context.Context, auditData []byte) error
}

// OutboxProcessor stores encoded records in the outbox table; a relay
// publishes them to Kafka later.
type OutboxProcessor struct {
	Tasks   TaskCreator
	Timeout time.Duration
}

func (p *OutboxProcessor) Process(batch []Record) error {
	ctx := context.Background()
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	for _, rec := range batch {
		msg, err := Encode(rec)
		if err != nil {
			return err
		}
		if err := p.Tasks.CreateTask(ctx, msg); err != nil {
			return fmt.Errorf("enqueue audit record %s: %w", rec.ID, err)
		}
	}
	return nil
}

func Encode(rec Record) ([]byte, error) {
	st, err := structpb.NewStruct(map[string]any{
		"id":        rec.ID,
		"timestamp": rec.Timestamp.UTC().Format(time.RFC3339Nano),
		"action":    rec.Action,
		"order_id":  rec.OrderID,
		"endpoint":  rec.Endpoint,
		"request":   rec.Request,
		"message":   rec.Message,
		"error":     rec.Err,
	})
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	b, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encode audit record: %w", err)
	}
	return b, nil
}

func Decode(b []byte) (Record, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return Record{}, fmt.Errorf("decode audit record: %w", err)
	}
	f := st.GetFields()
	rec := Record{
		ID:       f["id"].GetStringValue(),
		Action:   f["action"].GetStringValue(),
		OrderID:  int64(f["order_id"].GetNumberValue()),
		Endpoint: f["endpoint"].GetStringValue(),
		Request:  f["request"].GetStringValue(),
		Message:  f["message"].GetStringValue(),
		Err:      f["error"].GetStringValue(),
	}
	if ts := f["timestamp"].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Record{}, fmt.Errorf("decode audit record: %w", err)
		}
		rec.Timestamp = t
	}
	return rec, nil
}
