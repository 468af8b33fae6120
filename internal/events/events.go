// Package events announces board changes so other open boards and the
// finance dashboard can reload.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const SubjectBoardChanged = "board.changed"

type Change struct {
	Action  string    `json:"action"`
	OrderID int64     `json:"order_id,omitempty"`
	Date    string    `json:"date,omitempty"`
	At      time.Time `json:"at"`
}

type Notifier interface {
	Notify(ctx context.Context, ch Change) error
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Change) error { return nil }

type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	log     logrus.FieldLogger
}

func NewNATSNotifier(url string, log logrus.FieldLogger) (*NATSNotifier, error) {
	conn, err := nats.Connect(url,
		nats.Name("dispatch"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSNotifier{conn: conn, subject: SubjectBoardChanged, log: log}, nil
}

func Encode(ch Change) ([]byte, error) {
	if ch.At.IsZero() {
		ch.At = time.Now().UTC()
	}
	return json.Marshal(ch)
}

func Decode(data []byte) (Change, error) {
	var ch Change
	if err := json.Unmarshal(data, &ch); err != nil {
		return Change{}, fmt.Errorf("decode board change: %w", err)
	}
	return ch, nil
}

func (n *NATSNotifier) Notify(ctx context.Context, ch Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(ch)
	if err != nil {
		return err
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

// Subscribe calls fn for every change published by any instance.
func (n *NATSNotifier) Subscribe(fn func(Change)) (*nats.Subscription, error) {
	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		ch, err := Decode(msg.Data)
		if err != nil {
			n.log.WithError(err).Warn("skipping board change")
			return
		}
		fn(ch)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", n.subject, err)
	}
	return sub, nil
}

func (n *NATSNotifier) Close() {
	n.conn.Drain()
}
