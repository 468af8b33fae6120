package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu      sync.Mutex
	batches [][]Record
}

func (c *collector) Process(batch []Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, append([]Record(nil), batch...))
	return nil
}

func (c *collector) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func TestPoolFlushesOnBatchSize(t *testing.T) {
	log, _ := test.NewNullLogger()
	col := &collector{}
	p := NewPool(PoolConfig{BatchSize: 2, Timeout: time.Hour, ChannelSize: 10}, log, col)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, 1)

	p.Log(Record{Action: "board.move", OrderID: 1})
	p.Log(Record{Action: "board.move", OrderID: 2})

	assert.Eventually(t, func() bool { return col.total() == 2 }, time.Second, 10*time.Millisecond)
	p.Shutdown(cancel)
}

func TestPoolFlushesOnShutdown(t *testing.T) {
	log, _ := test.NewNullLogger()
	col := &collector{}
	p := NewPool(PoolConfig{BatchSize: 100, Timeout: time.Hour, ChannelSize: 10}, log, col)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, 1)

	p.Log(Record{Action: "order.update"})
	p.Shutdown(cancel)

	assert.Equal(t, 1, col.total())
	assert.NotEmpty(t, col.batches[0][0].ID)
	assert.False(t, col.batches[0][0].Timestamp.IsZero())
}

func TestLogProcessorFilter(t *testing.T) {
	log, hook := test.NewNullLogger()
	p := &LogProcessor{Log: log, Filter: "move"}

	require.NoError(t, p.Process([]Record{
		{Action: "board.move", Message: "order moved", OrderID: 3},
		{Action: "invoice.delete", Message: "invoice deleted"},
		{Action: "board.move", Message: "order moved", Err: "boom"},
	}))

	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, logrus.InfoLevel, hook.AllEntries()[0].Level)
	assert.Equal(t, int64(3), hook.AllEntries()[0].Data["order_id"])
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

type fakePublisher struct {
	topic string
	msgs  [][]byte
	err   error
}

func (f *fakePublisher) Publish(topic string, msg []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topic = topic
	f.msgs = append(f.msgs, msg)
	return nil
}

func TestKafkaProcessorRoundTrip(t *testing.T) {
	pub := &fakePublisher{}
	p := &KafkaProcessor{Producer: pub, Topic: "dispatch-audit"}
	ts := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, p.Process([]Record{{ID: "a", Timestamp: ts, Action: "board.move", OrderID: 42, Message: "moved"}}))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "dispatch-audit", pub.topic)

	rec, err := Decode(pub.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.OrderID)
	assert.Equal(t, "board.move", rec.Action)
	assert.True(t, ts.Equal(rec.Timestamp))

	pub.err = errors.New("broker down")
	assert.Error(t, p.Process([]Record{{ID: "b"}}))
}

type fakeTasks struct {
	data [][]byte
	err  error
}

func (f *fakeTasks) CreateTask(_ context.Context, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.data = append(f.data, data)
	return nil
}

func TestOutboxProcessorEnqueuesEncodedRecords(t *testing.T) {
	tasks := &fakeTasks{}
	p := &OutboxProcessor{Tasks: tasks, Timeout: time.Second}

	require.NoError(t, p.Process([]Record{{ID: "a", Action: "order.create"}, {ID: "b", Action: "order.status", OrderID: 7}}))
	require.Len(t, tasks.data, 2)

	rec, err := Decode(tasks.data[1])
	require.NoError(t, err)
	assert.Equal(t, "b", rec.ID)
	assert.Equal(t, int64(7), rec.OrderID)

	tasks.err = errors.New("db down")
	assert.ErrorContains(t, p.Process([]Record{{ID: "c"}}), "enqueue audit record c")
}
