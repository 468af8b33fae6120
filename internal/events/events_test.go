package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeStampsTime(t *testing.T) {
	data, err := Encode(Change{Action: "board.move", OrderID: 42, Date: "2024-06-02"})
	require.NoError(t, err)

	ch, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ch.OrderID)
	assert.Equal(t, "2024-06-02", ch.Date)
	assert.WithinDuration(t, time.Now(), ch.At, time.Minute)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("{"))
	assert.Error(t, err)
}

func TestNopNotifier(t *testing.T) {
	var n Notifier = NopNotifier{}
	assert.NoError(t, n.Notify(context.Background(), Change{}))
}
