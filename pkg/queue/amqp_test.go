package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAMQPPendingReconnectFailsFast(t *testing.T) {
	// connection down and the last dial was just now: callers must get an
	// error immediately rather than queueing up behind the reconnect delay
	q := &AMQP{url: "amqp://127.0.0.1:1", reconnectDelay: time.Hour, lastDial: time.Now()}

	start := time.Now()
	err := q.Publish(context.Background(), Job{DatasetID: "a"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
