package mq

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Pipeworks/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJob(t *testing.T) {
	job := queue.NewJob(uuid.New())
	body, err := json.Marshal(NewJobMessage(job))
	require.NoError(t, err)

	got, err := decodeJob(body)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, job.RunID, got.RunID)
	assert.True(t, job.EnqueuedAt.Equal(got.EnqueuedAt))
}

func TestDecodeJob_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"wrong type", `{"id":"1","type":"task.ready","payload":{"run_id":"` + uuid.NewString() + `"}}`},
		{"no run id", `{"id":"1","type":"run.execute","payload":{}}`},
		{"bad payload", `{"id":"1","type":"run.execute","payload":{"run_id":42}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeJob([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDefaultTopology_DeadLetters(t *testing.T) {
	topo := defaultTopology()

	var execute *queueDecl
	for i := range topo.Queues {
		if topo.Queues[i].name == QueueRunsExecute {
			execute = &topo.Queues[i]
		}
	}
	require.NotNil(t, execute)
	assert.Equal(t, string(ExchangeDLQ), execute.args["x-dead-letter-exchange"])
	assert.Equal(t, string(RoutingKeyDLQRuns), execute.args["x-dead-letter-routing-key"])

	assert.Contains(t, topo.Bindings, bindingDecl{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ})
}

func TestReconnectBackOff_Bounded(t *testing.T) {
	b := reconnectBackOff()
	for i := 0; i < 20; i++ {
		d := b.NextBackOff()
		require.Positive(t, d)
		// RandomizationFactor по умолчанию 0.5
		assert.LessOrEqual(t, d.Seconds(), 45.0)
	}
}
