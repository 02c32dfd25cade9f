package logger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *capturePublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	return nil
}

func (p *capturePublisher) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func (p *capturePublisher) batch(i int) []AggregatedLogEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches[i]
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "logs.test",
		Publisher:      pub,
	})

	c.AddLog("error", "insert failed", map[string]interface{}{"asset": "BTC"}, "store.go:42")
	c.AddLog("error", "insert failed", map[string]interface{}{"asset": "BTC"}, "store.go:42")
	c.AddLog("error", "publish failed", nil, "producer.go:70")
	c.Close()

	require.Eventually(t, func() bool { return pub.batchCount() == 1 }, time.Second, 10*time.Millisecond)

	batch := pub.batch(0)
	require.Len(t, batch, 2)
	counts := make(map[string]int, len(batch))
	for _, e := range batch {
		counts[e.Message] = e.Count
	}
	assert.Equal(t, 2, counts["insert failed"])
	assert.Equal(t, 1, counts["publish failed"])
}

func TestCollectorFlushesOnCountThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "logs.test",
		Publisher:      pub,
	})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")

	require.Eventually(t, func() bool { return pub.batchCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Len(t, pub.batch(0), 2)
}
