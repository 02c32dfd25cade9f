package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/domain/repository"
	pkgkafka "SynthCast/pkg/kafka"
)

// ClickHouseTickStore implements Storage for ClickHouse.
type ClickHouseTickStore struct {
	db    *sql.DB
	table string
}

// NewClickHouseTickStore creates ClickHouse tick storage.
func NewClickHouseTickStore(db *sql.DB, table string) repository.Storage {
	return &ClickHouseTickStore{db: db, table: table}
}

func (s *ClickHouseTickStore) Init(ctx context.Context) error {
	return nil // Schema init in pkg
}

func (s *ClickHouseTickStore) Store(ctx context.Context, t *models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, asset, price, volume, event_id) VALUES (?, ?, ?, ?, ?)", s.table)
	// Idempotency key derived from asset+timestamp
	eventID := fmt.Sprintf("%s-%d", t.Asset, t.Timestamp)
	_, err := s.db.ExecContext(ctx, q,
		time.Unix(t.Timestamp, 0),
		t.Asset,
		t.Price,
		t.Volume,
		eventID,
	)
	return err
}

func (s *ClickHouseTickStore) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	// Multi-row VALUES insert, chunked to bound statement size.
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := start + chunkSize
		if end > len(ticks) {
			end = len(ticks)
		}

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, t := range ticks[start:end] {
			if t == nil || t.Asset == "" || t.Timestamp == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args,
				time.Unix(t.Timestamp, 0),
				t.Asset,
				t.Price,
				t.Volume,
				fmt.Sprintf("%s-%d", t.Asset, t.Timestamp),
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, asset, price, volume, event_id) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *ClickHouseTickStore) Query(ctx context.Context, asset string, from, to time.Time, limit int) ([]*models.Tick, error) {
	q := fmt.Sprintf("SELECT asset, ts, price, volume FROM %s WHERE asset = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, asset, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []*models.Tick
	for rows.Next() {
		var t models.Tick
		var ts time.Time
		if err := rows.Scan(&t.Asset, &ts, &t.Price, &t.Volume); err != nil {
			return nil, err
		}
		t.Timestamp = ts.Unix()
		ticks = append(ticks, &t)
	}
	return ticks, rows.Err()
}

func (s *ClickHouseTickStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseTickStore) Close() error {
	return nil // Managed by pkg
}

// KafkaTickPublisher implements Publisher for Kafka.
type KafkaTickPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaTickPublisher creates a Kafka tick publisher.
func NewKafkaTickPublisher(producer *pkgkafka.Producer, topic string) repository.Publisher {
	return &KafkaTickPublisher{producer: producer, topic: topic}
}

func (p *KafkaTickPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.producer.Publish(ctx, p.topic, []byte(t.Asset), map[string]interface{}{
		"asset": t.Asset,
		"t":     t.Timestamp,
		"c":     t.Price,
		"v":     t.Volume,
	})
}

func (p *KafkaTickPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(ticks))
	for i, t := range ticks {
		msgs[i] = pkgkafka.Message{
			Key: []byte(t.Asset),
			Value: map[string]interface{}{
				"asset": t.Asset,
				"t":     t.Timestamp,
				"c":     t.Price,
				"v":     t.Volume,
			},
		}
	}
	return p.producer.PublishBatch(ctx, p.topic, msgs)
}

func (p *KafkaTickPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
