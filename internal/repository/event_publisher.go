package repository

import (
	"context"

	"SynthCast/internal/domain/models"
	"SynthCast/internal/domain/repository"
	pkgkafka "SynthCast/pkg/kafka"
)

// KafkaEventPublisher emits forecast and score events to dedicated topics.
type KafkaEventPublisher struct {
	producer      *pkgkafka.Producer
	forecastTopic string
	scoreTopic    string
}

// NewKafkaEventPublisher creates a Kafka event publisher.
func NewKafkaEventPublisher(producer *pkgkafka.Producer, forecastTopic, scoreTopic string) repository.EventPublisher {
	return &KafkaEventPublisher{
		producer:      producer,
		forecastTopic: forecastTopic,
		scoreTopic:    scoreTopic,
	}
}

func (p *KafkaEventPublisher) PublishForecast(ctx context.Context, evt *models.ForecastEvent) error {
	return p.producer.Publish(ctx, p.forecastTopic, []byte(evt.Asset), evt)
}

func (p *KafkaEventPublisher) PublishScore(ctx context.Context, evt *models.ScoreEvent) error {
	key := evt.Asset
	if key == "" {
		key = evt.Model
	}
	return p.producer.Publish(ctx, p.scoreTopic, []byte(key), evt)
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
