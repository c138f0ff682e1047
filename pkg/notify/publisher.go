package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/chainscope/bridge-sentinel/internal/metrics"
	"github.com/chainscope/bridge-sentinel/pkg/config"
	"github.com/chainscope/bridge-sentinel/pkg/model"
)

// StreamPublisher mirrors links and alerts onto Kafka topics for
// downstream consumers. A nil publisher is valid and drops everything.
type StreamPublisher struct {
	links  *kafka.Writer
	alerts *kafka.Writer
	logger *zap.Logger
}

// NewStreamPublisher builds a publisher, or returns nil when no brokers
// are configured.
func NewStreamPublisher(cfg *config.KafkaConfig, logger *zap.Logger) *StreamPublisher {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	return &StreamPublisher{
		links: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.LinkTopic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: cfg.WriteTimeout,
			Async:        true,
		},
		alerts: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.AlertTopic,
			Balancer:     &kafka.Hash{},
			WriteTimeout: cfg.WriteTimeout,
			Async:        true,
		},
		logger: logger,
	}
}

// PublishLink emits a created link keyed by its source wallet.
func (p *StreamPublisher) PublishLink(ctx context.Context, link *model.CrossChainLink) {
	if p == nil {
		return
	}
	p.publish(ctx, p.links, link.SourceWalletAddress, link)
}

// PublishAlert emits a high-risk alert payload keyed by the given id.
func (p *StreamPublisher) PublishAlert(ctx context.Context, key string, payload interface{}) {
	if p == nil {
		return
	}
	p.publish(ctx, p.alerts, key, payload)
}

func (p *StreamPublisher) publish(ctx context.Context, w *kafka.Writer, key string, payload interface{}) {
	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("Failed to marshal stream payload", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("stream", "marshal").Inc()
		return
	}
	err = w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		p.logger.Error("Failed to publish stream message",
			zap.String("topic", w.Topic),
			zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("stream", "publish").Inc()
	}
}

// Close flushes and closes both writers.
func (p *StreamPublisher) Close() error {
	if p == nil {
		return nil
	}
	var firstErr error
	for _, w := range []*kafka.Writer{p.links, p.alerts} {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close kafka writer: %w", err)
		}
	}
	return firstErr
}
