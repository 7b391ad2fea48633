// Package events announces terminal transaction transitions on Kafka.
package events

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"net/http"
	"time"

	// Local Packages
	"github.com/markjakearzadon/momopay-gobackend/internal/models"

	// External Packages
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kprom"
	"go.uber.org/zap"
)

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// PublisherConfig configures the producer. DeliveryTimeout caps how long a
// record may be retried against unreachable brokers.
type PublisherConfig struct {
	Brokers         []string
	Topic           string
	DeliveryTimeout time.Duration
}

// StatusPublisher writes one record per settled transaction, keyed by
// request id so every event for a transaction lands on the same partition.
type StatusPublisher struct {
	client  producer
	topic   string
	metrics *kprom.Metrics
	logger  *zap.Logger
}

func NewStatusPublisher(conf PublisherConfig, metrics *kprom.Metrics, logger *zap.Logger) (*StatusPublisher, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(conf.Brokers...),
		kgo.DefaultProduceTopic(conf.Topic),
		kgo.WithHooks(metrics),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if conf.DeliveryTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(conf.DeliveryTimeout))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	return &StatusPublisher{client: client, topic: conf.Topic, metrics: metrics, logger: logger}, nil
}

func (p *StatusPublisher) PublishStatus(ctx context.Context, ev models.StatusEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.RequestID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "source", Value: []byte(ev.Source)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return err
	}

	p.logger.Debug("status event published",
		zap.String("request_id", ev.RequestID), zap.String("status", ev.Status), zap.String("source", ev.Source))
	return nil
}

// MetricsHandler serves the producer metrics, or 404 without them.
func (p *StatusPublisher) MetricsHandler() http.Handler {
	if p.metrics == nil {
		return http.NotFoundHandler()
	}
	return p.metrics.Handler()
}

func (p *StatusPublisher) Close() {
	p.client.Close()
}
