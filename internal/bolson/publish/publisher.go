// Package publish wires the single publisher stage to an Apache Pulsar
// producer, sending each SerializedBatch as one message payload.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"

	bolsonerrors "github.com/bolson-project/bolson/internal/bolson/errors"
	"github.com/bolson-project/bolson/internal/bolson/latency"
	bolsonmetrics "github.com/bolson-project/bolson/internal/bolson/metrics"
	"github.com/bolson-project/bolson/internal/bolson/model"
	"github.com/bolson-project/bolson/internal/bolson/queue"
	"github.com/bolson-project/bolson/internal/bolson/resilience"
	"github.com/bolson-project/bolson/internal/bolson/stats"
)

// Publisher is the pipeline's single publish-stage instance: exactly one
// goroutine calls Run, so at most one Pulsar producer is ever active at a
// time.
type Publisher struct {
	client      pulsar.Client
	producer    pulsar.Producer
	in          *queue.Queue[model.SerializedBatch]
	tracker     *latency.Tracker
	metrics     *bolsonmetrics.Metrics
	pollEvery   time.Duration
	sendTimeout time.Duration
	log         *slog.Logger
	breaker     *resilience.CircuitBreaker
	live        *stats.LiveCounters // nil in tests that don't need a running snapshot

	published atomic.Uint64 // global published_count, the supervisor's busy-wait condition
}

// PublishedCount returns the number of JSON records (sequence numbers)
// covered by the messages successfully published so far. Safe to call
// concurrently with Run.
func (p *Publisher) PublishedCount() uint64 {
	return p.published.Load()
}

// Config carries the connection parameters for the target topic.
type Config struct {
	URL         string
	Topic       string
	Tenant      string
	Namespace   string
	SendTimeout time.Duration
}

func (c Config) fullTopic() string {
	if c.Tenant == "" || c.Namespace == "" {
		return c.Topic
	}
	return fmt.Sprintf("persistent://%s/%s/%s", c.Tenant, c.Namespace, c.Topic)
}

// New connects to Pulsar and creates a producer bound to cfg's topic,
// retrying the initial connection with backoff since a cold-started
// broker is a common transient condition at pipeline startup.
func New(cfg Config, in *queue.Queue[model.SerializedBatch], tracker *latency.Tracker, m *bolsonmetrics.Metrics, live *stats.LiveCounters, pollEvery time.Duration) (*Publisher, error) {
	l := slog.Default().With("component", "publish")

	var client pulsar.Client
	retryCfg := resilience.RetryConfig{MaxAttempts: 5}
	if m != nil {
		retryCfg.OnAttempt = func(attempt int, err error) {
			outcome := "success"
			if err != nil {
				outcome = "failure"
			}
			m.RetryAttemptsTotal.WithLabelValues("pulsar-connect", outcome).Inc()
		}
	}
	err := resilience.Retry(context.Background(), "pulsar-connect", retryCfg, func() error {
		c, err := pulsar.NewClient(pulsar.ClientOptions{
			URL:               cfg.URL,
			ConnectionTimeout: 5 * time.Second,
		})
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to pulsar at %s: %v", bolsonerrors.ErrNetwork, cfg.URL, err)
	}

	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: cfg.fullTopic(),
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: creating producer for topic %s: %v", bolsonerrors.ErrNetwork, cfg.fullTopic(), err)
	}

	p := &Publisher{
		client:      client,
		producer:    producer,
		in:          in,
		tracker:     tracker,
		metrics:     m,
		live:        live,
		pollEvery:   pollEvery,
		sendTimeout: cfg.SendTimeout,
		log:         l,
	}
	p.breaker = resilience.NewCircuitBreaker("pulsar-publish", resilience.CircuitBreakerConfig{
		OnStateChange: func(from, to resilience.State) {
			l.Info("circuit breaker state changed", "from", from, "to", to)
			if m != nil {
				m.CircuitBreakerState.WithLabelValues("pulsar-publish").Set(float64(to))
			}
		},
	})
	return p, nil
}

// Run drains the publish queue until it is closed and empty, sending each
// message synchronously, and returns the publisher's final counters. A
// send failure that survives the circuit breaker is fatal: the returned
// stats.Worker carries a non-nil Err and Run stops rather than dropping
// the message and continuing, since a dropped message can never be
// retried once its buffer has been released.

func (p *Publisher) Run(ctx context.Context) (s stats.Worker) {
	threadStart := time.Now()
	defer func() { s.ThreadDuration = time.Since(threadStart) }()
	for {
		if ctx.Err() != nil {
			return s
		}
		batch, ok, open := p.in.TimedGet(p.pollEvery)
		if !ok {
			if !open {
				return s
			}
			continue
		}

		start := time.Now()
		err := p.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, p.sendTimeout, "pulsar-send", func(sendCtx context.Context) error {
				_, sendErr := p.producer.Send(sendCtx, &pulsar.ProducerMessage{Payload: batch.Payload})
				return sendErr
			})
		})
		sendDuration := time.Since(start)
		s.PublishDuration += sendDuration
		if p.metrics != nil {
			p.metrics.PublishDuration.Observe(sendDuration.Seconds())
		}
		if err != nil {
			if p.metrics != nil {
				p.metrics.PublishErrorsTotal.Inc()
			}
			s.Err = bolsonerrors.NewFatal("publish", fmt.Errorf("%w: %v", bolsonerrors.ErrPublish, err), batch.Range.String())
			p.log.Error("publish failed, stopping", "range", batch.Range.String(), "err", err)
			return s
		}

		now := time.Now()
		p.tracker.RecordPublished(batch.Range.First, now)
		s.MessagesSent++
		s.BytesSent += uint64(len(batch.Payload))
		p.published.Add(batch.Range.Count())
		if p.live != nil {
			p.live.AddPublished(uint64(len(batch.Payload)))
		}
		if p.metrics != nil {
			p.metrics.MessagesSentTotal.Inc()
			p.metrics.BytesSentTotal.Add(float64(len(batch.Payload)))
		}
	}
}

// Close releases the producer and client.
func (p *Publisher) Close() {
	if p.producer != nil {
		p.producer.Close()
	}
	if p.client != nil {
		p.client.Close()
	}
}
