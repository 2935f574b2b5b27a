package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	applogger "ShortScan/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler handles messages from a specific topic.
type MessageHandler interface {
	Topic() string
	Handle(context.Context, []byte) error
}

// Consumer reads registered topics and dispatches messages to a worker pool.
// Messages of one partition are handled one at a time so per-symbol order holds.
type Consumer struct {
	cfg       *ConsumerConfig
	log       *applogger.Logger
	readers   map[string]*kafka.Reader
	handlers  map[string]MessageHandler
	msgChan   chan kafka.Message
	partLocks sync.Map
	wg        sync.WaitGroup
	cancel    context.CancelFunc
	stopOnce  sync.Once
	metrics   *consumerMetrics
}

// NewConsumer creates a new Kafka consumer.
func NewConsumer(l *applogger.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		GroupID:     "shortscan",
		WorkerCount: 1,
		BufferSize:  64,
		RetryMax:    3,
		BackoffMin:  50 * time.Millisecond,
		BackoffMax:  2 * time.Second,
		MinBytes:    1,
		MaxBytes:    10e6,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}
	if l == nil {
		l = applogger.Nop()
	}

	c := &Consumer{
		cfg:      cfg,
		log:      l,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]MessageHandler),
		msgChan:  make(chan kafka.Message, cfg.BufferSize),
	}
	if cfg.Registerer != nil {
		c.metrics = newConsumerMetrics(cfg.Registerer)
	}
	return c, nil
}

// RegisterHandler registers a message handler for its topic. Must be called before Start.
func (c *Consumer) RegisterHandler(handler MessageHandler) {
	topic := handler.Topic()
	if _, ok := c.handlers[topic]; ok {
		c.log.Warn("kafka handler already registered", applogger.String("topic", topic))
		return
	}
	c.handlers[topic] = handler
}

// Start launches one reader goroutine per topic plus the worker pool.
func (c *Consumer) Start(ctx context.Context) error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("no handlers registered")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.Brokers,
			Topic:    topic,
			GroupID:  c.cfg.GroupID,
			MinBytes: c.cfg.MinBytes,
			MaxBytes: c.cfg.MaxBytes,
		})
	}

	var readers sync.WaitGroup
	for topic, reader := range c.readers {
		readers.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer readers.Done()
			c.consume(ctx, topic, r)
		}(topic, reader)
	}

	for i := 0; i < c.cfg.WorkerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx)
	}

	// close the queue once every reader has returned so workers drain and exit
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		readers.Wait()
		close(c.msgChan)
	}()

	c.log.Info("kafka consumer started",
		applogger.Int("topics", len(c.readers)),
		applogger.Int("workers", c.cfg.WorkerCount),
	)
	return nil
}

// Stop cancels readers, waits for workers and closes readers.
func (c *Consumer) Stop(ctx context.Context) error {
	var stopErr error
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-ctx.Done():
			stopErr = fmt.Errorf("timeout waiting for consumer to stop: %w", ctx.Err())
		case <-done:
		}

		for topic, reader := range c.readers {
			if err := reader.Close(); err != nil {
				c.log.Warn("kafka reader close", applogger.String("topic", topic), applogger.Error(err))
			}
		}
	})
	return stopErr
}

func (c *Consumer) consume(ctx context.Context, topic string, reader *kafka.Reader) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.log.Warn("kafka fetch", applogger.String("topic", topic), applogger.Error(err))
			continue
		}

		select {
		case c.msgChan <- msg:
			c.metrics.queue(topic, len(c.msgChan))
		case <-ctx.Done():
			return
		}
	}
}

func (c *Consumer) worker(ctx context.Context) {
	defer c.wg.Done()
	for msg := range c.msgChan {
		c.handle(ctx, msg)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	handler, ok := c.handlers[msg.Topic]
	if !ok {
		return
	}

	pl := c.partitionLock(msg.Topic, msg.Partition)
	pl.Lock()
	defer pl.Unlock()

	start := time.Now()
	var err error
	for attempt := 1; ; attempt++ {
		err = c.safeHandle(ctx, handler, msg.Value)
		if err == nil || attempt > c.cfg.RetryMax || ctx.Err() != nil {
			break
		}
		select {
		case <-time.After(backoffWithJitter(c.cfg.BackoffMin, c.cfg.BackoffMax, attempt)):
		case <-ctx.Done():
		}
	}
	c.metrics.handled(msg.Topic, time.Since(start), err)

	if err != nil {
		c.log.Error("kafka handle failed, skipping message",
			applogger.String("topic", msg.Topic),
			applogger.Int("partition", msg.Partition),
			applogger.Int64("offset", msg.Offset),
			applogger.Error(err),
		)
	}

	// commit after success or final failure to avoid poison loops
	if reader := c.readers[msg.Topic]; reader != nil {
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		if cerr := reader.CommitMessages(commitCtx, msg); cerr != nil {
			c.log.Warn("kafka commit", applogger.String("topic", msg.Topic), applogger.Error(cerr))
		}
		cancel()
	}
}

func (c *Consumer) safeHandle(ctx context.Context, h MessageHandler, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, data)
}

func (c *Consumer) partitionLock(topic string, partition int) *sync.Mutex {
	key := fmt.Sprintf("%s/%d", topic, partition)
	m, _ := c.partLocks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

func backoffWithJitter(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	exp := min << uint(attempt-1)
	if exp > max || exp <= 0 {
		exp = max
	}
	// jitter up to 50%
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp - jitter
}

type consumerMetrics struct {
	depth   *prometheus.GaugeVec
	latency *prometheus.HistogramVec
	results *prometheus.CounterVec
}

func newConsumerMetrics(reg prometheus.Registerer) *consumerMetrics {
	f := promauto.With(reg)
	return &consumerMetrics{
		depth: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "shortscan_kafka_consumer_queue_depth", Help: "Messages waiting in consumer queue"},
			[]string{"topic"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{Name: "shortscan_kafka_consumer_handle_seconds", Help: "Handling time per message"},
			[]string{"topic"},
		),
		results: f.NewCounterVec(
			prometheus.CounterOpts{Name: "shortscan_kafka_consumer_messages_total", Help: "Messages handled by result"},
			[]string{"topic", "result"},
		),
	}
}

func (m *consumerMetrics) queue(topic string, depth int) {
	if m == nil {
		return
	}
	m.depth.WithLabelValues(topic).Set(float64(depth))
}

func (m *consumerMetrics) handled(topic string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.results.WithLabelValues(topic, result).Inc()
	m.latency.WithLabelValues(topic).Observe(d.Seconds())
}
