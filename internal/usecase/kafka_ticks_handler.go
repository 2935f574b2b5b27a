package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
	pkgkafka "ShortScan/pkg/kafka"
	"ShortScan/pkg/util"
)

// KafkaTicksHandler feeds ticks from a Kafka topic into a TradeApplier.
type KafkaTicksHandler struct {
	topic   string
	book    TradeApplier
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, book TradeApplier, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, book: book, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, t, c, v}; t is unix seconds, unix millis or
// RFC3339. A missing t is stamped with the arrival time.
func (h *KafkaTicksHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Symbol string          `json:"symbol"`
		T      json.RawMessage `json:"t"`
		C      float64         `json:"c"`
		V      float64         `json:"v"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	ts := util.ParseTimeDefault(strings.Trim(string(m.T), `"`), time.Now())
	h.metrics.RecordLatency("ingest_e2e", time.Since(ts).Seconds())

	if err := h.book.Apply(&models.Trade{Symbol: m.Symbol, Timestamp: ts.UnixMilli(), Price: m.C, Volume: m.V}); err != nil {
		h.metrics.RecordError("consumer_apply")
		return fmt.Errorf("apply tick: %w", err)
	}
	h.metrics.RecordLastPrice(m.Symbol, m.C)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
