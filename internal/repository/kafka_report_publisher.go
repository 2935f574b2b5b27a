package repository

import (
	"context"
	"fmt"

	"ShortScan/internal/domain/models"
	domrepo "ShortScan/internal/domain/repository"
)

type messagePublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// KafkaReportPublisher publishes cycle reports and trade outcomes as JSON.
type KafkaReportPublisher struct {
	producer    messagePublisher
	reportTopic string
	tradeTopic  string
}

func NewKafkaReportPublisher(producer messagePublisher, reportTopic, tradeTopic string) *KafkaReportPublisher {
	return &KafkaReportPublisher{producer: producer, reportTopic: reportTopic, tradeTopic: tradeTopic}
}

func (p *KafkaReportPublisher) WriteReport(ctx context.Context, r *models.CycleReport) error {
	if err := p.producer.Publish(ctx, p.reportTopic, []byte(r.CycleID), r); err != nil {
		return fmt.Errorf("publish report %s: %w", r.CycleID, err)
	}
	return nil
}

func (p *KafkaReportPublisher) WriteTrade(ctx context.Context, o *models.TradeOutcome) error {
	if p.tradeTopic == "" {
		return nil
	}
	if err := p.producer.Publish(ctx, p.tradeTopic, []byte(o.Symbol), o); err != nil {
		return fmt.Errorf("publish trade %s: %w", o.CycleID, err)
	}
	return nil
}

var (
	_ domrepo.ReportSink = (*KafkaReportPublisher)(nil)
	_ domrepo.TradeSink  = (*KafkaReportPublisher)(nil)
)
