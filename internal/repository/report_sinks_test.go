package repository

import (
	"context"
	"fmt"
	"testing"

	"ShortScan/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic string
	key   string
	value interface{}
}

type fakeProducer struct {
	msgs []published
	err  error
}

func (p *fakeProducer) Publish(_ context.Context, topic string, key []byte, value interface{}) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, key: string(key), value: value})
	return nil
}

func TestKafkaReportPublisher(t *testing.T) {
	prod := &fakeProducer{}
	p := NewKafkaReportPublisher(prod, "cycles", "trades")
	ctx := context.Background()

	report := &models.CycleReport{CycleID: "c-9"}
	require.NoError(t, p.WriteReport(ctx, report))
	require.NoError(t, p.WriteTrade(ctx, &models.TradeOutcome{CycleID: "c-9", Symbol: "SNAP"}))

	require.Len(t, prod.msgs, 2)
	assert.Equal(t, published{topic: "cycles", key: "c-9", value: report}, prod.msgs[0])
	assert.Equal(t, "trades", prod.msgs[1].topic)
	assert.Equal(t, "SNAP", prod.msgs[1].key)

	prod.err = assert.AnError
	assert.ErrorIs(t, p.WriteReport(ctx, report), assert.AnError)
}

func TestKafkaReportPublisherWithoutTradeTopic(t *testing.T) {
	prod := &fakeProducer{}
	p := NewKafkaReportPublisher(prod, "cycles", "")
	require.NoError(t, p.WriteTrade(context.Background(), &models.TradeOutcome{}))
	assert.Empty(t, prod.msgs)
}

func TestReportBufferBoundsAndOrder(t *testing.T) {
	b := NewReportBuffer(3)
	ctx := context.Background()
	for i := range 5 {
		require.NoError(t, b.WriteReport(ctx, &models.CycleReport{
			CycleID: fmt.Sprintf("c%d", i),
			Records: []models.SignalRecord{{Symbol: "SNAP", Result: models.SignalResult{Price: float64(i)}}},
		}))
	}

	recent := b.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "c4", recent[0].CycleID)
	assert.Equal(t, "c2", recent[2].CycleID)

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, "c4", latest.CycleID)

	hist := b.SignalHistory("SNAP", 2)
	require.Len(t, hist, 2)
	assert.Equal(t, "c4", hist[0].CycleID)
	assert.Equal(t, 3.0, hist[1].Result.Price)
	assert.Empty(t, b.SignalHistory("AMD", 5))
}

func TestReportBufferTrades(t *testing.T) {
	b := NewReportBuffer(2)
	_, ok := b.Latest()
	assert.False(t, ok)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, b.WriteTrade(context.Background(), &models.TradeOutcome{CycleID: id}))
	}
	trades := b.Trades()
	require.Len(t, trades, 2)
	assert.Equal(t, "c", trades[0].CycleID)
}
