package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ShortScan/internal/domain/models"
	applogger "ShortScan/pkg/logger"
	"ShortScan/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamRound struct {
	trades []*models.Trade
	err    error // nil keeps the round open until ctx ends
}

type fakeStream struct {
	mu         sync.Mutex
	rounds     []streamRound
	reads      int
	reconnects int
	closed     bool
}

func (s *fakeStream) Connect(context.Context) error   { return nil }
func (s *fakeStream) Subscribe(context.Context) error { return nil }
func (s *fakeStream) IsConnected() bool               { return true }

func (s *fakeStream) Reconnect(context.Context) error {
	s.mu.Lock()
	s.reconnects++
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) Read(ctx context.Context) (<-chan *models.Trade, <-chan error) {
	s.mu.Lock()
	var round streamRound
	if s.reads < len(s.rounds) {
		round = s.rounds[s.reads]
	}
	s.reads++
	s.mu.Unlock()

	trades := make(chan *models.Trade)
	errs := make(chan error, 1)
	go func() {
		defer close(trades)
		defer close(errs)
		for _, t := range round.trades {
			select {
			case trades <- t:
			case <-ctx.Done():
				return
			}
		}
		if round.err != nil {
			errs <- round.err
			return
		}
		<-ctx.Done()
	}()
	return trades, errs
}

func (s *fakeStream) counts() (reads, reconnects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.reconnects
}

type applyRecorder struct {
	mu     sync.Mutex
	trades []models.Trade
}

func (a *applyRecorder) Apply(t *models.Trade) error {
	if t.Price <= 0 {
		return errors.New("bad price")
	}
	a.mu.Lock()
	a.trades = append(a.trades, *t)
	a.mu.Unlock()
	return nil
}

func (a *applyRecorder) applied() []models.Trade {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Trade(nil), a.trades...)
}

func TestTradeCollectorReconnectsAfterStreamError(t *testing.T) {
	stream := &fakeStream{rounds: []streamRound{
		{trades: []*models.Trade{{Symbol: "AMD", Price: 150, Volume: 10}, {Symbol: "AMD", Price: 0, Volume: 1}}, err: errors.New("read: eof")},
		{trades: []*models.Trade{{Symbol: "SNAP", Price: 9, Volume: 5}}},
	}}
	book := &applyRecorder{}
	c := NewTradeCollector(stream, book, metrics.Nop{}, applogger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))

	require.Eventually(t, func() bool { return len(book.applied()) == 2 }, time.Second, 5*time.Millisecond)
	reads, reconnects := stream.counts()
	assert.Equal(t, 2, reads)
	assert.Equal(t, 1, reconnects)
	assert.Equal(t, "SNAP", book.applied()[1].Symbol)

	cancel()
	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, c.Shutdown(shutdownCtx))
	assert.True(t, stream.closed)
}

func TestTradeCollectorStopsOnCancel(t *testing.T) {
	stream := &fakeStream{}
	c := NewTradeCollector(stream, &applyRecorder{}, metrics.Nop{}, applogger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, c.Shutdown(shutdownCtx))
	_, reconnects := stream.counts()
	assert.Zero(t, reconnects)
}

func TestKafkaTicksHandler(t *testing.T) {
	book := &applyRecorder{}
	h := NewKafkaTicksHandler("ticks", book, metrics.Nop{})
	assert.Equal(t, "ticks", h.Topic())

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"AMD","t":1709564400,"c":150.5,"v":100}`)))
	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"AMD","t":1709564401000,"c":151,"v":5}`)))

	got := book.applied()
	require.Len(t, got, 2)
	assert.Equal(t, int64(1709564400000), got[0].Timestamp)
	assert.Equal(t, 150.5, got[0].Price)
	assert.Equal(t, int64(1709564401000), got[1].Timestamp)

	require.NoError(t, h.Handle(context.Background(), []byte(`{"symbol":"AMD","t":"2024-03-04T15:00:02Z","c":151,"v":5}`)))
	got = book.applied()
	require.Len(t, got, 3)
	assert.Equal(t, int64(1709564402000), got[2].Timestamp)

	assert.Error(t, h.Handle(context.Background(), []byte(`{`)))
	assert.Error(t, h.Handle(context.Background(), []byte(`{"symbol":"AMD","t":1,"c":0,"v":1}`)))
}

type candleQueue struct {
	mu      sync.Mutex
	pending []models.Candle
}

func (q *candleQueue) push(c ...models.Candle) {
	q.mu.Lock()
	q.pending = append(q.pending, c...)
	q.mu.Unlock()
}

func (q *candleQueue) DrainClosed() []models.Candle {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

type candleSink struct {
	mu      sync.Mutex
	fail    bool
	batches [][]models.Candle
}

func (s *candleSink) WriteCandles(_ context.Context, c []models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("clickhouse down")
	}
	s.batches = append(s.batches, c)
	return nil
}

func (s *candleSink) written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestCandleFlusherRetriesFailedBatch(t *testing.T) {
	src := &candleQueue{}
	dst := &candleSink{fail: true}
	f := NewCandleFlusher(src, dst, time.Second, metrics.Nop{}, applogger.Nop())
	ctx := context.Background()

	assert.Zero(t, f.Flush(ctx))

	src.push(models.Candle{Symbol: "AMD"}, models.Candle{Symbol: "SNAP"})
	assert.Zero(t, f.Flush(ctx))

	dst.fail = false
	src.push(models.Candle{Symbol: "AAPL"})
	assert.Equal(t, 3, f.Flush(ctx))
	assert.Zero(t, f.Flush(ctx))
	require.Len(t, dst.batches, 1)
	assert.Equal(t, models.Symbol("AMD"), dst.batches[0][0].Symbol)
}

func TestCandleFlusherRetentionIsBounded(t *testing.T) {
	src := &candleQueue{}
	dst := &candleSink{fail: true}
	f := NewCandleFlusher(src, dst, time.Second, metrics.Nop{}, applogger.Nop())
	f.maxRetained = 2

	src.push(models.Candle{Symbol: "A"}, models.Candle{Symbol: "B"}, models.Candle{Symbol: "C"})
	f.Flush(context.Background())

	dst.fail = false
	assert.Equal(t, 2, f.Flush(context.Background()))
	assert.Equal(t, models.Symbol("B"), dst.batches[0][0].Symbol)
}

func TestCandleFlusherFinalFlushOnStop(t *testing.T) {
	src := &candleQueue{}
	dst := &candleSink{}
	f := NewCandleFlusher(src, dst, time.Hour, metrics.Nop{}, applogger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Run(ctx)
		close(done)
	}()
	src.push(models.Candle{Symbol: "AMD"})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flusher did not stop")
	}
	assert.Equal(t, 1, dst.written())
}
