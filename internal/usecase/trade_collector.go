package usecase

import (
	"context"
	"errors"
	"sync"

	"ShortScan/internal/domain/models"
	drepo "ShortScan/internal/domain/repository"
	applogger "ShortScan/pkg/logger"
)

// TradeApplier folds a raw trade into market state.
type TradeApplier interface {
	Apply(t *models.Trade) error
}

// TradeCollector pumps trades from a market stream into a TradeApplier and
// reconnects when the stream fails.
type TradeCollector struct {
	stream  drepo.MarketStream
	book    TradeApplier
	metrics drepo.Metrics
	log     *applogger.Logger
	wg      sync.WaitGroup
}

// NewTradeCollector creates a new TradeCollector instance.
func NewTradeCollector(stream drepo.MarketStream, book TradeApplier, metrics drepo.Metrics, l *applogger.Logger) *TradeCollector {
	return &TradeCollector{stream: stream, book: book, metrics: metrics, log: l}
}

// IsConnected returns true if the market stream is connected.
func (c *TradeCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *TradeCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return nil
}

func (c *TradeCollector) run(ctx context.Context) {
	for ctx.Err() == nil {
		trCh, errCh := c.stream.Read(ctx)
		err := c.consume(ctx, trCh, errCh)
		if err == nil {
			return
		}
		c.metrics.RecordError("stream")
		c.log.Error("market stream failed, reconnecting", applogger.Error(err))
		for ctx.Err() == nil {
			if err := c.stream.Reconnect(ctx); err != nil {
				c.log.Error("market stream reconnect failed", applogger.Error(err))
				continue
			}
			break
		}
	}
}

var errStreamClosed = errors.New("market stream closed")

// consume returns nil when ctx ends and the stream error otherwise.
func (c *TradeCollector) consume(ctx context.Context, trCh <-chan *models.Trade, errCh <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		case t, ok := <-trCh:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				if errCh != nil {
					if err, ok := <-errCh; ok && err != nil {
						return err
					}
				}
				return errStreamClosed
			}
			if err := c.book.Apply(t); err != nil {
				c.metrics.RecordError("trade_apply")
				continue
			}
			c.metrics.RecordLastPrice(t.Symbol, t.Price)
		}
	}
}

// Shutdown closes the stream and waits for the pump to exit.
func (c *TradeCollector) Shutdown(ctx context.Context) error {
	err := c.stream.Close()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}
