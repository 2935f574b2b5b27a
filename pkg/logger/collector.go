package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated logs somewhere (Kafka in production).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // unique entries that trigger an early flush
	PublishTimeout time.Duration
	Topic          string
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector de-duplicates logs by (level, message, fields, caller) and
// publishes the counts from a single goroutine, most frequent first.
type LogCollector struct {
	config *CollectionConfig
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewLogCollector(config *CollectionConfig) *LogCollector {
	if config.TimeInterval <= 0 {
		config.TimeInterval = 30 * time.Second
	}
	if config.CountThreshold <= 0 {
		config.CountThreshold = 100
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Second
	}
	c := &LogCollector{
		config:  config,
		now:     time.Now,
		entries: make(map[string]*AggregatedLogEntry),
		kick:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level: level, Message: message, Fields: fields, Caller: caller,
			Count: 1, FirstSeen: now, LastSeen: now,
		}
	}
	full := len(c.entries) >= c.config.CountThreshold
	c.mu.Unlock()

	if full {
		select {
		case c.kick <- struct{}{}:
		default:
		}
	}
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	b, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (c *LogCollector) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.TimeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-c.kick:
		case <-c.done:
			c.flush()
			return
		}
		c.flush()
	}
}

// take swaps out the pending entries, most frequent first.
func (c *LogCollector) take() []AggregatedLogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.entries = make(map[string]*AggregatedLogEntry)
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func (c *LogCollector) flush() {
	logs := c.take()
	if len(logs) == 0 || c.config.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.PublishTimeout)
	defer cancel()
	if err := c.config.Publisher.PublishMessage(ctx, c.config.Topic, logs); err != nil {
		// the logger itself feeds this collector
		fmt.Fprintf(os.Stderr, "log collector: publish %d entries: %v\n", len(logs), err)
	}
}

// Close stops the collector after a final synchronous flush.
func (c *LogCollector) Close() {
	c.once.Do(func() { close(c.done) })
	c.wg.Wait()
}
