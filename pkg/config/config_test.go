package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
universe:
  symbols: [SNAP, ETSY]
  market_caps:
    SNAP: 4.2
    ETSY: 5.6
market_data:
  source: kafka
kafka:
  enabled: true
  brokers: [localhost:9092]
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, time.Minute, c.Scanner.Cadence)
	assert.Equal(t, 6*time.Hour, c.Scanner.RunBudget)
	assert.Equal(t, 60, c.Scanner.HistoryWindowMinutes)
	assert.Equal(t, 0.5, c.Signal.PowerFactor)
	assert.Equal(t, 0.3, c.Signal.VolumeWeight)
	assert.Equal(t, 2500.0, c.Signal.ScalingConstant)
	assert.Equal(t, 10.0, c.Signal.MinDescentBasis)
	assert.True(t, c.Signal.ClampElapsed)
	assert.Equal(t, 50000.0, c.Trade.MaxTradeSize)
	assert.Equal(t, 1000.0, c.Trade.ChunkSize)
	assert.Equal(t, 30*time.Second, c.Trade.HoldDuration)
	assert.Equal(t, time.Second, c.Trade.InterOrderInterval)
	assert.Equal(t, "paper", c.Broker.Type)
	assert.Equal(t, 30*time.Second, c.ClickHouse.MaxExecTime)

	tod := c.ReferenceTimeOfDay()
	assert.Equal(t, 11, tod.Hour)
	assert.Equal(t, 30, tod.Minute)
	assert.Equal(t, "America/New_York", c.Location().String())
}

func TestParseYAMLOverridesDefaults(t *testing.T) {
	c, err := Parse([]byte(minimalYAML + `
signal:
  clamp_elapsed: false
trade:
  hold_duration: 5s
`))
	require.NoError(t, err)
	assert.False(t, c.Signal.ClampElapsed)
	assert.Equal(t, 5*time.Second, c.Trade.HoldDuration)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"empty universe": `
market_data: {source: kafka}
kafka: {enabled: true, brokers: [b:9092]}
`,
		"finnhub without key": `
universe: {symbols: [A], market_caps: {A: 4}}
`,
		"bad timezone": minimalYAML + `
scanner: {timezone: Mars/Olympus}
`,
		"bad reference time": minimalYAML + `
scanner: {reference_time: "noon"}
`,
		"missing static market cap": `
universe: {symbols: [A, B], market_caps: {A: 4}}
market_data: {source: kafka}
kafka: {enabled: true, brokers: [b:9092]}
`,
		"bridge without url": minimalYAML + `
broker: {type: bridge}
`,
		"inverted cap band": `
universe:
  symbols: [SNAP]
  market_caps: {SNAP: 4}
  min_market_cap_billions: 6
  max_market_cap_billions: 3
market_data: {source: kafka}
kafka: {enabled: true, brokers: [b:9092]}
`,
	}

	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
universe:
  symbols: [SNAP]
fundamentals: {source: finnhub}
`), 0o600))

	t.Setenv("FINNHUB_API_KEY", "secret")
	t.Setenv("SYMBOLS", "AMD, DKNG ,")
	t.Setenv("LOG_LEVEL", "DEBUG")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "secret", c.Finnhub.APIKey)
	assert.Equal(t, []string{"AMD", "DKNG"}, c.Universe.Symbols)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoadRepositoryConfig(t *testing.T) {
	t.Setenv("FINNHUB_API_KEY", "k")
	c, err := LoadWithEnv(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, c.Universe.Symbols)
}
