package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ShortScan/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Scanner struct {
		Cadence              time.Duration `yaml:"cadence" default:"1m" validate:"gt=0"`
		RunBudget            time.Duration `yaml:"run_budget" default:"6h" validate:"gt=0"`
		Workers              int           `yaml:"workers" default:"4" validate:"gte=1,lte=256"`
		StopAfterTrade       bool          `yaml:"stop_after_trade"`
		Timezone             string        `yaml:"timezone" default:"America/New_York"`
		ReferenceTime        string        `yaml:"reference_time" default:"11:30" validate:"required"`
		HistoryWindowMinutes int           `yaml:"history_window_minutes" default:"60" validate:"gte=1"`
		ReportBufferSize     int           `yaml:"report_buffer_size" default:"500" validate:"gte=1"`
	} `yaml:"scanner"`
	Signal struct {
		PowerFactor       float64       `yaml:"power_factor" default:"0.5" validate:"gt=0"`
		VolumeWeight      float64       `yaml:"volume_weight" default:"0.3" validate:"gt=0"`
		ScalingConstant   float64       `yaml:"scaling_constant" default:"2500" validate:"gt=0"`
		MinDescentBasis   float64       `yaml:"min_descent_basis" default:"10" validate:"gte=0"`
		SurgeThreshold    float64       `yaml:"surge_threshold" default:"0.5"`
		StrengthThreshold float64       `yaml:"strength_threshold" default:"0.5"`
		ClampElapsed      bool          `yaml:"clamp_elapsed" default:"true"`
		MinElapsed        time.Duration `yaml:"min_elapsed" default:"1s"`
	} `yaml:"signal"`
	Universe struct {
		Symbols              []string           `yaml:"symbols"`
		Filter               bool               `yaml:"filter" default:"true"`
		MinPrice             float64            `yaml:"min_price" default:"5"`
		MinDollarVolume      float64            `yaml:"min_dollar_volume" default:"1000000"`
		MinMarketCapBillions float64            `yaml:"min_market_cap_billions" default:"3"`
		MaxMarketCapBillions float64            `yaml:"max_market_cap_billions" default:"6" validate:"gtefield=MinMarketCapBillions"`
		MaxSymbols           int                `yaml:"max_symbols" validate:"gte=0"`
		MarketCaps           map[string]float64 `yaml:"market_caps"` // static fundamentals, billions
	} `yaml:"universe"`
	Trade struct {
		Enabled            bool          `yaml:"enabled" default:"true"`
		SizeFactor         float64       `yaml:"size_factor" default:"0.1" validate:"gt=0"`
		MaxTradeSize       float64       `yaml:"max_trade_size" default:"50000" validate:"gt=0"`
		ChunkSize          float64       `yaml:"chunk_size" default:"1000" validate:"gt=0"`
		MinUnit            float64       `yaml:"min_unit" default:"1" validate:"gt=0"`
		StopOffsetUp       float64       `yaml:"stop_offset_up" default:"0.02" validate:"gte=0,lt=1"`
		StopOffsetDown     float64       `yaml:"stop_offset_down" default:"0.02" validate:"gte=0,lt=1"`
		InterOrderInterval time.Duration `yaml:"inter_order_interval" default:"1s"`
		HoldDuration       time.Duration `yaml:"hold_duration" default:"30s"`
		ExitTimeout        time.Duration `yaml:"exit_timeout" default:"2m" validate:"gt=0"`
	} `yaml:"trade"`
	MarketData struct {
		Source  string `yaml:"source" default:"finnhub" validate:"oneof=finnhub kafka"`
		History string `yaml:"history" default:"memory" validate:"oneof=memory clickhouse"`
		Topic   string `yaml:"topic" default:"market.ticks"`
	} `yaml:"market_data"`
	Fundamentals struct {
		Source   string        `yaml:"source" default:"static" validate:"oneof=static finnhub"`
		CacheTTL time.Duration `yaml:"cache_ttl" default:"12h"`
	} `yaml:"fundamentals"`
	Broker struct {
		Type           string        `yaml:"type" default:"paper" validate:"oneof=paper bridge"`
		URL            string        `yaml:"url" validate:"omitempty,url"`
		APIKey         string        `yaml:"api_key"`
		Timeout        time.Duration `yaml:"timeout" default:"5s"`
		MaxFailures    uint32        `yaml:"max_failures" default:"5"`
		BreakerTimeout time.Duration `yaml:"breaker_timeout" default:"30s"`
		PriceDecimals  int32         `yaml:"price_decimals" default:"2" validate:"gte=0,lte=8"`
	} `yaml:"broker"`
	Finnhub struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		RestURL        string        `yaml:"rest_url" default:"https://finnhub.io/api/v1"`
		RequestsPerMin int           `yaml:"requests_per_min" default:"60" validate:"gte=1"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"finnhub"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		ReportTopic  string   `yaml:"report_topic" default:"shortscan.cycles"`
		TradeTopic   string   `yaml:"trade_topic" default:"shortscan.trades"`
		LogTopic     string   `yaml:"log_topic"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Consumer     struct {
			GroupID    string        `yaml:"group_id" default:"shortscan"`
			Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"shortscan"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecTime  time.Duration `yaml:"max_execution_time" default:"30s"`
		InitSchema   bool          `yaml:"init_schema" default:"true"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"shortscan"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("FINNHUB_API_KEY"); v != "" {
		c.Finnhub.APIKey = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Universe.Symbols = util.SplitList(v)
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("BROKER_URL"); v != "" {
		c.Broker.URL = v
	}
	if v := getenv("BROKER_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := getenv("SCANNER_WORKERS"); v != "" {
		c.Scanner.Workers = util.ParseIntDefault(v, c.Scanner.Workers)
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if len(c.Universe.Symbols) == 0 {
		return fmt.Errorf("universe.symbols cannot be empty")
	}
	if _, err := util.LoadLocation(c.Scanner.Timezone); err != nil {
		return fmt.Errorf("scanner.timezone: %w", err)
	}
	if _, err := util.ParseTimeOfDay(c.Scanner.ReferenceTime); err != nil {
		return fmt.Errorf("scanner.reference_time: %w", err)
	}
	if c.Trade.MinUnit > c.Trade.ChunkSize {
		return fmt.Errorf("trade.min_unit must not exceed trade.chunk_size")
	}
	if c.MarketData.Source == "finnhub" && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required for market_data.source=finnhub")
	}
	if c.Fundamentals.Source == "finnhub" && c.Finnhub.APIKey == "" {
		return fmt.Errorf("finnhub.api_key is required for fundamentals.source=finnhub")
	}
	if c.MarketData.Source == "kafka" && !c.Kafka.Enabled {
		return fmt.Errorf("market_data.source=kafka requires kafka.enabled")
	}
	if c.MarketData.History == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("market_data.history=clickhouse requires clickhouse.enabled")
	}
	if c.Broker.Type == "bridge" && c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required for broker.type=bridge")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Fundamentals.Source == "static" {
		for _, s := range c.Universe.Symbols {
			if _, ok := c.Universe.MarketCaps[s]; !ok {
				return fmt.Errorf("universe.market_caps missing %s for fundamentals.source=static", s)
			}
		}
	}
	return nil
}

// Location returns the exchange timezone. Validate guarantees it resolves.
func (c *Config) Location() *time.Location {
	loc, err := util.LoadLocation(c.Scanner.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReferenceTimeOfDay returns the parsed scanner.reference_time.
func (c *Config) ReferenceTimeOfDay() util.TimeOfDay {
	tod, err := util.ParseTimeOfDay(c.Scanner.ReferenceTime)
	if err != nil {
		return util.TimeOfDay{Hour: 11, Minute: 30}
	}
	return tod
}
