package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Ingest struct {
		Backend      string        `yaml:"backend"`
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
	} `yaml:"ingest"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		TicksTopic    string   `yaml:"ticks_topic"`
		ForecastTopic string   `yaml:"forecast_topic"`
		ScoreTopic    string   `yaml:"score_topic"`
		LogsTopic     string   `yaml:"logs_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Stream struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Assets         []string      `yaml:"assets"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"stream"`
	Simulation struct {
		MaxSimulations int `yaml:"max_simulations"`
		RandomWalk     struct {
			Sigma float64 `yaml:"sigma"`
		} `yaml:"random_walk"`
		GBM struct {
			Mu    float64 `yaml:"mu"`
			Sigma float64 `yaml:"sigma"`
		} `yaml:"gbm"`
		MeanReversion struct {
			Alpha float64 `yaml:"alpha"`
			Sigma float64 `yaml:"sigma"`
		} `yaml:"mean_reversion"`
		Ensemble struct {
			Weights []float64 `yaml:"weights"`
		} `yaml:"ensemble"`
	} `yaml:"simulation"`
	Calibration struct {
		TTL          time.Duration `yaml:"ttl"`
		Window       time.Duration `yaml:"window"`
		FetchTimeout time.Duration `yaml:"fetch_timeout"`
		Redis        struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"calibration"`
	Scoring struct {
		QueueEnabled bool          `yaml:"queue_enabled"`
		Delay        time.Duration `yaml:"delay"`
		Workers      int           `yaml:"workers"`
	} `yaml:"scoring"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	if v := os.Getenv("STREAM_API_KEY"); v != "" {
		c.Stream.APIKey = v
	}
	if v := os.Getenv("ASSETS"); v != "" {
		c.Stream.Assets = strings.Split(v, ",")
	}
	if v := os.Getenv("INGEST_BACKEND"); v != "" {
		c.Ingest.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Calibration.Redis.Addr = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Simulation.MaxSimulations == 0 {
		c.Simulation.MaxSimulations = 10000
	}
	if c.Simulation.RandomWalk.Sigma == 0 {
		c.Simulation.RandomWalk.Sigma = 0.02
	}
	if c.Simulation.GBM.Mu == 0 {
		c.Simulation.GBM.Mu = 0.0001
	}
	if c.Simulation.GBM.Sigma == 0 {
		c.Simulation.GBM.Sigma = 0.015
	}
	if c.Simulation.MeanReversion.Alpha == 0 {
		c.Simulation.MeanReversion.Alpha = 0.1
	}
	if c.Simulation.MeanReversion.Sigma == 0 {
		c.Simulation.MeanReversion.Sigma = 0.02
	}
	if len(c.Simulation.Ensemble.Weights) == 0 {
		c.Simulation.Ensemble.Weights = []float64{0.2, 0.5, 0.3}
	}
	if c.Calibration.TTL == 0 {
		c.Calibration.TTL = 6 * time.Hour
	}
	if c.Calibration.Window == 0 {
		c.Calibration.Window = 48 * time.Hour
	}
	if c.Calibration.FetchTimeout == 0 {
		c.Calibration.FetchTimeout = 5 * time.Second
	}
	if c.Kafka.LogsTopic == "" {
		c.Kafka.LogsTopic = "synthcast.logs"
	}
	if c.Scoring.Delay == 0 {
		c.Scoring.Delay = 24 * time.Hour
	}
	if c.Scoring.Workers == 0 {
		c.Scoring.Workers = 2
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Ingest.Backend == "" {
		return fmt.Errorf("ingest.backend is required")
	}
	if c.Ingest.Backend != "kafka" && c.Ingest.Backend != "clickhouse" {
		return fmt.Errorf("ingest.backend must be 'kafka' or 'clickhouse', got '%s'", c.Ingest.Backend)
	}
	if len(c.Stream.Assets) == 0 {
		return fmt.Errorf("stream.assets cannot be empty")
	}
	for i, w := range c.Simulation.Ensemble.Weights {
		if w < 0 {
			return fmt.Errorf("simulation.ensemble.weights[%d] must be >= 0", i)
		}
	}
	if len(c.Simulation.Ensemble.Weights) != 3 {
		return fmt.Errorf("simulation.ensemble.weights must have exactly 3 entries, got %d", len(c.Simulation.Ensemble.Weights))
	}
	return nil
}
