package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"feed_go/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Endpoint is a multicast group or unicast destination.
type Endpoint struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.IP, e.Port)
}

// InstrumentConfig seeds the instrument master.
type InstrumentConfig struct {
	Token  int64  `yaml:"token"`
	Symbol string `yaml:"symbol"`
	Name   string `yaml:"name"`
}

// Output target names accepted in output.targets.
const (
	TargetUDP     = "udp"
	TargetKafka   = "kafka"
	TargetWS      = "ws"
	TargetStdout  = "stdout"
	TargetCounter = "counter"
)

// Config holds every setting of the feed handler. LoadConfig fills it from
// YAML, then lets environment variables override deployment specific
// values.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchange string `yaml:"exchange"`

	Input struct {
		AutoSwitch      bool     `yaml:"auto_switch"`
		SwitchTimeoutMS int      `yaml:"switch_timeout_ms"`
		LocalIP         string   `yaml:"local_ip"`
		SourceIP        string   `yaml:"source_ip"`
		Primary         Endpoint `yaml:"primary"`
		Secondary       Endpoint `yaml:"secondary"`
		ReadBuffer      int      `yaml:"read_buffer"`
	} `yaml:"input"`

	Engine struct {
		Workers   int `yaml:"workers"`
		IdleSpins int `yaml:"idle_spins"`
		PoolWarm  int `yaml:"pool_warm"`
	} `yaml:"engine"`

	MCX struct {
		FastTemplate string `yaml:"fast_template"`
	} `yaml:"mcx"`

	Output struct {
		Targets []string `yaml:"targets"`
		UDP     Endpoint `yaml:"udp"`
		Kafka   struct {
			Brokers   []string `yaml:"brokers"`
			Topic     string   `yaml:"topic"`
			Partition int32    `yaml:"partition"`
			ClientID  string   `yaml:"client_id"`
		} `yaml:"kafka"`
		WS struct {
			Addr string `yaml:"addr"`
		} `yaml:"ws"`
		Counter struct {
			Steps uint64 `yaml:"steps"`
		} `yaml:"counter"`
	} `yaml:"output"`

	Metrics struct {
		Addr          string `yaml:"addr"`
		StatsInterval int    `yaml:"stats_interval_sec"`
	} `yaml:"metrics"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Instruments []InstrumentConfig `yaml:"instruments"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads the YAML file at path. A .env file next to the process
// is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
		}
		return nil, err
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes YAML, applies defaults and environment overrides,
// and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Engine.Workers == 0 {
		c.Engine.Workers = 4
	}
	if c.Input.SwitchTimeoutMS == 0 {
		c.Input.SwitchTimeoutMS = 5000
	}
	if c.Input.ReadBuffer == 0 {
		c.Input.ReadBuffer = 4 << 20
	}
	if c.Output.Counter.Steps == 0 {
		c.Output.Counter.Steps = 100000
	}
	if c.Output.Kafka.ClientID == "" {
		c.Output.Kafka.ClientID = "feed_go"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/instruments.db"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = "localhost:6060"
	}
	if c.Metrics.StatsInterval == 0 {
		c.Metrics.StatsInterval = 10
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	ex, err := domain.ParseExchange(c.Exchange)
	if err != nil {
		return &domain.ConfigError{Field: "exchange", Err: err}
	}
	if c.Engine.Workers < 1 {
		return &domain.ConfigError{Field: "engine.workers", Err: fmt.Errorf("must be at least 1, got %d", c.Engine.Workers)}
	}
	if c.Input.Primary.Port <= 0 {
		return &domain.ConfigError{Field: "input.primary.port", Err: errors.New("must be positive")}
	}
	if c.Input.Secondary.IP != "" && c.Input.Secondary.Port <= 0 {
		return &domain.ConfigError{Field: "input.secondary.port", Err: errors.New("must be positive")}
	}
	if ex == domain.MCX && c.MCX.FastTemplate == "" {
		return &domain.ConfigError{Field: "mcx.fast_template", Err: errors.New("required for MCX")}
	}

	for _, t := range c.Output.Targets {
		switch t {
		case TargetUDP:
			if c.Output.UDP.IP == "" || c.Output.UDP.Port <= 0 {
				return &domain.ConfigError{Field: "output.udp", Err: errors.New("ip and port are required")}
			}
		case TargetKafka:
			if len(c.Output.Kafka.Brokers) == 0 || c.Output.Kafka.Topic == "" {
				return &domain.ConfigError{Field: "output.kafka", Err: errors.New("brokers and topic are required")}
			}
		case TargetWS:
			if c.Output.WS.Addr == "" {
				return &domain.ConfigError{Field: "output.ws.addr", Err: errors.New("required")}
			}
		case TargetStdout, TargetCounter:
		default:
			return &domain.ConfigError{Field: "output.targets", Err: fmt.Errorf("unknown target %q", t)}
		}
	}
	return nil
}

// ExchangeID returns the validated exchange selector.
func (c *Config) ExchangeID() domain.Exchange {
	ex, _ := domain.ParseExchange(c.Exchange)
	return ex
}

// StatsInterval is the period of the statistics log line.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.Metrics.StatsInterval) * time.Second
}

// SwitchTimeout is the read deadline before failing over to the other feed.
func (c *Config) SwitchTimeout() time.Duration {
	return time.Duration(c.Input.SwitchTimeoutMS) * time.Millisecond
}

// HasTarget reports whether an output target is enabled.
func (c *Config) HasTarget(name string) bool {
	for _, t := range c.Output.Targets {
		if t == name {
			return true
		}
	}
	return false
}

// overrideWithEnv lets the environment replace deployment specific values.
func overrideWithEnv(cfg *Config) {
	if ex := os.Getenv("FEED_EXCHANGE"); ex != "" {
		cfg.Exchange = ex
	}
	if brokers := os.Getenv("FEED_KAFKA_BROKERS"); brokers != "" {
		cfg.Output.Kafka.Brokers = strings.Split(brokers, ",")
	}
	if addr := os.Getenv("FEED_WS_ADDR"); addr != "" {
		cfg.Output.WS.Addr = addr
	}
	if w := os.Getenv("FEED_WORKERS"); w != "" {
		if n, err := strconv.Atoi(w); err == nil {
			cfg.Engine.Workers = n
		}
	}
	if lvl := os.Getenv("FEED_LOG_LEVEL"); lvl != "" {
		cfg.Logging.Level = lvl
	}
}
