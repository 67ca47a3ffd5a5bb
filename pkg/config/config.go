package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/brokerfleet/pkg/log"
	"github.com/cuemby/brokerfleet/pkg/offer"
	"github.com/cuemby/brokerfleet/pkg/types"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BROKERFLEET_BROKER_COUNT
const EnvPrefix = "BROKERFLEET"

// Config is the full daemon configuration
type Config struct {
	TargetConfigName string          `mapstructure:"target_config_name"`
	BrokerCount      int             `mapstructure:"broker_count"`
	Strategy         string          `mapstructure:"strategy"`
	Broker           BrokerConfig    `mapstructure:"broker"`
	APIAddr          string          `mapstructure:"api_addr"`
	DataDir          string          `mapstructure:"data_dir"`
	Log              LogConfig       `mapstructure:"log"`
	Scheduler        IntervalConfig  `mapstructure:"scheduler"`
	Reconciler       IntervalConfig  `mapstructure:"reconciler"`
	Simulator        SimulatorConfig `mapstructure:"simulator"`
}

// BrokerConfig is the per-broker reservation
type BrokerConfig struct {
	CPUs   float64 `mapstructure:"cpus"`
	MemMB  int64   `mapstructure:"mem_mb"`
	DiskMB int64   `mapstructure:"disk_mb"`
	Port   int     `mapstructure:"port"`
	HeapMB int64   `mapstructure:"heap_mb"`
}

// Resources converts the broker section for the requirement provider
func (b BrokerConfig) Resources() offer.BrokerResources {
	return offer.BrokerResources{CPUs: b.CPUs, MemMB: b.MemMB, DiskMB: b.DiskMB, Port: b.Port, HeapMB: b.HeapMB}
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type IntervalConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// SimulatorConfig sizes the in-memory cluster
type SimulatorConfig struct {
	Agents       int           `mapstructure:"agents"`
	CPUs         float64       `mapstructure:"cpus"`
	MemMB        int64         `mapstructure:"mem_mb"`
	DiskMB       int64         `mapstructure:"disk_mb"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// AgentResources is what every simulated agent offers; each agent exposes
// the broker port so one broker fits per agent
func (c *Config) AgentResources() types.Resources {
	return types.Resources{
		CPUs:   c.Simulator.CPUs,
		MemMB:  c.Simulator.MemMB,
		DiskMB: c.Simulator.DiskMB,
		Ports:  []int{c.Broker.Port},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target_config_name", "")
	v.SetDefault("broker_count", 3)
	v.SetDefault("strategy", "auto")
	v.SetDefault("broker.cpus", 1.0)
	v.SetDefault("broker.mem_mb", 2048)
	v.SetDefault("broker.disk_mb", 5000)
	v.SetDefault("broker.port", 9092)
	v.SetDefault("broker.heap_mb", 1024)
	v.SetDefault("api_addr", "127.0.0.1:8080")
	v.SetDefault("data_dir", "./brokerfleet-data")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("scheduler.interval", "2s")
	v.SetDefault("reconciler.interval", "30s")
	v.SetDefault("simulator.agents", 3)
	v.SetDefault("simulator.cpus", 4.0)
	v.SetDefault("simulator.mem_mb", 8192)
	v.SetDefault("simulator.disk_mb", 20000)
	v.SetDefault("simulator.startup_delay", "0s")
}

// Loader reads configuration from an optional YAML file and the environment
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader creates a loader. An empty path means defaults plus environment.
func NewLoader(path string) *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
	}
	return &Loader{v: v, path: path}
}

// Viper exposes the underlying instance so command-line flags can be bound
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load reads and validates the configuration
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", l.path, err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with the new configuration whenever the file is
// rewritten. Invalid edits are logged and skipped.
func (l *Loader) Watch(onChange func(*Config)) {
	if l.path == "" {
		return
	}
	logger := log.WithComponent("config")
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			logger.Warn().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}
		logger.Info().Str("file", e.Name).Str("target", cfg.TargetConfigName).Msg("Config changed")
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Load is shorthand for NewLoader(path).Load()
func Load(path string) (*Config, error) {
	return NewLoader(path).Load()
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	var errs []error
	if c.TargetConfigName == "" {
		errs = append(errs, errors.New("target_config_name is required"))
	}
	if c.BrokerCount <= 0 {
		errs = append(errs, fmt.Errorf("broker_count must be positive, got %d", c.BrokerCount))
	}
	if c.Strategy != "auto" && c.Strategy != "stage" {
		errs = append(errs, fmt.Errorf("strategy must be auto or stage, got %q", c.Strategy))
	}
	if c.Broker.CPUs <= 0 || c.Broker.MemMB <= 0 || c.Broker.DiskMB <= 0 {
		errs = append(errs, errors.New("broker cpus, mem_mb and disk_mb must be positive"))
	}
	if c.Broker.Port <= 0 || c.Broker.Port > 65535 {
		errs = append(errs, fmt.Errorf("broker.port out of range: %d", c.Broker.Port))
	}
	if c.Broker.HeapMB <= 0 || c.Broker.HeapMB > c.Broker.MemMB {
		errs = append(errs, fmt.Errorf("broker.heap_mb must be in (0, mem_mb], got %d", c.Broker.HeapMB))
	}
	if c.Scheduler.Interval <= 0 || c.Reconciler.Interval <= 0 {
		errs = append(errs, errors.New("scheduler and reconciler intervals must be positive"))
	}
	if c.Simulator.Agents <= 0 {
		errs = append(errs, fmt.Errorf("simulator.agents must be positive, got %d", c.Simulator.Agents))
	}
	return errors.Join(errs...)
}
