package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/monero-ecosystem/monerohealth/internal/health"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// DaemonConfig describes the monitored daemon.
type DaemonConfig struct {
	Host     string   `yaml:"host"`
	RPCPort  int      `yaml:"rpc_port"`
	P2PPort  int      `yaml:"p2p_port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	Timeout  Duration `yaml:"timeout"`
}

// ScheduleConfig holds the periodic check settings used by serve.
type ScheduleConfig struct {
	Interval Duration `yaml:"interval"`
}

// WebhookConfig holds alert webhook settings.
type WebhookConfig struct {
	URL      string   `yaml:"url"`
	Cooldown Duration `yaml:"cooldown"`
}

// AlertsConfig holds all alert configuration.
type AlertsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds storage settings.
// Runs older than Retention are pruned; zero keeps them forever.
type StorageConfig struct {
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Config is the root application configuration. It is built once by Load
// and passed by value afterwards.
type Config struct {
	Daemon      DaemonConfig   `yaml:"daemon"`
	Offset      health.Offset  `yaml:"offset"`
	ConsiderP2P bool           `yaml:"consider_p2p"`
	Schedule    ScheduleConfig `yaml:"schedule"`
	Alerts      AlertsConfig   `yaml:"alerts"`
	Server      ServerConfig   `yaml:"server"`
	Storage     StorageConfig  `yaml:"storage"`
	Log         LogConfig      `yaml:"log"`
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			Host:    "127.0.0.1",
			RPCPort: 18081,
			P2PPort: 18080,
			Timeout: Duration{30 * time.Second},
		},
		Offset:   health.DefaultOffset,
		Schedule: ScheduleConfig{Interval: Duration{time.Minute}},
		Alerts: AlertsConfig{
			Webhook: WebhookConfig{Cooldown: Duration{5 * time.Minute}},
		},
		Server:  ServerConfig{Address: ":8080"},
		Storage: StorageConfig{Path: "monerohealth.db"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load builds the configuration from the defaults, the YAML file at path (if
// path is not empty) and the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Fields missing from the file keep their defaults.
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str("MONEROD_URL", &cfg.Daemon.Host)
	str("MONEROD_RPC_USER", &cfg.Daemon.User)
	str("MONEROD_RPC_PASSWORD", &cfg.Daemon.Password)
	str("OFFSET_UNIT", &cfg.Offset.Unit)
	str("LOG_LEVEL", &cfg.Log.Level)

	for key, dst := range map[string]*int{
		"MONEROD_RPC_PORT": &cfg.Daemon.RPCPort,
		"MONEROD_P2P_PORT": &cfg.Daemon.P2PPort,
		"OFFSET":           &cfg.Offset.Amount,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup("HTTP_TIMEOUT"); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("HTTP_TIMEOUT: %w", err)
		}
		cfg.Daemon.Timeout = Duration{d}
	}

	if v, ok := lookup("CONSIDER_P2P"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CONSIDER_P2P: invalid boolean %q: %w", v, err)
		}
		cfg.ConsiderP2P = b
	}
	return nil
}

// parseTimeout accepts a Go duration ("30s") or a bare number of seconds ("30").
func parseTimeout(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", v, err)
	}
	return d, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Daemon.Host == "" {
		errs = append(errs, errors.New("daemon.host is required"))
	}
	if !validPort(c.Daemon.RPCPort) {
		errs = append(errs, fmt.Errorf("daemon.rpc_port %d out of range", c.Daemon.RPCPort))
	}
	if !validPort(c.Daemon.P2PPort) {
		errs = append(errs, fmt.Errorf("daemon.p2p_port %d out of range", c.Daemon.P2PPort))
	}
	if c.Daemon.Timeout.Duration <= 0 {
		errs = append(errs, fmt.Errorf("daemon.timeout must be positive, got %v", c.Daemon.Timeout))
	}
	if c.Schedule.Interval.Duration <= 0 {
		errs = append(errs, fmt.Errorf("schedule.interval must be positive, got %v", c.Schedule.Interval))
	}
	if c.Alerts.Webhook.Cooldown.Duration < 0 {
		errs = append(errs, fmt.Errorf("alerts.webhook.cooldown must not be negative, got %v", c.Alerts.Webhook.Cooldown))
	}
	if c.Storage.Retention.Duration < 0 {
		errs = append(errs, fmt.Errorf("storage.retention must not be negative, got %v", c.Storage.Retention))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// Request returns the check parameters described by the configuration.
func (c *Config) Request() health.Request {
	return health.Request{
		Host:        c.Daemon.Host,
		RPCPort:     c.Daemon.RPCPort,
		P2PPort:     c.Daemon.P2PPort,
		User:        c.Daemon.User,
		Password:    c.Daemon.Password,
		Offset:      c.Offset,
		ConsiderP2P: c.ConsiderP2P,
	}
}
