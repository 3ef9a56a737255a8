package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Redis     RedisConfig      `yaml:"redis"`
	Logger    LoggerConfig     `yaml:"logger"`
	Runtime   RuntimeConfig    `yaml:"runtime"`
	Gateway   GatewayConfig    `yaml:"gateway"`
	Lifecycle LifecycleConfig  `yaml:"lifecycle"`
	IdleSweep IdleSweepConfig  `yaml:"idle_sweep"`
	Billing   BillingConfig    `yaml:"billing"`
	Backup    BackupConfig     `yaml:"backup"`
	Alert     AlertConfig      `yaml:"alert"`
	Templates []TemplateConfig `yaml:"templates"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Port      int    `yaml:"port"`
	Mode      string `yaml:"mode"`       // debug, release
	APIKey    string `yaml:"api_key"`    // operator API key (optional, if empty, auth is disabled)
	WakeToken string `yaml:"wake_token"` // shared secret presented by gateways on the internal wake route
}

// DatabaseConfig database configuration
type DatabaseConfig struct {
	Type   string       `yaml:"type"` // mysql, sqlite
	MySQL  MySQLConfig  `yaml:"mysql"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DSN builds the go-sql-driver DSN
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// SQLiteConfig SQLite configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"` // without redis the sweeps run in single-instance mode
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// RuntimeConfig container runtime configuration
type RuntimeConfig struct {
	Provider    string        `yaml:"provider"` // docker
	CallTimeout time.Duration `yaml:"call_timeout"`
	PullTimeout time.Duration `yaml:"pull_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	PullCache   time.Duration `yaml:"pull_cache"` // how long a successful pull is trusted
	MinPort     int           `yaml:"min_port"`
	MaxPort     int           `yaml:"max_port"`
	HelperImage string        `yaml:"helper_image"` // used to read volumes during export
}

// GatewayConfig settings injected into every gateway container
type GatewayConfig struct {
	Image     string  `yaml:"image"`
	Memory    string  `yaml:"memory"` // e.g. 50m
	CPU       float64 `yaml:"cpu"`
	WakeURL   string  `yaml:"wake_url"` // orchestrator base URL as seen from gateway containers
	ProbePort int     `yaml:"probe_port"`
}

// LifecycleConfig state machine timing
type LifecycleConfig struct {
	WakeTimeout       time.Duration `yaml:"wake_timeout"`
	ReadinessInterval time.Duration `yaml:"readiness_interval"`
	StopGracePeriod   time.Duration `yaml:"stop_grace_period"`
	TeardownRetries   int           `yaml:"teardown_retries"`
	TeardownBackoff   time.Duration `yaml:"teardown_backoff"`
	DataMountPath     string        `yaml:"data_mount_path"`
}

// IdleSweepConfig auto-sleep policy
type IdleSweepConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	CPUThreshold  float64       `yaml:"cpu_threshold"` // percent
	IdleWindow    time.Duration `yaml:"idle_window"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// BillingConfig credit consumption policy
type BillingConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Interval           time.Duration `yaml:"interval"`
	CreditsPerInterval float64       `yaml:"credits_per_interval"`
	ActionTimeout      time.Duration `yaml:"action_timeout"`
}

// BackupConfig object storage for volume exports
type BackupConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"` // S3-compatible endpoint, empty for AWS
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
	Prefix       string `yaml:"prefix"`
}

// AlertConfig operator notifications
type AlertConfig struct {
	FeishuWebhookURL string `yaml:"feishu_webhook_url"`
}

// TemplateConfig catalog entry seeded on startup
type TemplateConfig struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Image        string            `yaml:"image"`
	InternalPort int               `yaml:"internal_port"`
	Protocol     string            `yaml:"protocol"`
	MinCPU       float64           `yaml:"min_cpu"`
	MinRAM       string            `yaml:"min_ram"`
	DefaultEnv   map[string]string `yaml:"default_env"`
}

// DefaultTemplates returns the built-in game catalog
func DefaultTemplates() []TemplateConfig {
	return []TemplateConfig{
		{
			ID:           "minecraft-java",
			Name:         "Minecraft Java",
			Image:        "itzg/minecraft-server",
			InternalPort: 25565,
			Protocol:     "tcp",
			MinCPU:       1.0,
			MinRAM:       "2g",
			DefaultEnv:   map[string]string{"EULA": "TRUE"},
		},
		{
			ID:           "valheim",
			Name:         "Valheim",
			Image:        "lloesche/valheim-server",
			InternalPort: 2456,
			Protocol:     "udp",
			MinCPU:       2.0,
			MinRAM:       "4g",
		},
		{
			ID:           "satisfactory",
			Name:         "Satisfactory",
			Image:        "wolveix/satisfactory-server",
			InternalPort: 7777,
			Protocol:     "udp",
			MinCPU:       4.0,
			MinRAM:       "8g",
		},
	}
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		return err
	}

	GlobalConfig = cfg
	return nil
}

// Load reads a YAML file and fills unset values with defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills in missing or invalid values
func (c *Config) ApplyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}

	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type == "sqlite" && c.Database.SQLite.Path == "" {
		c.Database.SQLite.Path = "data/slumber.db"
	}
	if c.Database.MySQL.Port == 0 {
		c.Database.MySQL.Port = 3306
	}

	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "console"
	}

	r := &c.Runtime
	if r.Provider == "" {
		r.Provider = "docker"
	}
	if r.CallTimeout <= 0 {
		r.CallTimeout = 30 * time.Second
	}
	if r.PullTimeout <= 0 {
		r.PullTimeout = 10 * time.Minute
	}
	if r.MaxRetries <= 0 {
		r.MaxRetries = 3
	}
	if r.RetryDelay <= 0 {
		r.RetryDelay = time.Second
	}
	if r.PullCache <= 0 {
		r.PullCache = time.Hour
	}
	if r.MinPort <= 0 {
		r.MinPort = 25000
	}
	if r.MaxPort <= 0 {
		r.MaxPort = 26000
	}
	if r.HelperImage == "" {
		r.HelperImage = "busybox:latest"
	}

	g := &c.Gateway
	if g.Image == "" {
		g.Image = "slumber-gateway:latest"
	}
	if g.Memory == "" {
		g.Memory = "50m"
	}
	if g.CPU <= 0 {
		g.CPU = 0.5
	}
	if g.WakeURL == "" {
		g.WakeURL = fmt.Sprintf("http://host.docker.internal:%d", c.Server.Port)
	}

	l := &c.Lifecycle
	if l.WakeTimeout <= 0 {
		l.WakeTimeout = 60 * time.Second
	}
	if l.ReadinessInterval <= 0 {
		l.ReadinessInterval = 2 * time.Second
	}
	if l.StopGracePeriod <= 0 {
		l.StopGracePeriod = 30 * time.Second
	}
	if l.TeardownRetries <= 0 {
		l.TeardownRetries = 3
	}
	if l.TeardownBackoff <= 0 {
		l.TeardownBackoff = 2 * time.Second
	}
	if l.DataMountPath == "" {
		l.DataMountPath = "/data"
	}

	i := &c.IdleSweep
	if i.Interval <= 0 {
		i.Interval = time.Minute
	}
	if i.CPUThreshold <= 0 {
		i.CPUThreshold = 5.0
	}
	if i.IdleWindow <= 0 {
		i.IdleWindow = 15 * time.Minute
	}
	if i.ActionTimeout <= 0 {
		i.ActionTimeout = 90 * time.Second
	}

	b := &c.Billing
	if b.Interval <= 0 {
		b.Interval = time.Minute
	}
	if b.CreditsPerInterval <= 0 {
		b.CreditsPerInterval = 0.1
	}
	if b.ActionTimeout <= 0 {
		b.ActionTimeout = 90 * time.Second
	}

	if c.Backup.Region == "" {
		c.Backup.Region = "us-east-1"
	}

	if len(c.Templates) == 0 {
		c.Templates = DefaultTemplates()
	}
}

// Validate checks settings that have no sensible default
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "mysql":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.Type == "mysql" && c.Database.MySQL.Host == "" {
		return fmt.Errorf("mysql host is required")
	}
	if c.Runtime.MinPort > c.Runtime.MaxPort {
		return fmt.Errorf("runtime port range is empty: %d > %d", c.Runtime.MinPort, c.Runtime.MaxPort)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("backup bucket is required when backup is enabled")
	}
	for _, t := range c.Templates {
		if t.ID == "" || t.Image == "" || t.InternalPort <= 0 {
			return fmt.Errorf("template %q needs id, image and internal_port", t.Name)
		}
		if t.Protocol != "tcp" && t.Protocol != "udp" {
			return fmt.Errorf("template %s: unsupported protocol %q", t.ID, t.Protocol)
		}
	}
	return nil
}
