package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/inapppay/internal/service"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port string
	Env  string

	// Notice storage: Postgres when DBSource is set, Bolt otherwise.
	DBSource string
	BoltPath string

	// RedisURL selects the Redis task queue and lock; empty means in-memory.
	RedisURL string

	KafkaBrokers     []string
	KafkaGroupID     string
	KafkaAlertTopic  string
	KafkaEventTopics []string

	BillingURL     string
	BillingTimeout time.Duration

	NotifyIssuer   string
	MarketplaceKey string
	IconSize       int
	IconsEnabled   bool
	RequireHTTPS   bool
	NotifyTimeout  time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	FakePayments   bool
	PollInterval   time.Duration
}

type configFile struct {
	Server struct {
		Port        string `yaml:"port"`
		Environment string `yaml:"environment"`
	} `yaml:"server"`
	Storage struct {
		DBSource string `yaml:"db_source"`
		BoltPath string `yaml:"bolt_path"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"storage"`
	Kafka struct {
		Brokers     []string `yaml:"brokers"`
		GroupID     string   `yaml:"group_id"`
		AlertTopic  string   `yaml:"alert_topic"`
		EventTopics []string `yaml:"event_topics"`
	} `yaml:"kafka"`
	Billing struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"billing"`
	Payments struct {
		NotifyIssuer          string `yaml:"notify_issuer"`
		MarketplaceKey        string `yaml:"marketplace_key"`
		IconSize              int    `yaml:"icon_size"`
		IconsEnabled          *bool  `yaml:"icons_enabled"`
		RequireHTTPS          *bool  `yaml:"require_https"`
		NotifyTimeoutSeconds  int    `yaml:"notify_timeout_seconds"`
		MaxRetries            *int   `yaml:"max_retries"`
		RetryBaseDelaySeconds int    `yaml:"retry_base_delay_seconds"`
		FakePayments          *bool  `yaml:"fake_payments"`
		PollIntervalMillis    int    `yaml:"poll_interval_ms"`
	} `yaml:"payments"`
}

func defaults() Config {
	return Config{
		Port:             "8080",
		Env:              "development",
		BoltPath:         "data/notices.db",
		KafkaGroupID:     "inapppay-worker",
		KafkaAlertTopic:  "payments.notify_failure",
		KafkaEventTopics: []string{"transaction.completed", "transaction.refunded", "transaction.reversed"},
		BillingTimeout:   10 * time.Second,
		NotifyIssuer:     "payments.local",
		IconSize:         64,
		IconsEnabled:     true,
		RequireHTTPS:     true,
		NotifyTimeout:    5 * time.Second,
		MaxRetries:       5,
		RetryBaseDelay:   30 * time.Second,
		PollInterval:     time.Second,
	}
}

// Load starts from defaults, applies the YAML file named by CONFIG_PATH if
// any, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := cfg.applyFile(raw); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if cfg.DBSource == "" && cfg.BoltPath == "" {
		return nil, fmt.Errorf("either DB_SOURCE or BOLT_PATH is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("MAX_RETRIES must not be negative")
	}
	return &cfg, nil
}

func (c *Config) applyFile(raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	setString(&c.Port, f.Server.Port)
	setString(&c.Env, f.Server.Environment)
	setString(&c.DBSource, f.Storage.DBSource)
	setString(&c.BoltPath, f.Storage.BoltPath)
	setString(&c.RedisURL, f.Storage.RedisURL)
	if len(f.Kafka.Brokers) > 0 {
		c.KafkaBrokers = f.Kafka.Brokers
	}
	setString(&c.KafkaGroupID, f.Kafka.GroupID)
	setString(&c.KafkaAlertTopic, f.Kafka.AlertTopic)
	if len(f.Kafka.EventTopics) > 0 {
		c.KafkaEventTopics = f.Kafka.EventTopics
	}
	setString(&c.BillingURL, f.Billing.URL)
	if f.Billing.TimeoutSeconds > 0 {
		c.BillingTimeout = time.Duration(f.Billing.TimeoutSeconds) * time.Second
	}

	p := f.Payments
	setString(&c.NotifyIssuer, p.NotifyIssuer)
	setString(&c.MarketplaceKey, p.MarketplaceKey)
	if p.IconSize > 0 {
		c.IconSize = p.IconSize
	}
	if p.IconsEnabled != nil {
		c.IconsEnabled = *p.IconsEnabled
	}
	if p.RequireHTTPS != nil {
		c.RequireHTTPS = *p.RequireHTTPS
	}
	if p.NotifyTimeoutSeconds > 0 {
		c.NotifyTimeout = time.Duration(p.NotifyTimeoutSeconds) * time.Second
	}
	if p.MaxRetries != nil {
		c.MaxRetries = *p.MaxRetries
	}
	if p.RetryBaseDelaySeconds > 0 {
		c.RetryBaseDelay = time.Duration(p.RetryBaseDelaySeconds) * time.Second
	}
	if p.FakePayments != nil {
		c.FakePayments = *p.FakePayments
	}
	if p.PollIntervalMillis > 0 {
		c.PollInterval = time.Duration(p.PollIntervalMillis) * time.Millisecond
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = envString("SERVER_PORT", c.Port)
	c.Env = envString("ENVIRONMENT", c.Env)
	c.DBSource = envString("DB_SOURCE", c.DBSource)
	c.BoltPath = envString("BOLT_PATH", c.BoltPath)
	c.RedisURL = envString("REDIS_URL", c.RedisURL)
	c.KafkaBrokers = envList("KAFKA_BROKERS", c.KafkaBrokers)
	c.KafkaGroupID = envString("KAFKA_GROUP_ID", c.KafkaGroupID)
	c.KafkaAlertTopic = envString("KAFKA_ALERT_TOPIC", c.KafkaAlertTopic)
	c.KafkaEventTopics = envList("KAFKA_EVENT_TOPICS", c.KafkaEventTopics)
	c.BillingURL = envString("BILLING_API_URL", c.BillingURL)
	c.BillingTimeout = envSeconds("BILLING_TIMEOUT_SECONDS", c.BillingTimeout)
	c.NotifyIssuer = envString("NOTIFY_ISSUER", c.NotifyIssuer)
	c.MarketplaceKey = envString("MARKETPLACE_KEY", c.MarketplaceKey)
	c.IconSize = envInt("ICON_SIZE", c.IconSize)
	c.IconsEnabled = envBool("ICONS_ENABLED", c.IconsEnabled)
	c.RequireHTTPS = envBool("REQUIRE_HTTPS", c.RequireHTTPS)
	c.NotifyTimeout = envSeconds("NOTIFY_TIMEOUT_SECONDS", c.NotifyTimeout)
	c.MaxRetries = envInt("MAX_RETRIES", c.MaxRetries)
	c.RetryBaseDelay = envSeconds("RETRY_BASE_DELAY_SECONDS", c.RetryBaseDelay)
	c.FakePayments = envBool("FAKE_PAYMENTS", c.FakePayments)
	if ms := envInt("POLL_INTERVAL_MS", 0); ms > 0 {
		c.PollInterval = time.Duration(ms) * time.Millisecond
	}
}

// Service returns the settings shared by the provisioning and notification
// pipeline.
func (c *Config) Service() service.Config {
	return service.Config{
		IconsEnabled:   c.IconsEnabled,
		RequireHTTPS:   c.RequireHTTPS,
		NotifyTimeout:  c.NotifyTimeout,
		MaxRetries:     c.MaxRetries,
		MarketplaceKey: c.MarketplaceKey,
		NotifyIssuer:   c.NotifyIssuer,
		FakePayments:   c.FakePayments,
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envString(name, fallback string) string {
	if raw := os.Getenv(name); raw != "" {
		return raw
	}
	return fallback
}

func envInt(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envSeconds(name string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	}
	return fallback
}

func envList(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
