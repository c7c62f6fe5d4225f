package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/gommon/bytes"
	"gopkg.in/yaml.v3"

	pkgconfig "github.com/wekeepgrowing/qris-gateway/pkg/config"
)

const envPrefix = "qris"

const (
	minQRValidity = 5 * time.Minute
	maxQRValidity = 120 * time.Minute
)

type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Polling  PollingConfig  `yaml:"polling"`
	Storage  StorageConfig  `yaml:"storage"`
	Events   EventsConfig   `yaml:"events"`
}

// LoadConfig reads the YAML file at CONFIG_PATH, overlays QRIS_* environment
// variables and validates the result.
func LoadConfig() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/qris.yaml"
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data, pkgconfig.FromEnv(envPrefix, overridableKeys...))
}

// Parse builds a Config from YAML bytes and an environment overlay.
func Parse(data []byte, env pkgconfig.Config) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if env != nil {
		cfg.applyEnv(env)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var overridableKeys = []string{
	"service.environment",
	"database.host",
	"database.password",
	"auth.jwt_secret",
	"gateway.profile",
	"gateway.environment",
	"gateway.base_url",
	"gateway.client_id",
	"gateway.client_secret",
	"gateway.merchant_id",
	"webhook.secret",
	"storage.driver",
	"events.driver",
	"events.redis.addr",
	"events.kafka.brokers",
}

func (c *Config) applyEnv(env pkgconfig.Config) {
	setString := func(key string, target *string) {
		if env.IsSet(key) {
			*target = env.GetString(key)
		}
	}

	setString("service.environment", &c.Service.Environment)
	setString("database.host", &c.Database.Host)
	setString("database.password", &c.Database.Password)
	setString("auth.jwt_secret", &c.Auth.JWTSecret)
	setString("gateway.profile", &c.Gateway.Profile)
	setString("gateway.environment", &c.Gateway.Environment)
	setString("gateway.base_url", &c.Gateway.BaseURL)
	setString("gateway.client_id", &c.Gateway.ClientID)
	setString("gateway.client_secret", &c.Gateway.ClientSecret)
	setString("gateway.merchant_id", &c.Gateway.MerchantID)
	setString("webhook.secret", &c.Webhook.Secret)
	setString("storage.driver", &c.Storage.Driver)
	setString("events.driver", &c.Events.Driver)
	setString("events.redis.addr", &c.Events.Redis.Addr)

	if env.IsSet("events.kafka.brokers") {
		c.Events.Kafka.Brokers = env.GetStringSlice("events.kafka.brokers")
	}
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "qris-gateway"
	}
	if c.Server.HTTP.Port == 0 {
		c.Server.HTTP.Port = 8080
	}
	if c.Server.GRPC.Port == 0 {
		c.Server.GRPC.Port = 9090
	}

	g := &c.Gateway
	if g.Profile == "" {
		g.Profile = ProfileSNAP
	}
	if g.Environment == "" {
		g.Environment = EnvironmentSandbox
	}
	if g.MerchantName == "" {
		g.MerchantName = "Toko Online"
	}
	if g.MerchantCity == "" {
		g.MerchantCity = "Jakarta"
	}
	if g.Currency == "" {
		g.Currency = "IDR"
	}
	if g.RequestTimeout == 0 {
		g.RequestTimeout = 30 * time.Second
	}
	if g.TokenSafetyMargin == 0 {
		g.TokenSafetyMargin = 60 * time.Second
	}
	if g.DefaultTokenTTL == 0 {
		g.DefaultTokenTTL = time.Hour
	}
	if g.QRValidity == 0 {
		g.QRValidity = minQRValidity
	}
	if g.QRImageBaseURL == "" {
		g.QRImageBaseURL = "https://api.qrserver.com/v1/create-qr-code/?size=300x300&data="
	}

	if c.Webhook.SignatureHeader == "" {
		c.Webhook.SignatureHeader = "X-Signature"
	}
	if c.Webhook.Secret == "" {
		c.Webhook.Secret = g.ClientSecret
	}
	if c.Webhook.Encoding == "" {
		c.Webhook.Encoding = EncodingHex
	}
	if c.Webhook.MaxBodySize == "" {
		c.Webhook.MaxBodySize = "64K"
	}

	if c.Polling.MaxAttempts == 0 {
		c.Polling.MaxAttempts = 10
	}
	if c.Polling.Interval == 0 {
		c.Polling.Interval = 5 * time.Second
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "postgres"
	}
	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "qris.payment.status"
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	g := &c.Gateway
	switch g.Profile {
	case ProfileSNAP, ProfileLegacy:
	default:
		return fmt.Errorf("unsupported gateway profile: %s", g.Profile)
	}
	switch g.Environment {
	case EnvironmentSandbox, EnvironmentProduction:
	default:
		return fmt.Errorf("unsupported gateway environment: %s", g.Environment)
	}
	if err := validateEncoding(g.ResolvedSignatureEncoding()); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	if err := validateEncoding(c.Webhook.Encoding); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	if size, err := bytes.Parse(c.Webhook.MaxBodySize); err != nil || size <= 0 {
		return fmt.Errorf("webhook: invalid max_body_size: %s", c.Webhook.MaxBodySize)
	}
	if g.ClientID == "" || g.ClientSecret == "" {
		return fmt.Errorf("gateway client_id and client_secret are required")
	}
	if g.TokenSafetyMargin < 0 {
		return fmt.Errorf("gateway token_safety_margin must not be negative")
	}
	if g.QRValidity < minQRValidity || g.QRValidity > maxQRValidity {
		return fmt.Errorf("gateway qr_validity must be between %s and %s", minQRValidity, maxQRValidity)
	}
	if c.Polling.MaxAttempts < 1 {
		return fmt.Errorf("polling max_attempts must be at least 1")
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}
	switch c.Events.Driver {
	case "none", "redis", "kafka":
	default:
		return fmt.Errorf("unsupported events driver: %s", c.Events.Driver)
	}
	return nil
}

func validateEncoding(encoding string) error {
	switch encoding {
	case EncodingHex, EncodingBase64:
		return nil
	default:
		return fmt.Errorf("unsupported signature encoding: %s", encoding)
	}
}
