package config

import "time"

const (
	ProfileSNAP   = "snap"
	ProfileLegacy = "legacy"

	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"

	EncodingHex    = "hex"
	EncodingBase64 = "base64"
)

// GatewayConfig holds the single credential set and protocol profile for the bank API.
type GatewayConfig struct {
	Profile     string `yaml:"profile"`
	Environment string `yaml:"environment"`
	// BaseURL overrides the environment default when set
	BaseURL string `yaml:"base_url"`

	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	MerchantID   string `yaml:"merchant_id"`
	TerminalID   string `yaml:"terminal_id"`
	MerchantName string `yaml:"merchant_name"`
	MerchantCity string `yaml:"merchant_city"`
	Currency     string `yaml:"currency"`
	CallbackURL  string `yaml:"callback_url"`

	// SignatureEncoding is "hex" or "base64"; empty picks the profile default
	SignatureEncoding string `yaml:"signature_encoding"`

	RequestTimeout    time.Duration `yaml:"request_timeout"`
	TokenSafetyMargin time.Duration `yaml:"token_safety_margin"`
	DefaultTokenTTL   time.Duration `yaml:"default_token_ttl"`
	QRValidity        time.Duration `yaml:"qr_validity"`
	QRImageBaseURL    string        `yaml:"qr_image_base_url"`
}

var defaultBaseURLs = map[string]map[string]string{
	ProfileSNAP: {
		EnvironmentSandbox:    "https://sandbox.bankmandiri.co.id",
		EnvironmentProduction: "https://api.bankmandiri.co.id",
	},
	ProfileLegacy: {
		EnvironmentSandbox:    "https://sandbox-api.mandiri.co.id",
		EnvironmentProduction: "https://api.mandiri.co.id",
	},
}

// ResolvedBaseURL returns BaseURL or the default endpoint for the profile and environment.
func (c *GatewayConfig) ResolvedBaseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return defaultBaseURLs[c.Profile][c.Environment]
}

// ResolvedSignatureEncoding returns the configured encoding or the profile default.
func (c *GatewayConfig) ResolvedSignatureEncoding() string {
	if c.SignatureEncoding != "" {
		return c.SignatureEncoding
	}
	if c.Profile == ProfileLegacy {
		return EncodingHex
	}
	return EncodingBase64
}

type WebhookConfig struct {
	VerifySignature bool   `yaml:"verify_signature"`
	SignatureHeader string `yaml:"signature_header"`
	// Secret defaults to the gateway client secret
	Secret   string `yaml:"secret"`
	Encoding string `yaml:"encoding"`
	// MaxBodySize caps a delivery body, e.g. "64K"
	MaxBodySize string `yaml:"max_body_size"`
}

type PollingConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Interval    time.Duration `yaml:"interval"`
}
