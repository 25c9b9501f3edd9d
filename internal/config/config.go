package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Royal Mail
	RoyalMailClientID     string `envconfig:"ROYALMAIL_CLIENT_ID"`
	RoyalMailClientSecret string `envconfig:"ROYALMAIL_CLIENT_SECRET"`
	RoyalMailTokenURL     string `envconfig:"ROYALMAIL_TOKEN_URL" default:"https://authentication.proshipping.net/connect/token"`
	RoyalMailBaseURL      string `envconfig:"ROYALMAIL_BASE_URL" default:"https://api.proshipping.net/v4"`
	RoyalMailAccountID    string `envconfig:"ROYALMAIL_ACCOUNT_ID" default:"Duncans Retail Ltd"`
	RoyalMailUseMock      bool   `envconfig:"ROYALMAIL_USE_MOCK" default:"false"`

	// Commerce platform admin API
	ShopifyEndpoint    string `envconfig:"SHOPIFY_ENDPOINT"`
	ShopifyAccessToken string `envconfig:"SHOPIFY_ACCESS_TOKEN"`
	ShopifyUseMock     bool   `envconfig:"SHOPIFY_USE_MOCK" default:"false"`

	// Batch behavior
	OffersEnabled bool `envconfig:"OFFERS_ENABLED" default:"true"`
	TestMode      bool `envconfig:"TEST_MODE" default:"false"`

	// Label and insert assets
	LogoURL      string `envconfig:"ASSET_LOGO_URL" default:"https://cdn.puzzlegalore.co.uk/assets/logo_grey.jpg"`
	RecyclingURL string `envconfig:"ASSET_RECYCLING_URL" default:"https://cdn.puzzlegalore.co.uk/assets/tri.png"`
	BarcodeURL   string `envconfig:"ASSET_BARCODE_URL" default:"https://cdn.puzzlegalore.co.uk/assets/barcode.png"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://jaeger-collector.observability.svc.cluster.local:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"puzzlegalore-dispatch"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("offers.enabled", c.OffersEnabled),
		attribute.Bool("test.mode", c.TestMode),
	}
}
