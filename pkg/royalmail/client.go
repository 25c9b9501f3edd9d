package royalmail

import (
	"context"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "royalmail"

// Config holds Royal Mail configuration.
type Config struct {
	ClientID          string
	ClientSecret      string
	TokenURL          string
	BaseURL           string
	ShippingAccountID string
	UseMock           bool // When true, uses mock API client
}

// Client is the Royal Mail carrier client.
// It delegates API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Royal Mail client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		tokens := NewTokenSource(TokenConfig{
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
		})
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			Tokens:  tokens,
			Timeout: 30 * time.Second,
		})
	}

	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// NewWithAPIClient creates a new Royal Mail client with a custom API
// client. This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// Authenticate ensures the client holds a usable bearer token. An
// error here is fatal to any batch: no carrier call can proceed.
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.apiClient.Authenticate(ctx); err != nil {
		c.logger.Error("Royal Mail authentication failed", zap.Error(err))
		return err
	}
	return nil
}

// CreateLabel submits a shipment and returns the carrier's response,
// including label bytes on success or a structured error payload.
func (c *Client) CreateLabel(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	c.logger.Info("Creating Royal Mail shipment",
		zap.String("order_ref", req.Shipper.Reference1),
		zap.String("service_code", req.ShipmentInformation.ServiceCode),
		zap.String("destination", req.Destination.Address.CountryCode),
	)

	resp, err := c.apiClient.CreateShipment(ctx, req)
	if err != nil {
		c.logger.Error("Royal Mail API error", zap.Error(err))
		return nil, err
	}

	if text := resp.ErrorText(); text != "" {
		c.logger.Warn("Royal Mail rejected shipment",
			zap.String("order_ref", req.Shipper.Reference1),
			zap.String("errors", text),
		)
	}
	return resp, nil
}

// GetLabel retrieves the label for an already-created shipment so a
// duplicate label isn't purchased.
func (c *Client) GetLabel(ctx context.Context, shipmentNumber string) (*ShipmentResponse, error) {
	c.logger.Info("Fetching existing Royal Mail label",
		zap.String("shipment_number", shipmentNumber),
	)

	resp, err := c.apiClient.GetShipment(ctx, shipmentNumber)
	if err != nil {
		c.logger.Error("Royal Mail API error", zap.Error(err))
		return nil, err
	}
	return resp, nil
}

// GetManifests requests the day's collection manifest documents.
func (c *Client) GetManifests(ctx context.Context) (*ManifestResponse, error) {
	c.logger.Info("Requesting Royal Mail manifests")

	resp, err := c.apiClient.GetManifests(ctx)
	if err != nil {
		c.logger.Error("Royal Mail API error", zap.Error(err))
		return nil, err
	}

	c.logger.Info("Received Royal Mail manifests", zap.Int("documents", len(resp.Data)))
	return resp, nil
}
