package main

import (
	"context"
	"time"

	"github.com/puzzlegalore/dispatch/internal/batch"
	"github.com/puzzlegalore/dispatch/internal/config"
	"github.com/puzzlegalore/dispatch/internal/telemetry"
	"github.com/puzzlegalore/dispatch/pkg/offers"
	"github.com/puzzlegalore/dispatch/pkg/pdf"
	"github.com/puzzlegalore/dispatch/pkg/royalmail"
	"github.com/puzzlegalore/dispatch/pkg/shopify"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
)

func loadConfig() (*config.Config, error) {
	return config.Load()
}

func initLogger(level string) (*otelzap.Logger, error) {
	return telemetry.NewLogger(level)
}

func initTracer(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	if !cfg.OTELEnabled {
		return func(context.Context) error { return nil }, nil
	}

	_, shutdown, err := telemetry.InitTracer(ctx, cfg.OTELEndpoint, cfg.ServiceName, cfg.Version)
	return shutdown, err
}

func initAdminAPI(cfg *config.Config) shopify.AdminAPI {
	if cfg.ShopifyUseMock {
		return shopify.NewMockAdminAPI()
	}
	return shopify.NewHTTPAdminAPI(shopify.HTTPAdminAPIConfig{
		Endpoint:    cfg.ShopifyEndpoint,
		AccessToken: cfg.ShopifyAccessToken,
	})
}

func initBatch(cfg *config.Config, logger *otelzap.Logger, metrics *telemetry.Metrics) (*batch.Orchestrator, *batch.ManifestBuilder) {
	tracer := otel.GetTracerProvider().Tracer(cfg.ServiceName)

	carrier := royalmail.New(royalmail.Config{
		ClientID:          cfg.RoyalMailClientID,
		ClientSecret:      cfg.RoyalMailClientSecret,
		TokenURL:          cfg.RoyalMailTokenURL,
		BaseURL:           cfg.RoyalMailBaseURL,
		ShippingAccountID: cfg.RoyalMailAccountID,
		UseMock:           cfg.RoyalMailUseMock,
	}, logger, tracer)

	builder := royalmail.NewBuilder(royalmail.BuilderConfig{
		ShippingAccountID: cfg.RoyalMailAccountID,
		TestMode:          cfg.TestMode,
	})

	admin := initAdminAPI(cfg)
	offerEngine := offers.NewEngine(admin, logger, offers.Config{})

	assets := pdf.NewAssetCache(30 * time.Second)
	pages := pdf.NewGenerator(pdf.GeneratorConfig{BarcodeURL: cfg.BarcodeURL}, assets)
	enricher := pdf.NewEnricher(pdf.EnricherConfig{
		LogoURL:      cfg.LogoURL,
		RecyclingURL: cfg.RecyclingURL,
	}, assets)

	orchestrator := batch.New(batch.Config{
		OffersEnabled: cfg.OffersEnabled,
		TestMode:      cfg.TestMode,
	}, carrier, builder, admin, offerEngine, pages, enricher, logger, metrics)

	manifests := batch.NewManifestBuilder(carrier, pages, logger)
	return orchestrator, manifests
}
