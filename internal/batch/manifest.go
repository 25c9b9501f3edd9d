package batch

import (
	"context"
	"fmt"

	"github.com/puzzlegalore/dispatch/pkg/pdf"
	"github.com/puzzlegalore/dispatch/pkg/royalmail"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// manifestRotation turns the carrier's landscape manifest pages upright
// for the label printer.
const manifestRotation = -90

// ManifestBuilder assembles the end-of-day collection document: a cover
// sheet with the collection-point barcode followed by every manifest
// page the carrier returns.
type ManifestBuilder struct {
	carrier *royalmail.Client
	pages   *pdf.Generator
	logger  *otelzap.Logger
}

// NewManifestBuilder creates a manifest builder.
func NewManifestBuilder(carrier *royalmail.Client, pages *pdf.Generator, logger *otelzap.Logger) *ManifestBuilder {
	return &ManifestBuilder{carrier: carrier, pages: pages, logger: logger}
}

// Run fetches today's manifests and returns the printable document.
func (m *ManifestBuilder) Run(ctx context.Context) ([]byte, error) {
	if err := m.carrier.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("royal mail authentication: %w", err)
	}

	resp, err := m.carrier.GetManifests(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching manifests: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no manifests available")
	}

	cover, err := m.pages.ManifestCover(ctx)
	if err != nil {
		return nil, fmt.Errorf("rendering cover sheet: %w", err)
	}

	docs := make([][]byte, 0, len(resp.Data)+1)
	docs = append(docs, cover)
	for i, manifest := range resp.Data {
		rotated, err := pdf.Rotate(manifest.ManifestImage, manifestRotation)
		if err != nil {
			return nil, fmt.Errorf("rotating manifest %d: %w", i+1, err)
		}
		docs = append(docs, rotated)
	}

	m.logger.Info("Assembled collection document", zap.Int("manifests", len(resp.Data)))
	return pdf.Merge(docs)
}
