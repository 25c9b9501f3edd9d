package pdf

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Stamp placement for label overlays. The logo sits inset from the
// bottom-right corner; the recycling mark hugs the corner.
const (
	logoStampDesc      = "pos:br, off:-7 7, scale:0.09 abs, rot:0"
	recyclingStampDesc = "pos:br, off:-1 1, scale:0.3 abs, rot:0"
)

// EnricherConfig holds the overlay asset locations.
type EnricherConfig struct {
	LogoURL      string
	RecyclingURL string
}

// Enricher post-processes carrier label PDFs, stamping a brand logo or
// the recycling mark required on France-bound shipments onto the first
// page.
type Enricher struct {
	cfg    EnricherConfig
	assets *AssetCache
}

// NewEnricher creates a label enricher backed by the given asset cache.
func NewEnricher(cfg EnricherConfig, assets *AssetCache) *Enricher {
	return &Enricher{cfg: cfg, assets: assets}
}

// AddLogo stamps the brand logo on the label's first page.
func (e *Enricher) AddLogo(ctx context.Context, label []byte) ([]byte, error) {
	img, err := e.assets.Fetch(ctx, e.cfg.LogoURL)
	if err != nil {
		return nil, err
	}
	return stampFirstPage(label, img, logoStampDesc)
}

// AddRecyclingMark stamps the Triman recycling mark on the label's
// first page. Required on shipments to France.
func (e *Enricher) AddRecyclingMark(ctx context.Context, label []byte) ([]byte, error) {
	img, err := e.assets.Fetch(ctx, e.cfg.RecyclingURL)
	if err != nil {
		return nil, err
	}
	return stampFirstPage(label, img, recyclingStampDesc)
}

func stampFirstPage(doc, img []byte, desc string) ([]byte, error) {
	wm, err := api.ImageWatermarkForReader(bytes.NewReader(img), desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("preparing overlay: %w", err)
	}

	var buf bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(doc), &buf, []string{"1"}, wm, nil); err != nil {
		return nil, fmt.Errorf("stamping label: %w", err)
	}
	return buf.Bytes(), nil
}
