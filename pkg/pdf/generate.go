package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/puzzlegalore/dispatch/pkg/order"
)

// Page sizes in points. Fallback labels match the thermal label stock;
// inserts and notices share the 4x6 insert stock; the manifest cover is
// landscape-ish to sit above rotated carrier manifests.
var (
	fallbackPageSize = fpdf.SizeType{Wd: 240, Ht: 350}
	insertPageSize   = fpdf.SizeType{Wd: 288, Ht: 432}
	coverPageSize    = fpdf.SizeType{Wd: 350, Ht: 240}
)

// GeneratorConfig holds generated-page configuration.
type GeneratorConfig struct {
	// BarcodeURL locates the collection-point barcode for manifest
	// cover sheets.
	BarcodeURL string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Generator renders the pages the pipeline produces itself: placeholder
// labels, thank-you inserts, brand notices and manifest covers.
type Generator struct {
	cfg    GeneratorConfig
	assets *AssetCache
	now    func() time.Time
}

// NewGenerator creates a page generator.
func NewGenerator(cfg GeneratorConfig, assets *AssetCache) *Generator {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Generator{cfg: cfg, assets: assets, now: now}
}

// FallbackLabel renders the placeholder label used when no carrier
// label exists: order number, recipient, and a pick line per
// unfulfilled item. Every order in a batch yields at least this page.
func (g *Generator) FallbackLabel(o *order.Order) ([]byte, error) {
	doc := newPage(fallbackPageSize)
	doc.SetFont("Helvetica", "", 11)

	doc.Text(10, 150, o.Name)
	doc.Text(10, 180, clip(o.ShippingAddress.Name, 39))

	y := 210.0
	for _, item := range o.LineItems {
		if item.UnfulfilledQuantity <= 0 {
			continue
		}
		doc.Text(10, y, "Title: "+clip(item.ProductTitle, 39))
		y += 20
		doc.Text(10, y, "Location: "+strings.ToUpper(item.StockLocation))
		y += 30
	}

	return output(doc)
}

// ThankYouInsert renders the discount insert. Marketplace inserts
// advertise the fixed first-order code; storefront inserts carry the
// batch code.
func (g *Generator) ThankYouInsert(code string, marketplace bool) ([]byte, error) {
	doc := newPage(insertPageSize)
	w, h := insertPageSize.Wd, insertPageSize.Ht

	// Header bar with the shop name reversed out.
	doc.SetFillColor(0, 0, 0)
	doc.Rect(20, 25, w-40, 25, "F")
	doc.SetTextColor(255, 255, 255)
	doc.SetFont("Helvetica", "B", 14)
	centerText(doc, w/2, 42, "PUZZLES GALORE")

	// Bordered discount panel.
	doc.SetDrawColor(0, 0, 0)
	doc.SetLineWidth(3)
	doc.Rect(30, 80, w-60, 100, "D")
	doc.SetLineWidth(1)
	doc.Rect(34, 84, w-68, 92, "D")

	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Helvetica", "B", 64)
	centerText(doc, w/2, 145, "10%")
	doc.SetFont("Helvetica", "B", 24)
	centerText(doc, w/2, 172, "OFF")

	nextOrderText := "ON YOUR NEXT ORDER"
	if marketplace {
		nextOrderText = "ON YOUR FIRST ORDER"
	}
	doc.SetFont("Helvetica", "", 13)
	centerText(doc, w/2, 210, "THANK YOU FOR YOUR ORDER!")
	centerText(doc, w/2, 230, nextOrderText)

	// Code box.
	doc.SetFillColor(0, 0, 0)
	doc.Rect(40, 255, w-80, 45, "F")
	doc.SetTextColor(255, 255, 255)
	doc.SetFont("Helvetica", "B", 22)
	centerText(doc, w/2, 284, code)

	doc.SetTextColor(0, 0, 0)
	doc.SetFont("Helvetica", "", 10)
	centerText(doc, w/2, 325, "Enter discount code at checkout to save 10%")
	doc.SetFont("Helvetica", "B", 12)
	centerText(doc, w/2, h-40, "PUZZLESGALORE.CO.UK")

	return output(doc)
}

// ravensburgerNoticeLines is the fixed informational text appended to
// US-bound orders containing Ravensburger products.
var ravensburgerNoticeLines = []string{
	"This Ravensburger product has been imported from",
	"outside the United States. As such, Ravensburger USA",
	"will not be able to assist with any product issues or",
	"replacements.",
	"",
	"If you experience any problems with your puzzle,",
	"please contact us directly and we'll be happy to help.",
	"",
	"Thank you for your understanding.",
}

// RavensburgerNotice renders the fixed US import notice page.
func (g *Generator) RavensburgerNotice() ([]byte, error) {
	doc := newPage(insertPageSize)
	w := insertPageSize.Wd

	doc.SetFont("Helvetica", "B", 16)
	centerText(doc, w/2, 60, "Important Notice for US Customers")

	doc.SetFont("Helvetica", "", 11)
	y := 100.0
	for _, line := range ravensburgerNoticeLines {
		if line != "" {
			centerText(doc, w/2, y, line)
		}
		y += 20
	}

	return output(doc)
}

// ManifestCover renders the collection cover sheet: carrier name,
// long-form date and the collection-point barcode.
func (g *Generator) ManifestCover(ctx context.Context) ([]byte, error) {
	doc := newPage(coverPageSize)
	w, h := coverPageSize.Wd, coverPageSize.Ht

	doc.SetFont("Times", "", 20)
	centerText(doc, w/2, 60, "Royal Mail")
	doc.SetFont("Times", "B", 20)
	centerText(doc, w/2, 90, "Collection")
	doc.SetFont("Times", "", 20)
	centerText(doc, w/2, 120, g.now().Format("Monday, 2 January"))

	barcode, err := g.assets.Fetch(ctx, g.cfg.BarcodeURL)
	if err != nil {
		return nil, fmt.Errorf("fetching collection barcode: %w", err)
	}

	info := doc.RegisterImageOptionsReader("collection-barcode",
		fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(barcode))
	if doc.Err() {
		return nil, fmt.Errorf("embedding collection barcode: %v", doc.Error())
	}
	bw, bh := info.Width(), info.Height()
	doc.ImageOptions("collection-barcode", (w-bw)/2, h-40-bh, bw, bh, false,
		fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	doc.SetFont("Times", "", 20)
	centerText(doc, w/2, h-20, "Collection point barcode")

	return output(doc)
}

func newPage(size fpdf.SizeType) *fpdf.Fpdf {
	doc := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt", Size: size})
	doc.SetAutoPageBreak(false, 0)
	doc.AddPage()
	return doc
}

func centerText(doc *fpdf.Fpdf, cx, y float64, text string) {
	doc.Text(cx-doc.GetStringWidth(text)/2, y, text)
}

func output(doc *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return buf.Bytes(), nil
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
