// Package batch runs the label-generation pipeline: one pass over a
// selection of orders producing a single merged PDF, per-order outcome
// records for the caller to write back, and an operator progress log.
package batch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/puzzlegalore/dispatch/internal/telemetry"
	"github.com/puzzlegalore/dispatch/pkg/offers"
	"github.com/puzzlegalore/dispatch/pkg/order"
	"github.com/puzzlegalore/dispatch/pkg/pdf"
	"github.com/puzzlegalore/dispatch/pkg/royalmail"
	"github.com/puzzlegalore/dispatch/pkg/shopify"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// Order outcome labels for metrics.
const (
	outcomeSuccess     = "success"
	outcomeExisting    = "existing"
	outcomeMarketplace = "marketplace"
	outcomeSkipped     = "skipped"
	outcomeError       = "error"
)

// OrderResult is the per-order outcome of a batch run. Every order in
// the input yields exactly one result.
type OrderResult struct {
	OrderID        string                   `json:"orderId"`
	Name           string                   `json:"name"`
	Message        string                   `json:"message"`
	ShipmentNumber string                   `json:"shipmentNumber,omitempty"`
	Metafields     []shopify.MetafieldInput `json:"metafields,omitempty"`
}

// Outcome is the full result of a batch run.
type Outcome struct {
	// Document is the merged PDF, at least one page per input order.
	Document []byte `json:"document"`
	// Results holds one entry per input order, in input order.
	Results []OrderResult `json:"results"`
	// Log is the operator-facing progress log.
	Log []string `json:"log"`
	// DiscountCode is the batch code printed on storefront inserts,
	// empty when offers were disabled or code creation failed.
	DiscountCode string `json:"discountCode,omitempty"`
	// FirstRequest echoes the first shipment request built, for
	// operator diagnostics.
	FirstRequest *royalmail.ShipmentRequest `json:"firstRequest,omitempty"`
}

// Config holds orchestrator configuration.
type Config struct {
	// OffersEnabled switches the discount insert flow on.
	OffersEnabled bool
	// TestMode forces fresh label requests, declares full quantities
	// and skips label enrichment.
	TestMode bool
}

// Orchestrator drives a label batch end to end. Order failures are
// isolated: a carrier rejection or transport error downgrades that one
// order to a placeholder label and the run continues. Only an auth
// failure, cancellation or a final merge failure aborts the run.
type Orchestrator struct {
	cfg      Config
	carrier  *royalmail.Client
	builder  *royalmail.Builder
	admin    shopify.AdminAPI
	offers   *offers.Engine
	pages    *pdf.Generator
	enricher *pdf.Enricher
	logger   *otelzap.Logger
	metrics  *telemetry.Metrics
}

// New creates a batch orchestrator. metrics may be nil.
func New(
	cfg Config,
	carrier *royalmail.Client,
	builder *royalmail.Builder,
	admin shopify.AdminAPI,
	offerEngine *offers.Engine,
	pages *pdf.Generator,
	enricher *pdf.Enricher,
	logger *otelzap.Logger,
	metrics *telemetry.Metrics,
) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		carrier:  carrier,
		builder:  builder,
		admin:    admin,
		offers:   offerEngine,
		pages:    pages,
		enricher: enricher,
		logger:   logger,
		metrics:  metrics,
	}
}

// Run processes the given orders and returns the merged label document.
// It returns an error only for batch-fatal conditions: authentication
// failure, context cancellation, or a merge failure at the end.
func (b *Orchestrator) Run(ctx context.Context, orders []order.Order) (*Outcome, error) {
	start := time.Now()
	runID := uuid.New().String()[:8]
	out := &Outcome{Results: make([]OrderResult, 0, len(orders))}
	progress := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		out.Log = append(out.Log, msg)
		b.logger.Info(msg, zap.String("run_id", runID))
	}

	progress("Starting batch of %d orders...", len(orders))

	if b.cfg.OffersEnabled {
		progress("Preparing discount code for eligible customers...")
		code, err := b.offers.CreateDiscountCode(ctx, false)
		if err != nil {
			progress("Could not prepare a discount code, continuing without inserts: %v", err)
		} else {
			out.DiscountCode = code
			progress("Using discount code %s for this batch", code)
		}
	}

	progress("Authenticating with Royal Mail...")
	if err := b.carrier.Authenticate(ctx); err != nil {
		b.metrics.RecordCarrierError("authenticate", "auth")
		return nil, fmt.Errorf("royal mail authentication: %w", err)
	}
	progress("Successfully authenticated with Royal Mail")

	var docs [][]byte
	offersInserted := 0

	for i := range orders {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled after %d of %d orders: %w", i, len(orders), err)
		}

		o := &orders[i]
		pages, result := b.processOrder(ctx, o, out, progress)

		if b.pageNeeded(o) {
			if notice, err := b.pages.RavensburgerNotice(); err == nil {
				pages = append(pages, notice)
			} else {
				progress("Could not render product notice for order %s: %v", o.Name, err)
			}
		}

		if insert, ok := b.offerInsert(ctx, o, out.DiscountCode, progress); ok {
			pages = append(pages, insert)
			offersInserted++
			b.metrics.RecordOfferInsert()
		}

		// Every order contributes at least one page so the printed
		// stack stays aligned with the picking list.
		if len(pages) == 0 {
			page, err := b.pages.FallbackLabel(o)
			if err != nil {
				return nil, fmt.Errorf("rendering placeholder for order %s: %w", o.Name, err)
			}
			pages = append(pages, page)
		}

		docs = append(docs, pages...)
		out.Results = append(out.Results, result)
		progress("Processed order %d of %d", i+1, len(orders))
	}

	progress("Merging all labels into the final document...")
	doc, err := pdf.Merge(docs)
	if err != nil {
		return nil, fmt.Errorf("merging batch document: %w", err)
	}
	out.Document = doc

	if offersInserted > 0 {
		progress("Batch complete! %d customers received discount code %s", offersInserted, out.DiscountCode)
	} else {
		progress("Batch complete!")
	}
	b.metrics.RecordBatch(time.Since(start).Seconds())
	return out, nil
}

// processOrder resolves one order to its label pages and outcome
// record. It never fails the batch: errors become a logged message and
// a placeholder label.
func (b *Orchestrator) processOrder(ctx context.Context, o *order.Order, out *Outcome, progress func(string, ...interface{})) ([][]byte, OrderResult) {
	result := OrderResult{OrderID: bareOrderID(o.ID), Name: o.Name}

	if b.marketplaceDirect(o) {
		progress("Order %s ships through a marketplace channel, printing pick sheet only", o.Name)
		result.Message = "Marketplace order - no label requested"
		b.metrics.RecordOrder(outcomeMarketplace)
		return b.placeholderPages(o, progress), result
	}

	var (
		resp *royalmail.ShipmentResponse
		err  error
	)
	if o.HasTrackedShipment() && !b.cfg.TestMode {
		progress("Retrieving existing label for order %s...", o.Name)
		resp, err = b.carrier.GetLabel(ctx, o.ShipmentNumber)
		if err != nil {
			b.metrics.RecordCarrierError("get_label", "transport")
		}
	} else {
		req := b.builder.Build(o)
		if req == nil {
			progress("Order %s needs no carrier label, printing pick sheet only", o.Name)
			result.Message = "No data submitted"
			b.metrics.RecordOrder(outcomeSkipped)
			return b.placeholderPages(o, progress), result
		}
		if out.FirstRequest == nil {
			out.FirstRequest = req
		}

		progress("Requesting label from Royal Mail for order %s...", o.Name)
		resp, err = b.carrier.CreateLabel(ctx, req)
		if err != nil {
			b.metrics.RecordCarrierError("create_shipment", "transport")
		}
	}

	if err != nil {
		progress("Error processing order %s: %v", o.Name, err)
		result.Message = fmt.Sprintf("Error - %v", err)
		b.metrics.RecordOrder(outcomeError)
		return b.placeholderPages(o, progress), result
	}

	return b.handleResponse(ctx, o, resp, &result, progress), result
}

// handleResponse turns a carrier response into label pages, records the
// tracking reference against the order and flattens structured errors
// into the outcome message.
func (b *Orchestrator) handleResponse(ctx context.Context, o *order.Order, resp *royalmail.ShipmentResponse, result *OrderResult, progress func(string, ...interface{})) [][]byte {
	if text := resp.ErrorText(); text != "" {
		progress("Royal Mail rejected order %s: %s", o.Name, text)
		result.Message = fmt.Sprintf("%s - Order %s", text, o.Name)
		b.metrics.RecordOrder(outcomeError)
	}

	if tracking := resp.TrackingReference(); tracking != "" {
		progress("Got shipment number %s for order %s", tracking, o.Name)
		result.ShipmentNumber = tracking
		result.Metafields = []shopify.MetafieldInput{
			{Namespace: shopify.OrderFieldNamespace, Key: shopify.TrackingNumberKey, Value: tracking},
			{Namespace: shopify.OrderFieldNamespace, Key: shopify.ShipmentNumberKey, Value: tracking},
		}
		if err := b.admin.UpdateOrderMetafields(ctx, o.ID, result.Metafields); err != nil {
			progress("Could not store tracking info on order %s: %v", o.Name, err)
		} else {
			progress("Stored tracking info on order %s", o.Name)
		}
		if result.Message == "" {
			result.Message = "Success - Shipment# " + tracking
			outcome := outcomeSuccess
			if o.HasTrackedShipment() && !b.cfg.TestMode {
				outcome = outcomeExisting
			}
			b.metrics.RecordOrder(outcome)
		}
	}

	var pages [][]byte
	if len(resp.Documents) > 0 {
		progress("Attaching customs documents for order %s", o.Name)
		pages = append(pages, resp.Documents)
	}
	if len(resp.Labels) > 0 {
		return append(pages, b.enrichLabel(ctx, o, resp.Labels, progress))
	}

	// Without a label the warehouse still needs a printable page for
	// this order, even when customs documents came back.
	if result.Message == "" {
		result.Message = "No label returned - Order " + o.Name
		b.metrics.RecordOrder(outcomeError)
	}
	return append(pages, b.placeholderPages(o, progress)...)
}

// enrichLabel stamps the brand logo, or the recycling mark for shipments
// to France, onto the carrier label. A failed stamp keeps the raw label:
// the label is already purchased and must still print.
func (b *Orchestrator) enrichLabel(ctx context.Context, o *order.Order, label []byte, progress func(string, ...interface{})) []byte {
	if b.cfg.TestMode {
		return label
	}

	var (
		stamped []byte
		err     error
	)
	if royalmail.NormalizeCountry(o.ShippingAddress.CountryCode) == "FR" {
		stamped, err = b.enricher.AddRecyclingMark(ctx, label)
	} else {
		stamped, err = b.enricher.AddLogo(ctx, label)
	}
	if err != nil {
		progress("Could not stamp label for order %s, using plain label: %v", o.Name, err)
		return label
	}
	return stamped
}

// offerInsert decides whether this order gets a discount insert and
// renders it. A batch that could not secure a discount code runs with
// no inserts at all. Marketplace orders get the fixed first-order code;
// storefront customers get the batch code once per cooldown window.
func (b *Orchestrator) offerInsert(ctx context.Context, o *order.Order, batchCode string, progress func(string, ...interface{})) ([]byte, bool) {
	if !b.cfg.OffersEnabled || batchCode == "" {
		return nil, false
	}

	if o.ShippingLine.Marketplace() {
		page, err := b.pages.ThankYouInsert(offers.MarketplaceCode, true)
		if err != nil {
			progress("Could not render marketplace insert for order %s: %v", o.Name, err)
			return nil, false
		}
		progress("Added first-order insert for marketplace order %s", o.Name)
		return page, true
	}

	if o.Customer == nil || o.Customer.ID == "" {
		return nil, false
	}
	if b.offers.HasReceivedOffer(ctx, o.Customer.ID) {
		progress("Customer on order %s already received an offer recently, skipping insert", o.Name)
		return nil, false
	}

	page, err := b.pages.ThankYouInsert(batchCode, false)
	if err != nil {
		progress("Could not render discount insert for order %s: %v", o.Name, err)
		return nil, false
	}
	if err := b.offers.RecordOfferSent(ctx, o.Customer.ID); err != nil {
		progress("Could not record offer for order %s: %v", o.Name, err)
	}
	progress("Added discount insert for order %s", o.Name)
	return page, true
}

// marketplaceDirect reports whether the order's marketplace already
// provides a shipping label, so no carrier request should be made.
// Amazon UK fulfils domestically; AMZSTD lines are marketplace-fulfilled
// everywhere.
func (b *Orchestrator) marketplaceDirect(o *order.Order) bool {
	if strings.Contains(o.ShippingLine.Code, "AMZSTD") {
		return true
	}
	return strings.Contains(o.ShippingLine.Code, "Amazon") &&
		o.ShippingAddress.CountryCode == royalmail.DomesticCountry
}

// pageNeeded reports whether the order needs the US import notice.
func (b *Orchestrator) pageNeeded(o *order.Order) bool {
	return o.ShippingAddress.CountryCode == "US" && o.HasRavensburgerProduct()
}

func (b *Orchestrator) placeholderPages(o *order.Order, progress func(string, ...interface{})) [][]byte {
	page, err := b.pages.FallbackLabel(o)
	if err != nil {
		progress("Could not render placeholder for order %s: %v", o.Name, err)
		return nil
	}
	return [][]byte{page}
}

// bareOrderID strips the platform's global ID prefix, leaving the
// numeric order ID.
func bareOrderID(id string) string {
	if idx := strings.LastIndex(id, "/"); idx >= 0 {
		return id[idx+1:]
	}
	return id
}
