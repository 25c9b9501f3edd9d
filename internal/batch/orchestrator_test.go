package batch_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/puzzlegalore/dispatch/internal/batch"
	"github.com/puzzlegalore/dispatch/pkg/offers"
	"github.com/puzzlegalore/dispatch/pkg/order"
	"github.com/puzzlegalore/dispatch/pkg/pdf"
	"github.com/puzzlegalore/dispatch/pkg/royalmail"
	"github.com/puzzlegalore/dispatch/pkg/shopify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

const (
	testLogoURL      = "https://assets.test/logo.png"
	testRecyclingURL = "https://assets.test/tri.png"
	testBarcodeURL   = "https://assets.test/barcode.png"
)

var batchClock = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

type fixture struct {
	mockAPI   *royalmail.MockAPIClient
	mockAdmin *shopify.MockAdminAPI
	orch      *batch.Orchestrator
}

func newFixture(t *testing.T, cfg batch.Config) *fixture {
	t.Helper()
	logger := otelzap.New(zap.NewNop())

	mockAPI := royalmail.NewMockAPIClient()
	carrier := royalmail.NewWithAPIClient(royalmail.Config{
		ShippingAccountID: "Duncans Retail Ltd",
	}, mockAPI, logger, nil)

	builder := royalmail.NewBuilder(royalmail.BuilderConfig{
		ShippingAccountID: "Duncans Retail Ltd",
		TestMode:          cfg.TestMode,
		Now:               func() time.Time { return batchClock },
	})

	mockAdmin := shopify.NewMockAdminAPI()
	offerEngine := offers.NewEngine(mockAdmin, logger, offers.Config{
		Now:  func() time.Time { return batchClock },
		Rand: rand.New(rand.NewSource(7)),
	})

	assets := pdf.NewAssetCache(time.Second)
	img := testPNG(t)
	assets.Put(testLogoURL, img)
	assets.Put(testRecyclingURL, img)
	assets.Put(testBarcodeURL, img)

	pages := pdf.NewGenerator(pdf.GeneratorConfig{
		BarcodeURL: testBarcodeURL,
		Now:        func() time.Time { return batchClock },
	}, assets)
	enricher := pdf.NewEnricher(pdf.EnricherConfig{
		LogoURL:      testLogoURL,
		RecyclingURL: testRecyclingURL,
	}, assets)

	orch := batch.New(cfg, carrier, builder, mockAdmin, offerEngine, pages, enricher, logger, nil)
	return &fixture{mockAPI: mockAPI, mockAdmin: mockAdmin, orch: orch}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for x := 0; x < 24; x++ {
		for y := 0; y < 24; y++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pageCount(t *testing.T, doc []byte) int {
	t.Helper()
	count, err := api.PageCount(bytes.NewReader(doc), nil)
	require.NoError(t, err)
	return count
}

func testPDF(t *testing.T, text string) []byte {
	t.Helper()
	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 12)
	doc.Cell(40, 10, text)
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

func kg(w float64) *float64 { return &w }

func testOrder(n int) order.Order {
	return order.Order{
		ID:   fmt.Sprintf("gid://shopify/Order/%d", 4000+n),
		Name: fmt.Sprintf("#10%03d", n),
		ShippingAddress: order.Address{
			Name:        "Alice Smith",
			Line1:       "1 High Street",
			City:        "Leeds",
			CountryCode: "GB",
			PostalCode:  "LS1 1AA",
		},
		Customer:     &order.Customer{ID: fmt.Sprintf("gid://shopify/Customer/%d", 9000+n)},
		CurrencyCode: "GBP",
		TaxLines:     []order.TaxLine{{Rate: 0.2}},
		ShippingLine: order.ShippingLine{Code: "UK Tracked", Title: "Tracked 48"},
		CreatedAt:    batchClock.Add(-24 * time.Hour),
		LineItems: []order.LineItem{
			{
				SKU:                 "GIB-1000",
				Name:                "Country Cottage 1000pc",
				ProductTitle:        "Country Cottage 1000pc",
				Quantity:            1,
				UnfulfilledQuantity: 1,
				UnitWeightKG:        kg(0.9),
				OriginalTotal:       15.99,
				TotalInventory:      12,
				StockLocation:       "a4",
			},
		},
	}
}

func TestOrchestrator_Run_Success(t *testing.T) {
	f := newFixture(t, batch.Config{OffersEnabled: true})
	orders := []order.Order{testOrder(1), testOrder(2)}

	out, err := f.orch.Run(context.Background(), orders)

	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	for i, result := range out.Results {
		assert.True(t, strings.HasPrefix(result.Message, "Success - Shipment# "), "result %d: %s", i, result.Message)
		assert.NotEmpty(t, result.ShipmentNumber)
		require.Len(t, result.Metafields, 2)
		assert.Equal(t, "my_fields", result.Metafields[0].Namespace)
	}

	// Tracking info lands on the platform order records.
	assert.Len(t, f.mockAdmin.OrderMetafields("gid://shopify/Order/4001"), 2)
	assert.Len(t, f.mockAdmin.OrderMetafields("gid://shopify/Order/4002"), 2)

	// Two labels plus two discount inserts.
	assert.True(t, bytes.HasPrefix(out.Document, []byte("%PDF")))
	assert.Equal(t, 4, pageCount(t, out.Document))
	assert.True(t, strings.HasPrefix(out.DiscountCode, "PZ"))
	require.NotNil(t, out.FirstRequest)
	assert.Equal(t, "#10001", out.FirstRequest.Shipper.Reference1)

	// Both customers are now inside the cooldown window.
	assert.Equal(t, "2026-08-15", f.mockAdmin.OfferDate("gid://shopify/Customer/9001"))
	assert.Equal(t, "2026-08-15", f.mockAdmin.OfferDate("gid://shopify/Customer/9002"))
	assert.NotEmpty(t, out.Log)
}

func TestOrchestrator_Run_MarketplaceOrderSkipsCarrier(t *testing.T) {
	f := newFixture(t, batch.Config{OffersEnabled: true})

	var carrierCalls int64
	f.mockAPI.OnCreateShipment = func(ctx context.Context, req *royalmail.ShipmentRequest) (*royalmail.ShipmentResponse, error) {
		atomic.AddInt64(&carrierCalls, 1)
		return nil, nil
	}

	o := testOrder(1)
	o.ShippingAddress.CountryCode = "US"
	o.ShippingLine = order.ShippingLine{Code: "AMZSTD-US", Title: "Amazon Standard"}

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	assert.Equal(t, int64(0), atomic.LoadInt64(&carrierCalls))
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Marketplace order - no label requested", out.Results[0].Message)
	assert.Empty(t, out.Results[0].ShipmentNumber)

	// Pick sheet plus the fixed first-order insert.
	assert.Equal(t, 2, pageCount(t, out.Document))
	// The marketplace insert never burns the customer's storefront
	// offer eligibility.
	assert.Empty(t, f.mockAdmin.OfferDate("gid://shopify/Customer/9001"))
}

func TestOrchestrator_Run_CodeFailureSuppressesMarketplaceInsert(t *testing.T) {
	f := newFixture(t, batch.Config{OffersEnabled: true})
	f.mockAdmin.OnCreateDiscountCode = func(ctx context.Context, input shopify.DiscountInput) (string, error) {
		return "", fmt.Errorf("simulated discount API outage")
	}

	o := testOrder(1)
	o.ShippingAddress.CountryCode = "US"
	o.ShippingLine = order.ShippingLine{Code: "AMZSTD-US", Title: "Amazon Standard"}

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	assert.Empty(t, out.DiscountCode)
	// A batch without a working discount code prints no inserts, not
	// even the fixed marketplace one.
	assert.Equal(t, 1, pageCount(t, out.Document))
}

func TestOrchestrator_Run_AmazonDomesticSkipsCarrier(t *testing.T) {
	f := newFixture(t, batch.Config{})

	var carrierCalls int64
	f.mockAPI.OnCreateShipment = func(ctx context.Context, req *royalmail.ShipmentRequest) (*royalmail.ShipmentResponse, error) {
		atomic.AddInt64(&carrierCalls, 1)
		return nil, nil
	}

	o := testOrder(1)
	o.ShippingLine = order.ShippingLine{Code: "Amazon Shipping", Title: "Amazon"}

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	assert.Equal(t, int64(0), atomic.LoadInt64(&carrierCalls))
	assert.Equal(t, 1, pageCount(t, out.Document))
}

func TestOrchestrator_Run_AmazonInternationalStillShips(t *testing.T) {
	f := newFixture(t, batch.Config{})

	o := testOrder(1)
	o.ShippingAddress.CountryCode = "DE"
	o.ShippingLine = order.ShippingLine{Code: "Amazon Intl", Title: "Amazon"}

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.True(t, strings.HasPrefix(out.Results[0].Message, "Success - Shipment# "))
}

func TestOrchestrator_Run_TransportErrorIsolatedPerOrder(t *testing.T) {
	f := newFixture(t, batch.Config{})

	var calls int64
	f.mockAPI.OnCreateShipment = func(ctx context.Context, req *royalmail.ShipmentRequest) (*royalmail.ShipmentResponse, error) {
		if atomic.AddInt64(&calls, 1) == 1 {
			return nil, royalmail.NewCarrierError("TRANSPORT", "connection reset").WithCause(royalmail.ErrTransport)
		}
		return &royalmail.ShipmentResponse{
			Packages: []royalmail.ResponsePackage{{TrackingNumber: "TT123456789GB"}},
		}, nil
	}

	out, err := f.orch.Run(context.Background(), []order.Order{testOrder(1), testOrder(2)})

	require.NoError(t, err)
	require.Len(t, out.Results, 2)
	assert.True(t, strings.HasPrefix(out.Results[0].Message, "Error - "))
	assert.Equal(t, "Success - Shipment# TT123456789GB", out.Results[1].Message)

	// The failed order still contributes its placeholder page.
	assert.Equal(t, 2, pageCount(t, out.Document))
}

func TestOrchestrator_Run_StructuredRejectionRecorded(t *testing.T) {
	f := newFixture(t, batch.Config{})

	f.mockAPI.OnCreateShipment = func(ctx context.Context, req *royalmail.ShipmentRequest) (*royalmail.ShipmentResponse, error) {
		return &royalmail.ShipmentResponse{
			Errors: []royalmail.ErrorDetail{{Code: "E1084", Message: "Postcode is invalid"}},
		}, nil
	}

	out, err := f.orch.Run(context.Background(), []order.Order{testOrder(1)})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Postcode is invalid - Order #10001", out.Results[0].Message)
	assert.Equal(t, 1, pageCount(t, out.Document))
}

func TestOrchestrator_Run_DocumentsOnlyResponseKeepsPickSheet(t *testing.T) {
	f := newFixture(t, batch.Config{})

	f.mockAPI.OnCreateShipment = func(ctx context.Context, req *royalmail.ShipmentRequest) (*royalmail.ShipmentResponse, error) {
		return &royalmail.ShipmentResponse{
			Packages:  []royalmail.ResponsePackage{{TrackingNumber: "TT123456789GB"}},
			Documents: testPDF(t, "CN22"),
		}, nil
	}

	out, err := f.orch.Run(context.Background(), []order.Order{testOrder(1)})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "Success - Shipment# TT123456789GB", out.Results[0].Message)

	// Customs documents alone don't give the warehouse anything to pick
	// from; the pick sheet prints alongside them.
	assert.Equal(t, 2, pageCount(t, out.Document))
}

func TestOrchestrator_Run_AuthFailureAbortsBatch(t *testing.T) {
	f := newFixture(t, batch.Config{})
	f.mockAPI.OnAuthenticate = func(ctx context.Context) error {
		return royalmail.ErrAuthFailed
	}

	_, err := f.orch.Run(context.Background(), []order.Order{testOrder(1)})

	require.Error(t, err)
	assert.ErrorIs(t, err, royalmail.ErrAuthFailed)
}

func TestOrchestrator_Run_ExistingShipmentNotRepurchased(t *testing.T) {
	f := newFixture(t, batch.Config{})

	var createCalls, getCalls int64
	f.mockAPI.OnCreateShipment = func(ctx context.Context, req *royalmail.ShipmentRequest) (*royalmail.ShipmentResponse, error) {
		atomic.AddInt64(&createCalls, 1)
		return nil, nil
	}
	f.mockAPI.OnGetShipment = func(ctx context.Context, shipmentNumber string) (*royalmail.ShipmentResponse, error) {
		atomic.AddInt64(&getCalls, 1)
		assert.Equal(t, "TT987654321GB", shipmentNumber)
		return &royalmail.ShipmentResponse{
			Packages: []royalmail.ResponsePackage{{TrackingNumber: shipmentNumber}},
		}, nil
	}

	o := testOrder(1)
	o.ShipmentNumber = "TT987654321GB"

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	assert.Equal(t, int64(0), atomic.LoadInt64(&createCalls))
	assert.Equal(t, int64(1), atomic.LoadInt64(&getCalls))
	assert.Equal(t, "Success - Shipment# TT987654321GB", out.Results[0].Message)
}

func TestOrchestrator_Run_StandardUKGetsPickSheet(t *testing.T) {
	f := newFixture(t, batch.Config{})

	o := testOrder(1)
	o.ShippingLine = order.ShippingLine{Code: "Std UK Delivery", Title: "Standard"}

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "No data submitted", out.Results[0].Message)
	assert.Equal(t, 1, pageCount(t, out.Document))
	assert.Nil(t, out.FirstRequest)
}

func TestOrchestrator_Run_OfferCooldownWithinBatch(t *testing.T) {
	f := newFixture(t, batch.Config{OffersEnabled: true})

	first := testOrder(1)
	second := testOrder(2)
	second.Customer = &order.Customer{ID: first.Customer.ID}

	out, err := f.orch.Run(context.Background(), []order.Order{first, second})

	require.NoError(t, err)
	// Two labels but only the first order carries an insert; the
	// repeat customer is inside the cooldown window by then.
	assert.Equal(t, 3, pageCount(t, out.Document))
}

func TestOrchestrator_Run_SeededCooldownSuppressesInsert(t *testing.T) {
	f := newFixture(t, batch.Config{OffersEnabled: true})
	f.mockAdmin.SeedOfferDate("gid://shopify/Customer/9001", batchClock.Add(-10*24*time.Hour))

	out, err := f.orch.Run(context.Background(), []order.Order{testOrder(1)})

	require.NoError(t, err)
	assert.Equal(t, 1, pageCount(t, out.Document))
	assert.Equal(t, "2026-08-05", f.mockAdmin.OfferDate("gid://shopify/Customer/9001"))
}

func TestOrchestrator_Run_RavensburgerNoticeForUS(t *testing.T) {
	f := newFixture(t, batch.Config{})

	o := testOrder(1)
	o.ShippingAddress.CountryCode = "US"
	o.LineItems[0].SKU = "RAV-16684"
	o.LineItems[0].Vendor = "Ravensburger"

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	assert.Equal(t, 2, pageCount(t, out.Document))
}

func TestOrchestrator_Run_NoNoticeForDomesticRavensburger(t *testing.T) {
	f := newFixture(t, batch.Config{})

	o := testOrder(1)
	o.LineItems[0].Vendor = "Ravensburger"

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	assert.Equal(t, 1, pageCount(t, out.Document))
}

func TestOrchestrator_Run_FranceShipment(t *testing.T) {
	f := newFixture(t, batch.Config{})

	o := testOrder(1)
	o.ShippingAddress.CountryCode = "FR"

	out, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.True(t, strings.HasPrefix(out.Results[0].Message, "Success - Shipment# "))
	assert.Equal(t, 1, pageCount(t, out.Document))
}

func TestOrchestrator_Run_CancelledContext(t *testing.T) {
	f := newFixture(t, batch.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.orch.Run(ctx, []order.Order{testOrder(1)})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOrchestrator_Run_MetafieldWriteFailureDoesNotFailOrder(t *testing.T) {
	f := newFixture(t, batch.Config{})
	f.mockAdmin.OnUpdateOrderMetafields = func(ctx context.Context, orderID string, metafields []shopify.MetafieldInput) error {
		return fmt.Errorf("simulated write failure")
	}

	out, err := f.orch.Run(context.Background(), []order.Order{testOrder(1)})

	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	assert.True(t, strings.HasPrefix(out.Results[0].Message, "Success - Shipment# "))
}

func TestOrchestrator_Run_TestModeForcesFreshLabel(t *testing.T) {
	f := newFixture(t, batch.Config{TestMode: true})

	var createCalls int64
	f.mockAPI.OnCreateShipment = func(ctx context.Context, req *royalmail.ShipmentRequest) (*royalmail.ShipmentResponse, error) {
		atomic.AddInt64(&createCalls, 1)
		return &royalmail.ShipmentResponse{
			Packages: []royalmail.ResponsePackage{{TrackingNumber: "TT123456789GB"}},
		}, nil
	}

	o := testOrder(1)
	o.ShipmentNumber = "TT987654321GB"

	_, err := f.orch.Run(context.Background(), []order.Order{o})

	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&createCalls))
}
