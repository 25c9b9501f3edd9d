package royalmail

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnAuthenticate   func(ctx context.Context) error
	OnCreateShipment func(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)
	OnGetShipment    func(ctx context.Context, shipmentNumber string) (*ShipmentResponse, error)
	OnGetManifests   func(ctx context.Context) (*ManifestResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

// Authenticate succeeds unless error simulation is on.
func (m *MockAPIClient) Authenticate(ctx context.Context) error {
	if m.SimulateErrors {
		return ErrAuthFailed
	}
	if m.OnAuthenticate != nil {
		return m.OnAuthenticate(ctx)
	}
	return nil
}

// CreateShipment creates a mock shipment with a generated tracking number
// and a one-page label document.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, NewCarrierError("MOCK_ERROR", "Simulated API error").WithCause(ErrTransport)
	}

	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	trackingNumber := fmt.Sprintf("TT%09dGB", 100000000+time.Now().UnixNano()%900000000)

	return &ShipmentResponse{
		Packages: []ResponsePackage{
			{
				TrackingNumber: trackingNumber,
				CarrierDetails: &CarrierDetails{UniqueID: "rm-" + uuid.New().String()[:8]},
			},
		},
		Labels: mockLabelPDF(trackingNumber),
	}, nil
}

// GetShipment retrieves a mock shipment for an existing reference.
func (m *MockAPIClient) GetShipment(ctx context.Context, shipmentNumber string) (*ShipmentResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, NewCarrierError("MOCK_ERROR", "Simulated API error").WithCause(ErrTransport)
	}

	if m.OnGetShipment != nil {
		return m.OnGetShipment(ctx, shipmentNumber)
	}

	return &ShipmentResponse{
		Packages: []ResponsePackage{
			{TrackingNumber: shipmentNumber},
		},
		Labels: mockLabelPDF(shipmentNumber),
	}, nil
}

// GetManifests returns a single mock manifest page.
func (m *MockAPIClient) GetManifests(ctx context.Context) (*ManifestResponse, error) {
	if m.SimulateLatency > 0 {
		time.Sleep(m.SimulateLatency)
	}

	if m.SimulateErrors {
		return nil, NewCarrierError("MOCK_ERROR", "Simulated API error").WithCause(ErrTransport)
	}

	if m.OnGetManifests != nil {
		return m.OnGetManifests(ctx)
	}

	return &ManifestResponse{
		Data: []Manifest{
			{ManifestImage: mockLabelPDF("MANIFEST " + time.Now().Format("2006-01-02"))},
		},
	}, nil
}

// mockLabelPDF renders a minimal one-page label so merge and enrichment
// paths exercise real PDF bytes in tests.
func mockLabelPDF(text string) []byte {
	doc := fpdf.NewCustom(&fpdf.InitType{
		UnitStr: "pt",
		Size:    fpdf.SizeType{Wd: 288, Ht: 432},
	})
	doc.AddPage()
	doc.SetFont("Helvetica", "B", 14)
	doc.Text(20, 40, "ROYAL MAIL")
	doc.SetFont("Helvetica", "", 11)
	doc.Text(20, 70, text)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}

var _ APIClient = (*MockAPIClient)(nil)
