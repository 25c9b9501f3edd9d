// Package royalmail provides integration with the Royal Mail shipping
// API: shipment creation, label retrieval and collection manifests,
// plus the request builder that turns an order into a carrier payload.
package royalmail

import (
	"context"
)

// APIClient defines the interface for Royal Mail API operations.
// This abstraction allows for mock implementations during testing
// and real implementations in production.
type APIClient interface {
	// Authenticate ensures a usable bearer credential exists. Called
	// once before a batch so an auth failure halts the run up front.
	Authenticate(ctx context.Context) error

	// CreateShipment submits a new shipment and returns labels on success
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)

	// GetShipment retrieves an existing shipment's label by reference,
	// avoiding a duplicate label purchase
	GetShipment(ctx context.Context, shipmentNumber string) (*ShipmentResponse, error)

	// GetManifests requests collection manifest documents
	GetManifests(ctx context.Context) (*ManifestResponse, error)
}

// ============================================================================
// API Request/Response Types (match the Royal Mail Pro Shipping V4 shapes)
// ============================================================================

// Shipper identifies the shipping account and order references.
type Shipper struct {
	Reference1        string `json:"Reference1"` // customer order number
	Reference2        string `json:"Reference2"` // joined SKUs
	ShippingAccountID string `json:"ShippingAccountId"`
	VatNumber         string `json:"VatNumber"`
}

// DestinationAddress is the recipient address block.
type DestinationAddress struct {
	CompanyName  string `json:"CompanyName,omitempty"`
	ContactName  string `json:"ContactName"`
	ContactEmail string `json:"ContactEmail,omitempty"`
	Line1        string `json:"Line1"`
	Line2        string `json:"Line2,omitempty"`
	Line3        string `json:"Line3,omitempty"`
	Town         string `json:"Town"`
	County       string `json:"County,omitempty"`
	CountryCode  string `json:"CountryCode"`
	Postcode     string `json:"Postcode"`
}

// Destination wraps the recipient address.
type Destination struct {
	Address DestinationAddress `json:"Address"`
}

// ShipmentInformation carries shipment-level metadata.
type ShipmentInformation struct {
	ShipmentDate        string `json:"ShipmentDate"` // YYYY-MM-DD
	ServiceCode         string `json:"ServiceCode"`
	DeclaredWeight      string `json:"DeclaredWeight"` // kg, 2dp
	WeightUnitOfMeasure string `json:"WeightUnitOfMeasure"`
	ContentType         string `json:"ContentType"`
	DescriptionOfGoods  string `json:"DescriptionOfGoods"`
	CurrencyCode        string `json:"CurrencyCode"`
	LabelFormat         string `json:"LabelFormat"`
}

// Package is a single physical package within the shipment.
type Package struct {
	PackageOccurrence int    `json:"PackageOccurrence"`
	DeclaredWeight    string `json:"DeclaredWeight"`
	PackageType       string `json:"PackageType"` // Parcel | LargeLetter
	DeclaredValue     string `json:"DeclaredValue,omitempty"`
}

// Item is a customs declaration line.
type Item struct {
	Quantity          int    `json:"Quantity"`
	Description       string `json:"Description"`
	Value             string `json:"Value"`  // unit value, 2dp
	Weight            string `json:"Weight"` // unit weight kg, 3dp
	PackageOccurrence int    `json:"PackageOccurrence"`
	HsCode            string `json:"HsCode"`
	SkuCode           string `json:"SkuCode"`
	CountryOfOrigin   string `json:"CountryOfOrigin"`
}

// Customs carries the customs declaration block.
type Customs struct {
	PreRegistrationNumber string  `json:"PreRegistrationNumber"`
	PreRegistrationType   string  `json:"PreRegistrationType"`
	ShippingCharges       float64 `json:"ShippingCharges"`
	OtherCharges          float64 `json:"OtherCharges"`
	QuotedLandedCost      float64 `json:"QuotedLandedCost"`
	InvoiceNumber         string  `json:"InvoiceNumber"`
	InvoiceDate           string  `json:"InvoiceDate"`
	ReasonForExport       string  `json:"ReasonForExport"`
	Incoterms             string  `json:"Incoterms"`
}

// ServiceEnhancement is a carrier add-on such as email tracking
// notifications.
type ServiceEnhancement struct {
	Code string `json:"Code"`
}

// CarrierSpecifics holds Royal-Mail-specific request extensions.
type CarrierSpecifics struct {
	ServiceEnhancements []ServiceEnhancement `json:"ServiceEnhancements"`
}

// ShipmentRequest is the create-shipment payload.
type ShipmentRequest struct {
	Shipper             Shipper             `json:"Shipper"`
	Destination         Destination         `json:"Destination"`
	ShipmentInformation ShipmentInformation `json:"ShipmentInformation"`
	Packages            []Package           `json:"Packages"`
	Items               []Item              `json:"Items"`
	Customs             Customs             `json:"Customs"`
	CarrierSpecifics    *CarrierSpecifics   `json:"CarrierSpecifics,omitempty"`
}

// CarrierDetails carries the carrier-assigned identifiers for a package.
type CarrierDetails struct {
	UniqueID string `json:"UniqueId"`
}

// ResponsePackage is one package entry in a shipment response.
type ResponsePackage struct {
	TrackingNumber string          `json:"TrackingNumber,omitempty"`
	CarrierDetails *CarrierDetails `json:"CarrierDetails,omitempty"`
}

// ErrorDetail is one structured error entry from the carrier.
type ErrorDetail struct {
	Code    string `json:"Code,omitempty"`
	Message string `json:"Message"`
	Cause   string `json:"Cause,omitempty"`
}

// ShipmentResponse is the create/get shipment response. Labels and
// Documents are base64-encoded PDFs on the wire; encoding/json decodes
// them into raw bytes.
type ShipmentResponse struct {
	Packages  []ResponsePackage `json:"Packages,omitempty"`
	Labels    []byte            `json:"Labels,omitempty"`
	Documents []byte            `json:"Documents,omitempty"`
	Errors    []ErrorDetail     `json:"Errors,omitempty"`
}

// TrackingReference returns the shipment's tracking number, preferring
// the explicit tracking field over the carrier-assigned unique ID.
func (r *ShipmentResponse) TrackingReference() string {
	if len(r.Packages) == 0 {
		return ""
	}
	pkg := r.Packages[0]
	if pkg.TrackingNumber != "" {
		return pkg.TrackingNumber
	}
	if pkg.CarrierDetails != nil {
		return pkg.CarrierDetails.UniqueID
	}
	return ""
}

// ErrorText flattens the structured error payload into one message.
func (r *ShipmentResponse) ErrorText() string {
	if len(r.Errors) == 0 {
		return ""
	}
	text := r.Errors[0].Message
	for _, e := range r.Errors[1:] {
		text += "; " + e.Message
	}
	return text
}

// Manifest is one collection manifest document.
type Manifest struct {
	ManifestImage []byte `json:"ManifestImage"` // base64 PDF on the wire
}

// ManifestResponse is the manifests response.
type ManifestResponse struct {
	Data []Manifest `json:"data"`
}
