// Package order defines the immutable order model consumed by the
// label-generation pipeline. Orders arrive pre-fetched from the commerce
// platform's bulk export; this package only models and interrogates them.
package order

import (
	"strings"
	"time"
)

// SplitShippingAttribute is the custom attribute key a customer sets at
// checkout to ship in-stock items ahead of pre-orders.
const SplitShippingAttribute = "split_preorder_shipping"

// Address is the shipping destination of an order.
type Address struct {
	Company      string `json:"company,omitempty"`
	Name         string `json:"name"`
	Line1        string `json:"address1"`
	Line2        string `json:"address2,omitempty"`
	City         string `json:"city"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	CountryCode  string `json:"countryCode"` // ISO 3166-1 alpha-2
	PostalCode   string `json:"zip"`
	Phone        string `json:"phone,omitempty"`
}

// Customer is the order's customer reference.
type Customer struct {
	ID         string `json:"id"`
	Email      string `json:"email,omitempty"`
	OrderCount int    `json:"numberOfOrders,omitempty"`
}

// ShippingLine is the textual shipping method chosen at checkout.
type ShippingLine struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Marketplace reports whether the shipping line came from a marketplace
// channel rather than the storefront.
func (s ShippingLine) Marketplace() bool {
	return strings.Contains(s.Code, "AMZSTD") || strings.Contains(s.Code, "Amazon")
}

// TaxLine carries a single tax rate applied to the order.
type TaxLine struct {
	Rate float64 `json:"rate"`
}

// Attribute is a key/value custom attribute attached to the order.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LineItem is a single order line.
type LineItem struct {
	SKU                 string   `json:"sku"`
	Name                string   `json:"name"`
	ProductTitle        string   `json:"productTitle,omitempty"`
	Vendor              string   `json:"vendor,omitempty"`
	Quantity            int      `json:"quantity"`
	UnfulfilledQuantity int      `json:"unfulfilledQuantity"`
	UnitWeightKG        *float64 `json:"unitWeightKg,omitempty"` // nil means unknown
	OriginalTotal       float64  `json:"originalTotal"`          // presentment currency
	HSCode              string   `json:"hsCode,omitempty"`
	CountryOfOrigin     string   `json:"countryOfOrigin,omitempty"`
	PreOrder            bool     `json:"preOrder,omitempty"`
	TotalInventory      int      `json:"totalInventory"`
	LargeLetter         bool     `json:"largeLetter,omitempty"`
	StockLocation       string   `json:"stockLocation,omitempty"`
}

// Order is one order record as consumed by a batch run.
type Order struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	ShippingAddress Address      `json:"shippingAddress"`
	Customer        *Customer    `json:"customer,omitempty"`
	LineItems       []LineItem   `json:"lineItems"`
	CurrencyCode    string       `json:"currencyCode"`
	TaxLines        []TaxLine    `json:"taxLines,omitempty"`
	ShippingLine    ShippingLine `json:"shippingLine"`
	TotalShipping   float64      `json:"totalShipping"`
	Attributes      []Attribute  `json:"customAttributes,omitempty"`
	ShipmentNumber  string       `json:"shipmentNumber,omitempty"` // previously stored carrier reference
	CreatedAt       time.Time    `json:"createdAt"`
}

// TaxFactor returns the multiplier that converts a gross presentment
// amount into its net-of-tax value. Orders without tax lines are
// already net.
func (o *Order) TaxFactor() float64 {
	if len(o.TaxLines) > 0 && o.TaxLines[0].Rate != 0 {
		return 1 - o.TaxLines[0].Rate
	}
	return 1
}

// SplitShipping reports whether the customer asked for in-stock items to
// ship ahead of pre-orders.
func (o *Order) SplitShipping() bool {
	for _, attr := range o.Attributes {
		if attr.Key == SplitShippingAttribute {
			return attr.Value == "true"
		}
	}
	return false
}

// HasTrackedShipment reports whether a non-zero carrier shipment
// reference has already been stored against the order.
func (o *Order) HasTrackedShipment() bool {
	return o.ShipmentNumber != "" && o.ShipmentNumber != "0"
}

// HasRavensburgerProduct reports whether any line item is a Ravensburger
// product, matched on vendor, title or SKU.
func (o *Order) HasRavensburgerProduct() bool {
	for _, item := range o.LineItems {
		if strings.Contains(strings.ToLower(item.Vendor), "ravensburger") ||
			strings.Contains(strings.ToLower(item.ProductTitle), "ravensburger") ||
			strings.Contains(strings.ToLower(item.SKU), "rav") {
			return true
		}
	}
	return false
}
