// Package shopify provides the commerce platform admin client used for
// offer bookkeeping, discount code management and order metafield
// mutations. GraphQL documents are treated as opaque strings; responses
// are only inspected for data and user-error lists.
package shopify

import (
	"context"
	"time"
)

// Metafield namespaces and keys written by the batch pipeline.
const (
	OrderFieldNamespace = "my_fields"
	TrackingNumberKey   = "royal_mail_tracking_number"
	ShipmentNumberKey   = "royal_mail_shipment_number"
	OfferNamespace      = "offers"
	LastDiscountDateKey = "last_discount_date"
)

// AdminAPI defines the commerce platform operations the pipeline needs.
// This abstraction allows for mock implementations during testing and a
// real GraphQL-over-HTTP implementation in production.
type AdminAPI interface {
	// GetCustomerOfferDate returns the customer's stored last-discount
	// date, or the zero string when none is recorded.
	GetCustomerOfferDate(ctx context.Context, customerID string) (string, error)

	// SetCustomerOfferDate records the last-discount date on the
	// customer's record.
	SetCustomerOfferDate(ctx context.Context, customerID, date string) error

	// FindDiscountCodes pages through active percentage discount codes.
	FindDiscountCodes(ctx context.Context, cursor string) (*DiscountPage, error)

	// CreateDiscountCode creates a basic code discount and returns the
	// code as the platform stored it.
	CreateDiscountCode(ctx context.Context, input DiscountInput) (string, error)

	// UpdateOrderMetafields applies metafield writes to an order.
	UpdateOrderMetafields(ctx context.Context, orderID string, metafields []MetafieldInput) error
}

// DiscountCode is one existing code discount.
type DiscountCode struct {
	Code       string
	Title      string
	Percentage float64    // 0.1 == 10%
	EndsAt     *time.Time // nil means no expiry
}

// DiscountPage is one page of discount search results.
type DiscountPage struct {
	Codes       []DiscountCode
	HasNextPage bool
	EndCursor   string
}

// DiscountInput describes a new basic code discount.
type DiscountInput struct {
	Title                  string
	Code                   string
	StartsAt               time.Time
	EndsAt                 time.Time
	Percentage             float64
	AppliesOncePerCustomer bool
}

// MetafieldInput is a single metafield write.
type MetafieldInput struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// UserError is a validation error returned inside a mutation payload.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}
