package shopify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockAdminAPI is an in-memory implementation of AdminAPI for testing.
type MockAdminAPI struct {
	SimulateErrors bool

	OnGetCustomerOfferDate  func(ctx context.Context, customerID string) (string, error)
	OnSetCustomerOfferDate  func(ctx context.Context, customerID, date string) error
	OnFindDiscountCodes     func(ctx context.Context, cursor string) (*DiscountPage, error)
	OnCreateDiscountCode    func(ctx context.Context, input DiscountInput) (string, error)
	OnUpdateOrderMetafields func(ctx context.Context, orderID string, metafields []MetafieldInput) error

	mu              sync.Mutex
	offerDates      map[string]string
	createdCodes    []DiscountInput
	orderMetafields map[string][]MetafieldInput
}

// NewMockAdminAPI creates a new mock admin client with empty state.
func NewMockAdminAPI() *MockAdminAPI {
	return &MockAdminAPI{
		offerDates:      make(map[string]string),
		orderMetafields: make(map[string][]MetafieldInput),
	}
}

// GetCustomerOfferDate returns the recorded offer date, if any.
func (m *MockAdminAPI) GetCustomerOfferDate(ctx context.Context, customerID string) (string, error) {
	if m.SimulateErrors {
		return "", fmt.Errorf("simulated commerce API error")
	}
	if m.OnGetCustomerOfferDate != nil {
		return m.OnGetCustomerOfferDate(ctx, customerID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offerDates[customerID], nil
}

// SetCustomerOfferDate records an offer date in memory.
func (m *MockAdminAPI) SetCustomerOfferDate(ctx context.Context, customerID, date string) error {
	if m.SimulateErrors {
		return fmt.Errorf("simulated commerce API error")
	}
	if m.OnSetCustomerOfferDate != nil {
		return m.OnSetCustomerOfferDate(ctx, customerID, date)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offerDates[customerID] = date
	return nil
}

// FindDiscountCodes returns an empty page by default.
func (m *MockAdminAPI) FindDiscountCodes(ctx context.Context, cursor string) (*DiscountPage, error) {
	if m.SimulateErrors {
		return nil, fmt.Errorf("simulated commerce API error")
	}
	if m.OnFindDiscountCodes != nil {
		return m.OnFindDiscountCodes(ctx, cursor)
	}
	return &DiscountPage{}, nil
}

// CreateDiscountCode records the input and echoes the code back.
func (m *MockAdminAPI) CreateDiscountCode(ctx context.Context, input DiscountInput) (string, error) {
	if m.SimulateErrors {
		return "", fmt.Errorf("simulated commerce API error")
	}
	if m.OnCreateDiscountCode != nil {
		return m.OnCreateDiscountCode(ctx, input)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createdCodes = append(m.createdCodes, input)
	return input.Code, nil
}

// UpdateOrderMetafields records the write in memory.
func (m *MockAdminAPI) UpdateOrderMetafields(ctx context.Context, orderID string, metafields []MetafieldInput) error {
	if m.SimulateErrors {
		return fmt.Errorf("simulated commerce API error")
	}
	if m.OnUpdateOrderMetafields != nil {
		return m.OnUpdateOrderMetafields(ctx, orderID, metafields)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderMetafields[orderID] = metafields
	return nil
}

// CreatedCodes returns the discounts created through the mock.
func (m *MockAdminAPI) CreatedCodes() []DiscountInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]DiscountInput(nil), m.createdCodes...)
}

// OrderMetafields returns the metafields recorded for an order.
func (m *MockAdminAPI) OrderMetafields(orderID string) []MetafieldInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderMetafields[orderID]
}

// OfferDate returns the stored offer date for a customer.
func (m *MockAdminAPI) OfferDate(customerID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offerDates[customerID]
}

// SeedOfferDate pre-populates a customer's offer date.
func (m *MockAdminAPI) SeedOfferDate(customerID string, date time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offerDates[customerID] = date.Format("2006-01-02")
}

var _ AdminAPI = (*MockAdminAPI)(nil)
