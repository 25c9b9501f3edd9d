package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPAdminAPI is the production implementation of AdminAPI, speaking
// GraphQL over HTTP to the platform's admin endpoint.
type HTTPAdminAPI struct {
	endpoint    string
	accessToken string
	httpClient  *http.Client
}

// HTTPAdminAPIConfig holds configuration for the HTTP client.
type HTTPAdminAPIConfig struct {
	Endpoint    string
	AccessToken string
	Timeout     time.Duration
}

// NewHTTPAdminAPI creates a new HTTP-based admin client.
func NewHTTPAdminAPI(cfg HTTPAdminAPIConfig) *HTTPAdminAPI {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdminAPI{
		endpoint:    cfg.Endpoint,
		accessToken: cfg.AccessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

const customerOfferDateQuery = `
query getCustomer($customerId: ID!) {
  customer(id: $customerId) {
    metafield(namespace: "offers", key: "last_discount_date") {
      value
    }
  }
}`

// GetCustomerOfferDate reads the customer's offers/last_discount_date
// metafield.
func (c *HTTPAdminAPI) GetCustomerOfferDate(ctx context.Context, customerID string) (string, error) {
	vars := map[string]interface{}{"customerId": customerGID(customerID)}

	var data struct {
		Customer *struct {
			Metafield *struct {
				Value string `json:"value"`
			} `json:"metafield"`
		} `json:"customer"`
	}
	if err := c.execute(ctx, customerOfferDateQuery, vars, &data); err != nil {
		return "", err
	}
	if data.Customer == nil {
		return "", fmt.Errorf("customer %s not found", customerID)
	}
	if data.Customer.Metafield == nil {
		return "", nil
	}
	return data.Customer.Metafield.Value, nil
}

const metafieldsSetMutation = `
mutation CreateMetafield($metafield: MetafieldsSetInput!) {
  metafieldsSet(metafields: [$metafield]) {
    metafields { id key namespace value }
    userErrors { field message }
  }
}`

// SetCustomerOfferDate writes the last-discount date to the customer.
func (c *HTTPAdminAPI) SetCustomerOfferDate(ctx context.Context, customerID, date string) error {
	vars := map[string]interface{}{
		"metafield": map[string]interface{}{
			"namespace": OfferNamespace,
			"key":       LastDiscountDateKey,
			"ownerId":   customerGID(customerID),
			"type":      "single_line_text_field",
			"value":     date,
		},
	}

	var data struct {
		MetafieldsSet struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"metafieldsSet"`
	}
	if err := c.execute(ctx, metafieldsSetMutation, vars, &data); err != nil {
		return err
	}
	if len(data.MetafieldsSet.UserErrors) > 0 {
		return fmt.Errorf("metafield write rejected: %s", data.MetafieldsSet.UserErrors[0].Message)
	}
	return nil
}

const discountSearchQuery = `
query findDiscounts($cursor: String) {
  discountNodes(first: 50, after: $cursor, query: "status:active type:percentage method:code") {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        discount {
          ... on DiscountCodeBasic {
            title
            endsAt
            codes(first: 1) { edges { node { code } } }
            customerGets { value { ... on DiscountPercentage { percentage } } }
          }
        }
      }
    }
  }
}`

// FindDiscountCodes returns one page of active percentage code discounts.
func (c *HTTPAdminAPI) FindDiscountCodes(ctx context.Context, cursor string) (*DiscountPage, error) {
	vars := map[string]interface{}{}
	if cursor != "" {
		vars["cursor"] = cursor
	}

	var data struct {
		DiscountNodes struct {
			PageInfo struct {
				HasNextPage bool   `json:"hasNextPage"`
				EndCursor   string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node struct {
					Discount struct {
						Title  string  `json:"title"`
						EndsAt *string `json:"endsAt"`
						Codes  struct {
							Edges []struct {
								Node struct {
									Code string `json:"code"`
								} `json:"node"`
							} `json:"edges"`
						} `json:"codes"`
						CustomerGets struct {
							Value struct {
								Percentage float64 `json:"percentage"`
							} `json:"value"`
						} `json:"customerGets"`
					} `json:"discount"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"discountNodes"`
	}
	if err := c.execute(ctx, discountSearchQuery, vars, &data); err != nil {
		return nil, err
	}

	page := &DiscountPage{
		HasNextPage: data.DiscountNodes.PageInfo.HasNextPage,
		EndCursor:   data.DiscountNodes.PageInfo.EndCursor,
	}
	for _, edge := range data.DiscountNodes.Edges {
		d := edge.Node.Discount
		if len(d.Codes.Edges) == 0 {
			continue
		}
		code := DiscountCode{
			Code:       d.Codes.Edges[0].Node.Code,
			Title:      d.Title,
			Percentage: d.CustomerGets.Value.Percentage,
		}
		if d.EndsAt != nil {
			if t, err := time.Parse(time.RFC3339, *d.EndsAt); err == nil {
				code.EndsAt = &t
			}
		}
		page.Codes = append(page.Codes, code)
	}
	return page, nil
}

const discountCreateMutation = `
mutation discountCodeBasicCreate($basicCodeDiscount: DiscountCodeBasicInput!) {
  discountCodeBasicCreate(basicCodeDiscount: $basicCodeDiscount) {
    codeDiscountNode {
      codeDiscount {
        ... on DiscountCodeBasic {
          codes(first: 1) { edges { node { code } } }
        }
      }
    }
    userErrors { field message }
  }
}`

// CreateDiscountCode creates a basic percentage code discount.
func (c *HTTPAdminAPI) CreateDiscountCode(ctx context.Context, input DiscountInput) (string, error) {
	vars := map[string]interface{}{
		"basicCodeDiscount": map[string]interface{}{
			"title":             input.Title,
			"code":              input.Code,
			"startsAt":          input.StartsAt.Format(time.RFC3339),
			"endsAt":            input.EndsAt.Format(time.RFC3339),
			"customerSelection": map[string]interface{}{"all": true},
			"customerGets": map[string]interface{}{
				"value": map[string]interface{}{"percentage": input.Percentage},
				"items": map[string]interface{}{"all": true},
			},
			"appliesOncePerCustomer": input.AppliesOncePerCustomer,
			"combinesWith": map[string]interface{}{
				"orderDiscounts":    false,
				"productDiscounts":  false,
				"shippingDiscounts": false,
			},
		},
	}

	var data struct {
		DiscountCodeBasicCreate struct {
			CodeDiscountNode *struct {
				CodeDiscount struct {
					Codes struct {
						Edges []struct {
							Node struct {
								Code string `json:"code"`
							} `json:"node"`
						} `json:"edges"`
					} `json:"codes"`
				} `json:"codeDiscount"`
			} `json:"codeDiscountNode"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"discountCodeBasicCreate"`
	}
	if err := c.execute(ctx, discountCreateMutation, vars, &data); err != nil {
		return "", err
	}
	if errs := data.DiscountCodeBasicCreate.UserErrors; len(errs) > 0 {
		return "", fmt.Errorf("discount creation rejected: %s", errs[0].Message)
	}
	node := data.DiscountCodeBasicCreate.CodeDiscountNode
	if node == nil || len(node.CodeDiscount.Codes.Edges) == 0 {
		return "", fmt.Errorf("created discount code not found in response")
	}
	return node.CodeDiscount.Codes.Edges[0].Node.Code, nil
}

const orderUpdateMutation = `
mutation updateOrder($input: OrderInput!) {
  orderUpdate(input: $input) {
    userErrors { field message }
  }
}`

// UpdateOrderMetafields applies metafield writes to an order.
func (c *HTTPAdminAPI) UpdateOrderMetafields(ctx context.Context, orderID string, metafields []MetafieldInput) error {
	vars := map[string]interface{}{
		"input": map[string]interface{}{
			"id":         orderID,
			"metafields": metafields,
		},
	}

	var data struct {
		OrderUpdate struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"orderUpdate"`
	}
	if err := c.execute(ctx, orderUpdateMutation, vars, &data); err != nil {
		return err
	}
	if len(data.OrderUpdate.UserErrors) > 0 {
		return fmt.Errorf("order update rejected: %s", data.OrderUpdate.UserErrors[0].Message)
	}
	return nil
}

type graphQLRequest struct {
	Query     string      `json:"query"`
	Variables interface{} `json:"variables,omitempty"`
}

type graphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors,omitempty"`
}

// execute POSTs a GraphQL document and decodes its data payload.
func (c *HTTPAdminAPI) execute(ctx context.Context, query string, variables, out interface{}) error {
	payload, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshalling graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("commerce API unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("commerce API returned %d", resp.StatusCode)
	}

	var envelope graphQLEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("graphql error: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decoding graphql data: %w", err)
		}
	}
	return nil
}

// customerGID expands a bare numeric customer ID to the platform's
// global ID form.
func customerGID(id string) string {
	if len(id) >= 6 && id[:6] == "gid://" {
		return id
	}
	return "gid://shopify/Customer/" + id
}

var _ AdminAPI = (*HTTPAdminAPI)(nil)
