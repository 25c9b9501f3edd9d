package shopify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/puzzlegalore/dispatch/pkg/shopify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphQLCall struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

// newGraphQLServer records each call and answers with the canned data
// payload chosen by the route function.
func newGraphQLServer(t *testing.T, calls *[]graphQLCall, route func(call graphQLCall) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Shopify-Access-Token"))

		var call graphQLCall
		require.NoError(t, json.NewDecoder(r.Body).Decode(&call))
		*calls = append(*calls, call)

		json.NewEncoder(w).Encode(map[string]interface{}{"data": route(call)})
	}))
}

func newTestAdminAPI(srv *httptest.Server) *shopify.HTTPAdminAPI {
	return shopify.NewHTTPAdminAPI(shopify.HTTPAdminAPIConfig{
		Endpoint:    srv.URL,
		AccessToken: "test-token",
	})
}

func TestHTTPAdminAPI_GetCustomerOfferDate(t *testing.T) {
	var calls []graphQLCall
	srv := newGraphQLServer(t, &calls, func(call graphQLCall) interface{} {
		return map[string]interface{}{
			"customer": map[string]interface{}{
				"metafield": map[string]interface{}{"value": "2026-08-01"},
			},
		}
	})
	defer srv.Close()

	date, err := newTestAdminAPI(srv).GetCustomerOfferDate(context.Background(), "12345")

	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", date)
	require.Len(t, calls, 1)
	assert.Equal(t, "gid://shopify/Customer/12345", calls[0].Variables["customerId"])
}

func TestHTTPAdminAPI_GetCustomerOfferDate_NoMetafield(t *testing.T) {
	var calls []graphQLCall
	srv := newGraphQLServer(t, &calls, func(call graphQLCall) interface{} {
		return map[string]interface{}{
			"customer": map[string]interface{}{"metafield": nil},
		}
	})
	defer srv.Close()

	date, err := newTestAdminAPI(srv).GetCustomerOfferDate(context.Background(), "gid://shopify/Customer/12345")

	require.NoError(t, err)
	assert.Empty(t, date)
}

func TestHTTPAdminAPI_SetCustomerOfferDate(t *testing.T) {
	var calls []graphQLCall
	srv := newGraphQLServer(t, &calls, func(call graphQLCall) interface{} {
		return map[string]interface{}{
			"metafieldsSet": map[string]interface{}{"userErrors": []interface{}{}},
		}
	})
	defer srv.Close()

	err := newTestAdminAPI(srv).SetCustomerOfferDate(context.Background(), "12345", "2026-08-15")

	require.NoError(t, err)
	require.Len(t, calls, 1)
	metafield := calls[0].Variables["metafield"].(map[string]interface{})
	assert.Equal(t, "offers", metafield["namespace"])
	assert.Equal(t, "last_discount_date", metafield["key"])
	assert.Equal(t, "2026-08-15", metafield["value"])
	assert.Equal(t, "gid://shopify/Customer/12345", metafield["ownerId"])
}

func TestHTTPAdminAPI_SetCustomerOfferDate_UserError(t *testing.T) {
	var calls []graphQLCall
	srv := newGraphQLServer(t, &calls, func(call graphQLCall) interface{} {
		return map[string]interface{}{
			"metafieldsSet": map[string]interface{}{
				"userErrors": []map[string]interface{}{
					{"field": []string{"value"}, "message": "Value is invalid"},
				},
			},
		}
	})
	defer srv.Close()

	err := newTestAdminAPI(srv).SetCustomerOfferDate(context.Background(), "12345", "not-a-date")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Value is invalid")
}

func TestHTTPAdminAPI_FindDiscountCodes(t *testing.T) {
	var calls []graphQLCall
	srv := newGraphQLServer(t, &calls, func(call graphQLCall) interface{} {
		return map[string]interface{}{
			"discountNodes": map[string]interface{}{
				"pageInfo": map[string]interface{}{"hasNextPage": true, "endCursor": "cursor-2"},
				"edges": []map[string]interface{}{
					{
						"node": map[string]interface{}{
							"discount": map[string]interface{}{
								"title":  "30-Day New Customer Discount PZGOOD",
								"endsAt": "2026-09-30T00:00:00Z",
								"codes": map[string]interface{}{
									"edges": []map[string]interface{}{
										{"node": map[string]interface{}{"code": "PZGOOD"}},
									},
								},
								"customerGets": map[string]interface{}{
									"value": map[string]interface{}{"percentage": 0.1},
								},
							},
						},
					},
					// Discounts of other kinds come back as empty
					// fragments and are dropped.
					{"node": map[string]interface{}{"discount": map[string]interface{}{}}},
				},
			},
		}
	})
	defer srv.Close()

	page, err := newTestAdminAPI(srv).FindDiscountCodes(context.Background(), "")

	require.NoError(t, err)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "cursor-2", page.EndCursor)
	require.Len(t, page.Codes, 1)
	assert.Equal(t, "PZGOOD", page.Codes[0].Code)
	assert.Equal(t, 0.1, page.Codes[0].Percentage)
	require.NotNil(t, page.Codes[0].EndsAt)
	assert.Equal(t, time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC), page.Codes[0].EndsAt.UTC())
}

func TestHTTPAdminAPI_CreateDiscountCode(t *testing.T) {
	var calls []graphQLCall
	srv := newGraphQLServer(t, &calls, func(call graphQLCall) interface{} {
		return map[string]interface{}{
			"discountCodeBasicCreate": map[string]interface{}{
				"codeDiscountNode": map[string]interface{}{
					"codeDiscount": map[string]interface{}{
						"codes": map[string]interface{}{
							"edges": []map[string]interface{}{
								{"node": map[string]interface{}{"code": "PZ7K2M"}},
							},
						},
					},
				},
				"userErrors": []interface{}{},
			},
		}
	})
	defer srv.Close()

	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	code, err := newTestAdminAPI(srv).CreateDiscountCode(context.Background(), shopify.DiscountInput{
		Title:                  "30-Day New Customer Discount PZ7K2M",
		Code:                   "PZ7K2M",
		StartsAt:               now,
		EndsAt:                 now.Add(40 * 24 * time.Hour),
		Percentage:             0.1,
		AppliesOncePerCustomer: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "PZ7K2M", code)

	require.Len(t, calls, 1)
	input := calls[0].Variables["basicCodeDiscount"].(map[string]interface{})
	assert.Equal(t, "PZ7K2M", input["code"])
	assert.Equal(t, 0.1, input["customerGets"].(map[string]interface{})["value"].(map[string]interface{})["percentage"])
	assert.Equal(t, true, input["appliesOncePerCustomer"])
}

func TestHTTPAdminAPI_UpdateOrderMetafields(t *testing.T) {
	var calls []graphQLCall
	srv := newGraphQLServer(t, &calls, func(call graphQLCall) interface{} {
		return map[string]interface{}{
			"orderUpdate": map[string]interface{}{"userErrors": []interface{}{}},
		}
	})
	defer srv.Close()

	err := newTestAdminAPI(srv).UpdateOrderMetafields(context.Background(), "gid://shopify/Order/4242", []shopify.MetafieldInput{
		{Namespace: shopify.OrderFieldNamespace, Key: shopify.TrackingNumberKey, Value: "TT123456789GB"},
		{Namespace: shopify.OrderFieldNamespace, Key: shopify.ShipmentNumberKey, Value: "TT123456789GB"},
	})

	require.NoError(t, err)
	require.Len(t, calls, 1)
	input := calls[0].Variables["input"].(map[string]interface{})
	assert.Equal(t, "gid://shopify/Order/4242", input["id"])
	assert.Len(t, input["metafields"], 2)
}

func TestHTTPAdminAPI_GraphQLErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"errors": []map[string]interface{}{{"message": "Throttled"}},
		})
	}))
	defer srv.Close()

	_, err := newTestAdminAPI(srv).GetCustomerOfferDate(context.Background(), "12345")

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "Throttled"))
}

func TestHTTPAdminAPI_HTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestAdminAPI(srv).GetCustomerOfferDate(context.Background(), "12345")
	assert.Error(t, err)
}
