package royalmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPAPIClient is the production implementation of APIClient using HTTP.
// Requests are authorized with a cached bearer token; a 401 triggers one
// token refresh and a single retry.
type HTTPAPIClient struct {
	baseURL    string
	tokens     *TokenSource
	httpClient *http.Client
}

// HTTPAPIClientConfig holds configuration for the HTTP client.
type HTTPAPIClientConfig struct {
	BaseURL string
	Tokens  *TokenSource
	Timeout time.Duration
}

// NewHTTPAPIClient creates a new HTTP-based API client for production use.
func NewHTTPAPIClient(cfg HTTPAPIClientConfig) *HTTPAPIClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAPIClient{
		baseURL: cfg.BaseURL,
		tokens:  cfg.Tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Authenticate performs the credential exchange if no valid token is
// cached.
func (c *HTTPAPIClient) Authenticate(ctx context.Context) error {
	_, err := c.tokens.Token(ctx)
	return err
}

// CreateShipment submits a shipment. POST /shipping
func (c *HTTPAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	resp, err := c.doRequest(ctx, "/shipping", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return c.parseShipmentResponse(resp)
}

// GetShipment retrieves an existing shipment's label. POST /shipping/label
func (c *HTTPAPIClient) GetShipment(ctx context.Context, shipmentNumber string) (*ShipmentResponse, error) {
	body := map[string]string{"ShipmentNumber": shipmentNumber}
	resp, err := c.doRequest(ctx, "/shipping/label", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return c.parseShipmentResponse(resp)
}

// GetManifests requests collection manifests. POST /manifests
func (c *HTTPAPIClient) GetManifests(ctx context.Context) (*ManifestResponse, error) {
	resp, err := c.doRequest(ctx, "/manifests", struct{}{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var result ManifestResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding manifest response: %w", err)
	}
	return &result, nil
}

func (c *HTTPAPIClient) parseShipmentResponse(resp *http.Response) (*ShipmentResponse, error) {
	// The carrier reports request-level problems as a structured Errors
	// payload, with or without a 2xx status. Surface those as the
	// response so callers record them per order instead of failing the
	// transport layer.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewCarrierError("READ_BODY", "reading response").WithCause(ErrTransport)
	}

	var result ShipmentResponse
	if jsonErr := json.Unmarshal(body, &result); jsonErr == nil {
		if resp.StatusCode < 300 || len(result.Errors) > 0 {
			return &result, nil
		}
	}

	return nil, c.parseErrorBody(resp.StatusCode, body)
}

// doRequest performs an authorized POST, refreshing the token once on 401.
func (c *HTTPAPIClient) doRequest(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	resp, err := c.doOnce(ctx, path, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	c.tokens.Invalidate()
	return c.doOnce(ctx, path, body)
}

func (c *HTTPAPIClient) doOnce(ctx context.Context, path string, body interface{}) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, NewCarrierError("TRANSPORT", err.Error()).WithCause(ErrTransport)
	}
	return resp, nil
}

// parseError extracts error information from an HTTP response.
func (c *HTTPAPIClient) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return c.parseErrorBody(resp.StatusCode, body)
}

func (c *HTTPAPIClient) parseErrorBody(status int, body []byte) error {
	var payload struct {
		Errors []ErrorDetail `json:"Errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Errors) > 0 {
		return NewCarrierError(fmt.Sprintf("HTTP_%d", status), payload.Errors[0].Message).
			WithStatusCode(status).
			WithCause(ErrRejected)
	}

	return NewCarrierError(fmt.Sprintf("HTTP_%d", status), string(body)).
		WithStatusCode(status).
		WithCause(ErrTransport)
}

// Ensure HTTPAPIClient implements APIClient interface
var _ APIClient = (*HTTPAPIClient)(nil)
