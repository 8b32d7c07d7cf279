package acapy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// HTTPClient is an HTTP implementation of the Client interface talking to an
// agent admin endpoint.
type HTTPClient struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPClient creates a new HTTPClient for the agent admin URL. The apiKey,
// when non-empty, is sent as the admin x-api-key header on every request.
func NewHTTPClient(url, apiKey string) *HTTPClient {
	return &HTTPClient{url: url, apiKey: apiKey, client: http.DefaultClient}
}

// PostSchema submits a schema creation request.
func (c *HTTPClient) PostSchema(ctx context.Context, token string, req SchemaSendRequest) (*TxnResponse, error) {
	return c.post(ctx, token, "/schemas", req)
}

// PostCredentialDefinition submits a credential definition creation request.
func (c *HTTPClient) PostCredentialDefinition(ctx context.Context, token string, req CredentialDefinitionSendRequest) (*TxnResponse, error) {
	return c.post(ctx, token, "/credential-definitions", req)
}

// sendResponse mirrors the agent's wire shape: exactly one of sent or txn is
// populated.
type sendResponse struct {
	Sent json.RawMessage `json:"sent,omitempty"`
	Txn  *struct {
		TransactionID string `json:"transaction_id"`
	} `json:"txn,omitempty"`
}

func (c *HTTPClient) post(ctx context.Context, token, path string, body any) (*TxnResponse, error) {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url+path, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	// The wallet bearer token scopes the call to the tenant's sub-wallet.
	(&oauth2.Token{AccessToken: token}).SetAuthHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent rejected %s: status code %d", path, resp.StatusCode)
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	result := &TxnResponse{Sent: decoded.Sent != nil}
	if decoded.Txn != nil {
		result.TransactionID = decoded.Txn.TransactionID
	}
	return result, nil
}
