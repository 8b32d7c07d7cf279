package acapy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_PostSchema(t *testing.T) {
	var gotPath, gotAuth, gotAPIKey string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"txn": {"transaction_id": "txn-1"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "admin-key")
	resp, err := c.PostSchema(context.Background(), "wallet-token", SchemaSendRequest{
		SchemaName:    "person",
		SchemaVersion: "1.0",
		Attributes:    []string{"name", "birthdate"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/schemas", gotPath)
	assert.Equal(t, "Bearer wallet-token", gotAuth)
	assert.Equal(t, "admin-key", gotAPIKey)
	assert.Equal(t, "person", gotBody["schema_name"])
	assert.Equal(t, "1.0", gotBody["schema_version"])
	assert.Equal(t, []any{"name", "birthdate"}, gotBody["attributes"])

	assert.False(t, resp.Sent)
	assert.Equal(t, "txn-1", resp.TransactionID)
}

func TestHTTPClient_PostCredentialDefinition(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"txn": {"transaction_id": "txn-2"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	resp, err := c.PostCredentialDefinition(context.Background(), "wallet-token", CredentialDefinitionSendRequest{
		SchemaID: "S1",
		Tag:      "default",
	})
	require.NoError(t, err)

	assert.Equal(t, "/credential-definitions", gotPath)
	assert.Equal(t, "S1", gotBody["schema_id"])
	assert.Equal(t, "default", gotBody["tag"])
	assert.Equal(t, "txn-2", resp.TransactionID)
}

func TestHTTPClient_DirectWriteResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"sent": {"schema_id": "S1"}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	resp, err := c.PostSchema(context.Background(), "wallet-token", SchemaSendRequest{})
	require.NoError(t, err)

	assert.True(t, resp.Sent)
	assert.Equal(t, "", resp.TransactionID)
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "")
	_, err := c.PostSchema(context.Background(), "bad-token", SchemaSendRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
