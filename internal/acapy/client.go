// Package acapy is a thin facade over the external credential agent's admin
// API. Only the two publication endpoints the workflow driver needs are
// covered; everything else the agent does is out of scope here.
package acapy

import "context"

// SchemaSendRequest asks the agent to publish a schema.
type SchemaSendRequest struct {
	SchemaName    string   `json:"schema_name"`
	SchemaVersion string   `json:"schema_version"`
	Attributes    []string `json:"attributes"`
}

// CredentialDefinitionSendRequest asks the agent to publish a credential
// definition for an existing schema.
type CredentialDefinitionSendRequest struct {
	SchemaID string `json:"schema_id"`
	Tag      string `json:"tag"`
}

// TxnResponse is the agent's answer to a publication request: either the
// write went straight through (Sent) or it is pending endorsement and will be
// acknowledged later under TransactionID.
type TxnResponse struct {
	Sent          bool
	TransactionID string
}

// Client is the interface the workflow driver uses to reach the agent.
// Failures propagate; retry policy, if any, belongs to the caller.
type Client interface {
	// PostSchema submits a schema creation request on behalf of the wallet
	// identified by token.
	PostSchema(ctx context.Context, token string, req SchemaSendRequest) (*TxnResponse, error)
	// PostCredentialDefinition submits a credential definition creation
	// request on behalf of the wallet identified by token.
	PostCredentialDefinition(ctx context.Context, token string, req CredentialDefinitionSendRequest) (*TxnResponse, error)
}
