package models

import (
	"time"
)

// TenantSchema is the publication artifact owned by an issuer_schema
// workflow. It carries two independent sub-state machines: schema publication
// and credential-definition publication. The cred def may only start once the
// schema is completed and its ledger id is known.
type TenantSchema struct {
	ID            string            `json:"id" db:"id"`
	TenantID      string            `json:"tenant_id" db:"tenant_id"`
	WorkflowID    string            `json:"workflow_id" db:"workflow_id"`
	SchemaName    string            `json:"schema_name" db:"schema_name"`
	SchemaVersion string            `json:"schema_version" db:"schema_version"`
	SchemaAttrs   []string          `json:"schema_attrs" db:"schema_attrs"`
	CredDefTag    string            `json:"cred_def_tag" db:"cred_def_tag"`
	SchemaState   WorkflowStateType `json:"schema_state" db:"schema_state"`
	CredDefState  WorkflowStateType `json:"cred_def_state" db:"cred_def_state"`

	// Transaction ids issued by the agent for pending async operations.
	// Nil until the corresponding request has been sent.
	SchemaTxnID  *string `json:"schema_txn_id,omitempty" db:"schema_txn_id"`
	CredDefTxnID *string `json:"cred_def_txn_id,omitempty" db:"cred_def_txn_id"`

	// Ledger identifiers, populated only on completion.
	SchemaID  *string `json:"schema_id,omitempty" db:"schema_id"`
	CredDefID *string `json:"cred_def_id,omitempty" db:"cred_def_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// TenantSchemaPatch carries the mutable artifact fields for an update. Nil
// pointer fields are left untouched by the store.
type TenantSchemaPatch struct {
	SchemaState  *WorkflowStateType
	CredDefState *WorkflowStateType
	SchemaTxnID  *string
	CredDefTxnID *string
	SchemaID     *string
	CredDefID    *string
}
