package models

import (
	"time"
)

// TenantWorkflow tracks one multi-step publication process against the
// external agent. Its only state is this row; the step driver reloads it on
// every trigger, which is what makes the process resumable across restarts.
type TenantWorkflow struct {
	ID                string            `json:"id" db:"id"`
	TenantID          string            `json:"tenant_id" db:"tenant_id"`
	WorkflowType      WorkflowType      `json:"workflow_type" db:"workflow_type"`
	WorkflowState     WorkflowStateType `json:"workflow_state" db:"workflow_state"`
	WalletBearerToken *string           `json:"-" db:"wallet_bearer_token"` // cleared on terminal transition
	Version           int               `json:"version" db:"version"`       // optimistic concurrency guard
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at" db:"updated_at"`
}

// TenantWorkflowPatch carries the mutable workflow fields for an update.
type TenantWorkflowPatch struct {
	WorkflowState     WorkflowStateType
	WalletBearerToken *string
}
