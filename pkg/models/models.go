// Package models defines the domain models for the tenant broker service
package models

// WorkflowStateType represents the lifecycle state of a tenant workflow or of
// one of its publication artifacts
type WorkflowStateType string

const (
	WorkflowStatePending    WorkflowStateType = "pending"
	WorkflowStateInProgress WorkflowStateType = "in_progress"
	WorkflowStateCompleted  WorkflowStateType = "completed"
	WorkflowStateError      WorkflowStateType = "error"
)

// Terminal reports whether the state is one a workflow never leaves
func (s WorkflowStateType) Terminal() bool {
	return s == WorkflowStateCompleted || s == WorkflowStateError
}

// WorkflowType identifies the purpose of a workflow instance
type WorkflowType string

const (
	// WorkflowTypeIssuerSchema publishes a schema and credential definition
	// to the ledger on behalf of a tenant issuer
	WorkflowTypeIssuerSchema WorkflowType = "issuer_schema"
)

// FlowStatusType represents the operator-visible status of a tenant flow
type FlowStatusType string

const (
	FlowStatusPending   FlowStatusType = "pending"
	FlowStatusActive    FlowStatusType = "active"
	FlowStatusCompleted FlowStatusType = "completed"
	FlowStatusError     FlowStatusType = "error"
)

// ConnectionStateType represents the protocol state of a peer connection
type ConnectionStateType string

const (
	ConnectionStateRequest  ConnectionStateType = "request"
	ConnectionStateResponse ConnectionStateType = "response"
	ConnectionStateActive   ConnectionStateType = "active"
)

// ConnectionRoleType represents our role in a peer connection
type ConnectionRoleType string

const (
	ConnectionRoleInviter ConnectionRoleType = "inviter"
	ConnectionRoleInvitee ConnectionRoleType = "invitee"
)

// ContactStatusType represents the status of a tenant contact
type ContactStatusType string

const (
	ContactStatusPending ContactStatusType = "pending"
	ContactStatusActive  ContactStatusType = "active"
)
