package repository

import (
	"context"
	"errors"

	"tenant-broker/backend/pkg/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a conditional update loses an optimistic
// concurrency race (the row version no longer matches).
var ErrConflict = errors.New("update conflict")

// Repository is the persistence collaborator for the broker. All mutation of
// workflow and artifact state goes through here; request handlers never touch
// these rows directly.
type Repository interface {
	// CreateTenant stores a new tenant.
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	// GetTenant retrieves a tenant by its ID.
	GetTenant(ctx context.Context, id string) (*models.Tenant, error)
	// GetTenantByAPIKey retrieves a tenant by its API key.
	GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error)

	// CreateWorkflow stores a new workflow instance.
	CreateWorkflow(ctx context.Context, workflow *models.TenantWorkflow) error
	// GetWorkflow retrieves a workflow instance by its ID.
	GetWorkflow(ctx context.Context, id string) (*models.TenantWorkflow, error)
	// UpdateWorkflow applies the patch iff the stored version still equals
	// version, bumping the version; returns ErrConflict on a lost race.
	UpdateWorkflow(ctx context.Context, id string, version int, patch models.TenantWorkflowPatch) (*models.TenantWorkflow, error)
	// ListWorkflowsByState lists workflow instances in the given state.
	ListWorkflowsByState(ctx context.Context, state models.WorkflowStateType) ([]*models.TenantWorkflow, error)

	// CreateTenantSchema stores a new schema publication artifact.
	CreateTenantSchema(ctx context.Context, schema *models.TenantSchema) error
	// GetSchemaByWorkflowID retrieves the artifact owned by a workflow.
	GetSchemaByWorkflowID(ctx context.Context, workflowID string) (*models.TenantSchema, error)
	// GetSchemaByTransactionID retrieves the artifact whose schema or cred
	// def transaction id equals txnID.
	GetSchemaByTransactionID(ctx context.Context, txnID string) (*models.TenantSchema, error)
	// UpdateTenantSchema applies the non-nil patch fields to the artifact.
	UpdateTenantSchema(ctx context.Context, id string, patch models.TenantSchemaPatch) (*models.TenantSchema, error)

	// CreateContact stores a new contact.
	CreateContact(ctx context.Context, contact *models.Contact) error
	// GetContactByConnectionID retrieves a tenant's contact by connection id.
	GetContactByConnectionID(ctx context.Context, tenantID, connectionID string) (*models.Contact, error)
	// UpdateContactAlias sets the alias fields of a contact by connection id.
	UpdateContactAlias(ctx context.Context, tenantID, connectionID, alias string) error

	// CreateInvitation stores a connection invitation.
	CreateInvitation(ctx context.Context, invitation *models.ConnectionInvitation) error
	// GetInvitationByKey retrieves a tenant's invitation by invitation key.
	GetInvitationByKey(ctx context.Context, tenantID, invitationKey string) (*models.ConnectionInvitation, error)

	// CreateFlow stores a new tenant flow record.
	CreateFlow(ctx context.Context, flow *models.TenantFlow) error
	// GetFlowByType retrieves a tenant's flow record of the given type.
	GetFlowByType(ctx context.Context, tenantID string, flowType models.WorkflowType) (*models.TenantFlow, error)
	// UpdateFlow applies the patch to the flow record.
	UpdateFlow(ctx context.Context, id string, patch models.TenantFlowPatch) (*models.TenantFlow, error)
	// ResetFlow returns a flow record to the pending status and state for a
	// new run, clearing the previous run's completed value and error detail.
	ResetFlow(ctx context.Context, id string) (*models.TenantFlow, error)
	// ListFlows lists a tenant's flow records.
	ListFlows(ctx context.Context, tenantID string) ([]*models.TenantFlow, error)
	// ListTimeline lists the audit timeline for a flow record, oldest first.
	ListTimeline(ctx context.Context, itemID string) ([]*models.TimelineEntry, error)
}

// Store is a Repository that can also scope work to a transaction. InTx runs
// fn against a transactional Repository view and commits only if fn returns
// nil; any other exit path rolls back, so a failed workflow step persists
// nothing.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(Repository) error) error
}
