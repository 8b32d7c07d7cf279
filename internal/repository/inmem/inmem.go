// Package inmem is an in-memory implementation of the repository Store. It
// backs unit tests that exercise the workflow driver and protocol processors
// without a database, and mirrors the postgres behavior that matters to
// them: copy-on-read rows, version CAS on workflow updates, transaction
// rollback, and the flow timeline trigger.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/pkg/models"
)

// Store is an in-memory Store.
type Store struct {
	mu sync.Mutex

	tenants     map[string]*models.Tenant
	workflows   map[string]*models.TenantWorkflow
	schemas     map[string]*models.TenantSchema
	contacts    map[string]*models.Contact
	invitations map[string]*models.ConnectionInvitation
	flows       map[string]*models.TenantFlow
	timeline    map[string][]*models.TimelineEntry

	// TxnLookups counts GetSchemaByTransactionID calls.
	TxnLookups int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tenants:     make(map[string]*models.Tenant),
		workflows:   make(map[string]*models.TenantWorkflow),
		schemas:     make(map[string]*models.TenantSchema),
		contacts:    make(map[string]*models.Contact),
		invitations: make(map[string]*models.ConnectionInvitation),
		flows:       make(map[string]*models.TenantFlow),
		timeline:    make(map[string][]*models.TimelineEntry),
	}
}

// InTx runs fn and restores the previous contents when fn fails, emulating a
// rolled-back transaction.
func (s *Store) InTx(ctx context.Context, fn func(repository.Repository) error) error {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.restoreLocked(snapshot)
		s.mu.Unlock()
		return err
	}
	return nil
}

type snapshot struct {
	tenants     map[string]*models.Tenant
	workflows   map[string]*models.TenantWorkflow
	schemas     map[string]*models.TenantSchema
	contacts    map[string]*models.Contact
	invitations map[string]*models.ConnectionInvitation
	flows       map[string]*models.TenantFlow
	timeline    map[string][]*models.TimelineEntry
}

func (s *Store) snapshotLocked() snapshot {
	snap := snapshot{
		tenants:     make(map[string]*models.Tenant, len(s.tenants)),
		workflows:   make(map[string]*models.TenantWorkflow, len(s.workflows)),
		schemas:     make(map[string]*models.TenantSchema, len(s.schemas)),
		contacts:    make(map[string]*models.Contact, len(s.contacts)),
		invitations: make(map[string]*models.ConnectionInvitation, len(s.invitations)),
		flows:       make(map[string]*models.TenantFlow, len(s.flows)),
		timeline:    make(map[string][]*models.TimelineEntry, len(s.timeline)),
	}
	for k, v := range s.tenants {
		snap.tenants[k] = cloneTenant(v)
	}
	for k, v := range s.workflows {
		snap.workflows[k] = cloneWorkflow(v)
	}
	for k, v := range s.schemas {
		snap.schemas[k] = cloneSchema(v)
	}
	for k, v := range s.contacts {
		snap.contacts[k] = cloneContact(v)
	}
	for k, v := range s.invitations {
		snap.invitations[k] = cloneInvitation(v)
	}
	for k, v := range s.flows {
		snap.flows[k] = cloneFlow(v)
	}
	for k, v := range s.timeline {
		entries := make([]*models.TimelineEntry, len(v))
		copy(entries, v)
		snap.timeline[k] = entries
	}
	return snap
}

func (s *Store) restoreLocked(snap snapshot) {
	s.tenants = snap.tenants
	s.workflows = snap.workflows
	s.schemas = snap.schemas
	s.contacts = snap.contacts
	s.invitations = snap.invitations
	s.flows = snap.flows
	s.timeline = snap.timeline
}

// CreateTenant stores a new tenant.
func (s *Store) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenant.ID] = cloneTenant(tenant)
	return nil
}

// GetTenant retrieves a tenant by its ID.
func (s *Store) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tenants[id]; ok {
		return cloneTenant(t), nil
	}
	return nil, repository.ErrNotFound
}

// GetTenantByAPIKey retrieves a tenant by its API key.
func (s *Store) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.APIKey == apiKey {
			return cloneTenant(t), nil
		}
	}
	return nil, repository.ErrNotFound
}

// CreateWorkflow stores a new workflow instance.
func (s *Store) CreateWorkflow(ctx context.Context, workflow *models.TenantWorkflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	workflow.Version = 1
	s.workflows[workflow.ID] = cloneWorkflow(workflow)
	return nil
}

// GetWorkflow retrieves a workflow instance by its ID.
func (s *Store) GetWorkflow(ctx context.Context, id string) (*models.TenantWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.workflows[id]; ok {
		return cloneWorkflow(w), nil
	}
	return nil, repository.ErrNotFound
}

// UpdateWorkflow applies the patch iff the stored version still matches.
func (s *Store) UpdateWorkflow(ctx context.Context, id string, version int, patch models.TenantWorkflowPatch) (*models.TenantWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if w.Version != version {
		return nil, repository.ErrConflict
	}
	w.WorkflowState = patch.WorkflowState
	w.WalletBearerToken = cloneString(patch.WalletBearerToken)
	w.Version++
	w.UpdatedAt = time.Now()
	return cloneWorkflow(w), nil
}

// ListWorkflowsByState lists workflow instances in the given state.
func (s *Store) ListWorkflowsByState(ctx context.Context, state models.WorkflowStateType) ([]*models.TenantWorkflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.TenantWorkflow
	for _, w := range s.workflows {
		if w.WorkflowState == state {
			result = append(result, cloneWorkflow(w))
		}
	}
	return result, nil
}

// CreateTenantSchema stores a new schema publication artifact. A duplicate
// (tenant, schema name, schema version) returns ErrConflict.
func (s *Store) CreateTenantSchema(ctx context.Context, schema *models.TenantSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.schemas {
		if sc.TenantID == schema.TenantID &&
			sc.SchemaName == schema.SchemaName &&
			sc.SchemaVersion == schema.SchemaVersion {
			return repository.ErrConflict
		}
	}
	s.schemas[schema.ID] = cloneSchema(schema)
	return nil
}

// GetSchemaByWorkflowID retrieves the artifact owned by a workflow.
func (s *Store) GetSchemaByWorkflowID(ctx context.Context, workflowID string) (*models.TenantSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range s.schemas {
		if sc.WorkflowID == workflowID {
			return cloneSchema(sc), nil
		}
	}
	return nil, repository.ErrNotFound
}

// GetSchemaByTransactionID retrieves the artifact holding the transaction id.
func (s *Store) GetSchemaByTransactionID(ctx context.Context, txnID string) (*models.TenantSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TxnLookups++
	for _, sc := range s.schemas {
		if (sc.SchemaTxnID != nil && *sc.SchemaTxnID == txnID) ||
			(sc.CredDefTxnID != nil && *sc.CredDefTxnID == txnID) {
			return cloneSchema(sc), nil
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateTenantSchema applies the non-nil patch fields to the artifact.
func (s *Store) UpdateTenantSchema(ctx context.Context, id string, patch models.TenantSchemaPatch) (*models.TenantSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schemas[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.SchemaState != nil {
		sc.SchemaState = *patch.SchemaState
	}
	if patch.CredDefState != nil {
		sc.CredDefState = *patch.CredDefState
	}
	if patch.SchemaTxnID != nil {
		sc.SchemaTxnID = cloneString(patch.SchemaTxnID)
	}
	if patch.CredDefTxnID != nil {
		sc.CredDefTxnID = cloneString(patch.CredDefTxnID)
	}
	if patch.SchemaID != nil {
		sc.SchemaID = cloneString(patch.SchemaID)
	}
	if patch.CredDefID != nil {
		sc.CredDefID = cloneString(patch.CredDefID)
	}
	sc.UpdatedAt = time.Now()
	return cloneSchema(sc), nil
}

// CreateContact stores a new contact.
func (s *Store) CreateContact(ctx context.Context, contact *models.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[contact.ID] = cloneContact(contact)
	return nil
}

// GetContactByConnectionID retrieves a tenant's contact by connection id.
func (s *Store) GetContactByConnectionID(ctx context.Context, tenantID, connectionID string) (*models.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.TenantID == tenantID && c.ConnectionID == connectionID {
			return cloneContact(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateContactAlias sets the alias fields of a contact by connection id.
func (s *Store) UpdateContactAlias(ctx context.Context, tenantID, connectionID, alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.TenantID == tenantID && c.ConnectionID == connectionID {
			c.Alias = alias
			c.ConnectionAlias = alias
			c.UpdatedAt = time.Now()
			return nil
		}
	}
	return repository.ErrNotFound
}

// CreateInvitation stores a connection invitation.
func (s *Store) CreateInvitation(ctx context.Context, invitation *models.ConnectionInvitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invitations[invitation.ID] = cloneInvitation(invitation)
	return nil
}

// GetInvitationByKey retrieves a tenant's invitation by invitation key.
func (s *Store) GetInvitationByKey(ctx context.Context, tenantID, invitationKey string) (*models.ConnectionInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.TenantID == tenantID && inv.InvitationKey == invitationKey {
			return cloneInvitation(inv), nil
		}
	}
	return nil, repository.ErrNotFound
}

// CreateFlow stores a new tenant flow record and appends the first timeline
// row, as the database trigger does on insert.
func (s *Store) CreateFlow(ctx context.Context, flow *models.TenantFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.ID] = cloneFlow(flow)
	s.appendTimelineLocked(flow)
	return nil
}

// GetFlowByType retrieves a tenant's flow record of the given type.
func (s *Store) GetFlowByType(ctx context.Context, tenantID string, flowType models.WorkflowType) (*models.TenantFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.flows {
		if f.TenantID == tenantID && f.FlowType == flowType {
			return cloneFlow(f), nil
		}
	}
	return nil, repository.ErrNotFound
}

// UpdateFlow applies the patch and appends a timeline row iff status or
// state actually changed, mirroring the trigger's DISTINCT FROM check.
func (s *Store) UpdateFlow(ctx context.Context, id string, patch models.TenantFlowPatch) (*models.TenantFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	changed := f.Status != patch.Status || f.State != patch.State
	f.Status = patch.Status
	f.State = patch.State
	if patch.CompletedValue != nil {
		f.CompletedValue = cloneString(patch.CompletedValue)
	}
	if patch.ErrorStatusDetail != nil {
		f.ErrorStatusDetail = cloneString(patch.ErrorStatusDetail)
	}
	f.UpdatedAt = time.Now()
	if changed {
		s.appendTimelineLocked(f)
	}
	return cloneFlow(f), nil
}

// ResetFlow returns a flow record to pending for a new run, clearing the
// previous run's completed value and error detail.
func (s *Store) ResetFlow(ctx context.Context, id string) (*models.TenantFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	changed := f.Status != models.FlowStatusPending || f.State != models.WorkflowStatePending
	f.Status = models.FlowStatusPending
	f.State = models.WorkflowStatePending
	f.CompletedValue = nil
	f.ErrorStatusDetail = nil
	f.UpdatedAt = time.Now()
	if changed {
		s.appendTimelineLocked(f)
	}
	return cloneFlow(f), nil
}

// ListFlows lists a tenant's flow records.
func (s *Store) ListFlows(ctx context.Context, tenantID string) ([]*models.TenantFlow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*models.TenantFlow
	for _, f := range s.flows {
		if f.TenantID == tenantID {
			result = append(result, cloneFlow(f))
		}
	}
	return result, nil
}

// ListTimeline lists the audit timeline for a flow record, oldest first.
func (s *Store) ListTimeline(ctx context.Context, itemID string) ([]*models.TimelineEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]*models.TimelineEntry, len(s.timeline[itemID]))
	copy(entries, s.timeline[itemID])
	return entries, nil
}

func (s *Store) appendTimelineLocked(f *models.TenantFlow) {
	s.timeline[f.ID] = append(s.timeline[f.ID], &models.TimelineEntry{
		ID:                uuid.New().String(),
		ItemID:            f.ID,
		Status:            f.Status,
		State:             f.State,
		ErrorStatusDetail: cloneString(f.ErrorStatusDetail),
		CreatedAt:         time.Now(),
	})
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTenant(t *models.Tenant) *models.Tenant {
	c := *t
	return &c
}

func cloneWorkflow(w *models.TenantWorkflow) *models.TenantWorkflow {
	c := *w
	c.WalletBearerToken = cloneString(w.WalletBearerToken)
	return &c
}

func cloneSchema(sc *models.TenantSchema) *models.TenantSchema {
	c := *sc
	c.SchemaAttrs = append([]string(nil), sc.SchemaAttrs...)
	c.SchemaTxnID = cloneString(sc.SchemaTxnID)
	c.CredDefTxnID = cloneString(sc.CredDefTxnID)
	c.SchemaID = cloneString(sc.SchemaID)
	c.CredDefID = cloneString(sc.CredDefID)
	return &c
}

func cloneContact(ct *models.Contact) *models.Contact {
	c := *ct
	c.Tags = append([]string(nil), ct.Tags...)
	return &c
}

func cloneInvitation(inv *models.ConnectionInvitation) *models.ConnectionInvitation {
	c := *inv
	c.Tags = append([]string(nil), inv.Tags...)
	return &c
}

func cloneFlow(f *models.TenantFlow) *models.TenantFlow {
	c := *f
	c.CompletedValue = cloneString(f.CompletedValue)
	c.ErrorStatusDetail = cloneString(f.ErrorStatusDetail)
	return &c
}
