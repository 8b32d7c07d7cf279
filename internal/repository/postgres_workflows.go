package repository

import (
	"context"

	"tenant-broker/backend/pkg/models"
)

const workflowColumns = `id, tenant_id, workflow_type, workflow_state, wallet_bearer_token, version, created_at, updated_at`

// CreateWorkflow stores a new workflow instance in the pending state.
func (s *PostgresStore) CreateWorkflow(ctx context.Context, workflow *models.TenantWorkflow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant_workflow (id, tenant_id, workflow_type, workflow_state, wallet_bearer_token, version)
		 VALUES ($1, $2, $3, $4, $5, 1)`,
		workflow.ID, workflow.TenantID, workflow.WorkflowType, workflow.WorkflowState, workflow.WalletBearerToken)
	if err != nil {
		return err
	}
	workflow.Version = 1
	return nil
}

// GetWorkflow retrieves a workflow instance by its ID.
func (s *PostgresStore) GetWorkflow(ctx context.Context, id string) (*models.TenantWorkflow, error) {
	var w models.TenantWorkflow
	err := s.db.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM tenant_workflow WHERE id = $1`, id).Scan(
		&w.ID, &w.TenantID, &w.WorkflowType, &w.WorkflowState, &w.WalletBearerToken,
		&w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &w, nil
}

// UpdateWorkflow is a compare-and-swap update: the patch is applied only when
// the stored version still equals version. A lost race returns ErrConflict so
// two near-simultaneous triggers cannot both advance the same instance.
func (s *PostgresStore) UpdateWorkflow(ctx context.Context, id string, version int, patch models.TenantWorkflowPatch) (*models.TenantWorkflow, error) {
	var w models.TenantWorkflow
	err := s.db.QueryRow(ctx,
		`UPDATE tenant_workflow
		 SET workflow_state = $3, wallet_bearer_token = $4, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $2
		 RETURNING `+workflowColumns,
		id, version, patch.WorkflowState, patch.WalletBearerToken).Scan(
		&w.ID, &w.TenantID, &w.WorkflowType, &w.WorkflowState, &w.WalletBearerToken,
		&w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		// Distinguish "row gone" from "version moved on".
		if mapErr(err) == ErrNotFound {
			if _, getErr := s.GetWorkflow(ctx, id); getErr == nil {
				return nil, ErrConflict
			}
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// ListWorkflowsByState lists workflow instances in the given state.
func (s *PostgresStore) ListWorkflowsByState(ctx context.Context, state models.WorkflowStateType) ([]*models.TenantWorkflow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+workflowColumns+` FROM tenant_workflow WHERE workflow_state = $1 ORDER BY created_at`, state)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*models.TenantWorkflow
	for rows.Next() {
		var w models.TenantWorkflow
		if err := rows.Scan(
			&w.ID, &w.TenantID, &w.WorkflowType, &w.WorkflowState, &w.WalletBearerToken,
			&w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		workflows = append(workflows, &w)
	}
	return workflows, rows.Err()
}
