package repository

import (
	"context"

	"tenant-broker/backend/pkg/models"
)

const flowColumns = `id, tenant_id, flow_type, status, state, completed_value, error_status_detail, created_at, updated_at`

// CreateFlow stores a new tenant flow record. The timeline trigger appends
// the first audit row for the insert.
func (s *PostgresStore) CreateFlow(ctx context.Context, flow *models.TenantFlow) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant_flow (id, tenant_id, flow_type, status, state, completed_value, error_status_detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		flow.ID, flow.TenantID, flow.FlowType, flow.Status, flow.State,
		flow.CompletedValue, flow.ErrorStatusDetail)
	return err
}

// GetFlowByType retrieves a tenant's flow record of the given type.
func (s *PostgresStore) GetFlowByType(ctx context.Context, tenantID string, flowType models.WorkflowType) (*models.TenantFlow, error) {
	return s.scanFlow(ctx,
		`SELECT `+flowColumns+` FROM tenant_flow WHERE tenant_id = $1 AND flow_type = $2`,
		tenantID, flowType)
}

// UpdateFlow applies the patch to the flow record. Status and state are
// always written; the trigger decides whether that change is observable.
func (s *PostgresStore) UpdateFlow(ctx context.Context, id string, patch models.TenantFlowPatch) (*models.TenantFlow, error) {
	return s.scanFlow(ctx,
		`UPDATE tenant_flow
		 SET status = $2, state = $3,
		     completed_value = COALESCE($4, completed_value),
		     error_status_detail = COALESCE($5, error_status_detail),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+flowColumns,
		id, patch.Status, patch.State, patch.CompletedValue, patch.ErrorStatusDetail)
}

// ResetFlow returns a flow record to pending for a new run. The previous
// run's results are cleared so a fresh pending flow never shows stale output.
func (s *PostgresStore) ResetFlow(ctx context.Context, id string) (*models.TenantFlow, error) {
	return s.scanFlow(ctx,
		`UPDATE tenant_flow
		 SET status = $2, state = $3, completed_value = NULL, error_status_detail = NULL, updated_at = now()
		 WHERE id = $1
		 RETURNING `+flowColumns,
		id, models.FlowStatusPending, models.WorkflowStatePending)
}

// ListFlows lists a tenant's flow records.
func (s *PostgresStore) ListFlows(ctx context.Context, tenantID string) ([]*models.TenantFlow, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+flowColumns+` FROM tenant_flow WHERE tenant_id = $1 ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []*models.TenantFlow
	for rows.Next() {
		var f models.TenantFlow
		if err := rows.Scan(
			&f.ID, &f.TenantID, &f.FlowType, &f.Status, &f.State,
			&f.CompletedValue, &f.ErrorStatusDetail, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		flows = append(flows, &f)
	}
	return flows, rows.Err()
}

// ListTimeline lists the audit timeline for a flow record, oldest first.
func (s *PostgresStore) ListTimeline(ctx context.Context, itemID string) ([]*models.TimelineEntry, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, item_id, status, state, error_status_detail, created_at
		 FROM timeline WHERE item_id = $1 ORDER BY created_at, id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.TimelineEntry
	for rows.Next() {
		var e models.TimelineEntry
		if err := rows.Scan(&e.ID, &e.ItemID, &e.Status, &e.State, &e.ErrorStatusDetail, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) scanFlow(ctx context.Context, sql string, args ...any) (*models.TenantFlow, error) {
	var f models.TenantFlow
	err := s.db.QueryRow(ctx, sql, args...).Scan(
		&f.ID, &f.TenantID, &f.FlowType, &f.Status, &f.State,
		&f.CompletedValue, &f.ErrorStatusDetail, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &f, nil
}
