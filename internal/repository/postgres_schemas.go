package repository

import (
	"context"

	"tenant-broker/backend/pkg/models"
)

const schemaColumns = `id, tenant_id, workflow_id, schema_name, schema_version, schema_attrs, cred_def_tag,
	schema_state, cred_def_state, schema_txn_id, cred_def_txn_id, schema_id, cred_def_id, created_at, updated_at`

// CreateTenantSchema stores a new schema publication artifact. A duplicate
// (tenant, schema name, schema version) returns ErrConflict.
func (s *PostgresStore) CreateTenantSchema(ctx context.Context, schema *models.TenantSchema) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant_schema (id, tenant_id, workflow_id, schema_name, schema_version, schema_attrs,
		    cred_def_tag, schema_state, cred_def_state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		schema.ID, schema.TenantID, schema.WorkflowID, schema.SchemaName, schema.SchemaVersion,
		schema.SchemaAttrs, schema.CredDefTag, schema.SchemaState, schema.CredDefState)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

// GetSchemaByWorkflowID retrieves the artifact owned by a workflow.
func (s *PostgresStore) GetSchemaByWorkflowID(ctx context.Context, workflowID string) (*models.TenantSchema, error) {
	return s.scanSchema(ctx,
		`SELECT `+schemaColumns+` FROM tenant_schema WHERE workflow_id = $1`, workflowID)
}

// GetSchemaByTransactionID retrieves the artifact whose schema or cred def
// transaction id equals txnID.
func (s *PostgresStore) GetSchemaByTransactionID(ctx context.Context, txnID string) (*models.TenantSchema, error) {
	return s.scanSchema(ctx,
		`SELECT `+schemaColumns+` FROM tenant_schema WHERE schema_txn_id = $1 OR cred_def_txn_id = $1`, txnID)
}

// UpdateTenantSchema applies the non-nil patch fields to the artifact.
func (s *PostgresStore) UpdateTenantSchema(ctx context.Context, id string, patch models.TenantSchemaPatch) (*models.TenantSchema, error) {
	return s.scanSchema(ctx,
		`UPDATE tenant_schema
		 SET schema_state = COALESCE($2, schema_state),
		     cred_def_state = COALESCE($3, cred_def_state),
		     schema_txn_id = COALESCE($4, schema_txn_id),
		     cred_def_txn_id = COALESCE($5, cred_def_txn_id),
		     schema_id = COALESCE($6, schema_id),
		     cred_def_id = COALESCE($7, cred_def_id),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+schemaColumns,
		id, stateArg(patch.SchemaState), stateArg(patch.CredDefState),
		patch.SchemaTxnID, patch.CredDefTxnID, patch.SchemaID, patch.CredDefID)
}

// stateArg converts an optional state to a nullable text parameter.
func stateArg(state *models.WorkflowStateType) *string {
	if state == nil {
		return nil
	}
	v := string(*state)
	return &v
}

func (s *PostgresStore) scanSchema(ctx context.Context, sql string, args ...any) (*models.TenantSchema, error) {
	var ts models.TenantSchema
	err := s.db.QueryRow(ctx, sql, args...).Scan(
		&ts.ID, &ts.TenantID, &ts.WorkflowID, &ts.SchemaName, &ts.SchemaVersion, &ts.SchemaAttrs,
		&ts.CredDefTag, &ts.SchemaState, &ts.CredDefState, &ts.SchemaTxnID, &ts.CredDefTxnID,
		&ts.SchemaID, &ts.CredDefID, &ts.CreatedAt, &ts.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ts, nil
}
