package repository

import (
	"context"

	"tenant-broker/backend/pkg/models"
)

// CreateTenant stores a new tenant.
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO tenant (id, name, wallet_id, api_key) VALUES ($1, $2, $3, $4)`,
		tenant.ID, tenant.Name, tenant.WalletID, tenant.APIKey)
	return err
}

// GetTenant retrieves a tenant by its ID.
func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	return s.scanTenant(ctx,
		`SELECT id, name, wallet_id, api_key, created_at, updated_at FROM tenant WHERE id = $1`, id)
}

// GetTenantByAPIKey retrieves a tenant by its API key.
func (s *PostgresStore) GetTenantByAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	return s.scanTenant(ctx,
		`SELECT id, name, wallet_id, api_key, created_at, updated_at FROM tenant WHERE api_key = $1`, apiKey)
}

func (s *PostgresStore) scanTenant(ctx context.Context, sql string, args ...any) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.QueryRow(ctx, sql, args...).Scan(
		&tenant.ID, &tenant.Name, &tenant.WalletID, &tenant.APIKey,
		&tenant.CreatedAt, &tenant.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &tenant, nil
}
