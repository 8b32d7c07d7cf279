package repository

import (
	"context"

	"tenant-broker/backend/pkg/models"
)

// CreateContact stores a new contact.
func (s *PostgresStore) CreateContact(ctx context.Context, contact *models.Contact) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO contact (id, tenant_id, connection_id, alias, connection_alias, status, state, role,
		    invitation_key, invitation, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		contact.ID, contact.TenantID, contact.ConnectionID, contact.Alias, contact.ConnectionAlias,
		contact.Status, contact.State, contact.Role, contact.InvitationKey, contact.Invitation, contact.Tags)
	return err
}

// GetContactByConnectionID retrieves a tenant's contact by connection id.
func (s *PostgresStore) GetContactByConnectionID(ctx context.Context, tenantID, connectionID string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, connection_id, alias, connection_alias, status, state, role,
		    invitation_key, invitation, tags, created_at, updated_at
		 FROM contact WHERE tenant_id = $1 AND connection_id = $2`,
		tenantID, connectionID).Scan(
		&c.ID, &c.TenantID, &c.ConnectionID, &c.Alias, &c.ConnectionAlias, &c.Status, &c.State,
		&c.Role, &c.InvitationKey, &c.Invitation, &c.Tags, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// UpdateContactAlias sets the alias fields of a contact by connection id.
func (s *PostgresStore) UpdateContactAlias(ctx context.Context, tenantID, connectionID, alias string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE contact SET alias = $3, connection_alias = $3, updated_at = now()
		 WHERE tenant_id = $1 AND connection_id = $2`,
		tenantID, connectionID, alias)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateInvitation stores a connection invitation.
func (s *PostgresStore) CreateInvitation(ctx context.Context, invitation *models.ConnectionInvitation) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO connection_invitation (id, tenant_id, invitation_key, label, reusable, invitation, tags)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		invitation.ID, invitation.TenantID, invitation.InvitationKey, invitation.Label,
		invitation.Reusable, invitation.Invitation, invitation.Tags)
	return err
}

// GetInvitationByKey retrieves a tenant's invitation by invitation key.
func (s *PostgresStore) GetInvitationByKey(ctx context.Context, tenantID, invitationKey string) (*models.ConnectionInvitation, error) {
	var inv models.ConnectionInvitation
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, invitation_key, label, reusable, invitation, tags, created_at
		 FROM connection_invitation WHERE tenant_id = $1 AND invitation_key = $2`,
		tenantID, invitationKey).Scan(
		&inv.ID, &inv.TenantID, &inv.InvitationKey, &inv.Label, &inv.Reusable,
		&inv.Invitation, &inv.Tags, &inv.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &inv, nil
}
