package models

import (
	"time"
)

// Contact represents a peer relationship owned by a tenant. For reusable
// invitations a contact is created when the peer's connection request arrives
// and its alias is filled in once the connection has progressed far enough to
// carry the peer's label.
type Contact struct {
	ID              string              `json:"id" db:"id"`
	TenantID        string              `json:"tenant_id" db:"tenant_id"`
	ConnectionID    string              `json:"connection_id" db:"connection_id"`
	Alias           string              `json:"alias" db:"alias"`
	ConnectionAlias string              `json:"connection_alias" db:"connection_alias"`
	Status          ContactStatusType   `json:"status" db:"status"`
	State           ConnectionStateType `json:"state" db:"state"`
	Role            ConnectionRoleType  `json:"role" db:"role"`
	InvitationKey   string              `json:"invitation_key" db:"invitation_key"`
	Invitation      map[string]any      `json:"invitation,omitempty" db:"invitation"`
	Tags            []string            `json:"tags,omitempty" db:"tags"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

// ConnectionInvitation is an invitation previously issued by a tenant. The
// broker only reads these; they are looked up by invitation key to classify
// inbound connection protocol messages.
type ConnectionInvitation struct {
	ID            string         `json:"id" db:"id"`
	TenantID      string         `json:"tenant_id" db:"tenant_id"`
	InvitationKey string         `json:"invitation_key" db:"invitation_key"`
	Label         string         `json:"label" db:"label"`
	Reusable      bool           `json:"reusable" db:"reusable"`
	Invitation    map[string]any `json:"invitation,omitempty" db:"invitation"`
	Tags          []string       `json:"tags,omitempty" db:"tags"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}
