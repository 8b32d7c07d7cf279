package connection

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/internal/repository/inmem"
	"tenant-broker/backend/pkg/models"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Warn(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

func seedInvitation(t *testing.T, store *inmem.Store, reusable bool) *models.ConnectionInvitation {
	t.Helper()
	inv := &models.ConnectionInvitation{
		ID:            uuid.New().String(),
		TenantID:      uuid.New().String(),
		InvitationKey: "inv-key-1",
		Label:         "Acme Issuer",
		Reusable:      reusable,
		Invitation:    map[string]any{"@type": "https://didcomm.org/connections/1.0/invitation"},
		Tags:          []string{"public"},
	}
	require.NoError(t, store.CreateInvitation(context.Background(), inv))
	return inv
}

func TestOnRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("reusable invitation creates a contact", func(t *testing.T) {
		store := inmem.New()
		inv := seedInvitation(t, store, true)
		p := NewReusableInvitationProcessor(store, &NoOpLogger{})

		err := p.OnRequest(ctx, inv.TenantID, &Message{
			InvitationKey: inv.InvitationKey,
			ConnectionID:  "conn-1",
		})
		require.NoError(t, err)

		contact, err := store.GetContactByConnectionID(ctx, inv.TenantID, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, models.ContactStatusPending, contact.Status)
		assert.Equal(t, models.ConnectionStateRequest, contact.State)
		assert.Equal(t, models.ConnectionRoleInviter, contact.Role)
		assert.Equal(t, "Acme Issuer", contact.Alias)
		assert.Equal(t, inv.InvitationKey, contact.InvitationKey)
		assert.Equal(t, []string{"public"}, contact.Tags)
	})

	t.Run("falls back to the invitation key when unlabeled", func(t *testing.T) {
		store := inmem.New()
		inv := seedInvitation(t, store, true)
		inv.Label = ""
		require.NoError(t, store.CreateInvitation(ctx, inv))
		p := NewReusableInvitationProcessor(store, &NoOpLogger{})

		err := p.OnRequest(ctx, inv.TenantID, &Message{
			InvitationKey: inv.InvitationKey,
			ConnectionID:  "conn-1",
		})
		require.NoError(t, err)

		contact, err := store.GetContactByConnectionID(ctx, inv.TenantID, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, inv.InvitationKey, contact.Alias)
	})

	t.Run("non-reusable invitation changes nothing", func(t *testing.T) {
		store := inmem.New()
		inv := seedInvitation(t, store, false)
		p := NewReusableInvitationProcessor(store, &NoOpLogger{})

		err := p.OnRequest(ctx, inv.TenantID, &Message{
			InvitationKey: inv.InvitationKey,
			ConnectionID:  "conn-1",
		})
		require.NoError(t, err)

		_, err = store.GetContactByConnectionID(ctx, inv.TenantID, "conn-1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("unknown invitation key changes nothing", func(t *testing.T) {
		store := inmem.New()
		inv := seedInvitation(t, store, true)
		p := NewReusableInvitationProcessor(store, &NoOpLogger{})

		err := p.OnRequest(ctx, inv.TenantID, &Message{
			InvitationKey: "someone-elses-key",
			ConnectionID:  "conn-1",
		})
		require.NoError(t, err)

		_, err = store.GetContactByConnectionID(ctx, inv.TenantID, "conn-1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("missing invitation key changes nothing", func(t *testing.T) {
		store := inmem.New()
		inv := seedInvitation(t, store, true)
		p := NewReusableInvitationProcessor(store, &NoOpLogger{})

		err := p.OnRequest(ctx, inv.TenantID, &Message{ConnectionID: "conn-1"})
		require.NoError(t, err)

		_, err = store.GetContactByConnectionID(ctx, inv.TenantID, "conn-1")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("missing connection id is malformed", func(t *testing.T) {
		store := inmem.New()
		inv := seedInvitation(t, store, true)
		p := NewReusableInvitationProcessor(store, &NoOpLogger{})

		err := p.OnRequest(ctx, inv.TenantID, &Message{InvitationKey: inv.InvitationKey})
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})
}

func TestOnResponse(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*inmem.Store, *models.ConnectionInvitation, *ReusableInvitationProcessor) {
		store := inmem.New()
		inv := seedInvitation(t, store, true)
		p := NewReusableInvitationProcessor(store, &NoOpLogger{})
		require.NoError(t, p.OnRequest(ctx, inv.TenantID, &Message{
			InvitationKey: inv.InvitationKey,
			ConnectionID:  "conn-1",
		}))
		return store, inv, p
	}

	t.Run("updates the alias with the peer label", func(t *testing.T) {
		store, inv, p := setup(t)

		err := p.OnResponse(ctx, inv.TenantID, &Message{
			InvitationKey: inv.InvitationKey,
			ConnectionID:  "conn-1",
			TheirLabel:    "Bob's Wallet",
		})
		require.NoError(t, err)

		contact, err := store.GetContactByConnectionID(ctx, inv.TenantID, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, "Bob's Wallet", contact.Alias)
		assert.Equal(t, "Bob's Wallet", contact.ConnectionAlias)
	})

	t.Run("keeps the provisional alias without a peer label", func(t *testing.T) {
		store, inv, p := setup(t)

		err := p.OnResponse(ctx, inv.TenantID, &Message{
			InvitationKey: inv.InvitationKey,
			ConnectionID:  "conn-1",
		})
		require.NoError(t, err)

		contact, err := store.GetContactByConnectionID(ctx, inv.TenantID, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme Issuer", contact.Alias)
	})

	t.Run("non-reusable flows are not ours", func(t *testing.T) {
		store, inv, p := setup(t)

		err := p.OnResponse(ctx, inv.TenantID, &Message{
			InvitationKey: "someone-elses-key",
			ConnectionID:  "conn-1",
			TheirLabel:    "Bob's Wallet",
		})
		require.NoError(t, err)

		contact, err := store.GetContactByConnectionID(ctx, inv.TenantID, "conn-1")
		require.NoError(t, err)
		assert.Equal(t, "Acme Issuer", contact.Alias)
	})
}
