// Package connection contains per-protocol-event processors for connection
// protocol messages. Each processor follows the same shape as the workflow
// driver: classify the event, apply a conditional mutation, persist.
package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/pkg/models"
)

// ErrMalformedMessage is returned when a matched protocol message is missing
// a field the processor needs.
var ErrMalformedMessage = errors.New("malformed connection message")

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Message is an inbound connection protocol message. The external webhook
// layer decides which protocol phase it belongs to and calls OnRequest or
// OnResponse accordingly.
type Message struct {
	InvitationKey string `json:"invitation_key,omitempty"`
	ConnectionID  string `json:"connection_id"`
	TheirLabel    string `json:"their_label,omitempty"`
}

// ReusableInvitationProcessor creates and updates contacts for connections
// made through a reusable invitation. It holds no state between calls;
// classifying the same message against the same invitation table always
// yields the same decision.
type ReusableInvitationProcessor struct {
	repo   repository.Repository
	logger Logger
}

// NewReusableInvitationProcessor creates a new ReusableInvitationProcessor.
func NewReusableInvitationProcessor(repo repository.Repository, logger Logger) *ReusableInvitationProcessor {
	return &ReusableInvitationProcessor{repo: repo, logger: logger}
}

// reusableInvitation classifies the message: it returns the tenant's stored
// invitation when the message references one flagged reusable, nil otherwise.
func (p *ReusableInvitationProcessor) reusableInvitation(ctx context.Context, tenantID string, msg *Message) (*models.ConnectionInvitation, error) {
	if msg.InvitationKey == "" {
		return nil, nil
	}
	invitation, err := p.repo.GetInvitationByKey(ctx, tenantID, msg.InvitationKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !invitation.Reusable {
		return nil, nil
	}
	return invitation, nil
}

// OnRequest creates a provisional contact when the inbound connection request
// reuses one of the tenant's reusable invitations. Requests for other
// invitation flows are not ours to handle and change nothing.
func (p *ReusableInvitationProcessor) OnRequest(ctx context.Context, tenantID string, msg *Message) error {
	invitation, err := p.reusableInvitation(ctx, tenantID, msg)
	if err != nil {
		return err
	}
	if invitation == nil {
		return nil
	}
	if msg.ConnectionID == "" {
		return fmt.Errorf("%w: connection request missing connection_id", ErrMalformedMessage)
	}

	// the alias is provisional until the peer's label arrives on_response
	label := invitation.Label
	if label == "" {
		label = msg.InvitationKey
	}
	contact := &models.Contact{
		ID:              uuid.New().String(),
		TenantID:        tenantID,
		ConnectionID:    msg.ConnectionID,
		Alias:           label,
		ConnectionAlias: label,
		Status:          models.ContactStatusPending,
		State:           models.ConnectionStateRequest,
		Role:            models.ConnectionRoleInviter,
		InvitationKey:   msg.InvitationKey,
		Invitation:      invitation.Invitation,
		Tags:            invitation.Tags,
	}
	p.logger.Info("creating contact for reusable invitation",
		"tenant_id", tenantID, "connection_id", msg.ConnectionID, "invitation_key", msg.InvitationKey)
	return p.repo.CreateContact(ctx, contact)
}

// OnResponse updates the contact's alias with the peer-supplied label once
// the connection has progressed far enough to carry one.
func (p *ReusableInvitationProcessor) OnResponse(ctx context.Context, tenantID string, msg *Message) error {
	invitation, err := p.reusableInvitation(ctx, tenantID, msg)
	if err != nil {
		return err
	}
	if invitation == nil {
		p.logger.Info("on_response: not a reusable invitation", "tenant_id", tenantID, "connection_id", msg.ConnectionID)
		return nil
	}
	if msg.ConnectionID == "" {
		return fmt.Errorf("%w: connection response missing connection_id", ErrMalformedMessage)
	}
	if msg.TheirLabel == "" {
		// nothing to update with yet
		return nil
	}

	p.logger.Info("on_response: reusable invitation", "invitation_key", invitation.InvitationKey)
	return p.repo.UpdateContactAlias(ctx, tenantID, msg.ConnectionID, msg.TheirLabel)
}
