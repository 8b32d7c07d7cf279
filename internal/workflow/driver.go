package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tenant-broker/backend/internal/acapy"
	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Driver advances issuer schema workflows. It holds no state of its own: each
// step loads the persisted workflow and artifact rows, decides the next
// action, optionally calls the agent, and persists the transition. Every step
// runs in one store transaction, so a failed step leaves the workflow exactly
// where it was and the next trigger retries it safely.
type Driver struct {
	store  repository.Store
	agent  acapy.Client
	logger Logger
}

// NewDriver creates a new Driver.
func NewDriver(store repository.Store, agent acapy.Client, logger Logger) *Driver {
	return &Driver{store: store, agent: agent, logger: logger}
}

// RunStep executes one step of the workflow. For pending workflows ev is
// ignored and may be nil; for in-progress workflows ev must carry the webhook
// notification that triggered the resumption. Terminal workflows are returned
// unchanged.
func (d *Driver) RunStep(ctx context.Context, wf *models.TenantWorkflow, ev *Event) (*models.TenantWorkflow, error) {
	switch wf.WorkflowState {
	case models.WorkflowStatePending:
		return d.start(ctx, wf)
	case models.WorkflowStateInProgress:
		if ev == nil {
			// contract violation by the caller: resumption needs a trigger
			d.logger.Warn("run_step called without an event for in-progress workflow", "workflow_id", wf.ID)
			return wf, nil
		}
		return d.resume(ctx, wf, ev)
	case models.WorkflowStateCompleted, models.WorkflowStateError:
		return wf, nil
	default:
		d.logger.Warn("workflow in unknown state", "workflow_id", wf.ID, "state", wf.WorkflowState)
		return wf, nil
	}
}

// start moves a pending workflow to in_progress and submits the first
// outstanding artifact: the schema, or the cred def when a prior partial run
// already completed the schema.
func (d *Driver) start(ctx context.Context, wf *models.TenantWorkflow) (*models.TenantWorkflow, error) {
	updated := wf
	err := d.store.InTx(ctx, func(repo repository.Repository) error {
		schema, err := repo.GetSchemaByWorkflowID(ctx, wf.ID)
		if err != nil {
			return fmt.Errorf("load artifact for workflow %s: %w", wf.ID, err)
		}

		updated, err = repo.UpdateWorkflow(ctx, wf.ID, wf.Version, models.TenantWorkflowPatch{
			WorkflowState:     models.WorkflowStateInProgress,
			WalletBearerToken: wf.WalletBearerToken,
		})
		if err != nil {
			return err
		}
		if err := d.updateFlow(ctx, repo, updated, models.TenantFlowPatch{
			Status: models.FlowStatusActive,
			State:  models.WorkflowStateInProgress,
		}); err != nil {
			return err
		}

		switch {
		case schema.SchemaState == models.WorkflowStatePending:
			return d.submitSchema(ctx, repo, updated, schema)
		case schema.CredDefState == models.WorkflowStatePending:
			return d.submitCredDef(ctx, repo, updated, schema)
		default:
			d.logger.Warn("workflow started with no pending artifact work",
				"workflow_id", wf.ID, "schema_state", schema.SchemaState, "cred_def_state", schema.CredDefState)
			return nil
		}
	})
	if err != nil {
		return wf, err
	}
	return updated, nil
}

// resume handles a webhook notification for an in-progress workflow. Only
// endorse_transaction events advance the machine; everything else is logged
// and ignored so new agent notification types stay forward compatible.
func (d *Driver) resume(ctx context.Context, wf *models.TenantWorkflow, ev *Event) (*models.TenantWorkflow, error) {
	if ev.Topic != TopicEndorseTransaction {
		d.logger.Info("ignoring webhook topic", "topic", ev.Topic, "workflow_id", wf.ID)
		return wf, nil
	}
	if ev.Endorse == nil {
		return wf, fmt.Errorf("%w: endorse_transaction event without payload", ErrMalformedEvent)
	}

	ack := ev.Endorse
	switch ack.State {
	case TxnStateAcked:
		return d.applyAck(ctx, wf, ack)
	case TxnStateRefused:
		return d.applyRefusal(ctx, wf, ack)
	default:
		d.logger.Info("ignoring transaction state", "state", ack.State, "workflow_id", wf.ID)
		return wf, nil
	}
}

// applyAck advances whichever sub-state machine owns the acknowledged
// transaction. A transaction id that no longer matches a pending one is the
// redelivery case and changes nothing.
func (d *Driver) applyAck(ctx context.Context, wf *models.TenantWorkflow, ack *EndorseTransactionPayload) (*models.TenantWorkflow, error) {
	updated := wf
	err := d.store.InTx(ctx, func(repo repository.Repository) error {
		schema, err := repo.GetSchemaByWorkflowID(ctx, wf.ID)
		if err != nil {
			return fmt.Errorf("load artifact for workflow %s: %w", wf.ID, err)
		}

		completed := models.WorkflowStateCompleted
		switch {
		case matchesPending(schema.SchemaTxnID, schema.SchemaState, ack.TransactionID):
			if ack.MetaData == nil || ack.MetaData.Context.SchemaID == "" {
				return fmt.Errorf("%w: acknowledgement for schema transaction %s carries no schema_id",
					ErrMalformedEvent, ack.TransactionID)
			}
			schemaID := ack.MetaData.Context.SchemaID
			schema, err = repo.UpdateTenantSchema(ctx, schema.ID, models.TenantSchemaPatch{
				SchemaState: &completed,
				SchemaID:    &schemaID,
			})
			if err != nil {
				return err
			}
			if schema.CredDefState == models.WorkflowStatePending {
				// chain the cred def submission without waiting for
				// another trigger
				return d.submitCredDef(ctx, repo, wf, schema)
			}
			updated, err = d.finish(ctx, repo, wf, schema)
			return err

		case matchesPending(schema.CredDefTxnID, schema.CredDefState, ack.TransactionID):
			patch := models.TenantSchemaPatch{CredDefState: &completed}
			if ack.MetaData != nil && ack.MetaData.Context.CredDefID != "" {
				patch.CredDefID = &ack.MetaData.Context.CredDefID
			}
			schema, err = repo.UpdateTenantSchema(ctx, schema.ID, patch)
			if err != nil {
				return err
			}
			updated, err = d.finish(ctx, repo, wf, schema)
			return err

		default:
			d.logger.Info("acknowledged transaction matches no pending one",
				"transaction_id", ack.TransactionID, "workflow_id", wf.ID)
			return nil
		}
	})
	if err != nil {
		return wf, err
	}
	return updated, nil
}

// applyRefusal moves the workflow to its error state when the endorser
// refuses a transaction this workflow is waiting on.
func (d *Driver) applyRefusal(ctx context.Context, wf *models.TenantWorkflow, ack *EndorseTransactionPayload) (*models.TenantWorkflow, error) {
	updated := wf
	err := d.store.InTx(ctx, func(repo repository.Repository) error {
		schema, err := repo.GetSchemaByWorkflowID(ctx, wf.ID)
		if err != nil {
			return fmt.Errorf("load artifact for workflow %s: %w", wf.ID, err)
		}
		if !matchesPending(schema.SchemaTxnID, schema.SchemaState, ack.TransactionID) &&
			!matchesPending(schema.CredDefTxnID, schema.CredDefState, ack.TransactionID) {
			d.logger.Info("refused transaction matches no pending one",
				"transaction_id", ack.TransactionID, "workflow_id", wf.ID)
			return nil
		}

		updated, err = repo.UpdateWorkflow(ctx, wf.ID, wf.Version, models.TenantWorkflowPatch{
			WorkflowState:     models.WorkflowStateError,
			WalletBearerToken: nil,
		})
		if err != nil {
			return err
		}
		detail := fmt.Sprintf("transaction %s refused by endorser", ack.TransactionID)
		return d.updateFlow(ctx, repo, updated, models.TenantFlowPatch{
			Status:            models.FlowStatusError,
			State:             models.WorkflowStateError,
			ErrorStatusDetail: &detail,
		})
	})
	if err != nil {
		return wf, err
	}
	return updated, nil
}

// submitSchema asks the agent to publish the schema and records the pending
// transaction id.
func (d *Driver) submitSchema(ctx context.Context, repo repository.Repository, wf *models.TenantWorkflow, schema *models.TenantSchema) error {
	resp, err := d.agent.PostSchema(ctx, walletToken(wf), acapy.SchemaSendRequest{
		SchemaName:    schema.SchemaName,
		SchemaVersion: schema.SchemaVersion,
		Attributes:    schema.SchemaAttrs,
	})
	if err != nil {
		return fmt.Errorf("submit schema for workflow %s: %w", wf.ID, err)
	}
	if resp.TransactionID == "" {
		return fmt.Errorf("agent returned no transaction id for schema %s", schema.ID)
	}

	inProgress := models.WorkflowStateInProgress
	_, err = repo.UpdateTenantSchema(ctx, schema.ID, models.TenantSchemaPatch{
		SchemaState: &inProgress,
		SchemaTxnID: &resp.TransactionID,
	})
	return err
}

// submitCredDef asks the agent to publish the credential definition. The
// schema must already be completed with a known ledger id; a cred def can
// never start before its schema exists.
func (d *Driver) submitCredDef(ctx context.Context, repo repository.Repository, wf *models.TenantWorkflow, schema *models.TenantSchema) error {
	if schema.SchemaState != models.WorkflowStateCompleted || schema.SchemaID == nil {
		d.logger.Warn("cred def submission blocked: schema not completed",
			"workflow_id", wf.ID, "schema_state", schema.SchemaState)
		return nil
	}

	resp, err := d.agent.PostCredentialDefinition(ctx, walletToken(wf), acapy.CredentialDefinitionSendRequest{
		SchemaID: *schema.SchemaID,
		Tag:      schema.CredDefTag,
	})
	if err != nil {
		return fmt.Errorf("submit cred def for workflow %s: %w", wf.ID, err)
	}
	if resp.TransactionID == "" {
		return fmt.Errorf("agent returned no transaction id for cred def on schema %s", schema.ID)
	}

	inProgress := models.WorkflowStateInProgress
	_, err = repo.UpdateTenantSchema(ctx, schema.ID, models.TenantSchemaPatch{
		CredDefState: &inProgress,
		CredDefTxnID: &resp.TransactionID,
	})
	return err
}

// finish marks the workflow completed, clears the ephemeral wallet token and
// records the produced identifiers on the flow record.
func (d *Driver) finish(ctx context.Context, repo repository.Repository, wf *models.TenantWorkflow, schema *models.TenantSchema) (*models.TenantWorkflow, error) {
	updated, err := repo.UpdateWorkflow(ctx, wf.ID, wf.Version, models.TenantWorkflowPatch{
		WorkflowState:     models.WorkflowStateCompleted,
		WalletBearerToken: nil,
	})
	if err != nil {
		return nil, err
	}

	value, err := json.Marshal(map[string]*string{
		"schema_id":   schema.SchemaID,
		"cred_def_id": schema.CredDefID,
	})
	if err != nil {
		return nil, err
	}
	completedValue := string(value)
	err = d.updateFlow(ctx, repo, updated, models.TenantFlowPatch{
		Status:         models.FlowStatusCompleted,
		State:          models.WorkflowStateCompleted,
		CompletedValue: &completedValue,
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// updateFlow keeps the operator-visible flow record in sync with the
// workflow. A missing flow record is logged, not fatal.
func (d *Driver) updateFlow(ctx context.Context, repo repository.Repository, wf *models.TenantWorkflow, patch models.TenantFlowPatch) error {
	flow, err := repo.GetFlowByType(ctx, wf.TenantID, wf.WorkflowType)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			d.logger.Warn("no flow record for workflow", "workflow_id", wf.ID, "flow_type", wf.WorkflowType)
			return nil
		}
		return err
	}
	_, err = repo.UpdateFlow(ctx, flow.ID, patch)
	return err
}

// matchesPending reports whether id is the transaction the given sub-state
// machine is waiting on. Completed sub-states no longer match, which makes
// redelivered acknowledgements no-ops.
func matchesPending(txnID *string, state models.WorkflowStateType, id string) bool {
	return txnID != nil && *txnID == id && state == models.WorkflowStateInProgress
}

func walletToken(wf *models.TenantWorkflow) string {
	if wf.WalletBearerToken == nil {
		return ""
	}
	return *wf.WalletBearerToken
}
