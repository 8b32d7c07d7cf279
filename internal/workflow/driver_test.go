package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-broker/backend/internal/acapy"
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

// fakeAgent satisfies acapy.Client with canned transaction ids.
type fakeAgent struct {
	schemaTxn  string
	credDefTxn string
	schemaErr  error
	credDefErr error

	schemaCalls  int
	credDefCalls int
	lastToken    string
	lastSchema   acapy.SchemaSendRequest
	lastCredDef  acapy.CredentialDefinitionSendRequest
}

func (a *fakeAgent) PostSchema(ctx context.Context, token string, req acapy.SchemaSendRequest) (*acapy.TxnResponse, error) {
	a.schemaCalls++
	a.lastToken = token
	a.lastSchema = req
	if a.schemaErr != nil {
		return nil, a.schemaErr
	}
	return &acapy.TxnResponse{TransactionID: a.schemaTxn}, nil
}

func (a *fakeAgent) PostCredentialDefinition(ctx context.Context, token string, req acapy.CredentialDefinitionSendRequest) (*acapy.TxnResponse, error) {
	a.credDefCalls++
	a.lastToken = token
	a.lastCredDef = req
	if a.credDefErr != nil {
		return nil, a.credDefErr
	}
	return &acapy.TxnResponse{TransactionID: a.credDefTxn}, nil
}

// seedWorkflow creates the workflow, artifact and flow rows the way the
// creation endpoint does.
func seedWorkflow(t *testing.T, store *inmem.Store) (*models.TenantWorkflow, *models.TenantSchema, *models.TenantFlow) {
	t.Helper()
	ctx := context.Background()

	token := "wallet-token"
	wf := &models.TenantWorkflow{
		ID:                uuid.New().String(),
		TenantID:          uuid.New().String(),
		WorkflowType:      models.WorkflowTypeIssuerSchema,
		WorkflowState:     models.WorkflowStatePending,
		WalletBearerToken: &token,
	}
	require.NoError(t, store.CreateWorkflow(ctx, wf))

	schema := &models.TenantSchema{
		ID:            uuid.New().String(),
		TenantID:      wf.TenantID,
		WorkflowID:    wf.ID,
		SchemaName:    "person",
		SchemaVersion: "1.0",
		SchemaAttrs:   []string{"name", "birthdate"},
		CredDefTag:    "default",
		SchemaState:   models.WorkflowStatePending,
		CredDefState:  models.WorkflowStatePending,
	}
	require.NoError(t, store.CreateTenantSchema(ctx, schema))

	flow := &models.TenantFlow{
		ID:       uuid.New().String(),
		TenantID: wf.TenantID,
		FlowType: models.WorkflowTypeIssuerSchema,
		Status:   models.FlowStatusPending,
		State:    models.WorkflowStatePending,
	}
	require.NoError(t, store.CreateFlow(ctx, flow))

	return wf, schema, flow
}

func ackEvent(txnID, schemaID, credDefID string) *Event {
	ev := &Event{
		Topic: TopicEndorseTransaction,
		Endorse: &EndorseTransactionPayload{
			TransactionID: txnID,
			State:         TxnStateAcked,
		},
	}
	if schemaID != "" || credDefID != "" {
		ev.Endorse.MetaData = &TransactionMetaData{
			Context: TransactionContext{SchemaID: schemaID, CredDefID: credDefID},
		}
	}
	return ev
}

func TestRunStep_StartSubmitsSchema(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, schema, flow := seedWorkflow(t, store)

	updated, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStateInProgress, updated.WorkflowState)
	assert.Equal(t, wf.Version+1, updated.Version)

	assert.Equal(t, 1, agent.schemaCalls)
	assert.Equal(t, 0, agent.credDefCalls)
	assert.Equal(t, "wallet-token", agent.lastToken)
	assert.Equal(t, "person", agent.lastSchema.SchemaName)
	assert.Equal(t, []string{"name", "birthdate"}, agent.lastSchema.Attributes)

	current, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateInProgress, current.SchemaState)
	require.NotNil(t, current.SchemaTxnID)
	assert.Equal(t, "txn-schema-1", *current.SchemaTxnID)
	assert.Equal(t, models.WorkflowStatePending, current.CredDefState)
	assert.Nil(t, current.CredDefTxnID)
	_ = schema

	currentFlow, err := store.GetFlowByType(ctx, wf.TenantID, models.WorkflowTypeIssuerSchema)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusActive, currentFlow.Status)

	entries, err := store.ListTimeline(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.FlowStatusPending, entries[0].Status)
	assert.Equal(t, models.FlowStatusActive, entries[1].Status)
}

func TestRunStep_StartResumesAtCredDef(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{credDefTxn: "txn-cd-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, schema, _ := seedWorkflow(t, store)

	// a prior partial run already published the schema
	completed := models.WorkflowStateCompleted
	schemaID := "S1"
	_, err := store.UpdateTenantSchema(ctx, schema.ID, models.TenantSchemaPatch{
		SchemaState: &completed,
		SchemaID:    &schemaID,
	})
	require.NoError(t, err)

	updated, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStateInProgress, updated.WorkflowState)
	assert.Equal(t, 0, agent.schemaCalls)
	assert.Equal(t, 1, agent.credDefCalls)
	assert.Equal(t, "S1", agent.lastCredDef.SchemaID)
	assert.Equal(t, "default", agent.lastCredDef.Tag)

	current, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateInProgress, current.CredDefState)
	require.NotNil(t, current.CredDefTxnID)
	assert.Equal(t, "txn-cd-1", *current.CredDefTxnID)
}

func TestRunStep_TerminalStatesAreNoOps(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{}
	driver := NewDriver(store, agent, &NoOpLogger{})

	for _, state := range []models.WorkflowStateType{models.WorkflowStateCompleted, models.WorkflowStateError} {
		t.Run(string(state), func(t *testing.T) {
			wf, _, _ := seedWorkflow(t, store)
			_, err := store.UpdateWorkflow(ctx, wf.ID, wf.Version, models.TenantWorkflowPatch{WorkflowState: state})
			require.NoError(t, err)

			terminal, err := store.GetWorkflow(ctx, wf.ID)
			require.NoError(t, err)

			updated, err := driver.RunStep(ctx, terminal, ackEvent("txn-x", "S1", ""))
			require.NoError(t, err)
			assert.Equal(t, terminal, updated)
			assert.Equal(t, 0, agent.schemaCalls)
			assert.Equal(t, 0, agent.credDefCalls)
		})
	}
}

func TestRunStep_InProgressWithoutEventIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)
	agent.schemaCalls = 0

	updated, err := driver.RunStep(ctx, inProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, inProgress, updated)
	assert.Equal(t, 0, agent.schemaCalls)
}

func TestRunStep_AgentFailureLeavesWorkflowPending(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaErr: errors.New("agent unavailable")}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, schema, flow := seedWorkflow(t, store)

	_, err := driver.RunStep(ctx, wf, nil)
	require.Error(t, err)

	current, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatePending, current.WorkflowState)
	assert.Equal(t, wf.Version, current.Version)

	currentSchema, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatePending, currentSchema.SchemaState)
	assert.Nil(t, currentSchema.SchemaTxnID)
	_ = schema

	currentFlow, err := store.GetFlowByType(ctx, wf.TenantID, models.WorkflowTypeIssuerSchema)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusPending, currentFlow.Status)

	entries, err := store.ListTimeline(ctx, flow.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRunStep_EmptyTransactionIDFromAgent(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: ""}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)

	_, err := driver.RunStep(ctx, wf, nil)
	require.Error(t, err)

	current, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatePending, current.WorkflowState)
}

func TestRunStep_SchemaAckChainsCredDef(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1", credDefTxn: "txn-cd-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	updated, err := driver.RunStep(ctx, inProgress, ackEvent("txn-schema-1", "S1", ""))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateInProgress, updated.WorkflowState)

	current, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateCompleted, current.SchemaState)
	require.NotNil(t, current.SchemaID)
	assert.Equal(t, "S1", *current.SchemaID)
	assert.Equal(t, models.WorkflowStateInProgress, current.CredDefState)
	require.NotNil(t, current.CredDefTxnID)
	assert.Equal(t, "txn-cd-1", *current.CredDefTxnID)
	assert.Equal(t, 1, agent.credDefCalls)
}

func TestRunStep_CredDefAckCompletesWorkflow(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1", credDefTxn: "txn-cd-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, flow := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)
	_, err = driver.RunStep(ctx, inProgress, ackEvent("txn-schema-1", "S1", ""))
	require.NoError(t, err)

	// the chained cred def submission did not touch the workflow row
	inProgress, err = store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	updated, err := driver.RunStep(ctx, inProgress, ackEvent("txn-cd-1", "", "CD1"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateCompleted, updated.WorkflowState)
	assert.Nil(t, updated.WalletBearerToken)

	current, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateCompleted, current.CredDefState)
	require.NotNil(t, current.CredDefID)
	assert.Equal(t, "CD1", *current.CredDefID)

	currentFlow, err := store.GetFlowByType(ctx, wf.TenantID, models.WorkflowTypeIssuerSchema)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusCompleted, currentFlow.Status)
	require.NotNil(t, currentFlow.CompletedValue)
	assert.JSONEq(t, `{"schema_id":"S1","cred_def_id":"CD1"}`, *currentFlow.CompletedValue)

	// pending, active, completed: one timeline row per transition
	entries, err := store.ListTimeline(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.FlowStatusPending, entries[0].Status)
	assert.Equal(t, models.FlowStatusActive, entries[1].Status)
	assert.Equal(t, models.FlowStatusCompleted, entries[2].Status)
}

func TestRunStep_RedeliveredAckIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1", credDefTxn: "txn-cd-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)
	_, err = driver.RunStep(ctx, inProgress, ackEvent("txn-schema-1", "S1", ""))
	require.NoError(t, err)

	before, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)

	// the agent delivers the schema acknowledgement a second time
	inProgress, err = store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	updated, err := driver.RunStep(ctx, inProgress, ackEvent("txn-schema-1", "S1", ""))
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStateInProgress, updated.WorkflowState)
	assert.Equal(t, 1, agent.credDefCalls)

	after, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, before.CredDefTxnID, after.CredDefTxnID)
	assert.Equal(t, before.CredDefState, after.CredDefState)
}

func TestRunStep_UnknownTransactionIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	updated, err := driver.RunStep(ctx, inProgress, ackEvent("txn-someone-elses", "S9", ""))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateInProgress, updated.WorkflowState)

	current, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateInProgress, current.SchemaState)
	assert.Nil(t, current.SchemaID)
}

func TestRunStep_SchemaAckWithoutSchemaID(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	_, err = driver.RunStep(ctx, inProgress, ackEvent("txn-schema-1", "", ""))
	require.ErrorIs(t, err, ErrMalformedEvent)

	current, err := store.GetSchemaByWorkflowID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateInProgress, current.SchemaState)
	assert.Nil(t, current.SchemaID)
}

func TestRunStep_EndorseEventWithoutPayload(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	_, err = driver.RunStep(ctx, inProgress, &Event{Topic: TopicEndorseTransaction})
	require.ErrorIs(t, err, ErrMalformedEvent)
}

func TestRunStep_OtherTopicsAndStatesAreIgnored(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	t.Run("other topic", func(t *testing.T) {
		updated, err := driver.RunStep(ctx, inProgress, &Event{Topic: TopicConnections})
		require.NoError(t, err)
		assert.Equal(t, inProgress, updated)
	})

	t.Run("intermediate transaction state", func(t *testing.T) {
		updated, err := driver.RunStep(ctx, inProgress, &Event{
			Topic: TopicEndorseTransaction,
			Endorse: &EndorseTransactionPayload{
				TransactionID: "txn-schema-1",
				State:         "request_sent",
			},
		})
		require.NoError(t, err)
		assert.Equal(t, inProgress, updated)
	})
}

func TestRunStep_RefusalFailsWorkflow(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, flow := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	updated, err := driver.RunStep(ctx, inProgress, &Event{
		Topic: TopicEndorseTransaction,
		Endorse: &EndorseTransactionPayload{
			TransactionID: "txn-schema-1",
			State:         TxnStateRefused,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateError, updated.WorkflowState)
	assert.Nil(t, updated.WalletBearerToken)

	currentFlow, err := store.GetFlowByType(ctx, wf.TenantID, models.WorkflowTypeIssuerSchema)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusError, currentFlow.Status)
	require.NotNil(t, currentFlow.ErrorStatusDetail)
	assert.Contains(t, *currentFlow.ErrorStatusDetail, "txn-schema-1")

	entries, err := store.ListTimeline(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.FlowStatusError, entries[2].Status)
	require.NotNil(t, entries[2].ErrorStatusDetail)
}

func TestRunStep_RefusalOfUnknownTransactionIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)
	inProgress, err := driver.RunStep(ctx, wf, nil)
	require.NoError(t, err)

	updated, err := driver.RunStep(ctx, inProgress, &Event{
		Topic: TopicEndorseTransaction,
		Endorse: &EndorseTransactionPayload{
			TransactionID: "txn-someone-elses",
			State:         TxnStateRefused,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStateInProgress, updated.WorkflowState)
}

func TestRunStep_StaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := NewDriver(store, agent, &NoOpLogger{})

	wf, _, _ := seedWorkflow(t, store)

	// a concurrent trigger already advanced the row
	_, err := store.UpdateWorkflow(ctx, wf.ID, wf.Version, models.TenantWorkflowPatch{
		WorkflowState:     models.WorkflowStatePending,
		WalletBearerToken: wf.WalletBearerToken,
	})
	require.NoError(t, err)

	_, err = driver.RunStep(ctx, wf, nil)
	require.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, 0, agent.schemaCalls)
}
