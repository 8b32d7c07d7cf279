package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-broker/backend/internal/acapy"
	"tenant-broker/backend/internal/repository/inmem"
	"tenant-broker/backend/internal/workflow"
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
	schemaTxn string
	schemaErr error
}

func (a *fakeAgent) PostSchema(ctx context.Context, token string, req acapy.SchemaSendRequest) (*acapy.TxnResponse, error) {
	if a.schemaErr != nil {
		return nil, a.schemaErr
	}
	return &acapy.TxnResponse{TransactionID: a.schemaTxn}, nil
}

func (a *fakeAgent) PostCredentialDefinition(ctx context.Context, token string, req acapy.CredentialDefinitionSendRequest) (*acapy.TxnResponse, error) {
	return &acapy.TxnResponse{TransactionID: "txn-cd-1"}, nil
}

func seedPendingWorkflow(t *testing.T, store *inmem.Store) *models.TenantWorkflow {
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
	require.NoError(t, store.CreateTenantSchema(ctx, &models.TenantSchema{
		ID:            uuid.New().String(),
		TenantID:      wf.TenantID,
		WorkflowID:    wf.ID,
		SchemaName:    "person",
		SchemaVersion: "1.0",
		SchemaAttrs:   []string{"name"},
		CredDefTag:    "default",
		SchemaState:   models.WorkflowStatePending,
		CredDefState:  models.WorkflowStatePending,
	}))
	return wf
}

func TestSweep_ResumesPendingWorkflows(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaTxn: "txn-schema-1"}
	driver := workflow.NewDriver(store, agent, &NoOpLogger{})
	r := NewResweeper(store, driver, &NoOpLogger{})

	first := seedPendingWorkflow(t, store)
	second := seedPendingWorkflow(t, store)

	r.Sweep()

	for _, wf := range []*models.TenantWorkflow{first, second} {
		got, err := store.GetWorkflow(ctx, wf.ID)
		require.NoError(t, err)
		assert.Equal(t, models.WorkflowStateInProgress, got.WorkflowState)
	}

	pending, err := store.ListWorkflowsByState(ctx, models.WorkflowStatePending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSweep_FailedStepStaysPending(t *testing.T) {
	ctx := context.Background()
	store := inmem.New()
	agent := &fakeAgent{schemaErr: errors.New("agent unavailable")}
	driver := workflow.NewDriver(store, agent, &NoOpLogger{})
	r := NewResweeper(store, driver, &NoOpLogger{})

	wf := seedPendingWorkflow(t, store)

	r.Sweep()

	got, err := store.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatePending, got.WorkflowState)
}
