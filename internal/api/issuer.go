// Package api contains the HTTP handlers for the tenant broker service
package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"tenant-broker/backend/internal/protocols/connection"
	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/internal/tenant"
	"tenant-broker/backend/internal/workflow"
	"tenant-broker/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Server holds the dependencies for the API server.
type Server struct {
	Store     repository.Store
	Driver    *workflow.Driver
	Processor *connection.ReusableInvitationProcessor
	Logger    Logger

	webhookEvents metric.Int64Counter
}

// NewServer creates a new Server.
func NewServer(store repository.Store, driver *workflow.Driver, processor *connection.ReusableInvitationProcessor, logger Logger) *Server {
	meter := otel.Meter("tenant-broker/backend/internal/api")
	webhookEvents, err := meter.Int64Counter("webhook_events_total",
		metric.WithDescription("Inbound webhook events by topic and outcome"))
	if err != nil {
		logger.Error("failed to create webhook counter", "error", err)
	}
	return &Server{
		Store:         store,
		Driver:        driver,
		Processor:     processor,
		Logger:        logger,
		webhookEvents: webhookEvents,
	}
}

// RegisterRoutes mounts the tenant-facing API on the given group.
func (s *Server) RegisterRoutes(g *echo.Group) {
	g.POST("/issuer/schemas", s.CreateSchemaWorkflow)
	g.GET("/issuer/schemas/:workflow_id", s.GetSchemaWorkflow)
	g.GET("/issuer/flows", s.ListFlows)
	g.GET("/issuer/flows/:id/timeline", s.GetFlowTimeline)
	g.POST("/webhook", s.HandleWebhook)
}

// CreateSchemaRequest is the body of POST /issuer/schemas.
type CreateSchemaRequest struct {
	SchemaName    string   `json:"schema_name"`
	SchemaVersion string   `json:"schema_version"`
	Attributes    []string `json:"attributes"`
	CredDefTag    string   `json:"cred_def_tag"`
}

// SchemaWorkflowResponse pairs a workflow instance with its artifact.
type SchemaWorkflowResponse struct {
	Workflow *models.TenantWorkflow `json:"workflow"`
	Schema   *models.TenantSchema   `json:"schema"`
}

// CreateSchemaWorkflow creates the workflow, artifact and flow records for a
// schema publication and kicks the first step.
// (POST /api/v1/issuer/schemas)
func (s *Server) CreateSchemaWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	t, ok := tenant.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "tenant not found in context")
	}

	var req CreateSchemaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.SchemaName == "" || req.SchemaVersion == "" || len(req.Attributes) == 0 || req.CredDefTag == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "schema_name, schema_version, attributes and cred_def_tag are required")
	}
	walletToken := c.Request().Header.Get("X-Wallet-Token")
	if walletToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "X-Wallet-Token header is required")
	}

	wf := &models.TenantWorkflow{
		ID:                uuid.New().String(),
		TenantID:          t.ID,
		WorkflowType:      models.WorkflowTypeIssuerSchema,
		WorkflowState:     models.WorkflowStatePending,
		WalletBearerToken: &walletToken,
	}
	schema := &models.TenantSchema{
		ID:            uuid.New().String(),
		TenantID:      t.ID,
		WorkflowID:    wf.ID,
		SchemaName:    req.SchemaName,
		SchemaVersion: req.SchemaVersion,
		SchemaAttrs:   req.Attributes,
		CredDefTag:    req.CredDefTag,
		SchemaState:   models.WorkflowStatePending,
		CredDefState:  models.WorkflowStatePending,
	}

	err := s.Store.InTx(ctx, func(repo repository.Repository) error {
		existing, err := repo.GetFlowByType(ctx, t.ID, models.WorkflowTypeIssuerSchema)
		switch {
		case err == nil:
			if existing.Status == models.FlowStatusPending || existing.Status == models.FlowStatusActive {
				return echo.NewHTTPError(http.StatusConflict, "an issuer schema workflow is already in progress")
			}
			// terminal flow record: reuse it for the new run, dropping the
			// previous run's results
			if _, err := repo.ResetFlow(ctx, existing.ID); err != nil {
				return err
			}
		case errors.Is(err, repository.ErrNotFound):
			if err := repo.CreateFlow(ctx, &models.TenantFlow{
				ID:       uuid.New().String(),
				TenantID: t.ID,
				FlowType: models.WorkflowTypeIssuerSchema,
				Status:   models.FlowStatusPending,
				State:    models.WorkflowStatePending,
			}); err != nil {
				return err
			}
		default:
			return err
		}

		if err := repo.CreateWorkflow(ctx, wf); err != nil {
			return err
		}
		return repo.CreateTenantSchema(ctx, schema)
	})
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return httpErr
		}
		if errors.Is(err, repository.ErrConflict) {
			return echo.NewHTTPError(http.StatusConflict, "a schema with this name and version already exists")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create workflow: "+err.Error())
	}

	// Kick the first step. A failed agent call leaves the workflow pending;
	// the resweeper retries it on the next tick.
	updated, err := s.Driver.RunStep(ctx, wf, nil)
	if err != nil {
		s.Logger.Warn("first workflow step failed, will be reswept", "workflow_id", wf.ID, "error", err)
		updated = wf
	}

	current, err := s.Store.GetSchemaByWorkflowID(ctx, wf.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, SchemaWorkflowResponse{Workflow: updated, Schema: current})
}

// GetSchemaWorkflow returns a workflow instance and its artifact.
// (GET /api/v1/issuer/schemas/:workflow_id)
func (s *Server) GetSchemaWorkflow(c echo.Context) error {
	ctx := c.Request().Context()

	t, ok := tenant.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "tenant not found in context")
	}

	wf, err := s.Store.GetWorkflow(ctx, c.Param("workflow_id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if wf.TenantID != t.ID {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}

	schema, err := s.Store.GetSchemaByWorkflowID(ctx, wf.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, SchemaWorkflowResponse{Workflow: wf, Schema: schema})
}

// ListFlows returns the tenant's flow records.
// (GET /api/v1/issuer/flows)
func (s *Server) ListFlows(c echo.Context) error {
	ctx := c.Request().Context()

	t, ok := tenant.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "tenant not found in context")
	}

	flows, err := s.Store.ListFlows(ctx, t.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, flows)
}

// GetFlowTimeline returns the audit timeline of one flow record.
// (GET /api/v1/issuer/flows/:id/timeline)
func (s *Server) GetFlowTimeline(c echo.Context) error {
	ctx := c.Request().Context()

	t, ok := tenant.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "tenant not found in context")
	}

	flows, err := s.Store.ListFlows(ctx, t.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	id := c.Param("id")
	owned := false
	for _, f := range flows {
		if f.ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return echo.NewHTTPError(http.StatusNotFound, "flow not found")
	}

	entries, err := s.Store.ListTimeline(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, entries)
}
