package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tenant-broker/backend/internal/protocols/connection"
	"tenant-broker/backend/internal/repository"
	"tenant-broker/backend/internal/tenant"
	"tenant-broker/backend/internal/workflow"
)

// webhook outcomes recorded on the event counter.
const (
	outcomeProcessed = "processed"
	outcomeIgnored   = "ignored"
	outcomeMalformed = "malformed"
	outcomeFailed    = "failed"
)

// HandleWebhook ingests one webhook notification from the agent. Events that
// correlate to a tracked workflow resume it; connection protocol events are
// routed to the invitation processor; everything else is acknowledged and
// ignored so unknown topics never bounce.
// (POST /api/v1/webhook)
func (s *Server) HandleWebhook(c echo.Context) error {
	ctx := c.Request().Context()

	t, ok := tenant.FromContext(ctx)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "tenant not found in context")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}

	ev, err := workflow.ParseEvent(body)
	if err != nil {
		s.countWebhook(c, "unknown", outcomeMalformed)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	switch ev.Topic {
	case workflow.TopicEndorseTransaction:
		return s.handleEndorseEvent(c, ev)
	case workflow.TopicConnections:
		return s.handleConnectionEvent(c, t.ID, ev)
	default:
		s.Logger.Info("ignoring webhook topic", "topic", ev.Topic)
		s.countWebhook(c, ev.Topic, outcomeIgnored)
		return c.NoContent(http.StatusOK)
	}
}

// handleEndorseEvent correlates the acknowledgement to a workflow and runs
// one step of it.
func (s *Server) handleEndorseEvent(c echo.Context, ev *workflow.Event) error {
	ctx := c.Request().Context()

	workflowID, err := workflow.FindWorkflowID(ctx, s.Store, ev)
	if err != nil {
		s.countWebhook(c, ev.Topic, outcomeFailed)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if workflowID == "" {
		// a transaction created outside this service
		s.countWebhook(c, ev.Topic, outcomeIgnored)
		return c.NoContent(http.StatusOK)
	}

	wf, err := s.Store.GetWorkflow(ctx, workflowID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.countWebhook(c, ev.Topic, outcomeIgnored)
			return c.NoContent(http.StatusOK)
		}
		s.countWebhook(c, ev.Topic, outcomeFailed)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if _, err := s.Driver.RunStep(ctx, wf, ev); err != nil {
		s.countWebhook(c, ev.Topic, outcomeFailed)
		switch {
		case errors.Is(err, repository.ErrConflict):
			// a concurrent trigger won the race; the agent redelivers
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, workflow.ErrMalformedEvent):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	s.countWebhook(c, ev.Topic, outcomeProcessed)
	return c.NoContent(http.StatusOK)
}

// connectionEvent is the payload shape of connections topic notifications.
type connectionEvent struct {
	connection.Message
	State string `json:"state"`
}

// handleConnectionEvent routes a connection protocol message to the matching
// processor phase.
func (s *Server) handleConnectionEvent(c echo.Context, tenantID string, ev *workflow.Event) error {
	ctx := c.Request().Context()

	var payload connectionEvent
	if err := json.Unmarshal(ev.RawPayload, &payload); err != nil {
		s.countWebhook(c, ev.Topic, outcomeMalformed)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid connections payload: "+err.Error())
	}

	var err error
	switch payload.State {
	case "request":
		err = s.Processor.OnRequest(ctx, tenantID, &payload.Message)
	case "response":
		err = s.Processor.OnResponse(ctx, tenantID, &payload.Message)
	default:
		s.Logger.Info("ignoring connection state", "state", payload.State)
		s.countWebhook(c, ev.Topic, outcomeIgnored)
		return c.NoContent(http.StatusOK)
	}
	if err != nil {
		s.countWebhook(c, ev.Topic, outcomeFailed)
		if errors.Is(err, connection.ErrMalformedMessage) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	s.countWebhook(c, ev.Topic, outcomeProcessed)
	return c.NoContent(http.StatusOK)
}

func (s *Server) countWebhook(c echo.Context, topic, outcome string) {
	if s.webhookEvents == nil {
		return
	}
	s.webhookEvents.Add(c.Request().Context(), 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome),
	))
}
