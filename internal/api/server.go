package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/orchestrator"
	"github.com/fyrsmithlabs/workflowforge/internal/store"
	wf "github.com/fyrsmithlabs/workflowforge/internal/workflow"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

const (
	// MaxFeatureGoalLength bounds the request body the create-workflow
	// endpoint accepts.
	MaxFeatureGoalLength = 10000
	// MaxCommentLength bounds stage-feedback text recorded via
	// RequestChanges.
	MaxCommentLength = 10000
)

// Server provides the HTTP surface onto the orchestrator: starting
// workflow executions and signaling running ones, backed directly by the
// Store for reads (§6's inbound events are a thin translation layer, not a
// second source of truth).
type Server struct {
	echo      *echo.Echo
	store     store.Store
	temporal  client.Client
	logger    *zap.Logger
	config    *Config
	metrics   *HTTPMetrics
}

// Config holds HTTP server configuration.
type Config struct {
	Host             string
	Port             int
	TaskQueue        string
	WorkflowIDPrefix string
}

// NewServer creates the API server and registers its routes.
func NewServer(st store.Store, temporal client.Client, logger *zap.Logger, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if temporal == nil {
		return nil, fmt.Errorf("temporal client cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080, TaskQueue: orchestrator.TaskQueue}
	}
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = orchestrator.TaskQueue
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	httpMetrics := NewHTTPMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(httpMetrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		store:    st,
		temporal: temporal,
		logger:   logger,
		config:   cfg,
		metrics:  httpMetrics,
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/workflows", s.handleCreateWorkflow)
	v1.GET("/workflows/:id", s.handleGetWorkflow)
	v1.GET("/workflows/:id/artifacts/:kind", s.handleGetArtifact)
	v1.POST("/workflows/:id/stages/:stage/approve", s.handleApproveStage)
	v1.POST("/workflows/:id/stages/:stage/reject", s.handleRejectStage)
	v1.POST("/workflows/:id/stages/:stage/changes", s.handleRequestChanges)
}

// handleHealth reports store and Temporal-client connectivity; contextd's
// handleHealth reports vectorstore metadata integrity instead, since that
// subsystem has no equivalent here.
func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	resp := HealthResponse{Status: "ok", Store: "ok", Temporal: "ok"}

	if _, err := s.store.GetWorkflow(ctx, "__healthcheck__"); err != nil && err != store.ErrNotFound {
		resp.Store = "unavailable"
		resp.Status = "degraded"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, resp)
}

// handleCreateWorkflow starts a new OrchestratorWorkflow execution (§6,
// "CreateWorkflow{featureGoal, businessJustification, repos[]} →
// Orchestrator enqueues E_WORKFLOW_CREATED"). The workflow row itself is
// created by CreateWorkflowActivity inside OrchestratorWorkflow, not here.
func (s *Server) handleCreateWorkflow(c echo.Context) error {
	var req CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid create-workflow request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.FeatureGoal == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "featureGoal is required")
	}
	if len(req.FeatureGoal) > MaxFeatureGoalLength {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("featureGoal exceeds maximum length of %d characters", MaxFeatureGoalLength))
	}
	if len(req.Repos) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "at least one repo is required")
	}
	for _, r := range req.Repos {
		if r.Owner == "" || r.Name == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "each repo requires an owner and a name")
		}
	}

	workflowID := fmt.Sprintf("%s-%s", s.config.WorkflowIDPrefix, uuid.New().String())
	if s.config.WorkflowIDPrefix == "" {
		workflowID = uuid.New().String()
	}

	repos := make([]orchestrator.RepoInput, len(req.Repos))
	for i, r := range req.Repos {
		role := r.Role
		if role == "" {
			role = "primary"
		}
		repos[i] = orchestrator.RepoInput{Owner: r.Owner, Name: r.Name, BaseBranch: r.BaseBranch, Role: role}
	}

	ctx := c.Request().Context()
	_, err := s.temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: s.config.TaskQueue,
	}, orchestrator.WorkflowName, orchestrator.CreateWorkflowInput{
		WorkflowID:            workflowID,
		FeatureGoal:           req.FeatureGoal,
		BusinessJustification: req.BusinessJustification,
		Repos:                 repos,
	})
	if err != nil {
		s.logger.Error("failed to start orchestrator workflow", zap.Error(err), zap.String("workflow_id", workflowID))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create workflow")
	}

	s.logger.Info("created workflow", zap.String("workflow_id", workflowID))
	return c.JSON(http.StatusAccepted, CreateWorkflowResponse{WorkflowID: workflowID})
}

func (s *Server) handleGetWorkflow(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	wf, err := s.store.GetWorkflow(ctx, id)
	if err == store.ErrNotFound || wf == nil {
		return echo.NewHTTPError(http.StatusNotFound, "workflow not found")
	}
	if err != nil {
		s.logger.Error("failed to load workflow", zap.Error(err), zap.String("workflow_id", id))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load workflow")
	}

	return c.JSON(http.StatusOK, WorkflowResponse{
		ID:                    wf.ID,
		State:                 wf.State,
		Stage:                 wf.Stage,
		StageStatus:           string(wf.StageStatus),
		FeatureGoal:           wf.FeatureGoal,
		BusinessJustification: wf.BusinessJustification,
		Repos:                 wf.Repos,
		Feedback:              wf.Feedback,
		BaseSha:               wf.BaseSha,
	})
}

func (s *Server) handleGetArtifact(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	kind := domain.ArtifactKind(c.Param("kind"))

	artifact, err := s.store.LatestArtifact(ctx, id, kind)
	if err != nil {
		s.logger.Error("failed to load artifact", zap.Error(err), zap.String("workflow_id", id), zap.String("kind", string(kind)))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to load artifact")
	}
	if artifact == nil {
		return echo.NewHTTPError(http.StatusNotFound, "artifact not found")
	}

	return c.JSON(http.StatusOK, ArtifactResponse{
		Kind:            artifact.Kind,
		Content:         artifact.Content,
		ContentSha:      artifact.ContentSha,
		ArtifactVersion: artifact.ArtifactVersion,
	})
}

// handleApproveStage implements §6's ApproveStage: record an Approval,
// then signal E_STAGE_APPROVED (or E_APPROVAL_RECORDED for the patches
// gate, which the Write Gate keys its check on).
func (s *Server) handleApproveStage(c echo.Context) error {
	var req StageActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	id := c.Param("id")
	stage := domain.Stage(c.Param("stage"))
	ctx := c.Request().Context()

	kind := domain.ApprovalStageApproval
	if stage == domain.StagePatches {
		kind = domain.ApprovalApplyPatches
	}

	if err := s.store.InsertApproval(ctx, domain.Approval{
		ID:         uuid.New().String(),
		WorkflowID: id,
		Stage:      stage,
		Kind:       kind,
		Reason:     req.Reason,
		CreatedAt:  time.Now(),
	}); err != nil {
		s.logger.Error("failed to record approval", zap.Error(err), zap.String("workflow_id", id), zap.String("stage", string(stage)))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to record approval")
	}

	event := wf.Event{Type: wf.EApprovalRecorded}
	if kind == domain.ApprovalStageApproval {
		event = wf.Event{Type: wf.EStageApproved, Stage: stage, NextStage: stage.Next()}
	}

	if err := s.signal(ctx, id, event); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// handleRejectStage implements §6's RejectStage: signal
// E_STAGE_REJECTED without recording an Approval (a rejection is not a
// forward-consumable decision).
func (s *Server) handleRejectStage(c echo.Context) error {
	var req StageActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Reason == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "reason is required")
	}

	id := c.Param("id")
	stage := domain.Stage(c.Param("stage"))

	if err := s.signal(c.Request().Context(), id, wf.Event{
		Type:   wf.EStageRejected,
		Stage:  stage,
		Reason: req.Reason,
	}); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

// handleRequestChanges implements §6's RequestChanges: signal
// E_STAGE_CHANGES_REQUESTED; the orchestrator's transition decision is
// what records the comment as workflow feedback (PersistDecisionActivity),
// not this handler.
func (s *Server) handleRequestChanges(c echo.Context) error {
	var req StageActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Comment == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "comment is required")
	}
	if len(req.Comment) > MaxCommentLength {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("comment exceeds maximum length of %d characters", MaxCommentLength))
	}

	id := c.Param("id")
	stage := domain.Stage(c.Param("stage"))

	if err := s.signal(c.Request().Context(), id, wf.Event{
		Type:    wf.EStageChangesRequested,
		Stage:   stage,
		Comment: req.Comment,
	}); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (s *Server) signal(ctx context.Context, workflowID string, event wf.Event) error {
	if err := s.temporal.SignalWorkflow(ctx, workflowID, "", orchestrator.SignalEvent, orchestrator.EventSignal{Event: event}); err != nil {
		s.logger.Error("failed to signal orchestrator workflow", zap.Error(err), zap.String("workflow_id", workflowID), zap.String("event", string(event.Type)))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to signal workflow")
	}
	return nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
