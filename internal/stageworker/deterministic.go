package stageworker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/fyrsmithlabs/workflowforge/internal/logging"
)

// DeterministicFn implements one non-LLM stage job: ingest, policy
// evaluation, patch application, and the sandbox/pr/done placeholders.
// These jobs do not produce a versioned Artifact (§3 enumerates exactly
// five ArtifactKinds, none of which are "ingest" or "policy"), so they run
// through DeterministicWorker instead of Worker.
type DeterministicFn func(ctx context.Context, job Job) (summary map[string]interface{}, err error)

// DeterministicWorker implements the same §4.4 contract as Worker --
// start a run, mark processing, run the job, mark ready, append an event,
// complete the run, publish completion -- for stages whose output is not
// a stored Artifact.
type DeterministicWorker struct {
	Stage  domain.Stage
	Store  Store
	Runs   RunRecorder
	Pub    Publisher
	Run    DeterministicFn
	Logger *zap.Logger
	Clock  func() time.Time
	tracer trace.Tracer
}

func NewDeterministicWorker(stage domain.Stage, store Store, runs RunRecorder, pub Publisher, run DeterministicFn, logger *zap.Logger) *DeterministicWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeterministicWorker{Stage: stage, Store: store, Runs: runs, Pub: pub, Run: run, Logger: logger, Clock: time.Now, tracer: otel.Tracer(instrumentationName)}
}

func (w *DeterministicWorker) Process(ctx context.Context, job Job) error {
	ctx, span := w.tracer.Start(ctx, fmt.Sprintf("stageworker.%s.process", w.Stage), trace.WithAttributes(
		attribute.String("workflow.id", job.WorkflowID),
		attribute.String("stage", string(w.Stage)),
	))
	defer span.End()
	ctx = logging.WithStage(logging.WithWorkflowID(ctx, job.WorkflowID), string(w.Stage))

	wf, err := w.Store.GetWorkflow(ctx, job.WorkflowID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return WrapStageError("load_workflow", err)
	}
	if wf == nil {
		err := NewStageError("load_workflow", SeverityCritical, fmt.Errorf("workflow %s not found", job.WorkflowID), "")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	started := w.Clock()
	runID, err := w.Runs.StartRun(ctx, job.WorkflowID, string(w.Stage), job.Inputs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return WrapStageError("start_run", err)
	}
	ctx = logging.WithRunID(ctx, runID)

	if err := w.Store.SetStageStatus(ctx, job.WorkflowID, domain.StageStatusProcessing); err != nil {
		return w.fail(ctx, span, job, runID, started, WrapStageError("set_stage_status_processing", err))
	}

	summary, err := w.Run(ctx, job)
	if err != nil {
		return w.fail(ctx, span, job, runID, started, err)
	}

	if err := w.Store.SetStageStatus(ctx, job.WorkflowID, domain.StageStatusReady); err != nil {
		return w.fail(ctx, span, job, runID, started, WrapStageError("set_stage_status_ready", err))
	}

	if err := w.Store.AppendEvent(ctx, domain.WorkflowEvent{
		WorkflowID: job.WorkflowID,
		Type:       fmt.Sprintf("worker.%s.completed", w.Stage),
		Payload:    summary,
		CreatedAt:  w.Clock(),
	}); err != nil {
		w.Logger.Warn("failed to append completion event", zap.Error(err), zap.String("stage", string(w.Stage)))
	}

	if err := w.Runs.CompleteRun(ctx, runID, started, summary, domain.Usage{}); err != nil {
		w.Logger.Warn("failed to complete run record", zap.Error(err), zap.String("runId", runID))
	}

	if err := w.Pub.PublishJobCompleted(ctx, job.WorkflowID, w.Stage, summary); err != nil {
		err = WrapStageError("publish_job_completed", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// fail mirrors Worker.fail exactly (§4.4 failure path); duplicated rather
// than shared because the two Process methods have no other code in
// common and a shared helper would need to take both as interfaces for no
// real reuse benefit.
func (w *DeterministicWorker) fail(ctx context.Context, span trace.Span, job Job, runID string, started time.Time, cause error) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	ctxFields := logging.ContextFields(ctx)
	if err := w.Store.SetStageStatus(ctx, job.WorkflowID, domain.StageStatusBlocked); err != nil {
		w.Logger.Warn("failed to set stage blocked", append(ctxFields, zap.Error(err))...)
	}
	if err := w.Runs.FailRun(ctx, runID, started, cause.Error()); err != nil {
		w.Logger.Warn("failed to record run failure", append(ctxFields, zap.Error(err))...)
	}
	if err := w.Store.AppendEvent(ctx, domain.WorkflowEvent{
		WorkflowID: job.WorkflowID,
		Type:       fmt.Sprintf("worker.%s.failed", w.Stage),
		Payload:    map[string]interface{}{"error": cause.Error()},
		CreatedAt:  w.Clock(),
	}); err != nil {
		w.Logger.Warn("failed to append failure event", zap.Error(err))
	}
	if err := w.Pub.PublishJobFailed(ctx, job.WorkflowID, w.Stage, cause.Error()); err != nil {
		w.Logger.Warn("failed to publish job failed event", zap.Error(err))
	}
	return cause
}
