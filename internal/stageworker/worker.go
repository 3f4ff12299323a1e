// Package stageworker implements the worker contract every stage binds to
// (§4.4): load the workflow, start a run, produce an artifact, version and
// persist it, and publish the outcome back to the orchestrator queue.
// Only artifact production (artifact.go) differs per stage; this file is
// the shared harness every stage's Process function calls into.
package stageworker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
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

const instrumentationName = "github.com/fyrsmithlabs/workflowforge/internal/stageworker"

// Store is the narrow persistence surface the worker harness needs. The
// concrete implementation lives in internal/store.
type Store interface {
	GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error)
	SetStageStatus(ctx context.Context, workflowID string, status domain.StageStatus) error
	LatestArtifact(ctx context.Context, workflowID string, kind domain.ArtifactKind) (*domain.Artifact, error)
	InsertArtifact(ctx context.Context, artifact domain.Artifact) error
	AppendEvent(ctx context.Context, event domain.WorkflowEvent) error
}

// RunRecorder is the subset of runrecorder.Recorder the harness calls.
type RunRecorder interface {
	StartRun(ctx context.Context, workflowID, jobName string, inputs map[string]interface{}) (string, error)
	CompleteRun(ctx context.Context, runID string, started time.Time, outputs map[string]interface{}, usage domain.Usage) error
	FailRun(ctx context.Context, runID string, started time.Time, errorMsg string) error
}

// Publisher sends an event back to the orchestrator's event queue.
type Publisher interface {
	PublishJobCompleted(ctx context.Context, workflowID string, stage domain.Stage, result map[string]interface{}) error
	PublishJobFailed(ctx context.Context, workflowID string, stage domain.Stage, errMsg string) error
	// PublishPolicyEvaluated signals the dedicated E_POLICY_EVALUATED event
	// the transition function's global BLOCKED_POLICY override and
	// hasPolicyBeenEvaluated derivation both key off of (§4.1, §4.3); the
	// policy stage worker emits this in addition to the generic job
	// completion event.
	PublishPolicyEvaluated(ctx context.Context, workflowID string, hasBlocking bool) error
}

// Job is the payload a stage's queue delivers.
type Job struct {
	WorkflowID string
	Stage      domain.Stage
	Inputs     map[string]interface{}
}

// Producer builds the artifact content for one stage invocation; it is the
// only piece that varies between stages (ingest vs. feasibility vs.
// patches, etc). It returns canonical JSON content plus a result summary
// for the event/run record, and may report LLM usage.
type Producer func(ctx context.Context, job Job, priorArtifact *domain.Artifact) (content string, summary map[string]interface{}, usage domain.Usage, err error)

// Worker is the generic harness; NewWorker binds it to one stage, one
// artifact kind, and one Producer.
type Worker struct {
	Stage   domain.Stage
	Kind    domain.ArtifactKind
	Store   Store
	Runs    RunRecorder
	Pub     Publisher
	Produce Producer
	Logger  *zap.Logger
	Clock   func() time.Time
	tracer  trace.Tracer
}

func NewWorker(stage domain.Stage, kind domain.ArtifactKind, store Store, runs RunRecorder, pub Publisher, produce Producer, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{Stage: stage, Kind: kind, Store: store, Runs: runs, Pub: pub, Produce: produce, Logger: logger, Clock: time.Now, tracer: otel.Tracer(instrumentationName)}
}

// Process implements the full §4.4 contract for a single job.
func (w *Worker) Process(ctx context.Context, job Job) error {
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

	prior, err := w.Store.LatestArtifact(ctx, job.WorkflowID, w.Kind)
	if err != nil {
		return w.fail(ctx, span, job, runID, started, WrapStageError("load_prior_artifact", err))
	}

	content, summary, usage, err := w.Produce(ctx, job, prior)
	if err != nil {
		return w.fail(ctx, span, job, runID, started, err)
	}

	artifact := nextArtifact(job.WorkflowID, w.Kind, content, prior)
	if err := w.Store.InsertArtifact(ctx, artifact); err != nil {
		return w.fail(ctx, span, job, runID, started, WrapStageError("persist_artifact", err))
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

	if err := w.Runs.CompleteRun(ctx, runID, started, summary, usage); err != nil {
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

// fail implements the §4.4 failure path shared by every failure point in
// steps 4-6: mark the stage blocked, fail the run, append a failure event,
// publish E_JOB_FAILED, and re-raise for the queue runtime's retry policy.
func (w *Worker) fail(ctx context.Context, span trace.Span, job Job, runID string, started time.Time, cause error) error {
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

func nextArtifact(workflowID string, kind domain.ArtifactKind, content string, prior *domain.Artifact) domain.Artifact {
	sum := sha256.Sum256([]byte(content))
	version := 1
	var supersedes string
	if prior != nil {
		version = prior.ArtifactVersion + 1
		supersedes = prior.ID
	}
	return domain.Artifact{
		WorkflowID:           workflowID,
		Kind:                 kind,
		Content:              content,
		ContentSha:           hex.EncodeToString(sum[:]),
		ArtifactVersion:      version,
		SupersedesArtifactID: supersedes,
	}
}
