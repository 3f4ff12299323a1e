// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context: the active OTEL
// span (if any) plus whichever of workflow id / stage / run id the caller
// has attached, so every log line a stage worker or orchestrator activity
// emits can be joined back to the workflow execution it belongs to without
// threading those values through every function signature.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if workflowID := WorkflowIDFromContext(ctx); workflowID != "" {
		fields = append(fields, zap.String("workflowId", workflowID))
	}
	if stage := StageFromContext(ctx); stage != "" {
		fields = append(fields, zap.String("stage", stage))
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		fields = append(fields, zap.String("runId", runID))
	}

	return fields
}

// Context key types
type workflowIDCtxKey struct{}
type stageCtxKey struct{}
type runIDCtxKey struct{}

// Validation constants
const maxIDLen = 128

// idPattern allows alphanumeric, hyphen, underscore, and colon (stage job
// names like "evaluate_policy" and workflow ids like "wf-1234" both fit).
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)

// validateID validates a workflow id, stage name, or run id before it is
// attached to a context, the same defense-in-depth the teacher's tenant
// validation applied to its own correlation fields: a malformed value
// here would otherwise propagate into every structured log line and audit
// event this context touches.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore, colon)", name)
	}
	return nil
}

// WorkflowIDFromContext extracts the workflow id from context.
func WorkflowIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(workflowIDCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithWorkflowID attaches the workflow id a stage worker or orchestrator
// activity is acting on, so every log line emitted through ctx carries it.
// Panics if workflowID is empty or contains invalid characters.
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	if err := validateID(workflowID, "workflowID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, workflowIDCtxKey{}, workflowID)
}

// StageFromContext extracts the current stage name from context.
func StageFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(stageCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithStage attaches the stage name (e.g. "patches", "policy") a job is
// processing. Panics if stage is empty or contains invalid characters.
func WithStage(ctx context.Context, stage string) context.Context {
	if err := validateID(stage, "stage"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, stageCtxKey{}, stage)
}

// RunIDFromContext extracts the run id from context.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDCtxKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRunID attaches the runrecorder run id a stage invocation started.
// Panics if runID is empty or contains invalid characters.
func WithRunID(ctx context.Context, runID string) context.Context {
	if err := validateID(runID, "runID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, runIDCtxKey{}, runID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a default nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
