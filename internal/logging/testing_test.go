package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger_AssertLoggedAndAssertField(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithWorkflowID(context.Background(), "wf-1")

	tl.Info(ctx, "job enqueued", zap.String("stage", "ingest"))

	tl.AssertLogged(t, zapcore.InfoLevel, "job enqueued")
	tl.AssertField(t, "job enqueued", "stage", "ingest")
	tl.AssertField(t, "job enqueued", "workflowId", "wf-1")
}

func TestTestLogger_AssertNotLogged(t *testing.T) {
	tl := NewTestLogger()
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "should not exist")
}

func TestTestLogger_AssertNoSecretsPassesForSafeFields(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "safe", zap.String("workflowId", "wf-1"))
	tl.AssertNoSecrets(t)
}

func TestTestLogger_AllReturnsEveryObservedEntry(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "first")
	tl.Info(context.Background(), "second")

	assert.Len(t, tl.All(), 2)
}
