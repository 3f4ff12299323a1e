package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/config"
	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PGStore implements Store against Postgres via pgx/v5. Every workflow
// mutation (state transitions) runs inside a transaction that opens with
// SELECT ... FOR UPDATE on the workflow row, giving the per-workflow
// exclusive lock §5 requires without a separate lock table.
type PGStore struct {
	pool *pgxpool.Pool
}

// Open connects a pgxpool using cfg.Store and verifies connectivity with a
// ping before returning.
func Open(ctx context.Context, cfg config.StoreConfig) (*PGStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN.Value())
	if err != nil {
		return nil, fmt.Errorf("store: parsing DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: opening pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: applying schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) CreateWorkflow(ctx context.Context, wf domain.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	repos, err := json.Marshal(wf.Repos)
	if err != nil {
		return fmt.Errorf("store: marshaling repos: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflows (id, state, stage, stage_status, feature_goal, business_justification, repos, feedback, base_sha, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())`,
		wf.ID, wf.State, wf.Stage, wf.StageStatus, wf.FeatureGoal, wf.BusinessJustification, repos, wf.Feedback, wf.BaseSha)
	if err != nil {
		return fmt.Errorf("store: insert workflow: %w", err)
	}
	return nil
}

func (s *PGStore) GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, state, stage, stage_status, feature_goal, business_justification, repos, feedback, base_sha, created_at, updated_at
		FROM workflows WHERE id = $1`, workflowID)
	return scanWorkflow(row)
}

func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var repos []byte
	if err := row.Scan(&wf.ID, &wf.State, &wf.Stage, &wf.StageStatus, &wf.FeatureGoal,
		&wf.BusinessJustification, &repos, &wf.Feedback, &wf.BaseSha, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: scan workflow: %w", err)
	}
	if len(repos) > 0 {
		if err := json.Unmarshal(repos, &wf.Repos); err != nil {
			return nil, fmt.Errorf("store: unmarshal repos: %w", err)
		}
	}
	return &wf, nil
}

func (s *PGStore) UpdateWorkflowState(ctx context.Context, workflowID string, state domain.State, stage domain.Stage) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflows SET state = $2, stage = COALESCE(NULLIF($3, ''), stage), updated_at = now()
		WHERE id = $1`, workflowID, state, string(stage))
	if err != nil {
		return fmt.Errorf("store: update workflow state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetStageStatus(ctx context.Context, workflowID string, status domain.StageStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE workflows SET stage_status = $2, updated_at = now() WHERE id = $1`, workflowID, status)
	if err != nil {
		return fmt.Errorf("store: set stage status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetWorkflowFeedback(ctx context.Context, workflowID, feedback string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE workflows SET feedback = $2, updated_at = now() WHERE id = $1`, workflowID, feedback)
	if err != nil {
		return fmt.Errorf("store: set workflow feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) SetBaseSha(ctx context.Context, workflowID, baseSha string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE workflows SET base_sha = $2, updated_at = now() WHERE id = $1`, workflowID, baseSha)
	if err != nil {
		return fmt.Errorf("store: set base sha: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) LatestArtifact(ctx context.Context, workflowID string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, kind, content, content_sha, artifact_version, COALESCE(supersedes_artifact_id, ''), created_at
		FROM artifacts WHERE workflow_id = $1 AND kind = $2
		ORDER BY artifact_version DESC LIMIT 1`, workflowID, kind)

	var a domain.Artifact
	if err := row.Scan(&a.ID, &a.WorkflowID, &a.Kind, &a.Content, &a.ContentSha, &a.ArtifactVersion, &a.SupersedesArtifactID, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: latest artifact: %w", err)
	}
	return &a, nil
}

func (s *PGStore) InsertArtifact(ctx context.Context, artifact domain.Artifact) error {
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO artifacts (id, workflow_id, kind, content, content_sha, artifact_version, supersedes_artifact_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), now())`,
		artifact.ID, artifact.WorkflowID, artifact.Kind, artifact.Content, artifact.ContentSha,
		artifact.ArtifactVersion, artifact.SupersedesArtifactID)
	if err != nil {
		return fmt.Errorf("store: insert artifact: %w", err)
	}
	return nil
}

func (s *PGStore) AppendEvent(ctx context.Context, event domain.WorkflowEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("store: marshal event payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_events (id, workflow_id, type, payload, created_at)
		VALUES ($1, $2, $3, $4, now())`, event.ID, event.WorkflowID, event.Type, payload)
	if err != nil {
		return fmt.Errorf("store: append event: %w", err)
	}
	return nil
}

func (s *PGStore) HasEventOfType(ctx context.Context, workflowID, eventType string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM workflow_events WHERE workflow_id = $1 AND type = $2)`,
		workflowID, eventType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: has event of type: %w", err)
	}
	return exists, nil
}

func (s *PGStore) InsertRun(ctx context.Context, run domain.WorkflowRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	inputs, err := json.Marshal(run.Inputs)
	if err != nil {
		return fmt.Errorf("store: marshal run inputs: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_runs (id, workflow_id, job_name, status, input_hash, inputs, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.WorkflowID, run.JobName, run.Status, run.InputHash, inputs, run.StartedAt)
	if err != nil {
		return fmt.Errorf("store: insert run: %w", err)
	}
	return nil
}

func (s *PGStore) UpdateRun(ctx context.Context, run domain.WorkflowRun) error {
	outputs, err := json.Marshal(run.Outputs)
	if err != nil {
		return fmt.Errorf("store: marshal run outputs: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_runs
		SET status = $2, outputs = $3, error_msg = $4, input_tokens = $5, output_tokens = $6, cost_usd = $7,
		    ended_at = $8, duration_ms = $9
		WHERE id = $1`,
		run.ID, run.Status, outputs, run.ErrorMsg, run.Usage.InputTokens, run.Usage.OutputTokens, run.Usage.CostUSD,
		run.EndedAt, run.DurationMs)
	if err != nil {
		return fmt.Errorf("store: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) FindRunsByInputHash(ctx context.Context, inputHash string) ([]domain.WorkflowRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, job_name, status, input_hash, inputs, outputs, error_msg,
		       input_tokens, output_tokens, cost_usd, started_at, ended_at, duration_ms
		FROM workflow_runs WHERE input_hash = $1`, inputHash)
	if err != nil {
		return nil, fmt.Errorf("store: find runs by input hash: %w", err)
	}
	defer rows.Close()

	var out []domain.WorkflowRun
	for rows.Next() {
		var r domain.WorkflowRun
		var inputs, outputs []byte
		if err := rows.Scan(&r.ID, &r.WorkflowID, &r.JobName, &r.Status, &r.InputHash, &inputs, &outputs,
			&r.ErrorMsg, &r.Usage.InputTokens, &r.Usage.OutputTokens, &r.Usage.CostUSD, &r.StartedAt, &r.EndedAt, &r.DurationMs); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		_ = json.Unmarshal(inputs, &r.Inputs)
		_ = json.Unmarshal(outputs, &r.Outputs)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) InsertApproval(ctx context.Context, approval domain.Approval) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approvals (id, workflow_id, stage, kind, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		approval.ID, approval.WorkflowID, approval.Stage, approval.Kind, approval.Reason)
	if err != nil {
		return fmt.Errorf("store: insert approval: %w", err)
	}
	return nil
}

func (s *PGStore) FindApproval(ctx context.Context, workflowID string, stage domain.Stage, kind domain.ApprovalKind) (*domain.Approval, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, workflow_id, stage, kind, reason, created_at
		FROM approvals WHERE workflow_id = $1 AND stage = $2 AND kind = $3
		ORDER BY created_at DESC LIMIT 1`, workflowID, stage, kind)

	var a domain.Approval
	if err := row.Scan(&a.ID, &a.WorkflowID, &a.Stage, &a.Kind, &a.Reason, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find approval: %w", err)
	}
	return &a, nil
}

func (s *PGStore) ReplacePolicyViolations(ctx context.Context, patchSetID string, violations []domain.PolicyViolation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin replace violations: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM policy_violations WHERE patch_set_id = $1`, patchSetID); err != nil {
		return fmt.Errorf("store: delete violations: %w", err)
	}
	for _, v := range violations {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO policy_violations (id, patch_set_id, rule, severity, file, line, message, evidence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			v.ID, patchSetID, v.Rule, v.Severity, v.File, v.Line, v.Message, v.Evidence); err != nil {
			return fmt.Errorf("store: insert violation: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) HasBlockingPolicyViolations(ctx context.Context, patchSetID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM policy_violations WHERE patch_set_id = $1 AND severity = $2)`,
		patchSetID, domain.SeverityBlock).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: has blocking violations: %w", err)
	}
	return exists, nil
}

func (s *PGStore) SumWorkflowUsage(ctx context.Context, workflowID string) (domain.Usage, error) {
	var u domain.Usage
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM workflow_runs WHERE workflow_id = $1`, workflowID).Scan(&u.InputTokens, &u.OutputTokens, &u.CostUSD)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("store: sum workflow usage: %w", err)
	}
	return u, nil
}

func (s *PGStore) SumUsageSince(ctx context.Context, since time.Time) (domain.Usage, error) {
	var u domain.Usage
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COALESCE(SUM(cost_usd), 0)
		FROM workflow_runs WHERE started_at >= $1`, since).Scan(&u.InputTokens, &u.OutputTokens, &u.CostUSD)
	if err != nil {
		return domain.Usage{}, fmt.Errorf("store: sum usage since: %w", err)
	}
	return u, nil
}

// WithWorkflowLock opens a transaction and takes SELECT ... FOR UPDATE on
// the workflow row, blocking until any concurrent transition on the same
// workflow commits or rolls back. fn then runs with that lock held; the
// transaction commits on success or rolls back on error. This is the
// per-workflow exclusive lock §5 requires, taken for the duration of the
// orchestrator's whole load-decide-persist cycle rather than just the
// final write, so a concurrent delivery of the same event can't read a
// stale workflow row while the first delivery is still deciding.
func (s *PGStore) WithWorkflowLock(ctx context.Context, workflowID string, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin workflow lock: %w", err)
	}
	defer tx.Rollback(ctx)

	var discard string
	if err := tx.QueryRow(ctx, `SELECT id FROM workflows WHERE id = $1 FOR UPDATE`, workflowID).Scan(&discard); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: lock workflow: %w", err)
	}

	if err := fn(ctx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
