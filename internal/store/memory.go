package store

import (
	"context"
	"sync"
	"time"

	"github.com/fyrsmithlabs/workflowforge/internal/domain"
	"github.com/google/uuid"
)

// MemStore is an in-memory Store used by tests and the stub deployment
// profile (when STORE_DSN is empty). All state lives in process memory and
// is lost on restart; WithWorkflowLock uses a per-workflow mutex rather than
// a database-level SELECT ... FOR UPDATE.
type MemStore struct {
	mu sync.Mutex

	workflows  map[string]*domain.Workflow
	artifacts  map[string][]domain.Artifact // key: workflowID+"/"+kind
	events     map[string][]domain.WorkflowEvent
	runs       map[string]*domain.WorkflowRun
	approvals  map[string][]domain.Approval
	violations map[string][]domain.PolicyViolation // key: patchSetID

	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		workflows:  make(map[string]*domain.Workflow),
		artifacts:  make(map[string][]domain.Artifact),
		events:     make(map[string][]domain.WorkflowEvent),
		runs:       make(map[string]*domain.WorkflowRun),
		approvals:  make(map[string][]domain.Approval),
		violations: make(map[string][]domain.PolicyViolation),
		locks:      make(map[string]*sync.Mutex),
		now:        time.Now,
	}
}

func artifactKey(workflowID string, kind domain.ArtifactKind) string {
	return workflowID + "/" + string(kind)
}

func (m *MemStore) CreateWorkflow(ctx context.Context, wf domain.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = m.now()
	}
	wf.UpdatedAt = wf.CreatedAt
	cp := wf
	m.workflows[wf.ID] = &cp
	return nil
}

func (m *MemStore) GetWorkflow(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[workflowID]
	if !ok {
		return nil, nil
	}
	cp := *wf
	return &cp, nil
}

func (m *MemStore) UpdateWorkflowState(ctx context.Context, workflowID string, state domain.State, stage domain.Stage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[workflowID]
	if !ok {
		return ErrNotFound
	}
	wf.State = state
	if stage != "" {
		wf.Stage = stage
	}
	wf.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) SetStageStatus(ctx context.Context, workflowID string, status domain.StageStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[workflowID]
	if !ok {
		return ErrNotFound
	}
	wf.StageStatus = status
	wf.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) SetWorkflowFeedback(ctx context.Context, workflowID, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[workflowID]
	if !ok {
		return ErrNotFound
	}
	wf.Feedback = feedback
	wf.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) SetBaseSha(ctx context.Context, workflowID, baseSha string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[workflowID]
	if !ok {
		return ErrNotFound
	}
	wf.BaseSha = baseSha
	wf.UpdatedAt = m.now()
	return nil
}

func (m *MemStore) LatestArtifact(ctx context.Context, workflowID string, kind domain.ArtifactKind) (*domain.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.artifacts[artifactKey(workflowID, kind)]
	if len(list) == 0 {
		return nil, nil
	}
	latest := list[0]
	for _, a := range list[1:] {
		if a.ArtifactVersion > latest.ArtifactVersion {
			latest = a
		}
	}
	cp := latest
	return &cp, nil
}

func (m *MemStore) InsertArtifact(ctx context.Context, artifact domain.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = m.now()
	}
	key := artifactKey(artifact.WorkflowID, artifact.Kind)
	m.artifacts[key] = append(m.artifacts[key], artifact)
	return nil
}

func (m *MemStore) AppendEvent(ctx context.Context, event domain.WorkflowEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = m.now()
	}
	m.events[event.WorkflowID] = append(m.events[event.WorkflowID], event)
	return nil
}

func (m *MemStore) HasEventOfType(ctx context.Context, workflowID, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events[workflowID] {
		if e.Type == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemStore) InsertRun(ctx context.Context, run domain.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := run
	m.runs[run.ID] = &cp
	return nil
}

func (m *MemStore) UpdateRun(ctx context.Context, run domain.WorkflowRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	cp := run
	m.runs[run.ID] = &cp
	return nil
}

func (m *MemStore) FindRunsByInputHash(ctx context.Context, inputHash string) ([]domain.WorkflowRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WorkflowRun
	for _, r := range m.runs {
		if r.InputHash == inputHash {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *MemStore) SumWorkflowUsage(ctx context.Context, workflowID string) (domain.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total domain.Usage
	for _, r := range m.runs {
		if r.WorkflowID != workflowID {
			continue
		}
		total.InputTokens += r.Usage.InputTokens
		total.OutputTokens += r.Usage.OutputTokens
		total.CostUSD += r.Usage.CostUSD
	}
	return total, nil
}

func (m *MemStore) SumUsageSince(ctx context.Context, since time.Time) (domain.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total domain.Usage
	for _, r := range m.runs {
		if r.StartedAt.Before(since) {
			continue
		}
		total.InputTokens += r.Usage.InputTokens
		total.OutputTokens += r.Usage.OutputTokens
		total.CostUSD += r.Usage.CostUSD
	}
	return total, nil
}

func (m *MemStore) InsertApproval(ctx context.Context, approval domain.Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = m.now()
	}
	m.approvals[approval.WorkflowID] = append(m.approvals[approval.WorkflowID], approval)
	return nil
}

func (m *MemStore) FindApproval(ctx context.Context, workflowID string, stage domain.Stage, kind domain.ApprovalKind) (*domain.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.approvals[workflowID] {
		if a.Stage == stage && a.Kind == kind {
			cp := a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemStore) ReplacePolicyViolations(ctx context.Context, patchSetID string, violations []domain.PolicyViolation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]domain.PolicyViolation, len(violations))
	for i, v := range violations {
		if v.ID == "" {
			v.ID = uuid.NewString()
		}
		v.PatchSetID = patchSetID
		cp[i] = v
	}
	m.violations[patchSetID] = cp
	return nil
}

func (m *MemStore) HasBlockingPolicyViolations(ctx context.Context, patchSetID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.violations[patchSetID] {
		if v.Severity == domain.SeverityBlock {
			return true, nil
		}
	}
	return false, nil
}

// WithWorkflowLock serializes concurrent calls for the same workflow id
// using a per-id mutex, mirroring the per-workflow exclusive lock the
// Postgres store takes with SELECT ... FOR UPDATE (§5).
func (m *MemStore) WithWorkflowLock(ctx context.Context, workflowID string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	lock, ok := m.locks[workflowID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[workflowID] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}
