package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/llm"
	"github.com/tailorworks/tailor-api/internal/store"
)

// stubAI scripts plan/draft responses and counts invocations.
type stubAI struct {
	planCalls  int
	draftCalls int

	plan     *llm.PlanResult
	planErr  error
	draft    string
	draftErr error
}

func (s *stubAI) Plan(_ context.Context, _, _ string, _ llm.CallOptions) (*llm.PlanResult, *llm.Usage, error) {
	s.planCalls++
	if s.planErr != nil {
		return nil, nil, s.planErr
	}
	return s.plan, &llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}, nil
}

func (s *stubAI) Draft(_ context.Context, _ *llm.PlanResult, _ string, _ llm.CallOptions, onDelta llm.StreamFunc) (string, *llm.Usage, error) {
	s.draftCalls++
	if s.draftErr != nil {
		return "", nil, s.draftErr
	}
	if onDelta != nil {
		onDelta(s.draft)
	}
	return s.draft, &llm.Usage{PromptTokens: 200, CompletionTokens: 300, TotalTokens: 500}, nil
}

// memGenerationStore keeps generations in a map.
type memGenerationStore struct {
	generations map[int64]*domain.Generation
	statusLog   []domain.GenerationStatus
}

func newMemGenerationStore(gens ...*domain.Generation) *memGenerationStore {
	m := &memGenerationStore{generations: make(map[int64]*domain.Generation)}
	for _, g := range gens {
		m.generations[g.ID] = g
	}
	return m
}

func (m *memGenerationStore) Create(_ context.Context, g *domain.Generation) error {
	g.ID = int64(len(m.generations) + 1)
	m.generations[g.ID] = g
	return nil
}

func (m *memGenerationStore) GetByID(_ context.Context, id int64) (*domain.Generation, error) {
	g, ok := m.generations[id]
	if !ok {
		return nil, store.ErrGenerationNotFound
	}
	return g, nil
}

func (m *memGenerationStore) UpdateStatus(_ context.Context, id int64, status domain.GenerationStatus, msg string) error {
	g, ok := m.generations[id]
	if !ok {
		return store.ErrGenerationNotFound
	}
	g.Status = status
	g.ErrorMessage = msg
	m.statusLog = append(m.statusLog, status)
	return nil
}

func (m *memGenerationStore) UpdateProgress(_ context.Context, id int64, percent int) error {
	g, ok := m.generations[id]
	if !ok {
		return store.ErrGenerationNotFound
	}
	g.ProgressPercent = percent
	return nil
}

func (m *memGenerationStore) AddCost(_ context.Context, id int64, cents int64) error {
	g, ok := m.generations[id]
	if !ok {
		return store.ErrGenerationNotFound
	}
	g.CostCents += cents
	return nil
}

func (m *memGenerationStore) WithTx(*sql.Tx) store.GenerationStore { return m }

// memOutputStore keeps output sets in a map, replace-style.
type memOutputStore struct {
	sets     map[int64][]*domain.GenerationOutput
	replaces int
	err      error
}

func newMemOutputStore() *memOutputStore {
	return &memOutputStore{sets: make(map[int64][]*domain.GenerationOutput)}
}

func (m *memOutputStore) ReplaceOutputs(_ context.Context, generationID int64, outputs []*domain.GenerationOutput) error {
	if m.err != nil {
		return m.err
	}
	m.replaces++
	m.sets[generationID] = outputs
	return nil
}

func (m *memOutputStore) ListByGeneration(_ context.Context, generationID int64) ([]*domain.GenerationOutput, error) {
	return m.sets[generationID], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func testGeneration(id int64) *domain.Generation {
	return &domain.Generation{
		ID:               id,
		OwnerID:          3,
		SourceDocumentID: 11,
		TargetDocumentID: 12,
		Model:            "gpt-4o-mini",
		ThinkingTime:     0.4,
		Status:           domain.GenerationStatusQueued,
	}
}

func validJobPayload(t *testing.T, generationID int64) *Job {
	t.Helper()
	payload, err := json.Marshal(GenerationPayload{
		GenerationID: generationID,
		OwnerID:      3,
		SourceText:   "We are hiring a backend engineer...",
		TargetText:   "# CV",
	})
	require.NoError(t, err)

	job, err := NewJob(JobTypeGeneration, payload)
	require.NoError(t, err)
	return job
}

func newTestProcessor(t *testing.T, ai AIClient, gens *memGenerationStore, outs *memOutputStore) *GenerationProcessor {
	t.Helper()
	p, err := NewGenerationProcessor(ai, gens, outs, discardLogger())
	require.NoError(t, err)
	return p
}

func TestHandleCompletesGeneration(t *testing.T) {
	ai := &stubAI{
		plan:  &llm.PlanResult{Summary: "solid match", NextSteps: []llm.PlanStep{{Task: "t", Priority: "high"}}},
		draft: "## Draft",
	}
	gens := newMemGenerationStore(testGeneration(7))
	outs := newMemOutputStore()
	p := newTestProcessor(t, ai, gens, outs)

	err := p.Handle(context.Background(), validJobPayload(t, 7))
	require.NoError(t, err)

	g := gens.generations[7]
	assert.Equal(t, domain.GenerationStatusCompleted, g.Status)
	assert.Equal(t, 100, g.ProgressPercent)
	assert.Positive(t, g.CostCents)

	set := outs.sets[7]
	require.Len(t, set, 4)
	kinds := make(map[domain.ArtifactKind]bool, 4)
	for _, out := range set {
		kinds[out.Kind] = true
		assert.Equal(t, int64(7), out.GenerationID)
	}
	assert.True(t, kinds[domain.ArtifactPlan])
	assert.True(t, kinds[domain.ArtifactDraft])
	assert.True(t, kinds[domain.ArtifactRendered])
	assert.True(t, kinds[domain.ArtifactPlainText])

	assert.Equal(t, 1, ai.planCalls)
	assert.Equal(t, 1, ai.draftCalls)
}

func TestHandleInvalidPayloadMakesNoAICalls(t *testing.T) {
	ai := &stubAI{}
	gens := newMemGenerationStore()
	p := newTestProcessor(t, ai, gens, newMemOutputStore())

	job, err := NewJob(JobTypeGeneration, json.RawMessage(`{"owner_id": 3}`))
	require.NoError(t, err)

	err = p.Handle(context.Background(), job)

	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.False(t, Retryable(err))
	assert.Zero(t, ai.planCalls)
	assert.Zero(t, ai.draftCalls)
}

func TestHandleUnknownGeneration(t *testing.T) {
	ai := &stubAI{}
	p := newTestProcessor(t, ai, newMemGenerationStore(), newMemOutputStore())

	err := p.Handle(context.Background(), validJobPayload(t, 99))

	assert.ErrorIs(t, err, store.ErrGenerationNotFound)
	assert.Zero(t, ai.planCalls)
}

func TestHandleWrapsPlanFailureAsTransient(t *testing.T) {
	ai := &stubAI{planErr: errors.New("upstream 503")}
	gens := newMemGenerationStore(testGeneration(7))
	p := newTestProcessor(t, ai, gens, newMemOutputStore())

	err := p.Handle(context.Background(), validJobPayload(t, 7))

	require.Error(t, err)
	assert.True(t, Retryable(err))
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "plan", te.Op)
	assert.Zero(t, ai.draftCalls)
}

func TestHandleWrapsDraftFailureAsTransient(t *testing.T) {
	ai := &stubAI{
		plan:     &llm.PlanResult{Summary: "s"},
		draftErr: errors.New("connection reset"),
	}
	gens := newMemGenerationStore(testGeneration(7))
	p := newTestProcessor(t, ai, gens, newMemOutputStore())

	err := p.Handle(context.Background(), validJobPayload(t, 7))

	require.Error(t, err)
	var te *TransientError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "draft", te.Op)
}

func TestHandlePersistenceFailureIsFatal(t *testing.T) {
	ai := &stubAI{plan: &llm.PlanResult{Summary: "s"}, draft: "## Draft"}
	gens := newMemGenerationStore(testGeneration(7))
	outs := newMemOutputStore()
	outs.err = errors.New("disk full")
	p := newTestProcessor(t, ai, gens, outs)

	err := p.Handle(context.Background(), validJobPayload(t, 7))

	require.Error(t, err)
	assert.False(t, Retryable(err))
}

func TestHandleRerunLeavesSingleOutputSet(t *testing.T) {
	ai := &stubAI{plan: &llm.PlanResult{Summary: "s"}, draft: "## Draft"}
	gens := newMemGenerationStore(testGeneration(7))
	outs := newMemOutputStore()
	p := newTestProcessor(t, ai, gens, outs)

	job := validJobPayload(t, 7)
	require.NoError(t, p.Handle(context.Background(), job))
	require.NoError(t, p.Handle(context.Background(), job))

	assert.Equal(t, 2, outs.replaces)
	assert.Len(t, outs.sets[7], 4)
}

func TestOnFailureRetryKeepsProcessing(t *testing.T) {
	gens := newMemGenerationStore(testGeneration(7))
	p := newTestProcessor(t, &stubAI{}, gens, newMemOutputStore())

	p.OnFailure(context.Background(), validJobPayload(t, 7), &TransientError{Op: "plan", Err: errors.New("503")}, true)

	g := gens.generations[7]
	assert.Equal(t, domain.GenerationStatusProcessing, g.Status)
	assert.Empty(t, g.ErrorMessage)
}

func TestOnFailureFinalMarksFailedWithRedactedMessage(t *testing.T) {
	gens := newMemGenerationStore(testGeneration(7))
	p := newTestProcessor(t, &stubAI{}, gens, newMemOutputStore())

	longErr := errors.New("plan failed: " +
		"context: api_key=sk-abcdef0123456789abcdef0123456789 and a very long tail " +
		"padpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpad" +
		"padpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpad" +
		"padpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpadpad")
	p.OnFailure(context.Background(), validJobPayload(t, 7), longErr, false)

	g := gens.generations[7]
	assert.Equal(t, domain.GenerationStatusFailed, g.Status)
	assert.NotEmpty(t, g.ErrorMessage)
	assert.LessOrEqual(t, len([]rune(g.ErrorMessage)), maxAuditChars+1) // +1 for the ellipsis
	assert.NotContains(t, g.ErrorMessage, "sk-abcdef0123456789abcdef0123456789")
}
