package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tailorworks/tailor-api/internal/convert"
	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/llm"
	"github.com/tailorworks/tailor-api/internal/redact"
	"github.com/tailorworks/tailor-api/internal/store"
)

// maxAuditChars caps free-text fields written to failure audits and job
// error columns. Full document content never reaches either.
const maxAuditChars = 200

// Progress milestones written as the pipeline advances. The stored
// percentage is the single source of truth; output-row aggregates in the
// snapshot path are diagnostic only.
const (
	progressProcessing = 10
	progressPlanned    = 40
	progressDrafted    = 70
	progressConverted  = 90
	progressDone       = 100
)

// Errors for GenerationProcessor construction
var (
	ErrNilAIClient        = errors.New("ai client cannot be nil")
	ErrNilGenerationStore = errors.New("generation store cannot be nil")
	ErrNilOutputStore     = errors.New("output store cannot be nil")
)

// AIClient is the slice of the llm client the processor needs; tests
// substitute a stub.
type AIClient interface {
	Plan(ctx context.Context, sourceText, targetText string, opts llm.CallOptions) (*llm.PlanResult, *llm.Usage, error)
	Draft(ctx context.Context, plan *llm.PlanResult, constraints string, opts llm.CallOptions, onDelta llm.StreamFunc) (string, *llm.Usage, error)
}

// GenerationProcessor handles generation jobs: plan, build constraints,
// draft, convert, persist the artifact set, and move the generation
// through its status transitions.
type GenerationProcessor struct {
	ai          AIClient
	generations store.GenerationStore
	outputs     store.OutputStore
	tariffs     map[string]llm.Tariff
	logger      *slog.Logger
}

// NewGenerationProcessor creates a processor with its dependencies.
func NewGenerationProcessor(
	ai AIClient,
	generations store.GenerationStore,
	outputs store.OutputStore,
	logger *slog.Logger,
) (*GenerationProcessor, error) {
	if ai == nil {
		return nil, ErrNilAIClient
	}
	if generations == nil {
		return nil, ErrNilGenerationStore
	}
	if outputs == nil {
		return nil, ErrNilOutputStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	return &GenerationProcessor{
		ai:          ai,
		generations: generations,
		outputs:     outputs,
		tariffs:     llm.DefaultTariffs(),
		logger:      logger.With("component", "generation_processor"),
	}, nil
}

// Handle runs the full pipeline for one generation job. Payload
// validation happens before anything else, so a malformed job fails with
// zero AI calls. The persistence step replaces the whole output set
// atomically, which makes re-delivery of an already-handled job safe.
func (p *GenerationProcessor) Handle(ctx context.Context, job *Job) error {
	payload, err := DecodeGenerationPayload(job.Payload)
	if err != nil {
		return err
	}

	log := p.logger.With("generation_id", payload.GenerationID, "owner_id", payload.OwnerID)

	gen, err := p.generations.GetByID(ctx, payload.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to load generation: %w", err)
	}

	if err := p.generations.UpdateStatus(ctx, gen.ID, domain.GenerationStatusProcessing, ""); err != nil {
		return fmt.Errorf("failed to mark generation processing: %w", err)
	}
	p.setProgress(ctx, log, gen.ID, progressProcessing)

	opts := llm.CallOptions{Model: gen.Model, Temperature: gen.ThinkingTime}

	log.Info("planning", "model", gen.Model)
	plan, planUsage, err := p.ai.Plan(ctx, payload.SourceText, payload.TargetText, opts)
	if err != nil {
		return &TransientError{Op: "plan", Err: err}
	}
	p.addCost(ctx, log, gen, planUsage)
	p.setProgress(ctx, log, gen.ID, progressPlanned)

	constraints := llm.BuildConstraints(payload.PromptTemplate, llm.ConstraintValues{
		Title:        payload.Title,
		Company:      payload.Company,
		Competencies: payload.Competencies,
		CVSections:   payload.CVSections,
		TargetText:   payload.TargetText,
	})

	log.Info("drafting")
	draft, draftUsage, err := p.ai.Draft(ctx, plan, constraints, opts, nil)
	if err != nil {
		return &TransientError{Op: "draft", Err: err}
	}
	p.addCost(ctx, log, gen, draftUsage)
	p.setProgress(ctx, log, gen.ID, progressDrafted)

	rendered := convert.ToHTML(draft)
	plain := convert.ToPlainText(draft)
	p.setProgress(ctx, log, gen.ID, progressConverted)

	outputs, err := buildOutputs(gen.ID, plan, planUsage, draft, draftUsage, rendered, plain)
	if err != nil {
		return err
	}
	if err := p.outputs.ReplaceOutputs(ctx, gen.ID, outputs); err != nil {
		return fmt.Errorf("failed to persist outputs: %w", err)
	}

	p.setProgress(ctx, log, gen.ID, progressDone)
	if err := p.generations.UpdateStatus(ctx, gen.ID, domain.GenerationStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to mark generation completed: %w", err)
	}

	log.Info("generation completed", "outputs", len(outputs))
	return nil
}

// OnFailure reconciles the generation's user-visible state with the
// queue's decision. A retry-bound job goes back to processing so
// observers see continued work rather than a false failure; a final
// failure lands as status=failed plus a redacted message and audit line.
func (p *GenerationProcessor) OnFailure(ctx context.Context, job *Job, jobErr error, willRetry bool) {
	payload, err := DecodeGenerationPayload(job.Payload)
	if err != nil {
		// Nothing to reconcile without a generation id.
		p.logger.Error("job failed with undecodable payload", "job_id", job.ID, "error", jobErr)
		return
	}

	log := p.logger.With("generation_id", payload.GenerationID, "job_id", job.ID)

	if willRetry {
		if err := p.generations.UpdateStatus(ctx, payload.GenerationID, domain.GenerationStatusProcessing, ""); err != nil {
			log.Error("failed to reset generation for retry", "error", err)
		}
		return
	}

	message := redact.Truncate(jobErr.Error(), maxAuditChars)
	if err := p.generations.UpdateStatus(ctx, payload.GenerationID, domain.GenerationStatusFailed, message); err != nil {
		log.Error("failed to mark generation failed", "error", err)
	}

	p.audit(ctx, log, payload, message)
}

// audit writes the failure context to the structured log. Only redacted,
// size-capped fields appear; audit failures cannot exist here because
// the sink is the logger itself.
func (p *GenerationProcessor) audit(ctx context.Context, log *slog.Logger, payload *GenerationPayload, message string) {
	gen, err := p.generations.GetByID(ctx, payload.GenerationID)
	model, thinkingTime := "", 0.0
	sourceDocID, targetDocID := int64(0), int64(0)
	if err == nil {
		model = gen.Model
		thinkingTime = gen.ThinkingTime
		sourceDocID = gen.SourceDocumentID
		targetDocID = gen.TargetDocumentID
	}

	log.Error("generation failed",
		"audit", true,
		"owner_id", payload.OwnerID,
		"source_document_id", sourceDocID,
		"target_document_id", targetDocID,
		"model", model,
		"thinking_time", thinkingTime,
		"title", redact.Truncate(payload.Title, maxAuditChars),
		"company", redact.Truncate(payload.Company, maxAuditChars),
		"error", message,
	)
}

func (p *GenerationProcessor) setProgress(ctx context.Context, log *slog.Logger, id int64, percent int) {
	if err := p.generations.UpdateProgress(ctx, id, percent); err != nil {
		// Progress is advisory; losing one milestone must not fail the job.
		log.Warn("failed to update progress", "percent", percent, "error", err)
	}
}

func (p *GenerationProcessor) addCost(ctx context.Context, log *slog.Logger, gen *domain.Generation, usage *llm.Usage) {
	if usage == nil {
		return
	}
	cents := llm.Cost(p.tariffs, gen.Model, *usage)
	if cents == 0 {
		return
	}
	if err := p.generations.AddCost(ctx, gen.ID, cents); err != nil {
		log.Warn("failed to accumulate generation cost", "cents", cents, "error", err)
	}
}

// buildOutputs assembles the four artifacts of a finished generation.
func buildOutputs(
	generationID int64,
	plan *llm.PlanResult,
	planUsage *llm.Usage,
	draft string,
	draftUsage *llm.Usage,
	rendered, plain string,
) ([]*domain.GenerationOutput, error) {
	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan artifact: %w", err)
	}

	planTokens, draftTokens := 0, 0
	if planUsage != nil {
		planTokens = planUsage.TotalTokens
	}
	if draftUsage != nil {
		draftTokens = draftUsage.TotalTokens
	}

	specs := []struct {
		kind    domain.ArtifactKind
		mime    string
		content []byte
		tokens  int
	}{
		{domain.ArtifactPlan, "application/json", planJSON, planTokens},
		{domain.ArtifactDraft, "text/markdown", []byte(draft), draftTokens},
		{domain.ArtifactRendered, "text/html", []byte(rendered), 0},
		{domain.ArtifactPlainText, "text/plain", []byte(plain), 0},
	}

	outputs := make([]*domain.GenerationOutput, 0, len(specs))
	for _, s := range specs {
		out, err := domain.NewGenerationOutput(generationID, s.kind, s.mime, s.content, s.tokens)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	return outputs, nil
}
