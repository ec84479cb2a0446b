package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tailorworks/tailor-api/internal/api/shared"
	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/service"
)

// CreateGenerationRequest represents the request body for starting a generation
type CreateGenerationRequest struct {
	OwnerID          int64   `json:"owner_id"           validate:"required,gt=0"`
	SourceDocumentID int64   `json:"source_document_id" validate:"required,gt=0"`
	TargetDocumentID int64   `json:"target_document_id" validate:"required,gt=0"`
	Model            string  `json:"model"              validate:"required"`
	ThinkingTime     float64 `json:"thinking_time"      validate:"gte=0,lte=1"`

	SourceText string `json:"source_text" validate:"required"`
	TargetText string `json:"target_text" validate:"required"`

	Title          string   `json:"title,omitempty"`
	Company        string   `json:"company,omitempty"`
	Competencies   []string `json:"competencies,omitempty"`
	CVSections     string   `json:"cv_sections,omitempty"`
	PromptTemplate string   `json:"prompt_template,omitempty"`
}

// GenerationResponse represents the response data for a generation
type GenerationResponse struct {
	ID              int64     `json:"id"`
	OwnerID         int64     `json:"owner_id"`
	Model           string    `json:"model"`
	Status          string    `json:"status"`
	ProgressPercent int       `json:"progress_percent"`
	CostCents       int64     `json:"cost_cents"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// OutputResponse represents one artifact of a finished generation
type OutputResponse struct {
	ID         int64     `json:"id"`
	Kind       string    `json:"kind"`
	MimeType   string    `json:"mime_type"`
	Content    string    `json:"content"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// GenerationHandler handles generation-related HTTP requests
type GenerationHandler struct {
	generationService service.GenerationService
	validator         *validator.Validate
}

// NewGenerationHandler creates a new GenerationHandler
func NewGenerationHandler(generationService service.GenerationService) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		validator:         validator.New(),
	}
}

// CreateGeneration handles POST /api/generations requests. Processing
// happens asynchronously, so success is 202 Accepted with the queued
// generation in the body.
func (h *GenerationHandler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req CreateGenerationRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	gen, err := h.generationService.CreateAndEnqueue(r.Context(), service.CreateGenerationParams{
		OwnerID:          req.OwnerID,
		SourceDocumentID: req.SourceDocumentID,
		TargetDocumentID: req.TargetDocumentID,
		Model:            req.Model,
		ThinkingTime:     req.ThinkingTime,
		SourceText:       req.SourceText,
		TargetText:       req.TargetText,
		Title:            req.Title,
		Company:          req.Company,
		Competencies:     req.Competencies,
		CVSections:       req.CVSections,
		PromptTemplate:   req.PromptTemplate,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to create generation", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, generationToResponse(gen))
}

// GetGeneration handles GET /api/generations/{id} requests
func (h *GenerationHandler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	id, ok := generationIDFromURL(w, r)
	if !ok {
		return
	}

	gen, err := h.generationService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Generation not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to load generation", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, generationToResponse(gen))
}

// ListOutputs handles GET /api/generations/{id}/outputs requests
func (h *GenerationHandler) ListOutputs(w http.ResponseWriter, r *http.Request) {
	id, ok := generationIDFromURL(w, r)
	if !ok {
		return
	}

	outputs, err := h.generationService.ListOutputs(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Generation not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to load outputs", err)
		return
	}

	resp := make([]OutputResponse, 0, len(outputs))
	for _, out := range outputs {
		resp = append(resp, outputToResponse(out))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// generationIDFromURL parses the {id} route parameter, writing a 400
// response itself when the value is not a positive integer.
func generationIDFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid generation ID")
		return 0, false
	}
	return id, true
}

// generationToResponse converts a domain.Generation to a GenerationResponse
func generationToResponse(gen *domain.Generation) GenerationResponse {
	return GenerationResponse{
		ID:              gen.ID,
		OwnerID:         gen.OwnerID,
		Model:           gen.Model,
		Status:          string(gen.Status),
		ProgressPercent: gen.ProgressPercent,
		CostCents:       gen.CostCents,
		ErrorMessage:    gen.ErrorMessage,
		CreatedAt:       gen.CreatedAt,
		UpdatedAt:       gen.UpdatedAt,
	}
}

func outputToResponse(out *domain.GenerationOutput) OutputResponse {
	return OutputResponse{
		ID:         out.ID,
		Kind:       string(out.Kind),
		MimeType:   out.MimeType,
		Content:    string(out.Content),
		TokensUsed: out.TokensUsed,
		CreatedAt:  out.CreatedAt,
	}
}
