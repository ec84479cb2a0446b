package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/service"
	"github.com/tailorworks/tailor-api/internal/store"
)

type fakeGenerationService struct {
	createFn func(ctx context.Context, params service.CreateGenerationParams) (*domain.Generation, error)
	getFn    func(ctx context.Context, id int64) (*domain.Generation, error)
	listFn   func(ctx context.Context, id int64) ([]*domain.GenerationOutput, error)
}

func (f *fakeGenerationService) CreateAndEnqueue(ctx context.Context, params service.CreateGenerationParams) (*domain.Generation, error) {
	return f.createFn(ctx, params)
}

func (f *fakeGenerationService) Get(ctx context.Context, id int64) (*domain.Generation, error) {
	return f.getFn(ctx, id)
}

func (f *fakeGenerationService) ListOutputs(ctx context.Context, id int64) ([]*domain.GenerationOutput, error) {
	return f.listFn(ctx, id)
}

type staticSnapshots struct {
	snap *domain.StreamSnapshot
	err  error
}

func (s *staticSnapshots) FetchSnapshot(ctx context.Context, generationID int64) (*domain.StreamSnapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func newTestRouter(svc service.GenerationService, snapshots store.SnapshotStore) http.Handler {
	if snapshots == nil {
		snapshots = &staticSnapshots{err: store.ErrGenerationNotFound}
	}
	return NewRouter(RouterDeps{
		GenerationService: svc,
		Snapshots:         snapshots,
		StreamConfig:      config.StreamConfig{PollInterval: time.Millisecond},
	})
}

func validCreateBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"owner_id":           42,
		"source_document_id": 1,
		"target_document_id": 2,
		"model":              "gpt-4o-mini",
		"thinking_time":      0.4,
		"source_text":        "# CV",
		"target_text":        "Job posting",
		"title":              "Go Engineer",
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestCreateGenerationAccepted(t *testing.T) {
	var gotParams service.CreateGenerationParams
	svc := &fakeGenerationService{
		createFn: func(ctx context.Context, params service.CreateGenerationParams) (*domain.Generation, error) {
			gotParams = params
			return &domain.Generation{
				ID:      7,
				OwnerID: params.OwnerID,
				Model:   params.Model,
				Status:  domain.GenerationStatusQueued,
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/generations", validCreateBody(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, int64(42), gotParams.OwnerID)
	assert.Equal(t, "Go Engineer", gotParams.Title)

	var resp GenerationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, "queued", resp.Status)
}

func TestCreateGenerationRejectsMalformedBody(t *testing.T) {
	svc := &fakeGenerationService{
		createFn: func(ctx context.Context, params service.CreateGenerationParams) (*domain.Generation, error) {
			t.Fatal("service must not be called for malformed bodies")
			return nil, nil
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/generations", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGenerationRejectsMissingFields(t *testing.T) {
	svc := &fakeGenerationService{
		createFn: func(ctx context.Context, params service.CreateGenerationParams) (*domain.Generation, error) {
			t.Fatal("service must not be called for invalid requests")
			return nil, nil
		},
	}
	router := newTestRouter(svc, nil)

	body, err := json.Marshal(map[string]interface{}{
		"owner_id": 42,
		"model":    "gpt-4o-mini",
		// source/target documents and texts missing
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/generations", bytes.NewBuffer(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGenerationServiceFailure(t *testing.T) {
	svc := &fakeGenerationService{
		createFn: func(ctx context.Context, params service.CreateGenerationParams) (*domain.Generation, error) {
			return nil, errors.New("db down")
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/generations", validCreateBody(t))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// The raw error must never leak to the client.
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestGetGeneration(t *testing.T) {
	svc := &fakeGenerationService{
		getFn: func(ctx context.Context, id int64) (*domain.Generation, error) {
			return &domain.Generation{
				ID:              id,
				Status:          domain.GenerationStatusCompleted,
				ProgressPercent: 100,
				CostCents:       12,
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/generations/7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp GenerationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.ID)
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, 100, resp.ProgressPercent)
	assert.Equal(t, int64(12), resp.CostCents)
}

func TestGetGenerationNotFound(t *testing.T) {
	svc := &fakeGenerationService{
		getFn: func(ctx context.Context, id int64) (*domain.Generation, error) {
			return nil, service.ErrGenerationNotFound
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/generations/999", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetGenerationInvalidID(t *testing.T) {
	svc := &fakeGenerationService{
		getFn: func(ctx context.Context, id int64) (*domain.Generation, error) {
			t.Fatal("service must not be called for invalid IDs")
			return nil, nil
		},
	}
	router := newTestRouter(svc, nil)

	for _, raw := range []string{"abc", "-3", "0"} {
		req := httptest.NewRequest(http.MethodGet, "/api/generations/"+raw, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "id %q", raw)
	}
}

func TestListOutputs(t *testing.T) {
	svc := &fakeGenerationService{
		listFn: func(ctx context.Context, id int64) ([]*domain.GenerationOutput, error) {
			return []*domain.GenerationOutput{
				{ID: 1, GenerationID: id, Kind: domain.ArtifactPlan, MimeType: "application/json", Content: []byte(`{"summary":"s"}`)},
				{ID: 2, GenerationID: id, Kind: domain.ArtifactDraft, MimeType: "text/markdown", Content: []byte("# Draft")},
			}, nil
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/generations/7/outputs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp []OutputResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "plan", resp[0].Kind)
	assert.Equal(t, "# Draft", resp[1].Content)
}

func TestListOutputsNotFound(t *testing.T) {
	svc := &fakeGenerationService{
		listFn: func(ctx context.Context, id int64) ([]*domain.GenerationOutput, error) {
			return nil, service.ErrGenerationNotFound
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/generations/999/outputs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(&fakeGenerationService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestErrorResponsesCarryTraceID(t *testing.T) {
	svc := &fakeGenerationService{
		getFn: func(ctx context.Context, id int64) (*domain.Generation, error) {
			return nil, service.ErrGenerationNotFound
		},
	}
	router := newTestRouter(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/generations/5", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	traceID, _ := resp["trace_id"].(string)
	assert.Len(t, traceID, 32)
}
