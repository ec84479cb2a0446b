package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tailorworks/tailor-api/internal/domain"
)

func completedSnapshot(id int64) *domain.StreamSnapshot {
	return &domain.StreamSnapshot{
		ID:              id,
		Status:          domain.GenerationStatusCompleted,
		ProgressPercent: 100,
		CostCents:       12,
		TotalTokens:     340,
		UpdatedAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStreamTerminalGenerationEmitsSnapshotAndCloses(t *testing.T) {
	snapshots := &staticSnapshots{snap: completedSnapshot(7)}
	router := newTestRouter(&fakeGenerationService{}, snapshots)

	req := httptest.NewRequest(http.MethodGet, "/api/generations/7/stream", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: status\n")
	assert.Contains(t, body, `"value":"completed"`)
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, `"percent":100`)
	assert.Contains(t, body, "event: tokens\n")
	assert.Contains(t, body, `"total":340`)
	assert.Contains(t, body, "event: cost\n")
	assert.Contains(t, body, `"amount":12`)
}

func TestStreamUnknownGenerationEmitsErrorEvent(t *testing.T) {
	// Default staticSnapshots in newTestRouter returns not-found.
	router := newTestRouter(&fakeGenerationService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/generations/999/stream", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// The stream opens successfully and reports the failure as an event.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event: error\n")
	assert.Contains(t, rec.Body.String(), "generation not found")
}

func TestStreamInvalidIDRejectedBeforeStreaming(t *testing.T) {
	router := newTestRouter(&fakeGenerationService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/generations/zero/stream", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
