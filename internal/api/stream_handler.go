package api

import (
	"io"
	"net/http"

	"github.com/tailorworks/tailor-api/internal/api/shared"
	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/platform/logger"
	"github.com/tailorworks/tailor-api/internal/platform/metrics"
	"github.com/tailorworks/tailor-api/internal/store"
	"github.com/tailorworks/tailor-api/internal/stream"
)

// StreamHandler serves the live status stream of a generation over
// Server-Sent Events. Each connection gets its own poller; the database
// snapshot is the only shared state, so streams work regardless of which
// process runs the worker.
type StreamHandler struct {
	snapshots store.SnapshotStore
	cfg       config.StreamConfig
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(snapshots store.SnapshotStore, cfg config.StreamConfig) *StreamHandler {
	return &StreamHandler{
		snapshots: snapshots,
		cfg:       cfg,
	}
}

// StreamGeneration handles GET /api/generations/{id}/stream requests.
// Unknown generations still get a stream: the poller reports them with
// an error event and closes, which lets clients treat every outcome as
// stream data.
func (h *StreamHandler) StreamGeneration(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	id, ok := generationIDFromURL(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	poller, err := stream.NewPoller(h.snapshots, id, h.cfg, log)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to open stream", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.StreamOpened()
	defer metrics.StreamClosed()

	log.Debug("stream opened", "generation_id", id)

	for !poller.Done() {
		chunk, err := poller.NextChunk(r.Context())
		if err != nil {
			// Client went away or the server is shutting down.
			log.Debug("stream interrupted", "generation_id", id, "error", err)
			return
		}
		if chunk.Empty() {
			continue
		}

		if err := writeChunk(w, flusher, chunk); err != nil {
			log.Debug("stream write failed", "generation_id", id, "error", err)
			return
		}
	}

	log.Debug("stream finished", "generation_id", id)
}

func writeChunk(w io.Writer, flusher http.Flusher, chunk stream.Chunk) error {
	encoded, err := chunk.Encode()
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, encoded); err != nil {
		return err
	}
	flusher.Flush()

	if chunk.Heartbeat {
		metrics.StreamEvent("heartbeat")
	}
	for _, event := range chunk.Events {
		metrics.StreamEvent(event.Name)
	}
	return nil
}
