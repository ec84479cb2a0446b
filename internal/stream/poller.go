package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tailorworks/tailor-api/internal/config"
	"github.com/tailorworks/tailor-api/internal/domain"
	"github.com/tailorworks/tailor-api/internal/store"
)

// Defaults for the poller's three clocks.
const (
	DefaultPollInterval      = time.Second
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultTimeout           = 300 * time.Second
)

// terminalStatuses is the fixed set after which polling stops. It is
// wider than this pipeline's own status vocabulary so externally-written
// rows with equivalent spellings also terminate the stream.
var terminalStatuses = map[string]struct{}{
	"completed": {},
	"succeeded": {},
	"success":   {},
	"failed":    {},
	"cancelled": {},
	"canceled":  {},
}

func isTerminal(status string) bool {
	_, ok := terminalStatuses[status]
	return ok
}

// Errors for Poller construction
var (
	ErrNilSnapshotStore = errors.New("snapshot store cannot be nil")
	ErrNilLogger        = errors.New("logger cannot be nil")
)

// Poller is a single-consumer state machine producing a diffed,
// heartbeating event stream for one generation. It keeps the last
// emitted field values and, on each NextChunk, re-reads the snapshot and
// emits only what changed. There is no cancellation signal: a consumer
// that stops calling NextChunk abandons the poller and its state.
type Poller struct {
	snapshots    store.SnapshotStore
	generationID int64
	logger       *slog.Logger

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	timeout           time.Duration

	// now and sleep are overridable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	startedAt time.Time
	lastEmit  time.Time
	done      bool
	first     bool

	// last emitted values, valid once first is false
	lastStatus   string
	lastProgress int
	lastTokens   int
	lastCost     int64
	lastError    string
}

// NewPoller creates a Poller for one generation. Zero config values fall
// back to the defaults.
func NewPoller(snapshots store.SnapshotStore, generationID int64, cfg config.StreamConfig, logger *slog.Logger) (*Poller, error) {
	if snapshots == nil {
		return nil, ErrNilSnapshotStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	heartbeatInterval := cfg.HeartbeatInterval
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	now := time.Now().UTC()
	return &Poller{
		snapshots:         snapshots,
		generationID:      generationID,
		logger:            logger.With("component", "stream_poller", "generation_id", generationID),
		pollInterval:      pollInterval,
		heartbeatInterval: heartbeatInterval,
		timeout:           timeout,
		now:               func() time.Time { return time.Now().UTC() },
		sleep:             sleepCtx,
		startedAt:         now,
		lastEmit:          now,
		first:             true,
	}, nil
}

// Done reports whether the stream has ended; NextChunk returns empty
// chunks forever afterwards.
func (p *Poller) Done() bool {
	return p.done
}

// NextChunk advances the state machine by one step and returns the next
// chunk to write. An empty chunk with Done() false means the caller
// should simply call again; the poll-interval sleep already happened
// inside. The first call emits the full snapshot; later calls emit
// field-by-field diffs, a heartbeat when idle past the heartbeat
// interval, or a terminal event on timeout or terminal status.
func (p *Poller) NextChunk(ctx context.Context) (Chunk, error) {
	if p.done {
		return Chunk{}, nil
	}

	if p.now().Sub(p.startedAt) > p.timeout {
		p.done = true
		return p.terminalError("stream timed out"), nil
	}

	snap, err := p.snapshots.FetchSnapshot(ctx, p.generationID)
	if err != nil {
		if store.IsNotFoundError(err) {
			p.done = true
			return p.terminalError("generation not found"), nil
		}
		// Degrade to an error event and closure; never throw through
		// the transport.
		p.logger.Error("snapshot read failed", "error", err)
		p.done = true
		return p.terminalError("status read failed"), nil
	}

	chunk := p.diff(snap)

	if isTerminal(string(snap.Status)) {
		p.done = true
		return chunk, nil
	}

	if chunk.Empty() {
		if p.now().Sub(p.lastEmit) >= p.heartbeatInterval {
			p.lastEmit = p.now()
			return Chunk{Heartbeat: true}, nil
		}
		// The only suspension point in the component.
		if err := p.sleep(ctx, p.pollInterval); err != nil {
			p.done = true
			return Chunk{}, err
		}
		return Chunk{}, nil
	}

	return chunk, nil
}

// diff compares the snapshot against the last emitted values and builds
// the events for every changed field, updating the emission state.
func (p *Poller) diff(snap *domain.StreamSnapshot) Chunk {
	var events []Event

	status := string(snap.Status)
	if p.first || status != p.lastStatus {
		events = append(events, Event{Name: EventStatus, Payload: statusPayload{
			Value:     status,
			UpdatedAt: snap.UpdatedAt,
		}})
		p.lastStatus = status
	}
	if p.first || snap.ProgressPercent != p.lastProgress {
		events = append(events, Event{Name: EventProgress, Payload: progressPayload{
			Percent: snap.ProgressPercent,
		}})
		p.lastProgress = snap.ProgressPercent
	}
	if p.first || snap.TotalTokens != p.lastTokens {
		events = append(events, Event{Name: EventTokens, Payload: tokensPayload{
			Total:     snap.TotalTokens,
			UpdatedAt: snap.UpdatedAt,
		}})
		p.lastTokens = snap.TotalTokens
	}
	if p.first || snap.CostCents != p.lastCost {
		events = append(events, Event{Name: EventCost, Payload: costPayload{
			Amount:    snap.CostCents,
			UpdatedAt: snap.UpdatedAt,
		}})
		p.lastCost = snap.CostCents
	}
	if snap.ErrorMessage != "" && (p.first || snap.ErrorMessage != p.lastError) {
		events = append(events, Event{Name: EventError, Payload: errorPayload{
			Message: snap.ErrorMessage,
		}})
		p.lastError = snap.ErrorMessage
	}

	p.first = false
	if len(events) > 0 {
		p.lastEmit = p.now()
	}
	return Chunk{Events: events}
}

func (p *Poller) terminalError(message string) Chunk {
	return Chunk{Events: []Event{{Name: EventError, Payload: errorPayload{Message: message}}}}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
