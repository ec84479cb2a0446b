// Package stream derives a live status event stream for a generation by
// re-reading persisted state. The poller is a pull-based state machine
// with no background goroutine; any transport that can write text chunks
// in order can drive it.
package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names emitted on the stream.
const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventTokens   = "tokens"
	EventCost     = "cost"
	EventError    = "error"
)

// Event is one typed stream event: a name plus a JSON payload.
type Event struct {
	Name    string
	Payload any
}

// heartbeatChunk is the comment line keeping idle connections alive.
const heartbeatChunk = ": heartbeat\n\n"

// Payload shapes per event name.

type statusPayload struct {
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type progressPayload struct {
	Percent int `json:"percent"`
}

type tokensPayload struct {
	Total     int       `json:"total"`
	UpdatedAt time.Time `json:"updated_at"`
}

type costPayload struct {
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Encode renders the event as one self-contained text/event-stream
// record: event name, JSON data line, blank-line terminator.
func (e Event) Encode() (string, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s event: %w", e.Name, err)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, data), nil
}

// Chunk is what one NextChunk call hands the transport: zero or more
// encoded events, or a heartbeat comment.
type Chunk struct {
	Events    []Event
	Heartbeat bool
}

// Empty reports whether the chunk carries nothing to write.
func (c Chunk) Empty() bool {
	return !c.Heartbeat && len(c.Events) == 0
}

// Encode renders the whole chunk in event order.
func (c Chunk) Encode() (string, error) {
	if c.Heartbeat {
		return heartbeatChunk, nil
	}

	var out string
	for _, e := range c.Events {
		s, err := e.Encode()
		if err != nil {
			return "", err
		}
		out += s
	}
	return out, nil
}
