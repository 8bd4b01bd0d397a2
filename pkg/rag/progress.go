package rag

import "sync"

// ProgressEvent is emitted on every ingestion state transition.
// Progress is monotonically non-decreasing within one generation.
type ProgressEvent struct {
	DocumentID string       `json:"document_id"`
	Status     IngestStatus `json:"status"`
	Progress   int          `json:"progress"`
	Message    string       `json:"message"`
}

// ProgressSink receives progress events from the ingestion orchestrator.
//
// Publish must not block: the notification transport owns its own
// queueing/dropping policy, and a slow subscriber must never stall
// extraction, chunking or embedding. Implementations that deliver over
// a network should buffer internally and drop on overflow.
type ProgressSink interface {
	Publish(event ProgressEvent)
}

// ProgressFunc adapts a function to the ProgressSink interface.
type ProgressFunc func(event ProgressEvent)

// Publish calls the wrapped function.
func (f ProgressFunc) Publish(event ProgressEvent) { f(event) }

// NopProgress discards all events.
func NopProgress() ProgressSink {
	return ProgressFunc(func(ProgressEvent) {})
}

// MultiProgress fans one event out to several sinks.
func MultiProgress(sinks ...ProgressSink) ProgressSink {
	return ProgressFunc(func(event ProgressEvent) {
		for _, sink := range sinks {
			sink.Publish(event)
		}
	})
}

// ProgressBuffer is an in-process ProgressSink that retains the
// last-known event per document so reconnecting subscribers can query
// current status rather than only streaming. Events are fanned out to
// a bounded channel and dropped when the subscriber lags.
type ProgressBuffer struct {
	mu     sync.RWMutex
	last   map[string]ProgressEvent
	events chan ProgressEvent
}

// NewProgressBuffer creates a buffer with the given channel capacity.
func NewProgressBuffer(capacity int) *ProgressBuffer {
	if capacity <= 0 {
		capacity = 64
	}
	return &ProgressBuffer{
		last:   make(map[string]ProgressEvent),
		events: make(chan ProgressEvent, capacity),
	}
}

// Publish records the event as last-known status and offers it to the
// stream without blocking. When the channel is full the streamed copy
// is dropped; Last still reflects the latest state.
func (b *ProgressBuffer) Publish(event ProgressEvent) {
	b.mu.Lock()
	b.last[event.DocumentID] = event
	b.mu.Unlock()

	select {
	case b.events <- event:
	default:
	}
}

// Events returns the receive side of the event stream.
func (b *ProgressBuffer) Events() <-chan ProgressEvent { return b.events }

// Last returns the last-known event for a document, if any.
func (b *ProgressBuffer) Last(documentID string) (ProgressEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	event, ok := b.last[documentID]
	return event, ok
}
