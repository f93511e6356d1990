package events

// Queue buffers events for the duration of one marketplace call. The engine
// records every signal here and the caller flushes the queue to the real
// emitter only after the call commits, so aborted operations never publish.
type Queue struct {
	pending []Event
}

// NewQueue returns an empty event queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Emit implements the Emitter interface by buffering the event.
func (q *Queue) Emit(evt Event) {
	if q == nil || evt == nil {
		return
	}
	q.pending = append(q.pending, evt)
}

// Flush forwards all buffered events to the supplied emitter in emission
// order and clears the buffer. A nil emitter drains the queue silently.
func (q *Queue) Flush(emitter Emitter) {
	if q == nil {
		return
	}
	for _, evt := range q.pending {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
	q.pending = nil
}

// Reset discards any buffered events.
func (q *Queue) Reset() {
	if q == nil {
		return
	}
	q.pending = nil
}

// Len reports the number of buffered events.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.pending)
}
