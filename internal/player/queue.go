package player

import "sync"

// DefaultQueueMax bounds queue length when no limit is configured.
const DefaultQueueMax = 500

// Queue is the per-session FIFO of pending tracks plus the loop slot.
// Insertion order is play order. All operations are atomic and
// non-blocking.
type Queue struct {
	mu      sync.Mutex
	entries []Track
	loop    *Track
	max     int
	nextSeq int64
}

// NewQueue creates a queue bounded at max entries.
func NewQueue(max int) *Queue {
	if max <= 0 {
		max = DefaultQueueMax
	}
	return &Queue{max: max}
}

// Enqueue appends a track, assigning its sequence number. Returns
// ErrQueueFull when the bound is reached.
func (q *Queue) Enqueue(track Track) (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.max {
		return Track{}, ErrQueueFull
	}
	track.Seq = q.nextSeq
	q.nextSeq++
	q.entries = append(q.entries, track)
	return track, nil
}

// PopFront removes and returns the head track.
func (q *Queue) PopFront() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Track{}, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	return head, true
}

// PeekFront returns the head track without removing it.
func (q *Queue) PeekFront() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Track{}, false
	}
	return q.entries[0], true
}

// PushFront returns a track to the head of the queue, bypassing the
// capacity bound. Used when disabling loop mode.
func (q *Queue) PushFront(track Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append([]Track{track}, q.entries...)
}

// RemoveAt removes the track at index. Returns ErrInvalidIndex and
// leaves the queue unchanged when index is out of range.
func (q *Queue) RemoveAt(index int) (Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.entries) {
		return Track{}, ErrInvalidIndex
	}
	removed := q.entries[index]
	q.entries = append(q.entries[:index], q.entries[index+1:]...)
	return removed, nil
}

// Clear empties the queue. Current and loop slots are the caller's
// responsibility.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = nil
}

// Replace swaps a queued track for its resolved copy, matched by
// sequence number. No-op if the track already left the queue.
func (q *Queue) Replace(track Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.entries {
		if q.entries[i].Seq == track.Seq {
			q.entries[i] = track
			return
		}
	}
}

// Snapshot returns a copy of the queue in play order.
func (q *Queue) Snapshot() []Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Track, len(q.entries))
	copy(out, q.entries)
	return out
}

// Upcoming returns up to n tracks from the head that still need
// resolution, for preloading.
func (q *Queue) Upcoming(n int) []Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Track, 0, n)
	for _, entry := range q.entries {
		if len(out) >= n {
			break
		}
		if entry.NeedsProcessing || entry.StreamURL == "" {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// SetLoop stores the loop-slot track.
func (q *Queue) SetLoop(track Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	copy := track
	q.loop = &copy
}

// Loop returns the loop-slot track if set.
func (q *Queue) Loop() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop == nil {
		return Track{}, false
	}
	return *q.loop, true
}

// ClearLoop clears the loop slot, returning the track it held.
func (q *Queue) ClearLoop() (Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loop == nil {
		return Track{}, false
	}
	track := *q.loop
	q.loop = nil
	return track, true
}
