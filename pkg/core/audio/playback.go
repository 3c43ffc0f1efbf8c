package audio

import (
	"context"
	"errors"
	"math"
	"sync"
)

// PlaybackQueue schedules buffers back to back on a Context.
//
// Each buffer starts at max(cursor, now) and the cursor advances by the
// buffer's duration, so bursts of chunks play gaplessly and never overlap.
// Interrupt stops everything and resets the cursor to zero.
type PlaybackQueue struct {
	ctx Context

	mu     sync.Mutex
	cursor float64
	active map[Source]struct{}
}

// NewPlaybackQueue creates a queue on ctx.
func NewPlaybackQueue(ctx Context) *PlaybackQueue {
	return &PlaybackQueue{
		ctx:    ctx,
		active: make(map[Source]struct{}),
	}
}

// Enqueue schedules buf and returns its start time.
func (q *PlaybackQueue) Enqueue(buf *Buffer) (float64, error) {
	if buf == nil || buf.Frames() == 0 {
		return 0, errors.New("playback: empty buffer")
	}

	q.mu.Lock()
	start := math.Max(q.cursor, q.ctx.CurrentTime())
	src, err := q.ctx.Schedule(buf, start)
	if err != nil {
		q.mu.Unlock()
		return 0, err
	}
	q.cursor = start + buf.Duration()
	q.active[src] = struct{}{}
	q.mu.Unlock()

	go func() {
		<-src.Done()
		q.release(src)
	}()
	return start, nil
}

// Interrupt stops every scheduled or playing source, empties the queue and
// resets the cursor. It returns the number of sources stopped.
func (q *PlaybackQueue) Interrupt() int {
	q.mu.Lock()
	stopped := make([]Source, 0, len(q.active))
	for src := range q.active {
		stopped = append(stopped, src)
	}
	clear(q.active)
	q.cursor = 0
	q.mu.Unlock()

	for _, src := range stopped {
		src.Stop()
	}
	return len(stopped)
}

// Cursor returns the start time the next buffer would get if the clock were at zero.
func (q *PlaybackQueue) Cursor() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// Pending returns the number of sources not yet finished.
func (q *PlaybackQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// Wait blocks until every scheduled source has finished or ctx is done.
func (q *PlaybackQueue) Wait(ctx context.Context) error {
	for {
		q.mu.Lock()
		var next Source
		for src := range q.active {
			next = src
			break
		}
		q.mu.Unlock()
		if next == nil {
			return nil
		}
		select {
		case <-next.Done():
			q.release(next)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *PlaybackQueue) release(src Source) {
	q.mu.Lock()
	delete(q.active, src)
	q.mu.Unlock()
}
