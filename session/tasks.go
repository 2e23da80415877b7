package session

import "sync"

// taskQueue is an unbounded FIFO queue of work units drained by a single
// worker goroutine. Each session owns one: reassembly passes and message
// dispatches are pushed as separate tasks, so they run strictly in the order
// they were scheduled and a fault inside one task is caught at the task
// boundary instead of escaping into whatever scheduled it.
//
// The queue is unbounded because tasks push follow-up tasks onto their own
// queue (a reassembly pass schedules one dispatch per decoded message); a
// bounded channel would deadlock the worker against itself.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	wake   chan struct{}
	closed bool
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		wake: make(chan struct{}, 1),
	}
}

// push appends a task to the queue. It reports false, without queuing, when
// the queue has been closed.
func (q *taskQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.tasks = append(q.tasks, fn)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	return true
}

// close stops the queue and discards any tasks not yet started. A closed
// queue accepts no further pushes and run returns promptly.
func (q *taskQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.tasks = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *taskQueue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// run executes tasks in FIFO order until the queue is closed. It must be
// called from exactly one goroutine.
func (q *taskQueue) run() {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		batch := q.tasks
		q.tasks = nil
		q.mu.Unlock()

		if len(batch) == 0 {
			<-q.wake
			continue
		}

		for _, fn := range batch {
			if q.isClosed() {
				return
			}
			fn()
		}
	}
}
