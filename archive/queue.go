package archive

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/spooky-finn/go-depth-recorder/storage"
)

type Job struct {
	ID      string
	Segment storage.Segment
}

// Queue is an unbounded FIFO of archival jobs. Push never blocks, so the
// writers are never held up by a slow upload.
type Queue struct {
	mu    sync.Mutex
	jobs  deque.Deque[Job]
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

func (q *Queue) Push(job Job) {
	q.mu.Lock()
	q.jobs.PushBack(job)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *Queue) TryPop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.jobs.Len() == 0 {
		return Job{}, false
	}
	return q.jobs.PopFront(), true
}

// Ready fires after a Push. It may fire spuriously, so drain with TryPop.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len()
}
