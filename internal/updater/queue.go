package updater

import (
	"slices"
	"sync"

	"muniapi/pkg/domain"
)

// Queue is an ordered set of requests keyed by target. It is safe for many
// producers and one consumer.
type Queue struct {
	mu      sync.Mutex
	items   []Request
	targets map[domain.ExternalID]struct{}
}

func NewQueue() *Queue {
	return &Queue{targets: make(map[domain.ExternalID]struct{})}
}

// Push appends req unless its target is already queued. A priority request
// always ends up alone at the front: any existing entry for the target is
// removed first. Returns whether the queue changed.
func (q *Queue) Push(req Request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, queued := q.targets[req.Target]
	if !req.Priority {
		if queued {
			return false
		}
		q.items = append(q.items, req)
		q.targets[req.Target] = struct{}{}
		return true
	}

	if queued {
		q.items = slices.DeleteFunc(q.items, req.Same)
	}
	q.items = slices.Insert(q.items, 0, req)
	q.targets[req.Target] = struct{}{}
	return true
}

// Pop removes and returns the front request.
func (q *Queue) Pop() (Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Request{}, false
	}
	req := q.items[0]
	q.items[0] = Request{}
	q.items = q.items[1:]
	delete(q.targets, req.Target)
	return req, true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queue in service order.
func (q *Queue) Snapshot() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.items)
}
