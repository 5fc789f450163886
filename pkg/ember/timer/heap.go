// Package timer implements an indexed min-heap of (id, deadline, callback)
// timer nodes, keyed on monotonic deadline, supporting O(log n) add, adjust,
// delete and extract-expired. It backs the reactor's idle-connection
// eviction: every connection holds one node keyed by its file descriptor.
package timer

import "errors"

// ErrNotFound is returned by Adjust when the id has no corresponding node.
var ErrNotFound = errors.New("timer: id not present")

// Callback is invoked synchronously by Tick/GetNextTick/DoWork after its
// node has been removed from the heap; callbacks may re-enter
// Add/Adjust/Del/DoWork to schedule further work, matching the original's
// re-entrant tick().
type Callback func()

// node is a single scheduled timeout.
type node struct {
	id       int
	deadline int64 // UnixNano, monotonic-friendly via time.Now().UnixNano()
	cb       Callback
}

// Heap is an indexed min-heap of timer nodes. It is NOT safe for concurrent
// use; the reactor guards it with its own mutex (see package reactor).
type Heap struct {
	nodes []node
	ref   map[int]int // id -> index in nodes
	now   func() int64
}

// New returns an empty Heap. now is injectable for deterministic tests; pass
// nil to use the wall clock.
func New(now func() int64) *Heap {
	if now == nil {
		now = nanoNow
	}
	h := &Heap{ref: make(map[int]int)}
	h.now = now
	return h
}

// Len returns the number of scheduled nodes.
func (h *Heap) Len() int { return len(h.nodes) }

// Has reports whether id currently has a scheduled node.
func (h *Heap) Has(id int) bool {
	_, ok := h.ref[id]
	return ok
}

// Add schedules id to fire after timeoutMS milliseconds, invoking cb. If id
// is already scheduled, its deadline and callback are overwritten and the
// node is repositioned (sift-down first, since Add is also used to extend
// an existing deadline; sift-up as a fallback if sift-down didn't move it,
// covering the case where the new deadline is sooner than before).
func (h *Heap) Add(id int, timeoutMS int64, cb Callback) {
	deadline := h.now() + timeoutMS*int64(1e6)
	if i, ok := h.ref[id]; ok {
		h.nodes[i].deadline = deadline
		h.nodes[i].cb = cb
		if !h.siftDown(i) {
			h.siftUp(i)
		}
		return
	}
	i := len(h.nodes)
	h.nodes = append(h.nodes, node{id: id, deadline: deadline, cb: cb})
	h.ref[id] = i
	h.siftUp(i)
}

// Adjust extends an existing node's deadline to now+timeoutMS. It requires
// id to already be scheduled (ErrNotFound otherwise), since it is only ever
// used to push a deadline further out — never to shorten one — so only
// sift-down is needed.
func (h *Heap) Adjust(id int, timeoutMS int64) error {
	i, ok := h.ref[id]
	if !ok {
		return ErrNotFound
	}
	h.nodes[i].deadline = h.now() + timeoutMS*int64(1e6)
	h.siftDown(i)
	return nil
}

// DoWork removes id's node, then invokes its callback. No-op if id is absent.
func (h *Heap) DoWork(id int) {
	i, ok := h.ref[id]
	if !ok {
		return
	}
	cb := h.nodes[i].cb
	h.del(i)
	if cb != nil {
		cb()
	}
}

// Del removes the node at the given id, if present, without invoking its
// callback.
func (h *Heap) Del(id int) {
	i, ok := h.ref[id]
	if !ok {
		return
	}
	h.del(i)
}

// Pop removes the root node (earliest deadline) without invoking its
// callback. It is equivalent to Del on the root's id.
func (h *Heap) Pop() {
	if len(h.nodes) == 0 {
		return
	}
	h.del(0)
}

// Tick removes every node whose deadline has passed, stopping at the first
// node still in the future, then invokes the removed nodes' callbacks in
// deadline order. Re-entrant: a
// callback that calls Add with a past deadline will be picked up by the next
// Tick, not this one, matching the original's single-pass semantics.
func (h *Heap) Tick() {
	now := h.now()
	var expired []Callback
	for len(h.nodes) > 0 && h.nodes[0].deadline <= now {
		expired = append(expired, h.nodes[0].cb)
		h.del(0)
	}
	for _, cb := range expired {
		if cb != nil {
			cb()
		}
	}
}

// GetNextTick runs Tick, then returns the remaining milliseconds until the
// new root's deadline (clamped to 0), or -1 if the heap is empty. This is
// the value the reactor passes as the poller's wait timeout.
func (h *Heap) GetNextTick() int64 {
	h.Tick()
	if len(h.nodes) == 0 {
		return -1
	}
	remainingNS := h.nodes[0].deadline - h.now()
	if remainingNS < 0 {
		remainingNS = 0
	}
	return remainingNS / int64(1e6)
}

// del removes the node at index i by swapping it with the tail, popping the
// tail, then re-heapifying the swapped-in node at i (sift-down, or sift-up if
// sift-down didn't move it).
func (h *Heap) del(i int) {
	n := len(h.nodes) - 1
	if i != n {
		h.swap(i, n)
	}
	delete(h.ref, h.nodes[n].id)
	h.nodes = h.nodes[:n]
	if i < n {
		if !h.siftDown(i) {
			h.siftUp(i)
		}
	}
}

func (h *Heap) swap(i, j int) {
	h.nodes[i], h.nodes[j] = h.nodes[j], h.nodes[i]
	h.ref[h.nodes[i].id] = i
	h.ref[h.nodes[j].id] = j
}

func (h *Heap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if h.nodes[parent].deadline <= h.nodes[i].deadline {
			break
		}
		h.swap(i, parent)
		i = parent
	}
}

// siftDown restores heap order downward from i, bounded by n=len(nodes).
// Returns true iff the node actually moved.
func (h *Heap) siftDown(i int) bool {
	start := i
	n := len(h.nodes)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		smallest := left
		if right := left + 1; right < n && h.nodes[right].deadline < h.nodes[left].deadline {
			smallest = right
		}
		if h.nodes[i].deadline <= h.nodes[smallest].deadline {
			break
		}
		h.swap(i, smallest)
		i = smallest
	}
	return i > start
}
