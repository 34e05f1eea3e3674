package realtime

import "sync"

// frameQueue is an unbounded FIFO of outbound frames. Producers never block;
// the single write-loop consumer blocks until an item arrives or the queue
// closes. Frames reach the wire in exactly the order they were pushed.
type frameQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []any
	closed bool
}

func newFrameQueue() *frameQueue {
	q := &frameQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a frame. Returns false if the queue has been closed.
func (q *frameQueue) Push(v any) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, v)
	q.cond.Signal()
	return true
}

// Pop blocks until a frame is available or the queue closes.
func (q *frameQueue) Pop() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	v := q.items[0]
	q.items = q.items[1:]
	return v, true
}

// Close drops any queued frames and unblocks the consumer. Idempotent.
func (q *frameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}

func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
