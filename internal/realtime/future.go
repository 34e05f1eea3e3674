package realtime

import (
	"context"
	"sync"
)

// Response is the correlation future for one requested backend response.
// It resolves exactly once: with the final text, or with an error when the
// connection is lost before an answer arrives.
type Response struct {
	once       sync.Once
	done       chan struct{}
	responseID string
	text       string
	err        error
}

func newResponse() *Response {
	return &Response{done: make(chan struct{})}
}

func (r *Response) complete(text string) {
	r.once.Do(func() {
		r.text = text
		close(r.done)
	})
}

func (r *Response) fail(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Await blocks until the response resolves or the context ends.
func (r *Response) Await(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-r.done:
		return r.text, r.err
	}
}

// Done exposes the completion signal for select-based callers.
func (r *Response) Done() <-chan struct{} { return r.done }

// DeltaStream is the correlation future for a streaming response: text
// fragments arrive on Deltas until the stream closes; Err reports how it
// ended.
type DeltaStream struct {
	once       sync.Once
	responseID string
	ch         chan string
	err        error
}

func newDeltaStream() *DeltaStream {
	return &DeltaStream{ch: make(chan string, 64)}
}

func (d *DeltaStream) push(delta string) {
	select {
	case d.ch <- delta:
	default:
		// Slow consumers lose deltas rather than stalling the read loop;
		// the final text still arrives via the paired Response future.
	}
}

func (d *DeltaStream) close(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.ch)
	})
}

// Deltas yields text fragments until the response finishes.
func (d *DeltaStream) Deltas() <-chan string { return d.ch }

// Err is valid once Deltas is closed.
func (d *DeltaStream) Err() error { return d.err }
