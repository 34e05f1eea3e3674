package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"
)

type inboundMsg struct {
	data []byte
	err  error
}

// fakeConn is an in-memory stand-in for a websocket connection. Tests feed
// inbound frames with serverSend and break the stream with failRead.
type fakeConn struct {
	mu      sync.Mutex
	wrote   [][]byte
	inbound chan inboundMsg
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan inboundMsg, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case <-c.closed:
		return nil, errors.New("use of closed connection")
	case m := <-c.inbound:
		return m.data, m.err
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.wrote = append(c.wrote, raw)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Close(bool) error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) serverSend(raw string) {
	c.inbound <- inboundMsg{data: []byte(raw)}
}

func (c *fakeConn) failRead(err error) {
	c.inbound <- inboundMsg{err: err}
}

func (c *fakeConn) writtenTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var types []string
	for _, raw := range c.wrote {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(raw, &env)
		types = append(types, env.Type)
	}
	return types
}

// fakeDialer fails the first failures dials, then hands out fresh fakeConns.
type fakeDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
	conns    []*fakeConn
}

func (d *fakeDialer) Dial(context.Context, string, http.Header) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
