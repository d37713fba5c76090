package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latchql/latch/internal/ir"
)

// fakeConn is an in-memory wsConn: writes are recorded, and Push lets
// a test deliver a server frame into the client's read loop.
type fakeConn struct {
	mu      sync.Mutex
	written [][]byte
	incoming chan []byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 8)}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-f.incoming
	if !ok {
		return 0, nil, io.EOF
	}
	return 1, data, nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
	return nil
}

func (f *fakeConn) push(frame Frame) {
	f.incoming <- []byte(frame.Encode())
}

func dialFake(conn *fakeConn) Dialer {
	return func(ctx context.Context, url string) (wsConn, error) { return conn, nil }
}

func TestClientConnectDialsAndOpens(t *testing.T) {
	conn := newFakeConn()
	c := New(WithServers([]string{"ws://example.invalid"}), WithDialer(dialFake(conn)))

	require.NoError(t, c.Connect(context.Background(), 1000))
	assert.Equal(t, Open, c.Status())

	require.NoError(t, c.Close(nil))
	assert.Equal(t, Closed, c.Status())
}

func TestClientRoutesResponseFrameToPendingRequest(t *testing.T) {
	conn := newFakeConn()
	c := New(WithServers([]string{"ws://example.invalid"}), WithDialer(dialFake(conn)))
	require.NoError(t, c.Connect(context.Background(), 1000))

	resolved := make(chan ir.IRValue, 1)
	id, err := c.BeginRequest(1000, WaitForAck, func(v ir.IRValue) { resolved <- v }, func(error) {})
	require.NoError(t, err)

	conn.push(Frame{Command: CommandQuery, ID: id, Target: "t", Args: `"ok"`})

	select {
	case v := <-resolved:
		assert.Equal(t, ir.IRString("ok"), v)
	case <-time.After(time.Second):
		t.Fatal("response was never routed to the pending request")
	}

	require.NoError(t, c.Close(nil))
}

func TestClientCallFailsWithoutTransport(t *testing.T) {
	c := New(WithServers([]string{"ws://example.invalid"}))
	err := c.Call(Frame{Command: CommandHeartbeat, ID: 1})
	assert.Error(t, err)
}

func TestClientConnectFailsWithNoServers(t *testing.T) {
	c := New()
	err := c.Connect(context.Background(), 1000)
	assert.Error(t, err)
	assert.Equal(t, NotConnected, c.Status())
}

func TestClientTransportFailureDrainsAndDisconnects(t *testing.T) {
	conn := newFakeConn()
	c := New(WithServers([]string{"ws://example.invalid"}), WithDialer(dialFake(conn)))
	require.NoError(t, c.Connect(context.Background(), 1000))

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return c.Status() == NotConnected
	}, time.Second, 5*time.Millisecond)
}
