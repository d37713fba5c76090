package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// wsConn is the slice of *websocket.Conn a Client actually drives.
// Narrowing to an interface lets tests substitute a fake transport
// without dialing a real socket.
type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, data []byte, err error)
	Close() error
}

// Dialer opens the transport a Client speaks frames over. The default
// dials a real websocket; tests inject a fake one.
type Dialer func(ctx context.Context, url string) (wsConn, error)

// DialWebsocket is the default Dialer, backed by gorilla/websocket.
func DialWebsocket(ctx context.Context, url string) (wsConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return conn, nil
}

// transport owns the live connection and the goroutine reading frames
// off it. It is created fresh on every successful Connect and torn
// down on Close.
type transport struct {
	conn   wsConn
	onMsg  func(Frame)
	onDone func(error)

	writeMu sync.Mutex
}

func newTransport(conn wsConn, onMsg func(Frame), onDone func(error)) *transport {
	t := &transport{conn: conn, onMsg: onMsg, onDone: onDone}
	go t.readLoop()
	return t
}

// readLoop decodes every text frame the connection delivers until it
// errors or closes, then reports the terminal error once via onDone.
func (t *transport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.onDone(err)
			return
		}
		frame, err := DecodeFrame(string(data))
		if err != nil {
			continue
		}
		t.onMsg(frame)
	}
}

// Send writes one frame to the wire. Concurrent calls are serialized:
// gorilla/websocket forbids more than one writer at a time on a
// connection.
func (t *transport) Send(f Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, []byte(f.Encode()))
}

func (t *transport) Close() error {
	return t.conn.Close()
}
