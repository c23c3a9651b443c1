package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/go-go-golems/focusrelay/pkg/protocol"
)

// FrameWriter delivers outbound frames to one client.
type FrameWriter interface {
	WriteFrame(frame protocol.Frame) error
}

type wsConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
}

// ConnWriter serialises frame writes on a websocket connection. Several
// streams of one session write concurrently; the connection allows only one
// writer at a time.
type ConnWriter struct {
	mu           sync.Mutex
	conn         wsConn
	writeTimeout time.Duration
}

var _ FrameWriter = &ConnWriter{}

func NewConnWriter(conn wsConn, writeTimeout time.Duration) *ConnWriter {
	return &ConnWriter{conn: conn, writeTimeout: writeTimeout}
}

func (w *ConnWriter) WriteFrame(frame protocol.Frame) error {
	if w == nil || w.conn == nil {
		return errors.New("conn writer: no connection")
	}
	b, err := frame.Marshal()
	if err != nil {
		return errors.Wrap(err, "conn writer: encode frame")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return errors.Wrap(err, "conn writer: set deadline")
		}
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrap(err, "conn writer: write")
	}
	return nil
}
