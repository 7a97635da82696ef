package ws

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sourcegraph/jsonrpc2"
)

const (
	// maxMessageSize admits exported diagrams and saved drawio XML.
	maxMessageSize = 8 << 20
	writeTimeout   = 10 * time.Second
)

// wsObjectStream carries one JSON-RPC message per websocket text frame.
// Reads stop when ctx ends.
type wsObjectStream struct {
	ctx  context.Context
	conn *websocket.Conn

	writeMu sync.Mutex
}

var _ jsonrpc2.ObjectStream = (*wsObjectStream)(nil)

func newObjectStream(ctx context.Context, conn *websocket.Conn) *wsObjectStream {
	conn.SetReadLimit(maxMessageSize)
	return &wsObjectStream{ctx: ctx, conn: conn}
}

func (s *wsObjectStream) ReadObject(v interface{}) error {
	_, data, err := s.conn.Read(s.ctx)
	if err != nil {
		if isClosure(err) {
			return io.EOF
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *wsObjectStream) WriteObject(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(s.ctx, writeTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsObjectStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// isClosure reports a clean close by the peer, which jsonrpc2 should see
// as EOF.
func isClosure(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
