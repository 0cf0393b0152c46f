package grok

import (
	"context"
	"net/http"

	"github.com/Laisky/errors/v2"
	"github.com/gorilla/websocket"
)

// DuplexSession is a bidirectional message socket. Generation logic only sees
// this interface, so the transport can be swapped without touching it.
type DuplexSession interface {
	// SendJSON marshals and sends one outbound message.
	SendJSON(v any) error
	// ReadMessage blocks for the next inbound message.
	ReadMessage() ([]byte, error)
	Close() error
}

// SessionOpener opens a duplex session against url with the given headers.
type SessionOpener func(ctx context.Context, url string, header http.Header) (DuplexSession, error)

type wsSession struct {
	conn *websocket.Conn
}

// OpenWebsocketSession is the production SessionOpener.
func OpenWebsocketSession(ctx context.Context, url string, header http.Header) (DuplexSession, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, wrapError(ErrKindTransport, errors.Errorf("duplex dial failed with status %d", resp.StatusCode).Error(), err)
		}
		return nil, TransportError(err)
	}
	return &wsSession{conn: conn}, nil
}

func (s *wsSession) SendJSON(v any) error {
	return errors.Wrap(s.conn.WriteJSON(v), "send duplex message")
}

func (s *wsSession) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsSession) Close() error {
	return s.conn.Close()
}

// rateLimitCloseCodes are socket close codes the upstream uses when it
// throttles a session rather than erroring it.
var rateLimitCloseCodes = map[int]bool{
	websocket.ClosePolicyViolation: true, // 1008
	websocket.CloseTryAgainLater:   true, // 1013
}

// closeIndicatesRateLimit inspects a read error for a throttling close code.
func closeIndicatesRateLimit(err error) bool {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return rateLimitCloseCodes[closeErr.Code]
	}
	return false
}

// isNormalClose reports a clean session end.
func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
