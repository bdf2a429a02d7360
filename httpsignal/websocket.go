package httpsignal

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nexusrtc/rtcd/log"
)

// upgrader performs the RFC 6455 handshake spec.md §4.4 describes by hand
// (accept key = base64 of SHA-1 over client key + the fixed magic GUID):
// gorilla/websocket already implements exactly that negotiation, so the
// signaling path reuses it rather than re-deriving the handshake.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// MessageHandler processes one inbound WebSocket text/binary message.
type MessageHandler func(conn *websocket.Conn, messageType int, data []byte)

// WebSocketHandler upgrades qualifying requests and hands the connection
// to onMessage for its lifetime, the out-of-band counterpart to WHIP for
// peers that want a persistent signaling channel instead of one-shot POSTs.
type WebSocketHandler struct {
	OnConnect MessageHandler
	Log       log.Logger
}

// NewWebSocketHandler creates a WebSocketHandler invoking onMessage for
// every message received on a newly upgraded connection.
func NewWebSocketHandler(onMessage MessageHandler, logger log.Logger) *WebSocketHandler {
	if logger == nil {
		logger = log.Nil{}
	}
	return &WebSocketHandler{
		OnConnect: onMessage,
		Log:       logger.WithFields(log.Field{Key: "component", Value: "ws-signal"}),
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed: " + err.Error())
		return
	}
	go h.readLoop(conn)
}

// readLoop implements the MigrateTo handoff spec.md §4.4 describes: once
// upgraded, subsequent reads on the fd are driven entirely by this loop
// rather than the HTTP request parser.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if h.OnConnect != nil {
			h.OnConnect(conn, messageType, data)
		}
	}
}
