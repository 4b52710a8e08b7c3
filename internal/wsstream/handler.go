// Package wsstream exposes processed trackpad frames to websocket clients.
package wsstream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/neuroplastio/neio-trackpad/internal/hidsvc"
	"go.uber.org/zap"
)

// FrameSource is the part of the hid service the stream depends on.
type FrameSource interface {
	SubscribeFrames(ctx context.Context, addrs ...hidsvc.Address) <-chan hidsvc.FrameMessage
	Sessions() []hidsvc.SessionInfo
}

type MessageType string

const (
	MessageHello MessageType = "hello"
	MessageFrame MessageType = "frame"
)

// Message is the envelope of everything written to a client. The first
// message of a connection is a hello with the running sessions.
type Message struct {
	Type     MessageType          `json:"type"`
	Sessions []hidsvc.SessionInfo `json:"sessions,omitempty"`
	Frame    *hidsvc.FrameEvent   `json:"frame,omitempty"`
}

type handlerOptions struct {
	pingEvery    time.Duration
	pongWait     time.Duration
	writeTimeout time.Duration
}

var defaultHandlerOptions = handlerOptions{
	pingEvery:    10 * time.Second,
	pongWait:     30 * time.Second,
	writeTimeout: 5 * time.Second,
}

type HandlerOption func(*handlerOptions)

// WithKeepalive sets how often clients are pinged and how long a pong may
// take before the connection is dropped.
func WithKeepalive(pingEvery, pongWait time.Duration) HandlerOption {
	return func(o *handlerOptions) {
		o.pingEvery = pingEvery
		o.pongWait = pongWait
	}
}

type Handler struct {
	log      *zap.Logger
	source   FrameSource
	options  handlerOptions
	upgrader websocket.Upgrader
}

func NewHandler(log *zap.Logger, source FrameSource, opts ...HandlerOption) *Handler {
	options := defaultHandlerOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Handler{
		log:     log,
		source:  source,
		options: options,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the request and streams frames until the client goes
// away. Repeated "device" query parameters limit the stream to those
// addresses.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var addrs []hidsvc.Address
	for _, s := range r.URL.Query()["device"] {
		addr, err := hidsvc.ParseAddress(s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		addrs = append(addrs, addr)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	log := h.log.With(zap.String("remote", r.RemoteAddr))
	log.Debug("Frame stream client connected")
	defer log.Debug("Frame stream client disconnected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	c := &client{
		conn:    conn,
		options: h.options,
	}
	defer conn.Close()

	frames := h.source.SubscribeFrames(ctx, addrs...)

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(h.options.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.options.pongWait))
	})
	go func() {
		defer cancel()
		c.readLoop()
	}()

	err = c.writeJSON(Message{Type: MessageHello, Sessions: h.source.Sessions()})
	if err != nil {
		log.Debug("failed to write hello", zap.Error(err))
		return
	}

	ping := time.NewTicker(h.options.pingEvery)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case <-ping.C:
			err := c.ping()
			if err != nil {
				log.Debug("failed to ping", zap.Error(err))
				return
			}
		case msg, ok := <-frames:
			if !ok {
				c.close()
				return
			}
			frame := msg.Message
			err := c.writeJSON(Message{Type: MessageFrame, Frame: &frame})
			if err != nil {
				log.Debug("failed to write frame", zap.Error(err))
				return
			}
		}
	}
}

type client struct {
	conn    *websocket.Conn
	options handlerOptions
	mu      sync.Mutex
}

// readLoop drains the connection so control frames get processed. Clients
// are not expected to send data.
func (c *client) readLoop() {
	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (c *client) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.options.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, b)
}

func (c *client) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.options.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, []byte("ping"))
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.options.writeTimeout))
}
