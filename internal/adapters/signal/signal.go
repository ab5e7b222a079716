package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/RoomRelay/internal/app"
	"github.com/dkeye/RoomRelay/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Options tune the per-connection transport. Zero timeouts disable them.
type Options struct {
	ReadLimit       int64
	SendBuffer      int
	PingPeriod      time.Duration
	IdentifyTimeout time.Duration
	IdleTimeout     time.Duration
	RateLimit       int
	RateInterval    time.Duration
}

type SignalWSController struct {
	Orch    *app.Orchestrator
	opts    Options
	limiter *RoomRateLimiter
}

func NewSignalWSController(orch *app.Orchestrator, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	ctl := &SignalWSController{Orch: orch, opts: opts}
	if opts.RateLimit > 0 && opts.RateInterval > 0 {
		ctl.limiter = NewRoomRateLimiter(opts.RateLimit, opts.RateInterval)
	}
	return ctl
}

// WSConn is an indirection over *websocket.Conn to ease testing.
type WSConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	WriteControl(mt int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// WsSignalConn is the outbound queue of one connection.
// It implements core.SignalConnection; the write pump owns the socket.
type WsSignalConn struct {
	conn WSConn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func newWsSignalConn(conn WSConn, buffer int) *WsSignalConn {
	return &WsSignalConn{conn: conn, send: make(chan core.Frame, buffer)}
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames. Frames already queued are still written.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ctl.Serve(ctx, ws, c.ClientIP())
}

// Serve runs one connection to completion on the calling goroutine.
func (ctl *SignalWSController) Serve(parent context.Context, ws WSConn, clientIP string) {
	if ctl.opts.ReadLimit > 0 {
		ws.SetReadLimit(ctl.opts.ReadLimit)
	}
	ctx, cancel := context.WithCancel(parent)
	s := &session{
		id:       core.ConnID(uuid.NewString()),
		conn:     newWsSignalConn(ws, ctl.opts.SendBuffer),
		clientIP: clientIP,
	}
	total := ctl.Orch.Connect(s.id, cancel)
	log.Info().Str("module", "signal").Str("conn", string(s.id)).Str("ip", clientIP).Int("clients", total).Msg("new WS connection")

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		ctl.writePump(ctx, s.conn)
	}()

	defer ctl.finalize(ctx, s, cancel, pumpDone)
	ctl.run(ctx, s)
}
