package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Options tune the transport layer per deployment.
type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (o Options) withDefaults() Options {
	if o.ReadLimit == 0 {
		o.ReadLimit = 32768
	}
	if o.PingPeriod == 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.SendBuffer == 0 {
		o.SendBuffer = 32
	}
	return o
}

type SignalWSController struct {
	Coord  *app.Coordinator
	Limits *MessageRateLimiter
	opts   Options
}

func NewSignalWSController(coord *app.Coordinator, limits *MessageRateLimiter, opts Options) *SignalWSController {
	return &SignalWSController{
		Coord:  coord,
		Limits: limits,
		opts:   opts.withDefaults(),
	}
}

// wsSignalConn wraps a websocket with a bounded send queue. TrySend fails
// fast instead of blocking so one slow peer cannot stall a broadcast.
type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware.
		return true
	},
}

// HandleSignal accepts a signaling connection for the room in the path.
// A missing or closed room is refused after the upgrade with a policy
// violation close so the browser can tell it apart from a normal closure.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	roomID := domain.RoomID(c.Param("roomId"))
	displayName := c.Query("displayName")
	if len(displayName) > domain.MaxDisplayNameLen {
		displayName = displayName[:domain.MaxDisplayNameLen]
	}
	userID := domain.UserID(c.GetString("client_token"))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	sid := core.SessionID(uuid.NewString())
	conn := &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	connCtx, cancel := context.WithCancel(ctx)
	participant, err := ctl.Coord.Connect(connCtx, sid, conn, roomID, userID, displayName, cancel)
	if err != nil {
		cancel()
		ctl.refuse(ws, err)
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).
		Str("participant", string(participant.ID)).Str("room", string(roomID)).Msg("new WS connection")

	go ctl.writePump(connCtx, conn)
	go ctl.readPump(connCtx, sid, participant.ID, conn)
}

func (ctl *SignalWSController) refuse(ws *websocket.Conn, err error) {
	reason := "join refused"
	code := websocket.ClosePolicyViolation
	if errors.Is(err, app.ErrRoomNotOpen) {
		reason = "room does not exist or is closed"
	}
	deadline := time.Now().Add(ctl.opts.WriteTimeout)
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = ws.Close()
	log.Info().Str("module", "signal").Str("reason", reason).Msg("connection refused")
}
