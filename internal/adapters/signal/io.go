package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/core"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/metrics"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Closing the socket unblocks the read pump promptly.
			c.Close()
			return
		case frame, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, sid core.SessionID, pid domain.ParticipantID, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Coord.Disconnect(sid)
		ctl.Limits.Forget(pid)
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	pongWait := ctl.opts.PingPeriod + ctl.opts.PingPeriod/9
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
			}
			return
		}
		ctl.handleInbound(sid, pid, c, data)
	}
}

// handleInbound validates one message from a peer. Rejections go back to the
// sender only; they are never broadcast and never close the connection.
func (ctl *SignalWSController) handleInbound(sid core.SessionID, pid domain.ParticipantID, c *wsSignalConn, data []byte) {
	if !ctl.Limits.Allow(pid) {
		metrics.RateLimitHits.Inc()
		ctl.sendError(c, "rate limit exceeded")
		return
	}

	env, err := core.DecodeInbound(data)
	if err != nil {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("invalid inbound message")
		ctl.sendError(c, "invalid message type")
		return
	}

	ctl.Coord.Relay(sid, env)
}

func (ctl *SignalWSController) sendError(c *wsSignalConn, reason string) {
	frame, err := core.ErrorEnvelope(reason).Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("encode error reply")
		return
	}
	_ = c.TrySend(frame)
}
