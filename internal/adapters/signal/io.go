package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/core"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump serializes all inbound handling for one connection; handlers run to
// completion in arrival order, and disconnect cleanup runs after the loop
// exits, on the same goroutine.
func (ctl *Controller) readPump(ctx context.Context, sid core.SessionID, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Coord.Disconnect(sid)
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				return
			}
			ctl.handleFrame(ctx, sid, c, data)
		}
	}
}

// handleFrame decodes the type tag and dispatches. Every failure is isolated
// to this one message; nothing a client sends can take the pump down.
func (ctl *Controller) handleFrame(ctx context.Context, sid core.SessionID, c *WsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		ctl.sendError(c, "invalid message")
		return
	}

	switch env.Type {
	case "authenticate":
		ctl.handleAuthenticate(ctx, sid, c, data)
	case "join-room":
		ctl.handleJoin(ctx, sid, c, data)
	case "leave-room":
		ctl.handleLeave(sid)
	case "offer":
		ctl.handleRelay(sid, c, "offer", "offer", data)
	case "answer":
		ctl.handleRelay(sid, c, "answer", "answer", data)
	case "ice-candidate":
		ctl.handleRelay(sid, c, "ice-candidate", "candidate", data)
	case "media-state-change":
		ctl.handleMediaState(sid, c, data)
	case "chat-message":
		ctl.handleChat(ctx, sid, c, data)
	case "typing-start":
		ctl.handleTyping(sid, c, data, true)
	case "typing-stop":
		ctl.handleTyping(sid, c, data, false)
	case "screen-share-start":
		ctl.handleScreenShare(sid, c, data, true)
	case "screen-share-stop":
		ctl.handleScreenShare(sid, c, data, false)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *Controller) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *WsConn, msg string) {
	ctl.sendJSON(c, map[string]any{
		"type":    "error",
		"message": msg,
	})
}
