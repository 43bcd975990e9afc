package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/app"
	"github.com/meetwave/meetwave/internal/core"
)

func (ctl *Controller) handleChat(ctx context.Context, sid core.SessionID, conn *WsConn, data []byte) {
	var p struct {
		Type        string `json:"type"`
		MeetingID   string `json:"meetingId"`
		Message     string `json:"message"`
		MessageType string `json:"messageType"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad chat payload")
		ctl.sendError(conn, "invalid message")
		return
	}

	if _, err := ctl.Coord.Chat(ctx, sid, p.MeetingID, p.Message, p.MessageType); err != nil {
		if errors.Is(err, app.ErrMissingField) {
			ctl.sendError(conn, "Meeting ID and message are required")
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("meeting", p.MeetingID).Msg("chat failed")
		ctl.sendError(conn, "Failed to send message")
	}
}
