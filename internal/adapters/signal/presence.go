package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

func (ctl *Controller) handleMediaState(sid core.SessionID, conn *WsConn, data []byte) {
	var p struct {
		Type         string `json:"type"`
		MeetingID    string `json:"meetingId"`
		VideoEnabled bool   `json:"isVideoEnabled"`
		AudioEnabled bool   `json:"isAudioEnabled"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad media-state payload")
		ctl.sendError(conn, "invalid message")
		return
	}
	ctl.Coord.SetMediaState(sid, p.MeetingID, domain.MediaState{
		VideoEnabled: p.VideoEnabled,
		AudioEnabled: p.AudioEnabled,
	})
}

func (ctl *Controller) handleTyping(sid core.SessionID, conn *WsConn, data []byte, isTyping bool) {
	var p struct {
		Type      string `json:"type"`
		MeetingID string `json:"meetingId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad typing payload")
		ctl.sendError(conn, "invalid message")
		return
	}
	ctl.Coord.Typing(sid, p.MeetingID, isTyping)
}

func (ctl *Controller) handleScreenShare(sid core.SessionID, conn *WsConn, data []byte, started bool) {
	var p struct {
		Type      string `json:"type"`
		MeetingID string `json:"meetingId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad screen-share payload")
		ctl.sendError(conn, "invalid message")
		return
	}
	ctl.Coord.ScreenShare(sid, p.MeetingID, started)
}
