package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/app"
	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

func (ctl *Controller) handleJoin(ctx context.Context, sid core.SessionID, conn *WsConn, data []byte) {
	var p struct {
		Type      string `json:"type"`
		MeetingID string `json:"meetingId"`
		Username  string `json:"username"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, "invalid message")
		return
	}
	if p.MeetingID == "" {
		ctl.sendError(conn, "Meeting ID is required")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("meeting", p.MeetingID).Msg("join")
	res, err := ctl.Coord.Join(ctx, sid, p.MeetingID, p.Username)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrMeetingNotActive):
			ctl.sendError(conn, "Meeting not found or not active")
		case errors.Is(err, app.ErrMissingField):
			ctl.sendError(conn, "Meeting ID is required")
		default:
			log.Error().Err(err).Str("module", "signal").Str("meeting", p.MeetingID).Msg("join failed")
			ctl.sendError(conn, "Failed to join meeting")
		}
		return
	}

	ctl.sendJSON(conn, struct {
		Type         string               `json:"type"`
		MeetingID    string               `json:"meetingId"`
		Participants []domain.Participant `json:"participants"`
	}{
		Type:         "room-joined",
		MeetingID:    p.MeetingID,
		Participants: res.Participants,
	})

	ctl.sendJSON(conn, struct {
		Type        string `json:"type"`
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description,omitempty"`
		IsPrivate   bool   `json:"isPrivate"`
	}{
		Type:        "meeting-info",
		ID:          res.Meeting.ID,
		Title:       res.Meeting.Title,
		Description: res.Meeting.Description,
		IsPrivate:   res.Meeting.IsPrivate,
	})
}

func (ctl *Controller) handleLeave(sid core.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave")
	ctl.Coord.Leave(sid)
}
