package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/core"
)

// handleRelay forwards offer/answer/ice-candidate frames point to point. The
// negotiation body under field is opaque; only target and sender are ours.
func (ctl *Controller) handleRelay(sid core.SessionID, conn *WsConn, event, field string, data []byte) {
	var p map[string]json.RawMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("event", event).Msg("bad relay payload")
		ctl.sendError(conn, "invalid message")
		return
	}

	var target string
	if raw, ok := p["target"]; ok {
		_ = json.Unmarshal(raw, &target)
	}
	if target == "" {
		ctl.sendError(conn, "Target is required")
		return
	}

	ctl.Coord.Relay(sid, event, target, field, p[field])
}
