package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

// handleAuthenticate resolves a bearer token into an identity. Failure is
// reported to this connection only; it stays usable as a guest.
func (ctl *Controller) handleAuthenticate(ctx context.Context, sid core.SessionID, conn *WsConn, data []byte) {
	var p struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad authenticate payload")
		ctl.sendJSON(conn, map[string]any{"type": "auth_error", "message": "Authentication failed"})
		return
	}

	user, err := ctl.Coord.Authenticate(ctx, sid, p.Token)
	if err != nil {
		ctl.sendJSON(conn, map[string]any{"type": "auth_error", "message": "Authentication failed"})
		return
	}
	ctl.sendJSON(conn, struct {
		Type string      `json:"type"`
		User domain.User `json:"user"`
	}{
		Type: "authenticated",
		User: user,
	})
}
