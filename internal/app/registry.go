package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

// sessionEntry is everything the coordinator tracks per live connection.
// The lifecycle mutex serializes join/leave/disconnect for one connection,
// including across the suspension point of the meeting-store call; map-level
// access stays under the registry mutex.
type sessionEntry struct {
	lifecycle sync.Mutex

	Sender core.Sender
	Cancel context.CancelFunc

	User  *domain.User // nil until authenticated; first bind wins
	Room  string       // current meeting id, "" when unjoined
	Name  string       // display name supplied on join
	Media domain.MediaState
}

// Registry stores connection sessions. Membership itself lives in RoomRegistry;
// this map only annotates connections (identity, current room, media flags).
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *Registry) Bind(sid core.SessionID, sender core.Sender, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{Sender: sender, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound session")
}

// Remove deletes the session and reports whether this caller was the one that
// removed it. Disconnect cleanup keys off the bool so it runs exactly once no
// matter how many times the transport reports the close.
func (r *Registry) Remove(sid core.SessionID) (*sessionEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("removed session")
	return e, true
}

func (r *Registry) Sender(sid core.SessionID) (core.Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Sender, true
	}
	return nil, false
}

// Lifecycle returns the per-connection serialization lock, or false when the
// connection is already gone.
func (r *Registry) Lifecycle(sid core.SessionID) (*sync.Mutex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return &e.lifecycle, true
	}
	return nil, false
}

// Authenticate binds an identity to the connection. The binding is monotonic:
// the first successful authentication wins and is never replaced or erased.
func (r *Registry) Authenticate(sid core.SessionID, user domain.User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok || e.User != nil {
		return false
	}
	u := user
	e.User = &u
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("user", user.ID).Msg("authenticated")
	return true
}

func (r *Registry) Identity(sid core.SessionID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok && e.User != nil {
		return *e.User, true
	}
	return domain.User{}, false
}

// SetRoom records the membership annotation after a successful join.
func (r *Registry) SetRoom(sid core.SessionID, meetingID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return false
	}
	e.Room = meetingID
	e.Name = name
	e.Media = domain.MediaState{}
	return true
}

func (r *Registry) ClearRoom(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.Room = ""
		e.Media = domain.MediaState{}
	}
}

func (r *Registry) RoomOf(sid core.SessionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok || e.Room == "" {
		return "", false
	}
	return e.Room, true
}

func (r *Registry) SetMedia(sid core.SessionID, ms domain.MediaState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.Media = ms
	}
}

// DisplayName resolves the name peers see: join-time name, then the
// authenticated username, then the guest fallback.
func (r *Registry) DisplayName(sid core.SessionID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return domain.GuestName
	}
	if e.Name != "" {
		return e.Name
	}
	if e.User != nil && e.User.Username != "" {
		return e.User.Username
	}
	return domain.GuestName
}
