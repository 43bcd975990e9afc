package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
	"github.com/meetwave/meetwave/internal/metrics"
)

// RoomRegistry maps meeting ids to their current member sets. A meeting is
// present exactly while it has at least one member: Join creates the entry,
// the Leave that removes the last member deletes it in the same locked step.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[core.SessionID]domain.Participant
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string]map[core.SessionID]domain.Participant)}
}

// Join adds or overwrites the participant record. Re-joining with the same
// connection id replaces the stored info instead of duplicating membership.
func (r *RoomRegistry) Join(meetingID string, sid core.SessionID, p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[meetingID]
	if !ok {
		members = make(map[core.SessionID]domain.Participant)
		r.rooms[meetingID] = members
	}
	members[sid] = p
	metrics.RoomsActive.Set(float64(len(r.rooms)))
	log.Info().Str("module", "app.rooms").Str("meeting", meetingID).Str("sid", string(sid)).Int("members", len(members)).Msg("member joined")
}

// Leave removes the member; a no-op when absent. Deleting the last member
// deletes the room entry synchronously, so no room is ever observable empty.
func (r *RoomRegistry) Leave(meetingID string, sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[meetingID]
	if !ok {
		return
	}
	if _, ok := members[sid]; !ok {
		return
	}
	delete(members, sid)
	if len(members) == 0 {
		delete(r.rooms, meetingID)
	}
	metrics.RoomsActive.Set(float64(len(r.rooms)))
	log.Info().Str("module", "app.rooms").Str("meeting", meetingID).Str("sid", string(sid)).Int("members", len(members)).Msg("member left")
}

// Members returns a copied snapshot, excluding the given connection when
// exclude is non-empty. Safe to range over while joins/leaves proceed.
func (r *RoomRegistry) Members(meetingID string, exclude core.SessionID) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[meetingID]
	out := make([]domain.Participant, 0, len(members))
	for sid, p := range members {
		if sid == exclude {
			continue
		}
		out = append(out, p)
	}
	return out
}

// MemberIDs mirrors Members for delivery fan-out.
func (r *RoomRegistry) MemberIDs(meetingID string, exclude core.SessionID) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[meetingID]
	out := make([]core.SessionID, 0, len(members))
	for sid := range members {
		if sid == exclude {
			continue
		}
		out = append(out, sid)
	}
	return out
}

// Contains reports whether the connection is currently a member.
func (r *RoomRegistry) Contains(meetingID string, sid core.SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[meetingID][sid]
	return ok
}

// SetMedia updates the stored media flags of one member.
func (r *RoomRegistry) SetMedia(meetingID string, sid core.SessionID, ms domain.MediaState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[meetingID]
	if !ok {
		return false
	}
	p, ok := members[sid]
	if !ok {
		return false
	}
	p.VideoEnabled = ms.VideoEnabled
	p.AudioEnabled = ms.AudioEnabled
	members[sid] = p
	return true
}

func (r *RoomRegistry) Count(meetingID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[meetingID])
}

// RoomInfo is the live view of one meeting for the active listing.
type RoomInfo struct {
	MeetingID        string               `json:"meetingId"`
	ParticipantCount int                  `json:"participantCount"`
	Participants     []domain.Participant `json:"participants"`
}

// Snapshot lists every live room with its participants.
func (r *RoomRegistry) Snapshot() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for id, members := range r.rooms {
		info := RoomInfo{MeetingID: id, ParticipantCount: len(members)}
		info.Participants = make([]domain.Participant, 0, len(members))
		for _, p := range members {
			info.Participants = append(info.Participants, p)
		}
		out = append(out, info)
	}
	return out
}
