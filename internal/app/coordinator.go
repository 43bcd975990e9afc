// Package app holds the room coordinator: connection registry, room
// membership, and the operations that drive join/leave/relay/broadcast.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
	"github.com/meetwave/meetwave/internal/metrics"
)

const persistTimeout = 5 * time.Second

// Coordinator wires the registries to the external collaborators and
// implements every inbound operation of the signaling protocol. All room
// broadcasts originate here; direct replies to a caller are the adapter's job.
type Coordinator struct {
	registry *Registry
	rooms    *RoomRegistry
	meetings core.MeetingStore
	chat     core.ChatSink
	verifier core.TokenVerifier
}

func NewCoordinator(reg *Registry, rooms *RoomRegistry, meetings core.MeetingStore, chat core.ChatSink, verifier core.TokenVerifier) *Coordinator {
	return &Coordinator{
		registry: reg,
		rooms:    rooms,
		meetings: meetings,
		chat:     chat,
		verifier: verifier,
	}
}

func (c *Coordinator) Registry() *Registry  { return c.registry }
func (c *Coordinator) Rooms() *RoomRegistry { return c.rooms }

// Connect registers a new live connection with its outbound endpoint.
func (c *Coordinator) Connect(sid core.SessionID, sender core.Sender, cancel context.CancelFunc) {
	c.registry.Bind(sid, sender, cancel)
	metrics.ConnectionsActive.Inc()
}

// Disconnect is the transport-initiated cleanup. It is safe to call any number
// of times; only the call that removes the session broadcasts and only once.
func (c *Coordinator) Disconnect(sid core.SessionID) {
	mu, ok := c.registry.Lifecycle(sid)
	if !ok {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	entry, removed := c.registry.Remove(sid)
	if !removed {
		return
	}
	metrics.ConnectionsActive.Dec()
	if entry.Cancel != nil {
		entry.Cancel()
	}
	if entry.Room == "" {
		return
	}
	name := entry.Name
	if name == "" && entry.User != nil {
		name = entry.User.Username
	}
	if name == "" {
		name = domain.GuestName
	}
	c.rooms.Leave(entry.Room, sid)
	c.broadcast(entry.Room, sid, "user-left", userLeftEvent{
		Type:     "user-left",
		SocketID: string(sid),
		Username: name,
	})
}

// Authenticate verifies the token and binds the identity. The binding is
// monotonic; a connection that already carries an identity keeps it.
func (c *Coordinator) Authenticate(ctx context.Context, sid core.SessionID, token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrAuthInvalid
	}
	user, err := c.verifier.Verify(ctx, token)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.coordinator").Str("sid", string(sid)).Msg("token rejected")
		return domain.User{}, ErrAuthInvalid
	}
	if !c.registry.Authenticate(sid, user) {
		if existing, ok := c.registry.Identity(sid); ok {
			return existing, nil
		}
		return domain.User{}, ErrAuthInvalid
	}
	return user, nil
}

// JoinResult is what the joining connection gets back: the meeting metadata
// and the member list excluding itself.
type JoinResult struct {
	Meeting      domain.Meeting
	Participants []domain.Participant
}

// Join moves the connection into a meeting. A connection already joined
// elsewhere leaves that room first, with a single user-left notice there,
// before the new meeting id is even validated. Re-joining the meeting it is
// already in is a quiet overwrite of the participant record; peers see no
// user-left/user-joined churn. Validation goes to the meeting store on every
// attempt; there is no caching, so an externally ended meeting stops
// accepting joins immediately.
func (c *Coordinator) Join(ctx context.Context, sid core.SessionID, meetingID, username string) (JoinResult, error) {
	if meetingID == "" {
		return JoinResult{}, ErrMissingField
	}
	mu, ok := c.registry.Lifecycle(sid)
	if !ok {
		return JoinResult{}, ErrMeetingNotActive
	}
	mu.Lock()
	defer mu.Unlock()

	current, _ := c.registry.RoomOf(sid)
	rejoin := current == meetingID
	if !rejoin {
		c.leaveLocked(sid)
	}

	meeting, err := c.meetings.GetActiveMeeting(ctx, meetingID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return JoinResult{}, ErrMeetingNotActive
		}
		return JoinResult{}, err
	}

	identity, authed := c.registry.Identity(sid)
	name := username
	if name == "" && authed {
		name = identity.Username
	}
	if name == "" {
		name = domain.GuestName
	}

	// The store call above is a suspension point. If the connection dropped
	// while it was in flight, SetRoom fails and the membership must not be
	// resurrected.
	if !c.registry.SetRoom(sid, meetingID, name) {
		return JoinResult{}, ErrMeetingNotActive
	}

	p := domain.Participant{
		SocketID: string(sid),
		Username: name,
		JoinedAt: time.Now().UTC(),
	}
	if authed {
		p.UserID = identity.ID
	}
	c.rooms.Join(meetingID, sid, p)

	if !rejoin {
		c.broadcast(meetingID, sid, "user-joined", userJoinedEvent{
			Type:     "user-joined",
			SocketID: string(sid),
			Username: name,
			UserID:   p.UserID,
		})
	}

	return JoinResult{
		Meeting:      meeting,
		Participants: c.rooms.Members(meetingID, sid),
	}, nil
}

// Leave is the explicit leave-room operation.
func (c *Coordinator) Leave(sid core.SessionID) bool {
	mu, ok := c.registry.Lifecycle(sid)
	if !ok {
		return false
	}
	mu.Lock()
	defer mu.Unlock()
	return c.leaveLocked(sid)
}

// leaveLocked removes the current membership and notifies the room. Caller
// holds the lifecycle lock.
func (c *Coordinator) leaveLocked(sid core.SessionID) bool {
	meetingID, ok := c.registry.RoomOf(sid)
	if !ok {
		return false
	}
	name := c.registry.DisplayName(sid)
	c.rooms.Leave(meetingID, sid)
	c.registry.ClearRoom(sid)
	c.broadcast(meetingID, sid, "user-left", userLeftEvent{
		Type:     "user-left",
		SocketID: string(sid),
		Username: name,
	})
	return true
}

// Relay forwards an opaque negotiation payload to one named connection. The
// payload is never inspected; a dead target is a silent drop, mirroring the
// races inherent to peer negotiation.
func (c *Coordinator) Relay(sid core.SessionID, event string, target string, field string, payload json.RawMessage) {
	sender, ok := c.registry.Sender(core.SessionID(target))
	if !ok {
		metrics.FramesDropped.Inc()
		log.Debug().Str("module", "app.coordinator").Str("event", event).Str("target", target).Msg("relay target not live, dropped")
		return
	}
	c.send(sender, event, map[string]any{
		"type":   event,
		"sender": string(sid),
		field:    payload,
	})
}

// SetMediaState updates the stored flags and tells the rest of the room.
// A sender that is not a member of the named meeting is a silent no-op.
func (c *Coordinator) SetMediaState(sid core.SessionID, meetingID string, ms domain.MediaState) {
	if meetingID == "" || !c.rooms.SetMedia(meetingID, sid, ms) {
		return
	}
	c.registry.SetMedia(sid, ms)
	c.broadcast(meetingID, sid, "user-media-state-changed", mediaStateEvent{
		Type:         "user-media-state-changed",
		SocketID:     string(sid),
		VideoEnabled: ms.VideoEnabled,
		AudioEnabled: ms.AudioEnabled,
	})
}

// Typing is a stateless relay; the coordinator tracks nothing and debounces
// nothing, that belongs to the peers.
func (c *Coordinator) Typing(sid core.SessionID, meetingID string, isTyping bool) {
	if meetingID == "" {
		return
	}
	c.broadcast(meetingID, sid, "user-typing", typingEvent{
		Type:     "user-typing",
		SocketID: string(sid),
		Username: c.registry.DisplayName(sid),
		IsTyping: isTyping,
	})
}

// ScreenShare relays share start/stop, stateless like typing.
func (c *Coordinator) ScreenShare(sid core.SessionID, meetingID string, started bool) {
	if meetingID == "" {
		return
	}
	if started {
		c.broadcast(meetingID, sid, "screen-share-started", screenShareEvent{
			Type:     "screen-share-started",
			SocketID: string(sid),
			Username: c.registry.DisplayName(sid),
		})
		return
	}
	c.broadcast(meetingID, sid, "screen-share-stopped", screenShareEvent{
		Type:     "screen-share-stopped",
		SocketID: string(sid),
	})
}

// Chat stamps the message with a server id and timestamp and broadcasts it to
// the whole room including the sender, so every UI shows the same ordering
// and clock. Persistence runs detached; its outcome never touches the
// broadcast and failures are only logged and counted.
func (c *Coordinator) Chat(ctx context.Context, sid core.SessionID, meetingID, message, messageType string) (domain.ChatMessage, error) {
	if meetingID == "" || message == "" {
		return domain.ChatMessage{}, ErrMissingField
	}
	if messageType == "" {
		messageType = "text"
	}
	msg := domain.ChatMessage{
		ID:          uuid.NewString(),
		MeetingID:   meetingID,
		SenderName:  domain.GuestName,
		Message:     message,
		MessageType: messageType,
		Timestamp:   time.Now().UTC(),
		SocketID:    string(sid),
	}
	if identity, ok := c.registry.Identity(sid); ok {
		msg.SenderID = identity.ID
		msg.SenderName = identity.Username
	} else if name := c.registry.DisplayName(sid); name != "" {
		msg.SenderName = name
	}

	c.broadcast(meetingID, "", "chat-message", chatEvent{Type: "chat-message", ChatMessage: msg})

	// Only authenticated senders have durable history, as the meeting
	// product defines it.
	if msg.SenderID != "" {
		go func() {
			pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := c.chat.Append(pctx, msg); err != nil {
				metrics.ChatPersistFailures.Inc()
				log.Error().Err(err).Str("module", "app.coordinator").Str("meeting", meetingID).Msg("chat persist failed")
			}
		}()
	}
	return msg, nil
}

// EvictMeeting clears a room after its meeting was ended through the metadata
// surface. Members get one meeting-ended notice; their connections stay up.
func (c *Coordinator) EvictMeeting(meetingID string) int {
	members := c.rooms.MemberIDs(meetingID, "")
	c.broadcast(meetingID, "", "meeting-ended", meetingEndedEvent{Type: "meeting-ended", MeetingID: meetingID})
	for _, sid := range members {
		mu, ok := c.registry.Lifecycle(sid)
		if !ok {
			continue
		}
		mu.Lock()
		if room, ok := c.registry.RoomOf(sid); ok && room == meetingID {
			c.rooms.Leave(room, sid)
			c.registry.ClearRoom(sid)
		}
		mu.Unlock()
	}
	return len(members)
}

// broadcast fans a single marshaled frame out to the room, skipping exclude
// when non-empty. Membership is snapshotted first; a member that disconnects
// mid-fan-out just fails the Sender lookup or the TrySend and is skipped.
func (c *Coordinator) broadcast(meetingID string, exclude core.SessionID, event string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("event", event).Msg("broadcast marshal")
		return
	}
	for _, sid := range c.rooms.MemberIDs(meetingID, exclude) {
		sender, ok := c.registry.Sender(sid)
		if !ok {
			continue
		}
		if err := sender.TrySend(core.Frame(b)); err != nil {
			metrics.FramesDropped.Inc()
			continue
		}
		metrics.EventsDelivered.WithLabelValues(event).Inc()
	}
}

// send marshals and delivers one frame to one endpoint, fire and forget.
func (c *Coordinator) send(sender core.Sender, event string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.coordinator").Str("event", event).Msg("send marshal")
		return
	}
	if err := sender.TrySend(core.Frame(b)); err != nil {
		metrics.FramesDropped.Inc()
		return
	}
	metrics.EventsDelivered.WithLabelValues(event).Inc()
}
