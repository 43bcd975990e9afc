package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meetwave/meetwave/internal/app"
	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (s *fakeSender) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	cp := make(core.Frame, len(f))
	copy(cp, f)
	s.frames = append(s.frames, cp)
	return nil
}

func (s *fakeSender) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *fakeSender) events(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.frames))
	for _, f := range s.frames {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err != nil {
			t.Fatalf("undecodable frame %q: %v", f, err)
		}
		out = append(out, m)
	}
	return out
}

func (s *fakeSender) eventsOf(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, e := range s.events(t) {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeSender) reset() {
	s.mu.Lock()
	s.frames = nil
	s.mu.Unlock()
}

type fakeMeetingStore struct {
	mu       sync.Mutex
	meetings map[string]domain.Meeting
	err      error
}

func (f *fakeMeetingStore) GetActiveMeeting(_ context.Context, id string) (domain.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Meeting{}, f.err
	}
	m, ok := f.meetings[id]
	if !ok || m.Status != domain.MeetingActive {
		return domain.Meeting{}, core.ErrNotFound
	}
	return m, nil
}

func (f *fakeMeetingStore) GetMeeting(_ context.Context, id string) (domain.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meetings[id]
	if !ok {
		return domain.Meeting{}, core.ErrNotFound
	}
	return m, nil
}

func (f *fakeMeetingStore) CreateMeeting(_ context.Context, m domain.Meeting) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meetings[m.ID] = m
	return nil
}

func (f *fakeMeetingStore) EndMeeting(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meetings[id]
	if !ok {
		return core.ErrNotFound
	}
	m.Status = domain.MeetingEnded
	f.meetings[id] = m
	return nil
}

func (f *fakeMeetingStore) ListMeetingsByCreator(_ context.Context, creatorID string) ([]domain.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Meeting
	for _, m := range f.meetings {
		if m.CreatorID == creatorID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMeetingStore) RecordJoin(context.Context, string, string) error { return nil }

// blockingMeetingStore parks the first GetActiveMeeting call until released,
// so a test can interleave other operations with an in-flight join.
type blockingMeetingStore struct {
	*fakeMeetingStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingMeetingStore) GetActiveMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return b.fakeMeetingStore.GetActiveMeeting(ctx, id)
}

type fakeSink struct {
	err error
	ch  chan domain.ChatMessage
}

func (f *fakeSink) Append(_ context.Context, msg domain.ChatMessage) error {
	if f.ch != nil {
		f.ch <- msg
	}
	return f.err
}

type fakeVerifier struct {
	users map[string]domain.User // token -> user
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (domain.User, error) {
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return domain.User{}, errors.New("bad token")
}

type fixture struct {
	coord *app.Coordinator
	store *fakeMeetingStore
	sink  *fakeSink
}

func newFixture() *fixture {
	store := &fakeMeetingStore{meetings: map[string]domain.Meeting{
		"m1": {ID: "m1", Title: "Standup", Status: domain.MeetingActive},
		"m2": {ID: "m2", Title: "Retro", Status: domain.MeetingActive},
	}}
	sink := &fakeSink{ch: make(chan domain.ChatMessage, 8)}
	verifier := &fakeVerifier{users: map[string]domain.User{
		"tok-alice": {ID: "u1", Username: "alice"},
		"tok-bob":   {ID: "u2", Username: "bob"},
	}}
	coord := app.NewCoordinator(app.NewRegistry(), app.NewRoomRegistry(), store, sink, verifier)
	return &fixture{coord: coord, store: store, sink: sink}
}

func (f *fixture) connect(sid core.SessionID) *fakeSender {
	s := &fakeSender{}
	f.coord.Connect(sid, s, func() {})
	return s
}

func (f *fixture) join(t *testing.T, sid core.SessionID, meetingID, username string) app.JoinResult {
	t.Helper()
	res, err := f.coord.Join(context.Background(), sid, meetingID, username)
	if err != nil {
		t.Fatalf("join %s to %s: %v", sid, meetingID, err)
	}
	return res
}

func TestJoinReturnsExistingParticipants(t *testing.T) {
	f := newFixture()
	f.connect("c1")
	f.connect("c2")

	res := f.join(t, "c1", "m1", "alice")
	if len(res.Participants) != 0 {
		t.Fatalf("first joiner should see empty room, got %+v", res.Participants)
	}
	if res.Meeting.Title != "Standup" {
		t.Fatalf("expected meeting metadata, got %+v", res.Meeting)
	}

	res = f.join(t, "c2", "m1", "bob")
	if len(res.Participants) != 1 || res.Participants[0].SocketID != "c1" {
		t.Fatalf("second joiner should see c1 only, got %+v", res.Participants)
	}
}

func TestJoinNotifiesOthersOnly(t *testing.T) {
	f := newFixture()
	s1 := f.connect("c1")
	s2 := f.connect("c2")

	f.join(t, "c1", "m1", "alice")
	f.join(t, "c2", "m1", "bob")

	joined := s1.eventsOf(t, "user-joined")
	if len(joined) != 1 || joined[0]["socketId"] != "c2" || joined[0]["username"] != "bob" {
		t.Fatalf("c1 should see exactly one user-joined for c2, got %+v", joined)
	}
	if got := s2.eventsOf(t, "user-joined"); len(got) != 0 {
		t.Fatalf("joiner must not receive its own user-joined, got %+v", got)
	}
}

func TestJoinInactiveMeeting(t *testing.T) {
	f := newFixture()
	s1 := f.connect("c1")

	_, err := f.coord.Join(context.Background(), "c1", "nope", "alice")
	if !errors.Is(err, app.ErrMeetingNotActive) {
		t.Fatalf("expected ErrMeetingNotActive, got %v", err)
	}
	if got := f.coord.Rooms().Count("nope"); got != 0 {
		t.Fatalf("failed join must not create a room, got %d members", got)
	}
	if got := s1.events(t); len(got) != 0 {
		t.Fatalf("failed join must not broadcast, got %+v", got)
	}
}

func TestJoinSwitchesRooms(t *testing.T) {
	f := newFixture()
	sA := f.connect("peerA")
	sB := f.connect("peerB")
	f.connect("mover")

	f.join(t, "peerA", "m1", "anna")
	f.join(t, "peerB", "m2", "ben")
	f.join(t, "mover", "m1", "mona")
	sA.reset()
	sB.reset()

	f.join(t, "mover", "m2", "mona")

	left := sA.eventsOf(t, "user-left")
	if len(left) != 1 || left[0]["socketId"] != "mover" {
		t.Fatalf("old room should see exactly one user-left, got %+v", left)
	}
	joined := sB.eventsOf(t, "user-joined")
	if len(joined) != 1 || joined[0]["socketId"] != "mover" {
		t.Fatalf("new room should see exactly one user-joined, got %+v", joined)
	}
	if f.coord.Rooms().Contains("m1", "mover") {
		t.Fatal("mover still member of old room")
	}
	if !f.coord.Rooms().Contains("m2", "mover") {
		t.Fatal("mover not member of new room")
	}
}

// A join that leaves the old room and then fails validation leaves the
// connection unjoined, with the old room already notified.
func TestFailedJoinLeavesOldRoom(t *testing.T) {
	f := newFixture()
	sA := f.connect("peerA")
	f.connect("mover")
	f.join(t, "peerA", "m1", "anna")
	f.join(t, "mover", "m1", "mona")
	sA.reset()

	_, err := f.coord.Join(context.Background(), "mover", "nope", "mona")
	if !errors.Is(err, app.ErrMeetingNotActive) {
		t.Fatalf("expected ErrMeetingNotActive, got %v", err)
	}
	if len(sA.eventsOf(t, "user-left")) != 1 {
		t.Fatal("old room should have been notified of the leave")
	}
	if f.coord.Rooms().Contains("m1", "mover") {
		t.Fatal("mover should be unjoined after failed join")
	}
}

// Re-joining the meeting the connection is already in overwrites the
// participant record without any user-left/user-joined churn at the peers.
func TestRejoinSameMeetingIsQuiet(t *testing.T) {
	f := newFixture()
	f.connect("c1")
	s2 := f.connect("c2")
	f.join(t, "c1", "m1", "alice")
	f.join(t, "c2", "m1", "bob")
	s2.reset()

	res := f.join(t, "c1", "m1", "alice")
	if len(res.Participants) != 1 || res.Participants[0].SocketID != "c2" {
		t.Fatalf("rejoin should still return the peers, got %+v", res.Participants)
	}
	if got := s2.events(t); len(got) != 0 {
		t.Fatalf("rejoin must be silent for peers, got %+v", got)
	}
	if got := f.coord.Rooms().Count("m1"); got != 2 {
		t.Fatalf("expected both members after rejoin, got %d", got)
	}

	// A rejoin that fails validation does not eject the member either.
	f.store.EndMeeting(context.Background(), "m1")
	if _, err := f.coord.Join(context.Background(), "c1", "m1", "alice"); !errors.Is(err, app.ErrMeetingNotActive) {
		t.Fatalf("expected ErrMeetingNotActive, got %v", err)
	}
	if !f.coord.Rooms().Contains("m1", "c1") {
		t.Fatal("failed rejoin must not eject the existing member")
	}
}

// The meeting-store call inside Join is a suspension point. A disconnect
// arriving while it is in flight must never leave a resurrected membership,
// whichever side wins the race.
func TestJoinRacingDisconnect(t *testing.T) {
	base := &fakeMeetingStore{meetings: map[string]domain.Meeting{
		"m1": {ID: "m1", Title: "Standup", Status: domain.MeetingActive},
	}}
	store := &blockingMeetingStore{
		fakeMeetingStore: base,
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	coord := app.NewCoordinator(app.NewRegistry(), app.NewRoomRegistry(), store, &fakeSink{}, &fakeVerifier{})
	coord.Connect("c1", &fakeSender{}, func() {})

	joinDone := make(chan error, 1)
	go func() {
		_, err := coord.Join(context.Background(), "c1", "m1", "alice")
		joinDone <- err
	}()
	<-store.entered

	disconnectDone := make(chan struct{})
	go func() {
		coord.Disconnect("c1")
		close(disconnectDone)
	}()
	close(store.release)

	<-joinDone
	select {
	case <-disconnectDone:
	case <-time.After(time.Second):
		t.Fatal("disconnect never completed")
	}

	if coord.Rooms().Contains("m1", "c1") {
		t.Fatal("membership resurrected after disconnect")
	}
	if got := coord.Rooms().Count("m1"); got != 0 {
		t.Fatalf("room should be empty, got %d members", got)
	}
	if _, ok := coord.Registry().Sender("c1"); ok {
		t.Fatal("connection survived disconnect")
	}
}

func TestDisconnectCleansUpOnce(t *testing.T) {
	f := newFixture()
	f.connect("c1")
	s2 := f.connect("c2")

	f.join(t, "c1", "m1", "alice")
	f.join(t, "c2", "m1", "bob")
	s2.reset()

	f.coord.Disconnect("c1")
	f.coord.Disconnect("c1")

	left := s2.eventsOf(t, "user-left")
	if len(left) != 1 || left[0]["socketId"] != "c1" {
		t.Fatalf("expected exactly one user-left for c1, got %+v", left)
	}
	if got := f.coord.Rooms().Count("m1"); got != 1 {
		t.Fatalf("expected only c2 left in m1, got %d", got)
	}
	if f.coord.Rooms().Contains("m1", "c1") {
		t.Fatal("c1 membership survived disconnect")
	}
}

func TestLastLeaveDeletesRoom(t *testing.T) {
	f := newFixture()
	f.connect("c1")
	f.join(t, "c1", "m1", "alice")

	if !f.coord.Leave("c1") {
		t.Fatal("expected Leave to report the connection was joined")
	}
	if snap := f.coord.Rooms().Snapshot(); len(snap) != 0 {
		t.Fatalf("expected no rooms after last leave, got %+v", snap)
	}
	if f.coord.Leave("c1") {
		t.Fatal("second leave should be a no-op")
	}
}

func TestRelayDeliversToTarget(t *testing.T) {
	f := newFixture()
	f.connect("c1")
	s2 := f.connect("c2")

	payload := json.RawMessage(`{"sdp":"v=0..."}`)
	f.coord.Relay("c1", "offer", "c2", "offer", payload)

	offers := s2.eventsOf(t, "offer")
	if len(offers) != 1 {
		t.Fatalf("expected one offer, got %+v", offers)
	}
	if offers[0]["sender"] != "c1" {
		t.Fatalf("offer must be tagged with sender, got %+v", offers[0])
	}
	body, ok := offers[0]["offer"].(map[string]any)
	if !ok || body["sdp"] != "v=0..." {
		t.Fatalf("payload must pass through verbatim, got %+v", offers[0]["offer"])
	}
}

func TestRelayToDeadTargetIsSilent(t *testing.T) {
	f := newFixture()
	s1 := f.connect("c1")

	f.coord.Relay("c1", "ice-candidate", "ghost", "candidate", json.RawMessage(`{}`))

	if got := s1.events(t); len(got) != 0 {
		t.Fatalf("sender must not be told about a dead target, got %+v", got)
	}
}

func TestMediaStateBroadcast(t *testing.T) {
	f := newFixture()
	s1 := f.connect("c1")
	s2 := f.connect("c2")
	f.join(t, "c1", "m1", "alice")
	f.join(t, "c2", "m1", "bob")
	s1.reset()
	s2.reset()

	f.coord.SetMediaState("c1", "m1", domain.MediaState{VideoEnabled: true})

	changed := s2.eventsOf(t, "user-media-state-changed")
	if len(changed) != 1 || changed[0]["socketId"] != "c1" || changed[0]["isVideoEnabled"] != true {
		t.Fatalf("expected media change at c2, got %+v", changed)
	}
	if got := s1.events(t); len(got) != 0 {
		t.Fatalf("sender must not receive its own media event, got %+v", got)
	}

	members := f.coord.Rooms().Members("m1", "c2")
	if !members[0].VideoEnabled {
		t.Fatalf("media flags not stored, got %+v", members[0])
	}
}

func TestMediaStateOutsideRoomIsNoop(t *testing.T) {
	f := newFixture()
	f.connect("c1")
	s2 := f.connect("c2")
	f.join(t, "c2", "m1", "bob")
	s2.reset()

	f.coord.SetMediaState("c1", "m1", domain.MediaState{VideoEnabled: true})
	if got := s2.events(t); len(got) != 0 {
		t.Fatalf("non-member media change must not broadcast, got %+v", got)
	}
}

func TestTypingExcludesSender(t *testing.T) {
	f := newFixture()
	s1 := f.connect("c1")
	s2 := f.connect("c2")
	f.join(t, "c1", "m1", "alice")
	f.join(t, "c2", "m1", "bob")
	s1.reset()
	s2.reset()

	f.coord.Typing("c1", "m1", true)

	typ := s2.eventsOf(t, "user-typing")
	if len(typ) != 1 || typ[0]["socketId"] != "c1" || typ[0]["isTyping"] != true {
		t.Fatalf("expected user-typing at c2, got %+v", typ)
	}
	if got := s1.events(t); len(got) != 0 {
		t.Fatalf("sender must not receive its own typing event, got %+v", got)
	}
}

func TestChatEchoesToSender(t *testing.T) {
	f := newFixture()
	s1 := f.connect("c1")
	s2 := f.connect("c2")
	f.join(t, "c1", "m1", "alice")
	f.join(t, "c2", "m1", "bob")
	s1.reset()
	s2.reset()

	msg, err := f.coord.Chat(context.Background(), "c1", "m1", "hi", "")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if msg.ID == "" || msg.Timestamp.IsZero() {
		t.Fatalf("expected server-assigned id and timestamp, got %+v", msg)
	}

	for name, s := range map[string]*fakeSender{"sender": s1, "peer": s2} {
		got := s.eventsOf(t, "chat-message")
		if len(got) != 1 {
			t.Fatalf("%s expected one chat-message, got %+v", name, got)
		}
		if got[0]["id"] != msg.ID || got[0]["message"] != "hi" || got[0]["messageType"] != "text" {
			t.Fatalf("%s got wrong chat payload %+v", name, got[0])
		}
	}
}

func TestChatMissingFields(t *testing.T) {
	f := newFixture()
	f.connect("c1")

	if _, err := f.coord.Chat(context.Background(), "c1", "", "hi", ""); !errors.Is(err, app.ErrMissingField) {
		t.Fatalf("expected ErrMissingField for empty meeting id, got %v", err)
	}
	if _, err := f.coord.Chat(context.Background(), "c1", "m1", "", ""); !errors.Is(err, app.ErrMissingField) {
		t.Fatalf("expected ErrMissingField for empty message, got %v", err)
	}
}

func TestChatPersistsForAuthenticatedSender(t *testing.T) {
	f := newFixture()
	f.connect("c1")
	if _, err := f.coord.Authenticate(context.Background(), "c1", "tok-alice"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	f.join(t, "c1", "m1", "")

	msg, err := f.coord.Chat(context.Background(), "c1", "m1", "hello", "text")
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if msg.SenderID != "u1" || msg.SenderName != "alice" {
		t.Fatalf("expected resolved identity on message, got %+v", msg)
	}

	select {
	case stored := <-f.sink.ch:
		if stored.ID != msg.ID || stored.MeetingID != "m1" {
			t.Fatalf("persisted wrong message: %+v", stored)
		}
	case <-time.After(time.Second):
		t.Fatal("chat message was never persisted")
	}
}

func TestChatGuestIsNotPersisted(t *testing.T) {
	f := newFixture()
	f.connect("c1")
	f.join(t, "c1", "m1", "drifter")

	if _, err := f.coord.Chat(context.Background(), "c1", "m1", "hey", ""); err != nil {
		t.Fatalf("chat: %v", err)
	}
	select {
	case stored := <-f.sink.ch:
		t.Fatalf("guest message must not be persisted, got %+v", stored)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChatPersistFailureDoesNotBlockBroadcast(t *testing.T) {
	f := newFixture()
	f.sink.err = errors.New("db down")
	f.connect("c1")
	s2 := f.connect("c2")
	if _, err := f.coord.Authenticate(context.Background(), "c1", "tok-alice"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	f.join(t, "c1", "m1", "")
	f.join(t, "c2", "m1", "bob")
	s2.reset()

	if _, err := f.coord.Chat(context.Background(), "c1", "m1", "still here", ""); err != nil {
		t.Fatalf("persistence failure must not surface, got %v", err)
	}
	if got := s2.eventsOf(t, "chat-message"); len(got) != 1 {
		t.Fatalf("broadcast must happen regardless of persistence, got %+v", got)
	}
}

func TestAuthenticateBindsIdentityOnce(t *testing.T) {
	f := newFixture()
	f.connect("c1")

	u, err := f.coord.Authenticate(context.Background(), "c1", "tok-alice")
	if err != nil || u.ID != "u1" {
		t.Fatalf("expected alice, got %+v err=%v", u, err)
	}

	// A later token for another user does not replace the binding.
	u, err = f.coord.Authenticate(context.Background(), "c1", "tok-bob")
	if err != nil || u.ID != "u1" {
		t.Fatalf("identity must be immutable, got %+v err=%v", u, err)
	}

	// A later bad token does not erase it either.
	if _, err := f.coord.Authenticate(context.Background(), "c1", "garbage"); !errors.Is(err, app.ErrAuthInvalid) {
		t.Fatalf("expected ErrAuthInvalid, got %v", err)
	}
	f.join(t, "c1", "m1", "")
	members := f.coord.Rooms().Members("m1", "")
	if members[0].UserID != "u1" || members[0].Username != "alice" {
		t.Fatalf("identity lost after failed re-auth, got %+v", members[0])
	}
}

func TestEvictMeeting(t *testing.T) {
	f := newFixture()
	s1 := f.connect("c1")
	s2 := f.connect("c2")
	f.join(t, "c1", "m1", "alice")
	f.join(t, "c2", "m1", "bob")
	s1.reset()
	s2.reset()

	if got := f.coord.EvictMeeting("m1"); got != 2 {
		t.Fatalf("expected 2 evicted, got %d", got)
	}
	for name, s := range map[string]*fakeSender{"c1": s1, "c2": s2} {
		ended := s.eventsOf(t, "meeting-ended")
		if len(ended) != 1 || ended[0]["meetingId"] != "m1" {
			t.Fatalf("%s expected meeting-ended, got %+v", name, ended)
		}
	}
	if snap := f.coord.Rooms().Snapshot(); len(snap) != 0 {
		t.Fatalf("expected no rooms after evict, got %+v", snap)
	}
}
