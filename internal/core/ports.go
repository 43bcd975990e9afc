// Package core declares the ports between the coordinator and everything it
// does not own: the per-connection transport endpoint and the external
// collaborators (meeting metadata, users, chat history, token verification).
package core

import (
	"context"
	"errors"

	"github.com/meetwave/meetwave/internal/domain"
)

// Frame is a single serialized outbound wire message.
type Frame []byte

// SessionID identifies one live connection. Minted by the transport layer on
// upgrade, unique for the lifetime of the process.
type SessionID string

// ErrNotFound is returned by stores for ids they do not know.
var ErrNotFound = errors.New("not found")

// Sender is the outbound half of a connection.
// Owned by the adapter; the adapter must Close() it.
type Sender interface {
	// TrySend queues a frame without blocking. A full buffer or a closed
	// connection returns an error and the frame is dropped.
	TrySend(Frame) error
	Close()
}

// MeetingStore is the meeting-metadata collaborator.
type MeetingStore interface {
	// GetActiveMeeting returns the meeting only when it exists and its
	// status is active; ErrNotFound otherwise.
	GetActiveMeeting(ctx context.Context, id string) (domain.Meeting, error)
	GetMeeting(ctx context.Context, id string) (domain.Meeting, error)
	CreateMeeting(ctx context.Context, m domain.Meeting) error
	EndMeeting(ctx context.Context, id string) error
	// ListMeetingsByCreator returns the creator's meetings, newest first,
	// capped at 50.
	ListMeetingsByCreator(ctx context.Context, creatorID string) ([]domain.Meeting, error)
	// RecordJoin logs an authenticated user entering a meeting. Repeat joins
	// are deduplicated.
	RecordJoin(ctx context.Context, meetingID, userID string) error
}

// UserStore resolves authenticated user ids to their records.
type UserStore interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// ChatSink persists chat history. Best effort: callers must not put it on a
// broadcast's critical path.
type ChatSink interface {
	Append(ctx context.Context, msg domain.ChatMessage) error
}

// TokenVerifier checks a bearer token and resolves its user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.User, error)
}
