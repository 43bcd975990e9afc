package domain

import "time"

type MeetingStatus string

const (
	MeetingActive MeetingStatus = "active"
	MeetingEnded  MeetingStatus = "ended"
)

// Meeting is the metadata record behind a room id. It lives in the store,
// never in the room registry.
type Meeting struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	CreatorID   string        `json:"creatorId,omitempty"`
	IsPrivate   bool          `json:"isPrivate"`
	Status      MeetingStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	EndedAt     *time.Time    `json:"endedAt,omitempty"`
}
