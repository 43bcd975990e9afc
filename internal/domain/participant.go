package domain

import "time"

// MediaState carries the self-reported media flags of a connection.
type MediaState struct {
	VideoEnabled bool `json:"isVideoEnabled"`
	AudioEnabled bool `json:"isAudioEnabled"`
}

// Participant is the externally visible projection of a connection inside a
// meeting. This is what peers see; it never exposes transport detail.
type Participant struct {
	SocketID     string    `json:"socketId"`
	Username     string    `json:"username"`
	UserID       string    `json:"userId,omitempty"`
	VideoEnabled bool      `json:"isVideoEnabled"`
	AudioEnabled bool      `json:"isAudioEnabled"`
	JoinedAt     time.Time `json:"joinedAt"`
}
