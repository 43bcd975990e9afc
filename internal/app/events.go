package app

import "github.com/meetwave/meetwave/internal/domain"

// Outbound broadcast shapes. Each frame is a flat JSON object tagged by Type;
// direct replies built by the signal adapter follow the same convention.

type userJoinedEvent struct {
	Type     string `json:"type"`
	SocketID string `json:"socketId"`
	Username string `json:"username"`
	UserID   string `json:"userId,omitempty"`
}

type userLeftEvent struct {
	Type     string `json:"type"`
	SocketID string `json:"socketId"`
	Username string `json:"username"`
}

type mediaStateEvent struct {
	Type         string `json:"type"`
	SocketID     string `json:"socketId"`
	VideoEnabled bool   `json:"isVideoEnabled"`
	AudioEnabled bool   `json:"isAudioEnabled"`
}

type typingEvent struct {
	Type     string `json:"type"`
	SocketID string `json:"socketId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

type screenShareEvent struct {
	Type     string `json:"type"`
	SocketID string `json:"socketId"`
	Username string `json:"username,omitempty"`
}

type chatEvent struct {
	Type string `json:"type"`
	domain.ChatMessage
}

type meetingEndedEvent struct {
	Type      string `json:"type"`
	MeetingID string `json:"meetingId"`
}
