package domain

import "time"

// ChatMessage is a server-stamped chat event. ID and Timestamp are assigned
// here, not trusted from the sender's clock.
type ChatMessage struct {
	ID          string    `json:"id"`
	MeetingID   string    `json:"-"`
	SenderID    string    `json:"senderId,omitempty"`
	SenderName  string    `json:"senderName"`
	Message     string    `json:"message"`
	MessageType string    `json:"messageType"`
	Timestamp   time.Time `json:"timestamp"`
	SocketID    string    `json:"socketId"`
}
