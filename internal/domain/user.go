// Package domain contains entity without logic, just meta-data
package domain

// GuestName is the display name used when a connection never authenticated
// and supplied no username on join.
const GuestName = "Guest"

// User is an authenticated identity resolved from a token by the verifier.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}
