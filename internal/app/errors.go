package app

import "errors"

// Failure taxonomy. Every one of these is reported to the triggering
// connection only; none of them fans out or kills the process.
var (
	ErrMeetingNotActive = errors.New("meeting not found or not active")
	ErrAuthInvalid      = errors.New("authentication failed")
	ErrMissingField     = errors.New("missing required field")
)
