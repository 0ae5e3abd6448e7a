package domain

import "fmt"

// MalformedPayloadError means an inbound event could not be normalized. The
// event is dropped.
type MalformedPayloadError struct {
	Channel string
	Reason  string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed %s payload: %s", e.Channel, e.Reason)
}

// Collaborator names used in CollaboratorError.
const (
	CollaboratorAI        = "ai"
	CollaboratorImageHost = "imagehost"
	CollaboratorPlatform  = "platform"
)

// CollaboratorError wraps a failure of an external system. It is never shown
// to the end user.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// ConfigError reports a missing or invalid setting. Fatal at startup.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Reason
}
