// Package domain contains core concepts of the chat relay.
// This file defines the per-connection session and the identity it carries.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// ConnectionID is an opaque handle unique for the lifetime of one connection.
type ConnectionID string

// Identity is either the zero value (unauthenticated) or a validated user.
type Identity struct {
	UserID   string
	Username string
}

// Unauthenticated is the identity every connection starts with.
var Unauthenticated = Identity{}

func (i Identity) Authenticated() bool {
	return i.UserID != ""
}

// Author is the name recorded on messages sent under this identity.
func (i Identity) Author() string {
	if !i.Authenticated() {
		return Anonymous
	}
	return i.Username
}

// Session is the SessionContext owned by exactly one live connection.
// LastDelivered is the high-water mark of the messages the connection has
// received and never decreases.
type Session struct {
	ConnectionID  ConnectionID
	Identity      Identity
	LastDelivered MessageID
	RemoteAddr    string
	ConnectedAt   time.Time
}

// Delivered reports whether a message is already covered by the high-water mark.
func (s Session) Delivered(id MessageID) bool {
	return id <= s.LastDelivered
}
