package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	// Connection
	ErrUnknownConnection = fmt.Errorf("unknown connection")
	ErrSlowConsumer      = fmt.Errorf("connection send queue is full")
	ErrDeliveryFailed    = fmt.Errorf("delivery failed")

	// Auth
	ErrUsernameTaken      = fmt.Errorf("username already taken")
	ErrInvalidUsername    = fmt.Errorf("invalid username")
	ErrInvalidPassword    = fmt.Errorf("invalid password")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUnknownUser        = fmt.Errorf("unknown user")
	ErrGatewayUnavailable = fmt.Errorf("credential service unavailable")
	ErrInvalidToken       = fmt.Errorf("invalid or expired token")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")

	// Message
	ErrEmptyMessage     = fmt.Errorf("empty message")
	ErrStoreUnavailable = fmt.Errorf("message store unavailable")
	ErrStoreRejected    = fmt.Errorf("message rejected by store")

	// Sync
	ErrResyncExhausted = fmt.Errorf("resync retries exhausted")

	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// Kind is the component an error belongs to.
type Kind int

const (
	KindInternal Kind = iota
	KindConnection
	KindAuth
	KindMessage
	KindSync
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuth:
		return "auth"
	case KindMessage:
		return "message"
	case KindSync:
		return "sync"
	default:
		return "internal"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrUnknownConnection, KindConnection},
	{ErrSlowConsumer, KindConnection},
	{ErrDeliveryFailed, KindConnection},
	{ErrUsernameTaken, KindAuth},
	{ErrInvalidUsername, KindAuth},
	{ErrInvalidPassword, KindAuth},
	{ErrInvalidCredentials, KindAuth},
	{ErrUnknownUser, KindAuth},
	{ErrGatewayUnavailable, KindAuth},
	{ErrInvalidToken, KindAuth},
	{ErrTokenGeneration, KindAuth},
	{ErrEmptyMessage, KindMessage},
	{ErrStoreUnavailable, KindMessage},
	{ErrStoreRejected, KindMessage},
	{ErrResyncExhausted, KindSync},
}

// KindOf classifies err against the closed set above.
// Anything outside the set is KindInternal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if stderrors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Transient reports whether retrying the same request later may succeed.
func Transient(err error) bool {
	return stderrors.Is(err, ErrStoreUnavailable) || stderrors.Is(err, ErrGatewayUnavailable)
}

// UserMessage renders err for the connection that caused it.
// Internal details never leak: unknown errors become a generic reason.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case Transient(err):
		return "Service temporarily unavailable, please retry later."
	case stderrors.Is(err, ErrEmptyMessage):
		return "Message is empty."
	case stderrors.Is(err, ErrStoreRejected):
		return "Message rejected: " + err.Error()
	case stderrors.Is(err, ErrUsernameTaken):
		return "Registration failed: username already taken."
	case stderrors.Is(err, ErrInvalidUsername):
		return "Registration failed: " + err.Error()
	case stderrors.Is(err, ErrInvalidPassword):
		return "Registration failed: " + err.Error()
	case stderrors.Is(err, ErrInvalidCredentials), stderrors.Is(err, ErrUnknownUser):
		return "Login failed: invalid credentials."
	case stderrors.Is(err, ErrInvalidToken):
		return "Resume failed: invalid or expired token."
	case stderrors.Is(err, ErrUnknownConnection):
		return "Connection is closed."
	default:
		return "Internal error."
	}
}
