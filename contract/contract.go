//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// MessageStore is the durable append-only log.
// QuerySince returns messages with an ID strictly greater than id, ascending,
// and never more than the store's batch limit. Nothing new is an empty slice.
type MessageStore interface {
	Append(ctx context.Context, author, content string) (domain.Message, error)
	QuerySince(ctx context.Context, id domain.MessageID) ([]domain.Message, error)
}

// ChangeStream is implemented by stores able to push inserts.
// Subscribe blocks until ctx is done or the stream breaks.
type ChangeStream interface {
	Subscribe(ctx context.Context, onInsert func(domain.Message)) error
}

// HeadReader is implemented by stores able to report their last assigned ID.
type HeadReader interface {
	Head(ctx context.Context) (domain.MessageID, error)
}

// AuthGateway owns credentials. The hub only sees identities or failures.
type AuthGateway interface {
	CreateCredential(ctx context.Context, username, password string) (string, error)
	Verify(ctx context.Context, username, password string) (domain.Identity, error)
}

// Transport is the outbound half of one client connection.
// Write must honour the deadline carried by ctx.
type Transport interface {
	Write(ctx context.Context, frame []byte) error
	Close() error
}

// Task is a unit of work executed on a connection's delivery lane.
type Task func(ctx context.Context) error

// Outbox serializes every write to one connection.
// Write is only called from a scheduled Task and is bounded by the send timeout.
type Outbox interface {
	Schedule(task Task) bool
	Write(ctx context.Context, frame []byte) error
	Close()
}

// Censor rewrites content before it is appended.
type Censor interface {
	Censor(content string) string
}

// Reconciler is the part of the resync engine driven by workers.
type Reconciler interface {
	Poll()
	Observe(message domain.Message)
}

type IRegistry interface {
	Register(outbox Outbox, seed domain.Session) domain.ConnectionID
	Unregister(id domain.ConnectionID) bool
	SetIdentity(id domain.ConnectionID, identity domain.Identity) error
	Advance(id domain.ConnectionID, messageID domain.MessageID) error
	Lookup(id domain.ConnectionID) (domain.Session, bool)
	Outbox(id domain.ConnectionID) (Outbox, bool)
	Snapshot() []domain.Session
	Len() int
}
