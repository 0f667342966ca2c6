package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ contract.IRegistry = (*Registry)(nil)

type entry struct {
	session domain.Session
	outbox  contract.Outbox
}

// Registry is the ConnectionRegistry: the set of open connections and their sessions.
// Mutations are mutually exclusive. Readers get copies and never hold the lock
// while delivering.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ConnectionID]*entry
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[domain.ConnectionID]*entry),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register admits a new connection with an unauthenticated session.
// Only RemoteAddr and LastDelivered are taken from seed, the latter to resume a
// previous stream.
func (r *Registry) Register(outbox contract.Outbox, seed domain.Session) domain.ConnectionID {
	id := domain.ConnectionID(uuid.NewString())
	session := domain.Session{
		ConnectionID:  id,
		Identity:      domain.Unauthenticated,
		LastDelivered: seed.LastDelivered,
		RemoteAddr:    seed.RemoteAddr,
		ConnectedAt:   r.now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &entry{session: session, outbox: outbox}
	return id
}

// Unregister removes the connection. Unknown ids are a no-op.
// It reports whether something was removed.
func (r *Registry) Unregister(id domain.ConnectionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// SetIdentity replaces the identity of a live connection, which allows re-login
// without reconnecting.
func (r *Registry) SetIdentity(id domain.ConnectionID, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return errors.ErrUnknownConnection
	}
	e.session.Identity = identity
	return nil
}

// Advance raises the high-water mark of a connection. Lower values are ignored.
func (r *Registry) Advance(id domain.ConnectionID, messageID domain.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return errors.ErrUnknownConnection
	}
	if messageID > e.session.LastDelivered {
		e.session.LastDelivered = messageID
	}
	return nil
}

func (r *Registry) Lookup(id domain.ConnectionID) (domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return domain.Session{}, false
	}
	return e.session, true
}

func (r *Registry) Outbox(id domain.ConnectionID) (contract.Outbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok || e.outbox == nil {
		return nil, false
	}
	return e.outbox, true
}

// Snapshot returns a point-in-time copy of every session, oldest connection first.
func (r *Registry) Snapshot() []domain.Session {
	r.mu.RLock()
	sessions := make([]domain.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		sessions = append(sessions, e.session)
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].ConnectedAt.Equal(sessions[j].ConnectedAt) {
			return sessions[i].ConnectionID < sessions[j].ConnectionID
		}
		return sessions[i].ConnectedAt.Before(sessions[j].ConnectedAt)
	})
	return sessions
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
