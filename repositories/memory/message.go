// Package memory provides an in-process MessageStore with a change stream.
// Nothing survives a restart; it backs tests and the "memory" store driver.
package memory

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	_ contract.MessageStore = (*MessageStore)(nil)
	_ contract.ChangeStream = (*MessageStore)(nil)
)

type MessageStore struct {
	mu          sync.RWMutex
	messages    []domain.Message
	lastID      domain.MessageID
	limit       int
	nextSubID   int
	subscribers map[int]func(domain.Message)
	now         func() time.Time
}

// NewMessageStore caps QuerySince batches at limit; zero means unbounded.
func NewMessageStore(limit int) *MessageStore {
	return &MessageStore{
		limit:       limit,
		subscribers: make(map[int]func(domain.Message)),
		now:         func() time.Time { return time.Now().UTC().Round(0) },
	}
}

func (s *MessageStore) Append(ctx context.Context, author, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	s.lastID++
	msg := domain.Message{
		ID:        s.lastID,
		CreatedAt: s.now(),
		Author:    author,
		Content:   content,
	}
	s.messages = append(s.messages, msg)
	subscribers := make([]func(domain.Message), 0, len(s.subscribers))
	for _, cb := range s.subscribers {
		subscribers = append(subscribers, cb)
	}
	s.mu.Unlock()

	for _, cb := range subscribers {
		cb(msg)
	}
	return msg, nil
}

func (s *MessageStore) QuerySince(ctx context.Context, id domain.MessageID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	start := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].ID > id
	})
	end := len(s.messages)
	if s.limit > 0 && end-start > s.limit {
		end = start + s.limit
	}
	out := make([]domain.Message, end-start)
	copy(out, s.messages[start:end])
	return out, nil
}

// Subscribe calls onInsert after every Append until ctx is done.
func (s *MessageStore) Subscribe(ctx context.Context, onInsert func(domain.Message)) error {
	s.mu.Lock()
	subID := s.nextSubID
	s.nextSubID++
	s.subscribers[subID] = onInsert
	s.mu.Unlock()

	<-ctx.Done()

	s.mu.Lock()
	delete(s.subscribers, subID)
	s.mu.Unlock()
	return nil
}

// Head is the last assigned ID.
func (s *MessageStore) Head(context.Context) (domain.MessageID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastID, nil
}
