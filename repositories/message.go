package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	badgerpb "github.com/dgraph-io/badger/v4/pb"
)

const (
	messagePrefix   = "msg:"
	messageSequence = "seq:msg"
	sequenceLease   = 100
)

var (
	_ contract.MessageStore = (*MessageRepository)(nil)
	_ contract.ChangeStream = (*MessageRepository)(nil)
	_ contract.HeadReader   = (*MessageRepository)(nil)
)

// MessageRepository is the Badger MessageStore.
// IDs come from a Badger sequence. Keys are "msg:{id padded to 20 digits}" so
// the lexicographic key order is the ID order and QuerySince is a single seek.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	seq           *badger.Sequence
	limitMessages *int
	// appendMu keeps commits in ID order: a reader never sees id n+1 before n.
	appendMu sync.Mutex
	now      func() time.Time
}

// NewMessageRepository caps every QuerySince batch at limitMessages when not nil.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(messageSequence), sequenceLease)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &MessageRepository{
		db:            db,
		log:           log,
		seq:           seq,
		limitMessages: limitMessages,
		now:           func() time.Time { return time.Now().UTC().Round(0) },
	}, nil
}

func messageKey(id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, uint64(id)))
}

// Append assigns the next ID and persists the message.
func (m *MessageRepository) Append(ctx context.Context, author, content string) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	next, err := m.seq.Next()
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	// Badger sequences start at 0, message IDs at 1
	msg := domain.Message{
		ID:        domain.MessageID(next + 1),
		CreatedAt: m.now(),
		Author:    author,
		Content:   content,
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(msg.ID), EncodeMessage(msg))
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return msg, nil
}

// QuerySince returns messages with an ID strictly greater than id, ascending.
// It stops collecting messages once the configured limitMessages is reached.
func (m *MessageRepository) QuerySince(ctx context.Context, id domain.MessageID) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(messagePrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(messageKey(id + 1)); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(messages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				msg, err := DecodeMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return messages, nil
}

// Head returns the highest stored ID, 0 when empty.
func (m *MessageRepository) Head(ctx context.Context) (domain.MessageID, error) {
	var head domain.MessageID
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(messagePrefix)
		it.Seek(append(prefix, 0xff))
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		var parsed uint64
		if _, err := fmt.Sscanf(string(it.Item().Key()[len(prefix):]), "%d", &parsed); err != nil {
			return err
		}
		head = domain.MessageID(parsed)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return head, nil
}

// Subscribe pushes every committed message, including writes that
// bypassed the hub, until ctx is done.
func (m *MessageRepository) Subscribe(ctx context.Context, onInsert func(domain.Message)) error {
	err := m.db.Subscribe(ctx, func(kvs *badger.KVList) error {
		for _, kv := range kvs.Kv {
			msg, err := DecodeMessage(kv.Value)
			if err != nil {
				m.log.Warn("Skipping undecodable message", "key", string(kv.Key), "error", err)
				continue
			}
			onInsert(msg)
		}
		return nil
	}, []badgerpb.Match{{Prefix: []byte(messagePrefix)}})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close returns the unused part of the ID lease.
func (m *MessageRepository) Close() error {
	return m.seq.Release()
}
