// Package domain contains core concepts of the chat relay.
// This file defines Message and its ordering key.
// Messages are immutable once the store has assigned their identifier.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// Anonymous is the author recorded when no session is authenticated.
const Anonymous = "anonymous"

// MessageID is assigned by the store at append time.
// It is the sole ordering and deduplication key: two messages may share a
// CreatedAt, never an ID.
type MessageID uint64

func (id MessageID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseMessageID reads a decimal message identifier, as sent by clients resuming a stream.
func ParseMessageID(s string) (MessageID, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return MessageID(v), nil
}

// Message represents an immutable chat line recorded by the store.
type Message struct {
	ID        MessageID
	CreatedAt time.Time
	Author    string
	Content   string
}

// NormalizeContent trims a raw chat line.
// An empty result means the line must not be appended.
func NormalizeContent(raw string) string {
	return strings.TrimSpace(raw)
}
