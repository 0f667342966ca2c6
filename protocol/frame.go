// Package protocol defines the JSON frames exchanged with clients.
// One outbound frame carries exactly one Message or one Notice.
package protocol

import (
	"chat-relay/domain"
	"encoding/json"
	"fmt"
	"time"
)

type FrameType string

const (
	FrameMessage FrameType = "message"
	FrameSystem  FrameType = "system"
)

type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type MessagePayload struct {
	ID        uint64    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
}

type SystemPayload struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

func EncodeMessage(m domain.Message) ([]byte, error) {
	return encode(FrameMessage, MessagePayload{
		ID:        uint64(m.ID),
		CreatedAt: m.CreatedAt,
		Author:    m.Author,
		Content:   m.Content,
	})
}

func EncodeNotice(n domain.Notice) ([]byte, error) {
	return encode(FrameSystem, SystemPayload{Kind: string(n.Kind), Text: n.Text})
}

func encode(t FrameType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Type: t, Payload: raw})
}

// Decode parses an outbound frame. It returns either a Message or a Notice.
func Decode(data []byte) (*domain.Message, *domain.Notice, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, err
	}
	switch f.Type {
	case FrameMessage:
		var p MessagePayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, nil, err
		}
		return &domain.Message{
			ID:        domain.MessageID(p.ID),
			CreatedAt: p.CreatedAt,
			Author:    p.Author,
			Content:   p.Content,
		}, nil, nil
	case FrameSystem:
		var p SystemPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return nil, nil, err
		}
		return nil, &domain.Notice{Kind: domain.NoticeKind(p.Kind), Text: p.Text}, nil
	default:
		return nil, nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}
