package protocol

import (
	"chat-relay/domain"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeMessage_Decode(t *testing.T) {
	req := require.New(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := domain.Message{ID: 7, CreatedAt: at, Author: "alice", Content: "hi"}

	frame, err := EncodeMessage(msg)
	req.NoError(err)
	req.Contains(string(frame), `"type":"message"`)

	decoded, notice, err := Decode(frame)
	req.NoError(err)
	req.Nil(notice)
	req.Equal(msg, *decoded)
}

func TestEncodeNotice_Decode(t *testing.T) {
	req := require.New(t)

	frame, err := EncodeNotice(domain.Usage("Usage: /who"))
	req.NoError(err)

	msg, notice, err := Decode(frame)
	req.NoError(err)
	req.Nil(msg)
	req.Equal(domain.NoticeUsage, notice.Kind)
	req.Equal("Usage: /who", notice.Text)
}

func TestDecode_Unknown_Type(t *testing.T) {
	_, _, err := Decode([]byte(`{"type":"room_join","payload":{}}`))
	require.Error(t, err)
}
