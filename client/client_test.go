package main

import (
	"chat-relay/domain"
	"chat-relay/protocol"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/require"
)

func TestState_Render_Tracks_Resume_Point(t *testing.T) {
	req := require.New(t)
	color.Enable = false
	st := &state{}

	// Given two messages received in order
	for _, id := range []domain.MessageID{1, 2} {
		frame, err := protocol.EncodeMessage(domain.Message{ID: id, CreatedAt: time.Now(), Author: "alice", Content: "hi"})
		req.NoError(err)
		line, err := st.render(frame)
		req.NoError(err)
		req.Contains(line, "alice: hi")
	}

	// When a replayed message arrives
	frame, err := protocol.EncodeMessage(domain.Message{ID: 1, Author: "alice", Content: "hi"})
	req.NoError(err)
	line, err := st.render(frame)

	// Then it is not printed twice and the next dial resumes after 2
	req.NoError(err)
	req.Empty(line)
	req.Equal("ws://localhost:8080/ws?since=2", st.url("localhost:8080"))
}

func TestState_Render_Keeps_Resume_Token(t *testing.T) {
	req := require.New(t)
	color.Enable = false
	st := &state{}
	req.Equal("ws://relay:8080/ws", st.url("relay:8080"))

	frame, err := protocol.EncodeNotice(domain.Notice{Kind: domain.NoticeToken, Text: "jwt"})
	req.NoError(err)
	_, err = st.render(frame)

	req.NoError(err)
	req.Equal("jwt", st.resumeToken())
}

func TestState_Render_Notices(t *testing.T) {
	req := require.New(t)
	color.Enable = false
	st := &state{}

	frame, err := protocol.EncodeNotice(domain.Error("Login failed: invalid credentials."))
	req.NoError(err)
	line, err := st.render(frame)

	req.NoError(err)
	req.Equal("Login failed: invalid credentials.", line)
	req.Empty(st.resumeToken())
}
