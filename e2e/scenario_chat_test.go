package e2e

import (
	"chat-relay/domain"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type testChatSuite struct {
	BaseRelaySuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestReconnectResumesIdentityAndHistory() {
	username := "e2e_" + uuid.NewString()[:8]
	password := "secret123"
	var token string
	var lastSeen domain.MessageID

	s.Run("Step 1: Register, which also logs in", func() {
		alice := s.Dial("alice connects", 0)
		alice.Send(fmt.Sprintf("/register %s %s", username, password))
		alice.ExpectNotice(domain.NoticeInfo, "Registered and logged in as "+username)
		token = alice.ExpectNotice(domain.NoticeToken, "").Text
		s.Require().NotEmpty(token)

		alice.Send("first words")
		msg := alice.ExpectMessage("first words")
		s.Require().Equal(username, msg.Author)
		lastSeen = msg.ID
		s.Require().NoError(alice.ws.Close())
	})

	var missed []string
	s.Run("Step 2: Others talk while alice is away", func() {
		bob := s.Dial("bob connects", lastSeen)
		for i := 0; i < 3; i++ {
			content := fmt.Sprintf("while you were away %d", i)
			bob.Send(content)
			bob.ExpectMessage(content)
			missed = append(missed, content)
		}
	})

	s.Run("Step 3: Alice resumes and receives exactly the gap", func() {
		alice := s.Dial("alice reconnects", lastSeen)
		for _, content := range missed {
			msg := alice.ExpectMessage(content)
			s.Require().Greater(msg.ID, lastSeen)
			s.Require().Equal(domain.Anonymous, msg.Author)
			lastSeen = msg.ID
		}

		alice.Send("/resume " + token)
		alice.ExpectNotice(domain.NoticeInfo, "Welcome back, "+username)
		alice.Send("back again")
		s.Require().Equal(username, alice.ExpectMessage("back again").Author)
	})
}

func (s *testChatSuite) TestHealthIsServing() {
	s.WithGrpc("health check", func(ctx context.Context, conn *grpc.ClientConn) {
		resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: "chat.relay"})
		s.Require().NoError(err)
		s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)
	})
}
