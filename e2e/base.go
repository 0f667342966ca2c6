package e2e

import (
	"chat-relay/domain"
	"chat-relay/protocol"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const frameTimeout = 5 * time.Second

type BaseRelaySuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseRelaySuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, no relay to test against")
	}
}

func (s *BaseRelaySuite) header(t *testing.T, name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)
}

// Client is one websocket connection to the relay.
type Client struct {
	t     *testing.T
	ws    *websocket.Conn
	debug bool
}

// Dial connects a client, resuming after since when not zero.
func (s *BaseRelaySuite) Dial(name string, since domain.MessageID) *Client {
	t := s.T()
	s.header(t, name)

	u := url.URL{Scheme: "ws", Host: s.Config.RelayAddr, Path: "/ws"}
	if since > 0 {
		u.RawQuery = "since=" + strconv.FormatUint(uint64(since), 10)
	}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	s.Require().NoError(err, "Failed to connect to relay at "+u.String())
	t.Cleanup(func() { _ = ws.Close() })
	return &Client{t: t, ws: ws, debug: s.Config.DebugJSON}
}

func (c *Client) Send(line string) {
	c.t.Helper()
	if c.debug {
		c.t.Logf("SEND: %s", line)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

func (c *Client) next() (*domain.Message, *domain.Notice) {
	c.t.Helper()
	if err := c.ws.SetReadDeadline(time.Now().Add(frameTimeout)); err != nil {
		c.t.Fatalf("read deadline: %v", err)
	}
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("read frame: %v", err)
	}
	if c.debug {
		c.t.Logf("RECV: %s", data)
	}
	msg, notice, err := protocol.Decode(data)
	if err != nil {
		c.t.Fatalf("decode frame: %v", err)
	}
	return msg, notice
}

// ExpectMessage skips notices until a message with the given content arrives.
func (c *Client) ExpectMessage(content string) domain.Message {
	c.t.Helper()
	for {
		msg, _ := c.next()
		if msg != nil && msg.Content == content {
			return *msg
		}
	}
}

// ExpectNotice skips frames until a notice of kind containing text arrives.
func (c *Client) ExpectNotice(kind domain.NoticeKind, text string) domain.Notice {
	c.t.Helper()
	for {
		_, notice := c.next()
		if notice != nil && notice.Kind == kind && strings.Contains(notice.Text, text) {
			return *notice
		}
	}
}

// WithGrpc provides a gRPC connection to the relay's health endpoint,
// logging every call.
func (s *BaseRelaySuite) WithGrpc(name string, fn func(ctx context.Context, conn *grpc.ClientConn)) {
	if s.Config.GrpcAddr == "" {
		s.T().Skip("RELAY_GRPC_ADDR not set")
	}
	t := s.T()
	s.header(t, name)

	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}
	conn, err := grpc.NewClient(s.Config.GrpcAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err == nil {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			t.Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.GrpcAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, conn)
}
