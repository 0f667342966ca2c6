package services

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/protocol"
	"chat-relay/repositories/memory"
	"chat-relay/runtime"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// recorder is an in-memory transport keeping every decoded frame in order.
type recorder struct {
	mu      sync.Mutex
	msgs    []domain.Message
	notices []domain.Notice
	order   []string
}

func (r *recorder) Write(_ context.Context, frame []byte) error {
	msg, notice, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg != nil {
		r.msgs = append(r.msgs, *msg)
		r.order = append(r.order, "message")
	}
	if notice != nil {
		r.notices = append(r.notices, *notice)
		r.order = append(r.order, "notice")
	}
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) contents() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.msgs, func(m domain.Message, _ int) string { return m.Content })
}

func (r *recorder) lastNotice() (domain.Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return domain.Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}

func (r *recorder) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

type chatFixture struct {
	svc      *ChatService
	hub      *runtime.Hub
	store    *memory.MessageStore
	sessions *mocks.MockISessionService
}

func newChatFixture(t *testing.T, opts ChatOptions) chatFixture {
	ctrl := gomock.NewController(t)
	store := memory.NewMessageStore(0)
	hub := runtime.NewHub(slog.Default(), runtime.NewRegistry(), store, nil,
		runtime.HubOptions{EchoToSender: true, MaxContentLength: 64})
	runtime.NewResync(slog.Default(), hub, store, runtime.ResyncOptions{})
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })

	sessions := mocks.NewMockISessionService(ctrl)
	return chatFixture{
		svc:      NewChatService(slog.Default(), hub, sessions, store, opts),
		hub:      hub,
		store:    store,
		sessions: sessions,
	}
}

func (f chatFixture) seed(t *testing.T, contents ...string) {
	for _, c := range contents {
		_, err := f.store.Append(context.Background(), domain.Anonymous, c)
		require.NoError(t, err)
	}
}

func waitNotice(t *testing.T, r *recorder, count int) domain.Notice {
	require.Eventually(t, func() bool { return r.noticeCount() >= count }, waitFor, tick)
	n, _ := r.lastNotice()
	return n
}

func TestChatService_Open_Sends_Recent_History_Then_Welcome(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	// Given five stored messages and a history limit of two
	f := newChatFixture(t, ChatOptions{WelcomeMessage: "Welcome!", HistoryLimit: 2})
	f.seed(t, "m1", "m2", "m3", "m4", "m5")

	// When a fresh client connects
	r := &recorder{}
	f.svc.Open(ctx, r, "127.0.0.1:1", nil)

	// Then it receives the two most recent messages, then the welcome notice
	notice := waitNotice(t, r, 1)
	req.Equal(domain.Info("Welcome!"), notice)
	req.Equal([]string{"m4", "m5"}, r.contents())
	r.mu.Lock()
	req.Equal([]string{"message", "message", "notice"}, r.order)
	r.mu.Unlock()
}

func TestChatService_Open_Resumes_From_Since(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{WelcomeMessage: "hi", HistoryLimit: 1})
	f.seed(t, "m1", "m2", "m3", "m4")

	// When reconnecting after message 2
	r := &recorder{}
	since := domain.MessageID(2)
	f.svc.Open(ctx, r, "", &since)

	// Then exactly the gap is replayed, whatever the history limit
	waitNotice(t, r, 1)
	req.Equal([]string{"m3", "m4"}, r.contents())
}

func TestChatService_Open_Clamps_Since_Beyond_Head(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	// Given a store wiped since the client last saw message 40
	f := newChatFixture(t, ChatOptions{WelcomeMessage: "hi"})
	f.seed(t, "m1")
	r := &recorder{}
	since := domain.MessageID(40)
	id := f.svc.Open(ctx, r, "", &since)
	waitNotice(t, r, 1)

	// When a new message is sent
	f.svc.Handle(ctx, id, "fresh")

	// Then the client still receives it
	req.Eventually(func() bool { return lo.Contains(r.contents(), "fresh") }, waitFor, tick)
	session, ok := f.hub.Registry().Lookup(id)
	req.True(ok)
	req.Equal(domain.MessageID(2), session.LastDelivered)
}

func TestChatService_Handle_Chat_Broadcasts_Under_Identity(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	sender, other := &recorder{}, &recorder{}
	senderID := f.svc.Open(ctx, sender, "", nil)
	f.svc.Open(ctx, other, "", nil)
	req.NoError(f.hub.Registry().SetIdentity(senderID, alice))

	f.svc.Handle(ctx, senderID, "hello")

	req.Eventually(func() bool { return len(other.contents()) == 1 }, waitFor, tick)
	other.mu.Lock()
	req.Equal("alice", other.msgs[0].Author)
	other.mu.Unlock()
}

func TestChatService_Handle_Chat_Errors_Only_Reach_The_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	sender, other := &recorder{}, &recorder{}
	senderID := f.svc.Open(ctx, sender, "", nil)
	f.svc.Open(ctx, other, "", nil)

	// When sending content over the configured maximum
	f.svc.Handle(ctx, senderID, strings.Repeat("x", 65))

	// Then only the sender is told, and nothing was stored
	notice := waitNotice(t, sender, 1)
	req.Equal(domain.NoticeError, notice.Kind)
	req.True(strings.HasPrefix(notice.Text, "Message rejected"))
	req.Zero(other.noticeCount())
	head, err := f.store.Head(ctx)
	req.NoError(err)
	req.Zero(head)
}

func TestChatService_Handle_Blank_Line_Is_Ignored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	r := &recorder{}
	id := f.svc.Open(ctx, r, "", nil)

	f.svc.Handle(ctx, id, "   ")
	f.svc.Handle(ctx, id, "/help")

	// The help notice is the first and only frame
	notice := waitNotice(t, r, 1)
	req.Equal(domain.Info(domain.HelpText), notice)
	req.Empty(r.contents())
}

func TestChatService_Handle_Invalid_Command_Sends_Usage(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	r := &recorder{}
	id := f.svc.Open(ctx, r, "", nil)

	f.svc.Handle(ctx, id, "/login alice")

	notice := waitNotice(t, r, 1)
	req.Equal(domain.Usage("Usage: /login <username> <password>"), notice)
}

func TestChatService_Handle_Register_Logs_In_And_Sends_Token(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	r := &recorder{}
	id := f.svc.Open(ctx, r, "", nil)

	gomock.InOrder(
		f.sessions.EXPECT().Register(ctx, "alice", "secret123").Return(nil),
		f.sessions.EXPECT().Login(ctx, id, "alice", "secret123").Return(alice, nil),
		f.sessions.EXPECT().IssueResumeToken(alice).Return("resume-token", nil),
	)

	f.svc.Handle(ctx, id, "/register alice secret123")

	token := waitNotice(t, r, 2)
	req.Equal(domain.Notice{Kind: domain.NoticeToken, Text: "resume-token"}, token)
	r.mu.Lock()
	req.Equal(domain.Info("Registered and logged in as alice."), r.notices[0])
	r.mu.Unlock()
}

func TestChatService_Handle_Register_Failure_Is_Reported(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	r := &recorder{}
	id := f.svc.Open(ctx, r, "", nil)

	f.sessions.EXPECT().Register(ctx, "alice", "secret123").Return(errors.ErrUsernameTaken)
	f.sessions.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	f.svc.Handle(ctx, id, "/register alice secret123")

	notice := waitNotice(t, r, 1)
	req.Equal(domain.Error("Registration failed: username already taken."), notice)
}

func TestChatService_Handle_Login_Failure_Is_Generic(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	r := &recorder{}
	id := f.svc.Open(ctx, r, "", nil)

	f.sessions.EXPECT().Login(ctx, id, "alice", "nope1234").Return(domain.Unauthenticated, errors.ErrInvalidCredentials)
	f.sessions.EXPECT().IssueResumeToken(gomock.Any()).Times(0)

	f.svc.Handle(ctx, id, "/login alice nope1234")

	notice := waitNotice(t, r, 1)
	req.Equal(domain.Error("Login failed: invalid credentials."), notice)
}

func TestChatService_Handle_Logout_And_Resume(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	r := &recorder{}
	id := f.svc.Open(ctx, r, "", nil)

	f.sessions.EXPECT().Logout(id).Return(nil)
	f.sessions.EXPECT().Resume(id, "resume-token").Return(alice, nil)

	f.svc.Handle(ctx, id, "/logout")
	req.Equal(domain.Info("Logged out."), waitNotice(t, r, 1))

	f.svc.Handle(ctx, id, "/resume resume-token")
	req.Equal(domain.Info("Welcome back, alice."), waitNotice(t, r, 2))
}

func TestChatService_Handle_Who_Lists_Connections(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	r := &recorder{}
	id := f.svc.Open(ctx, r, "", nil)
	otherID := f.svc.Open(ctx, &recorder{}, "", nil)
	req.NoError(f.hub.Registry().SetIdentity(otherID, alice))

	f.svc.Handle(ctx, id, "/who")

	notice := waitNotice(t, r, 1)
	req.Equal(domain.NoticeInfo, notice.Kind)
	req.True(strings.HasPrefix(notice.Text, "2 connected"))
	req.Contains(notice.Text, "alice")
	req.Contains(notice.Text, domain.Anonymous)
}

func TestChatService_Close_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()

	f := newChatFixture(t, ChatOptions{})
	id := f.svc.Open(ctx, &recorder{}, "", nil)

	f.svc.Close(id, nil)
	f.svc.Close(id, nil)

	_, ok := f.hub.Registry().Lookup(id)
	req.False(ok)
	req.Zero(f.hub.Registry().Len())
}
