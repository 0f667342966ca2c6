package services

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

type ChatOptions struct {
	WelcomeMessage string
	// HistoryLimit is how many past messages a connection without a resume
	// point receives.
	HistoryLimit int
}

// ChatService is the command surface of a connection: it turns inbound lines
// into hub sends, session changes and notices for the sender.
type ChatService struct {
	log      *slog.Logger
	hub      *runtime.Hub
	sessions ISessionService
	heads    contract.HeadReader
	opts     ChatOptions
}

// NewChatService accepts a nil heads: new connections then start from the
// beginning of the history.
func NewChatService(log *slog.Logger, hub *runtime.Hub, sessions ISessionService,
	heads contract.HeadReader, opts ChatOptions) *ChatService {
	return &ChatService{log: log, hub: hub, sessions: sessions, heads: heads, opts: opts}
}

// Open admits a transport. since is the client's resume point, nil for a new
// client. The initial resync is queued by the hub before any live message.
func (s *ChatService) Open(ctx context.Context, transport contract.Transport,
	remoteAddr string, since *domain.MessageID) domain.ConnectionID {
	seed := domain.Session{RemoteAddr: remoteAddr, LastDelivered: s.startingPoint(ctx, since)}
	id := s.hub.Connect(transport, seed)
	if s.opts.WelcomeMessage != "" {
		s.hub.Notify(id, domain.Info(s.opts.WelcomeMessage))
	}
	return id
}

func (s *ChatService) startingPoint(ctx context.Context, since *domain.MessageID) domain.MessageID {
	if s.heads == nil {
		if since != nil {
			return *since
		}
		return 0
	}
	head, err := s.heads.Head(ctx)
	if err != nil {
		s.log.Warn("Head unavailable, replaying from the start", "error", err)
		if since != nil {
			return *since
		}
		return 0
	}
	switch {
	case since != nil && *since > head:
		// The client is ahead of this store (wiped or restored): follow the store
		s.log.Warn("Resume point beyond head", "since", *since, "head", head)
		return head
	case since != nil:
		return *since
	case head > domain.MessageID(s.opts.HistoryLimit):
		return head - domain.MessageID(s.opts.HistoryLimit)
	default:
		return 0
	}
}

// Handle processes one inbound line.
func (s *ChatService) Handle(ctx context.Context, id domain.ConnectionID, line string) {
	cmd := domain.ParseCommand(line)
	switch cmd.Kind {
	case domain.CommandNone:
	case domain.CommandInvalid:
		s.hub.Notify(id, domain.Usage(cmd.Usage))
	case domain.CommandChat:
		s.chat(ctx, id, cmd.Content)
	case domain.CommandRegister:
		s.register(ctx, id, cmd.Args[0], cmd.Args[1])
	case domain.CommandLogin:
		s.login(ctx, id, cmd.Args[0], cmd.Args[1])
	case domain.CommandLogout:
		s.logout(id)
	case domain.CommandResume:
		s.resume(id, cmd.Args[0])
	case domain.CommandWho:
		s.hub.Notify(id, domain.Info(s.who()))
	case domain.CommandHelp:
		s.hub.Notify(id, domain.Info(domain.HelpText))
	}
}

// Close ends the connection. Safe to call after the hub already dropped it.
func (s *ChatService) Close(id domain.ConnectionID, reason error) {
	s.hub.Disconnect(id, reason)
}

func (s *ChatService) chat(ctx context.Context, id domain.ConnectionID, content string) {
	session, ok := s.hub.Registry().Lookup(id)
	if !ok {
		return
	}
	if _, err := s.hub.Send(ctx, id, session.Identity, content); err != nil {
		s.fail(id, err)
	}
}

func (s *ChatService) register(ctx context.Context, id domain.ConnectionID, username, password string) {
	if err := s.sessions.Register(ctx, username, password); err != nil {
		s.fail(id, err)
		return
	}
	identity, err := s.sessions.Login(ctx, id, username, password)
	if err != nil {
		s.hub.Notify(id, domain.Info(fmt.Sprintf("Registered as %s. Please /login.", username)))
		return
	}
	s.hub.Notify(id, domain.Info(fmt.Sprintf("Registered and logged in as %s.", identity.Username)))
	s.sendResumeToken(id, identity)
}

func (s *ChatService) login(ctx context.Context, id domain.ConnectionID, username, password string) {
	identity, err := s.sessions.Login(ctx, id, username, password)
	if err != nil {
		s.fail(id, err)
		return
	}
	s.hub.Notify(id, domain.Info(fmt.Sprintf("Logged in as %s.", identity.Username)))
	s.sendResumeToken(id, identity)
}

func (s *ChatService) logout(id domain.ConnectionID) {
	if err := s.sessions.Logout(id); err != nil {
		s.fail(id, err)
		return
	}
	s.hub.Notify(id, domain.Info("Logged out."))
}

func (s *ChatService) resume(id domain.ConnectionID, token string) {
	identity, err := s.sessions.Resume(id, token)
	if err != nil {
		s.fail(id, err)
		return
	}
	s.hub.Notify(id, domain.Info(fmt.Sprintf("Welcome back, %s.", identity.Username)))
}

func (s *ChatService) sendResumeToken(id domain.ConnectionID, identity domain.Identity) {
	token, err := s.sessions.IssueResumeToken(identity)
	if err != nil {
		s.log.Warn("Resume token not issued", "connection_id", id, "error", err)
		return
	}
	s.hub.Notify(id, domain.Notice{Kind: domain.NoticeToken, Text: token})
}

// fail reports err to the connection that caused it, and only to it.
func (s *ChatService) fail(id domain.ConnectionID, err error) {
	if errors.KindOf(err) == errors.KindInternal {
		s.log.Error("Command failed", "connection_id", id, "error", err)
	}
	s.hub.Notify(id, domain.Error(errors.UserMessage(err)))
}

func (s *ChatService) who() string {
	sessions := s.hub.Registry().Snapshot()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"User", "Connected", "Seen"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")
	for _, session := range sessions {
		table.Append([]string{
			session.Identity.Author(),
			session.ConnectedAt.Format("15:04:05"),
			strconv.FormatUint(uint64(session.LastDelivered), 10),
		})
	}
	table.Render()
	return fmt.Sprintf("%d connected\n%s", len(sessions), buf.String())
}
