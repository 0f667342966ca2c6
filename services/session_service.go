//go:generate go run go.uber.org/mock/mockgen -source=session_service.go -destination=../mocks/mock_session_service.go -package=mocks
package services

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	stderrors "errors"
	"log/slog"
)

type ISessionService interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, id domain.ConnectionID, username, password string) (domain.Identity, error)
	Logout(id domain.ConnectionID) error
	IssueResumeToken(identity domain.Identity) (string, error)
	Resume(id domain.ConnectionID, token string) (domain.Identity, error)
}

type TokenIssuer interface {
	Issue(identity domain.Identity) (string, error)
	Validate(token string) (domain.Identity, error)
}

// SessionService binds verified identities to connections.
type SessionService struct {
	log      *slog.Logger
	gateway  contract.AuthGateway
	registry contract.IRegistry
	tokens   TokenIssuer
}

func NewSessionService(log *slog.Logger, gateway contract.AuthGateway,
	registry contract.IRegistry, tokens TokenIssuer) *SessionService {
	return &SessionService{log: log, gateway: gateway, registry: registry, tokens: tokens}
}

// Register creates a credential. It never touches any connection.
func (s *SessionService) Register(ctx context.Context, username, password string) error {
	userID, err := s.gateway.CreateCredential(ctx, username, password)
	if err != nil {
		s.log.Debug("Registration failed", "username", username, "error", err)
		return err
	}
	s.log.Info("User registered", "username", username, "user_id", userID)
	return nil
}

// Login verifies the credential and binds the identity to the connection.
// Unknown users and wrong passwords are both ErrInvalidCredentials.
func (s *SessionService) Login(ctx context.Context, id domain.ConnectionID,
	username, password string) (domain.Identity, error) {
	if _, ok := s.registry.Lookup(id); !ok {
		return domain.Unauthenticated, errors.ErrUnknownConnection
	}

	identity, err := s.gateway.Verify(ctx, username, password)
	if err != nil {
		if stderrors.Is(err, errors.ErrUnknownUser) || stderrors.Is(err, errors.ErrInvalidCredentials) {
			s.log.Info("Login failed", "connection_id", id, "username", username)
			return domain.Unauthenticated, errors.ErrInvalidCredentials
		}
		return domain.Unauthenticated, err
	}

	if err = s.registry.SetIdentity(id, identity); err != nil {
		return domain.Unauthenticated, err
	}
	s.log.Info("User logged in", "connection_id", id, "username", identity.Username)
	return identity, nil
}

func (s *SessionService) Logout(id domain.ConnectionID) error {
	return s.registry.SetIdentity(id, domain.Unauthenticated)
}

func (s *SessionService) IssueResumeToken(identity domain.Identity) (string, error) {
	return s.tokens.Issue(identity)
}

// Resume restores the identity carried by a resume token on a new connection.
func (s *SessionService) Resume(id domain.ConnectionID, token string) (domain.Identity, error) {
	identity, err := s.tokens.Validate(token)
	if err != nil {
		return domain.Unauthenticated, err
	}
	if err = s.registry.SetIdentity(id, identity); err != nil {
		return domain.Unauthenticated, err
	}
	s.log.Info("Session resumed", "connection_id", id, "username", identity.Username)
	return identity, nil
}
