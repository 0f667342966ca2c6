package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	stderrors "errors"
	"fmt"
)

var _ contract.AuthGateway = (*Gateway)(nil)

// Gateway is the credential backend: validation, hashing and lookup.
// The plain password never leaves this type.
type Gateway struct {
	users  repositories.IUserRepository
	params Argon2Params
}

func NewGateway(users repositories.IUserRepository, params Argon2Params) *Gateway {
	return &Gateway{users: users, params: params}
}

func (g *Gateway) CreateCredential(ctx context.Context, username, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrGatewayUnavailable, err)
	}
	if err := ValidateRegister(RegisterRequest{Username: username, Password: password}); err != nil {
		return "", err
	}

	hashedPassword, err := g.params.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := g.users.CreateUser(username, hashedPassword)
	switch {
	case err == nil:
		return userID, nil
	case stderrors.Is(err, errors.ErrUsernameTaken):
		return "", err
	default:
		return "", fmt.Errorf("%w: %v", errors.ErrGatewayUnavailable, err)
	}
}

// Verify returns ErrUnknownUser and ErrInvalidCredentials separately; callers
// facing users collapse both.
func (g *Gateway) Verify(ctx context.Context, username, password string) (domain.Identity, error) {
	if err := ctx.Err(); err != nil {
		return domain.Unauthenticated, fmt.Errorf("%w: %v", errors.ErrGatewayUnavailable, err)
	}

	user, err := g.users.GetUserByUsername(username)
	switch {
	case stderrors.Is(err, errors.ErrUnknownUser):
		return domain.Unauthenticated, err
	case err != nil:
		return domain.Unauthenticated, fmt.Errorf("%w: %v", errors.ErrGatewayUnavailable, err)
	}

	match, err := ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return domain.Unauthenticated, errors.ErrInvalidCredentials
	}
	return domain.Identity{UserID: user.ID, Username: user.Username}, nil
}
