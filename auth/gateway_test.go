package auth

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/repositories"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestGateway_CreateCredential(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	gateway := NewGateway(users, testParams)

	t.Run("stores a hash, never the password", func(t *testing.T) {
		req := require.New(t)
		var stored string
		users.EXPECT().
			CreateUser("alice", gomock.Any()).
			DoAndReturn(func(_, hashed string) (string, error) {
				stored = hashed
				return "u-1", nil
			}).
			Times(1)

		id, err := gateway.CreateCredential(context.Background(), "alice", "hunter2hunter2")

		req.NoError(err)
		req.Equal("u-1", id)
		req.NotContains(stored, "hunter2hunter2")
		match, err := ComparePassword("hunter2hunter2", stored)
		req.NoError(err)
		req.True(match)
	})

	t.Run("invalid username never reaches the repository", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().CreateUser(gomock.Any(), gomock.Any()).Times(0)

		_, err := gateway.CreateCredential(context.Background(), "a b", "hunter2hunter2")

		req.ErrorIs(err, errors.ErrInvalidUsername)
	})

	t.Run("taken username", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().CreateUser("bob", gomock.Any()).Return("", errors.ErrUsernameTaken).Times(1)

		_, err := gateway.CreateCredential(context.Background(), "bob", "hunter2hunter2")

		req.ErrorIs(err, errors.ErrUsernameTaken)
	})

	t.Run("storage failure is unavailable", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().CreateUser("carol", gomock.Any()).Return("", fmt.Errorf("disk full")).Times(1)

		_, err := gateway.CreateCredential(context.Background(), "carol", "hunter2hunter2")

		req.ErrorIs(err, errors.ErrGatewayUnavailable)
		req.True(errors.Transient(err))
	})
}

func TestGateway_Verify(t *testing.T) {
	ctrl := gomock.NewController(t)
	users := mocks.NewMockIUserRepository(ctrl)
	gateway := NewGateway(users, testParams)
	hash, err := testParams.HashPassword("hunter2hunter2")
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().GetUserByUsername("alice").
			Return(repositories.User{ID: "u-1", Username: "alice", PasswordHash: hash}, nil).Times(1)

		identity, err := gateway.Verify(context.Background(), "alice", "hunter2hunter2")

		req.NoError(err)
		req.Equal(domain.Identity{UserID: "u-1", Username: "alice"}, identity)
	})

	t.Run("wrong password", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().GetUserByUsername("alice").
			Return(repositories.User{ID: "u-1", Username: "alice", PasswordHash: hash}, nil).Times(1)

		identity, err := gateway.Verify(context.Background(), "alice", "wrong-password-1")

		req.ErrorIs(err, errors.ErrInvalidCredentials)
		req.False(identity.Authenticated())
	})

	t.Run("unknown user", func(t *testing.T) {
		req := require.New(t)
		users.EXPECT().GetUserByUsername("nobody").Return(repositories.User{}, errors.ErrUnknownUser).Times(1)

		_, err := gateway.Verify(context.Background(), "nobody", "hunter2hunter2")

		req.ErrorIs(err, errors.ErrUnknownUser)
	})

	t.Run("canceled request", func(t *testing.T) {
		req := require.New(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := gateway.Verify(ctx, "alice", "hunter2hunter2")

		req.ErrorIs(err, errors.ErrGatewayUnavailable)
	})
}
