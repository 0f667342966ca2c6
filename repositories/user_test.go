package repositories

import (
	"chat-relay/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Create_And_Get_User(t *testing.T) {
	req := require.New(t)
	db := openDB(t, t.TempDir())
	defer db.Close()
	repository := NewUserRepository(db)

	// Given a stored credential
	id, err := repository.CreateUser("alice", "$argon2id$hash")
	req.NoError(err)
	req.NotEmpty(id)

	// When it is read back
	user, err := repository.GetUserByUsername("alice")

	// Then every field survived
	req.NoError(err)
	req.Equal(id, user.ID)
	req.Equal("alice", user.Username)
	req.Equal("$argon2id$hash", user.PasswordHash)
	req.Equal([]string{"user"}, user.Roles)
	req.False(user.CreatedAt.IsZero())
}

func Test_Create_User_Twice_Is_Taken(t *testing.T) {
	req := require.New(t)
	db := openDB(t, t.TempDir())
	defer db.Close()
	repository := NewUserRepository(db)

	_, err := repository.CreateUser("alice", "h1")
	req.NoError(err)
	_, err = repository.CreateUser("alice", "h2")
	req.ErrorIs(err, errors.ErrUsernameTaken)

	// The first credential is untouched
	user, err := repository.GetUserByUsername("alice")
	req.NoError(err)
	req.Equal("h1", user.PasswordHash)
}

func Test_Get_Unknown_User(t *testing.T) {
	req := require.New(t)
	db := openDB(t, t.TempDir())
	defer db.Close()

	_, err := NewUserRepository(db).GetUserByUsername("nobody")

	req.ErrorIs(err, errors.ErrUnknownUser)
}

func Test_Count_Users_Ignores_Messages(t *testing.T) {
	req := require.New(t)
	db := openDB(t, t.TempDir())
	defer db.Close()
	users := NewUserRepository(db)

	_, err := users.CreateUser("alice", "h")
	req.NoError(err)
	_, err = users.CreateUser("bob", "h")
	req.NoError(err)

	count, err := users.CountUsers()
	req.NoError(err)
	req.Equal(2, count)
}
