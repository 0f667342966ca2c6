//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const userPrefix = "user:"

type IUserRepository interface {
	CreateUser(username, hashedPassword string) (string, error)
	GetUserByUsername(username string) (User, error)
	CountUsers() (int, error)
}

type UserRepository struct {
	db  *badger.DB
	now func() time.Time
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db, now: time.Now}
}

type User struct {
	ID           string
	Username     string
	PasswordHash string
	Roles        []string
	CreatedAt    time.Time
}

// CreateUser persists an already hashed credential under "user:{username}".
// It returns the newly generated User ID.
func (u UserRepository) CreateUser(username, hashedPassword string) (string, error) {
	user := User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hashedPassword,
		Roles:        []string{"user"},
		CreatedAt:    u.now().UTC(),
	}

	err := u.db.Update(func(txn *badger.Txn) error {
		key := []byte(userPrefix + username)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return errors.ErrUsernameTaken
		case !stderrors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, encodeUser(user))
	})
	if err != nil {
		// Two concurrent registrations of the same name: the loser conflicts
		if stderrors.Is(err, badger.ErrConflict) {
			return "", errors.ErrUsernameTaken
		}
		return "", err
	}
	return user.ID, nil
}

// GetUserByUsername returns errors.ErrUnknownUser when nothing is stored.
func (u UserRepository) GetUserByUsername(username string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userPrefix + username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			user, err = DecodeUser(val)
			return err
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return User{}, errors.ErrUnknownUser
	}
	if err != nil {
		return User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return user, nil
}

func (u UserRepository) CountUsers() (int, error) {
	count := 0
	err := u.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(userPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
