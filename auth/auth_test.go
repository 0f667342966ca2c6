package auth

import (
	"chat-relay/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testParams = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashAndCompare(t *testing.T) {
	req := require.New(t)
	password := "MonMotDePasseTr0pSûr!"

	hash, err := testParams.HashPassword(password)
	req.NoError(err)
	req.True(strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword(password, hash)
	req.NoError(err)
	req.True(match)

	match, err = ComparePassword("MauvaisMDP", hash)
	req.NoError(err)
	req.False(match)
}

func TestHashIsSalted(t *testing.T) {
	req := require.New(t)

	first, err := testParams.HashPassword("same-password-1")
	req.NoError(err)
	second, err := testParams.HashPassword("same-password-1")
	req.NoError(err)

	req.NotEqual(first, second)
}

func TestCompareRejectsMalformedHashes(t *testing.T) {
	for _, hash := range []string{
		"",
		"plain-text",
		"$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA",
	} {
		t.Run(hash, func(t *testing.T) {
			match, err := ComparePassword("whatever1", hash)
			require.Error(t, err)
			require.False(t, match)
		})
	}
}

func TestRegistrationValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr error
	}{
		{"Valid request", RegisterRequest{"alice", "hunter2hunter2"}, nil},
		{"Dotted username", RegisterRequest{"alice.b-c_d", "hunter2hunter2"}, nil},
		{"Username too short", RegisterRequest{"al", "hunter2hunter2"}, errors.ErrInvalidUsername},
		{"Username too long", RegisterRequest{strings.Repeat("a", 33), "hunter2hunter2"}, errors.ErrInvalidUsername},
		{"Username with space", RegisterRequest{"ali ce", "hunter2hunter2"}, errors.ErrInvalidUsername},
		{"Reserved username", RegisterRequest{"Anonymous", "hunter2hunter2"}, errors.ErrInvalidUsername},
		{"Missing username", RegisterRequest{"", "hunter2hunter2"}, errors.ErrInvalidUsername},
		{"Password too short", RegisterRequest{"alice", "abc12"}, errors.ErrInvalidPassword},
		{"Password too long", RegisterRequest{"alice", strings.Repeat("a1", 37)}, errors.ErrInvalidPassword},
		{"Missing digit", RegisterRequest{"alice", "NoDigitPass!"}, errors.ErrInvalidPassword},
		{"Missing letter", RegisterRequest{"alice", "1234567890"}, errors.ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := ValidateRegister(tt.req)
			if tt.wantErr == nil {
				req.NoError(err)
				return
			}
			req.ErrorIs(err, tt.wantErr)
		})
	}
}

func BenchmarkHashPassword(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = DefaultParams.HashPassword("A-very-long-and-complex-password-for-bench-123!")
	}
}
