package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCommand_Chat(t *testing.T) {
	req := require.New(t)

	cmd := ParseCommand("  hello there ")

	req.Equal(CommandChat, cmd.Kind)
	req.Equal("  hello there ", cmd.Content)
}

func TestParseCommand_Blank_Line_Is_Ignored(t *testing.T) {
	req := require.New(t)

	req.Equal(CommandNone, ParseCommand("").Kind)
	req.Equal(CommandNone, ParseCommand("   \t").Kind)
}

func TestParseCommand_Login(t *testing.T) {
	req := require.New(t)

	cmd := ParseCommand("/login alice s3cret")

	req.Equal(CommandLogin, cmd.Kind)
	req.Equal([]string{"alice", "s3cret"}, cmd.Args)
}

func TestParseCommand_Wrong_Arity_Yields_Usage(t *testing.T) {
	req := require.New(t)

	// Given a register command missing the password
	cmd := ParseCommand("/register alice")

	// Then the usage is returned instead of a command
	req.Equal(CommandInvalid, cmd.Kind)
	req.Equal("Usage: /register <username> <password>", cmd.Usage)
}

func TestParseCommand_Unknown(t *testing.T) {
	req := require.New(t)

	cmd := ParseCommand("/kick bob")

	req.Equal(CommandInvalid, cmd.Kind)
	req.Contains(cmd.Usage, "/kick")
}

func TestIdentity_Author(t *testing.T) {
	req := require.New(t)

	req.Equal(Anonymous, Unauthenticated.Author())
	req.False(Unauthenticated.Authenticated())

	alice := Identity{UserID: "u-1", Username: "alice"}
	req.True(alice.Authenticated())
	req.Equal("alice", alice.Author())
}

func TestParseMessageID(t *testing.T) {
	req := require.New(t)

	id, err := ParseMessageID(" 42 ")
	req.NoError(err)
	req.Equal(MessageID(42), id)

	_, err = ParseMessageID("-1")
	req.Error(err)
}
