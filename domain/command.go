package domain

import (
	"fmt"
	"strings"
)

type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandChat
	CommandRegister
	CommandLogin
	CommandLogout
	CommandResume
	CommandWho
	CommandHelp
	CommandInvalid
)

// Command is one inbound line after parsing.
// Chat lines keep their raw content: trimming and validation belong to the hub.
type Command struct {
	Kind    CommandKind
	Args    []string
	Content string
	Usage   string
}

type commandRule struct {
	kind  CommandKind
	arity int
	usage string
}

var commands = map[string]commandRule{
	"/register": {CommandRegister, 2, "Usage: /register <username> <password>"},
	"/login":    {CommandLogin, 2, "Usage: /login <username> <password>"},
	"/logout":   {CommandLogout, 0, "Usage: /logout"},
	"/resume":   {CommandResume, 1, "Usage: /resume <token>"},
	"/who":      {CommandWho, 0, "Usage: /who"},
	"/help":     {CommandHelp, 0, "Usage: /help"},
}

// HelpText lists the command surface.
const HelpText = `Available commands:
/register <username> <password> - create an account
/login <username> <password> - authenticate this connection
/logout - go back to anonymous
/resume <token> - restore a previous login after a reconnect
/who - list connected users
/help - show this help
Anything else is sent to everyone.`

// ParseCommand turns one inbound line into a Command.
// Lines starting with '/' are commands; anything else non-blank is chat content.
func ParseCommand(line string) Command {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Command{Kind: CommandNone}
	}
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: CommandChat, Content: line}
	}

	fields := strings.Fields(trimmed)
	rule, ok := commands[fields[0]]
	if !ok {
		return Command{
			Kind:  CommandInvalid,
			Usage: fmt.Sprintf("Unknown command: %s (try /help)", fields[0]),
		}
	}
	args := fields[1:]
	if len(args) != rule.arity {
		return Command{Kind: CommandInvalid, Usage: rule.usage}
	}
	return Command{Kind: rule.kind, Args: args}
}
