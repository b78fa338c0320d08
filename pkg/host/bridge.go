package host

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/RepairMe/extension/internal/dispatcher"
	"github.com/RepairMe/extension/internal/util"
)

// DefaultSubcommand is dispatched when the slash command has no arguments.
const DefaultSubcommand = "toggle"

// Bridge routes a slash command to the dispatcher. "/repairme status now"
// dispatches ":STATUS:" with Args ["now"] and prints the result to chat.
type Bridge struct {
	command    string
	help       string
	commands   Commands
	chat       Chat
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
}

// NewBridge creates a bridge for command (including the leading slash).
func NewBridge(command, help string, commands Commands, chat Chat, d *dispatcher.Dispatcher, logger *slog.Logger) *Bridge {
	return &Bridge{
		command:    command,
		help:       help,
		commands:   commands,
		chat:       chat,
		dispatcher: d,
		logger:     logger,
	}
}

// Register adds the slash command to the host.
func (b *Bridge) Register() error {
	if err := b.commands.AddHandler(b.command, b.help, b.handle); err != nil {
		return fmt.Errorf("registering %s: %w", b.command, err)
	}
	return nil
}

// Close removes the slash command from the host.
func (b *Bridge) Close() {
	b.commands.RemoveHandler(b.command)
}

// CommandName converts a subcommand to its dispatcher command, e.g.
// "status" -> ":STATUS:".
func CommandName(sub string) string {
	return ":" + strings.ToUpper(sub) + ":"
}

func (b *Bridge) handle(_ string, args string) {
	fields := util.SplitArgs(args)
	sub := DefaultSubcommand
	if len(fields) > 0 {
		sub = strings.ToLower(fields[0])
		fields = fields[1:]
	}

	name := CommandName(sub)
	if !b.dispatcher.HasHandler(name) {
		b.chat.PrintError(fmt.Sprintf("%s: unknown subcommand %q", b.command, sub))
		return
	}

	result, err := b.dispatcher.Dispatch(dispatcher.Event{
		Command:   name,
		Args:      fields,
		Timestamp: time.Now(),
	})
	if err != nil {
		b.logger.Warn("command failed", "command", name, "error", err)
	}

	msg, isErr := FormatResponse(result, err)
	switch {
	case msg == "":
	case isErr:
		b.chat.PrintError(msg)
	default:
		b.chat.Print(msg)
	}
}

// FormatResponse renders a dispatcher result for chat. A nil result with no
// error prints nothing.
func FormatResponse(result any, err error) (msg string, isErr bool) {
	if err != nil {
		return err.Error(), true
	}
	switch v := result.(type) {
	case nil:
		return "", false
	case string:
		return v, false
	case []string:
		return strings.Join(v, "\n"), false
	case fmt.Stringer:
		return v.String(), false
	default:
		return fmt.Sprintf("%v", v), false
	}
}
