package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL needs. *Shell satisfies it;
// tests provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	status() string
	Register(ctx context.Context, email, name, password string) error
	Verify(ctx context.Context, email, code string) error
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	Profile(ctx context.Context, refresh bool) error
	Recipes(ctx context.Context) error
	Generate(ctx context.Context, ingredients []string) error
	CacheStats(ctx context.Context) error
}

// runREPL reads commands line by line from reader and dispatches them to a.
// Commands that prompt for more input read from the same reader.
// It returns on EOF, "exit" or "quit", or when ctx is cancelled.
//
// Errors returned by command handlers are not fatal; handlers print their
// own messages.
func runREPL(ctx context.Context, a execIface, reader *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(w, "pantry (%s)> ", a.status())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(w, "Available commands: profile [refresh], recipes, generate [ingredient...], status, cache, logout, exit")
			} else {
				fmt.Fprintln(w, "Available commands: register, verify, login, status, cache, exit")
			}

		case "register":
			_ = a.Register(ctx, "", "", "")

		case "verify":
			_ = a.Verify(ctx, "", "")

		case "login":
			_ = a.Login(ctx, "", "")

		case "logout":
			_ = a.Logout(ctx)

		case "status":
			_ = a.Status(ctx)

		case "profile":
			_ = a.Profile(ctx, len(args) > 0 && args[0] == "refresh")

		case "r", "recipes":
			_ = a.Recipes(ctx)

		case "generate":
			_ = a.Generate(ctx, args)

		case "cache":
			_ = a.CacheStats(ctx)

		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return

		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
	}
}
