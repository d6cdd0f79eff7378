package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Google(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	ChangeUsername(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Trending(ctx context.Context, args []string) error
	More(ctx context.Context) error
	Search(ctx context.Context, args []string) error
	ClearSearch(ctx context.Context) error
	View(ctx context.Context, args []string) error
	Favorite(ctx context.Context, args []string) error
	Add(ctx context.Context) error
	Delete(ctx context.Context, args []string) error
}

const (
	helpAnonymous = "Available commands: register, login, google, (l)ist [cursor], trending, more, " +
		"search <query> [page=N], clear, view [text] [#tag] [fav] [sort=newest|oldest|popular], fav <id>, exit"
	helpSignedIn = "Available commands: whoami, username, logout, (l)ist [cursor], trending, more, " +
		"search <query> [page=N], clear, view [text] [#tag] [fav] [sort=newest|oldest|popular], fav <id>, " +
		"add, delete <id>, exit"
)

// runREPL starts a simple read–eval–print loop for the captionkeeper CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a' with the remaining tokens as
// arguments. Unknown commands are reported back to the user. The loop exits
// on scanner EOF or when the user types "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers should
// report their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("ck> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpSignedIn)
			} else {
				printlnFn(helpAnonymous)
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "google":
			_ = a.Google(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "whoami":
			_ = a.WhoAmI(ctx)

		case "username":
			_ = a.ChangeUsername(ctx)

		case "l", "list":
			_ = a.List(ctx, args)

		case "trending":
			_ = a.Trending(ctx, args)

		case "more":
			_ = a.More(ctx)

		case "search":
			if len(args) == 0 {
				printlnFn("Usage: search <query> [page=N]")
				continue
			}
			_ = a.Search(ctx, args)

		case "clear":
			_ = a.ClearSearch(ctx)

		case "view":
			_ = a.View(ctx, args)

		case "fav":
			if len(args) != 1 {
				printlnFn("Usage: fav <id>")
				continue
			}
			_ = a.Favorite(ctx, args)

		case "add":
			_ = a.Add(ctx)

		case "delete":
			if len(args) != 1 {
				printlnFn("Usage: delete <id>")
				continue
			}
			_ = a.Delete(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
