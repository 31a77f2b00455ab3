package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/bridgex/internal/client/config"
	"github.com/dmitrijs2005/bridgex/internal/flagx"
)

func (a *App) getStatus() string {
	name := "unpaired"
	if c, err := a.pairing.Credentials(context.Background()); err == nil {
		name = c.DeviceName
		c.Wipe()
	}
	if m := a.mode(); m != "" {
		return fmt.Sprintf("(%s %s)", name, m)
	}
	return fmt.Sprintf("(%s)", name)
}

// Root runs the interactive loop.
func (a *App) Root(ctx context.Context) {
	printlnFn("Welcome to bridgex (type 'help' for commands)")

	a.checkOnline(ctx)
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

// Run executes the command found in args, or the REPL when there is none.
// It returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	defer a.Close()

	positionals := flagx.Positionals(args, config.ValuedFlags)
	if len(positionals) == 0 {
		a.Root(ctx)
		return 0
	}

	if _, err := dispatch(ctx, a, positionals[0], positionals[1:]); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		return 1
	}
	return 0
}
