package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. App satisfies it; tests
// provide a lightweight stub.
type execIface interface {
	Invite(ctx context.Context, args []string) error
	Pair(ctx context.Context, args []string) error
	Unpair(ctx context.Context, args []string) error
	Devices(ctx context.Context, args []string) error
	Send(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Transfers(ctx context.Context, args []string) error
	Fetch(ctx context.Context, args []string) error
	Ping(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  pair [uri]                 pair this machine (requests an invitation when no uri is given)
  invite [name]              show a pairing QR code for another device
  unpair                     forget this machine on the server and locally
  devices                    list paired devices
  send <file>...             send files, resuming unfinished uploads
  status <transfer-id>       show server-side progress of a transfer
  history [limit]            uploads started from this machine
  transfers [limit]          transfers recorded by the server
  fetch <transfer-id> <dst>  download a completed transfer
  ping                       check the server
  exit | quit                leave the program`

// dispatch runs one command. quit reports whether the caller should stop.
func dispatch(ctx context.Context, a execIface, cmd string, args []string) (quit bool, err error) {
	switch cmd {
	case "help":
		printlnFn(helpText)
	case "pair":
		err = a.Pair(ctx, args)
	case "invite":
		err = a.Invite(ctx, args)
	case "unpair":
		err = a.Unpair(ctx, args)
	case "devices":
		err = a.Devices(ctx, args)
	case "send":
		err = a.Send(ctx, args)
	case "status":
		err = a.Status(ctx, args)
	case "history":
		err = a.History(ctx, args)
	case "l", "list", "transfers":
		err = a.Transfers(ctx, args)
	case "fetch":
		err = a.Fetch(ctx, args)
	case "ping":
		err = a.Ping(ctx, args)
	case "exit", "quit":
		printlnFn("Bye!")
		return true, nil
	default:
		err = fmt.Errorf("%w: unknown command %q, type 'help'", errUsage, cmd)
	}
	return false, err
}

// runREPL reads commands from scanner until EOF or exit. Command errors are
// printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("bridgex %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}

		quit, err := dispatch(ctx, a, parts[0], parts[1:])
		if err != nil {
			printlnFn(describe(err))
		}
		if quit || ctx.Err() != nil {
			return
		}
	}
}
