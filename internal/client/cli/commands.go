package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/bridgex/internal/client/client"
	"github.com/dmitrijs2005/bridgex/internal/client/services"
	"github.com/dmitrijs2005/bridgex/internal/common"
	"github.com/dmitrijs2005/bridgex/internal/qr"
	"github.com/dustin/go-humanize"
)

var errUsage = errors.New("usage")

func usage(format string) error {
	return fmt.Errorf("%w: %s", errUsage, format)
}

// Invite requests an invitation for another device and shows it as a QR
// code to scan.
func (a *App) Invite(ctx context.Context, args []string) error {
	name := a.config.DeviceName
	if len(args) > 0 {
		name = args[0]
	}

	inv, err := a.pairing.Invite(ctx, name)
	if err != nil {
		return err
	}

	code, err := qr.Terminal(inv.URI, false)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, code)
	fmt.Fprintf(a.out, "Pairing URI: %s\nExpires: %s\n", inv.URI, humanize.Time(inv.ExpiresAt))
	return nil
}

// Pair completes the pairing URI in args, or requests and completes a fresh
// invitation for this machine when none is given.
func (a *App) Pair(ctx context.Context, args []string) error {
	if a.isPaired(ctx) && !Confirm(a.reader, "This machine is already paired. Replace the pairing?", a.out) {
		return nil
	}

	var uri string
	if len(args) > 0 {
		uri = args[0]
	} else {
		inv, err := a.pairing.Invite(ctx, a.config.DeviceName)
		if err != nil {
			return err
		}
		uri = inv.URI
	}

	creds, err := a.pairing.Pair(ctx, uri)
	if err != nil {
		return err
	}
	defer creds.Wipe()

	fmt.Fprintf(a.out, "Paired as %q (device %s)\n", creds.DeviceName, creds.DeviceID)
	return nil
}

func (a *App) Unpair(ctx context.Context, _ []string) error {
	if err := a.pairing.Unpair(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Unpaired")
	return nil
}

func (a *App) Devices(ctx context.Context, _ []string) error {
	devices, err := a.pairing.Devices(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tPAIRED\tLAST SEEN")
	for _, d := range devices {
		seen := "-"
		if d.LastSeen != nil {
			seen = humanize.Time(*d.LastSeen)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Name, d.DeviceType, humanize.Time(d.PairedAt), seen)
	}
	return tw.Flush()
}

func (a *App) Send(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usage("send <file>...")
	}

	for _, path := range args {
		progress, done := newProgress(a.out, int(os.Stdout.Fd()), filepath.Base(path))
		res, err := a.sender.Send(ctx, path, services.SendOptions{
			ChunkSize:   a.config.ChunkSize,
			Parallelism: a.config.Parallelism,
			Progress:    progress,
		})
		done()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		verb := "Sent"
		if res.Resumed {
			verb = "Resumed and sent"
		}
		fmt.Fprintf(a.out, "%s %s (%s) as transfer %s\n", verb, res.FileName, humanize.IBytes(res.Size), res.TransferID)
		fmt.Fprintf(a.out, "  sha256 %s\n  stored at %s\n", res.Hash, res.Location)
		if res.DownloadURL != "" {
			fmt.Fprintf(a.out, "  download %s\n", res.DownloadURL)
		}
	}
	return nil
}

func (a *App) Status(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("status <transfer-id>")
	}

	st, err := a.sender.Status(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%s  %s  %s\n", st.TransferID, st.FileName, st.State)
	fmt.Fprintf(a.out, "  received %s of %s in %d chunks\n",
		humanize.IBytes(st.BytesReceived), humanize.IBytes(st.Total), st.ChunksReceived)
	for _, r := range st.Missing {
		fmt.Fprintf(a.out, "  missing [%d, %d)\n", r.Offset, r.Offset+r.Length)
	}
	if st.Location != "" {
		fmt.Fprintf(a.out, "  stored at %s\n", st.Location)
	}
	return nil
}

func parseLimit(args []string) (int, error) {
	if len(args) == 0 {
		return 20, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, usage("limit must be a non-negative number")
	}
	return n, nil
}

// History lists uploads started from this machine.
func (a *App) History(ctx context.Context, args []string) error {
	limit, err := parseLimit(args)
	if err != nil {
		return err
	}

	list, err := a.sender.History(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSFER\tFILE\tSIZE\tSTATUS\tSTARTED")
	for _, u := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.TransferID, u.FilePath, humanize.IBytes(u.FileSize), u.Status, humanize.Time(u.CreatedAt))
	}
	return tw.Flush()
}

// Transfers lists this device's transfers as recorded by the server.
func (a *App) Transfers(ctx context.Context, args []string) error {
	limit, err := parseLimit(args)
	if err != nil {
		return err
	}

	list, err := a.sender.Remote(ctx, limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TRANSFER\tFILE\tSIZE\tSTATE\tCREATED")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.TransferID, t.FileName, humanize.IBytes(t.FileSize), t.State, humanize.Time(t.CreatedAt))
	}
	return tw.Flush()
}

// Fetch downloads a completed transfer to dest. The file appears only once
// the download has been verified.
func (a *App) Fetch(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("fetch <transfer-id> <destination>")
	}
	id, dest := args[0], args[1]

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".bridgex-fetch-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := a.sender.Fetch(ctx, id, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Fetched %s to %s\n", humanize.IBytes(uint64(n)), dest)
	return nil
}

func (a *App) Ping(ctx context.Context, _ []string) error {
	start := time.Now()
	if err := a.pairing.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return err
	}
	a.setMode(ModeOnline)
	fmt.Fprintf(a.out, "%s is up (%s)\n", a.config.ServerEndpointAddr, time.Since(start).Round(time.Millisecond))
	return nil
}

// describe turns service errors into one-line messages for the prompt.
func describe(err error) string {
	switch {
	case errors.Is(err, errUsage):
		return err.Error()
	case errors.Is(err, client.ErrNotPaired):
		return "This machine is not paired; run 'pair' first"
	case errors.Is(err, client.ErrUnavailable):
		return "Server unavailable"
	case errors.Is(err, common.ErrInvalidRequest):
		return "Invalid input: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}
