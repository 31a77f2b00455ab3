package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/bridgex/internal/client/services"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

type progressBar struct {
	w    io.Writer
	name string

	mu      sync.Mutex
	lastPct int
}

// newProgress returns a ProgressFunc redrawing one status line on w, or nil
// when fd is not a terminal.
func newProgress(w io.Writer, fd int, name string) (services.ProgressFunc, func()) {
	if !isTerminal(fd) {
		return nil, func() {}
	}
	p := &progressBar{w: w, name: name, lastPct: -1}
	return p.update, p.done
}

func (p *progressBar) update(sent, total uint64) {
	pct := 100
	if total > 0 {
		pct = int(sent * 100 / total)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if pct == p.lastPct {
		return
	}
	p.lastPct = pct
	fmt.Fprintf(p.w, "\r%s %3d%% %s / %s", p.name, pct, humanize.IBytes(sent), humanize.IBytes(total))
}

func (p *progressBar) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPct >= 0 {
		fmt.Fprintln(p.w)
	}
}
