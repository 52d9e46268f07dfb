package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/shelfscan/backend/internal/domain"
)

// Prompt is the terminal operator. It implements domain.Operator by asking the user to fix
// the network situation and press Enter, or type q to stop.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt creates an operator prompt reading answers from in
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

type answer struct {
	line string
	err  error
}

// AwaitOperator implements domain.Operator
func (p *Prompt) AwaitOperator(ctx context.Context, reason string) error {
	warn := color.New(color.FgYellow, color.Bold)
	hint := color.New(color.FgCyan)

	fmt.Fprintln(p.out)
	warn.Fprintf(p.out, "Scraping paused: %s\n", reason)
	hint.Fprintln(p.out, "The retailer is probably blocking this IP. Switch VPN location or network, then")
	hint.Fprint(p.out, "press Enter to resume the same batch, or type q and Enter to stop: ")

	answers := make(chan answer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		answers <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case a := <-answers:
		if a.err != nil && a.line == "" {
			// stdin closed, nobody can resume the run
			return domain.ErrOperatorAborted
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "q", "quit", "exit":
			return domain.ErrOperatorAborted
		}
		color.New(color.FgGreen).Fprintln(p.out, "Resuming...")
		return nil
	}
}
