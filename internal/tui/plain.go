package tui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"ermtutor/internal/service"
)

// RunPlain runs a line-oriented chat until exit, quit, EOF or ctx cancellation.
func RunPlain(ctx context.Context, in io.Reader, out io.Writer, port ChatPort) error {
	if _, err := fmt.Fprintf(out, "Bot: %s\n", service.Greeting); err != nil {
		return err
	}
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.WriteString(out, "You: "); err != nil {
			return err
		}
		if !sc.Scan() {
			_, _ = io.WriteString(out, "\n")
			return sc.Err()
		}
		q := strings.TrimSpace(sc.Text())
		if isExit(q) {
			return nil
		}
		if q == "" {
			continue
		}
		turn := port.Turn(ctx, q)
		if _, err := fmt.Fprintf(out, "Bot: %s\n", turn.Answer); err != nil {
			return err
		}
	}
}
