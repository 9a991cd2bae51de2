package maincmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"

	"github.com/mna/mainer"

	"github.com/coral-lang/coral/internal/runtime"
)

// Repl starts an interactive read-compile-run-print loop. Each line is
// compiled and run against the same Session, so top-level vars, funs, and
// classes declared on one line stay visible to the next — the REPL is one
// long-lived script whose source just arrives incrementally.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	cfg, err := runtime.LoadConfig()
	if err != nil {
		return usageErr(err)
	}
	cfg.StressGC = cfg.StressGC || c.StressGC

	sess := runtime.NewSession(cfg, ".", stdio.Stdout)

	in := stdio.Stdin
	if in == nil {
		return usageErr(errors.New("repl: no input stream available"))
	}
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(stdio.Stdout, cfg.ReplPrompt)
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		if err := sess.Run([]byte(line)); err != nil {
			var ce *runtime.CompileError
			if errors.As(err, &ce) {
				for _, e := range ce.Errs {
					fmt.Fprintln(stdio.Stderr, e)
				}
				continue
			}
			fmt.Fprintln(stdio.Stderr, err)
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return ioErr(err)
	}
	return nil
}
