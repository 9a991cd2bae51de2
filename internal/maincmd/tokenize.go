package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/coral-lang/coral/internal/scanner"
	"github.com/coral-lang/coral/internal/token"
)

// Tokenize runs only the scanning phase and prints the resulting token
// stream, one token per line — useful for debugging the lexer in
// isolation from the compiler that consumes it.
func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	src, err := os.ReadFile(args[0])
	if err != nil {
		return ioErr(fmt.Errorf("%s: %w", args[0], err))
	}

	sc := scanner.New(src)
	for {
		tok := sc.Scan()
		if tok.Kind == token.ILLEGAL {
			fmt.Fprintf(stdio.Stdout, "%4d illegal %q: %s\n", tok.Line, tok.Lexeme, tok.Message)
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%4d %-12s %q\n", tok.Line, tok.Kind, tok.Lexeme)
		if tok.Kind == token.EOF {
			break
		}
	}
	return nil
}
