package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mna/mainer"

	"github.com/coral-lang/coral/internal/runtime"
)

// Run compiles and executes a single file to completion.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if len(args) == 0 {
		return usageErr(errors.New("run: a file path is required"))
	}
	path := args[0]

	src, err := os.ReadFile(path)
	if err != nil {
		return ioErr(fmt.Errorf("%s: %w", path, err))
	}

	cfg, err := runtime.LoadConfig()
	if err != nil {
		return usageErr(err)
	}
	cfg.StressGC = cfg.StressGC || c.StressGC

	sess := runtime.NewSession(cfg, filepath.Dir(path), stdio.Stdout)
	if err := sess.Run(src); err != nil {
		var ce *runtime.CompileError
		if errors.As(err, &ce) {
			lines := make([]string, len(ce.Errs))
			for i, e := range ce.Errs {
				lines[i] = e.Error()
			}
			return compileErr(errors.New(strings.Join(lines, "\n")))
		}
		return runtimeErr(err)
	}
	return nil
}
