package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"
	"golang.org/x/exp/slices"

	"github.com/coral-lang/coral/internal/compiler"
	"github.com/coral-lang/coral/internal/runtime"
	"github.com/coral-lang/coral/internal/vm"
)

// Disassemble compiles a file and prints its bytecode instead of running
// it — a debugging aid, never consulted by the dispatch loop itself.
func (c *Cmd) Disassemble(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if len(args) == 0 {
		return usageErr(errors.New("disassemble: a file path is required"))
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

	heap := vm.NewHeap()
	heap.StressGC = cfg.StressGC || c.StressGC
	globals := vm.NewGlobals()
	machine := vm.New(heap, globals, stdio.Stdout)

	fn, errs := compiler.Compile(src, heap, globals, machine.Natives())
	if errs != nil {
		lines := make([]string, len(errs))
		for i, e := range errs {
			lines[i] = e.Error()
		}
		return compileErr(errors.New(strings.Join(lines, "\n")))
	}

	print := func(line string) { fmt.Fprintln(stdio.Stdout, line) }
	disassembleFunction(fn, path, print)
	return nil
}

func disassembleFunction(fn *vm.Function, name string, print func(string)) {
	if fn.Name != nil {
		name = fn.Name.GoString()
	}
	vm.DisassembleChunk(fn.Chunk, name, print)
	disassembleClasses(fn.Chunk, print)
	for _, v := range fn.Chunk.Constants {
		if inner, ok := v.AsObj().(*vm.Function); ok {
			disassembleFunction(inner, name, print)
		}
	}
}

// disassembleClasses walks a chunk's bytecode for OP_CLASS/OP_METHOD runs and
// prints each class's method names in sorted order, a deterministic summary
// that doesn't depend on the order methods were declared in source.
func disassembleClasses(c *vm.Chunk, print func(string)) {
	var className string
	var methods []string

	flush := func() {
		if className == "" {
			return
		}
		slices.Sort(methods)
		print(fmt.Sprintf("== %s methods ==", className))
		for _, m := range methods {
			print("  " + m)
		}
		className, methods = "", nil
	}

	for offset := 0; offset < len(c.Code); {
		op := vm.OpCode(c.Code[offset])
		switch op {
		case vm.OpClass:
			flush()
			if s, ok := c.Constants[c.Code[offset+1]].AsObj().(*vm.String); ok {
				className = s.Chars
			}
		case vm.OpMethod:
			if className != "" {
				if s, ok := c.Constants[c.Code[offset+1]].AsObj().(*vm.String); ok {
					methods = append(methods, s.Chars)
				}
			}
		}
		offset += vm.InstructionSize(c, offset)
	}
	flush()
}
