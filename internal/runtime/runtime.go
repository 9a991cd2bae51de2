package runtime

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coral-lang/coral/internal/compiler"
	"github.com/coral-lang/coral/internal/vm"
)

// CompileError is returned by Session methods when compilation fails; it
// wraps every diagnostic the compiler collected in its panic-mode recovery
// pass so a caller can print all of them at once.
type CompileError struct {
	Errs []error
}

func (e *CompileError) Error() string {
	if len(e.Errs) == 1 {
		return e.Errs[0].Error()
	}
	return fmt.Sprintf("%s (and %d more)", e.Errs[0].Error(), len(e.Errs)-1)
}

// Session bundles one Heap, Globals table, and VM together: everything a
// script or a REPL line needs to share across successive compiles so
// top-level variables and imported modules stay visible from one line to
// the next.
type Session struct {
	Heap    *vm.Heap
	Globals *vm.Globals
	VM      *vm.VM

	cfg     Config
	baseDir string
}

// NewSession builds a Session ready to compile and run source against
// stdout, wiring the VM's import native to load sibling files relative to
// baseDir (the directory of the entry script, or the working directory for
// a REPL session).
func NewSession(cfg Config, baseDir string, stdout io.Writer) *Session {
	heap := vm.NewHeap()
	heap.StressGC = cfg.StressGC
	heap.SetNextGC(cfg.InitialHeapBytes)

	globals := vm.NewGlobals()
	machine := vm.New(heap, globals, stdout)
	machine.Stdin = os.Stdin
	machine.SetMaxCallDepth(cfg.MaxCallDepth)

	s := &Session{
		Heap:    heap,
		Globals: globals,
		VM:      machine,
		cfg:     cfg,
		baseDir: baseDir,
	}
	machine.Natives().Loader = s.loadImport
	return s
}

// loadImport implements vm.Natives.Loader: it reads path relative to the
// session's base directory, compiles it as its own script, runs it, and
// returns the value of its last expression statement (vm.LastValue) as the
// module's exports.
func (s *Session) loadImport(path string) (vm.Value, error) {
	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(s.baseDir, path)
	}
	src, err := os.ReadFile(full)
	if err != nil {
		return vm.Value{}, err
	}
	return s.runModule(src)
}

// runModule compiles and runs src as a nested script, returning the value
// its final expression statement produced. The import native caches and
// returns that value; the `import` statement itself discards it.
func (s *Session) runModule(src []byte) (vm.Value, error) {
	fn, errs := compiler.Compile(src, s.Heap, s.Globals, s.VM.Natives())
	if errs != nil {
		return vm.Value{}, &CompileError{Errs: errs}
	}
	closure := s.Heap.NewClosure(fn)
	if res := s.VM.Run(closure); res != vm.InterpretOK {
		if err := s.VM.LastError(); err != nil {
			return vm.Value{}, err
		}
		return vm.Value{}, fmt.Errorf("module failed to run")
	}
	return s.VM.LastValue(), nil
}

// Run compiles and runs src as the program's entry point (a file passed on
// the command line, or one line typed at the REPL prompt). It returns a
// CompileError for a failed compile and a *vm.RuntimeError for a failed
// run, so the caller (internal/maincmd) can map either to the right process
// exit code.
func (s *Session) Run(src []byte) error {
	fn, errs := compiler.Compile(src, s.Heap, s.Globals, s.VM.Natives())
	if errs != nil {
		return &CompileError{Errs: errs}
	}
	closure := s.Heap.NewClosure(fn)
	if res := s.VM.Run(closure); res != vm.InterpretOK {
		if err := s.VM.LastError(); err != nil {
			return err
		}
		return fmt.Errorf("program failed to run")
	}
	return nil
}
