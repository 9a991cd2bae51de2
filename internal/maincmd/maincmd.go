// Package maincmd is the command-line front end: argument parsing, REPL and
// file dispatch, and the mapping from internal errors to process exit
// codes. The compiler and VM it drives know nothing about flags, files, or
// exit codes.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/mna/mainer"
)

const binName = "coral"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] [<command>] [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<command>] [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

Bytecode compiler and virtual machine for the %[1]s programming language.

With no command and no path, starts an interactive REPL. With a single
bare path, compiles and runs that file. The <command> can also be given
explicitly as one of:
       run <path>                Compile and run the given file.
       repl                      Start the interactive REPL (default).
       tokenize <path>           Print the token stream for the given file.
       disassemble <path>        Compile the given file and print its
                                 bytecode instead of running it.

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       --stress-gc               Run a collection before every allocation.

More information on the %[1]s repository:
       https://github.com/coral-lang/coral
`, binName)

	knownCommands = map[string]bool{"run": true, "repl": true, "tokenize": true, "disassemble": true}
)

// exitCode mirrors the CLI's documented exit contract: 0 success, 64 usage,
// 65 compile error, 70 runtime error, 74 I/O error.
type exitCode int

const (
	exitSuccess      exitCode = 0
	exitUsage        exitCode = 64
	exitCompileError exitCode = 65
	exitRuntimeError exitCode = 70
	exitIOError      exitCode = 74
)

// cliError pairs an error with the exit code it should produce, so a
// command function can just return an ordinary error and let Main
// translate it to the right process exit status.
type cliError struct {
	code exitCode
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func usageErr(err error) error   { return &cliError{code: exitUsage, err: err} }
func compileErr(err error) error { return &cliError{code: exitCompileError, err: err} }
func runtimeErr(err error) error { return &cliError{code: exitRuntimeError, err: err} }
func ioErr(err error) error      { return &cliError{code: exitIOError, err: err} }

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help     bool `flag:"h,help"`
	Version  bool `flag:"v,version"`
	StressGC bool `flag:"stress-gc"`

	args  []string
	flags map[string]bool
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	commands := buildCmds(c)

	if len(c.args) == 0 {
		c.cmdFn = commands["repl"]
		return nil
	}

	cmdName := strings.ToLower(c.args[0])
	if knownCommands[cmdName] {
		c.cmdFn = commands[cmdName]
		if cmdName != "repl" && len(c.args[1:]) == 0 {
			return fmt.Errorf("%s: a file path is required", cmdName)
		}
		return nil
	}

	// A bare path with no recognized command name ahead of it: run it.
	c.cmdFn = commands["run"]
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: strings.ToUpper(binName) + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.ExitCode(exitUsage)
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.ExitCode(exitSuccess)
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.ExitCode(exitSuccess)
	}

	if c.cmdFn == nil {
		fmt.Fprint(stdio.Stderr, shortUsage)
		return mainer.ExitCode(exitUsage)
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)

	cmdArgs := c.args
	if len(cmdArgs) > 0 && knownCommands[strings.ToLower(cmdArgs[0])] {
		cmdArgs = cmdArgs[1:]
	}

	if err := c.cmdFn(ctx, stdio, cmdArgs); err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
		var ce *cliError
		if errors.As(err, &ce) {
			return mainer.ExitCode(ce.code)
		}
		return mainer.ExitCode(exitRuntimeError)
	}
	return mainer.ExitCode(exitSuccess)
}

// buildCmds mirrors the teacher's reflection-based command table: any
// exported *Cmd method with the right signature becomes a named subcommand.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}
		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
