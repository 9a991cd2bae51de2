package vm

import (
	"bufio"
	"fmt"
	"time"

	"github.com/dolthub/swiss"
)

// Natives is the native-function registry. It is backed by a GC-independent
// map (native functions outlive any collection cycle and are never
// themselves collected) rather than the VM's own Table, since the registry
// is populated once at startup and never needs tombstone-aware deletion.
type Natives struct {
	fns   *swiss.Map[string, *Native]
	start time.Time
	vm    *VM
	stdin *bufio.Reader

	// Loader resolves an `import "path";` statement. It is nil until the
	// host (internal/runtime) installs one, since loading requires the
	// compiler and a file system view the vm package does not depend on.
	Loader func(path string) (Value, error)
}

func NewNatives(vm *VM) *Natives {
	n := &Natives{
		fns:   swiss.NewMap[string, *Native](16),
		start: time.Now(),
		vm:    vm,
	}
	n.register("clock", 0, n.clock)
	n.register("getLine", 0, n.getLine)
	n.register("hasField", 2, n.hasField)
	n.register("getField", 2, n.getField)
	n.register("setField", 3, n.setField)
	n.register("toString", 1, n.toStringFn)
	n.register("interpolate", 2, n.interpolate)
	n.register("error", 0, n.errorFn)
	n.register("runtimeError", 1, n.runtimeErrorFn)
	n.register("import", 1, n.importFn)
	return n
}

func (n *Natives) importFn(args []Value) (Value, bool) {
	path, ok := args[0].AsObj().(*String)
	if !ok {
		return n.errValue("import expects a string path"), false
	}
	if n.Loader == nil {
		return n.errValue("imports are not supported in this context"), false
	}
	if exports, ok := n.vm.modules.Exports(path.Chars); ok {
		return exports, true
	}
	exports, err := n.Loader(path.Chars)
	if err != nil {
		return n.errValue(err.Error()), false
	}
	n.vm.modules.Record(path.Chars, exports)
	return exports, true
}

func (n *Natives) register(name string, arity int, fn NativeFn) {
	native := n.vm.heap.NewNative(name, arity, fn)
	n.fns.Put(name, native)
}

// Lookup returns the native registered under name, if any; used by the
// compiler to resolve bare identifiers that name a builtin before falling
// back to a global-variable lookup.
func (n *Natives) Lookup(name string) (*Native, bool) {
	return n.fns.Get(name)
}

func (n *Natives) errValue(msg string) Value {
	return Obj(n.vm.heap.InternString(msg))
}

func (n *Natives) clock(args []Value) (Value, bool) {
	return Number(time.Since(n.start).Seconds()), true
}

func (n *Natives) getLine(args []Value) (Value, bool) {
	if n.stdin == nil {
		if n.vm.Stdin == nil {
			return n.errValue("no input stream configured"), false
		}
		n.stdin = bufio.NewReader(n.vm.Stdin)
	}
	line, err := n.stdin.ReadString('\n')
	if err != nil && line == "" {
		return n.errValue("end of input"), false
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return Obj(n.vm.heap.InternString(line)), true
}

func (n *Natives) fieldsOf(v Value) (*Table, bool) {
	inst, ok := v.AsObj().(*Instance)
	if !ok {
		return nil, false
	}
	return inst.Fields, true
}

func (n *Natives) hasField(args []Value) (Value, bool) {
	fields, ok := n.fieldsOf(args[0])
	if !ok {
		return n.errValue("hasField expects an instance"), false
	}
	name, ok := args[1].AsObj().(*String)
	if !ok {
		return n.errValue("hasField expects a string field name"), false
	}
	_, found := fields.Get(Obj(name))
	return Bool(found), true
}

func (n *Natives) getField(args []Value) (Value, bool) {
	fields, ok := n.fieldsOf(args[0])
	if !ok {
		return n.errValue("getField expects an instance"), false
	}
	name, ok := args[1].AsObj().(*String)
	if !ok {
		return n.errValue("getField expects a string field name"), false
	}
	v, found := fields.Get(Obj(name))
	if !found {
		return n.errValue(fmt.Sprintf("undefined field %q", name.Chars)), false
	}
	return v, true
}

func (n *Natives) setField(args []Value) (Value, bool) {
	fields, ok := n.fieldsOf(args[0])
	if !ok {
		return n.errValue("setField expects an instance"), false
	}
	name, ok := args[1].AsObj().(*String)
	if !ok {
		return n.errValue("setField expects a string field name"), false
	}
	fields.Set(Obj(name), args[2])
	return args[2], true
}

func (n *Natives) toStringFn(args []Value) (Value, bool) {
	return Obj(n.vm.heap.InternString(formatValue(args[0]))), true
}

// interpolate replaces each literal "${}" placeholder in the format string
// args[0] with toString of the successive element of the values collection
// args[1], in order. The compiler's string-literal desugaring is the only
// caller that matters in practice, but the contract is the documented
// external one: fmt holds empty "${}" markers, not the original expression
// source, and values holds just the substituted values in order.
func (n *Natives) interpolate(args []Value) (Value, bool) {
	format, ok := args[0].AsObj().(*String)
	if !ok {
		return n.errValue("interpolate expects a string as its first argument"), false
	}
	values, ok := args[1].AsObj().(*Collection)
	if !ok {
		return n.errValue("interpolate expects a collection as its second argument"), false
	}

	chars := format.Chars
	var out string
	j := 0
	for i := 0; i < len(chars); {
		if i+2 < len(chars) && chars[i] == '$' && chars[i+1] == '{' && chars[i+2] == '}' {
			if j >= len(values.Elements) {
				return n.errValue("expected more arguments for interpolation"), false
			}
			out += formatValue(values.Elements[j])
			j++
			i += 3
			continue
		}
		out += string(chars[i])
		i++
	}
	return Obj(n.vm.heap.InternString(out)), true
}

// errorFn is the fixed-message form: error() always raises the same
// "Error." runtime error, regardless of call site.
func (n *Natives) errorFn(args []Value) (Value, bool) {
	return n.errValue("Error."), false
}

// runtimeErrorFn raises args[0] (expected to be a string) as the runtime
// error message, for scripts that want to report a specific failure.
func (n *Natives) runtimeErrorFn(args []Value) (Value, bool) {
	return args[0], false
}
