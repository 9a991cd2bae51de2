package vm

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

const (
	FramesMax = 256
	StackMax  = FramesMax * 64
)

// InterpretResult is the outcome of running a chunk to completion or to its
// first unrecovered error.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// RuntimeError is returned by VM methods that fail without aborting the
// whole process, carrying enough to report a usable trace.
type RuntimeError struct {
	Message string
	Trace   []string
}

func (e *RuntimeError) Error() string { return e.Message }

// VM is a single bytecode interpreter: one fixed-size operand stack, one
// call-frame stack, and a shared Heap/Globals it does not own but is handed
// at construction. Open upvalues point directly into the stack array, which
// is why the array is fixed-size and embedded rather than a slice that
// could be reallocated out from under those pointers.
type VM struct {
	heap *Heap

	stack [StackMax]Value
	sp    int

	frames []CallFrame

	openUpvalues *Upvalue

	globals *Globals
	natives *Natives
	modules *ModuleCache

	initString   *String
	toStringName *String

	Stdout io.Writer
	Stdin  io.Reader

	lastErr   *RuntimeError
	lastValue Value

	maxCallDepth int
}

func New(heap *Heap, globals *Globals, stdout io.Writer) *VM {
	vm := &VM{
		heap:         heap,
		globals:      globals,
		Stdout:       stdout,
		initString:   heap.InternString("init"),
		toStringName: heap.InternString("toString"),
		maxCallDepth: FramesMax,
	}
	vm.natives = NewNatives(vm)
	vm.modules = NewModuleCache()
	heap.SetRoots(vm)
	return vm
}

// SetMaxCallDepth lowers the call-frame ceiling below FramesMax, a
// recursion guard an operator can tighten without touching the fixed-size
// stack array FramesMax sizes. Values outside (0, FramesMax] are ignored,
// leaving the previous ceiling (FramesMax by default) in place.
func (vm *VM) SetMaxCallDepth(n int) {
	if n > 0 && n <= FramesMax {
		vm.maxCallDepth = n
	}
}

func (vm *VM) Heap() *Heap               { return vm.heap }
func (vm *VM) Globals() *Globals         { return vm.globals }
func (vm *VM) Natives() *Natives         { return vm.natives }
func (vm *VM) LastError() *RuntimeError  { return vm.lastErr }

// LastValue returns the value of the most recently executed expression
// statement, recorded by the dedicated OpPopResult opcode (ordinary scope
// cleanup, switch discards, and loop bookkeeping all use the plain OpPop and
// never touch this). An imported module uses it as the module's export
// value: whatever its final top-level expression statement evaluated to.
// The REPL does not read it.
func (vm *VM) LastValue() Value { return vm.lastValue }

func (vm *VM) push(v Value) {
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(dist int) Value { return vm.stack[vm.sp-1-dist] }

// MarkRoots implements RootMarker: every live stack slot, every active
// frame's closure, the open upvalue chain, and the shared globals.
func (vm *VM) MarkRoots(mark func(Value)) {
	for i := 0; i < vm.sp; i++ {
		mark(vm.stack[i])
	}
	for i := range vm.frames {
		mark(Obj(vm.frames[i].closure))
	}
	for u := vm.openUpvalues; u != nil; u = u.Next {
		mark(Obj(u))
	}
	if vm.globals != nil {
		vm.globals.blacken(mark)
	}
	if vm.initString != nil {
		mark(Obj(vm.initString))
	}
	if vm.toStringName != nil {
		mark(Obj(vm.toStringName))
	}
	if vm.modules != nil {
		vm.modules.blacken(mark)
	}
}

// Run executes closure as a top-level call (the compiled script or REPL
// line) and returns once it completes or errors. When called while another
// script is running (an import), it returns as soon as closure's own frame
// returns, leaving the calling frames to resume.
func (vm *VM) Run(closure *Closure) InterpretResult {
	vm.lastErr = nil
	depth := len(vm.frames)
	vm.push(Obj(closure))
	vm.frames = append(vm.frames, CallFrame{closure: closure, base: vm.sp - 1})

	for len(vm.frames) > depth {
		switch vm.step() {
		case sigReturn:
			return InterpretOK
		case sigError:
			return InterpretRuntimeError
		}
	}
	vm.pop() // the nested script's return value
	return InterpretOK
}

type runSignal int

const (
	sigContinue runSignal = iota
	sigReturn
	sigError
)

// callAndRun invokes callee with args already materialized as Values,
// running nested instructions until the call's own frame returns, then
// hands back its result. Used by PRINT's toString dispatch.
func (vm *VM) callAndRun(callee Value, args []Value) (Value, bool) {
	depthBefore := len(vm.frames)
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	if !vm.callValue(callee, len(args)) {
		return Nil, false
	}
	if len(vm.frames) == depthBefore {
		// a native or collection constructor: already resolved, result on top.
		return vm.pop(), true
	}
	for len(vm.frames) > depthBefore {
		if vm.step() == sigError {
			return Nil, false
		}
	}
	return vm.pop(), true
}

func (vm *VM) runtimeError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	trace := make([]string, 0, len(vm.frames))
	for i := len(vm.frames) - 1; i >= 0; i-- {
		f := &vm.frames[i]
		line := f.chunk().LineAt(f.ip - 1)
		name := "<script>"
		if f.function().Name != nil {
			name = f.function().Name.Chars
		}
		trace = append(trace, fmt.Sprintf("[line %d] in %s", line, name))
	}
	vm.lastErr = &RuntimeError{Message: msg, Trace: trace}

	vm.sp = 0
	vm.frames = vm.frames[:0]
	vm.openUpvalues = nil
}

// step executes exactly one bytecode instruction.
func (vm *VM) step() runSignal {
	frame := &vm.frames[len(vm.frames)-1]
	op := OpCode(frame.readByte())

	switch op {
	case OpConstant:
		vm.push(frame.readConstant())
	case OpConstantLong:
		vm.push(frame.readConstantLong())
	case OpNil:
		vm.push(Nil)
	case OpTrue:
		vm.push(True)
	case OpFalse:
		vm.push(False)
	case OpPop:
		vm.pop()
	case OpPopResult:
		vm.lastValue = vm.pop()
	case OpDup:
		vm.push(vm.peek(0))

	case OpGetLocal:
		slot := int(frame.readByte())
		vm.push(vm.stack[frame.base+slot])
	case OpSetLocal:
		slot := int(frame.readByte())
		vm.stack[frame.base+slot] = vm.peek(0)

	case OpGetGlobal:
		slot := int(frame.readByte())
		v := vm.globals.Values[slot]
		if v.IsEmpty() {
			vm.runtimeError("undefined variable")
			return sigError
		}
		vm.push(v)
	case OpSetGlobal:
		slot := int(frame.readByte())
		if vm.globals.Values[slot].IsEmpty() {
			vm.runtimeError("undefined variable")
			return sigError
		}
		vm.globals.Values[slot] = vm.peek(0)
	case OpDefineGlobal:
		slot := int(frame.readByte())
		vm.globals.Values[slot] = vm.pop()

	case OpGetUpvalue:
		slot := int(frame.readByte())
		vm.push(frame.closure.Upvalues[slot].Get())
	case OpSetUpvalue:
		slot := int(frame.readByte())
		frame.closure.Upvalues[slot].Set(vm.peek(0))

	case OpGetProperty:
		if !vm.getProperty(frame) {
			return sigError
		}
	case OpSetProperty:
		if !vm.setProperty() {
			return sigError
		}
	case OpGetSuper:
		name := frame.readString()
		super := vm.pop().AsObj().(*Class)
		if !vm.bindMethod(super, name) {
			return sigError
		}

	case OpEqual:
		b, a := vm.pop(), vm.pop()
		vm.push(Bool(Equal(a, b)))
	case OpGreater:
		if !vm.numericBinary(func(a, b float64) Value { return Bool(a > b) }) {
			return sigError
		}
	case OpLess:
		if !vm.numericBinary(func(a, b float64) Value { return Bool(a < b) }) {
			return sigError
		}
	case OpAdd:
		if !vm.add() {
			return sigError
		}
	case OpSubtract:
		if !vm.numericBinary(func(a, b float64) Value { return Number(a - b) }) {
			return sigError
		}
	case OpMultiply:
		if !vm.numericBinary(func(a, b float64) Value { return Number(a * b) }) {
			return sigError
		}
	case OpDivide:
		if !vm.numericBinary(func(a, b float64) Value { return Number(a / b) }) {
			return sigError
		}
	case OpNot:
		vm.push(Bool(vm.pop().IsFalsey()))
	case OpNegate:
		if !vm.peek(0).IsNumber() {
			vm.runtimeError("operand must be a number")
			return sigError
		}
		vm.stack[vm.sp-1] = Number(-vm.stack[vm.sp-1].AsNumber())

	case OpConditional:
		b := vm.pop()
		a := vm.pop()
		cond := vm.pop()
		if !cond.IsFalsey() {
			vm.push(a)
		} else {
			vm.push(b)
		}

	case OpPrint:
		if !vm.print() {
			return sigError
		}

	case OpJump:
		offset := frame.readShort()
		frame.ip += int(offset)
	case OpJumpIfFalse:
		offset := frame.readShort()
		if vm.peek(0).IsFalsey() {
			frame.ip += int(offset)
		}
	case OpJumpIfEmpty:
		offset := frame.readShort()
		if vm.peek(0).IsEmpty() {
			frame.ip += int(offset)
		}
	case OpLoop:
		offset := frame.readShort()
		frame.ip -= int(offset)

	case OpCall:
		argCount := int(frame.readByte())
		if !vm.callValue(vm.peek(argCount), argCount) {
			return sigError
		}
	case OpInvoke:
		name := frame.readString()
		argCount := int(frame.readByte())
		if !vm.invoke(name, argCount) {
			return sigError
		}
	case OpSuperInvoke:
		name := frame.readString()
		argCount := int(frame.readByte())
		super := vm.pop().AsObj().(*Class)
		if !vm.invokeFromClass(super, name, argCount) {
			return sigError
		}

	case OpClosure:
		fn := frame.readConstant().AsObj().(*Function)
		closure := vm.heap.NewClosure(fn)
		vm.push(Obj(closure))
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := frame.readByte()
			index := int(frame.readByte())
			if isLocal != 0 {
				closure.Upvalues[i] = vm.captureUpvalue(frame.base + index)
			} else {
				closure.Upvalues[i] = frame.closure.Upvalues[index]
			}
		}
	case OpCloseUpvalue:
		vm.closeUpvalues(vm.sp - 1)
		vm.pop()

	case OpReturn:
		result := vm.pop()
		vm.closeUpvalues(frame.base)
		vm.frames = vm.frames[:len(vm.frames)-1]
		if len(vm.frames) == 0 {
			vm.pop()
			return sigReturn
		}
		vm.sp = frame.base
		vm.push(result)

	case OpClass:
		name := frame.readString()
		vm.push(Obj(vm.heap.NewClass(name)))
	case OpInherit:
		superVal := vm.peek(1)
		super, ok := superVal.AsObj().(*Class)
		if !ok {
			vm.runtimeError("superclass must be a class")
			return sigError
		}
		sub := vm.peek(0).AsObj().(*Class)
		sub.Methods.AddAll(super.Methods)
		sub.Init = super.Init
		vm.pop()
	case OpMethod:
		vm.defineMethod(frame.readString())

	case OpDel:
		name := frame.readString()
		inst, ok := vm.peek(0).AsObj().(*Instance)
		if !ok {
			vm.runtimeError("cannot delete property of a non-instance")
			return sigError
		}
		if !inst.Fields.Delete(Obj(name)) {
			vm.runtimeError("undefined property %q", name.Chars)
			return sigError
		}
		vm.pop()

	case OpCollection:
		vm.push(Obj(vm.heap.NewCollection(nil)))
	case OpRange:
		if !vm.rangeOp() {
			return sigError
		}
	case OpRandomAccess:
		if !vm.randomAccess() {
			return sigError
		}

	default:
		vm.runtimeError("unknown opcode %d", op)
		return sigError
	}

	return sigContinue
}

func (vm *VM) numericBinary(op func(a, b float64) Value) bool {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		vm.runtimeError("operands must be numbers")
		return false
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(op(a, b))
	return true
}

func (vm *VM) add() bool {
	a, b := vm.peek(1), vm.peek(0)
	switch {
	case isStringVal(a) && isStringVal(b):
		bs := vm.pop().AsObj().(*String)
		as := vm.pop().AsObj().(*String)
		vm.push(Obj(vm.heap.InternString(as.Chars + bs.Chars)))
	case a.IsNumber() && b.IsNumber():
		bn := vm.pop().AsNumber()
		an := vm.pop().AsNumber()
		vm.push(Number(an + bn))
	case isCollectionVal(a) && isCollectionVal(b):
		bc := vm.pop().AsObj().(*Collection)
		ac := vm.pop().AsObj().(*Collection)
		merged := make([]Value, 0, len(ac.Elements)+len(bc.Elements))
		merged = append(merged, ac.Elements...)
		merged = append(merged, bc.Elements...)
		vm.push(Obj(vm.heap.NewCollection(merged)))
	default:
		vm.runtimeError("operands must be two numbers, two strings, or two collections")
		return false
	}
	return true
}

func isStringVal(v Value) bool {
	if !v.IsObj() {
		return false
	}
	_, ok := v.AsObj().(*String)
	return ok
}

func isCollectionVal(v Value) bool {
	if !v.IsObj() {
		return false
	}
	_, ok := v.AsObj().(*Collection)
	return ok
}

func (vm *VM) print() bool {
	v := vm.peek(0)
	if inst, ok := v.AsObj().(*Instance); ok {
		if m, ok2 := inst.Class.Methods.Get(Obj(vm.toStringName)); ok2 {
			vm.pop()
			bound := vm.heap.NewBoundMethod(v, m)
			result, ok3 := vm.callAndRun(Obj(bound), nil)
			if !ok3 {
				return false
			}
			fmt.Fprintln(vm.Stdout, formatValue(result))
			return true
		}
	}
	vm.pop()
	fmt.Fprintln(vm.Stdout, formatValue(v))
	return true
}

func formatValue(v Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v.IsEmpty():
		return "<empty>"
	case v.IsObj():
		switch o := v.AsObj().(type) {
		case *String:
			return o.Chars
		case *Collection:
			s := "["
			for i, e := range o.Elements {
				if i > 0 {
					s += ", "
				}
				s += formatValue(e)
			}
			return s + "]"
		default:
			return o.GoString()
		}
	}
	return ""
}

func formatNumber(n float64) string {
	if !math.IsInf(n, 0) && n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func (vm *VM) getProperty(frame *CallFrame) bool {
	name := frame.readString()
	recv := vm.peek(0)

	if inst, ok := recv.AsObj().(*Instance); ok {
		if v, ok2 := inst.Fields.Get(Obj(name)); ok2 {
			vm.pop()
			vm.push(v)
			return true
		}
		return vm.bindMethod(inst.Class, name)
	}
	if coll, ok := recv.AsObj().(*Collection); ok {
		_ = coll
		if CollectionMethods[name.Chars] {
			vm.pop()
			vm.push(Obj(vm.heap.NewBoundMethod(recv, Obj(name))))
			return true
		}
		vm.runtimeError("collection has no property %q", name.Chars)
		return false
	}
	vm.runtimeError("only instances and collections have properties")
	return false
}

func (vm *VM) setProperty() bool {
	inst, ok := vm.peek(1).AsObj().(*Instance)
	if !ok {
		vm.runtimeError("only instances have settable properties")
		return false
	}
	// step does not read OP_SET_PROPERTY's name operand, so it is read here
	// through the active frame.
	frame := &vm.frames[len(vm.frames)-1]
	name := frame.readString()
	inst.Fields.Set(Obj(name), vm.peek(0))
	v := vm.pop()
	vm.pop()
	vm.push(v)
	return true
}

func (vm *VM) bindMethod(class *Class, name *String) bool {
	method, ok := class.Methods.Get(Obj(name))
	if !ok {
		vm.runtimeError("undefined property %q", name.Chars)
		return false
	}
	bound := vm.heap.NewBoundMethod(vm.peek(0), method)
	vm.pop()
	vm.push(Obj(bound))
	return true
}

func (vm *VM) defineMethod(name *String) {
	method := vm.peek(0)
	class := vm.peek(1).AsObj().(*Class)
	class.Methods.Set(Obj(name), method)
	if name.Chars == "init" {
		class.Init = method
	}
	vm.pop()
}

func (vm *VM) callValue(callee Value, argCount int) bool {
	if !callee.IsObj() {
		vm.runtimeError("can only call functions and classes")
		return false
	}
	switch o := callee.AsObj().(type) {
	case *Closure:
		return vm.call(o, argCount)
	case *Native:
		if argCount != o.Arity {
			vm.runtimeError("expected %d arguments but got %d", o.Arity, argCount)
			return false
		}
		args := vm.stack[vm.sp-argCount : vm.sp]
		result, ok := o.Fn(args)
		if !ok {
			msg := "native call failed"
			if s, ok2 := result.AsObj().(*String); ok2 {
				msg = s.Chars
			}
			vm.runtimeError("%s", msg)
			return false
		}
		vm.sp -= argCount + 1
		vm.push(result)
		return true
	case *Class:
		inst := vm.heap.NewInstance(o)
		vm.stack[vm.sp-argCount-1] = Obj(inst)
		if !o.Init.IsEmpty() {
			closure, ok := o.Init.AsObj().(*Closure)
			if !ok {
				vm.runtimeError("initializer must be a function")
				return false
			}
			return vm.call(closure, argCount)
		}
		if argCount != 0 {
			vm.runtimeError("expected 0 arguments but got %d", argCount)
			return false
		}
		return true
	case *BoundMethod:
		vm.stack[vm.sp-argCount-1] = o.Receiver
		if name, ok := o.Method.AsObj().(*String); ok {
			args := vm.stack[vm.sp-argCount : vm.sp]
			result, ok2 := vm.invokeCollectionMethod(o.Receiver.AsObj().(*Collection), name.Chars, args)
			if !ok2 {
				return false
			}
			vm.sp -= argCount + 1
			vm.push(result)
			return true
		}
		return vm.callValue(o.Method, argCount)
	case *Collection:
		for i := 0; i < argCount; i++ {
			o.Elements = append(o.Elements, vm.stack[vm.sp-argCount+i])
		}
		vm.sp -= argCount
		return true
	default:
		vm.runtimeError("can only call functions and classes")
		return false
	}
}

func (vm *VM) call(closure *Closure, argCount int) bool {
	fn := closure.Fn
	minArgs := fn.Arity - fn.DefaultCount
	if argCount < minArgs || argCount > fn.Arity {
		if fn.DefaultCount == 0 {
			vm.runtimeError("expected %d arguments but got %d", fn.Arity, argCount)
		} else {
			vm.runtimeError("expected between %d and %d arguments but got %d", minArgs, fn.Arity, argCount)
		}
		return false
	}
	// missing trailing arguments are padded with Empty; the callee's own
	// prologue (compiled per defaulted parameter) fills them in.
	for i := argCount; i < fn.Arity; i++ {
		vm.push(Empty)
	}
	if len(vm.frames) >= vm.maxCallDepth {
		vm.runtimeError("stack overflow")
		return false
	}
	vm.frames = append(vm.frames, CallFrame{closure: closure, base: vm.sp - fn.Arity - 1})
	return true
}

func (vm *VM) invoke(name *String, argCount int) bool {
	recv := vm.peek(argCount)
	if inst, ok := recv.AsObj().(*Instance); ok {
		if v, ok2 := inst.Fields.Get(Obj(name)); ok2 {
			vm.stack[vm.sp-argCount-1] = v
			return vm.callValue(v, argCount)
		}
		return vm.invokeFromClass(inst.Class, name, argCount)
	}
	if coll, ok := recv.AsObj().(*Collection); ok {
		args := vm.stack[vm.sp-argCount : vm.sp]
		result, ok2 := vm.invokeCollectionMethod(coll, name.Chars, args)
		if !ok2 {
			return false
		}
		vm.sp -= argCount + 1
		vm.push(result)
		return true
	}
	vm.runtimeError("only instances and collections have methods")
	return false
}

func (vm *VM) invokeFromClass(class *Class, name *String, argCount int) bool {
	method, ok := class.Methods.Get(Obj(name))
	if !ok {
		vm.runtimeError("undefined property %q", name.Chars)
		return false
	}
	return vm.callValue(method, argCount)
}

func (vm *VM) invokeCollectionMethod(c *Collection, name string, args []Value) (Value, bool) {
	switch name {
	case "push":
		if len(args) != 1 {
			vm.runtimeError("push expects 1 argument but got %d", len(args))
			return Nil, false
		}
		c.Elements = append(c.Elements, args[0])
		return Nil, true
	case "pop":
		if len(c.Elements) == 0 {
			vm.runtimeError("cannot pop an empty collection")
			return Nil, false
		}
		last := c.Elements[len(c.Elements)-1]
		c.Elements = c.Elements[:len(c.Elements)-1]
		return last, true
	case "len":
		return Number(float64(len(c.Elements))), true
	case "isEmpty":
		return Bool(len(c.Elements) == 0), true
	case "contains":
		if len(args) != 1 {
			vm.runtimeError("contains expects 1 argument but got %d", len(args))
			return Nil, false
		}
		return Bool(slices.ContainsFunc(c.Elements, func(v Value) bool { return Equal(v, args[0]) })), true
	case "reverse":
		slices.Reverse(c.Elements)
		return Obj(c), true
	case "sort":
		if err := checkSortable(c.Elements); err != "" {
			vm.runtimeError("%s", err)
			return Nil, false
		}
		slices.SortFunc(c.Elements, compareValues)
		return Obj(c), true
	default:
		vm.runtimeError("collection has no method %q", name)
		return Nil, false
	}
}

// compareValues orders two Values for "sort": numbers by magnitude, strings
// lexically by content. Mixed or otherwise unorderable pairs are treated as
// equal, since checkSortable has already rejected them by the time this
// runs inside sort.
func compareValues(a, b Value) int {
	if a.IsNumber() && b.IsNumber() {
		switch {
		case a.AsNumber() < b.AsNumber():
			return -1
		case a.AsNumber() > b.AsNumber():
			return 1
		default:
			return 0
		}
	}
	as, aok := a.AsObj().(*String)
	bs, bok := b.AsObj().(*String)
	if aok && bok {
		return strings.Compare(as.Chars, bs.Chars)
	}
	return 0
}

func checkSortable(elems []Value) string {
	allNumbers, allStrings := true, true
	for _, v := range elems {
		if !v.IsNumber() {
			allNumbers = false
		}
		if _, ok := v.AsObj().(*String); !ok {
			allStrings = false
		}
	}
	if !allNumbers && !allStrings {
		return "sort requires a collection of all numbers or all strings"
	}
	return ""
}

// rangeOp implements the a..b..step range literal: pop start/end/step, build
// a fresh collection, and fill it exactly like a collection literal would
// (pushing each generated value, then treating the collection itself as a
// callable collecting them) so the same machinery handles both forms.
func (vm *VM) rangeOp() bool {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() || !vm.peek(2).IsNumber() {
		vm.runtimeError("range bounds must be numbers")
		return false
	}
	step := vm.pop().AsNumber()
	end := vm.pop().AsNumber()
	start := vm.pop().AsNumber()

	vm.push(Obj(vm.heap.NewCollection(nil)))
	count := 0
	if step == 0 {
		vm.runtimeError("range step must not be zero")
		return false
	}
	for v := start; (step > 0 && v <= end) || (step < 0 && v >= end); v += step {
		vm.push(Number(v))
		count++
	}
	return vm.callValue(vm.peek(count), count)
}

func (vm *VM) randomAccess() bool {
	index := vm.pop()
	if index.IsNumber() {
		collVal := vm.pop()
		coll, ok := collVal.AsObj().(*Collection)
		if !ok {
			vm.runtimeError("can only random-access a collection")
			return false
		}
		n := index.AsNumber()
		if n != math.Trunc(n) {
			vm.runtimeError("random access index must be an integer")
			return false
		}
		i := int(n)
		if i < 0 || i >= len(coll.Elements) {
			vm.runtimeError("random access out of bounds")
			return false
		}
		vm.push(coll.Elements[i])
		return true
	}

	indexes, ok := index.AsObj().(*Collection)
	if !ok {
		vm.runtimeError("random access index must be a number or a collection of numbers")
		return false
	}
	collVal := vm.pop()
	coll, ok := collVal.AsObj().(*Collection)
	if !ok {
		vm.runtimeError("can only random-access a collection")
		return false
	}
	out := make([]Value, 0, len(indexes.Elements))
	for i, iv := range indexes.Elements {
		if !iv.IsNumber() {
			vm.runtimeError("random access index must be a number")
			return false
		}
		n := iv.AsNumber()
		if n != math.Trunc(n) {
			vm.runtimeError("random access index %d must be an integer", i)
			return false
		}
		idx := int(n)
		if idx < 0 || idx >= len(coll.Elements) {
			vm.runtimeError("random access out of bounds")
			return false
		}
		out = append(out, coll.Elements[idx])
	}
	vm.push(Obj(vm.heap.NewCollection(out)))
	return true
}

// captureUpvalue returns the open Upvalue for the given stack slot, reusing
// one already open for that slot. Open upvalues are kept sorted by
// descending slot so closeUpvalues can walk a prefix instead of the whole
// list.
func (vm *VM) captureUpvalue(slot int) *Upvalue {
	var prev *Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.slot > slot {
		prev = cur
		cur = cur.Next
	}
	if cur != nil && cur.slot == slot {
		return cur
	}

	created := vm.heap.NewUpvalue(&vm.stack[slot])
	created.slot = slot
	created.Next = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above minSlot, copying its
// value into a private cell it owns from then on.
func (vm *VM) closeUpvalues(minSlot int) {
	for vm.openUpvalues != nil && vm.openUpvalues.slot >= minSlot {
		u := vm.openUpvalues
		u.Closed = *u.Location
		u.Location = nil
		vm.openUpvalues = u.Next
	}
}
