package vm

// ObjKind tags the dynamic type of a heap Object.
type ObjKind uint8

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjNativeKind
	ObjClosureKind
	ObjUpvalueKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
	ObjCollectionKind
)

// Header is embedded in every heap object. marked is compared against the
// heap's toggling marker so sweep never needs a reset pass (see heap.go).
// next threads all live objects in allocation order for sweep to walk.
type Header struct {
	kind   ObjKind
	marked bool
	next   Object
}

// Object is implemented by every heap-allocated value.
type Object interface {
	header() *Header
	// blacken marks every Value this object directly references, via mark.
	blacken(mark func(Value))
	GoString() string
}

func (h *Header) header() *Header { return h }
func (h *Header) Kind() ObjKind   { return h.kind }

// String is an immutable, interned byte sequence.
type String struct {
	Header
	Chars string
	Hash  uint32
}

func (s *String) blacken(func(Value)) {}
func (s *String) GoString() string    { return s.Chars }

// Function is immutable after compilation.
type Function struct {
	Header
	Arity        int
	DefaultCount int
	UpvalueCount int
	Name         *String // nil for the top-level script
	Chunk        *Chunk
}

func (f *Function) blacken(mark func(Value)) {
	if f.Name != nil {
		mark(Obj(f.Name))
	}
	for _, c := range f.Chunk.Constants {
		mark(c)
	}
}

func (f *Function) GoString() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Chars + ">"
}

// NativeFn is a host function invoked by the CALL machinery. It receives the
// call arguments and returns (result, ok); ok == false means result holds
// the error message, and the VM raises a runtime error from it.
type NativeFn func(args []Value) (Value, bool)

// Native wraps a host function so it can be called like any other callable.
type Native struct {
	Header
	Name  string
	Arity int
	Fn    NativeFn
}

func (n *Native) blacken(func(Value)) {}
func (n *Native) GoString() string    { return "<native fn " + n.Name + ">" }

// Upvalue is either open (Location points into the operand stack) or closed
// (it owns Closed in a private cell). At most one open Upvalue exists per
// stack slot; open upvalues are linked in descending-stack-address order.
type Upvalue struct {
	Header
	Location *Value
	Closed   Value
	Next     *Upvalue
	slot     int // stack slot Location points at while open; orders the open list
}

func (u *Upvalue) IsOpen() bool { return u.Location != nil }

func (u *Upvalue) Get() Value {
	if u.Location != nil {
		return *u.Location
	}
	return u.Closed
}

func (u *Upvalue) Set(v Value) {
	if u.Location != nil {
		*u.Location = v
		return
	}
	u.Closed = v
}

func (u *Upvalue) blacken(mark func(Value)) {
	mark(u.Get())
}

func (u *Upvalue) GoString() string { return "<upvalue>" }

// Closure pairs a Function with the captured Upvalues its body references.
type Closure struct {
	Header
	Fn       *Function
	Upvalues []*Upvalue
}

func (c *Closure) blacken(mark func(Value)) {
	mark(Obj(c.Fn))
	for _, u := range c.Upvalues {
		mark(Obj(u))
	}
}

func (c *Closure) GoString() string { return c.Fn.GoString() }

// Class holds a method table (String -> Closure/Function Value) and an
// optional cached initializer.
type Class struct {
	Header
	Name    *String
	Methods *Table
	Init    Value // Empty if no "init" method
}

func (c *Class) blacken(mark func(Value)) {
	mark(Obj(c.Name))
	c.Methods.blacken(mark)
	mark(c.Init)
}

func (c *Class) GoString() string { return "<class " + c.Name.Chars + ">" }

// Instance is a Class reference plus an instance-specific field table.
type Instance struct {
	Header
	Class  *Class
	Fields *Table
}

func (inst *Instance) blacken(mark func(Value)) {
	mark(Obj(inst.Class))
	inst.Fields.blacken(mark)
}

func (inst *Instance) GoString() string { return "<" + inst.Class.Name.Chars + " instance>" }

// BoundMethod binds a receiver to a method closure/function, produced when a
// method is read as a value (not immediately invoked).
type BoundMethod struct {
	Header
	Receiver Value
	Method   Value
}

func (b *BoundMethod) blacken(mark func(Value)) {
	mark(b.Receiver)
	mark(b.Method)
}

func (b *BoundMethod) GoString() string { return "<bound method>" }

// Collection is an ordered sequence of Values with O(1) push/pop at the
// back. Its built-in methods (push, pop, len, ...) are dispatched by the VM
// rather than stored per-instance, since the method set is fixed.
type Collection struct {
	Header
	Elements []Value
}

func (c *Collection) blacken(mark func(Value)) {
	for _, e := range c.Elements {
		mark(e)
	}
}

func (c *Collection) GoString() string { return "<collection>" }

// CollectionMethods is the fixed set of built-in method names a Collection
// responds to via INVOKE.
var CollectionMethods = map[string]bool{
	"push": true, "pop": true, "len": true, "isEmpty": true,
	"contains": true, "reverse": true, "sort": true,
}
