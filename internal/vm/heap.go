package vm

// gcHeapGrowFactor is the multiplier applied to bytesAllocated after a
// collection to compute the next collection threshold.
const gcHeapGrowFactor = 2

// defaultNextGC is the initial collection threshold, chosen generously so a
// small script never triggers a collection before any real pressure.
const defaultNextGC = 1 << 20

// RootMarker is implemented by whoever currently owns the allocator: the
// compiler while compiling (so strings and functions it allocates before
// they are attached to any VM-visible structure survive a GC triggered
// mid-compile) and the VM while running.
type RootMarker interface {
	MarkRoots(mark func(Value))
}

// Heap is the memory manager: it owns every heap object, the string
// interner, and the tri-color mark-sweep collector. All allocation routes
// through it so bytesAllocated stays accurate.
type Heap struct {
	objects Object
	marker  bool // the "marked" boolean value meaning "live in the current cycle"

	strings *Table
	gray    []Object

	bytesAllocated int
	nextGC         int
	StressGC       bool

	roots RootMarker
}

func NewHeap() *Heap {
	return &Heap{strings: NewTable(), nextGC: defaultNextGC}
}

// SetNextGC overrides the first collection threshold. A zero or negative
// value is ignored, leaving NewHeap's default in place — callers use this to
// seed the threshold from an operator-supplied tunable without having to
// special-case "unset".
func (h *Heap) SetNextGC(bytes int) {
	if bytes > 0 {
		h.nextGC = bytes
	}
}

// SetRoots installs a new root marker and returns the previous one, so
// callers (notably the compiler) can restore it when they are done.
func (h *Heap) SetRoots(r RootMarker) RootMarker {
	old := h.roots
	h.roots = r
	return old
}

func (h *Heap) BytesAllocated() int { return h.bytesAllocated }

// requestBytes is the allocator hook: every allocation and every
// deallocation (size 0) routes through here so the collector can be driven
// purely by allocation pressure.
func (h *Heap) requestBytes(delta int) {
	h.bytesAllocated += delta
	if delta > 0 && (h.StressGC || h.bytesAllocated > h.nextGC) {
		h.Collect()
	}
}

func (h *Heap) link(o Object) {
	hdr := o.header()
	hdr.next = h.objects
	hdr.marked = h.marker // newly allocated objects start unmarked
	h.objects = o
}

// InternString returns the canonical String for chars, allocating a new one
// only if no interned String with this content already exists. This is the
// only path by which a new String becomes canonical.
func (h *Heap) InternString(chars string) *String {
	hash := fnv1a(chars)
	if s := h.strings.FindString(chars, hash); s != nil {
		return s
	}
	h.requestBytes(len(chars) + 32)
	s := &String{Chars: chars, Hash: hash}
	h.link(s)
	h.strings.Set(Obj(s), Nil)
	return s
}

func fnv1a(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}

func (h *Heap) NewFunction() *Function {
	h.requestBytes(64)
	f := &Function{Chunk: NewChunk()}
	h.link(f)
	return f
}

func (h *Heap) NewNative(name string, arity int, fn NativeFn) *Native {
	h.requestBytes(32)
	n := &Native{Name: name, Arity: arity, Fn: fn}
	h.link(n)
	return n
}

func (h *Heap) NewClosure(fn *Function) *Closure {
	h.requestBytes(16 + 8*fn.UpvalueCount)
	c := &Closure{Fn: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	h.link(c)
	return c
}

func (h *Heap) NewUpvalue(loc *Value) *Upvalue {
	h.requestBytes(24)
	u := &Upvalue{Location: loc}
	h.link(u)
	return u
}

func (h *Heap) NewClass(name *String) *Class {
	h.requestBytes(48)
	c := &Class{Name: name, Methods: NewTable(), Init: Empty}
	h.link(c)
	return c
}

func (h *Heap) NewInstance(class *Class) *Instance {
	h.requestBytes(32)
	inst := &Instance{Class: class, Fields: NewTable()}
	h.link(inst)
	return inst
}

func (h *Heap) NewBoundMethod(receiver, method Value) *BoundMethod {
	h.requestBytes(24)
	b := &BoundMethod{Receiver: receiver, Method: method}
	h.link(b)
	return b
}

func (h *Heap) NewCollection(elems []Value) *Collection {
	h.requestBytes(16 + 16*len(elems))
	c := &Collection{Elements: elems}
	h.link(c)
	return c
}

// Collect runs one full tri-color mark-sweep cycle: mark roots, blacken the
// gray stack, sweep the string table (so an unreferenced intern doesn't
// survive by name alone), then sweep the general object list.
func (h *Heap) Collect() {
	target := !h.marker
	mark := func(v Value) { h.markTo(v, target) }

	if h.roots != nil {
		h.roots.MarkRoots(mark)
	}
	for len(h.gray) > 0 {
		o := h.gray[len(h.gray)-1]
		h.gray = h.gray[:len(h.gray)-1]
		o.blacken(mark)
	}

	h.sweepStrings(target)
	h.sweepObjects(target)

	h.marker = target
	h.nextGC = h.bytesAllocated * gcHeapGrowFactor
}

func (h *Heap) markTo(v Value, target bool) {
	if !v.IsObj() {
		return
	}
	o := v.AsObj()
	if o == nil {
		return
	}
	hdr := o.header()
	if hdr.marked == target {
		return
	}
	hdr.marked = target
	h.gray = append(h.gray, o)
}

func (h *Heap) sweepStrings(target bool) {
	for i := range h.strings.entries {
		e := &h.strings.entries[i]
		if e.key.IsEmpty() {
			continue
		}
		if s, ok := e.key.AsObj().(*String); ok && s.marked != target {
			e.key = Empty
			e.value = True
		}
	}
}

func (h *Heap) sweepObjects(target bool) {
	var prev Object
	obj := h.objects
	for obj != nil {
		hdr := obj.header()
		next := hdr.next
		if hdr.marked == target {
			prev = obj
		} else {
			h.bytesAllocated -= approxSize(obj)
			if prev != nil {
				prev.header().next = next
			} else {
				h.objects = next
			}
		}
		obj = next
	}
}

func approxSize(o Object) int {
	switch v := o.(type) {
	case *String:
		return len(v.Chars) + 32
	case *Function:
		return 64
	case *Native:
		return 32
	case *Closure:
		return 16 + 8*len(v.Upvalues)
	case *Upvalue:
		return 24
	case *Class:
		return 48
	case *Instance:
		return 32
	case *BoundMethod:
		return 24
	case *Collection:
		return 16 + 16*len(v.Elements)
	}
	return 16
}
