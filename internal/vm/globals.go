package vm

// Globals is the name-to-slot table paired with the dense value array the
// compiler and the VM must keep in lockstep: the compiler assigns slot
// indices as it resolves and declares global names, and the VM stores and
// fetches values at those same indices at runtime. A single Globals is
// shared by both so a REPL session can compile one line at a time against a
// VM that already holds state from previous lines, without the two ever
// disagreeing about which slot a name occupies.
type Globals struct {
	names  *Table // String Value -> Number(slot index)
	Values []Value
}

func NewGlobals() *Globals {
	return &Globals{names: NewTable()}
}

// Resolve reports the slot already assigned to name, if any.
func (g *Globals) Resolve(name *String) (int, bool) {
	v, ok := g.names.Get(Obj(name))
	if !ok {
		return 0, false
	}
	return int(v.AsNumber()), true
}

// Declare returns the slot for name, assigning a fresh one (with an Empty
// placeholder value, meaning "known but not yet defined") if name has never
// been seen before. The names table and Values array grow together; nothing
// may append to Values without going through here.
func (g *Globals) Declare(name *String) int {
	if slot, ok := g.Resolve(name); ok {
		return slot
	}
	slot := len(g.Values)
	g.names.Set(Obj(name), Number(float64(slot)))
	g.Values = append(g.Values, Empty)
	return slot
}

// Mark marks every global name and value, for root markers outside this
// package (the compiler) that hold a Globals.
func (g *Globals) Mark(mark func(Value)) { g.blacken(mark) }

func (g *Globals) blacken(mark func(Value)) {
	g.names.blacken(mark)
	for _, v := range g.Values {
		mark(v)
	}
}
