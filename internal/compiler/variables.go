package compiler

import (
	"github.com/coral-lang/coral/internal/token"
	"github.com/coral-lang/coral/internal/vm"
)

func (c *Compiler) beginScope() { c.fs.scopeDepth++ }

func (c *Compiler) endScope() {
	c.fs.scopeDepth--
	for len(c.fs.locals) > 0 && c.fs.locals[len(c.fs.locals)-1].depth > c.fs.scopeDepth {
		last := c.fs.locals[len(c.fs.locals)-1]
		if last.isCaptured {
			c.emitByte(byte(vm.OpCloseUpvalue))
		} else {
			c.emitByte(byte(vm.OpPop))
		}
		c.fs.locals = c.fs.locals[:len(c.fs.locals)-1]
	}
}

func (c *Compiler) variable(canAssign bool) {
	c.namedVariable(c.prev.Lexeme, canAssign)
}

func (c *Compiler) variableNamed(name string, canAssign bool) {
	c.namedVariable(name, canAssign)
}

func (c *Compiler) namedVariable(name string, canAssign bool) {
	var getOp, setOp vm.OpCode
	var arg int
	isConst := false

	if slot, ok := c.resolveLocal(c.fs, name); ok {
		getOp, setOp, arg = vm.OpGetLocal, vm.OpSetLocal, slot
		isConst = c.fs.locals[slot].isConst
	} else if slot, ok := c.resolveUpvalue(c.fs, name); ok {
		getOp, setOp, arg = vm.OpGetUpvalue, vm.OpSetUpvalue, slot
	} else {
		slot, isNative := c.resolveNativeOrGlobal(name)
		_ = isNative
		getOp, setOp, arg = vm.OpGetGlobal, vm.OpSetGlobal, int(slot)
	}

	if canAssign && c.match(token.EQ) {
		if isConst {
			c.error("cannot assign to a const variable")
		}
		c.expression()
		c.emitBytes(byte(setOp), byte(arg))
	} else {
		c.emitBytes(byte(getOp), byte(arg))
	}
}

func (c *Compiler) resolveLocal(fs *funcState, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			if fs.locals[i].depth == -1 {
				c.error("can't read local variable in its own initializer")
			}
			return i, true
		}
	}
	return 0, false
}

func (c *Compiler) resolveUpvalue(fs *funcState, name string) (int, bool) {
	if fs.enclosing == nil {
		return 0, false
	}
	if slot, ok := c.resolveLocal(fs.enclosing, name); ok {
		fs.enclosing.locals[slot].isCaptured = true
		return c.addUpvalue(fs, byte(slot), true), true
	}
	if slot, ok := c.resolveUpvalue(fs.enclosing, name); ok {
		return c.addUpvalue(fs, byte(slot), false), true
	}
	return 0, false
}

func (c *Compiler) addUpvalue(fs *funcState, index byte, isLocal bool) int {
	for i, u := range fs.upvalues {
		if u.index == index && u.isLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	fs.fn.UpvalueCount = len(fs.upvalues)
	return len(fs.upvalues) - 1
}

// declareVariable registers name as a new local in the current scope,
// rejecting a redeclaration that would shadow another local already
// declared at the same depth (but not one from an enclosing scope, which is
// legal shadowing).
func (c *Compiler) declareVariable(name string, isConst bool) {
	if c.fs.scopeDepth == 0 {
		return
	}
	for i := len(c.fs.locals) - 1; i >= 0; i-- {
		l := c.fs.locals[i]
		if l.depth != -1 && l.depth < c.fs.scopeDepth {
			break
		}
		if l.name == name {
			c.error("already a variable with this name in this scope")
		}
	}
	c.addLocal(name, isConst)
}

func (c *Compiler) addLocal(name string, isConst bool) {
	if len(c.fs.locals) >= 256 {
		c.error("too many local variables in function")
		return
	}
	c.fs.locals = append(c.fs.locals, local{name: name, depth: -1, isConst: isConst})
}

func (c *Compiler) markInitialized() {
	if c.fs.scopeDepth == 0 {
		return
	}
	c.fs.locals[len(c.fs.locals)-1].depth = c.fs.scopeDepth
}

// parseVariable consumes the variable's name token, declares it (as a local
// if inside a scope), and returns the global slot to define later —
// meaningful only at global scope.
func (c *Compiler) parseVariable(errMsg string, isConst bool) byte {
	c.consume(token.IDENT, errMsg)
	name := c.prev.Lexeme
	c.declareVariable(name, isConst)
	if c.fs.scopeDepth > 0 {
		return 0
	}
	return byte(c.globals.Declare(c.heap.InternString(name)))
}

func (c *Compiler) defineVariable(slot byte) {
	if c.fs.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitBytes(byte(vm.OpDefineGlobal), slot)
}
