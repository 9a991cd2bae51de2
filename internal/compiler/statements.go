package compiler

import (
	"github.com/coral-lang/coral/internal/token"
	"github.com/coral-lang/coral/internal/vm"
)

func (c *Compiler) declaration() {
	switch {
	case c.match(token.CLASS):
		c.classDeclaration()
	case c.match(token.FUN):
		c.funDeclaration()
	case c.match(token.VAR):
		c.varDeclaration(false)
	case c.match(token.CONST):
		c.varDeclaration(true)
	default:
		c.statement()
	}
	if c.panicMode {
		c.synchronize()
	}
}

func (c *Compiler) varDeclaration(isConst bool) {
	slot := c.parseVariable("expect variable name", isConst)
	if c.match(token.EQ) {
		c.expression()
	} else {
		c.emitByte(byte(vm.OpNil))
	}
	c.consume(token.SEMI, "expect ';' after variable declaration")
	c.defineVariable(slot)
}

func (c *Compiler) statement() {
	switch {
	case c.match(token.PRINT):
		c.printStatement()
	case c.match(token.IF):
		c.ifStatement()
	case c.match(token.WHILE):
		c.whileStatement()
	case c.match(token.FOR):
		c.forStatement()
	case c.match(token.SWITCH):
		c.switchStatement()
	case c.match(token.RETURN):
		c.returnStatement()
	case c.match(token.BREAK):
		c.breakStatement()
	case c.match(token.CONTINUE):
		c.continueStatement()
	case c.match(token.DELETE):
		c.deleteStatement()
	case c.match(token.IMPORT):
		c.importStatement()
	case c.match(token.LBRACE):
		c.beginScope()
		c.block()
		c.endScope()
	default:
		c.expressionStatement()
	}
}

func (c *Compiler) printStatement() {
	c.expression()
	c.consume(token.SEMI, "expect ';' after value")
	c.emitByte(byte(vm.OpPrint))
}

func (c *Compiler) expressionStatement() {
	c.expression()
	c.consume(token.SEMI, "expect ';' after expression")
	// OpPopResult, not plain OpPop: the module-import convention needs to
	// recover this statement's value, and every other OpPop site
	// (scope cleanup, switch discards, loop bookkeeping) must not clobber it.
	c.emitByte(byte(vm.OpPopResult))
}

func (c *Compiler) block() {
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.declaration()
	}
	c.consume(token.RBRACE, "expect '}' after block")
}

func (c *Compiler) ifStatement() {
	c.consume(token.LPAREN, "expect '(' after 'if'")
	c.expression()
	c.consume(token.RPAREN, "expect ')' after condition")

	thenJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitByte(byte(vm.OpPop))
	c.statement()

	elseJump := c.emitJump(vm.OpJump)
	c.patchJump(thenJump)
	c.emitByte(byte(vm.OpPop))

	if c.match(token.ELSE) {
		c.statement()
	}
	c.patchJump(elseJump)
}

func (c *Compiler) pushLoop() *loopCtx {
	l := &loopCtx{start: len(c.chunk().Code), scopeDepth: c.fs.scopeDepth}
	c.fs.loops = append(c.fs.loops, l)
	return l
}

func (c *Compiler) popLoop() {
	l := c.fs.loops[len(c.fs.loops)-1]
	for _, b := range l.breaks {
		c.patchJump(b)
	}
	c.fs.loops = c.fs.loops[:len(c.fs.loops)-1]
}

func (c *Compiler) whileStatement() {
	loop := c.pushLoop()
	c.consume(token.LPAREN, "expect '(' after 'while'")
	c.expression()
	c.consume(token.RPAREN, "expect ')' after condition")

	exitJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitByte(byte(vm.OpPop))
	c.statement()
	c.emitLoop(loop.start)

	c.patchJump(exitJump)
	c.emitByte(byte(vm.OpPop))
	c.popLoop()
}

func (c *Compiler) forStatement() {
	c.beginScope()
	c.consume(token.LPAREN, "expect '(' after 'for'")

	switch {
	case c.match(token.SEMI):
		// no initializer
	case c.match(token.VAR):
		c.varDeclaration(false)
	default:
		c.expressionStatement()
	}

	loop := c.pushLoop()
	exitJump := -1
	if !c.match(token.SEMI) {
		c.expression()
		c.consume(token.SEMI, "expect ';' after loop condition")
		exitJump = c.emitJump(vm.OpJumpIfFalse)
		c.emitByte(byte(vm.OpPop))
	}

	if !c.check(token.RPAREN) {
		bodyJump := c.emitJump(vm.OpJump)
		incrementStart := len(c.chunk().Code)
		c.expression()
		c.emitByte(byte(vm.OpPop))
		c.consume(token.RPAREN, "expect ')' after for clauses")

		c.emitLoop(loop.start)
		loop.start = incrementStart
		c.patchJump(bodyJump)
	} else {
		c.consume(token.RPAREN, "expect ')' after for clauses")
	}

	c.statement()
	c.emitLoop(loop.start)

	if exitJump != -1 {
		c.patchJump(exitJump)
		c.emitByte(byte(vm.OpPop))
	}
	c.popLoop()
	c.endScope()
}

// switchStatement desugars to a chain of DUP/EQUAL/JUMP_IF_FALSE tests
// against the scrutinee, since the instruction set has no dedicated switch
// opcode: each case is an equality test followed by the same
// JUMP_IF_FALSE/JUMP machinery already used for if/else.
func (c *Compiler) switchStatement() {
	c.consume(token.LPAREN, "expect '(' after 'switch'")
	c.expression()
	c.consume(token.RPAREN, "expect ')' after switch value")
	c.consume(token.LBRACE, "expect '{' before switch body")

	var endJumps []int
	for c.match(token.CASE) {
		c.emitByte(byte(vm.OpDup))
		c.expression()
		c.consume(token.COLON, "expect ':' after case value")
		c.emitByte(byte(vm.OpEqual))
		next := c.emitJump(vm.OpJumpIfFalse)
		c.emitByte(byte(vm.OpPop)) // discard the equality test result
		c.emitByte(byte(vm.OpPop)) // discard the duplicated scrutinee
		for !c.check(token.CASE) && !c.check(token.DEFAULT) && !c.check(token.RBRACE) {
			c.statement()
		}
		endJumps = append(endJumps, c.emitJump(vm.OpJump))
		c.patchJump(next)
		c.emitByte(byte(vm.OpPop)) // discard the equality test result
	}
	if c.match(token.DEFAULT) {
		c.consume(token.COLON, "expect ':' after 'default'")
		c.emitByte(byte(vm.OpPop)) // discard the scrutinee
		for !c.check(token.RBRACE) {
			c.statement()
		}
	} else {
		c.emitByte(byte(vm.OpPop))
	}
	c.consume(token.RBRACE, "expect '}' after switch body")
	for _, j := range endJumps {
		c.patchJump(j)
	}
}

func (c *Compiler) breakStatement() {
	if len(c.fs.loops) == 0 {
		c.error("'break' used outside of a loop")
		return
	}
	c.consume(token.SEMI, "expect ';' after 'break'")
	loop := c.fs.loops[len(c.fs.loops)-1]
	jump := c.emitJump(vm.OpJump)
	loop.breaks = append(loop.breaks, jump)
}

func (c *Compiler) continueStatement() {
	if len(c.fs.loops) == 0 {
		c.error("'continue' used outside of a loop")
		return
	}
	c.consume(token.SEMI, "expect ';' after 'continue'")
	loop := c.fs.loops[len(c.fs.loops)-1]
	c.emitLoop(loop.start)
}

func (c *Compiler) returnStatement() {
	if c.fs.kind == TypeScript {
		c.error("can't return from top-level code")
	}
	if c.match(token.SEMI) {
		c.emitReturn()
		return
	}
	if c.fs.kind == TypeInitializer {
		c.error("can't return a value from an initializer")
	}
	c.expression()
	c.consume(token.SEMI, "expect ';' after return value")
	c.emitByte(byte(vm.OpReturn))
}

func (c *Compiler) emitReturn() {
	if c.fs.kind == TypeInitializer {
		c.emitBytes(byte(vm.OpGetLocal), 0)
	} else {
		c.emitByte(byte(vm.OpNil))
	}
	c.emitByte(byte(vm.OpReturn))
}

func (c *Compiler) deleteStatement() {
	c.expression()
	c.consume(token.DOT, "expect '.' after expression in 'delete'")
	c.consume(token.IDENT, "expect property name")
	name := c.identifierConstant(c.prev.Lexeme)
	c.consume(token.SEMI, "expect ';' after delete statement")
	c.emitBytes(byte(vm.OpDel), name)
}

// importStatement desugars `import "path";` into a call to the import
// native, which the host wires to a loader that compiles and runs the
// target file (see vm.Natives.Loader / runtime.Session). There is no dedicated
// opcode: this is ordinary global-function-call machinery.
func (c *Compiler) importStatement() {
	c.consume(token.STRING, "expect a string path after 'import'")
	path := c.prev.Lexeme
	path = path[1 : len(path)-1]
	c.consume(token.SEMI, "expect ';' after import statement")

	slot, _ := c.resolveNativeOrGlobal("import")
	c.emitBytes(byte(vm.OpGetGlobal), slot)
	c.emitConstant(vm.Obj(c.heap.InternString(path)))
	c.emitBytes(byte(vm.OpCall), 1)
	c.emitByte(byte(vm.OpPop))
}

func (c *Compiler) funDeclaration() {
	slot := c.parseVariable("expect function name", false)
	c.markInitialized()
	c.function(TypeFunction)
	c.defineVariable(slot)
}

func (c *Compiler) function(kind FuncType) {
	name := c.prev.Lexeme
	c.pushFunc(kind, name)
	c.beginScope()

	c.consume(token.LPAREN, "expect '(' after function name")
	if !c.check(token.RPAREN) {
		sawDefault := false
		for {
			c.fs.fn.Arity++
			if c.fs.fn.Arity > 255 {
				c.error("can't have more than 255 parameters")
			}
			paramSlot := c.parseVariable("expect parameter name", false)
			c.defineVariable(paramSlot)
			slot := byte(len(c.fs.locals) - 1)

			if c.match(token.EQ) {
				sawDefault = true
				c.fs.fn.DefaultCount++
				c.compileParamDefault(slot)
			} else if sawDefault {
				c.error("parameter without a default cannot follow one with a default")
			}

			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "expect ')' after parameters")
	c.consume(token.LBRACE, "expect '{' before function body")
	c.block()

	c.endFunctionEmittingClosure()
}

// compileParamDefault emits a parameter's default-value prologue. A call
// that omits a trailing argument leaves its slot padded with Empty (see
// vm.call); this checks the slot and, only when it is still Empty,
// evaluates the default expression and stores it there.
func (c *Compiler) compileParamDefault(slot byte) {
	c.emitBytes(byte(vm.OpGetLocal), slot)
	useDefault := c.emitJump(vm.OpJumpIfEmpty)
	skipDefault := c.emitJump(vm.OpJump)
	c.patchJump(useDefault)
	c.emitByte(byte(vm.OpPop))
	c.expression()
	c.emitBytes(byte(vm.OpSetLocal), slot)
	c.patchJump(skipDefault)
	c.emitByte(byte(vm.OpPop))
}

// endFunctionEmittingClosure finishes the nested funcState, then emits the
// enclosing OP_CLOSURE referencing it plus its upvalue capture descriptors.
func (c *Compiler) endFunctionEmittingClosure() *vm.Function {
	c.emitReturn()
	fn := c.fs.fn
	upvals := c.fs.upvalues
	c.fs = c.fs.enclosing

	c.emitBytes(byte(vm.OpClosure), c.makeConstant(vm.Obj(fn)))
	for _, u := range upvals {
		if u.isLocal {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		c.emitByte(u.index)
	}
	return fn
}

func (c *Compiler) classDeclaration() {
	c.consume(token.IDENT, "expect class name")
	name := c.prev.Lexeme
	nameConst := c.identifierConstant(name)
	c.declareVariable(name, false)

	var globalSlot byte
	if c.fs.scopeDepth == 0 {
		globalSlot = byte(c.globals.Declare(c.heap.InternString(name)))
	}

	c.emitBytes(byte(vm.OpClass), nameConst)
	c.defineVariable(globalSlot)

	cls := &classCtx{enclosing: c.class}
	c.class = cls

	if c.match(token.LT) {
		c.consume(token.IDENT, "expect superclass name")
		c.variable(false)
		if c.prev.Lexeme == name {
			c.error("a class can't inherit from itself")
		}

		c.beginScope()
		c.addLocal("super", true)
		c.defineVariable(0)

		c.namedVariable(name, false)
		c.emitByte(byte(vm.OpInherit))
		cls.hasSuperclass = true
	}

	c.namedVariable(name, false)
	c.consume(token.LBRACE, "expect '{' before class body")
	for !c.check(token.RBRACE) && !c.check(token.EOF) {
		c.method()
	}
	c.consume(token.RBRACE, "expect '}' after class body")
	c.emitByte(byte(vm.OpPop))

	if cls.hasSuperclass {
		c.endScope()
	}
	c.class = cls.enclosing
}

func (c *Compiler) method() {
	c.consume(token.IDENT, "expect method name")
	name := c.prev.Lexeme
	nameConst := c.identifierConstant(name)

	kind := TypeMethod
	if name == "init" {
		kind = TypeInitializer
	}
	c.function(kind)
	c.emitBytes(byte(vm.OpMethod), nameConst)
}
