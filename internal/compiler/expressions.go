package compiler

import (
	"strconv"
	"strings"

	"github.com/coral-lang/coral/internal/token"
	"github.com/coral-lang/coral/internal/vm"
)

func (c *Compiler) expression() {
	c.parsePrecedence(PrecAssignment)
}

func (c *Compiler) parsePrecedence(prec Precedence) {
	c.advance()
	prefix := getRule(c.prev.Kind).prefix
	if prefix == nil {
		c.error("expect expression")
		return
	}
	canAssign := prec <= PrecAssignment
	prefix(c, canAssign)

	for prec <= getRule(c.current.Kind).precedence {
		c.advance()
		infix := getRule(c.prev.Kind).infix
		infix(c, canAssign)
	}

	if canAssign && c.match(token.EQ) {
		c.error("invalid assignment target")
	}
}

func (c *Compiler) number(canAssign bool) {
	n, _ := strconv.ParseFloat(c.prev.Lexeme, 64)
	c.emitConstant(vm.Number(n))
}

// string handles both plain "literal" strings and ones containing ${expr}
// interpolation: when it finds one, it rewrites the literal text into a
// format string with bare "${}" placeholders, compiles the embedded
// expressions into a values collection, and calls the two-argument
// interpolate native over (fmt, values) instead of emitting a single
// constant. A literal whose only "${" sequences are empty "${}" placeholders
// is kept as a plain constant, so scripts can build format strings for the
// interpolate native themselves.
func (c *Compiler) string(canAssign bool) {
	raw := c.prev.Lexeme
	raw = raw[1 : len(raw)-1] // strip quotes

	if !strings.Contains(strings.ReplaceAll(raw, "${}", ""), "${") {
		c.emitConstant(vm.Obj(c.heap.InternString(raw)))
		return
	}
	c.compileInterpolatedString(raw)
}

func (c *Compiler) compileInterpolatedString(raw string) {
	var format strings.Builder
	var exprs []string
	rest := raw
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			format.WriteString(rest)
			break
		}
		format.WriteString(rest[:start])
		end := strings.Index(rest[start:], "}")
		if end < 0 {
			c.error("unterminated string interpolation")
			return
		}
		format.WriteString("${}")
		exprs = append(exprs, rest[start+2:start+end])
		rest = rest[start+end+1:]
	}

	// the interpolate native's callee value must sit below its two
	// arguments (fmt, then the values collection), so it is pushed first.
	slot, _ := c.resolveNativeOrGlobal("interpolate")
	c.emitBytes(byte(vm.OpGetGlobal), slot)
	c.emitConstant(vm.Obj(c.heap.InternString(format.String())))

	c.emitByte(byte(vm.OpCollection))
	for _, exprSrc := range exprs {
		sub := New([]byte(exprSrc+";"), c.heap, c.globals, c.natives)
		sub.fs = c.fs // share the enclosing function so locals/upvalues resolve
		sub.advance()
		sub.expression()
		c.errs = append(c.errs, sub.errs...)
		if sub.hadError {
			c.hadError = true
		}
	}
	c.emitBytes(byte(vm.OpCall), byte(len(exprs)))
	c.emitBytes(byte(vm.OpCall), 2)
}

// resolveNativeOrGlobal ensures name is declared as a global (predeclaring
// natives lazily the first time compiled source references them by name).
func (c *Compiler) resolveNativeOrGlobal(name string) (byte, bool) {
	nameStr := c.heap.InternString(name)
	if slot, ok := c.globals.Resolve(nameStr); ok {
		return byte(slot), true
	}
	if native, ok := c.natives.Lookup(name); ok {
		slot := c.globals.Declare(nameStr)
		c.globals.Values[slot] = vm.Obj(native)
		return byte(slot), true
	}
	return byte(c.globals.Declare(nameStr)), false
}

func (c *Compiler) literal(canAssign bool) {
	switch c.prev.Kind {
	case token.FALSE:
		c.emitByte(byte(vm.OpFalse))
	case token.NIL:
		c.emitByte(byte(vm.OpNil))
	case token.TRUE:
		c.emitByte(byte(vm.OpTrue))
	}
}

func (c *Compiler) grouping(canAssign bool) {
	c.expression()
	c.consume(token.RPAREN, "expect ')' after expression")
}

func (c *Compiler) unary(canAssign bool) {
	op := c.prev.Kind
	c.parsePrecedence(PrecUnary)
	switch op {
	case token.BANG:
		c.emitByte(byte(vm.OpNot))
	case token.MINUS:
		c.emitByte(byte(vm.OpNegate))
	}
}

func (c *Compiler) binary(canAssign bool) {
	op := c.prev.Kind
	rule := getRule(op)
	c.parsePrecedence(rule.precedence + 1)

	switch op {
	case token.BANG_EQ:
		c.emitBytes(byte(vm.OpEqual), byte(vm.OpNot))
	case token.EQ_EQ:
		c.emitByte(byte(vm.OpEqual))
	case token.GT:
		c.emitByte(byte(vm.OpGreater))
	case token.GT_EQ:
		c.emitBytes(byte(vm.OpLess), byte(vm.OpNot))
	case token.LT:
		c.emitByte(byte(vm.OpLess))
	case token.LT_EQ:
		c.emitBytes(byte(vm.OpGreater), byte(vm.OpNot))
	case token.PLUS:
		c.emitByte(byte(vm.OpAdd))
	case token.MINUS:
		c.emitByte(byte(vm.OpSubtract))
	case token.STAR:
		c.emitByte(byte(vm.OpMultiply))
	case token.SLASH:
		c.emitByte(byte(vm.OpDivide))
	}
}

// condition compiles the ternary operator. Per the original implementation,
// both branches are always evaluated (their values are produced
// unconditionally) and OP_CONDITIONAL picks between the two already-computed
// results; the condition does not short-circuit which branch runs.
func (c *Compiler) condition(canAssign bool) {
	c.parsePrecedence(PrecConditional)
	c.consume(token.COLON, "expect ':' after conditional operator")
	c.parsePrecedence(PrecAssignment)
	c.emitByte(byte(vm.OpConditional))
}

func (c *Compiler) and(canAssign bool) {
	endJump := c.emitJump(vm.OpJumpIfFalse)
	c.emitByte(byte(vm.OpPop))
	c.parsePrecedence(PrecAnd)
	c.patchJump(endJump)
}

func (c *Compiler) or(canAssign bool) {
	elseJump := c.emitJump(vm.OpJumpIfFalse)
	endJump := c.emitJump(vm.OpJump)
	c.patchJump(elseJump)
	c.emitByte(byte(vm.OpPop))
	c.parsePrecedence(PrecOr)
	c.patchJump(endJump)
}

func (c *Compiler) call(canAssign bool) {
	argCount := c.argumentList()
	c.emitBytes(byte(vm.OpCall), argCount)
}

func (c *Compiler) argumentList() byte {
	count := 0
	if !c.check(token.RPAREN) {
		for {
			c.expression()
			if count == 255 {
				c.error("can't have more than 255 arguments")
			}
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RPAREN, "expect ')' after arguments")
	return byte(count)
}

// collection compiles a [a, b, c] literal: an empty collection pushed, then
// every element value, then a generic OP_CALL that the VM's collection
// calling convention folds the arguments into the collection itself.
func (c *Compiler) collection(canAssign bool) {
	// OP_COLLECTION must land below the element values for the generic call
	// convention (callValue peeks the callee at depth argCount), so the empty
	// collection is pushed before any element expression runs.
	c.emitByte(byte(vm.OpCollection))
	count := 0
	if !c.check(token.RBRACK) {
		for {
			c.expression()
			count++
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.consume(token.RBRACK, "expect ']' after collection elements")
	c.emitBytes(byte(vm.OpCall), byte(count))
}

func (c *Compiler) randomAccess(canAssign bool) {
	c.expression()
	c.consume(token.RBRACK, "expect ']' after index")
	c.emitByte(byte(vm.OpRandomAccess))
}

// rangeLiteral compiles the infix ".." of a range literal `start..end` or
// `start..end..step`. The left operand (start) is already on the stack as
// the usual Pratt left-hand side; this handler compiles end (and an
// optional second ".." step), defaulting step to 1 when omitted, then emits
// OP_RANGE to pop all three and build the resulting collection.
func (c *Compiler) rangeLiteral(canAssign bool) {
	c.parsePrecedence(PrecComparison + 1)
	if c.match(token.DOTDOT) {
		c.parsePrecedence(PrecComparison + 1)
	} else {
		c.emitConstant(vm.Number(1))
	}
	c.emitByte(byte(vm.OpRange))
}

func (c *Compiler) dot(canAssign bool) {
	c.consume(token.IDENT, "expect property name after '.'")
	name := c.identifierConstant(c.prev.Lexeme)

	switch {
	case canAssign && c.match(token.EQ):
		c.expression()
		c.emitBytes(byte(vm.OpSetProperty), name)
	case c.match(token.LPAREN):
		argCount := c.argumentList()
		c.emitBytes(byte(vm.OpInvoke), name)
		c.emitByte(argCount)
	default:
		c.emitBytes(byte(vm.OpGetProperty), name)
	}
}

func (c *Compiler) this(canAssign bool) {
	if c.class == nil {
		c.error("'this' used outside of a method")
		return
	}
	c.variableNamed("this", false)
}

func (c *Compiler) super(canAssign bool) {
	if c.class == nil {
		c.error("'super' used outside of a class")
		return
	} else if !c.class.hasSuperclass {
		c.error("'super' used in a class with no superclass")
	}
	c.consume(token.DOT, "expect '.' after 'super'")
	c.consume(token.IDENT, "expect superclass method name")
	name := c.identifierConstant(c.prev.Lexeme)

	c.variableNamed("this", false)
	if c.match(token.LPAREN) {
		argCount := c.argumentList()
		c.variableNamed("super", false)
		c.emitBytes(byte(vm.OpSuperInvoke), name)
		c.emitByte(argCount)
	} else {
		c.variableNamed("super", false)
		c.emitBytes(byte(vm.OpGetSuper), name)
	}
}
