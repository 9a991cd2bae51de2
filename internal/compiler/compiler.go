// Package compiler implements the single-pass Pratt compiler: it walks the
// token stream exactly once, emitting bytecode directly into a vm.Chunk as
// it recognizes each construct, with no separate AST stage.
package compiler

import (
	"fmt"

	"github.com/coral-lang/coral/internal/scanner"
	"github.com/coral-lang/coral/internal/token"
	"github.com/coral-lang/coral/internal/vm"
)

// CompileError is one diagnostic produced during compilation, in panic-mode
// recovery style: the parser reports the first error at a given token,
// suppresses further errors until it resynchronizes, then keeps going so it
// can report more than one error per run.
type CompileError struct {
	Line    int
	Message string
}

func (e *CompileError) Error() string { return fmt.Sprintf("[line %d] Error: %s", e.Line, e.Message) }

// Precedence is the Pratt parser's binding-power ladder, exactly the order
// the language's grammar requires.
type Precedence int

const (
	PrecNone Precedence = iota
	PrecAssignment
	PrecConditional // ?:
	PrecOr
	PrecAnd
	PrecEquality
	PrecComparison
	PrecTerm
	PrecFactor
	PrecUnary
	PrecCall
	PrecPrimary
)

type parseFn func(c *Compiler, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence Precedence
}

var rules map[token.Kind]parseRule

func init() {
	rules = map[token.Kind]parseRule{
		token.LPAREN:   {(*Compiler).grouping, (*Compiler).call, PrecCall},
		token.LBRACK:   {(*Compiler).collection, (*Compiler).randomAccess, PrecCall},
		token.DOT:      {nil, (*Compiler).dot, PrecCall},
		token.DOTDOT:   {nil, (*Compiler).rangeLiteral, PrecComparison},
		token.MINUS:    {(*Compiler).unary, (*Compiler).binary, PrecTerm},
		token.PLUS:     {nil, (*Compiler).binary, PrecTerm},
		token.SLASH:    {nil, (*Compiler).binary, PrecFactor},
		token.STAR:     {nil, (*Compiler).binary, PrecFactor},
		token.BANG:     {(*Compiler).unary, nil, PrecNone},
		token.BANG_EQ:  {nil, (*Compiler).binary, PrecEquality},
		token.EQ_EQ:    {nil, (*Compiler).binary, PrecEquality},
		token.GT:       {nil, (*Compiler).binary, PrecComparison},
		token.GT_EQ:    {nil, (*Compiler).binary, PrecComparison},
		token.LT:       {nil, (*Compiler).binary, PrecComparison},
		token.LT_EQ:    {nil, (*Compiler).binary, PrecComparison},
		token.QUESTION: {nil, (*Compiler).condition, PrecConditional},
		token.IDENT:    {(*Compiler).variable, nil, PrecNone},
		token.STRING:   {(*Compiler).string, nil, PrecNone},
		token.NUMBER:   {(*Compiler).number, nil, PrecNone},
		token.AND:      {nil, (*Compiler).and, PrecAnd},
		token.OR:       {nil, (*Compiler).or, PrecOr},
		token.FALSE:    {(*Compiler).literal, nil, PrecNone},
		token.NIL:      {(*Compiler).literal, nil, PrecNone},
		token.TRUE:     {(*Compiler).literal, nil, PrecNone},
		token.THIS:     {(*Compiler).this, nil, PrecNone},
		token.SUPER:    {(*Compiler).super, nil, PrecNone},
	}
}

func getRule(k token.Kind) parseRule {
	if r, ok := rules[k]; ok {
		return r
	}
	return parseRule{precedence: PrecNone}
}

// FuncType distinguishes the kind of function currently being compiled,
// since methods and initializers resolve "this" and bare "return" slightly
// differently from plain functions and the top-level script.
type FuncType int

const (
	TypeScript FuncType = iota
	TypeFunction
	TypeMethod
	TypeInitializer
)

type local struct {
	name       string
	depth      int
	isConst    bool
	isCaptured bool
}

type upvalueRef struct {
	index   byte
	isLocal bool
}

type loopCtx struct {
	start      int
	scopeDepth int
	breaks     []int
}

type classCtx struct {
	enclosing     *classCtx
	hasSuperclass bool
}

// funcState is one nested level of function compilation; funcState chains
// mirror the lexical nesting of fun/method declarations.
type funcState struct {
	enclosing  *funcState
	fn         *vm.Function
	kind       FuncType
	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
	loops      []*loopCtx
}

// Compiler drives a single compilation: one token stream, one chain of
// nested funcStates, one shared Globals table.
type Compiler struct {
	sc      *scanner.Scanner
	current token.Token
	prev    token.Token

	hadError  bool
	panicMode bool
	errs      []error

	heap    *vm.Heap
	globals *vm.Globals
	natives *vm.Natives

	fs    *funcState
	class *classCtx
}

// New creates a Compiler over src, ready to compile one top-level script.
func New(src []byte, heap *vm.Heap, globals *vm.Globals, natives *vm.Natives) *Compiler {
	c := &Compiler{
		sc:      scanner.New(src),
		heap:    heap,
		globals: globals,
		natives: natives,
	}
	c.pushFunc(TypeScript, "")
	return c
}

// MarkRoots implements vm.RootMarker: a function under active compilation
// (and its enclosing chain) is not reachable from any VM-visible structure
// yet, so a GC triggered by, say, interning many string constants mid-
// compile must be told about it directly.
func (c *Compiler) MarkRoots(mark func(vm.Value)) {
	for fs := c.fs; fs != nil; fs = fs.enclosing {
		if fs.fn != nil {
			mark(vm.Obj(fs.fn))
		}
	}
	if c.globals != nil {
		c.globals.Mark(mark)
	}
}

func (c *Compiler) pushFunc(kind FuncType, name string) {
	fn := c.heap.NewFunction()
	if name != "" {
		fn.Name = c.heap.InternString(name)
	}
	fs := &funcState{enclosing: c.fs, fn: fn, kind: kind}
	// slot 0 is reserved for the receiver ("this") in methods, or the
	// function/closure value itself at the top level.
	recv := ""
	if kind == TypeMethod || kind == TypeInitializer {
		recv = "this"
	}
	fs.locals = append(fs.locals, local{name: recv, depth: 0})
	c.fs = fs
}

// Compile compiles the whole source as a top-level script and returns the
// resulting Function (not yet wrapped; the caller turns it into a Closure),
// along with any CompileErrors encountered.
func Compile(src []byte, heap *vm.Heap, globals *vm.Globals, natives *vm.Natives) (*vm.Function, []error) {
	c := New(src, heap, globals, natives)
	prevRoots := heap.SetRoots(c)
	defer heap.SetRoots(prevRoots)

	c.advance()
	for !c.match(token.EOF) {
		c.declaration()
	}
	c.consume(token.EOF, "expect end of input")
	fn := c.endFunction()
	if c.hadError {
		return nil, c.errs
	}
	return fn, nil
}

func (c *Compiler) endFunction() *vm.Function {
	c.emitReturn()
	fn := c.fs.fn
	c.fs = c.fs.enclosing
	return fn
}

// --- token stream ---------------------------------------------------------

func (c *Compiler) advance() {
	c.prev = c.current
	for {
		c.current = c.sc.Scan()
		if c.current.Kind != token.ILLEGAL {
			break
		}
		c.errorAtCurrent(c.current.Message)
	}
}

func (c *Compiler) check(k token.Kind) bool { return c.current.Kind == k }

func (c *Compiler) match(k token.Kind) bool {
	if !c.check(k) {
		return false
	}
	c.advance()
	return true
}

func (c *Compiler) consume(k token.Kind, msg string) {
	if c.current.Kind == k {
		c.advance()
		return
	}
	c.errorAtCurrent(msg)
}

func (c *Compiler) errorAtCurrent(msg string) { c.errorAt(c.current, msg) }
func (c *Compiler) error(msg string)          { c.errorAt(c.prev, msg) }

func (c *Compiler) errorAt(t token.Token, msg string) {
	if c.panicMode {
		return
	}
	c.panicMode = true
	c.hadError = true
	c.errs = append(c.errs, &CompileError{Line: t.Line, Message: msg})
}

// synchronize discards tokens until it reaches a likely statement boundary,
// so one error doesn't cascade into a wall of spurious follow-on errors.
func (c *Compiler) synchronize() {
	c.panicMode = false
	for c.current.Kind != token.EOF {
		if c.prev.Kind == token.SEMI {
			return
		}
		switch c.current.Kind {
		case token.CLASS, token.FUN, token.VAR, token.CONST, token.FOR,
			token.IF, token.WHILE, token.PRINT, token.RETURN, token.SWITCH,
			token.DELETE, token.IMPORT:
			return
		}
		c.advance()
	}
}

// --- bytecode emission -----------------------------------------------------

func (c *Compiler) chunk() *vm.Chunk { return c.fs.fn.Chunk }

func (c *Compiler) emitByte(b byte) { c.chunk().Write(b, c.prev.Line) }

func (c *Compiler) emitBytes(a, b byte) {
	c.emitByte(a)
	c.emitByte(b)
}

func (c *Compiler) emitLoop(start int) {
	c.emitByte(byte(vm.OpLoop))
	offset := len(c.chunk().Code) - start + 2
	c.emitByte(byte(offset >> 8))
	c.emitByte(byte(offset))
}

func (c *Compiler) emitJump(op vm.OpCode) int {
	c.emitByte(byte(op))
	c.emitByte(0xff)
	c.emitByte(0xff)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	code := c.chunk().Code
	code[offset] = byte(jump >> 8)
	code[offset+1] = byte(jump)
}

func (c *Compiler) makeConstant(v vm.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.error("too many constants in one chunk")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) emitConstant(v vm.Value) {
	c.emitBytes(byte(vm.OpConstant), c.makeConstant(v))
}

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(vm.Obj(c.heap.InternString(name)))
}
