package vm_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coral-lang/coral/internal/compiler"
	"github.com/coral-lang/coral/internal/vm"
)

// run compiles and executes src against a fresh Heap/Globals/VM, returning
// whatever it printed and the result of vm.Run.
func run(t *testing.T, src string) (string, vm.InterpretResult, *vm.VM) {
	t.Helper()
	heap := vm.NewHeap()
	globals := vm.NewGlobals()
	var out bytes.Buffer
	machine := vm.New(heap, globals, &out)

	fn, errs := compiler.Compile([]byte(src), heap, globals, machine.Natives())
	require.Nil(t, errs, "unexpected compile errors: %v", errs)

	res := machine.Run(heap.NewClosure(fn))
	return out.String(), res, machine
}

// TestArithmeticPrecedence covers spec scenario 1: operator precedence.
func TestArithmeticPrecedence(t *testing.T) {
	out, res, _ := run(t, `print 1 + 2 * 3;`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "7\n", out)
}

// TestStringInterning covers spec scenario 2: interned strings compare
// equal by identity.
func TestStringInterning(t *testing.T) {
	out, res, _ := run(t, `var a = "hi"; var b = "hi"; print a == b;`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "true\n", out)
}

// TestClosureSharedUpvalue covers spec scenario 3: the closure returned by
// make() keeps x in an upvalue that persists across its calls.
func TestClosureSharedUpvalue(t *testing.T) {
	out, res, _ := run(t, `
fun make() {
  var x = 0;
  fun inc() { x = x + 1; return x; }
  return inc;
}
var f = make();
print f();
print f();
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "1\n2\n", out)
}

// TestMethodInheritance covers spec scenario 4: OP_INHERIT copies the
// superclass's method table into the subclass.
func TestMethodInheritance(t *testing.T) {
	out, res, _ := run(t, `
class A { greet() { print "hi"; } }
class B < A {}
B().greet();
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "hi\n", out)
}

// TestAddTypeMismatchIsRuntimeError covers spec scenario 5.
func TestAddTypeMismatchIsRuntimeError(t *testing.T) {
	_, res, machine := run(t, `print "a" + 1;`)
	require.Equal(t, vm.InterpretRuntimeError, res)
	require.NotNil(t, machine.LastError())
	require.Contains(t, machine.LastError().Message, "operands must be two numbers, two strings, or two collections")
}

// TestCollectionLiteralAndRandomAccess covers spec scenario 6.
func TestCollectionLiteralAndRandomAccess(t *testing.T) {
	out, res, _ := run(t, `var c = [1,2,3]; print c[1];`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "2\n", out)
}

// TestClassInitializerAndFields exercises Instance field storage and a
// custom init() method beyond the spec's six listed scenarios.
func TestClassInitializerAndFields(t *testing.T) {
	out, res, _ := run(t, `
class Point {
  init(x, y) {
    this.x = x;
    this.y = y;
  }
  sum() { return this.x + this.y; }
}
var p = Point(3, 4);
print p.sum();
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "7\n", out)
}

// TestCollectionSortAndContains exercises the x/exp/slices-backed Collection
// methods.
func TestCollectionSortAndContains(t *testing.T) {
	out, res, _ := run(t, `
var c = [3,1,2];
c.sort();
print c[0];
print c[1];
print c[2];
print c.contains(2);
print c.contains(9);
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "1\n2\n3\ntrue\nfalse\n", out)
}

// TestRangeLiteral exercises the `start..end..step` range literal, which
// shares its OP_CALL-folding convention with collection literals.
func TestRangeLiteral(t *testing.T) {
	out, res, _ := run(t, `
var r = 1..5;
print r.len();
print r[0];
print r[3];

var evens = 0..10..2;
print evens.len();
print evens[2];
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "5\n1\n4\n6\n4\n", out)
}

// TestDefaultParameters covers trailing default-valued parameters: a call
// that omits them leaves their slots Empty, and the callee's prologue fills
// in the default only in that case.
func TestDefaultParameters(t *testing.T) {
	out, res, _ := run(t, `
fun greet(name, greeting = "hello") {
  print greeting + " " + name;
}
greet("ada");
greet("ada", "hi");
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "hello ada\nhi ada\n", out)
}

// TestDefaultParameterArityError covers the range-checked arity: fewer than
// arity-defaultCount arguments is still a runtime error.
func TestDefaultParameterArityError(t *testing.T) {
	_, res, machine := run(t, `
fun greet(name, greeting = "hello") { print greeting + " " + name; }
greet();
`)
	require.Equal(t, vm.InterpretRuntimeError, res)
	require.NotNil(t, machine.LastError())
	require.Contains(t, machine.LastError().Message, "expected between 1 and 2 arguments but got 0")
}

// TestMaxCallDepthTightensStackOverflow covers SetMaxCallDepth: lowering the
// call-frame ceiling below FramesMax makes unbounded recursion overflow
// sooner, the configurable half of the recursion guard.
func TestMaxCallDepthTightensStackOverflow(t *testing.T) {
	heap := vm.NewHeap()
	globals := vm.NewGlobals()
	var out bytes.Buffer
	machine := vm.New(heap, globals, &out)
	machine.SetMaxCallDepth(5)

	src := `
fun recurse(n) { return recurse(n + 1); }
recurse(0);
`
	fn, errs := compiler.Compile([]byte(src), heap, globals, machine.Natives())
	require.Nil(t, errs)

	res := machine.Run(heap.NewClosure(fn))
	require.Equal(t, vm.InterpretRuntimeError, res)
	require.NotNil(t, machine.LastError())
	require.Contains(t, machine.LastError().Message, "stack overflow")
}

// TestStringInterpolation covers the compiler's ${expr} desugaring into the
// two-argument interpolate(fmt, values) native.
func TestStringInterpolation(t *testing.T) {
	out, res, _ := run(t, `
var name = "ada";
print "hello ${name}, ${1 + 2}!";
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "hello ada, 3!\n", out)
}

// TestInterpolateNativeCalledDirectly covers interpolate as a user-callable
// native per its documented (fmt, values) contract, independent of the
// compiler's string-literal desugaring.
func TestInterpolateNativeCalledDirectly(t *testing.T) {
	out, res, _ := run(t, `print interpolate("a=${}, b=${}", [1, 2]);`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "a=1, b=2\n", out)
}

// TestErrorNativesRaiseDistinctMessages covers error() (fixed message, zero
// arguments) and runtimeError(msg) (caller-supplied message) as two
// distinct natives.
func TestErrorNativesRaiseDistinctMessages(t *testing.T) {
	_, res, machine := run(t, `error();`)
	require.Equal(t, vm.InterpretRuntimeError, res)
	require.Equal(t, "Error.", machine.LastError().Message)

	_, res, machine = run(t, `runtimeError("boom");`)
	require.Equal(t, vm.InterpretRuntimeError, res)
	require.Equal(t, "boom", machine.LastError().Message)
}

// TestNativeArityMismatchIsRuntimeError covers a native function called
// with the wrong argument count: it must raise a contained runtime error,
// not index out of range inside the native body.
func TestNativeArityMismatchIsRuntimeError(t *testing.T) {
	_, res, machine := run(t, `hasField();`)
	require.Equal(t, vm.InterpretRuntimeError, res)
	require.NotNil(t, machine.LastError())
	require.Contains(t, machine.LastError().Message, "expected 2 arguments but got 0")
}

// TestBreakContinueInLoop exercises loop control flow's jump-patch lists.
func TestBreakContinueInLoop(t *testing.T) {
	out, res, _ := run(t, `
var i = 0;
while (i < 10) {
  i = i + 1;
  if (i == 3) continue;
  if (i == 6) break;
  print i;
}
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "1\n2\n4\n5\n", out)
}

// TestConditionalIsEagerBothBranches documents the deliberate fidelity
// decision to keep the original's non-short-circuiting ternary: both
// branches' side effects run even though only one value is kept.
func TestConditionalIsEagerBothBranches(t *testing.T) {
	out, res, _ := run(t, `
fun sideEffect(n) { print n; return n; }
print true ? sideEffect(1) : sideEffect(2);
`)
	require.Equal(t, vm.InterpretOK, res)
	require.Equal(t, "1\n2\n1\n", out)
}
