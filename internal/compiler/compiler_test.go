package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coral-lang/coral/internal/compiler"
	"github.com/coral-lang/coral/internal/vm"
)

func compile(t *testing.T, src string) (*vm.Function, []error) {
	t.Helper()
	heap := vm.NewHeap()
	globals := vm.NewGlobals()
	machine := vm.New(heap, globals, nil)
	return compiler.Compile([]byte(src), heap, globals, machine.Natives())
}

func TestCompileSimpleScript(t *testing.T) {
	fn, errs := compile(t, `print 1 + 2;`)
	require.Nil(t, errs)
	require.NotNil(t, fn)
	require.Equal(t, 0, fn.Arity)
	require.Nil(t, fn.Name)
}

func TestShadowingSameScopeIsCompileError(t *testing.T) {
	_, errs := compile(t, `{ var a = 1; var a = 2; }`)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0].Error(), "already a variable with this name in this scope")
}

func TestShadowingOuterScopeIsAllowed(t *testing.T) {
	_, errs := compile(t, `var a = 1; { var a = 2; print a; }`)
	require.Nil(t, errs)
}

func TestReadLocalInOwnInitializerIsCompileError(t *testing.T) {
	_, errs := compile(t, `{ var a = a; }`)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0].Error(), "can't read local variable in its own initializer")
}

func TestConstReassignmentIsCompileError(t *testing.T) {
	_, errs := compile(t, `{ const a = 1; a = 2; }`)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0].Error(), "cannot assign to a const variable")
}

func TestUpvalueDedupedAcrossMultipleReferences(t *testing.T) {
	fn, errs := compile(t, `
fun outer() {
  var x = 1;
  fun inner() {
    return x + x;
  }
  return inner;
}
`)
	require.Nil(t, errs)
	require.NotNil(t, fn)

	var outer *vm.Function
	for _, v := range fn.Chunk.Constants {
		if f, ok := v.AsObj().(*vm.Function); ok && f.Name != nil && f.Name.GoString() == "outer" {
			outer = f
		}
	}
	require.NotNil(t, outer, "expected to find compiled 'outer' function in top-level constants")

	var inner *vm.Function
	for _, v := range outer.Chunk.Constants {
		if f, ok := v.AsObj().(*vm.Function); ok && f.Name != nil && f.Name.GoString() == "inner" {
			inner = f
		}
	}
	require.NotNil(t, inner, "expected to find compiled 'inner' function in outer's constants")
	require.Equal(t, 1, inner.UpvalueCount, "both references to x should share one deduped upvalue")
}

func TestMultipleErrorsReportedViaSynchronize(t *testing.T) {
	_, errs := compile(t, `
var a = ;
var b = ;
`)
	require.GreaterOrEqual(t, len(errs), 2)
}

func TestClassWithMethodCompiles(t *testing.T) {
	_, errs := compile(t, `
class Greeter {
  init(name) { this.name = name; }
  greet() { print this.name; }
}
var g = Greeter("world");
g.greet();
`)
	require.Nil(t, errs)
}
