package maincmd_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/require"

	"github.com/coral-lang/coral/internal/maincmd"
)

func writeScript(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.coral")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

// TestDisassembleSortsClassMethods covers the x/exp/slices-backed method
// summary: methods are printed alphabetically, not declaration order.
func TestDisassembleSortsClassMethods(t *testing.T) {
	path := writeScript(t, `
class Greeter {
  zebra() { return 1; }
  apple() { return 2; }
  mango() { return 3; }
}
`)
	var out, errOut bytes.Buffer
	c := &maincmd.Cmd{}
	err := c.Disassemble(context.Background(), mainer.Stdio{Stdout: &out, Stderr: &errOut}, []string{path})
	require.NoError(t, err)

	// the per-instruction listing names the methods in declaration order
	// first, so search only the summary block that follows its header.
	header := bytesIndex(out.String(), "== Greeter methods ==")
	require.GreaterOrEqual(t, header, 0, "expected a method summary, got:\n%s", out.String())
	text := out.String()[header:]
	zebra := bytesIndex(text, "zebra")
	apple := bytesIndex(text, "apple")
	mango := bytesIndex(text, "mango")
	require.True(t, apple < mango && mango < zebra, "expected methods in sorted order, got:\n%s", text)
}

func bytesIndex(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}

// TestRunReportsCompileErrorsOnce covers the fix for the double-print of
// compile diagnostics: a failing compile must print each diagnostic exactly
// once on stderr.
func TestRunReportsCompileErrorsOnce(t *testing.T) {
	path := writeScript(t, `fun broken( { }`)

	var out, errOut bytes.Buffer
	c := &maincmd.Cmd{}
	err := c.Run(context.Background(), mainer.Stdio{Stdout: &out, Stderr: &errOut}, []string{path})
	require.Error(t, err)

	// Main() is the only other place that ever prints a returned error; Run
	// itself must not have already written the diagnostics to stderr, or
	// Main's print would duplicate them.
	require.Empty(t, errOut.String())
}
