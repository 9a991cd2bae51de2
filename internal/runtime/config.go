// Package runtime wires together the compiler and the VM into a single
// reusable "run a script" / "run a REPL line" operation, and carries the
// environment-driven tunables for both.
package runtime

import "github.com/caarlos0/env/v6"

// Config holds the VM/compiler tunables an operator can override without a
// recompile. caarlos0/env/v6 populates it straight from the process
// environment, the way a twelve-factor service would be configured rather
// than through a sprawl of CLI flags.
type Config struct {
	// StressGC forces a collection on every single allocation, for shaking
	// out GC-root bugs in development and in tests.
	StressGC bool `env:"CORAL_STRESS_GC" envDefault:"false"`

	// InitialHeapBytes seeds the first collection threshold; left at zero it
	// falls back to the VM's own default.
	InitialHeapBytes int `env:"CORAL_INITIAL_HEAP_BYTES" envDefault:"0"`

	// MaxCallDepth caps the number of live call frames, a recursion guard an
	// operator can tighten below vm.FramesMax (256); left at zero it falls
	// back to the VM's own default ceiling.
	MaxCallDepth int `env:"CORAL_MAX_CALL_DEPTH" envDefault:"0"`

	// ReplPrompt is the line prompt printed by the interactive REPL.
	ReplPrompt string `env:"CORAL_REPL_PROMPT" envDefault:"> "`
}

// LoadConfig reads Config from the environment, applying envDefault tags for
// anything unset.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
