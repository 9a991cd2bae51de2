package vm

import "github.com/dolthub/swiss"

// ModuleCache tracks which import paths have already been compiled and run
// in this process, so `import "path";` is idempotent no matter how many
// call sites import the same module. It is keyed by the literal path string
// as written in source; two different literals that happen to resolve to
// the same file are treated as distinct modules and run twice.
type ModuleCache struct {
	loaded *swiss.Map[string, Value]
}

func NewModuleCache() *ModuleCache {
	return &ModuleCache{loaded: swiss.NewMap[string, Value](8)}
}

// Exports returns the module's top-level export value if path was already
// loaded.
func (m *ModuleCache) Exports(path string) (Value, bool) {
	return m.loaded.Get(path)
}

// Record stores the export value produced by running path for the first
// time.
func (m *ModuleCache) Record(path string, exports Value) {
	m.loaded.Put(path, exports)
}

func (m *ModuleCache) blacken(mark func(Value)) {
	m.loaded.Iter(func(_ string, v Value) (stop bool) {
		mark(v)
		return false
	})
}
