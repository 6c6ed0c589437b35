// control/hotreload.go
// Runtime log level changes. Poll loops keep their logger; only the
// shared atomic level moves.

package control

import (
	"sync"

	"go.uber.org/zap"
)

// LevelSwitch wraps the atomic level of a logger built by NewLogger and
// notifies registered hooks after each change.
type LevelSwitch struct {
	level zap.AtomicLevel
	mu    sync.Mutex
	hooks []func(string)
}

// NewLevelSwitch wraps level.
func NewLevelSwitch(level zap.AtomicLevel) *LevelSwitch {
	return &LevelSwitch{level: level}
}

// Level returns the current level name.
func (ls *LevelSwitch) Level() string {
	return ls.level.Level().String()
}

// SetLevel parses and applies a level, then runs hooks synchronously.
func (ls *LevelSwitch) SetLevel(s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	ls.level.SetLevel(lvl)
	ls.mu.Lock()
	hooks := append([]func(string){}, ls.hooks...)
	ls.mu.Unlock()
	for _, fn := range hooks {
		fn(lvl.String())
	}
	return nil
}

// OnChange registers a hook called with the new level name.
func (ls *LevelSwitch) OnChange(fn func(string)) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.hooks = append(ls.hooks, fn)
}
