package common

import (
	"errors"
	"sync"
)

// ErrModulePaused is returned by mutating operations while the module's
// circuit breaker is engaged.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view means pausing
// is not wired and everything proceeds.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Switch is a runtime-togglable PauseView used by the service layer as an
// operational circuit breaker.
type Switch struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewSwitch constructs an all-running switch.
func NewSwitch() *Switch {
	return &Switch{paused: make(map[string]bool)}
}

// Pause engages the breaker for the module.
func (s *Switch) Pause(module string) {
	if s == nil || module == "" {
		return
	}
	s.mu.Lock()
	s.paused[module] = true
	s.mu.Unlock()
}

// Resume releases the breaker for the module.
func (s *Switch) Resume(module string) {
	if s == nil || module == "" {
		return
	}
	s.mu.Lock()
	delete(s.paused, module)
	s.mu.Unlock()
}

// IsPaused implements PauseView.
func (s *Switch) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}
