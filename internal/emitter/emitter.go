// Package emitter defines where scan results go. The core produces
// findings; persistence and ML layers live behind this boundary.
package emitter

import (
	"context"

	"github.com/yairfalse/scrimp/orchestrator"
)

// Emitter sends one scan result to a backend.
type Emitter interface {
	Emit(ctx context.Context, result *orchestrator.ScanResult) error
	Close() error
}

// MultiEmitter fans out to multiple emitters.
type MultiEmitter struct {
	emitters []Emitter
}

// NewMultiEmitter creates an emitter that sends to multiple backends.
func NewMultiEmitter(emitters ...Emitter) *MultiEmitter {
	return &MultiEmitter{emitters: emitters}
}

// Emit sends to all emitters, returns the first error.
func (m *MultiEmitter) Emit(ctx context.Context, result *orchestrator.ScanResult) error {
	for _, e := range m.emitters {
		if err := e.Emit(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all emitters.
func (m *MultiEmitter) Close() error {
	for _, e := range m.emitters {
		if err := e.Close(); err != nil {
			return err
		}
	}
	return nil
}
