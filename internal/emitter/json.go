package emitter

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/yairfalse/scrimp/orchestrator"
	"github.com/yairfalse/scrimp/types"
)

// JSONEmitter writes findings as JSON lines, one finding per line, for
// piping into downstream tooling.
type JSONEmitter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewJSONEmitter creates a JSON lines emitter.
func NewJSONEmitter(out io.Writer) *JSONEmitter {
	return &JSONEmitter{out: out}
}

type findingLine struct {
	ScanID string `json:"scan_id"`
	types.Finding
}

// Emit writes each finding on its own line.
func (e *JSONEmitter) Emit(_ context.Context, result *orchestrator.ScanResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	encoder := json.NewEncoder(e.out)
	for _, finding := range result.Findings {
		if err := encoder.Encode(findingLine{ScanID: result.ID, Finding: finding}); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op; the writer's lifetime belongs to the caller.
func (e *JSONEmitter) Close() error { return nil }
