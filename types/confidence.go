package types

import (
	"encoding/json"
	"fmt"
)

// Confidence is how certain we are that a finding is real waste.
// Ordering matters: Low < Medium < High < Critical.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
	ConfidenceCritical
)

var confidenceNames = map[Confidence]string{
	ConfidenceLow:      "low",
	ConfidenceMedium:   "medium",
	ConfidenceHigh:     "high",
	ConfidenceCritical: "critical",
}

func (c Confidence) String() string {
	if name, ok := confidenceNames[c]; ok {
		return name
	}
	return fmt.Sprintf("confidence(%d)", int(c))
}

// MarshalJSON encodes confidence as its lowercase name.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes a lowercase confidence name.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for level, n := range confidenceNames {
		if n == name {
			*c = level
			return nil
		}
	}
	return fmt.Errorf("unknown confidence %q", name)
}
