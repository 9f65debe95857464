package orchestrator

import (
	"time"

	"github.com/yairfalse/scrimp/types"
)

// ScanRequest describes one scan: which owner's rules apply, which
// provider's adapter to use, and the (resource type, region) space to cover.
type ScanRequest struct {
	Owner         string   `json:"owner,omitempty"`
	Provider      string   `json:"provider"`
	Regions       []string `json:"regions"`
	ResourceTypes []string `json:"resource_types,omitempty"`
}

// SkippedPair records one (resource type, region) listing that failed.
// Skips are informational; the rest of the scan carries on.
type SkippedPair struct {
	ResourceType string `json:"resource_type"`
	Region       string `json:"region"`
	Reason       string `json:"reason"`
}

// ScanResult is the flat output of one scan. Findings carry no ordering
// guarantee; callers needing determinism sort by cost or resource ID.
type ScanResult struct {
	ID           string          `json:"id"`
	Provider     string          `json:"provider"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Duration     time.Duration   `json:"duration"`
	PairsTotal   int             `json:"pairs_total"`
	PairsScanned int             `json:"pairs_scanned"`
	Findings     []types.Finding `json:"findings"`
	Skipped      []SkippedPair   `json:"skipped,omitempty"`
}

// pair is one unit of scan work.
type pair struct {
	resourceType string
	region       string
}
