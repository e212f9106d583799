package core

import (
	"time"

	"github.com/JonMunkholm/crm/internal/milestone"
)

// ImportPhase indicates how far an import got.
type ImportPhase string

const (
	PhaseComplete  ImportPhase = "complete"
	PhaseAborted   ImportPhase = "aborted"
	PhaseCancelled ImportPhase = "cancelled"
)

// ImportResult is returned by Service.Import. The embedded Summary is
// flattened into the JSON payload.
type ImportResult struct {
	ImportID string      `json:"import_id"`
	FileName string      `json:"file_name,omitempty"`
	Phase    ImportPhase `json:"phase"`
	Rows     int         `json:"rows"`
	Summary
	Duration time.Duration `json:"-"`
}

// MilestoneOption is one entry of a milestone choice list.
type MilestoneOption struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Emoji string `json:"emoji"`
}

// MilestoneCount is the number of companies at one milestone.
type MilestoneCount struct {
	MilestoneOption
	Count int64 `json:"count"`
}

// MilestoneStats is the dashboard breakdown, in milestone order.
type MilestoneStats struct {
	Total  int64            `json:"total"`
	Counts []MilestoneCount `json:"counts"`
}

func optionFor(m milestone.Milestone) MilestoneOption {
	return MilestoneOption{Key: string(m), Label: m.Label(), Emoji: m.Emoji()}
}
