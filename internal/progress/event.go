// Package progress carries ingestion progress events from the pipeline to
// any number of per-job subscribers.
package progress

import (
	"encoding/json"
	"fmt"
)

// Stage is a step of the ingestion state machine.
type Stage int

const (
	Fetching Stage = iota + 1
	Downloading
	Segmenting
	Transcribing
	Completed
	Failed
)

var stageNames = map[Stage]string{
	Fetching:     "fetching",
	Downloading:  "downloading",
	Segmenting:   "segmenting",
	Transcribing: "transcribing",
	Completed:    "completed",
	Failed:       "failed",
}

func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no event follows s for the same job.
func (s Stage) Terminal() bool {
	return s == Completed || s == Failed
}

func (s Stage) MarshalJSON() ([]byte, error) {
	name, ok := stageNames[s]
	if !ok {
		return nil, fmt.Errorf("progress: unknown stage %d", int(s))
	}
	return json.Marshal(name)
}

func (s *Stage) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for stage, n := range stageNames {
		if n == name {
			*s = stage
			return nil
		}
	}
	return fmt.Errorf("progress: unknown stage %q", name)
}

// Event is one progress notification. Percent is nil when the stage has no
// meaningful completion ratio.
type Event struct {
	JobID   string   `json:"jobId"`
	Stage   Stage    `json:"status"`
	Message string   `json:"message"`
	Percent *float64 `json:"progress,omitempty"`
	Segment int      `json:"segment,omitempty"`
	Total   int      `json:"total,omitempty"`
	Error   string   `json:"error,omitempty"`
	Origin  string   `json:"origin,omitempty"`
}

// Percent returns a pointer to p clamped to [0, 100].
func Percent(p float64) *float64 {
	switch {
	case p < 0:
		p = 0
	case p > 100:
		p = 100
	}
	return &p
}
