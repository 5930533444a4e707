// Package jobfile decodes the YAML job-list format the motionctl-play
// driver consumes. It is a CLI convenience, not the wire protocol or a
// persisted core format: the planner and the rest of this module never
// import it.
package jobfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Segment is a pre-built move, consumed by planner.PlanSegments.
type Segment struct {
	MoveID uint32    `yaml:"move_id"`
	StartV float64   `yaml:"start_v"`
	EndV   float64   `yaml:"end_v"`
	Coords []float64 `yaml:"coords"`
}

// Entry is one job-file line: either an absolute target (To) consumed by
// planner.PlanMoves, or a pre-built Segment. Exactly one of the two is
// set.
type Entry struct {
	To      []float64 `yaml:"to,omitempty"`
	Segment *Segment  `yaml:"segment,omitempty"`
}

// IsSegment reports whether this entry carries a pre-built Segment rather
// than a bare target.
func (e Entry) IsSegment() bool { return e.Segment != nil }

// Job is an ordered list of moves.
type Job []Entry

// Load reads and decodes path into a Job, rejecting any entry that
// carries neither a To target nor a Segment, or both.
func Load(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("jobfile: reading %s: %w", path, err)
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("jobfile: decoding %s: %w", path, err)
	}
	for i, e := range job {
		if e.Segment == nil && e.To == nil {
			return nil, fmt.Errorf("jobfile: entry %d has neither 'to' nor 'segment'", i)
		}
		if e.Segment != nil && e.To != nil {
			return nil, fmt.Errorf("jobfile: entry %d has both 'to' and 'segment'", i)
		}
	}
	return job, nil
}
