package farm

import (
	"time"

	"github.com/google/uuid"
)

// RunReport is the outcome of one dispatch run. Results are in completion
// order for the dynamic policy and drain order for the static one; they do not
// line up with the generated inputs.
type RunReport struct {
	RunID         uuid.UUID        `json:"run_id" yaml:"run_id"`
	Policy        Policy           `json:"policy" yaml:"policy"`
	QueueOrder    QueueOrder       `json:"queue_order" yaml:"queue_order"`
	Workers       int              `json:"workers" yaml:"workers"`
	Items         int              `json:"items" yaml:"items"`
	Results       []float64        `json:"results" yaml:"results"`
	Assignments   map[WorkerID]int `json:"assignments" yaml:"assignments"`
	TasksSent     int              `json:"tasks_sent" yaml:"tasks_sent"`
	SentinelsSent int              `json:"sentinels_sent" yaml:"sentinels_sent"`
	StartedAt     time.Time        `json:"started_at" yaml:"started_at"`
	Elapsed       time.Duration    `json:"elapsed" yaml:"elapsed"`
}

// NewRunReport starts an empty report for a run over items work items.
func NewRunReport(policy Policy, order QueueOrder, workers, items int, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:       uuid.New(),
		Policy:      policy,
		QueueOrder:  order,
		Workers:     workers,
		Items:       items,
		Results:     make([]float64, 0, items),
		Assignments: make(map[WorkerID]int, workers),
		StartedAt:   startedAt,
	}
}

// RecordAssignment counts one task sent to id.
func (r *RunReport) RecordAssignment(id WorkerID) {
	r.Assignments[id]++
	r.TasksSent++
}

// RecordResult appends a result in arrival order.
func (r *RunReport) RecordResult(v float64) { r.Results = append(r.Results, v) }

// RecordSentinel counts one termination sentinel sent.
func (r *RunReport) RecordSentinel() { r.SentinelsSent++ }

// Complete reports whether every item produced a result and every worker was
// terminated.
func (r *RunReport) Complete() bool {
	return len(r.Results) == r.Items && r.TasksSent == r.Items && r.SentinelsSent == r.Workers
}
