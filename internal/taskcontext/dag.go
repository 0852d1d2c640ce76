// Package taskcontext fabricates the runtime values an operator expects to
// receive: a parent DAG, a task instance and the templated date fields.
package taskcontext

import "time"

// DummyDagID names the throwaway DAG every standalone task belongs to.
const DummyDagID = "dummy_dag"

// Task is the minimal view of an operator the context needs.
type Task interface {
	TaskID() string
}

// DAG is a disposable parent workflow. It carries no schedule and no other tasks.
type DAG struct {
	DagID       string
	DefaultArgs map[string]any
	Schedule    *string
}

// NewDummyDAG builds the parent DAG with owner "airflow" and a start date of
// midnight yesterday relative to now.
func NewDummyDAG(now time.Time) *DAG {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return &DAG{
		DagID: DummyDagID,
		DefaultArgs: map[string]any{
			"owner":      "airflow",
			"start_date": today.AddDate(0, 0, -1),
		},
	}
}
