package taskcontext

import (
	"time"

	"github.com/google/uuid"
)

// XComStore is the subset of the result store a task instance needs.
type XComStore interface {
	Set(key string, value any, taskID, dagID string) error
	GetMany(key string, taskIDs, dagIDs []string) []any
}

// TaskInstance is one execution attempt of a task.
type TaskInstance struct {
	Task          Task
	DagID         string
	TaskID        string
	ExecutionDate time.Time
	RunID         string
	TryNumber     int
	CorrelationID string

	store XComStore
}

// NewTaskInstance creates the single attempt for task. The run id follows the
// cli__<ts_nodash> convention of manually triggered runs.
func NewTaskInstance(task Task, dagID string, executionDate time.Time, store XComStore) *TaskInstance {
	return &TaskInstance{
		Task:          task,
		DagID:         dagID,
		TaskID:        task.TaskID(),
		ExecutionDate: executionDate,
		RunID:         "cli__" + TSNoDash(executionDate),
		TryNumber:     1,
		CorrelationID: uuid.NewString(),
		store:         store,
	}
}

// XComPush stores value under key for this task instance.
func (ti *TaskInstance) XComPush(key string, value any) error {
	return ti.store.Set(key, value, ti.TaskID, ti.DagID)
}

// XComPull reads key from the given tasks of dagID. An empty dagID means this
// task's own DAG; no task ids means this task.
func (ti *TaskInstance) XComPull(key string, taskIDs []string, dagID string) []any {
	if dagID == "" {
		dagID = ti.DagID
	}
	if len(taskIDs) == 0 {
		taskIDs = []string{ti.TaskID}
	}
	return ti.store.GetMany(key, taskIDs, []string{dagID})
}
