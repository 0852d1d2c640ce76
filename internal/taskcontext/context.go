package taskcontext

import (
	"fmt"
	"strings"
	"time"
)

// Context is the mapping handed to operator hooks. Every key listed in Keys is
// always present; keys with nothing to offer hold nil because operator code
// indexes them unconditionally.
type Context map[string]any

// Keys enumerates the context keys in a stable order.
var Keys = []string{
	"conf",
	"conn",
	"dag",
	"dag_run",
	"data_interval_end",
	"data_interval_start",
	"ds",
	"ds_nodash",
	"inlets",
	"macros",
	"outlets",
	"params",
	"prev_data_interval_end_success",
	"prev_data_interval_start_success",
	"prev_execution_date_success",
	"run_id",
	"task",
	"task_instance",
	"task_instance_key_str",
	"test_mode",
	"ti",
	"ts",
	"ts_nodash",
	"ts_nodash_with_tz",
	"var",
}

const (
	dsLayout       = "2006-01-02"
	dsNoDashLayout = "20060102"
	tsNoDashLayout = "20060102T150405"
)

// DS formats t as the date-only stamp.
func DS(t time.Time) string {
	return t.Format(dsLayout)
}

// DSNoDash formats t as the compact date stamp.
func DSNoDash(t time.Time) string {
	return strings.ReplaceAll(DS(t), "-", "")
}

// TS formats t as an ISO-8601 timestamp with numeric offset. Microseconds are
// printed only when non-zero.
func TS(t time.Time) string {
	base := t.Format("2006-01-02T15:04:05")
	if micros := t.Nanosecond() / 1000; micros != 0 {
		base += fmt.Sprintf(".%06d", micros)
	}
	return base + t.Format("-07:00")
}

// TSNoDash formats t as the compact timestamp without zone.
func TSNoDash(t time.Time) string {
	return t.Format(tsNoDashLayout)
}

// TSNoDashWithTZ is TS with every '-' and ':' removed.
func TSNoDashWithTZ(t time.Time) string {
	return strings.NewReplacer("-", "", ":", "").Replace(TS(t))
}

// BuildInput gathers what Build needs. Start is the single instant every date
// field derives from.
type BuildInput struct {
	DAG    *DAG
	Task   Task
	Start  time.Time
	Store  XComStore
	Params map[string]any
}

// Build fabricates the execution context for one task run.
func Build(in BuildInput) Context {
	ti := NewTaskInstance(in.Task, in.DAG.DagID, in.Start, in.Store)
	ds := DS(in.Start)
	dsNoDash := DSNoDash(in.Start)

	ctx := make(Context, len(Keys))
	for _, key := range Keys {
		ctx[key] = nil
	}

	ctx["dag"] = in.DAG
	ctx["data_interval_start"] = in.Start
	ctx["ds"] = ds
	ctx["ds_nodash"] = dsNoDash
	ctx["macros"] = Macros()
	ctx["task"] = in.Task
	ctx["task_instance"] = ti
	ctx["ti"] = ti
	ctx["task_instance_key_str"] = fmt.Sprintf("%s__%s__%s", in.DAG.DagID, in.Task.TaskID(), dsNoDash)
	ctx["test_mode"] = false
	ctx["ts"] = TS(in.Start)
	ctx["ts_nodash"] = TSNoDash(in.Start)
	ctx["ts_nodash_with_tz"] = TSNoDashWithTZ(in.Start)
	if len(in.Params) > 0 {
		ctx["params"] = in.Params
	}
	return ctx
}

// TaskInstance returns the context's task instance, or nil.
func (c Context) TaskInstance() *TaskInstance {
	ti, _ := c["task_instance"].(*TaskInstance)
	return ti
}

// Task returns the operator the context was built for.
func (c Context) Task() Task {
	task, _ := c["task"].(Task)
	return task
}

// DAG returns the parent DAG, or nil.
func (c Context) DAG() *DAG {
	dag, _ := c["dag"].(*DAG)
	return dag
}

// String returns a string-valued key or "".
func (c Context) String(key string) string {
	s, _ := c[key].(string)
	return s
}

// EnvVars returns the AIRFLOW_CTX_* variables operators export to the
// processes they start.
func (c Context) EnvVars(owner string) map[string]string {
	vars := map[string]string{}
	if owner != "" {
		vars["AIRFLOW_CTX_DAG_OWNER"] = owner
	}
	ti := c.TaskInstance()
	if ti == nil {
		return vars
	}
	vars["AIRFLOW_CTX_DAG_ID"] = ti.DagID
	vars["AIRFLOW_CTX_TASK_ID"] = ti.TaskID
	vars["AIRFLOW_CTX_EXECUTION_DATE"] = TS(ti.ExecutionDate)
	vars["AIRFLOW_CTX_TRY_NUMBER"] = fmt.Sprint(ti.TryNumber)
	vars["AIRFLOW_CTX_DAG_RUN_ID"] = ti.RunID
	return vars
}
