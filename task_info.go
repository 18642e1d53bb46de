package taskstats

import (
	"encoding/json"
	"time"

	kerrors "github.com/influxdata/taskstats/kit/errors"
)

// TaskInfo is an immutable report on a task as returned by task listings.
type TaskInfo struct {
	TaskID        TaskID
	Type          string
	Action        string
	Description   string
	StartTime     time.Time
	RunningTime   time.Duration
	Cancellable   bool
	Cancelled     bool
	ParentTaskID  TaskID
	Headers       map[string]string
	ResourceStats map[string]map[string]int64
}

// NewTaskInfo validates and returns a TaskInfo. A task that is not
// cancellable can not be reported as cancelled.
func NewTaskInfo(
	id TaskID,
	typ, action, description string,
	startTime time.Time,
	runningTime time.Duration,
	cancellable, cancelled bool,
	parent TaskID,
	headers map[string]string,
	resourceStats map[string]map[string]int64,
) (TaskInfo, error) {
	if !cancellable && cancelled {
		return TaskInfo{}, kerrors.Invalidf("taskstats.NewTaskInfo", "task cannot be cancelled")
	}
	return TaskInfo{
		TaskID:        id,
		Type:          typ,
		Action:        action,
		Description:   description,
		StartTime:     startTime,
		RunningTime:   runningTime,
		Cancellable:   cancellable,
		Cancelled:     cancelled,
		ParentTaskID:  parent,
		Headers:       headers,
		ResourceStats: resourceStats,
	}, nil
}

// TaskInfo builds the report of t as it runs on node.
func (t *Task) TaskInfo(node string) (TaskInfo, error) {
	stats := make(map[string]map[string]int64)
	for _, s := range t.ResourceSnapshots() {
		stats[s.Phase()] = s.Map()
	}
	return NewTaskInfo(
		NewTaskID(node, t.ID()),
		t.Type(),
		t.Action(),
		t.Description(),
		t.StartTime(),
		t.RunningTime(),
		t.Cancellable(),
		t.Cancelled(),
		t.ParentTaskID(),
		t.Headers(),
		stats,
	)
}

type taskInfoJSON struct {
	Node               string                      `json:"node"`
	ID                 int64                       `json:"id"`
	Type               string                      `json:"type"`
	Action             string                      `json:"action"`
	Description        string                      `json:"description,omitempty"`
	StartTimeInMillis  int64                       `json:"start_time_in_millis"`
	RunningTimeInNanos int64                       `json:"running_time_in_nanos"`
	Cancellable        bool                        `json:"cancellable"`
	Cancelled          *bool                       `json:"cancelled,omitempty"`
	ParentTaskID       string                      `json:"parent_task_id,omitempty"`
	Headers            map[string]string           `json:"headers"`
	ResourceStats      map[string]map[string]int64 `json:"resource_stats,omitempty"`
}

// MarshalJSON renders the task info in the task listing format.
func (i TaskInfo) MarshalJSON() ([]byte, error) {
	v := taskInfoJSON{
		Node:               i.TaskID.NodeID,
		ID:                 i.TaskID.ID,
		Type:               i.Type,
		Action:             i.Action,
		Description:        i.Description,
		StartTimeInMillis:  i.StartTime.UnixMilli(),
		RunningTimeInNanos: i.RunningTime.Nanoseconds(),
		Cancellable:        i.Cancellable,
		Headers:            i.Headers,
		ResourceStats:      i.ResourceStats,
	}
	if v.Headers == nil {
		v.Headers = map[string]string{}
	}
	if i.Cancellable {
		cancelled := i.Cancelled
		v.Cancelled = &cancelled
	}
	if i.ParentTaskID.IsSet() {
		v.ParentTaskID = i.ParentTaskID.String()
	}
	return json.Marshal(v)
}

// UnmarshalJSON parses the task listing format, applying the same
// validation as NewTaskInfo.
func (i *TaskInfo) UnmarshalJSON(data []byte) error {
	var v taskInfoJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	parent, err := ParseTaskID(v.ParentTaskID)
	if err != nil {
		return err
	}
	info, err := NewTaskInfo(
		NewTaskID(v.Node, v.ID),
		v.Type,
		v.Action,
		v.Description,
		time.UnixMilli(v.StartTimeInMillis),
		time.Duration(v.RunningTimeInNanos),
		v.Cancellable,
		v.Cancelled != nil && *v.Cancelled,
		parent,
		v.Headers,
		v.ResourceStats,
	)
	if err != nil {
		return err
	}
	*i = info
	return nil
}
