package taskstats

import (
	"strconv"
	"strings"

	kerrors "github.com/influxdata/taskstats/kit/errors"
)

// EmptyTaskID is the TaskID of a task without a parent.
var EmptyTaskID = TaskID{ID: -1}

// TaskID identifies a task across the cluster: the node it runs on and the
// node-local sequence number.
type TaskID struct {
	NodeID string
	ID     int64
}

// NewTaskID returns the TaskID of task id on node.
func NewTaskID(node string, id int64) TaskID {
	if node == "" {
		return EmptyTaskID
	}
	return TaskID{NodeID: node, ID: id}
}

// IsSet reports whether the id names a task.
func (id TaskID) IsSet() bool {
	return id.ID != -1 && id.NodeID != ""
}

// String returns "node:id", or "unset" for EmptyTaskID.
func (id TaskID) String() string {
	if !id.IsSet() {
		return "unset"
	}
	return id.NodeID + ":" + strconv.FormatInt(id.ID, 10)
}

// ParseTaskID parses the form returned by String.
func ParseTaskID(s string) (TaskID, error) {
	if s == "" || s == "unset" {
		return EmptyTaskID, nil
	}
	i := strings.LastIndexByte(s, ':')
	if i <= 0 || i == len(s)-1 {
		return EmptyTaskID, kerrors.Invalidf("taskstats.ParseTaskID", "malformed task id %q", s)
	}
	n, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return EmptyTaskID, &kerrors.Error{
			Code: kerrors.EInvalid,
			Op:   "taskstats.ParseTaskID",
			Msg:  "malformed task id " + strconv.Quote(s),
			Err:  err,
		}
	}
	return TaskID{NodeID: s[:i], ID: n}, nil
}
