package task

import (
	"time"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusQueued  Status = "QUEUED"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// HoldsSlot reports whether a task in this state occupies an admission slot.
// PENDING is only ever assigned to admitted tasks.
func (s Status) HoldsSlot() bool {
	return s == StatusPending || s == StatusRunning
}

// NodeInfo is one field descriptor of a remote application's input form.
type NodeInfo struct {
	NodeID      string `json:"nodeId" validate:"required"`
	NodeName    string `json:"nodeName,omitempty"`
	FieldName   string `json:"fieldName" validate:"required"`
	FieldValue  string `json:"fieldValue"`
	FieldType   string `json:"fieldType,omitempty"`
	Description string `json:"description,omitempty"`
	FieldData   string `json:"fieldData,omitempty"`
}

// Output is a single generated artifact.
type Output struct {
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType,omitempty"`
}

// Credentials identify who submits the task and to which remote application.
type Credentials struct {
	APIKey   string `json:"-"`
	WebappID string `json:"webapp_id"`
}

type Task struct {
	ID            string      `json:"id"`
	RemoteTaskID  string      `json:"remote_task_id,omitempty"`
	AppID         string      `json:"app_id"`
	AppName       string      `json:"app_name"`
	Status        Status      `json:"status"`
	Progress      int         `json:"progress"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	Params        []NodeInfo  `json:"params"`
	Credentials   Credentials `json:"credentials"`
	QueuePosition int         `json:"queue_position,omitempty"`
	BatchID       string      `json:"batch_id,omitempty"`
	BatchIndex    int         `json:"batch_index,omitempty"`
	BatchTotal    int         `json:"batch_total,omitempty"`
	Result        []Output    `json:"result,omitempty"`
	Error         string      `json:"error,omitempty"`

	// Seq is the insertion order within the store.
	Seq int64 `json:"-"`
}

// Clone returns a copy that shares no slices with t.
func (t Task) Clone() Task {
	c := t
	if t.Params != nil {
		c.Params = append([]NodeInfo(nil), t.Params...)
	}
	if t.Result != nil {
		c.Result = append([]Output(nil), t.Result...)
	}
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	return c
}

type TaskFilters struct {
	Status *Status
}

// Match reports whether t satisfies the filters.
func (f TaskFilters) Match(t Task) bool {
	if f.Status != nil && t.Status != *f.Status {
		return false
	}
	return true
}
