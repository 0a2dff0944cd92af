package gorm

import (
	"context"
	"fmt"
	"time"

	"hubrunner/domain/task"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HistoryTable is the fixed storage name of the terminal task snapshot.
const HistoryTable = "task_history"

// TaskRecord is the persisted form of a terminal task.
type TaskRecord struct {
	ID            string `gorm:"primaryKey;size:64"`
	Seq           int64  `gorm:"index"`
	RemoteTaskID  string `gorm:"size:128"`
	AppID         string `gorm:"size:128;index"`
	AppName       string
	Status        string `gorm:"size:16;index"`
	Progress      int
	StartTime     time.Time
	EndTime       *time.Time
	Params        datatypes.JSONSlice[task.NodeInfo]
	APIKey        string
	WebappID      string `gorm:"size:128"`
	QueuePosition int
	BatchID       string `gorm:"size:64"`
	BatchIndex    int
	BatchTotal    int
	Result        datatypes.JSONSlice[task.Output]
	Error         string
}

func (TaskRecord) TableName() string {
	return HistoryTable
}

func toRecord(t task.Task) TaskRecord {
	return TaskRecord{
		ID:            t.ID,
		Seq:           t.Seq,
		RemoteTaskID:  t.RemoteTaskID,
		AppID:         t.AppID,
		AppName:       t.AppName,
		Status:        string(t.Status),
		Progress:      t.Progress,
		StartTime:     t.StartTime,
		EndTime:       t.EndTime,
		Params:        datatypes.JSONSlice[task.NodeInfo](t.Params),
		APIKey:        t.Credentials.APIKey,
		WebappID:      t.Credentials.WebappID,
		QueuePosition: t.QueuePosition,
		BatchID:       t.BatchID,
		BatchIndex:    t.BatchIndex,
		BatchTotal:    t.BatchTotal,
		Result:        datatypes.JSONSlice[task.Output](t.Result),
		Error:         t.Error,
	}
}

func (r TaskRecord) toTask() task.Task {
	return task.Task{
		ID:           r.ID,
		Seq:          r.Seq,
		RemoteTaskID: r.RemoteTaskID,
		AppID:        r.AppID,
		AppName:      r.AppName,
		Status:       task.Status(r.Status),
		Progress:     r.Progress,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Params:       []task.NodeInfo(r.Params),
		Credentials: task.Credentials{
			APIKey:   r.APIKey,
			WebappID: r.WebappID,
		},
		QueuePosition: r.QueuePosition,
		BatchID:       r.BatchID,
		BatchIndex:    r.BatchIndex,
		BatchTotal:    r.BatchTotal,
		Result:        []task.Output(r.Result),
		Error:         r.Error,
	}
}

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) task.HistoryRepository {
	return &TaskRepository{db: db}
}

// Migrate creates the history table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&TaskRecord{})
}

// ReplaceAll swaps the whole snapshot in one transaction. Records that are not
// terminal are rejected so a partial write never leaks in-flight state.
func (r *TaskRepository) ReplaceAll(ctx context.Context, tasks []task.Task) error {
	records := make([]TaskRecord, 0, len(tasks))
	for _, t := range tasks {
		if !t.Status.IsTerminal() {
			return fmt.Errorf("task %s is %s, only terminal tasks are persisted", t.ID, t.Status)
		}
		records = append(records, toRecord(t))
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&TaskRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear history: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("failed to write history: %w", err)
		}
		return nil
	})
}

func (r *TaskRepository) FindAll(ctx context.Context) ([]task.Task, error) {
	var records []TaskRecord
	err := r.db.WithContext(ctx).Order("seq desc").Find(&records).Error
	if err != nil {
		return nil, err
	}

	tasks := make([]task.Task, 0, len(records))
	for _, rec := range records {
		tasks = append(tasks, rec.toTask())
	}
	return tasks, nil
}
