// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"

	a2a "github.com/go-a2a/a2a-taskd"
)

// MessageSliceJSON stores a task's message history in a JSON column.
type MessageSliceJSON struct {
	Messages []*a2a.Message
}

// Value implements the driver.Valuer interface for database storage.
func (ms MessageSliceJSON) Value() (driver.Value, error) {
	if ms.Messages == nil {
		return nil, nil
	}
	return json.Marshal(ms.Messages)
}

// Scan implements the sql.Scanner interface for database retrieval.
func (ms *MessageSliceJSON) Scan(value any) error {
	if value == nil {
		*ms = MessageSliceJSON{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into MessageSliceJSON", value)
	}

	var messages []*a2a.Message
	if err := json.Unmarshal(bytes, &messages); err != nil {
		return fmt.Errorf("cannot unmarshal MessageSliceJSON: %w", err)
	}

	ms.Messages = messages
	return nil
}

// TaskModel is the database row of a task snapshot.
type TaskModel struct {
	ID        string           `gorm:"primaryKey;size:255"`
	SessionID string           `gorm:"size:255;index"`
	State     string           `gorm:"size:16;not null;index"`
	Messages  MessageSliceJSON `gorm:"type:json"`
	Error     string           `gorm:"type:text"`
	CreatedAt time.Time        `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time        `gorm:"autoUpdateTime:false"`
}

// TableName returns the table name for the TaskModel.
func (TaskModel) TableName() string {
	return "tasks"
}

// NewTaskModelFromTask creates a TaskModel from task.
func NewTaskModelFromTask(task *a2a.Task) (*TaskModel, error) {
	if task == nil {
		return nil, errors.New("task cannot be nil")
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("task is invalid: %w", err)
	}

	return &TaskModel{
		ID:        task.ID,
		SessionID: task.SessionID,
		State:     string(task.State),
		Messages:  MessageSliceJSON{Messages: task.Clone().Messages},
		Error:     task.Error,
		CreatedAt: task.CreatedAt,
		UpdatedAt: task.UpdatedAt,
	}, nil
}

// ToTask converts the row back to a task.
func (tm *TaskModel) ToTask() (*a2a.Task, error) {
	task := &a2a.Task{
		ID:        tm.ID,
		SessionID: tm.SessionID,
		State:     a2a.TaskState(tm.State),
		Messages:  tm.Messages.Messages,
		Error:     tm.Error,
		CreatedAt: tm.CreatedAt.UTC(),
		UpdatedAt: tm.UpdatedAt.UTC(),
	}
	if task.Messages == nil {
		task.Messages = []*a2a.Message{}
	}
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("task model is invalid: %w", err)
	}
	return task, nil
}

func (tm *TaskModel) String() string {
	return fmt.Sprintf("TaskModel{ID: %s, State: %s}", tm.ID, tm.State)
}
