// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	a2a "github.com/go-a2a/a2a-taskd"
)

// DatabaseFileName is the name of the SQLite file created inside the storage directory.
const DatabaseFileName = "tasks.db"

// DatabaseTaskStore is a [Persister] writing task snapshots to a database through GORM.
type DatabaseTaskStore struct {
	db          *gorm.DB
	createTable bool
}

var _ Persister = (*DatabaseTaskStore)(nil)

// DatabaseTaskStoreConfig holds configuration for DatabaseTaskStore.
type DatabaseTaskStoreConfig struct {
	DB          *gorm.DB
	CreateTable bool // Whether to create the table if it doesn't exist
}

// NewDatabaseTaskStore creates a new DatabaseTaskStore.
func NewDatabaseTaskStore(config DatabaseTaskStoreConfig) (*DatabaseTaskStore, error) {
	if config.DB == nil {
		return nil, errors.New("database connection cannot be nil")
	}

	return &DatabaseTaskStore{
		db:          config.DB,
		createTable: config.CreateTable,
	}, nil
}

// OpenSQLite opens the SQLite database kept in dir, creating dir if needed.
func OpenSQLite(dir string) (*gorm.DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, DatabaseFileName)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	return db, nil
}

// Save persists a task snapshot to the database.
func (s *DatabaseTaskStore) Save(ctx context.Context, task *a2a.Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	model, err := NewTaskModelFromTask(task)
	if err != nil {
		return NewTaskValidationError(task.ID, err)
	}

	// Save handles both create and update.
	if err := s.db.WithContext(ctx).Save(model).Error; err != nil {
		return NewTaskStoreError("save", task.ID, err)
	}

	return nil
}

// Get retrieves the last persisted snapshot of a task.
func (s *DatabaseTaskStore) Get(ctx context.Context, taskID string) (*a2a.Task, error) {
	if taskID == "" {
		return nil, errors.New("task ID cannot be empty")
	}

	var model TaskModel
	if err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &a2a.TaskNotFoundError{TaskID: taskID}
		}
		return nil, NewTaskStoreError("get", taskID, err)
	}

	task, err := model.ToTask()
	if err != nil {
		return nil, NewTaskStoreError("get", taskID, fmt.Errorf("failed to convert model to task: %w", err))
	}

	return task, nil
}

// Count returns the number of persisted tasks, optionally restricted to one state.
func (s *DatabaseTaskStore) Count(ctx context.Context, state a2a.TaskState) (int64, error) {
	query := s.db.WithContext(ctx).Model(&TaskModel{})
	if state != "" {
		query = query.Where("state = ?", string(state))
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, NewTaskStoreError("count", "", err)
	}
	return count, nil
}

// Initialize prepares the database for use.
func (s *DatabaseTaskStore) Initialize(ctx context.Context) error {
	if !s.createTable {
		return nil
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&TaskModel{}); err != nil {
		return NewTaskStoreError("initialize", "", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *DatabaseTaskStore) Close(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return NewTaskStoreError("close", "", err)
	}
	return sqlDB.Close()
}
