package models

import (
	"time"

	"gorm.io/datatypes"
)

// DailyStat is a stored snapshot of one day's activity.
type DailyStat struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Date           time.Time      `gorm:"type:date;not null;uniqueIndex"` // Snapshot day.
	TotalMessages  int64          `gorm:"not null;default:0"`
	TotalUsers     int64          `gorm:"not null;default:0"`
	TotalGroups    int64          `gorm:"not null;default:0"`
	NewUsers       int64          `gorm:"not null;default:0"`
	ActiveUsers    int64          `gorm:"not null;default:0"`
	MessagesByType datatypes.JSON `gorm:"not null;default:'{}'"` // message_type -> count.
	TopKeywords    datatypes.JSON `gorm:"not null;default:'[]'"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
}

// TableName binds DailyStat to the daily_stats table.
func (DailyStat) TableName() string { return "daily_stats" }

// WorkflowLog records one external automation run.
type WorkflowLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	WorkflowName  string         `gorm:"type:varchar(100);not null;default:''"`
	ExecutionID   string         `gorm:"type:varchar(100);not null;default:''"`
	Status        string         `gorm:"type:varchar(50);not null;default:''"`
	InputData     datatypes.JSON // Workflow input payload.
	OutputData    datatypes.JSON // Workflow output payload.
	ErrorMessage  string         `gorm:"type:text;not null;default:''"`
	ExecutionTime int64          `gorm:"not null;default:0"` // Milliseconds.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName binds WorkflowLog to the workflow_logs table.
func (WorkflowLog) TableName() string { return "workflow_logs" }
