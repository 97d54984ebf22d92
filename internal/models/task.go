package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Task is a static reward definition. Completing it credits the balance once.
type Task struct {
	ID           uuid.UUID       `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	Type         string          `json:"type" gorm:"column:type;size:50;not null"`
	Title        string          `json:"title" gorm:"column:title;not null"`
	Description  string          `json:"description" gorm:"column:description"`
	ChartsReward decimal.Decimal `json:"charts_reward" gorm:"column:charts_reward;type:numeric(10,2);not null"`
	Config       string          `json:"config" gorm:"column:config"`
	IsActive     bool            `json:"is_active" gorm:"column:is_active;not null;default:true"`
	SortOrder    int             `json:"sort_order" gorm:"column:sort_order;not null;default:0"`
	CreatedAt    time.Time       `json:"created_at" gorm:"column:created_at;not null"`
}

// TaskCompletion marks a task completed by a user, at most once per (user, task).
type TaskCompletion struct {
	ID        int64     `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	TgID      int64     `json:"tg_id" gorm:"column:tg_id;not null;uniqueIndex:idx_task_completion_user_task"`
	TaskID    uuid.UUID `json:"task_id" gorm:"column:task_id;type:uuid;not null;uniqueIndex:idx_task_completion_user_task"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;not null"`
}

// TaskView is a task together with the caller's completion flag.
type TaskView struct {
	Task
	Completed bool `json:"completed"`
}
