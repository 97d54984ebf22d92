package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/models"
)

// ListTasks returns all active tasks with the caller's completion flags.
func (s *Service) ListTasks(ctx context.Context, tgID int64) ([]*models.TaskView, error) {
	tasks, err := s.repo.ActiveTasks()
	if err != nil {
		return nil, err
	}
	completed, err := s.repo.CompletedTaskIDs(tgID)
	if err != nil {
		return nil, err
	}

	views := make([]*models.TaskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, &models.TaskView{
			Task:      *task,
			Completed: completed[task.ID],
		})
	}
	return views, nil
}

// CompleteTask records a completion and credits the reward once. A repeat
// completion fails with ErrAlreadyCompleted and credits nothing.
func (s *Service) CompleteTask(ctx context.Context, tgID int64, taskID string) (*models.TaskResult, error) {
	id, err := uuid.Parse(taskID)
	if err != nil {
		return nil, models.ErrTaskNotFound
	}
	task, err := s.repo.GetTask(id)
	if err != nil {
		return nil, err
	}
	if !task.IsActive {
		return nil, models.ErrTaskNotFound
	}
	if _, err := s.repo.GetUser(tgID); err != nil {
		return nil, err
	}

	var newBalance decimal.Decimal
	err = s.repo.WithTx(func(repo models.Repository) error {
		if err := repo.CreateTaskCompletion(&models.TaskCompletion{
			TgID:   tgID,
			TaskID: task.ID,
		}); err != nil {
			return err
		}
		if err := creditBalance(repo, tgID, task.ChartsReward, ReasonTaskReward); err != nil {
			return err
		}
		user, err := repo.GetUser(tgID)
		if err != nil {
			return err
		}
		newBalance = user.BalanceCharts
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrAlreadyCompleted) {
			return nil, models.ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("failed to complete task %s: %s", taskID, err)
	}

	s.logger.Info("Task completed ", "tg_id ", tgID, "task ", task.ID, "reward ", task.ChartsReward)
	return &models.TaskResult{
		ChartsAdded: task.ChartsReward,
		NewBalance:  newBalance,
	}, nil
}
