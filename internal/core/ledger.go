package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/models"
)

// Ledger entry reasons.
const (
	ReasonStarsPayment = "stars payment"
	ReasonTonPayment   = "ton payment"
	ReasonTaskReward   = "task reward"
	ReasonActivation   = "charts activation"
)

// creditBalance applies a credit and its ledger entry inside the caller's
// repository scope. Callers are expected to run it inside WithTx.
func creditBalance(repo models.Repository, tgID int64, amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if err := repo.CreditBalance(tgID, amount); err != nil {
		return err
	}
	return repo.CreateLedgerEntry(&models.LedgerEntry{
		TgID:   tgID,
		Type:   models.LedgerCredit,
		Amount: amount,
		Reason: reason,
	})
}

// Credit adds charts to a balance together with its audit entry, in one
// transaction. The only credit path in the system; donations never come
// from credits directly.
func (s *Service) Credit(ctx context.Context, tgID int64, amount decimal.Decimal, reason string) error {
	return s.repo.WithTx(func(repo models.Repository) error {
		return creditBalance(repo, tgID, amount, reason)
	})
}

// ActivateCharts debits the user's balance and turns the amount into a
// donation row on the current week's board. Debit, ledger entry and
// donation commit atomically, a failed debit leaves no board row behind.
func (s *Service) ActivateCharts(ctx context.Context, tgID int64, amount decimal.Decimal) (*models.Activation, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}

	weekKey := s.currentWeekKey()
	var newBalance decimal.Decimal
	err := s.repo.WithTx(func(repo models.Repository) error {
		if err := repo.DebitBalance(tgID, amount); err != nil {
			return err
		}
		if err := repo.CreateLedgerEntry(&models.LedgerEntry{
			TgID:   tgID,
			Type:   models.LedgerDebit,
			Amount: amount,
			Reason: ReasonActivation,
		}); err != nil {
			return err
		}
		if err := repo.CreateDonation(&models.Donation{
			ID:         uuid.New(),
			TgID:       tgID,
			TonsAmount: amount,
			WeekKey:    weekKey,
		}); err != nil {
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
		return nil, err
	}

	s.logger.Info("Charts activated ", "tg_id ", tgID, "amount ", amount, "week ", weekKey)
	return &models.Activation{
		Activated:  amount,
		NewBalance: newBalance,
		WeekKey:    weekKey,
	}, nil
}
