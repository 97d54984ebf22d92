package core

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/models"
)

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 || limit > s.cfg.LeaderboardLimit {
		return 50
	}
	return limit
}

func (s *Service) AllTimeLeaderboard(ctx context.Context, limit, offset int) ([]*models.LeaderboardRow, error) {
	return s.repo.AllTimeLeaderboard(s.clampLimit(limit), offset)
}

// WeekLeaderboard with an empty weekKey reads the current week.
func (s *Service) WeekLeaderboard(ctx context.Context, weekKey string, limit, offset int) ([]*models.LeaderboardRow, error) {
	if weekKey == "" {
		weekKey = s.currentWeekKey()
	}
	return s.repo.WeekLeaderboard(weekKey, s.clampLimit(limit), offset)
}

func (s *Service) ReferralLeaderboard(ctx context.Context, limit, offset int) ([]*models.ReferralRow, error) {
	return s.repo.ReferralLeaderboard(s.clampLimit(limit), offset)
}

func (s *Service) TotalCollected(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.TotalCollected()
}

// UserStats aggregates a user's leaderboard standing. Rank is one plus the
// number of users with a strictly greater total; a user without donations
// has rank 0, meaning unranked.
func (s *Service) UserStats(ctx context.Context, tgID int64) (*models.UserStats, error) {
	if _, err := s.repo.GetUser(tgID); err != nil {
		return nil, err
	}

	weekKey := s.currentWeekKey()
	allTime, week, err := s.repo.UserDonationTotals(tgID, weekKey)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate donations: %s", err)
	}

	stats := &models.UserStats{
		TgID:        tgID,
		TonsAllTime: allTime,
		TonsWeek:    week,
		WeekKey:     weekKey,
	}

	if allTime.IsPositive() {
		greater, err := s.repo.AllTimeRank(allTime)
		if err != nil {
			return nil, fmt.Errorf("failed to rank all-time: %s", err)
		}
		stats.RankAllTime = greater + 1
	}
	if week.IsPositive() {
		greater, err := s.repo.WeekRank(weekKey, week)
		if err != nil {
			return nil, fmt.Errorf("failed to rank week: %s", err)
		}
		stats.RankWeek = greater + 1
	}

	stats.ReferralsCount, stats.ReferralsTotal, err = s.repo.ReferralStats(tgID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate referrals: %s", err)
	}
	stats.ReferralLink = fmt.Sprintf("%s?startapp=ref_%d", s.cfg.MiniAppURL, tgID)
	return stats, nil
}
