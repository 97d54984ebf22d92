package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/chartsboard/chartsboard/internal/models"
)

func (db *DB) CreateDonation(d *models.Donation) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.Create(d).Error; err != nil {
		return fmt.Errorf("failed to create donation: %s", err)
	}
	return nil
}

func (db *DB) TotalCollected() (decimal.Decimal, error) {
	var total decimal.Decimal
	row := db.Conn.Raw(`SELECT COALESCE(SUM(tons_amount), 0) FROM donations`).Row()
	if err := row.Scan(&total); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum donations: %s", err)
	}
	return total, nil
}

// boardRow is the scan target for leaderboard queries.
type boardRow struct {
	TgID        int64
	Username    string
	FirstName   string
	DisplayName string
	PhotoURL    string
	CustomTitle string
	CustomText  string
	TonsTotal   decimal.Decimal
}

func (db *DB) AllTimeLeaderboard(limit, offset int) ([]*models.LeaderboardRow, error) {
	var rows []boardRow
	err := db.Conn.Raw(`
		SELECT u.tg_id, u.username, u.first_name, u.display_name, u.photo_url,
		       u.custom_title, u.custom_text,
		       COALESCE(SUM(d.tons_amount), 0) AS tons_total
		FROM users u
		LEFT JOIN donations d ON d.tg_id = u.tg_id
		WHERE u.is_blocked = ?
		GROUP BY u.tg_id, u.username, u.first_name, u.display_name, u.photo_url,
		         u.custom_title, u.custom_text
		ORDER BY tons_total DESC, u.tg_id ASC
		LIMIT ? OFFSET ?`, false, limit, offset).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query all-time leaderboard: %s", err)
	}
	return rankBoard(rows, offset), nil
}

func (db *DB) WeekLeaderboard(weekKey string, limit, offset int) ([]*models.LeaderboardRow, error) {
	var rows []boardRow
	err := db.Conn.Raw(`
		SELECT u.tg_id, u.username, u.first_name, u.display_name, u.photo_url,
		       u.custom_title, u.custom_text,
		       SUM(d.tons_amount) AS tons_total
		FROM users u
		JOIN donations d ON d.tg_id = u.tg_id AND d.week_key = ?
		WHERE u.is_blocked = ?
		GROUP BY u.tg_id, u.username, u.first_name, u.display_name, u.photo_url,
		         u.custom_title, u.custom_text
		HAVING SUM(d.tons_amount) > 0
		ORDER BY tons_total DESC, u.tg_id ASC
		LIMIT ? OFFSET ?`, weekKey, false, limit, offset).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query week leaderboard: %s", err)
	}
	return rankBoard(rows, offset), nil
}

func rankBoard(rows []boardRow, offset int) []*models.LeaderboardRow {
	board := make([]*models.LeaderboardRow, 0, len(rows))
	for i, r := range rows {
		board = append(board, &models.LeaderboardRow{
			Rank:        int64(offset + i + 1),
			TgID:        r.TgID,
			Username:    r.Username,
			FirstName:   r.FirstName,
			DisplayName: r.DisplayName,
			PhotoURL:    r.PhotoURL,
			CustomTitle: r.CustomTitle,
			CustomText:  r.CustomText,
			TonsTotal:   r.TonsTotal,
		})
	}
	return board
}

type referralBoardRow struct {
	TgID           int64
	Username       string
	FirstName      string
	DisplayName    string
	PhotoURL       string
	ReferralsCount int64
	ReferralsTotal decimal.Decimal
}

// ReferralLeaderboard ranks users by the donation total of the users they
// referred. The inner join keeps only users with at least one referral, so a
// referrer whose referrals have not donated yet appears with a zero total.
func (db *DB) ReferralLeaderboard(limit, offset int) ([]*models.ReferralRow, error) {
	var rows []referralBoardRow
	err := db.Conn.Raw(`
		SELECT u.tg_id, u.username, u.first_name, u.display_name, u.photo_url,
		       COUNT(DISTINCT r.tg_id) AS referrals_count,
		       COALESCE(SUM(d.tons_amount), 0) AS referrals_total
		FROM users u
		JOIN users r ON r.referrer_id = u.tg_id
		LEFT JOIN donations d ON d.tg_id = r.tg_id
		WHERE u.is_blocked = ?
		GROUP BY u.tg_id, u.username, u.first_name, u.display_name, u.photo_url
		ORDER BY referrals_total DESC, u.tg_id ASC
		LIMIT ? OFFSET ?`, false, limit, offset).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query referral leaderboard: %s", err)
	}

	board := make([]*models.ReferralRow, 0, len(rows))
	for i, r := range rows {
		board = append(board, &models.ReferralRow{
			Rank:           int64(offset + i + 1),
			TgID:           r.TgID,
			Username:       r.Username,
			FirstName:      r.FirstName,
			DisplayName:    r.DisplayName,
			PhotoURL:       r.PhotoURL,
			ReferralsCount: r.ReferralsCount,
			ReferralsTotal: r.ReferralsTotal,
		})
	}
	return board, nil
}

func (db *DB) UserDonationTotals(tgID int64, weekKey string) (decimal.Decimal, decimal.Decimal, error) {
	var allTime, week decimal.Decimal
	row := db.Conn.Raw(`
		SELECT COALESCE(SUM(tons_amount), 0),
		       COALESCE(SUM(CASE WHEN week_key = ? THEN tons_amount ELSE 0 END), 0)
		FROM donations WHERE tg_id = ?`, weekKey, tgID).Row()
	if err := row.Scan(&allTime, &week); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum user donations: %s", err)
	}
	return allTime, week, nil
}

// AllTimeRank counts non-blocked users with a strictly greater all-time total.
func (db *DB) AllTimeRank(total decimal.Decimal) (int64, error) {
	var greater int64
	row := db.Conn.Raw(`
		SELECT COUNT(*) FROM (
			SELECT u.tg_id
			FROM users u
			LEFT JOIN donations d ON d.tg_id = u.tg_id
			WHERE u.is_blocked = ?
			GROUP BY u.tg_id
			HAVING COALESCE(SUM(d.tons_amount), 0) > ?
		) ranked`, false, total).Row()
	if err := row.Scan(&greater); err != nil {
		return 0, fmt.Errorf("failed to compute all-time rank: %s", err)
	}
	return greater, nil
}

// WeekRank counts non-blocked users with a strictly greater total for the week.
func (db *DB) WeekRank(weekKey string, total decimal.Decimal) (int64, error) {
	var greater int64
	row := db.Conn.Raw(`
		SELECT COUNT(*) FROM (
			SELECT u.tg_id
			FROM users u
			JOIN donations d ON d.tg_id = u.tg_id AND d.week_key = ?
			WHERE u.is_blocked = ?
			GROUP BY u.tg_id
			HAVING SUM(d.tons_amount) > ?
		) ranked`, weekKey, false, total).Row()
	if err := row.Scan(&greater); err != nil {
		return 0, fmt.Errorf("failed to compute week rank: %s", err)
	}
	return greater, nil
}

func (db *DB) ReferralStats(tgID int64) (int64, decimal.Decimal, error) {
	var count int64
	var total decimal.Decimal
	row := db.Conn.Raw(`
		SELECT COUNT(DISTINCT r.tg_id), COALESCE(SUM(d.tons_amount), 0)
		FROM users r
		LEFT JOIN donations d ON d.tg_id = r.tg_id
		WHERE r.referrer_id = ?`, tgID).Row()
	if err := row.Scan(&count, &total); err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to compute referral stats: %s", err)
	}
	return count, total, nil
}

func (db *DB) CreateTask(t *models.Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.Create(t).Error; err != nil {
		return fmt.Errorf("failed to create task: %s", err)
	}
	return nil
}

func (db *DB) ActiveTasks() ([]*models.Task, error) {
	var tasks []*models.Task
	err := db.Conn.
		Where("is_active = ?", true).
		Order("sort_order ASC, created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %s", err)
	}
	return tasks, nil
}

func (db *DB) GetTask(id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := db.Conn.Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %s", err)
	}
	return &task, nil
}

func (db *DB) CompletedTaskIDs(tgID int64) (map[uuid.UUID]bool, error) {
	var completions []models.TaskCompletion
	if err := db.Conn.Where("tg_id = ?", tgID).Find(&completions).Error; err != nil {
		return nil, fmt.Errorf("failed to list task completions: %s", err)
	}
	ids := make(map[uuid.UUID]bool, len(completions))
	for _, c := range completions {
		ids[c.TaskID] = true
	}
	return ids, nil
}

func (db *DB) CreateTaskCompletion(c *models.TaskCompletion) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.Create(c).Error; err != nil {
		// The unique (tg_id, task_id) index rejects duplicates; report them
		// as terminal-state re-entry.
		var existing models.TaskCompletion
		ferr := db.Conn.Where("tg_id = ? AND task_id = ?", c.TgID, c.TaskID).First(&existing).Error
		if ferr == nil {
			return models.ErrAlreadyCompleted
		}
		return fmt.Errorf("failed to create task completion: %s", err)
	}
	return nil
}
