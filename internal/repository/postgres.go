package repository

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

type DB struct {
	logger *logger.Logger

	Conn *gorm.DB
}

// NewPostgresDB connects to PostgreSQL and migrates the schema.
func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (models.Repository, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	repo, err := New(db, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return repo, nil
}

// New wraps an open gorm connection. Tests use it with a sqlite database.
func New(db *gorm.DB, logger *logger.Logger) (models.Repository, error) {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Payment{},
		&models.TonPayment{},
		&models.Donation{},
		&models.LedgerEntry{},
		&models.Task{},
		&models.TaskCompletion{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	return &DB{Conn: db, logger: logger}, nil
}

func (db *DB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

// WithTx runs fn against a repository bound to one transaction.
func (db *DB) WithTx(fn func(models.Repository) error) error {
	return db.Conn.Transaction(func(tx *gorm.DB) error {
		return fn(&DB{Conn: tx, logger: db.logger})
	})
}

func (db *DB) UpsertUser(profile models.UserProfile, referrerID *int64) (*models.User, bool, error) {
	var user models.User
	err := db.Conn.Where("tg_id = ?", profile.TgID).First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("failed to look up user: %s", err)
		}

		now := time.Now().UTC()
		user = models.User{
			TgID:          profile.TgID,
			Username:      profile.Username,
			FirstName:     profile.FirstName,
			LastName:      profile.LastName,
			LanguageCode:  profile.LanguageCode,
			IsPremium:     profile.IsPremium,
			PhotoURL:      profile.PhotoURL,
			BalanceCharts: decimal.Zero,
			ReferrerID:    referrerID,
			CreatedAt:     now,
			UpdatedAt:     now,
			LastSeenAt:    now,
		}
		if err := db.Conn.Create(&user).Error; err != nil {
			// Concurrent first contact: the row may exist now.
			if ferr := db.Conn.Where("tg_id = ?", profile.TgID).First(&user).Error; ferr != nil {
				return nil, false, fmt.Errorf("failed to create user: %s", err)
			}
			return &user, false, nil
		}
		return &user, true, nil
	}

	// Existing user: refresh display fields, never touch the referrer.
	if profile.Username != "" {
		user.Username = profile.Username
	}
	if profile.FirstName != "" {
		user.FirstName = profile.FirstName
	}
	if profile.LastName != "" {
		user.LastName = profile.LastName
	}
	if profile.LanguageCode != "" {
		user.LanguageCode = profile.LanguageCode
	}
	if profile.PhotoURL != "" {
		user.PhotoURL = profile.PhotoURL
	}
	user.IsPremium = profile.IsPremium
	user.UpdatedAt = time.Now().UTC()
	user.LastSeenAt = user.UpdatedAt
	if err := db.Conn.Save(&user).Error; err != nil {
		return nil, false, fmt.Errorf("failed to update user: %s", err)
	}
	return &user, false, nil
}

func (db *DB) GetUser(tgID int64) (*models.User, error) {
	var user models.User
	if err := db.Conn.Where("tg_id = ?", tgID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %s", err)
	}
	return &user, nil
}

func (db *DB) UpdateUserProfile(tgID int64, update models.ProfileUpdate) (*models.User, error) {
	fields := map[string]interface{}{}
	if update.DisplayName != nil {
		fields["display_name"] = *update.DisplayName
	}
	if update.CustomTitle != nil {
		fields["custom_title"] = *update.CustomTitle
	}
	if update.CustomText != nil {
		fields["custom_text"] = *update.CustomText
	}
	if update.CustomLink != nil {
		fields["custom_link"] = *update.CustomLink
	}
	if len(fields) > 0 {
		fields["updated_at"] = time.Now().UTC()
		res := db.Conn.Model(&models.User{}).Where("tg_id = ?", tgID).Updates(fields)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to update profile: %s", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, models.ErrUserNotFound
		}
	}
	return db.GetUser(tgID)
}

// CreditBalance increases the balance with one guarded update so concurrent
// credits to the same user cannot lose each other.
func (db *DB) CreditBalance(tgID int64, amount decimal.Decimal) error {
	res := db.Conn.Model(&models.User{}).
		Where("tg_id = ?", tgID).
		Updates(map[string]interface{}{
			"balance_charts": gorm.Expr("balance_charts + ?", amount),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to credit balance: %s", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// DebitBalance decreases the balance only when it covers the amount.
func (db *DB) DebitBalance(tgID int64, amount decimal.Decimal) error {
	res := db.Conn.Model(&models.User{}).
		Where("tg_id = ? AND balance_charts >= ?", tgID, amount).
		Updates(map[string]interface{}{
			"balance_charts": gorm.Expr("balance_charts - ?", amount),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to debit balance: %s", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := db.GetUser(tgID); err != nil {
			return err
		}
		return models.ErrInsufficientBalance
	}
	return nil
}

func (db *DB) CreateLedgerEntry(entry *models.LedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to create ledger entry: %s", err)
	}
	return nil
}

func (db *DB) LedgerTotals(tgID int64) (decimal.Decimal, decimal.Decimal, error) {
	var credits, debits decimal.Decimal
	row := db.Conn.Raw(
		`SELECT
			COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN type = ? THEN amount ELSE 0 END), 0)
		FROM ledger_entries WHERE tg_id = ?`,
		models.LedgerCredit, models.LedgerDebit, tgID,
	).Row()
	if err := row.Scan(&credits, &debits); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum ledger entries: %s", err)
	}
	return credits, debits, nil
}
