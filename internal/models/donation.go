package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Donation is an append-only record of charts that count toward leaderboard
// ranking. Donations are the sole source of leaderboard figures; balance and
// donation are deliberately decoupled. Never updated or deleted.
type Donation struct {
	ID   uuid.UUID `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	TgID int64     `json:"tg_id" gorm:"column:tg_id;index;not null"`
	// StarsAmount is zero for activations from balance.
	StarsAmount int `json:"stars_amount" gorm:"column:stars_amount;not null"`
	// TonsAmount is the internal-currency amount, always > 0.
	TonsAmount decimal.Decimal `json:"tons_amount" gorm:"column:tons_amount;type:numeric(10,2);not null"`
	// WeekKey is the timezone-bucketed ISO year-week string, e.g. "2026-W05".
	// Computed once at creation time and never recomputed.
	WeekKey string `json:"week_key" gorm:"column:week_key;index;not null"`
	// PaymentID links to the originating Payment, if any.
	PaymentID *uuid.UUID `json:"payment_id" gorm:"column:payment_id;type:uuid"`
	CreatedAt time.Time  `json:"created_at" gorm:"column:created_at;not null"`
}

// LedgerEntryType is the accounting side of a ledger entry.
type LedgerEntryType string

const (
	LedgerCredit LedgerEntryType = "credit"
	LedgerDebit  LedgerEntryType = "debit"
)

// LedgerEntry is the audit trail behind every balance mutation. For any user
// the balance equals the sum of credit amounts minus the sum of debit amounts.
type LedgerEntry struct {
	ID        int64           `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	TgID      int64           `json:"tg_id" gorm:"column:tg_id;index;not null"`
	Type      LedgerEntryType `json:"type" gorm:"column:type;size:10;not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(10,2);not null"`
	Reason    string          `json:"reason" gorm:"column:reason;size:100;not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"column:created_at;not null"`
}

// LeaderboardRow is one aggregated entry of the all-time or weekly board.
type LeaderboardRow struct {
	Rank        int64           `json:"rank"`
	TgID        int64           `json:"tg_id"`
	Username    string          `json:"username"`
	FirstName   string          `json:"first_name"`
	DisplayName string          `json:"display_name"`
	PhotoURL    string          `json:"photo_url"`
	CustomTitle string          `json:"custom_title"`
	CustomText  string          `json:"custom_text"`
	TonsTotal   decimal.Decimal `json:"tons_total"`
}

// ReferralRow is one aggregated entry of the referral board.
type ReferralRow struct {
	Rank           int64           `json:"rank"`
	TgID           int64           `json:"tg_id"`
	Username       string          `json:"username"`
	FirstName      string          `json:"first_name"`
	DisplayName    string          `json:"display_name"`
	PhotoURL       string          `json:"photo_url"`
	ReferralsCount int64           `json:"referrals_count"`
	ReferralsTotal decimal.Decimal `json:"referrals_tons_total"`
}
