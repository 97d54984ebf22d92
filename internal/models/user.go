package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a participant of the donation leaderboard.
type User struct {
	// TgID is the stable platform user id and primary key.
	TgID int64 `json:"tg_id" gorm:"column:tg_id;primaryKey"`
	// Username is the original platform username, if any.
	Username string `json:"username" gorm:"column:username"`
	// FirstName is the original platform first name.
	FirstName string `json:"first_name" gorm:"column:first_name"`
	// LastName is the original platform last name.
	LastName string `json:"last_name" gorm:"column:last_name"`
	// DisplayName is a custom display name set by the user.
	DisplayName string `json:"display_name" gorm:"column:display_name;size:50"`
	// LanguageCode is the user's language preference (en, ru, etc.)
	LanguageCode string `json:"language_code" gorm:"column:language_code"`
	// IsPremium indicates a premium platform account.
	IsPremium bool `json:"is_premium" gorm:"column:is_premium"`
	// PhotoURL is the profile photo URL.
	PhotoURL string `json:"photo_url" gorm:"column:photo_url"`
	// CustomTitle is a short title shown in the leaderboard list.
	CustomTitle string `json:"custom_title" gorm:"column:custom_title;size:50"`
	// CustomText is a description shown in the profile modal.
	CustomText string `json:"custom_text" gorm:"column:custom_text;size:200"`
	// CustomLink is a clickable link shown in the profile modal.
	CustomLink string `json:"custom_link" gorm:"column:custom_link;size:500"`
	// TonWalletAddress is the user's own on-chain wallet, if they shared one.
	TonWalletAddress string `json:"ton_wallet_address" gorm:"column:ton_wallet_address;size:100"`
	// BalanceCharts is the internal point balance. It is a running cache of
	// the ledger: always equals the sum of credits minus debits for the user.
	BalanceCharts decimal.Decimal `json:"balance_charts" gorm:"column:balance_charts;type:numeric(10,2);not null;default:0"`
	// ReferrerID is set once at first creation and never mutated after.
	ReferrerID *int64 `json:"referrer_id" gorm:"column:referrer_id;index"`
	// IsBlocked excludes the user from leaderboard reads only.
	IsBlocked bool `json:"is_blocked" gorm:"column:is_blocked;not null;default:false"`

	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;not null"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"column:updated_at;not null"`
	LastSeenAt time.Time `json:"last_seen_at" gorm:"column:last_seen_at;not null"`
}

// UserProfile carries the trusted identity fields an auth envelope provides.
type UserProfile struct {
	TgID         int64
	Username     string
	FirstName    string
	LastName     string
	LanguageCode string
	IsPremium    bool
	PhotoURL     string
}

// ProfileUpdate carries the user-editable profile fields. Nil means "leave as is".
type ProfileUpdate struct {
	DisplayName *string
	CustomTitle *string
	CustomText  *string
	CustomLink  *string
}

// UserStats is the per-user aggregate view over the donation log.
type UserStats struct {
	TgID           int64           `json:"tg_id"`
	TonsAllTime    decimal.Decimal `json:"tons_all_time"`
	TonsWeek       decimal.Decimal `json:"tons_week"`
	RankAllTime    int64           `json:"rank_all_time"`
	RankWeek       int64           `json:"rank_week"`
	ReferralsCount int64           `json:"referrals_count"`
	ReferralsTotal decimal.Decimal `json:"referrals_tons_total"`
	ReferralLink   string          `json:"referral_link"`
	WeekKey        string          `json:"week_key"`
}
