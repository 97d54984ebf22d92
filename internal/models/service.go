package models

import (
	"context"

	"github.com/shopspring/decimal"
)

// StarsConfirmation is an external "payment succeeded" event from the
// platform payment provider.
type StarsConfirmation struct {
	// ChargeID is the opaque external idempotency key.
	ChargeID string
	// InvoicePayload correlates the confirmation with the Payment that
	// produced the invoice. May be empty on malformed deliveries.
	InvoicePayload string
	// StarsAmount is the confirmed payment-unit amount, informational only.
	StarsAmount int
}

// Invoice is the result of creating a platform payment intent.
type Invoice struct {
	PaymentID   string `json:"payment_id"`
	StarsAmount int    `json:"stars_amount"`
	InvoiceID   string `json:"invoice_id"`
	Status      string `json:"status"`
	InvoiceURL  string `json:"invoice_url"`
}

// Activation is the result of moving charts from balance to the leaderboard.
type Activation struct {
	Activated  decimal.Decimal `json:"activated"`
	NewBalance decimal.Decimal `json:"new_balance"`
	WeekKey    string          `json:"week_key"`
}

// TonInvoice is an on-chain payment intent plus its transfer deep link.
type TonInvoice struct {
	Payment     *TonPayment
	PaymentLink string
}

// TonConfig is the on-chain payment configuration exposed to clients.
type TonConfig struct {
	WalletAddress        string          `json:"wallet_address"`
	ChartsPerTon         decimal.Decimal `json:"charts_per_ton"`
	MinAmount            decimal.Decimal `json:"min_amount"`
	MaxAmount            decimal.Decimal `json:"max_amount"`
	PaymentExpiryMinutes int             `json:"payment_expiry_minutes"`
	Enabled              bool            `json:"enabled"`
}

// TaskResult is the outcome of completing a task.
type TaskResult struct {
	ChartsAdded decimal.Decimal `json:"charts_added"`
	NewBalance  decimal.Decimal `json:"new_balance"`
}

// InvoiceLinker creates payment invoice links with the platform bot API.
type InvoiceLinker interface {
	CreateInvoiceLink(ctx context.Context, title, description, payload string, starsAmount int) (string, error)
}

// Core is the business surface consumed by the HTTP and bot front ends.
type Core interface {
	// Users
	InitUser(ctx context.Context, profile UserProfile, refCode int64) (*User, bool, error)
	GetUser(ctx context.Context, tgID int64) (*User, error)
	UpdateProfile(ctx context.Context, tgID int64, update ProfileUpdate) (*User, error)

	// Platform payments
	CreateInvoice(ctx context.Context, tgID int64, starsAmount, presetID int) (*Invoice, error)
	// ConfirmStarsPayment is intake path A. Replayed confirmations return
	// the already-paid payment unchanged; an unmatched confirmation returns
	// ErrPaymentNotFound without mutating state.
	ConfirmStarsPayment(ctx context.Context, conf StarsConfirmation) (*Payment, error)
	PaymentHistory(ctx context.Context, tgID int64, limit, offset int) ([]*Payment, error)

	// On-chain payments
	CreateTonPayment(ctx context.Context, tgID int64, amountTon decimal.Decimal) (*TonInvoice, error)
	TonPaymentByComment(ctx context.Context, tgID int64, comment string) (*TonInvoice, error)
	TonPaymentHistory(ctx context.Context, tgID int64, limit int) ([]*TonPayment, error)
	TonConfig(ctx context.Context) (*TonConfig, error)

	// Activation (intake path C, the only debit path)
	ActivateCharts(ctx context.Context, tgID int64, amount decimal.Decimal) (*Activation, error)

	// Leaderboards
	AllTimeLeaderboard(ctx context.Context, limit, offset int) ([]*LeaderboardRow, error)
	WeekLeaderboard(ctx context.Context, weekKey string, limit, offset int) ([]*LeaderboardRow, error)
	ReferralLeaderboard(ctx context.Context, limit, offset int) ([]*ReferralRow, error)
	UserStats(ctx context.Context, tgID int64) (*UserStats, error)
	TotalCollected(ctx context.Context) (decimal.Decimal, error)

	// Tasks
	ListTasks(ctx context.Context, tgID int64) ([]*TaskView, error)
	CompleteTask(ctx context.Context, tgID int64, taskID string) (*TaskResult, error)
}
