package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is the persistence contract of the core. Mutating primitives
// are atomic on their own; WithTx groups several of them into one database
// transaction.
type Repository interface {
	// WithTx runs fn against a repository bound to one transaction.
	// fn returning an error rolls the transaction back.
	WithTx(fn func(Repository) error) error
	Close() error

	// Users
	UpsertUser(profile UserProfile, referrerID *int64) (user *User, isNew bool, err error)
	GetUser(tgID int64) (*User, error)
	UpdateUserProfile(tgID int64, update ProfileUpdate) (*User, error)

	// Balance. Both primitives are guarded single-statement updates so
	// concurrent mutations of the same row cannot lose an update.
	CreditBalance(tgID int64, amount decimal.Decimal) error
	// DebitBalance fails with ErrInsufficientBalance when amount exceeds the
	// current balance, leaving the balance unchanged.
	DebitBalance(tgID int64, amount decimal.Decimal) error
	CreateLedgerEntry(entry *LedgerEntry) error
	LedgerTotals(tgID int64) (credits, debits decimal.Decimal, err error)

	// Platform payments
	CreatePayment(p *Payment) error
	GetPayment(id uuid.UUID) (*Payment, error)
	GetPaymentByChargeID(chargeID string) (*Payment, error)
	GetPaymentByInvoiceID(invoiceID string) (*Payment, error)
	// NewestUnassignedPayment returns the most recent created payment with no
	// charge id yet, or ErrPaymentNotFound.
	NewestUnassignedPayment() (*Payment, error)
	SetPaymentInvoiceID(id uuid.UUID, invoiceID string) error
	// MarkPaymentPaid transitions created->paid and stamps the success
	// fields. Returns false when the payment was not in created status.
	MarkPaymentPaid(id uuid.UUID, chargeID string, tons, rate decimal.Decimal, paidAt time.Time) (bool, error)
	// TransitionPayment moves a payment between statuses, guarded by the
	// current status. Returns false when the guard did not match.
	TransitionPayment(id uuid.UUID, from, to PaymentStatus) (bool, error)
	ListPayments(tgID int64, limit, offset int) ([]*Payment, error)

	// On-chain payments
	CreateTonPayment(p *TonPayment) error
	GetTonPaymentByComment(comment string) (*TonPayment, error)
	PendingTonPayments(now time.Time) ([]*TonPayment, error)
	// ExpireTonPayments marks overdue pending payments expired and returns
	// how many rows transitioned.
	ExpireTonPayments(now time.Time) (int64, error)
	// CompleteTonPayment transitions pending->completed and stamps the
	// transaction fields. Returns false when the payment was not pending.
	CompleteTonPayment(id uuid.UUID, txHash string, txLT int64, fromWallet string, charts decimal.Decimal, completedAt time.Time) (bool, error)
	ListTonPayments(tgID int64, limit int) ([]*TonPayment, error)

	// Donations and aggregation
	CreateDonation(d *Donation) error
	TotalCollected() (decimal.Decimal, error)
	AllTimeLeaderboard(limit, offset int) ([]*LeaderboardRow, error)
	WeekLeaderboard(weekKey string, limit, offset int) ([]*LeaderboardRow, error)
	ReferralLeaderboard(limit, offset int) ([]*ReferralRow, error)
	UserDonationTotals(tgID int64, weekKey string) (allTime, week decimal.Decimal, err error)
	// AllTimeRank and WeekRank count users with a strictly greater total.
	AllTimeRank(total decimal.Decimal) (int64, error)
	WeekRank(weekKey string, total decimal.Decimal) (int64, error)
	ReferralStats(tgID int64) (count int64, total decimal.Decimal, err error)

	// Tasks
	CreateTask(t *Task) error
	ActiveTasks() ([]*Task, error)
	GetTask(id uuid.UUID) (*Task, error)
	CompletedTaskIDs(tgID int64) (map[uuid.UUID]bool, error)
	// CreateTaskCompletion fails with ErrAlreadyCompleted on a duplicate
	// (user, task) pair.
	CreateTaskCompletion(c *TaskCompletion) error
}
