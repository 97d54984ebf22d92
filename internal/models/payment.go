package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus is the state of a platform (Stars) payment.
// Transitions are monotonic: created -> paid|failed|canceled|expired,
// and no transition out of a terminal state is permitted.
type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "created"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentCanceled PaymentStatus = "canceled"
	PaymentExpired  PaymentStatus = "expired"
)

// Payment is one platform-native payment intent.
type Payment struct {
	ID   uuid.UUID `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	TgID int64     `json:"tg_id" gorm:"column:tg_id;index;not null"`
	// InvoiceID is the invoice correlator assigned when the invoice link is
	// created. Unique while non-empty.
	InvoiceID *string `json:"invoice_id" gorm:"column:invoice_id;uniqueIndex"`
	// ChargeID is the external idempotency key delivered with the payment
	// confirmation. Unique while non-empty, empty until paid.
	ChargeID *string `json:"telegram_payment_charge_id" gorm:"column:telegram_payment_charge_id;uniqueIndex"`
	// StarsAmount is the payment-unit amount of the intent.
	StarsAmount int `json:"stars_amount" gorm:"column:stars_amount;not null"`
	// TonsAmount and RateUsed are snapshotted at paid time and immutable after.
	TonsAmount decimal.Decimal `json:"tons_amount" gorm:"column:tons_amount;type:numeric(10,2)"`
	RateUsed   decimal.Decimal `json:"rate_used" gorm:"column:rate_used;type:numeric(10,4)"`
	Status     PaymentStatus   `json:"status" gorm:"column:status;size:20;not null;default:created;index"`
	Context    string          `json:"context_json" gorm:"column:context_json"`
	CreatedAt  time.Time       `json:"created_at" gorm:"column:created_at;not null;index"`
	PaidAt     *time.Time      `json:"paid_at" gorm:"column:paid_at"`
}

// Terminal reports whether no further status transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s != PaymentCreated
}

// TonPaymentStatus is the state of an on-chain payment intent.
// pending is the only non-terminal state.
type TonPaymentStatus string

const (
	TonPaymentPending   TonPaymentStatus = "pending"
	TonPaymentCompleted TonPaymentStatus = "completed"
	TonPaymentExpired   TonPaymentStatus = "expired"
	TonPaymentFailed    TonPaymentStatus = "failed"
)

func (s TonPaymentStatus) Terminal() bool {
	return s != TonPaymentPending
}

// TonPayment is one requested on-chain transfer.
type TonPayment struct {
	ID   uuid.UUID `json:"id" gorm:"column:id;type:uuid;primaryKey"`
	TgID int64     `json:"tg_id" gorm:"column:tg_id;index;not null"`
	// AmountTon is the requested transfer amount.
	AmountTon decimal.Decimal `json:"amount_ton" gorm:"column:amount_ton;type:numeric(20,9);not null"`
	// ChartsAmount is snapshotted at completion: AmountTon * RateUsed.
	ChartsAmount decimal.Decimal `json:"charts_amount" gorm:"column:charts_amount;type:numeric(10,2)"`
	// PaymentComment is the on-chain memo used as the sole correlation key.
	// Generated server-side, unguessable and unique.
	PaymentComment string `json:"payment_comment" gorm:"column:payment_comment;size:100;uniqueIndex;not null"`
	// ToWallet is the configured receiving wallet.
	ToWallet string `json:"to_wallet" gorm:"column:to_wallet;size:100;not null"`
	// FromWallet, TxHash and TxLT are populated only on completion.
	FromWallet string           `json:"from_wallet" gorm:"column:from_wallet;size:100"`
	TxHash     *string          `json:"tx_hash" gorm:"column:tx_hash;uniqueIndex"`
	TxLT       int64            `json:"tx_lt" gorm:"column:tx_lt"`
	Status     TonPaymentStatus `json:"status" gorm:"column:status;size:20;not null;default:pending;index"`
	// RateUsed is the charts-per-TON rate snapshotted at creation.
	RateUsed    decimal.Decimal `json:"rate_used" gorm:"column:rate_used;type:numeric(10,4)"`
	CreatedAt   time.Time       `json:"created_at" gorm:"column:created_at;not null"`
	ExpiresAt   time.Time       `json:"expires_at" gorm:"column:expires_at;not null;index"`
	CompletedAt *time.Time      `json:"completed_at" gorm:"column:completed_at"`
}
