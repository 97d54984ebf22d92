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

func (db *DB) CreatePayment(p *models.Payment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.Create(p).Error; err != nil {
		return fmt.Errorf("failed to create payment: %s", err)
	}
	return nil
}

func (db *DB) GetPayment(id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := db.Conn.Where("id = ?", id).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %s", err)
	}
	return &p, nil
}

func (db *DB) GetPaymentByChargeID(chargeID string) (*models.Payment, error) {
	var p models.Payment
	if err := db.Conn.Where("telegram_payment_charge_id = ?", chargeID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by charge id: %s", err)
	}
	return &p, nil
}

func (db *DB) GetPaymentByInvoiceID(invoiceID string) (*models.Payment, error) {
	var p models.Payment
	if err := db.Conn.Where("invoice_id = ?", invoiceID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by invoice id: %s", err)
	}
	return &p, nil
}

func (db *DB) NewestUnassignedPayment() (*models.Payment, error) {
	var p models.Payment
	err := db.Conn.
		Where("status = ? AND telegram_payment_charge_id IS NULL", models.PaymentCreated).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get unassigned payment: %s", err)
	}
	return &p, nil
}

func (db *DB) SetPaymentInvoiceID(id uuid.UUID, invoiceID string) error {
	res := db.Conn.Model(&models.Payment{}).
		Where("id = ?", id).
		Update("invoice_id", invoiceID)
	if res.Error != nil {
		return fmt.Errorf("failed to set invoice id: %s", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrPaymentNotFound
	}
	return nil
}

// MarkPaymentPaid is a compare-and-swap on the created status. A payment
// already out of created is left untouched and false is returned.
func (db *DB) MarkPaymentPaid(id uuid.UUID, chargeID string, tons, rate decimal.Decimal, paidAt time.Time) (bool, error) {
	res := db.Conn.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentCreated).
		Updates(map[string]interface{}{
			"status":                     models.PaymentPaid,
			"telegram_payment_charge_id": chargeID,
			"tons_amount":                tons,
			"rate_used":                  rate,
			"paid_at":                    paidAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark payment paid: %s", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *DB) TransitionPayment(id uuid.UUID, from, to models.PaymentStatus) (bool, error) {
	res := db.Conn.Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition payment: %s", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *DB) ListPayments(tgID int64, limit, offset int) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := db.Conn.
		Where("tg_id = ?", tgID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %s", err)
	}
	return payments, nil
}

func (db *DB) CreateTonPayment(p *models.TonPayment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if err := db.Conn.Create(p).Error; err != nil {
		return fmt.Errorf("failed to create ton payment: %s", err)
	}
	return nil
}

func (db *DB) GetTonPaymentByComment(comment string) (*models.TonPayment, error) {
	var p models.TonPayment
	if err := db.Conn.Where("payment_comment = ?", comment).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrTonPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get ton payment by comment: %s", err)
	}
	return &p, nil
}

func (db *DB) PendingTonPayments(now time.Time) ([]*models.TonPayment, error) {
	var payments []*models.TonPayment
	err := db.Conn.
		Where("status = ? AND expires_at > ?", models.TonPaymentPending, now).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ton payments: %s", err)
	}
	return payments, nil
}

func (db *DB) ExpireTonPayments(now time.Time) (int64, error) {
	res := db.Conn.Model(&models.TonPayment{}).
		Where("status = ? AND expires_at <= ?", models.TonPaymentPending, now).
		Update("status", models.TonPaymentExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire ton payments: %s", res.Error)
	}
	return res.RowsAffected, nil
}

// CompleteTonPayment is a compare-and-swap on the pending status, so a
// transfer observed in two scan cycles credits at most once.
func (db *DB) CompleteTonPayment(id uuid.UUID, txHash string, txLT int64, fromWallet string, charts decimal.Decimal, completedAt time.Time) (bool, error) {
	res := db.Conn.Model(&models.TonPayment{}).
		Where("id = ? AND status = ?", id, models.TonPaymentPending).
		Updates(map[string]interface{}{
			"status":        models.TonPaymentCompleted,
			"tx_hash":       txHash,
			"tx_lt":         txLT,
			"from_wallet":   fromWallet,
			"charts_amount": charts,
			"completed_at":  completedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete ton payment: %s", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (db *DB) ListTonPayments(tgID int64, limit int) ([]*models.TonPayment, error) {
	var payments []*models.TonPayment
	err := db.Conn.
		Where("tg_id = ?", tgID).
		Order("created_at DESC").
		Limit(limit).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ton payments: %s", err)
	}
	return payments, nil
}
