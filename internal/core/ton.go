package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/models"
)

var nanotonFactor = decimal.NewFromInt(1_000_000_000)

// newPaymentComment generates the unguessable transfer memo that correlates
// an on-chain transaction with its payment intent.
func newPaymentComment() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "charts_" + hex[:12]
}

// transferLink builds the ton://transfer deep link for a payment intent.
func transferLink(wallet string, amountTon decimal.Decimal, comment string) string {
	nano := amountTon.Mul(nanotonFactor).Round(0).IntPart()
	return fmt.Sprintf("ton://transfer/%s?amount=%d&text=%s", wallet, nano, url.QueryEscape(comment))
}

// CreateTonPayment records an on-chain payment intent with a fresh memo and
// a snapshot of the charts-per-TON rate, and returns the transfer link.
func (s *Service) CreateTonPayment(ctx context.Context, tgID int64, amountTon decimal.Decimal) (*models.TonInvoice, error) {
	if s.cfg.TonWalletAddress == "" {
		return nil, models.ErrUnconfigured
	}
	if amountTon.LessThan(s.cfg.TonMinAmount) || amountTon.GreaterThan(s.cfg.TonMaxAmount) {
		return nil, fmt.Errorf("amount must be between %s and %s TON: %w",
			s.cfg.TonMinAmount, s.cfg.TonMaxAmount, models.ErrInvalidAmount)
	}

	payment := &models.TonPayment{
		ID:             uuid.New(),
		TgID:           tgID,
		AmountTon:      amountTon,
		PaymentComment: newPaymentComment(),
		ToWallet:       s.cfg.TonWalletAddress,
		Status:         models.TonPaymentPending,
		RateUsed:       s.cfg.ChartsPerTon,
		ExpiresAt:      time.Now().Add(s.cfg.TonPaymentExpiry),
	}
	if err := s.repo.CreateTonPayment(payment); err != nil {
		return nil, fmt.Errorf("failed to create ton payment: %s", err)
	}

	s.logger.Info("Ton payment created ",
		"payment ", payment.ID, "tg_id ", tgID,
		"amount ", amountTon, "comment ", payment.PaymentComment)
	return &models.TonInvoice{
		Payment:     payment,
		PaymentLink: transferLink(payment.ToWallet, amountTon, payment.PaymentComment),
	}, nil
}

// TonPaymentByComment returns the caller's payment intent for a memo.
// Other users' intents read as not found.
func (s *Service) TonPaymentByComment(ctx context.Context, tgID int64, comment string) (*models.TonInvoice, error) {
	payment, err := s.repo.GetTonPaymentByComment(comment)
	if err != nil {
		return nil, err
	}
	if payment.TgID != tgID {
		return nil, models.ErrTonPaymentNotFound
	}
	return &models.TonInvoice{
		Payment:     payment,
		PaymentLink: transferLink(payment.ToWallet, payment.AmountTon, payment.PaymentComment),
	}, nil
}

func (s *Service) TonPaymentHistory(ctx context.Context, tgID int64, limit int) ([]*models.TonPayment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListTonPayments(tgID, limit)
}

func (s *Service) TonConfig(ctx context.Context) (*models.TonConfig, error) {
	return &models.TonConfig{
		WalletAddress:        s.cfg.TonWalletAddress,
		ChartsPerTon:         s.cfg.ChartsPerTon,
		MinAmount:            s.cfg.TonMinAmount,
		MaxAmount:            s.cfg.TonMaxAmount,
		PaymentExpiryMinutes: int(s.cfg.TonPaymentExpiry / time.Minute),
		Enabled:              s.cfg.TonWalletAddress != "",
	}, nil
}
