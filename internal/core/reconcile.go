package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chartsboard/chartsboard/internal/models"
)

// CreateInvoice records a payment intent and issues an invoice link for it.
// presetID, when non-zero, overrides starsAmount with the configured preset.
// The intent's id travels in the invoice payload and is the primary key for
// matching the later confirmation.
func (s *Service) CreateInvoice(ctx context.Context, tgID int64, starsAmount, presetID int) (*models.Invoice, error) {
	if presetID != 0 {
		preset := s.cfg.PresetStars(presetID)
		if preset <= 0 {
			return nil, fmt.Errorf("unknown preset %d: %w", presetID, models.ErrInvalidAmount)
		}
		starsAmount = preset
	}
	if starsAmount <= 0 {
		return nil, models.ErrInvalidAmount
	}
	if s.invoices == nil {
		return nil, models.ErrUnconfigured
	}

	payment := &models.Payment{
		ID:          uuid.New(),
		TgID:        tgID,
		StarsAmount: starsAmount,
		Status:      models.PaymentCreated,
	}
	if err := s.repo.CreatePayment(payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %s", err)
	}

	title := fmt.Sprintf("%d Stars donation", starsAmount)
	description := "Top up your charts balance"
	invoiceURL, err := s.invoices.CreateInvoiceLink(ctx, title, description, payment.ID.String(), starsAmount)
	if err != nil {
		// The intent never reached the user, close it out.
		if _, ferr := s.repo.TransitionPayment(payment.ID, models.PaymentCreated, models.PaymentFailed); ferr != nil {
			s.logger.Error("Failed to mark payment failed ", "payment ", payment.ID, "error ", ferr)
		}
		return nil, fmt.Errorf("failed to create invoice link: %s", err)
	}

	invoiceID := invoiceSlug(invoiceURL, payment.ID.String())
	if err := s.repo.SetPaymentInvoiceID(payment.ID, invoiceID); err != nil {
		s.logger.Error("Failed to store invoice id ", "payment ", payment.ID, "error ", err)
	}

	s.logger.Info("Invoice created ", "payment ", payment.ID, "tg_id ", tgID, "stars ", starsAmount)
	return &models.Invoice{
		PaymentID:   payment.ID.String(),
		StarsAmount: starsAmount,
		InvoiceID:   invoiceID,
		Status:      string(models.PaymentCreated),
		InvoiceURL:  invoiceURL,
	}, nil
}

// invoiceSlug extracts the short invoice identifier from an invoice link,
// falling back to the payment id when the link has no path segment.
func invoiceSlug(invoiceURL, fallback string) string {
	if idx := strings.LastIndex(invoiceURL, "/"); idx >= 0 && idx < len(invoiceURL)-1 {
		return invoiceURL[idx+1:]
	}
	return fallback
}

// ConfirmStarsPayment applies an external payment confirmation to its
// intent: match, transition created->paid under a status guard and credit
// the balance, all in one transaction. Replays are no-ops returning the
// already-paid payment; an unmatched confirmation returns
// ErrPaymentNotFound and changes nothing.
func (s *Service) ConfirmStarsPayment(ctx context.Context, conf models.StarsConfirmation) (*models.Payment, error) {
	if conf.ChargeID == "" {
		return nil, fmt.Errorf("confirmation without charge id: %w", models.ErrPaymentNotFound)
	}

	payment, err := s.matchConfirmation(conf)
	if err != nil {
		return nil, err
	}
	if payment.Status.Terminal() {
		if payment.Status == models.PaymentPaid {
			s.logger.Info("Duplicate payment confirmation ignored ", "payment ", payment.ID, "charge_id ", conf.ChargeID)
			return payment, nil
		}
		s.logger.Warn("Confirmation for closed payment ignored ", "payment ", payment.ID, "status ", payment.Status)
		return payment, nil
	}

	// Rate lookup may hit the network, keep it outside the transaction.
	chartsPerStar := s.rates.Rate(ctx)
	tons := s.rates.Convert(payment.StarsAmount, chartsPerStar)

	var result *models.Payment
	err = s.repo.WithTx(func(repo models.Repository) error {
		ok, err := repo.MarkPaymentPaid(payment.ID, conf.ChargeID, tons, chartsPerStar, time.Now())
		if err != nil {
			return err
		}
		if !ok {
			// Lost the race against a concurrent delivery, nothing to credit.
			result, err = repo.GetPayment(payment.ID)
			return err
		}
		if err := creditBalance(repo, payment.TgID, tons, ReasonStarsPayment); err != nil {
			return err
		}
		result, err = repo.GetPayment(payment.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to confirm payment %s: %s", payment.ID, err)
	}

	s.logger.Info("Payment confirmed ",
		"payment ", result.ID, "tg_id ", result.TgID,
		"stars ", result.StarsAmount, "charts ", result.TonsAmount)
	return result, nil
}

// matchConfirmation resolves the payment a confirmation belongs to: charge
// id first, then the invoice payload (payment id or invoice slug), then the
// opt-in newest-unassigned heuristic.
func (s *Service) matchConfirmation(conf models.StarsConfirmation) (*models.Payment, error) {
	payment, err := s.repo.GetPaymentByChargeID(conf.ChargeID)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, models.ErrPaymentNotFound) {
		return nil, err
	}

	if conf.InvoicePayload != "" {
		if id, perr := uuid.Parse(conf.InvoicePayload); perr == nil {
			if payment, err = s.repo.GetPayment(id); err == nil {
				return payment, nil
			}
			if !errors.Is(err, models.ErrPaymentNotFound) {
				return nil, err
			}
		}
		if payment, err = s.repo.GetPaymentByInvoiceID(conf.InvoicePayload); err == nil {
			return payment, nil
		}
		if !errors.Is(err, models.ErrPaymentNotFound) {
			return nil, err
		}
	}

	if s.cfg.RecoveryMatchEnabled {
		payment, err = s.repo.NewestUnassignedPayment()
		if err == nil {
			s.logger.Warn("Confirmation matched by recovery heuristic ",
				"payment ", payment.ID, "charge_id ", conf.ChargeID)
			return payment, nil
		}
		if !errors.Is(err, models.ErrPaymentNotFound) {
			return nil, err
		}
	}

	s.logger.Warn("Unmatched payment confirmation ", "charge_id ", conf.ChargeID, "payload ", conf.InvoicePayload)
	return nil, models.ErrPaymentNotFound
}

func (s *Service) PaymentHistory(ctx context.Context, tgID int64, limit, offset int) ([]*models.Payment, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListPayments(tgID, limit, offset)
}
