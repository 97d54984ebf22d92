package core

import (
	"context"
	"fmt"
	"time"

	"github.com/chartsboard/chartsboard/internal/config"
	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/internal/rate"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

// Service carries the business logic of the donation leaderboard: the
// balance ledger, the three payment intake paths and the board aggregation.
type Service struct {
	logger *logger.Logger
	cfg    *config.Config

	repo     models.Repository
	rates    *rate.Provider
	invoices models.InvoiceLinker
	loc      *time.Location
}

var _ models.Core = (*Service)(nil)

// NewService creates a Service. invoices may be nil when no bot is
// configured; invoice creation then reports ErrUnconfigured.
func NewService(
	repo models.Repository,
	rates *rate.Provider,
	invoices models.InvoiceLinker,
	cfg *config.Config,
	logger *logger.Logger,
) (*Service, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Timezone, err)
	}
	return &Service{
		logger:   logger,
		cfg:      cfg,
		repo:     repo,
		rates:    rates,
		invoices: invoices,
		loc:      loc,
	}, nil
}

// InitUser registers or refreshes a user on contact. The referral code is
// honored only at first creation, never mutated after, self-referrals and
// unknown referrers are dropped.
func (s *Service) InitUser(ctx context.Context, profile models.UserProfile, refCode int64) (*models.User, bool, error) {
	var referrerID *int64
	if refCode != 0 && refCode != profile.TgID {
		if _, err := s.repo.GetUser(refCode); err == nil {
			referrerID = &refCode
		} else {
			s.logger.Debug("Ignoring unknown referrer ", "referrer ", refCode)
		}
	}

	user, isNew, err := s.repo.UpsertUser(profile, referrerID)
	if err != nil {
		return nil, false, err
	}
	if isNew {
		s.logger.Info("New user registered ", "tg_id ", user.TgID)
		if user.ReferrerID != nil {
			s.logger.Info("User attached to referrer ", "tg_id ", user.TgID, "referrer ", *user.ReferrerID)
		}
	}
	return user, isNew, nil
}

func (s *Service) GetUser(ctx context.Context, tgID int64) (*models.User, error) {
	return s.repo.GetUser(tgID)
}

func (s *Service) UpdateProfile(ctx context.Context, tgID int64, update models.ProfileUpdate) (*models.User, error) {
	return s.repo.UpdateUserProfile(tgID, update)
}
