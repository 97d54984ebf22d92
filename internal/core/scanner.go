package core

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/config"
	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

// Scanner polls the chain indexer for incoming transfers and settles
// pending on-chain payment intents. Every cycle is independent; errors are
// logged and the next tick starts fresh.
type Scanner struct {
	logger  *logger.Logger
	cfg     *config.Config
	repo    models.Repository
	indexer models.ChainIndexer
	cron    *cron.Cron
}

func NewScanner(repo models.Repository, indexer models.ChainIndexer, cfg *config.Config, logger *logger.Logger) *Scanner {
	return &Scanner{
		logger:  logger,
		cfg:     cfg,
		repo:    repo,
		indexer: indexer,
	}
}

// Start schedules the scan loop. A cycle that outlives the interval skips
// the next tick instead of overlapping it.
func (s *Scanner) Start() error {
	cronLogger := logger.NewCronLogger(s.logger)
	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))
	schedule := fmt.Sprintf("@every %s", s.cfg.ScanInterval)
	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.ScanOnce(context.Background()); err != nil {
			s.logger.Error("Scan cycle failed ", "error ", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule scanner: %s", err)
	}
	s.cron.Start()
	s.logger.Info("Scanner started ", "interval ", s.cfg.ScanInterval)
	return nil
}

// Stop halts the schedule and waits for an in-flight cycle to finish.
func (s *Scanner) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Scanner stopped")
}

// ScanOnce runs a single cycle: expire overdue intents, list incoming
// transfers and settle every pending intent whose memo appears on chain
// with a sufficient amount.
func (s *Scanner) ScanOnce(ctx context.Context) error {
	now := time.Now()
	expired, err := s.repo.ExpireTonPayments(now)
	if err != nil {
		return fmt.Errorf("failed to expire ton payments: %s", err)
	}
	if expired > 0 {
		s.logger.Info("Ton payments expired ", "count ", expired)
	}

	if s.cfg.TonWalletAddress == "" {
		return nil
	}

	pending, err := s.repo.PendingTonPayments(now)
	if err != nil {
		return fmt.Errorf("failed to list pending ton payments: %s", err)
	}
	if len(pending) == 0 {
		return nil
	}

	txs, err := s.indexer.IncomingTransactions(ctx, s.cfg.TonWalletAddress, s.cfg.ScanTxLimit)
	if err != nil {
		return fmt.Errorf("failed to fetch transactions: %s", err)
	}
	byComment := make(map[string]models.Transaction, len(txs))
	for _, tx := range txs {
		if tx.Comment != "" {
			byComment[tx.Comment] = tx
		}
	}

	for _, payment := range pending {
		tx, ok := byComment[payment.PaymentComment]
		if !ok {
			continue
		}
		if err := s.settle(payment, tx, now); err != nil {
			s.logger.Error("Failed to settle ton payment ", "payment ", payment.ID, "error ", err)
		}
	}
	return nil
}

// settle completes one matched intent and credits the balance atomically.
// The pending->completed guard makes a rematch in a later cycle a no-op.
func (s *Scanner) settle(payment *models.TonPayment, tx models.Transaction, now time.Time) error {
	paid := decimal.New(tx.AmountNano, -9)
	if paid.LessThan(payment.AmountTon) {
		s.logger.Warn("Underpaid ton transfer skipped ",
			"payment ", payment.ID, "expected ", payment.AmountTon, "got ", paid)
		return nil
	}

	charts := payment.AmountTon.Mul(payment.RateUsed).Round(2)
	err := s.repo.WithTx(func(repo models.Repository) error {
		ok, err := repo.CompleteTonPayment(payment.ID, tx.Hash, tx.LT, tx.Source, charts, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		return creditBalance(repo, payment.TgID, charts, ReasonTonPayment)
	})
	if err != nil {
		return err
	}

	s.logger.Info("Ton payment completed ",
		"payment ", payment.ID, "tg_id ", payment.TgID,
		"amount ", payment.AmountTon, "charts ", charts, "tx ", tx.Hash)
	return nil
}
