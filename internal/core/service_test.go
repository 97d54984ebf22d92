package core

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/chartsboard/chartsboard/internal/config"
	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/internal/rate"
	"github.com/chartsboard/chartsboard/internal/repository"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

type fakeLinker struct {
	lastPayload string
	err         error
}

func (f *fakeLinker) CreateInvoiceLink(ctx context.Context, title, description, payload string, starsAmount int) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.lastPayload = payload
	return "https://t.me/$invoice/slug-" + payload[:8], nil
}

type fakeIndexer struct {
	txs []models.Transaction
	err error
}

func (f *fakeIndexer) IncomingTransactions(ctx context.Context, wallet string, limit int) ([]models.Transaction, error) {
	return f.txs, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Timezone:             "Europe/Berlin",
		MiniAppURL:           "https://t.me/chartsbot/app",
		DefaultChartsPerStar: decimal.RequireFromString("0.002"),
		ChartsRounding:       config.RoundFloor,
		TonWalletAddress:     "EQtest-wallet",
		ChartsPerTon:         decimal.RequireFromString("50"),
		TonMinAmount:         decimal.RequireFromString("0.1"),
		TonMaxAmount:         decimal.RequireFromString("10000"),
		TonPaymentExpiry:     30 * time.Minute,
		ScanInterval:         30 * time.Second,
		ScanTxLimit:          50,
		LeaderboardLimit:     10000,
		Preset1Stars:         100,
		Preset2Stars:         50,
		Preset3Stars:         25,
	}
}

func newTestService(t *testing.T, cfg *config.Config, linker models.InvoiceLinker) (*Service, models.Repository) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	repo, err := repository.New(db, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to init repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	rates := rate.NewProvider(rate.Options{
		Default:  cfg.DefaultChartsPerStar,
		Rounding: cfg.ChartsRounding,
	}, logger.NewNop())

	svc, err := NewService(repo, rates, linker, cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to init service: %v", err)
	}
	return svc, repo
}

func registerUser(t *testing.T, svc *Service, tgID int64) *models.User {
	t.Helper()
	user, _, err := svc.InitUser(context.Background(), models.UserProfile{TgID: tgID, Username: "user"}, 0)
	if err != nil {
		t.Fatalf("InitUser(%d) error: %v", tgID, err)
	}
	return user
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestInitUserReferral(t *testing.T) {
	svc, _ := newTestService(t, testConfig(), nil)
	ctx := context.Background()

	registerUser(t, svc, 1)

	// Valid referral attaches at creation.
	user, isNew, err := svc.InitUser(ctx, models.UserProfile{TgID: 2}, 1)
	if err != nil || !isNew {
		t.Fatalf("InitUser() = %v, %v, want new user", isNew, err)
	}
	if user.ReferrerID == nil || *user.ReferrerID != 1 {
		t.Errorf("ReferrerID = %v, want 1", user.ReferrerID)
	}

	// Self-referral and unknown referrer are dropped.
	user, _, err = svc.InitUser(ctx, models.UserProfile{TgID: 3}, 3)
	if err != nil {
		t.Fatalf("InitUser() error: %v", err)
	}
	if user.ReferrerID != nil {
		t.Errorf("self-referral ReferrerID = %v, want nil", user.ReferrerID)
	}
	user, _, err = svc.InitUser(ctx, models.UserProfile{TgID: 4}, 404)
	if err != nil {
		t.Fatalf("InitUser() error: %v", err)
	}
	if user.ReferrerID != nil {
		t.Errorf("unknown referrer ReferrerID = %v, want nil", user.ReferrerID)
	}
}

func TestConfirmStarsPaymentFlow(t *testing.T) {
	linker := &fakeLinker{}
	svc, repo := newTestService(t, testConfig(), linker)
	ctx := context.Background()
	registerUser(t, svc, 1)

	invoice, err := svc.CreateInvoice(ctx, 1, 0, 1)
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}
	if invoice.StarsAmount != 100 {
		t.Errorf("StarsAmount = %d, want preset 100", invoice.StarsAmount)
	}
	if linker.lastPayload != invoice.PaymentID {
		t.Errorf("invoice payload = %q, want payment id %q", linker.lastPayload, invoice.PaymentID)
	}

	conf := models.StarsConfirmation{
		ChargeID:       "charge-1",
		InvoicePayload: invoice.PaymentID,
		StarsAmount:    100,
	}
	payment, err := svc.ConfirmStarsPayment(ctx, conf)
	if err != nil {
		t.Fatalf("ConfirmStarsPayment() error: %v", err)
	}
	if payment.Status != models.PaymentPaid {
		t.Errorf("Status = %s, want paid", payment.Status)
	}
	// 100 stars at the default 0.002 rate.
	if !payment.TonsAmount.Equal(dec("0.2")) {
		t.Errorf("TonsAmount = %s, want 0.2", payment.TonsAmount)
	}

	user, err := repo.GetUser(1)
	if err != nil {
		t.Fatalf("GetUser() error: %v", err)
	}
	if !user.BalanceCharts.Equal(dec("0.2")) {
		t.Errorf("BalanceCharts = %s, want 0.2", user.BalanceCharts)
	}

	// A replayed confirmation credits nothing.
	replayed, err := svc.ConfirmStarsPayment(ctx, conf)
	if err != nil {
		t.Fatalf("ConfirmStarsPayment() replay error: %v", err)
	}
	if replayed.ID != payment.ID {
		t.Errorf("replay returned payment %s, want %s", replayed.ID, payment.ID)
	}
	user, _ = repo.GetUser(1)
	if !user.BalanceCharts.Equal(dec("0.2")) {
		t.Errorf("BalanceCharts after replay = %s, want 0.2 (single credit)", user.BalanceCharts)
	}

	credits, debits, err := repo.LedgerTotals(1)
	if err != nil {
		t.Fatalf("LedgerTotals() error: %v", err)
	}
	if !credits.Equal(dec("0.2")) || !debits.IsZero() {
		t.Errorf("ledger = %s credits, %s debits, want 0.2 and 0", credits, debits)
	}
}

func TestConfirmStarsPaymentUnmatched(t *testing.T) {
	cfg := testConfig()
	svc, repo := newTestService(t, cfg, &fakeLinker{})
	ctx := context.Background()
	registerUser(t, svc, 1)

	_, err := svc.ConfirmStarsPayment(ctx, models.StarsConfirmation{ChargeID: "orphan"})
	if !errors.Is(err, models.ErrPaymentNotFound) {
		t.Errorf("ConfirmStarsPayment(orphan) error = %v, want ErrPaymentNotFound", err)
	}

	user, _ := repo.GetUser(1)
	if !user.BalanceCharts.IsZero() {
		t.Errorf("BalanceCharts = %s after unmatched confirmation, want 0", user.BalanceCharts)
	}
}

func TestConfirmStarsPaymentRecoveryHeuristic(t *testing.T) {
	cfg := testConfig()
	cfg.RecoveryMatchEnabled = true
	svc, _ := newTestService(t, cfg, &fakeLinker{})
	ctx := context.Background()
	registerUser(t, svc, 1)

	invoice, err := svc.CreateInvoice(ctx, 1, 50, 0)
	if err != nil {
		t.Fatalf("CreateInvoice() error: %v", err)
	}

	// No payload at all: the newest unassigned intent absorbs the
	// confirmation when the heuristic is on.
	payment, err := svc.ConfirmStarsPayment(ctx, models.StarsConfirmation{ChargeID: "charge-x"})
	if err != nil {
		t.Fatalf("ConfirmStarsPayment() error: %v", err)
	}
	if payment.ID.String() != invoice.PaymentID {
		t.Errorf("recovered payment %s, want %s", payment.ID, invoice.PaymentID)
	}
	if payment.Status != models.PaymentPaid {
		t.Errorf("Status = %s, want paid", payment.Status)
	}
}

func TestCreateInvoiceFailureClosesIntent(t *testing.T) {
	linker := &fakeLinker{err: errors.New("api down")}
	svc, repo := newTestService(t, testConfig(), linker)
	ctx := context.Background()
	registerUser(t, svc, 1)

	if _, err := svc.CreateInvoice(ctx, 1, 10, 0); err == nil {
		t.Fatal("CreateInvoice() = nil error, want failure")
	}

	payments, err := repo.ListPayments(1, 10, 0)
	if err != nil {
		t.Fatalf("ListPayments() error: %v", err)
	}
	if len(payments) != 1 || payments[0].Status != models.PaymentFailed {
		t.Errorf("payments = %+v, want one failed intent", payments)
	}
}

func TestCreditLedger(t *testing.T) {
	svc, repo := newTestService(t, testConfig(), nil)
	ctx := context.Background()
	registerUser(t, svc, 1)

	if err := svc.Credit(ctx, 1, dec("3.30"), "promo"); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}
	if err := svc.Credit(ctx, 1, dec("1.70"), "promo"); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}

	if err := svc.Credit(ctx, 1, dec("0"), "promo"); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("Credit(0) error = %v, want ErrInvalidAmount", err)
	}

	// Balance and ledger stay in lockstep.
	user, err := repo.GetUser(1)
	if err != nil {
		t.Fatalf("GetUser() error: %v", err)
	}
	credits, debits, err := repo.LedgerTotals(1)
	if err != nil {
		t.Fatalf("LedgerTotals() error: %v", err)
	}
	if !user.BalanceCharts.Equal(dec("5")) || !credits.Sub(debits).Equal(user.BalanceCharts) {
		t.Errorf("balance = %s, ledger net = %s, want both 5", user.BalanceCharts, credits.Sub(debits))
	}
}

func TestActivateCharts(t *testing.T) {
	svc, repo := newTestService(t, testConfig(), nil)
	ctx := context.Background()
	registerUser(t, svc, 1)

	if err := svc.Credit(ctx, 1, dec("10"), "promo"); err != nil {
		t.Fatalf("Credit() error: %v", err)
	}

	activation, err := svc.ActivateCharts(ctx, 1, dec("4"))
	if err != nil {
		t.Fatalf("ActivateCharts() error: %v", err)
	}
	if !activation.NewBalance.Equal(dec("6")) {
		t.Errorf("NewBalance = %s, want 6", activation.NewBalance)
	}
	if activation.WeekKey != svc.currentWeekKey() {
		t.Errorf("WeekKey = %s, want %s", activation.WeekKey, svc.currentWeekKey())
	}

	board, err := svc.WeekLeaderboard(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("WeekLeaderboard() error: %v", err)
	}
	if len(board) != 1 || !board[0].TonsTotal.Equal(dec("4")) {
		t.Fatalf("board = %+v, want one row with 4", board)
	}

	// Overdraft activates nothing and leaves no board row behind.
	if _, err := svc.ActivateCharts(ctx, 1, dec("100")); !errors.Is(err, models.ErrInsufficientBalance) {
		t.Errorf("ActivateCharts(overdraft) error = %v, want ErrInsufficientBalance", err)
	}
	board, _ = svc.WeekLeaderboard(ctx, "", 10, 0)
	if len(board) != 1 || !board[0].TonsTotal.Equal(dec("4")) {
		t.Errorf("board after failed activation = %+v, want unchanged", board)
	}

	if _, err := svc.ActivateCharts(ctx, 1, dec("-1")); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("ActivateCharts(-1) error = %v, want ErrInvalidAmount", err)
	}

	_, debits, err := repo.LedgerTotals(1)
	if err != nil {
		t.Fatalf("LedgerTotals() error: %v", err)
	}
	if !debits.Equal(dec("4")) {
		t.Errorf("ledger debits = %s, want 4", debits)
	}
	user, _ := repo.GetUser(1)
	if !user.BalanceCharts.Equal(dec("6")) {
		t.Errorf("BalanceCharts = %s, want 6", user.BalanceCharts)
	}
}

func TestCreateTonPayment(t *testing.T) {
	cfg := testConfig()
	svc, _ := newTestService(t, cfg, nil)
	ctx := context.Background()
	registerUser(t, svc, 1)

	invoice, err := svc.CreateTonPayment(ctx, 1, dec("2.5"))
	if err != nil {
		t.Fatalf("CreateTonPayment() error: %v", err)
	}
	p := invoice.Payment
	if !strings.HasPrefix(p.PaymentComment, "charts_") || len(p.PaymentComment) != len("charts_")+12 {
		t.Errorf("PaymentComment = %q, want charts_ prefix with 12 hex chars", p.PaymentComment)
	}
	wantLink := "ton://transfer/EQtest-wallet?amount=2500000000&text=" + p.PaymentComment
	if invoice.PaymentLink != wantLink {
		t.Errorf("PaymentLink = %q, want %q", invoice.PaymentLink, wantLink)
	}
	if !p.RateUsed.Equal(cfg.ChartsPerTon) {
		t.Errorf("RateUsed = %s, want snapshot %s", p.RateUsed, cfg.ChartsPerTon)
	}

	// Two intents never share a memo.
	second, err := svc.CreateTonPayment(ctx, 1, dec("2.5"))
	if err != nil {
		t.Fatalf("CreateTonPayment() second error: %v", err)
	}
	if second.Payment.PaymentComment == p.PaymentComment {
		t.Error("two intents share a payment comment")
	}

	for _, amount := range []string{"0.05", "10001"} {
		if _, err := svc.CreateTonPayment(ctx, 1, dec(amount)); !errors.Is(err, models.ErrInvalidAmount) {
			t.Errorf("CreateTonPayment(%s) error = %v, want ErrInvalidAmount", amount, err)
		}
	}

	cfg.TonWalletAddress = ""
	if _, err := svc.CreateTonPayment(ctx, 1, dec("1")); !errors.Is(err, models.ErrUnconfigured) {
		t.Errorf("CreateTonPayment() without wallet error = %v, want ErrUnconfigured", err)
	}
}

func TestTonPaymentByCommentOwnership(t *testing.T) {
	svc, _ := newTestService(t, testConfig(), nil)
	ctx := context.Background()
	registerUser(t, svc, 1)
	registerUser(t, svc, 2)

	invoice, err := svc.CreateTonPayment(ctx, 1, dec("1"))
	if err != nil {
		t.Fatalf("CreateTonPayment() error: %v", err)
	}

	if _, err := svc.TonPaymentByComment(ctx, 1, invoice.Payment.PaymentComment); err != nil {
		t.Errorf("TonPaymentByComment(owner) error: %v", err)
	}
	if _, err := svc.TonPaymentByComment(ctx, 2, invoice.Payment.PaymentComment); !errors.Is(err, models.ErrTonPaymentNotFound) {
		t.Errorf("TonPaymentByComment(other user) error = %v, want ErrTonPaymentNotFound", err)
	}
}

func TestScannerSettlement(t *testing.T) {
	cfg := testConfig()
	svc, repo := newTestService(t, cfg, nil)
	ctx := context.Background()
	registerUser(t, svc, 1)

	invoice, err := svc.CreateTonPayment(ctx, 1, dec("5"))
	if err != nil {
		t.Fatalf("CreateTonPayment() error: %v", err)
	}

	// Overpayment settles at the requested amount, not the paid one.
	indexer := &fakeIndexer{txs: []models.Transaction{{
		Hash:       "txhash",
		LT:         7,
		AmountNano: 5_200_000_000,
		Source:     "sender-wallet",
		Comment:    invoice.Payment.PaymentComment,
	}}}
	scanner := NewScanner(repo, indexer, cfg, logger.NewNop())

	if err := scanner.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce() error: %v", err)
	}

	user, _ := repo.GetUser(1)
	want := dec("5").Mul(cfg.ChartsPerTon) // 250
	if !user.BalanceCharts.Equal(want) {
		t.Errorf("BalanceCharts = %s, want %s", user.BalanceCharts, want)
	}

	p, err := repo.GetTonPaymentByComment(invoice.Payment.PaymentComment)
	if err != nil {
		t.Fatalf("GetTonPaymentByComment() error: %v", err)
	}
	if p.Status != models.TonPaymentCompleted {
		t.Errorf("Status = %s, want completed", p.Status)
	}
	if p.TxHash == nil || *p.TxHash != "txhash" || p.FromWallet != "sender-wallet" {
		t.Errorf("transaction fields = %v/%s, want txhash/sender-wallet", p.TxHash, p.FromWallet)
	}

	// The same transfer observed again credits nothing.
	if err := scanner.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce() second error: %v", err)
	}
	user, _ = repo.GetUser(1)
	if !user.BalanceCharts.Equal(want) {
		t.Errorf("BalanceCharts after rescan = %s, want %s (single credit)", user.BalanceCharts, want)
	}
}

func TestScannerSkipsUnderpayment(t *testing.T) {
	cfg := testConfig()
	svc, repo := newTestService(t, cfg, nil)
	ctx := context.Background()
	registerUser(t, svc, 1)

	invoice, err := svc.CreateTonPayment(ctx, 1, dec("5"))
	if err != nil {
		t.Fatalf("CreateTonPayment() error: %v", err)
	}

	indexer := &fakeIndexer{txs: []models.Transaction{{
		Hash:       "txhash",
		AmountNano: 4_900_000_000,
		Comment:    invoice.Payment.PaymentComment,
	}}}
	scanner := NewScanner(repo, indexer, cfg, logger.NewNop())
	if err := scanner.ScanOnce(ctx); err != nil {
		t.Fatalf("ScanOnce() error: %v", err)
	}

	p, _ := repo.GetTonPaymentByComment(invoice.Payment.PaymentComment)
	if p.Status != models.TonPaymentPending {
		t.Errorf("Status = %s, want still pending after underpayment", p.Status)
	}
	user, _ := repo.GetUser(1)
	if !user.BalanceCharts.IsZero() {
		t.Errorf("BalanceCharts = %s, want 0", user.BalanceCharts)
	}
}

func TestCompleteTaskOnce(t *testing.T) {
	svc, repo := newTestService(t, testConfig(), nil)
	ctx := context.Background()
	registerUser(t, svc, 1)

	task := &models.Task{ID: uuid.New(), Type: "social", Title: "Join channel", ChartsReward: dec("2.50"), IsActive: true}
	if err := repo.CreateTask(task); err != nil {
		t.Fatalf("failed to seed task: %v", err)
	}

	result, err := svc.CompleteTask(ctx, 1, task.ID.String())
	if err != nil {
		t.Fatalf("CompleteTask() error: %v", err)
	}
	if !result.ChartsAdded.Equal(dec("2.50")) || !result.NewBalance.Equal(dec("2.50")) {
		t.Errorf("result = %+v, want 2.50 added and 2.50 balance", result)
	}

	if _, err := svc.CompleteTask(ctx, 1, task.ID.String()); !errors.Is(err, models.ErrAlreadyCompleted) {
		t.Errorf("CompleteTask() repeat error = %v, want ErrAlreadyCompleted", err)
	}
	user, _ := repo.GetUser(1)
	if !user.BalanceCharts.Equal(dec("2.50")) {
		t.Errorf("BalanceCharts = %s after repeat, want 2.50", user.BalanceCharts)
	}

	views, err := svc.ListTasks(ctx, 1)
	if err != nil {
		t.Fatalf("ListTasks() error: %v", err)
	}
	if len(views) != 1 || !views[0].Completed {
		t.Errorf("ListTasks() = %+v, want one completed task", views)
	}

	if _, err := svc.CompleteTask(ctx, 1, "not-a-uuid"); !errors.Is(err, models.ErrTaskNotFound) {
		t.Errorf("CompleteTask(bad id) error = %v, want ErrTaskNotFound", err)
	}
}

func TestUserStats(t *testing.T) {
	cfg := testConfig()
	svc, repo := newTestService(t, cfg, nil)
	ctx := context.Background()
	registerUser(t, svc, 1)
	registerUser(t, svc, 2)

	week := svc.currentWeekKey()
	for _, d := range []struct {
		tgID   int64
		amount string
	}{{1, "5"}, {2, "10"}} {
		err := repo.CreateDonation(&models.Donation{
			ID: uuid.New(), TgID: d.tgID, TonsAmount: dec(d.amount), WeekKey: week,
		})
		if err != nil {
			t.Fatalf("CreateDonation() error: %v", err)
		}
	}

	stats, err := svc.UserStats(ctx, 1)
	if err != nil {
		t.Fatalf("UserStats() error: %v", err)
	}
	if stats.RankAllTime != 2 || stats.RankWeek != 2 {
		t.Errorf("ranks = %d/%d, want 2/2", stats.RankAllTime, stats.RankWeek)
	}
	if !stats.TonsAllTime.Equal(dec("5")) || !stats.TonsWeek.Equal(dec("5")) {
		t.Errorf("totals = %s/%s, want 5/5", stats.TonsAllTime, stats.TonsWeek)
	}
	if stats.ReferralLink != "https://t.me/chartsbot/app?startapp=ref_1" {
		t.Errorf("ReferralLink = %q", stats.ReferralLink)
	}

	// A user without donations is unranked, not last.
	registerUser(t, svc, 3)
	stats, err = svc.UserStats(ctx, 3)
	if err != nil {
		t.Fatalf("UserStats() error: %v", err)
	}
	if stats.RankAllTime != 0 || stats.RankWeek != 0 {
		t.Errorf("ranks for zero totals = %d/%d, want 0/0", stats.RankAllTime, stats.RankWeek)
	}
}
