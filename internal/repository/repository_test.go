package repository

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

func newTestRepo(t *testing.T) *DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	repo, err := New(db, logger.NewNop())
	if err != nil {
		t.Fatalf("failed to init repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo.(*DB)
}

func seedUser(t *testing.T, repo models.Repository, tgID int64) *models.User {
	t.Helper()
	user, _, err := repo.UpsertUser(models.UserProfile{TgID: tgID, Username: "user"}, nil)
	if err != nil {
		t.Fatalf("failed to seed user %d: %v", tgID, err)
	}
	return user
}

func addDonation(t *testing.T, repo models.Repository, tgID int64, amount, weekKey string) {
	t.Helper()
	err := repo.CreateDonation(&models.Donation{
		ID:         uuid.New(),
		TgID:       tgID,
		TonsAmount: decimal.RequireFromString(amount),
		WeekKey:    weekKey,
	})
	if err != nil {
		t.Fatalf("failed to create donation: %v", err)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestUpsertUser(t *testing.T) {
	repo := newTestRepo(t)

	referrer := seedUser(t, repo, 1)
	user, isNew, err := repo.UpsertUser(models.UserProfile{TgID: 2, Username: "bob"}, &referrer.TgID)
	if err != nil {
		t.Fatalf("UpsertUser() error: %v", err)
	}
	if !isNew {
		t.Error("isNew = false on first contact, want true")
	}
	if user.ReferrerID == nil || *user.ReferrerID != 1 {
		t.Errorf("ReferrerID = %v, want 1", user.ReferrerID)
	}

	// A later contact with another referrer must not rewrite the original.
	other := int64(99)
	user, isNew, err = repo.UpsertUser(models.UserProfile{TgID: 2, Username: "bobby"}, &other)
	if err != nil {
		t.Fatalf("UpsertUser() error: %v", err)
	}
	if isNew {
		t.Error("isNew = true on repeat contact, want false")
	}
	if user.ReferrerID == nil || *user.ReferrerID != 1 {
		t.Errorf("ReferrerID after repeat contact = %v, want 1", user.ReferrerID)
	}
	if user.Username != "bobby" {
		t.Errorf("Username = %q, want refreshed bobby", user.Username)
	}

	// Empty profile fields must not blank out stored values.
	user, _, err = repo.UpsertUser(models.UserProfile{TgID: 2}, nil)
	if err != nil {
		t.Fatalf("UpsertUser() error: %v", err)
	}
	if user.Username != "bobby" {
		t.Errorf("Username after empty refresh = %q, want bobby", user.Username)
	}
}

func TestBalancePrimitives(t *testing.T) {
	repo := newTestRepo(t)
	user := seedUser(t, repo, 1)

	if err := repo.CreditBalance(user.TgID, dec("10.50")); err != nil {
		t.Fatalf("CreditBalance() error: %v", err)
	}
	if err := repo.DebitBalance(user.TgID, dec("4.25")); err != nil {
		t.Fatalf("DebitBalance() error: %v", err)
	}

	got, err := repo.GetUser(user.TgID)
	if err != nil {
		t.Fatalf("GetUser() error: %v", err)
	}
	if !got.BalanceCharts.Equal(dec("6.25")) {
		t.Errorf("BalanceCharts = %s, want 6.25", got.BalanceCharts)
	}

	// Overdraft must fail and leave the balance untouched.
	err = repo.DebitBalance(user.TgID, dec("100"))
	if !errors.Is(err, models.ErrInsufficientBalance) {
		t.Errorf("DebitBalance() overdraft error = %v, want ErrInsufficientBalance", err)
	}
	got, _ = repo.GetUser(user.TgID)
	if !got.BalanceCharts.Equal(dec("6.25")) {
		t.Errorf("BalanceCharts after failed debit = %s, want 6.25", got.BalanceCharts)
	}

	if err := repo.CreditBalance(404, dec("1")); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("CreditBalance(unknown) error = %v, want ErrUserNotFound", err)
	}
	if err := repo.DebitBalance(404, dec("1")); !errors.Is(err, models.ErrUserNotFound) {
		t.Errorf("DebitBalance(unknown) error = %v, want ErrUserNotFound", err)
	}
}

func TestMarkPaymentPaidOnce(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, 1)

	payment := &models.Payment{ID: uuid.New(), TgID: 1, StarsAmount: 100, Status: models.PaymentCreated}
	if err := repo.CreatePayment(payment); err != nil {
		t.Fatalf("CreatePayment() error: %v", err)
	}

	ok, err := repo.MarkPaymentPaid(payment.ID, "charge-1", dec("0.20"), dec("0.002"), time.Now())
	if err != nil || !ok {
		t.Fatalf("MarkPaymentPaid() = %v, %v, want true, nil", ok, err)
	}

	// The status guard makes a second transition a no-op.
	ok, err = repo.MarkPaymentPaid(payment.ID, "charge-1", dec("0.20"), dec("0.002"), time.Now())
	if err != nil {
		t.Fatalf("MarkPaymentPaid() second call error: %v", err)
	}
	if ok {
		t.Error("MarkPaymentPaid() second call = true, want false")
	}

	got, err := repo.GetPaymentByChargeID("charge-1")
	if err != nil {
		t.Fatalf("GetPaymentByChargeID() error: %v", err)
	}
	if got.Status != models.PaymentPaid {
		t.Errorf("Status = %s, want paid", got.Status)
	}
	if !got.TonsAmount.Equal(dec("0.20")) {
		t.Errorf("TonsAmount = %s, want 0.20", got.TonsAmount)
	}
}

func TestTonPaymentLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, 1)
	now := time.Now().UTC()

	fresh := &models.TonPayment{
		ID: uuid.New(), TgID: 1, AmountTon: dec("5"), PaymentComment: "charts_fresh",
		ToWallet: "wallet", Status: models.TonPaymentPending, RateUsed: dec("50"),
		ExpiresAt: now.Add(30 * time.Minute),
	}
	overdue := &models.TonPayment{
		ID: uuid.New(), TgID: 1, AmountTon: dec("1"), PaymentComment: "charts_late",
		ToWallet: "wallet", Status: models.TonPaymentPending, RateUsed: dec("50"),
		ExpiresAt: now.Add(-time.Minute),
	}
	for _, p := range []*models.TonPayment{fresh, overdue} {
		if err := repo.CreateTonPayment(p); err != nil {
			t.Fatalf("CreateTonPayment() error: %v", err)
		}
	}

	expired, err := repo.ExpireTonPayments(now)
	if err != nil {
		t.Fatalf("ExpireTonPayments() error: %v", err)
	}
	if expired != 1 {
		t.Errorf("ExpireTonPayments() = %d, want 1", expired)
	}

	pending, err := repo.PendingTonPayments(now)
	if err != nil {
		t.Fatalf("PendingTonPayments() error: %v", err)
	}
	if len(pending) != 1 || pending[0].PaymentComment != "charts_fresh" {
		t.Fatalf("PendingTonPayments() = %v, want only charts_fresh", pending)
	}

	ok, err := repo.CompleteTonPayment(fresh.ID, "hash1", 42, "sender", dec("250"), now)
	if err != nil || !ok {
		t.Fatalf("CompleteTonPayment() = %v, %v, want true, nil", ok, err)
	}
	ok, err = repo.CompleteTonPayment(fresh.ID, "hash1", 42, "sender", dec("250"), now)
	if err != nil {
		t.Fatalf("CompleteTonPayment() second call error: %v", err)
	}
	if ok {
		t.Error("CompleteTonPayment() second call = true, want false")
	}

	// An expired intent can never complete.
	ok, err = repo.CompleteTonPayment(overdue.ID, "hash2", 43, "sender", dec("50"), now)
	if err != nil {
		t.Fatalf("CompleteTonPayment(expired) error: %v", err)
	}
	if ok {
		t.Error("CompleteTonPayment(expired) = true, want false")
	}
}

func TestAllTimeLeaderboardOrdering(t *testing.T) {
	repo := newTestRepo(t)
	for _, id := range []int64{1, 2, 3, 4} {
		seedUser(t, repo, id)
	}
	addDonation(t, repo, 1, "5", "2026-W10")
	addDonation(t, repo, 2, "10", "2026-W10")
	addDonation(t, repo, 3, "5", "2026-W11")

	board, err := repo.AllTimeLeaderboard(10, 0)
	if err != nil {
		t.Fatalf("AllTimeLeaderboard() error: %v", err)
	}
	if len(board) != 4 {
		t.Fatalf("len(board) = %d, want 4 (zero totals included)", len(board))
	}

	wantOrder := []int64{2, 1, 3, 4}
	for i, want := range wantOrder {
		if board[i].TgID != want {
			t.Errorf("board[%d].TgID = %d, want %d", i, board[i].TgID, want)
		}
		if board[i].Rank != int64(i+1) {
			t.Errorf("board[%d].Rank = %d, want %d", i, board[i].Rank, i+1)
		}
	}

	// Ties break by tg_id ascending, deterministically.
	if !board[1].TonsTotal.Equal(board[2].TonsTotal) {
		t.Fatalf("expected a tie between rows 1 and 2")
	}

	// Pagination keeps absolute ranks.
	page, err := repo.AllTimeLeaderboard(2, 2)
	if err != nil {
		t.Fatalf("AllTimeLeaderboard(offset) error: %v", err)
	}
	if len(page) != 2 || page[0].Rank != 3 || page[0].TgID != 3 {
		t.Errorf("offset page = %+v, want rank 3 user 3 first", page[0])
	}
}

func TestWeekLeaderboardMembership(t *testing.T) {
	repo := newTestRepo(t)
	for _, id := range []int64{1, 2, 3} {
		seedUser(t, repo, id)
	}
	addDonation(t, repo, 1, "3", "2026-W10")
	addDonation(t, repo, 2, "7", "2026-W11")

	board, err := repo.WeekLeaderboard("2026-W10", 10, 0)
	if err != nil {
		t.Fatalf("WeekLeaderboard() error: %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("len(board) = %d, want 1 (other weeks and zero totals excluded)", len(board))
	}
	if board[0].TgID != 1 || !board[0].TonsTotal.Equal(dec("3")) {
		t.Errorf("board[0] = %+v, want user 1 with 3", board[0])
	}
}

func TestRanks(t *testing.T) {
	repo := newTestRepo(t)
	for _, id := range []int64{1, 2, 3} {
		seedUser(t, repo, id)
	}
	addDonation(t, repo, 1, "5", "2026-W10")
	addDonation(t, repo, 2, "10", "2026-W10")
	addDonation(t, repo, 3, "5", "2026-W10")

	greater, err := repo.AllTimeRank(dec("5"))
	if err != nil {
		t.Fatalf("AllTimeRank() error: %v", err)
	}
	if greater != 1 {
		t.Errorf("AllTimeRank(5) = %d, want 1 (only user 2 above)", greater)
	}

	greater, err = repo.WeekRank("2026-W10", dec("10"))
	if err != nil {
		t.Fatalf("WeekRank() error: %v", err)
	}
	if greater != 0 {
		t.Errorf("WeekRank(10) = %d, want 0", greater)
	}
}

func TestReferralAggregates(t *testing.T) {
	repo := newTestRepo(t)
	referrer := seedUser(t, repo, 1)
	for _, id := range []int64{2, 3} {
		if _, _, err := repo.UpsertUser(models.UserProfile{TgID: id}, &referrer.TgID); err != nil {
			t.Fatalf("failed to seed referred user: %v", err)
		}
	}
	seedUser(t, repo, 4)
	addDonation(t, repo, 2, "5", "2026-W10")
	addDonation(t, repo, 3, "2.50", "2026-W10")

	count, total, err := repo.ReferralStats(1)
	if err != nil {
		t.Fatalf("ReferralStats() error: %v", err)
	}
	if count != 2 {
		t.Errorf("referral count = %d, want 2", count)
	}
	if !total.Equal(dec("7.50")) {
		t.Errorf("referral total = %s, want 7.50", total)
	}

	board, err := repo.ReferralLeaderboard(10, 0)
	if err != nil {
		t.Fatalf("ReferralLeaderboard() error: %v", err)
	}
	if len(board) != 1 {
		t.Fatalf("len(board) = %d, want 1 (users without referrals excluded)", len(board))
	}
	if board[0].TgID != 1 || board[0].ReferralsCount != 2 || !board[0].ReferralsTotal.Equal(dec("7.50")) {
		t.Errorf("board[0] = %+v, want user 1 with 2 referrals totalling 7.50", board[0])
	}
}

func TestTaskCompletionUnique(t *testing.T) {
	repo := newTestRepo(t)
	seedUser(t, repo, 1)

	task := &models.Task{ID: uuid.New(), Type: "social", Title: "Join channel", ChartsReward: dec("1"), IsActive: true}
	if err := repo.Conn.Create(task).Error; err != nil {
		t.Fatalf("failed to seed task: %v", err)
	}

	if err := repo.CreateTaskCompletion(&models.TaskCompletion{TgID: 1, TaskID: task.ID}); err != nil {
		t.Fatalf("CreateTaskCompletion() error: %v", err)
	}
	err := repo.CreateTaskCompletion(&models.TaskCompletion{TgID: 1, TaskID: task.ID})
	if !errors.Is(err, models.ErrAlreadyCompleted) {
		t.Errorf("CreateTaskCompletion() duplicate error = %v, want ErrAlreadyCompleted", err)
	}
}
