package botfront

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"github.com/chartsboard/chartsboard/internal/auth"
	"github.com/chartsboard/chartsboard/internal/config"
	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

// Bot is the chat front end: it greets users, issues Stars invoices and
// feeds payment confirmations into the core.
type Bot struct {
	logger *logger.Logger
	cfg    *config.Config
	core   models.Core
	bot    *bot.Bot
}

var _ models.InvoiceLinker = (*Bot)(nil)

func NewBot(core models.Core, cfg *config.Config, logger *logger.Logger) (*Bot, error) {
	front := &Bot{
		logger: logger,
		cfg:    cfg,
		core:   core,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(func(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {}),
	}
	b, err := bot.New(cfg.BotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %s", err)
	}
	front.bot = b

	b.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, front.onStart)
	b.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypeExact, front.onStats)
	b.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return update.Message != nil && update.Message.SuccessfulPayment != nil
	}, front.onPaymentSuccess)
	b.RegisterHandlerMatchFunc(func(update *tgmodels.Update) bool {
		return update.PreCheckoutQuery != nil
	}, front.onPreCheckout)

	return front, nil
}

// Start runs long polling until ctx is canceled.
func (f *Bot) Start(ctx context.Context) {
	f.logger.Info("Bot started")
	f.bot.Start(ctx)
}

// SetCore wires the business service in after construction. The bot is
// built first so the core can use it as its invoice linker.
func (f *Bot) SetCore(core models.Core) {
	f.core = core
}

// CreateInvoiceLink issues a Stars invoice link. Stars invoices use the XTR
// currency and carry no provider token.
func (f *Bot) CreateInvoiceLink(ctx context.Context, title, description, payload string, starsAmount int) (string, error) {
	link, err := f.bot.CreateInvoiceLink(ctx, &bot.CreateInvoiceLinkParams{
		Title:       title,
		Description: description,
		Payload:     payload,
		Currency:    "XTR",
		Prices: []tgmodels.LabeledPrice{{
			Label:  title,
			Amount: starsAmount,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create invoice link: %s", err)
	}
	return link, nil
}

// onStart registers the user, honoring a ref_<id> start parameter, and
// replies with the mini-app link.
func (f *Bot) onStart(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	var refCode int64
	parts := strings.Fields(msg.Text)
	if len(parts) > 1 {
		refCode = auth.ParseRefCode(parts[1])
	}

	profile := models.UserProfile{
		TgID:         msg.From.ID,
		Username:     msg.From.Username,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: msg.From.LanguageCode,
		IsPremium:    msg.From.IsPremium,
	}
	if _, _, err := f.core.InitUser(ctx, profile, refCode); err != nil {
		f.logger.Error("Failed to init user from bot ", "tg_id ", msg.From.ID, "error ", err)
	}

	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   "Welcome to the charts leaderboard! Open the app to donate and climb the board.",
		ReplyMarkup: &tgmodels.InlineKeyboardMarkup{
			InlineKeyboard: [][]tgmodels.InlineKeyboardButton{{
				{Text: "Open app", URL: f.cfg.MiniAppURL},
			}},
		},
	})
	if err != nil {
		f.logger.Error("Failed to send start message ", "chat ", msg.Chat.ID, "error ", err)
	}
}

// onStats replies with the caller's board standing.
func (f *Bot) onStats(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}

	stats, err := f.core.UserStats(ctx, msg.From.ID)
	if err != nil {
		f.logger.Error("Failed to load user stats ", "tg_id ", msg.From.ID, "error ", err)
		return
	}

	rank := func(r int64) string {
		if r == 0 {
			return "unranked"
		}
		return fmt.Sprintf("#%d", r)
	}
	text := fmt.Sprintf(
		"Your stats\nAll time: %s charts (%s)\nThis week: %s charts (%s)\nReferrals: %d (%s charts)",
		stats.TonsAllTime, rank(stats.RankAllTime),
		stats.TonsWeek, rank(stats.RankWeek),
		stats.ReferralsCount, stats.ReferralsTotal,
	)
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: text}); err != nil {
		f.logger.Error("Failed to send stats message ", "chat ", msg.Chat.ID, "error ", err)
	}
}

// onPreCheckout approves every pre-checkout query; validation happened when
// the invoice was issued.
func (f *Bot) onPreCheckout(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	_, err := b.AnswerPreCheckoutQuery(ctx, &bot.AnswerPreCheckoutQueryParams{
		PreCheckoutQueryID: update.PreCheckoutQuery.ID,
		OK:                 true,
	})
	if err != nil {
		f.logger.Error("Failed to answer pre-checkout query ", "error ", err)
	}
}

// onPaymentSuccess feeds the confirmation into the core and acknowledges
// the credit to the user.
func (f *Bot) onPaymentSuccess(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	msg := update.Message
	p := msg.SuccessfulPayment

	payment, err := f.core.ConfirmStarsPayment(ctx, models.StarsConfirmation{
		ChargeID:       p.TelegramPaymentChargeID,
		InvoicePayload: p.InvoicePayload,
		StarsAmount:    p.TotalAmount,
	})
	if err != nil {
		f.logger.Error("Failed to confirm payment ", "charge_id ", p.TelegramPaymentChargeID, "error ", err)
		return
	}

	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   fmt.Sprintf("Payment received! %s charts added to your balance.", payment.TonsAmount),
	})
	if err != nil {
		f.logger.Error("Failed to send payment confirmation ", "chat ", msg.Chat.ID, "error ", err)
	}
}
