package notifier

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amishk599/boardwatch/internal/model"
)

// Ensure TelegramNotifier implements model.Notifier.
var _ model.Notifier = (*TelegramNotifier)(nil)

// TelegramNotifier posts a heading message and one message per job to a chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *slog.Logger
}

// defaultTelegramTimeout bounds each Bot API request when no timeout is set.
// BotAPI.Send takes no context, so the client timeout is the only bound.
const defaultTelegramTimeout = 30 * time.Second

// TelegramOptions configures a TelegramNotifier.
type TelegramOptions struct {
	Token    string
	ChatID   int64
	Endpoint string        // Bot API endpoint format; empty means api.telegram.org
	Timeout  time.Duration // per request
}

// NewTelegramNotifier authenticates the bot token against the Bot API.
func NewTelegramNotifier(opts TelegramOptions, logger *slog.Logger) (*TelegramNotifier, error) {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTelegramTimeout
	}
	return NewTelegramNotifierWithClient(opts.Token, opts.ChatID, endpoint, &http.Client{Timeout: timeout}, logger)
}

// NewTelegramNotifierWithClient is NewTelegramNotifier with a custom endpoint
// format and HTTP client.
func NewTelegramNotifierWithClient(token string, chatID int64, endpoint string, client *http.Client, logger *slog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	logger.Debug("telegram bot authorized", "username", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID, logger: logger}, nil
}

// Notify sends the digest heading followed by each record.
// Returns an error only if every message fails.
func (t *TelegramNotifier) Notify(ctx context.Context, records []model.JobRecord) error {
	if len(records) == 0 {
		return nil
	}

	d := DigestFrom(ctx)
	heading := "<b>" + html.EscapeString(Subject(d, len(records))) + "</b>"
	if d.Summary != "" {
		heading += "\n\n" + html.EscapeString(d.Summary)
	}

	msgs := []tgbotapi.MessageConfig{t.message(heading)}
	for _, r := range records {
		msgs = append(msgs, t.jobMessage(r))
	}

	failures := 0
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return &model.NotificationError{Channel: "telegram", Err: err}
		}
		if _, err := t.bot.Send(msg); err != nil {
			t.logger.Error("telegram message failed", "error", err)
			failures++
		}
	}

	if failures == len(msgs) {
		return &model.NotificationError{Channel: "telegram", Err: fmt.Errorf("all %d messages failed", failures)}
	}
	t.logger.Info("telegram notifications complete", "sent", len(msgs)-failures, "failed", failures)
	return nil
}

func (t *TelegramNotifier) message(text string) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}

func (t *TelegramNotifier) jobMessage(r model.JobRecord) tgbotapi.MessageConfig {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(r.Title))
	fmt.Fprintf(&b, "🏢 %s\n", html.EscapeString(orNA(r.Company)))
	fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(orNA(r.Location)))
	if r.Salary != "" {
		fmt.Fprintf(&b, "💰 %s\n", html.EscapeString(r.Salary))
	}
	if r.PostedAt != "" {
		fmt.Fprintf(&b, "📅 %s\n", html.EscapeString(r.PostedAt))
	}
	if applyByEmail(r) {
		fmt.Fprintf(&b, "📧 Apply by email: %s\n", html.EscapeString(r.ApplicationTarget))
	}

	msg := t.message(b.String())
	if strings.HasPrefix(r.URL, "http") {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonURL("🔗 View Job", r.URL),
			),
		)
	}
	return msg
}
