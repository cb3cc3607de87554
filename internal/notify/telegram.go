// Package notify posts ingestion run summaries to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"alerts_ingestor/internal/config"
	"alerts_ingestor/internal/pipeline"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram reports runs that stored new alerts. Quiet runs are not posted.
type Telegram struct {
	api    telegramAPI
	chatID int64
	log    *slog.Logger
}

// NewTelegram creates a reporter for the configured bot and chat.
func NewTelegram(cfg config.TelegramConfig, log *slog.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Telegram{api: api, chatID: cfg.ChatID, log: log.With("component", "notify")}, nil
}

// ReportRun sends the summary of a run when it added at least one alert.
func (t *Telegram) ReportRun(_ context.Context, s pipeline.Summary) error {
	if s.New == 0 {
		return nil
	}
	msg := tgbotapi.NewMessage(t.chatID, FormatSummary(s))
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("send summary to chat %d: %w", t.chatID, err)
	}
	t.log.Debug("summary sent", "chat_id", t.chatID, "new", s.New)
	return nil
}

// FormatSummary renders a run summary as a Telegram message.
func FormatSummary(s pipeline.Summary) string {
	var b strings.Builder
	b.WriteString("[Alerts ingestion]\n\n")
	fmt.Fprintf(&b, "New: %d\n", s.New)
	fmt.Fprintf(&b, "Already stored: %d\n", s.Skipped)
	fmt.Fprintf(&b, "Fetched: %d", s.Fetched)
	if !s.Finished.IsZero() {
		fmt.Fprintf(&b, "\n\nFinished %s (took %s)",
			s.Finished.UTC().Format(time.RFC3339), s.Duration().Round(time.Millisecond))
	}
	return b.String()
}
